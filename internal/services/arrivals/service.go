// Package arrivals держит рабочий набор записей прибытий: загрузка и
// нормализация списка с бэкенда, слияние с локальными оверрайдами,
// оптимистичные мутации с откатом и фоновая дозагрузка недостающих полей.
package arrivals

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/wareline/arrivalbox/internal/broker/messages"
	"github.com/wareline/arrivalbox/internal/models"
	"github.com/wareline/arrivalbox/internal/normalize"
	"github.com/wareline/arrivalbox/internal/store/overrides"
)

type Backend interface {
	ListArrivals(ctx context.Context) ([]map[string]any, error)
	GetArrival(ctx context.Context, id int64) (map[string]any, error)
	CreateArrival(ctx context.Context, input models.ArrivalCreateInput) (map[string]any, error)
	UpdateArrival(ctx context.Context, id int64, patch map[string]any) (map[string]any, error)
	DeleteArrival(ctx context.Context, id int64) error
	ListFiles(ctx context.Context, id int64) ([]map[string]any, error)
}

type NotificationLog interface {
	Append(ctx context.Context, n *models.Notification, maxEntries int) error
}

type Publisher interface {
	PublishArrivalChanged(ctx context.Context, msg messages.ArrivalChanged) error
}

type Options struct {
	// MaxNotifications ограничивает журнал уведомлений (старые подрезаются).
	MaxNotifications int
	// KnownLocations и KnownResponsibles — справочники для канонизации
	// свободного текста.
	KnownLocations    []string
	KnownResponsibles []string
	// BackfillConcurrency ограничивает число одновременных фоновых
	// дозапросов деталей.
	BackfillConcurrency int
}

type Service struct {
	backend   Backend
	overrides *overrides.Store
	notify    NotificationLog
	publisher Publisher
	opts      Options

	backfillSem chan struct{}

	mu      sync.RWMutex
	records map[int64]models.Arrival
	created []int64 // локально созданные с момента последнего скана

	loading        atomic.Bool
	totalLoads     atomic.Int64
	totalMutations atomic.Int64
	totalRollbacks atomic.Int64
	totalBackfills atomic.Int64
	lastLoadUnixNano atomic.Int64
}

func New(b Backend, ov *overrides.Store, notify NotificationLog, pub Publisher, opts Options) *Service {
	if opts.MaxNotifications <= 0 {
		opts.MaxNotifications = 200
	}
	if opts.BackfillConcurrency <= 0 {
		opts.BackfillConcurrency = 4
	}
	return &Service{
		backend:     b,
		overrides:   ov,
		notify:      notify,
		publisher:   pub,
		opts:        opts,
		backfillSem: make(chan struct{}, opts.BackfillConcurrency),
		records:     map[int64]models.Arrival{},
	}
}

// Load перечитывает список с бэкенда, нормализует, сливает оверрайды и
// подменяет рабочий набор целиком. Записи с пустыми отслеживаемыми полями
// или нулевым числом файлов уходят в фоновую дозагрузку.
func (s *Service) Load(ctx context.Context) error {
	s.loading.Store(true)
	defer s.loading.Store(false)

	raws, err := s.backend.ListArrivals(ctx)
	if err != nil {
		return errors.Wrap(err, "list arrivals")
	}

	fresh := make(map[int64]models.Arrival, len(raws))
	var backfillIDs []int64
	for _, rec := range normalize.Records(raws) {
		if rec.ID == 0 {
			continue
		}
		s.canonicalize(&rec)
		s.overrides.Merge(ctx, &rec)
		fresh[rec.ID] = rec

		if rec.Location == "" || rec.Responsible == "" || rec.FilesCount == 0 {
			backfillIDs = append(backfillIDs, rec.ID)
		}
	}

	s.mu.Lock()
	s.records = fresh
	s.mu.Unlock()

	s.totalLoads.Add(1)
	s.lastLoadUnixNano.Store(time.Now().UTC().UnixNano())

	// Дозагрузка не блокирует выдачу и живёт дольше контекста загрузки:
	// обрыв вызвавшего запроса не должен ронять уже начатые дозапросы.
	bctx := context.WithoutCancel(ctx)
	for _, id := range backfillIDs {
		go s.backfill(bctx, id)
	}
	return nil
}

// ChangeStatus — оптимистичная смена статуса: рабочий набор меняется сразу,
// подтверждение бэкенда догоняет. При отказе откатывается ровно одно поле
// status, чтобы не затереть параллельные правки других полей.
func (s *Service) ChangeStatus(ctx context.Context, id int64, toStatus string) error {
	to := normalize.Status(toStatus)

	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return errors.Errorf("arrival %d not found", id)
	}
	from := rec.Status
	rec.Status = to
	s.records[id] = rec
	s.mu.Unlock()

	if from == to {
		return nil
	}
	s.totalMutations.Add(1)

	if _, err := s.backend.UpdateArrival(ctx, id, map[string]any{"status": to}); err != nil {
		s.revertStatus(id, from)
		s.totalRollbacks.Add(1)
		return errors.Wrapf(err, "update status of arrival %d", id)
	}

	s.appendNotification(ctx, models.NewNotification(
		models.NotificationTypeInfo, models.NotificationEventStatusChanged, id,
		fmt.Sprintf("%s → %s", models.StatusLabel(from), models.StatusLabel(to)),
	))
	s.publish(ctx, messages.ArrivalChanged{
		Kind:      messages.KindPatched,
		ArrivalID: id,
		Fields:    map[string]any{"status": to},
	})
	return nil
}

// revertStatus возвращает прежний статус, не трогая остальные поля записи.
func (s *Service) revertStatus(id int64, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return
	}
	rec.Status = status
	s.records[id] = rec
}

// BulkOutcome — результат групповой смены статуса. Атомарности нет:
// часть записей может смениться, часть остаться, Failed говорит какие.
type BulkOutcome struct {
	Changed []int64         `json:"changed"`
	Failed  map[int64]string `json:"failed,omitempty"`
}

func (s *Service) BulkChangeStatus(ctx context.Context, ids []int64, toStatus string) BulkOutcome {
	out := BulkOutcome{Failed: map[int64]string{}}
	for _, id := range ids {
		if err := s.ChangeStatus(ctx, id, toStatus); err != nil {
			out.Failed[id] = err.Error()
			continue
		}
		out.Changed = append(out.Changed, id)
	}
	return out
}

// Delete — оптимистичное удаление: запись исчезает из набора сразу,
// при отказе бэкенда возвращается (выдача отсортирована по id, так что
// исходная позиция не важна).
func (s *Service) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return errors.Errorf("arrival %d not found", id)
	}
	delete(s.records, id)
	s.mu.Unlock()

	s.totalMutations.Add(1)

	if err := s.backend.DeleteArrival(ctx, id); err != nil {
		s.mu.Lock()
		s.records[id] = rec
		s.mu.Unlock()
		s.totalRollbacks.Add(1)
		return errors.Wrapf(err, "delete arrival %d", id)
	}

	s.appendNotification(ctx, models.NewNotification(
		models.NotificationTypeInfo, models.NotificationEventDeleted, id,
		fmt.Sprintf("Arrival %d deleted", id),
	))
	s.publish(ctx, messages.ArrivalChanged{Kind: messages.KindDeleted, ArrivalID: id})
	return nil
}

func (s *Service) Create(ctx context.Context, input models.ArrivalCreateInput) (models.Arrival, error) {
	raw, err := s.backend.CreateArrival(ctx, input)
	if err != nil {
		return models.Arrival{}, errors.Wrap(err, "create arrival")
	}

	rec := normalize.Record(raw)
	if rec.ID == 0 {
		return models.Arrival{}, errors.New("backend returned arrival without id")
	}
	s.canonicalize(&rec)
	s.overrides.Merge(ctx, &rec)

	s.mu.Lock()
	s.records[rec.ID] = rec
	// Запоминаем, что создание локальное: следующий скан нотификатора
	// не должен продублировать "created".
	s.created = append(s.created, rec.ID)
	s.mu.Unlock()

	s.appendNotification(ctx, models.NewNotification(
		models.NotificationTypeInfo, models.NotificationEventCreated, rec.ID,
		fmt.Sprintf("Arrival %d created", rec.ID),
	))
	s.publish(ctx, messages.ArrivalChanged{Kind: messages.KindCreated, ArrivalID: rec.ID})
	return rec, nil
}

// ApplyPatch применяет частичный набор полей к одной записи без полной
// перезагрузки. Поля приходят в любом историческом словаре.
func (s *Service) ApplyPatch(ctx context.Context, id int64, fields map[string]any) {
	if len(fields) == 0 {
		return
	}
	// Прогоняем патч через нормализацию как мини-запись.
	patch := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		patch[k] = v
	}
	patch["id"] = float64(id)
	norm := normalize.Record(patch)
	s.canonicalize(&norm)

	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	if hasAny(fields, "status", "state") {
		rec.Status = norm.Status
	}
	if hasAny(fields, "location", "place") {
		rec.Location = norm.Location
	}
	if hasAny(fields, "responsible", "assignee_name", "assignee", "assignee_id") {
		rec.Responsible = norm.Responsible
	}
	if hasAny(fields, "note", "comment") {
		rec.Note = norm.Note
	}
	if hasAny(fields, "eta", "eta_date", "etaDate") {
		rec.ETA = norm.ETA
	}
	if hasAny(fields, "pickupDate", "pickup_date", "pickup") {
		rec.PickupDate = norm.PickupDate
	}
	if hasAny(fields, "arrivedAt", "arrived_at", "arrival_date") {
		rec.ArrivedAt = norm.ArrivedAt
	}
	if hasAny(fields, "transportType", "transport_type", "type") {
		rec.TransportType = norm.TransportType
	}
	if hasAny(fields, "goodsCost", "goods_cost") {
		rec.GoodsCost = norm.GoodsCost
	}
	if hasAny(fields, "freightCost", "freight_cost") {
		rec.FreightCost = norm.FreightCost
	}
	s.records[id] = rec
	s.mu.Unlock()

	// Непустые отслеживаемые поля патча пополняют оверрайды.
	if norm.Location != "" {
		s.overrides.Set(ctx, overrides.FieldLocation, id, norm.Location)
	}
	if norm.Responsible != "" {
		s.overrides.Set(ctx, overrides.FieldResponsible, id, norm.Responsible)
	}
}

// ApplyFilesChanged перечитывает файлы одной записи (best-effort).
func (s *Service) ApplyFilesChanged(ctx context.Context, id int64) {
	raws, err := s.backend.ListFiles(ctx, id)
	if err != nil {
		slog.Debug("refresh files failed", "arrival_id", id, "error", err.Error())
		return
	}
	fs := make([]models.FileMeta, 0, len(raws))
	for _, r := range raws {
		fs = append(fs, normalize.File(r))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return
	}
	rec.Files = fs
	rec.FilesCount = len(fs)
	s.records[id] = rec
}

// backfill — одноразовый best-effort дозапрос деталей записи: затыкает
// пустые location/responsible и нулевой счётчик файлов. Любая ошибка
// молча игнорируется, ретраев нет.
func (s *Service) backfill(ctx context.Context, id int64) {
	s.backfillSem <- struct{}{}
	defer func() { <-s.backfillSem }()

	raw, err := s.backend.GetArrival(ctx, id)
	if err != nil {
		slog.Debug("detail backfill failed", "arrival_id", id, "error", err.Error())
		return
	}
	detail := normalize.Record(raw)
	s.canonicalize(&detail)

	if detail.Location != "" {
		s.overrides.Set(ctx, overrides.FieldLocation, id, detail.Location)
	}
	if detail.Responsible != "" {
		s.overrides.Set(ctx, overrides.FieldResponsible, id, detail.Responsible)
	}

	var needFiles bool
	s.mu.Lock()
	if rec, ok := s.records[id]; ok {
		if rec.Location == "" && detail.Location != "" {
			rec.Location = detail.Location
		}
		if rec.Responsible == "" && detail.Responsible != "" {
			rec.Responsible = detail.Responsible
		}
		if detail.FilesCount > rec.FilesCount {
			rec.FilesCount = detail.FilesCount
			rec.Files = detail.Files
		}
		needFiles = rec.FilesCount == 0
		s.records[id] = rec
	}
	s.mu.Unlock()
	s.totalBackfills.Add(1)

	if needFiles {
		s.ApplyFilesChanged(ctx, id)
	}
}

// List отдаёт копию рабочего набора, отсортированную по id.
func (s *Service) List() []models.Arrival {
	s.mu.RLock()
	out := make([]models.Arrival, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Service) Get(id int64) (models.Arrival, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok
}

// Loading сообщает, идёт ли загрузка списка (сканы на это время замирают).
func (s *Service) Loading() bool {
	return s.loading.Load()
}

// DrainLocalCreations отдаёт и очищает id записей, созданных локально
// с прошлого вызова. Нотификатор добавляет их в прошлый снимок, чтобы
// не дублировать "created".
func (s *Service) DrainLocalCreations() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.created
	s.created = nil
	return out
}

type Stats struct {
	LastLoadAt     *time.Time `json:"lastLoadAt,omitempty"`
	TotalLoads     int64      `json:"totalLoads"`
	TotalMutations int64      `json:"totalMutations"`
	TotalRollbacks int64      `json:"totalRollbacks"`
	TotalBackfills int64      `json:"totalBackfills"`
	Records        int        `json:"records"`
}

func (s *Service) Stats() Stats {
	st := Stats{
		TotalLoads:     s.totalLoads.Load(),
		TotalMutations: s.totalMutations.Load(),
		TotalRollbacks: s.totalRollbacks.Load(),
		TotalBackfills: s.totalBackfills.Load(),
	}
	if n := s.lastLoadUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastLoadAt = &t
	}
	s.mu.RLock()
	st.Records = len(s.records)
	s.mu.RUnlock()
	return st
}

func (s *Service) canonicalize(rec *models.Arrival) {
	rec.Location = normalize.Canonicalize(rec.Location, s.opts.KnownLocations)
	rec.Responsible = normalize.Canonicalize(rec.Responsible, s.opts.KnownResponsibles)
}

// appendNotification пишет в журнал best-effort: отказ локального
// хранилища не должен ломать саму мутацию.
func (s *Service) appendNotification(ctx context.Context, n *models.Notification) {
	if s.notify == nil {
		return
	}
	if err := s.notify.Append(ctx, n, s.opts.MaxNotifications); err != nil {
		slog.Warn("append notification failed", "event", n.Event, "error", err.Error())
	}
}

func (s *Service) publish(ctx context.Context, msg messages.ArrivalChanged) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishArrivalChanged(ctx, msg); err != nil {
		slog.Warn("publish arrival changed failed", "kind", msg.Kind, "arrival_id", msg.ArrivalID, "error", err.Error())
	}
}

func hasAny(m map[string]any, keys ...string) bool {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}
