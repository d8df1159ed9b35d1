// Package notifier сканирует рабочий набор прибытий по таймеру и после
// каждой загрузки: просроченные дедлайны, новые записи и смены статусов
// превращаются в записи журнала уведомлений. Повторный скан неизменного
// набора не порождает ничего нового.
package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wareline/arrivalbox/internal/models"
)

type RecordSource interface {
	List() []models.Arrival
	Loading() bool
	DrainLocalCreations() []int64
}

type NotificationLog interface {
	Append(ctx context.Context, n *models.Notification, maxEntries int) error
}

type Markers interface {
	MarkOnce(ctx context.Context, key string) (bool, error)
}

type Notifier struct {
	source  RecordSource
	log     NotificationLog
	markers Markers

	rules            []DeadlineRule
	scanInterval     time.Duration
	maxNotifications int
	now              func() time.Time

	triggerCh chan struct{}

	// Снимок прошлого скана и запасная in-memory дедупликация на случай
	// недоступных персистентных маркеров.
	prev     map[int64]models.Arrival
	primed   bool
	suppress map[int64]struct{}
	memSeen  map[string]struct{}

	startedAtUnixNano   int64
	lastScanUnixNano    atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalScans          atomic.Int64
	totalEmitted        atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(source RecordSource, log NotificationLog, markers Markers) *Notifier {
	return &Notifier{
		source:            source,
		log:               log,
		markers:           markers,
		rules:             deadlineRules(),
		scanInterval:      120 * time.Second,
		maxNotifications:  200,
		now:               func() time.Time { return time.Now().UTC() },
		triggerCh:         make(chan struct{}, 1),
		prev:              map[int64]models.Arrival{},
		suppress:          map[int64]struct{}{},
		memSeen:           map[string]struct{}{},
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (n *Notifier) WithSettings(scanInterval time.Duration, maxNotifications int) *Notifier {
	if scanInterval > 0 {
		n.scanInterval = scanInterval
	}
	if maxNotifications > 0 {
		n.maxNotifications = maxNotifications
	}
	return n
}

// Trigger просит немедленный скан (best-effort, не блокирует).
// Дёргается после каждой успешной загрузки списка.
func (n *Notifier) Trigger() {
	n.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case n.triggerCh <- struct{}{}:
	default:
	}
}

// Run крутит сканы до отмены контекста. Все сканы идут из этого цикла,
// поэтому они не пересекаются друг с другом.
func (n *Notifier) Run(ctx context.Context) error {
	t := time.NewTicker(n.scanInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			// Интервальный скан пустого набора бессмыслен.
			if len(n.source.List()) == 0 {
				continue
			}
			n.Scan(ctx)
		case <-n.triggerCh:
			n.Scan(ctx)
		}
	}
}

// Scan сравнивает текущий набор с прошлым снимком и оценивает правила
// дедлайнов. Во время загрузки списка скан пропускается.
func (n *Notifier) Scan(ctx context.Context) {
	if n.source.Loading() {
		return
	}
	now := n.now()
	n.lastScanUnixNano.Store(now.UnixNano())
	n.totalScans.Add(1)

	// Снимок до дренажа: создание, успевшее между List и Drain, останется
	// в suppress до того скана, где запись впервые видна.
	current := n.source.List()
	for _, id := range n.source.DrainLocalCreations() {
		n.suppress[id] = struct{}{}
	}

	currByID := make(map[int64]models.Arrival, len(current))

	for _, rec := range current {
		currByID[rec.ID] = rec

		for _, rule := range n.rules {
			if !rule.Applies(rec, now) {
				continue
			}
			if n.firstTime(ctx, fmt.Sprintf("seen:%d:%s", rec.ID, rule.Name)) {
				n.emit(ctx, models.NewNotification(rule.Type, rule.Name, rec.ID, rule.Text(rec)))
			}
		}

		_, local := n.suppress[rec.ID]
		delete(n.suppress, rec.ID)

		// Первый скан после старта только заполняет снимок: без него
		// каждый перезапуск выглядел бы как массовое "created".
		if !n.primed {
			continue
		}
		prevRec, existed := n.prev[rec.ID]
		switch {
		case !existed:
			if !local {
				n.emit(ctx, models.NewNotification(
					models.NotificationTypeInfo, models.NotificationEventCreated, rec.ID,
					fmt.Sprintf("Arrival %d created", rec.ID),
				))
			}
		case prevRec.Status != rec.Status:
			n.emit(ctx, models.NewNotification(
				models.NotificationTypeInfo, models.NotificationEventStatusChanged, rec.ID,
				fmt.Sprintf("%s → %s", models.StatusLabel(prevRec.Status), models.StatusLabel(rec.Status)),
			))
		}
	}

	n.prev = currByID
	n.primed = true
}

// firstTime отвечает, видим ли мы условие впервые. Персистентный маркер
// переживает перезапуски; при его отказе дедупликация деградирует до
// памяти текущего процесса.
func (n *Notifier) firstTime(ctx context.Context, key string) bool {
	if _, ok := n.memSeen[key]; ok {
		return false
	}
	n.memSeen[key] = struct{}{}

	if n.markers == nil {
		return true
	}
	first, err := n.markers.MarkOnce(ctx, key)
	if err != nil {
		slog.Warn("seen marker failed", "key", key, "error", err.Error())
		n.setLastError(err.Error())
		return true
	}
	return first
}

func (n *Notifier) emit(ctx context.Context, notif *models.Notification) {
	n.totalEmitted.Add(1)
	if n.log == nil {
		return
	}
	if err := n.log.Append(ctx, notif, n.maxNotifications); err != nil {
		slog.Warn("append notification failed", "event", notif.Event, "error", err.Error())
		n.setLastError(err.Error())
	}
}

func (n *Notifier) setLastError(s string) {
	n.lastErrorMu.Lock()
	n.lastError = s
	n.lastErrorMu.Unlock()
}

type Stats struct {
	StartedAt     time.Time  `json:"startedAt"`
	LastScanAt    *time.Time `json:"lastScanAt,omitempty"`
	LastTriggerAt *time.Time `json:"lastTriggerAt,omitempty"`
	TotalScans    int64      `json:"totalScans"`
	TotalEmitted  int64      `json:"totalEmitted"`
	LastError     string     `json:"lastError,omitempty"`
}

func (n *Notifier) Stats() Stats {
	st := Stats{
		StartedAt:    time.Unix(0, n.startedAtUnixNano).UTC(),
		TotalScans:   n.totalScans.Load(),
		TotalEmitted: n.totalEmitted.Load(),
	}
	if v := n.lastScanUnixNano.Load(); v > 0 {
		t := time.Unix(0, v).UTC()
		st.LastScanAt = &t
	}
	if v := n.lastTriggerUnixNano.Load(); v > 0 {
		t := time.Unix(0, v).UTC()
		st.LastTriggerAt = &t
	}
	n.lastErrorMu.Lock()
	st.LastError = n.lastError
	n.lastErrorMu.Unlock()
	return st
}
