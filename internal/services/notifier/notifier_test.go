package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wareline/arrivalbox/internal/models"
)

type fakeSource struct {
	mu      sync.Mutex
	records []models.Arrival
	loading bool
	created []int64
}

func (s *fakeSource) List() []models.Arrival {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Arrival{}, s.records...)
}

func (s *fakeSource) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *fakeSource) DrainLocalCreations() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.created
	s.created = nil
	return out
}

func (s *fakeSource) set(records ...models.Arrival) {
	s.mu.Lock()
	s.records = records
	s.mu.Unlock()
}

type fakeLog struct {
	mu      sync.Mutex
	entries []*models.Notification
	err     error
}

func (l *fakeLog) Append(ctx context.Context, n *models.Notification, maxEntries int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.entries = append(l.entries, n)
	return nil
}

func (l *fakeLog) byEvent(event string) []*models.Notification {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*models.Notification
	for _, n := range l.entries {
		if n.Event == event {
			out = append(out, n)
		}
	}
	return out
}

func (l *fakeLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

type fakeMarkers struct {
	mu   sync.Mutex
	seen map[string]struct{}
	err  error
}

func newFakeMarkers() *fakeMarkers {
	return &fakeMarkers{seen: map[string]struct{}{}}
}

func (m *fakeMarkers) MarkOnce(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.seen[key]; ok {
		return false, nil
	}
	m.seen[key] = struct{}{}
	return true, nil
}

func past() *time.Time {
	t := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	return &t
}

func future() *time.Time {
	t := time.Now().UTC().Add(24 * time.Hour)
	return &t
}

func TestNotifier_PickupOverdue_Dedup(t *testing.T) {
	src := &fakeSource{}
	src.set(models.Arrival{ID: 7, Status: models.ArrivalStatusNotShipped, PickupDate: past()})
	log := &fakeLog{}
	n := New(src, log, newFakeMarkers())

	ctx := context.Background()
	n.Scan(ctx)
	n.Scan(ctx)

	// Два скана подряд — ровно одно уведомление о просрочке.
	require.Len(t, log.byEvent(models.NotificationEventPickupOverdue), 1)
	require.Equal(t, int64(7), log.byEvent(models.NotificationEventPickupOverdue)[0].EntityID)
}

func TestNotifier_PickupNotOverdue(t *testing.T) {
	src := &fakeSource{}
	src.set(
		models.Arrival{ID: 1, Status: models.ArrivalStatusNotShipped, PickupDate: future()},
		models.Arrival{ID: 2, Status: models.ArrivalStatusShipped, PickupDate: past()},
		models.Arrival{ID: 3, Status: models.ArrivalStatusNotShipped},
	)
	log := &fakeLog{}
	n := New(src, log, newFakeMarkers())

	n.Scan(context.Background())
	require.Empty(t, log.byEvent(models.NotificationEventPickupOverdue))
}

func TestNotifier_ETAOverdue(t *testing.T) {
	src := &fakeSource{}
	src.set(
		models.Arrival{ID: 1, Status: models.ArrivalStatusShipped, ETA: past()},
		models.Arrival{ID: 2, Status: models.ArrivalStatusArrived, ETA: past()},
	)
	log := &fakeLog{}
	n := New(src, log, newFakeMarkers())

	ctx := context.Background()
	n.Scan(ctx)
	n.Scan(ctx)

	got := log.byEvent(models.NotificationEventETAOverdue)
	require.Len(t, got, 1)
	require.Equal(t, int64(1), got[0].EntityID)
}

func TestNotifier_FirstScanDoesNotSpamCreated(t *testing.T) {
	src := &fakeSource{}
	src.set(
		models.Arrival{ID: 1, Status: models.ArrivalStatusShipped},
		models.Arrival{ID: 2, Status: models.ArrivalStatusShipped},
	)
	log := &fakeLog{}
	n := New(src, log, newFakeMarkers())

	ctx := context.Background()
	n.Scan(ctx)
	require.Empty(t, log.byEvent(models.NotificationEventCreated))

	// Новая запись на следующем скане — одно "created".
	src.set(
		models.Arrival{ID: 1, Status: models.ArrivalStatusShipped},
		models.Arrival{ID: 2, Status: models.ArrivalStatusShipped},
		models.Arrival{ID: 3, Status: models.ArrivalStatusNotShipped},
	)
	n.Scan(ctx)
	got := log.byEvent(models.NotificationEventCreated)
	require.Len(t, got, 1)
	require.Equal(t, int64(3), got[0].EntityID)
}

func TestNotifier_LocalCreationSuppressed(t *testing.T) {
	src := &fakeSource{}
	src.set(models.Arrival{ID: 1, Status: models.ArrivalStatusShipped})
	log := &fakeLog{}
	n := New(src, log, newFakeMarkers())

	ctx := context.Background()
	n.Scan(ctx)

	// Запись создана локально: created уже записан вызывающей стороной,
	// скан не должен дублировать.
	src.mu.Lock()
	src.records = append(src.records, models.Arrival{ID: 2, Status: models.ArrivalStatusNotShipped})
	src.created = append(src.created, 2)
	src.mu.Unlock()

	n.Scan(ctx)
	require.Empty(t, log.byEvent(models.NotificationEventCreated))
}

func TestNotifier_TransitionDetected(t *testing.T) {
	src := &fakeSource{}
	src.set(models.Arrival{ID: 7, Status: models.ArrivalStatusShipped})
	log := &fakeLog{}
	n := New(src, log, newFakeMarkers())

	ctx := context.Background()
	n.Scan(ctx)

	src.set(models.Arrival{ID: 7, Status: models.ArrivalStatusArrived})
	n.Scan(ctx)

	got := log.byEvent(models.NotificationEventStatusChanged)
	require.Len(t, got, 1)
	require.Equal(t, "In transit → Arrived", got[0].Text)

	// Третий скан без изменений ничего не добавляет.
	before := log.count()
	n.Scan(ctx)
	require.Equal(t, before, log.count())
}

func TestNotifier_UnchangedSetIdempotent(t *testing.T) {
	src := &fakeSource{}
	src.set(
		models.Arrival{ID: 1, Status: models.ArrivalStatusNotShipped, PickupDate: past()},
		models.Arrival{ID: 2, Status: models.ArrivalStatusShipped, ETA: past()},
	)
	log := &fakeLog{}
	n := New(src, log, newFakeMarkers())

	ctx := context.Background()
	n.Scan(ctx)
	after := log.count()
	for i := 0; i < 5; i++ {
		n.Scan(ctx)
	}
	require.Equal(t, after, log.count())
}

func TestNotifier_SkipsWhileLoading(t *testing.T) {
	src := &fakeSource{loading: true}
	src.records = []models.Arrival{{ID: 1, Status: models.ArrivalStatusNotShipped, PickupDate: past()}}
	log := &fakeLog{}
	n := New(src, log, newFakeMarkers())

	n.Scan(context.Background())
	require.Zero(t, log.count())
	require.Zero(t, n.Stats().TotalScans)
}

func TestNotifier_PersistedMarkerSurvivesRestart(t *testing.T) {
	src := &fakeSource{}
	src.set(models.Arrival{ID: 7, Status: models.ArrivalStatusNotShipped, PickupDate: past()})
	markers := newFakeMarkers()

	log1 := &fakeLog{}
	New(src, log1, markers).Scan(context.Background())
	require.Equal(t, 1, log1.count())

	// "Перезапуск": новый нотификатор, те же маркеры — повтора нет.
	log2 := &fakeLog{}
	New(src, log2, markers).Scan(context.Background())
	require.Zero(t, log2.count())
}

func TestNotifier_MarkerFailureDegradesToMemory(t *testing.T) {
	src := &fakeSource{}
	src.set(models.Arrival{ID: 7, Status: models.ArrivalStatusNotShipped, PickupDate: past()})
	markers := newFakeMarkers()
	markers.err = errors.New("redis down")
	log := &fakeLog{}
	n := New(src, log, markers)

	ctx := context.Background()
	n.Scan(ctx)
	n.Scan(ctx)

	// Без персистентного маркера дедупликация живёт в памяти процесса.
	require.Len(t, log.byEvent(models.NotificationEventPickupOverdue), 1)
	require.NotEmpty(t, n.Stats().LastError)
}

func TestNotifier_NilMarkers(t *testing.T) {
	src := &fakeSource{}
	src.set(models.Arrival{ID: 7, Status: models.ArrivalStatusNotShipped, PickupDate: past()})
	log := &fakeLog{}
	n := New(src, log, nil)

	ctx := context.Background()
	n.Scan(ctx)
	n.Scan(ctx)
	require.Len(t, log.byEvent(models.NotificationEventPickupOverdue), 1)
}

func TestNotifier_AppendFailureSilent(t *testing.T) {
	src := &fakeSource{}
	src.set(models.Arrival{ID: 7, Status: models.ArrivalStatusNotShipped, PickupDate: past()})
	log := &fakeLog{err: errors.New("pg down")}
	n := New(src, log, newFakeMarkers())

	n.Scan(context.Background())
	require.NotEmpty(t, n.Stats().LastError)
}

func TestNotifier_Run_StopsOnContextCancel(t *testing.T) {
	src := &fakeSource{}
	src.set(models.Arrival{ID: 1, Status: models.ArrivalStatusShipped})
	log := &fakeLog{}
	n := New(src, log, newFakeMarkers()).WithSettings(5*time.Millisecond, 10)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	err := n.Run(ctx)
	require.Error(t, err)
	require.GreaterOrEqual(t, n.Stats().TotalScans, int64(1))
}

func TestNotifier_Trigger(t *testing.T) {
	src := &fakeSource{}
	log := &fakeLog{}
	n := New(src, log, newFakeMarkers()).WithSettings(time.Hour, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = n.Run(ctx) }()

	n.Trigger()
	require.Eventually(t, func() bool {
		return n.Stats().TotalScans >= 1
	}, time.Second, 5*time.Millisecond)
	require.NotNil(t, n.Stats().LastTriggerAt)
}
