// Package overrides хранит локальные значения полей, которые бэкенд
// периодически теряет в списочной выдаче (location, responsible).
// Оверрайд затыкает дыру, но никогда не перекрывает свежее непустое
// значение сервера.
package overrides

import (
	"context"
	"fmt"
	"sync"

	"github.com/wareline/arrivalbox/internal/cache"
	"github.com/wareline/arrivalbox/internal/models"
)

const (
	FieldLocation    = "location"
	FieldResponsible = "responsible"
)

// TrackedFields — поля, для которых ведутся оверрайды.
var TrackedFields = []string{FieldLocation, FieldResponsible}

// Store пишет оверрайды в общий кэш и дублирует их в памяти: если
// кэш недоступен, поведение деградирует до "только эта сессия",
// но не ломается.
type Store struct {
	cache cache.BytesCache

	mu  sync.RWMutex
	mem map[string]string
}

func New(c cache.BytesCache) *Store {
	return &Store{
		cache: c,
		mem:   make(map[string]string),
	}
}

func key(field string, id int64) string {
	return fmt.Sprintf("override:%s:%d", field, id)
}

// Get возвращает оверрайд или пустую строку.
func (s *Store) Get(ctx context.Context, field string, id int64) string {
	k := key(field, id)

	s.mu.RLock()
	v, ok := s.mem[k]
	s.mu.RUnlock()
	if ok {
		return v
	}

	if s.cache == nil {
		return ""
	}
	b, ok, err := s.cache.Get(ctx, k)
	if err != nil || !ok {
		return ""
	}
	s.mu.Lock()
	s.mem[k] = string(b)
	s.mu.Unlock()
	return string(b)
}

// Set запоминает непустое значение (last-write-wins). Пустые значения
// игнорируются: оверрайды заполняются монотонно и не откатываются.
func (s *Store) Set(ctx context.Context, field string, id int64, value string) {
	if value == "" || id == 0 {
		return
	}
	k := key(field, id)

	s.mu.Lock()
	s.mem[k] = value
	s.mu.Unlock()

	if s.cache != nil {
		// Срок жизни не ставим, запись переживает перезапуски.
		_ = s.cache.Set(ctx, k, []byte(value), 0)
	}
}

// Merge применяет оверрайды к свежезагруженной записи: непустые значения
// с сервера запоминаются, пустые поля заполняются из оверрайдов.
func (s *Store) Merge(ctx context.Context, a *models.Arrival) {
	if a == nil || a.ID == 0 {
		return
	}
	for _, f := range TrackedFields {
		v := fieldValue(a, f)
		if v != "" {
			s.Set(ctx, f, a.ID, v)
			continue
		}
		if ov := s.Get(ctx, f, a.ID); ov != "" {
			setField(a, f, ov)
		}
	}
}

func fieldValue(a *models.Arrival, field string) string {
	switch field {
	case FieldLocation:
		return a.Location
	case FieldResponsible:
		return a.Responsible
	}
	return ""
}

func setField(a *models.Arrival, field, value string) {
	switch field {
	case FieldLocation:
		a.Location = value
	case FieldResponsible:
		a.Responsible = value
	}
}
