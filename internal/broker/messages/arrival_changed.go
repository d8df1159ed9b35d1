package messages

import "time"

// Виды событий поверх рабочего набора. patched и files применяются к одной
// записи без полной перезагрузки; reloaded — сигнал "набор изменился,
// перечитайте список".
const (
	KindReloaded = "reloaded"
	KindCreated  = "created"
	KindPatched  = "patched"
	KindFiles    = "files"
	KindDeleted  = "deleted"
)

type ArrivalChanged struct {
	Kind       string    `json:"kind"`
	ArrivalID  int64     `json:"arrival_id,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
