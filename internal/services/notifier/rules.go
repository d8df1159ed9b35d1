package notifier

import (
	"fmt"
	"time"

	"github.com/wareline/arrivalbox/internal/models"
)

// DeadlineRule — одно правило просрочки. Сработавшее правило уведомляет
// один раз за жизнь записи (seen-маркер по ключу "{id}:{name}").
type DeadlineRule struct {
	Name    string
	Type    string
	Applies func(a models.Arrival, now time.Time) bool
	Text    func(a models.Arrival) string
}

// Порядок фиксированный, правила оцениваются для каждой записи на каждом скане.
func deadlineRules() []DeadlineRule {
	return []DeadlineRule{
		{
			Name: models.NotificationEventPickupOverdue,
			Type: models.NotificationTypeWarning,
			Applies: func(a models.Arrival, now time.Time) bool {
				return a.Status == models.ArrivalStatusNotShipped &&
					a.PickupDate != nil && a.PickupDate.Before(now)
			},
			Text: func(a models.Arrival) string {
				return fmt.Sprintf("Pickup overdue for arrival %d", a.ID)
			},
		},
		{
			Name: models.NotificationEventETAOverdue,
			Type: models.NotificationTypeWarning,
			Applies: func(a models.Arrival, now time.Time) bool {
				return a.Status == models.ArrivalStatusShipped &&
					a.ETA != nil && a.ETA.Before(now)
			},
			Text: func(a models.Arrival) string {
				return fmt.Sprintf("ETA passed for arrival %d", a.ID)
			},
		},
	}
}
