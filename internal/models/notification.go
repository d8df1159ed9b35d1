package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	NotificationTypeInfo     = "info"
	NotificationTypeWarning  = "warning"
	NotificationTypeError    = "error"

	NotificationEventCreated       = "created"
	NotificationEventDeleted       = "deleted"
	NotificationEventStatusChanged = "status_changed"
	NotificationEventPickupOverdue = "pickup_overdue"
	NotificationEventETAOverdue    = "eta_overdue"
)

type Notification struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Event       string    `json:"event"`
	EntityType  string    `json:"entityType"`
	EntityID    int64     `json:"entityId"`
	Text        string    `json:"text"`
	NavigateURL string    `json:"navigateUrl,omitempty"`
	Unread      bool      `json:"unread"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewNotification создаёт непрочитанное уведомление с новым id.
func NewNotification(ntype, event string, entityID int64, text string) *Notification {
	return &Notification{
		ID:         uuid.New().String(),
		Type:       ntype,
		Event:      event,
		EntityType: "arrival",
		EntityID:   entityID,
		Text:       text,
		Unread:     true,
		CreatedAt:  time.Now().UTC(),
	}
}
