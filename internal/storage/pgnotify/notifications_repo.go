package pgnotify

import (
	"context"

	"github.com/pkg/errors"
	"github.com/wareline/arrivalbox/internal/models"
)

// Append добавляет уведомление и подрезает журнал до maxEntries,
// выкидывая самые старые. Журнал append-only, порядок — по created_at.
func (s *Storage) Append(ctx context.Context, n *models.Notification, maxEntries int) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO notifications (id, type, event, entity_type, entity_id, text, navigate_url, unread, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`, n.ID, n.Type, n.Event, n.EntityType, n.EntityID, n.Text, n.NavigateURL, n.Unread, n.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "insert notification")
	}

	if maxEntries > 0 {
		_, err = s.db.Exec(ctx, `
DELETE FROM notifications
WHERE id IN (
  SELECT id FROM notifications
  ORDER BY created_at DESC, id DESC
  OFFSET $1
)`, maxEntries)
		if err != nil {
			return errors.Wrap(err, "trim notifications")
		}
	}
	return nil
}

// List отдаёт уведомления от новых к старым.
func (s *Storage) List(ctx context.Context, limit, offset int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
SELECT id, type, event, entity_type, entity_id, text, navigate_url, unread, created_at
FROM notifications
ORDER BY created_at DESC, id DESC
LIMIT $1 OFFSET $2
`, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select notifications")
	}
	defer rows.Close()

	out := make([]*models.Notification, 0, limit)
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(
			&n.ID, &n.Type, &n.Event, &n.EntityType, &n.EntityID,
			&n.Text, &n.NavigateURL, &n.Unread, &n.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan notification")
		}
		out = append(out, &n)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) UnreadCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE unread`).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "count unread")
	}
	return n, nil
}

func (s *Storage) MarkAllRead(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `UPDATE notifications SET unread = FALSE WHERE unread`)
	return errors.Wrap(err, "mark all read")
}

func (s *Storage) MarkRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.Exec(ctx, `UPDATE notifications SET unread = FALSE WHERE id = ANY($1)`, ids)
	return errors.Wrap(err, "mark read")
}
