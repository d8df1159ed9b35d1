package pgnotify

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS notifications (
  id UUID PRIMARY KEY,
  type TEXT NOT NULL,
  event TEXT NOT NULL,
  entity_type TEXT NOT NULL DEFAULT '',
  entity_id BIGINT NOT NULL DEFAULT 0,
  text TEXT NOT NULL,
  navigate_url TEXT NOT NULL DEFAULT '',
  unread BOOLEAN NOT NULL DEFAULT TRUE,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_created_at ON notifications(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_unread ON notifications(unread) WHERE unread`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
