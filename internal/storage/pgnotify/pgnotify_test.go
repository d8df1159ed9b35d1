package pgnotify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/wareline/arrivalbox/internal/models"
)

func TestPGNotify_RepoFlow(t *testing.T) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "arrivalbox_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := "postgres://admin:admin@" + host + ":" + port.Port() + "/arrivalbox_test?sslmode=disable"
	st, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(st.Close)

	// Пишем больше лимита, журнал подрезается до 3 самых свежих.
	var last *models.Notification
	for i := 0; i < 5; i++ {
		n := models.NewNotification(models.NotificationTypeInfo, models.NotificationEventCreated, int64(i+1), "arrival created")
		n.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second)
		require.NoError(t, st.Append(ctx, n, 3))
		last = n
	}

	list, err := st.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, last.ID, list[0].ID)
	require.Equal(t, int64(5), list[0].EntityID)

	unread, err := st.UnreadCount(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), unread)

	require.NoError(t, st.MarkRead(ctx, []string{list[0].ID}))
	unread, err = st.UnreadCount(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), unread)

	require.NoError(t, st.MarkAllRead(ctx))
	unread, err = st.UnreadCount(ctx)
	require.NoError(t, err)
	require.Zero(t, unread)

	// Пустой список id — no-op.
	require.NoError(t, st.MarkRead(ctx, nil))
}
