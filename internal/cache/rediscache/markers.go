package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type Markers struct {
	c *redis.Client
}

func NewMarkers(addr string) *Markers {
	return &Markers{
		c: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

// MarkOnce атомарно ставит маркер "{id}:{rule}" через SETNX.
// Возвращает true только при первой установке; повторные вызовы по тому же
// ключу дают false, так одно и то же просроченное условие не уведомляет
// заново на каждом скане. Маркеры живут без TTL и сами не снимаются.
func (m *Markers) MarkOnce(ctx context.Context, key string) (bool, error) {
	first, err := m.c.SetNX(ctx, keyPrefix+key, time.Now().UTC().Format(time.RFC3339), 0).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis setnx marker")
	}
	return first, nil
}
