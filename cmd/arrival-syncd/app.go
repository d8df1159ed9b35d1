package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/wareline/arrivalbox/config"
	"github.com/wareline/arrivalbox/internal/broker/kafka"
	"github.com/wareline/arrivalbox/internal/broker/messages"
	"github.com/wareline/arrivalbox/internal/cache"
	"github.com/wareline/arrivalbox/internal/cache/rediscache"
	"github.com/wareline/arrivalbox/internal/integrations/backend/fake"
	"github.com/wareline/arrivalbox/internal/integrations/backend/resthttp"
	"github.com/wareline/arrivalbox/internal/models"
	"github.com/wareline/arrivalbox/internal/services/arrivals"
	"github.com/wareline/arrivalbox/internal/services/notifier"
	"github.com/wareline/arrivalbox/internal/storage/pgnotify"
	"github.com/wareline/arrivalbox/internal/store/overrides"
)

// notificationStore покрывает и запись из сервисов, и чтение из HTTP API.
type notificationStore interface {
	Append(ctx context.Context, n *models.Notification, maxEntries int) error
	List(ctx context.Context, limit, offset int) ([]*models.Notification, error)
	UnreadCount(ctx context.Context) (int64, error)
	MarkAllRead(ctx context.Context) error
	MarkRead(ctx context.Context, ids []string) error
}

type arrivalConsumer interface {
	Consume(ctx context.Context, handler func(msg messages.ArrivalChanged) error) error
	Close() error
}

type gatewayFactories struct {
	newNotifyStorage func(cfg *config.Config) (notificationStore, func(), error)
	newOverrideCache func(cfg *config.Config) cache.BytesCache
	newMarkers       func(cfg *config.Config) notifier.Markers
	newProducer      func(cfg *config.Config, topic string) arrivals.Publisher
	newConsumer      func(cfg *config.Config, topic, group string) arrivalConsumer
	newBackend       func(cfg *config.Config) arrivals.Backend
}

func defaultGatewayFactories() gatewayFactories {
	return gatewayFactories{
		newNotifyStorage: func(cfg *config.Config) (notificationStore, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := openPostgresWithRetry(connString, 60*time.Second)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newOverrideCache: func(cfg *config.Config) cache.BytesCache {
			return rediscache.New(fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port))
		},
		newMarkers: func(cfg *config.Config) notifier.Markers {
			return rediscache.NewMarkers(fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port))
		},
		newProducer: func(cfg *config.Config, topic string) arrivals.Publisher {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers, topic)
		},
		newConsumer: func(cfg *config.Config, topic, group string) arrivalConsumer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewConsumer(brokers, topic, group)
		},
		newBackend: func(cfg *config.Config) arrivals.Backend {
			// Для локальной разработки "fake" поднимает встроенную заглушку
			// бэкенда вместо живого ERP.
			if cfg.Upstream.Mode == "fake" || cfg.Upstream.BaseURL == "" {
				return fake.New()
			}
			timeout := time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second
			return resthttp.New(cfg.Upstream.BaseURL, cfg.Upstream.Token, timeout)
		},
	}
}

func openPostgresWithRetry(connString string, wait time.Duration) (*pgnotify.Storage, error) {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgnotify.New(connString)
		if err == nil {
			return st, nil
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	return nil, fmt.Errorf("postgres is not ready after %s: %w", wait, lastErr)
}

func RunGateway(ctx context.Context, cfg *config.Config, f gatewayFactories) error {
	httpAddr := cfg.ArrivalBox.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	topic := cfg.Kafka.ArrivalChangedTopicName
	if topic == "" {
		topic = "arrival.changed"
	}
	consumerGroup := cfg.ArrivalBox.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "arrival-syncd"
	}
	scanInterval := time.Duration(cfg.ArrivalBox.ScanIntervalSeconds) * time.Second
	if scanInterval <= 0 {
		scanInterval = 120 * time.Second
	}
	reloadInterval := time.Duration(cfg.ArrivalBox.ReloadIntervalSeconds) * time.Second
	if reloadInterval <= 0 {
		reloadInterval = 300 * time.Second
	}

	store, closeFn, err := f.newNotifyStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	ov := overrides.New(f.newOverrideCache(cfg))
	svc := arrivals.New(f.newBackend(cfg), ov, store, f.newProducer(cfg, topic), arrivals.Options{
		MaxNotifications:    cfg.ArrivalBox.MaxNotifications,
		KnownLocations:      cfg.ArrivalBox.KnownLocations,
		KnownResponsibles:   cfg.ArrivalBox.KnownResponsibles,
		BackfillConcurrency: cfg.ArrivalBox.BackfillConcurrency,
	})
	notif := notifier.New(svc, store, f.newMarkers(cfg)).
		WithSettings(scanInterval, cfg.ArrivalBox.MaxNotifications)

	consumer := f.newConsumer(cfg, topic, consumerGroup)
	defer func() { _ = consumer.Close() }()

	// Первичная загрузка best-effort: бэкенд может подняться позже нас,
	// тикер перезагрузки доберёт.
	if err := svc.Load(ctx); err != nil {
		slog.Warn("initial load failed", "error", err.Error())
	} else {
		notif.Trigger()
	}

	notifErr := make(chan error, 1)
	go func() { notifErr <- notif.Run(ctx) }()

	go func() {
		slog.Info("kafka consumer started", "topic", topic, "group", consumerGroup)
		_ = consumer.Consume(ctx, func(msg messages.ArrivalChanged) error {
			switch msg.Kind {
			case messages.KindPatched:
				svc.ApplyPatch(ctx, msg.ArrivalID, msg.Fields)
			case messages.KindFiles:
				svc.ApplyFilesChanged(ctx, msg.ArrivalID)
			case messages.KindReloaded, messages.KindCreated, messages.KindDeleted:
				if err := svc.Load(ctx); err != nil {
					return err
				}
				notif.Trigger()
			}
			return nil
		})
	}()

	go func() {
		t := time.NewTicker(reloadInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := svc.Load(ctx); err != nil {
					slog.Warn("periodic reload failed", "error", err.Error())
					continue
				}
				notif.Trigger()
			}
		}
	}()

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runGatewayHTTPServer(ctx, gatewayHTTPOpts{
			httpAddr:    httpAddr,
			swaggerPath: os.Getenv("swaggerPath"),
			svc:         svc,
			notif:       notif,
			store:       store,
			cfg:         cfg,
		})
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-notifErr:
		return err
	case err := <-httpErr:
		return err
	}
}
