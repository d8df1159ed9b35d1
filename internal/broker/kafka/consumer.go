package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/wareline/arrivalbox/internal/broker/messages"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r messageReader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	}
	if groupID != "" {
		cfg.GroupTopics = []string{topic}
	} else {
		cfg.Topic = topic
	}
	return &Consumer{
		r: kafka.NewReader(cfg),
	}
}

func newConsumerWithReader(r messageReader) *Consumer {
	return &Consumer{r: r}
}

func (c *Consumer) Close() error {
	return c.r.Close()
}

// Consume читает события ArrivalChanged и передаёт их обработчику.
// Commit только после успеха, иначе сообщение потеряется.
func (c *Consumer) Consume(ctx context.Context, handler func(msg messages.ArrivalChanged) error) error {
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			return errors.Wrap(err, "fetch message")
		}
		var msg messages.ArrivalChanged
		if err := json.Unmarshal(m.Value, &msg); err != nil {
			return errors.Wrap(err, "unmarshal arrival changed")
		}
		if err := handler(msg); err != nil {
			return err
		}
		if err := c.r.CommitMessages(ctx, m); err != nil {
			return errors.Wrap(err, "commit message")
		}
	}
}
