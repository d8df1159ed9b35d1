package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/wareline/arrivalbox/internal/broker/messages"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Producer struct {
	w     messageWriter
	topic string
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Balancer: &kafka.LeastBytes{},
		},
		topic: topic,
	}
}

func newProducerWithWriter(w messageWriter, topic string) *Producer {
	return &Producer{w: w, topic: topic}
}

// PublishArrivalChanged публикует событие с ключом arrival_id, чтобы
// события одной записи попадали в одну партицию и не переупорядочивались.
func (p *Producer) PublishArrivalChanged(ctx context.Context, msg messages.ArrivalChanged) error {
	if msg.OccurredAt.IsZero() {
		msg.OccurredAt = time.Now().UTC()
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal arrival changed")
	}
	if err := p.w.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(strconv.FormatInt(msg.ArrivalID, 10)),
		Value: b,
	}); err != nil {
		return errors.Wrap(err, "kafka publish")
	}
	return nil
}
