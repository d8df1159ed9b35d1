package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/wareline/arrivalbox/internal/broker/messages"
)

type fakeReader struct {
	msgs      []kafka.Message
	err       error
	i         int
	committed int
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if r.i < len(r.msgs) {
		m := r.msgs[r.i]
		r.i++
		return m, nil
	}
	if r.err != nil {
		return kafka.Message{}, r.err
	}
	return kafka.Message{}, errors.New("eof")
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.committed += len(msgs)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestConsumer_Consume_DecodesAndCommits(t *testing.T) {
	fr := &fakeReader{
		msgs: []kafka.Message{{Key: []byte("7"), Value: []byte(`{"kind":"patched","arrival_id":7,"fields":{"location":"Gate 4"}}`)}},
		err:  errors.New("stop"),
	}
	c := newConsumerWithReader(fr)

	var got messages.ArrivalChanged
	err := c.Consume(context.Background(), func(msg messages.ArrivalChanged) error {
		got = msg
		return nil
	})
	require.Error(t, err)
	require.Equal(t, messages.KindPatched, got.Kind)
	require.Equal(t, int64(7), got.ArrivalID)
	require.Equal(t, "Gate 4", got.Fields["location"])
	require.Equal(t, 1, fr.committed)
}

func TestConsumer_Consume_HandlerErrorSkipsCommit(t *testing.T) {
	fr := &fakeReader{msgs: []kafka.Message{{Value: []byte(`{"kind":"reloaded"}`)}}}
	c := newConsumerWithReader(fr)

	want := errors.New("handler failed")
	err := c.Consume(context.Background(), func(messages.ArrivalChanged) error { return want })
	require.ErrorIs(t, err, want)
	require.Zero(t, fr.committed)
}

func TestConsumer_Consume_BadJSONStops(t *testing.T) {
	fr := &fakeReader{msgs: []kafka.Message{{Value: []byte("not-json")}}}
	c := newConsumerWithReader(fr)

	err := c.Consume(context.Background(), func(messages.ArrivalChanged) error { return nil })
	require.Error(t, err)
	require.Zero(t, fr.committed)
}

func TestNewConsumer_Close(t *testing.T) {
	c := NewConsumer([]string{"localhost:0"}, "t", "g")
	require.NotNil(t, c)
	require.NoError(t, c.Close())
}
