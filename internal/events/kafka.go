package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"

	"github.com/dernounimk/volty/internal/domain/order"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes events to a topic keyed by order id, so that every event
// of one order lands on the same partition.
type Kafka struct {
	w   messageWriter
	now func() time.Time
}

// NewKafka creates a Kafka publisher for topic.
func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
		now: time.Now,
	}
}

// Publish implements order.Publisher.
func (p *Kafka) Publish(ctx context.Context, e order.Event) error {
	now := p.now()
	msg := kafka.Message{
		Key:   []byte(e.Order.ID),
		Value: Encode(e, now),
		Time:  now,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, "kafka write")
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Kafka) Close() error {
	return p.w.Close()
}
