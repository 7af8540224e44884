package events

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/streadway/amqp"
	"go.uber.org/multierr"

	"github.com/dernounimk/volty/internal/domain/order"
)

type amqpChannel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQP publishes events to a durable queue through the default exchange.
type AMQP struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    amqpChannel
	queue string
	now   func() time.Time
}

// DialAMQP connects to the broker at url and declares queue.
func DialAMQP(url, queue string) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial amqp")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errors.Wrapf(err, "declare queue %q", queue)
	}
	return &AMQP{conn: conn, ch: ch, queue: queue, now: time.Now}, nil
}

// Publish implements order.Publisher. Messages are persistent.
func (p *AMQP) Publish(ctx context.Context, e order.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := p.now()
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.Order.ID,
		Type:         string(e.Type),
		Timestamp:    now,
		Body:         Encode(e, now),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.Publish("", p.queue, false, false, msg); err != nil {
		return errors.Wrap(err, "amqp publish")
	}
	return nil
}

// Close closes the channel and the connection.
func (p *AMQP) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	if p.ch != nil {
		if cerr := p.ch.Close(); cerr != nil {
			err = multierr.Append(err, errors.Wrap(cerr, "close channel"))
		}
	}
	if p.conn != nil {
		if cerr := p.conn.Close(); cerr != nil {
			err = multierr.Append(err, errors.Wrap(cerr, "close connection"))
		}
	}
	return err
}
