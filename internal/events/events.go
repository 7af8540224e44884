// Package events publishes order lifecycle events to a message broker.
package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/dernounimk/volty/internal/domain/order"
)

const (
	DriverNone  = "none"
	DriverAMQP  = "amqp"
	DriverKafka = "kafka"
)

// Config selects and configures the event transport.
type Config struct {
	Driver  string   `default:"none" usage:"Event transport: none, amqp or kafka"`
	URL     string   `usage:"AMQP broker URL" flag:"events-url"`
	Queue   string   `default:"volty.orders" usage:"AMQP queue for order events"`
	Brokers []string `usage:"Kafka broker addresses" flag:"events-brokers"`
	Topic   string   `default:"volty.orders" usage:"Kafka topic for order events"`
}

// Publisher is an order.Publisher holding broker resources.
type Publisher interface {
	order.Publisher
	Close() error
}

// Open creates the publisher selected by cfg.Driver.
func Open(cfg Config) (Publisher, error) {
	switch cfg.Driver {
	case "", DriverNone:
		return Log{}, nil
	case DriverAMQP:
		if cfg.URL == "" {
			return nil, errors.New("amqp driver requires events URL")
		}
		return DialAMQP(cfg.URL, cfg.Queue)
	case DriverKafka:
		if len(cfg.Brokers) == 0 {
			return nil, errors.New("kafka driver requires events brokers")
		}
		return NewKafka(cfg.Brokers, cfg.Topic), nil
	default:
		return nil, errors.Errorf("unknown events driver %q", cfg.Driver)
	}
}

// Log writes events to the request logger instead of a broker.
type Log struct{}

// Publish implements order.Publisher.
func (Log) Publish(ctx context.Context, e order.Event) error {
	zctx.From(ctx).Debug("Order event",
		zap.String("type", string(e.Type)),
		zap.String("order_id", e.Order.ID),
	)
	return nil
}

// Close implements Publisher.
func (Log) Close() error { return nil }

// Encode renders e as the JSON message body shared by every transport.
func Encode(e order.Event, at time.Time) []byte {
	o := &e.Order
	var enc jx.Encoder
	enc.Obj(func(enc *jx.Encoder) {
		enc.Field("type", func(enc *jx.Encoder) { enc.Str(string(e.Type)) })
		enc.Field("occurredAt", func(enc *jx.Encoder) { enc.Str(at.UTC().Format(time.RFC3339Nano)) })
		enc.Field("order", func(enc *jx.Encoder) {
			enc.Obj(func(enc *jx.Encoder) {
				enc.Field("id", func(enc *jx.Encoder) { enc.Str(o.ID) })
				enc.Field("orderNumber", func(enc *jx.Encoder) { enc.Str(o.OrderNumber) })
				enc.Field("wilaya", func(enc *jx.Encoder) { enc.Str(o.Wilaya) })
				enc.Field("deliveryPlace", func(enc *jx.Encoder) { enc.Str(string(o.DeliveryPlace)) })
				enc.Field("items", func(enc *jx.Encoder) {
					enc.Arr(func(enc *jx.Encoder) {
						for _, it := range o.Items {
							enc.Obj(func(enc *jx.Encoder) {
								enc.Field("productId", func(enc *jx.Encoder) { enc.Str(it.ProductID) })
								if id := it.SelectedColor.ID(); id != "" {
									enc.Field("selectedColor", func(enc *jx.Encoder) { enc.Str(id) })
								}
								if it.SelectedSize != "" {
									enc.Field("selectedSize", func(enc *jx.Encoder) { enc.Str(it.SelectedSize) })
								}
								enc.Field("quantity", func(enc *jx.Encoder) { enc.Int(it.Quantity) })
								enc.Field("price", func(enc *jx.Encoder) { enc.Str(it.Price.StringFixed(2)) })
							})
						}
					})
				})
				enc.Field("totalAmount", func(enc *jx.Encoder) { enc.Str(o.TotalAmount.StringFixed(2)) })
				if o.CouponCode != "" {
					enc.Field("couponCode", func(enc *jx.Encoder) { enc.Str(o.CouponCode) })
				}
				enc.Field("isConfirmed", func(enc *jx.Encoder) { enc.Bool(o.IsConfirmed) })
				if o.ConfirmedAt != nil {
					enc.Field("confirmedAt", func(enc *jx.Encoder) { enc.Str(o.ConfirmedAt.UTC().Format(time.RFC3339Nano)) })
				}
				enc.Field("createdAt", func(enc *jx.Encoder) { enc.Str(o.CreatedAt.UTC().Format(time.RFC3339Nano)) })
			})
		})
	})
	return enc.Bytes()
}
