package order

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dernounimk/volty/internal/domain/coupon"
	"github.com/dernounimk/volty/internal/domain/delivery"
	"github.com/dernounimk/volty/internal/domain/pricing"
	"github.com/dernounimk/volty/internal/domain/product"
)

const (
	defaultNumberDigits   = 6
	defaultNumberAttempts = 5
	instrumentationName   = "github.com/dernounimk/volty/internal/domain/order"
)

// ItemRequest is one requested line of a new order.
type ItemRequest struct {
	ProductID     string `json:"productId" validate:"required"`
	Quantity      int    `json:"quantity" validate:"min=1,max=999"`
	SelectedColor string `json:"selectedColor"`
	SelectedSize  string `json:"selectedSize"`
}

// PlaceOrderRequest holds the checkout input.
type PlaceOrderRequest struct {
	FullName      string         `json:"fullName" validate:"required"`
	PhoneNumber   string         `json:"phoneNumber" validate:"required,phone"`
	Wilaya        string         `json:"wilaya" validate:"required"`
	Baladia       string         `json:"baladia" validate:"required"`
	DeliveryPlace delivery.Place `json:"deliveryPlace" validate:"required,oneof=office home"`
	Items         []ItemRequest  `json:"items" validate:"dive"`
	CouponCode    string         `json:"couponCode"`
}

func (r PlaceOrderRequest) trimmed() PlaceOrderRequest {
	r.FullName = strings.TrimSpace(r.FullName)
	r.PhoneNumber = strings.TrimSpace(r.PhoneNumber)
	r.Wilaya = strings.TrimSpace(r.Wilaya)
	r.Baladia = strings.TrimSpace(r.Baladia)
	r.CouponCode = strings.TrimSpace(r.CouponCode)
	return r
}

// DeliveryResolver resolves the delivery fee for a region and place.
type DeliveryResolver interface {
	Resolve(ctx context.Context, state string, place delivery.Place) (delivery.Quote, error)
}

// Option configures a Service.
type Option func(*options)

type options struct {
	publisher      Publisher
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	numberDigits   int
	numberAttempts int
}

// WithPublisher sets the destination of order events.
func WithPublisher(p Publisher) Option {
	return func(o *options) {
		if p != nil {
			o.publisher = p
		}
	}
}

// WithTracerProvider sets the tracer provider for service spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// WithMeterProvider sets the meter provider for order counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

// WithOrderNumber sets the number of digits in generated order numbers and
// how many times a colliding number is regenerated.
func WithOrderNumber(digits, attempts int) Option {
	return func(o *options) {
		if digits >= 4 && digits <= 18 {
			o.numberDigits = digits
		}
		if attempts > 0 {
			o.numberAttempts = attempts
		}
	}
}

// Service implements order placement and the administrator order workflow.
type Service struct {
	products product.Repository
	coupons  coupon.Validator
	delivery DeliveryResolver
	orders   Repository
	events   Publisher

	validate       *validator.Validate
	tracer         trace.Tracer
	createdCount   metric.Int64Counter
	confirmedCount metric.Int64Counter

	numberDigits   int
	numberAttempts int
	newNumber      func(digits int) (string, error)
	now            func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products product.Repository,
	coupons coupon.Validator,
	deliveryResolver DeliveryResolver,
	orders Repository,
	opts ...Option,
) (*Service, error) {
	o := options{
		publisher:      nopPublisher{},
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
		numberDigits:   defaultNumberDigits,
		numberAttempts: defaultNumberAttempts,
	}
	for _, opt := range opts {
		opt(&o)
	}

	meter := o.meterProvider.Meter(instrumentationName)
	created, err := meter.Int64Counter("orders.created",
		metric.WithDescription("Orders placed"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "orders.created counter")
	}
	confirmed, err := meter.Int64Counter("orders.confirmed",
		metric.WithDescription("Orders moved between pending and confirmed"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "orders.confirmed counter")
	}

	return &Service{
		products:       products,
		coupons:        coupons,
		delivery:       deliveryResolver,
		orders:         orders,
		events:         o.publisher,
		validate:       newValidator(),
		tracer:         o.tracerProvider.Tracer(instrumentationName),
		createdCount:   created,
		confirmedCount: confirmed,
		numberDigits:   o.numberDigits,
		numberAttempts: o.numberAttempts,
		newNumber:      GenerateNumber,
		now:            time.Now,
	}, nil
}

// PlaceOrder validates the request, prices it against the current catalog,
// coupon and delivery settings, and persists the resulting snapshot.
//
// Products that no longer exist are dropped from the order. A coupon that is
// unknown or inactive fails the whole call.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder")
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	req = req.trimmed()
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}
	items, err := mergeItems(req.Items)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}

	var (
		products []product.Product
		applied  *coupon.Coupon
		fee      delivery.Quote
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if products, err = s.products.GetByIDs(gctx, ids); err != nil {
			return errors.Wrap(err, "get products")
		}
		return nil
	})
	if req.CouponCode != "" {
		g.Go(func() error {
			c, err := s.coupons.Resolve(gctx, req.CouponCode)
			if err != nil {
				return errors.Wrapf(err, "coupon %q", req.CouponCode)
			}
			applied = c
			return nil
		})
	}
	g.Go(func() error {
		var err error
		if fee, err = s.delivery.Resolve(gctx, req.Wilaya, req.DeliveryPlace); err != nil {
			return errors.Wrap(err, "resolve delivery")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	idx := product.NewIndex(products)
	var (
		lines   = make([]pricing.Line, 0, len(items))
		snap    = make([]Item, 0, len(items))
		dropped []string
	)
	for _, it := range items {
		p, ok := idx.Get(it.ProductID)
		if !ok {
			dropped = append(dropped, it.ProductID)
			continue
		}
		color, err := p.Variant(it.SelectedColor, it.SelectedSize)
		if err != nil {
			return nil, variantError(it.index, err)
		}
		price := p.UnitPrice()
		lines = append(lines, pricing.Line{UnitPrice: price, Quantity: it.Quantity})
		snap = append(snap, Item{
			ProductID:     p.ID,
			Name:          p.Name,
			Quantity:      it.Quantity,
			Price:         price,
			SelectedColor: color,
			SelectedSize:  it.SelectedSize,
		})
	}
	lg := zctx.From(ctx)
	if len(dropped) > 0 {
		lg.Info("Dropped unknown products from order", zap.Strings("product_ids", dropped))
	}
	if len(snap) == 0 {
		return nil, ErrEmptyItems
	}

	discount := decimal.Zero
	code := ""
	if applied != nil {
		discount = applied.DiscountAmount
		code = applied.Code
	}
	b := pricing.Compute(lines, discount, fee.Price)

	o := &Order{
		ID:            uuid.New().String(),
		FullName:      req.FullName,
		PhoneNumber:   req.PhoneNumber,
		Wilaya:        req.Wilaya,
		Baladia:       req.Baladia,
		DeliveryPlace: req.DeliveryPlace,
		Items:         snap,
		Subtotal:      b.Subtotal,
		Discount:      b.Subtotal.Sub(b.DiscountedSubtotal),
		DeliveryPrice: b.Delivery,
		TotalAmount:   b.Total,
		CouponCode:    code,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.insert(ctx, o); err != nil {
		return nil, err
	}

	s.createdCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("delivery_place", string(o.DeliveryPlace)),
		attribute.Bool("coupon", o.CouponCode != ""),
	))
	span.SetAttributes(
		attribute.String("order.id", o.ID),
		attribute.String("order.number", o.OrderNumber),
	)
	lg.Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("order_number", o.OrderNumber),
		zap.Stringer("total", o.TotalAmount),
		zap.Int("items", len(o.Items)),
	)
	s.publish(ctx, EventCreated, *o)

	return o, nil
}

// insert stores o, regenerating its order number on collision.
func (s *Service) insert(ctx context.Context, o *Order) error {
	for attempt := 1; attempt <= s.numberAttempts; attempt++ {
		num, err := s.newNumber(s.numberDigits)
		if err != nil {
			return errors.Wrap(err, "generate order number")
		}
		o.OrderNumber = num

		err = s.orders.Create(ctx, o)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrDuplicateOrderNumber) {
			return errors.Wrap(err, "create order")
		}
		zctx.From(ctx).Warn("Order number collision",
			zap.String("order_number", num),
			zap.Int("attempt", attempt),
		)
	}
	return errors.Wrapf(ErrDuplicateOrderNumber, "after %d attempts", s.numberAttempts)
}

func (s *Service) publish(ctx context.Context, typ EventType, o Order) {
	if err := s.events.Publish(ctx, Event{Type: typ, Order: o}); err != nil {
		zctx.From(ctx).Warn("Publish order event",
			zap.String("type", string(typ)),
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}
}

// mergedItem is a requested line after merging. index is the position of
// its first occurrence in the request.
type mergedItem struct {
	ItemRequest
	index int
}

// mergeItems folds lines sharing product, color and size into one, keeping
// first-seen order. Quantities must already be within bounds; a merged
// quantity above pricing.MaxQuantity is reported on the line that crossed it.
func mergeItems(in []ItemRequest) ([]mergedItem, error) {
	type key struct{ product, color, size string }
	pos := make(map[key]int, len(in))
	out := make([]mergedItem, 0, len(in))
	for i, it := range in {
		k := key{it.ProductID, it.SelectedColor, it.SelectedSize}
		if j, ok := pos[k]; ok {
			if out[j].Quantity > pricing.MaxQuantity-it.Quantity {
				return nil, &ValidationError{
					Field:   fmt.Sprintf("items[%d].quantity", i),
					Message: fmt.Sprintf("must be at most %d", pricing.MaxQuantity),
				}
			}
			out[j].Quantity += it.Quantity
			continue
		}
		pos[k] = len(out)
		out = append(out, mergedItem{ItemRequest: it, index: i})
	}
	return out, nil
}

func variantError(index int, err error) error {
	field := "selectedColor"
	if errors.Is(err, product.ErrUnknownSize) {
		field = "selectedSize"
	}
	return &ValidationError{
		Field:   fmt.Sprintf("items[%d].%s", index, field),
		Message: "is not offered for this product",
	}
}

// GenerateNumber returns a random decimal order number of the given width.
func GenerateNumber(digits int) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}
