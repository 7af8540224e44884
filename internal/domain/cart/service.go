package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dernounimk/volty/internal/domain/coupon"
	"github.com/dernounimk/volty/internal/domain/delivery"
	"github.com/dernounimk/volty/internal/domain/order"
	"github.com/dernounimk/volty/internal/domain/pricing"
	"github.com/dernounimk/volty/internal/domain/product"
	"github.com/dernounimk/volty/internal/domain/ref"
)

// Store persists cart sessions.
type Store interface {
	// Get returns ErrSessionNotFound for unknown or expired sessions.
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

// DeliveryResolver resolves the delivery fee for a region and place.
type DeliveryResolver interface {
	Resolve(ctx context.Context, state string, place delivery.Place) (delivery.Quote, error)
}

// OrderPlacer turns a checkout request into a persisted order.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.Order, error)
}

// Line is a cart line priced with the current catalog.
type Line struct {
	Item
	Name string
	// Color is resolved while the product still offers it.
	Color     ref.Ref[product.Color]
	UnitPrice decimal.Decimal
	Amount    decimal.Decimal
}

// Quote is the priced state of a cart.
type Quote struct {
	Session *Session
	Lines   []Line
	// Coupon is the applied coupon, nil when none applies.
	Coupon *coupon.Coupon
	// CouponRejected holds the reason a previously applied code was dropped.
	CouponRejected error
	// Delivery is nil until a destination is chosen.
	Delivery  *delivery.Quote
	Breakdown pricing.Breakdown
	// Pruned lists lines removed because their product no longer exists.
	Pruned []Key
}

// Contact holds the customer fields needed to turn a cart into an order.
type Contact struct {
	FullName    string
	PhoneNumber string
	Baladia     string
}

// Service manages server-side cart sessions.
type Service struct {
	store    Store
	products product.Repository
	coupons  coupon.Validator
	delivery DeliveryResolver
	orders   OrderPlacer
	now      func() time.Time
}

// NewService creates a cart Service.
func NewService(
	store Store,
	products product.Repository,
	coupons coupon.Validator,
	deliveryResolver DeliveryResolver,
	orders OrderPlacer,
) *Service {
	return &Service{
		store:    store,
		products: products,
		coupons:  coupons,
		delivery: deliveryResolver,
		orders:   orders,
		now:      time.Now,
	}
}

// Create starts an empty session.
func (s *Service) Create(ctx context.Context) (*Session, error) {
	sess := &Session{
		ID:        uuid.New().String(),
		UpdatedAt: s.now().UTC(),
	}
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return sess, nil
}

// Get returns the session with the given id.
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	return s.store.Get(ctx, id)
}

// AddItem adds a product variant to the cart, merging with a matching line.
// The color and size must be offered by the product.
func (s *Service) AddItem(ctx context.Context, id string, k Key, qty int) (*Session, error) {
	if !validQuantity(qty) {
		return nil, ErrInvalidQuantity
	}
	p, err := s.products.GetByID(ctx, k.ProductID)
	if err != nil {
		return nil, err
	}
	if _, err := p.Variant(k.Color, k.Size); err != nil {
		field := "color"
		if errors.Is(err, product.ErrUnknownSize) {
			field = "size"
		}
		return nil, &order.ValidationError{Field: field, Message: "is not offered for this product"}
	}
	return s.update(ctx, id, func(sess *Session) error {
		return sess.AddItem(k, qty)
	})
}

// UpdateQuantity sets the quantity of an existing line.
func (s *Service) UpdateQuantity(ctx context.Context, id string, k Key, qty int) (*Session, error) {
	return s.update(ctx, id, func(sess *Session) error {
		return sess.UpdateQuantity(k, qty)
	})
}

// RemoveItem removes a line from the cart.
func (s *Service) RemoveItem(ctx context.Context, id string, k Key) (*Session, error) {
	return s.update(ctx, id, func(sess *Session) error {
		sess.RemoveItem(k)
		return nil
	})
}

// ApplyCoupon checks that code names an active coupon and applies it,
// replacing any coupon applied before.
func (s *Service) ApplyCoupon(ctx context.Context, id, code string) (*Session, *coupon.Coupon, error) {
	c, err := s.coupons.Resolve(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	sess, err := s.update(ctx, id, func(sess *Session) error {
		sess.ApplyCoupon(c.Code)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return sess, c, nil
}

// RemoveCoupon clears the applied coupon.
func (s *Service) RemoveCoupon(ctx context.Context, id string) (*Session, error) {
	return s.update(ctx, id, func(sess *Session) error {
		sess.RemoveCoupon()
		return nil
	})
}

// SetDelivery records the destination used for the delivery fee.
func (s *Service) SetDelivery(ctx context.Context, id, wilaya string, place delivery.Place) (*Session, error) {
	return s.update(ctx, id, func(sess *Session) error {
		return sess.SetDelivery(wilaya, place)
	})
}

// Quote prices the stored session. Lines for deleted products and a coupon
// that is no longer usable are removed from the session as a side effect.
func (s *Service) Quote(ctx context.Context, id string) (*Quote, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	q, err := s.Price(ctx, sess)
	if err != nil {
		return nil, err
	}
	if len(q.Pruned) > 0 || q.CouponRejected != nil {
		sess.UpdatedAt = s.now().UTC()
		if err := s.store.Save(ctx, sess); err != nil {
			return nil, errors.Wrap(err, "save cart")
		}
	}
	return q, nil
}

// Price computes the full breakdown for sess without touching the store.
// sess is modified in place when lines are pruned or its coupon is dropped.
func (s *Service) Price(ctx context.Context, sess *Session) (*Quote, error) {
	lg := zctx.From(ctx)

	var idx product.Index
	if ids := sess.ProductIDs(); len(ids) > 0 {
		products, err := s.products.GetByIDs(ctx, ids)
		if err != nil {
			return nil, errors.Wrap(err, "get products")
		}
		idx = product.NewIndex(products)
	}

	q := &Quote{Session: sess}
	if q.Pruned = sess.Prune(idx); len(q.Pruned) > 0 {
		lg.Info("Pruned cart lines for missing products",
			zap.String("cart_id", sess.ID),
			zap.Int("count", len(q.Pruned)),
		)
	}

	for _, it := range sess.Items {
		p, _ := idx.Get(it.ProductID)
		price := p.UnitPrice()
		q.Lines = append(q.Lines, Line{
			Item:      it,
			Name:      p.Name,
			Color:     lineColor(p, it.Color),
			UnitPrice: price,
			Amount:    price.Mul(decimal.NewFromInt(int64(it.Quantity))),
		})
	}

	discount := decimal.Zero
	if sess.CouponCode != "" {
		c, err := s.coupons.Resolve(ctx, sess.CouponCode)
		switch {
		case err == nil:
			q.Coupon = c
			discount = c.DiscountAmount
		case errors.Is(err, coupon.ErrNotFound), errors.Is(err, coupon.ErrInactive):
			lg.Info("Dropped unusable coupon from cart",
				zap.String("cart_id", sess.ID),
				zap.String("code", sess.CouponCode),
				zap.Error(err),
			)
			q.CouponRejected = err
			sess.RemoveCoupon()
		default:
			return nil, errors.Wrap(err, "resolve coupon")
		}
	}

	fee := decimal.Zero
	if sess.HasDelivery() {
		dq, err := s.delivery.Resolve(ctx, sess.Wilaya, sess.Place)
		if err != nil {
			return nil, errors.Wrap(err, "resolve delivery")
		}
		q.Delivery = &dq
		fee = dq.Price
	}

	q.Breakdown = pricing.Compute(sess.Lines(idx), discount, fee)
	return q, nil
}

// Checkout places an order from the stored session and deletes the session
// once the order exists. The coupon is validated again by the order service.
func (s *Service) Checkout(ctx context.Context, id string, c Contact) (*order.Order, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(sess.Items) == 0 {
		return nil, order.ErrEmptyItems
	}

	req := order.PlaceOrderRequest{
		FullName:      c.FullName,
		PhoneNumber:   c.PhoneNumber,
		Wilaya:        sess.Wilaya,
		Baladia:       c.Baladia,
		DeliveryPlace: sess.Place,
		CouponCode:    sess.CouponCode,
		Items:         make([]order.ItemRequest, len(sess.Items)),
	}
	for i, it := range sess.Items {
		req.Items[i] = order.ItemRequest{
			ProductID:     it.ProductID,
			Quantity:      it.Quantity,
			SelectedColor: it.Color,
			SelectedSize:  it.Size,
		}
	}

	o, err := s.orders.PlaceOrder(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		zctx.From(ctx).Warn("Delete cart after checkout",
			zap.String("cart_id", id),
			zap.Error(err),
		)
	}
	return o, nil
}

func lineColor(p product.Product, id string) ref.Ref[product.Color] {
	if c, ok := p.Color(id); ok {
		return ref.Resolved(c)
	}
	if id == "" {
		return ref.Ref[product.Color]{}
	}
	return ref.ID[product.Color](id)
}

func (s *Service) update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	sess.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return sess, nil
}
