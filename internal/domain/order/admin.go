package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ToggleConfirmation flips the confirmation state of every order in ids.
//
// The batch must be homogeneous: either all pending (they become confirmed
// and get ConfirmedAt set) or all confirmed (they become pending and
// ConfirmedAt is cleared). A mixed batch is rejected with ErrMixedStatus and
// nothing is written.
func (s *Service) ToggleConfirmation(ctx context.Context, ids []string) ([]Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.ToggleConfirmation")
	defer span.End()

	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, &ValidationError{Field: "ids", Message: "is required"}
	}

	orders, err := s.orders.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get orders")
	}
	if len(orders) != len(ids) {
		found := make(map[string]struct{}, len(orders))
		for _, o := range orders {
			found[o.ID] = struct{}{}
		}
		for _, id := range ids {
			if _, ok := found[id]; !ok {
				return nil, errors.Wrapf(ErrNotFound, "order %s", id)
			}
		}
	}

	target := !orders[0].IsConfirmed
	for _, o := range orders[1:] {
		if o.IsConfirmed == target {
			return nil, ErrMixedStatus
		}
	}

	var at *time.Time
	if target {
		t := s.now().UTC()
		at = &t
	}
	if err := s.orders.SetConfirmation(ctx, ids, target, at); err != nil {
		if errors.Is(err, ErrMixedStatus) {
			return nil, err
		}
		return nil, errors.Wrap(err, "set confirmation")
	}

	typ := EventUnconfirmed
	if target {
		typ = EventConfirmed
	}
	for i := range orders {
		orders[i].IsConfirmed = target
		orders[i].ConfirmedAt = at
		s.publish(ctx, typ, orders[i])
	}

	s.confirmedCount.Add(ctx, int64(len(orders)), metric.WithAttributes(
		attribute.Bool("confirmed", target),
	))
	zctx.From(ctx).Info("Order confirmation toggled",
		zap.Strings("order_ids", ids),
		zap.Bool("confirmed", target),
	)
	return orders, nil
}

// Get returns a single order.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orders.Get(ctx, id)
}

// List returns a filtered page of orders.
func (s *Service) List(ctx context.Context, f Filter) (*Page, error) {
	f, err := f.Normalize()
	if err != nil {
		return nil, err
	}
	f.Search = strings.TrimSpace(f.Search)
	page, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return page, nil
}

// Update edits the contact and address fields of an order. Prices, items and
// the delivery place are never changed.
func (s *Service) Update(ctx context.Context, id string, p Patch) (*Order, error) {
	p = p.trimmed()
	if err := validateStruct(s.validate, p); err != nil {
		return nil, err
	}
	if p.Empty() {
		return s.orders.Get(ctx, id)
	}
	o, err := s.orders.Update(ctx, id, p)
	if err != nil {
		return nil, err
	}
	zctx.From(ctx).Info("Order updated", zap.String("order_id", id))
	return o, nil
}

func (p Patch) trimmed() Patch {
	trim := func(s *string) *string {
		if s == nil {
			return nil
		}
		v := strings.TrimSpace(*s)
		return &v
	}
	return Patch{
		FullName:    trim(p.FullName),
		PhoneNumber: trim(p.PhoneNumber),
		Wilaya:      trim(p.Wilaya),
		Baladia:     trim(p.Baladia),
	}
}

// Delete removes the given orders and returns how many were deleted.
func (s *Service) Delete(ctx context.Context, ids []string) (int64, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, &ValidationError{Field: "ids", Message: "is required"}
	}
	n, err := s.orders.Delete(ctx, ids)
	if err != nil {
		return 0, errors.Wrap(err, "delete orders")
	}
	if n == 0 {
		return 0, ErrNotFound
	}
	zctx.From(ctx).Info("Orders deleted",
		zap.Strings("order_ids", ids),
		zap.Int64("deleted", n),
	)
	return n, nil
}

// Stats returns aggregate counts and confirmed revenue.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	st, err := s.orders.Stats(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "order stats")
	}
	return st, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
