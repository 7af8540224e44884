package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/dernounimk/volty/internal/domain/delivery"
	"github.com/dernounimk/volty/internal/domain/product"
)

// resolveCategories replaces category references that carry only an id with
// the category itself. A reference to a missing category stays an id.
func (h *Handler) resolveCategories(ctx context.Context, products []product.Product) error {
	seen := make(map[string]product.Category)
	lookup := func(ctx context.Context, id string) (product.Category, error) {
		if c, ok := seen[id]; ok {
			return c, nil
		}
		c, err := h.products.GetCategory(ctx, id)
		if err != nil {
			return c, err
		}
		seen[id] = c
		return c, nil
	}
	for i := range products {
		p := &products[i]
		resolved, err := p.Category.Resolve(ctx, lookup)
		switch {
		case err == nil:
			p.Category = resolved
		case errors.Is(err, product.ErrCategoryNotFound):
			zctx.From(ctx).Warn("Product references a missing category",
				zap.String("product_id", p.ID),
				zap.String("category_id", p.Category.ID()),
			)
		default:
			return errors.Wrapf(err, "resolve category of %q", p.ID)
		}
	}
	return nil
}

// ListProducts returns every product in the catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err == nil {
		err = h.resolveCategories(r.Context(), products)
	}
	if err != nil {
		fail(w, r, err, mapProductError)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, p := range products {
			h.encodeProduct(e, p)
		}
		e.ArrEnd()
	})
}

// GetProduct returns a single product by ID.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, err, mapProductError)
		return
	}
	one := []product.Product{*p}
	if err := h.resolveCategories(r.Context(), one); err != nil {
		fail(w, r, err, mapProductError)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeProduct(e, one[0]) })
}

// ListDelivery returns the delivery fees of every configured region.
func (h *Handler) ListDelivery(w http.ResponseWriter, r *http.Request) {
	settings, err := h.deliveries.List(r.Context())
	if err != nil {
		fail(w, r, err, mapDeliveryError)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, s := range settings {
			encodeSetting(e, s)
		}
		e.ArrEnd()
	})
}

// GetDelivery returns the setting of one region, or with ?place= the fee
// a customer would pay. A region without a setting quotes a zero fee.
func (h *Handler) GetDelivery(w http.ResponseWriter, r *http.Request) {
	state := r.PathValue("state")
	if place := r.URL.Query().Get("place"); place != "" {
		q, err := h.deliveries.Resolve(r.Context(), state, delivery.Place(place))
		if err != nil {
			fail(w, r, err, mapDeliveryError)
			return
		}
		writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeDeliveryQuote(e, q) })
		return
	}

	s, err := h.deliveries.Get(r.Context(), state)
	if err != nil {
		fail(w, r, err, mapDeliveryError)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeSetting(e, *s) })
}
