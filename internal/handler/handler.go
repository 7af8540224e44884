// Package handler exposes the storefront and admin HTTP API.
package handler

import (
	"net/http"

	"github.com/dernounimk/volty/internal/domain/cart"
	"github.com/dernounimk/volty/internal/domain/coupon"
	"github.com/dernounimk/volty/internal/domain/delivery"
	"github.com/dernounimk/volty/internal/domain/order"
	"github.com/dernounimk/volty/internal/domain/product"
	"github.com/dernounimk/volty/pkg/httpmiddleware"
)

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as stored in the database.
	ImageBaseURL string
}

// Handler serves the HTTP API on top of the domain services.
type Handler struct {
	products     product.Repository
	coupons      *coupon.Service
	deliveries   *delivery.Resolver
	carts        *cart.Service
	orders       *order.Service
	imageBaseURL string
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg HandlerConfig,
	products product.Repository,
	coupons *coupon.Service,
	deliveries *delivery.Resolver,
	carts *cart.Service,
	orders *order.Service,
) *Handler {
	return &Handler{
		products:     products,
		coupons:      coupons,
		deliveries:   deliveries,
		carts:        carts,
		orders:       orders,
		imageBaseURL: cfg.ImageBaseURL,
	}
}

// Register mounts every route on mux. Admin routes are wrapped with admin.
func (h *Handler) Register(mux *http.ServeMux, admin httpmiddleware.Middleware) {
	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("GET /api/products/{id}", h.GetProduct)
	mux.HandleFunc("GET /api/delivery", h.ListDelivery)
	mux.HandleFunc("GET /api/delivery/{state}", h.GetDelivery)
	mux.HandleFunc("POST /api/quote", h.Quote)

	mux.HandleFunc("POST /api/cart", h.CreateCart)
	mux.HandleFunc("GET /api/cart/{id}", h.GetCart)
	mux.HandleFunc("POST /api/cart/{id}/items", h.AddCartItem)
	mux.HandleFunc("PATCH /api/cart/{id}/items", h.UpdateCartItem)
	mux.HandleFunc("DELETE /api/cart/{id}/items", h.RemoveCartItem)
	mux.HandleFunc("PUT /api/cart/{id}/coupon", h.ApplyCartCoupon)
	mux.HandleFunc("DELETE /api/cart/{id}/coupon", h.RemoveCartCoupon)
	mux.HandleFunc("PUT /api/cart/{id}/delivery", h.SetCartDelivery)
	mux.HandleFunc("POST /api/cart/{id}/checkout", h.CheckoutCart)

	mux.HandleFunc("POST /api/orders", h.PlaceOrder)

	adminRoutes := map[string]http.HandlerFunc{
		"GET /api/admin/coupons":              h.ListCoupons,
		"POST /api/admin/coupons":             h.CreateCoupon,
		"POST /api/admin/coupons/{id}/toggle": h.ToggleCoupon,
		"DELETE /api/admin/coupons/{id}":      h.DeleteCoupon,
		"PUT /api/admin/delivery/{state}":     h.UpsertDelivery,
		"DELETE /api/admin/delivery/{state}":  h.DeleteDelivery,
		"GET /api/admin/orders":               h.ListOrders,
		"GET /api/admin/orders/export":        h.ExportOrders,
		"GET /api/admin/orders/{id}":          h.GetOrder,
		"PATCH /api/admin/orders/{id}":        h.UpdateOrder,
		"DELETE /api/admin/orders/{id}":       h.DeleteOrder,
		"POST /api/admin/orders/confirm":      h.ToggleOrders,
		"POST /api/admin/orders/delete":       h.DeleteOrders,
		"GET /api/admin/stats":                h.Stats,
	}
	for pattern, fn := range adminRoutes {
		mux.Handle(pattern, admin(fn))
	}
}
