package handler

import (
	"fmt"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/dernounimk/volty/internal/domain/auth"
	"github.com/dernounimk/volty/internal/domain/cart"
	"github.com/dernounimk/volty/internal/domain/coupon"
	"github.com/dernounimk/volty/internal/domain/delivery"
	"github.com/dernounimk/volty/internal/domain/order"
	"github.com/dernounimk/volty/internal/domain/product"
)

// apiError is the {"code":...,"message":...} body of every error response.
type apiError struct {
	Code    int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

func badRequest(format string, args ...any) error {
	return &apiError{Code: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// mapper converts a domain error into a response, or returns nil to fall
// through to mapCommonError.
type mapper func(err error) *apiError

// mapCommonError handles errors every resource can produce.
func mapCommonError(err error) *apiError {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae
	}
	var ve *order.ValidationError
	if errors.As(err, &ve) {
		return &apiError{Code: http.StatusBadRequest, Message: ve.Error()}
	}
	if errors.Is(err, auth.ErrUnauthorized) {
		return &apiError{Code: http.StatusUnauthorized, Message: "unauthorized"}
	}
	if errors.Is(err, delivery.ErrInvalidPlace) {
		return &apiError{Code: http.StatusBadRequest, Message: "deliveryPlace: must be office or home"}
	}
	return nil
}

func mapProductError(err error) *apiError {
	if errors.Is(err, product.ErrNotFound) {
		return &apiError{Code: http.StatusNotFound, Message: "product not found"}
	}
	return nil
}

func mapDeliveryError(err error) *apiError {
	switch {
	case errors.Is(err, delivery.ErrNotFound):
		return &apiError{Code: http.StatusNotFound, Message: "delivery setting not found"}
	case errors.Is(err, delivery.ErrInvalidSetting):
		return &apiError{Code: http.StatusBadRequest, Message: err.Error()}
	}
	return nil
}

func mapCouponError(err error) *apiError {
	switch {
	case errors.Is(err, coupon.ErrNotFound):
		return &apiError{Code: http.StatusNotFound, Message: "coupon not found"}
	case errors.Is(err, coupon.ErrInactive):
		return &apiError{Code: http.StatusUnprocessableEntity, Message: "coupon is not active"}
	case errors.Is(err, coupon.ErrInvalidAmount):
		return &apiError{Code: http.StatusBadRequest, Message: "discountAmount: must not be negative"}
	case errors.Is(err, coupon.ErrCodeTaken):
		return &apiError{Code: http.StatusConflict, Message: "could not allocate a unique coupon code"}
	}
	return nil
}

func mapCartError(err error) *apiError {
	switch {
	case errors.Is(err, cart.ErrSessionNotFound):
		return &apiError{Code: http.StatusNotFound, Message: "cart not found"}
	case errors.Is(err, cart.ErrItemNotFound):
		return &apiError{Code: http.StatusNotFound, Message: "cart item not found"}
	case errors.Is(err, cart.ErrInvalidQuantity):
		return &apiError{Code: http.StatusBadRequest, Message: "quantity: must be between 1 and 999"}
	}
	if ae := mapProductError(err); ae != nil {
		return ae
	}
	return mapCouponError(err)
}

func mapOrderError(err error) *apiError {
	switch {
	case errors.Is(err, order.ErrEmptyItems):
		return &apiError{Code: http.StatusBadRequest, Message: "order has no items"}
	case errors.Is(err, order.ErrNotFound):
		return &apiError{Code: http.StatusNotFound, Message: "order not found"}
	case errors.Is(err, order.ErrMixedStatus):
		return &apiError{Code: http.StatusConflict, Message: "orders must all share the same confirmation status"}
	case errors.Is(err, order.ErrDuplicateOrderNumber):
		return &apiError{Code: http.StatusServiceUnavailable, Message: "could not allocate an order number, retry"}
	// A coupon is only rejected at submission after it was accepted in the
	// cart, so both cases are reported as unprocessable.
	case errors.Is(err, coupon.ErrNotFound):
		return &apiError{Code: http.StatusUnprocessableEntity, Message: "coupon not found"}
	case errors.Is(err, coupon.ErrInactive):
		return &apiError{Code: http.StatusUnprocessableEntity, Message: "coupon is not active"}
	}
	return nil
}

// mapCheckoutError covers a cart checkout: cart lookup failures first, then
// whatever the order service rejected.
func mapCheckoutError(err error) *apiError {
	if errors.Is(err, cart.ErrSessionNotFound) {
		return &apiError{Code: http.StatusNotFound, Message: "cart not found"}
	}
	return mapOrderError(err)
}

// fail writes the response for err. Unmapped errors are logged and hidden
// behind a 500.
func fail(w http.ResponseWriter, r *http.Request, err error, m mapper) {
	ae := mapCommonError(err)
	if ae == nil && m != nil {
		ae = m(err)
	}
	if ae == nil {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		ae = &apiError{Code: http.StatusInternalServerError, Message: "internal error"}
	}
	writeJSON(w, ae.Code, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(ae.Code) })
			e.Field("message", func(e *jx.Encoder) { e.Str(ae.Message) })
		})
	})
}
