package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/dernounimk/volty/internal/domain/cart"
	"github.com/dernounimk/volty/internal/domain/delivery"
	"github.com/dernounimk/volty/internal/domain/order"
)

// cartItemRequest is the body of the cart item routes.
type cartItemRequest struct {
	Key      cart.Key
	Quantity int
}

func decodeCartItem(d *jx.Decoder, key string, req *cartItemRequest) error {
	var err error
	switch key {
	case "productId":
		req.Key.ProductID, err = d.Str()
	case "color", "selectedColor":
		req.Key.Color, err = d.Str()
	case "size", "selectedSize":
		req.Key.Size, err = d.Str()
	case "quantity":
		req.Quantity, err = d.Int()
	default:
		err = d.Skip()
	}
	return err
}

func readCartItem(r *http.Request) (cartItemRequest, error) {
	req := cartItemRequest{Quantity: 1}
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		return decodeCartItem(d, key, &req)
	})
	if err != nil {
		return req, err
	}
	if req.Key.ProductID == "" {
		return req, badRequest("productId: is required")
	}
	return req, nil
}

// quoteRequest is the body of the stateless quote route.
type quoteRequest struct {
	Items      []cartItemRequest
	CouponCode string
	Wilaya     string
	Place      delivery.Place
}

// Quote prices a cart that is not stored on the server.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				item := cartItemRequest{Quantity: 1}
				if err := d.ObjBytes(func(d *jx.Decoder, k []byte) error {
					return decodeCartItem(d, string(k), &item)
				}); err != nil {
					return err
				}
				req.Items = append(req.Items, item)
				return nil
			})
		case "couponCode":
			req.CouponCode, err = d.Str()
		case "wilaya":
			req.Wilaya, err = d.Str()
		case "deliveryPlace":
			var s string
			s, err = d.Str()
			req.Place = delivery.Place(s)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		fail(w, r, err, mapCartError)
		return
	}

	sess := &cart.Session{CouponCode: req.CouponCode}
	for _, it := range req.Items {
		if it.Key.ProductID == "" {
			fail(w, r, badRequest("productId: is required"), nil)
			return
		}
		if err := sess.AddItem(it.Key, it.Quantity); err != nil {
			fail(w, r, err, mapCartError)
			return
		}
	}
	if req.Wilaya != "" || req.Place != "" {
		if err := sess.SetDelivery(req.Wilaya, req.Place); err != nil {
			fail(w, r, err, mapCartError)
			return
		}
	}

	q, err := h.carts.Price(r.Context(), sess)
	if err != nil {
		fail(w, r, err, mapCartError)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeQuote(e, q) })
}

// writeQuote responds with the priced state of the stored cart id.
func (h *Handler) writeQuote(w http.ResponseWriter, r *http.Request, id string, status int) {
	q, err := h.carts.Quote(r.Context(), id)
	if err != nil {
		fail(w, r, err, mapCartError)
		return
	}
	writeJSON(w, status, func(e *jx.Encoder) { encodeQuote(e, q) })
}

// CreateCart starts an empty cart session.
func (h *Handler) CreateCart(w http.ResponseWriter, r *http.Request) {
	sess, err := h.carts.Create(r.Context())
	if err != nil {
		fail(w, r, err, mapCartError)
		return
	}
	h.writeQuote(w, r, sess.ID, http.StatusCreated)
}

// GetCart returns the cart priced against the current catalog.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	h.writeQuote(w, r, r.PathValue("id"), http.StatusOK)
}

// AddCartItem adds units of a product variant to the cart.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	req, err := readCartItem(r)
	if err == nil {
		_, err = h.carts.AddItem(r.Context(), r.PathValue("id"), req.Key, req.Quantity)
	}
	if err != nil {
		fail(w, r, err, mapCartError)
		return
	}
	h.writeQuote(w, r, r.PathValue("id"), http.StatusOK)
}

// UpdateCartItem replaces the quantity of a cart line.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	req, err := readCartItem(r)
	if err == nil {
		_, err = h.carts.UpdateQuantity(r.Context(), r.PathValue("id"), req.Key, req.Quantity)
	}
	if err != nil {
		fail(w, r, err, mapCartError)
		return
	}
	h.writeQuote(w, r, r.PathValue("id"), http.StatusOK)
}

// RemoveCartItem removes the line named by the productId, color and size
// query parameters.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	k := cart.Key{ProductID: q.Get("productId"), Color: q.Get("color"), Size: q.Get("size")}
	if k.ProductID == "" {
		fail(w, r, badRequest("productId: is required"), nil)
		return
	}
	if _, err := h.carts.RemoveItem(r.Context(), r.PathValue("id"), k); err != nil {
		fail(w, r, err, mapCartError)
		return
	}
	h.writeQuote(w, r, r.PathValue("id"), http.StatusOK)
}

// ApplyCartCoupon attaches a coupon code after checking it is usable.
func (h *Handler) ApplyCartCoupon(w http.ResponseWriter, r *http.Request) {
	var code string
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key == "code" || key == "couponCode" {
			var err error
			code, err = d.Str()
			return err
		}
		return d.Skip()
	})
	if err == nil && code == "" {
		err = badRequest("code: is required")
	}
	if err == nil {
		_, _, err = h.carts.ApplyCoupon(r.Context(), r.PathValue("id"), code)
	}
	if err != nil {
		fail(w, r, err, mapCartError)
		return
	}
	h.writeQuote(w, r, r.PathValue("id"), http.StatusOK)
}

// RemoveCartCoupon detaches the coupon from the cart.
func (h *Handler) RemoveCartCoupon(w http.ResponseWriter, r *http.Request) {
	if _, err := h.carts.RemoveCoupon(r.Context(), r.PathValue("id")); err != nil {
		fail(w, r, err, mapCartError)
		return
	}
	h.writeQuote(w, r, r.PathValue("id"), http.StatusOK)
}

// SetCartDelivery chooses the destination region and delivery place.
func (h *Handler) SetCartDelivery(w http.ResponseWriter, r *http.Request) {
	var (
		wilaya string
		place  string
	)
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "wilaya":
			wilaya, err = d.Str()
		case "place", "deliveryPlace":
			place, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err == nil && wilaya == "" {
		err = badRequest("wilaya: is required")
	}
	if err == nil {
		_, err = h.carts.SetDelivery(r.Context(), r.PathValue("id"), wilaya, delivery.Place(place))
	}
	if err != nil {
		fail(w, r, err, mapCartError)
		return
	}
	h.writeQuote(w, r, r.PathValue("id"), http.StatusOK)
}

// CheckoutCart turns the cart into an order and discards the cart.
func (h *Handler) CheckoutCart(w http.ResponseWriter, r *http.Request) {
	var c cart.Contact
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "fullName":
			c.FullName, err = d.Str()
		case "phoneNumber":
			c.PhoneNumber, err = d.Str()
		case "baladia":
			c.Baladia, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		fail(w, r, err, nil)
		return
	}

	o, err := h.carts.Checkout(r.Context(), r.PathValue("id"), c)
	if err != nil {
		fail(w, r, err, mapCheckoutError)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// PlaceOrder creates an order from a full checkout payload.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req order.PlaceOrderRequest
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "fullName":
			req.FullName, err = d.Str()
		case "phoneNumber":
			req.PhoneNumber, err = d.Str()
		case "wilaya":
			req.Wilaya, err = d.Str()
		case "baladia":
			req.Baladia, err = d.Str()
		case "deliveryPlace":
			var s string
			s, err = d.Str()
			req.DeliveryPlace = delivery.Place(s)
		case "couponCode":
			req.CouponCode, err = d.Str()
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				var it order.ItemRequest
				if err := d.ObjBytes(func(d *jx.Decoder, k []byte) error {
					var err error
					switch string(k) {
					case "productId":
						it.ProductID, err = d.Str()
					case "quantity":
						it.Quantity, err = d.Int()
					case "selectedColor":
						it.SelectedColor, err = d.Str()
					case "selectedSize":
						it.SelectedSize, err = d.Str()
					default:
						err = d.Skip()
					}
					return err
				}); err != nil {
					return err
				}
				req.Items = append(req.Items, it)
				return nil
			})
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		fail(w, r, err, nil)
		return
	}

	o, err := h.orders.PlaceOrder(r.Context(), req)
	if err != nil {
		fail(w, r, err, mapOrderError)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}
