package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/jx"

	"github.com/dernounimk/volty/internal/domain/coupon"
	"github.com/dernounimk/volty/internal/domain/delivery"
	"github.com/dernounimk/volty/internal/domain/order"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ListCoupons returns every coupon, newest first.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.coupons.List(r.Context())
	if err != nil {
		fail(w, r, err, mapCouponError)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, c := range coupons {
			encodeCoupon(e, c)
		}
		e.ArrEnd()
	})
}

// CreateCoupon issues a coupon with a generated code.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	req := coupon.CreateRequest{Active: true}
	var hasAmount bool
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "discountAmount":
			req.DiscountAmount, err = decodeDecimal(d, key)
			hasAmount = err == nil
		case "isActive", "active":
			req.Active, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	})
	if err == nil && !hasAmount {
		err = badRequest("discountAmount: is required")
	}
	if err != nil {
		fail(w, r, err, nil)
		return
	}

	c, err := h.coupons.Create(r.Context(), req)
	if err != nil {
		fail(w, r, err, mapCouponError)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeCoupon(e, *c) })
}

// ToggleCoupon flips the active flag of a coupon.
func (h *Handler) ToggleCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.coupons.Toggle(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, err, mapCouponError)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCoupon(e, *c) })
}

// DeleteCoupon removes a coupon.
func (h *Handler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.coupons.Delete(r.Context(), r.PathValue("id")); err != nil {
		fail(w, r, err, mapCouponError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpsertDelivery sets the fees of a region.
func (h *Handler) UpsertDelivery(w http.ResponseWriter, r *http.Request) {
	s := delivery.Setting{State: r.PathValue("state"), DeliveryDays: 1}
	seen := map[string]bool{}
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "officePrice":
			s.OfficePrice, err = decodeDecimal(d, key)
		case "homePrice":
			s.HomePrice, err = decodeDecimal(d, key)
		case "deliveryDays":
			s.DeliveryDays, err = d.Int()
		default:
			return d.Skip()
		}
		seen[key] = err == nil
		return err
	})
	for _, field := range []string{"officePrice", "homePrice"} {
		if err == nil && !seen[field] {
			err = badRequest("%s: is required", field)
		}
	}
	if err != nil {
		fail(w, r, err, nil)
		return
	}

	if err := h.deliveries.Upsert(r.Context(), s); err != nil {
		fail(w, r, err, mapDeliveryError)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeSetting(e, s) })
}

// DeleteDelivery removes the setting of a region. Its fee falls back to zero.
func (h *Handler) DeleteDelivery(w http.ResponseWriter, r *http.Request) {
	if err := h.deliveries.Delete(r.Context(), r.PathValue("state")); err != nil {
		fail(w, r, err, mapDeliveryError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseFilter reads status, search, wilaya, sort, order, limit and offset
// from the query string.
func parseFilter(r *http.Request) (order.Filter, error) {
	q := r.URL.Query()
	f := order.Filter{
		Status: order.Status(q.Get("status")),
		Search: q.Get("search"),
		Wilaya: q.Get("wilaya"),
		SortBy: order.SortField(q.Get("sort")),
	}
	switch q.Get("order") {
	case "", "desc":
	case "asc":
		f.Asc = true
	default:
		return f, badRequest("order: must be asc or desc")
	}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return f, badRequest("%s: must be a non-negative integer", name)
		}
		*dst = v
	}
	return f, nil
}

// ListOrders returns one page of orders with the total match count.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		fail(w, r, err, nil)
		return
	}
	page, err := h.orders.List(r.Context(), f)
	if err != nil {
		fail(w, r, err, mapOrderError)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("orders", func(e *jx.Encoder) { encodeOrders(e, page.Orders) })
			e.Field("total", func(e *jx.Encoder) { e.Int(page.Total) })
		})
	})
}

// ExportOrders downloads the filtered orders as an xlsx workbook.
func (h *Handler) ExportOrders(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		fail(w, r, err, nil)
		return
	}
	var buf bytes.Buffer
	if err := h.orders.Export(r.Context(), f, &buf); err != nil {
		fail(w, r, err, mapOrderError)
		return
	}

	name := fmt.Sprintf("orders-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// GetOrder returns a single order.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, err, mapOrderError)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// UpdateOrder edits the contact fields of an order. Money fields are never
// recomputed.
func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	var p order.Patch
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var dst **string
		switch key {
		case "fullName":
			dst = &p.FullName
		case "phoneNumber":
			dst = &p.PhoneNumber
		case "wilaya":
			dst = &p.Wilaya
		case "baladia":
			dst = &p.Baladia
		default:
			return d.Skip()
		}
		v, err := d.Str()
		if err != nil {
			return err
		}
		*dst = &v
		return nil
	})
	if err != nil {
		fail(w, r, err, nil)
		return
	}

	o, err := h.orders.Update(r.Context(), r.PathValue("id"), p)
	if err != nil {
		fail(w, r, err, mapOrderError)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// DeleteOrder removes a single order.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if _, err := h.orders.Delete(r.Context(), []string{r.PathValue("id")}); err != nil {
		fail(w, r, err, mapOrderError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func readIDs(r *http.Request) ([]string, error) {
	var ids []string
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key != "ids" {
			return d.Skip()
		}
		var err error
		ids, err = decodeStrings(d)
		return err
	})
	return ids, err
}

// ToggleOrders flips the confirmation state of every listed order. All of
// them must currently share the same state.
func (h *Handler) ToggleOrders(w http.ResponseWriter, r *http.Request) {
	ids, err := readIDs(r)
	if err != nil {
		fail(w, r, err, nil)
		return
	}
	orders, err := h.orders.ToggleConfirmation(r.Context(), ids)
	if err != nil {
		fail(w, r, err, mapOrderError)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("orders", func(e *jx.Encoder) { encodeOrders(e, orders) })
		})
	})
}

// DeleteOrders removes every listed order.
func (h *Handler) DeleteOrders(w http.ResponseWriter, r *http.Request) {
	ids, err := readIDs(r)
	if err != nil {
		fail(w, r, err, nil)
		return
	}
	n, err := h.orders.Delete(r.Context(), ids)
	if err != nil {
		fail(w, r, err, mapOrderError)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("deleted", func(e *jx.Encoder) { e.Int64(n) })
		})
	})
}

// Stats returns order counts and confirmed revenue.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.orders.Stats(r.Context())
	if err != nil {
		fail(w, r, err, mapOrderError)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeStats(e, st) })
}

