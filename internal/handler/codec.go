package handler

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/dernounimk/volty/internal/domain/cart"
	"github.com/dernounimk/volty/internal/domain/coupon"
	"github.com/dernounimk/volty/internal/domain/delivery"
	"github.com/dernounimk/volty/internal/domain/order"
	"github.com/dernounimk/volty/internal/domain/product"
	"github.com/dernounimk/volty/internal/domain/ref"
)

// maxBodySize bounds request bodies.
const maxBodySize = 1 << 20

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// decodeBody reads a JSON object from r and calls fn for every field.
// Unknown fields are skipped.
func decodeBody(r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	data, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodySize))
	if err != nil {
		return badRequest("read body: %s", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return badRequest("request body is empty")
	}
	if err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		return fn(d, string(key))
	}); err != nil {
		var ae *apiError
		if errors.As(err, &ae) {
			return ae
		}
		return badRequest("invalid json: %s", err)
	}
	return nil
}

// decodeDecimal accepts a JSON number or a numeric string.
func decodeDecimal(d *jx.Decoder, field string) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		raw = n.String()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		raw = s
	default:
		return decimal.Zero, badRequest("%s: must be a number", field)
	}
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, badRequest("%s: must be a number", field)
	}
	return v, nil
}

func decodeStrings(d *jx.Decoder) ([]string, error) {
	var out []string
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		out = append(out, s)
		return err
	})
	return out, err
}

func encodeMoney(e *jx.Encoder, name string, v decimal.Decimal) {
	e.Field(name, func(e *jx.Encoder) { e.Float64(v.InexactFloat64()) })
}

func encodeTime(e *jx.Encoder, name string, t time.Time) {
	e.Field(name, func(e *jx.Encoder) { e.Str(t.UTC().Format(time.RFC3339)) })
}

func encodeStr(e *jx.Encoder, name, v string) {
	e.Field(name, func(e *jx.Encoder) { e.Str(v) })
}

func encodeOptStr(e *jx.Encoder, name, v string) {
	if v != "" {
		encodeStr(e, name, v)
	}
}

func encodeStrings(e *jx.Encoder, name string, vs []string) {
	e.Field(name, func(e *jx.Encoder) {
		e.ArrStart()
		for _, v := range vs {
			e.Str(v)
		}
		e.ArrEnd()
	})
}

// imageURL prefixes relative image paths with base.
func imageURL(base, path string) string {
	if base == "" || strings.Contains(path, "://") {
		return path
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
}

func (h *Handler) encodeProduct(e *jx.Encoder, p product.Product) {
	e.Obj(func(e *jx.Encoder) {
		encodeStr(e, "id", p.ID)
		encodeStr(e, "name", p.Name)
		encodeStr(e, "description", p.Description)
		encodeMoney(e, "price", p.UnitPrice())
		encodeMoney(e, "priceBeforeDiscount", p.PriceBeforeDiscount)
		if p.PriceAfterDiscount.Valid {
			encodeMoney(e, "priceAfterDiscount", p.PriceAfterDiscount.Decimal)
		}
		if !p.Category.IsZero() {
			e.Field("category", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					encodeStr(e, "id", p.Category.ID())
					if c, ok := p.Category.Get(); ok {
						encodeStr(e, "name", c.Name)
					}
				})
			})
		}
		e.Field("colors", func(e *jx.Encoder) {
			e.ArrStart()
			for _, c := range p.Colors {
				e.Obj(func(e *jx.Encoder) {
					encodeStr(e, "id", c.ID)
					encodeStr(e, "name", c.Name)
					encodeStr(e, "hex", c.Hex)
				})
			}
			e.ArrEnd()
		})
		encodeStrings(e, "sizes", p.Sizes)
		images := make([]string, len(p.Images))
		for i, img := range p.Images {
			images[i] = imageURL(h.imageBaseURL, img)
		}
		encodeStrings(e, "images", images)
	})
}

func encodeSetting(e *jx.Encoder, s delivery.Setting) {
	e.Obj(func(e *jx.Encoder) {
		encodeStr(e, "state", s.State)
		encodeMoney(e, "officePrice", s.OfficePrice)
		encodeMoney(e, "homePrice", s.HomePrice)
		e.Field("deliveryDays", func(e *jx.Encoder) { e.Int(s.DeliveryDays) })
	})
}

func encodeDeliveryQuote(e *jx.Encoder, q delivery.Quote) {
	e.Obj(func(e *jx.Encoder) {
		encodeStr(e, "state", q.State)
		encodeStr(e, "place", string(q.Place))
		encodeMoney(e, "price", q.Price)
		e.Field("deliveryDays", func(e *jx.Encoder) { e.Int(q.Days) })
		e.Field("missing", func(e *jx.Encoder) { e.Bool(q.Missing) })
	})
}

func encodeCoupon(e *jx.Encoder, c coupon.Coupon) {
	e.Obj(func(e *jx.Encoder) {
		encodeStr(e, "id", c.ID)
		encodeStr(e, "code", c.Code)
		encodeMoney(e, "discountAmount", c.DiscountAmount)
		e.Field("isActive", func(e *jx.Encoder) { e.Bool(c.IsActive) })
		encodeTime(e, "createdAt", c.CreatedAt)
	})
}

func encodeKey(e *jx.Encoder, k cart.Key) {
	encodeStr(e, "productId", k.ProductID)
	encodeOptStr(e, "color", k.Color)
	encodeOptStr(e, "size", k.Size)
}

// encodeColorDetails writes the name and hex of a resolved color.
func encodeColorDetails(e *jx.Encoder, c ref.Ref[product.Color]) {
	if v, ok := c.Get(); ok {
		encodeOptStr(e, "colorName", v.Name)
		encodeOptStr(e, "colorHex", v.Hex)
	}
}

func encodeQuote(e *jx.Encoder, q *cart.Quote) {
	e.Obj(func(e *jx.Encoder) {
		if q.Session.ID != "" {
			encodeStr(e, "cartId", q.Session.ID)
		}
		e.Field("items", func(e *jx.Encoder) {
			e.ArrStart()
			for _, l := range q.Lines {
				e.Obj(func(e *jx.Encoder) {
					encodeKey(e, l.Key)
					encodeColorDetails(e, l.Color)
					encodeStr(e, "name", l.Name)
					e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
					encodeMoney(e, "unitPrice", l.UnitPrice)
					encodeMoney(e, "amount", l.Amount)
				})
			}
			e.ArrEnd()
		})
		if q.Coupon != nil {
			e.Field("coupon", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					encodeStr(e, "code", q.Coupon.Code)
					encodeMoney(e, "discountAmount", q.Coupon.DiscountAmount)
				})
			})
		}
		if q.CouponRejected != nil {
			msg := "coupon is no longer available"
			if ae := mapCouponError(q.CouponRejected); ae != nil {
				msg = ae.Message
			}
			encodeStr(e, "couponRejected", msg)
		}
		if q.Delivery != nil {
			e.Field("delivery", func(e *jx.Encoder) { encodeDeliveryQuote(e, *q.Delivery) })
		}
		b := q.Breakdown
		encodeMoney(e, "subtotal", b.Subtotal)
		encodeMoney(e, "discount", b.Subtotal.Sub(b.DiscountedSubtotal))
		encodeMoney(e, "discountedSubtotal", b.DiscountedSubtotal)
		encodeMoney(e, "deliveryPrice", b.Delivery)
		encodeMoney(e, "total", b.Total)
		if len(q.Pruned) > 0 {
			e.Field("pruned", func(e *jx.Encoder) {
				e.ArrStart()
				for _, k := range q.Pruned {
					e.Obj(func(e *jx.Encoder) { encodeKey(e, k) })
				}
				e.ArrEnd()
			})
		}
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		encodeStr(e, "id", o.ID)
		encodeStr(e, "orderNumber", o.OrderNumber)
		encodeStr(e, "fullName", o.FullName)
		encodeStr(e, "phoneNumber", o.PhoneNumber)
		encodeStr(e, "wilaya", o.Wilaya)
		encodeStr(e, "baladia", o.Baladia)
		encodeStr(e, "deliveryPlace", string(o.DeliveryPlace))
		e.Field("items", func(e *jx.Encoder) {
			e.ArrStart()
			for _, it := range o.Items {
				e.Obj(func(e *jx.Encoder) {
					encodeStr(e, "productId", it.ProductID)
					encodeStr(e, "name", it.Name)
					e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
					encodeMoney(e, "price", it.Price)
					encodeMoney(e, "amount", it.Amount())
					encodeOptStr(e, "selectedColor", it.SelectedColor.ID())
					encodeColorDetails(e, it.SelectedColor)
					encodeOptStr(e, "selectedSize", it.SelectedSize)
				})
			}
			e.ArrEnd()
		})
		encodeMoney(e, "subtotal", o.Subtotal)
		encodeMoney(e, "discount", o.Discount)
		encodeMoney(e, "deliveryPrice", o.DeliveryPrice)
		encodeMoney(e, "totalAmount", o.TotalAmount)
		encodeOptStr(e, "couponCode", o.CouponCode)
		encodeStr(e, "status", string(o.Status()))
		e.Field("isConfirmed", func(e *jx.Encoder) { e.Bool(o.IsConfirmed) })
		if o.ConfirmedAt != nil {
			encodeTime(e, "confirmedAt", *o.ConfirmedAt)
		}
		encodeTime(e, "createdAt", o.CreatedAt)
	})
}

func encodeOrders(e *jx.Encoder, orders []order.Order) {
	e.ArrStart()
	for i := range orders {
		encodeOrder(e, &orders[i])
	}
	e.ArrEnd()
}

func encodeStats(e *jx.Encoder, st *order.Stats) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("total", func(e *jx.Encoder) { e.Int(st.Total) })
		e.Field("confirmed", func(e *jx.Encoder) { e.Int(st.Confirmed) })
		e.Field("pending", func(e *jx.Encoder) { e.Int(st.Pending) })
		encodeMoney(e, "revenue", st.Revenue)
		e.Field("byWilaya", func(e *jx.Encoder) {
			e.ArrStart()
			for _, w := range st.ByWilaya {
				e.Obj(func(e *jx.Encoder) {
					encodeStr(e, "wilaya", w.Wilaya)
					e.Field("orders", func(e *jx.Encoder) { e.Int(w.Orders) })
					encodeMoney(e, "revenue", w.Revenue)
				})
			}
			e.ArrEnd()
		})
	})
}
