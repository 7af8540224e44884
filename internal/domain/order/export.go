package order

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/tealeg/xlsx"
)

const exportTimeLayout = "2006-01-02 15:04:05"

var exportHeaders = []string{
	"Order Number", "Created At", "Full Name", "Phone Number", "Wilaya", "Baladia",
	"Delivery Place", "Items", "Subtotal", "Discount", "Delivery Price", "Total",
	"Coupon", "Status", "Confirmed At",
}

// Export writes every order matching f to w as an xlsx workbook. Limit and
// Offset of f are ignored.
func (s *Service) Export(ctx context.Context, f Filter, w io.Writer) error {
	ctx, span := s.tracer.Start(ctx, "order.Export")
	defer span.End()

	f.Limit, f.Offset = maxListLimit, 0
	f, err := f.Normalize()
	if err != nil {
		return err
	}

	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Orders")
	if err != nil {
		return errors.Wrap(err, "add sheet")
	}
	header := sheet.AddRow()
	for _, h := range exportHeaders {
		header.AddCell().SetString(h)
	}

	for {
		page, err := s.orders.List(ctx, f)
		if err != nil {
			return errors.Wrap(err, "list orders")
		}
		for i := range page.Orders {
			writeOrderRow(sheet.AddRow(), &page.Orders[i])
		}
		f.Offset += len(page.Orders)
		if len(page.Orders) < f.Limit || f.Offset >= page.Total {
			break
		}
	}

	if err := file.Write(w); err != nil {
		return errors.Wrap(err, "write workbook")
	}
	return nil
}

func writeOrderRow(row *xlsx.Row, o *Order) {
	items := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, itemLabel(it)+" x"+strconv.Itoa(it.Quantity))
	}
	confirmedAt := ""
	if o.ConfirmedAt != nil {
		confirmedAt = o.ConfirmedAt.Format(exportTimeLayout)
	}

	row.AddCell().SetString(o.OrderNumber)
	row.AddCell().SetString(o.CreatedAt.Format(exportTimeLayout))
	row.AddCell().SetString(o.FullName)
	row.AddCell().SetString(o.PhoneNumber)
	row.AddCell().SetString(o.Wilaya)
	row.AddCell().SetString(o.Baladia)
	row.AddCell().SetString(string(o.DeliveryPlace))
	row.AddCell().SetString(strings.Join(items, ", "))
	row.AddCell().SetFloat(o.Subtotal.InexactFloat64())
	row.AddCell().SetFloat(o.Discount.InexactFloat64())
	row.AddCell().SetFloat(o.DeliveryPrice.InexactFloat64())
	row.AddCell().SetFloat(o.TotalAmount.InexactFloat64())
	row.AddCell().SetString(o.CouponCode)
	row.AddCell().SetString(string(o.Status()))
	row.AddCell().SetString(confirmedAt)
}

// itemLabel is the item name followed by its variant, e.g. "Case (Black, M)".
func itemLabel(it Item) string {
	var variant []string
	if c, ok := it.SelectedColor.Get(); ok {
		variant = append(variant, c.Name)
	} else if id := it.SelectedColor.ID(); id != "" {
		variant = append(variant, id)
	}
	if it.SelectedSize != "" {
		variant = append(variant, it.SelectedSize)
	}
	if len(variant) == 0 {
		return it.Name
	}
	return it.Name + " (" + strings.Join(variant, ", ") + ")"
}
