package order

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dernounimk/volty/internal/domain/coupon"
	"github.com/dernounimk/volty/internal/domain/delivery"
	"github.com/dernounimk/volty/internal/domain/pricing"
	"github.com/dernounimk/volty/internal/domain/product"
)

// --- Mock implementations ---

type mockProductRepo struct {
	mu     sync.Mutex
	byID   map[string]product.Product
	getErr error
}

func newProductRepo(products ...product.Product) *mockProductRepo {
	m := &mockProductRepo{byID: make(map[string]product.Product, len(products))}
	for _, p := range products {
		m.byID[p.ID] = p
	}
	return m
}

func (m *mockProductRepo) setPrice(id string, price decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.byID[id]
	p.PriceBeforeDiscount = price
	p.PriceAfterDiscount = decimal.NullDecimal{}
	m.byID[id] = p
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) {
	return nil, nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockProductRepo) GetCategory(_ context.Context, id string) (product.Category, error) {
	return product.Category{}, product.ErrCategoryNotFound
}

type mockCoupons struct {
	mu     sync.Mutex
	byCode map[string]*coupon.Coupon
}

func newCoupons(coupons ...coupon.Coupon) *mockCoupons {
	m := &mockCoupons{byCode: make(map[string]*coupon.Coupon)}
	for i := range coupons {
		m.byCode[coupons[i].Code] = &coupons[i]
	}
	return m
}

func (m *mockCoupons) setActive(code string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byCode[code].IsActive = active
}

func (m *mockCoupons) Resolve(_ context.Context, code string) (*coupon.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byCode[code]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	if !c.IsActive {
		return nil, coupon.ErrInactive
	}
	cp := *c
	return &cp, nil
}

type mockDelivery struct {
	settings map[string]delivery.Setting
}

func (m *mockDelivery) Resolve(_ context.Context, state string, place delivery.Place) (delivery.Quote, error) {
	s, ok := m.settings[state]
	if !ok {
		return delivery.Quote{State: state, Place: place, Price: decimal.Zero, Missing: true}, nil
	}
	return delivery.Quote{State: state, Place: place, Price: s.Price(place), Days: s.DeliveryDays}, nil
}

type mockOrderRepo struct {
	mu        sync.Mutex
	byID      map[string]*Order
	numbers   map[string]struct{}
	createErr error
}

func newOrderRepo(orders ...Order) *mockOrderRepo {
	m := &mockOrderRepo{
		byID:    make(map[string]*Order),
		numbers: make(map[string]struct{}),
	}
	for i := range orders {
		m.byID[orders[i].ID] = &orders[i]
		m.numbers[orders[i].OrderNumber] = struct{}{}
	}
	return m
}

func cloneOrder(o *Order) Order {
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	return cp
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.numbers[o.OrderNumber]; ok {
		return ErrDuplicateOrderNumber
	}
	cp := cloneOrder(o)
	m.byID[o.ID] = &cp
	m.numbers[o.OrderNumber] = struct{}{}
	return nil
}

func (m *mockOrderRepo) Get(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := cloneOrder(o)
	return &cp, nil
}

func (m *mockOrderRepo) GetByIDs(_ context.Context, ids []string) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, id := range ids {
		if o, ok := m.byID[id]; ok {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}

func (m *mockOrderRepo) List(_ context.Context, f Filter) (*Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []Order
	for _, o := range m.byID {
		if f.Status != StatusAll && o.Status() != f.Status {
			continue
		}
		if f.Wilaya != "" && o.Wilaya != f.Wilaya {
			continue
		}
		if f.Search != "" && !strings.Contains(o.FullName+o.PhoneNumber+o.OrderNumber, f.Search) {
			continue
		}
		all = append(all, cloneOrder(o))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].OrderNumber < all[j].OrderNumber })
	page := &Page{Total: len(all)}
	end := min(f.Offset+f.Limit, len(all))
	if f.Offset < len(all) {
		page.Orders = all[f.Offset:end]
	}
	return page, nil
}

func (m *mockOrderRepo) Update(_ context.Context, id string, p Patch) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if p.FullName != nil {
		o.FullName = *p.FullName
	}
	if p.PhoneNumber != nil {
		o.PhoneNumber = *p.PhoneNumber
	}
	if p.Wilaya != nil {
		o.Wilaya = *p.Wilaya
	}
	if p.Baladia != nil {
		o.Baladia = *p.Baladia
	}
	cp := cloneOrder(o)
	return &cp, nil
}

func (m *mockOrderRepo) Delete(_ context.Context, ids []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := m.byID[id]; ok {
			delete(m.byID, id)
			n++
		}
	}
	return n, nil
}

func (m *mockOrderRepo) SetConfirmation(_ context.Context, ids []string, confirmed bool, at *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		o, ok := m.byID[id]
		if !ok {
			return ErrNotFound
		}
		if o.IsConfirmed == confirmed {
			return ErrMixedStatus
		}
	}
	for _, id := range ids {
		m.byID[id].IsConfirmed = confirmed
		m.byID[id].ConfirmedAt = at
	}
	return nil
}

func (m *mockOrderRepo) Stats(_ context.Context) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := &Stats{Revenue: decimal.Zero}
	for _, o := range m.byID {
		st.Total++
		if o.IsConfirmed {
			st.Confirmed++
			st.Revenue = st.Revenue.Add(o.TotalAmount)
		} else {
			st.Pending++
		}
	}
	return st, nil
}

type mockPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (m *mockPublisher) Publish(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return m.err
}

func (m *mockPublisher) types() []EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EventType, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}

// --- Helpers ---

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestProduct(id, name string, price int64) product.Product {
	return product.Product{
		ID:                  id,
		Name:                name,
		PriceBeforeDiscount: decimal.NewFromInt(price),
		Colors: []product.Color{
			{ID: "black", Name: "Black", Hex: "#000000"},
			{ID: "white", Name: "White", Hex: "#ffffff"},
		},
		Sizes: []string{"M", "L"},
	}
}

type fixture struct {
	products  *mockProductRepo
	coupons   *mockCoupons
	delivery  *mockDelivery
	orders    *mockOrderRepo
	publisher *mockPublisher
	svc       *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		products: newProductRepo(
			newTestProduct("p1", "Phone case", 1000),
			newTestProduct("p2", "Charger", 500),
		),
		coupons: newCoupons(coupon.Coupon{
			ID: "c1", Code: "CODE1", DiscountAmount: decimal.NewFromInt(300), IsActive: true,
		}),
		delivery: &mockDelivery{settings: map[string]delivery.Setting{
			"16": {
				State:        "16",
				OfficePrice:  decimal.NewFromInt(400),
				HomePrice:    decimal.NewFromInt(600),
				DeliveryDays: 2,
			},
		}},
		orders:    newOrderRepo(),
		publisher: &mockPublisher{},
	}
	svc, err := NewService(f.products, f.coupons, f.delivery, f.orders, WithPublisher(f.publisher))
	require.NoError(t, err)
	svc.now = func() time.Time { return testNow }
	f.svc = svc
	return f
}

func validRequest() PlaceOrderRequest {
	return PlaceOrderRequest{
		FullName:      "Amine Benali",
		PhoneNumber:   "0555123456",
		Wilaya:        "16",
		Baladia:       "Bab Ezzouar",
		DeliveryPlace: delivery.PlaceOffice,
		Items: []ItemRequest{
			{ProductID: "p1", Quantity: 2, SelectedColor: "black"},
			{ProductID: "p2", Quantity: 1},
		},
	}
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

// --- PlaceOrder ---

func TestPlaceOrder_EmptyItems(t *testing.T) {
	f := newFixture(t)
	req := validRequest()
	req.Items = nil

	_, err := f.svc.PlaceOrder(context.Background(), req)
	require.ErrorIs(t, err, ErrEmptyItems)
}

func TestPlaceOrder_Validation(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(r *PlaceOrderRequest)
		wantField string
	}{
		{name: "empty full name", mutate: func(r *PlaceOrderRequest) { r.FullName = "   " }, wantField: "fullName"},
		{name: "phone too short", mutate: func(r *PlaceOrderRequest) { r.PhoneNumber = "055512345" }, wantField: "phoneNumber"},
		{name: "landline number", mutate: func(r *PlaceOrderRequest) { r.PhoneNumber = "0211234567" }, wantField: "phoneNumber"},
		{name: "missing phone", mutate: func(r *PlaceOrderRequest) { r.PhoneNumber = "" }, wantField: "phoneNumber"},
		{name: "missing wilaya", mutate: func(r *PlaceOrderRequest) { r.Wilaya = "" }, wantField: "wilaya"},
		{name: "missing baladia", mutate: func(r *PlaceOrderRequest) { r.Baladia = "" }, wantField: "baladia"},
		{name: "unknown place", mutate: func(r *PlaceOrderRequest) { r.DeliveryPlace = "moon" }, wantField: "deliveryPlace"},
		{name: "zero quantity", mutate: func(r *PlaceOrderRequest) { r.Items[1].Quantity = 0 }, wantField: "items[1].quantity"},
		{name: "missing product id", mutate: func(r *PlaceOrderRequest) { r.Items[0].ProductID = "" }, wantField: "items[0].productId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := validRequest()
			tt.mutate(&req)

			_, err := f.svc.PlaceOrder(context.Background(), req)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
			assert.NotEmpty(t, verr.Message)
			assert.Empty(t, f.orders.byID)
		})
	}
}

func TestPlaceOrder_EndToEnd(t *testing.T) {
	tests := []struct {
		name         string
		place        delivery.Place
		coupon       string
		wantSubtotal string
		wantDiscount string
		wantDelivery string
		wantTotal    string
	}{
		{name: "office with coupon", place: delivery.PlaceOffice, coupon: "CODE1",
			wantSubtotal: "2500", wantDiscount: "300", wantDelivery: "400", wantTotal: "2600"},
		{name: "home with coupon", place: delivery.PlaceHome, coupon: "CODE1",
			wantSubtotal: "2500", wantDiscount: "300", wantDelivery: "600", wantTotal: "2800"},
		{name: "office without coupon", place: delivery.PlaceOffice,
			wantSubtotal: "2500", wantDiscount: "0", wantDelivery: "400", wantTotal: "2900"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := validRequest()
			req.DeliveryPlace = tt.place
			req.CouponCode = tt.coupon

			o, err := f.svc.PlaceOrder(context.Background(), req)
			require.NoError(t, err)

			requireDecimal(t, tt.wantSubtotal, o.Subtotal)
			requireDecimal(t, tt.wantDiscount, o.Discount)
			requireDecimal(t, tt.wantDelivery, o.DeliveryPrice)
			requireDecimal(t, tt.wantTotal, o.TotalAmount)
			assert.Equal(t, tt.coupon, o.CouponCode)
			assert.Len(t, o.OrderNumber, defaultNumberDigits)
			assert.False(t, o.IsConfirmed)
			assert.Nil(t, o.ConfirmedAt)
			assert.Equal(t, testNow, o.CreatedAt)

			require.Len(t, o.Items, 2)
			assert.Equal(t, "Phone case", o.Items[0].Name)
			assert.Equal(t, "black", o.Items[0].SelectedColor.ID())
			color, ok := o.Items[0].SelectedColor.Get()
			require.True(t, ok)
			assert.Equal(t, "Black", color.Name)
			assert.True(t, o.Items[1].SelectedColor.IsZero())
			requireDecimal(t, "1000", o.Items[0].Price)

			stored, err := f.orders.Get(context.Background(), o.ID)
			require.NoError(t, err)
			requireDecimal(t, tt.wantTotal, stored.TotalAmount)
		})
	}
}

func TestPlaceOrder_UsesDiscountedUnitPrice(t *testing.T) {
	f := newFixture(t)
	p := newTestProduct("p3", "Earbuds", 2000)
	p.PriceAfterDiscount = decimal.NewNullDecimal(decimal.NewFromInt(1500))
	f.products.byID["p3"] = p

	req := validRequest()
	req.Items = []ItemRequest{{ProductID: "p3", Quantity: 1}}

	o, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	requireDecimal(t, "1500", o.Items[0].Price)
	requireDecimal(t, "1900", o.TotalAmount)
}

func TestPlaceOrder_MergesDuplicateLines(t *testing.T) {
	f := newFixture(t)
	req := validRequest()
	req.Items = []ItemRequest{
		{ProductID: "p1", Quantity: 1, SelectedColor: "black", SelectedSize: "M"},
		{ProductID: "p1", Quantity: 2, SelectedColor: "black", SelectedSize: "M"},
		{ProductID: "p1", Quantity: 1, SelectedColor: "white", SelectedSize: "M"},
	}

	o, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, o.Items, 2)
	assert.Equal(t, 3, o.Items[0].Quantity)
	assert.Equal(t, "white", o.Items[1].SelectedColor.ID())
	requireDecimal(t, "4000", o.Subtotal)
}

func TestPlaceOrder_QuantityBound(t *testing.T) {
	tests := []struct {
		name      string
		items     []ItemRequest
		wantField string
		wantQty   int
	}{
		{
			name:    "merged up to the limit",
			items:   []ItemRequest{{ProductID: "p1", Quantity: pricing.MaxQuantity - 1}, {ProductID: "p1", Quantity: 1}},
			wantQty: pricing.MaxQuantity,
		},
		{
			name:      "single line above the limit",
			items:     []ItemRequest{{ProductID: "p1", Quantity: pricing.MaxQuantity + 1}},
			wantField: "items[0].quantity",
		},
		{
			name:      "int overflow",
			items:     []ItemRequest{{ProductID: "p1", Quantity: math.MaxInt}, {ProductID: "p1", Quantity: 2}},
			wantField: "items[0].quantity",
		},
		{
			name: "merged above the limit",
			items: []ItemRequest{
				{ProductID: "p1", Quantity: pricing.MaxQuantity},
				{ProductID: "p2", Quantity: 1},
				{ProductID: "p1", Quantity: 1},
			},
			wantField: "items[2].quantity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := validRequest()
			req.Items = tt.items

			o, err := f.svc.PlaceOrder(context.Background(), req)
			if tt.wantField == "" {
				require.NoError(t, err)
				require.Len(t, o.Items, 1)
				assert.Equal(t, tt.wantQty, o.Items[0].Quantity)
				assert.True(t, o.TotalAmount.IsPositive())
				return
			}

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
			assert.Equal(t, "must be at most 999", verr.Message)
			assert.Empty(t, f.orders.byID)
		})
	}
}

func TestPlaceOrder_Variants(t *testing.T) {
	tests := []struct {
		name      string
		item      ItemRequest
		wantField string
	}{
		{name: "offered variant", item: ItemRequest{ProductID: "p2", Quantity: 1, SelectedColor: "white", SelectedSize: "L"}},
		{name: "unknown color", item: ItemRequest{ProductID: "p2", Quantity: 1, SelectedColor: "red"}, wantField: "items[1].selectedColor"},
		{name: "unknown size", item: ItemRequest{ProductID: "p2", Quantity: 1, SelectedSize: "XXL"}, wantField: "items[1].selectedSize"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := validRequest()
			req.Items[1] = tt.item

			o, err := f.svc.PlaceOrder(context.Background(), req)
			if tt.wantField == "" {
				require.NoError(t, err)
				color, ok := o.Items[1].SelectedColor.Get()
				require.True(t, ok)
				assert.Equal(t, "#ffffff", color.Hex)
				assert.Equal(t, "L", o.Items[1].SelectedSize)
				return
			}

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
			assert.Equal(t, "is not offered for this product", verr.Message)
			assert.Empty(t, f.orders.byID)
		})
	}
}

func TestPlaceOrder_DropsUnknownProducts(t *testing.T) {
	f := newFixture(t)
	req := validRequest()
	req.Items = append(req.Items, ItemRequest{ProductID: "gone", Quantity: 5})

	o, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, o.Items, 2)
	requireDecimal(t, "2500", o.Subtotal)
}

func TestPlaceOrder_AllProductsUnknown(t *testing.T) {
	f := newFixture(t)
	req := validRequest()
	req.Items = []ItemRequest{{ProductID: "gone", Quantity: 1}}

	_, err := f.svc.PlaceOrder(context.Background(), req)
	require.ErrorIs(t, err, ErrEmptyItems)
	assert.Empty(t, f.orders.byID)
}

func TestPlaceOrder_CouponFailures(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		prepare func(f *fixture)
		wantErr error
	}{
		{name: "unknown code", code: "NOPE", wantErr: coupon.ErrNotFound},
		{
			name:    "deactivated before submission",
			code:    "CODE1",
			prepare: func(f *fixture) { f.coupons.setActive("CODE1", false) },
			wantErr: coupon.ErrInactive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.prepare != nil {
				tt.prepare(f)
			}
			req := validRequest()
			req.CouponCode = tt.code

			o, err := f.svc.PlaceOrder(context.Background(), req)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, o)
			assert.Empty(t, f.orders.byID)
			assert.Empty(t, f.publisher.types())
		})
	}
}

func TestPlaceOrder_CouponRevalidatedOnEachSubmission(t *testing.T) {
	f := newFixture(t)
	req := validRequest()
	req.CouponCode = "CODE1"

	_, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	f.coupons.setActive("CODE1", false)

	_, err = f.svc.PlaceOrder(context.Background(), req)
	require.ErrorIs(t, err, coupon.ErrInactive)
	assert.Len(t, f.orders.byID, 1)
}

func TestPlaceOrder_DiscountLargerThanSubtotal(t *testing.T) {
	f := newFixture(t)
	f.coupons.byCode["BIG"] = &coupon.Coupon{ID: "c2", Code: "BIG", DiscountAmount: decimal.NewFromInt(800), IsActive: true}

	req := validRequest()
	req.Items = []ItemRequest{{ProductID: "p2", Quantity: 1}}
	req.CouponCode = "BIG"

	o, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	requireDecimal(t, "500", o.Subtotal)
	requireDecimal(t, "500", o.Discount)
	requireDecimal(t, "400", o.TotalAmount)
}

func TestPlaceOrder_MissingDeliverySetting(t *testing.T) {
	f := newFixture(t)
	req := validRequest()
	req.Wilaya = "58"

	o, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	requireDecimal(t, "0", o.DeliveryPrice)
	requireDecimal(t, "2500", o.TotalAmount)
}

func TestPlaceOrder_SnapshotSurvivesPriceChange(t *testing.T) {
	f := newFixture(t)
	req := validRequest()
	req.Items = []ItemRequest{{ProductID: "p1", Quantity: 1}}

	first, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	f.products.setPrice("p1", decimal.NewFromInt(1200))

	stored, err := f.svc.Get(context.Background(), first.ID)
	require.NoError(t, err)
	requireDecimal(t, "1000", stored.Items[0].Price)
	requireDecimal(t, "1400", stored.TotalAmount)

	second, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	requireDecimal(t, "1200", second.Items[0].Price)
	requireDecimal(t, "1600", second.TotalAmount)
}

func TestPlaceOrder_RetriesOrderNumber(t *testing.T) {
	f := newFixture(t)
	f.orders.numbers["111111"] = struct{}{}
	numbers := []string{"111111", "111111", "222222"}
	f.svc.newNumber = func(int) (string, error) {
		n := numbers[0]
		numbers = numbers[1:]
		return n, nil
	}

	o, err := f.svc.PlaceOrder(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, "222222", o.OrderNumber)
}

func TestPlaceOrder_OrderNumberExhausted(t *testing.T) {
	f := newFixture(t)
	f.orders.numbers["111111"] = struct{}{}
	f.svc.newNumber = func(int) (string, error) { return "111111", nil }

	_, err := f.svc.PlaceOrder(context.Background(), validRequest())
	require.ErrorIs(t, err, ErrDuplicateOrderNumber)
}

func TestPlaceOrder_RepositoryErrors(t *testing.T) {
	f := newFixture(t)
	f.products.getErr = errors.New("catalog down")

	_, err := f.svc.PlaceOrder(context.Background(), validRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get products")

	f = newFixture(t)
	f.orders.createErr = errors.New("disk full")

	_, err = f.svc.PlaceOrder(context.Background(), validRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
}

func TestPlaceOrder_PublishFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker unavailable")

	o, err := f.svc.PlaceOrder(context.Background(), validRequest())
	require.NoError(t, err)
	assert.NotNil(t, o)
	assert.Equal(t, []EventType{EventCreated}, f.publisher.types())
}

func TestPlaceOrder_Idempotent(t *testing.T) {
	f := newFixture(t)
	req := validRequest()
	req.CouponCode = "CODE1"

	a, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	b, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, a.TotalAmount.String(), b.TotalAmount.String())
	assert.Equal(t, a.Subtotal.String(), b.Subtotal.String())
	assert.Equal(t, a.Discount.String(), b.Discount.String())
}

// --- Confirmation ---

func pendingOrder(id string) Order {
	return Order{
		ID:          id,
		OrderNumber: "N" + id,
		FullName:    "Customer " + id,
		PhoneNumber: "0661000000",
		Wilaya:      "16",
		TotalAmount: decimal.NewFromInt(1000),
		CreatedAt:   testNow.Add(-time.Hour),
	}
}

func confirmedOrder(id string) Order {
	o := pendingOrder(id)
	at := testNow.Add(-time.Minute)
	o.IsConfirmed = true
	o.ConfirmedAt = &at
	return o
}

func TestToggleConfirmation(t *testing.T) {
	f := newFixture(t)
	f.orders = newOrderRepo(pendingOrder("a"), pendingOrder("b"), confirmedOrder("c"))
	f.svc.orders = f.orders
	ctx := context.Background()

	got, err := f.svc.ToggleConfirmation(ctx, []string{"a", "b", "a"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, o := range got {
		assert.True(t, o.IsConfirmed)
		require.NotNil(t, o.ConfirmedAt)
		assert.Equal(t, testNow, *o.ConfirmedAt)
	}

	stored, err := f.svc.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, stored.IsConfirmed)

	got, err = f.svc.ToggleConfirmation(ctx, []string{"a", "c"})
	require.NoError(t, err)
	for _, o := range got {
		assert.False(t, o.IsConfirmed)
		assert.Nil(t, o.ConfirmedAt)
	}

	stored, err = f.svc.Get(ctx, "c")
	require.NoError(t, err)
	assert.False(t, stored.IsConfirmed)
	assert.Nil(t, stored.ConfirmedAt)

	assert.Equal(t, []EventType{
		EventConfirmed, EventConfirmed, EventUnconfirmed, EventUnconfirmed,
	}, f.publisher.types())
}

func TestToggleConfirmation_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		ids     []string
		wantErr error
	}{
		{name: "mixed batch", ids: []string{"a", "c"}, wantErr: ErrMixedStatus},
		{name: "unknown id", ids: []string{"a", "zzz"}, wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.orders = newOrderRepo(pendingOrder("a"), confirmedOrder("c"))
			f.svc.orders = f.orders

			_, err := f.svc.ToggleConfirmation(context.Background(), tt.ids)
			require.ErrorIs(t, err, tt.wantErr)

			a, err := f.svc.Get(context.Background(), "a")
			require.NoError(t, err)
			assert.False(t, a.IsConfirmed, "nothing is written on rejection")
		})
	}

	t.Run("empty batch", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.ToggleConfirmation(context.Background(), []string{" "})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "ids", verr.Field)
	})
}

// racingOrderRepo deletes an order right after it has been loaded.
type racingOrderRepo struct {
	*mockOrderRepo
	deleteID string
}

func (r *racingOrderRepo) GetByIDs(ctx context.Context, ids []string) ([]Order, error) {
	orders, err := r.mockOrderRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	_, err = r.mockOrderRepo.Delete(ctx, []string{r.deleteID})
	return orders, err
}

func TestToggleConfirmation_DeletedDuringToggle(t *testing.T) {
	f := newFixture(t)
	f.orders = newOrderRepo(pendingOrder("a"), pendingOrder("b"))
	f.svc.orders = &racingOrderRepo{mockOrderRepo: f.orders, deleteID: "b"}

	_, err := f.svc.ToggleConfirmation(context.Background(), []string{"a", "b"})
	require.ErrorIs(t, err, ErrNotFound)
	require.NotErrorIs(t, err, ErrMixedStatus)

	a, err := f.orders.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.False(t, a.IsConfirmed)
	assert.Empty(t, f.publisher.types())
}

func TestToggleConfirmation_DoesNotTouchMoney(t *testing.T) {
	f := newFixture(t)
	o, err := f.svc.PlaceOrder(context.Background(), validRequest())
	require.NoError(t, err)

	_, err = f.svc.ToggleConfirmation(context.Background(), []string{o.ID})
	require.NoError(t, err)

	stored, err := f.svc.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.TotalAmount.String(), stored.TotalAmount.String())
	assert.Equal(t, o.Items, stored.Items)
}

// --- Admin ---

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	f.orders = newOrderRepo(pendingOrder("a"))
	f.svc.orders = f.orders
	ctx := context.Background()

	name := "  New Name "
	o, err := f.svc.Update(ctx, "a", Patch{FullName: &name})
	require.NoError(t, err)
	assert.Equal(t, "New Name", o.FullName)
	requireDecimal(t, "1000", o.TotalAmount)

	bad := "12345"
	_, err = f.svc.Update(ctx, "a", Patch{PhoneNumber: &bad})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "phoneNumber", verr.Field)

	empty := ""
	_, err = f.svc.Update(ctx, "a", Patch{Baladia: &empty})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "baladia", verr.Field)

	_, err = f.svc.Update(ctx, "missing", Patch{FullName: &name})
	require.ErrorIs(t, err, ErrNotFound)

	o, err = f.svc.Update(ctx, "a", Patch{})
	require.NoError(t, err)
	assert.Equal(t, "New Name", o.FullName)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	f.orders = newOrderRepo(pendingOrder("a"), pendingOrder("b"))
	f.svc.orders = f.orders
	ctx := context.Background()

	n, err := f.svc.Delete(ctx, []string{"a", "a", "x"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.svc.Delete(ctx, []string{"a"})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Delete(ctx, nil)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestListAndStats(t *testing.T) {
	f := newFixture(t)
	f.orders = newOrderRepo(pendingOrder("a"), pendingOrder("b"), confirmedOrder("c"))
	f.svc.orders = f.orders
	ctx := context.Background()

	page, err := f.svc.List(ctx, Filter{Status: StatusPending})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	_, err = f.svc.List(ctx, Filter{Status: "shipped"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	st, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 1, st.Confirmed)
	assert.Equal(t, 2, st.Pending)
	requireDecimal(t, "1000", st.Revenue)
}

func TestFilter_Normalize(t *testing.T) {
	f, err := Filter{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, StatusAll, f.Status)
	assert.Equal(t, SortCreatedAt, f.SortBy)
	assert.Equal(t, defaultListLimit, f.Limit)

	f, err = Filter{Limit: 10_000, Offset: -3}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, maxListLimit, f.Limit)
	assert.Equal(t, 0, f.Offset)

	_, err = Filter{SortBy: "name"}.Normalize()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "sort", verr.Field)
}

func TestGenerateNumber(t *testing.T) {
	for _, digits := range []int{4, 6, 9} {
		t.Run(fmt.Sprint(digits), func(t *testing.T) {
			for range 50 {
				n, err := GenerateNumber(digits)
				require.NoError(t, err)
				require.Len(t, n, digits)
				for _, r := range n {
					require.True(t, r >= '0' && r <= '9')
				}
			}
		})
	}
}

func TestValidPhone(t *testing.T) {
	for _, p := range []string{"0555123456", "0661234567", "0770000000"} {
		assert.True(t, ValidPhone(p), p)
	}
	for _, p := range []string{"", "0455123456", "055512345a", "+213555123456", "05551234567"} {
		assert.False(t, ValidPhone(p), p)
	}
}
