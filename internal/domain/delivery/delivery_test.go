package delivery

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	settings map[string]Setting
	getErr   error
	upserted []Setting
}

func newMockRepo(settings ...Setting) *mockRepo {
	m := &mockRepo{settings: make(map[string]Setting)}
	for _, s := range settings {
		m.settings[s.State] = s
	}
	return m
}

func (m *mockRepo) Get(_ context.Context, state string) (*Setting, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	s, ok := m.settings[state]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *mockRepo) List(_ context.Context) ([]Setting, error) {
	out := make([]Setting, 0, len(m.settings))
	for _, s := range m.settings {
		out = append(out, s)
	}
	return out, nil
}

func (m *mockRepo) Upsert(_ context.Context, s Setting) error {
	m.upserted = append(m.upserted, s)
	m.settings[s.State] = s
	return nil
}

func (m *mockRepo) Delete(_ context.Context, state string) error {
	if _, ok := m.settings[state]; !ok {
		return ErrNotFound
	}
	delete(m.settings, state)
	return nil
}

func algiers() Setting {
	return Setting{
		State:        "16",
		OfficePrice:  decimal.NewFromInt(400),
		HomePrice:    decimal.NewFromInt(600),
		DeliveryDays: 2,
	}
}

func TestResolver_Resolve(t *testing.T) {
	r := NewResolver(newMockRepo(algiers()))
	ctx := context.Background()

	tests := []struct {
		name        string
		state       string
		place       Place
		wantPrice   decimal.Decimal
		wantMissing bool
		wantErr     error
	}{
		{name: "office price", state: "16", place: PlaceOffice, wantPrice: decimal.NewFromInt(400)},
		{name: "home price", state: "16", place: PlaceHome, wantPrice: decimal.NewFromInt(600)},
		{name: "missing region falls back to zero", state: "58", place: PlaceHome, wantPrice: decimal.Zero, wantMissing: true},
		{name: "unknown place is rejected", state: "16", place: "moon", wantErr: ErrInvalidPlace},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := r.Resolve(ctx, tt.state, tt.place)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.wantPrice.Equal(q.Price), "got %s", q.Price)
			assert.Equal(t, tt.wantMissing, q.Missing)
		})
	}
}

func TestResolver_Resolve_RepoError(t *testing.T) {
	repo := newMockRepo()
	repo.getErr = errors.New("db down")

	_, err := NewResolver(repo).Resolve(context.Background(), "16", PlaceOffice)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get delivery setting")
}

func TestResolver_Upsert(t *testing.T) {
	repo := newMockRepo()
	r := NewResolver(repo)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, algiers()))
	require.Len(t, repo.upserted, 1)

	bad := algiers()
	bad.HomePrice = decimal.NewFromInt(-1)
	require.ErrorIs(t, r.Upsert(ctx, bad), ErrInvalidSetting)

	bad = algiers()
	bad.DeliveryDays = 0
	require.ErrorIs(t, r.Upsert(ctx, bad), ErrInvalidSetting)

	bad = algiers()
	bad.State = ""
	require.ErrorIs(t, r.Upsert(ctx, bad), ErrInvalidSetting)

	assert.Len(t, repo.upserted, 1)
}

func TestResolver_PriceFollowsSettingChanges(t *testing.T) {
	repo := newMockRepo(algiers())
	r := NewResolver(repo)
	ctx := context.Background()

	q, err := r.Resolve(ctx, "16", PlaceOffice)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(400).Equal(q.Price))

	updated := algiers()
	updated.OfficePrice = decimal.NewFromInt(450)
	require.NoError(t, r.Upsert(ctx, updated))

	q, err = r.Resolve(ctx, "16", PlaceOffice)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(450).Equal(q.Price))
}
