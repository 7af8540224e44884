package auth

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockKeys struct {
	byHash map[string]APIKey
	err    error
}

func (m *mockKeys) FindByHash(_ context.Context, hash string) (*APIKey, error) {
	if m.err != nil {
		return nil, m.err
	}
	k, ok := m.byHash[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return &k, nil
}

func (m *mockKeys) Upsert(_ context.Context, k APIKey) error {
	m.byHash[k.KeyHash] = k
	return nil
}

func TestAuthenticator(t *testing.T) {
	pepper := []byte("pepper")
	keys := &mockKeys{byHash: make(map[string]APIKey)}
	require.NoError(t, keys.Upsert(context.Background(), APIKey{
		ID: "k1", Name: "admin", KeyHash: HashKey(pepper, "secret"), Scopes: []string{ScopeAdmin},
	}))
	require.NoError(t, keys.Upsert(context.Background(), APIKey{
		ID: "k2", Name: "reader", KeyHash: HashKey(pepper, "reader"),
	}))
	a := NewAuthenticator(keys, pepper)
	ctx := context.Background()

	k, err := a.Authenticate(ctx, "secret", ScopeAdmin)
	require.NoError(t, err)
	assert.Equal(t, "k1", k.ID)

	tests := []struct {
		name string
		key  string
	}{
		{name: "empty key", key: ""},
		{name: "unknown key", key: "guess"},
		{name: "missing scope", key: "reader"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Authenticate(ctx, tt.key, ScopeAdmin)
			require.ErrorIs(t, err, ErrUnauthorized)
		})
	}

	_, err = NewAuthenticator(keys, []byte("other")).Authenticate(ctx, "secret", ScopeAdmin)
	require.ErrorIs(t, err, ErrUnauthorized)

	keys.err = errors.New("db down")
	_, err = a.Authenticate(ctx, "secret", ScopeAdmin)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}

func TestHashKey(t *testing.T) {
	h := HashKey([]byte("p"), "k")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashKey([]byte("p"), "k"))
	assert.NotEqual(t, h, HashKey([]byte("q"), "k"))
}
