// Package redis stores cart sessions in Redis.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/dernounimk/volty/internal/domain/cart"
	"github.com/dernounimk/volty/internal/domain/delivery"
)

const keyPrefix = "volty:cart:"

// client is the subset of redis.Cmdable used by CartStore.
type client interface {
	GetEx(ctx context.Context, key string, expiration time.Duration) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

var _ cart.Store = (*CartStore)(nil)

// CartStore keeps each session as a JSON blob. Reads and writes both extend
// the expiry, so a session lives for ttl after its last use.
type CartStore struct {
	client client
	ttl    time.Duration
}

// NewCartStore returns a CartStore over c.
func NewCartStore(c redis.Cmdable, ttl time.Duration) *CartStore {
	return &CartStore{client: c, ttl: ttl}
}

// NewClient parses url and verifies the server answers.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	c := redis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return c, nil
}

type itemJSON struct {
	ProductID string `json:"productId"`
	Color     string `json:"color,omitempty"`
	Size      string `json:"size,omitempty"`
	Quantity  int    `json:"quantity"`
}

type sessionJSON struct {
	ID         string     `json:"id"`
	Items      []itemJSON `json:"items"`
	CouponCode string     `json:"couponCode,omitempty"`
	Wilaya     string     `json:"wilaya,omitempty"`
	Place      string     `json:"place,omitempty"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

func key(id string) string { return keyPrefix + id }

// Get returns the session with the given id.
func (s *CartStore) Get(ctx context.Context, id string) (*cart.Session, error) {
	data, err := s.client.GetEx(ctx, key(id), s.ttl).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, cart.ErrSessionNotFound
		}
		return nil, fmt.Errorf("getting cart %q: %w", id, err)
	}

	var v sessionJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decoding cart %q: %w", id, err)
	}
	sess := &cart.Session{
		ID:         v.ID,
		Items:      make([]cart.Item, len(v.Items)),
		CouponCode: v.CouponCode,
		Wilaya:     v.Wilaya,
		Place:      delivery.Place(v.Place),
		UpdatedAt:  v.UpdatedAt,
	}
	for i, it := range v.Items {
		sess.Items[i] = cart.Item{
			Key:      cart.Key{ProductID: it.ProductID, Color: it.Color, Size: it.Size},
			Quantity: it.Quantity,
		}
	}
	return sess, nil
}

// Save writes sess and resets its expiry.
func (s *CartStore) Save(ctx context.Context, sess *cart.Session) error {
	v := sessionJSON{
		ID:         sess.ID,
		Items:      make([]itemJSON, len(sess.Items)),
		CouponCode: sess.CouponCode,
		Wilaya:     sess.Wilaya,
		Place:      string(sess.Place),
		UpdatedAt:  sess.UpdatedAt,
	}
	for i, it := range sess.Items {
		v.Items[i] = itemJSON{
			ProductID: it.ProductID,
			Color:     it.Color,
			Size:      it.Size,
			Quantity:  it.Quantity,
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding cart %q: %w", sess.ID, err)
	}
	if err := s.client.Set(ctx, key(sess.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("saving cart %q: %w", sess.ID, err)
	}
	return nil
}

// Delete removes the session. Deleting a missing session is not an error.
func (s *CartStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, key(id)).Err(); err != nil {
		return fmt.Errorf("deleting cart %q: %w", id, err)
	}
	return nil
}
