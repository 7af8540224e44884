// Package ref provides a reference to an entity that is either a bare
// identifier or the entity itself.
//
// Payloads coming from clients and from denormalised storage carry colors and
// categories in both shapes. A Ref decodes from either a JSON string or an
// object and is resolved once at the boundary; everything past that point
// works with the resolved value.
package ref

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Identifiable is implemented by entities that can be referenced by ID.
type Identifiable interface {
	RefID() string
}

// Ref is a tagged union of ID(string) and Resolved(T).
type Ref[T Identifiable] struct {
	id       string
	value    T
	resolved bool
}

// ID returns an unresolved reference to the entity with the given identifier.
func ID[T Identifiable](id string) Ref[T] {
	return Ref[T]{id: id}
}

// Resolved returns a reference holding the entity itself.
func Resolved[T Identifiable](v T) Ref[T] {
	return Ref[T]{id: v.RefID(), value: v, resolved: true}
}

// ID returns the referenced identifier regardless of the reference shape.
func (r Ref[T]) ID() string {
	return r.id
}

// IsZero reports whether the reference points nowhere.
func (r Ref[T]) IsZero() bool {
	return r.id == "" && !r.resolved
}

// Get returns the resolved entity and true, or the zero value and false when
// the reference holds only an identifier.
func (r Ref[T]) Get() (T, bool) {
	return r.value, r.resolved
}

// Lookup finds an entity by identifier.
type Lookup[T Identifiable] func(ctx context.Context, id string) (T, error)

// Resolve returns the resolved form of r, calling lookup only when r is a
// bare identifier. A zero reference is returned unchanged.
func (r Ref[T]) Resolve(ctx context.Context, lookup Lookup[T]) (Ref[T], error) {
	if r.resolved || r.id == "" {
		return r, nil
	}
	v, err := lookup(ctx, r.id)
	if err != nil {
		return r, err
	}
	return Resolved(v), nil
}

// MarshalJSON encodes a resolved reference as the entity, an unresolved one
// as its identifier and a zero reference as null.
func (r Ref[T]) MarshalJSON() ([]byte, error) {
	switch {
	case r.resolved:
		return json.Marshal(r.value)
	case r.id == "":
		return []byte("null"), nil
	default:
		return json.Marshal(r.id)
	}
}

// UnmarshalJSON accepts null, an identifier string or the entity object.
func (r *Ref[T]) UnmarshalJSON(data []byte) error {
	d := jx.DecodeBytes(data)
	switch d.Next() {
	case jx.Null:
		*r = Ref[T]{}
		return nil
	case jx.String:
		id, err := d.Str()
		if err != nil {
			return errors.Wrap(err, "decode id")
		}
		*r = ID[T](id)
		return nil
	case jx.Object:
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return errors.Wrap(err, "decode entity")
		}
		*r = Resolved(v)
		return nil
	default:
		return errors.Errorf("reference must be a string or an object, got %s", d.Next())
	}
}
