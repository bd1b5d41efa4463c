// Package config holds the flat, string-keyed property namespace that
// connector setup reads channel attributes from.
//
// Keys follow the convention
//
//	<root>.<source|sink>.<channel>.<attribute>
//
// e.g. "chanflow.messaging.source.data.topic". Values are stored already
// typed; a Store never parses or converts them.
package config

import (
	"fmt"
	"iter"
	"reflect"
	"sort"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Store is the narrow capability the resolver and the connectors need.
// Anything that can answer these four questions is a valid configuration
// source; MapConfig is the in-memory implementation.
type Store interface {
	// Get returns the stored value, if any.
	Get(key string) (any, bool)

	// GetRequired returns the stored value or an error wrapping ErrMissingKey.
	GetRequired(key string) (any, error)

	// GetTyped returns the value only if its dynamic type is assignable to typ.
	// A present but incompatible value yields an error wrapping ErrTypeMismatch.
	GetTyped(key string, typ reflect.Type) (any, bool, error)

	// PropertyNames yields every key in insertion order. The sequence can be
	// ranged over any number of times.
	PropertyNames() iter.Seq[string]
}

// MapConfig is an insertion-ordered Store backed by an ordered map.
// It is not safe for concurrent mutation; populate it before sharing it.
type MapConfig struct {
	entries *orderedmap.OrderedMap[string, any]
}

// NewMapConfig returns an empty MapConfig.
func NewMapConfig() *MapConfig {
	return &MapConfig{entries: orderedmap.New[string, any]()}
}

// FromMap copies m into a new MapConfig. Go maps carry no order, so keys are
// inserted in sorted order to keep iteration deterministic.
func FromMap(m map[string]any) *MapConfig {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	c := NewMapConfig()
	for _, k := range keys {
		c.Put(k, m[k])
	}
	return c
}

// Put stores value under key and returns the receiver for chaining.
// Replacing an existing key keeps its original position.
func (c *MapConfig) Put(key string, value any) *MapConfig {
	c.entries.Set(key, value)
	return c
}

// Len reports the number of entries.
func (c *MapConfig) Len() int { return c.entries.Len() }

func (c *MapConfig) Get(key string) (any, bool) {
	return c.entries.Get(key)
}

func (c *MapConfig) GetRequired(key string) (any, error) {
	v, ok := c.entries.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingKey, key)
	}
	return v, nil
}

func (c *MapConfig) GetTyped(key string, typ reflect.Type) (any, bool, error) {
	v, ok := c.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	if err := checkType(key, v, typ); err != nil {
		return nil, true, err
	}
	return v, true, nil
}

func (c *MapConfig) PropertyNames() iter.Seq[string] {
	return func(yield func(string) bool) {
		for pair := c.entries.Oldest(); pair != nil; pair = pair.Next() {
			if !yield(pair.Key) {
				return
			}
		}
	}
}

// Value is the generic form of GetTyped.
func Value[T any](s Store, key string) (T, bool, error) {
	var zero T
	v, ok, err := s.GetTyped(key, reflect.TypeFor[T]())
	if err != nil || !ok {
		return zero, ok, err
	}
	if v == nil {
		return zero, true, nil
	}
	return v.(T), true, nil
}

// Required is Value with absence reported as ErrMissingKey.
func Required[T any](s Store, key string) (T, error) {
	v, ok, err := Value[T](s, key)
	if err != nil {
		return v, err
	}
	if !ok {
		return v, fmt.Errorf("%w: %q", ErrMissingKey, key)
	}
	return v, nil
}

func checkType(key string, v any, typ reflect.Type) error {
	if typ == nil {
		return nil
	}
	if v == nil {
		// nil satisfies interface, pointer, map, slice, chan and func types.
		switch typ.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
			return nil
		}
		return fmt.Errorf("%w: %q holds nil, want %s", ErrTypeMismatch, key, typ)
	}
	if got := reflect.TypeOf(v); !got.AssignableTo(typ) {
		return fmt.Errorf("%w: %q holds %s, want %s", ErrTypeMismatch, key, got, typ)
	}
	return nil
}
