package protocol

import (
	"fmt"
	"slices"
)

// Registry maps a one-byte kind to a value. It is filled once from a static
// table and never modified, so concurrent lookups need no locking.
type Registry[K ~uint8, V any] struct {
	values  [256]V
	present [256]bool
	kinds   []K
}

// Entry is one row of a registry table.
type Entry[K ~uint8, V any] struct {
	Kind  K
	Value V
}

// NewRegistry builds a registry from entries. Duplicate kinds panic.
func NewRegistry[K ~uint8, V any](entries ...Entry[K, V]) *Registry[K, V] {
	r := &Registry[K, V]{kinds: make([]K, 0, len(entries))}
	for _, e := range entries {
		if r.present[e.Kind] {
			panic(fmt.Sprintf("protocol: duplicate registry kind %d", uint8(e.Kind)))
		}
		r.values[e.Kind] = e.Value
		r.present[e.Kind] = true
		r.kinds = append(r.kinds, e.Kind)
	}
	slices.Sort(r.kinds)
	return r
}

// Lookup returns the value for kind. A miss is not an error.
func (r *Registry[K, V]) Lookup(kind K) (V, bool) {
	return r.values[kind], r.present[kind]
}

// Kinds returns the registered kinds in ascending order.
func (r *Registry[K, V]) Kinds() []K {
	return slices.Clone(r.kinds)
}

// Len returns the number of registered kinds.
func (r *Registry[K, V]) Len() int {
	return len(r.kinds)
}
