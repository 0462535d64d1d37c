package registry

import (
	"errors"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// ErrIDInUse is returned by Add when the id is already registered under a
// different key.
var ErrIDInUse = errors.New("registry: id registered under another key")

type entry[V any] struct {
	id    uuid.UUID
	value V
}

// set keeps entries in insertion order with a position index by id.
type set[V any] struct {
	entries []entry[V]
	index   map[uuid.UUID]int
}

// Registry maps keys to insertion-ordered sets of values identified by id.
// An id belongs to at most one key. It is safe for concurrent use.
type Registry[K comparable, V any] struct {
	mu   sync.RWMutex
	sets map[K]*set[V]
	ids  map[uuid.UUID]K
}

// New creates an empty registry.
func New[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{
		sets: make(map[K]*set[V]),
		ids:  make(map[uuid.UUID]K),
	}
}

// Add registers value under key with the given id and reports whether it is
// the first value for key. Re-adding an id already present under key replaces
// its value in place; adding it under another key fails with ErrIDInUse.
func (r *Registry[K, V]) Add(key K, id uuid.UUID, value V) (first bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.ids[id]; ok {
		if owner != key {
			return false, ErrIDInUse
		}
		s := r.sets[key]
		s.entries[s.index[id]].value = value
		return false, nil
	}

	s, ok := r.sets[key]
	if !ok {
		s = &set[V]{index: make(map[uuid.UUID]int)}
		r.sets[key] = s
	}
	s.index[id] = len(s.entries)
	s.entries = append(s.entries, entry[V]{id: id, value: value})
	r.ids[id] = key
	return !ok, nil
}

// Remove deletes the value with id from key. found is false when no such
// entry exists; empty is true when the removal left key with no values, in
// which case key is dropped from the registry.
func (r *Registry[K, V]) Remove(key K, id uuid.UUID) (empty, found bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sets[key]
	if !ok {
		return false, false
	}
	idx, ok := s.index[id]
	if !ok {
		return false, false
	}

	delete(r.ids, id)
	if len(s.entries) == 1 {
		delete(r.sets, key)
		return true, true
	}

	s.entries = slices.Delete(s.entries, idx, idx+1)
	delete(s.index, id)
	for i := idx; i < len(s.entries); i++ {
		s.index[s.entries[i].id] = i
	}
	return false, true
}

// Get returns a copy of the values under key in insertion order.
func (r *Registry[K, V]) Get(key K) []V {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sets[key]
	if !ok {
		return nil
	}
	out := make([]V, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.value
	}
	return out
}

// KeyOf returns the key an id is registered under.
func (r *Registry[K, V]) KeyOf(id uuid.UUID) (K, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.ids[id]
	return k, ok
}

// Has reports whether key has at least one value.
func (r *Registry[K, V]) Has(key K) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sets[key]
	return ok
}

// Keys returns all active keys in unspecified order.
func (r *Registry[K, V]) Keys() []K {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]K, 0, len(r.sets))
	for k := range r.sets {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of active keys.
func (r *Registry[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sets)
}

// Count returns the total number of values across all keys.
func (r *Registry[K, V]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ids)
}

// Each calls fn for every key with a copy of its values. It iterates a
// snapshot taken under the read lock, so fn may call back into the registry.
func (r *Registry[K, V]) Each(fn func(key K, values []V)) {
	r.mu.RLock()
	snap := make(map[K][]V, len(r.sets))
	for k, s := range r.sets {
		vals := make([]V, len(s.entries))
		for i, e := range s.entries {
			vals[i] = e.value
		}
		snap[k] = vals
	}
	r.mu.RUnlock()

	for k, vals := range snap {
		fn(k, vals)
	}
}
