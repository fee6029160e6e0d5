package privacy

import (
	"sort"
	"sync"

	"go.uber.org/atomic"
)

// Registry holds viewing keys by ID. Lookups read an immutable map published
// through an atomic pointer; writers copy the map under the mutex.
type Registry struct {
	mu   sync.Mutex
	keys atomic.Pointer[map[string]*ViewingKey]
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	r := &Registry{}
	empty := make(map[string]*ViewingKey)
	r.keys.Store(&empty)
	return r
}

// Register adds a key; IDs are unique
func (r *Registry) Register(vk *ViewingKey) error {
	if vk == nil {
		return ErrInvalidInput.WithDetails("viewing key cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := *r.keys.Load()
	if _, exists := cur[vk.ID()]; exists {
		return ErrInvalidInput.WithDetails("viewing key %s already registered", vk.ID())
	}
	next := make(map[string]*ViewingKey, len(cur)+1)
	for id, k := range cur {
		next[id] = k
	}
	next[vk.ID()] = vk
	r.keys.Store(&next)
	return nil
}

// Lookup returns the key registered under id
func (r *Registry) Lookup(id string) (*ViewingKey, error) {
	vk, ok := (*r.keys.Load())[id]
	if !ok {
		return nil, ErrNotFound.WithDetails("viewing key %s", id)
	}
	return vk, nil
}

// Revoke revokes the key registered under id; it stays registered so later
// operations fail with a revoked-key error rather than not-found
func (r *Registry) Revoke(id, reason string) error {
	vk, err := r.Lookup(id)
	if err != nil {
		return err
	}
	return vk.Revoke(reason)
}

// Delete destroys and unregisters the key
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := *r.keys.Load()
	vk, ok := cur[id]
	if !ok {
		return ErrNotFound.WithDetails("viewing key %s", id)
	}
	vk.Destroy()
	next := make(map[string]*ViewingKey, len(cur))
	for k, v := range cur {
		if k != id {
			next[k] = v
		}
	}
	r.keys.Store(&next)
	return nil
}

// IDs lists registered key IDs in sorted order
func (r *Registry) IDs() []string {
	cur := *r.keys.Load()
	ids := make([]string, 0, len(cur))
	for id := range cur {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
