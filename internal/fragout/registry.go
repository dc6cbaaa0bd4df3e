package fragout

import (
	"fmt"
	"sync"
)

// Registry maps platform ids to their adapter instances. It is the single
// extension point for adding a new platform: register an adapter at startup
// and the dispatcher will route to it.
type Registry struct {
	mu      sync.RWMutex
	posters map[string]Poster
	order   []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{posters: make(map[string]Poster)}
}

// Register adds an adapter under its descriptor id.
func (r *Registry) Register(p Poster) error {
	desc := p.Descriptor()
	if desc.ID == "" {
		return fmt.Errorf("register: adapter has empty platform id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.posters[desc.ID]; ok {
		return fmt.Errorf("register: platform %q already registered", desc.ID)
	}
	r.posters[desc.ID] = p
	r.order = append(r.order, desc.ID)
	return nil
}

// Lookup returns the adapter for the given platform id.
func (r *Registry) Lookup(id string) (Poster, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.posters[id]
	return p, ok
}

// Platforms lists registered platform descriptors in registration order.
func (r *Registry) Platforms() []Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Platform, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.posters[id].Descriptor())
	}
	return out
}
