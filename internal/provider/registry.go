package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/wyhe/prism/internal/core"
)

// Registry holds the adapter instances the manager can dispatch to, keyed
// by provider id. Fallback order lives in the router; the registry only
// guarantees each id resolves to exactly one adapter.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
	}
}

// Register adds an adapter. A blank or already-registered id is a wiring
// mistake: silently replacing an adapter would make fallback chains and
// per-provider limits point at the wrong instance.
func (r *Registry) Register(a Adapter) error {
	id := a.ID()
	if id == "" {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("adapter has no id"))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[id]; exists {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("adapter %q registered twice", id))
	}
	r.adapters[id] = a
	return nil
}

// Get retrieves an adapter by provider id.
func (r *Registry) Get(id string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	return a, ok
}

// GetAll returns all registered adapters sorted by id, so callers that
// derive per-provider state iterate in a stable order.
func (r *Registry) GetAll() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID() < result[j].ID() })
	return result
}
