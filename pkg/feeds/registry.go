package feeds

import (
	"fmt"
	"strings"
	"sync"
)

// adapterRegistry implements AdapterRegistry.
type adapterRegistry struct {
	adapters map[string]Feed
	mu       sync.RWMutex
}

// NewAdapterRegistry builds a registry for the provided feed adapters keyed by type.
func NewAdapterRegistry(adapters ...Feed) AdapterRegistry {
	reg := &adapterRegistry{adapters: make(map[string]Feed)}
	for _, a := range adapters {
		reg.register(a)
	}
	return reg
}

func (r *adapterRegistry) register(a Feed) {
	if a == nil {
		return
	}
	key := strings.ToLower(strings.TrimSpace(a.Type()))
	if key == "" {
		return
	}

	r.mu.Lock()
	r.adapters[key] = a
	r.mu.Unlock()
}

// AdapterFor selects the adapter matching the source's type.
func (r *adapterRegistry) AdapterFor(src Source) (Feed, error) {
	if r == nil {
		return nil, fmt.Errorf("adapter registry is nil")
	}

	key := strings.ToLower(strings.TrimSpace(src.Type))
	if key == "" {
		return nil, fmt.Errorf("source %q has no type configured", src.ID)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if a, ok := r.adapters[key]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("no feed adapter registered for type %q (source %q)", src.Type, src.ID)
}

// DefaultAdapterRegistry wires up the known feed adapters.
func DefaultAdapterRegistry() AdapterRegistry {
	return NewAdapterRegistry(NewGroupsFeed())
}
