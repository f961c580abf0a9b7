package gateway

import (
	"sort"
	"sync"
)

// Registry maps gateway types to adapter instances. It is populated once
// at startup from active gateway configurations and rebuilt when a
// configuration changes.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds or replaces the adapter for its gateway type.
func (r *Registry) Register(adapter Adapter) {
	if adapter == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.Type()] = adapter
}

// Deregister removes the adapter for a gateway type.
func (r *Registry) Deregister(gatewayType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.adapters, gatewayType)
}

// Get looks up the adapter for a gateway type.
func (r *Registry) Get(gatewayType string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[gatewayType]
	return adapter, ok
}

// Refunder returns the refund capability of a gateway, if supported.
func (r *Registry) Refunder(gatewayType string) (Refunder, bool) {
	adapter, ok := r.Get(gatewayType)
	if !ok {
		return nil, false
	}
	refunder, ok := adapter.(Refunder)
	return refunder, ok
}

// Types lists registered gateway types in stable order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.adapters))
	for gatewayType := range r.adapters {
		types = append(types, gatewayType)
	}
	sort.Strings(types)
	return types
}
