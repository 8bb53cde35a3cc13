// Package handlers is the application side of the gateway: the functions
// that run once a message has cleared every pipeline check.
package handlers

import (
	"slices"
	"sync"

	"github.com/aussiebroadwan/tabgate/internal/gateway/hub"
)

// Registry maps message types to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]hub.Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]hub.Handler)}
}

// Register replaces any handler already bound to messageType.
func (r *Registry) Register(messageType string, h hub.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[messageType] = h
}

func (r *Registry) Lookup(messageType string) (hub.Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[messageType]
	return h, ok
}

// Types lists the registered message types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}
