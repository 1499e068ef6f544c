package llm

import (
	"fmt"
	"sort"
	"sync"
)

// Router maps a model-name string to a registered backend. Resolution is
// exact lookup first, then longest registered prefix (so "gpt-" can route a
// whole family), else UnknownModelError. There is never a guessed default.
type Router struct {
	mu       sync.RWMutex
	exact    map[string]Provider
	prefixes map[string]Provider
	order    []string // prefix keys, longest first
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithModel registers a provider for an exact model name.
func WithModel(model string, p Provider) RouterOption {
	return func(r *Router) {
		r.exact[model] = p
	}
}

// WithPrefix registers a provider for a model-name prefix.
func WithPrefix(prefix string, p Provider) RouterOption {
	return func(r *Router) {
		r.prefixes[prefix] = p
	}
}

// NewRouter creates a Router with the given registrations.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		exact:    make(map[string]Provider),
		prefixes: make(map[string]Provider),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.order = longestFirst(r.prefixes)
	return r
}

// Register adds an exact model-name entry.
func (r *Router) Register(model string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exact[model] = p
}

// RegisterPrefix adds a model-family prefix entry.
func (r *Router) RegisterPrefix(prefix string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefixes[prefix] = p
	r.order = longestFirst(r.prefixes)
}

// Resolve returns the backend serving model.
func (r *Router) Resolve(model string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.exact[model]; ok {
		return p, nil
	}

	for _, prefix := range r.order {
		if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
			return r.prefixes[prefix], nil
		}
	}

	return nil, &UnknownModelError{SDKError: SDKError{
		Message: fmt.Sprintf("no backend registered for model %q", model),
	}}
}

// longestFirst returns the keys of m sorted longest first, ties broken
// lexicographically so prefix scans are deterministic.
func longestFirst[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}
