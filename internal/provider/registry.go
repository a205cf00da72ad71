package provider

import (
	"fmt"
	"sort"

	"quotefeed/internal/quote"
)

// Registry is a static mapping from data kind to an ordered provider list,
// plus a lookup by provider name. Built once at startup; read-only after.
type Registry struct {
	byKind map[quote.Kind][]Provider
	byName map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{
		byKind: make(map[quote.Kind][]Provider),
		byName: make(map[string]Provider),
	}
}

// Register appends p to the failover chain for kind. Priority is registration
// order. The same provider may serve several kinds under one name.
func (r *Registry) Register(kind quote.Kind, p Provider) error {
	if p == nil {
		return fmt.Errorf("register %s: nil provider", kind)
	}
	if existing, ok := r.byName[p.Name()]; ok && existing != p {
		return fmt.Errorf("register %s: provider name %q already taken", kind, p.Name())
	}
	r.byKind[kind] = append(r.byKind[kind], p)
	r.byName[p.Name()] = p
	return nil
}

// ForKind returns the failover chain for kind in priority order.
func (r *Registry) ForKind(kind quote.Kind) []Provider {
	return r.byKind[kind]
}

// ByName returns the provider registered under name, if any.
func (r *Registry) ByName(name string) (Provider, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// Names returns all registered provider names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// All returns every registered provider, ordered by name.
func (r *Registry) All() []Provider {
	names := r.Names()
	out := make([]Provider, 0, len(names))
	for _, n := range names {
		out = append(out, r.byName[n])
	}
	return out
}
