package storage

import (
	"fmt"
	"sort"
	"strings"
)

// Factory opens a backend for a parsed configuration.
type Factory func(cfg Config) (Backend, error)

// Registry selects a backend from the endpoint scheme.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

func (r *Registry) Register(f Factory, schemes ...string) {
	for _, s := range schemes {
		r.factories[strings.ToLower(s)] = f
	}
}

func (r *Registry) Open(cfg Config) (Backend, error) {
	u, err := ParseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	f, ok := r.factories[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, fmt.Errorf("no storage backend registered for scheme %q (known: %s)", u.Scheme, strings.Join(r.Schemes(), ", "))
	}
	return f(cfg)
}

// Schemes lists the registered endpoint schemes.
func (r *Registry) Schemes() []string {
	out := make([]string, 0, len(r.factories))
	for s := range r.factories {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
