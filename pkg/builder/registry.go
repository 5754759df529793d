package builder

import (
	"fmt"
	"sort"
	"sync"
)

// Factory creates a builder for one variant.
type Factory func(Options) DictionaryBuilder

// Registry maps variant names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// DefaultRegistry returns a registry holding every built-in variant.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for name, f := range map[string]Factory{
		"ipadic":         NewIPADIC,
		"ipadic-neologd": NewNeologd,
		"csv":            NewCSV,
		"jmdict":         NewJMdict,
		"kagome-corpus":  NewKagomeCorpus,
	} {
		if err := r.Register(name, f); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a variant. Names must be unique.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" || f == nil {
		return fmt.Errorf("register variant: empty name or nil factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("variant %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

// New creates the builder for name.
func (r *Registry) New(name string, opts Options) (DictionaryBuilder, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown variant %q (have %v)", name, r.Names())
	}
	return f(opts), nil
}

// Names lists the registered variants in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
