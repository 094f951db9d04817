package entity

import (
	"fmt"
	"sync"

	"github.com/roach88/syncset/internal/binding"
	"github.com/roach88/syncset/internal/engine"
)

// Registry hands out entities by definition name, compiling each
// definition on first use and memoizing the result. Construction is
// explicit: callers create a registry and pass it where needed, there
// is no package-level instance.
type Registry struct {
	eng  *engine.Engine
	opts map[string][]Option

	mu       sync.Mutex
	defs     map[string]*binding.Definition
	entities map[string]*Entity
}

// RegistryOption configures a registry.
type RegistryOption func(*Registry)

// WithEntityOptions applies opts to the named entity when it is built.
func WithEntityOptions(name string, opts ...Option) RegistryOption {
	return func(r *Registry) { r.opts[name] = opts }
}

// NewRegistry creates a registry over eng for the given definitions.
// Definitions are validated lazily: a broken definition surfaces from
// the first Get that names it, not here.
func NewRegistry(eng *engine.Engine, defs []*binding.Definition, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		eng:      eng,
		opts:     make(map[string][]Option),
		defs:     make(map[string]*binding.Definition, len(defs)),
		entities: make(map[string]*Entity),
	}
	for _, def := range defs {
		if _, dup := r.defs[def.Name]; dup {
			return nil, fmt.Errorf("duplicate definition %q", def.Name)
		}
		r.defs[def.Name] = def
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Names returns the registered definition names, unordered.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	return names
}

// Get returns the entity for name, building it on first use. Repeated
// calls return the same instance.
func (r *Registry) Get(name string) (*Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entities[name]; ok {
		return e, nil
	}
	def, ok := r.defs[name]
	if !ok {
		return nil, fmt.Errorf("no definition %q", name)
	}
	model, err := binding.Compile(def)
	if err != nil {
		return nil, fmt.Errorf("entity %q: %w", name, err)
	}
	e, err := New(model, r.eng, r.opts[name]...)
	if err != nil {
		return nil, err
	}
	r.entities[name] = e
	return e, nil
}
