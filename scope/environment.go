package scope

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// ---------------------------------------------------------------------------
// Environment: fallback variable source behind a scope
// ---------------------------------------------------------------------------

// Environment is a variable source a scope falls back to when a name has no
// local binding. Kind is the stable identifier a wire record carries so the
// receiving side can instantiate a fresh environment of the same sort.
type Environment interface {
	Kind() string
	Lookup(name string) (any, bool)
	Bind(name string, value any)
	Variables() map[string]any
}

// Environment kinds known to the default registry.
const (
	KindMemory  = "memory"
	KindProcess = "process"
)

// ---------------------------------------------------------------------------
// MemoryEnv: map-backed environment
// ---------------------------------------------------------------------------

// MemoryEnv is a plain in-memory environment, the default binding target for
// script-driven pipelines.
type MemoryEnv struct {
	vars map[string]any
}

// NewMemoryEnv creates an empty in-memory environment.
func NewMemoryEnv() *MemoryEnv {
	return &MemoryEnv{vars: make(map[string]any)}
}

func (e *MemoryEnv) Kind() string {
	return KindMemory
}

func (e *MemoryEnv) Lookup(name string) (any, bool) {
	v, ok := e.vars[name]
	return v, ok
}

func (e *MemoryEnv) Bind(name string, value any) {
	e.vars[name] = value
}

// Variables returns a copy of the bound variables.
func (e *MemoryEnv) Variables() map[string]any {
	out := make(map[string]any, len(e.vars))
	for k, v := range e.vars {
		out[k] = v
	}
	return out
}

// ---------------------------------------------------------------------------
// ProcessEnv: OS-environment fallback with a bind overlay
// ---------------------------------------------------------------------------

// ProcessEnv resolves names from the process environment. Bound variables
// live in an overlay that shadows the OS values; the process environment
// itself is never modified.
type ProcessEnv struct {
	overlay map[string]any
}

// NewProcessEnv creates a process environment with an empty overlay.
func NewProcessEnv() *ProcessEnv {
	return &ProcessEnv{overlay: make(map[string]any)}
}

func (e *ProcessEnv) Kind() string {
	return KindProcess
}

func (e *ProcessEnv) Lookup(name string) (any, bool) {
	if v, ok := e.overlay[name]; ok {
		return v, true
	}
	if v, ok := os.LookupEnv(name); ok {
		return v, true
	}
	return nil, false
}

func (e *ProcessEnv) Bind(name string, value any) {
	e.overlay[name] = value
}

// Variables returns the OS environment merged with the overlay, overlay
// winning.
func (e *ProcessEnv) Variables() map[string]any {
	out := make(map[string]any)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			out[kv[:i]] = kv[i+1:]
		}
	}
	for k, v := range e.overlay {
		out[k] = v
	}
	return out
}

// ---------------------------------------------------------------------------
// Registry: kind-to-factory table
// Environment kinds are stable identifiers, so a wire record produced by one
// process can name an environment sort any receiving process knows how to
// build. Thread-safe for concurrent registration and instantiation.
// ---------------------------------------------------------------------------

// ErrUnknownEnvironment is returned when no factory is registered for a kind.
var ErrUnknownEnvironment = errors.New("scope: unknown environment kind")

// Registry maps environment kinds to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]func() Environment
}

// NewRegistry creates an empty environment registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]func() Environment)}
}

// Register adds a factory for a kind, replacing any existing one.
func (r *Registry) Register(kind string, factory func() Environment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

// New instantiates a fresh environment of the given kind.
func (r *Registry) New(kind string) (Environment, error) {
	r.mu.RLock()
	factory, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEnvironment, kind)
	}
	return factory(), nil
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

var defaultRegistry = func() *Registry {
	r := NewRegistry()
	r.Register(KindMemory, func() Environment { return NewMemoryEnv() })
	r.Register(KindProcess, func() Environment { return NewProcessEnv() })
	return r
}()

// DefaultRegistry returns the process-wide registry, pre-seeded with the
// memory and process environment kinds.
func DefaultRegistry() *Registry {
	return defaultRegistry
}
