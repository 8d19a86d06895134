package scope

import (
	"fmt"
	"sort"
	"strings"
)

// ---------------------------------------------------------------------------
// Resolution: tagged lookup outcome
// A name resolves locally, from the environment, or not at all. What a miss
// means depends on the scope's undefined-variable policy.
// ---------------------------------------------------------------------------

// ResolutionState identifies how a name resolved against a scope.
type ResolutionState int

const (
	// ResolutionFound means the name was bound locally or in the environment.
	ResolutionFound ResolutionState = iota
	// ResolutionDeferred means the name was unbound and the scope defers
	// undefined names as literal placeholders.
	ResolutionDeferred
	// ResolutionMissing means the name was unbound and the scope treats
	// undefined names as errors.
	ResolutionMissing
)

// Resolution is the outcome of a single name lookup.
// Value holds the bound value for Found, the placeholder string for
// Deferred, and nil for Missing.
type Resolution struct {
	State ResolutionState
	Value any
}

// UnresolvedVariableError reports a name that resolved nowhere in a scope
// whose policy treats undefined names as errors.
type UnresolvedVariableError struct {
	Name string
}

func (e *UnresolvedVariableError) Error() string {
	return fmt.Sprintf("scope: unresolved variable %q", e.Name)
}

// ---------------------------------------------------------------------------
// Entry: one named binding
// ---------------------------------------------------------------------------

// Entry is a single name-to-value binding in serialization order.
type Entry struct {
	Name  string `cbor:"1,keyasint"`
	Value any    `cbor:"2,keyasint"`
}

// ---------------------------------------------------------------------------
// Map: the scope container
// Local bindings shadow the environment. A Map is owned by one task attempt
// at a time and does no internal locking.
// ---------------------------------------------------------------------------

// Map is a scoped variable container: an insertion-ordered local mapping
// backed by an optional Environment for fallback resolution.
type Map struct {
	name           string
	deferUndefined bool
	env            Environment
	local          map[string]any
	order          []string
	external       map[string]struct{}
}

// NewFromTask builds a scope for a fresh task attempt. The local mapping
// starts empty; external names are the referenced names the task does not
// declare itself, and never change afterwards.
func NewFromTask(name string, env Environment, deferUndefined bool, declared, referenced []string) *Map {
	decl := make(map[string]struct{}, len(declared))
	for _, n := range declared {
		decl[n] = struct{}{}
	}
	external := make(map[string]struct{})
	for _, n := range referenced {
		if _, ok := decl[n]; !ok {
			external[n] = struct{}{}
		}
	}
	return &Map{
		name:           name,
		deferUndefined: deferUndefined,
		env:            env,
		local:          make(map[string]any),
		order:          nil,
		external:       external,
	}
}

// NewFromRecord rebuilds a scope from decoded entries, as when reading a
// checkpoint or rehydrating a wire record. The local mapping is pre-populated
// in entry order. The original declared/referenced split is gone at this
// point, so the external set is rebuilt from the environment's full variable
// set; a superset is acceptable because the set is diagnostic on this path.
func NewFromRecord(name string, env Environment, deferUndefined bool, entries []Entry) *Map {
	m := &Map{
		name:           name,
		deferUndefined: deferUndefined,
		env:            env,
		local:          make(map[string]any, len(entries)),
		external:       make(map[string]struct{}),
	}
	for _, e := range entries {
		m.Put(e.Name, e.Value)
	}
	if env != nil {
		for n := range env.Variables() {
			m.external[n] = struct{}{}
		}
	}
	return m
}

// Name returns the scope's label, usually the owning task's name.
func (m *Map) Name() string {
	return m.name
}

// DeferUndefined reports whether unresolved names defer as placeholders
// instead of erroring.
func (m *Map) DeferUndefined() bool {
	return m.deferUndefined
}

// Environment returns the scope's fallback environment, or nil.
func (m *Map) Environment() Environment {
	return m.env
}

// Resolve looks up a name: local mapping first, then the environment.
// On a miss the scope's policy selects Deferred or Missing.
func (m *Map) Resolve(name string) Resolution {
	if v, ok := m.local[name]; ok {
		return Resolution{State: ResolutionFound, Value: v}
	}
	if m.env != nil {
		if v, ok := m.env.Lookup(name); ok {
			return Resolution{State: ResolutionFound, Value: v}
		}
	}
	if m.deferUndefined {
		return Resolution{State: ResolutionDeferred, Value: "$" + name}
	}
	return Resolution{State: ResolutionMissing}
}

// Get resolves a name to a value. Deferred lookups yield the placeholder;
// Missing lookups yield an UnresolvedVariableError.
func (m *Map) Get(name string) (any, error) {
	r := m.Resolve(name)
	if r.State == ResolutionMissing {
		return nil, &UnresolvedVariableError{Name: name}
	}
	return r.Value, nil
}

// Put binds a name locally, shadowing any environment binding.
func (m *Map) Put(name string, value any) {
	if _, ok := m.local[name]; !ok {
		m.order = append(m.order, name)
	}
	m.local[name] = value
}

// Entries returns the local bindings in insertion order.
func (m *Map) Entries() []Entry {
	entries := make([]Entry, 0, len(m.order))
	for _, name := range m.order {
		entries = append(entries, Entry{Name: name, Value: m.local[name]})
	}
	return entries
}

// ExternalNames returns the external name set in sorted order.
func (m *Map) ExternalNames() []string {
	names := make([]string, 0, len(m.external))
	for n := range m.external {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// TransmittableBindings snapshots the external bindings that can cross a
// process boundary: external names are walked in sorted order, names the
// environment does not define are skipped, and the remaining values pass
// through the transmittable filter.
func (m *Map) TransmittableBindings() []Entry {
	if m.env == nil {
		return nil
	}
	var entries []Entry
	for _, name := range m.ExternalNames() {
		v, ok := m.env.Lookup(name)
		if !ok {
			continue
		}
		if !Transmittable(v) {
			continue
		}
		entries = append(entries, Entry{Name: name, Value: v})
	}
	return entries
}

// Dump renders the local bindings with their runtime types, in insertion
// order. Used for diagnostics when a checkpoint cannot be written.
func (m *Map) Dump() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "scope %q (%d local, %d external)\n", m.name, len(m.local), len(m.external))
	for _, name := range m.order {
		v := m.local[name]
		fmt.Fprintf(&sb, "  %s = %v (%T)\n", name, v, v)
	}
	return sb.String()
}
