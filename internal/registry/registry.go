package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownName is the sentinel wrapped by every LookupError.
var ErrUnknownName = errors.New("unknown name")

// LookupError reports a name that is not registered.
type LookupError struct {
	Kind  string
	Name  string
	Known []string
}

// Error implements the error interface for LookupError.
func (e *LookupError) Error() string {
	return fmt.Sprintf("unknown %s %q (known: %s)", e.Kind, e.Name, strings.Join(e.Known, ", "))
}

// Unwrap returns ErrUnknownName so callers can use errors.Is.
func (e *LookupError) Unwrap() error {
	return ErrUnknownName
}

// Registry maps names to implementations of one kind (split methods,
// iterators, cache strategies, ...).
type Registry[T any] struct {
	kind    string
	mu      sync.RWMutex
	entries map[string]T
}

// New creates an empty registry. kind names the registered concept in errors.
func New[T any](kind string) *Registry[T] {
	return &Registry[T]{
		kind:    kind,
		entries: make(map[string]T),
	}
}

// Kind returns the concept the registry holds.
func (r *Registry[T]) Kind() string {
	return r.kind
}

// Register adds an implementation under name.
func (r *Registry[T]) Register(name string, impl T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		panic(fmt.Sprintf("%s with name '%s' already registered", r.kind, name))
	}
	slog.Debug("Registering implementation.", "kind", r.kind, "name", name)
	r.entries[name] = impl
}

// Lookup resolves name. An unknown name yields a *LookupError.
func (r *Registry[T]) Lookup(name string) (T, error) {
	r.mu.RLock()
	impl, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, &LookupError{Kind: r.kind, Name: name, Known: r.Names()}
	}
	return impl, nil
}

// Names returns the registered names in sorted order.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
