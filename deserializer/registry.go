package deserializer

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrUnknownProvider is returned by Registry.Get for unregistered names.
	ErrUnknownProvider = errors.New("unknown sso provider")
	// ErrRegistryFrozen is returned by Register after Freeze.
	ErrRegistryFrozen = errors.New("registry frozen")
)

// Registry maps provider names to the deserializer that understands their
// payloads. Populate it at startup, then Freeze it.
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]Deserializer
	frozen   bool
	fallback string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Deserializer)}
}

// Register binds name to d. Names must be non-empty and unique. d is wrapped
// with Checked.
func (r *Registry) Register(name string, d Deserializer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRegistryFrozen
	}
	if name == "" {
		return errors.New("provider name cannot be empty")
	}
	if d == nil {
		return fmt.Errorf("provider %q: nil deserializer", name)
	}
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}

	r.byName[name] = Checked(d)
	return nil
}

// SetDefault selects the provider used when Get is called with an empty name.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRegistryFrozen
	}
	if _, ok := r.byName[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	r.fallback = name
	return nil
}

// Get returns the deserializer registered for name. An empty name resolves to
// the default provider, if one was set.
func (r *Registry) Get(name string) (Deserializer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		name = r.fallback
	}
	d, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return d, nil
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default returns the default provider name, or "" when none is set.
func (r *Registry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallback
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}
