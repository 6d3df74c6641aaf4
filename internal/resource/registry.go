// Package resource bridges job records to the conversion engine: a registry
// of conversion definitions keyed by stable strings, file format codecs, and
// the adapter that resolves and validates datasets for job runs.
package resource

import (
	"fmt"
	"sort"
	"sync"

	"async-import-export/internal/domain"
	"async-import-export/internal/domain/model"
	"async-import-export/internal/domain/ports/engine"
)

// Registry maps resource keys to factories. Keys are validated at
// registration time and unknown keys are rejected at job creation, so a bad
// reference never reaches a worker.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]engine.Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]engine.Factory)}
}

// Register adds a factory under key. Empty keys, nil factories and duplicate
// registrations are programming errors and rejected.
func (r *Registry) Register(key string, factory engine.Factory) error {
	if key == "" || factory == nil {
		return fmt.Errorf("%w: resource key and factory are required", domain.ErrInvalidArgument)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[key]; ok {
		return fmt.Errorf("%w: resource %q already registered", domain.ErrInvalidArgument, key)
	}
	r.factories[key] = factory
	return nil
}

// Validate reports whether key names a registered resource.
func (r *Registry) Validate(key string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.factories[key]; !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownResource, key)
	}
	return nil
}

// Resolve constructs the resource registered under key with the given params.
func (r *Registry) Resolve(key string, p model.Params) (engine.Resource, error) {
	r.mu.RLock()
	factory, ok := r.factories[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownResource, key)
	}
	res, err := factory(p)
	if err != nil {
		return nil, fmt.Errorf("resolve resource %q: %w", key, err)
	}
	return res, nil
}

// Keys returns the registered resource keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.factories))
	for k := range r.factories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
