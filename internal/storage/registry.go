package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"contact-sync/internal/common/errors"
)

// Registry maps backend types to factories. Backends register themselves
// from init so callers only need a blank import.
type Registry struct {
	factories map[string]StorageFactory
	mu        sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]StorageFactory),
	}
}

func (r *Registry) Register(storageType string, factory StorageFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[storageType] = factory
}

func (r *Registry) Create(storageType string, config StorageConfig) (Store, error) {
	r.mu.RLock()
	factory, exists := r.factories[storageType]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.ConfigError(fmt.Sprintf("storage type %q not registered (available: %s)",
			storageType, strings.Join(r.GetAvailableTypes(), ", ")))
	}

	return factory.Create(config)
}

// GetAvailableTypes returns the registered types in sorted order.
func (r *Registry) GetAvailableTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for storageType := range r.factories {
		types = append(types, storageType)
	}
	sort.Strings(types)
	return types
}

var defaultRegistry = NewRegistry()

// Register adds a factory to the default registry.
func Register(storageType string, factory StorageFactory) {
	defaultRegistry.Register(storageType, factory)
}

// Create builds a Store from the default registry.
func Create(storageType string, config StorageConfig) (Store, error) {
	return defaultRegistry.Create(storageType, config)
}

// AvailableTypes lists the backends linked into the binary.
func AvailableTypes() []string {
	return defaultRegistry.GetAvailableTypes()
}
