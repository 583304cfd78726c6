// Package vectorstore provides the vector store driver registry and drivers:
// embedded (in-memory brute-force cosine) and pgvector (user-provided PG).
package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/and27/supportops/pkg/contracts"
)

// Registry holds named vector store drivers. Thread-safe.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]contracts.VectorStore
}

// NewRegistry creates an empty vector store registry.
func NewRegistry() *Registry {
	return &Registry{
		drivers: make(map[string]contracts.VectorStore),
	}
}

// Register adds a driver under the given name. Overwrites if exists.
func (r *Registry) Register(name string, driver contracts.VectorStore) {
	r.mu.Lock()
	r.drivers[name] = driver
	r.mu.Unlock()
	log.Info().Str("name", name).Str("kind", driver.Kind()).Msg("Vector store driver registered")
}

// Get returns the driver by name, or error if not found.
func (r *Registry) Get(name string) (contracts.VectorStore, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[name]
	if !ok {
		return nil, fmt.Errorf("vector store driver not found: %s", name)
	}
	return d, nil
}

// List returns all registered driver names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	return names
}

// HealthCheckAll pings every registered driver and returns errors keyed by name.
func (r *Registry) HealthCheckAll(ctx context.Context) map[string]error {
	r.mu.RLock()
	snapshot := make(map[string]contracts.VectorStore, len(r.drivers))
	for k, v := range r.drivers {
		snapshot[k] = v
	}
	r.mu.RUnlock()

	results := make(map[string]error, len(snapshot))
	for name, driver := range snapshot {
		results[name] = driver.HealthCheck(ctx)
	}
	return results
}
