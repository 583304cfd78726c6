// Package embeddings provides the embedding driver registry and the OpenAI
// and Ollama drivers. The ingestion pipeline and the vector retrieval path
// share one configured driver; when none is configured, ingestion fails with
// ErrNotConfigured while retrieval silently falls through to text search.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/and27/supportops/internal/config"
	"github.com/and27/supportops/pkg/contracts"
)

// ErrNotConfigured is returned when an embedding provider is required but no
// provider (or its credential) is configured. This is a configuration error,
// not a retryable condition.
var ErrNotConfigured = errors.New("embedding provider not configured")

// FromConfig builds the configured embedding driver.
// Returns ErrNotConfigured when cfg.Provider is empty or the selected
// provider is missing its credential.
func FromConfig(cfg config.EmbeddingConfig) (contracts.EmbeddingDriver, error) {
	switch cfg.Provider {
	case "":
		return nil, ErrNotConfigured
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("%w: OPENAI_API_KEY is not set", ErrNotConfigured)
		}
		return NewOpenAIDriver(cfg.OpenAIAPIKey, cfg.OpenAIModel, WithOpenAIVersion(cfg.Version)), nil
	case "ollama":
		return NewOllamaDriver(cfg.OllamaEndpoint, cfg.OllamaModel, WithOllamaVersion(cfg.Version)), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

// Registry holds named embedding drivers. Thread-safe.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]contracts.EmbeddingDriver
}

// NewRegistry creates an empty embedding registry.
func NewRegistry() *Registry {
	return &Registry{
		drivers: make(map[string]contracts.EmbeddingDriver),
	}
}

// Register adds a driver under the given name. Overwrites if exists.
func (r *Registry) Register(name string, driver contracts.EmbeddingDriver) {
	r.mu.Lock()
	r.drivers[name] = driver
	r.mu.Unlock()
	log.Info().Str("name", name).Str("kind", driver.Kind()).Str("model", driver.Model()).Int("dims", driver.Dimensions()).Msg("Embedding driver registered")
}

// Get returns the driver by name, or error if not found.
func (r *Registry) Get(name string) (contracts.EmbeddingDriver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[name]
	if !ok {
		return nil, fmt.Errorf("embedding driver not found: %s", name)
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
	snapshot := make(map[string]contracts.EmbeddingDriver, len(r.drivers))
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
