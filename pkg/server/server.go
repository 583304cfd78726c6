// Package server is the public entry point for initializing the supportops
// agent backend. It wires config, stores, providers, the decision engine,
// and the HTTP router into one ready-to-serve unit.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/and27/supportops/internal/answer"
	"github.com/and27/supportops/internal/api"
	"github.com/and27/supportops/internal/api/handlers"
	"github.com/and27/supportops/internal/completion"
	"github.com/and27/supportops/internal/config"
	"github.com/and27/supportops/internal/embeddings"
	"github.com/and27/supportops/internal/guardrails"
	"github.com/and27/supportops/internal/ingest"
	"github.com/and27/supportops/internal/policy"
	"github.com/and27/supportops/internal/retention"
	"github.com/and27/supportops/internal/retrieval"
	"github.com/and27/supportops/internal/store"
	"github.com/and27/supportops/internal/telemetry"
	"github.com/and27/supportops/internal/vectorstore"
	"github.com/and27/supportops/pkg/contracts"
	"github.com/and27/supportops/pkg/models"
)

// Server holds the initialized supportops backend.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Store is the data store (in-memory or PostgreSQL).
	Store store.Store

	// Config is the loaded configuration.
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush telemetry
	// and stop background workers.
	ShutdownFunc func(context.Context) error
}

// New initializes all components from environment configuration.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the backend with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	telemetryShutdown, err := telemetry.Init(cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	vecRegistry := vectorstore.NewRegistry()
	dataStore, vectorName, err := buildStores(ctx, cfg, vecRegistry)
	if err != nil {
		return nil, err
	}

	var vectors contracts.VectorStore
	if vectorName != "" {
		vectors, err = vecRegistry.Get(vectorName)
		if err != nil {
			return nil, fmt.Errorf("vector store: %w", err)
		}
	}

	seedDefaultOrg(ctx, dataStore, cfg.DefaultOrgSlug)

	embedRegistry := embeddings.NewRegistry()
	if drv, err := embeddings.FromConfig(cfg.Embedding); err != nil {
		// Vector retrieval and ingestion degrade; everything else works.
		log.Warn().Err(err).Msg("Embedding provider not configured")
	} else {
		embedRegistry.Register(cfg.Embedding.Provider, drv)
	}

	var embedder contracts.EmbeddingDriver
	if drv, err := embedRegistry.Get(cfg.Embedding.Provider); err == nil {
		embedder = drv
		log.Info().Str("provider", cfg.Embedding.Provider).Msg("✅ Embedding provider initialized")
	}

	completionClient := completion.FromConfig(cfg.Completion)
	if completionClient == nil {
		log.Warn().Msg("Completion provider not configured, using templated answers")
	} else {
		log.Info().Str("provider", cfg.Completion.Provider).Msg("✅ Completion provider initialized")
	}

	generator := answer.NewGenerator(completionClient, cfg.Policy)
	retriever := retrieval.New(dataStore, embedder, vectors, generator, cfg.Retrieval)
	checker := guardrails.NewChecker(cfg.Policy)
	engine := policy.NewEngine(dataStore, retriever, checker, cfg.Policy)
	pipeline := ingest.NewPipeline(dataStore, embedder, vectors, cfg.Ingest)
	orgs := policy.NewOrgResolver(dataStore, cfg.DefaultOrgSlug)

	h := handlers.New(dataStore, engine, pipeline, orgs, vectors, cfg.Ingest.AutoIngest)
	h.Embeddings = embedRegistry
	h.VectorDrivers = vecRegistry
	router := api.NewRouter(cfg, h)

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	go retention.NewJanitor(dataStore, cfg.Retention.RunTTL, 0).Start(janitorCtx)

	shutdown := func(ctx context.Context) error {
		stopJanitor()
		return telemetryShutdown(ctx)
	}

	return &Server{
		Handler:      router,
		Store:        dataStore,
		Config:       cfg,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}

// buildStores selects the storage backends. With DATABASE_URL set, the
// relational store and the pgvector store share one connection pool;
// otherwise everything runs in memory. The vector driver is registered
// under its kind and the active name is returned ("" when disabled).
func buildStores(ctx context.Context, cfg *config.Config, vectors *vectorstore.Registry) (store.Store, string, error) {
	if cfg.Database.URL == "" {
		log.Info().Msg("✅ In-memory store initialized")
		if !cfg.Retrieval.VectorEnabled {
			return store.NewMemoryStore(), "", nil
		}
		emb := vectorstore.NewEmbeddedStore()
		vectors.Register(emb.Kind(), emb)
		return store.NewMemoryStore(), emb.Kind(), nil
	}

	pg, err := store.NewPostgresStore(ctx, cfg.Database.URL, cfg.Database.MaxConnections)
	if err != nil {
		return nil, "", fmt.Errorf("postgres store: %w", err)
	}
	log.Info().Msg("✅ PostgreSQL store initialized")

	if !cfg.Retrieval.VectorEnabled {
		return pg, "", nil
	}
	pgv, err := vectorstore.NewPgvectorStoreWithPool(ctx, pg.Pool(), cfg.Retrieval.Dimensions)
	if err != nil {
		pg.Close()
		return nil, "", fmt.Errorf("pgvector store: %w", err)
	}
	vectors.Register(pgv.Kind(), pgv)
	return pg, pgv.Kind(), nil
}

// seedDefaultOrg guarantees the fallback tenant exists so unscoped requests
// resolve. Failure is non-fatal; explicit org ids still work.
func seedDefaultOrg(ctx context.Context, s store.Store, slug string) {
	if slug == "" {
		slug = "default"
	}
	if _, err := s.GetOrgBySlug(ctx, slug); err == nil {
		return
	}
	org := &models.Org{
		Name:      "Default",
		Slug:      slug,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateOrg(ctx, org); err != nil {
		log.Warn().Err(err).Str("slug", slug).Msg("Failed to seed default org")
		return
	}
	log.Info().Str("slug", slug).Msg("✅ Default org seeded")
}
