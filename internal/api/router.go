package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/and27/supportops/internal/api/handlers"
	"github.com/and27/supportops/internal/api/middleware"
	"github.com/and27/supportops/internal/config"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.TenantExtractor)
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Org-Id", "X-Org-Role", "X-User-Id", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "X-Trace-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	auth := middleware.NewAPIKeyAuth(cfg.Auth.APIKeys)
	r.Use(auth.Middleware)

	// Health & info
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/chat", h.Chat)
		r.Post("/ingest", h.Ingest)

		// Knowledge base
		r.Route("/kb/documents", func(r chi.Router) {
			r.Get("/", h.ListDocuments)
			r.Post("/", h.CreateDocument)
			r.Get("/search", h.SearchDocuments)
			r.Route("/{documentId}", func(r chi.Router) {
				r.Get("/", h.GetDocument)
				r.Patch("/", h.UpdateDocument)
				r.Delete("/", h.DeleteDocument)
			})
		})

		// Orgs (tenants)
		r.Route("/orgs", func(r chi.Router) {
			r.Get("/", h.ListOrgs)
			r.Post("/", h.CreateOrg)
			r.Get("/{orgId}", h.GetOrg)
		})

		// Conversations
		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", h.ListConversations)
			r.Route("/{conversationId}", func(r chi.Router) {
				r.Get("/", h.GetConversation)
				r.Get("/messages", h.ListConversationMessages)
			})
		})

		// Tickets
		r.Route("/tickets", func(r chi.Router) {
			r.Get("/", h.ListTickets)
			r.Get("/{ticketId}", h.GetTicket)
		})

		// Agent runs (audit log)
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", h.ListRuns)
			r.Get("/{runId}", h.GetRun)
		})

		// Provider introspection
		r.Route("/embeddings", func(r chi.Router) {
			r.Get("/", h.ListEmbeddingDrivers)
			r.Get("/health", h.EmbeddingHealth)
		})
		r.Route("/vectorstores", func(r chi.Router) {
			r.Get("/", h.ListVectorStoreDrivers)
			r.Get("/health", h.VectorStoreHealth)
		})
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "supportops-agent",
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "supportops-agent",
		})
	}
}
