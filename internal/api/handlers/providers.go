package handlers

import (
	"net/http"
)

// ══════════════════════════════════════════════════════════════
// ── Provider Introspection ───────────────────────────────────
// ══════════════════════════════════════════════════════════════

// ListEmbeddingDrivers handles GET /api/v1/embeddings
func (h *Handlers) ListEmbeddingDrivers(w http.ResponseWriter, r *http.Request) {
	if h.Embeddings == nil {
		respondJSON(w, http.StatusOK, []string{})
		return
	}
	respondJSON(w, http.StatusOK, h.Embeddings.List())
}

// EmbeddingHealth handles GET /api/v1/embeddings/health.
// Always returns 200 with per-driver status in the body.
func (h *Handlers) EmbeddingHealth(w http.ResponseWriter, r *http.Request) {
	if h.Embeddings == nil {
		respondJSON(w, http.StatusOK, map[string]string{})
		return
	}
	respondJSON(w, http.StatusOK, healthStatus(h.Embeddings.HealthCheckAll(r.Context())))
}

// ListVectorStoreDrivers handles GET /api/v1/vectorstores
func (h *Handlers) ListVectorStoreDrivers(w http.ResponseWriter, r *http.Request) {
	if h.VectorDrivers == nil {
		respondJSON(w, http.StatusOK, []string{})
		return
	}
	respondJSON(w, http.StatusOK, h.VectorDrivers.List())
}

// VectorStoreHealth handles GET /api/v1/vectorstores/health.
// Always returns 200 with per-driver status in the body.
func (h *Handlers) VectorStoreHealth(w http.ResponseWriter, r *http.Request) {
	if h.VectorDrivers == nil {
		respondJSON(w, http.StatusOK, map[string]string{})
		return
	}
	respondJSON(w, http.StatusOK, healthStatus(h.VectorDrivers.HealthCheckAll(r.Context())))
}

func healthStatus(results map[string]error) map[string]string {
	status := make(map[string]string, len(results))
	for name, err := range results {
		if err != nil {
			status[name] = "error: " + err.Error()
		} else {
			status[name] = "ok"
		}
	}
	return status
}
