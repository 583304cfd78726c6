// Package contracts defines the provider and engine interfaces of the
// supportops backend.
//
// The decision engine, ingestion pipeline, and HTTP handlers depend only on
// these interfaces, never on a concrete provider or store. Concrete adapters
// live in internal/ (embeddings, vectorstore, completion, store); tests swap
// them for in-memory fakes.
package contracts

import (
	"context"

	"github.com/and27/supportops/pkg/models"
)

// ── Embedding Provider ──────────────────────────────────────

// EmbeddingDriver turns text into vectors. Implementations are stateless
// aside from credentials and model name; Model and Version are stamped onto
// stored chunks so a model change can bust stale embeddings.
type EmbeddingDriver interface {
	// Kind identifies the provider ("openai", "ollama").
	Kind() string

	// Model returns the embedding model name.
	Model() string

	// Version returns the configured embedding version tag, if any.
	Version() string

	// Dimensions returns the vector width produced by Model.
	Dimensions() int

	// MaxBatchSize returns the max texts per Embed call.
	MaxBatchSize() int

	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float64, error)

	// HealthCheck verifies the provider is reachable.
	HealthCheck(ctx context.Context) error
}

// ── Vector Store ────────────────────────────────────────────

// VectorStore is the similarity-search capability. Vector indexing and
// ranking are delegated entirely to the driver; callers only see ranked
// matches with similarity in [0,1].
type VectorStore interface {
	// Kind identifies the driver ("embedded", "pgvector").
	Kind() string

	// Upsert stores chunk vectors for an org.
	Upsert(ctx context.Context, orgID string, docs []models.ChunkVector) error

	// Delete removes chunk vectors by ID.
	Delete(ctx context.Context, orgID string, ids []string) error

	// Search returns up to topK matches with similarity >= minSimilarity,
	// ranked by descending similarity. An empty orgID searches all orgs.
	Search(ctx context.Context, orgID string, vector []float64, topK int, minSimilarity float64) ([]models.VectorMatch, error)

	// HealthCheck verifies the driver is usable.
	HealthCheck(ctx context.Context) error
}

// ── Completion Provider ─────────────────────────────────────

// CompletionClient is the remote text-completion capability used by the
// answer generator. Implementations handle transport-level retry; callers
// treat any returned error as final.
type CompletionClient interface {
	// Complete sends a system/user message pair and returns the reply text.
	Complete(ctx context.Context, system, user string) (string, error)
}

// ── Retriever ───────────────────────────────────────────────

// RetrievalResult is one evidence-grounded answer produced by retrieval.
type RetrievalResult struct {
	Reply      string
	Citations  []models.Citation
	Confidence float64
	// Metadata carries retrieval observability fields (retrieval_source,
	// match_count, top_similarity, ...) merged into the run record.
	Metadata map[string]any
}

// Retriever answers a query from the knowledge base, or reports no result.
type Retriever interface {
	// Retrieve returns nil (no error) when no strategy produced evidence.
	Retrieve(ctx context.Context, query, orgID, traceID string) (*RetrievalResult, error)
}
