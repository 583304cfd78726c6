package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/and27/supportops/pkg/models"
)

// DefaultMaxVectors is the default cap for the embedded store (50K).
// Exceeding this triggers a warning nudging users to upgrade.
const DefaultMaxVectors = 50_000

// EmbeddedStore is a lightweight in-memory vector store using brute-force
// cosine similarity search. Suitable for development and small knowledge
// bases (≤50K chunks). For production, use pgvector.
type EmbeddedStore struct {
	mu         sync.RWMutex
	chunks     map[string]*models.ChunkVector
	maxVectors int
}

// EmbeddedOption configures the embedded store.
type EmbeddedOption func(*EmbeddedStore)

// WithMaxVectors sets the maximum number of vectors (default 50K).
func WithMaxVectors(max int) EmbeddedOption {
	return func(s *EmbeddedStore) { s.maxVectors = max }
}

// NewEmbeddedStore creates an in-memory vector store.
func NewEmbeddedStore(opts ...EmbeddedOption) *EmbeddedStore {
	s := &EmbeddedStore{
		chunks:     make(map[string]*models.ChunkVector),
		maxVectors: DefaultMaxVectors,
	}
	for _, opt := range opts {
		opt(s)
	}
	log.Info().Int("max_vectors", s.maxVectors).Msg("Embedded vector store initialized")
	return s
}

func (s *EmbeddedStore) Kind() string { return "embedded" }

func (s *EmbeddedStore) Upsert(_ context.Context, orgID string, docs []models.ChunkVector) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check capacity
	newCount := 0
	for _, d := range docs {
		if _, exists := s.chunks[d.ID]; !exists {
			newCount++
		}
	}
	total := len(s.chunks) + newCount
	if total > s.maxVectors {
		return fmt.Errorf("embedded vector store capacity exceeded: %d > %d (consider pgvector)", total, s.maxVectors)
	}
	if total > int(float64(s.maxVectors)*0.9) {
		log.Warn().Int("count", total).Int("max", s.maxVectors).Msg("Embedded vector store nearing capacity")
	}

	now := time.Now()
	for _, d := range docs {
		cp := d
		if cp.OrgID == "" {
			cp.OrgID = orgID
		}
		if cp.ID == "" {
			cp.ID = uuid.NewString()
		}
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = now
		}
		s.chunks[cp.ID] = &cp
	}
	return nil
}

// Search ranks all stored chunks for the org (plus global chunks, which
// carry an empty org id) by cosine similarity. Matches below minSimilarity
// are dropped before the topK cut.
func (s *EmbeddedStore) Search(_ context.Context, orgID string, vector []float64, topK int, minSimilarity float64) ([]models.VectorMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		chunk *models.ChunkVector
		score float64
	}
	var candidates []scored

	for _, c := range s.chunks {
		if orgID != "" && c.OrgID != "" && c.OrgID != orgID {
			continue
		}
		if len(c.Vector) != len(vector) {
			continue
		}
		score := cosineSimilarity(vector, c.Vector)
		if score < minSimilarity {
			continue
		}
		candidates = append(candidates, scored{chunk: c, score: score})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if topK > len(candidates) {
		topK = len(candidates)
	}

	results := make([]models.VectorMatch, topK)
	for i := 0; i < topK; i++ {
		c := candidates[i].chunk
		results[i] = models.VectorMatch{
			ID:            c.ID,
			DocumentID:    c.DocumentID,
			DocumentTitle: c.DocumentTitle,
			OrgID:         c.OrgID,
			Content:       c.Content,
			Similarity:    candidates[i].score,
		}
	}
	return results, nil
}

func (s *EmbeddedStore) Delete(_ context.Context, _ string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.chunks, id)
	}
	return nil
}

func (s *EmbeddedStore) Count(_ context.Context, orgID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, c := range s.chunks {
		if orgID == "" || c.OrgID == orgID {
			count++
		}
	}
	return count, nil
}

func (s *EmbeddedStore) HealthCheck(_ context.Context) error {
	return nil // always healthy — it's in-memory
}

// ── Helpers ─────────────────────────────────────────────────

func cosineSimilarity(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
