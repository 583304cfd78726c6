package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/and27/supportops/internal/config"
	"github.com/and27/supportops/internal/store"
	"github.com/and27/supportops/internal/vectorstore"
	"github.com/and27/supportops/pkg/models"
)

type stubEmbedder struct {
	vector []float64
	err    error
}

func (s *stubEmbedder) Kind() string      { return "stub" }
func (s *stubEmbedder) Model() string     { return "stub-model" }
func (s *stubEmbedder) Version() string   { return "v1" }
func (s *stubEmbedder) Dimensions() int   { return len(s.vector) }
func (s *stubEmbedder) MaxBatchSize() int { return 100 }

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = s.vector
	}
	return out, nil
}

func (s *stubEmbedder) HealthCheck(_ context.Context) error { return nil }

type stubGenerator struct {
	reply      string
	confidence float64
}

func (s *stubGenerator) Generate(_ context.Context, _ string, evidence []models.RetrievalCandidate, _, _ string) (string, float64, map[string]any) {
	return s.reply, s.confidence, map[string]any{"generation_source": "stub", "evidence_count": len(evidence)}
}

func testConfig() config.RetrievalConfig {
	return config.RetrievalConfig{
		VectorEnabled: true,
		MatchCount:    3,
		MinSimilarity: 0.2,
		MaxChunks:     4,
		MaxPerDoc:     2,
	}
}

func newTestRetriever(t *testing.T, embedder *stubEmbedder, cfg config.RetrievalConfig) (*Retriever, *store.MemoryStore, *vectorstore.EmbeddedStore) {
	t.Helper()
	t.Setenv("SUPPORTOPS_DATA_DIR", "")
	st := store.NewMemoryStore()
	t.Cleanup(func() { st.Close() })
	vs := vectorstore.NewEmbeddedStore()
	gen := &stubGenerator{reply: "generated answer", confidence: 0.8}
	return New(st, embedder, vs, gen, cfg), st, vs
}

func TestRetrieveEmptyMessage(t *testing.T) {
	r, _, _ := newTestRetriever(t, &stubEmbedder{vector: []float64{1, 0}}, testConfig())
	for _, msg := range []string{"", "   ", ",,,"} {
		res, err := r.Retrieve(context.Background(), msg, "org-1", "")
		if err != nil || res != nil {
			t.Errorf("Retrieve(%q) = %v, %v; want nil, nil", msg, res, err)
		}
	}
}

func TestRetrieveTagIsAuthoritative(t *testing.T) {
	r, st, vs := newTestRetriever(t, &stubEmbedder{vector: []float64{1, 0}}, testConfig())
	ctx := context.Background()

	st.CreateDocument(ctx, &models.Document{OrgID: "org-1", Title: "Billing guide", Content: "How invoices work.", Tags: []string{"billing"}})
	// A perfect vector match exists, but the tag hit must win.
	vs.Upsert(ctx, "org-1", []models.ChunkVector{{ID: "c1", DocumentID: "other", Content: "x", Vector: []float64{1, 0}}})

	res, err := r.Retrieve(ctx, "question about #billing today", "org-1", "")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if res == nil {
		t.Fatal("expected a result")
	}
	if res.Metadata["retrieval_source"] != "document" || res.Metadata["matched_tag"] != "billing" {
		t.Errorf("metadata = %v", res.Metadata)
	}
	if res.Confidence != docMatchConfidence {
		t.Errorf("confidence = %v", res.Confidence)
	}
	if len(res.Citations) != 1 || res.Citations[0].KBDocumentID == "" {
		t.Errorf("citations = %+v", res.Citations)
	}
}

func TestRetrieveVectorPath(t *testing.T) {
	r, _, vs := newTestRetriever(t, &stubEmbedder{vector: []float64{1, 0}}, testConfig())
	ctx := context.Background()

	vs.Upsert(ctx, "org-1", []models.ChunkVector{
		{ID: "c1", DocumentID: "d1", DocumentTitle: "Resets", Content: "reset steps", Vector: []float64{1, 0}},
		{ID: "c2", DocumentID: "d1", DocumentTitle: "Resets", Content: "more steps", Vector: []float64{0.9, 0.1}},
	})

	res, err := r.Retrieve(ctx, "how do I reset my account password", "org-1", "trace-1")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if res == nil {
		t.Fatal("expected a result")
	}
	if res.Metadata["retrieval_source"] != "vector" {
		t.Errorf("retrieval_source = %v", res.Metadata["retrieval_source"])
	}
	if res.Reply != "generated answer" || res.Confidence != 0.8 {
		t.Errorf("reply=%q confidence=%v", res.Reply, res.Confidence)
	}
	if res.Metadata["top_similarity"].(float64) < 0.99 {
		t.Errorf("top_similarity = %v", res.Metadata["top_similarity"])
	}
	if len(res.Citations) != 2 {
		t.Errorf("citations = %+v", res.Citations)
	}
}

func TestRetrieveVectorFailureFallsThrough(t *testing.T) {
	r, st, _ := newTestRetriever(t, &stubEmbedder{err: errors.New("provider down")}, testConfig())
	ctx := context.Background()

	st.CreateDocument(ctx, &models.Document{OrgID: "org-1", Title: "Password reset", Content: "Steps to reset."})

	res, err := r.Retrieve(ctx, "how do I reset my account password", "org-1", "")
	if err != nil {
		t.Fatalf("embedding failure must not fail the request: %v", err)
	}
	if res == nil {
		t.Fatal("expected keyword fallback result")
	}
	if res.Metadata["retrieval_source"] != "document" {
		t.Errorf("metadata = %v", res.Metadata)
	}
}

func TestRetrieveVectorDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.VectorEnabled = false
	r, st, vs := newTestRetriever(t, &stubEmbedder{vector: []float64{1, 0}}, cfg)
	ctx := context.Background()

	vs.Upsert(ctx, "org-1", []models.ChunkVector{{ID: "c1", DocumentID: "d1", Content: "x", Vector: []float64{1, 0}}})
	st.CreateDocument(ctx, &models.Document{OrgID: "org-1", Title: "Password reset", Content: "Steps."})

	res, err := r.Retrieve(ctx, "how do I reset my account password", "org-1", "")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if res == nil || res.Metadata["retrieval_source"] != "document" {
		t.Errorf("expected document result with vector disabled, got %+v", res)
	}
}

func TestRetrieveKeywordStopsFullText(t *testing.T) {
	r, st, _ := newTestRetriever(t, &stubEmbedder{vector: []float64{1, 0}}, config.RetrievalConfig{MatchCount: 3, MaxChunks: 4, MaxPerDoc: 2})
	ctx := context.Background()

	// Query yields keywords but none match: the keyword strategy owns the
	// miss and full-text is never tried.
	st.CreateDocument(ctx, &models.Document{OrgID: "org-1", Title: "zzzz", Content: "unaffiliated text"})

	res, err := r.Retrieve(ctx, "completely unrelated question words", "org-1", "")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if res != nil {
		t.Errorf("expected no result, got %+v", res)
	}
}

func TestRetrieveFullTextFallback(t *testing.T) {
	r, st, _ := newTestRetriever(t, &stubEmbedder{vector: []float64{1, 0}}, config.RetrievalConfig{MatchCount: 3, MaxChunks: 4, MaxPerDoc: 2})
	ctx := context.Background()

	st.CreateDocument(ctx, &models.Document{OrgID: "org-1", Title: "FAQ", Content: "the app faq"})

	// No token longer than 3 chars, so keywords defer and full-text runs.
	res, err := r.Retrieve(ctx, "app faq", "org-1", "")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if res == nil {
		t.Fatal("expected full-text result")
	}
	if res.Metadata["retrieval_source"] != "document" {
		t.Errorf("metadata = %v", res.Metadata)
	}
}
