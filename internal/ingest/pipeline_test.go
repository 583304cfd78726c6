package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/and27/supportops/internal/config"
	"github.com/and27/supportops/internal/store"
	"github.com/and27/supportops/internal/vectorstore"
	"github.com/and27/supportops/pkg/models"
)

// fakeEmbedder counts Embed calls so tests can assert the zero-embedding
// invariant on unchanged re-ingestion.
type fakeEmbedder struct {
	calls int
	texts int
}

func (f *fakeEmbedder) Kind() string      { return "fake" }
func (f *fakeEmbedder) Model() string     { return "fake-model" }
func (f *fakeEmbedder) Version() string   { return "v1" }
func (f *fakeEmbedder) Dimensions() int   { return 3 }
func (f *fakeEmbedder) MaxBatchSize() int { return 100 }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	f.calls++
	f.texts += len(texts)
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{1, 0, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) HealthCheck(_ context.Context) error { return nil }

func newTestPipeline(t *testing.T) (*Pipeline, *store.MemoryStore, *fakeEmbedder, *vectorstore.EmbeddedStore) {
	t.Helper()
	t.Setenv("SUPPORTOPS_DATA_DIR", "")
	st := store.NewMemoryStore()
	t.Cleanup(func() { st.Close() })
	emb := &fakeEmbedder{}
	vs := vectorstore.NewEmbeddedStore()
	p := NewPipeline(st, emb, vs, config.IngestConfig{ChunkSize: 120, ChunkOverlap: 20})
	return p, st, emb, vs
}

func seedDocument(t *testing.T, st *store.MemoryStore, content string) *models.Document {
	t.Helper()
	doc := &models.Document{OrgID: "org-1", Title: "Reset guide", Content: content}
	if err := st.CreateDocument(context.Background(), doc); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	return doc
}

func TestIngestIdempotent(t *testing.T) {
	p, st, emb, _ := newTestPipeline(t)
	ctx := context.Background()
	doc := seedDocument(t, st, "how to reset your password step by step")

	first, err := p.Run(ctx, models.IngestRequest{DocumentID: doc.ID})
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if first.ChunksInserted == 0 {
		t.Fatal("first ingest inserted nothing")
	}

	second, err := p.Run(ctx, models.IngestRequest{DocumentID: doc.ID})
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if second.ChunksInserted != 0 || second.ChunksDeleted != 0 {
		t.Errorf("second ingest: inserted=%d deleted=%d, want 0/0", second.ChunksInserted, second.ChunksDeleted)
	}
	if second.ChunksSkipped != second.ChunksTotal {
		t.Errorf("skipped=%d, want total=%d", second.ChunksSkipped, second.ChunksTotal)
	}
	// Unchanged content performs zero embedding calls on the second run.
	if emb.calls != 1 {
		t.Errorf("embed calls = %d, want 1", emb.calls)
	}
}

func TestIngestForceReplacesEverything(t *testing.T) {
	p, st, _, _ := newTestPipeline(t)
	ctx := context.Background()
	doc := seedDocument(t, st, "how to reset your password step by step")

	first, err := p.Run(ctx, models.IngestRequest{DocumentID: doc.ID})
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}

	forced, err := p.Run(ctx, models.IngestRequest{DocumentID: doc.ID, Force: true})
	if err != nil {
		t.Fatalf("forced ingest: %v", err)
	}
	if forced.ChunksDeleted != first.ChunksInserted {
		t.Errorf("deleted=%d, want previous count %d", forced.ChunksDeleted, first.ChunksInserted)
	}
	if forced.ChunksInserted != forced.ChunksTotal {
		t.Errorf("inserted=%d, want full set %d", forced.ChunksInserted, forced.ChunksTotal)
	}
}

func TestIngestContentChange(t *testing.T) {
	p, st, _, _ := newTestPipeline(t)
	ctx := context.Background()
	doc := seedDocument(t, st, "original content about billing")

	if _, err := p.Run(ctx, models.IngestRequest{DocumentID: doc.ID}); err != nil {
		t.Fatalf("first ingest: %v", err)
	}

	doc.Content = "rewritten content about refunds"
	if err := st.UpdateDocument(ctx, doc); err != nil {
		t.Fatalf("UpdateDocument: %v", err)
	}

	res, err := p.Run(ctx, models.IngestRequest{DocumentID: doc.ID})
	if err != nil {
		t.Fatalf("re-ingest: %v", err)
	}
	if res.ChunksDeleted != 1 || res.ChunksInserted != 1 {
		t.Errorf("deleted=%d inserted=%d, want 1/1", res.ChunksDeleted, res.ChunksInserted)
	}

	chunks, _ := st.ListChunksByDocument(ctx, doc.ID)
	if len(chunks) != 1 || chunks[0].Content != "rewritten content about refunds" {
		t.Errorf("stored chunks = %+v", chunks)
	}
}

func TestIngestDedupWithinDocument(t *testing.T) {
	p, st, emb, _ := newTestPipeline(t)
	ctx := context.Background()

	// Windows [0:3] and [2:5] are both "x y x": identical content within
	// one document is stored once.
	doc := seedDocument(t, st, "x y x y x")

	res, err := p.Run(ctx, models.IngestRequest{DocumentID: doc.ID, ChunkSize: 3, ChunkOverlap: 1})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.ChunksTotal != 1 {
		t.Errorf("chunks_total = %d, want 1 after dedup", res.ChunksTotal)
	}
	chunks, _ := st.ListChunksByDocument(ctx, doc.ID)
	seen := map[string]bool{}
	for _, c := range chunks {
		if seen[c.ChunkHash] {
			t.Fatalf("duplicate chunk hash stored: %s", c.ChunkHash)
		}
		seen[c.ChunkHash] = true
	}
	if emb.texts != len(chunks) {
		t.Errorf("embedded %d texts for %d stored chunks", emb.texts, len(chunks))
	}
}

func TestIngestErrors(t *testing.T) {
	p, st, _, _ := newTestPipeline(t)
	ctx := context.Background()

	if _, err := p.Run(ctx, models.IngestRequest{DocumentID: "missing"}); err == nil {
		t.Error("expected not found for unknown document")
	}

	empty := seedDocument(t, st, "   ")
	if _, err := p.Run(ctx, models.IngestRequest{DocumentID: empty.ID}); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("expected ErrEmptyContent, got %v", err)
	}

	doc := seedDocument(t, st, "some real content here")
	if _, err := p.Run(ctx, models.IngestRequest{DocumentID: doc.ID, OrgID: "other-org"}); err == nil {
		t.Error("expected not found for cross-org ingest")
	}

	orphan := &models.Document{Title: "no org", Content: "text"}
	st.CreateDocument(ctx, orphan)
	if _, err := p.Run(ctx, models.IngestRequest{DocumentID: orphan.ID}); !errors.Is(err, ErrMissingOrg) {
		t.Errorf("expected ErrMissingOrg, got %v", err)
	}
}

func TestIngestWithoutEmbedder(t *testing.T) {
	t.Setenv("SUPPORTOPS_DATA_DIR", "")
	st := store.NewMemoryStore()
	t.Cleanup(func() { st.Close() })
	p := NewPipeline(st, nil, nil, config.IngestConfig{ChunkSize: 120, ChunkOverlap: 20})

	doc := seedDocument(t, st, "content that needs embedding")
	if _, err := p.Run(context.Background(), models.IngestRequest{DocumentID: doc.ID}); !errors.Is(err, ErrNoEmbedder) {
		t.Errorf("expected ErrNoEmbedder, got %v", err)
	}
}

func TestIngestPopulatesVectorStore(t *testing.T) {
	p, st, _, vs := newTestPipeline(t)
	ctx := context.Background()
	doc := seedDocument(t, st, "vector indexed content")

	if _, err := p.Run(ctx, models.IngestRequest{DocumentID: doc.ID}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	count, _ := vs.Count(ctx, "org-1")
	if count != 1 {
		t.Errorf("vector count = %d, want 1", count)
	}
	matches, _ := vs.Search(ctx, "org-1", []float64{1, 0, 0}, 1, 0)
	if len(matches) != 1 || matches[0].DocumentTitle != "Reset guide" {
		t.Errorf("matches = %+v", matches)
	}
}
