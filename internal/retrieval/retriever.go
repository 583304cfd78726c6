package retrieval

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/and27/supportops/internal/config"
	"github.com/and27/supportops/internal/store"
	"github.com/and27/supportops/pkg/contracts"
	"github.com/and27/supportops/pkg/models"
)

// docExcerptChars bounds the excerpt quoted in a document-level reply.
const docExcerptChars = 360

// docMatchConfidence is the fixed confidence for tag/keyword/full-text hits,
// which carry no similarity signal.
const docMatchConfidence = 0.85

// AnswerGenerator produces a grounded reply from selected evidence. It never
// hard-fails: on any provider problem it falls back to a templated answer.
type AnswerGenerator interface {
	Generate(ctx context.Context, query string, evidence []models.RetrievalCandidate, orgID, traceID string) (reply string, confidence float64, metadata map[string]any)
}

// Retriever implements contracts.Retriever over the document store, the
// vector store, and the answer generator.
type Retriever struct {
	store      store.DocumentStore
	embedder   contracts.EmbeddingDriver // nil disables the vector strategy
	vectors    contracts.VectorStore     // nil disables the vector strategy
	generator  AnswerGenerator
	cfg        config.RetrievalConfig
	strategies []strategy
}

// strategy is one named retrieval step. It returns (result, done):
// a non-nil result wins; done without a result stops the walk empty-handed;
// neither defers to the next strategy.
type strategy struct {
	name string
	run  func(ctx context.Context, query, orgID, traceID string) (*contracts.RetrievalResult, bool, error)
}

// New creates a retriever. embedder and vectors may be nil; the vector
// strategy then always defers.
func New(st store.DocumentStore, embedder contracts.EmbeddingDriver, vectors contracts.VectorStore, generator AnswerGenerator, cfg config.RetrievalConfig) *Retriever {
	r := &Retriever{
		store:     st,
		embedder:  embedder,
		vectors:   vectors,
		generator: generator,
		cfg:       cfg,
	}
	// Precedence is this list's order: tag routing is explicit user intent
	// and beats similarity; full-text only runs when nothing else applied.
	r.strategies = []strategy{
		{name: "tag", run: r.byTag},
		{name: "vector", run: r.byVector},
		{name: "keyword", run: r.byKeyword},
		{name: "fulltext", run: r.byFullText},
	}
	return r
}

// Retrieve runs the strategies in order and returns the first hit, or
// (nil, nil) when no strategy produced evidence.
func (r *Retriever) Retrieve(ctx context.Context, message, orgID, traceID string) (*contracts.RetrievalResult, error) {
	query := strings.TrimSpace(strings.ReplaceAll(message, ",", " "))
	if query == "" {
		return nil, nil
	}

	for _, s := range r.strategies {
		result, done, err := s.run(ctx, query, orgID, traceID)
		if err != nil {
			return nil, err
		}
		if result != nil {
			log.Info().
				Str("strategy", s.name).
				Str("org_id", orgID).
				Str("trace_id", traceID).
				Msg("Retrieval hit")
			return result, nil
		}
		if done {
			break
		}
	}
	return nil, nil
}

// ── Strategies ──────────────────────────────────────────────

func (r *Retriever) byTag(ctx context.Context, query, orgID, _ string) (*contracts.RetrievalResult, bool, error) {
	tags := ExtractHashTags(query)
	if len(tags) == 0 {
		return nil, false, nil
	}

	docs, err := r.store.FindDocumentsByTag(ctx, orgID, tags[0])
	if err != nil {
		log.Error().Err(err).Str("tag", tags[0]).Msg("Tag lookup failed")
		return nil, true, nil
	}
	log.Info().Str("tag", tags[0]).Str("org_id", orgID).Int("match_count", len(docs)).Msg("Tag lookup")
	if len(docs) == 0 {
		return nil, false, nil
	}
	return docResult(docs[0], map[string]any{
		"retrieval_source": "document",
		"matched_tag":      tags[0],
	}), false, nil
}

func (r *Retriever) byVector(ctx context.Context, query, orgID, traceID string) (*contracts.RetrievalResult, bool, error) {
	if !r.cfg.VectorEnabled || r.embedder == nil || r.vectors == nil {
		return nil, false, nil
	}

	// Any failure here is non-fatal: the request falls through to text
	// search instead of erroring.
	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil || len(embeddings) == 0 {
		log.Warn().Err(err).Msg("Query embedding failed, skipping vector strategy")
		return nil, false, nil
	}

	matches, err := r.vectors.Search(ctx, orgID, embeddings[0], r.cfg.MatchCount, r.cfg.MinSimilarity)
	if err != nil {
		log.Warn().Err(err).Msg("Vector search failed, skipping vector strategy")
		return nil, false, nil
	}
	if len(matches) == 0 {
		return nil, false, nil
	}

	candidates := make([]models.RetrievalCandidate, len(matches))
	for i, m := range matches {
		candidates[i] = m.Candidate()
	}
	evidence := SelectEvidence(candidates, r.cfg.MaxChunks, r.cfg.MaxPerDoc)

	reply, confidence, genMeta := r.generator.Generate(ctx, query, evidence, orgID, traceID)

	metadata := map[string]any{
		"retrieval_source": "vector",
		"match_count":      len(matches),
		"top_similarity":   matches[0].Similarity,
		"min_similarity":   r.cfg.MinSimilarity,
	}
	for k, v := range genMeta {
		metadata[k] = v
	}
	log.Info().
		Int("count", len(matches)).
		Float64("top_similarity", matches[0].Similarity).
		Float64("min_similarity", r.cfg.MinSimilarity).
		Str("trace_id", traceID).
		Msg("Vector matches")

	return &contracts.RetrievalResult{
		Reply:      reply,
		Citations:  BuildCitations(evidence),
		Confidence: confidence,
		Metadata:   metadata,
	}, false, nil
}

func (r *Retriever) byKeyword(ctx context.Context, query, orgID, _ string) (*contracts.RetrievalResult, bool, error) {
	keywords := ExtractKeywords(query)
	if len(keywords) == 0 {
		return nil, false, nil
	}

	// Keywords existed, so this strategy owns the outcome either way; the
	// full-text fallback only serves queries with no usable keywords.
	docs, err := r.store.SearchDocuments(ctx, orgID, keywords, r.cfg.MatchCount)
	if err != nil {
		log.Error().Err(err).Msg("Keyword search failed")
		return nil, true, nil
	}
	if len(docs) == 0 {
		return nil, true, nil
	}
	return docResult(docs[0], map[string]any{
		"retrieval_source":     "document",
		"document_match_count": len(docs),
	}), true, nil
}

func (r *Retriever) byFullText(ctx context.Context, query, orgID, _ string) (*contracts.RetrievalResult, bool, error) {
	docs, err := r.store.SearchDocuments(ctx, orgID, []string{query}, r.cfg.MatchCount)
	if err != nil {
		log.Error().Err(err).Msg("Full-text search failed")
		return nil, true, nil
	}
	if len(docs) == 0 {
		return nil, true, nil
	}
	return docResult(docs[0], map[string]any{
		"retrieval_source":     "document",
		"document_match_count": len(docs),
	}), true, nil
}

// docResult builds a reply straight from a document: title plus a bounded
// excerpt, one document-level citation.
func docResult(doc models.Document, metadata map[string]any) *contracts.RetrievalResult {
	excerpt := strings.ReplaceAll(strings.TrimSpace(doc.Content), "\n", " ")
	if len(excerpt) > docExcerptChars {
		excerpt = strings.TrimRight(excerpt[:docExcerptChars], " ") + "..."
	}
	title := doc.Title
	if title == "" {
		title = "Knowledge Base"
	}
	return &contracts.RetrievalResult{
		Reply:      title + ": " + excerpt,
		Citations:  []models.Citation{{KBDocumentID: doc.ID, Source: doc.Title}},
		Confidence: docMatchConfidence,
		Metadata:   metadata,
	}
}
