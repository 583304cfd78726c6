package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/and27/supportops/internal/config"
	"github.com/and27/supportops/internal/store"
	"github.com/and27/supportops/pkg/contracts"
	"github.com/and27/supportops/pkg/models"
)

// ErrEmptyContent is returned when chunking a document yields no chunks.
var ErrEmptyContent = errors.New("document content is empty")

// ErrMissingOrg is returned when a document has no owning org. Chunks are
// tenant-scoped, so an ownerless document cannot be ingested.
var ErrMissingOrg = errors.New("document has no owning org")

// ErrNoEmbedder is returned when chunks need embedding but no embedding
// driver is configured.
var ErrNoEmbedder = errors.New("no embedding driver configured")

// Pipeline orchestrates chunk → hash → diff → embed → persist for one
// document at a time. Safe for concurrent use; each Run is independent.
type Pipeline struct {
	store    store.Store
	embedder contracts.EmbeddingDriver // nil when embedding is disabled
	vectors  contracts.VectorStore     // nil when vector search is disabled
	defaults config.IngestConfig
}

// NewPipeline creates an ingestion pipeline. embedder and vectors may be nil.
func NewPipeline(st store.Store, embedder contracts.EmbeddingDriver, vectors contracts.VectorStore, defaults config.IngestConfig) *Pipeline {
	return &Pipeline{store: st, embedder: embedder, vectors: vectors, defaults: defaults}
}

// Run ingests one document. Re-running with unchanged content performs zero
// embedding calls; force mode deletes everything and re-embeds the full set.
func (p *Pipeline) Run(ctx context.Context, req models.IngestRequest) (*models.IngestResult, error) {
	chunkSize := req.ChunkSize
	if chunkSize <= 0 {
		chunkSize = p.defaults.ChunkSize
	}
	chunkOverlap := req.ChunkOverlap
	if chunkOverlap <= 0 {
		chunkOverlap = p.defaults.ChunkOverlap
	}

	log.Info().
		Str("document_id", req.DocumentID).
		Int("chunk_size", chunkSize).
		Int("chunk_overlap", chunkOverlap).
		Bool("force", req.Force).
		Msg("Ingest started")

	doc, err := p.store.GetDocument(ctx, req.DocumentID)
	if err != nil {
		return nil, err
	}
	if req.OrgID != "" && doc.OrgID != req.OrgID {
		// A caller scoped to another org must not learn the document exists.
		return nil, &store.ErrNotFound{Entity: "document", Key: req.DocumentID}
	}
	if doc.OrgID == "" {
		return nil, ErrMissingOrg
	}

	chunks := ChunkText(doc.Content, chunkSize, chunkOverlap)
	if len(chunks) == 0 {
		return nil, ErrEmptyContent
	}

	// Dedup within the new chunk set: the index of a hash is its first
	// occurrence, so chunk_index survives dedup.
	uniqueIndex := make(map[string]int, len(chunks))
	var uniqueHashes []string
	for i, chunk := range chunks {
		h := HashChunk(chunk)
		if _, seen := uniqueIndex[h]; seen {
			continue
		}
		uniqueIndex[h] = i
		uniqueHashes = append(uniqueHashes, h)
	}

	existing, err := p.store.ListChunksByDocument(ctx, req.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	existingByHash := make(map[string]string, len(existing)) // hash → id
	for _, c := range existing {
		if c.ChunkHash != "" {
			existingByHash[c.ChunkHash] = c.ID
		}
	}

	var toDelete []string
	if req.Force {
		for _, id := range existingByHash {
			toDelete = append(toDelete, id)
		}
	} else {
		for h, id := range existingByHash {
			if _, keep := uniqueIndex[h]; !keep {
				toDelete = append(toDelete, id)
			}
		}
	}

	chunksDeleted := 0
	if len(toDelete) > 0 {
		if err := p.store.DeleteChunks(ctx, toDelete); err != nil {
			return nil, fmt.Errorf("delete chunks: %w", err)
		}
		if p.vectors != nil {
			if err := p.vectors.Delete(ctx, doc.OrgID, toDelete); err != nil {
				return nil, fmt.Errorf("delete chunk vectors: %w", err)
			}
		}
		chunksDeleted = len(toDelete)
	}

	if req.Force {
		existingByHash = map[string]string{}
	}

	var insertHashes []string
	var insertTexts []string
	for _, h := range uniqueHashes {
		if _, stored := existingByHash[h]; stored {
			continue
		}
		insertHashes = append(insertHashes, h)
		insertTexts = append(insertTexts, chunks[uniqueIndex[h]])
	}

	result := &models.IngestResult{
		DocumentID:  req.DocumentID,
		ChunksTotal: len(uniqueHashes),
	}

	if len(insertTexts) > 0 {
		if p.embedder == nil {
			return nil, ErrNoEmbedder
		}
		embeddings, err := p.embedder.Embed(ctx, insertTexts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks: %w", err)
		}

		rows := make([]models.Chunk, len(insertTexts))
		for i := range insertTexts {
			rows[i] = models.Chunk{
				DocumentID:       req.DocumentID,
				OrgID:            doc.OrgID,
				ChunkIndex:       uniqueIndex[insertHashes[i]],
				Content:          insertTexts[i],
				ChunkHash:        insertHashes[i],
				Embedding:        embeddings[i],
				EmbeddingModel:   p.embedder.Model(),
				EmbeddingVersion: p.embedder.Version(),
			}
		}
		if err := p.store.CreateChunks(ctx, rows); err != nil {
			return nil, fmt.Errorf("insert chunks: %w", err)
		}

		if p.vectors != nil {
			vecs := make([]models.ChunkVector, len(rows))
			for i, c := range rows {
				vecs[i] = models.ChunkVector{
					ID:            c.ID,
					DocumentID:    c.DocumentID,
					DocumentTitle: doc.Title,
					OrgID:         c.OrgID,
					Content:       c.Content,
					Vector:        c.Embedding,
				}
			}
			if err := p.vectors.Upsert(ctx, doc.OrgID, vecs); err != nil {
				return nil, fmt.Errorf("upsert chunk vectors: %w", err)
			}
		}
		result.ChunksInserted = len(rows)
	}

	if p.embedder != nil {
		result.EmbeddingModel = p.embedder.Model()
		result.EmbeddingVersion = p.embedder.Version()
	}
	result.ChunksSkipped = result.ChunksTotal - result.ChunksInserted
	result.ChunksDeleted = chunksDeleted

	log.Info().
		Str("document_id", req.DocumentID).
		Int("chunks_total", result.ChunksTotal).
		Int("chunks_inserted", result.ChunksInserted).
		Int("chunks_skipped", result.ChunksSkipped).
		Int("chunks_deleted", result.ChunksDeleted).
		Msg("Ingest complete")

	return result, nil
}
