package vectorstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/and27/supportops/pkg/models"
)

// PgvectorStore implements contracts.VectorStore using PostgreSQL with the
// pgvector extension. Users must provide their own PostgreSQL instance with
// pgvector installed.
type PgvectorStore struct {
	pool       *pgxpool.Pool
	dimensions int
}

// NewPgvectorStore creates a pgvector-backed vector store.
// It creates the required table and indexes if they don't exist.
func NewPgvectorStore(ctx context.Context, connURL string, dimensions int) (*PgvectorStore, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("pgvector connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector ping: %w", err)
	}

	s := &PgvectorStore{pool: pool, dimensions: dimensions}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector migrate: %w", err)
	}

	log.Info().Int("dims", dimensions).Msg("pgvector store initialized")
	return s, nil
}

// NewPgvectorStoreWithPool wraps an existing pool (shared with the
// relational store) instead of opening a second one.
func NewPgvectorStoreWithPool(ctx context.Context, pool *pgxpool.Pool, dimensions int) (*PgvectorStore, error) {
	s := &PgvectorStore{pool: pool, dimensions: dimensions}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("pgvector migrate: %w", err)
	}
	log.Info().Int("dims", dimensions).Msg("pgvector store initialized (shared pool)")
	return s, nil
}

func (s *PgvectorStore) migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;

		CREATE TABLE IF NOT EXISTS chunk_vectors (
			id             TEXT PRIMARY KEY,
			document_id    TEXT NOT NULL,
			document_title TEXT NOT NULL DEFAULT '',
			org_id         TEXT NOT NULL DEFAULT '',
			content        TEXT NOT NULL DEFAULT '',
			vector         vector(%d) NOT NULL,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_chunk_vectors_org ON chunk_vectors (org_id);
		CREATE INDEX IF NOT EXISTS idx_chunk_vectors_doc ON chunk_vectors (document_id);
	`, s.dimensions)

	_, err := s.pool.Exec(ctx, ddl)
	return err
}

func (s *PgvectorStore) Kind() string { return "pgvector" }

func (s *PgvectorStore) Upsert(ctx context.Context, orgID string, docs []models.ChunkVector) error {
	if len(docs) == 0 {
		return nil
	}

	// Batch insert with ON CONFLICT
	var sb strings.Builder
	sb.WriteString(`INSERT INTO chunk_vectors (id, document_id, document_title, org_id, content, vector, created_at)
		VALUES `)

	args := make([]interface{}, 0, len(docs)*7)
	for i, d := range docs {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i*7 + 1
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d)", base, base+1, base+2, base+3, base+4, base+5, base+6))
		id := d.ID
		if id == "" {
			id = uuid.NewString()
		}
		org := d.OrgID
		if org == "" {
			org = orgID
		}
		now := d.CreatedAt
		if now.IsZero() {
			now = time.Now()
		}
		args = append(args, id, d.DocumentID, d.DocumentTitle, org, d.Content, pgvectorArray(d.Vector), now)
	}

	sb.WriteString(` ON CONFLICT (id) DO UPDATE SET
		document_id = EXCLUDED.document_id,
		document_title = EXCLUDED.document_title,
		org_id = EXCLUDED.org_id,
		content = EXCLUDED.content,
		vector = EXCLUDED.vector`)

	_, err := s.pool.Exec(ctx, sb.String(), args...)
	return err
}

// Search returns the topK nearest chunks for the org (global chunks, stored
// with an empty org_id, are always candidates) using the cosine distance
// operator, dropping matches below minSimilarity.
func (s *PgvectorStore) Search(ctx context.Context, orgID string, vector []float64, topK int, minSimilarity float64) ([]models.VectorMatch, error) {
	query := `SELECT id, document_id, document_title, org_id, content,
		1 - (vector <=> $1) AS similarity
		FROM chunk_vectors`

	args := []interface{}{pgvectorArray(vector)}
	argIdx := 2

	if orgID != "" {
		query += fmt.Sprintf(" WHERE (org_id = $%d OR org_id = '')", argIdx)
		args = append(args, orgID)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY vector <=> $1 LIMIT $%d", argIdx)
	args = append(args, topK)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}
	defer rows.Close()

	var results []models.VectorMatch
	for rows.Next() {
		var m models.VectorMatch
		if err := rows.Scan(&m.ID, &m.DocumentID, &m.DocumentTitle, &m.OrgID, &m.Content, &m.Similarity); err != nil {
			return nil, fmt.Errorf("pgvector scan: %w", err)
		}
		if m.Similarity < minSimilarity {
			continue
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

func (s *PgvectorStore) Delete(ctx context.Context, _ string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, "DELETE FROM chunk_vectors WHERE id = ANY($1)", ids)
	return err
}

func (s *PgvectorStore) Count(ctx context.Context, orgID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM chunk_vectors WHERE org_id = $1 OR $1 = ''", orgID).Scan(&count)
	return count, err
}

func (s *PgvectorStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PgvectorStore) Close() {
	s.pool.Close()
}

// pgvectorArray converts a float64 slice to pgvector's text format: [1.0,2.0,3.0]
func pgvectorArray(v []float64) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(fmt.Sprintf("%g", f))
	}
	sb.WriteByte(']')
	return sb.String()
}
