// Package store — PostgreSQL Store implementation backed by pgx.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/and27/supportops/pkg/models"
)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to PostgreSQL and runs migrations.
func NewPostgresStore(ctx context.Context, connURL string, maxConns int) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connURL)
	if err != nil {
		return nil, fmt.Errorf("postgres config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}

	log.Info().Msg("Postgres store initialized")
	return s, nil
}

// Pool exposes the underlying pool so the pgvector driver can share it.
func (s *PostgresStore) Pool() *pgxpool.Pool { return s.pool }

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS orgs (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		slug       TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS kb_documents (
		id         TEXT PRIMARY KEY,
		org_id     TEXT NOT NULL,
		title      TEXT NOT NULL,
		content    TEXT NOT NULL DEFAULT '',
		tags       TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_kb_documents_org ON kb_documents (org_id);
	CREATE INDEX IF NOT EXISTS idx_kb_documents_tags ON kb_documents USING GIN (tags);

	CREATE TABLE IF NOT EXISTS kb_chunks (
		id                TEXT PRIMARY KEY,
		document_id       TEXT NOT NULL,
		org_id            TEXT NOT NULL,
		chunk_index       INT NOT NULL,
		content           TEXT NOT NULL,
		chunk_hash        TEXT NOT NULL,
		embedding         DOUBLE PRECISION[],
		embedding_model   TEXT NOT NULL DEFAULT '',
		embedding_version TEXT NOT NULL DEFAULT '',
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (document_id, chunk_hash)
	);
	CREATE INDEX IF NOT EXISTS idx_kb_chunks_doc ON kb_chunks (document_id);

	CREATE TABLE IF NOT EXISTS conversations (
		id         TEXT PRIMARY KEY,
		org_id     TEXT NOT NULL,
		user_id    TEXT NOT NULL DEFAULT '',
		channel    TEXT NOT NULL DEFAULT '',
		metadata   JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_org ON conversations (org_id);

	CREATE TABLE IF NOT EXISTS messages (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		role            TEXT NOT NULL,
		content         TEXT NOT NULL,
		metadata        JSONB NOT NULL DEFAULT '{}',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conv ON messages (conversation_id, created_at);

	CREATE TABLE IF NOT EXISTS tickets (
		id              TEXT PRIMARY KEY,
		org_id          TEXT NOT NULL,
		conversation_id TEXT NOT NULL DEFAULT '',
		subject         TEXT NOT NULL,
		status          TEXT NOT NULL DEFAULT 'open',
		priority        TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_tickets_org ON tickets (org_id);

	CREATE TABLE IF NOT EXISTS agent_runs (
		id              TEXT PRIMARY KEY,
		org_id          TEXT NOT NULL,
		conversation_id TEXT NOT NULL DEFAULT '',
		action          TEXT NOT NULL,
		confidence      DOUBLE PRECISION NOT NULL DEFAULT 0,
		input           JSONB NOT NULL DEFAULT '{}',
		output          JSONB NOT NULL DEFAULT '{}',
		citations       JSONB NOT NULL DEFAULT '[]',
		latency_ms      BIGINT NOT NULL DEFAULT 0,
		metadata        JSONB NOT NULL DEFAULT '{}',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_agent_runs_org ON agent_runs (org_id, created_at);
	`
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

// ── Org Store ───────────────────────────────────────────────

func (s *PostgresStore) ListOrgs(ctx context.Context) ([]models.Org, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, slug, created_at FROM orgs ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Org
	for rows.Next() {
		var o models.Org
		if err := rows.Scan(&o.ID, &o.Name, &o.Slug, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetOrg(ctx context.Context, id string) (*models.Org, error) {
	var o models.Org
	err := s.pool.QueryRow(ctx, `SELECT id, name, slug, created_at FROM orgs WHERE id = $1`, id).
		Scan(&o.ID, &o.Name, &o.Slug, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "org", Key: id}
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *PostgresStore) GetOrgBySlug(ctx context.Context, slug string) (*models.Org, error) {
	var o models.Org
	err := s.pool.QueryRow(ctx, `SELECT id, name, slug, created_at FROM orgs WHERE slug = $1`, slug).
		Scan(&o.ID, &o.Name, &o.Slug, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "org", Key: slug}
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *PostgresStore) CreateOrg(ctx context.Context, org *models.Org) error {
	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	if org.CreatedAt.IsZero() {
		org.CreatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO orgs (id, name, slug, created_at) VALUES ($1, $2, $3, $4)`,
		org.ID, org.Name, org.Slug, org.CreatedAt)
	return err
}

// ── Document Store ──────────────────────────────────────────

const documentColumns = `id, org_id, title, content, tags, created_at, updated_at`

func scanDocument(row pgx.Row) (*models.Document, error) {
	var d models.Document
	if err := row.Scan(&d.ID, &d.OrgID, &d.Title, &d.Content, &d.Tags, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, orgID string) ([]models.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM kb_documents WHERE org_id = $1 OR $1 = '' ORDER BY created_at`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDocuments(rows)
}

func collectDocuments(rows pgx.Rows) ([]models.Document, error) {
	var out []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	d, err := scanDocument(s.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM kb_documents WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "document", Key: id}
	}
	return d, err
}

func (s *PostgresStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if doc.Tags == nil {
		doc.Tags = []string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO kb_documents (id, org_id, title, content, tags, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		doc.ID, doc.OrgID, doc.Title, doc.Content, doc.Tags, doc.CreatedAt, doc.UpdatedAt)
	return err
}

func (s *PostgresStore) UpdateDocument(ctx context.Context, doc *models.Document) error {
	doc.UpdatedAt = time.Now()
	if doc.Tags == nil {
		doc.Tags = []string{}
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE kb_documents SET title = $2, content = $3, tags = $4, updated_at = $5 WHERE id = $1`,
		doc.ID, doc.Title, doc.Content, doc.Tags, doc.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "document", Key: doc.ID}
	}
	return nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM kb_documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "document", Key: id}
	}
	_, err = s.pool.Exec(ctx, `DELETE FROM kb_chunks WHERE document_id = $1`, id)
	return err
}

func (s *PostgresStore) FindDocumentsByTag(ctx context.Context, orgID, tag string) ([]models.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM kb_documents
		 WHERE (org_id = $1 OR $1 = '') AND tags @> ARRAY[$2]::TEXT[]
		 ORDER BY created_at`, orgID, tag)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDocuments(rows)
}

func (s *PostgresStore) SearchDocuments(ctx context.Context, orgID string, terms []string, limit int) ([]models.Document, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	query := `SELECT ` + documentColumns + ` FROM kb_documents WHERE (org_id = $1 OR $1 = '') AND (`
	args := []interface{}{orgID}
	for i, term := range terms {
		if i > 0 {
			query += " OR "
		}
		idx := len(args) + 1
		query += fmt.Sprintf("title ILIKE $%d OR content ILIKE $%d", idx, idx)
		args = append(args, "%"+term+"%")
	}
	query += `) ORDER BY created_at`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDocuments(rows)
}

// ── Chunk Store ─────────────────────────────────────────────

func (s *PostgresStore) ListChunksByDocument(ctx context.Context, documentID string) ([]models.Chunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, document_id, org_id, chunk_index, content, chunk_hash, embedding, embedding_model, embedding_version, created_at
		 FROM kb_chunks WHERE document_id = $1 ORDER BY chunk_index`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Chunk
	for rows.Next() {
		var c models.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.OrgID, &c.ChunkIndex, &c.Content, &c.ChunkHash,
			&c.Embedding, &c.EmbeddingModel, &c.EmbeddingVersion, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	now := time.Now()
	for i := range chunks {
		if chunks[i].ID == "" {
			chunks[i].ID = uuid.NewString()
		}
		if chunks[i].CreatedAt.IsZero() {
			chunks[i].CreatedAt = now
		}
		c := chunks[i]
		batch.Queue(
			`INSERT INTO kb_chunks (id, document_id, org_id, chunk_index, content, chunk_hash, embedding, embedding_model, embedding_version, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			c.ID, c.DocumentID, c.OrgID, c.ChunkIndex, c.Content, c.ChunkHash, c.Embedding, c.EmbeddingModel, c.EmbeddingVersion, c.CreatedAt)
	}
	return s.pool.SendBatch(ctx, batch).Close()
}

func (s *PostgresStore) DeleteChunks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM kb_chunks WHERE id = ANY($1)`, ids)
	return err
}

// ── Conversation Store ──────────────────────────────────────

func (s *PostgresStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var c models.Conversation
	err := s.pool.QueryRow(ctx,
		`SELECT id, org_id, user_id, channel, metadata, created_at FROM conversations WHERE id = $1`, id).
		Scan(&c.ID, &c.OrgID, &c.UserID, &c.Channel, &c.Metadata, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "conversation", Key: id}
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now()
	}
	if conv.Metadata == nil {
		conv.Metadata = map[string]any{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (id, org_id, user_id, channel, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		conv.ID, conv.OrgID, conv.UserID, conv.Channel, conv.Metadata, conv.CreatedAt)
	return err
}

func (s *PostgresStore) ListConversations(ctx context.Context, orgID string, limit int) ([]models.Conversation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, org_id, user_id, channel, metadata, created_at FROM conversations
		 WHERE org_id = $1 OR $1 = '' ORDER BY created_at DESC LIMIT $2`, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Conversation
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(&c.ID, &c.OrgID, &c.UserID, &c.Channel, &c.Metadata, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ── Message Store ───────────────────────────────────────────

func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	// Newest N, then flipped back to chronological order.
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, role, content, metadata, created_at FROM (
			SELECT id, conversation_id, role, content, metadata, created_at
			FROM messages WHERE conversation_id = $1
			ORDER BY created_at DESC LIMIT $2
		 ) recent ORDER BY created_at ASC`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.Metadata, &msg.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if msg.Metadata == nil {
		msg.Metadata = map[string]any{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.Metadata, msg.CreatedAt)
	return err
}

// ── Ticket Store ────────────────────────────────────────────

func (s *PostgresStore) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	var t models.Ticket
	err := s.pool.QueryRow(ctx,
		`SELECT id, org_id, conversation_id, subject, status, priority, created_at, updated_at
		 FROM tickets WHERE id = $1`, id).
		Scan(&t.ID, &t.OrgID, &t.ConversationID, &t.Subject, &t.Status, &t.Priority, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "ticket", Key: id}
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	now := time.Now()
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = now
	}
	ticket.UpdatedAt = now
	if ticket.Status == "" {
		ticket.Status = models.TicketOpen
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tickets (id, org_id, conversation_id, subject, status, priority, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ticket.ID, ticket.OrgID, ticket.ConversationID, ticket.Subject, ticket.Status, ticket.Priority, ticket.CreatedAt, ticket.UpdatedAt)
	return err
}

func (s *PostgresStore) UpdateTicket(ctx context.Context, ticket *models.Ticket) error {
	ticket.UpdatedAt = time.Now()
	tag, err := s.pool.Exec(ctx,
		`UPDATE tickets SET subject = $2, status = $3, priority = $4, updated_at = $5 WHERE id = $1`,
		ticket.ID, ticket.Subject, ticket.Status, ticket.Priority, ticket.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "ticket", Key: ticket.ID}
	}
	return nil
}

func (s *PostgresStore) ListTickets(ctx context.Context, orgID string, limit int) ([]models.Ticket, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, org_id, conversation_id, subject, status, priority, created_at, updated_at
		 FROM tickets WHERE org_id = $1 OR $1 = '' ORDER BY created_at DESC LIMIT $2`, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Ticket
	for rows.Next() {
		var t models.Ticket
		if err := rows.Scan(&t.ID, &t.OrgID, &t.ConversationID, &t.Subject, &t.Status, &t.Priority, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ── Run Store ───────────────────────────────────────────────

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*models.AgentRun, error) {
	var r models.AgentRun
	err := s.pool.QueryRow(ctx,
		`SELECT id, org_id, conversation_id, action, confidence, input, output, citations, latency_ms, metadata, created_at
		 FROM agent_runs WHERE id = $1`, id).
		Scan(&r.ID, &r.OrgID, &r.ConversationID, &r.Action, &r.Confidence, &r.Input, &r.Output, &r.Citations, &r.LatencyMs, &r.Metadata, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "run", Key: id}
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *models.AgentRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	if run.Input == nil {
		run.Input = map[string]any{}
	}
	if run.Output == nil {
		run.Output = map[string]any{}
	}
	if run.Metadata == nil {
		run.Metadata = map[string]any{}
	}
	if run.Citations == nil {
		run.Citations = []models.Citation{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO agent_runs (id, org_id, conversation_id, action, confidence, input, output, citations, latency_ms, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		run.ID, run.OrgID, run.ConversationID, run.Action, run.Confidence, run.Input, run.Output, run.Citations, run.LatencyMs, run.Metadata, run.CreatedAt)
	return err
}

func (s *PostgresStore) ListRuns(ctx context.Context, orgID string, limit int) ([]models.AgentRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, org_id, conversation_id, action, confidence, input, output, citations, latency_ms, metadata, created_at
		 FROM agent_runs WHERE org_id = $1 OR $1 = '' ORDER BY created_at DESC LIMIT $2`, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AgentRun
	for rows.Next() {
		var r models.AgentRun
		if err := rows.Scan(&r.ID, &r.OrgID, &r.ConversationID, &r.Action, &r.Confidence, &r.Input, &r.Output, &r.Citations, &r.LatencyMs, &r.Metadata, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM agent_runs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
