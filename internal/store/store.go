// Package store provides the storage interface and implementations for the
// supportops backend. The in-memory store backs local development and tests;
// PostgreSQL backs production.
package store

import (
	"context"
	"time"

	"github.com/and27/supportops/pkg/models"
)

// Store is the primary storage interface. All handler and pipeline code
// depends on this interface, making it easy to swap between in-memory
// (tests) and PostgreSQL (production) implementations.
type Store interface {
	OrgStore
	DocumentStore
	ChunkStore
	ConversationStore
	MessageStore
	TicketStore
	RunStore

	// Ping checks if the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error

	// Migrate runs database migrations.
	Migrate(ctx context.Context) error
}

// ── Org Store ───────────────────────────────────────────────

type OrgStore interface {
	ListOrgs(ctx context.Context) ([]models.Org, error)
	GetOrg(ctx context.Context, id string) (*models.Org, error)
	GetOrgBySlug(ctx context.Context, slug string) (*models.Org, error)
	CreateOrg(ctx context.Context, org *models.Org) error
}

// ── Document Store ──────────────────────────────────────────

type DocumentStore interface {
	ListDocuments(ctx context.Context, orgID string) ([]models.Document, error)
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	CreateDocument(ctx context.Context, doc *models.Document) error
	UpdateDocument(ctx context.Context, doc *models.Document) error
	DeleteDocument(ctx context.Context, id string) error

	// FindDocumentsByTag returns the org's documents carrying the tag.
	FindDocumentsByTag(ctx context.Context, orgID, tag string) ([]models.Document, error)

	// SearchDocuments returns the org's documents whose title or content
	// contains any of the terms, case-insensitively.
	SearchDocuments(ctx context.Context, orgID string, terms []string, limit int) ([]models.Document, error)
}

// ── Chunk Store ─────────────────────────────────────────────

// ChunkStore persists derived chunks. Chunks are only ever created and
// deleted by the ingestion pipeline; there is no update.
type ChunkStore interface {
	ListChunksByDocument(ctx context.Context, documentID string) ([]models.Chunk, error)
	CreateChunks(ctx context.Context, chunks []models.Chunk) error
	DeleteChunks(ctx context.Context, ids []string) error
}

// ── Conversation Store ──────────────────────────────────────

type ConversationStore interface {
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	ListConversations(ctx context.Context, orgID string, limit int) ([]models.Conversation, error)
}

// ── Message Store ───────────────────────────────────────────

// MessageStore is the append-only message log, ordered by creation time.
type MessageStore interface {
	ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
	CreateMessage(ctx context.Context, msg *models.Message) error
}

// ── Ticket Store ────────────────────────────────────────────

type TicketStore interface {
	GetTicket(ctx context.Context, id string) (*models.Ticket, error)
	CreateTicket(ctx context.Context, ticket *models.Ticket) error
	UpdateTicket(ctx context.Context, ticket *models.Ticket) error
	ListTickets(ctx context.Context, orgID string, limit int) ([]models.Ticket, error)
}

// ── Run Store ───────────────────────────────────────────────

type RunStore interface {
	GetRun(ctx context.Context, id string) (*models.AgentRun, error)
	CreateRun(ctx context.Context, run *models.AgentRun) error
	ListRuns(ctx context.Context, orgID string, limit int) ([]models.AgentRun, error)

	// DeleteRunsBefore prunes runs older than the cutoff and returns how
	// many were removed. Used by the retention janitor.
	DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}
