// Package models defines the shared domain types for the supportops backend:
// organizations, knowledge-base documents and chunks, conversations, tickets,
// agent runs, and the request/response shapes of the chat and ingest APIs.
package models

import "time"

// ── Organizations ────────────────────────────────────────────

// Org is a tenant. Every document, conversation, ticket, and run belongs
// to exactly one org.
type Org struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// ── Knowledge Base ───────────────────────────────────────────

// Document is a knowledge-base article. Content is the source of truth for
// ingestion; chunks are derived and never edited directly.
type Document struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Chunk is a bounded, overlapping slice of a document's text, independently
// embedded and retrievable. Chunks are created and replaced only by the
// ingestion pipeline; replace means delete + insert, never update in place.
// ChunkHash is unique per document.
type Chunk struct {
	ID               string    `json:"id"`
	DocumentID       string    `json:"document_id"`
	OrgID            string    `json:"org_id"`
	ChunkIndex       int       `json:"chunk_index"`
	Content          string    `json:"content"`
	ChunkHash        string    `json:"chunk_hash"`
	Embedding        []float64 `json:"embedding,omitempty"`
	EmbeddingModel   string    `json:"embedding_model"`
	EmbeddingVersion string    `json:"embedding_version,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// ── Retrieval ────────────────────────────────────────────────

// RetrievalCandidate is a chunk or document surfaced by a retrieval strategy.
// Similarity is set only for candidates produced by vector search and is
// normalized to [0,1].
type RetrievalCandidate struct {
	ID            string   `json:"id"`
	DocumentID    string   `json:"document_id"`
	DocumentTitle string   `json:"document_title"`
	OrgID         string   `json:"org_id,omitempty"`
	Content       string   `json:"content"`
	Similarity    *float64 `json:"similarity,omitempty"`
}

// Citation is a reference back to the chunk/document that justified a reply.
// Derived 1:1 from selected evidence; presence of citations is the trust
// signal gating a "reply" action.
type Citation struct {
	KBDocumentID string   `json:"kb_document_id"`
	KBChunkID    string   `json:"kb_chunk_id,omitempty"`
	Source       string   `json:"source,omitempty"`
	Score        *float64 `json:"score,omitempty"`
}

// ── Decision ─────────────────────────────────────────────────

// Action is the terminal outcome of the decision policy for one message.
type Action string

const (
	ActionReply         Action = "reply"
	ActionAskClarifying Action = "ask_clarifying"
	ActionCreateTicket  Action = "create_ticket"
	ActionEscalate      Action = "escalate"
)

// IsHandoff reports whether the action defers resolution to a human agent.
func (a Action) IsHandoff() bool {
	return a == ActionCreateTicket || a == ActionEscalate
}

// DecisionSource identifies which stage produced the final action.
type DecisionSource string

const (
	SourcePrecheck  DecisionSource = "precheck"
	SourceKB        DecisionSource = "kb"
	SourceHeuristic DecisionSource = "heuristic"
	SourceGuardrail DecisionSource = "guardrail"
)

// DecisionOutcome is the immutable result of running the decision policy on
// one inbound message.
type DecisionOutcome struct {
	Action         Action         `json:"action"`
	Confidence     float64        `json:"confidence"`
	Reply          string         `json:"reply"`
	Citations      []Citation     `json:"citations,omitempty"`
	DecisionSource DecisionSource `json:"decision_source"`
	DecisionReason string         `json:"decision_reason"`
	Guardrail      string         `json:"guardrail,omitempty"`
	TicketID       string         `json:"ticket_id,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// ── Conversations ────────────────────────────────────────────

// Conversation groups the messages of one support thread.
type Conversation struct {
	ID        string         `json:"id"`
	OrgID     string         `json:"org_id"`
	UserID    string         `json:"user_id,omitempty"`
	Channel   string         `json:"channel"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Message is one turn in a conversation. The log is append-only, ordered by
// creation time.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Role           string         `json:"role"`
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ── Tickets ──────────────────────────────────────────────────

// TicketStatus tracks a handoff ticket through its lifecycle.
type TicketStatus string

const (
	TicketOpen     TicketStatus = "open"
	TicketPending  TicketStatus = "pending"
	TicketResolved TicketStatus = "resolved"
)

// Ticket is created when the decision policy hands a conversation off to a
// human agent.
type Ticket struct {
	ID             string       `json:"id"`
	OrgID          string       `json:"org_id"`
	ConversationID string       `json:"conversation_id,omitempty"`
	Subject        string       `json:"subject"`
	Status         TicketStatus `json:"status"`
	Priority       string       `json:"priority"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// ── Agent Runs ───────────────────────────────────────────────

// AgentRun is the audit record of one decision: what came in, what went out,
// and how long it took. Persistence is best-effort telemetry — losing a run
// must never block a user-facing reply.
type AgentRun struct {
	ID             string         `json:"id"`
	OrgID          string         `json:"org_id"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Action         Action         `json:"action"`
	Confidence     float64        `json:"confidence"`
	Input          map[string]any `json:"input,omitempty"`
	Output         map[string]any `json:"output,omitempty"`
	Citations      []Citation     `json:"citations,omitempty"`
	LatencyMs      int64          `json:"latency_ms"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ── Chat API ─────────────────────────────────────────────────

// ChatRequest is one inbound end-user message.
type ChatRequest struct {
	ConversationID string         `json:"conversation_id,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
	OrgID          string         `json:"org_id,omitempty"`
	Channel        string         `json:"channel"`
	Message        string         `json:"message"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// ChatResponse is the decision outcome returned to the caller.
type ChatResponse struct {
	ConversationID string         `json:"conversation_id"`
	Reply          string         `json:"reply"`
	Action         Action         `json:"action"`
	Confidence     float64        `json:"confidence"`
	TicketID       string         `json:"ticket_id,omitempty"`
	Citations      []Citation     `json:"citations,omitempty"`
	DecisionReason string         `json:"decision_reason,omitempty"`
	DecisionSource DecisionSource `json:"decision_source,omitempty"`
	Guardrail      string         `json:"guardrail,omitempty"`
}

// ── Ingest API ───────────────────────────────────────────────

// IngestRequest asks the pipeline to (re)ingest one document.
type IngestRequest struct {
	DocumentID   string `json:"document_id"`
	OrgID        string `json:"org_id,omitempty"`
	ChunkSize    int    `json:"chunk_size,omitempty"`
	ChunkOverlap int    `json:"chunk_overlap,omitempty"`
	// Force deletes every stored chunk and re-embeds the full chunk set,
	// ignoring hash overlap. Used after an embedding model/version change.
	Force bool `json:"force,omitempty"`
}

// IngestResult reports what one ingest run did.
type IngestResult struct {
	DocumentID       string `json:"document_id"`
	ChunksTotal      int    `json:"chunks_total"`
	ChunksInserted   int    `json:"chunks_inserted"`
	ChunksSkipped    int    `json:"chunks_skipped"`
	ChunksDeleted    int    `json:"chunks_deleted"`
	EmbeddingModel   string `json:"embedding_model"`
	EmbeddingVersion string `json:"embedding_version,omitempty"`
}

// ── Vector Store ─────────────────────────────────────────────

// ChunkVector is the unit stored in a vector store driver: the chunk
// embedding plus the denormalized fields retrieval needs back.
type ChunkVector struct {
	ID            string    `json:"id"`
	DocumentID    string    `json:"document_id"`
	DocumentTitle string    `json:"document_title"`
	OrgID         string    `json:"org_id"`
	Content       string    `json:"content"`
	Vector        []float64 `json:"vector"`
	CreatedAt     time.Time `json:"created_at"`
}

// VectorMatch is a single similarity-search result, ranked by descending
// similarity in [0,1].
type VectorMatch struct {
	ID            string  `json:"id"`
	DocumentID    string  `json:"document_id"`
	DocumentTitle string  `json:"document_title"`
	OrgID         string  `json:"org_id"`
	Content       string  `json:"content"`
	Similarity    float64 `json:"similarity"`
}

// Candidate converts a vector match into a retrieval candidate.
func (m VectorMatch) Candidate() RetrievalCandidate {
	sim := m.Similarity
	return RetrievalCandidate{
		ID:            m.ID,
		DocumentID:    m.DocumentID,
		DocumentTitle: m.DocumentTitle,
		OrgID:         m.OrgID,
		Content:       m.Content,
		Similarity:    &sim,
	}
}
