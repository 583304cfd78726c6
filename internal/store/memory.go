// Package store — in-memory Store implementation.
// Used as a fallback when PostgreSQL is not available (local dev, tests).
// Supports file-based snapshot persistence so data survives restarts.
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/and27/supportops/pkg/models"
)

// snapshot is the JSON-serializable shape written to disk.
type snapshot struct {
	Orgs          map[string]*models.Org          `json:"orgs"`
	Documents     map[string]*models.Document     `json:"documents"`
	Chunks        map[string]*models.Chunk        `json:"chunks"`
	Conversations map[string]*models.Conversation `json:"conversations"`
	Messages      map[string][]*models.Message    `json:"messages"` // key: conversation_id
	Tickets       map[string]*models.Ticket       `json:"tickets"`
	Runs          map[string]*models.AgentRun     `json:"runs"`
}

// MemoryStore implements Store with in-memory maps.
type MemoryStore struct {
	mu            sync.RWMutex
	orgs          map[string]*models.Org          // key: id
	documents     map[string]*models.Document     // key: id
	chunks        map[string]*models.Chunk        // key: id
	conversations map[string]*models.Conversation // key: id
	messages      map[string][]*models.Message    // key: conversation_id, append-only
	tickets       map[string]*models.Ticket       // key: id
	runs          map[string]*models.AgentRun     // key: id

	// Persistence
	snapshotPath string        // empty = no persistence
	saveMu       sync.Mutex    // guards file writes
	saveCh       chan struct{} // debounce channel
	doneCh       chan struct{} // signals background goroutines to stop
}

// MemoryOption configures the memory store.
type MemoryOption func(*MemoryStore)

// WithSnapshotDir enables JSON snapshot persistence in the given directory.
func WithSnapshotDir(dir string) MemoryOption {
	return func(m *MemoryStore) {
		m.snapshotPath = filepath.Join(dir, "data.json")
	}
}

// NewMemoryStore creates a new in-memory store.
// If SUPPORTOPS_DATA_DIR is set (or WithSnapshotDir is given), data is
// persisted to a JSON file in that directory.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		orgs:          make(map[string]*models.Org),
		documents:     make(map[string]*models.Document),
		chunks:        make(map[string]*models.Chunk),
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string][]*models.Message),
		tickets:       make(map[string]*models.Ticket),
		runs:          make(map[string]*models.AgentRun),
		saveCh:        make(chan struct{}, 1),
		doneCh:        make(chan struct{}),
	}

	if dataDir := os.Getenv("SUPPORTOPS_DATA_DIR"); dataDir != "" {
		m.snapshotPath = filepath.Join(dataDir, "data.json")
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.snapshotPath != "" {
		if err := os.MkdirAll(filepath.Dir(m.snapshotPath), 0755); err != nil {
			log.Warn().Err(err).Str("dir", filepath.Dir(m.snapshotPath)).Msg("Cannot create data dir, persistence disabled")
			m.snapshotPath = ""
		}
	}

	if m.snapshotPath != "" {
		m.loadSnapshot()
		go m.saveLoop()
	}

	log.Info().Str("snapshot", m.snapshotPath).Msg("Memory store configured")
	return m
}

// requestSave signals the background goroutine to persist data.
// Non-blocking: coalesces multiple rapid writes into one disk flush.
func (m *MemoryStore) requestSave() {
	if m.snapshotPath == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
		// Already pending
	}
}

// saveLoop runs in a goroutine, debouncing save requests (max 1 write per 500ms).
func (m *MemoryStore) saveLoop() {
	for {
		select {
		case <-m.doneCh:
			return
		case <-m.saveCh:
			time.Sleep(500 * time.Millisecond) // debounce
			m.saveSnapshot()
		}
	}
}

// saveSnapshot persists all data to disk as JSON.
func (m *MemoryStore) saveSnapshot() {
	m.mu.RLock()
	snap := snapshot{
		Orgs:          m.orgs,
		Documents:     m.documents,
		Chunks:        m.chunks,
		Conversations: m.conversations,
		Messages:      m.messages,
		Tickets:       m.tickets,
		Runs:          m.runs,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	m.mu.RUnlock()

	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal snapshot")
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	// Write to temp file then rename for atomicity
	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Error().Err(err).Str("path", tmp).Msg("Failed to write snapshot tmp")
		return
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to rename snapshot")
		return
	}

	log.Debug().Str("path", m.snapshotPath).Msg("Snapshot saved")
}

// loadSnapshot reads data from disk on startup.
func (m *MemoryStore) loadSnapshot() {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", m.snapshotPath).Msg("No snapshot file found, starting fresh")
			return
		}
		log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Failed to read snapshot")
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to parse snapshot, starting fresh")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if snap.Orgs != nil {
		m.orgs = snap.Orgs
	}
	if snap.Documents != nil {
		m.documents = snap.Documents
	}
	if snap.Chunks != nil {
		m.chunks = snap.Chunks
	}
	if snap.Conversations != nil {
		m.conversations = snap.Conversations
	}
	if snap.Messages != nil {
		m.messages = snap.Messages
	}
	if snap.Tickets != nil {
		m.tickets = snap.Tickets
	}
	if snap.Runs != nil {
		m.runs = snap.Runs
	}

	log.Info().
		Int("orgs", len(m.orgs)).
		Int("documents", len(m.documents)).
		Int("chunks", len(m.chunks)).
		Int("conversations", len(m.conversations)).
		Str("path", m.snapshotPath).
		Msg("Snapshot loaded")
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// Close stops background goroutines and forces a final snapshot write.
// Safe to call multiple times (second call is a no-op).
func (m *MemoryStore) Close() error {
	select {
	case <-m.doneCh:
		return nil
	default:
		close(m.doneCh)
	}

	if m.snapshotPath != "" {
		m.saveSnapshot()
	}

	log.Info().Msg("Memory store closed")
	return nil
}

func (m *MemoryStore) Migrate(_ context.Context) error { return nil }

// ── Org Store ───────────────────────────────────────────────

func (m *MemoryStore) ListOrgs(_ context.Context) ([]models.Org, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Org, 0, len(m.orgs))
	for _, o := range m.orgs {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) GetOrg(_ context.Context, id string) (*models.Org, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orgs[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "org", Key: id}
	}
	cp := *o
	return &cp, nil
}

func (m *MemoryStore) GetOrgBySlug(_ context.Context, slug string) (*models.Org, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.orgs {
		if o.Slug == slug {
			cp := *o
			return &cp, nil
		}
	}
	return nil, &ErrNotFound{Entity: "org", Key: slug}
}

func (m *MemoryStore) CreateOrg(_ context.Context, org *models.Org) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	if org.CreatedAt.IsZero() {
		org.CreatedAt = time.Now()
	}
	cp := *org
	m.orgs[org.ID] = &cp
	m.requestSave()
	return nil
}

// ── Document Store ──────────────────────────────────────────

func (m *MemoryStore) ListDocuments(_ context.Context, orgID string) ([]models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Document
	for _, d := range m.documents {
		if orgID == "" || d.OrgID == orgID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) GetDocument(_ context.Context, id string) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "document", Key: id}
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) CreateDocument(_ context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	cp := *doc
	m.documents[doc.ID] = &cp
	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateDocument(_ context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.documents[doc.ID]
	if !ok {
		return &ErrNotFound{Entity: "document", Key: doc.ID}
	}
	doc.CreatedAt = existing.CreatedAt
	doc.UpdatedAt = time.Now()
	cp := *doc
	m.documents[doc.ID] = &cp
	m.requestSave()
	return nil
}

func (m *MemoryStore) DeleteDocument(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[id]; !ok {
		return &ErrNotFound{Entity: "document", Key: id}
	}
	delete(m.documents, id)
	// Chunks are derived data; they go with the document.
	for cid, c := range m.chunks {
		if c.DocumentID == id {
			delete(m.chunks, cid)
		}
	}
	m.requestSave()
	return nil
}

func (m *MemoryStore) FindDocumentsByTag(_ context.Context, orgID, tag string) ([]models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Document
	for _, d := range m.documents {
		if orgID != "" && d.OrgID != orgID {
			continue
		}
		for _, t := range d.Tags {
			if t == tag {
				out = append(out, *d)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) SearchDocuments(_ context.Context, orgID string, terms []string, limit int) ([]models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Document
	for _, d := range m.documents {
		if orgID != "" && d.OrgID != orgID {
			continue
		}
		title := strings.ToLower(d.Title)
		content := strings.ToLower(d.Content)
		for _, term := range terms {
			t := strings.ToLower(term)
			if t == "" {
				continue
			}
			if strings.Contains(title, t) || strings.Contains(content, t) {
				out = append(out, *d)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ── Chunk Store ─────────────────────────────────────────────

func (m *MemoryStore) ListChunksByDocument(_ context.Context, documentID string) ([]models.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Chunk
	for _, c := range m.chunks {
		if c.DocumentID == documentID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

func (m *MemoryStore) CreateChunks(_ context.Context, chunks []models.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for i := range chunks {
		if chunks[i].ID == "" {
			chunks[i].ID = uuid.NewString()
		}
		if chunks[i].CreatedAt.IsZero() {
			chunks[i].CreatedAt = now
		}
		cp := chunks[i]
		m.chunks[cp.ID] = &cp
	}
	m.requestSave()
	return nil
}

func (m *MemoryStore) DeleteChunks(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.chunks, id)
	}
	m.requestSave()
	return nil
}

// ── Conversation Store ──────────────────────────────────────

func (m *MemoryStore) GetConversation(_ context.Context, id string) (*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conversations[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "conversation", Key: id}
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) CreateConversation(_ context.Context, conv *models.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now()
	}
	cp := *conv
	m.conversations[conv.ID] = &cp
	m.requestSave()
	return nil
}

func (m *MemoryStore) ListConversations(_ context.Context, orgID string, limit int) ([]models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Conversation
	for _, c := range m.conversations {
		if orgID == "" || c.OrgID == orgID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ── Message Store ───────────────────────────────────────────

func (m *MemoryStore) ListMessages(_ context.Context, conversationID string, limit int) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.messages[conversationID]
	// Keep the most recent messages, in chronological order.
	start := 0
	if limit > 0 && len(msgs) > limit {
		start = len(msgs) - limit
	}
	out := make([]models.Message, 0, len(msgs)-start)
	for _, msg := range msgs[start:] {
		out = append(out, *msg)
	}
	return out, nil
}

func (m *MemoryStore) CreateMessage(_ context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	cp := *msg
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], &cp)
	m.requestSave()
	return nil
}

// ── Ticket Store ────────────────────────────────────────────

func (m *MemoryStore) GetTicket(_ context.Context, id string) (*models.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "ticket", Key: id}
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) CreateTicket(_ context.Context, ticket *models.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
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
	cp := *ticket
	m.tickets[ticket.ID] = &cp
	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateTicket(_ context.Context, ticket *models.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.tickets[ticket.ID]
	if !ok {
		return &ErrNotFound{Entity: "ticket", Key: ticket.ID}
	}
	ticket.CreatedAt = existing.CreatedAt
	ticket.UpdatedAt = time.Now()
	cp := *ticket
	m.tickets[ticket.ID] = &cp
	m.requestSave()
	return nil
}

func (m *MemoryStore) ListTickets(_ context.Context, orgID string, limit int) ([]models.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Ticket
	for _, t := range m.tickets {
		if orgID == "" || t.OrgID == orgID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ── Run Store ───────────────────────────────────────────────

func (m *MemoryStore) GetRun(_ context.Context, id string) (*models.AgentRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "run", Key: id}
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) CreateRun(_ context.Context, run *models.AgentRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	cp := *run
	m.runs[run.ID] = &cp
	m.requestSave()
	return nil
}

func (m *MemoryStore) ListRuns(_ context.Context, orgID string, limit int) ([]models.AgentRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.AgentRun
	for _, r := range m.runs {
		if orgID == "" || r.OrgID == orgID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) DeleteRunsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for id, r := range m.runs {
		if r.CreatedAt.Before(cutoff) {
			delete(m.runs, id)
			deleted++
		}
	}
	if deleted > 0 {
		m.requestSave()
	}
	return deleted, nil
}
