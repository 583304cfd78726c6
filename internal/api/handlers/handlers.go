// Package handlers implements the HTTP handlers for the supportops agent.
// All handlers depend on the Store interface, so the same surface runs
// against the in-memory store (local dev, tests) and PostgreSQL.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/and27/supportops/internal/api/middleware"
	"github.com/and27/supportops/internal/embeddings"
	"github.com/and27/supportops/internal/ingest"
	"github.com/and27/supportops/internal/policy"
	"github.com/and27/supportops/internal/retrieval"
	"github.com/and27/supportops/internal/store"
	"github.com/and27/supportops/internal/vectorstore"
	"github.com/and27/supportops/pkg/contracts"
	"github.com/and27/supportops/pkg/models"
)

const defaultListLimit = 50

// Handlers holds all handler dependencies.
type Handlers struct {
	Store    store.Store
	Engine   *policy.Engine
	Pipeline *ingest.Pipeline
	Orgs     *policy.OrgResolver
	Vectors  contracts.VectorStore // nil when vector search is disabled

	// Embeddings and VectorDrivers expose the registered providers on the
	// introspection endpoints. Either may be nil.
	Embeddings    *embeddings.Registry
	VectorDrivers *vectorstore.Registry

	// AutoIngest re-runs ingestion after document writes.
	AutoIngest bool
}

// New creates a Handlers instance.
func New(s store.Store, engine *policy.Engine, pipeline *ingest.Pipeline, orgs *policy.OrgResolver, vectors contracts.VectorStore, autoIngest bool) *Handlers {
	return &Handlers{
		Store:      s,
		Engine:     engine,
		Pipeline:   pipeline,
		Orgs:       orgs,
		Vectors:    vectors,
		AutoIngest: autoIngest,
	}
}

// ══════════════════════════════════════════════════════════════
// ── Chat ─────────────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Channel == "" {
		req.Channel = "web"
	}

	orgID, err := h.resolveOrg(r, req.OrgID)
	if err != nil {
		respondResolveError(w, err)
		return
	}
	userID := req.UserID
	if userID == "" {
		userID = middleware.GetUserID(r.Context())
	}

	resp, err := h.Engine.HandleChat(r.Context(), &req, orgID, userID)
	if err != nil {
		log.Error().Err(err).Str("org_id", orgID).Msg("Chat failed")
		if errors.Is(err, policy.ErrTicketInsertFailed) {
			respondError(w, http.StatusInternalServerError, "ticket_insert_failed")
			return
		}
		respondError(w, http.StatusInternalServerError, "db_error")
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// ══════════════════════════════════════════════════════════════
// ── Knowledge Base ───────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

func (h *Handlers) ListDocuments(w http.ResponseWriter, r *http.Request) {
	orgID, err := h.resolveOrg(r, "")
	if err != nil {
		respondResolveError(w, err)
		return
	}
	docs, err := h.Store.ListDocuments(r.Context(), orgID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	respondJSON(w, http.StatusOK, docs)
}

func (h *Handlers) CreateDocument(w http.ResponseWriter, r *http.Request) {
	if !h.requireWrite(w, r) {
		return
	}
	var doc models.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if doc.Title == "" || doc.Content == "" {
		respondError(w, http.StatusBadRequest, "title and content are required")
		return
	}

	orgID, err := h.resolveOrg(r, doc.OrgID)
	if err != nil {
		respondResolveError(w, err)
		return
	}
	doc.ID = ""
	doc.OrgID = orgID
	doc.Tags = retrieval.NormalizeTags(doc.Tags)

	if err := h.Store.CreateDocument(r.Context(), &doc); err != nil {
		respondError(w, http.StatusInternalServerError, "db_error")
		return
	}

	h.autoIngest(r, doc.ID)
	respondJSON(w, http.StatusCreated, doc)
}

func (h *Handlers) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.loadDocument(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

func (h *Handlers) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	if !h.requireWrite(w, r) {
		return
	}
	doc, ok := h.loadDocument(w, r)
	if !ok {
		return
	}

	var patch struct {
		Title   *string   `json:"title"`
		Content *string   `json:"content"`
		Tags    *[]string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if patch.Title != nil {
		doc.Title = *patch.Title
	}
	if patch.Content != nil {
		doc.Content = *patch.Content
	}
	if patch.Tags != nil {
		doc.Tags = retrieval.NormalizeTags(*patch.Tags)
	}

	if err := h.Store.UpdateDocument(r.Context(), doc); err != nil {
		respondStoreError(w, err)
		return
	}

	h.autoIngest(r, doc.ID)
	respondJSON(w, http.StatusOK, doc)
}

func (h *Handlers) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if !h.requireWrite(w, r) {
		return
	}
	doc, ok := h.loadDocument(w, r)
	if !ok {
		return
	}

	// Drop the document's vectors first; the store cascades the chunk rows.
	if h.Vectors != nil {
		chunks, err := h.Store.ListChunksByDocument(r.Context(), doc.ID)
		if err == nil && len(chunks) > 0 {
			ids := make([]string, len(chunks))
			for i, c := range chunks {
				ids[i] = c.ID
			}
			if err := h.Vectors.Delete(r.Context(), doc.OrgID, ids); err != nil {
				log.Warn().Err(err).Str("document_id", doc.ID).Msg("Vector cleanup failed")
			}
		}
	}

	if err := h.Store.DeleteDocument(r.Context(), doc.ID); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"deleted": doc.ID})
}

func (h *Handlers) SearchDocuments(w http.ResponseWriter, r *http.Request) {
	orgID, err := h.resolveOrg(r, "")
	if err != nil {
		respondResolveError(w, err)
		return
	}

	var docs []models.Document
	if tag := r.URL.Query().Get("tag"); tag != "" {
		docs, err = h.Store.FindDocumentsByTag(r.Context(), orgID, tag)
	} else if q := r.URL.Query().Get("q"); q != "" {
		terms := retrieval.ExtractKeywords(q)
		if len(terms) == 0 {
			terms = []string{q}
		}
		docs, err = h.Store.SearchDocuments(r.Context(), orgID, terms, queryLimit(r))
	} else {
		respondError(w, http.StatusBadRequest, "q or tag query parameter required")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	respondJSON(w, http.StatusOK, docs)
}

func (h *Handlers) Ingest(w http.ResponseWriter, r *http.Request) {
	if !h.requireWrite(w, r) {
		return
	}
	var req models.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.DocumentID == "" {
		respondError(w, http.StatusBadRequest, "document_id is required")
		return
	}

	orgID, err := h.resolveOrg(r, req.OrgID)
	if err != nil {
		respondResolveError(w, err)
		return
	}
	req.OrgID = orgID

	result, err := h.Pipeline.Run(r.Context(), req)
	if err != nil {
		switch {
		case isNotFound(err):
			respondError(w, http.StatusNotFound, "document not found")
		case errors.Is(err, ingest.ErrEmptyContent):
			respondError(w, http.StatusBadRequest, "document has no content")
		case errors.Is(err, ingest.ErrNoEmbedder):
			respondError(w, http.StatusInternalServerError, "ingest_not_configured")
		default:
			log.Error().Err(err).Str("document_id", req.DocumentID).Msg("Ingest failed")
			respondError(w, http.StatusInternalServerError, "ingest_failed")
		}
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════
// ── Orgs ─────────────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

func (h *Handlers) ListOrgs(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.Store.ListOrgs(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if orgs == nil {
		orgs = []models.Org{}
	}
	respondJSON(w, http.StatusOK, orgs)
}

func (h *Handlers) CreateOrg(w http.ResponseWriter, r *http.Request) {
	var org models.Org
	if err := json.NewDecoder(r.Body).Decode(&org); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if org.Name == "" || org.Slug == "" {
		respondError(w, http.StatusBadRequest, "name and slug are required")
		return
	}
	org.ID = ""
	if err := h.Store.CreateOrg(r.Context(), &org); err != nil {
		respondError(w, http.StatusInternalServerError, "db_error")
		return
	}
	respondJSON(w, http.StatusCreated, org)
}

func (h *Handlers) GetOrg(w http.ResponseWriter, r *http.Request) {
	org, err := h.Store.GetOrg(r.Context(), chi.URLParam(r, "orgId"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, org)
}

// ══════════════════════════════════════════════════════════════
// ── Conversations ────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

func (h *Handlers) ListConversations(w http.ResponseWriter, r *http.Request) {
	orgID, err := h.resolveOrg(r, "")
	if err != nil {
		respondResolveError(w, err)
		return
	}
	convs, err := h.Store.ListConversations(r.Context(), orgID, queryLimit(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if convs == nil {
		convs = []models.Conversation{}
	}
	respondJSON(w, http.StatusOK, convs)
}

func (h *Handlers) GetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.Store.GetConversation(r.Context(), chi.URLParam(r, "conversationId"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, conv)
}

func (h *Handlers) ListConversationMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationId")
	if _, err := h.Store.GetConversation(r.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}
	messages, err := h.Store.ListMessages(r.Context(), id, queryLimit(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	respondJSON(w, http.StatusOK, messages)
}

// ══════════════════════════════════════════════════════════════
// ── Tickets & Runs ───────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

func (h *Handlers) ListTickets(w http.ResponseWriter, r *http.Request) {
	orgID, err := h.resolveOrg(r, "")
	if err != nil {
		respondResolveError(w, err)
		return
	}
	tickets, err := h.Store.ListTickets(r.Context(), orgID, queryLimit(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if tickets == nil {
		tickets = []models.Ticket{}
	}
	respondJSON(w, http.StatusOK, tickets)
}

func (h *Handlers) GetTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.Store.GetTicket(r.Context(), chi.URLParam(r, "ticketId"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ticket)
}

func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	orgID, err := h.resolveOrg(r, "")
	if err != nil {
		respondResolveError(w, err)
		return
	}
	runs, err := h.Store.ListRuns(r.Context(), orgID, queryLimit(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if runs == nil {
		runs = []models.AgentRun{}
	}
	respondJSON(w, http.StatusOK, runs)
}

func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Store.GetRun(r.Context(), chi.URLParam(r, "runId"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, run)
}

// ══════════════════════════════════════════════════════════════
// ── Helpers ──────────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// resolveOrg maps the request to a tenant: explicit payload org, then the
// X-Org-Id header / org_id query parameter, then the default org.
func (h *Handlers) resolveOrg(r *http.Request, payloadOrg string) (string, error) {
	explicit := payloadOrg
	if explicit == "" {
		explicit = middleware.GetOrgID(r.Context())
	}
	return h.Orgs.Resolve(r.Context(), explicit)
}

// requireWrite rejects viewers. Roles arrive via the X-Org-Role header.
func (h *Handlers) requireWrite(w http.ResponseWriter, r *http.Request) bool {
	if middleware.GetOrgRole(r.Context()) == "viewer" {
		respondError(w, http.StatusForbidden, "forbidden")
		return false
	}
	return true
}

// loadDocument fetches the document named in the URL and enforces tenant
// ownership. Cross-tenant reads look like a missing document on purpose.
func (h *Handlers) loadDocument(w http.ResponseWriter, r *http.Request) (*models.Document, bool) {
	docID := chi.URLParam(r, "documentId")
	doc, err := h.Store.GetDocument(r.Context(), docID)
	if err != nil {
		respondStoreError(w, err)
		return nil, false
	}
	orgID, err := h.resolveOrg(r, "")
	if err != nil {
		respondResolveError(w, err)
		return nil, false
	}
	if doc.OrgID != "" && doc.OrgID != orgID {
		respondError(w, http.StatusNotFound, "document not found: "+docID)
		return nil, false
	}
	return doc, true
}

// autoIngest re-chunks a document after a write. Best-effort: a failure is
// logged and the write still succeeds.
func (h *Handlers) autoIngest(r *http.Request, documentID string) {
	if !h.AutoIngest {
		log.Info().Str("document_id", documentID).Msg("Auto ingest skipped")
		return
	}
	if _, err := h.Pipeline.Run(r.Context(), models.IngestRequest{DocumentID: documentID}); err != nil {
		log.Warn().Err(err).Str("document_id", documentID).Msg("Auto ingest failed")
	}
}

func queryLimit(r *http.Request) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultListLimit
}

func isNotFound(err error) bool {
	var notFound *store.ErrNotFound
	return errors.As(err, &notFound)
}

func respondStoreError(w http.ResponseWriter, err error) {
	if isNotFound(err) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	log.Error().Err(err).Msg("Store error")
	respondError(w, http.StatusInternalServerError, "db_error")
}

func respondResolveError(w http.ResponseWriter, err error) {
	if errors.Is(err, policy.ErrDefaultOrgMissing) {
		respondError(w, http.StatusInternalServerError, "default_org_missing")
		return
	}
	respondError(w, http.StatusInternalServerError, "db_error")
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
