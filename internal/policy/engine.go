// Package policy is the decision engine: for each inbound chat message it
// runs precheck heuristics, retrieval, the fallback classifier, and the
// reply guardrails, then persists the conversation turn, any handoff ticket,
// and a best-effort audit run.
package policy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/and27/supportops/internal/config"
	"github.com/and27/supportops/internal/guardrails"
	"github.com/and27/supportops/internal/prompts"
	"github.com/and27/supportops/internal/store"
	"github.com/and27/supportops/pkg/contracts"
	"github.com/and27/supportops/pkg/models"
)

// ticketSubjectChars bounds the ticket subject taken from the message head.
const ticketSubjectChars = 160

// ErrTicketInsertFailed means a handoff action could not persist its ticket.
// A handoff without a ticket is an inconsistent state, so the whole request
// fails rather than returning a success with a missing ticket id.
var ErrTicketInsertFailed = errors.New("ticket insert failed")

// Engine wires the decision stages together. One Engine serves all requests;
// it holds no per-request state.
type Engine struct {
	store      store.Store
	retriever  contracts.Retriever
	guardrails *guardrails.Checker
	cfg        config.PolicyConfig
}

func NewEngine(st store.Store, retriever contracts.Retriever, checker *guardrails.Checker, cfg config.PolicyConfig) *Engine {
	return &Engine{store: st, retriever: retriever, guardrails: checker, cfg: cfg}
}

func (e *Engine) clarifyPrompt() string {
	return prompts.Clarify(e.cfg.ClarifyPrompt, e.cfg.ClarifyPromptMode)
}

// HandleChat executes the full decision pipeline for one message and returns
// the terminal outcome. Store failures on the primary write path surface as
// errors; audit-run persistence is best-effort.
func (e *Engine) HandleChat(ctx context.Context, req *models.ChatRequest, orgID, userID string) (*models.ChatResponse, error) {
	start := time.Now()
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	log.Info().
		Str("conversation_id", conversationID).
		Str("org_id", orgID).
		Str("channel", req.Channel).
		Int("input_length_chars", len(req.Message)).
		Msg("Chat request started")

	if req.ConversationID == "" {
		conv := &models.Conversation{
			ID:       conversationID,
			OrgID:    orgID,
			UserID:   userID,
			Channel:  req.Channel,
			Metadata: req.Metadata,
		}
		if err := e.store.CreateConversation(ctx, conv); err != nil {
			return nil, fmt.Errorf("create conversation: %w", err)
		}
	}

	// Prior context exists only for continued conversations. The current
	// message is persisted after the context load so it is not its own
	// context.
	var prior []models.Message
	contextText := ""
	if req.ConversationID != "" {
		prior = LoadRecentMessages(ctx, e.store, conversationID, e.cfg.ContextMessageLimit)
		contextText = BuildContext(prior, e.cfg.ContextMaxChars)
	}

	userMsg := &models.Message{
		ConversationID: conversationID,
		Role:           "user",
		Content:        req.Message,
	}
	if err := e.store.CreateMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	decisionMessage, retrievalQuery, runMeta := BuildRetrievalQuery(req.Message, contextText, e.clarifyPrompt(), prior)
	if _, ok := runMeta["retrieval_source"]; !ok {
		runMeta["retrieval_source"] = "none"
	}

	outcome, retrievalMs, err := e.decide(ctx, decisionMessage, retrievalQuery, orgID, conversationID, runMeta)
	if err != nil {
		return nil, err
	}
	e.logRetrieval(conversationID, orgID, req.Channel, retrievalMs, runMeta)

	outcome = e.guardrails.Apply(outcome, conversationID)
	if outcome.Guardrail != "" {
		runMeta["guardrail"] = outcome.Guardrail
		runMeta["decision_source"] = string(models.SourceGuardrail)
	}
	if outcome.DecisionReason == "" {
		outcome.DecisionReason = "unspecified"
	}
	runMeta["decision_reason"] = outcome.DecisionReason

	e.logDecision(conversationID, orgID, req.Channel, outcome)
	e.applyEvalMetadata(req.Metadata, outcome, runMeta, conversationID)

	if outcome.Action.IsHandoff() {
		ticketID, err := e.createTicket(ctx, orgID, conversationID, req.Message)
		if err != nil {
			return nil, err
		}
		outcome.TicketID = ticketID
	}

	assistantMsg := &models.Message{
		ConversationID: conversationID,
		Role:           "assistant",
		Content:        outcome.Reply,
	}
	if len(outcome.Citations) > 0 {
		assistantMsg.Metadata = map[string]any{"citations": outcome.Citations}
	}
	if err := e.store.CreateMessage(ctx, assistantMsg); err != nil {
		return nil, fmt.Errorf("persist assistant message: %w", err)
	}

	latencyMs := time.Since(start).Milliseconds()
	e.recordRun(ctx, req, outcome, orgID, userID, conversationID, decisionMessage, latencyMs, runMeta)

	log.Info().
		Str("conversation_id", conversationID).
		Str("org_id", orgID).
		Str("action", string(outcome.Action)).
		Float64("confidence", outcome.Confidence).
		Str("ticket_id", outcome.TicketID).
		Str("decision_source", string(outcome.DecisionSource)).
		Str("decision_reason", outcome.DecisionReason).
		Int64("latency_ms", latencyMs).
		Msg("Chat response")

	return &models.ChatResponse{
		ConversationID: conversationID,
		Reply:          outcome.Reply,
		Action:         outcome.Action,
		Confidence:     outcome.Confidence,
		TicketID:       outcome.TicketID,
		Citations:      outcome.Citations,
		DecisionReason: outcome.DecisionReason,
		DecisionSource: outcome.DecisionSource,
		Guardrail:      outcome.Guardrail,
	}, nil
}

// decide walks the three decision stages: precheck, retrieval, fallback
// classifier. runMeta is extended in place.
func (e *Engine) decide(ctx context.Context, decisionMessage, retrievalQuery, orgID, conversationID string, runMeta map[string]any) (*models.DecisionOutcome, int64, error) {
	if pre := Precheck(decisionMessage); pre != nil {
		runMeta["precheck_action"] = string(pre.Action)
		runMeta["decision_source"] = string(models.SourcePrecheck)
		return &models.DecisionOutcome{
			Action:         pre.Action,
			Confidence:     pre.Confidence,
			Reply:          pre.Reply,
			DecisionSource: models.SourcePrecheck,
			DecisionReason: pre.Reason,
			Metadata:       runMeta,
		}, 0, nil
	}

	retrievalStart := time.Now()
	result, err := e.retriever.Retrieve(ctx, retrievalQuery, orgID, conversationID)
	retrievalMs := time.Since(retrievalStart).Milliseconds()
	if err != nil {
		return nil, retrievalMs, fmt.Errorf("retrieve: %w", err)
	}

	if result != nil {
		for k, v := range result.Metadata {
			runMeta[k] = v
		}
		reason := "kb_document_match"
		if source, _ := runMeta["retrieval_source"].(string); source == "vector" {
			reason = "kb_vector_match"
		}
		runMeta["decision_source"] = string(models.SourceKB)
		return &models.DecisionOutcome{
			Action:         models.ActionReply,
			Confidence:     result.Confidence,
			Reply:          result.Reply,
			Citations:      result.Citations,
			DecisionSource: models.SourceKB,
			DecisionReason: reason,
			Metadata:       runMeta,
		}, retrievalMs, nil
	}

	fallback := Classify(decisionMessage)
	runMeta["decision_source"] = string(models.SourceHeuristic)
	return &models.DecisionOutcome{
		Action:         fallback.Action,
		Confidence:     fallback.Confidence,
		Reply:          fallback.Reply,
		DecisionSource: models.SourceHeuristic,
		DecisionReason: fallback.Reason,
		Metadata:       runMeta,
	}, retrievalMs, nil
}

func (e *Engine) createTicket(ctx context.Context, orgID, conversationID, message string) (string, error) {
	subject := message
	if len(subject) > ticketSubjectChars {
		subject = subject[:ticketSubjectChars]
	}
	ticket := &models.Ticket{
		OrgID:          orgID,
		ConversationID: conversationID,
		Subject:        subject,
	}
	if err := e.store.CreateTicket(ctx, ticket); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTicketInsertFailed, err)
	}
	if ticket.ID == "" {
		return "", ErrTicketInsertFailed
	}
	return ticket.ID, nil
}

// applyEvalMetadata copies evaluation expectations from the request into the
// run metadata and records whether the actual action matched.
func (e *Engine) applyEvalMetadata(reqMeta map[string]any, outcome *models.DecisionOutcome, runMeta map[string]any, conversationID string) {
	expected, category := extractEvalMetadata(reqMeta)
	if expected == "" {
		return
	}
	if category == "" {
		category = "uncategorized"
	}
	match := string(outcome.Action) == expected
	runMeta["eval_expected_action"] = expected
	runMeta["eval_category"] = category
	runMeta["eval_action_match"] = match
	log.Info().
		Str("conversation_id", conversationID).
		Str("expected_action", expected).
		Str("actual_action", string(outcome.Action)).
		Str("category", category).
		Bool("match", match).
		Msg("Eval action result")
}

// extractEvalMetadata reads the expected action and category from request
// metadata, accepting both the nested "eval" payload and flat keys.
func extractEvalMetadata(meta map[string]any) (expected, category string) {
	if meta == nil {
		return "", ""
	}
	if payload, ok := meta["eval"].(map[string]any); ok {
		expected, _ = payload["expected_action"].(string)
		if expected == "" {
			expected, _ = payload["action"].(string)
		}
		category, _ = payload["category"].(string)
		return expected, category
	}
	expected, _ = meta["expected_action"].(string)
	if expected == "" {
		expected, _ = meta["eval_expected_action"].(string)
	}
	category, _ = meta["category"].(string)
	if category == "" {
		category, _ = meta["eval_category"].(string)
	}
	return expected, category
}

// recordRun persists the audit record. Failure is logged, never propagated:
// losing telemetry must not block a user-facing reply.
func (e *Engine) recordRun(ctx context.Context, req *models.ChatRequest, outcome *models.DecisionOutcome, orgID, userID, conversationID, decisionMessage string, latencyMs int64, runMeta map[string]any) {
	run := &models.AgentRun{
		OrgID:          orgID,
		ConversationID: conversationID,
		Action:         outcome.Action,
		Confidence:     outcome.Confidence,
		Input: map[string]any{
			"message":          req.Message,
			"decision_message": decisionMessage,
			"channel":          req.Channel,
			"conversation_id":  conversationID,
			"user_id":          userID,
			"org_id":           orgID,
		},
		Output: map[string]any{
			"reply":           outcome.Reply,
			"action":          string(outcome.Action),
			"confidence":      outcome.Confidence,
			"ticket_id":       outcome.TicketID,
			"decision_reason": outcome.DecisionReason,
			"decision_source": string(outcome.DecisionSource),
			"guardrail":       outcome.Guardrail,
		},
		Citations: outcome.Citations,
		LatencyMs: latencyMs,
		Metadata:  runMeta,
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		log.Warn().Err(err).Str("conversation_id", conversationID).Msg("Agent run insert failed")
	}
}

func (e *Engine) logRetrieval(conversationID, orgID, channel string, retrievalMs int64, runMeta map[string]any) {
	source, _ := runMeta["retrieval_source"].(string)
	candidates := 0
	switch source {
	case "vector":
		candidates = intValue(runMeta["match_count"])
	case "document":
		candidates = intValue(runMeta["document_match_count"])
	}
	event := log.Info().
		Str("conversation_id", conversationID).
		Str("org_id", orgID).
		Str("channel", channel).
		Int64("retrieval_ms", retrievalMs).
		Int("retrieval_candidates_count", candidates).
		Str("retrieval_source", source)
	if top, ok := runMeta["top_similarity"].(float64); ok {
		event = event.Float64("top_similarity", top)
	}
	event.Msg("Retrieval done")
}

func (e *Engine) logDecision(conversationID, orgID, channel string, outcome *models.DecisionOutcome) {
	decision := string(outcome.Action)
	handoffType := ""
	if outcome.Action.IsHandoff() {
		decision = "handoff"
		handoffType = string(outcome.Action)
	}
	log.Info().
		Str("conversation_id", conversationID).
		Str("org_id", orgID).
		Str("channel", channel).
		Str("decision", decision).
		Str("decision_reason", outcome.DecisionReason).
		Str("guardrail", outcome.Guardrail).
		Bool("has_citations", len(outcome.Citations) > 0).
		Str("handoff_type", handoffType).
		Msg("Decision made")
}

func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
