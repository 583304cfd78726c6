// Package guardrails applies post-decision checks that downgrade unsafe
// replies. Guardrails never upgrade an outcome and never fail a request.
package guardrails

import (
	"github.com/rs/zerolog/log"

	"github.com/and27/supportops/internal/config"
	"github.com/and27/supportops/internal/prompts"
	"github.com/and27/supportops/pkg/models"
)

const (
	// GuardrailLowSimilarity fires when a vector-grounded reply's best
	// similarity is below the configured floor.
	GuardrailLowSimilarity = "low_similarity"
	// GuardrailMissingCitations fires when a reply carries no citations.
	GuardrailMissingCitations = "missing_citations"

	maxGuardedConfidence = 0.4
)

// Checker evaluates decision outcomes against the reply guardrails.
type Checker struct {
	cfg config.PolicyConfig
}

func NewChecker(cfg config.PolicyConfig) *Checker {
	return &Checker{cfg: cfg}
}

// Apply inspects a reply outcome and downgrades it to a clarification when a
// guardrail fires. Non-reply outcomes pass through untouched. The returned
// outcome is the input, possibly modified in place.
func (c *Checker) Apply(outcome *models.DecisionOutcome, traceID string) *models.DecisionOutcome {
	if outcome == nil || outcome.Action != models.ActionReply {
		return outcome
	}

	if name := c.check(outcome); name != "" {
		log.Warn().
			Str("trace_id", traceID).
			Str("guardrail", name).
			Float64("confidence", outcome.Confidence).
			Msg("Guardrail triggered")
		c.downgrade(outcome, name)
	}
	return outcome
}

// check returns the name of the first guardrail that fires, or "".
func (c *Checker) check(outcome *models.DecisionOutcome) string {
	if c.lowSimilarity(outcome) {
		return GuardrailLowSimilarity
	}
	if len(outcome.Citations) == 0 {
		return GuardrailMissingCitations
	}
	return ""
}

// lowSimilarity applies only to vector-grounded replies; document matches
// and heuristic replies have no similarity to judge.
func (c *Checker) lowSimilarity(outcome *models.DecisionOutcome) bool {
	if outcome.Metadata == nil {
		return false
	}
	source, _ := outcome.Metadata["retrieval_source"].(string)
	if source != "vector" {
		return false
	}
	top, ok := floatValue(outcome.Metadata["top_similarity"])
	if !ok {
		return false
	}
	return top < c.cfg.ReplyMinSimilarity
}

func (c *Checker) downgrade(outcome *models.DecisionOutcome, name string) {
	outcome.Action = models.ActionAskClarifying
	if outcome.Confidence > maxGuardedConfidence {
		outcome.Confidence = maxGuardedConfidence
	}
	outcome.Reply = prompts.Clarify(c.cfg.ClarifyPrompt, c.cfg.ClarifyPromptMode)
	outcome.Citations = nil
	outcome.DecisionSource = models.SourceGuardrail
	outcome.DecisionReason = "guardrail_" + name
	outcome.Guardrail = name
}

// floatValue tolerates the numeric types that survive a JSON round trip.
func floatValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}
