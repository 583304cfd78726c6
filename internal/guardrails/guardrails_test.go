package guardrails

import (
	"testing"

	"github.com/and27/supportops/internal/config"
	"github.com/and27/supportops/internal/prompts"
	"github.com/and27/supportops/pkg/models"
)

func newChecker() *Checker {
	return NewChecker(config.PolicyConfig{ReplyMinSimilarity: 0.35})
}

func replyOutcome(confidence float64, citations []models.Citation, meta map[string]any) *models.DecisionOutcome {
	return &models.DecisionOutcome{
		Action:         models.ActionReply,
		Confidence:     confidence,
		Reply:          "grounded answer",
		Citations:      citations,
		DecisionSource: models.SourceKB,
		DecisionReason: "kb_vector_match",
		Metadata:       meta,
	}
}

func TestApplyLowSimilarity(t *testing.T) {
	c := newChecker()
	out := replyOutcome(0.8, []models.Citation{{KBChunkID: "c1"}}, map[string]any{
		"retrieval_source": "vector",
		"top_similarity":   0.10,
	})

	got := c.Apply(out, "t1")

	if got.Action != models.ActionAskClarifying {
		t.Errorf("action = %s", got.Action)
	}
	if got.Confidence != 0.4 {
		t.Errorf("confidence = %v, want capped 0.4", got.Confidence)
	}
	if got.Reply != prompts.DefaultClarify {
		t.Errorf("reply = %q", got.Reply)
	}
	if got.Citations != nil {
		t.Error("citations not dropped")
	}
	if got.DecisionSource != models.SourceGuardrail {
		t.Errorf("source = %s", got.DecisionSource)
	}
	if got.DecisionReason != "guardrail_low_similarity" {
		t.Errorf("reason = %s", got.DecisionReason)
	}
	if got.Guardrail != GuardrailLowSimilarity {
		t.Errorf("guardrail = %s", got.Guardrail)
	}
}

func TestApplyMissingCitations(t *testing.T) {
	c := newChecker()
	out := replyOutcome(0.3, nil, nil)

	got := c.Apply(out, "t1")

	if got.DecisionReason != "guardrail_missing_citations" {
		t.Errorf("reason = %s", got.DecisionReason)
	}
	// Confidence already below the cap stays put.
	if got.Confidence != 0.3 {
		t.Errorf("confidence = %v", got.Confidence)
	}
	if got.Action != models.ActionAskClarifying {
		t.Errorf("action = %s", got.Action)
	}
}

func TestApplyPassThrough(t *testing.T) {
	c := newChecker()

	tests := []struct {
		name    string
		outcome *models.DecisionOutcome
	}{
		{"nil outcome", nil},
		{"non-reply action", &models.DecisionOutcome{Action: models.ActionCreateTicket, Confidence: 0.35}},
		{"cited reply above floor", replyOutcome(0.8, []models.Citation{{KBChunkID: "c1"}}, map[string]any{
			"retrieval_source": "vector",
			"top_similarity":   0.72,
		})},
		{"document match without similarity", replyOutcome(0.85, []models.Citation{{KBDocumentID: "d1"}}, map[string]any{
			"retrieval_source": "document",
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Apply(tt.outcome, "t1")
			if tt.outcome == nil {
				if got != nil {
					t.Fatal("expected nil")
				}
				return
			}
			if got.DecisionSource == models.SourceGuardrail {
				t.Errorf("unexpected downgrade: %+v", got)
			}
		})
	}
}

func TestApplySimilarityFloorOnlyForVector(t *testing.T) {
	c := newChecker()
	// Low similarity metadata but non-vector source: only missing_citations
	// could apply, and citations are present.
	out := replyOutcome(0.8, []models.Citation{{KBChunkID: "c1"}}, map[string]any{
		"retrieval_source": "keyword",
		"top_similarity":   0.01,
	})
	if got := c.Apply(out, "t1"); got.DecisionSource == models.SourceGuardrail {
		t.Errorf("floor applied outside vector retrieval: %+v", got)
	}
}

func TestApplyIdempotent(t *testing.T) {
	c := newChecker()
	out := replyOutcome(0.8, nil, nil)
	first := *c.Apply(out, "t1")
	second := *c.Apply(out, "t1")
	if first.Action != second.Action || first.DecisionReason != second.DecisionReason || first.Confidence != second.Confidence {
		t.Errorf("second pass changed outcome: %+v vs %+v", first, second)
	}
}
