package policy

import (
	"testing"

	"github.com/and27/supportops/internal/prompts"
	"github.com/and27/supportops/pkg/models"
)

func TestPrecheck(t *testing.T) {
	tests := []struct {
		name           string
		message        string
		wantAction     models.Action
		wantConfidence float64
		wantReason     string
		wantDefer      bool
	}{
		{
			name:           "empty message",
			message:        "   ",
			wantAction:     models.ActionAskClarifying,
			wantConfidence: 0.2,
			wantReason:     "precheck_empty_message",
		},
		{
			name:           "ticket keyword",
			message:        "the app shows an error on login",
			wantAction:     models.ActionCreateTicket,
			wantConfidence: 0.35,
			wantReason:     "precheck_ticket_keyword",
		},
		{
			name:           "keyword as substring",
			message:        "payments keep failing every time",
			wantAction:     models.ActionCreateTicket,
			wantConfidence: 0.35,
			wantReason:     "precheck_ticket_keyword",
		},
		{
			name:           "keyword beats tag",
			message:        "I have a bug with login #login",
			wantAction:     models.ActionCreateTicket,
			wantConfidence: 0.35,
			wantReason:     "precheck_ticket_keyword",
		},
		{
			name:      "tag defers to retrieval",
			message:   "#billing",
			wantDefer: true,
		},
		{
			name:           "short message",
			message:        "ok",
			wantAction:     models.ActionAskClarifying,
			wantConfidence: 0.45,
			wantReason:     "precheck_short_message",
		},
		{
			name:      "long plain message defers",
			message:   "how do I change my plan to annual billing",
			wantDefer: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Precheck(tt.message)
			if tt.wantDefer {
				if got != nil {
					t.Fatalf("expected deferral, got %+v", got)
				}
				return
			}
			if got == nil {
				t.Fatal("expected a decision")
			}
			if got.Action != tt.wantAction || got.Confidence != tt.wantConfidence || got.Reason != tt.wantReason {
				t.Errorf("got %+v", got)
			}
			if got.Reply == "" {
				t.Error("empty reply")
			}
		})
	}
}

func TestClassifyAlwaysDecides(t *testing.T) {
	tests := []struct {
		name       string
		message    string
		wantAction models.Action
		wantReason string
	}{
		{"ticket keyword", "there is an outage right now", models.ActionCreateTicket, "heuristic_ticket_keyword"},
		{"short", "hey", models.ActionAskClarifying, "heuristic_short_message"},
		{"generic reply", "how do I export my account data", models.ActionReply, "heuristic_generic_reply"},
		// Tags no longer defer once retrieval has already missed.
		{"tag only", "#billing", models.ActionAskClarifying, "heuristic_short_message"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.message)
			if got == nil {
				t.Fatal("classifier must always decide")
			}
			if got.Action != tt.wantAction || got.Reason != tt.wantReason {
				t.Errorf("got %+v", got)
			}
		})
	}
}

func TestClassifyGenericReply(t *testing.T) {
	got := Classify("how do I export my account data")
	if got.Confidence != 0.7 {
		t.Errorf("confidence = %v", got.Confidence)
	}
	if got.Reply != prompts.GenericReply {
		t.Errorf("reply = %q", got.Reply)
	}
}
