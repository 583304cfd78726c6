package policy

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/and27/supportops/internal/prompts"
	"github.com/and27/supportops/internal/retrieval"
	"github.com/and27/supportops/pkg/models"
)

// ticketKeywords route a message straight to ticket creation. Matched as
// substrings anywhere in the lowercased message, so "failing" counts.
var ticketKeywords = []string{"bug", "error", "issue", "incident", "crash", "outage", "fail"}

// Decision is a terminal outcome produced by a heuristic rule.
type Decision struct {
	Reply      string
	Action     models.Action
	Confidence float64
	Reason     string
}

// rule is one named heuristic step. A non-nil Decision ends the walk; done
// without a Decision defers the message to the next pipeline stage; neither
// moves on to the next rule. Precedence is the list's order.
type rule struct {
	name string
	run  func(msg string, words, tagCount int) (*Decision, bool)
}

// precheckRules run before any I/O. Ticket keywords outrank tag routing on
// purpose: a message carrying both "error" and "#billing" becomes a ticket,
// never a KB lookup.
var precheckRules = []rule{
	{name: "empty", run: emptyRule("precheck_empty_message")},
	{name: "ticket_keyword", run: ticketKeywordRule("precheck_ticket_keyword")},
	{name: "tagged", run: func(_ string, _, tagCount int) (*Decision, bool) {
		return nil, tagCount > 0
	}},
	{name: "short", run: shortMessageRule("precheck_short_message")},
}

// heuristicRules classify a message after retrieval came up empty. Same
// keyword and length rules as the precheck, but tags no longer matter and
// the terminal state is a generic reply instead of a deferral.
var heuristicRules = []rule{
	{name: "empty", run: emptyRule("heuristic_empty_message")},
	{name: "ticket_keyword", run: ticketKeywordRule("heuristic_ticket_keyword")},
	{name: "short", run: shortMessageRule("heuristic_short_message")},
	{name: "generic_reply", run: func(_ string, _, _ int) (*Decision, bool) {
		return &Decision{
			Reply:      prompts.GenericReply,
			Action:     models.ActionReply,
			Confidence: 0.7,
			Reason:     "heuristic_generic_reply",
		}, true
	}},
}

func emptyRule(reason string) func(string, int, int) (*Decision, bool) {
	return func(msg string, _, _ int) (*Decision, bool) {
		if msg != "" {
			return nil, false
		}
		return &Decision{
			Reply:      prompts.EmptyMessageClarify,
			Action:     models.ActionAskClarifying,
			Confidence: 0.2,
			Reason:     reason,
		}, true
	}
}

func ticketKeywordRule(reason string) func(string, int, int) (*Decision, bool) {
	return func(msg string, _, _ int) (*Decision, bool) {
		for _, keyword := range ticketKeywords {
			if strings.Contains(msg, keyword) {
				return &Decision{
					Reply:      prompts.TicketAck,
					Action:     models.ActionCreateTicket,
					Confidence: 0.35,
					Reason:     reason,
				}, true
			}
		}
		return nil, false
	}
}

func shortMessageRule(reason string) func(string, int, int) (*Decision, bool) {
	return func(_ string, words, _ int) (*Decision, bool) {
		if words >= 4 {
			return nil, false
		}
		return &Decision{
			Reply:      prompts.DefaultClarify,
			Action:     models.ActionAskClarifying,
			Confidence: 0.45,
			Reason:     reason,
		}, true
	}
}

// Precheck runs the pure heuristic rules over the decision message. A nil
// result defers the message to retrieval.
func Precheck(message string) *Decision {
	decision, _ := walkRules(precheckRules, message)
	return decision
}

// Classify is the fallback classifier for messages retrieval could not
// answer. It always decides.
func Classify(message string) *Decision {
	decision, _ := walkRules(heuristicRules, message)
	return decision
}

func walkRules(rules []rule, message string) (*Decision, string) {
	msg := strings.ToLower(strings.TrimSpace(message))
	words := len(strings.Fields(msg))
	tags := retrieval.ExtractHashTags(msg)
	if len(tags) > 0 {
		log.Info().Strs("tags", tags).Int("word_count", words).Msg("Hashtags parsed")
	}

	for _, r := range rules {
		decision, done := r.run(msg, words, len(tags))
		if decision != nil {
			return decision, r.name
		}
		if done {
			return nil, r.name
		}
	}
	return nil, ""
}
