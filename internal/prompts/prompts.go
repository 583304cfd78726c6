// Package prompts holds the canned prompt templates shared by the answer
// generator, guardrails, and the decision policy.
package prompts

// DefaultClarify is the stock clarification prompt. The conversation
// context builder compares the previous assistant turn against the active
// clarify prompt to detect a clarification loop, so every component must
// resolve the prompt the same way.
const DefaultClarify = "Can you add more context (account, steps, and expected behavior)?"

// EcommerceClarify is the clarification prompt for the "ecommerce" mode.
const EcommerceClarify = "What product or service do you want, which city are you in, and what is your payment method or order number?"

// TicketAck is returned when a message is routed to ticket creation.
const TicketAck = "Thanks for reporting this. I am creating a ticket and will follow up with next steps."

// EmptyMessageClarify is returned for empty or whitespace-only messages.
const EmptyMessageClarify = "Please share a bit more detail so I can help."

// GenericReply is the last-resort heuristic reply when retrieval found
// nothing and no other rule fired.
const GenericReply = "Thanks. I am checking our knowledge base. For now, try restarting the app and share any error code."

// Clarify resolves the active clarification prompt: an explicit override
// wins, then the mode selects a template, default otherwise.
func Clarify(override, mode string) string {
	if override != "" {
		return override
	}
	if mode == "ecommerce" {
		return EcommerceClarify
	}
	return DefaultClarify
}
