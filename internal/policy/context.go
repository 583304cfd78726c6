package policy

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/and27/supportops/internal/store"
	"github.com/and27/supportops/pkg/models"
)

// LoadRecentMessages returns up to limit prior turns in chronological order.
// A store failure degrades to an empty context rather than failing the chat
// request.
func LoadRecentMessages(ctx context.Context, st store.MessageStore, conversationID string, limit int) []models.Message {
	if limit <= 0 {
		return nil
	}
	messages, err := st.ListMessages(ctx, conversationID, limit)
	if err != nil {
		log.Warn().Err(err).Str("conversation_id", conversationID).Msg("Context load failed")
		return nil
	}
	return messages
}

// BuildContext renders prior turns as "role: content" lines. Only user,
// assistant, and system roles count; internal whitespace is collapsed. When
// the transcript is over budget the truncation keeps the tail, so the most
// recent turns survive.
func BuildContext(messages []models.Message, maxChars int) string {
	var lines []string
	for _, m := range messages {
		if m.Role != "user" && m.Role != "assistant" && m.Role != "system" {
			continue
		}
		content := strings.Join(strings.Fields(m.Content), " ")
		if content == "" {
			continue
		}
		lines = append(lines, m.Role+": "+content)
	}
	transcript := strings.TrimSpace(strings.Join(lines, "\n"))
	if maxChars > 0 && len(transcript) > maxChars {
		transcript = transcript[len(transcript)-maxChars:]
	}
	return transcript
}

// BuildRetrievalQuery derives the two query forms from one inbound message.
// The decision message is what the heuristics judge: the raw message, or the
// transcript-prefixed form when prior context exists. The retrieval query is
// what the retriever searches with; it is rewritten only in the clarify
// loop, where the previous assistant turn was exactly the clarification
// prompt. There the last two user turns plus the current message form the
// query, letting a follow-up answer enrich the vector search without
// re-judging the precheck on stale context.
func BuildRetrievalQuery(message, contextText, clarifyPrompt string, prior []models.Message) (decisionMessage, retrievalQuery string, metadata map[string]any) {
	decisionMessage = message
	retrievalQuery = message
	metadata = map[string]any{"context_used": false}
	if contextText == "" {
		return decisionMessage, retrievalQuery, metadata
	}

	metadata["context_used"] = true
	metadata["context_messages"] = len(prior)
	metadata["context_chars"] = len(contextText)
	decisionMessage = fmt.Sprintf("%s\nuser: %s", contextText, message)

	var userTurns []string
	lastAssistant := ""
	for _, m := range prior {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		switch m.Role {
		case "user":
			userTurns = append(userTurns, content)
		case "assistant":
			lastAssistant = content
		}
	}
	if lastAssistant == clarifyPrompt && len(userTurns) > 0 {
		if len(userTurns) > 2 {
			userTurns = userTurns[len(userTurns)-2:]
		}
		retrievalQuery = strings.TrimSpace(strings.Join(append(userTurns, message), "\n"))
	}
	return decisionMessage, retrievalQuery, metadata
}
