package session

import (
	"time"

	"github.com/ashureev/promptlab/internal/domain"
)

// Truncate bounds history to the leading system message plus the most recent
// maxExchanges user/assistant pairs. The first message is always kept. The
// input slice is not modified.
func Truncate(history []domain.Message, maxExchanges int) []domain.Message {
	if maxExchanges < 0 {
		maxExchanges = 0
	}
	keep := 2 * maxExchanges
	if len(history) <= 1+keep {
		return history
	}

	out := make([]domain.Message, 0, 1+keep)
	out = append(out, history[0])
	return append(out, history[len(history)-keep:]...)
}

// Assemble builds the message list for a new turn: exactly one system message
// at position 0, the prior turns in order, then the new user message.
func Assemble(state *domain.SessionState, systemPrompt, userText string) []domain.Message {
	var prior []domain.Message
	if state != nil {
		prior = state.History
	}

	messages := make([]domain.Message, 0, len(prior)+2)
	messages = append(messages, domain.SystemMessage(systemPrompt))
	for _, m := range prior {
		if m.Role == domain.RoleSystem {
			continue
		}
		messages = append(messages, m)
	}
	return append(messages, domain.UserMessage(userText))
}

// RecordTurn appends a completed exchange to state and applies truncation.
// An empty history is seeded with systemPrompt first.
func RecordTurn(state *domain.SessionState, systemPrompt, userText, reply string, maxExchanges int) {
	if len(state.History) == 0 {
		state.History = []domain.Message{domain.SystemMessage(systemPrompt)}
	}
	state.History = append(state.History, domain.UserMessage(userText), domain.AssistantMessage(reply))
	state.History = Truncate(state.History, maxExchanges)
	state.LastResponse = reply
	state.UpdatedAt = time.Now()
}
