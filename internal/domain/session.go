package domain

import "time"

// SessionState is the conversation history kept for one caller session.
// When History is non-empty, History[0] is the system message.
type SessionState struct {
	SessionID    string    `json:"session_id"`
	History      []Message `json:"history"`
	LastResponse string    `json:"last_response"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate history freely.
func (s *SessionState) Clone() *SessionState {
	if s == nil {
		return nil
	}
	out := *s
	if s.History != nil {
		out.History = make([]Message, len(s.History))
		copy(out.History, s.History)
	}
	return &out
}

// LastAssistant returns the most recent assistant message matching keep,
// scanning history in reverse.
func (s *SessionState) LastAssistant(keep func(content string) bool) (string, bool) {
	for i := len(s.History) - 1; i >= 0; i-- {
		m := s.History[i]
		if m.Role != RoleAssistant {
			continue
		}
		if keep == nil || keep(m.Content) {
			return m.Content, true
		}
	}
	return "", false
}
