// Package chat owns conversational state and the ask loop: it retrieves
// context for a question, assembles a prompt from session history and the
// retrieved passages, calls the generative model, and records the exchange.
package chat

import (
	"sync"

	"github.com/google/uuid"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one utterance in a session.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Session holds the ordered history of one user's conversation. A session
// is exclusively owned: at most one Ask may be in flight on it, and a
// concurrent second Ask is rejected rather than interleaved. Sessions are
// created explicitly and simply discarded by their owner when done.
type Session struct {
	id string

	// flight enforces single-flight Ask; mu guards turns so history
	// stays readable while an Ask is in progress.
	flight sync.Mutex
	mu     sync.Mutex
	turns  []Turn
}

// NewSession creates an empty session.
func NewSession() *Session {
	return &Session{id: uuid.NewString()}
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// History returns a copy of the session's turns in order.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of recorded turns.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// window returns a copy of up to the last n turns.
func (s *Session) window(n int) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.turns
	if n > 0 && n < len(t) {
		t = t[len(t)-n:]
	}
	out := make([]Turn, len(t))
	copy(out, t)
	return out
}

// append records turns.
func (s *Session) append(turns ...Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turns...)
}
