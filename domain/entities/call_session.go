package entities

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role identifies the speaker of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Placeholder contents shown in the UI while waiting. They are never sent
// to the completion endpoint.
const (
	PlaceholderListening  = "Listening..."
	PlaceholderProcessing = "AI is processing..."
)

// ApologyTurn is appended when the completion endpoint fails.
const ApologyTurn = "Sorry, I couldn't process that."

// MicDeniedTurn is appended when the peer reports a microphone permission failure.
const MicDeniedTurn = "Microphone access denied. Please enable it in your browser settings."

// Turn is a single utterance in the conversation log. Immutable once appended.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CallSession holds the state of one launched call: the UI flags and the
// append-only turn log. Exactly one session is live per connected peer.
type CallSession struct {
	ID        string
	StartedAt time.Time

	mu         sync.Mutex
	launched   bool
	listening  bool
	processing bool
	turns      []Turn
	onAppend   func(Turn)
}

// NewCallSession creates a freshly launched call session.
func NewCallSession() *CallSession {
	return &CallSession{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		launched:  true,
		turns:     make([]Turn, 0),
	}
}

// Append adds a turn to the log. Turns are never modified or removed until Reset.
func (s *CallSession) Append(role Role, content string) Turn {
	s.mu.Lock()
	turn := Turn{Role: role, Content: content}
	s.turns = append(s.turns, turn)
	observer := s.onAppend
	s.mu.Unlock()
	if observer != nil {
		observer(turn)
	}
	return turn
}

// OnAppend registers an observer invoked for every appended turn. Used by the
// transport layer to mirror the conversation log to the peer.
func (s *CallSession) OnAppend(fn func(Turn)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAppend = fn
}

// Turns returns a snapshot of the conversation log.
func (s *CallSession) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// History returns the turn log with UI-only placeholder turns filtered out,
// suitable for submission to the completion endpoint.
func (s *CallSession) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, 0, len(s.turns))
	for _, t := range s.turns {
		if t.Content == PlaceholderListening || t.Content == PlaceholderProcessing {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Transcript serializes the full turn log as newline-delimited "role: content"
// lines for the extraction endpoint.
func (s *CallSession) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := make([]string, 0, len(s.turns))
	for _, t := range s.turns {
		lines = append(lines, fmt.Sprintf("%s: %s", t.Role, t.Content))
	}
	return strings.Join(lines, "\n")
}

// Reset empties the turn log. Called unconditionally at the end of teardown.
func (s *CallSession) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = s.turns[:0]
}

// Len reports the number of turns in the log.
func (s *CallSession) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// SetLaunched flips the launched flag.
func (s *CallSession) SetLaunched(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.launched = v
}

// Launched reports whether the call is still live.
func (s *CallSession) Launched() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.launched
}

// SetListening flips the listening pulse flag.
func (s *CallSession) SetListening(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listening = v
}

// Listening reports the listening pulse flag.
func (s *CallSession) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

// SetProcessing flips the processing flag shown while a response run is in flight.
func (s *CallSession) SetProcessing(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processing = v
}

// Processing reports the processing flag.
func (s *CallSession) Processing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

// Validate validates the session data.
func (s *CallSession) Validate() error {
	if s.ID == "" {
		return errors.New("session id is required")
	}
	for _, t := range s.Turns() {
		if t.Role != RoleUser && t.Role != RoleAssistant && t.Role != RoleSystem {
			return fmt.Errorf("invalid turn role: %s", t.Role)
		}
	}
	return nil
}
