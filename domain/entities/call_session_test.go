package entities

import (
	"strings"
	"testing"
)

func TestNewCallSession(t *testing.T) {
	call := NewCallSession()

	if call.ID == "" {
		t.Error("Session ID must be set")
	}
	if !call.Launched() {
		t.Error("A new session starts launched")
	}
	if call.Len() != 0 {
		t.Errorf("A new session starts with an empty log, got %d turns", call.Len())
	}
	if err := call.Validate(); err != nil {
		t.Errorf("New session failed validation: %v", err)
	}
}

func TestCallSession_AppendIsAppendOnly(t *testing.T) {
	call := NewCallSession()

	call.Append(RoleUser, "first")
	call.Append(RoleAssistant, "second")

	turns := call.Turns()
	if len(turns) != 2 {
		t.Fatalf("Expected 2 turns, got %d", len(turns))
	}

	// Mutating the snapshot must not touch the log.
	turns[0].Content = "mutated"
	if call.Turns()[0].Content != "first" {
		t.Error("Turns snapshot leaked internal state")
	}
}

func TestCallSession_AppendNotifiesObserver(t *testing.T) {
	call := NewCallSession()

	var observed []Turn
	call.OnAppend(func(turn Turn) { observed = append(observed, turn) })

	call.Append(RoleUser, "hello")
	call.Append(RoleAssistant, "hi")

	if len(observed) != 2 {
		t.Fatalf("Expected 2 observed turns, got %d", len(observed))
	}
	if observed[0].Content != "hello" || observed[1].Role != RoleAssistant {
		t.Errorf("Observer saw wrong turns: %+v", observed)
	}
}

func TestCallSession_HistoryFiltersPlaceholders(t *testing.T) {
	call := NewCallSession()

	call.Append(RoleUser, "Tuesday works")
	call.Append(RoleSystem, PlaceholderListening)
	call.Append(RoleSystem, PlaceholderProcessing)
	call.Append(RoleAssistant, "Confirmed.")

	history := call.History()
	if len(history) != 2 {
		t.Fatalf("Expected 2 history turns, got %d", len(history))
	}
	for _, turn := range history {
		if turn.Content == PlaceholderListening || turn.Content == PlaceholderProcessing {
			t.Errorf("Placeholder leaked into history: %+v", turn)
		}
	}

	// The full log still holds everything.
	if call.Len() != 4 {
		t.Errorf("Expected full log of 4 turns, got %d", call.Len())
	}
}

func TestCallSession_TranscriptFormat(t *testing.T) {
	call := NewCallSession()

	call.Append(RoleUser, "I need an oil change")
	call.Append(RoleAssistant, "What day works for you?")

	transcript := call.Transcript()
	lines := strings.Split(transcript, "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 transcript lines, got %d", len(lines))
	}
	if lines[0] != "user: I need an oil change" {
		t.Errorf("Unexpected first line: %q", lines[0])
	}
	if lines[1] != "assistant: What day works for you?" {
		t.Errorf("Unexpected second line: %q", lines[1])
	}
}

func TestCallSession_Reset(t *testing.T) {
	call := NewCallSession()
	call.Append(RoleUser, "hello")

	call.Reset()

	if call.Len() != 0 {
		t.Errorf("Expected empty log after reset, got %d turns", call.Len())
	}
	if call.Transcript() != "" {
		t.Errorf("Expected empty transcript after reset, got %q", call.Transcript())
	}
}

func TestCallSession_Flags(t *testing.T) {
	call := NewCallSession()

	call.SetListening(true)
	call.SetProcessing(true)
	if !call.Listening() || !call.Processing() {
		t.Error("Flags did not stick")
	}

	call.SetLaunched(false)
	call.SetListening(false)
	call.SetProcessing(false)
	if call.Launched() || call.Listening() || call.Processing() {
		t.Error("Flags did not clear")
	}
}

func TestCallSession_ValidateRejectsBadRole(t *testing.T) {
	call := NewCallSession()
	call.Append(Role("narrator"), "off-script")

	if err := call.Validate(); err == nil {
		t.Error("Expected validation error for unknown role")
	}
}
