package llm

import (
	"context"
	"sync"

	"github.com/jettgem1/voice-assistant/domain/entities"
	"github.com/jettgem1/voice-assistant/domain/repositories"
)

// MockCompleter is a scriptable Completer for tests and local development.
type MockCompleter struct {
	mu      sync.Mutex
	Reply   string
	Err     error
	history [][]entities.Turn
}

var _ repositories.Completer = (*MockCompleter)(nil)

func (m *MockCompleter) Complete(ctx context.Context, history []entities.Turn) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := make([]entities.Turn, len(history))
	copy(snapshot, history)
	m.history = append(m.history, snapshot)
	if m.Err != nil {
		return "", m.Err
	}
	if m.Reply == "" {
		return "How can I help you schedule your appointment?", nil
	}
	return m.Reply, nil
}

// Calls returns the histories submitted so far.
func (m *MockCompleter) Calls() [][]entities.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]entities.Turn, len(m.history))
	copy(out, m.history)
	return out
}

// MockExtractor is a scriptable AppointmentExtractor.
type MockExtractor struct {
	mu          sync.Mutex
	Result      repositories.ExtractionResult
	transcripts []string
}

var _ repositories.AppointmentExtractor = (*MockExtractor)(nil)

func (m *MockExtractor) Extract(ctx context.Context, transcript string) repositories.ExtractionResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transcripts = append(m.transcripts, transcript)
	if m.Result.Type == "" {
		return repositories.ExtractionResult{Type: repositories.ExtractionUnknownError}
	}
	return m.Result
}

// Transcripts returns the transcripts submitted so far.
func (m *MockExtractor) Transcripts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.transcripts))
	copy(out, m.transcripts)
	return out
}
