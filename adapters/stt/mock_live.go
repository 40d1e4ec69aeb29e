package stt

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/jettgem1/voice-assistant/domain/repositories"
)

// MockLive is a scriptable LiveTranscriber for tests and local development.
// Pushed events are delivered to whichever stream is currently connected.
type MockLive struct {
	logger *zap.Logger

	mu      sync.Mutex
	current *MockStream
}

var _ repositories.LiveTranscriber = (*MockLive)(nil)

// NewMockLive creates a mock live transcription adapter.
func NewMockLive(logger *zap.Logger) *MockLive {
	return &MockLive{logger: logger}
}

// Connect opens a mock stream and records it as the current one.
func (m *MockLive) Connect(ctx context.Context, opts repositories.LiveOptions) (repositories.LiveStream, error) {
	stream := &MockStream{
		events: make(chan repositories.TranscriptEvent, 16),
		state:  repositories.ConnectionOpen,
	}

	m.mu.Lock()
	m.current = stream
	m.mu.Unlock()

	m.logger.Info("Mock live transcription connected", zap.String("model", opts.Model))
	return stream, nil
}

// Push delivers a transcript event on the currently connected stream.
func (m *MockLive) Push(event repositories.TranscriptEvent) {
	m.mu.Lock()
	stream := m.current
	m.mu.Unlock()
	if stream != nil {
		stream.Push(event)
	}
}

// Stream returns the currently connected mock stream, if any.
func (m *MockLive) Stream() *MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// MockStream is the LiveStream half of MockLive. It records sent chunks and
// keep-alive calls for assertions.
type MockStream struct {
	events chan repositories.TranscriptEvent

	mu         sync.Mutex
	state      repositories.ConnectionState
	chunks     [][]byte
	keepAlives int
}

var _ repositories.LiveStream = (*MockStream)(nil)

// Push delivers one transcript event to the stream's consumer.
func (s *MockStream) Push(event repositories.TranscriptEvent) {
	s.mu.Lock()
	open := s.state == repositories.ConnectionOpen
	s.mu.Unlock()
	if open {
		s.events <- event
	}
}

func (s *MockStream) Send(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	s.chunks = append(s.chunks, buf)
	return nil
}

func (s *MockStream) KeepAlive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keepAlives++
	return nil
}

func (s *MockStream) Events() <-chan repositories.TranscriptEvent {
	return s.events
}

func (s *MockStream) State() repositories.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *MockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == repositories.ConnectionClosed {
		return nil
	}
	s.state = repositories.ConnectionClosed
	close(s.events)
	return nil
}

// SentChunks returns the audio chunks forwarded so far.
func (s *MockStream) SentChunks() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// KeepAlives returns how many keep-alive signals were sent.
func (s *MockStream) KeepAlives() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keepAlives
}
