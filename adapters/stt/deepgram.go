package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jettgem1/voice-assistant/domain/repositories"
)

const (
	defaultDeepgramListenURL = "wss://api.deepgram.com/v1/listen"
	deepgramDialTimeout      = 10 * time.Second
)

// DeepgramConfig holds configuration for the Deepgram live transcription adapter.
// Required fields:
// - APIKey: Your Deepgram API key
// Optional fields with defaults:
// - ListenURL: The live transcription endpoint (default: "wss://api.deepgram.com/v1/listen")
type DeepgramConfig struct {
	APIKey    string
	ListenURL string
}

// NewDeepgramConfigFromEnv creates a DeepgramConfig from environment variables.
func NewDeepgramConfigFromEnv() DeepgramConfig {
	return DeepgramConfig{
		APIKey:    os.Getenv("DEEPGRAM_API_KEY"),
		ListenURL: os.Getenv("DEEPGRAM_LISTEN_URL"),
	}
}

// DeepgramLive implements LiveTranscriber against Deepgram's live WebSocket API.
type DeepgramLive struct {
	apiKey    string
	listenURL string
	logger    *zap.Logger
}

var _ repositories.LiveTranscriber = (*DeepgramLive)(nil)

// NewDeepgramLive creates a new Deepgram live transcription adapter.
func NewDeepgramLive(config DeepgramConfig, logger *zap.Logger) (*DeepgramLive, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("deepgram API key is required")
	}

	listenURL := config.ListenURL
	if listenURL == "" {
		listenURL = defaultDeepgramListenURL
	}

	return &DeepgramLive{
		apiKey:    config.APIKey,
		listenURL: listenURL,
		logger:    logger,
	}, nil
}

// Connect opens a live transcription stream with the given options.
func (d *DeepgramLive) Connect(ctx context.Context, opts repositories.LiveOptions) (repositories.LiveStream, error) {
	u, err := url.Parse(d.listenURL)
	if err != nil {
		return nil, fmt.Errorf("invalid listen URL: %w", err)
	}

	q := u.Query()
	q.Set("model", opts.Model)
	q.Set("interim_results", strconv.FormatBool(opts.InterimResults))
	q.Set("smart_format", strconv.FormatBool(opts.SmartFormat))
	q.Set("filler_words", strconv.FormatBool(opts.FillerWords))
	if opts.UtteranceEndMs > 0 {
		q.Set("utterance_end_ms", strconv.Itoa(opts.UtteranceEndMs))
	}
	if opts.Encoding != "" {
		q.Set("encoding", opts.Encoding)
		q.Set("sample_rate", strconv.Itoa(opts.SampleRate))
	}
	if opts.Language != "" {
		q.Set("language", opts.Language)
	}
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Token "+d.apiKey)

	dialer := websocket.Dialer{HandshakeTimeout: deepgramDialTimeout}

	stream := &deepgramStream{
		logger: d.logger,
		events: make(chan repositories.TranscriptEvent, 16),
		state:  repositories.ConnectionConnecting,
	}

	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, fmt.Errorf("deepgram connection failed (status %d): %w", status, err)
	}

	stream.mu.Lock()
	stream.conn = conn
	stream.state = repositories.ConnectionOpen
	stream.mu.Unlock()

	go stream.readLoop()

	d.logger.Info("Connected to Deepgram live transcription",
		zap.String("model", opts.Model),
		zap.Int("utterance_end_ms", opts.UtteranceEndMs))

	return stream, nil
}

// deepgramResults mirrors Deepgram's "Results" message shape.
type deepgramResults struct {
	Type    string `json:"type"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
	IsFinal     bool `json:"is_final"`
	SpeechFinal bool `json:"speech_final"`
}

type deepgramStream struct {
	logger *zap.Logger
	events chan repositories.TranscriptEvent

	mu    sync.Mutex
	conn  *websocket.Conn
	state repositories.ConnectionState
}

var _ repositories.LiveStream = (*deepgramStream)(nil)

func (s *deepgramStream) readLoop() {
	defer func() {
		s.mu.Lock()
		s.state = repositories.ConnectionClosed
		s.mu.Unlock()
		close(s.events)
	}()

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("Deepgram read error", zap.Error(err))
			}
			return
		}

		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(message, &head); err != nil {
			continue
		}

		switch head.Type {
		case "Results":
			var resp deepgramResults
			if err := json.Unmarshal(message, &resp); err != nil {
				s.logger.Warn("Failed to parse transcript message", zap.Error(err))
				continue
			}
			if len(resp.Channel.Alternatives) == 0 {
				continue
			}
			best := resp.Channel.Alternatives[0]
			s.events <- repositories.TranscriptEvent{
				Text:        best.Transcript,
				IsFinal:     resp.IsFinal,
				SpeechFinal: resp.SpeechFinal,
				Confidence:  best.Confidence,
			}
		case "UtteranceEnd":
			s.events <- repositories.TranscriptEvent{IsFinal: true, SpeechFinal: true}
		case "Metadata":
			// Sent once on connect; nothing to forward.
		}
	}
}

// Send forwards one audio chunk to Deepgram. Empty chunks are dropped.
func (s *deepgramStream) Send(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != repositories.ConnectionOpen {
		return fmt.Errorf("stream is %s", s.state)
	}
	return s.conn.WriteMessage(websocket.BinaryMessage, chunk)
}

// KeepAlive holds the idle connection open past the vendor timeout.
func (s *deepgramStream) KeepAlive() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != repositories.ConnectionOpen {
		return fmt.Errorf("stream is %s", s.state)
	}
	return s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"KeepAlive"}`))
}

func (s *deepgramStream) Events() <-chan repositories.TranscriptEvent {
	return s.events
}

func (s *deepgramStream) State() repositories.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close signals end of audio and tears the link down.
func (s *deepgramStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == repositories.ConnectionClosed {
		return nil
	}
	s.state = repositories.ConnectionClosed

	s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
	return s.conn.Close()
}
