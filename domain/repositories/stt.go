package repositories

import "context"

// ConnectionState represents the state of a live transcription link.
type ConnectionState int

const (
	ConnectionConnecting ConnectionState = iota
	ConnectionOpen
	ConnectionClosed
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionConnecting:
		return "connecting"
	case ConnectionOpen:
		return "open"
	case ConnectionClosed:
		return "closed"
	}
	return "unknown"
}

// LiveOptions configures a streaming transcription connection.
type LiveOptions struct {
	Model          string `json:"model"`
	InterimResults bool   `json:"interim_results"`
	SmartFormat    bool   `json:"smart_format"`
	FillerWords    bool   `json:"filler_words"`
	UtteranceEndMs int    `json:"utterance_end_ms"`
	SampleRate     int    `json:"sample_rate"`
	Encoding       string `json:"encoding"`
	Language       string `json:"language"`
}

// DefaultLiveOptions returns the connection options used for call sessions.
func DefaultLiveOptions() LiveOptions {
	return LiveOptions{
		Model:          "nova-3",
		InterimResults: true,
		SmartFormat:    true,
		FillerWords:    true,
		UtteranceEndMs: 5000,
		SampleRate:     48000,
		Encoding:       "linear16",
		Language:       "en-US",
	}
}

// TranscriptEvent is one transcription result from the vendor. IsFinal marks
// a result the vendor will not revise; SpeechFinal marks the detected end of
// an utterance.
type TranscriptEvent struct {
	Text        string  `json:"text"`
	IsFinal     bool    `json:"is_final"`
	SpeechFinal bool    `json:"speech_final"`
	Confidence  float64 `json:"confidence,omitempty"`
}

// LiveTranscriber abstracts a streaming speech-to-text vendor.
type LiveTranscriber interface {
	// Connect opens a streaming transcription link.
	Connect(ctx context.Context, opts LiveOptions) (LiveStream, error)
}

// LiveStream is a live link to the transcription vendor. Audio chunks are
// fire-and-forget; transcript events arrive on Events until the stream closes.
type LiveStream interface {
	// Send forwards one audio chunk. Empty chunks are dropped.
	Send(chunk []byte) error
	// Events delivers transcript events. Closed when the stream ends.
	Events() <-chan TranscriptEvent
	// KeepAlive signals the vendor to hold the idle connection open.
	KeepAlive() error
	// State reports the connection state.
	State() ConnectionState
	// Close tears the link down.
	Close() error
}
