package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jettgem1/voice-assistant/domain/entities"
	"github.com/jettgem1/voice-assistant/domain/repositories"
)

// MessageType defines the type of WebSocket control message
type MessageType string

// Messages sent by the caller
const (
	MessageTypeCallStart        MessageType = "call_start"
	MessageTypeCallEnd          MessageType = "call_end"
	MessageTypeMicStatus        MessageType = "mic_status"
	MessageTypePlaybackFinished MessageType = "playback_finished"
)

// Messages sent to the caller
const (
	MessageTypeCallStarted   MessageType = "call_started"
	MessageTypeCallEnded     MessageType = "call_ended"
	MessageTypeTranscript    MessageType = "transcript"
	MessageTypeTurn          MessageType = "turn"
	MessageTypeState         MessageType = "state"
	MessageTypeSpeakingStart MessageType = "speaking_start"
	MessageTypeSpeakingEnd   MessageType = "speaking_end"
	MessageTypeError         MessageType = "error"
)

// Microphone states reported by the peer. "denied" surfaces a permission
// failure, "open" means the caller is mid-utterance.
const (
	MicStatusReady  = "ready"
	MicStatusDenied = "denied"
	MicStatusOpen   = "open"
	MicStatusClosed = "closed"
)

// BaseMessage defines the common structure for all control messages
type BaseMessage struct {
	Type      MessageType `json:"type" validate:"required"`
	Timestamp string      `json:"timestamp,omitempty"`
}

// LiveOptionsOverride carries caller-supplied transcription settings. Pointer
// fields distinguish an explicit false or zero from an omitted field, so the
// boolean toggles can be turned off.
type LiveOptionsOverride struct {
	Model          *string `json:"model,omitempty"`
	Language       *string `json:"language,omitempty"`
	Encoding       *string `json:"encoding,omitempty"`
	SampleRate     *int    `json:"sample_rate,omitempty"`
	UtteranceEndMs *int    `json:"utterance_end_ms,omitempty"`
	InterimResults *bool   `json:"interim_results,omitempty"`
	SmartFormat    *bool   `json:"smart_format,omitempty"`
	FillerWords    *bool   `json:"filler_words,omitempty"`
}

// CallStartMessage launches a call session. Options, when present, override
// the default live transcription settings.
type CallStartMessage struct {
	BaseMessage
	Options *LiveOptionsOverride `json:"options,omitempty"`
}

// CallEndMessage ends the live call and triggers teardown.
type CallEndMessage struct {
	BaseMessage
}

// MicStatusMessage reports the peer's microphone state.
type MicStatusMessage struct {
	BaseMessage
	Status string `json:"status" validate:"required,oneof=ready denied open closed"`
}

// PlaybackFinishedMessage acknowledges that a synthesized utterance finished
// playing on the peer.
type PlaybackFinishedMessage struct {
	BaseMessage
	UtteranceID string `json:"utterance_id" validate:"required"`
}

// CallStartedMessage confirms a launched session.
type CallStartedMessage struct {
	BaseMessage
	SessionID string `json:"session_id"`
}

// CallEndedMessage confirms teardown completed.
type CallEndedMessage struct {
	BaseMessage
	SessionID string `json:"session_id"`
}

// TranscriptMessage forwards a live caption to the peer.
type TranscriptMessage struct {
	BaseMessage
	Text        string `json:"text"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
}

// TurnMessage notifies the peer of a turn appended to the conversation log.
type TurnMessage struct {
	BaseMessage
	Role    entities.Role `json:"role"`
	Content string        `json:"content"`
}

// StateMessage carries the listening and processing indicator flags.
type StateMessage struct {
	BaseMessage
	Listening  bool `json:"listening"`
	Processing bool `json:"processing"`
}

// SpeakingStartMessage precedes the binary audio frames of one utterance.
type SpeakingStartMessage struct {
	BaseMessage
	UtteranceID string `json:"utterance_id"`
}

// SpeakingEndMessage follows the last binary audio frame of one utterance.
type SpeakingEndMessage struct {
	BaseMessage
	UtteranceID string `json:"utterance_id"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage validates an incoming message and returns its typed form
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	// First parse as base message to get type
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypeCallStart:
		var msg CallStartMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid call start message: %w", err)
		}
		if msg.Options != nil {
			if err := v.validateLiveOptions(msg.Options); err != nil {
				return nil, err
			}
		}
		return &msg, nil

	case MessageTypeCallEnd:
		var msg CallEndMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid call end message: %w", err)
		}
		return &msg, nil

	case MessageTypeMicStatus:
		var msg MicStatusMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid mic status message: %w", err)
		}
		if err := v.validateMicStatus(&msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case MessageTypePlaybackFinished:
		var msg PlaybackFinishedMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid playback finished message: %w", err)
		}
		if msg.UtteranceID == "" {
			return nil, fmt.Errorf("utterance_id is required")
		}
		return &msg, nil

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

// validateMicStatus validates mic status message fields
func (v *MessageValidator) validateMicStatus(msg *MicStatusMessage) error {
	if msg.Status == "" {
		return fmt.Errorf("status is required")
	}

	validStatuses := map[string]bool{
		MicStatusReady: true, MicStatusDenied: true, MicStatusOpen: true, MicStatusClosed: true,
	}
	if !validStatuses[msg.Status] {
		return fmt.Errorf("status must be one of: ready, denied, open, closed")
	}

	return nil
}

// validateLiveOptions validates caller-supplied transcription overrides
func (v *MessageValidator) validateLiveOptions(opts *LiveOptionsOverride) error {
	if opts.UtteranceEndMs != nil && *opts.UtteranceEndMs < 0 {
		return fmt.Errorf("utterance_end_ms must not be negative")
	}
	if opts.SampleRate != nil && (*opts.SampleRate <= 0 || *opts.SampleRate > 48000) {
		return fmt.Errorf("sample_rate must be between 1 and 48000")
	}
	return nil
}

func stamp() string {
	return time.Now().Format(time.RFC3339)
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeError,
			Timestamp: stamp(),
		},
		Code:    code,
		Message: message,
	}
}

// CreateStateMessage snapshots the session's indicator flags
func CreateStateMessage(call *entities.CallSession) *StateMessage {
	return &StateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeState,
			Timestamp: stamp(),
		},
		Listening:  call.Listening(),
		Processing: call.Processing(),
	}
}

// CreateTurnMessage wraps an appended conversation turn
func CreateTurnMessage(turn entities.Turn) *TurnMessage {
	return &TurnMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeTurn,
			Timestamp: stamp(),
		},
		Role:    turn.Role,
		Content: turn.Content,
	}
}

// CreateTranscriptMessage wraps a live caption event
func CreateTranscriptMessage(event repositories.TranscriptEvent) *TranscriptMessage {
	return &TranscriptMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeTranscript,
			Timestamp: stamp(),
		},
		Text:        event.Text,
		IsFinal:     event.IsFinal,
		SpeechFinal: event.SpeechFinal,
	}
}
