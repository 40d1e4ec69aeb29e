package api

import (
	"time"

	"github.com/jettgem1/voice-assistant/domain/entities"
)

// CompletionRequest carries the conversation log for one completion turn
type CompletionRequest struct {
	Messages []entities.Turn `json:"messages" validate:"required"`
}

// CompletionResponse carries the assistant's reply
type CompletionResponse struct {
	AIMessage string `json:"aiMessage"`
}

// SynthesizeRequest carries text for speech synthesis
type SynthesizeRequest struct {
	Text  string `json:"text" validate:"required"`
	Model string `json:"model,omitempty"`
}

// SynthesizeResponse carries the synthesized audio, base64 encoded
type SynthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

// ExtractRequest carries a serialized call transcript
type ExtractRequest struct {
	Content string `json:"content" validate:"required"`
}

// ExtractResponse is the tagged extraction outcome. Appointment is set on
// success; Value carries the rejected draft on validation errors and Text the
// raw model output on parse errors.
type ExtractResponse struct {
	Type        string                     `json:"type"`
	Appointment *entities.AppointmentDraft `json:"appointment,omitempty"`
	Value       any                        `json:"value,omitempty"`
	Text        string                     `json:"text,omitempty"`
}

// BookRequest carries one appointment booking submission
type BookRequest struct {
	Start     string            `json:"start" validate:"required"`
	EventName string            `json:"eventName" validate:"required"`
	Attendee  entities.Attendee `json:"attendee" validate:"required"`
}

// AppointmentDraft converts the request into the domain draft
func (r *BookRequest) AppointmentDraft() entities.AppointmentDraft {
	return entities.AppointmentDraft{
		Start:     r.Start,
		EventName: r.EventName,
		Attendee:  r.Attendee,
	}
}

// CallAuthRequest requests a WebSocket call token
type CallAuthRequest struct {
	CallerID string `json:"caller_id,omitempty"`
}

// CallAuthResponse carries the issued call token
type CallAuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	CallerID  string    `json:"caller_id"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
