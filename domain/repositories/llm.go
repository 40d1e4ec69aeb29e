package repositories

import (
	"context"

	"github.com/jettgem1/voice-assistant/domain/entities"
)

// Completer abstracts the conversational language-model endpoint. The full
// turn log (placeholders filtered) goes in; a single assistant reply comes out.
type Completer interface {
	Complete(ctx context.Context, history []entities.Turn) (string, error)
}

// ExtractionType tags the outcome of a transcript extraction.
type ExtractionType string

const (
	ExtractionSuccess         ExtractionType = "success"
	ExtractionParseError      ExtractionType = "parse-error"
	ExtractionValidationError ExtractionType = "validation-error"
	ExtractionUnknownError    ExtractionType = "unknown-error"
)

// ExtractionResult is the tagged outcome of an extraction run. Appointment is
// set only when Type is ExtractionSuccess.
type ExtractionResult struct {
	Type        ExtractionType             `json:"type"`
	Appointment *entities.AppointmentDraft `json:"appointment,omitempty"`
	Text        string                     `json:"text,omitempty"`  // raw model output on parse errors
	Value       any                        `json:"value,omitempty"` // rejected value on validation errors
	Err         error                      `json:"-"`
}

// AppointmentExtractor turns a serialized call transcript into a structured
// appointment draft.
type AppointmentExtractor interface {
	Extract(ctx context.Context, transcript string) ExtractionResult
}
