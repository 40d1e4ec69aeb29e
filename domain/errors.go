package domain

import "errors"

// Failure taxonomy for the call pipeline. Microphone and completion failures
// are surfaced to the user as a conversation turn; synthesis, extraction, and
// booking failures are logged only and degrade silently. No failure is fatal:
// every path returns control to idle and a new call can be launched.
var (
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrConnection       = errors.New("streaming connection error")
	ErrCompletion       = errors.New("completion endpoint error")
	ErrSynthesis        = errors.New("synthesis endpoint error")
	ErrPlayback         = errors.New("audio playback error")
	ErrExtraction       = errors.New("appointment extraction error")
	ErrBooking          = errors.New("booking endpoint error")
)
