package repositories

import (
	"context"
	"encoding/json"

	"github.com/jettgem1/voice-assistant/domain/entities"
)

// BookingConfirmation carries the booking vendor's response through
// untouched, along with the HTTP status the vendor answered with.
type BookingConfirmation struct {
	Status     string          `json:"status,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	HTTPStatus int             `json:"-"`
}

// Scheduler abstracts the calendar booking vendor.
type Scheduler interface {
	CreateBooking(ctx context.Context, draft entities.AppointmentDraft) (*BookingConfirmation, error)
}
