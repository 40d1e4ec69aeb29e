package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jettgem1/voice-assistant/domain/entities"
	"github.com/jettgem1/voice-assistant/domain/repositories"
)

// ErrInvalidBooking marks a booking rejected by validation or the business-
// hours rule before any vendor call was made.
var ErrInvalidBooking = errors.New("invalid booking request")

// BookingService validates appointment drafts and submits them to the booking
// vendor. Drafts outside Monday-Friday Pacific business hours never reach the
// vendor.
type BookingService struct {
	scheduler repositories.Scheduler
	logger    *zap.Logger
}

// NewBookingService creates a new booking service.
func NewBookingService(scheduler repositories.Scheduler, logger *zap.Logger) *BookingService {
	return &BookingService{scheduler: scheduler, logger: logger}
}

// Book validates the draft and creates the booking. Validation and window
// failures wrap ErrInvalidBooking; vendor failures are returned as-is.
func (b *BookingService) Book(ctx context.Context, draft entities.AppointmentDraft) (*repositories.BookingConfirmation, error) {
	if err := draft.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBooking, err)
	}

	start, err := draft.StartTime()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBooking, err)
	}

	if err := entities.CheckBookingWindow(start); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBooking, err)
	}

	confirmation, err := b.scheduler.CreateBooking(ctx, draft)
	if err != nil {
		return nil, err
	}

	b.logger.Info("Appointment booked",
		zap.String("start", draft.Start),
		zap.String("event_name", draft.EventName))

	return confirmation, nil
}
