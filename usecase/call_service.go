package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/jettgem1/voice-assistant/domain/entities"
	"github.com/jettgem1/voice-assistant/domain/repositories"
)

// CallService owns the end-of-call flow: once the caller hangs up, the
// accumulated transcript is submitted for extraction and, when extraction
// succeeds, the appointment is booked. Extraction and booking failures are
// logged only; the turn log is reset no matter what.
type CallService struct {
	extractor repositories.AppointmentExtractor
	booking   *BookingService
	logger    *zap.Logger
}

// NewCallService creates a new call teardown service.
func NewCallService(extractor repositories.AppointmentExtractor, booking *BookingService, logger *zap.Logger) *CallService {
	return &CallService{
		extractor: extractor,
		booking:   booking,
		logger:    logger,
	}
}

// End tears a call session down in order: unlaunch and close the live
// transcription stream, stop any active playback, clear the processing flag,
// then extract and book from the serialized transcript. The turn log is reset
// unconditionally before returning.
func (s *CallService) End(ctx context.Context, call *entities.CallSession, stream repositories.LiveStream, speaker Speaker) {
	call.SetLaunched(false)
	if stream != nil {
		if err := stream.Close(); err != nil {
			s.logger.Warn("Failed to close live stream",
				zap.String("session_id", call.ID),
				zap.Error(err))
		}
	}

	if speaker != nil {
		speaker.Stop()
	}

	call.SetProcessing(false)

	defer call.Reset()

	transcript := call.Transcript()
	s.logger.Info("Call ended",
		zap.String("session_id", call.ID),
		zap.Int("turns", call.Len()))

	result := s.extractor.Extract(ctx, transcript)
	if result.Type != repositories.ExtractionSuccess {
		s.logger.Error("Appointment extraction failed",
			zap.String("session_id", call.ID),
			zap.String("type", string(result.Type)),
			zap.Error(result.Err))
		return
	}

	if _, err := s.booking.Book(ctx, *result.Appointment); err != nil {
		// Booking failures are never surfaced to the caller.
		s.logger.Error("Booking failed",
			zap.String("session_id", call.ID),
			zap.String("start", result.Appointment.Start),
			zap.Error(err))
		return
	}
}
