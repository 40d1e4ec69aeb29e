package cal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/jettgem1/voice-assistant/domain/entities"
	"github.com/jettgem1/voice-assistant/domain/repositories"
)

const (
	defaultBookingsURL = "https://api.cal.com/v2/bookings"
	calAPIVersion      = "2024-08-13"
	defaultEventTypeID = 1274448
	bookingTimeout     = 30 * time.Second

	defaultAttendeeTimeZone = "America/Los_Angeles"
	defaultAttendeeLanguage = "en"
)

// Config holds configuration for the Cal.com booking adapter.
// Required fields:
// - APIKey: Your Cal.com API key
// Optional fields with defaults:
// - BookingsURL: The bookings endpoint (default: "https://api.cal.com/v2/bookings")
// - EventTypeID: The Cal.com event type to book against (default: 1274448)
type Config struct {
	APIKey      string
	BookingsURL string
	EventTypeID int
}

// NewConfigFromEnv creates a Config from environment variables.
func NewConfigFromEnv() Config {
	config := Config{
		APIKey:      os.Getenv("CAL_API_KEY"),
		BookingsURL: os.Getenv("CAL_BOOKINGS_URL"),
	}
	if idStr := os.Getenv("CAL_EVENT_TYPE_ID"); idStr != "" {
		if id, err := strconv.Atoi(idStr); err == nil && id > 0 {
			config.EventTypeID = id
		}
	}
	return config
}

// Client implements Scheduler against the Cal.com v2 bookings API.
type Client struct {
	apiKey      string
	bookingsURL string
	eventTypeID int
	httpClient  *http.Client
	logger      *zap.Logger
}

var _ repositories.Scheduler = (*Client)(nil)

// NewClient creates a new Cal.com booking client.
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("cal.com API key is required")
	}

	bookingsURL := config.BookingsURL
	if bookingsURL == "" {
		bookingsURL = defaultBookingsURL
	}

	eventTypeID := config.EventTypeID
	if eventTypeID == 0 {
		eventTypeID = defaultEventTypeID
	}

	return &Client{
		apiKey:      config.APIKey,
		bookingsURL: bookingsURL,
		eventTypeID: eventTypeID,
		httpClient:  &http.Client{Timeout: bookingTimeout},
		logger:      logger,
	}, nil
}

type bookingPayload struct {
	Start       string          `json:"start"`
	EventTypeID int             `json:"eventTypeId"`
	Attendee    bookingAttendee `json:"attendee"`
}

type bookingAttendee struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	TimeZone string `json:"timeZone"`
	Language string `json:"language"`
}

// CreateBooking submits the appointment draft to the booking vendor.
// Attendee time zone and language fall back to Pacific/English, matching the
// vendor event type.
func (c *Client) CreateBooking(ctx context.Context, draft entities.AppointmentDraft) (*repositories.BookingConfirmation, error) {
	timeZone := draft.Attendee.TimeZone
	if timeZone == "" {
		timeZone = defaultAttendeeTimeZone
	}
	language := draft.Attendee.Language
	if language == "" {
		language = defaultAttendeeLanguage
	}

	payload := bookingPayload{
		Start:       draft.Start,
		EventTypeID: c.eventTypeID,
		Attendee: bookingAttendee{
			Name:     draft.Attendee.Name,
			Email:    draft.Attendee.Email,
			TimeZone: timeZone,
			Language: language,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal booking payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.bookingsURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("cal-api-version", calAPIVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("booking request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read booking response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("cal.com API returned %d: %s", resp.StatusCode, string(respBody))
	}

	c.logger.Info("Booking created",
		zap.String("start", draft.Start),
		zap.String("event_name", draft.EventName),
		zap.Int("status", resp.StatusCode))

	return &repositories.BookingConfirmation{
		Status:     http.StatusText(resp.StatusCode),
		Data:       json.RawMessage(respBody),
		HTTPStatus: resp.StatusCode,
	}, nil
}
