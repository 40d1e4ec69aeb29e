package entities

import (
	"errors"
	"fmt"
	"net/mail"
	"time"
)

// Booking business hours, Pacific local time. Appointments are only accepted
// Monday through Friday, 07:00 inclusive to 19:00 exclusive.
const (
	BookingTimeZone  = "America/Los_Angeles"
	BookingOpenHour  = 7
	BookingCloseHour = 19
)

// Attendee is the person the appointment is booked for.
type Attendee struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	TimeZone string `json:"timeZone,omitempty"`
	Language string `json:"language,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// AppointmentDraft is the structured scheduling data extracted from a call
// transcript. Produced once per call at teardown and consumed immediately by
// the booking submission; never persisted.
type AppointmentDraft struct {
	Start     string   `json:"start"` // ISO-8601 UTC, e.g. "2024-10-14T15:00:00Z"
	EventName string   `json:"eventName"`
	Attendee  Attendee `json:"attendee"`
}

// Validate checks the draft against the extraction schema.
func (a *AppointmentDraft) Validate() error {
	if _, err := a.StartTime(); err != nil {
		return fmt.Errorf("invalid ISO string for start time: %w", err)
	}
	if a.EventName == "" {
		return errors.New("event name is required")
	}
	if a.Attendee.Name == "" {
		return errors.New("attendee name is required")
	}
	if _, err := mail.ParseAddress(a.Attendee.Email); err != nil {
		return fmt.Errorf("invalid email format: %w", err)
	}
	return nil
}

// StartTime parses the draft's start timestamp.
func (a *AppointmentDraft) StartTime() (time.Time, error) {
	return time.Parse(time.RFC3339, a.Start)
}

// CheckBookingWindow rejects start times outside Monday-Friday business hours
// in the booking time zone. The check runs before any booking vendor call.
func CheckBookingWindow(start time.Time) error {
	loc, err := time.LoadLocation(BookingTimeZone)
	if err != nil {
		return fmt.Errorf("failed to load booking time zone: %w", err)
	}
	local := start.In(loc)

	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return errors.New("bookings are only allowed from Monday to Friday")
	}

	hour := local.Hour()
	if hour < BookingOpenHour || hour >= BookingCloseHour {
		return errors.New("bookings are only allowed from 7 AM to 7 PM Pacific")
	}

	return nil
}
