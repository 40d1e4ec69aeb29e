package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/jettgem1/voice-assistant/domain/entities"
	"github.com/jettgem1/voice-assistant/domain/repositories"
)

const (
	defaultExtractorModel   = "gemini-2.0-flash"
	extractorTimeoutSeconds = 30
)

// extractionInstructions prompt the model to pull appointment details out of
// a call transcript and emit them in the booking request shape.
const extractionInstructions = `You are an assistant that extracts appointment details from chat logs. Given the following conversation between a user and an assistant about making a car appointment, extract the following information:

- First Name
- Last Name
- Day of Appointment (Monday, Tuesday, etc.)
- Appointment Time (HH:MM in 24-hour format) (ASSUME ALL TIMES ARE IN PDT)
- Car Make
- Car Model
- Car Year
- Purpose of the Appointment

Now convert this information into a booking request with fields:

- start: ISO string in UTC, e.g., "2024-10-14T15:00:00Z" (time of appointment) (ALL DATES are 2024-10 and week of the 14th) (Monday = 2024-10-14 and so on)
- eventName: Format: "Car Appointment with {firstName} {lastName}"
- attendee.name: Full name: "{firstName} {lastName}"
- attendee.email: {firstName}.{lastName}@gmail.com
- attendee.notes: Car details (Make, Model, Year) and appointment purpose.

The appointment time should be converted to UTC format as an ISO 8601 string.

Conversation:
`

// GeminiExtractor implements AppointmentExtractor using Gemini structured
// output: the response schema pins the model to the appointment draft shape.
type GeminiExtractor struct {
	client *genai.Client
	logger *zap.Logger
	model  string
}

var _ repositories.AppointmentExtractor = (*GeminiExtractor)(nil)

// NewGeminiExtractor creates a new Gemini extraction adapter. Reads
// GEMINI_API_KEY and optionally GEMINI_EXTRACTOR_MODEL from the environment.
func NewGeminiExtractor(ctx context.Context, logger *zap.Logger) (*GeminiExtractor, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := os.Getenv("GEMINI_EXTRACTOR_MODEL")
	if model == "" {
		model = defaultExtractorModel
	}

	return &GeminiExtractor{
		client: client,
		logger: logger,
		model:  model,
	}, nil
}

// appointmentSchema constrains the model output to the draft shape.
var appointmentSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"start":     {Type: genai.TypeString, Description: "ISO-8601 UTC start time"},
		"eventName": {Type: genai.TypeString},
		"attendee": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"name":  {Type: genai.TypeString},
				"email": {Type: genai.TypeString},
				"notes": {Type: genai.TypeString},
			},
			Required: []string{"name", "email"},
		},
	},
	Required: []string{"start", "eventName", "attendee"},
}

// Extract pulls a structured appointment draft out of a serialized transcript.
func (g *GeminiExtractor) Extract(ctx context.Context, transcript string) repositories.ExtractionResult {
	ctx, cancel := context.WithTimeout(ctx, extractorTimeoutSeconds*time.Second)
	defer cancel()

	contents := []*genai.Content{
		genai.NewContentFromText(extractionInstructions+transcript, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   appointmentSchema,
	}

	response, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		g.logger.Error("Extraction request failed", zap.Error(err))
		return repositories.ExtractionResult{Type: repositories.ExtractionUnknownError, Err: err}
	}

	text := response.Text()
	if text == "" {
		err := fmt.Errorf("empty extraction response")
		g.logger.Error("Extraction returned no content")
		return repositories.ExtractionResult{Type: repositories.ExtractionUnknownError, Err: err}
	}

	return parseAppointment(text, g.logger)
}

// parseAppointment maps raw model output to the tagged extraction result.
func parseAppointment(text string, logger *zap.Logger) repositories.ExtractionResult {
	var draft entities.AppointmentDraft
	if err := json.Unmarshal([]byte(text), &draft); err != nil {
		logger.Warn("Extraction output is not valid JSON", zap.String("text", text), zap.Error(err))
		return repositories.ExtractionResult{Type: repositories.ExtractionParseError, Text: text, Err: err}
	}

	if err := draft.Validate(); err != nil {
		logger.Warn("Extraction output failed validation", zap.Error(err))
		return repositories.ExtractionResult{Type: repositories.ExtractionValidationError, Value: draft, Err: err}
	}

	return repositories.ExtractionResult{Type: repositories.ExtractionSuccess, Appointment: &draft}
}
