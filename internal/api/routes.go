package api

import (
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/jettgem1/voice-assistant/domain/repositories"
	"github.com/jettgem1/voice-assistant/internal/auth"
	"github.com/jettgem1/voice-assistant/internal/websocket"
	"github.com/jettgem1/voice-assistant/usecase"
)

// InitRoutes initializes all API routes
func InitRoutes(
	e *echo.Echo,
	hub *websocket.Hub,
	completer repositories.Completer,
	synthesizer repositories.Synthesizer,
	extractor repositories.AppointmentExtractor,
	booking *usecase.BookingService,
	logger *zap.Logger,
) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "voice-assistant",
		})
	})

	// Pipeline endpoints, one per vendor-facing stage
	e.POST("/completion", func(c echo.Context) error {
		return handleCompletion(c, completer, logger)
	})
	e.POST("/synthesize", func(c echo.Context) error {
		return handleSynthesize(c, synthesizer, logger)
	})
	e.POST("/extract", func(c echo.Context) error {
		return handleExtract(c, extractor, logger)
	})
	e.POST("/book", func(c echo.Context) error {
		return handleBook(c, booking, logger)
	})

	// API v1 routes
	v1 := e.Group("/api/v1")

	v1.POST("/call/auth", func(c echo.Context) error {
		return callAuth(c, logger)
	})

	// WebSocket endpoint with JWT validation
	e.GET("/ws", func(c echo.Context) error {
		return websocketWithAuth(hub, c, logger)
	})
}

// handleCompletion submits the conversation log to the language model
func handleCompletion(c echo.Context, completer repositories.Completer, logger *zap.Logger) error {
	var req CompletionRequest
	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind completion request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	if len(req.Messages) == 0 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "At least one message is required",
		})
	}

	reply, err := completer.Complete(c.Request().Context(), req.Messages)
	if err != nil {
		logger.Error("Completion failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "completion_failed",
			Message: "Failed to generate a reply",
		})
	}

	return c.JSON(http.StatusOK, CompletionResponse{AIMessage: reply})
}

// handleSynthesize converts text to speech and returns base64 audio
func handleSynthesize(c echo.Context, synthesizer repositories.Synthesizer, logger *zap.Logger) error {
	var req SynthesizeRequest
	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind synthesize request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	if req.Text == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Text is required",
		})
	}

	audio, err := synthesizer.Synthesize(c.Request().Context(), req.Text, req.Model)
	if err != nil {
		logger.Error("Synthesis failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "synthesis_failed",
			Message: "Failed to synthesize speech",
		})
	}

	return c.JSON(http.StatusOK, SynthesizeResponse{
		AudioContent: base64.StdEncoding.EncodeToString(audio),
	})
}

// handleExtract runs appointment extraction over a serialized transcript
func handleExtract(c echo.Context, extractor repositories.AppointmentExtractor, logger *zap.Logger) error {
	var req ExtractRequest
	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind extract request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	if req.Content == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Transcript content is required",
		})
	}

	result := extractor.Extract(c.Request().Context(), req.Content)
	switch result.Type {
	case repositories.ExtractionSuccess:
		return c.JSON(http.StatusOK, ExtractResponse{
			Type:        string(result.Type),
			Appointment: result.Appointment,
		})

	case repositories.ExtractionParseError, repositories.ExtractionValidationError:
		logger.Warn("Extraction rejected transcript",
			zap.String("type", string(result.Type)),
			zap.Error(result.Err))
		return c.JSON(http.StatusBadRequest, ExtractResponse{
			Type:  string(result.Type),
			Value: result.Value,
			Text:  result.Text,
		})

	default:
		logger.Error("Extraction failed", zap.Error(result.Err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "extraction_failed",
			Message: "Failed to extract appointment details",
		})
	}
}

// handleBook validates and submits one appointment booking
func handleBook(c echo.Context, booking *usecase.BookingService, logger *zap.Logger) error {
	var req BookRequest
	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind book request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	confirmation, err := booking.Book(c.Request().Context(), req.AppointmentDraft())
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidBooking) {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_booking",
				Message: err.Error(),
			})
		}
		logger.Error("Booking failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "booking_failed",
			Message: "The scheduling vendor rejected the booking",
		})
	}

	// Pass the vendor's status through; Cal.com answers a created booking
	// with 201.
	status := confirmation.HTTPStatus
	if status == 0 {
		status = http.StatusOK
	}
	return c.JSON(status, confirmation)
}

// callAuth issues a JWT call token for the WebSocket endpoint
func callAuth(c echo.Context, logger *zap.Logger) error {
	var req CallAuthRequest
	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind call auth request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	callerID := req.CallerID
	if callerID == "" {
		callerID = uuid.NewString()
	}

	token, err := auth.GenerateCallToken(callerID)
	if err != nil {
		logger.Error("Failed to generate call token",
			zap.String("caller_id", callerID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	// Expiration mirrors the JWT claims.
	expiresAt := time.Now().Add(24 * time.Hour)

	logger.Info("Caller authenticated", zap.String("caller_id", callerID))

	return c.JSON(http.StatusOK, CallAuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		CallerID:  callerID,
	})
}

// websocketWithAuth handles WebSocket connections with JWT authentication
func websocketWithAuth(hub *websocket.Hub, c echo.Context, logger *zap.Logger) error {
	// Accept the token from the Authorization header or, for browser clients
	// that cannot set WebSocket headers, the token query parameter.
	var token string
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader != "" && len(authHeader) > 7 && authHeader[:7] == "Bearer " {
		token = authHeader[7:]
	}
	if token == "" {
		token = c.QueryParam("token")
	}

	if token == "" {
		logger.Warn("WebSocket connection rejected: missing token")
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required",
		})
	}

	claims, err := auth.ValidateToken(token)
	if err != nil {
		logger.Warn("WebSocket connection rejected: invalid token", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		})
	}

	if claims.Role != "caller" {
		logger.Warn("WebSocket connection rejected: invalid role",
			zap.String("role", claims.Role))
		return c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "invalid_role",
			Message: "Only caller tokens are allowed for WebSocket connections",
		})
	}

	if claims.CallerID == "" {
		logger.Error("WebSocket connection rejected: missing caller ID in token")
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_token_claims",
			Message: "Caller ID not found in token",
		})
	}

	logger.Info("WebSocket connection authenticated",
		zap.String("caller_id", claims.CallerID))

	return websocket.HandleWebSocketWithAuth(hub, c, claims.CallerID, logger)
}
