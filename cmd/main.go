package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/jettgem1/voice-assistant/adapters/cal"
	"github.com/jettgem1/voice-assistant/adapters/llm"
	"github.com/jettgem1/voice-assistant/adapters/stt"
	"github.com/jettgem1/voice-assistant/adapters/tts"
	"github.com/jettgem1/voice-assistant/domain/repositories"
	"github.com/jettgem1/voice-assistant/internal/api"
	"github.com/jettgem1/voice-assistant/internal/websocket"
	"github.com/jettgem1/voice-assistant/usecase"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using environment as-is")
	}

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Initialize adapters
	transcriber := newTranscriber(logger)

	completer, err := llm.NewTogetherCompleter(llm.NewTogetherConfigFromEnv(), logger)
	if err != nil {
		logger.Fatal("Failed to initialize completion adapter", zap.Error(err))
	}

	synthesizer, err := tts.NewDeepgramTTS(tts.NewDeepgramConfigFromEnv(), logger)
	if err != nil {
		logger.Fatal("Failed to initialize synthesis adapter", zap.Error(err))
	}

	extractor, err := llm.NewGeminiExtractor(context.Background(), logger)
	if err != nil {
		logger.Fatal("Failed to initialize extraction adapter", zap.Error(err))
	}

	scheduler, err := cal.NewClient(cal.NewConfigFromEnv(), logger)
	if err != nil {
		logger.Fatal("Failed to initialize booking adapter", zap.Error(err))
	}

	// Initialize usecase services
	bookingService := usecase.NewBookingService(scheduler, logger)
	callService := usecase.NewCallService(extractor, bookingService, logger)

	// Initialize WebSocket hub
	hub := websocket.NewHub(transcriber, completer, synthesizer, callService, logger)
	go hub.Run()

	// Initialize API routes
	api.InitRoutes(e, hub, completer, synthesizer, extractor, bookingService, logger)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("port", port))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// newTranscriber selects the live transcription backend. Deepgram is the
// default; Google streaming recognition and the scriptable mock are available
// behind STT_PROVIDER.
func newTranscriber(logger *zap.Logger) repositories.LiveTranscriber {
	switch os.Getenv("STT_PROVIDER") {
	case "google":
		return stt.NewGoogleLive(logger)
	case "mock":
		return stt.NewMockLive(logger)
	default:
		transcriber, err := stt.NewDeepgramLive(stt.NewDeepgramConfigFromEnv(), logger)
		if err != nil {
			logger.Fatal("Failed to initialize transcription adapter", zap.Error(err))
		}
		return transcriber
	}
}
