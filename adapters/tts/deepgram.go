package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jettgem1/voice-assistant/domain/repositories"
)

const (
	defaultSpeakURL   = "https://api.deepgram.com/v1/speak"
	defaultSpeakModel = "aura-asteria-en"
	speakTimeout      = 60 * time.Second
)

// DeepgramConfig holds configuration for the Deepgram Aura synthesis adapter.
// Required fields:
// - APIKey: Your Deepgram API key
// Optional fields with defaults:
// - SpeakURL: The synthesis endpoint (default: "https://api.deepgram.com/v1/speak")
// - Model: The voice model (default: "aura-asteria-en")
type DeepgramConfig struct {
	APIKey   string
	SpeakURL string
	Model    string
}

// NewDeepgramConfigFromEnv creates a DeepgramConfig from environment variables.
func NewDeepgramConfigFromEnv() DeepgramConfig {
	return DeepgramConfig{
		APIKey:   os.Getenv("DEEPGRAM_API_KEY"),
		SpeakURL: os.Getenv("DEEPGRAM_SPEAK_URL"),
		Model:    os.Getenv("DEEPGRAM_TTS_MODEL"),
	}
}

// DeepgramTTS implements Synthesizer using Deepgram's Aura speak API.
type DeepgramTTS struct {
	apiKey   string
	speakURL string
	model    string
	client   *http.Client
	logger   *zap.Logger
}

var _ repositories.Synthesizer = (*DeepgramTTS)(nil)

// NewDeepgramTTS creates a new Deepgram synthesis adapter.
func NewDeepgramTTS(config DeepgramConfig, logger *zap.Logger) (*DeepgramTTS, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("deepgram API key is required")
	}

	speakURL := config.SpeakURL
	if speakURL == "" {
		speakURL = defaultSpeakURL
	}

	model := config.Model
	if model == "" {
		model = defaultSpeakModel
	}

	return &DeepgramTTS{
		apiKey:   config.APIKey,
		speakURL: speakURL,
		model:    model,
		client:   &http.Client{Timeout: speakTimeout},
		logger:   logger,
	}, nil
}

// Synthesize renders text to audio. An empty model selects the adapter default.
func (d *DeepgramTTS) Synthesize(ctx context.Context, text string, model string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	if model == "" {
		model = d.model
	}

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s?model=%s", d.speakURL, url.QueryEscape(model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+d.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("deepgram speak API returned %d: %s", resp.StatusCode, string(errorBody))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio response: %w", err)
	}

	d.logger.Info("Synthesized speech",
		zap.String("model", model),
		zap.Int("text_len", len(text)),
		zap.Int("audio_bytes", len(audio)))

	return audio, nil
}
