package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jettgem1/voice-assistant/domain/entities"
	"github.com/jettgem1/voice-assistant/domain/repositories"
)

const (
	defaultTogetherURL   = "https://api.together.xyz/v1/chat/completions"
	defaultTogetherModel = "meta-llama/Meta-Llama-3.1-8B-Instruct-Turbo"
	togetherTimeout      = 60 * time.Second
)

// schedulerPrompt scripts the assistant through the appointment flow.
const schedulerPrompt = "You are AutoMate, and your role is to schedule vehicle maintenance appointments. " +
	"Follow these exact steps: " +
	"1. Greet the customer and collect their full name (first and last). Do NOT proceed until you have both. " +
	"2. Collect vehicle information (make, model, and year). DO NOT proceed until you have all three. " +
	"3. Recommend services based on the vehicle make: " +
	"- For Chrysler, Dodge, Jeep, or RAM: Ask for mileage. If 50,000 miles or more, recommend factory-recommended maintenance. If less, offer a checkup only. " +
	"- For Tesla, Polestar, Rivian, and all other electric vehicles: Recommend battery replacement and charging port diagnosis. " +
	"- For all other makes: Recommend an oil change, tire rotation, and windshield wiper replacement. " +
	"4. Suggest appointment times based on the service and vehicle type: " +
	"- For electric vehicles: Offer Monday-Friday at odd hours. " +
	"- For hybrid/ICE vehicles: Offer Monday-Friday at even hours. " +
	"There are no appointment times after 7pm. " +
	"5. Confirm the appointment details, including vehicle info, selected services, and time. " +
	"6. End the call politely, prompt them to hang up. " +
	"Stay concise, polite, and professional. Only follow the listed steps and avoid additional actions or commentary."

// TogetherConfig holds configuration for the Together AI completion adapter.
// Required fields:
// - APIKey: Your Together AI API key
// Optional fields with defaults:
// - APIURL: The chat completions endpoint (default: "https://api.together.xyz/v1/chat/completions")
// - Model: The model identifier (default: "meta-llama/Meta-Llama-3.1-8B-Instruct-Turbo")
type TogetherConfig struct {
	APIKey string
	APIURL string
	Model  string
}

// NewTogetherConfigFromEnv creates a TogetherConfig from environment variables.
func NewTogetherConfigFromEnv() TogetherConfig {
	return TogetherConfig{
		APIKey: os.Getenv("TOGETHER_AI_API_KEY"),
		APIURL: os.Getenv("TOGETHER_AI_API_URL"),
		Model:  os.Getenv("TOGETHER_AI_MODEL"),
	}
}

// TogetherCompleter implements Completer against Together AI's streaming chat
// completions API. The SSE stream is accumulated into one reply before
// returning, so callers see a single blocking request.
type TogetherCompleter struct {
	apiKey string
	apiURL string
	model  string
	client *http.Client
	logger *zap.Logger
}

var _ repositories.Completer = (*TogetherCompleter)(nil)

// NewTogetherCompleter creates a new Together AI completion adapter.
func NewTogetherCompleter(config TogetherConfig, logger *zap.Logger) (*TogetherCompleter, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("together AI API key is required")
	}

	apiURL := config.APIURL
	if apiURL == "" {
		apiURL = defaultTogetherURL
	}

	model := config.Model
	if model == "" {
		model = defaultTogetherModel
	}

	return &TogetherCompleter{
		apiKey: config.APIKey,
		apiURL: apiURL,
		model:  model,
		client: &http.Client{Timeout: togetherTimeout},
		logger: logger,
	}, nil
}

type togetherMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type togetherRequest struct {
	Model             string            `json:"model"`
	Messages          []togetherMessage `json:"messages"`
	MaxTokens         int               `json:"max_tokens"`
	Temperature       float64           `json:"temperature"`
	TopP              float64           `json:"top_p"`
	TopK              int               `json:"top_k"`
	RepetitionPenalty float64           `json:"repetition_penalty"`
	Stop              []string          `json:"stop"`
	Stream            bool              `json:"stream"`
}

type togetherStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// Complete submits the conversation history and returns the assistant reply.
func (t *TogetherCompleter) Complete(ctx context.Context, history []entities.Turn) (string, error) {
	messages := make([]togetherMessage, 0, len(history)+1)
	messages = append(messages, togetherMessage{Role: "system", Content: schedulerPrompt})
	for _, turn := range history {
		messages = append(messages, togetherMessage{Role: string(turn.Role), Content: turn.Content})
	}

	reqBody := togetherRequest{
		Model:             t.model,
		Messages:          messages,
		MaxTokens:         512,
		Temperature:       1,
		TopP:              1,
		TopK:              50,
		RepetitionPenalty: 1,
		Stop:              []string{"<|eot_id|>", "<|eom_id|>"},
		Stream:            true,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.apiURL, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("together API error %d: %s", resp.StatusCode, string(body))
	}

	reply, err := t.readStream(ctx, resp.Body)
	if err != nil {
		return "", err
	}

	t.logger.Info("Completion generated",
		zap.Int("history_turns", len(history)),
		zap.Int("reply_len", len(reply)))

	return reply, nil
}

func (t *TogetherCompleter) readStream(ctx context.Context, body io.Reader) (string, error) {
	reader := bufio.NewReader(body)
	var reply strings.Builder

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return "", fmt.Errorf("read error: %w", err)
		}

		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk togetherStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) > 0 {
			reply.WriteString(chunk.Choices[0].Delta.Content)
		}
	}

	return reply.String(), nil
}
