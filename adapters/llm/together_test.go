package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/jettgem1/voice-assistant/domain/entities"
)

func TestNewTogetherCompleter(t *testing.T) {
	logger := zaptest.NewLogger(t)

	if _, err := NewTogetherCompleter(TogetherConfig{}, logger); err == nil {
		t.Error("Expected error when API key is not set")
	}

	completer, err := NewTogetherCompleter(TogetherConfig{APIKey: "test-api-key"}, logger)
	if err != nil {
		t.Fatalf("Failed to create TogetherCompleter: %v", err)
	}
	if completer.model != defaultTogetherModel {
		t.Errorf("Expected default model %q, got %q", defaultTogetherModel, completer.model)
	}
}

func TestTogetherCompleter_Complete(t *testing.T) {
	logger := zaptest.NewLogger(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-api-key" {
			t.Errorf("Expected Bearer auth header, got %q", got)
		}

		var req togetherRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		if !req.Stream {
			t.Error("Expected streaming request")
		}
		if len(req.Messages) != 3 {
			t.Fatalf("Expected system + 2 history messages, got %d", len(req.Messages))
		}
		if req.Messages[0].Role != "system" || !strings.Contains(req.Messages[0].Content, "AutoMate") {
			t.Errorf("Expected AutoMate system message first, got %+v", req.Messages[0])
		}
		if req.Messages[1].Role != "user" || req.Messages[1].Content != "hello" {
			t.Errorf("Unexpected first history message: %+v", req.Messages[1])
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range []string{"Hi, ", "I'm AutoMate."} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", delta)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	completer, err := NewTogetherCompleter(TogetherConfig{APIKey: "test-api-key", APIURL: server.URL}, logger)
	if err != nil {
		t.Fatalf("Failed to create TogetherCompleter: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	history := []entities.Turn{
		{Role: entities.RoleUser, Content: "hello"},
		{Role: entities.RoleAssistant, Content: "Hello! What's your full name?"},
	}
	reply, err := completer.Complete(ctx, history)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if reply != "Hi, I'm AutoMate." {
		t.Errorf("Expected accumulated reply, got %q", reply)
	}
}

func TestTogetherCompleter_Complete_VendorError(t *testing.T) {
	logger := zaptest.NewLogger(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	completer, err := NewTogetherCompleter(TogetherConfig{APIKey: "test-api-key", APIURL: server.URL}, logger)
	if err != nil {
		t.Fatalf("Failed to create TogetherCompleter: %v", err)
	}

	if _, err := completer.Complete(context.Background(), nil); err == nil {
		t.Error("Expected error on vendor failure")
	}
}

func TestParseAppointment(t *testing.T) {
	logger := zaptest.NewLogger(t)

	tests := []struct {
		name     string
		text     string
		wantType string
	}{
		{
			name: "valid appointment",
			text: `{"start":"2024-10-15T16:00:00Z","eventName":"Car Appointment with Jane Doe",
				"attendee":{"name":"Jane Doe","email":"jane.doe@gmail.com","notes":"Toyota Camry 2020, oil change"}}`,
			wantType: "success",
		},
		{
			name:     "not json",
			text:     "I could not find an appointment in this conversation.",
			wantType: "parse-error",
		},
		{
			name:     "bad start time",
			text:     `{"start":"next Tuesday","eventName":"Car Appointment with Jane Doe","attendee":{"name":"Jane Doe","email":"jane.doe@gmail.com"}}`,
			wantType: "validation-error",
		},
		{
			name:     "missing email",
			text:     `{"start":"2024-10-15T16:00:00Z","eventName":"Car Appointment with Jane Doe","attendee":{"name":"Jane Doe"}}`,
			wantType: "validation-error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseAppointment(tt.text, logger)
			if string(result.Type) != tt.wantType {
				t.Errorf("Expected type %q, got %q", tt.wantType, result.Type)
			}
			if tt.wantType == "success" && result.Appointment == nil {
				t.Error("Expected appointment on success")
			}
			if tt.wantType != "success" && result.Appointment != nil {
				t.Error("Expected no appointment on failure")
			}
		})
	}
}
