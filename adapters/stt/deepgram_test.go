package stt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"github.com/jettgem1/voice-assistant/domain/repositories"
)

func TestNewDeepgramLive(t *testing.T) {
	logger := zaptest.NewLogger(t)

	_, err := NewDeepgramLive(DeepgramConfig{}, logger)
	if err == nil {
		t.Error("Expected error when API key is not set")
	}

	dg, err := NewDeepgramLive(DeepgramConfig{APIKey: "test-api-key"}, logger)
	if err != nil {
		t.Fatalf("Failed to create DeepgramLive: %v", err)
	}

	if dg.listenURL != defaultDeepgramListenURL {
		t.Errorf("Expected default listen URL %q, got %q", defaultDeepgramListenURL, dg.listenURL)
	}
}

// fakeDeepgram upgrades incoming connections and lets the test script
// vendor-side messages.
type fakeDeepgram struct {
	t        *testing.T
	gotQuery chan string
	gotAuth  chan string
	conns    chan *websocket.Conn
}

func newFakeDeepgram(t *testing.T) (*fakeDeepgram, *httptest.Server) {
	f := &fakeDeepgram{
		t:        t,
		gotQuery: make(chan string, 1),
		gotAuth:  make(chan string, 1),
		conns:    make(chan *websocket.Conn, 1),
	}
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.gotQuery <- r.URL.RawQuery
		f.gotAuth <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		f.conns <- conn
	}))
	return f, server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestDeepgramLive_ConnectSendsOptions(t *testing.T) {
	logger := zaptest.NewLogger(t)
	fake, server := newFakeDeepgram(t)
	defer server.Close()

	dg, err := NewDeepgramLive(DeepgramConfig{APIKey: "test-api-key", ListenURL: wsURL(server)}, logger)
	if err != nil {
		t.Fatalf("Failed to create DeepgramLive: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := dg.Connect(ctx, repositories.DefaultLiveOptions())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer stream.Close()

	query := <-fake.gotQuery
	for _, want := range []string{
		"model=nova-3",
		"interim_results=true",
		"smart_format=true",
		"filler_words=true",
		"utterance_end_ms=5000",
	} {
		if !strings.Contains(query, want) {
			t.Errorf("Expected query to contain %q, got %q", want, query)
		}
	}

	if auth := <-fake.gotAuth; auth != "Token test-api-key" {
		t.Errorf("Expected Token auth header, got %q", auth)
	}

	if stream.State() != repositories.ConnectionOpen {
		t.Errorf("Expected open state, got %s", stream.State())
	}
}

func TestDeepgramStream_TranscriptEvents(t *testing.T) {
	logger := zaptest.NewLogger(t)
	fake, server := newFakeDeepgram(t)
	defer server.Close()

	dg, _ := NewDeepgramLive(DeepgramConfig{APIKey: "test-api-key", ListenURL: wsURL(server)}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := dg.Connect(ctx, repositories.DefaultLiveOptions())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer stream.Close()

	vendor := <-fake.conns
	defer vendor.Close()

	results := `{
		"type": "Results",
		"is_final": true,
		"speech_final": true,
		"channel": {"alternatives": [{"transcript": "Hi there", "confidence": 0.98}]}
	}`
	if err := vendor.WriteMessage(websocket.TextMessage, []byte(results)); err != nil {
		t.Fatalf("vendor write failed: %v", err)
	}

	select {
	case event := <-stream.Events():
		if event.Text != "Hi there" {
			t.Errorf("Expected transcript 'Hi there', got %q", event.Text)
		}
		if !event.IsFinal || !event.SpeechFinal {
			t.Errorf("Expected final flags set, got is_final=%v speech_final=%v", event.IsFinal, event.SpeechFinal)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for transcript event")
	}

	if err := vendor.WriteMessage(websocket.TextMessage, []byte(`{"type":"UtteranceEnd"}`)); err != nil {
		t.Fatalf("vendor write failed: %v", err)
	}

	select {
	case event := <-stream.Events():
		if event.Text != "" || !event.SpeechFinal {
			t.Errorf("Expected empty utterance-end event, got %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for utterance end event")
	}
}

func TestDeepgramStream_SendAndKeepAlive(t *testing.T) {
	logger := zaptest.NewLogger(t)
	fake, server := newFakeDeepgram(t)
	defer server.Close()

	dg, _ := NewDeepgramLive(DeepgramConfig{APIKey: "test-api-key", ListenURL: wsURL(server)}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := dg.Connect(ctx, repositories.DefaultLiveOptions())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	vendor := <-fake.conns
	defer vendor.Close()

	// Empty chunks are dropped without touching the connection.
	if err := stream.Send(nil); err != nil {
		t.Errorf("Send of empty chunk should be a no-op, got %v", err)
	}

	if err := stream.Send([]byte{1, 2, 3}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	msgType, payload, err := vendor.ReadMessage()
	if err != nil {
		t.Fatalf("vendor read failed: %v", err)
	}
	if msgType != websocket.BinaryMessage || len(payload) != 3 {
		t.Errorf("Expected 3-byte binary frame, got type=%d len=%d", msgType, len(payload))
	}

	if err := stream.KeepAlive(); err != nil {
		t.Fatalf("KeepAlive failed: %v", err)
	}
	msgType, payload, err = vendor.ReadMessage()
	if err != nil {
		t.Fatalf("vendor read failed: %v", err)
	}
	if msgType != websocket.TextMessage || !strings.Contains(string(payload), "KeepAlive") {
		t.Errorf("Expected KeepAlive text frame, got type=%d payload=%s", msgType, payload)
	}

	if err := stream.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := stream.Send([]byte{4}); err == nil {
		t.Error("Expected error sending on closed stream")
	}
	if err := stream.KeepAlive(); err == nil {
		t.Error("Expected error keep-aliving closed stream")
	}
}
