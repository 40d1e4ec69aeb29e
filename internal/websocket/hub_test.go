package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"github.com/jettgem1/voice-assistant/adapters/llm"
	"github.com/jettgem1/voice-assistant/adapters/stt"
	"github.com/jettgem1/voice-assistant/domain/entities"
	"github.com/jettgem1/voice-assistant/domain/repositories"
	"github.com/jettgem1/voice-assistant/usecase"
)

type stubSynthesizer struct{}

func (s *stubSynthesizer) Synthesize(ctx context.Context, text string, model string) ([]byte, error) {
	return []byte{0x01, 0x02}, nil
}

type recordingScheduler struct {
	mu     sync.Mutex
	drafts []entities.AppointmentDraft
}

func (r *recordingScheduler) CreateBooking(ctx context.Context, draft entities.AppointmentDraft) (*repositories.BookingConfirmation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drafts = append(r.drafts, draft)
	return &repositories.BookingConfirmation{Status: "Created"}, nil
}

func (r *recordingScheduler) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.drafts)
}

// testPeer drains a client's outbound queue, acknowledging playback and
// recording control messages by type.
type testPeer struct {
	client *Client

	mu       sync.Mutex
	byType   map[MessageType][]json.RawMessage
	binaries int
}

func runTestPeer(t *testing.T, client *Client) *testPeer {
	t.Helper()
	peer := &testPeer{
		client: client,
		byType: make(map[MessageType][]json.RawMessage),
	}
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })

	go func() {
		for {
			select {
			case frame := <-client.send:
				peer.consume(frame)
			case <-done:
				return
			}
		}
	}()
	return peer
}

func (p *testPeer) consume(frame WriteData) {
	if frame.Type == websocket.BinaryMessage {
		p.mu.Lock()
		p.binaries++
		p.mu.Unlock()
		return
	}

	var base BaseMessage
	if json.Unmarshal(frame.Payload, &base) != nil {
		return
	}

	p.mu.Lock()
	p.byType[base.Type] = append(p.byType[base.Type], json.RawMessage(frame.Payload))
	p.mu.Unlock()

	if base.Type == MessageTypeSpeakingEnd {
		var msg SpeakingEndMessage
		if json.Unmarshal(frame.Payload, &msg) == nil {
			ack := fmt.Sprintf(`{"type": "playback_finished", "utterance_id": "%s"}`, msg.UtteranceID)
			p.client.processMessage([]byte(ack))
		}
	}
}

func (p *testPeer) binaryCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.binaries
}

func (p *testPeer) count(messageType MessageType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byType[messageType])
}

func (p *testPeer) waitFor(t *testing.T, messageType MessageType, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p.count(messageType) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %d %s messages, got %d", n, messageType, p.count(messageType))
}

type hubFixture struct {
	hub         *Hub
	transcriber *stt.MockLive
	completer   *llm.MockCompleter
	extractor   *llm.MockExtractor
	scheduler   *recordingScheduler
}

func setupTestHub(t *testing.T) *hubFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	transcriber := stt.NewMockLive(logger)
	completer := &llm.MockCompleter{Reply: "How can I help with your car?"}
	extractor := &llm.MockExtractor{Result: repositories.ExtractionResult{
		Type: repositories.ExtractionParseError,
		Text: "no appointment",
	}}
	scheduler := &recordingScheduler{}

	callService := usecase.NewCallService(extractor, usecase.NewBookingService(scheduler, logger), logger)
	hub := NewHub(transcriber, completer, &stubSynthesizer{}, callService, logger)

	return &hubFixture{
		hub:         hub,
		transcriber: transcriber,
		completer:   completer,
		extractor:   extractor,
		scheduler:   scheduler,
	}
}

func newTestClient(t *testing.T, fixture *hubFixture) (*Client, *testPeer) {
	t.Helper()
	client := &Client{
		hub:      fixture.hub,
		send:     make(chan WriteData, 256),
		callerID: "caller-1",
		logger:   zaptest.NewLogger(t),
	}
	return client, runTestPeer(t, client)
}

func TestHub_Run_RegisterUnregister(t *testing.T) {
	fixture := setupTestHub(t)
	go fixture.hub.Run()

	client := &Client{
		hub:      fixture.hub,
		send:     make(chan WriteData, 1),
		callerID: "caller-1",
		logger:   zaptest.NewLogger(t),
	}

	fixture.hub.register <- client
	fixture.hub.unregister <- client

	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("Expected send channel closed after unregister")
		}
	case <-time.After(time.Second):
		t.Error("Send channel not closed within timeout")
	}
}

func TestClient_CallStartGreetsAndConfirms(t *testing.T) {
	fixture := setupTestHub(t)
	client, peer := newTestClient(t, fixture)

	client.processMessage([]byte(`{"type": "call_start"}`))

	peer.waitFor(t, MessageTypeCallStarted, 1)
	// The greeting plays and lands as an assistant turn.
	peer.waitFor(t, MessageTypeSpeakingStart, 1)
	peer.waitFor(t, MessageTypeTurn, 1)

	turns := client.call.Turns()
	if len(turns) != 1 || turns[0].Role != entities.RoleAssistant {
		t.Errorf("Expected one assistant greeting turn, got %+v", turns)
	}
	if got := len(fixture.completer.Calls()); got != 1 {
		t.Errorf("Expected one completion request for the greeting, got %d", got)
	}
	if peer.binaryCount() == 0 {
		t.Error("Expected greeting audio frames on the socket")
	}

	client.processMessage([]byte(`{"type": "call_end"}`))
	peer.waitFor(t, MessageTypeCallEnded, 1)
}

func TestClient_SecondCallStartRejected(t *testing.T) {
	fixture := setupTestHub(t)
	client, peer := newTestClient(t, fixture)

	client.processMessage([]byte(`{"type": "call_start"}`))
	peer.waitFor(t, MessageTypeCallStarted, 1)

	client.processMessage([]byte(`{"type": "call_start"}`))
	peer.waitFor(t, MessageTypeError, 1)
}

func TestClient_AudioForwardedOnceStreamOpen(t *testing.T) {
	fixture := setupTestHub(t)
	client, peer := newTestClient(t, fixture)

	// Audio before any call is dropped.
	client.processBinaryAudioChunk([]byte{0x01})

	client.processMessage([]byte(`{"type": "call_start"}`))
	peer.waitFor(t, MessageTypeCallStarted, 1)

	// The stream only opens after the mic is ready.
	if fixture.transcriber.Stream() != nil {
		t.Fatal("Stream must not connect before mic_status ready")
	}
	client.processMessage([]byte(`{"type": "mic_status", "status": "ready"}`))

	stream := fixture.transcriber.Stream()
	if stream == nil {
		t.Fatal("Stream must connect once the mic is ready")
	}

	client.processBinaryAudioChunk([]byte{0x02, 0x03})
	if got := len(stream.SentChunks()); got != 1 {
		t.Errorf("Expected one forwarded chunk, got %d", got)
	}

	client.processMessage([]byte(`{"type": "call_end"}`))
	peer.waitFor(t, MessageTypeCallEnded, 1)
}

func TestClient_TranscriptDrivesResponseRun(t *testing.T) {
	fixture := setupTestHub(t)
	client, peer := newTestClient(t, fixture)

	client.processMessage([]byte(`{"type": "call_start"}`))
	peer.waitFor(t, MessageTypeSpeakingEnd, 1) // greeting done
	client.processMessage([]byte(`{"type": "mic_status", "status": "ready"}`))

	fixture.transcriber.Push(repositories.TranscriptEvent{
		Text: "I need an oil change", IsFinal: true, SpeechFinal: true,
	})

	peer.waitFor(t, MessageTypeTranscript, 1)
	// Greeting turn plus user turn plus assistant reply.
	peer.waitFor(t, MessageTypeTurn, 3)

	turns := client.call.Turns()
	if len(turns) != 3 {
		t.Fatalf("Expected 3 turns, got %d", len(turns))
	}
	if turns[1].Role != entities.RoleUser || turns[1].Content != "I need an oil change" {
		t.Errorf("Unexpected user turn: %+v", turns[1])
	}
	if turns[2].Role != entities.RoleAssistant {
		t.Errorf("Unexpected assistant turn: %+v", turns[2])
	}

	client.processMessage([]byte(`{"type": "call_end"}`))
	peer.waitFor(t, MessageTypeCallEnded, 1)
}

func TestClient_MicDeniedAppendsSystemTurn(t *testing.T) {
	fixture := setupTestHub(t)
	client, peer := newTestClient(t, fixture)

	client.processMessage([]byte(`{"type": "call_start"}`))
	peer.waitFor(t, MessageTypeCallStarted, 1)

	client.processMessage([]byte(`{"type": "mic_status", "status": "denied"}`))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		found := false
		for _, turn := range client.call.Turns() {
			if turn.Role == entities.RoleSystem && turn.Content == entities.MicDeniedTurn {
				found = true
			}
		}
		if found {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("Expected a system turn for the denied microphone")
}

func TestClient_CallEndRunsExtraction(t *testing.T) {
	fixture := setupTestHub(t)
	client, peer := newTestClient(t, fixture)

	client.processMessage([]byte(`{"type": "call_start"}`))
	peer.waitFor(t, MessageTypeTurn, 1) // greeting landed
	call := client.call

	client.processMessage([]byte(`{"type": "call_end"}`))
	peer.waitFor(t, MessageTypeCallEnded, 1)

	if got := len(fixture.extractor.Transcripts()); got != 1 {
		t.Errorf("Expected one extraction run, got %d", got)
	}
	// Extraction failed in this fixture, so no booking.
	if fixture.scheduler.callCount() != 0 {
		t.Error("Booking must not run after a failed extraction")
	}
	if call.Len() != 0 {
		t.Error("Turn log must be reset after teardown")
	}
	if client.call != nil {
		t.Error("Client must detach the call after teardown")
	}
}

func TestClient_CallEndWithoutCall(t *testing.T) {
	fixture := setupTestHub(t)
	client, peer := newTestClient(t, fixture)

	client.processMessage([]byte(`{"type": "call_end"}`))
	peer.waitFor(t, MessageTypeError, 1)
}

func TestClient_InvalidMessageGetsError(t *testing.T) {
	fixture := setupTestHub(t)
	client, peer := newTestClient(t, fixture)

	client.processMessage([]byte(`{invalid json}`))
	peer.waitFor(t, MessageTypeError, 1)
}

func TestMergeLiveOptions(t *testing.T) {
	off := false
	model := "nova-2"
	endMs := 2500

	opts := mergeLiveOptions(repositories.DefaultLiveOptions(), LiveOptionsOverride{
		Model:          &model,
		UtteranceEndMs: &endMs,
		InterimResults: &off,
		SmartFormat:    &off,
		FillerWords:    &off,
	})

	if opts.Model != "nova-2" || opts.UtteranceEndMs != 2500 {
		t.Errorf("Overrides not applied: %+v", opts)
	}
	// Explicit false must win over the true defaults.
	if opts.InterimResults || opts.SmartFormat || opts.FillerWords {
		t.Errorf("Toggles not switched off: %+v", opts)
	}
	// Untouched fields keep their defaults.
	if opts.SampleRate != 48000 || opts.Encoding != "linear16" {
		t.Errorf("Defaults lost in merge: %+v", opts)
	}

	merged := mergeLiveOptions(repositories.DefaultLiveOptions(), LiveOptionsOverride{})
	if merged != repositories.DefaultLiveOptions() {
		t.Errorf("Empty override must leave the defaults intact: %+v", merged)
	}
}
