package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/jettgem1/voice-assistant/domain/entities"
	"github.com/jettgem1/voice-assistant/domain/repositories"
	"github.com/jettgem1/voice-assistant/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks

	// Interval for vendor keep-alives while the caller's mic is not open.
	keepAliveInterval = 10 * time.Second

	// How long the listening indicator stays lit after a finalized caption.
	captionHold = 3 * time.Second

	// Upper bound on extraction plus booking during teardown.
	teardownTimeout = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub maintains the set of active clients and owns the vendor adapters shared
// between them.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	transcriber repositories.LiveTranscriber
	completer   repositories.Completer
	synthesizer repositories.Synthesizer
	callService *usecase.CallService

	validator *MessageValidator
	logger    *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(
	transcriber repositories.LiveTranscriber,
	completer repositories.Completer,
	synthesizer repositories.Synthesizer,
	callService *usecase.CallService,
	logger *zap.Logger,
) *Hub {
	return &Hub{
		clients:     make(map[string]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		transcriber: transcriber,
		completer:   completer,
		synthesizer: synthesizer,
		callService: callService,
		validator:   NewMessageValidator(),
		logger:      logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.callerID] = client
			h.mu.Unlock()
			h.logger.Info("Client registered", zap.String("callerID", client.callerID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.callerID]; ok {
				delete(h.clients, client.callerID)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("Client unregistered", zap.String("callerID", client.callerID))
		}
	}
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	// Caller ID for this client, taken from the call token.
	callerID string

	// Logger
	logger *zap.Logger

	// Live call state, nil between calls.
	call       *entities.CallSession
	stream     repositories.LiveStream
	responder  *usecase.Responder
	playback   *Playback
	callCtx    context.Context
	callCancel context.CancelFunc

	liveOptions  *LiveOptionsOverride
	micReady     bool
	micOpen      bool
	captionTimer *time.Timer

	mutex sync.Mutex
}

// HandleWebSocketWithAuth handles websocket requests with a pre-authenticated caller ID
func HandleWebSocketWithAuth(hub *Hub, c echo.Context, callerID string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan WriteData, 256),
		callerID: callerID,
		logger:   logger,
	}

	client.hub.register <- client

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		c.teardownOnDisconnect()
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			// Process JSON control messages
			c.processMessage(message)
		case websocket.BinaryMessage:
			// Process binary audio data directly
			c.processBinaryAudioChunk(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processMessage processes incoming control messages from the peer
func (c *Client) processMessage(message []byte) {
	parsed, err := c.hub.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Error("Invalid control message", zap.Error(err))
		c.sendJSON(CreateErrorMessage("invalid_message", err.Error()))
		return
	}

	switch msg := parsed.(type) {
	case *CallStartMessage:
		c.handleCallStart(msg)
	case *CallEndMessage:
		c.handleCallEnd()
	case *MicStatusMessage:
		c.handleMicStatus(msg)
	case *PlaybackFinishedMessage:
		c.handlePlaybackFinished(msg)
	default:
		c.logger.Warn("Unhandled message type")
	}
}

// processBinaryAudioChunk forwards caller audio to the live transcription stream
func (c *Client) processBinaryAudioChunk(data []byte) {
	if len(data) == 0 {
		return
	}

	c.mutex.Lock()
	call := c.call
	stream := c.stream
	c.mutex.Unlock()

	if call == nil || !call.Launched() {
		c.logger.Warn("Received audio chunk but no live call",
			zap.String("callerID", c.callerID))
		return
	}
	if stream == nil {
		c.logger.Warn("Received audio chunk before transcription stream opened",
			zap.String("callerID", c.callerID),
			zap.String("sessionID", call.ID))
		return
	}

	if err := stream.Send(data); err != nil {
		c.logger.Error("Failed to stream audio data",
			zap.String("sessionID", call.ID),
			zap.Error(err))
	}
}

// handleCallStart launches a call session for this client
func (c *Client) handleCallStart(msg *CallStartMessage) {
	c.mutex.Lock()
	if c.call != nil && c.call.Launched() {
		c.mutex.Unlock()
		c.sendJSON(CreateErrorMessage("call_already_live", "a call is already in progress"))
		return
	}

	call := entities.NewCallSession()
	ctx, cancel := context.WithCancel(context.Background())
	playback := NewPlayback(c.send, c.logger)
	responder := usecase.NewResponder(ctx, call, c.hub.completer, c.hub.synthesizer, playback, c.logger)

	c.call = call
	c.callCtx = ctx
	c.callCancel = cancel
	c.liveOptions = msg.Options
	c.playback = playback
	c.responder = responder
	c.mutex.Unlock()

	// Mirror every appended turn to the peer.
	call.OnAppend(func(turn entities.Turn) {
		c.sendJSON(CreateTurnMessage(turn))
		c.sendJSON(CreateStateMessage(call))
	})

	c.logger.Info("Call launched",
		zap.String("callerID", c.callerID),
		zap.String("sessionID", call.ID))

	c.sendJSON(&CallStartedMessage{
		BaseMessage: BaseMessage{Type: MessageTypeCallStarted, Timestamp: stamp()},
		SessionID:   call.ID,
	})

	c.maybeOpenStream()
	go c.keepAliveLoop(ctx, call)

	// The greeting rides the responder's queue so it serializes with any
	// utterance run that finalizes while it plays.
	responder.Greet()
}

// maybeOpenStream connects the live transcription stream once both the call
// is launched and the peer reported its microphone ready.
func (c *Client) maybeOpenStream() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.call == nil || !c.call.Launched() || !c.micReady || c.stream != nil {
		return
	}

	opts := repositories.DefaultLiveOptions()
	if c.liveOptions != nil {
		opts = mergeLiveOptions(opts, *c.liveOptions)
	}

	stream, err := c.hub.transcriber.Connect(c.callCtx, opts)
	if err != nil {
		c.logger.Error("Failed to connect live transcription",
			zap.String("sessionID", c.call.ID),
			zap.Error(err))
		c.sendJSON(CreateErrorMessage("transcription_unavailable", "failed to connect live transcription"))
		return
	}
	c.stream = stream

	c.logger.Info("Live transcription connected",
		zap.String("sessionID", c.call.ID))

	go c.transcriptPump(c.call, c.responder, stream)
}

// transcriptPump forwards transcription events to the peer and the responder.
// The loop ends when the stream is closed during teardown.
func (c *Client) transcriptPump(call *entities.CallSession, responder *usecase.Responder, stream repositories.LiveStream) {
	for event := range stream.Events() {
		if event.Text != "" {
			c.sendJSON(CreateTranscriptMessage(event))
		}

		responder.HandleTranscript(event)

		if event.IsFinal && event.SpeechFinal {
			c.holdCaption(call)
		}
	}
}

// holdCaption lights the listening indicator and schedules it to clear after
// the caption hold window. A newer finalized caption restarts the window.
func (c *Client) holdCaption(call *entities.CallSession) {
	call.SetListening(true)
	c.sendJSON(CreateStateMessage(call))

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.captionTimer != nil {
		c.captionTimer.Stop()
	}
	c.captionTimer = time.AfterFunc(captionHold, func() {
		call.SetListening(false)
		c.sendJSON(CreateStateMessage(call))
	})
}

// keepAliveLoop keeps the transcription stream warm while the caller's mic is
// not open. The loop dies with the call context.
func (c *Client) keepAliveLoop(ctx context.Context, call *entities.CallSession) {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mutex.Lock()
			stream := c.stream
			micOpen := c.micOpen
			c.mutex.Unlock()

			if stream == nil || micOpen {
				continue
			}
			if stream.State() != repositories.ConnectionOpen {
				continue
			}
			if err := stream.KeepAlive(); err != nil {
				c.logger.Warn("Transcription keep-alive failed",
					zap.String("sessionID", call.ID),
					zap.Error(err))
			}
		}
	}
}

// handleMicStatus tracks the peer's microphone state
func (c *Client) handleMicStatus(msg *MicStatusMessage) {
	switch msg.Status {
	case MicStatusReady:
		c.mutex.Lock()
		c.micReady = true
		c.mutex.Unlock()
		c.maybeOpenStream()

	case MicStatusDenied:
		c.mutex.Lock()
		call := c.call
		c.mutex.Unlock()
		if call == nil {
			c.logger.Warn("Mic denied before any call", zap.String("callerID", c.callerID))
			return
		}
		call.Append(entities.RoleSystem, entities.MicDeniedTurn)

	case MicStatusOpen:
		c.mutex.Lock()
		c.micOpen = true
		c.mutex.Unlock()

	case MicStatusClosed:
		c.mutex.Lock()
		c.micOpen = false
		c.mutex.Unlock()
	}
}

// handlePlaybackFinished resolves the peer's playback acknowledgement
func (c *Client) handlePlaybackFinished(msg *PlaybackFinishedMessage) {
	c.mutex.Lock()
	playback := c.playback
	c.mutex.Unlock()
	if playback == nil {
		return
	}
	playback.Finish(msg.UtteranceID)
}

// handleCallEnd tears the live call down and runs extraction and booking
func (c *Client) handleCallEnd() {
	call, stream, playback := c.detachCall()
	if call == nil {
		c.sendJSON(CreateErrorMessage("no_live_call", "no call in progress"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	c.hub.callService.End(ctx, call, stream, playback)

	c.sendJSON(&CallEndedMessage{
		BaseMessage: BaseMessage{Type: MessageTypeCallEnded, Timestamp: stamp()},
		SessionID:   call.ID,
	})
}

// teardownOnDisconnect runs end-of-call processing when the peer drops the
// connection without a call_end message.
func (c *Client) teardownOnDisconnect() {
	call, stream, playback := c.detachCall()
	if call == nil {
		return
	}

	c.logger.Info("Peer disconnected mid-call, running teardown",
		zap.String("callerID", c.callerID),
		zap.String("sessionID", call.ID))

	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	c.hub.callService.End(ctx, call, stream, playback)
}

// detachCall atomically removes the live call state from the client and stops
// its scheduled work. Returns nils when no call is live.
func (c *Client) detachCall() (*entities.CallSession, repositories.LiveStream, *Playback) {
	c.mutex.Lock()
	call := c.call
	stream := c.stream
	playback := c.playback
	responder := c.responder
	cancel := c.callCancel
	timer := c.captionTimer

	c.call = nil
	c.stream = nil
	c.playback = nil
	c.responder = nil
	c.callCtx = nil
	c.callCancel = nil
	c.captionTimer = nil
	c.liveOptions = nil
	c.micOpen = false
	c.mutex.Unlock()

	if call == nil {
		return nil, nil, nil
	}

	if timer != nil {
		timer.Stop()
	}
	if cancel != nil {
		cancel()
	}
	if responder != nil {
		// The worker drains on a canceled context; don't block the read loop.
		go responder.Close()
	}

	return call, stream, playback
}

// sendJSON queues a control message without blocking the caller. Frames are
// dropped, with a warning, when the peer cannot keep up.
func (c *Client) sendJSON(msg interface{}) {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to marshal outbound message", zap.Error(err))
		return
	}

	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
	default:
		c.logger.Warn("Outbound buffer full, dropping message",
			zap.String("callerID", c.callerID))
	}
}

// mergeLiveOptions overlays caller-supplied overrides on the defaults. Only
// fields present in the call_start payload are applied, so the boolean
// toggles can be switched off explicitly.
func mergeLiveOptions(base repositories.LiveOptions, override LiveOptionsOverride) repositories.LiveOptions {
	if override.Model != nil && *override.Model != "" {
		base.Model = *override.Model
	}
	if override.Language != nil && *override.Language != "" {
		base.Language = *override.Language
	}
	if override.Encoding != nil && *override.Encoding != "" {
		base.Encoding = *override.Encoding
	}
	if override.SampleRate != nil && *override.SampleRate > 0 {
		base.SampleRate = *override.SampleRate
	}
	if override.UtteranceEndMs != nil && *override.UtteranceEndMs > 0 {
		base.UtteranceEndMs = *override.UtteranceEndMs
	}
	if override.InterimResults != nil {
		base.InterimResults = *override.InterimResults
	}
	if override.SmartFormat != nil {
		base.SmartFormat = *override.SmartFormat
	}
	if override.FillerWords != nil {
		base.FillerWords = *override.FillerWords
	}
	return base
}
