package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jettgem1/voice-assistant/domain"
)

const (
	// Size of one outbound binary audio frame.
	playbackFrameSize = 4096

	// How long to wait for the peer's playback_finished acknowledgement
	// after the last frame is sent.
	defaultAckTimeout = 2 * time.Minute
)

// playbackHandle tracks one in-flight utterance on the peer.
type playbackHandle struct {
	id       string
	finished chan struct{}
	canceled chan struct{}
	once     sync.Once
}

func (h *playbackHandle) cancel() {
	h.once.Do(func() { close(h.canceled) })
}

// Playback streams synthesized audio to the peer one utterance at a time.
// Starting a new utterance cancels the previous one: at most a single
// playback handle is live per client.
type Playback struct {
	send       chan<- WriteData
	ackTimeout time.Duration
	logger     *zap.Logger

	mu      sync.Mutex
	current *playbackHandle
}

// NewPlayback creates a playback channel writing to the client's outbound queue.
func NewPlayback(send chan<- WriteData, logger *zap.Logger) *Playback {
	return &Playback{
		send:       send,
		ackTimeout: defaultAckTimeout,
		logger:     logger,
	}
}

// Play streams one synthesized utterance to the peer as a speaking_start
// marker, binary frames, and a speaking_end marker, then blocks until the
// peer acknowledges with playback_finished. Any utterance still in flight is
// canceled first. Returns a domain.ErrPlayback wrapped error when the
// utterance never completes on the peer.
func (p *Playback) Play(ctx context.Context, audio []byte) error {
	if len(audio) == 0 {
		return fmt.Errorf("%w: empty audio payload", domain.ErrPlayback)
	}

	handle := &playbackHandle{
		id:       uuid.NewString(),
		finished: make(chan struct{}),
		canceled: make(chan struct{}),
	}

	p.mu.Lock()
	prev := p.current
	p.current = handle
	p.mu.Unlock()
	if prev != nil {
		prev.cancel()
	}

	start := SpeakingStartMessage{
		BaseMessage: BaseMessage{Type: MessageTypeSpeakingStart, Timestamp: stamp()},
		UtteranceID: handle.id,
	}
	if err := p.enqueueJSON(ctx, handle, start); err != nil {
		return err
	}

	for offset := 0; offset < len(audio); offset += playbackFrameSize {
		end := offset + playbackFrameSize
		if end > len(audio) {
			end = len(audio)
		}
		frame := WriteData{Type: websocket.BinaryMessage, Payload: audio[offset:end]}
		if err := p.enqueue(ctx, handle, frame); err != nil {
			return err
		}
	}

	stop := SpeakingEndMessage{
		BaseMessage: BaseMessage{Type: MessageTypeSpeakingEnd, Timestamp: stamp()},
		UtteranceID: handle.id,
	}
	if err := p.enqueueJSON(ctx, handle, stop); err != nil {
		return err
	}

	timeout := time.NewTimer(p.ackTimeout)
	defer timeout.Stop()

	select {
	case <-handle.finished:
		return nil
	case <-handle.canceled:
		return fmt.Errorf("%w: superseded by a newer utterance", domain.ErrPlayback)
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", domain.ErrPlayback, ctx.Err())
	case <-timeout.C:
		p.logger.Warn("Peer never acknowledged playback",
			zap.String("utterance_id", handle.id))
		return fmt.Errorf("%w: no playback_finished acknowledgement", domain.ErrPlayback)
	}
}

// Finish resolves the in-flight utterance matching the peer's acknowledgement.
func (p *Playback) Finish(utteranceID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil || p.current.id != utteranceID {
		return
	}
	close(p.current.finished)
	p.current = nil
}

// Stop cancels any in-flight utterance. Called during call teardown.
func (p *Playback) Stop() {
	p.mu.Lock()
	handle := p.current
	p.current = nil
	p.mu.Unlock()
	if handle != nil {
		handle.cancel()
	}
}

func (p *Playback) enqueueJSON(ctx context.Context, handle *playbackHandle, msg interface{}) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPlayback, err)
	}
	return p.enqueue(ctx, handle, WriteData{Type: websocket.TextMessage, Payload: payload})
}

func (p *Playback) enqueue(ctx context.Context, handle *playbackHandle, data WriteData) error {
	select {
	case p.send <- data:
		return nil
	case <-handle.canceled:
		return fmt.Errorf("%w: superseded by a newer utterance", domain.ErrPlayback)
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", domain.ErrPlayback, ctx.Err())
	}
}
