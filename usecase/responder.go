package usecase

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/jettgem1/voice-assistant/domain/entities"
	"github.com/jettgem1/voice-assistant/domain/repositories"
)

// Speaker plays one synthesized utterance to the caller. Play blocks until
// playback ends and must stop any playback already in flight before starting.
type Speaker interface {
	Play(ctx context.Context, audio []byte) error
	Stop()
}

// Responder drives the response pipeline for one call session: a finalized
// user utterance is appended to the turn log, the filtered log goes to the
// completion endpoint, the reply is synthesized, played to completion, and
// only then appended as an assistant turn.
//
// Runs are serialized: each finalized utterance enqueues a snapshot of the
// turn log, and a single worker drains the queue in order. Rapid consecutive
// utterances therefore never interleave their turn-appends.
type Responder struct {
	session     *entities.CallSession
	completer   repositories.Completer
	synthesizer repositories.Synthesizer
	speaker     Speaker
	logger      *zap.Logger

	mu      sync.Mutex
	closed  bool
	pending chan []entities.Turn

	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewResponder creates a responder for the session and starts its worker.
// The context bounds every vendor call; cancel it when the call ends.
func NewResponder(
	ctx context.Context,
	session *entities.CallSession,
	completer repositories.Completer,
	synthesizer repositories.Synthesizer,
	speaker Speaker,
	logger *zap.Logger,
) *Responder {
	r := &Responder{
		session:     session,
		completer:   completer,
		synthesizer: synthesizer,
		speaker:     speaker,
		logger:      logger,
		pending:     make(chan []entities.Turn, 16),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	go r.work(ctx)
	return r
}

func (r *Responder) work(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-r.stop:
			return
		case history := <-r.pending:
			if ctx.Err() != nil {
				return
			}
			r.respond(ctx, history)
		}
	}
}

// HandleTranscript inspects one transcript event and, when it carries a
// finalized utterance, appends the user turn and enqueues a response run.
// Returns whether a run was enqueued.
func (r *Responder) HandleTranscript(event repositories.TranscriptEvent) bool {
	text := strings.TrimSpace(event.Text)
	if text == "" {
		return false
	}
	if !event.IsFinal || !event.SpeechFinal {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}

	r.session.Append(entities.RoleUser, text)
	return r.enqueueLocked(r.session.History())
}

// Greet enqueues the initial assistant turn for a freshly launched call. The
// synthetic "hello" prompt goes through the same serialized queue as every
// other run but is never appended to the turn log.
func (r *Responder) Greet() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}

	seed := []entities.Turn{{Role: entities.RoleUser, Content: "hello"}}
	return r.enqueueLocked(seed)
}

// enqueueLocked hands one run to the worker. Callers hold r.mu.
func (r *Responder) enqueueLocked(history []entities.Turn) bool {
	select {
	case r.pending <- history:
		return true
	default:
		r.logger.Warn("Response queue full, dropping run",
			zap.String("session_id", r.session.ID))
		return false
	}
}

// respond walks one run through completion, synthesis, playback, and the
// assistant turn append, in that strict order.
func (r *Responder) respond(ctx context.Context, history []entities.Turn) {
	r.session.SetProcessing(true)
	defer r.session.SetProcessing(false)

	reply, err := r.completer.Complete(ctx, history)
	if err != nil {
		r.logger.Error("Completion failed",
			zap.String("session_id", r.session.ID),
			zap.Error(err))
		r.session.Append(entities.RoleAssistant, entities.ApologyTurn)
		return
	}

	audio, err := r.synthesizer.Synthesize(ctx, reply, "")
	if err != nil {
		// Synthesis failures degrade silently: no assistant turn, no playback.
		r.logger.Error("Synthesis failed",
			zap.String("session_id", r.session.ID),
			zap.Error(err))
		return
	}

	if err := r.speaker.Play(ctx, audio); err != nil {
		r.logger.Error("Playback failed",
			zap.String("session_id", r.session.ID),
			zap.Error(err))
		return
	}

	r.session.Append(entities.RoleAssistant, reply)
}

// Close stops accepting new runs and waits for the worker to exit. Safe to
// call while transcript events are still arriving.
func (r *Responder) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		close(r.stop)
	})
	<-r.done
}
