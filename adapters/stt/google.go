package stt

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/jettgem1/voice-assistant/domain/repositories"
)

// GoogleLive implements LiveTranscriber for Google Cloud Speech-to-Text
// streaming recognition. Alternate backend behind the same interface as the
// Deepgram adapter; Google's endpointer finalizes a result only at the end of
// an utterance, so final results carry both flags.
type GoogleLive struct {
	logger *zap.Logger
}

var _ repositories.LiveTranscriber = (*GoogleLive)(nil)

// NewGoogleLive creates a Google Cloud streaming transcription adapter.
// Credentials come from the standard GOOGLE_APPLICATION_CREDENTIALS mechanism.
func NewGoogleLive(logger *zap.Logger) *GoogleLive {
	return &GoogleLive{logger: logger}
}

// Connect opens a streaming recognition session.
func (g *GoogleLive) Connect(ctx context.Context, opts repositories.LiveOptions) (repositories.LiveStream, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	stream, err := client.StreamingRecognize(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create streaming recognize: %w", err)
	}

	encoding, err := googleAudioEncoding(opts.Encoding)
	if err != nil {
		stream.CloseSend()
		client.Close()
		return nil, err
	}

	language := opts.Language
	if language == "" {
		language = "en-US"
	}

	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:        encoding,
					SampleRateHertz: int32(opts.SampleRate),
					LanguageCode:    language,
				},
				InterimResults: opts.InterimResults,
			},
		},
	}); err != nil {
		stream.CloseSend()
		client.Close()
		return nil, fmt.Errorf("failed to send streaming config: %w", err)
	}

	gs := &googleStream{
		logger: g.logger,
		client: client,
		stream: stream,
		events: make(chan repositories.TranscriptEvent, 16),
		state:  repositories.ConnectionOpen,
	}
	go gs.readLoop()

	g.logger.Info("Connected to Google Cloud streaming recognition",
		zap.String("language", language),
		zap.Int("sample_rate", opts.SampleRate))

	return gs, nil
}

type googleStream struct {
	logger *zap.Logger
	client *speech.Client
	stream speechpb.Speech_StreamingRecognizeClient
	events chan repositories.TranscriptEvent

	mu    sync.Mutex
	state repositories.ConnectionState
}

var _ repositories.LiveStream = (*googleStream)(nil)

func (g *googleStream) readLoop() {
	defer func() {
		g.mu.Lock()
		g.state = repositories.ConnectionClosed
		g.mu.Unlock()
		close(g.events)
		g.client.Close()
	}()

	for {
		resp, err := g.stream.Recv()
		if err == io.EOF {
			return
		}
		if err != nil {
			g.logger.Warn("Google streaming recognition error", zap.Error(err))
			return
		}

		for _, result := range resp.Results {
			if len(result.Alternatives) == 0 {
				continue
			}
			best := result.Alternatives[0]
			g.events <- repositories.TranscriptEvent{
				Text:        best.Transcript,
				IsFinal:     result.IsFinal,
				SpeechFinal: result.IsFinal,
				Confidence:  float64(best.Confidence),
			}
		}
	}
}

func (g *googleStream) Send(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != repositories.ConnectionOpen {
		return fmt.Errorf("stream is %s", g.state)
	}
	return g.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: chunk,
		},
	})
}

// KeepAlive is a no-op: gRPC manages its own transport-level keepalive.
func (g *googleStream) KeepAlive() error {
	return nil
}

func (g *googleStream) Events() <-chan repositories.TranscriptEvent {
	return g.events
}

func (g *googleStream) State() repositories.ConnectionState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *googleStream) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == repositories.ConnectionClosed {
		return nil
	}
	g.state = repositories.ConnectionClosed
	return g.stream.CloseSend()
}

// googleAudioEncoding converts a wire encoding name to the Speech API enum.
func googleAudioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch strings.ToUpper(encoding) {
	case "", "WAV", "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported audio encoding: %s", encoding)
	}
}
