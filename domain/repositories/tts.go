package repositories

import "context"

// Synthesizer abstracts the text-to-speech vendor. Returns the full rendered
// audio payload; model selects the vendor voice, empty means the default.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, model string) ([]byte, error)
}
