package conversation

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/propertyhub/leadvoice/internal/tts"
)

// fillerLines are the short acknowledgements played while the model is
// still thinking, so the caller never hears dead air.
var fillerLines = []string{"Hmm.", "Okay.", "Right.", "Got it."}

// Fillers holds pre-synthesized filler audio. Synthesis happens once at
// startup; a turn never waits on TTS for a filler.
type Fillers struct {
	mu  sync.Mutex
	pcm [][]byte
}

// PrewarmFillers synthesizes every filler line up front. A failure
// leaves that line out rather than failing startup.
func PrewarmFillers(ctx context.Context, synth tts.Synthesizer) (*Fillers, error) {
	f := &Fillers{}
	var firstErr error
	for _, line := range fillerLines {
		pcm, err := synth.Synthesize(ctx, line, "prewarm")
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("prewarm %q: %w", line, err)
			}
			continue
		}
		f.pcm = append(f.pcm, pcm)
	}
	if len(f.pcm) == 0 && firstErr != nil {
		return f, firstErr
	}
	return f, nil
}

// Pick returns one random filler, or nil when none were prewarmed.
func (f *Fillers) Pick() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pcm) == 0 {
		return nil
	}
	return f.pcm[rand.Intn(len(f.pcm))]
}
