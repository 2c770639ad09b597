package tts

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/propertyhub/leadvoice/internal/audio"
)

// Mock synthesizes a quiet tone whose length tracks the text, so egress
// timing and barge-in behave realistically without a provider key.
type Mock struct{}

func NewMock() *Mock { return &Mock{} }

// Roughly 60 ms of audio per word, floor of 400 ms.
func (Mock) Synthesize(_ context.Context, text, _ string) ([]byte, error) {
	words := 1
	inWord := false
	for _, r := range text {
		if r == ' ' {
			inWord = false
			continue
		}
		if !inWord {
			words++
			inWord = true
		}
	}
	ms := words * 60
	if ms < 400 {
		ms = 400
	}

	samples := ms * audio.TelephonyRate / 1000
	pcm := make([]byte, samples*audio.BytesPerSample)
	for i := 0; i < samples; i++ {
		v := int16(800 * math.Sin(2*math.Pi*220*float64(i)/float64(audio.TelephonyRate)))
		binary.LittleEndian.PutUint16(pcm[i*audio.BytesPerSample:], uint16(v))
	}
	return pcm, nil
}
