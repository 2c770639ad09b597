package stt

import (
	"context"
	"sync"

	"github.com/propertyhub/leadvoice/internal/audio"
)

// Mock replays a scripted sequence of transcripts, one per utterance.
// With no script it labels each utterance by its duration, which is
// enough to exercise the pipeline without a provider key.
type Mock struct {
	mu     sync.Mutex
	script []Result
	next   int
}

func NewMock(script ...Result) *Mock {
	return &Mock{script: script}
}

func (m *Mock) Transcribe(_ context.Context, pcm []byte, _ string) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.next < len(m.script) {
		res := m.script[m.next]
		m.next++
		if res.Text == "" {
			return nil, nil
		}
		return &res, nil
	}
	if audio.DurationMS(pcm) < 200 {
		return nil, nil
	}
	return &Result{Text: "yes, tell me more", Confidence: 0.9}, nil
}
