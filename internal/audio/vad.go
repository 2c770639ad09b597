package audio

import (
	"encoding/binary"
	"math"
)

// Voice-activity defaults, tuned against phone-grade audio where the noise
// floor sits near RMS 8 and speech at 50+.
const (
	DefaultSpeechThreshold = 30.0
	// SilenceChunksRequired ends an utterance after ~300 ms of silence at
	// ~20 ms frames.
	SilenceChunksRequired = 15
	// MinUtteranceBytes is ~200 ms at telephony rate; anything shorter is
	// noise or a lip smack, not worth a transcription round-trip.
	MinUtteranceBytes = 3200
)

// RMS computes the root-mean-square amplitude of a PCM16LE chunk.
func RMS(chunk []byte) float64 {
	n := len(chunk) / BytesPerSample
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(chunk[i*BytesPerSample:]))
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(n))
}

// IsSpeech classifies one chunk against an RMS threshold.
func IsSpeech(chunk []byte, threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultSpeechThreshold
	}
	return RMS(chunk) > threshold
}
