package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// Telephony wire format: 16-bit signed little-endian PCM, mono, 8 kHz.
const (
	TelephonyRate  = 8000
	BytesPerSample = 2
	// BytesPerMS is TelephonyRate * BytesPerSample / 1000.
	BytesPerMS = 16
)

var ErrBadPayload = errors.New("bad audio payload")

// DecodeBase64PCM decodes one base64-wrapped media payload into raw PCM bytes.
func DecodeBase64PCM(payload string) ([]byte, error) {
	pcm, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return pcm, nil
}

// EncodePCMBase64 wraps raw PCM bytes for a media frame payload.
func EncodePCMBase64(pcm []byte) string {
	return base64.StdEncoding.EncodeToString(pcm)
}

// ChunkPCM splits PCM into slices of exactly durationMS each at telephony
// rate; the final slice may be shorter. Slices alias the input buffer.
func ChunkPCM(pcm []byte, durationMS int) [][]byte {
	if durationMS <= 0 {
		durationMS = 20
	}
	size := durationMS * BytesPerMS
	chunks := make([][]byte, 0, (len(pcm)+size-1)/size)
	for i := 0; i < len(pcm); i += size {
		end := i + size
		if end > len(pcm) {
			end = len(pcm)
		}
		chunks = append(chunks, pcm[i:end])
	}
	return chunks
}

// DurationMS reports the playback duration of telephony PCM in milliseconds.
func DurationMS(pcm []byte) int {
	return len(pcm) / BytesPerMS
}
