package audio

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tosone/minimp3"
)

// SourceFormat names the containers the TTS providers hand back.
type SourceFormat string

const (
	FormatMP3 SourceFormat = "mp3"
	FormatWAV SourceFormat = "wav"
)

var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Transcode converts provider audio into telephony PCM: 8 kHz, 16-bit, mono.
// Downsampling low-passes before decimating so speech stays intelligible.
func Transcode(data []byte, format SourceFormat) ([]byte, error) {
	switch format {
	case FormatMP3:
		dec, pcm, err := minimp3.DecodeFull(data)
		if err != nil {
			return nil, fmt.Errorf("decode mp3: %w", err)
		}
		samples := bytesToSamples(pcm)
		samples = downmix(samples, dec.Channels)
		samples = resample(samples, dec.SampleRate, TelephonyRate)
		return samplesToBytes(samples), nil
	case FormatWAV:
		samples, rate, channels, err := decodeWAV(data)
		if err != nil {
			return nil, err
		}
		samples = downmix(samples, channels)
		samples = resample(samples, rate, TelephonyRate)
		return samplesToBytes(samples), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// decodeWAV walks RIFF chunks and returns the PCM16 payload.
func decodeWAV(data []byte) ([]int16, int, int, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, 0, fmt.Errorf("%w: not a RIFF/WAVE stream", ErrBadPayload)
	}

	var (
		rate     int
		channels int
		bits     int
		pcm      []byte
	)
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			size = len(data) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, 0, fmt.Errorf("%w: short fmt chunk", ErrBadPayload)
			}
			if format := binary.LittleEndian.Uint16(data[body:]); format != 1 {
				return nil, 0, 0, fmt.Errorf("%w: non-PCM wav format %d", ErrUnsupportedFormat, format)
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			rate = int(binary.LittleEndian.Uint32(data[body+4:]))
			bits = int(binary.LittleEndian.Uint16(data[body+14:]))
		case "data":
			pcm = data[body : body+size]
		}
		// Chunks are word-aligned.
		off = body + size + size%2
	}

	if rate <= 0 || channels <= 0 || pcm == nil {
		return nil, 0, 0, fmt.Errorf("%w: missing fmt or data chunk", ErrBadPayload)
	}
	if bits != 16 {
		return nil, 0, 0, fmt.Errorf("%w: %d-bit wav", ErrUnsupportedFormat, bits)
	}
	return bytesToSamples(pcm), rate, channels, nil
}

func bytesToSamples(pcm []byte) []int16 {
	n := len(pcm) / BytesPerSample
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*BytesPerSample:]))
	}
	return out
}

func samplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(s))
	}
	return out
}

func downmix(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]int16, frames)
	for i := 0; i < frames; i++ {
		var sum int
		for c := 0; c < channels; c++ {
			sum += int(samples[i*channels+c])
		}
		out[i] = int16(sum / channels)
	}
	return out
}

// resample converts between sample rates with linear interpolation. When
// decimating it first applies a moving-average low pass sized to the rate
// ratio, which is enough anti-aliasing for 300-3400 Hz telephony speech.
func resample(samples []int16, srcRate, dstRate int) []int16 {
	if srcRate == dstRate || srcRate <= 0 || dstRate <= 0 || len(samples) == 0 {
		return samples
	}

	src := samples
	if srcRate > dstRate {
		window := srcRate / dstRate
		if window > 1 {
			src = lowPass(src, window)
		}
	}

	outLen := int(int64(len(src)) * int64(dstRate) / int64(srcRate))
	if outLen == 0 {
		return nil
	}
	out := make([]int16, outLen)
	step := float64(srcRate) / float64(dstRate)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= len(src)-1 {
			out[i] = src[len(src)-1]
			continue
		}
		frac := pos - float64(j)
		v := float64(src[j])*(1-frac) + float64(src[j+1])*frac
		out[i] = int16(v)
	}
	return out
}

func lowPass(samples []int16, window int) []int16 {
	out := make([]int16, len(samples))
	var sum int
	for i := range samples {
		sum += int(samples[i])
		if i >= window {
			sum -= int(samples[i-window])
		}
		n := window
		if i < window {
			n = i + 1
		}
		out[i] = int16(sum / n)
	}
	return out
}
