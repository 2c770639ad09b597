package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

func TestBase64RoundTrip(t *testing.T) {
	pcm := make([]byte, 640)
	for i := range pcm {
		pcm[i] = byte(i * 7)
	}

	decoded, err := DecodeBase64PCM(EncodePCMBase64(pcm))
	if err != nil {
		t.Fatalf("DecodeBase64PCM() error = %v", err)
	}
	if !bytes.Equal(decoded, pcm) {
		t.Fatalf("round trip mismatch: got %d bytes", len(decoded))
	}
}

func TestDecodeBase64PCMRejectsGarbage(t *testing.T) {
	if _, err := DecodeBase64PCM("!!not base64!!"); err == nil {
		t.Fatalf("expected error for invalid base64")
	}
}

func TestChunkPCMSizes(t *testing.T) {
	pcm := make([]byte, 1000)
	chunks := ChunkPCM(pcm, 20)

	if len(chunks) != 4 {
		t.Fatalf("chunks = %d, want 4", len(chunks))
	}
	for i := 0; i < 3; i++ {
		if len(chunks[i]) != 320 {
			t.Fatalf("chunk %d size = %d, want 320", i, len(chunks[i]))
		}
	}
	if len(chunks[3]) != 40 {
		t.Fatalf("final chunk size = %d, want 40", len(chunks[3]))
	}
}

func TestDurationMSAdditiveOverChunks(t *testing.T) {
	pcm := make([]byte, 7040)
	total := 0
	for _, c := range ChunkPCM(pcm, 20) {
		total += DurationMS(c)
	}
	if total != DurationMS(pcm) {
		t.Fatalf("sum of chunk durations = %d, want %d", total, DurationMS(pcm))
	}
	if DurationMS(pcm) != 440 {
		t.Fatalf("DurationMS = %d, want 440", DurationMS(pcm))
	}
}

func TestRMSSilenceAndTone(t *testing.T) {
	silence := make([]byte, 640)
	if got := RMS(silence); got != 0 {
		t.Fatalf("RMS(silence) = %f, want 0", got)
	}
	if IsSpeech(silence, DefaultSpeechThreshold) {
		t.Fatalf("silence classified as speech")
	}

	tone := sineChunk(640, 1000)
	if got := RMS(tone); got < 500 {
		t.Fatalf("RMS(tone) = %f, want >= 500", got)
	}
	if !IsSpeech(tone, DefaultSpeechThreshold) {
		t.Fatalf("tone not classified as speech")
	}
}

func TestEncodeWAVHeader(t *testing.T) {
	pcm := make([]byte, 320)
	wav, err := EncodeWAVPCM16LE(pcm, TelephonyRate)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16LE() error = %v", err)
	}
	if len(wav) != 44+len(pcm) {
		t.Fatalf("wav length = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatalf("bad RIFF header: %q %q", wav[0:4], wav[8:12])
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != TelephonyRate {
		t.Fatalf("sample rate = %d, want %d", rate, TelephonyRate)
	}
}

func TestTranscodeWAVDownsamples(t *testing.T) {
	// One second of 440 Hz at 16 kHz should come back as roughly one second
	// at 8 kHz with comparable amplitude.
	src := sineSamples(16000, 440, 16000)
	wav, err := EncodeWAVPCM16LE(samplesToBytes(src), 16000)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16LE() error = %v", err)
	}

	pcm, err := Transcode(wav, FormatWAV)
	if err != nil {
		t.Fatalf("Transcode() error = %v", err)
	}
	got := DurationMS(pcm)
	if got < 990 || got > 1010 {
		t.Fatalf("transcoded duration = %dms, want ~1000ms", got)
	}

	srcRMS := RMS(samplesToBytes(src))
	dstRMS := RMS(pcm)
	if dstRMS < srcRMS*0.5 || dstRMS > srcRMS*1.5 {
		t.Fatalf("amplitude drifted: src RMS %f, dst RMS %f", srcRMS, dstRMS)
	}
}

func TestTranscodeRejectsUnknownFormat(t *testing.T) {
	if _, err := Transcode([]byte{1, 2, 3}, SourceFormat("ogg")); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func sineChunk(bytesLen int, amplitude float64) []byte {
	return samplesToBytes(sineSamples(bytesLen/BytesPerSample, 440, TelephonyRate, amplitude))
}

func sineSamples(n int, freq float64, rate int, amplitude ...float64) []int16 {
	amp := 8000.0
	if len(amplitude) > 0 {
		amp = amplitude[0]
	}
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}
