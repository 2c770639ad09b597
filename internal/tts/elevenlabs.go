package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/propertyhub/leadvoice/internal/audio"
	"github.com/propertyhub/leadvoice/internal/reliability"
)

// Synthesizer turns one agent line into telephony PCM.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, callID string) ([]byte, error)
}

// ElevenLabs calls the text-to-speech API with the low-latency turbo
// model and transcodes the MP3 reply down to 8 kHz PCM.
type ElevenLabs struct {
	apiKey  string
	voiceID string
	client  *http.Client
	base    string
}

func NewElevenLabs(apiKey, voiceID string) *ElevenLabs {
	return &ElevenLabs{
		apiKey:  apiKey,
		voiceID: voiceID,
		client:  &http.Client{Timeout: 10 * time.Second},
		base:    "https://api.elevenlabs.io",
	}
}

type synthesizeRequest struct {
	Text          string `json:"text"`
	ModelID       string `json:"model_id"`
	VoiceSettings struct {
		Stability       float64 `json:"stability"`
		SimilarityBoost float64 `json:"similarity_boost"`
		Style           float64 `json:"style"`
	} `json:"voice_settings"`
}

func (e *ElevenLabs) Synthesize(ctx context.Context, text, callID string) ([]byte, error) {
	payload := synthesizeRequest{
		Text:    text,
		ModelID: "eleven_turbo_v2",
	}
	payload.VoiceSettings.Stability = 0.40
	payload.VoiceSettings.SimilarityBoost = 0.75
	payload.VoiceSettings.Style = 0.15

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?optimize_streaming_latency=4",
		e.base, e.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build tts request: %w", err)
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, reliability.Transient("tts", fmt.Errorf("call %s: %w", callID, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("elevenlabs status %d", resp.StatusCode)
		if reliability.IsRetryableHTTPStatus(resp.StatusCode) {
			return nil, reliability.Transient("tts", err)
		}
		return nil, reliability.Wrap(reliability.KindProviderContract, "tts", err)
	}

	mp3, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, reliability.Transient("tts", fmt.Errorf("read audio: %w", err))
	}
	if len(mp3) == 0 {
		return nil, reliability.Wrap(reliability.KindProviderContract, "tts",
			fmt.Errorf("empty audio response"))
	}

	pcm, err := audio.Transcode(mp3, audio.FormatMP3)
	if err != nil {
		return nil, reliability.Wrap(reliability.KindAudioFormat, "tts", err)
	}
	return pcm, nil
}
