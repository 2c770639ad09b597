package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/propertyhub/leadvoice/internal/audio"
	"github.com/propertyhub/leadvoice/internal/reliability"
)

// MinConfidence is the floor under which a transcript is discarded.
const MinConfidence = 0.65

// Result is one accepted transcription.
type Result struct {
	Text       string
	Confidence float64
}

// Transcriber turns one buffered utterance of telephony PCM into text.
// A nil result with nil error means the audio was unintelligible and the
// turn should prompt the caller to repeat.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte, callID string) (*Result, error)
}

// keywordBias nudges the phone-call model toward terms our callers
// actually say. Deepgram accepts repeated keywords params.
var keywordBias = []string{
	"Whitefield", "Koramangala", "Indiranagar", "Sarjapur", "Hebbal",
	"HSR", "Electronic City", "Yelahanka", "Marathahalli", "Bannerghatta",
	"BHK", "lakh", "lakhs", "crore", "crores", "site visit", "possession",
	"ready to move", "under construction", "carpet area", "registration",
}

// Deepgram calls the prerecorded transcription API once per utterance.
type Deepgram struct {
	apiKey string
	client *http.Client
	base   string
}

func NewDeepgram(apiKey string) *Deepgram {
	return &Deepgram{
		apiKey: apiKey,
		client: &http.Client{Timeout: 10 * time.Second},
		base:   "https://api.deepgram.com",
	}
}

type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func (d *Deepgram) Transcribe(ctx context.Context, pcm []byte, callID string) (*Result, error) {
	wav, err := audio.EncodeWAVPCM16LE(pcm, audio.TelephonyRate)
	if err != nil {
		return nil, reliability.Wrap(reliability.KindAudioFormat, "stt",
			fmt.Errorf("wrap utterance: %w", err))
	}

	q := url.Values{}
	q.Set("model", "nova-2-phonecall")
	q.Set("language", "en-IN")
	q.Set("smart_format", "true")
	q.Set("punctuate", "true")
	for _, kw := range keywordBias {
		q.Add("keywords", kw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		d.base+"/v1/listen?"+q.Encode(), bytes.NewReader(wav))
	if err != nil {
		return nil, fmt.Errorf("build stt request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+d.apiKey)
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, reliability.Transient("stt", fmt.Errorf("call %s: %w", callID, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, reliability.Transient("stt", fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("deepgram status %d: %s", resp.StatusCode, truncate(string(body), 200))
		if reliability.IsRetryableHTTPStatus(resp.StatusCode) {
			return nil, reliability.Transient("stt", err)
		}
		return nil, reliability.Wrap(reliability.KindProviderContract, "stt", err)
	}

	var parsed deepgramResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, reliability.Wrap(reliability.KindProviderContract, "stt",
			fmt.Errorf("decode response: %w", err))
	}
	if len(parsed.Results.Channels) == 0 || len(parsed.Results.Channels[0].Alternatives) == 0 {
		return nil, nil
	}

	alt := parsed.Results.Channels[0].Alternatives[0]
	text := CleanTranscript(alt.Transcript)
	if text == "" || alt.Confidence < MinConfidence {
		return nil, nil
	}
	return &Result{Text: text, Confidence: alt.Confidence}, nil
}

// mishearings corrects substitutions the phone model makes reliably
// enough that downstream matching would otherwise miss them.
var mishearings = []struct{ from, to string }{
	{"white field", "Whitefield"},
	{"koram angala", "Koramangala"},
	{"cora mangala", "Koramangala"},
	{"indira nagar", "Indiranagar"},
	{"sarja pur", "Sarjapur"},
	{"electronic sity", "Electronic City"},
	{"b h k", "BHK"},
	{"behk", "BHK"},
	{"lac", "lakh"},
	{"lacs", "lakhs"},
	{"crore rupees", "crores"},
	{"site wisit", "site visit"},
}

// CleanTranscript collapses whitespace, fixes common phone-audio
// mishearings and normalizes unit casing.
func CleanTranscript(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	lower := strings.ToLower(text)
	for _, sub := range mishearings {
		if idx := strings.Index(lower, sub.from); idx >= 0 {
			text = text[:idx] + sub.to + text[idx+len(sub.from):]
			lower = strings.ToLower(text)
		}
	}
	text = normalizeUnits(text)
	return strings.TrimSpace(text)
}

func normalizeUnits(text string) string {
	words := strings.Fields(text)
	for i, w := range words {
		trimmed := strings.Trim(w, ".,!?")
		switch strings.ToLower(trimmed) {
		case "bhk":
			words[i] = strings.Replace(w, trimmed, "BHK", 1)
		case "lakh", "lakhs", "crore", "crores":
			words[i] = strings.Replace(w, trimmed, strings.ToLower(trimmed), 1)
		}
	}
	return strings.Join(words, " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
