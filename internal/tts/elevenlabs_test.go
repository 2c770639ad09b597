package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/propertyhub/leadvoice/internal/reliability"
)

func TestSynthesizeRequestShape(t *testing.T) {
	var gotPath, gotKey, gotLatency string
	var gotBody synthesizeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("xi-api-key")
		gotLatency = r.URL.Query().Get("optimize_streaming_latency")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		// Empty audio body makes Synthesize fail after the request is
		// inspected, which is all this test needs.
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := NewElevenLabs("xi-key", "voice-42")
	e.base = srv.URL

	_, err := e.Synthesize(context.Background(), "Is this a good time?", "call-1")
	if !reliability.IsKind(err, reliability.KindProviderContract) {
		t.Fatalf("empty body error = %v, want provider contract kind", err)
	}
	if !strings.HasSuffix(gotPath, "/v1/text-to-speech/voice-42") {
		t.Fatalf("path = %q", gotPath)
	}
	if gotKey != "xi-key" || gotLatency != "4" {
		t.Fatalf("key = %q latency = %q", gotKey, gotLatency)
	}
	if gotBody.ModelID != "eleven_turbo_v2" || gotBody.Text != "Is this a good time?" {
		t.Fatalf("body = %+v", gotBody)
	}
	if gotBody.VoiceSettings.Stability != 0.40 || gotBody.VoiceSettings.SimilarityBoost != 0.75 {
		t.Fatalf("voice settings = %+v", gotBody.VoiceSettings)
	}
}

func TestSynthesizeRetryableStatusIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	e := NewElevenLabs("xi-key", "voice-42")
	e.base = srv.URL

	_, err := e.Synthesize(context.Background(), "hello", "call-1")
	if !reliability.IsKind(err, reliability.KindTransientProvider) {
		t.Fatalf("error = %v, want transient provider kind", err)
	}
}

func TestSynthesizeAuthFailureIsContract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	e := NewElevenLabs("bad-key", "voice-42")
	e.base = srv.URL

	_, err := e.Synthesize(context.Background(), "hello", "call-1")
	if !reliability.IsKind(err, reliability.KindProviderContract) {
		t.Fatalf("error = %v, want provider contract kind", err)
	}
}
