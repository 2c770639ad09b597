package stt

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/propertyhub/leadvoice/internal/reliability"
)

func TestCleanTranscript(t *testing.T) {
	cases := []struct{ in, want string }{
		{"  i  want a   3 behk ", "i want a 3 BHK"},
		{"around 80 Lakhs in white field", "around 80 lakhs in Whitefield"},
		{"budget is one Crore", "budget is one crore"},
		{"we can do a site wisit", "we can do a site visit"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := CleanTranscript(tc.in); got != tc.want {
			t.Fatalf("CleanTranscript(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func deepgramTestServer(t *testing.T, body string, status int) (*Deepgram, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/listen" {
			t.Errorf("path = %s, want /v1/listen", r.URL.Path)
		}
		if got := r.URL.Query().Get("model"); got != "nova-2-phonecall" {
			t.Errorf("model = %q", got)
		}
		if got := r.URL.Query().Get("language"); got != "en-IN" {
			t.Errorf("language = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Token dg-key" {
			t.Errorf("auth = %q", got)
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	d := NewDeepgram("dg-key")
	d.base = srv.URL
	return d, srv
}

func TestTranscribeAcceptsConfidentResult(t *testing.T) {
	body := `{"results":{"channels":[{"alternatives":[{"transcript":"yes  I have time","confidence":0.91}]}]}}`
	d, srv := deepgramTestServer(t, body, http.StatusOK)
	defer srv.Close()

	res, err := d.Transcribe(context.Background(), make([]byte, 3200), "call-1")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res == nil || res.Text != "yes I have time" {
		t.Fatalf("result = %+v, want cleaned transcript", res)
	}
}

func TestTranscribePostsWAVBody(t *testing.T) {
	pcm := make([]byte, 3200)
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":"ok","confidence":0.9}]}]}}`))
	}))
	defer srv.Close()
	d := NewDeepgram("dg-key")
	d.base = srv.URL

	if _, err := d.Transcribe(context.Background(), pcm, "call-1"); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(gotBody) != 44+len(pcm) {
		t.Fatalf("body length = %d, want 44-byte header plus %d PCM bytes", len(gotBody), len(pcm))
	}
	if string(gotBody[:4]) != "RIFF" || string(gotBody[8:12]) != "WAVE" {
		t.Fatalf("body is not a RIFF/WAVE container: % x", gotBody[:12])
	}
}

func TestTranscribeDropsLowConfidence(t *testing.T) {
	body := `{"results":{"channels":[{"alternatives":[{"transcript":"mumble","confidence":0.40}]}]}}`
	d, srv := deepgramTestServer(t, body, http.StatusOK)
	defer srv.Close()

	res, err := d.Transcribe(context.Background(), make([]byte, 3200), "call-1")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res != nil {
		t.Fatalf("result = %+v, want nil for confidence below %v", res, MinConfidence)
	}
}

func TestTranscribeServerErrorIsTransient(t *testing.T) {
	d, srv := deepgramTestServer(t, `oops`, http.StatusBadGateway)
	defer srv.Close()

	_, err := d.Transcribe(context.Background(), make([]byte, 3200), "call-1")
	if !reliability.IsKind(err, reliability.KindTransientProvider) {
		t.Fatalf("error = %v, want transient provider kind", err)
	}
}
