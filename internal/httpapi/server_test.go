package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/propertyhub/leadvoice/internal/config"
	"github.com/propertyhub/leadvoice/internal/conversation"
	"github.com/propertyhub/leadvoice/internal/gateway"
	"github.com/propertyhub/leadvoice/internal/interrupt"
	"github.com/propertyhub/leadvoice/internal/llm"
	"github.com/propertyhub/leadvoice/internal/observability"
	"github.com/propertyhub/leadvoice/internal/scheduler"
	"github.com/propertyhub/leadvoice/internal/sessionstore"
	"github.com/propertyhub/leadvoice/internal/store"
	"github.com/propertyhub/leadvoice/internal/stt"
	"github.com/propertyhub/leadvoice/internal/webhook"
)

var testMetrics = observability.NewMetrics("httpapi_test")

type stubTTS struct{}

func (stubTTS) Synthesize(context.Context, string, string) ([]byte, error) {
	return make([]byte, 320), nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemoryStore()
	snaps := sessionstore.New("", logger)

	manager := conversation.NewManager(conversation.Options{
		STT:       stt.NewMock(),
		LLM:       llm.NewMock(),
		TTS:       stubTTS{},
		Snapshots: snaps,
		Store:     st,
		Flags:     interrupt.NewFlags(),
		Metrics:   testMetrics,
		Logger:    logger,
		Model:     "test-model",
	})
	gw := gateway.New(manager, testMetrics, logger)
	sch := scheduler.New(st, 10, 19, 3, logger).
		WithClock(func() time.Time { return time.Date(2030, 1, 7, 12, 0, 0, 0, time.UTC) })
	wh := webhook.NewHandler(st, sch, testMetrics, logger)

	cfg := config.Config{ProviderMode: "mock"}
	return New(cfg, st, snaps, gw, wh, manager, testMetrics, logger)
}

func TestLiveAndReady(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t).Router())
	defer srv.Close()

	for _, path := range []string{"/live", "/ready"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestDetailedHealth(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health/detailed")
	if err != nil {
		t.Fatalf("GET /health/detailed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body struct {
		Healthy     bool                        `json:"healthy"`
		Checks      map[string]string           `json:"checks"`
		ActiveCalls int                         `json:"active_calls"`
		TurnLatency observability.StageSnapshot `json:"turn_latency"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Healthy {
		t.Fatalf("healthy = false: %+v", body)
	}
	if body.Checks["database"] != "ok" || body.Checks["providers"] != "mock mode" {
		t.Fatalf("checks = %v", body.Checks)
	}
	if body.TurnLatency.WindowSize == 0 {
		t.Fatalf("turn_latency snapshot missing: %+v", body.TurnLatency)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	payload, _ := io.ReadAll(resp.Body)
	if len(payload) == 0 {
		t.Fatalf("empty metrics exposition")
	}
}

func TestWebhookRouteWired(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t).Router())
	defer srv.Close()

	resp, err := http.PostForm(srv.URL+"/webhooks/exotel/call-status",
		map[string][]string{"CallSid": {"exo-x"}, "Status": {"ringing"}})
	if err != nil {
		t.Fatalf("POST webhook: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
