package sessionstore

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"
)

func newLocalStore() *Store {
	return New("", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPutGetDeleteLocalTier(t *testing.T) {
	s := newLocalStore()
	ctx := context.Background()

	snap := Snapshot{
		CallSID:            "exo-1",
		StreamSID:          "stream-1",
		LeadName:           "Rajesh",
		WaitingForResponse: true,
		CollectedData:      map[string]string{"purpose": "end_use"},
	}
	if err := s.Put(ctx, snap); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := s.Get(ctx, "exo-1")
	if !ok {
		t.Fatalf("Get: snapshot missing")
	}
	if got.LeadName != "Rajesh" || !got.WaitingForResponse {
		t.Fatalf("snapshot = %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Fatalf("Put should stamp UpdatedAt")
	}

	s.Delete(ctx, "exo-1")
	if _, ok := s.Get(ctx, "exo-1"); ok {
		t.Fatalf("snapshot should be gone after Delete")
	}
}

func TestPutOverwritesAndRefreshes(t *testing.T) {
	s := newLocalStore()
	ctx := context.Background()

	if err := s.Put(ctx, Snapshot{CallSID: "exo-2", IsBotSpeaking: true}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, Snapshot{CallSID: "exo-2", IsBotSpeaking: false, ShouldStopSpeaking: true}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, _ := s.Get(ctx, "exo-2")
	if got.IsBotSpeaking || !got.ShouldStopSpeaking {
		t.Fatalf("second Put should win: %+v", got)
	}
}

func TestActiveCallSIDs(t *testing.T) {
	s := newLocalStore()
	ctx := context.Background()

	for _, sid := range []string{"a", "b", "c"} {
		if err := s.Put(ctx, Snapshot{CallSID: sid}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	s.Delete(ctx, "b")

	sids := s.ActiveCallSIDs(ctx)
	sort.Strings(sids)
	if len(sids) != 2 || sids[0] != "a" || sids[1] != "c" {
		t.Fatalf("ActiveCallSIDs = %v", sids)
	}
}

func TestBadRedisURLFallsBackToLocal(t *testing.T) {
	s := New("not-a-url", slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	if err := s.Put(ctx, Snapshot{CallSID: "exo-3"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok := s.Get(ctx, "exo-3"); !ok {
		t.Fatalf("local tier should serve reads")
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping without redis should be nil, got %v", err)
	}
}
