package dialer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/propertyhub/leadvoice/internal/observability"
	"github.com/propertyhub/leadvoice/internal/scheduler"
	"github.com/propertyhub/leadvoice/internal/store"
	"github.com/propertyhub/leadvoice/internal/telephony"
)

var testMetrics = observability.NewMetrics("dialer_test")

type fakeDialer struct {
	sid   string
	err   error
	calls int
	last  telephony.LeadContext
}

func (f *fakeDialer) Connect(_ context.Context, _ string, lead telephony.LeadContext) (string, error) {
	f.calls++
	f.last = lead
	if f.err != nil {
		return "", f.err
	}
	return f.sid, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setup(t *testing.T, d *fakeDialer) (*Executor, *store.MemoryStore, store.ScheduledCall) {
	t.Helper()
	st := store.NewMemoryStore()
	ctx := context.Background()

	campaign, err := st.CreateCampaign(ctx, store.Campaign{
		Name: "launch", State: store.CampaignRunning,
		CallingHoursStart: 10, CallingHoursEnd: 19,
		MaxAttempts: 3, RetryDelayHours: 2, MaxConcurrentCalls: 3,
	})
	if err != nil {
		t.Fatalf("CreateCampaign: %v", err)
	}
	lead, err := st.CreateLead(ctx, store.Lead{
		Name: "Priya", Phone: "+919876543210",
		PropertyType: "2BHK", Location: "HSR", CampaignID: campaign.ID,
	})
	if err != nil {
		t.Fatalf("CreateLead: %v", err)
	}
	sc, err := st.CreateScheduledCall(ctx, store.ScheduledCall{
		CampaignID: campaign.ID, LeadID: lead.ID,
		ScheduledTime: time.Now(), Status: store.CallPending,
		AttemptNumber: 1, MaxAttempts: 3,
	})
	if err != nil {
		t.Fatalf("CreateScheduledCall: %v", err)
	}

	sch := scheduler.New(st, 10, 19, 3, testLogger()).
		WithClock(func() time.Time { return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC) })
	return NewExecutor(st, d, sch, testMetrics, testLogger()), st, sc
}

func TestExecuteDialsAndMarksCalling(t *testing.T) {
	d := &fakeDialer{sid: "exo-42"}
	ex, st, sc := setup(t, d)
	ctx := context.Background()

	if err := ex.Execute(ctx, sc); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if d.calls != 1 {
		t.Fatalf("dialer calls = %d", d.calls)
	}
	if d.last.LeadName != "Priya" || d.last.ScheduledCallID != sc.ID {
		t.Fatalf("lead context = %+v", d.last)
	}

	got, _ := st.ScheduledCallByID(ctx, sc.ID)
	if got.Status != store.CallCalling || got.CurrentCallSID != "exo-42" {
		t.Fatalf("scheduled call = %+v", got)
	}
	if got.LastAttemptAt == nil {
		t.Fatalf("LastAttemptAt not set")
	}

	cs, err := st.CallSessionBySID(ctx, "exo-42")
	if err != nil {
		t.Fatalf("CallSessionBySID: %v", err)
	}
	if cs.Status != store.SessionInitiated || cs.LeadID != sc.LeadID {
		t.Fatalf("call session = %+v", cs)
	}

	lead, _ := st.LeadByID(ctx, sc.LeadID)
	if lead.CallAttempts != 1 {
		t.Fatalf("lead attempts = %d", lead.CallAttempts)
	}
}

func TestExecuteDialFailureSchedulesRetry(t *testing.T) {
	d := &fakeDialer{err: errors.New("provider down")}
	ex, st, sc := setup(t, d)
	ctx := context.Background()

	if err := ex.Execute(ctx, sc); err == nil {
		t.Fatalf("Execute should surface the dial error")
	}

	got, _ := st.ScheduledCallByID(ctx, sc.ID)
	if got.Status != store.CallPending || got.AttemptNumber != 2 {
		t.Fatalf("scheduled call after failure = %+v", got)
	}
	if got.FailureReason != "dial_failed" {
		t.Fatalf("failure reason = %q", got.FailureReason)
	}
}

func TestExecutePausedCampaignCancels(t *testing.T) {
	d := &fakeDialer{sid: "exo-42"}
	ex, st, sc := setup(t, d)
	ctx := context.Background()

	if err := st.UpdateCampaignState(ctx, sc.CampaignID, store.CampaignPaused); err != nil {
		t.Fatalf("UpdateCampaignState: %v", err)
	}
	if err := ex.Execute(ctx, sc); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if d.calls != 0 {
		t.Fatalf("paused campaign must not dial")
	}
	got, _ := st.ScheduledCallByID(ctx, sc.ID)
	if got.Status != store.CallCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}
}

func TestWorkerTickExecutesDueCalls(t *testing.T) {
	d := &fakeDialer{sid: "exo-42"}
	ex, st, _ := setup(t, d)
	// A fixed Monday far in the future keeps the window and due checks
	// deterministic regardless of when the test runs.
	sch := scheduler.New(st, 10, 19, 3, testLogger()).
		WithClock(func() time.Time { return time.Date(2030, 1, 7, 12, 0, 0, 0, time.UTC) })
	w := NewWorker(sch, ex, st, testMetrics, testLogger(), time.Second)

	w.Tick(context.Background())
	if d.calls != 1 {
		t.Fatalf("dialer calls = %d, want 1", d.calls)
	}

	// The dialed call is now calling, so a second tick finds nothing.
	w.Tick(context.Background())
	if d.calls != 1 {
		t.Fatalf("second tick re-dialed: calls = %d", d.calls)
	}
}
