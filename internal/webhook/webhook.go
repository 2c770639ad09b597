package webhook

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/propertyhub/leadvoice/internal/observability"
	"github.com/propertyhub/leadvoice/internal/reliability"
	"github.com/propertyhub/leadvoice/internal/scheduler"
	"github.com/propertyhub/leadvoice/internal/store"
)

// Retry delays per terminal provider status.
const (
	noAnswerRetryDelay = 2 * time.Hour
	busyRetryDelay     = 4 * time.Hour
	failedRetryDelay   = time.Hour
)

// Handler ingests the telephony provider's call lifecycle callbacks.
// The HTTP response is immediate; scheduling work runs in background.
type Handler struct {
	store     store.Store
	scheduler *scheduler.Scheduler
	metrics   *observability.Metrics
	logger    *slog.Logger
}

func NewHandler(st store.Store, sch *scheduler.Scheduler,
	metrics *observability.Metrics, logger *slog.Logger) *Handler {
	return &Handler{store: st, scheduler: sch, metrics: metrics, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	callSID := r.PostForm.Get("CallSid")
	status := r.PostForm.Get("Status")
	if callSID == "" || status == "" {
		http.Error(w, "CallSid and Status required", http.StatusBadRequest)
		return
	}
	duration, _ := strconv.Atoi(r.PostForm.Get("Duration"))
	recordingURL := r.PostForm.Get("RecordingUrl")

	h.logger.Info("call status received",
		"call_sid", callSID, "status", status, "duration_s", duration)

	go h.apply(context.Background(), callSID, status, duration, recordingURL)

	w.WriteHeader(http.StatusOK)
}

// apply updates the durable session and, on terminal outcomes, drives
// the retry ladder.
func (h *Handler) apply(ctx context.Context, callSID, status string, duration int, recordingURL string) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	cs, err := h.store.CallSessionBySID(ctx, callSID)
	if errors.Is(err, store.ErrNotFound) {
		h.logger.Warn("status for unknown call", "call_sid", callSID, "status", status)
		return
	}
	if err != nil {
		h.metrics.CountError(string(reliability.KindDatabase), "webhook")
		h.logger.Error("call session lookup failed", "call_sid", callSID, "error", err)
		return
	}

	now := time.Now().UTC()
	sessionStatus, terminal := mapStatus(status)
	// The turn controller finalizes answered calls; do not regress a
	// completed row on a late-arriving webhook.
	if cs.Status != store.SessionCompleted || sessionStatus == store.SessionCompleted {
		cs.Status = sessionStatus
	}
	if sessionStatus == store.SessionInProgress && cs.AnsweredAt == nil {
		cs.AnsweredAt = &now
	}
	if terminal {
		if cs.EndedAt == nil {
			cs.EndedAt = &now
		}
		if duration > 0 {
			cs.DurationSeconds = duration
		}
		if recordingURL != "" {
			cs.RecordingURL = recordingURL
		}
		if cs.Outcome == "" {
			switch sessionStatus {
			case store.SessionNoAnswer, store.SessionBusy:
				cs.Outcome = store.OutcomeNoAnswer
			case store.SessionFailed:
				cs.Outcome = store.OutcomeError
			}
		}
	}
	if err := h.store.UpdateCallSession(ctx, cs); err != nil {
		h.metrics.CountError(string(reliability.KindDatabase), "webhook")
		h.logger.Error("call session update failed", "call_sid", callSID, "error", err)
		return
	}

	if !terminal || cs.ScheduledCallID == "" {
		return
	}
	sc, err := h.store.ScheduledCallByID(ctx, cs.ScheduledCallID)
	if err != nil {
		h.logger.Error("scheduled call lookup failed",
			"scheduled_call_id", cs.ScheduledCallID, "error", err)
		return
	}
	if sc.Status.Terminal() {
		return
	}

	switch status {
	case "completed":
		sc.Status = store.CallCompleted
		if err := h.store.UpdateScheduledCall(ctx, sc); err != nil {
			h.logger.Error("scheduled call completion failed", "scheduled_call_id", sc.ID, "error", err)
		}
	case "no-answer":
		h.retry(ctx, sc, "no_answer", noAnswerRetryDelay)
	case "busy":
		h.retry(ctx, sc, "busy", busyRetryDelay)
	case "failed":
		h.retry(ctx, sc, "failed", failedRetryDelay)
	}
}

func (h *Handler) retry(ctx context.Context, sc store.ScheduledCall, reason string, delay time.Duration) {
	if err := h.scheduler.ScheduleRetry(ctx, sc, reason, delay); err != nil {
		h.metrics.CountError(string(reliability.KindDatabase), "webhook")
		h.logger.Error("retry scheduling failed", "scheduled_call_id", sc.ID, "error", err)
	}
}

func mapStatus(provider string) (store.SessionStatus, bool) {
	switch provider {
	case "initiated":
		return store.SessionInitiated, false
	case "ringing":
		return store.SessionRinging, false
	case "in-progress":
		return store.SessionInProgress, false
	case "completed":
		return store.SessionCompleted, true
	case "busy":
		return store.SessionBusy, true
	case "no-answer":
		return store.SessionNoAnswer, true
	case "failed":
		return store.SessionFailed, true
	default:
		return store.SessionStatus(provider), false
	}
}
