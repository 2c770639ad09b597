package dialer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/propertyhub/leadvoice/internal/logging"
	"github.com/propertyhub/leadvoice/internal/observability"
	"github.com/propertyhub/leadvoice/internal/reliability"
	"github.com/propertyhub/leadvoice/internal/scheduler"
	"github.com/propertyhub/leadvoice/internal/store"
	"github.com/propertyhub/leadvoice/internal/telephony"
)

// dialFailureRetryDelay applies when the connect request itself fails,
// before the provider ever reports a call status.
const dialFailureRetryDelay = time.Hour

// Executor turns one due ScheduledCall into a live outbound call.
type Executor struct {
	store     store.Store
	dialer    telephony.Dialer
	scheduler *scheduler.Scheduler
	metrics   *observability.Metrics
	logger    *slog.Logger
}

func NewExecutor(st store.Store, d telephony.Dialer, sch *scheduler.Scheduler,
	metrics *observability.Metrics, logger *slog.Logger) *Executor {
	return &Executor{store: st, dialer: d, scheduler: sch, metrics: metrics, logger: logger}
}

// Execute dials the lead behind sc. A paused or cancelled campaign
// cancels the call instead of dialing.
func (e *Executor) Execute(ctx context.Context, sc store.ScheduledCall) error {
	campaign, err := e.store.CampaignByID(ctx, sc.CampaignID)
	if err != nil {
		return fmt.Errorf("load campaign %s: %w", sc.CampaignID, err)
	}
	if campaign.State != store.CampaignRunning && campaign.State != store.CampaignScheduled {
		sc.Status = store.CallCancelled
		sc.FailureReason = "campaign_" + string(campaign.State)
		e.logger.Info("scheduled call cancelled, campaign not active",
			"scheduled_call_id", sc.ID, "campaign_state", campaign.State)
		return e.store.UpdateScheduledCall(ctx, sc)
	}

	lead, err := e.store.LeadByID(ctx, sc.LeadID)
	if err != nil {
		return fmt.Errorf("load lead %s: %w", sc.LeadID, err)
	}

	callSID, err := e.dialer.Connect(ctx, lead.Phone, telephony.LeadContext{
		LeadID:          lead.ID,
		LeadName:        lead.Name,
		LeadPhone:       lead.Phone,
		PropertyType:    lead.PropertyType,
		Location:        lead.Location,
		CampaignID:      sc.CampaignID,
		ScheduledCallID: sc.ID,
	})
	if err != nil {
		e.metrics.CallsInitiated.WithLabelValues(sc.CampaignID, "failed").Inc()
		e.metrics.CountError(string(reliability.KindOf(err)), "dialer")
		e.logger.Warn("dial failed",
			"scheduled_call_id", sc.ID,
			"phone", logging.MaskPhone(lead.Phone),
			"error", err)
		if retryErr := e.scheduler.ScheduleRetry(ctx, sc, "dial_failed", dialFailureRetryDelay); retryErr != nil {
			return fmt.Errorf("schedule dial retry: %w", retryErr)
		}
		return err
	}

	now := time.Now().UTC()
	if _, err := e.store.CreateCallSession(ctx, store.CallSession{
		CallSID:         callSID,
		LeadID:          lead.ID,
		CampaignID:      sc.CampaignID,
		ScheduledCallID: sc.ID,
		Status:          store.SessionInitiated,
	}); err != nil {
		return fmt.Errorf("create call session: %w", err)
	}
	if err := e.store.RecordLeadAttempt(ctx, lead.ID, now); err != nil {
		e.logger.Warn("lead attempt bookkeeping failed", "lead_id", lead.ID, "error", err)
	}

	sc.Status = store.CallCalling
	sc.CurrentCallSID = callSID
	sc.LastAttemptAt = &now
	if err := e.store.UpdateScheduledCall(ctx, sc); err != nil {
		return fmt.Errorf("mark scheduled call calling: %w", err)
	}

	e.metrics.CallsInitiated.WithLabelValues(sc.CampaignID, "initiated").Inc()
	e.logger.Info("outbound call placed",
		"scheduled_call_id", sc.ID,
		"call_sid", callSID,
		"attempt", sc.AttemptNumber,
		"phone", logging.MaskPhone(lead.Phone))
	return nil
}
