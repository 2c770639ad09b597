package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/propertyhub/leadvoice/internal/store"
)

// Scheduler owns dial-time policy: when a lead may be called, how many
// calls run at once, and how failed attempts are retried.
type Scheduler struct {
	store store.Store

	hoursStart    int
	hoursEnd      int
	maxConcurrent int

	now    func() time.Time
	logger *slog.Logger
}

func New(st store.Store, hoursStart, hoursEnd, maxConcurrent int, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:         st,
		hoursStart:    hoursStart,
		hoursEnd:      hoursEnd,
		maxConcurrent: maxConcurrent,
		now:           time.Now,
		logger:        logger,
	}
}

// WithClock replaces the wall clock, for tests.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// NextAvailableSlot returns the earliest instant at or after from that
// falls inside the calling window on a non-Sunday.
func (s *Scheduler) NextAvailableSlot(from time.Time) time.Time {
	slot := from
	switch {
	case slot.Hour() < s.hoursStart:
		slot = time.Date(slot.Year(), slot.Month(), slot.Day(), s.hoursStart, 0, 0, 0, slot.Location())
	case slot.Hour() >= s.hoursEnd:
		slot = slot.AddDate(0, 0, 1)
		slot = time.Date(slot.Year(), slot.Month(), slot.Day(), s.hoursStart, 0, 0, 0, slot.Location())
	}
	for slot.Weekday() == time.Sunday {
		slot = slot.AddDate(0, 0, 1)
		slot = time.Date(slot.Year(), slot.Month(), slot.Day(), s.hoursStart, 0, 0, 0, slot.Location())
	}
	return slot
}

// ScheduleCampaignCalls creates one pending ScheduledCall per campaign
// lead that has no open one. Returns how many were created. Only a
// scheduled or running campaign may enqueue new calls.
func (s *Scheduler) ScheduleCampaignCalls(ctx context.Context, campaignID string) (int, error) {
	campaign, err := s.store.CampaignByID(ctx, campaignID)
	if err != nil {
		return 0, fmt.Errorf("load campaign: %w", err)
	}
	if campaign.State != store.CampaignScheduled && campaign.State != store.CampaignRunning {
		return 0, fmt.Errorf("campaign %s is %s, not schedulable", campaignID, campaign.State)
	}
	leads, err := s.store.LeadsForCampaign(ctx, campaignID)
	if err != nil {
		return 0, fmt.Errorf("load campaign leads: %w", err)
	}

	slot := s.NextAvailableSlot(s.now())
	created := 0
	for _, lead := range leads {
		open, err := s.store.HasOpenScheduledCall(ctx, lead.ID, campaignID)
		if err != nil {
			return created, fmt.Errorf("check open call for lead %s: %w", lead.ID, err)
		}
		if open {
			continue
		}
		_, err = s.store.CreateScheduledCall(ctx, store.ScheduledCall{
			CampaignID:    campaignID,
			LeadID:        lead.ID,
			ScheduledTime: slot,
			Status:        store.CallPending,
			AttemptNumber: 1,
			MaxAttempts:   campaign.MaxAttempts,
		})
		// The store enforces the same invariant, closing the race
		// between the check and the insert.
		if errors.Is(err, store.ErrOpenScheduledCall) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("schedule lead %s: %w", lead.ID, err)
		}
		created++
	}
	return created, nil
}

// GetPendingCalls returns due calls capped by the free concurrency
// budget, or nothing at all outside the calling window.
func (s *Scheduler) GetPendingCalls(ctx context.Context, limit int) ([]store.ScheduledCall, error) {
	now := s.now()
	if now.Weekday() == time.Sunday {
		return nil, nil
	}
	if now.Hour() < s.hoursStart || now.Hour() >= s.hoursEnd {
		return nil, nil
	}

	calling, err := s.store.CountByStatus(ctx, store.CallCalling)
	if err != nil {
		return nil, fmt.Errorf("count in-flight calls: %w", err)
	}
	budget := s.maxConcurrent - calling
	if budget <= 0 {
		return nil, nil
	}
	if limit <= 0 || limit > budget {
		limit = budget
	}
	due, err := s.store.PendingScheduledCalls(ctx, now, limit)
	if err != nil {
		return nil, err
	}

	// Campaigns can carry their own concurrency bound, tighter than the
	// global one. Zero means unbounded.
	inFlight := make(map[string]int)
	campaignCap := make(map[string]int)
	out := make([]store.ScheduledCall, 0, len(due))
	for _, sc := range due {
		if _, ok := campaignCap[sc.CampaignID]; !ok {
			campaign, err := s.store.CampaignByID(ctx, sc.CampaignID)
			if err != nil {
				return nil, fmt.Errorf("load campaign %s: %w", sc.CampaignID, err)
			}
			n, err := s.store.CountCampaignByStatus(ctx, sc.CampaignID, store.CallCalling)
			if err != nil {
				return nil, fmt.Errorf("count campaign in-flight calls: %w", err)
			}
			campaignCap[sc.CampaignID] = campaign.MaxConcurrentCalls
			inFlight[sc.CampaignID] = n
		}
		if max := campaignCap[sc.CampaignID]; max > 0 && inFlight[sc.CampaignID] >= max {
			continue
		}
		inFlight[sc.CampaignID]++
		out = append(out, sc)
	}
	return out, nil
}

// ScheduleRetry re-queues a failed attempt after delay, or marks the
// call terminal once attempts are exhausted.
func (s *Scheduler) ScheduleRetry(ctx context.Context, sc store.ScheduledCall, reason string, delay time.Duration) error {
	sc.AttemptNumber++
	sc.FailureReason = reason

	if sc.AttemptNumber > sc.MaxAttempts {
		sc.Status = store.CallMaxRetriesReached
		s.logger.Info("scheduled call exhausted retries",
			"scheduled_call_id", sc.ID, "lead_id", sc.LeadID, "reason", reason)
		return s.store.UpdateScheduledCall(ctx, sc)
	}

	sc.Status = store.CallPending
	sc.CurrentCallSID = ""
	sc.ScheduledTime = s.NextAvailableSlot(s.now().Add(delay))
	s.logger.Info("scheduled call retry queued",
		"scheduled_call_id", sc.ID, "lead_id", sc.LeadID,
		"attempt", sc.AttemptNumber, "reason", reason,
		"scheduled_time", sc.ScheduledTime)
	return s.store.UpdateScheduledCall(ctx, sc)
}
