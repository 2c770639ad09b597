package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrOpenScheduledCall guards the one-open-dial-per-lead invariant: at
	// most one ScheduledCall per (lead, campaign) may be non-terminal.
	ErrOpenScheduledCall = errors.New("lead already has an open scheduled call")
)

// CampaignState is the campaign lifecycle; transitions form a DAG.
type CampaignState string

const (
	CampaignDraft     CampaignState = "draft"
	CampaignScheduled CampaignState = "scheduled"
	CampaignRunning   CampaignState = "running"
	CampaignPaused    CampaignState = "paused"
	CampaignCompleted CampaignState = "completed"
	CampaignCancelled CampaignState = "cancelled"
)

// ScheduledCallStatus tracks one pending or executing dial.
type ScheduledCallStatus string

const (
	CallPending           ScheduledCallStatus = "pending"
	CallCalling           ScheduledCallStatus = "calling"
	CallCompleted         ScheduledCallStatus = "completed"
	CallFailed            ScheduledCallStatus = "failed"
	CallCancelled         ScheduledCallStatus = "cancelled"
	CallMaxRetriesReached ScheduledCallStatus = "max_retries_reached"
)

// Terminal reports whether no further attempts can come from this row.
func (s ScheduledCallStatus) Terminal() bool {
	switch s {
	case CallCompleted, CallCancelled, CallMaxRetriesReached:
		return true
	default:
		return false
	}
}

// SessionStatus mirrors the telephony provider's call lifecycle.
type SessionStatus string

const (
	SessionInitiated  SessionStatus = "initiated"
	SessionRinging    SessionStatus = "ringing"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
	SessionNoAnswer   SessionStatus = "no_answer"
	SessionBusy       SessionStatus = "busy"
)

// Outcome is the conversational result decided at call end.
type Outcome string

const (
	OutcomeQualified         Outcome = "qualified"
	OutcomeNotInterested     Outcome = "not_interested"
	OutcomeCallbackRequested Outcome = "callback_requested"
	OutcomeNoAnswer          Outcome = "no_answer"
	OutcomeDisconnected      Outcome = "disconnected"
	OutcomeError             Outcome = "error"
)

// Lead is a person to be called. Rows are created by ingestion and never
// destroyed; only the attempt bookkeeping mutates here.
type Lead struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Phone        string     `json:"phone"`
	PropertyType string     `json:"property_type"`
	Location     string     `json:"location"`
	Budget       int64      `json:"budget"`
	Notes        string     `json:"notes"`
	Tags         []string   `json:"tags"`
	CampaignID   string     `json:"campaign_id"`
	CallAttempts int        `json:"call_attempts"`
	LastAttempt  *time.Time `json:"last_call_attempt,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Campaign groups leads under one dialing policy.
type Campaign struct {
	ID                 string        `json:"id"`
	Name               string        `json:"name"`
	State              CampaignState `json:"state"`
	CallingHoursStart  int           `json:"calling_hours_start"`
	CallingHoursEnd    int           `json:"calling_hours_end"`
	MaxAttempts        int           `json:"max_attempts"`
	RetryDelayHours    int           `json:"retry_delay_hours"`
	MaxConcurrentCalls int           `json:"max_concurrent_calls"`
	TotalCalls         int           `json:"total_calls"`
	CompletedCalls     int           `json:"completed_calls"`
	CreatedAt          time.Time     `json:"created_at"`
}

// ScheduledCall is one pending or executing dial of one lead.
type ScheduledCall struct {
	ID             string              `json:"id"`
	CampaignID     string              `json:"campaign_id"`
	LeadID         string              `json:"lead_id"`
	ScheduledTime  time.Time           `json:"scheduled_time"`
	Status         ScheduledCallStatus `json:"status"`
	AttemptNumber  int                 `json:"attempt_number"`
	MaxAttempts    int                 `json:"max_attempts"`
	LastAttemptAt  *time.Time          `json:"last_attempt_at,omitempty"`
	CurrentCallSID string              `json:"current_call_sid"`
	FailureReason  string              `json:"failure_reason"`
	CreatedAt      time.Time           `json:"created_at"`
}

// TranscriptEntry is one spoken line of a finished or in-flight call.
type TranscriptEntry struct {
	Speaker   string    `json:"speaker"` // "agent" or "user"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// CallSession is the durable record of one connected call.
type CallSession struct {
	ID              string            `json:"id"`
	CallSID         string            `json:"call_sid"`
	LeadID          string            `json:"lead_id"`
	CampaignID      string            `json:"campaign_id"`
	ScheduledCallID string            `json:"scheduled_call_id"`
	Status          SessionStatus     `json:"status"`
	Outcome         Outcome           `json:"outcome,omitempty"`
	DurationSeconds int               `json:"duration_seconds"`
	RecordingURL    string            `json:"recording_url"`
	Transcript      []TranscriptEntry `json:"full_transcript"`
	CollectedData   map[string]string `json:"collected_data"`
	AnsweredAt      *time.Time        `json:"answered_at,omitempty"`
	EndedAt         *time.Time        `json:"ended_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// Store persists leads, campaigns, scheduled calls and call sessions.
type Store interface {
	LeadByID(ctx context.Context, id string) (Lead, error)
	LeadsForCampaign(ctx context.Context, campaignID string) ([]Lead, error)
	CreateLead(ctx context.Context, lead Lead) (Lead, error)
	RecordLeadAttempt(ctx context.Context, leadID string, at time.Time) error

	CampaignByID(ctx context.Context, id string) (Campaign, error)
	CreateCampaign(ctx context.Context, c Campaign) (Campaign, error)
	UpdateCampaignState(ctx context.Context, id string, state CampaignState) error

	CreateScheduledCall(ctx context.Context, sc ScheduledCall) (ScheduledCall, error)
	ScheduledCallByID(ctx context.Context, id string) (ScheduledCall, error)
	UpdateScheduledCall(ctx context.Context, sc ScheduledCall) error
	PendingScheduledCalls(ctx context.Context, due time.Time, limit int) ([]ScheduledCall, error)
	CountByStatus(ctx context.Context, status ScheduledCallStatus) (int, error)
	CountCampaignByStatus(ctx context.Context, campaignID string, status ScheduledCallStatus) (int, error)
	HasOpenScheduledCall(ctx context.Context, leadID, campaignID string) (bool, error)

	CreateCallSession(ctx context.Context, cs CallSession) (CallSession, error)
	CallSessionBySID(ctx context.Context, callSID string) (CallSession, error)
	UpdateCallSession(ctx context.Context, cs CallSession) error

	Ping(ctx context.Context) error
	Close() error
}
