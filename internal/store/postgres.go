package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists dialing state in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS campaigns (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			state TEXT NOT NULL,
			calling_hours_start INT NOT NULL,
			calling_hours_end INT NOT NULL,
			max_attempts INT NOT NULL,
			retry_delay_hours INT NOT NULL,
			max_concurrent_calls INT NOT NULL,
			total_calls INT NOT NULL DEFAULT 0,
			completed_calls INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS leads (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			phone TEXT NOT NULL,
			property_type TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			budget BIGINT NOT NULL DEFAULT 0,
			notes TEXT NOT NULL DEFAULT '',
			tags JSONB NOT NULL DEFAULT '[]',
			campaign_id TEXT NOT NULL REFERENCES campaigns(id),
			call_attempts INT NOT NULL DEFAULT 0,
			last_call_attempt TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS scheduled_calls (
			id TEXT PRIMARY KEY,
			campaign_id TEXT NOT NULL REFERENCES campaigns(id),
			lead_id TEXT NOT NULL REFERENCES leads(id),
			scheduled_time TIMESTAMPTZ NOT NULL,
			status TEXT NOT NULL,
			attempt_number INT NOT NULL DEFAULT 1,
			max_attempts INT NOT NULL,
			last_attempt_at TIMESTAMPTZ,
			current_call_sid TEXT NOT NULL DEFAULT '',
			failure_reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		// One open dial per (lead, campaign); defended at the DB layer.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_scheduled_calls_open
			ON scheduled_calls (lead_id, campaign_id)
			WHERE status IN ('pending', 'calling', 'failed');`,
		`CREATE INDEX IF NOT EXISTS idx_scheduled_calls_due
			ON scheduled_calls (status, scheduled_time);`,
		`CREATE TABLE IF NOT EXISTS call_sessions (
			id TEXT PRIMARY KEY,
			call_sid TEXT NOT NULL UNIQUE,
			lead_id TEXT NOT NULL REFERENCES leads(id),
			campaign_id TEXT NOT NULL REFERENCES campaigns(id),
			scheduled_call_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			outcome TEXT NOT NULL DEFAULT '',
			duration_seconds INT NOT NULL DEFAULT 0,
			recording_url TEXT NOT NULL DEFAULT '',
			full_transcript JSONB NOT NULL DEFAULT '[]',
			collected_data JSONB NOT NULL DEFAULT '{}',
			answered_at TIMESTAMPTZ,
			ended_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) LeadByID(ctx context.Context, id string) (Lead, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, phone, property_type, location, budget, notes, tags,
		        campaign_id, call_attempts, last_call_attempt, created_at
		 FROM leads WHERE id=$1`, id)
	return scanLead(row)
}

func (s *PostgresStore) LeadsForCampaign(ctx context.Context, campaignID string) ([]Lead, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, phone, property_type, location, budget, notes, tags,
		        campaign_id, call_attempts, last_call_attempt, created_at
		 FROM leads WHERE campaign_id=$1 ORDER BY created_at`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("query campaign leads: %w", err)
	}
	defer rows.Close()

	var leads []Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

func (s *PostgresStore) CreateLead(ctx context.Context, lead Lead) (Lead, error) {
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now().UTC()
	}
	tags, err := json.Marshal(lead.Tags)
	if err != nil {
		return Lead{}, fmt.Errorf("marshal tags: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO leads (id, name, phone, property_type, location, budget, notes, tags, campaign_id, call_attempts, last_call_attempt, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		lead.ID, lead.Name, lead.Phone, lead.PropertyType, lead.Location, lead.Budget,
		lead.Notes, tags, lead.CampaignID, lead.CallAttempts, lead.LastAttempt, lead.CreatedAt)
	if err != nil {
		return Lead{}, fmt.Errorf("create lead: %w", err)
	}
	return lead, nil
}

func (s *PostgresStore) RecordLeadAttempt(ctx context.Context, leadID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET call_attempts = call_attempts + 1, last_call_attempt = $2 WHERE id = $1`,
		leadID, at)
	if err != nil {
		return fmt.Errorf("record lead attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CampaignByID(ctx context.Context, id string) (Campaign, error) {
	var c Campaign
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, state, calling_hours_start, calling_hours_end, max_attempts,
		        retry_delay_hours, max_concurrent_calls, total_calls, completed_calls, created_at
		 FROM campaigns WHERE id=$1`, id).
		Scan(&c.ID, &c.Name, &c.State, &c.CallingHoursStart, &c.CallingHoursEnd,
			&c.MaxAttempts, &c.RetryDelayHours, &c.MaxConcurrentCalls,
			&c.TotalCalls, &c.CompletedCalls, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Campaign{}, ErrNotFound
	}
	if err != nil {
		return Campaign{}, fmt.Errorf("query campaign: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) CreateCampaign(ctx context.Context, c Campaign) (Campaign, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO campaigns (id, name, state, calling_hours_start, calling_hours_end, max_attempts, retry_delay_hours, max_concurrent_calls, total_calls, completed_calls, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		c.ID, c.Name, c.State, c.CallingHoursStart, c.CallingHoursEnd,
		c.MaxAttempts, c.RetryDelayHours, c.MaxConcurrentCalls,
		c.TotalCalls, c.CompletedCalls, c.CreatedAt)
	if err != nil {
		return Campaign{}, fmt.Errorf("create campaign: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) UpdateCampaignState(ctx context.Context, id string, state CampaignState) error {
	tag, err := s.pool.Exec(ctx, `UPDATE campaigns SET state=$2 WHERE id=$1`, id, state)
	if err != nil {
		return fmt.Errorf("update campaign state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CreateScheduledCall(ctx context.Context, sc ScheduledCall) (ScheduledCall, error) {
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scheduled_calls (id, campaign_id, lead_id, scheduled_time, status, attempt_number, max_attempts, last_attempt_at, current_call_sid, failure_reason, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		sc.ID, sc.CampaignID, sc.LeadID, sc.ScheduledTime, sc.Status,
		sc.AttemptNumber, sc.MaxAttempts, sc.LastAttemptAt, sc.CurrentCallSID,
		sc.FailureReason, sc.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ScheduledCall{}, ErrOpenScheduledCall
	}
	if err != nil {
		return ScheduledCall{}, fmt.Errorf("create scheduled call: %w", err)
	}
	return sc, nil
}

func (s *PostgresStore) ScheduledCallByID(ctx context.Context, id string) (ScheduledCall, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, campaign_id, lead_id, scheduled_time, status, attempt_number,
		        max_attempts, last_attempt_at, current_call_sid, failure_reason, created_at
		 FROM scheduled_calls WHERE id=$1`, id)
	return scanScheduledCall(row)
}

func (s *PostgresStore) UpdateScheduledCall(ctx context.Context, sc ScheduledCall) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE scheduled_calls
		 SET scheduled_time=$2, status=$3, attempt_number=$4, last_attempt_at=$5,
		     current_call_sid=$6, failure_reason=$7
		 WHERE id=$1`,
		sc.ID, sc.ScheduledTime, sc.Status, sc.AttemptNumber, sc.LastAttemptAt,
		sc.CurrentCallSID, sc.FailureReason)
	if err != nil {
		return fmt.Errorf("update scheduled call: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) PendingScheduledCalls(ctx context.Context, due time.Time, limit int) ([]ScheduledCall, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, campaign_id, lead_id, scheduled_time, status, attempt_number,
		        max_attempts, last_attempt_at, current_call_sid, failure_reason, created_at
		 FROM scheduled_calls
		 WHERE status='pending' AND scheduled_time <= $1
		 ORDER BY scheduled_time ASC LIMIT $2`, due, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending calls: %w", err)
	}
	defer rows.Close()

	var out []ScheduledCall
	for rows.Next() {
		sc, err := scanScheduledCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountByStatus(ctx context.Context, status ScheduledCallStatus) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM scheduled_calls WHERE status=$1`, status).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count scheduled calls: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) CountCampaignByStatus(ctx context.Context, campaignID string, status ScheduledCallStatus) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM scheduled_calls WHERE campaign_id=$1 AND status=$2`,
		campaignID, status).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count campaign scheduled calls: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) HasOpenScheduledCall(ctx context.Context, leadID, campaignID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM scheduled_calls
			WHERE lead_id=$1 AND campaign_id=$2 AND status IN ('pending','calling','failed')
		)`, leadID, campaignID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check open scheduled call: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) CreateCallSession(ctx context.Context, cs CallSession) (CallSession, error) {
	if cs.ID == "" {
		cs.ID = uuid.NewString()
	}
	if cs.CreatedAt.IsZero() {
		cs.CreatedAt = time.Now().UTC()
	}
	transcript, collected, err := marshalSessionJSON(cs)
	if err != nil {
		return CallSession{}, err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO call_sessions (id, call_sid, lead_id, campaign_id, scheduled_call_id, status, outcome, duration_seconds, recording_url, full_transcript, collected_data, answered_at, ended_at, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		cs.ID, cs.CallSID, cs.LeadID, cs.CampaignID, cs.ScheduledCallID, cs.Status,
		cs.Outcome, cs.DurationSeconds, cs.RecordingURL, transcript, collected,
		cs.AnsweredAt, cs.EndedAt, cs.CreatedAt)
	if err != nil {
		return CallSession{}, fmt.Errorf("create call session: %w", err)
	}
	return cs, nil
}

func (s *PostgresStore) CallSessionBySID(ctx context.Context, callSID string) (CallSession, error) {
	var (
		cs         CallSession
		transcript []byte
		collected  []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, call_sid, lead_id, campaign_id, scheduled_call_id, status, outcome,
		        duration_seconds, recording_url, full_transcript, collected_data,
		        answered_at, ended_at, created_at
		 FROM call_sessions WHERE call_sid=$1`, callSID).
		Scan(&cs.ID, &cs.CallSID, &cs.LeadID, &cs.CampaignID, &cs.ScheduledCallID,
			&cs.Status, &cs.Outcome, &cs.DurationSeconds, &cs.RecordingURL,
			&transcript, &collected, &cs.AnsweredAt, &cs.EndedAt, &cs.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return CallSession{}, ErrNotFound
	}
	if err != nil {
		return CallSession{}, fmt.Errorf("query call session: %w", err)
	}
	if err := json.Unmarshal(transcript, &cs.Transcript); err != nil {
		return CallSession{}, fmt.Errorf("decode transcript: %w", err)
	}
	if err := json.Unmarshal(collected, &cs.CollectedData); err != nil {
		return CallSession{}, fmt.Errorf("decode collected data: %w", err)
	}
	return cs, nil
}

func (s *PostgresStore) UpdateCallSession(ctx context.Context, cs CallSession) error {
	transcript, collected, err := marshalSessionJSON(cs)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE call_sessions
		 SET status=$2, outcome=$3, duration_seconds=$4, recording_url=$5,
		     full_transcript=$6, collected_data=$7, answered_at=$8, ended_at=$9
		 WHERE call_sid=$1`,
		cs.CallSID, cs.Status, cs.Outcome, cs.DurationSeconds, cs.RecordingURL,
		transcript, collected, cs.AnsweredAt, cs.EndedAt)
	if err != nil {
		return fmt.Errorf("update call session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func marshalSessionJSON(cs CallSession) ([]byte, []byte, error) {
	transcriptEntries := cs.Transcript
	if transcriptEntries == nil {
		transcriptEntries = []TranscriptEntry{}
	}
	transcript, err := json.Marshal(transcriptEntries)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal transcript: %w", err)
	}
	collectedData := cs.CollectedData
	if collectedData == nil {
		collectedData = map[string]string{}
	}
	collected, err := json.Marshal(collectedData)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal collected data: %w", err)
	}
	return transcript, collected, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (Lead, error) {
	var (
		lead Lead
		tags []byte
	)
	err := row.Scan(&lead.ID, &lead.Name, &lead.Phone, &lead.PropertyType,
		&lead.Location, &lead.Budget, &lead.Notes, &tags, &lead.CampaignID,
		&lead.CallAttempts, &lead.LastAttempt, &lead.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	if err != nil {
		return Lead{}, fmt.Errorf("scan lead: %w", err)
	}
	if err := json.Unmarshal(tags, &lead.Tags); err != nil {
		return Lead{}, fmt.Errorf("decode lead tags: %w", err)
	}
	return lead, nil
}

func scanScheduledCall(row rowScanner) (ScheduledCall, error) {
	var sc ScheduledCall
	err := row.Scan(&sc.ID, &sc.CampaignID, &sc.LeadID, &sc.ScheduledTime,
		&sc.Status, &sc.AttemptNumber, &sc.MaxAttempts, &sc.LastAttemptAt,
		&sc.CurrentCallSID, &sc.FailureReason, &sc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ScheduledCall{}, ErrNotFound
	}
	if err != nil {
		return ScheduledCall{}, fmt.Errorf("scan scheduled call: %w", err)
	}
	return sc, nil
}
