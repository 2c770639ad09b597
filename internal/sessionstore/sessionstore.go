package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTL after which an abandoned live snapshot expires in the external tier.
const TTL = time.Hour

const keyPrefix = "session:"

// Snapshot is the live, mutable view of one call's conversation. The
// durable CallSession row is written once at finalization; this snapshot
// is written on every state change so a restarted process (or a worker
// inspecting the call) sees current flags.
type Snapshot struct {
	CallSID   string `json:"call_sid"`
	StreamSID string `json:"stream_sid"`

	LeadID          string            `json:"lead_id"`
	LeadName        string            `json:"lead_name"`
	LeadPhone       string            `json:"lead_phone"`
	PropertyType    string            `json:"property_type"`
	Location        string            `json:"location"`
	CampaignID      string            `json:"campaign_id"`
	ScheduledCallID string            `json:"scheduled_call_id"`
	CollectedData   map[string]string `json:"collected_data"`

	IsBotSpeaking      bool `json:"is_bot_speaking"`
	WaitingForResponse bool `json:"waiting_for_response"`
	ShouldStopSpeaking bool `json:"should_stop_speaking"`

	LastAgentQuestion     string `json:"last_agent_question"`
	LastAgentQuestionType string `json:"last_agent_question_type"`

	Transcript []TranscriptLine `json:"transcript_history"`

	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TranscriptLine mirrors the durable transcript entry shape so the
// snapshot serializes into the CallSession row without translation.
type TranscriptLine struct {
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Store keeps live snapshots in Redis when available and always in a
// process-local map, so the pipeline works with no external KV at all.
type Store struct {
	mu    sync.RWMutex
	local map[string]Snapshot

	rdb    *redis.Client
	logger *slog.Logger
}

// New connects to Redis when redisURL is set. Connection problems are
// logged, not fatal; the local tier carries the call.
func New(redisURL string, logger *slog.Logger) *Store {
	s := &Store{
		local:  make(map[string]Snapshot),
		logger: logger,
	}
	if redisURL == "" {
		return s
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid REDIS_URL, running with local session tier only", "error", err)
		return s
	}
	s.rdb = redis.NewClient(opts)
	return s
}

// Put stores the snapshot in both tiers and refreshes the external TTL.
func (s *Store) Put(ctx context.Context, snap Snapshot) error {
	snap.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	s.local[snap.CallSID] = snap
	s.mu.Unlock()

	if s.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.rdb.Set(ctx, keyPrefix+snap.CallSID, payload, TTL).Err(); err != nil {
		s.logger.Warn("session snapshot not written to redis", "call_sid", snap.CallSID, "error", err)
	}
	return nil
}

// Get prefers the external tier, falling back to the local map.
func (s *Store) Get(ctx context.Context, callSID string) (Snapshot, bool) {
	if s.rdb != nil {
		payload, err := s.rdb.Get(ctx, keyPrefix+callSID).Bytes()
		if err == nil {
			var snap Snapshot
			if jsonErr := json.Unmarshal(payload, &snap); jsonErr == nil {
				return snap, true
			}
		} else if err != redis.Nil {
			s.logger.Warn("session snapshot read from redis failed", "call_sid", callSID, "error", err)
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.local[callSID]
	return snap, ok
}

// Delete removes the snapshot from both tiers.
func (s *Store) Delete(ctx context.Context, callSID string) {
	s.mu.Lock()
	delete(s.local, callSID)
	s.mu.Unlock()

	if s.rdb != nil {
		if err := s.rdb.Del(ctx, keyPrefix+callSID).Err(); err != nil {
			s.logger.Warn("session snapshot delete from redis failed", "call_sid", callSID, "error", err)
		}
	}
}

// ActiveCallSIDs lists call ids with a live snapshot.
func (s *Store) ActiveCallSIDs(ctx context.Context) []string {
	if s.rdb != nil {
		var (
			cursor uint64
			sids   []string
			failed bool
		)
		for {
			keys, next, err := s.rdb.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
			if err != nil {
				s.logger.Warn("session key scan failed", "error", err)
				failed = true
				break
			}
			for _, key := range keys {
				sids = append(sids, strings.TrimPrefix(key, keyPrefix))
			}
			cursor = next
			if cursor == 0 {
				break
			}
		}
		if !failed {
			return sids
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	sids := make([]string, 0, len(s.local))
	for sid := range s.local {
		sids = append(sids, sid)
	}
	return sids
}

// Ping probes the external tier. Nil when no Redis is configured, since
// the local tier alone is a supported deployment.
func (s *Store) Ping(ctx context.Context) error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	if s.rdb != nil {
		return s.rdb.Close()
	}
	return nil
}
