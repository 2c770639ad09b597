package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps all dialing state in process memory. It backs tests
// and local development when DATABASE_URL is unset.
type MemoryStore struct {
	mu             sync.RWMutex
	leads          map[string]Lead
	campaigns      map[string]Campaign
	scheduledCalls map[string]ScheduledCall
	sessions       map[string]CallSession // keyed by call SID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		leads:          make(map[string]Lead),
		campaigns:      make(map[string]Campaign),
		scheduledCalls: make(map[string]ScheduledCall),
		sessions:       make(map[string]CallSession),
	}
}

func (s *MemoryStore) LeadByID(_ context.Context, id string) (Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lead, ok := s.leads[id]
	if !ok {
		return Lead{}, ErrNotFound
	}
	return lead, nil
}

func (s *MemoryStore) LeadsForCampaign(_ context.Context, campaignID string) ([]Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Lead
	for _, lead := range s.leads {
		if lead.CampaignID == campaignID {
			out = append(out, lead)
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateLead(_ context.Context, lead Lead) (Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now().UTC()
	}
	s.leads[lead.ID] = lead
	return lead, nil
}

func (s *MemoryStore) RecordLeadAttempt(_ context.Context, leadID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[leadID]
	if !ok {
		return ErrNotFound
	}
	lead.CallAttempts++
	lead.LastAttempt = &at
	s.leads[leadID] = lead
	return nil
}

func (s *MemoryStore) CampaignByID(_ context.Context, id string) (Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.campaigns[id]
	if !ok {
		return Campaign{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) CreateCampaign(_ context.Context, c Campaign) (Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.campaigns[c.ID] = c
	return c, nil
}

func (s *MemoryStore) UpdateCampaignState(_ context.Context, id string, state CampaignState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return ErrNotFound
	}
	c.State = state
	s.campaigns[id] = c
	return nil
}

func (s *MemoryStore) CreateScheduledCall(_ context.Context, sc ScheduledCall) (ScheduledCall, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.scheduledCalls {
		if existing.LeadID == sc.LeadID && existing.CampaignID == sc.CampaignID && !existing.Status.Terminal() {
			return ScheduledCall{}, ErrOpenScheduledCall
		}
	}
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = time.Now().UTC()
	}
	s.scheduledCalls[sc.ID] = sc
	return sc, nil
}

func (s *MemoryStore) ScheduledCallByID(_ context.Context, id string) (ScheduledCall, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scheduledCalls[id]
	if !ok {
		return ScheduledCall{}, ErrNotFound
	}
	return sc, nil
}

func (s *MemoryStore) UpdateScheduledCall(_ context.Context, sc ScheduledCall) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scheduledCalls[sc.ID]; !ok {
		return ErrNotFound
	}
	s.scheduledCalls[sc.ID] = sc
	return nil
}

func (s *MemoryStore) PendingScheduledCalls(_ context.Context, due time.Time, limit int) ([]ScheduledCall, error) {
	if limit <= 0 {
		limit = 10
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ScheduledCall
	for _, sc := range s.scheduledCalls {
		if sc.Status == CallPending && !sc.ScheduledTime.After(due) {
			out = append(out, sc)
		}
	}
	// Oldest scheduled time first.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].ScheduledTime.Before(out[j-1].ScheduledTime); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CountByStatus(_ context.Context, status ScheduledCallStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, sc := range s.scheduledCalls {
		if sc.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CountCampaignByStatus(_ context.Context, campaignID string, status ScheduledCallStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, sc := range s.scheduledCalls {
		if sc.CampaignID == campaignID && sc.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) HasOpenScheduledCall(_ context.Context, leadID, campaignID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sc := range s.scheduledCalls {
		if sc.LeadID == leadID && sc.CampaignID == campaignID && !sc.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) CreateCallSession(_ context.Context, cs CallSession) (CallSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cs.ID == "" {
		cs.ID = uuid.NewString()
	}
	if cs.CreatedAt.IsZero() {
		cs.CreatedAt = time.Now().UTC()
	}
	s.sessions[cs.CallSID] = cs
	return cs, nil
}

func (s *MemoryStore) CallSessionBySID(_ context.Context, callSID string) (CallSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.sessions[callSID]
	if !ok {
		return CallSession{}, ErrNotFound
	}
	return cs, nil
}

func (s *MemoryStore) UpdateCallSession(_ context.Context, cs CallSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[cs.CallSID]; !ok {
		return ErrNotFound
	}
	s.sessions[cs.CallSID] = cs
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
