// Package signal relays interview completion from the webhook to a polling
// client. A recorded signal is consumed by the first poll that sees it
// completed; entries older than the TTL are swept on every write.
package signal

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultTTL bounds how long an unconsumed signal is kept.
const DefaultTTL = time.Hour

var ErrCandidateRequired = errors.New("candidate_id is required")

type Signal struct {
	CandidateID string    `json:"candidate_id"`
	InterviewID string    `json:"interview_id,omitempty"`
	Completed   bool      `json:"completed"`
	Timestamp   time.Time `json:"timestamp"`
}

// Store is implemented by the in-process map and the SQL-backed store.
type Store interface {
	// Record stores a completed signal, replacing any earlier one for the candidate.
	Record(ctx context.Context, candidateID, interviewID string) (Signal, error)
	// Poll returns the signal and deletes it when completed. ok is false when
	// nothing completed is pending.
	Poll(ctx context.Context, candidateID string) (sig Signal, ok bool, err error)
	// Len reports the number of pending entries.
	Len(ctx context.Context) (int, error)
}

// MemoryStore keeps signals in process memory. Entries do not survive a
// restart and are not shared between instances.
type MemoryStore struct {
	TTL time.Duration
	Now func() time.Time

	mu      sync.Mutex
	entries map[string]Signal
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{TTL: ttl, Now: time.Now, entries: make(map[string]Signal)}
}

func (s *MemoryStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *MemoryStore) Record(_ context.Context, candidateID, interviewID string) (Signal, error) {
	if candidateID == "" {
		return Signal{}, ErrCandidateRequired
	}
	now := s.now()
	sig := Signal{CandidateID: candidateID, InterviewID: interviewID, Completed: true, Timestamp: now}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		s.entries = make(map[string]Signal)
	}
	s.entries[candidateID] = sig
	cutoff := now.Add(-s.ttl())
	for id, entry := range s.entries {
		if entry.Timestamp.Before(cutoff) {
			delete(s.entries, id)
		}
	}
	return sig, nil
}

func (s *MemoryStore) Poll(_ context.Context, candidateID string) (Signal, bool, error) {
	if candidateID == "" {
		return Signal{}, false, ErrCandidateRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.entries[candidateID]
	if !ok || !sig.Completed {
		return Signal{CandidateID: candidateID}, false, nil
	}
	delete(s.entries, candidateID)
	return sig, true, nil
}

func (s *MemoryStore) Len(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), nil
}

func (s *MemoryStore) ttl() time.Duration {
	if s.TTL <= 0 {
		return DefaultTTL
	}
	return s.TTL
}
