package repository

import (
	"context"
	"sync"

	"github.com/nightcouncil/werewolf-server/internal/match"
)

// MemStore is an in-memory Store used by tests and local development. It
// honors the same fencing and seq-assignment contracts as the Postgres
// store.
type MemStore struct {
	mu           sync.Mutex
	matches      map[string]match.Match
	events       map[string][]match.Event
	reservations map[RoundKey]bool
	results      map[CommandKey]CommandResult
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		matches:      make(map[string]match.Match),
		events:       make(map[string][]match.Event),
		reservations: make(map[RoundKey]bool),
		results:      make(map[CommandKey]CommandResult),
	}
}

func (s *MemStore) CreateMatch(ctx context.Context, m match.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches[m.ID] = m.Clone()
	return nil
}

func (s *MemStore) LoadMatch(ctx context.Context, matchID string) (match.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return match.Match{}, ErrNotFound
	}
	return m.Clone(), nil
}

func (s *MemStore) WriteMatch(ctx context.Context, prev, next match.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.matches[prev.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Phase != prev.Phase ||
		!cur.PhaseStartedAt.Equal(prev.PhaseStartedAt) ||
		!cur.PhaseEndsAt.Equal(prev.PhaseEndsAt) {
		return ErrStale
	}
	s.matches[next.ID] = next.Clone()
	return nil
}

func (s *MemStore) AppendEvents(ctx context.Context, matchID string, events []match.Event) ([]match.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.events[matchID]
	seq := int64(len(log))
	out := make([]match.Event, 0, len(events))
	for _, e := range events {
		seq++
		e.Seq = seq
		log = append(log, e)
		out = append(out, e)
	}
	s.events[matchID] = log
	return out, nil
}

func (s *MemStore) ListEvents(ctx context.Context, matchID string, afterSeq int64, limit int) ([]match.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []match.Event
	for _, e := range s.events[matchID] {
		if e.Seq <= afterSeq {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemStore) ReserveRound(ctx context.Context, key RoundKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reservations[key] {
		return false, nil
	}
	s.reservations[key] = true
	return true, nil
}

func (s *MemStore) GetCommandResult(ctx context.Context, key CommandKey) (CommandResult, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[key]
	return r, ok, nil
}

func (s *MemStore) PutCommandResult(ctx context.Context, key CommandKey, result CommandResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[key] = result
	return nil
}
