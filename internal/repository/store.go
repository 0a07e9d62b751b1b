// Package repository provides the persistence collaborator for the match
// engine: full-snapshot loads, fenced optimistic writes, the append-only
// event log, round reservations and the idempotency result table.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nightcouncil/werewolf-server/internal/match"
)

// ErrStale is returned by WriteMatch when the stored phase fence no longer
// matches the snapshot the caller loaded. Callers treat it as "already
// superseded" and abandon the update silently.
var ErrStale = errors.New("match state superseded by a concurrent write")

// ErrNotFound is returned when a match id is unknown.
var ErrNotFound = errors.New("match not found")

// RoundKey reserves one orchestrator round. PhaseStartedAt disambiguates two
// visits to the same phase across different days.
type RoundKey struct {
	MatchID        string
	Phase          match.Phase
	PhaseStartedAt time.Time
	RoundIndex     int
}

// CommandKey identifies one idempotent command submission.
type CommandKey struct {
	Scope    string
	Key      string
	PlayerID string
	MatchID  string
}

// CommandResult is the memoized outcome of a successfully applied command.
type CommandResult struct {
	EventID string
	Detail  string
}

// Store is the persistence contract. Both the pgx-backed store and the
// in-memory test store implement it.
type Store interface {
	CreateMatch(ctx context.Context, m match.Match) error
	LoadMatch(ctx context.Context, matchID string) (match.Match, error)
	// WriteMatch persists next only if the stored row still matches prev's
	// phase, phaseStartedAt and phaseEndsAt; otherwise it returns ErrStale
	// and writes nothing.
	WriteMatch(ctx context.Context, prev, next match.Match) error
	// AppendEvents assigns each event the next monotonic per-match seq and
	// returns the stored events.
	AppendEvents(ctx context.Context, matchID string, events []match.Event) ([]match.Event, error)
	ListEvents(ctx context.Context, matchID string, afterSeq int64, limit int) ([]match.Event, error)
	// ReserveRound inserts the key exactly once; false means it was already
	// taken and the round must not run again.
	ReserveRound(ctx context.Context, key RoundKey) (bool, error)
	GetCommandResult(ctx context.Context, key CommandKey) (CommandResult, bool, error)
	PutCommandResult(ctx context.Context, key CommandKey, result CommandResult) error
}
