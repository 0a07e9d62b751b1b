package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/nightcouncil/werewolf-server/internal/repository"
)

// idemGuard deduplicates command submissions. Concurrent duplicates collapse
// onto one execution through singleflight; later duplicates replay the
// memoized result from the store. Commands without a client key run
// unguarded.
type idemGuard struct {
	store repository.Store
	group singleflight.Group
}

func newIdemGuard(store repository.Store) *idemGuard {
	return &idemGuard{store: store}
}

func (g *idemGuard) run(ctx context.Context, key repository.CommandKey, fn func() (Submission, error)) (Submission, error) {
	if key.Key == "" {
		return fn()
	}

	if r, ok, err := g.store.GetCommandResult(ctx, key); err != nil {
		return Submission{}, fmt.Errorf("idempotency lookup: %w", err)
	} else if ok {
		return Submission{EventID: r.EventID, Detail: r.Detail, Replayed: true}, nil
	}

	flightKey := fmt.Sprintf("%s|%s|%s|%s", key.MatchID, key.PlayerID, key.Scope, key.Key)
	v, err, _ := g.group.Do(flightKey, func() (interface{}, error) {
		// A racing duplicate may have finished between the lookup above and
		// acquiring the flight.
		if r, ok, err := g.store.GetCommandResult(ctx, key); err != nil {
			return Submission{}, err
		} else if ok {
			return Submission{EventID: r.EventID, Detail: r.Detail, Replayed: true}, nil
		}
		sub, err := fn()
		if err != nil {
			// Failures are not memoized; the client may retry with the same
			// key once the cause clears.
			return Submission{}, err
		}
		if err := g.store.PutCommandResult(ctx, key, repository.CommandResult{
			EventID: sub.EventID,
			Detail:  sub.Detail,
		}); err != nil {
			return Submission{}, fmt.Errorf("idempotency memo: %w", err)
		}
		return sub, nil
	})
	if err != nil {
		return Submission{}, err
	}
	return v.(Submission), nil
}
