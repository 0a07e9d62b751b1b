package match

import (
	"fmt"
	"time"
)

// Phase represents one stage of the fixed match lifecycle.
type Phase string

const (
	PhaseLobby         Phase = "LOBBY"
	PhaseNight         Phase = "NIGHT"
	PhaseDayAnnounce   Phase = "DAY_ANNOUNCE"
	PhaseDayOpening    Phase = "DAY_OPENING"
	PhaseDayDiscussion Phase = "DAY_DISCUSSION"
	PhaseDayVote       Phase = "DAY_VOTE"
	PhaseDayResolution Phase = "DAY_RESOLUTION"
	PhaseEnded         Phase = "ENDED"
)

// phaseSequence is the fixed successor order. DAY_RESOLUTION branches to
// ENDED or back to NIGHT depending on whether a winner has been decided, so
// it is handled explicitly in nextPhase rather than through this slice.
var phaseSequence = []Phase{
	PhaseLobby,
	PhaseNight,
	PhaseDayAnnounce,
	PhaseDayOpening,
	PhaseDayDiscussion,
	PhaseDayVote,
	PhaseDayResolution,
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	if p == PhaseEnded {
		return true
	}
	for _, q := range phaseSequence {
		if p == q {
			return true
		}
	}
	return false
}

// IsDay reports whether p is one of the daytime phases.
func (p Phase) IsDay() bool {
	switch p {
	case PhaseDayAnnounce, PhaseDayOpening, PhaseDayDiscussion, PhaseDayVote, PhaseDayResolution:
		return true
	}
	return false
}

// nextPhase returns the successor of p. hasWinner selects the branch taken
// when leaving DAY_RESOLUTION.
func nextPhase(p Phase, hasWinner bool) (Phase, error) {
	if p == PhaseEnded {
		return "", fmt.Errorf("invariant: phase %s is terminal", p)
	}
	if p == PhaseDayResolution {
		if hasWinner {
			return PhaseEnded, nil
		}
		return PhaseNight, nil
	}
	for i, q := range phaseSequence {
		if p == q {
			return phaseSequence[i+1], nil
		}
	}
	return "", fmt.Errorf("invariant: unknown phase %q", p)
}

// earlyAdvanceReady evaluates the per-phase early-advance predicate. Phases
// without a predicate can only advance on timeout.
func earlyAdvanceReady(m Match) bool {
	switch m.Phase {
	case PhaseLobby:
		for _, p := range m.Players {
			if p.Alive && !p.Ready {
				return false
			}
		}
		return true
	case PhaseDayOpening:
		for _, p := range m.Players {
			if p.Alive && p.OpeningDay != m.DayNumber {
				return false
			}
		}
		return true
	case PhaseDayVote:
		for _, p := range m.Players {
			if p.Alive && !p.Vote.Cast {
				return false
			}
		}
		return true
	}
	return false
}

// AdvanceResult describes what a successful Advance did, for event emission
// and follow-up scheduling by the caller.
type AdvanceResult struct {
	Advanced bool
	From     Phase
	To       Phase
	Outcome  Outcome
}

// Advance moves the match to its next phase if the current phase has timed
// out, or if allowEarly is set and the phase's early-advance predicate holds.
// It returns a full next snapshot plus the events to append; the input match
// is never mutated. A non-eligible call returns the input unchanged with
// Advanced=false, which callers treat as "nothing to do" rather than an
// error: scheduled triggers are delivered at least once and may be stale.
func Advance(m Match, cfg Config, now time.Time, allowEarly bool) (Match, AdvanceResult, []Event, error) {
	// Phase window instants are compared with time.Equal after a database
	// round trip; TIMESTAMPTZ keeps microseconds, so the window must too.
	now = now.Truncate(time.Microsecond)
	if m.Phase == PhaseEnded {
		return m, AdvanceResult{}, nil, nil
	}

	// A match that has outlived its maximum total duration is forced to an
	// end from any phase, winner or not.
	if cfg.MaxMatchDuration > 0 && !m.StartedAt.IsZero() && !now.Before(m.StartedAt.Add(cfg.MaxMatchDuration)) {
		return forceEnd(m, cfg, now)
	}

	timedOut := !now.Before(m.PhaseEndsAt)
	if !timedOut && !(allowEarly && earlyAdvanceReady(m)) {
		return m, AdvanceResult{}, nil, nil
	}

	next := m.Clone()
	from := next.Phase
	var outcome Outcome
	var events []Event

	// Resolution happens on the way out of the phase that collected the
	// submissions, so the announcing phase opens with the outcome known.
	switch from {
	case PhaseNight:
		var err error
		next, outcome, events, err = resolveNight(next, cfg, now)
		if err != nil {
			return m, AdvanceResult{}, nil, err
		}
	case PhaseDayVote:
		var err error
		next, outcome, events, err = resolveDayVote(next, now)
		if err != nil {
			return m, AdvanceResult{}, nil, err
		}
	}

	to, err := nextPhase(from, next.Winner != "")
	if err != nil {
		return m, AdvanceResult{}, nil, err
	}

	switch from {
	case PhaseNight:
		next.DayNumber++
	case PhaseDayResolution:
		next.NightNumber++
	}

	next.Phase = to
	next.PhaseStartedAt = now
	next.PhaseEndsAt = now.Add(cfg.PhaseDuration(to))
	if from == PhaseLobby {
		next.StartedAt = now
	}

	events = append(events, NewEvent(next.ID, EventPhaseChanged, PublicVisibility(), now, PhaseChangedPayload{
		From:        from,
		To:          to,
		DayNumber:   next.DayNumber,
		NightNumber: next.NightNumber,
	}))

	if to == PhaseEnded {
		t := now
		next.EndedAt = &t
		events = append(events, NewEvent(next.ID, EventGameEnded, PublicVisibility(), now, GameEndedPayload{
			Winner: next.Winner,
		}))
	}

	summary := Narrate(from, to, outcome)
	next.PublicSummary = summary
	events = append(events, NewEvent(next.ID, EventNarrator, PublicVisibility(), now, NarratorPayload{Text: summary}))

	return next, AdvanceResult{Advanced: true, From: from, To: to, Outcome: outcome}, events, nil
}

// forceEnd terminates the match because the maximum total duration elapsed.
// The forced winner is whichever side is not currently outnumbered; at
// parity the wolves are not outnumbered, so they take it.
func forceEnd(m Match, cfg Config, now time.Time) (Match, AdvanceResult, []Event, error) {
	next := m.Clone()
	from := next.Phase

	if next.Winner == "" {
		wolves, others := next.aliveSides()
		if wolves >= others {
			next.Winner = WinnerWerewolves
		} else {
			next.Winner = WinnerVillagers
		}
	}

	next.Phase = PhaseEnded
	next.PhaseStartedAt = now
	next.PhaseEndsAt = now
	t := now
	next.EndedAt = &t

	outcome := Outcome{Forced: true, Winner: next.Winner}
	events := []Event{
		NewEvent(next.ID, EventPhaseChanged, PublicVisibility(), now, PhaseChangedPayload{
			From:        from,
			To:          PhaseEnded,
			DayNumber:   next.DayNumber,
			NightNumber: next.NightNumber,
		}),
		NewEvent(next.ID, EventGameEnded, PublicVisibility(), now, GameEndedPayload{
			Winner: next.Winner,
			Forced: true,
		}),
	}
	summary := Narrate(from, PhaseEnded, outcome)
	next.PublicSummary = summary
	events = append(events, NewEvent(next.ID, EventNarrator, PublicVisibility(), now, NarratorPayload{Text: summary}))

	return next, AdvanceResult{Advanced: true, From: from, To: PhaseEnded, Outcome: outcome}, events, nil
}
