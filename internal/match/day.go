package match

import (
	"strings"
	"time"
)

func validateText(cfg Config, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	if cfg.MaxMessageLength > 0 && len(text) > cfg.MaxMessageLength {
		return ErrTextTooLong
	}
	return nil
}

// ApplyPublicMessage validates a public statement. Opening statements are
// limited to one per player per day; discussion is repeatable behind a
// per-player cooldown.
func ApplyPublicMessage(m Match, cfg Config, actorID, text string, kind MessageKind, now time.Time) (Match, error) {
	if m.Phase == PhaseEnded {
		return m, ErrMatchEnded
	}
	if err := validateText(cfg, text); err != nil {
		return m, err
	}
	next := m.Clone()
	actor, err := next.player(actorID)
	if err != nil {
		return m, err
	}
	if !actor.Alive {
		return m, ErrActorDead
	}

	switch kind {
	case KindOpening:
		if m.Phase != PhaseDayOpening {
			return m, ErrWrongPhase
		}
		if actor.OpeningDay == m.DayNumber {
			return m, ErrDuplicateSubmission
		}
		actor.OpeningDay = m.DayNumber
	case KindDiscussion:
		if m.Phase != PhaseDayDiscussion {
			return m, ErrWrongPhase
		}
		if now.Before(actor.PublicCooldownUntil) {
			return m, ErrCooldown
		}
		actor.PublicCooldownUntil = now.Add(cfg.PublicSpeechCooldown)
	default:
		return m, ErrTargetIneligible
	}
	return next, nil
}

// ApplyVote records a day vote. An empty target with abstain set is a valid
// explicit abstention; any other target must be alive. A player votes once
// per day.
func ApplyVote(m Match, actorID, targetID string, abstain bool) (Match, error) {
	if m.Phase != PhaseDayVote {
		if m.Phase == PhaseEnded {
			return m, ErrMatchEnded
		}
		return m, ErrWrongPhase
	}
	next := m.Clone()
	actor, err := next.player(actorID)
	if err != nil {
		return m, err
	}
	if !actor.Alive {
		return m, ErrActorDead
	}
	if actor.Vote.Cast {
		return m, ErrDuplicateSubmission
	}
	if !abstain {
		if targetID == "" || targetID == actorID {
			return m, ErrTargetIneligible
		}
		target, err := next.player(targetID)
		if err != nil {
			return m, err
		}
		if !target.Alive {
			return m, ErrTargetDead
		}
	} else {
		targetID = ""
	}
	actor.Vote = VoteState{Cast: true, TargetID: targetID}
	return next, nil
}

// resolveDayVote tallies the non-abstaining votes. A unique plurality leader
// is eliminated; any tie at the maximum means no one is. All vote state is
// reset afterwards.
func resolveDayVote(m Match, now time.Time) (Match, Outcome, []Event, error) {
	next := m.Clone()
	outcome := Outcome{}
	var events []Event

	votes := make(map[string]int)
	for _, p := range next.Players {
		if !p.Alive || !p.Vote.Cast || p.Vote.TargetID == "" {
			continue
		}
		votes[p.Vote.TargetID]++
	}

	max := 0
	for _, n := range votes {
		if n > max {
			max = n
		}
	}
	var leaders []string
	for id, n := range votes {
		if n == max {
			leaders = append(leaders, id)
		}
	}

	switch {
	case max == 0:
		outcome.VoteTied = false // nobody voted; nobody leaves
	case len(leaders) > 1:
		outcome.VoteTied = true
	default:
		victim, err := next.eliminate(leaders[0], now)
		if err != nil {
			return m, Outcome{}, nil, err
		}
		outcome.VoteEliminatedID = victim.ID
		outcome.VoteEliminatedRole = victim.Role
		events = append(events, NewEvent(next.ID, EventPlayerEliminated, PublicVisibility(), now, PlayerEliminatedPayload{
			PlayerID: victim.ID,
			Role:     victim.Role,
			Cause:    CauseVote,
		}))
	}

	for i := range next.Players {
		next.Players[i].Vote = VoteState{}
	}
	next.recountAlive()

	if w, decided := EvaluateWinCondition(next); decided {
		next.Winner = w
		outcome.Winner = w
	}

	return next, outcome, events, nil
}
