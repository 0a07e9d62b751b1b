package match

import (
	"sort"
	"time"
)

// Labels for the deterministic selection seeds. These are part of the
// replayable behavior: changing them changes which player a hash picks.
const (
	labelWolfDefault  = "wolf-kill-default"
	labelWolfTiebreak = "wolf-kill-tiebreak"
)

// ApplyWolfKill records a werewolf's kill choice for the current night.
func ApplyWolfKill(m Match, actorID, targetID string) (Match, error) {
	next, actor, target, err := nightActors(m, actorID, targetID)
	if err != nil {
		return m, err
	}
	if actor.Role != RoleWerewolf {
		return m, ErrActorWrongRole
	}
	if target.Role == RoleWerewolf {
		return m, ErrTargetIneligible
	}
	if actor.Night.KillTargetID != "" {
		return m, ErrDuplicateSubmission
	}
	actor.Night.KillTargetID = targetID
	return next, nil
}

// ApplySeerInspect records the seer's inspection choice for the current
// night. The result is computed at resolution, against the target's role at
// that moment.
func ApplySeerInspect(m Match, actorID, targetID string) (Match, error) {
	next, actor, _, err := nightActors(m, actorID, targetID)
	if err != nil {
		return m, err
	}
	if actor.Role != RoleSeer {
		return m, ErrActorWrongRole
	}
	if actorID == targetID {
		return m, ErrTargetIneligible
	}
	if actor.Night.InspectTargetID != "" {
		return m, ErrDuplicateSubmission
	}
	actor.Night.InspectTargetID = targetID
	return next, nil
}

// ApplyDoctorProtect records the doctor's protection choice for the current
// night. Protecting the same player on consecutive nights is not allowed.
func ApplyDoctorProtect(m Match, actorID, targetID string) (Match, error) {
	next, actor, _, err := nightActors(m, actorID, targetID)
	if err != nil {
		return m, err
	}
	if actor.Role != RoleDoctor {
		return m, ErrActorWrongRole
	}
	if actor.DoctorLastProtectedID != "" && actor.DoctorLastProtectedID == targetID {
		return m, ErrTargetIneligible
	}
	if actor.Night.ProtectTargetID != "" {
		return m, ErrDuplicateSubmission
	}
	actor.Night.ProtectTargetID = targetID
	return next, nil
}

// ApplyWolfChat validates and timestamps a wolf-chat message. The event
// itself is built by the caller; state only carries the cooldown.
func ApplyWolfChat(m Match, cfg Config, actorID, text string, now time.Time) (Match, error) {
	if m.Phase != PhaseNight {
		if m.Phase == PhaseEnded {
			return m, ErrMatchEnded
		}
		return m, ErrWrongPhase
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
	if actor.Role != RoleWerewolf {
		return m, ErrActorWrongRole
	}
	if now.Before(actor.WolfChatCooldownUntil) {
		return m, ErrCooldown
	}
	actor.WolfChatCooldownUntil = now.Add(cfg.WolfChatCooldown)
	return next, nil
}

// ApplyMissedResponse increments a player's missed-response counter. Once
// the counter reaches the configured threshold the player is removed during
// the next night resolution.
func ApplyMissedResponse(m Match, playerID string) (Match, error) {
	next := m.Clone()
	p, err := next.player(playerID)
	if err != nil {
		return m, err
	}
	if !p.Alive {
		return next, nil
	}
	p.MissedResponses++
	return next, nil
}

// nightActors clones the match and validates the common night-submission
// preconditions: night phase, actor alive, target alive.
func nightActors(m Match, actorID, targetID string) (Match, *Player, *Player, error) {
	if m.Phase != PhaseNight {
		if m.Phase == PhaseEnded {
			return m, nil, nil, ErrMatchEnded
		}
		return m, nil, nil, ErrWrongPhase
	}
	next := m.Clone()
	actor, err := next.player(actorID)
	if err != nil {
		return m, nil, nil, err
	}
	if !actor.Alive {
		return m, nil, nil, ErrActorDead
	}
	target, err := next.player(targetID)
	if err != nil {
		return m, nil, nil, err
	}
	if !target.Alive {
		return m, nil, nil, ErrTargetDead
	}
	return next, actor, target, nil
}

// resolveNight computes the outcome of the night in one pass: the wolves'
// kill (submitted, defaulted or tie-broken), the doctor's save, the seer's
// inspection and the missed-response eliminations. It returns the new state
// with all night scratch cleared.
func resolveNight(m Match, cfg Config, now time.Time) (Match, Outcome, []Event, error) {
	next := m.Clone()
	outcome := Outcome{}
	var events []Event

	killTarget := wolfKillTarget(next)

	protectTarget := ""
	for i := range next.Players {
		p := &next.Players[i]
		if p.Role != RoleDoctor || !p.Alive {
			continue
		}
		protectTarget = p.Night.ProtectTargetID
		// Anti-repeat memory tracks last night only; skipping a night
		// clears it.
		p.DoctorLastProtectedID = protectTarget
	}

	// Seer resolves against the target's role as of this moment, before any
	// elimination flips it to a revealed role.
	for i := range next.Players {
		p := &next.Players[i]
		if p.Role != RoleSeer || !p.Alive || p.Night.InspectTargetID == "" {
			continue
		}
		target, err := next.player(p.Night.InspectTargetID)
		if err != nil {
			return m, Outcome{}, nil, err
		}
		insp := Inspection{Night: next.NightNumber, TargetID: target.ID, Role: target.Role}
		p.SeerHistory = append(p.SeerHistory, insp)
		events = append(events, NewEvent(next.ID, EventNightResult, PrivateVisibility(p.ID), now, NightResultPayload{
			NightNumber:   next.NightNumber,
			InspectedID:   target.ID,
			InspectedRole: target.Role,
		}))
	}

	saved := killTarget != "" && killTarget == protectTarget
	outcome.Saved = saved

	if killTarget != "" && !saved {
		victim, err := next.eliminate(killTarget, now)
		if err != nil {
			return m, Outcome{}, nil, err
		}
		outcome.Died = append(outcome.Died, victim.ID)
		events = append(events, NewEvent(next.ID, EventPlayerEliminated, PublicVisibility(), now, PlayerEliminatedPayload{
			PlayerID: victim.ID,
			Role:     victim.Role,
			Cause:    CauseNightKill,
		}))
	}

	// Unresponsive players are removed in the same pass. A player can be
	// both the kill victim and a timeout; the sets are reported separately.
	threshold := cfg.MissedResponseThreshold
	if threshold > 0 {
		var timedOut []string
		for _, p := range m.Players {
			if p.Alive && p.MissedResponses >= threshold {
				timedOut = append(timedOut, p.ID)
			}
		}
		sort.Strings(timedOut)
		for _, id := range timedOut {
			p, err := next.player(id)
			if err != nil {
				return m, Outcome{}, nil, err
			}
			wasAlive := p.Alive
			victim, err := next.eliminate(id, now)
			if err != nil {
				return m, Outcome{}, nil, err
			}
			outcome.TimedOut = append(outcome.TimedOut, id)
			if wasAlive {
				events = append(events, NewEvent(next.ID, EventPlayerEliminated, PublicVisibility(), now, PlayerEliminatedPayload{
					PlayerID: victim.ID,
					Role:     victim.Role,
					Cause:    CauseTimeout,
				}))
			}
		}
	}

	for i := range next.Players {
		next.Players[i].Night = NightAction{}
	}
	next.recountAlive()

	if w, decided := EvaluateWinCondition(next); decided {
		next.Winner = w
		outcome.Winner = w
	}

	publicDied := make([]string, len(outcome.Died))
	copy(publicDied, outcome.Died)
	events = append(events, NewEvent(next.ID, EventNightResult, PublicVisibility(), now, NightResultPayload{
		NightNumber: next.NightNumber,
		Died:        publicDied,
		Saved:       saved,
		TimedOut:    append([]string(nil), outcome.TimedOut...),
	}))

	return next, outcome, events, nil
}

// wolfKillTarget picks tonight's victim. Submitted votes are tallied and the
// plurality leader wins; a shared maximum is broken by the deterministic
// hash, and no submissions at all fall back to a hash-picked default among
// the eligible targets. Arrival order never matters.
func wolfKillTarget(m Match) string {
	votes := make(map[string]int)
	submitted := false
	for _, p := range m.Players {
		if p.Role != RoleWerewolf || !p.Alive {
			continue
		}
		if t := p.Night.KillTargetID; t != "" {
			// Late validation: a target may have been valid at submit time
			// but died since (timeout elimination ordering is resolution-
			// local, so this is belt and braces).
			if tp, ok := m.PlayerByID(t); ok && tp.Alive && tp.Role != RoleWerewolf {
				votes[t]++
				submitted = true
			}
		}
	}

	if !submitted {
		var eligible []string
		for _, p := range m.Players {
			if p.Alive && p.Role != RoleWerewolf {
				eligible = append(eligible, p.ID)
			}
		}
		return pickDeterministic(m.StartedAt, m.NightNumber, labelWolfDefault, eligible)
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
	if len(leaders) == 1 {
		return leaders[0]
	}
	return pickDeterministic(m.StartedAt, m.NightNumber, labelWolfTiebreak, leaders)
}
