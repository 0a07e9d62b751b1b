package match

import (
	"fmt"
	"time"
)

// Roster is the creation-time description of one player.
type Roster struct {
	PlayerID    string
	DisplayName string
}

// NewMatch creates a lobby-phase match from an 8-player roster, assigning
// seats in roster order and roles by the seeded deterministic shuffle. The
// returned events start the append-only log for the match.
func NewMatch(id string, roster []Roster, seed string, cfg Config, now time.Time) (Match, []Event, error) {
	// Same precision rule as Advance: the phase window survives a
	// TIMESTAMPTZ round trip only at microsecond granularity.
	now = now.Truncate(time.Microsecond)
	if id == "" {
		return Match{}, nil, fmt.Errorf("match id must not be empty")
	}
	ids := make([]string, 0, len(roster))
	for _, r := range roster {
		ids = append(ids, r.PlayerID)
	}
	roles, err := AssignRoles(ids, seed)
	if err != nil {
		return Match{}, nil, err
	}

	players := make([]Player, 0, len(roster))
	seats := make(map[string]int, len(roster))
	for i, r := range roster {
		seat := i + 1
		seats[r.PlayerID] = seat
		players = append(players, Player{
			ID:          r.PlayerID,
			DisplayName: r.DisplayName,
			Seat:        seat,
			Role:        roles[r.PlayerID],
			Alive:       true,
		})
	}

	m := Match{
		ID:             id,
		Phase:          PhaseLobby,
		NightNumber:    1,
		PhaseStartedAt: now,
		PhaseEndsAt:    now.Add(cfg.PhaseDuration(PhaseLobby)),
		StartedAt:      now,
		PlayersAlive:   len(players),
		Players:        players,
	}

	events := []Event{
		NewEvent(id, EventMatchCreated, PublicVisibility(), now, MatchCreatedPayload{
			PlayerIDs: ids,
			Seats:     seats,
		}),
	}
	return m, events, nil
}

// ApplyReady marks a lobby player as ready.
func ApplyReady(m Match, playerID string) (Match, error) {
	if m.Phase != PhaseLobby {
		if m.Phase == PhaseEnded {
			return m, ErrMatchEnded
		}
		return m, ErrWrongPhase
	}
	next := m.Clone()
	p, err := next.player(playerID)
	if err != nil {
		return m, err
	}
	if !p.Alive {
		return m, ErrActorDead
	}
	p.Ready = true
	return next, nil
}
