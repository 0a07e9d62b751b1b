package match

import "time"

// ActionType enumerates what a player can be asked to submit.
type ActionType string

const (
	ActionNone             ActionType = "NONE"
	ActionReady            ActionType = "READY"
	ActionWolfChat         ActionType = "WOLF_CHAT"
	ActionWolfKill         ActionType = "WOLF_KILL"
	ActionSeerInspect      ActionType = "SEER_INSPECT"
	ActionDoctorProtect    ActionType = "DOCTOR_PROTECT"
	ActionOpeningStatement ActionType = "OPENING_STATEMENT"
	ActionDiscussion       ActionType = "DISCUSSION"
	ActionVote             ActionType = "VOTE"
)

// RequiredAction is the derived view of what a player must submit in the
// current phase (and, at night, round): the action type, the legal targets,
// and whether it has already been submitted. It is never stored.
type RequiredAction struct {
	Type      ActionType `json:"type"`
	TargetIDs []string   `json:"targetIds,omitempty"`
	Submitted bool       `json:"submitted"`
}

// RequiredActionFor derives the action a player owes for the given phase and
// night round. finalNightRound selects between wolf chat and the kill
// submission; outside the night it is ignored. Dead players owe nothing.
func RequiredActionFor(m Match, playerID string, finalNightRound bool) (RequiredAction, error) {
	p, ok := m.PlayerByID(playerID)
	if !ok {
		return RequiredAction{}, errPlayerUnknown(m, playerID)
	}
	if !p.Alive || m.Phase == PhaseEnded {
		return RequiredAction{Type: ActionNone}, nil
	}

	switch m.Phase {
	case PhaseLobby:
		return RequiredAction{Type: ActionReady, Submitted: p.Ready}, nil
	case PhaseNight:
		switch p.Role {
		case RoleWerewolf:
			if finalNightRound {
				return RequiredAction{
					Type:      ActionWolfKill,
					TargetIDs: aliveIDs(m, func(t Player) bool { return t.Role != RoleWerewolf }),
					Submitted: p.Night.KillTargetID != "",
				}, nil
			}
			return RequiredAction{Type: ActionWolfChat}, nil
		case RoleSeer:
			return RequiredAction{
				Type:      ActionSeerInspect,
				TargetIDs: aliveIDs(m, func(t Player) bool { return t.ID != p.ID }),
				Submitted: p.Night.InspectTargetID != "",
			}, nil
		case RoleDoctor:
			return RequiredAction{
				Type: ActionDoctorProtect,
				TargetIDs: aliveIDs(m, func(t Player) bool {
					return t.ID != p.DoctorLastProtectedID
				}),
				Submitted: p.Night.ProtectTargetID != "",
			}, nil
		}
		return RequiredAction{Type: ActionNone}, nil
	case PhaseDayOpening:
		return RequiredAction{Type: ActionOpeningStatement, Submitted: p.OpeningDay == m.DayNumber}, nil
	case PhaseDayDiscussion:
		return RequiredAction{Type: ActionDiscussion}, nil
	case PhaseDayVote:
		return RequiredAction{
			Type:      ActionVote,
			TargetIDs: aliveIDs(m, func(t Player) bool { return t.ID != p.ID }),
			Submitted: p.Vote.Cast,
		}, nil
	}
	return RequiredAction{Type: ActionNone}, nil
}

func aliveIDs(m Match, keep func(Player) bool) []string {
	var out []string
	for _, p := range m.Players {
		if p.Alive && keep(p) {
			out = append(out, p.ID)
		}
	}
	return out
}

func errPlayerUnknown(m Match, id string) error {
	_, err := (&m).player(id)
	return err
}

// PlayerView is the per-seat slice of the public state view.
type PlayerView struct {
	PlayerID     string `json:"playerId"`
	DisplayName  string `json:"displayName"`
	Seat         int    `json:"seat"`
	Alive        bool   `json:"alive"`
	Ready        bool   `json:"ready"`
	RevealedRole Role   `json:"revealedRole,omitempty"`
}

// YouView is the private section a living viewer gets about themselves.
type YouView struct {
	PlayerID       string         `json:"playerId"`
	Role           Role           `json:"role"`
	KnownWolves    []string       `json:"knownWolves,omitempty"`
	SeerHistory    []Inspection   `json:"seerHistory,omitempty"`
	RequiredAction RequiredAction `json:"requiredAction"`
}

// StateView is the visibility-scoped answer to a state query. Spectators
// get no You section; includeSpoilers bypasses role hiding for audits.
type StateView struct {
	MatchID       string       `json:"matchId"`
	Phase         Phase        `json:"phase"`
	DayNumber     int          `json:"dayNumber"`
	NightNumber   int          `json:"nightNumber"`
	PhaseEndsAt   time.Time    `json:"phaseEndsAt"`
	PlayersAlive  int          `json:"playersAlive"`
	PublicSummary string       `json:"publicSummary"`
	Winner        Winner       `json:"winner,omitempty"`
	Players       []PlayerView `json:"players"`
	You           *YouView     `json:"you,omitempty"`
}

// ViewState projects the match for a viewer. Hidden roles stay hidden
// unless revealed by elimination or includeSpoilers is set.
func ViewState(m Match, viewerID string, includeSpoilers bool, finalNightRound bool) (StateView, error) {
	view := StateView{
		MatchID:       m.ID,
		Phase:         m.Phase,
		DayNumber:     m.DayNumber,
		NightNumber:   m.NightNumber,
		PhaseEndsAt:   m.PhaseEndsAt,
		PlayersAlive:  m.PlayersAlive,
		PublicSummary: m.PublicSummary,
		Winner:        m.Winner,
	}
	for _, p := range m.Players {
		pv := PlayerView{
			PlayerID:     p.ID,
			DisplayName:  p.DisplayName,
			Seat:         p.Seat,
			Alive:        p.Alive,
			Ready:        p.Ready,
			RevealedRole: p.RevealedRole,
		}
		if includeSpoilers {
			pv.RevealedRole = p.Role
		}
		view.Players = append(view.Players, pv)
	}

	if viewerID != "" {
		viewer, ok := m.PlayerByID(viewerID)
		if ok && viewer.Alive {
			you := &YouView{PlayerID: viewer.ID, Role: viewer.Role}
			if viewer.Role == RoleWerewolf {
				for _, p := range m.Players {
					if p.Role == RoleWerewolf && p.ID != viewer.ID {
						you.KnownWolves = append(you.KnownWolves, p.ID)
					}
				}
			}
			if viewer.Role == RoleSeer {
				you.SeerHistory = append([]Inspection(nil), viewer.SeerHistory...)
			}
			ra, err := RequiredActionFor(m, viewer.ID, finalNightRound)
			if err != nil {
				return StateView{}, err
			}
			you.RequiredAction = ra
			view.You = you
		}
	}
	return view, nil
}
