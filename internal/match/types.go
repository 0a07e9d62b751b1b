package match

import (
	"fmt"
	"time"
)

// Role is a player's hidden alignment.
type Role string

const (
	RoleWerewolf Role = "WEREWOLF"
	RoleSeer     Role = "SEER"
	RoleDoctor   Role = "DOCTOR"
	RoleVillager Role = "VILLAGER"
)

// Winner identifies the side that won a finished match.
type Winner string

const (
	WinnerVillagers  Winner = "VILLAGERS"
	WinnerWerewolves Winner = "WEREWOLVES"
)

// PlayerCount is the only roster size the engine accepts.
const PlayerCount = 8

// EliminationCause records why a player left the game.
type EliminationCause string

const (
	CauseNightKill EliminationCause = "NIGHT_KILL"
	CauseTimeout   EliminationCause = "TIMEOUT"
	CauseVote      EliminationCause = "VOTE"
)

// VoteState distinguishes "has not voted", "explicitly abstained" and
// "voted for a target". The zero value means not yet voted.
type VoteState struct {
	Cast     bool
	TargetID string // empty with Cast=true means abstain
}

// Inspection is one entry of the seer's append-only history.
type Inspection struct {
	Night    int
	TargetID string
	Role     Role
}

// NightAction is the per-night scratch state for a player. It is cleared
// unconditionally after every night resolution.
type NightAction struct {
	KillTargetID    string
	InspectTargetID string
	ProtectTargetID string
}

// Player is one seat in the match.
type Player struct {
	ID              string
	DisplayName     string
	Seat            int // 1..8, immutable after creation
	Role            Role
	Alive           bool
	Ready           bool
	MissedResponses int
	EliminatedAt    *time.Time
	RevealedRole    Role // set when the player is eliminated
	// DoctorLastProtectedID remembers last night's protection target; only
	// meaningful for the doctor, who may not protect the same player twice
	// in a row.
	DoctorLastProtectedID string
	SeerHistory           []Inspection
	// OpeningDay is the day number on which the player gave their opening
	// statement; 0 means not yet this game.
	OpeningDay            int
	Vote                  VoteState
	PublicCooldownUntil   time.Time
	WolfChatCooldownUntil time.Time
	Night                 NightAction
}

// Match is the authoritative state of one game. All resolution functions
// treat it as an immutable value: they Clone first and return the copy.
type Match struct {
	ID             string
	Phase          Phase
	DayNumber      int
	NightNumber    int
	PhaseStartedAt time.Time
	PhaseEndsAt    time.Time
	StartedAt      time.Time
	EndedAt        *time.Time
	Winner         Winner // empty until decided
	PublicSummary  string
	PlayersAlive   int
	Players        []Player
}

// Clone returns a deep copy of the match. Slices held by players are copied
// so the original snapshot stays untouched by later mutation.
func (m Match) Clone() Match {
	out := m
	out.Players = make([]Player, len(m.Players))
	copy(out.Players, m.Players)
	for i := range out.Players {
		if h := out.Players[i].SeerHistory; h != nil {
			out.Players[i].SeerHistory = append([]Inspection(nil), h...)
		}
		if t := out.Players[i].EliminatedAt; t != nil {
			tt := *t
			out.Players[i].EliminatedAt = &tt
		}
	}
	if m.EndedAt != nil {
		t := *m.EndedAt
		out.EndedAt = &t
	}
	return out
}

// player returns a pointer into m.Players for the given id. A missing id in
// a known-valid snapshot is a corrupted state, so the error is phrased as an
// invariant violation and callers fail loudly.
func (m *Match) player(id string) (*Player, error) {
	for i := range m.Players {
		if m.Players[i].ID == id {
			return &m.Players[i], nil
		}
	}
	return nil, fmt.Errorf("invariant: player %q not found in match %s", id, m.ID)
}

// PlayerByID returns a copy of the player with the given id.
func (m Match) PlayerByID(id string) (Player, bool) {
	for _, p := range m.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}

// AlivePlayers returns the living players in seat order.
func (m Match) AlivePlayers() []Player {
	out := make([]Player, 0, len(m.Players))
	for _, p := range m.Players {
		if p.Alive {
			out = append(out, p)
		}
	}
	return out
}

// aliveSides returns the living werewolf and non-werewolf counts.
func (m Match) aliveSides() (wolves, others int) {
	for _, p := range m.Players {
		if !p.Alive {
			continue
		}
		if p.Role == RoleWerewolf {
			wolves++
		} else {
			others++
		}
	}
	return wolves, others
}

// recountAlive refreshes the cached PlayersAlive counter. Called at the end
// of every resolution pass so the invariant holds on all persisted states.
func (m *Match) recountAlive() {
	n := 0
	for _, p := range m.Players {
		if p.Alive {
			n++
		}
	}
	m.PlayersAlive = n
}

// eliminate marks a player dead, reveals their role and refreshes the alive
// counter. Eliminating an already-dead player is a no-op.
func (m *Match) eliminate(id string, now time.Time) (Player, error) {
	p, err := m.player(id)
	if err != nil {
		return Player{}, err
	}
	if !p.Alive {
		return *p, nil
	}
	p.Alive = false
	t := now
	p.EliminatedAt = &t
	p.RevealedRole = p.Role
	m.recountAlive()
	return *p, nil
}

// Config holds the tunables the pure resolution functions need. The full
// application config embeds one of these; tests build them directly.
type Config struct {
	PhaseDurations          map[Phase]time.Duration
	MaxMatchDuration        time.Duration
	MissedResponseThreshold int
	PublicSpeechCooldown    time.Duration
	WolfChatCooldown        time.Duration
	MaxMessageLength        int
	RoundsPerPhase          map[Phase]int
}

// PhaseDuration returns the configured duration for a phase, zero for
// terminal or unconfigured phases.
func (c Config) PhaseDuration(p Phase) time.Duration {
	return c.PhaseDurations[p]
}

// Rounds returns how many agent rounds the phase is divided into.
func (c Config) Rounds(p Phase) int {
	return c.RoundsPerPhase[p]
}

// DefaultConfig returns the rule tunables used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		PhaseDurations: map[Phase]time.Duration{
			PhaseLobby:         2 * time.Minute,
			PhaseNight:         90 * time.Second,
			PhaseDayAnnounce:   15 * time.Second,
			PhaseDayOpening:    60 * time.Second,
			PhaseDayDiscussion: 2 * time.Minute,
			PhaseDayVote:       45 * time.Second,
			PhaseDayResolution: 15 * time.Second,
		},
		MaxMatchDuration:        45 * time.Minute,
		MissedResponseThreshold: 3,
		PublicSpeechCooldown:    10 * time.Second,
		WolfChatCooldown:        5 * time.Second,
		MaxMessageLength:        500,
		RoundsPerPhase: map[Phase]int{
			PhaseNight:         4,
			PhaseDayOpening:    1,
			PhaseDayDiscussion: 3,
			PhaseDayVote:       1,
		},
	}
}
