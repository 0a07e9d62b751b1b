package match

import (
	"testing"
	"time"
)

var testStart = time.Date(2025, 11, 3, 20, 0, 0, 0, time.UTC)

// newTestMatch builds an 8-player match with fixed, known roles so tests can
// exercise resolution without going through the seeded shuffle.
func newTestMatch(phase Phase) Match {
	mk := func(id string, seat int, role Role) Player {
		return Player{ID: id, DisplayName: id, Seat: seat, Role: role, Alive: true}
	}
	m := Match{
		ID:             "m1",
		Phase:          phase,
		DayNumber:      1,
		NightNumber:    1,
		StartedAt:      testStart,
		PhaseStartedAt: testStart,
		PhaseEndsAt:    testStart.Add(90 * time.Second),
		Players: []Player{
			mk("wolf1", 1, RoleWerewolf),
			mk("wolf2", 2, RoleWerewolf),
			mk("seer", 3, RoleSeer),
			mk("doctor", 4, RoleDoctor),
			mk("ana", 5, RoleVillager),
			mk("ben", 6, RoleVillager),
			mk("cleo", 7, RoleVillager),
			mk("dara", 8, RoleVillager),
		},
	}
	m.recountAlive()
	return m
}

func testCfg() Config {
	return DefaultConfig()
}

func mustAdvance(t *testing.T, m Match, cfg Config, now time.Time, allowEarly bool) (Match, AdvanceResult, []Event) {
	t.Helper()
	next, res, events, err := Advance(m, cfg, now, allowEarly)
	if err != nil {
		t.Fatalf("advance from %s: %v", m.Phase, err)
	}
	return next, res, events
}
