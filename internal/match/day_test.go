package match

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyPublicMessage(t *testing.T) {
	cfg := testCfg()

	t.Run("opening allowed once per day", func(t *testing.T) {
		m := newTestMatch(PhaseDayOpening)
		m2, err := ApplyPublicMessage(m, cfg, "ana", "I am just a villager.", KindOpening, testStart)
		require.NoError(t, err)
		p, _ := m2.PlayerByID("ana")
		assert.Equal(t, m.DayNumber, p.OpeningDay)

		_, err = ApplyPublicMessage(m2, cfg, "ana", "let me add one thing", KindOpening, testStart)
		assert.ErrorIs(t, err, ErrDuplicateSubmission)
	})

	t.Run("opening resets on a new day", func(t *testing.T) {
		m := newTestMatch(PhaseDayOpening)
		m.DayNumber = 2
		for i := range m.Players {
			if m.Players[i].ID == "ana" {
				m.Players[i].OpeningDay = 1
			}
		}
		_, err := ApplyPublicMessage(m, cfg, "ana", "day two thoughts", KindOpening, testStart)
		assert.NoError(t, err)
	})

	t.Run("discussion honors the cooldown window", func(t *testing.T) {
		m := newTestMatch(PhaseDayDiscussion)
		m2, err := ApplyPublicMessage(m, cfg, "ben", "seer should speak up", KindDiscussion, testStart)
		require.NoError(t, err)
		_, err = ApplyPublicMessage(m2, cfg, "ben", "anyone?", KindDiscussion, testStart.Add(cfg.PublicSpeechCooldown-1))
		assert.ErrorIs(t, err, ErrCooldown)
		_, err = ApplyPublicMessage(m2, cfg, "ben", "anyone?", KindDiscussion, testStart.Add(cfg.PublicSpeechCooldown))
		assert.NoError(t, err)
	})

	t.Run("dead players cannot speak", func(t *testing.T) {
		m := newTestMatch(PhaseDayDiscussion)
		for i := range m.Players {
			if m.Players[i].ID == "ana" {
				m.Players[i].Alive = false
			}
		}
		m.recountAlive()
		_, err := ApplyPublicMessage(m, cfg, "ana", "boo", KindDiscussion, testStart)
		assert.ErrorIs(t, err, ErrActorDead)
	})

	t.Run("kind must match phase", func(t *testing.T) {
		m := newTestMatch(PhaseDayDiscussion)
		_, err := ApplyPublicMessage(m, cfg, "ana", "opening in discussion", KindOpening, testStart)
		assert.ErrorIs(t, err, ErrWrongPhase)
	})

	t.Run("text length limits", func(t *testing.T) {
		m := newTestMatch(PhaseDayDiscussion)
		_, err := ApplyPublicMessage(m, cfg, "ana", strings.Repeat("x", cfg.MaxMessageLength+1), KindDiscussion, testStart)
		assert.ErrorIs(t, err, ErrTextTooLong)
		_, err = ApplyPublicMessage(m, cfg, "ana", "   ", KindDiscussion, testStart)
		assert.ErrorIs(t, err, ErrEmptyText)
	})
}

func TestApplyVote(t *testing.T) {
	t.Run("explicit abstain is a valid vote", func(t *testing.T) {
		m := newTestMatch(PhaseDayVote)
		m2, err := ApplyVote(m, "ana", "", true)
		require.NoError(t, err)
		p, _ := m2.PlayerByID("ana")
		assert.True(t, p.Vote.Cast)
		assert.Empty(t, p.Vote.TargetID)
	})

	t.Run("target must be alive", func(t *testing.T) {
		m := newTestMatch(PhaseDayVote)
		for i := range m.Players {
			if m.Players[i].ID == "ben" {
				m.Players[i].Alive = false
			}
		}
		m.recountAlive()
		_, err := ApplyVote(m, "ana", "ben", false)
		assert.ErrorIs(t, err, ErrTargetDead)
	})

	t.Run("no revote", func(t *testing.T) {
		m := newTestMatch(PhaseDayVote)
		m2, err := ApplyVote(m, "ana", "ben", false)
		require.NoError(t, err)
		_, err = ApplyVote(m2, "ana", "cleo", false)
		assert.ErrorIs(t, err, ErrDuplicateSubmission)
	})

	t.Run("empty target without abstain flag rejected", func(t *testing.T) {
		m := newTestMatch(PhaseDayVote)
		_, err := ApplyVote(m, "ana", "", false)
		assert.ErrorIs(t, err, ErrTargetIneligible)
	})

	t.Run("self-vote rejected, matching the offered targets", func(t *testing.T) {
		m := newTestMatch(PhaseDayVote)
		_, err := ApplyVote(m, "ana", "ana", false)
		assert.ErrorIs(t, err, ErrTargetIneligible)

		ra, err := RequiredActionFor(m, "ana", false)
		require.NoError(t, err)
		assert.NotContains(t, ra.TargetIDs, "ana")
	})
}

func TestResolveDayVote(t *testing.T) {
	cfg := testCfg()

	vote := func(t *testing.T, m Match, voter, target string) Match {
		t.Helper()
		next, err := ApplyVote(m, voter, target, target == "")
		require.NoError(t, err)
		return next
	}

	t.Run("unique plurality leader is eliminated", func(t *testing.T) {
		m := newTestMatch(PhaseDayVote)
		m = vote(t, m, "ana", "wolf1")
		m = vote(t, m, "ben", "wolf1")
		m = vote(t, m, "cleo", "wolf1")
		m = vote(t, m, "wolf1", "ana")
		m = vote(t, m, "wolf2", "ana")

		next, res, _ := mustAdvance(t, m, cfg, m.PhaseEndsAt, false)
		assert.Equal(t, "wolf1", res.Outcome.VoteEliminatedID)
		assert.Equal(t, RoleWerewolf, res.Outcome.VoteEliminatedRole)
		victim, _ := next.PlayerByID("wolf1")
		assert.False(t, victim.Alive)
		assert.Equal(t, RoleWerewolf, victim.RevealedRole)
		assert.Contains(t, next.PublicSummary, "banished wolf1")
	})

	t.Run("tied plurality eliminates no one", func(t *testing.T) {
		m := newTestMatch(PhaseDayVote)
		m = vote(t, m, "ana", "wolf1")
		m = vote(t, m, "ben", "wolf1")
		m = vote(t, m, "wolf1", "ana")
		m = vote(t, m, "wolf2", "ana")

		next, res, _ := mustAdvance(t, m, cfg, m.PhaseEndsAt, false)
		assert.True(t, res.Outcome.VoteTied)
		assert.Empty(t, res.Outcome.VoteEliminatedID)
		assert.Equal(t, m.PlayersAlive, next.PlayersAlive)
	})

	t.Run("abstains do not count toward the tally", func(t *testing.T) {
		m := newTestMatch(PhaseDayVote)
		m = vote(t, m, "ana", "wolf1")
		for _, id := range []string{"ben", "cleo", "dara", "seer", "doctor", "wolf1", "wolf2"} {
			m = vote(t, m, id, "")
		}
		next, res, _ := mustAdvance(t, m, cfg, m.PhaseEndsAt, true)
		assert.Equal(t, "wolf1", res.Outcome.VoteEliminatedID)
		assert.Equal(t, m.PlayersAlive-1, next.PlayersAlive)
	})

	t.Run("all abstain eliminates no one", func(t *testing.T) {
		m := newTestMatch(PhaseDayVote)
		for _, p := range m.AlivePlayers() {
			m = vote(t, m, p.ID, "")
		}
		next, res, _ := mustAdvance(t, m, cfg, m.PhaseEndsAt, true)
		assert.Empty(t, res.Outcome.VoteEliminatedID)
		assert.False(t, res.Outcome.VoteTied)
		assert.Equal(t, m.PlayersAlive, next.PlayersAlive)
	})

	t.Run("vote state reset after resolution", func(t *testing.T) {
		m := newTestMatch(PhaseDayVote)
		for _, p := range m.AlivePlayers() {
			target := "ana"
			if p.ID == "ana" {
				target = "" // self-votes are rejected; ana abstains instead
			}
			m = vote(t, m, p.ID, target)
		}
		next, _, _ := mustAdvance(t, m, cfg, m.PhaseEndsAt, true)
		for _, p := range next.Players {
			assert.Equal(t, VoteState{}, p.Vote)
		}
	})
}
