package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNightSubmissionValidation(t *testing.T) {
	t.Run("wrong phase", func(t *testing.T) {
		m := newTestMatch(PhaseDayVote)
		_, err := ApplyWolfKill(m, "wolf1", "ana")
		assert.ErrorIs(t, err, ErrWrongPhase)
	})

	t.Run("dead actor", func(t *testing.T) {
		m := newTestMatch(PhaseNight)
		for i := range m.Players {
			if m.Players[i].ID == "wolf1" {
				m.Players[i].Alive = false
			}
		}
		m.recountAlive()
		_, err := ApplyWolfKill(m, "wolf1", "ana")
		assert.ErrorIs(t, err, ErrActorDead)
	})

	t.Run("wrong role", func(t *testing.T) {
		m := newTestMatch(PhaseNight)
		_, err := ApplyWolfKill(m, "ana", "ben")
		assert.ErrorIs(t, err, ErrActorWrongRole)
		_, err = ApplySeerInspect(m, "doctor", "ana")
		assert.ErrorIs(t, err, ErrActorWrongRole)
		_, err = ApplyDoctorProtect(m, "seer", "ana")
		assert.ErrorIs(t, err, ErrActorWrongRole)
	})

	t.Run("dead target", func(t *testing.T) {
		m := newTestMatch(PhaseNight)
		for i := range m.Players {
			if m.Players[i].ID == "ana" {
				m.Players[i].Alive = false
			}
		}
		m.recountAlive()
		_, err := ApplyWolfKill(m, "wolf1", "ana")
		assert.ErrorIs(t, err, ErrTargetDead)
	})

	t.Run("wolf cannot target a wolf", func(t *testing.T) {
		m := newTestMatch(PhaseNight)
		_, err := ApplyWolfKill(m, "wolf1", "wolf2")
		assert.ErrorIs(t, err, ErrTargetIneligible)
	})

	t.Run("doctor cannot repeat last protection", func(t *testing.T) {
		m := newTestMatch(PhaseNight)
		for i := range m.Players {
			if m.Players[i].ID == "doctor" {
				m.Players[i].DoctorLastProtectedID = "ana"
			}
		}
		_, err := ApplyDoctorProtect(m, "doctor", "ana")
		assert.ErrorIs(t, err, ErrTargetIneligible)

		m2, err := ApplyDoctorProtect(m, "doctor", "ben")
		require.NoError(t, err)
		p, _ := m2.PlayerByID("doctor")
		assert.Equal(t, "ben", p.Night.ProtectTargetID)
	})

	t.Run("one submission per actor per kind", func(t *testing.T) {
		m := newTestMatch(PhaseNight)
		m, err := ApplyWolfKill(m, "wolf1", "ana")
		require.NoError(t, err)
		_, err = ApplyWolfKill(m, "wolf1", "ben")
		assert.ErrorIs(t, err, ErrDuplicateSubmission)

		// The other wolf still gets their own submission.
		_, err = ApplyWolfKill(m, "wolf2", "ben")
		assert.NoError(t, err)
	})

	t.Run("submission does not mutate the input snapshot", func(t *testing.T) {
		m := newTestMatch(PhaseNight)
		_, err := ApplyWolfKill(m, "wolf1", "ana")
		require.NoError(t, err)
		p, _ := m.PlayerByID("wolf1")
		assert.Empty(t, p.Night.KillTargetID)
	})
}

func TestResolveNight(t *testing.T) {
	cfg := testCfg()

	t.Run("doctor protection cancels the kill with no substitute death", func(t *testing.T) {
		m := newTestMatch(PhaseNight)
		m, err := ApplyWolfKill(m, "wolf1", "ana")
		require.NoError(t, err)
		m, err = ApplyDoctorProtect(m, "doctor", "ana")
		require.NoError(t, err)

		next, res, _ := mustAdvance(t, m, cfg, m.PhaseEndsAt, false)
		assert.Equal(t, PhaseDayAnnounce, next.Phase)
		assert.Equal(t, m.PlayersAlive, next.PlayersAlive)
		assert.True(t, res.Outcome.Saved)
		assert.Empty(t, res.Outcome.Died)
		assert.Contains(t, next.PublicSummary, "No one died overnight. A life was saved.")
	})

	t.Run("plurality kill lands", func(t *testing.T) {
		m := newTestMatch(PhaseNight)
		m, err := ApplyWolfKill(m, "wolf1", "ben")
		require.NoError(t, err)
		m, err = ApplyWolfKill(m, "wolf2", "ben")
		require.NoError(t, err)

		next, res, events := mustAdvance(t, m, cfg, m.PhaseEndsAt, false)
		assert.Equal(t, []string{"ben"}, res.Outcome.Died)
		assert.Equal(t, m.PlayersAlive-1, next.PlayersAlive)

		victim, _ := next.PlayerByID("ben")
		assert.False(t, victim.Alive)
		assert.Equal(t, RoleVillager, victim.RevealedRole)
		require.NotNil(t, victim.EliminatedAt)

		var eliminated bool
		for _, e := range events {
			if e.Type == EventPlayerEliminated {
				p := e.Payload.(PlayerEliminatedPayload)
				assert.Equal(t, "ben", p.PlayerID)
				assert.Equal(t, CauseNightKill, p.Cause)
				eliminated = true
			}
		}
		assert.True(t, eliminated)
	})

	t.Run("split vote breaks ties by hash, not arrival order", func(t *testing.T) {
		resolveOnce := func() []string {
			m := newTestMatch(PhaseNight)
			m, err := ApplyWolfKill(m, "wolf1", "ana")
			require.NoError(t, err)
			m, err = ApplyWolfKill(m, "wolf2", "ben")
			require.NoError(t, err)
			_, res, _ := mustAdvance(t, m, cfg, m.PhaseEndsAt, false)
			return res.Outcome.Died
		}
		first := resolveOnce()
		require.Len(t, first, 1)
		assert.Contains(t, []string{"ana", "ben"}, first[0])
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, resolveOnce(), "tie-break must be reproducible from state alone")
		}
	})

	t.Run("no submission falls back to a deterministic default target", func(t *testing.T) {
		resolveOnce := func() []string {
			m := newTestMatch(PhaseNight)
			_, res, _ := mustAdvance(t, m, cfg, m.PhaseEndsAt, false)
			return res.Outcome.Died
		}
		first := resolveOnce()
		require.Len(t, first, 1, "a default victim must be chosen")
		victim, _ := newTestMatch(PhaseNight).PlayerByID(first[0])
		assert.NotEqual(t, RoleWerewolf, victim.Role)
		assert.Equal(t, first, resolveOnce())
	})

	t.Run("seer inspects the current role into history", func(t *testing.T) {
		m := newTestMatch(PhaseNight)
		m, err := ApplySeerInspect(m, "seer", "wolf1")
		require.NoError(t, err)

		next, _, events := mustAdvance(t, m, cfg, m.PhaseEndsAt, false)
		seer, _ := next.PlayerByID("seer")
		require.Len(t, seer.SeerHistory, 1)
		assert.Equal(t, Inspection{Night: 1, TargetID: "wolf1", Role: RoleWerewolf}, seer.SeerHistory[0])

		var private bool
		for _, e := range events {
			if e.Type == EventNightResult && e.Visibility.Scope == ScopePlayerPrivate {
				assert.Equal(t, "seer", e.Visibility.PlayerID)
				p := e.Payload.(NightResultPayload)
				assert.Equal(t, "wolf1", p.InspectedID)
				assert.Equal(t, RoleWerewolf, p.InspectedRole)
				private = true
			}
		}
		assert.True(t, private, "inspection result must be seer-private")
	})

	t.Run("missed-response threshold eliminates in the same pass", func(t *testing.T) {
		m := newTestMatch(PhaseNight)
		for i := range m.Players {
			if m.Players[i].ID == "cleo" {
				m.Players[i].MissedResponses = cfg.MissedResponseThreshold
			}
		}
		m, err := ApplyWolfKill(m, "wolf1", "ana")
		require.NoError(t, err)
		m, err = ApplyWolfKill(m, "wolf2", "ana")
		require.NoError(t, err)

		next, res, _ := mustAdvance(t, m, cfg, m.PhaseEndsAt, false)
		assert.Equal(t, []string{"ana"}, res.Outcome.Died)
		assert.Equal(t, []string{"cleo"}, res.Outcome.TimedOut)
		assert.Equal(t, m.PlayersAlive-2, next.PlayersAlive)
	})

	t.Run("timeout coinciding with the kill target reports both, dies once", func(t *testing.T) {
		m := newTestMatch(PhaseNight)
		for i := range m.Players {
			if m.Players[i].ID == "ana" {
				m.Players[i].MissedResponses = cfg.MissedResponseThreshold
			}
		}
		m, err := ApplyWolfKill(m, "wolf1", "ana")
		require.NoError(t, err)
		m, err = ApplyWolfKill(m, "wolf2", "ana")
		require.NoError(t, err)

		next, res, _ := mustAdvance(t, m, cfg, m.PhaseEndsAt, false)
		assert.Equal(t, []string{"ana"}, res.Outcome.Died)
		assert.Equal(t, []string{"ana"}, res.Outcome.TimedOut)
		assert.Equal(t, m.PlayersAlive-1, next.PlayersAlive)
	})

	t.Run("night scratch cleared after resolution", func(t *testing.T) {
		m := newTestMatch(PhaseNight)
		m, err := ApplyWolfKill(m, "wolf1", "ana")
		require.NoError(t, err)
		m, err = ApplySeerInspect(m, "seer", "ben")
		require.NoError(t, err)
		m, err = ApplyDoctorProtect(m, "doctor", "cleo")
		require.NoError(t, err)

		next, _, _ := mustAdvance(t, m, cfg, m.PhaseEndsAt, false)
		for _, p := range next.Players {
			assert.Equal(t, NightAction{}, p.Night, "player %s scratch not cleared", p.ID)
		}
		doc, _ := next.PlayerByID("doctor")
		assert.Equal(t, "cleo", doc.DoctorLastProtectedID)
	})

	t.Run("alive counter invariant holds after resolution", func(t *testing.T) {
		m := newTestMatch(PhaseNight)
		next, _, _ := mustAdvance(t, m, cfg, m.PhaseEndsAt, false)
		n := 0
		for _, p := range next.Players {
			if p.Alive {
				n++
			}
		}
		assert.Equal(t, n, next.PlayersAlive)
	})
}

func TestApplyWolfChat(t *testing.T) {
	cfg := testCfg()
	m := newTestMatch(PhaseNight)

	t.Run("villager may not use the wolf channel", func(t *testing.T) {
		_, err := ApplyWolfChat(m, cfg, "ana", "hello", testStart)
		assert.ErrorIs(t, err, ErrActorWrongRole)
	})

	t.Run("cooldown window applies", func(t *testing.T) {
		m2, err := ApplyWolfChat(m, cfg, "wolf1", "ana tonight?", testStart)
		require.NoError(t, err)
		_, err = ApplyWolfChat(m2, cfg, "wolf1", "again", testStart.Add(cfg.WolfChatCooldown/2))
		assert.ErrorIs(t, err, ErrCooldown)
		_, err = ApplyWolfChat(m2, cfg, "wolf1", "again", testStart.Add(cfg.WolfChatCooldown))
		assert.NoError(t, err)
	})

	t.Run("day phase rejected", func(t *testing.T) {
		d := newTestMatch(PhaseDayDiscussion)
		_, err := ApplyWolfChat(d, cfg, "wolf1", "psst", testStart)
		assert.ErrorIs(t, err, ErrWrongPhase)
	})
}
