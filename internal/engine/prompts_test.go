package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightcouncil/werewolf-server/internal/match"
)

func promptMatch(t *testing.T) match.Match {
	t.Helper()
	m, _, err := match.NewMatch("m-1", testRoster(), "seed-1", match.DefaultConfig(), testStart)
	require.NoError(t, err)
	m.Phase = match.PhaseDayVote
	m.DayNumber = 1
	return m
}

func TestBuildPromptForVote(t *testing.T) {
	m := promptMatch(t)
	villager := findByRole(t, m, match.RoleVillager)
	ra, err := match.RequiredActionFor(m, villager.ID, false)
	require.NoError(t, err)

	prompt := BuildPrompt(m, villager.ID, ra, nil)
	assert.Contains(t, prompt, "VILLAGER")
	assert.Contains(t, prompt, "the vote")
	assert.Contains(t, prompt, `"action":"VOTE"`)
	for _, id := range ra.TargetIDs {
		assert.Contains(t, prompt, id)
	}
	assert.NotContains(t, prompt, villager.ID+`", "`+villager.ID, "self must not be offered")
}

func TestBuildPromptWolfBriefingNamesPackmate(t *testing.T) {
	m := promptMatch(t)
	m.Phase = match.PhaseNight

	var wolves []match.Player
	for _, p := range m.Players {
		if p.Role == match.RoleWerewolf {
			wolves = append(wolves, p)
		}
	}
	require.Len(t, wolves, 2)

	ra, err := match.RequiredActionFor(m, wolves[0].ID, true)
	require.NoError(t, err)
	prompt := BuildPrompt(m, wolves[0].ID, ra, nil)
	assert.Contains(t, prompt, "WEREWOLF")
	assert.Contains(t, prompt, wolves[1].DisplayName)
	assert.Contains(t, prompt, `"action":"WOLF_KILL"`)
}

func TestBuildPromptRendersTranscript(t *testing.T) {
	m := promptMatch(t)
	events := []match.Event{
		match.NewEvent(m.ID, match.EventNarrator, match.PublicVisibility(), testStart, match.NarratorPayload{
			Text: "Dawn breaks over the village.",
		}),
		match.NewEvent(m.ID, match.EventPublicMessage, match.PublicVisibility(), testStart.Add(time.Minute), match.PublicMessagePayload{
			PlayerID: "p2",
			Text:     "I was home all night.",
			Kind:     match.KindOpening,
		}),
		match.NewEvent(m.ID, match.EventVoteCast, match.PublicVisibility(), testStart.Add(2*time.Minute), match.VoteCastPayload{
			VoterID:  "p3",
			TargetID: "p2",
			Reason:   "alibi too neat",
		}),
	}

	ra := match.RequiredAction{Type: match.ActionVote, TargetIDs: []string{"p2"}}
	prompt := BuildPrompt(m, "p4", ra, events)
	assert.Contains(t, prompt, "Dawn breaks over the village.")
	assert.Contains(t, prompt, "I was home all night.")
	assert.Contains(t, prompt, "voted against")
	assert.Contains(t, prompt, "alibi too neat")
}

func TestBuildPromptIsDeterministic(t *testing.T) {
	m := promptMatch(t)
	ra := match.RequiredAction{Type: match.ActionVote, TargetIDs: []string{"p2", "p3"}}
	a := BuildPrompt(m, "p4", ra, nil)
	b := BuildPrompt(m, "p4", ra, nil)
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "You are "))
}
