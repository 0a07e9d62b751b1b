package match

import (
	"fmt"
	"strings"
)

// Outcome carries what a phase resolution just computed, for narration and
// for follow-up scheduling. It is part of no persisted state.
type Outcome struct {
	Died               []string // night-kill victims
	Saved              bool     // doctor cancelled the kill
	TimedOut           []string // missed-response eliminations
	VoteEliminatedID   string
	VoteEliminatedRole Role
	VoteTied           bool
	Winner             Winner
	Forced             bool // match ended by the maximum-duration cutoff
}

// Narrate derives the public summary for a phase transition. It is a pure
// function of (fromPhase, toPhase, outcome) and is the only place prose is
// generated.
func Narrate(from, to Phase, outcome Outcome) string {
	switch to {
	case PhaseNight:
		return "Night falls over the village. Everyone returns to their homes."
	case PhaseDayAnnounce:
		return narrateDawn(outcome)
	case PhaseDayOpening:
		return "The village gathers in the square. Each survivor may make an opening statement."
	case PhaseDayDiscussion:
		return "The discussion is open. Speak freely, and choose your words with care."
	case PhaseDayVote:
		return "The time for talk is over. The village votes on who to banish."
	case PhaseDayResolution:
		return narrateVerdict(outcome)
	case PhaseEnded:
		return narrateEnd(outcome)
	}
	return ""
}

func narrateDawn(outcome Outcome) string {
	var parts []string
	switch {
	case len(outcome.Died) == 0 && outcome.Saved:
		parts = append(parts, "No one died overnight. A life was saved.")
	case len(outcome.Died) == 0:
		parts = append(parts, "No one died overnight.")
	default:
		parts = append(parts, fmt.Sprintf("Dawn breaks. The village finds %s dead.", joinIDs(outcome.Died)))
	}
	if len(outcome.TimedOut) > 0 {
		parts = append(parts, fmt.Sprintf("%s fell silent and left the village.", joinIDs(outcome.TimedOut)))
	}
	return strings.Join(parts, " ")
}

func narrateVerdict(outcome Outcome) string {
	if outcome.VoteEliminatedID != "" {
		return fmt.Sprintf("The village has banished %s. They were a %s.",
			outcome.VoteEliminatedID, outcome.VoteEliminatedRole)
	}
	if outcome.VoteTied {
		return "The vote was tied. No one was banished."
	}
	return "No votes were cast. No one was banished."
}

func narrateEnd(outcome Outcome) string {
	prefix := ""
	if outcome.Forced {
		prefix = "The match has reached its time limit. "
	}
	switch outcome.Winner {
	case WinnerVillagers:
		return prefix + "The last werewolf is gone. The villagers win."
	case WinnerWerewolves:
		return prefix + "The werewolves have taken the village. The werewolves win."
	}
	return prefix + "The match is over."
}

func joinIDs(ids []string) string {
	switch len(ids) {
	case 0:
		return ""
	case 1:
		return ids[0]
	}
	return strings.Join(ids[:len(ids)-1], ", ") + " and " + ids[len(ids)-1]
}
