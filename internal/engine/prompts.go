package engine

import (
	"fmt"
	"strings"

	"github.com/nightcouncil/werewolf-server/internal/match"
)

// BuildPrompt renders the full text prompt for one player's turn: their
// private briefing, the table state, the transcript slice they are allowed
// to see, and the reply contract for the action they owe. It is a pure
// function of its inputs so the same state always produces the same prompt.
func BuildPrompt(m match.Match, playerID string, ra match.RequiredAction, events []match.Event) string {
	var b strings.Builder
	p, _ := m.PlayerByID(playerID)

	fmt.Fprintf(&b, "You are %s, playing a game of Werewolf.\n", displayName(m, playerID))
	fmt.Fprintf(&b, "Your secret role: %s.\n", roleBriefing(m, p))
	fmt.Fprintf(&b, "\nIt is %s (day %d, night %d).\n", phaseLabel(m.Phase), m.DayNumber, m.NightNumber)

	b.WriteString("Players at the table:\n")
	for _, q := range m.Players {
		status := "alive"
		if !q.Alive {
			status = "eliminated"
			if q.RevealedRole != "" {
				status = fmt.Sprintf("eliminated, was %s", strings.ToLower(string(q.RevealedRole)))
			}
		}
		fmt.Fprintf(&b, "  seat %d: %s (%s)\n", q.Seat, q.DisplayName, status)
	}

	if len(events) > 0 {
		b.WriteString("\nWhat you have seen so far:\n")
		for _, ev := range events {
			if line := renderEvent(m, ev); line != "" {
				b.WriteString("  " + line + "\n")
			}
		}
	}

	b.WriteString("\n" + instruction(ra))
	return b.String()
}

func displayName(m match.Match, id string) string {
	if p, ok := m.PlayerByID(id); ok && p.DisplayName != "" {
		return p.DisplayName
	}
	return id
}

func roleBriefing(m match.Match, p match.Player) string {
	switch p.Role {
	case match.RoleWerewolf:
		var packmates []string
		for _, q := range m.Players {
			if q.Role == match.RoleWerewolf && q.ID != p.ID {
				packmates = append(packmates, q.DisplayName)
			}
		}
		return fmt.Sprintf("WEREWOLF. Your packmate is %s. Each night the pack kills one villager; by day you must blend in", strings.Join(packmates, ", "))
	case match.RoleSeer:
		return "SEER. Each night you learn one player's true role. Use it carefully; revealing yourself makes you a target"
	case match.RoleDoctor:
		return "DOCTOR. Each night you protect one player from the wolves, never the same player twice in a row"
	default:
		return "VILLAGER. You have no special power; find the wolves by daylight reasoning and vote them out"
	}
}

func phaseLabel(p match.Phase) string {
	switch p {
	case match.PhaseNight:
		return "night"
	case match.PhaseDayAnnounce:
		return "dawn"
	case match.PhaseDayOpening:
		return "the opening statements"
	case match.PhaseDayDiscussion:
		return "the open discussion"
	case match.PhaseDayVote:
		return "the vote"
	case match.PhaseDayResolution:
		return "the verdict"
	case match.PhaseEnded:
		return "the end of the game"
	}
	return strings.ToLower(string(p))
}

// renderEvent turns one log entry into a transcript line. Events with no
// conversational surface render empty and are skipped.
func renderEvent(m match.Match, ev match.Event) string {
	switch p := ev.Payload.(type) {
	case match.PublicMessagePayload:
		return fmt.Sprintf("%s: %q", displayName(m, p.PlayerID), p.Text)
	case match.WolfChatPayload:
		return fmt.Sprintf("[wolf den] %s: %q", displayName(m, p.PlayerID), p.Text)
	case match.VoteCastPayload:
		if p.Abstain {
			return fmt.Sprintf("%s abstained from voting", displayName(m, p.VoterID))
		}
		line := fmt.Sprintf("%s voted against %s", displayName(m, p.VoterID), displayName(m, p.TargetID))
		if p.Reason != "" {
			line += fmt.Sprintf(" (%q)", p.Reason)
		}
		return line
	case match.NarratorPayload:
		return "[narrator] " + p.Text
	case match.NightResultPayload:
		if p.InspectedID != "" {
			return fmt.Sprintf("[your vision] %s is a %s", displayName(m, p.InspectedID), strings.ToLower(string(p.InspectedRole)))
		}
		return ""
	case match.GameEndedPayload:
		return fmt.Sprintf("[narrator] The game is over. The %s win.", strings.ToLower(string(p.Winner)))
	}
	return ""
}

// instruction states the reply contract for the owed action. Every targeted
// action demands strict JSON; the chat actions tolerate a bare line.
func instruction(ra match.RequiredAction) string {
	targets := func() string {
		names := make([]string, 0, len(ra.TargetIDs))
		for _, id := range ra.TargetIDs {
			names = append(names, fmt.Sprintf("%q", id))
		}
		return strings.Join(names, ", ")
	}

	switch ra.Type {
	case match.ActionWolfChat:
		return "Talk to your pack about tonight's target. Reply with JSON: {\"action\":\"WOLF_CHAT\",\"text\":\"...\"}"
	case match.ActionWolfKill:
		return fmt.Sprintf("Choose tonight's kill. Valid targets: %s. Reply with JSON: {\"action\":\"WOLF_KILL\",\"target\":\"<player id>\"}", targets())
	case match.ActionSeerInspect:
		return fmt.Sprintf("Choose a player to inspect tonight. Valid targets: %s. Reply with JSON: {\"action\":\"SEER_INSPECT\",\"target\":\"<player id>\"}", targets())
	case match.ActionDoctorProtect:
		return fmt.Sprintf("Choose a player to protect tonight. Valid targets: %s. Reply with JSON: {\"action\":\"DOCTOR_PROTECT\",\"target\":\"<player id>\"}", targets())
	case match.ActionOpeningStatement:
		return "Give your opening statement for the day. Reply with JSON: {\"action\":\"OPENING_STATEMENT\",\"text\":\"...\"}"
	case match.ActionDiscussion:
		return "Join the discussion. Reply with JSON: {\"action\":\"DISCUSSION\",\"text\":\"...\",\"replyTo\":\"<event id, optional>\"}"
	case match.ActionVote:
		return fmt.Sprintf("Cast your vote. Valid targets: %s. Reply with JSON: {\"action\":\"VOTE\",\"target\":\"<player id>\",\"reason\":\"...\"} or {\"action\":\"VOTE\",\"abstain\":true}", targets())
	}
	return "Reply with a short acknowledgement."
}
