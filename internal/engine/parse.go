package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nightcouncil/werewolf-server/internal/match"
)

// errUnusableReply marks a reply that could not be turned into the action
// the round asked for. It is charged as a missed response.
var errUnusableReply = errors.New("reply did not produce a usable action")

// errProseReply marks plain prose where a targeted action needed JSON. The
// round degrades it to a chat line instead of charging a miss.
var errProseReply = fmt.Errorf("%w: not valid JSON", errUnusableReply)

// agentReply is the JSON shape agents are instructed to answer with.
type agentReply struct {
	Action  string `json:"action"`
	Target  string `json:"target,omitempty"`
	Text    string `json:"text,omitempty"`
	Abstain bool   `json:"abstain,omitempty"`
	Reason  string `json:"reason,omitempty"`
	ReplyTo string `json:"replyTo,omitempty"`
}

// parseReply decodes a raw agent reply against the action the round asked
// for. JSON is the contract; for the pure-chat actions a non-JSON reply is
// accepted verbatim as the message text, because models drift and a spoken
// line is still a valid move there.
func parseReply(raw string, ra match.RequiredAction) (agentReply, error) {
	text := stripFences(raw)
	if strings.TrimSpace(text) == "" {
		return agentReply{}, errUnusableReply
	}

	var cmd agentReply
	if err := json.Unmarshal([]byte(text), &cmd); err != nil {
		if isChatAction(ra.Type) {
			return agentReply{Action: string(ra.Type), Text: text}, nil
		}
		return agentReply{}, errProseReply
	}

	if cmd.Action == "" {
		cmd.Action = string(ra.Type)
	}
	if cmd.Action != string(ra.Type) {
		return agentReply{}, fmt.Errorf("%w: action %q, expected %q", errUnusableReply, cmd.Action, ra.Type)
	}

	if isChatAction(ra.Type) {
		if strings.TrimSpace(cmd.Text) == "" {
			return agentReply{}, fmt.Errorf("%w: empty text", errUnusableReply)
		}
		return cmd, nil
	}

	// Targeted actions: the target must be one the action offered, except an
	// explicit vote abstention which carries none.
	if ra.Type == match.ActionVote && cmd.Abstain {
		cmd.Target = ""
		return cmd, nil
	}
	if cmd.Target == "" {
		return agentReply{}, fmt.Errorf("%w: missing target", errUnusableReply)
	}
	for _, id := range ra.TargetIDs {
		if id == cmd.Target {
			return cmd, nil
		}
	}
	return agentReply{}, fmt.Errorf("%w: target %q not offered", errUnusableReply, cmd.Target)
}

func isChatAction(t match.ActionType) bool {
	switch t {
	case match.ActionWolfChat, match.ActionOpeningStatement, match.ActionDiscussion:
		return true
	}
	return false
}

// stripFences unwraps a markdown code fence if the whole reply is one.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		// Drop a language tag like ```json.
		if !strings.ContainsAny(s[:i], "{}\"") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
