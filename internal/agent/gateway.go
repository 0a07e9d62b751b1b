// Package agent provides the external per-player agent gateway: a text
// prompt in, a text reply out. Failures of any kind are the caller's cue to
// treat the player as unresponsive; nothing here is fatal to a round.
package agent

import (
	"context"
	"time"
)

// Prompt is one request to a player's agent.
type Prompt struct {
	Text           string
	SenderID       string // player the agent acts for
	ConversationID string // stable per (match, player) so the agent keeps context
	Timeout        time.Duration
}

// Gateway turns a prompt into a text reply. Implementations must honor the
// prompt timeout and the context, and should return an error rather than
// block past either.
type Gateway interface {
	Send(ctx context.Context, prompt Prompt) (string, error)
}
