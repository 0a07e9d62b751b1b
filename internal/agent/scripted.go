package agent

import (
	"context"
	"errors"
	"sync"
)

// ErrNoReply is what the scripted gateway returns for players with no
// scripted response, simulating an unresponsive agent.
var ErrNoReply = errors.New("no scripted reply")

// ScriptedGateway serves canned replies keyed by sender id, for tests and
// local play without an LLM. Replies are consumed in order; an exhausted or
// missing script yields ErrNoReply.
type ScriptedGateway struct {
	mu      sync.Mutex
	replies map[string][]string
	calls   []Prompt
}

// NewScriptedGateway creates an empty scripted gateway.
func NewScriptedGateway() *ScriptedGateway {
	return &ScriptedGateway{replies: make(map[string][]string)}
}

// Script queues replies for a sender.
func (g *ScriptedGateway) Script(senderID string, replies ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replies[senderID] = append(g.replies[senderID], replies...)
}

// Calls returns every prompt seen so far.
func (g *ScriptedGateway) Calls() []Prompt {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Prompt(nil), g.calls...)
}

func (g *ScriptedGateway) Send(ctx context.Context, prompt Prompt) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, prompt)
	queue := g.replies[prompt.SenderID]
	if len(queue) == 0 {
		return "", ErrNoReply
	}
	reply := queue[0]
	g.replies[prompt.SenderID] = queue[1:]
	return reply, nil
}
