package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nightcouncil/werewolf-server/internal/agent"
	"github.com/nightcouncil/werewolf-server/internal/match"
	"github.com/nightcouncil/werewolf-server/internal/repository"
	"github.com/nightcouncil/werewolf-server/internal/scheduler"
)

// roundResult is one player's settled outcome of the fan-out: a raw reply,
// or a failure that will be charged as a missed response.
type roundResult struct {
	playerID string
	action   match.RequiredAction
	reply    string
	err      error
}

// handleRound runs one agent round: reserve the round key, prompt every
// player who owes an action, wait for all calls to settle, then commit the
// replies in one fenced write. Duplicate deliveries lose the reservation;
// stale deliveries lose the phase fence.
func (e *Engine) handleRound(ctx context.Context, job scheduler.Job) {
	key := repository.RoundKey{
		MatchID:        job.MatchID,
		Phase:          job.Phase,
		PhaseStartedAt: job.PhaseStartedAt,
		RoundIndex:     job.RoundIndex,
	}
	reserved, err := e.store.ReserveRound(ctx, key)
	if err != nil {
		e.log.Error("round reservation failed", zap.String("match_id", job.MatchID), zap.Error(err))
		return
	}
	if !reserved {
		e.log.Debug("round already taken",
			zap.String("match_id", job.MatchID),
			zap.String("phase", string(job.Phase)),
			zap.Int("round", job.RoundIndex),
		)
		return
	}

	m, err := e.store.LoadMatch(ctx, job.MatchID)
	if err != nil {
		e.log.Warn("round load failed", zap.String("match_id", job.MatchID), zap.Error(err))
		return
	}
	if m.Phase != job.Phase || !m.PhaseStartedAt.Equal(job.PhaseStartedAt) {
		return
	}

	finalRound := job.Phase == match.PhaseNight && job.RoundIndex == e.cfg.Match.Rounds(match.PhaseNight)-1
	results := e.fanOut(ctx, m, finalRound)
	if len(results) == 0 {
		return
	}
	e.commitRound(ctx, job, finalRound, results)
}

// fanOut prompts every living player who owes an unsubmitted action in this
// round, at most cfg.Workers concurrently. Every call settles; a slow or
// failing agent costs only its own seat.
func (e *Engine) fanOut(ctx context.Context, m match.Match, finalRound bool) []*roundResult {
	events, err := e.store.ListEvents(ctx, m.ID, 0, 0)
	if err != nil {
		e.log.Warn("round event fetch failed", zap.String("match_id", m.ID), zap.Error(err))
		events = nil
	}

	var results []*roundResult
	for _, p := range m.AlivePlayers() {
		ra, err := match.RequiredActionFor(m, p.ID, finalRound)
		if err != nil {
			e.log.Error("required action derivation failed", zap.String("player_id", p.ID), zap.Error(err))
			continue
		}
		if ra.Type == match.ActionNone || ra.Type == match.ActionReady || ra.Submitted {
			continue
		}
		// Targeted night picks are collected on the final round only, so a
		// silent seat is charged one miss per night, not one per round.
		if !finalRound && (ra.Type == match.ActionSeerInspect || ra.Type == match.ActionDoctorProtect) {
			continue
		}
		results = append(results, &roundResult{playerID: p.ID, action: ra})
	}
	if len(results) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for _, r := range results {
		r := r
		visible := visibleEvents(m, events, r.playerID, e.cfg.RecentEventWindow)
		prompt := agent.Prompt{
			Text:           BuildPrompt(m, r.playerID, r.action, visible),
			SenderID:       r.playerID,
			ConversationID: m.ID + ":" + r.playerID,
			Timeout:        e.cfg.CallTimeout,
		}
		g.Go(func() error {
			callCtx := gctx
			if e.cfg.CallTimeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(gctx, e.cfg.CallTimeout)
				defer cancel()
			}
			r.reply, r.err = e.gw.Send(callCtx, prompt)
			return nil
		})
	}
	// Goroutines only record; the group never carries an error.
	_ = g.Wait()
	return results
}

// commitRound folds the settled replies into one fenced write. The snapshot
// is re-loaded first so replies validate against whatever state the match
// reached while the agents were thinking.
func (e *Engine) commitRound(ctx context.Context, job scheduler.Job, finalRound bool, results []*roundResult) {
	for attempt := 0; attempt < writeAttempts; attempt++ {
		now := e.now()
		cur, err := e.store.LoadMatch(ctx, job.MatchID)
		if err != nil {
			e.log.Warn("round commit load failed", zap.String("match_id", job.MatchID), zap.Error(err))
			return
		}
		if cur.Phase != job.Phase || !cur.PhaseStartedAt.Equal(job.PhaseStartedAt) {
			return
		}

		next := cur
		var events []match.Event
		for _, r := range results {
			applied, evs, err := e.applyReply(next, r, now)
			if err != nil {
				// The seat failed to produce a usable action this round:
				// charge a miss and, on chat channels, speak a pass line so
				// the table sees the silence.
				e.log.Debug("round reply unusable",
					zap.String("match_id", job.MatchID),
					zap.String("player_id", r.playerID),
					zap.Error(err),
				)
				missed, merr := match.ApplyMissedResponse(next, r.playerID)
				if merr != nil {
					continue
				}
				next = missed
				if ev, ok := passLine(next, r, now); ok {
					events = append(events, ev)
				}
				continue
			}
			next = applied
			events = append(events, evs...)
		}

		if err := e.store.WriteMatch(ctx, cur, next); err != nil {
			if errors.Is(err, repository.ErrStale) {
				continue
			}
			e.log.Error("round commit write failed", zap.String("match_id", job.MatchID), zap.Error(err))
			return
		}
		if err := e.appendAndPublish(ctx, next.ID, events); err != nil {
			e.log.Error("round commit append failed", zap.String("match_id", job.MatchID), zap.Error(err))
			return
		}
		e.maybeAdvanceEarly(next)
		return
	}
}

// applyReply parses and applies one settled reply against the snapshot.
func (e *Engine) applyReply(m match.Match, r *roundResult, now time.Time) (match.Match, []match.Event, error) {
	if r.err != nil {
		return m, nil, r.err
	}
	cmd, err := parseReply(r.reply, r.action)
	if errors.Is(err, errProseReply) {
		return m, degradeToChat(m, r, now), nil
	}
	if err != nil {
		return m, nil, err
	}

	switch r.action.Type {
	case match.ActionWolfChat:
		next, err := match.ApplyWolfChat(m, e.cfg.Match, r.playerID, cmd.Text, now)
		if err != nil {
			return m, nil, err
		}
		ev := match.NewEvent(m.ID, match.EventWolfChatMessage, match.WolvesVisibility(), now, match.WolfChatPayload{
			PlayerID: r.playerID,
			Text:     cmd.Text,
		})
		return next, []match.Event{ev}, nil
	case match.ActionWolfKill:
		next, err := match.ApplyWolfKill(m, r.playerID, cmd.Target)
		return next, nil, err
	case match.ActionSeerInspect:
		next, err := match.ApplySeerInspect(m, r.playerID, cmd.Target)
		return next, nil, err
	case match.ActionDoctorProtect:
		next, err := match.ApplyDoctorProtect(m, r.playerID, cmd.Target)
		return next, nil, err
	case match.ActionOpeningStatement:
		next, err := match.ApplyPublicMessage(m, e.cfg.Match, r.playerID, cmd.Text, match.KindOpening, now)
		if err != nil {
			return m, nil, err
		}
		ev := match.NewEvent(m.ID, match.EventPublicMessage, match.PublicVisibility(), now, match.PublicMessagePayload{
			PlayerID: r.playerID,
			Text:     cmd.Text,
			Kind:     match.KindOpening,
		})
		return next, []match.Event{ev}, nil
	case match.ActionDiscussion:
		next, err := match.ApplyPublicMessage(m, e.cfg.Match, r.playerID, cmd.Text, match.KindDiscussion, now)
		if err != nil {
			return m, nil, err
		}
		ev := match.NewEvent(m.ID, match.EventPublicMessage, match.PublicVisibility(), now, match.PublicMessagePayload{
			PlayerID: r.playerID,
			Text:     cmd.Text,
			Kind:     match.KindDiscussion,
			ReplyTo:  cmd.ReplyTo,
		})
		return next, []match.Event{ev}, nil
	case match.ActionVote:
		next, err := match.ApplyVote(m, r.playerID, cmd.Target, cmd.Abstain)
		if err != nil {
			return m, nil, err
		}
		ev := match.NewEvent(m.ID, match.EventVoteCast, match.PublicVisibility(), now, match.VoteCastPayload{
			VoterID:  r.playerID,
			TargetID: cmd.Target,
			Abstain:  cmd.Abstain,
			Reason:   cmd.Reason,
		})
		return next, []match.Event{ev}, nil
	}
	return m, nil, errUnusableReply
}

// degradeToChat carries a prose reply on a targeted round into the chat
// channel that fits the phase and role, as transcript only: no state
// change, no miss. The seer and the doctor have no channel at night, so
// their lines are dropped.
func degradeToChat(m match.Match, r *roundResult, now time.Time) []match.Event {
	text := stripFences(r.reply)
	switch r.action.Type {
	case match.ActionVote:
		return []match.Event{match.NewEvent(m.ID, match.EventPublicMessage, match.PublicVisibility(), now, match.PublicMessagePayload{
			PlayerID: r.playerID,
			Text:     text,
			Kind:     match.KindDiscussion,
		})}
	case match.ActionWolfKill:
		return []match.Event{match.NewEvent(m.ID, match.EventWolfChatMessage, match.WolvesVisibility(), now, match.WolfChatPayload{
			PlayerID: r.playerID,
			Text:     text,
		})}
	}
	return nil
}

// passLine synthesizes the silence of an unresponsive player on the chat
// channels, so transcripts stay readable. Targeted actions get no line;
// their absence surfaces through resolution.
func passLine(m match.Match, r *roundResult, now time.Time) (match.Event, bool) {
	switch r.action.Type {
	case match.ActionWolfChat:
		return match.NewEvent(m.ID, match.EventWolfChatMessage, match.WolvesVisibility(), now, match.WolfChatPayload{
			PlayerID:    r.playerID,
			Text:        "(says nothing)",
			Synthesized: true,
		}), true
	case match.ActionOpeningStatement:
		return match.NewEvent(m.ID, match.EventPublicMessage, match.PublicVisibility(), now, match.PublicMessagePayload{
			PlayerID:    r.playerID,
			Text:        "(remains silent)",
			Kind:        match.KindOpening,
			Synthesized: true,
		}), true
	case match.ActionDiscussion:
		return match.NewEvent(m.ID, match.EventPublicMessage, match.PublicVisibility(), now, match.PublicMessagePayload{
			PlayerID:    r.playerID,
			Text:        "(remains silent)",
			Kind:        match.KindDiscussion,
			Synthesized: true,
		}), true
	}
	return match.Event{}, false
}

// visibleEvents returns the newest window of events the viewer may read, in
// log order.
func visibleEvents(m match.Match, events []match.Event, viewerID string, window int) []match.Event {
	var out []match.Event
	for _, ev := range events {
		if ev.VisibleTo(m, viewerID) {
			out = append(out, ev)
		}
	}
	if window > 0 && len(out) > window {
		out = out[len(out)-window:]
	}
	return out
}
