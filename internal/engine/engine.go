// Package engine coordinates the pure match rules with the store, the
// scheduler and the agent gateway. Commands go through the idempotency
// guard and a fenced optimistic write; phase advancement and agent rounds
// arrive as scheduled jobs that self-reject when stale.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nightcouncil/werewolf-server/internal/agent"
	"github.com/nightcouncil/werewolf-server/internal/match"
	"github.com/nightcouncil/werewolf-server/internal/repository"
	"github.com/nightcouncil/werewolf-server/internal/scheduler"
)

// writeAttempts bounds the reload-and-retry loop a command takes when its
// fenced write loses a race against a phase advance.
const writeAttempts = 3

// Config holds the engine tunables beyond the pure rule set.
type Config struct {
	Match match.Config
	// Workers bounds the concurrent agent calls per round.
	Workers int
	// CallTimeout caps one agent call.
	CallTimeout time.Duration
	// RecentEventWindow is how many visible events a prompt includes.
	RecentEventWindow int
}

// EventSink receives stored events after every append, for live push.
type EventSink func(matchID string, events []match.Event)

// Engine is the orchestrating service. All methods are safe for concurrent
// use.
type Engine struct {
	store repository.Store
	sched scheduler.Scheduler
	gw    agent.Gateway
	cfg   Config
	log   *zap.Logger
	idem  *idemGuard
	sink  EventSink

	// now is swappable for tests.
	now func() time.Time
}

// New creates an engine. The scheduler's handler must be wired to
// HandleJob by the caller (the scheduler needs the engine and vice versa).
func New(store repository.Store, sched scheduler.Scheduler, gw agent.Gateway, cfg Config, logger *zap.Logger) *Engine {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.RecentEventWindow < 1 {
		cfg.RecentEventWindow = 40
	}
	return &Engine{
		store: store,
		sched: sched,
		gw:    gw,
		cfg:   cfg,
		log:   logger,
		idem:  newIdemGuard(store),
		// Truncated to the precision TIMESTAMPTZ preserves, so fence
		// comparisons survive a store round trip.
		now: func() time.Time { return time.Now().Truncate(time.Microsecond) },
	}
}

// SetEventSink wires a live-push consumer for stored events.
func (e *Engine) SetEventSink(sink EventSink) { e.sink = sink }

// SetScheduler wires the scheduler after construction. The engine and the
// scheduler reference each other, so one side has to be attached late.
func (e *Engine) SetScheduler(s scheduler.Scheduler) { e.sched = s }

// HandleJob dispatches a scheduled job to its handler. It is the single
// scheduler entry point.
func (e *Engine) HandleJob(ctx context.Context, job scheduler.Job) {
	switch job.Kind {
	case scheduler.JobAdvance:
		e.handleAdvance(ctx, job)
	case scheduler.JobRound:
		e.handleRound(ctx, job)
	default:
		e.log.Error("unknown job kind", zap.String("kind", string(job.Kind)))
	}
}

// Submission is the client-facing outcome of an accepted command. Replayed
// marks an idempotent replay of a previously applied submission.
type Submission struct {
	EventID  string
	Detail   string
	Replayed bool
}

// CreateMatch creates a match from an 8-player roster and schedules the
// lobby timeout. The seed drives the deterministic role shuffle.
func (e *Engine) CreateMatch(ctx context.Context, roster []match.Roster, seed string) (match.Match, error) {
	now := e.now()
	if seed == "" {
		seed = uuid.NewString()
	}
	m, events, err := match.NewMatch(uuid.NewString(), roster, seed, e.cfg.Match, now)
	if err != nil {
		return match.Match{}, err
	}
	if err := e.store.CreateMatch(ctx, m); err != nil {
		return match.Match{}, fmt.Errorf("create match: %w", err)
	}
	if err := e.appendAndPublish(ctx, m.ID, events); err != nil {
		return match.Match{}, err
	}
	e.scheduleAdvance(m)
	e.log.Info("match created",
		zap.String("match_id", m.ID),
		zap.Int("players", len(m.Players)),
	)
	return m, nil
}

// Ready marks a lobby player ready. When the last living player readies up
// the lobby advances without waiting for its timeout.
func (e *Engine) Ready(ctx context.Context, matchID, playerID, idemKey string) (Submission, error) {
	key := repository.CommandKey{Scope: "ready", Key: idemKey, PlayerID: playerID, MatchID: matchID}
	return e.idem.run(ctx, key, func() (Submission, error) {
		return e.applyCommand(ctx, matchID, func(m match.Match, now time.Time) (match.Match, []match.Event, string, error) {
			next, err := match.ApplyReady(m, playerID)
			return next, nil, "ready", err
		})
	})
}

// SayPublic posts an opening statement or discussion message.
func (e *Engine) SayPublic(ctx context.Context, matchID, playerID, text string, kind match.MessageKind, replyTo, idemKey string) (Submission, error) {
	key := repository.CommandKey{Scope: "say:" + string(kind), Key: idemKey, PlayerID: playerID, MatchID: matchID}
	return e.idem.run(ctx, key, func() (Submission, error) {
		return e.applyCommand(ctx, matchID, func(m match.Match, now time.Time) (match.Match, []match.Event, string, error) {
			next, err := match.ApplyPublicMessage(m, e.cfg.Match, playerID, text, kind, now)
			if err != nil {
				return m, nil, "", err
			}
			ev := match.NewEvent(matchID, match.EventPublicMessage, match.PublicVisibility(), now, match.PublicMessagePayload{
				PlayerID: playerID,
				Text:     text,
				Kind:     kind,
				ReplyTo:  replyTo,
			})
			return next, []match.Event{ev}, "message posted", nil
		})
	})
}

// WolfChat posts a message to the werewolf night channel.
func (e *Engine) WolfChat(ctx context.Context, matchID, playerID, text, idemKey string) (Submission, error) {
	key := repository.CommandKey{Scope: "wolfchat", Key: idemKey, PlayerID: playerID, MatchID: matchID}
	return e.idem.run(ctx, key, func() (Submission, error) {
		return e.applyCommand(ctx, matchID, func(m match.Match, now time.Time) (match.Match, []match.Event, string, error) {
			next, err := match.ApplyWolfChat(m, e.cfg.Match, playerID, text, now)
			if err != nil {
				return m, nil, "", err
			}
			ev := match.NewEvent(matchID, match.EventWolfChatMessage, match.WolvesVisibility(), now, match.WolfChatPayload{
				PlayerID: playerID,
				Text:     text,
			})
			return next, []match.Event{ev}, "wolf chat posted", nil
		})
	})
}

// CastVote records a day vote or an explicit abstention. Once every living
// player has voted the phase resolves early.
func (e *Engine) CastVote(ctx context.Context, matchID, playerID, targetID string, abstain bool, reason, idemKey string) (Submission, error) {
	key := repository.CommandKey{Scope: "vote", Key: idemKey, PlayerID: playerID, MatchID: matchID}
	return e.idem.run(ctx, key, func() (Submission, error) {
		return e.applyCommand(ctx, matchID, func(m match.Match, now time.Time) (match.Match, []match.Event, string, error) {
			next, err := match.ApplyVote(m, playerID, targetID, abstain)
			if err != nil {
				return m, nil, "", err
			}
			ev := match.NewEvent(matchID, match.EventVoteCast, match.PublicVisibility(), now, match.VoteCastPayload{
				VoterID:  playerID,
				TargetID: targetID,
				Abstain:  abstain,
				Reason:   reason,
			})
			return next, []match.Event{ev}, "vote recorded", nil
		})
	})
}

// NightActionKind selects which private night submission a command carries.
type NightActionKind string

const (
	NightWolfKill      NightActionKind = "WOLF_KILL"
	NightSeerInspect   NightActionKind = "SEER_INSPECT"
	NightDoctorProtect NightActionKind = "DOCTOR_PROTECT"
)

// SubmitNightAction records a role's private night submission. Night
// submissions emit no events; their consequences surface at dawn.
func (e *Engine) SubmitNightAction(ctx context.Context, matchID, playerID string, kind NightActionKind, targetID, idemKey string) (Submission, error) {
	key := repository.CommandKey{Scope: "night:" + string(kind), Key: idemKey, PlayerID: playerID, MatchID: matchID}
	return e.idem.run(ctx, key, func() (Submission, error) {
		return e.applyCommand(ctx, matchID, func(m match.Match, now time.Time) (match.Match, []match.Event, string, error) {
			var (
				next match.Match
				err  error
			)
			switch kind {
			case NightWolfKill:
				next, err = match.ApplyWolfKill(m, playerID, targetID)
			case NightSeerInspect:
				next, err = match.ApplySeerInspect(m, playerID, targetID)
			case NightDoctorProtect:
				next, err = match.ApplyDoctorProtect(m, playerID, targetID)
			default:
				return m, nil, "", fmt.Errorf("unknown night action %q", kind)
			}
			return next, nil, "night action recorded", err
		})
	})
}

// applyFn applies one command against a snapshot and returns the next
// snapshot, the events to append and a short human detail.
type applyFn func(m match.Match, now time.Time) (match.Match, []match.Event, string, error)

// applyCommand runs the load / pure-apply / fenced-write loop shared by all
// commands. A lost fence means a phase advance slipped in between load and
// write; the command is retried against the fresh snapshot so its
// validation reflects the current phase.
func (e *Engine) applyCommand(ctx context.Context, matchID string, fn applyFn) (Submission, error) {
	for attempt := 0; attempt < writeAttempts; attempt++ {
		now := e.now()
		m, err := e.store.LoadMatch(ctx, matchID)
		if err != nil {
			return Submission{}, err
		}
		next, events, detail, err := fn(m, now)
		if err != nil {
			return Submission{}, err
		}
		if err := e.store.WriteMatch(ctx, m, next); err != nil {
			if errors.Is(err, repository.ErrStale) {
				continue
			}
			return Submission{}, fmt.Errorf("write match: %w", err)
		}
		stored, err := e.store.AppendEvents(ctx, matchID, events)
		if err != nil {
			return Submission{}, fmt.Errorf("append events: %w", err)
		}
		e.publish(matchID, stored)

		sub := Submission{Detail: detail}
		if len(stored) > 0 {
			sub.EventID = stored[0].ID
		}
		e.maybeAdvanceEarly(next)
		return sub, nil
	}
	return Submission{}, repository.ErrStale
}

// maybeAdvanceEarly schedules a zero-delay advance when the snapshot's
// early-advance predicate holds, fenced to the snapshot's phase window.
func (e *Engine) maybeAdvanceEarly(m match.Match) {
	_, res, _, err := match.Advance(m, e.cfg.Match, e.now(), true)
	if err != nil || !res.Advanced {
		return
	}
	e.sched.Schedule(0, scheduler.Job{
		Kind:                scheduler.JobAdvance,
		MatchID:             m.ID,
		ExpectedPhase:       m.Phase,
		ExpectedPhaseEndsAt: m.PhaseEndsAt,
	})
}

// handleAdvance moves the match forward if the job's fence still matches.
// Stale fences and lost writes are routine under at-least-once delivery and
// are dropped without complaint.
func (e *Engine) handleAdvance(ctx context.Context, job scheduler.Job) {
	m, err := e.store.LoadMatch(ctx, job.MatchID)
	if err != nil {
		e.log.Warn("advance load failed", zap.String("match_id", job.MatchID), zap.Error(err))
		return
	}
	if m.Phase != job.ExpectedPhase || !m.PhaseEndsAt.Equal(job.ExpectedPhaseEndsAt) {
		e.log.Debug("advance fence stale",
			zap.String("match_id", job.MatchID),
			zap.String("expected_phase", string(job.ExpectedPhase)),
			zap.String("phase", string(m.Phase)),
		)
		return
	}

	now := e.now()
	next, res, events, err := match.Advance(m, e.cfg.Match, now, true)
	if err != nil {
		e.log.Error("advance failed", zap.String("match_id", job.MatchID), zap.Error(err))
		return
	}
	if !res.Advanced {
		return
	}
	if err := e.store.WriteMatch(ctx, m, next); err != nil {
		if errors.Is(err, repository.ErrStale) {
			return
		}
		e.log.Error("advance write failed", zap.String("match_id", job.MatchID), zap.Error(err))
		return
	}
	if err := e.appendAndPublish(ctx, next.ID, events); err != nil {
		e.log.Error("advance append failed", zap.String("match_id", job.MatchID), zap.Error(err))
		return
	}

	e.log.Info("phase advanced",
		zap.String("match_id", next.ID),
		zap.String("from", string(res.From)),
		zap.String("to", string(res.To)),
		zap.Int("day", next.DayNumber),
		zap.Int("night", next.NightNumber),
	)
	e.scheduleAdvance(next)
	e.scheduleRounds(next)
}

// scheduleAdvance queues the timeout advance for the snapshot's current
// phase.
func (e *Engine) scheduleAdvance(m match.Match) {
	if m.Phase == match.PhaseEnded {
		return
	}
	delay := m.PhaseEndsAt.Sub(e.now())
	if delay < 0 {
		delay = 0
	}
	e.sched.Schedule(delay, scheduler.Job{
		Kind:                scheduler.JobAdvance,
		MatchID:             m.ID,
		ExpectedPhase:       m.Phase,
		ExpectedPhaseEndsAt: m.PhaseEndsAt,
	})
}

// scheduleRounds spreads the phase's agent rounds evenly across its
// duration, each fenced to (phase, phaseStartedAt, index).
func (e *Engine) scheduleRounds(m match.Match) {
	rounds := e.cfg.Match.Rounds(m.Phase)
	if rounds < 1 {
		return
	}
	slot := e.cfg.Match.PhaseDuration(m.Phase) / time.Duration(rounds)
	for i := 0; i < rounds; i++ {
		e.sched.Schedule(time.Duration(i)*slot, scheduler.Job{
			Kind:           scheduler.JobRound,
			MatchID:        m.ID,
			Phase:          m.Phase,
			PhaseStartedAt: m.PhaseStartedAt,
			RoundIndex:     i,
		})
	}
}

func (e *Engine) appendAndPublish(ctx context.Context, matchID string, events []match.Event) error {
	stored, err := e.store.AppendEvents(ctx, matchID, events)
	if err != nil {
		return fmt.Errorf("append events: %w", err)
	}
	e.publish(matchID, stored)
	return nil
}

func (e *Engine) publish(matchID string, events []match.Event) {
	if e.sink != nil && len(events) > 0 {
		e.sink(matchID, events)
	}
}

// State projects the match for a viewer, private sections included for the
// viewer's own seat. includeSpoilers is for post-game audits only.
func (e *Engine) State(ctx context.Context, matchID, viewerID string, includeSpoilers bool) (match.StateView, error) {
	m, err := e.store.LoadMatch(ctx, matchID)
	if err != nil {
		return match.StateView{}, err
	}
	return match.ViewState(m, viewerID, includeSpoilers, e.finalNightRoundNow(m))
}

// Events lists the events visible to the viewer after the given seq.
func (e *Engine) Events(ctx context.Context, matchID, viewerID string, afterSeq int64, limit int) ([]match.Event, error) {
	m, err := e.store.LoadMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	// Over-fetch, then filter by visibility so the limit counts visible
	// events.
	all, err := e.store.ListEvents(ctx, matchID, afterSeq, 0)
	if err != nil {
		return nil, err
	}
	var out []match.Event
	for _, ev := range all {
		if !ev.VisibleTo(m, viewerID) {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// finalNightRoundNow reports whether the current wall-clock position inside
// an ongoing night is the kill-submission round.
func (e *Engine) finalNightRoundNow(m match.Match) bool {
	if m.Phase != match.PhaseNight {
		return false
	}
	rounds := e.cfg.Match.Rounds(match.PhaseNight)
	if rounds < 2 {
		return true
	}
	slot := e.cfg.Match.PhaseDuration(match.PhaseNight) / time.Duration(rounds)
	elapsed := e.now().Sub(m.PhaseStartedAt)
	return elapsed >= time.Duration(rounds-1)*slot
}
