// Package scheduler provides the delayed-job collaborator: schedule a job
// after a delay with at-least-once, not-before-delay semantics. Jobs carry
// fencing context so the handler can self-reject stale or duplicate
// deliveries; the scheduler itself makes no exactly-once promise.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nightcouncil/werewolf-server/internal/match"
)

// JobKind selects the handler path for a delivered job.
type JobKind string

const (
	JobAdvance JobKind = "ADVANCE"
	JobRound   JobKind = "ROUND"
)

// Job is the argument bag delivered to the handler. ExpectedPhase and
// ExpectedPhaseEndsAt fence advance jobs; Phase, PhaseStartedAt and
// RoundIndex fence round jobs.
type Job struct {
	Kind                JobKind
	MatchID             string
	ExpectedPhase       match.Phase
	ExpectedPhaseEndsAt time.Time
	Phase               match.Phase
	PhaseStartedAt      time.Time
	RoundIndex          int
}

// Handler consumes delivered jobs. Handlers must be idempotent; delivery
// happens at least once.
type Handler func(ctx context.Context, job Job)

// Scheduler queues a job for delivery no earlier than delay from now.
type Scheduler interface {
	Schedule(delay time.Duration, job Job)
}

// TimerScheduler delivers jobs on in-process timers. Each delivery runs the
// handler on its own goroutine.
type TimerScheduler struct {
	handler Handler
	logger  *zap.Logger

	mu      sync.Mutex
	closed  bool
	nextID  int
	timers  map[int]*time.Timer
	pending sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewTimerScheduler creates a scheduler delivering to handler.
func NewTimerScheduler(handler Handler, logger *zap.Logger) *TimerScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &TimerScheduler{
		handler: handler,
		logger:  logger,
		timers:  make(map[int]*time.Timer),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Schedule queues the job. Jobs scheduled after Stop are dropped.
func (s *TimerScheduler) Schedule(delay time.Duration, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pending.Add(1)
	id := s.nextID
	s.nextID++
	s.timers[id] = time.AfterFunc(delay, func() {
		defer s.pending.Done()
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()
		select {
		case <-s.ctx.Done():
			return
		default:
		}
		s.logger.Debug("delivering scheduled job",
			zap.String("kind", string(job.Kind)),
			zap.String("match_id", job.MatchID),
			zap.Int("round_index", job.RoundIndex),
		)
		s.handler(s.ctx, job)
	})
}

// Stop cancels undelivered timers and waits for in-flight handlers to
// return. Those handlers observe a cancelled context.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	s.closed = true
	stopped := make([]*time.Timer, 0, len(s.timers))
	for id, t := range s.timers {
		stopped = append(stopped, t)
		delete(s.timers, id)
	}
	s.mu.Unlock()
	s.cancel()
	for _, t := range stopped {
		// A timer that already fired settles its own pending slot.
		if t.Stop() {
			s.pending.Done()
		}
	}
	s.pending.Wait()
}

// ManualScheduler records jobs and delivers them only when told to. Tests
// drive it to simulate duplicate and out-of-order deliveries.
type ManualScheduler struct {
	mu      sync.Mutex
	handler Handler
	jobs    []Job
	delays  []time.Duration
}

// NewManualScheduler creates a scheduler that requires explicit delivery.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// SetHandler wires the consumer. Must be called before any Fire.
func (s *ManualScheduler) SetHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

func (s *ManualScheduler) Schedule(delay time.Duration, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	s.delays = append(s.delays, delay)
}

// Jobs returns a copy of everything scheduled so far.
func (s *ManualScheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Job(nil), s.jobs...)
}

// Fire synchronously delivers the i-th scheduled job. Calling it twice for
// the same index simulates duplicate delivery.
func (s *ManualScheduler) Fire(ctx context.Context, i int) {
	s.mu.Lock()
	job := s.jobs[i]
	h := s.handler
	s.mu.Unlock()
	h(ctx, job)
}

// FireAll delivers every job scheduled so far, including ones scheduled by
// handlers run during this call.
func (s *ManualScheduler) FireAll(ctx context.Context) {
	for i := 0; ; i++ {
		s.mu.Lock()
		if i >= len(s.jobs) {
			s.mu.Unlock()
			return
		}
		job := s.jobs[i]
		h := s.handler
		s.mu.Unlock()
		h(ctx, job)
	}
}
