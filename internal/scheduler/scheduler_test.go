package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorder struct {
	mu   sync.Mutex
	jobs []Job
}

func (r *recorder) handle(_ context.Context, job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

func TestTimerSchedulerDelivers(t *testing.T) {
	rec := &recorder{}
	s := NewTimerScheduler(rec.handle, zap.NewNop())
	defer s.Stop()

	s.Schedule(0, Job{Kind: JobAdvance, MatchID: "m1"})

	require.Eventually(t, func() bool { return rec.count() == 1 },
		time.Second, 5*time.Millisecond)
}

func TestTimerSchedulerStopDoesNotWaitForFutureTimers(t *testing.T) {
	rec := &recorder{}
	s := NewTimerScheduler(rec.handle, zap.NewNop())

	s.Schedule(time.Hour, Job{Kind: JobAdvance, MatchID: "m1"})

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on an undelivered timer")
	}
	assert.Zero(t, rec.count())
}

func TestTimerSchedulerDropsJobsAfterStop(t *testing.T) {
	rec := &recorder{}
	s := NewTimerScheduler(rec.handle, zap.NewNop())
	s.Stop()

	s.Schedule(0, Job{Kind: JobRound, MatchID: "m1"})
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, rec.count())
}
