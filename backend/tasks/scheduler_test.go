package tasks

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingRefresher struct {
	calls atomic.Int32
	panic bool
}

func (r *countingRefresher) RefreshAll(context.Context) (int, error) {
	r.calls.Add(1)
	if r.panic {
		panic("boom")
	}
	return 1, nil
}

type countingCompiler struct{ calls atomic.Int32 }

func (c *countingCompiler) ScheduleCompile() { c.calls.Add(1) }

func TestScheduler_InvalidCron(t *testing.T) {
	t.Parallel()

	s := NewScheduler(&countingRefresher{}, nil, "not a cron", 0, nil)
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected invalid cron expression error")
	}
}

func TestScheduler_RunsJobsAndSurvivesPanics(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	refresher := &countingRefresher{panic: true}
	compiler := &countingCompiler{}
	s := NewScheduler(refresher, compiler, "* * * * * *", 20*time.Millisecond, nil)
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if refresher.calls.Load() >= 2 && compiler.calls.Load() >= 2 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("expected repeated runs, got refresh=%d compile=%d", refresher.calls.Load(), compiler.calls.Load())
}

func TestScheduler_NilSafe(t *testing.T) {
	t.Parallel()

	var s *Scheduler
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("expected nil scheduler to be a no-op")
	}
	s.Stop()
}
