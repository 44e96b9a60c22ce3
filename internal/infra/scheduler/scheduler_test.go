package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := New(nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { s.Shutdown() })
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestScheduler_RunsImmediatelyAndRepeats(t *testing.T) {
	s := newTestScheduler(t)
	var runs atomic.Int32
	err := s.Add(Job{
		Name:  "tick",
		Every: 50 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	}, true)
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	s.Start()

	waitFor(t, func() bool { return runs.Load() >= 3 })
}

func TestScheduler_FailingJobKeepsRunning(t *testing.T) {
	s := newTestScheduler(t)
	var runs atomic.Int32
	s.Add(Job{
		Name:  "flaky",
		Every: 30 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return errors.New("boom")
		},
	}, true)
	s.Start()

	waitFor(t, func() bool { return runs.Load() >= 2 })
}

func TestScheduler_TimeoutCancelsRun(t *testing.T) {
	s := newTestScheduler(t)
	canceled := make(chan struct{}, 1)
	s.Add(Job{
		Name:    "slow",
		Every:   time.Hour,
		Timeout: 20 * time.Millisecond,
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			canceled <- struct{}{}
			return ctx.Err()
		},
	}, true)
	s.Start()

	select {
	case <-canceled:
	case <-time.After(2 * time.Second):
		t.Fatal("job context was not canceled at its timeout")
	}
}

func TestScheduler_RejectsZeroInterval(t *testing.T) {
	s := newTestScheduler(t)
	if err := s.Add(Job{Name: "bad", Run: func(context.Context) error { return nil }}, false); err == nil {
		t.Error("expected error for zero interval")
	}
}
