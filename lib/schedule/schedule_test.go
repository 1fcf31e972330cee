package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerRuns(t *testing.T) {
	var runs atomic.Int32
	s := New("test", 10*time.Millisecond, func() int {
		runs.Add(1)
		return 1
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start must fail")
	}

	deadline := time.After(2 * time.Second)
	for runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d runs", runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStopWaitsAndIsIdempotent(t *testing.T) {
	var runs atomic.Int32
	s := New("test", 5*time.Millisecond, func() int {
		runs.Add(1)
		return 0
	})
	_ = s.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	s.Stop()
	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	if runs.Load() != after {
		t.Error("task ran after Stop returned")
	}
	s.Stop()

	// a stopped scheduler can be started again
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	s.Stop()
}

func TestContextCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var runs atomic.Int32
	s := New("test", 5*time.Millisecond, func() int { runs.Add(1); return 0 })
	_ = s.Start(ctx)
	cancel()
	time.Sleep(20 * time.Millisecond)
	before := runs.Load()
	time.Sleep(30 * time.Millisecond)
	if runs.Load() != before {
		t.Error("task kept running after the context was cancelled")
	}
	s.Stop()
}

func TestPanicIsRecovered(t *testing.T) {
	calls := 0
	s := New("test", time.Hour, func() int {
		calls++
		if calls == 1 {
			panic("boom")
		}
		return 2
	})
	if n := s.RunOnce(); n != 0 {
		t.Errorf("panicking run returned %d", n)
	}
	if n := s.RunOnce(); n != 2 {
		t.Errorf("second run returned %d", n)
	}
}

func TestDefaultInterval(t *testing.T) {
	if New("x", 0, func() int { return 0 }).Interval() != DefaultInterval {
		t.Error("expected default interval")
	}
}
