// Package schedule runs a task periodically, e.g. the reclamation of abandoned
// ephemeral databases.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("schedule")

// DefaultInterval is used when New is given a non-positive interval
const DefaultInterval = time.Hour

// Task is one run of a scheduled job. It returns the number of items it handled.
type Task func() int

// Scheduler calls a Task every interval until stopped. A panicking run is
// recovered and logged; the next run happens as usual.
type Scheduler struct {
	name     string
	interval time.Duration
	task     Task

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a stopped scheduler
func New(name string, interval time.Duration, task Task) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{name: name, interval: interval, task: task}
}

// Interval returns the time between two runs
func (s *Scheduler) Interval() time.Duration { return s.interval }

// Start begins running the task. The first run happens one interval after
// Start. Starting a running scheduler is an error.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("scheduler %s is already running", s.name)
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
	Logger.Infof("%s scheduled every %s", s.name, s.interval)
	return nil
}

// Stop ends the loop and waits for a running task to finish. Stopping a stopped
// scheduler does nothing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce()
		}
	}
}

// RunOnce runs the task immediately in the calling goroutine
func (s *Scheduler) RunOnce() (n int) {
	defer func() {
		if r := recover(); r != nil {
			Logger.Errorf("%s panicked: %v", s.name, r)
			n = 0
		}
	}()
	n = s.task()
	if n > 0 {
		Logger.Infof("%s: %d item(s) handled", s.name, n)
	} else {
		Logger.Debugf("%s: nothing to do", s.name)
	}
	return n
}
