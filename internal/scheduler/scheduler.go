// Package scheduler runs repeating polling tasks as one cancellable group.
//
// Every task runs once immediately and then on its own interval. A task that
// returns an error or panics is logged and runs again on its next tick.
// Shutdown cancels the whole group and waits for every task to return.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned by Schedule after Shutdown.
var ErrClosed = errors.New("scheduler: closed")

// Task is one unit of polling work.
type Task func(ctx context.Context) error

// Scheduler is safe for concurrent use.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu     sync.Mutex
	closed bool
	count  int
}

// New returns a Scheduler whose tasks stop when parent is cancelled or
// Shutdown is called.
func New(parent context.Context) *Scheduler {
	ctx, cancel := context.WithCancel(parent)
	g, gctx := errgroup.WithContext(ctx)
	return &Scheduler{ctx: gctx, cancel: cancel, group: g}
}

// Schedule registers task to run every interval under name.
func (s *Scheduler) Schedule(name string, interval time.Duration, task Task) error {
	if interval <= 0 {
		return fmt.Errorf("scheduler: task %q: interval must be positive", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.count++

	s.group.Go(func() error {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			s.runOnce(name, task)
			select {
			case <-s.ctx.Done():
				return nil
			case <-t.C:
			}
		}
	})
	slog.Debug("scheduler: task registered", "task", name, "interval", interval)
	return nil
}

// runOnce executes task, isolating the group from its errors and panics.
func (s *Scheduler) runOnce(name string, task Task) {
	if s.ctx.Err() != nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scheduler: task panicked", "task", name, "panic", r)
		}
	}()
	if err := task(s.ctx); err != nil && s.ctx.Err() == nil {
		slog.Warn("scheduler: task failed, will retry next tick", "task", name, "err", err)
	}
}

// Len returns the number of tasks registered.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Shutdown cancels every task and waits for all of them to return.
// Calling Shutdown more than once is safe.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	_ = s.group.Wait()
}
