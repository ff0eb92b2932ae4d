package sched

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Loop runs a function on a fixed interval until stopped. Start and
// Stop are idempotent.
type Loop struct {
	name     string
	clock    Clock
	interval time.Duration
	fn       func(ctx context.Context)
	logger   *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewLoop creates a loop that invokes fn every interval.
func NewLoop(name string, clock Clock, interval time.Duration, fn func(ctx context.Context), logger *zap.Logger) *Loop {
	return &Loop{
		name:     name,
		clock:    clock,
		interval: interval,
		fn:       fn,
		logger:   logger,
	}
}

// Start launches the loop goroutine. A second Start while running is a
// no-op.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	l.running = true

	ticker := l.clock.NewTicker(l.interval)
	go func() {
		defer close(l.done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				l.fn(ctx)
			}
		}
	}()

	l.logger.Debug("loop started",
		zap.String("loop", l.name),
		zap.Duration("interval", l.interval))
}

// Stop cancels the loop and waits for the current iteration to finish.
// Stopping a stopped loop is a no-op.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	cancel()
	<-done
	l.logger.Debug("loop stopped", zap.String("loop", l.name))
}

// Running reports whether the loop is currently started.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}
