// Package pipeline wires the matching pipeline together and owns its
// two periodic loops: the stream re-evaluation sweep and the
// notification drain.
package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/homewatch/homewatch/internal/cache"
	"github.com/homewatch/homewatch/internal/fanout"
	"github.com/homewatch/homewatch/internal/metrics"
	"github.com/homewatch/homewatch/internal/notify"
	"github.com/homewatch/homewatch/internal/sched"
	"github.com/homewatch/homewatch/internal/stream"
)

// Config holds loop intervals.
type Config struct {
	SweepInterval time.Duration
	DrainInterval time.Duration
}

// ApplyDefaults fills zero-valued intervals.
func (c *Config) ApplyDefaults() {
	if c.SweepInterval <= 0 {
		c.SweepInterval = 30 * time.Second
	}
	if c.DrainInterval <= 0 {
		c.DrainInterval = 5 * time.Second
	}
}

// Pipeline bundles the core components and their scheduler loops.
type Pipeline struct {
	Registry   *stream.Registry
	Fanout     *fanout.Fanout
	Dispatcher *notify.Dispatcher
	Cache      *cache.Cache
	Tracker    *metrics.Tracker

	clock  sched.Clock
	logger *zap.Logger

	mu    sync.Mutex
	sweep *sched.Loop
	drain *sched.Loop
}

// New assembles a pipeline over already-constructed components.
func New(registry *stream.Registry, fo *fanout.Fanout, dispatcher *notify.Dispatcher, c *cache.Cache, tracker *metrics.Tracker, clock sched.Clock, cfg Config, logger *zap.Logger) *Pipeline {
	cfg.ApplyDefaults()

	p := &Pipeline{
		Registry:   registry,
		Fanout:     fo,
		Dispatcher: dispatcher,
		Cache:      c,
		Tracker:    tracker,
		clock:      clock,
		logger:     logger,
	}
	p.sweep = sched.NewLoop("stream-sweep", clock, cfg.SweepInterval, func(ctx context.Context) {
		registry.SweepOnce(ctx)
	}, logger)
	p.drain = sched.NewLoop("notification-drain", clock, cfg.DrainInterval, func(ctx context.Context) {
		dispatcher.Drain(ctx)
	}, logger)
	return p
}

// StartLoops starts the sweep and drain loops. Idempotent.
func (p *Pipeline) StartLoops(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweep.Start(ctx)
	p.drain.Start(ctx)
	p.logger.Info("pipeline loops started")
}

// StopLoops stops both loops and waits for in-flight runs to finish.
func (p *Pipeline) StopLoops() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweep.Stop()
	p.drain.Stop()
	p.logger.Info("pipeline loops stopped")
}

// LoopsRunning reports whether the periodic loops are active.
func (p *Pipeline) LoopsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sweep.Running() && p.drain.Running()
}

// Snapshot assembles the point-in-time health view.
func (p *Pipeline) Snapshot() metrics.Snapshot {
	return p.Tracker.Snapshot(p.Registry.ActiveCount(), p.Cache.HitRate(), p.clock.Now())
}
