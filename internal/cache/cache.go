// Package cache implements the predictive result cache: per-user
// result bundles keyed by canonical filter signature, with time-based
// expiry, hit-rate bookkeeping, and opportunistic preloading driven by
// the search-pattern tracker.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/homewatch/homewatch/internal/db"
	"github.com/homewatch/homewatch/internal/domain"
	"github.com/homewatch/homewatch/internal/pattern"
	"github.com/homewatch/homewatch/internal/quality"
	"github.com/homewatch/homewatch/internal/sched"
)

// Searcher is the external search capability the preload path consumes.
type Searcher interface {
	Search(ctx context.Context, req domain.SearchRequest) ([]domain.MatchResult, error)
}

// Config holds cache tunables.
type Config struct {
	TTL           time.Duration // bundle validity window
	PreloadDelay  time.Duration // fixed delay before a scheduled preload runs
	SearchTimeout time.Duration // budget for the preload's reduced-accuracy search
	KeyPrefix     string        // store key namespace, e.g. "homewatch:cache:"
}

// Bundle is one preloaded or stored result set.
type Bundle struct {
	Signature  string               `json:"signature"`
	Results    []domain.MatchResult `json:"results"`
	Quality    domain.QualityScore  `json:"quality"`
	Confidence float64              `json:"confidence"`
	Timestamp  time.Time            `json:"timestamp"`
}

// userEntry is the in-memory bookkeeping per user.
type userEntry struct {
	hitRate     float64
	confidence  float64
	lastUpdated time.Time
}

// Cache is the predictive cache. Bundle payloads live in the db.Store
// (memory or Redis); hit-rate and confidence bookkeeping stays in
// process memory.
type Cache struct {
	store    db.Store
	patterns *pattern.Tracker
	searcher Searcher
	clock    sched.Clock
	logger   *zap.Logger
	cfg      Config

	mu      sync.Mutex
	entries map[string]*userEntry

	hits    atomic.Int64
	lookups atomic.Int64
}

// New creates a predictive cache.
func New(store db.Store, patterns *pattern.Tracker, searcher Searcher, clock sched.Clock, cfg Config, logger *zap.Logger) *Cache {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "homewatch:cache:"
	}
	return &Cache{
		store:    store,
		patterns: patterns,
		searcher: searcher,
		clock:    clock,
		logger:   logger,
		cfg:      cfg,
		entries:  make(map[string]*userEntry),
	}
}

// Lookup finds an unexpired bundle for the user's filter signature.
// A bundle whose age equals the TTL exactly is already expired. A hit
// folds 1 into the user's running hit-rate; a miss mutates nothing.
func (c *Cache) Lookup(ctx context.Context, userID string, filters domain.SearchFilters) (Bundle, bool) {
	c.lookups.Add(1)

	sig := Signature(filters)
	data, err := c.store.Get(ctx, c.key(userID, sig))
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("cache read failed", zap.String("user_id", userID), zap.Error(err))
		}
		return Bundle{}, false
	}

	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		c.logger.Warn("cache bundle corrupt, discarding",
			zap.String("user_id", userID), zap.Error(err))
		_ = c.store.Del(ctx, c.key(userID, sig))
		return Bundle{}, false
	}

	if age := c.clock.Now().Sub(b.Timestamp); age >= c.cfg.TTL {
		return Bundle{}, false
	}

	c.hits.Add(1)
	c.mu.Lock()
	e := c.entry(userID)
	e.hitRate = (e.hitRate + 1) / 2
	c.mu.Unlock()

	return b, true
}

// Store inserts or replaces the bundle for the filter signature with a
// fresh timestamp.
func (c *Cache) Store(ctx context.Context, userID string, filters domain.SearchFilters, results []domain.MatchResult, q domain.QualityScore) error {
	return c.put(ctx, userID, Signature(filters), Bundle{
		Signature: Signature(filters),
		Results:   results,
		Quality:   q,
		Timestamp: c.clock.Now(),
	})
}

// SchedulePreload schedules a single deferred preload for the user if
// their pattern shows a repeated time bucket. The fixed delay is used
// regardless of which bucket was predicted as the next likely search;
// that is deliberate, current behavior. Reports whether a preload was
// scheduled.
func (c *Cache) SchedulePreload(userID string) bool {
	p, ok := c.patterns.Pattern(userID)
	if !ok || p.MaxBucketFrequency() <= 1 {
		return false
	}

	c.clock.AfterFunc(c.cfg.PreloadDelay, func() {
		c.runPreload(userID, p)
	})
	return true
}

// runPreload performs the reduced-accuracy search and stores the
// bundle. Best-effort: failure logs and leaves prior cache state
// untouched.
func (c *Cache) runPreload(userID string, p pattern.SearchPattern) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.SearchTimeout)
	defer cancel()

	results, err := c.searcher.Search(ctx, domain.SearchRequest{
		UserID:   userID,
		Filters:  p.CommonFilters,
		Accuracy: domain.AccuracyReduced,
	})
	if err != nil {
		c.logger.Warn("predictive preload failed",
			zap.String("user_id", userID), zap.Error(err))
		return
	}

	conf := preloadConfidence(p.Frequency, p.MaxBucketFrequency())
	q := quality.Score(results, p.CommonFilters)

	b := Bundle{
		Signature:  Signature(p.CommonFilters),
		Results:    results,
		Quality:    q,
		Confidence: conf,
		Timestamp:  c.clock.Now(),
	}
	if err := c.put(ctx, userID, b.Signature, b); err != nil {
		c.logger.Warn("predictive preload store failed",
			zap.String("user_id", userID), zap.Error(err))
		return
	}

	c.mu.Lock()
	c.entry(userID).confidence = conf
	c.mu.Unlock()

	c.logger.Debug("predictive preload stored",
		zap.String("user_id", userID),
		zap.Int("results", len(results)),
		zap.Float64("confidence", conf))
}

// preloadConfidence scores how confident the cache is that the
// preloaded results will be wanted.
func preloadConfidence(frequency, maxBucketFrequency int) float64 {
	if frequency == 0 {
		return 0
	}
	f := float64(frequency) / 10
	if f > 1 {
		f = 1
	}
	return 0.6*f + 0.4*(float64(maxBucketFrequency)/float64(frequency))
}

// Clear drops all bundles and all pattern state. Administrative only.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.store.DelPrefix(ctx, c.cfg.KeyPrefix); err != nil {
		return fmt.Errorf("clear cache store: %w", err)
	}

	c.mu.Lock()
	c.entries = make(map[string]*userEntry)
	c.mu.Unlock()

	c.hits.Store(0)
	c.lookups.Store(0)
	c.patterns.Clear()
	return nil
}

// HitRate returns the global hit ratio across all lookups since start
// (or the last Clear).
func (c *Cache) HitRate() float64 {
	lookups := c.lookups.Load()
	if lookups == 0 {
		return 0
	}
	return float64(c.hits.Load()) / float64(lookups)
}

// UserHitRate returns the per-user running hit-rate.
func (c *Cache) UserHitRate(userID string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[userID]; ok {
		return e.hitRate
	}
	return 0
}

// Confidence returns the user's aggregate preload confidence.
func (c *Cache) Confidence(userID string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[userID]; ok {
		return e.confidence
	}
	return 0
}

func (c *Cache) put(ctx context.Context, userID, sig string, b Bundle) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal bundle: %w", err)
	}
	if err := c.store.SetWithTTL(ctx, c.key(userID, sig), data, c.cfg.TTL); err != nil {
		return fmt.Errorf("store bundle: %w", err)
	}

	c.mu.Lock()
	c.entry(userID).lastUpdated = c.clock.Now()
	c.mu.Unlock()
	return nil
}

// entry returns the bookkeeping entry, creating it if needed. Caller
// must hold c.mu.
func (c *Cache) entry(userID string) *userEntry {
	e, ok := c.entries[userID]
	if !ok {
		e = &userEntry{}
		c.entries[userID] = e
	}
	return e
}

func (c *Cache) key(userID, sig string) string {
	return c.cfg.KeyPrefix + userID + ":" + sig
}
