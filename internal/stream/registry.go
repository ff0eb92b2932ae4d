// Package stream owns the live search streams: opening, filter
// updates, forced refresh, closing, and the cache-first evaluation
// path that the periodic sweep and every mutating operation share.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/homewatch/homewatch/internal/cache"
	"github.com/homewatch/homewatch/internal/domain"
	"github.com/homewatch/homewatch/internal/metrics"
	"github.com/homewatch/homewatch/internal/pattern"
	"github.com/homewatch/homewatch/internal/quality"
	"github.com/homewatch/homewatch/internal/sched"
	"github.com/homewatch/homewatch/internal/session"
)

// Searcher is the external search capability.
type Searcher interface {
	Search(ctx context.Context, req domain.SearchRequest) ([]domain.MatchResult, error)
}

// Recorder receives user-action telemetry for offline learning.
// Fire-and-forget from the pipeline's perspective.
type Recorder interface {
	Record(ctx context.Context, userID string, action domain.ActionRecord) error
}

// Notifier accepts notifications detected during evaluation.
type Notifier interface {
	Enqueue(n domain.PendingNotification)
}

// Config holds registry tunables.
type Config struct {
	SearchTimeout         time.Duration // budget per external search call
	MaxConcurrentSearches int64         // hard cap on in-flight searches
	ExceptionalScore      float64       // results above this enqueue a notification
	PreloadEnabled        bool
}

// ApplyDefaults fills zero-valued tunables.
func (c *Config) ApplyDefaults() {
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = 10 * time.Second
	}
	if c.MaxConcurrentSearches <= 0 {
		c.MaxConcurrentSearches = 8
	}
	if c.ExceptionalScore <= 0 {
		c.ExceptionalScore = 90
	}
}

// liveStream is the registry-internal stream record. All fields are
// guarded by the registry mutex.
type liveStream struct {
	id      string
	userID  string
	query   string
	filters domain.SearchFilters
	active  bool
	channel session.Channel // nil when unbound

	lastUpdated     time.Time
	lastResultCount int
	lastQuality     domain.QualityScore
}

// Info is a read-only snapshot of one stream, served by the admin
// enumeration endpoint.
type Info struct {
	ID              string               `json:"id"`
	UserID          string               `json:"user_id"`
	Query           string               `json:"query,omitempty"`
	Filters         domain.SearchFilters `json:"filters"`
	Active          bool                 `json:"active"`
	Connected       bool                 `json:"connected"`
	LastUpdated     time.Time            `json:"last_updated"`
	LastResultCount int                  `json:"last_result_count"`
	LastQuality     domain.QualityScore  `json:"last_quality"`
}

// Registry owns every active stream and drives evaluation.
type Registry struct {
	cache    *cache.Cache
	patterns *pattern.Tracker
	searcher Searcher
	recorder Recorder
	notifier Notifier
	tracker  *metrics.Tracker
	clock    sched.Clock
	logger   *zap.Logger
	cfg      Config

	sem *semaphore.Weighted // caps in-flight external searches

	mu      sync.RWMutex
	streams map[string]*liveStream
	byUser  map[string][]string
}

// NewRegistry creates an empty registry.
func NewRegistry(c *cache.Cache, patterns *pattern.Tracker, searcher Searcher, recorder Recorder, notifier Notifier, tracker *metrics.Tracker, clock sched.Clock, cfg Config, logger *zap.Logger) *Registry {
	cfg.ApplyDefaults()
	return &Registry{
		cache:    c,
		patterns: patterns,
		searcher: searcher,
		recorder: recorder,
		notifier: notifier,
		tracker:  tracker,
		clock:    clock,
		logger:   logger,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(cfg.MaxConcurrentSearches),
		streams:  make(map[string]*liveStream),
		byUser:   make(map[string][]string),
	}
}

// OpenStream allocates a stream, runs one synchronous evaluation, and
// schedules a predictive preload for the user. The returned snapshot
// reflects that first evaluation.
func (r *Registry) OpenStream(ctx context.Context, userID, query string, filters domain.SearchFilters, ch session.Channel) (Info, error) {
	s := &liveStream{
		id:      "str_" + uuid.NewString()[:8],
		userID:  userID,
		query:   query,
		filters: filters,
		active:  true,
		channel: ch,
	}

	r.mu.Lock()
	r.streams[s.id] = s
	r.byUser[userID] = append(r.byUser[userID], s.id)
	r.mu.Unlock()
	metrics.ActiveStreams.Inc()

	r.patterns.Record(userID, filters, r.clock.Now())

	if err := r.evaluate(ctx, s.id); err != nil {
		r.logger.Warn("initial stream evaluation failed",
			zap.String("stream_id", s.id),
			zap.String("user_id", userID),
			zap.Error(err))
	}

	if r.cfg.PreloadEnabled {
		r.cache.SchedulePreload(userID)
	}

	info, _ := r.Stream(s.id)
	return info, nil
}

// UpdateFilters merges newFilters over every active stream owned by
// the user and re-evaluates each affected stream.
func (r *Registry) UpdateFilters(ctx context.Context, userID string, newFilters domain.SearchFilters) error {
	r.mu.Lock()
	var affected []string
	for _, id := range r.byUser[userID] {
		s, ok := r.streams[id]
		if !ok || !s.active {
			continue
		}
		s.filters = s.filters.Merge(newFilters)
		affected = append(affected, id)
	}
	r.mu.Unlock()

	if len(affected) == 0 {
		return nil
	}

	r.patterns.Record(userID, newFilters, r.clock.Now())

	var firstErr error
	for _, id := range affected {
		if err := r.evaluate(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ForceRefresh re-evaluates every active stream for the user. The
// normal cache-first policy still applies.
func (r *Registry) ForceRefresh(ctx context.Context, userID string) error {
	r.mu.RLock()
	ids := append([]string(nil), r.byUser[userID]...)
	r.mu.RUnlock()

	var firstErr error
	for _, id := range ids {
		if err := r.evaluate(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CloseStream marks the stream inactive, detaches any bound channel
// without closing it, and removes the stream. Idempotent: unknown or
// already-closed ids are a no-op.
func (r *Registry) CloseStream(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.streams[id]
	if !ok {
		return
	}
	s.active = false
	s.channel = nil
	delete(r.streams, id)

	ids := r.byUser[s.userID]
	for i, sid := range ids {
		if sid == id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(r.byUser, s.userID)
	} else {
		r.byUser[s.userID] = ids
	}
	metrics.ActiveStreams.Dec()
}

// CloseUserStreams closes every stream owned by the user, typically on
// session loss.
func (r *Registry) CloseUserStreams(userID string) {
	r.mu.RLock()
	ids := append([]string(nil), r.byUser[userID]...)
	r.mu.RUnlock()

	for _, id := range ids {
		r.CloseStream(id)
	}
}

// RecordAction forwards user-action telemetry to the interaction
// recorder. Best-effort.
func (r *Registry) RecordAction(ctx context.Context, userID string, action domain.ActionRecord) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.Record(ctx, userID, action); err != nil {
		r.logger.Debug("action record failed",
			zap.String("user_id", userID),
			zap.String("action", action.Action),
			zap.Error(err))
	}
}

// ActiveCount returns the number of active streams.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}

// Stream returns a snapshot of one stream.
func (r *Registry) Stream(id string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.streams[id]
	if !ok {
		return Info{}, false
	}
	return r.snapshotLocked(s), true
}

// Streams enumerates snapshots of every registered stream.
func (r *Registry) Streams() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.streams))
	for _, s := range r.streams {
		out = append(out, r.snapshotLocked(s))
	}
	return out
}

// ForEachActive calls fn with a snapshot of each active stream. Fan-out
// uses this to compute affected streams without holding the lock
// during delivery.
func (r *Registry) ForEachActive(fn func(Info)) {
	for _, info := range r.Streams() {
		if info.Active {
			fn(info)
		}
	}
}

// Push sends a message to the stream's bound channel if one is
// connected. Reports whether a send was attempted.
func (r *Registry) Push(id string, msg domain.StreamMessage) bool {
	r.mu.RLock()
	s, ok := r.streams[id]
	var ch session.Channel
	if ok && s.active {
		ch = s.channel
	}
	r.mu.RUnlock()

	if ch == nil || !ch.IsConnected() {
		return false
	}
	msg.StreamID = id
	if err := ch.Send(msg); err != nil {
		r.logger.Warn("stream push failed",
			zap.String("stream_id", id),
			zap.String("type", string(msg.Type)),
			zap.Error(err))
		return false
	}
	return true
}

// SweepOnce re-evaluates all active streams in bounded-size batches.
// Batch size is half the in-flight search cap; the whole batch is
// awaited, successes and failures alike, before the next one starts.
func (r *Registry) SweepOnce(ctx context.Context) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.streams))
	for id, s := range r.streams {
		if s.active {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()

	if len(ids) == 0 {
		return
	}

	batch := int(r.cfg.MaxConcurrentSearches / 2)
	if batch < 1 {
		batch = 1
	}

	for start := 0; start < len(ids); start += batch {
		end := start + batch
		if end > len(ids) {
			end = len(ids)
		}

		var wg sync.WaitGroup
		for _, id := range ids[start:end] {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				if err := r.evaluate(ctx, id); err != nil {
					r.logger.Warn("sweep evaluation failed",
						zap.String("stream_id", id),
						zap.Error(err))
				}
			}(id)
		}
		wg.Wait()

		if ctx.Err() != nil {
			return
		}
	}
}

// evaluate runs one cache-first evaluation of the stream. Per-stream
// failure is reported as a search_error message on the bound channel
// and returned; it never touches sibling streams.
func (r *Registry) evaluate(ctx context.Context, id string) error {
	r.mu.RLock()
	s, ok := r.streams[id]
	if !ok || !s.active {
		r.mu.RUnlock()
		return domain.ErrStreamNotFound
	}
	userID := s.userID
	query := s.query
	filters := s.filters
	r.mu.RUnlock()

	start := r.clock.Now()

	if b, ok := r.cache.Lookup(ctx, userID, filters); ok {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		metrics.EvaluationDuration.WithLabelValues("cache").Observe(r.clock.Now().Sub(start).Seconds())
		r.finish(id, b.Results, b.Quality, true)
		r.tracker.ObserveEvaluation(r.clock.Now().Sub(start), b.Quality.Overall)
		return nil
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	results, err := r.search(ctx, domain.SearchRequest{
		UserID:   userID,
		Query:    query,
		Filters:  filters,
		Accuracy: domain.AccuracyFull,
	})
	if err != nil {
		r.reportError(id, err)
		return fmt.Errorf("evaluate stream %s: %w", id, err)
	}

	q := quality.Score(results, filters)
	metrics.EvaluationDuration.WithLabelValues("search").Observe(r.clock.Now().Sub(start).Seconds())

	delivered := r.finish(id, results, q, false)
	r.tracker.ObserveEvaluation(r.clock.Now().Sub(start), q.Overall)

	// A closed stream's in-flight evaluation completes and is
	// discarded; skip the cache write and notification check too.
	if !delivered {
		return nil
	}

	if err := r.cache.Store(ctx, userID, filters, results, q); err != nil {
		r.logger.Warn("cache store failed",
			zap.String("user_id", userID), zap.Error(err))
	}

	r.enqueueExceptional(userID, results)
	return nil
}

// search invokes the external search capability under the in-flight
// cap and the per-call timeout.
func (r *Registry) search(ctx context.Context, req domain.SearchRequest) ([]domain.MatchResult, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire search slot: %w", err)
	}
	defer r.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, r.cfg.SearchTimeout)
	defer cancel()

	results, err := r.searcher.Search(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.ErrSearchTimeout
		}
		return nil, err
	}
	return results, nil
}

// finish applies evaluation results to the stream and delivers them on
// the bound channel. Reports false when the stream was closed while the
// evaluation was in flight; the results are then discarded.
func (r *Registry) finish(id string, results []domain.MatchResult, q domain.QualityScore, cached bool) bool {
	r.mu.Lock()
	s, ok := r.streams[id]
	if !ok || !s.active {
		r.mu.Unlock()
		return false
	}
	s.lastUpdated = r.clock.Now()
	s.lastResultCount = len(results)
	s.lastQuality = q
	ch := s.channel
	r.mu.Unlock()

	if ch != nil && ch.IsConnected() {
		err := ch.Send(domain.StreamMessage{
			Type:      domain.MsgResultUpdate,
			StreamID:  id,
			Timestamp: r.clock.Now(),
			Results:   results,
			Quality:   &q,
			Cached:    cached,
		})
		if err != nil {
			r.logger.Warn("result delivery failed",
				zap.String("stream_id", id), zap.Error(err))
		}
	}
	return true
}

// reportError surfaces an evaluation failure to the user. The stream
// keeps its last-known results.
func (r *Registry) reportError(id string, cause error) {
	r.mu.RLock()
	s, ok := r.streams[id]
	var ch session.Channel
	if ok && s.active {
		ch = s.channel
	}
	r.mu.RUnlock()

	if ch == nil || !ch.IsConnected() {
		return
	}
	err := ch.Send(domain.StreamMessage{
		Type:      domain.MsgSearchError,
		StreamID:  id,
		Timestamp: r.clock.Now(),
		Error:     cause.Error(),
	})
	if err != nil {
		r.logger.Debug("search error delivery failed",
			zap.String("stream_id", id), zap.Error(err))
	}
}

// enqueueExceptional queues a new-match notification for every result
// scoring above the exceptional threshold after a fresh evaluation.
func (r *Registry) enqueueExceptional(userID string, results []domain.MatchResult) {
	if r.notifier == nil {
		return
	}
	for _, res := range results {
		if res.Score <= r.cfg.ExceptionalScore {
			continue
		}
		title := "Exceptional match found"
		msg := fmt.Sprintf("A listing scored %.0f against your search", res.Score)
		if res.Listing != nil {
			msg = fmt.Sprintf("%s scored %.0f against your search", res.Listing.Address, res.Score)
		}
		r.notifier.Enqueue(domain.PendingNotification{
			UserID:    userID,
			Category:  domain.NotifyNewMatch,
			ListingID: res.ListingID,
			Score:     res.Score,
			Title:     title,
			Message:   msg,
			ActionURL: "/listings/" + res.ListingID,
			Priority:  domain.PriorityHigh,
			ExpiresAt: r.clock.Now().Add(24 * time.Hour),
			Channels: []domain.ChannelRequest{
				{Kind: domain.ChannelPush, Enabled: true},
				{Kind: domain.ChannelInApp, Enabled: true},
			},
		})
	}
}

// snapshotLocked builds an Info. Caller holds at least a read lock.
func (r *Registry) snapshotLocked(s *liveStream) Info {
	return Info{
		ID:              s.id,
		UserID:          s.userID,
		Query:           s.query,
		Filters:         s.filters,
		Active:          s.active,
		Connected:       s.channel != nil && s.channel.IsConnected(),
		LastUpdated:     s.lastUpdated,
		LastResultCount: s.lastResultCount,
		LastQuality:     s.lastQuality,
	}
}
