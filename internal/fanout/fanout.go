// Package fanout routes property-update events to the live streams
// they affect, with type-specific handling for new listings, price
// changes, and removals.
package fanout

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/homewatch/homewatch/internal/domain"
	"github.com/homewatch/homewatch/internal/matcher"
	"github.com/homewatch/homewatch/internal/metrics"
	"github.com/homewatch/homewatch/internal/sched"
	"github.com/homewatch/homewatch/internal/stream"
)

// StreamIndex is the registry surface fan-out consumes.
type StreamIndex interface {
	ForEachActive(fn func(stream.Info))
	Push(id string, msg domain.StreamMessage) bool
}

// Notifier accepts notifications generated during fan-out.
type Notifier interface {
	Enqueue(n domain.PendingNotification)
}

// Config holds fan-out tunables.
type Config struct {
	PriceDropPct    float64 // relative drop threshold, fraction of old price
	PriceDropFloor  float64 // absolute drop floor in dollars
	MatchThreshold  float64 // quick-score floor for new-match pushes
	UrgentThreshold float64 // quick-score floor for urgent escalation
	UpdateLogSize   int     // bounded update log capacity
}

// ApplyDefaults fills zero-valued tunables.
func (c *Config) ApplyDefaults() {
	if c.PriceDropPct <= 0 {
		c.PriceDropPct = 0.05
	}
	if c.PriceDropFloor <= 0 {
		c.PriceDropFloor = 5000
	}
	if c.MatchThreshold <= 0 {
		c.MatchThreshold = 80
	}
	if c.UrgentThreshold <= 0 {
		c.UrgentThreshold = 92
	}
	if c.UpdateLogSize <= 0 {
		c.UpdateLogSize = 100
	}
}

// Fanout processes one update event at a time against the full
// affected-stream set.
type Fanout struct {
	streams  StreamIndex
	notifier Notifier
	tracker  *metrics.Tracker
	clock    sched.Clock
	logger   *zap.Logger
	cfg      Config

	procMu sync.Mutex // serializes event processing

	logMu sync.Mutex
	log   []domain.PropertyUpdateEvent // bounded, newest last
}

// New creates a fan-out processor.
func New(streams StreamIndex, notifier Notifier, tracker *metrics.Tracker, clock sched.Clock, cfg Config, logger *zap.Logger) *Fanout {
	cfg.ApplyDefaults()
	return &Fanout{
		streams:  streams,
		notifier: notifier,
		tracker:  tracker,
		clock:    clock,
		logger:   logger,
		cfg:      cfg,
	}
}

// ProcessUpdate handles one event to completion against every affected
// stream before returning. Events are serialized: a second concurrent
// call waits for the first to finish.
func (f *Fanout) ProcessUpdate(ev domain.PropertyUpdateEvent) {
	f.procMu.Lock()
	defer f.procMu.Unlock()

	start := f.clock.Now()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = start
	}

	metrics.UpdateEvents.WithLabelValues(string(ev.Kind)).Inc()

	affected := f.affectedStreams(&ev)
	ev.AffectedUsers = affectedUsers(affected)
	f.appendLog(ev)

	switch ev.Kind {
	case domain.UpdateNewListing:
		f.handleNewListing(&ev, affected)
	case domain.UpdatePriceChange:
		f.handlePriceChange(&ev, affected)
	case domain.UpdateRemoved:
		f.handleRemoved(&ev, affected)
	case domain.UpdateStatusChange:
		// Informational: logged and counted, no stream delivery.
		f.logger.Debug("status change recorded",
			zap.String("listing_id", ev.ListingID),
			zap.Int("affected_streams", len(affected)))
	default:
		f.logger.Warn("unknown update kind, dropped",
			zap.String("kind", string(ev.Kind)),
			zap.String("listing_id", ev.ListingID))
	}

	elapsed := f.clock.Now().Sub(start)
	metrics.UpdateFanoutLatency.Observe(elapsed.Seconds())
	f.tracker.ObserveUpdateLatency(elapsed)
}

// RecentUpdates returns up to limit recent events, newest first.
func (f *Fanout) RecentUpdates(limit int) []domain.PropertyUpdateEvent {
	f.logMu.Lock()
	defer f.logMu.Unlock()

	n := len(f.log)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.PropertyUpdateEvent, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, f.log[i])
	}
	return out
}

// affectedStreams matches the event's listing payload against every
// active stream's filters. Events without a payload affect nothing.
func (f *Fanout) affectedStreams(ev *domain.PropertyUpdateEvent) []stream.Info {
	if ev.Listing == nil {
		f.logger.Debug("update event without listing payload",
			zap.String("kind", string(ev.Kind)),
			zap.String("listing_id", ev.ListingID))
		return nil
	}

	var affected []stream.Info
	f.streams.ForEachActive(func(info stream.Info) {
		if matcher.Matches(ev.Listing, info.Filters) {
			affected = append(affected, info)
		}
	})
	return affected
}

func (f *Fanout) handleNewListing(ev *domain.PropertyUpdateEvent, affected []stream.Info) {
	notified := make(map[string]bool)

	for _, info := range affected {
		score := matcher.QuickScore(ev.Listing, info.Filters)
		if score < f.cfg.MatchThreshold {
			continue
		}

		f.streams.Push(info.ID, domain.StreamMessage{
			Type:      domain.MsgNewMatch,
			Timestamp: f.clock.Now(),
			Listing:   ev.Listing,
		})

		if notified[info.UserID] {
			continue
		}
		notified[info.UserID] = true

		priority := domain.PriorityHigh
		if score >= f.cfg.UrgentThreshold {
			priority = domain.PriorityUrgent
		}
		f.notifier.Enqueue(domain.PendingNotification{
			UserID:    info.UserID,
			Category:  domain.NotifyNewMatch,
			ListingID: ev.ListingID,
			Score:     score,
			Title:     "New listing matches your search",
			Message:   fmt.Sprintf("%s just hit the market", ev.Listing.Address),
			ActionURL: "/listings/" + ev.ListingID,
			Priority:  priority,
			ExpiresAt: f.clock.Now().Add(24 * time.Hour),
			Channels: []domain.ChannelRequest{
				{Kind: domain.ChannelPush, Enabled: true},
				{Kind: domain.ChannelInApp, Enabled: true},
			},
		})
	}
}

func (f *Fanout) handlePriceChange(ev *domain.PropertyUpdateEvent, affected []stream.Info) {
	pc, ok := ev.PriceChange()
	if !ok {
		f.logger.Debug("price change event without price field",
			zap.String("listing_id", ev.ListingID))
		return
	}
	if !f.dropQualifies(pc.OldNumeric, pc.NewNumeric) {
		return
	}

	notified := make(map[string]bool)

	for _, info := range affected {
		f.streams.Push(info.ID, domain.StreamMessage{
			Type:      domain.MsgPriceDrop,
			Timestamp: f.clock.Now(),
			Listing:   ev.Listing,
			OldPrice:  pc.OldNumeric,
			NewPrice:  pc.NewNumeric,
		})

		if notified[info.UserID] {
			continue
		}
		notified[info.UserID] = true

		f.notifier.Enqueue(domain.PendingNotification{
			UserID:    info.UserID,
			Category:  domain.NotifyPriceDrop,
			ListingID: ev.ListingID,
			Score:     pc.OldNumeric - pc.NewNumeric,
			Title:     "Price drop on a matching listing",
			Message: fmt.Sprintf("%s dropped from $%.0f to $%.0f",
				ev.Listing.Address, pc.OldNumeric, pc.NewNumeric),
			ActionURL: "/listings/" + ev.ListingID,
			Priority:  domain.PriorityHigh,
			ExpiresAt: f.clock.Now().Add(48 * time.Hour),
			Channels: []domain.ChannelRequest{
				{Kind: domain.ChannelPush, Enabled: true},
				{Kind: domain.ChannelEmail, Enabled: true},
				{Kind: domain.ChannelInApp, Enabled: true},
			},
		})
	}
}

// handleRemoved pushes an informational message only; no notification.
func (f *Fanout) handleRemoved(ev *domain.PropertyUpdateEvent, affected []stream.Info) {
	for _, info := range affected {
		f.streams.Push(info.ID, domain.StreamMessage{
			Type:      domain.MsgListingRemoved,
			Timestamp: f.clock.Now(),
			Listing:   ev.Listing,
		})
	}
}

// dropQualifies reports whether a price reduction clears the greater of
// the relative threshold and the absolute floor. Strict: a drop exactly
// at the boundary does not qualify.
func (f *Fanout) dropQualifies(oldPrice, newPrice float64) bool {
	drop := oldPrice - newPrice
	if drop <= 0 {
		return false
	}
	threshold := f.cfg.PriceDropPct * oldPrice
	if f.cfg.PriceDropFloor > threshold {
		threshold = f.cfg.PriceDropFloor
	}
	return drop > threshold
}

func (f *Fanout) appendLog(ev domain.PropertyUpdateEvent) {
	f.logMu.Lock()
	defer f.logMu.Unlock()

	f.log = append(f.log, ev)
	if over := len(f.log) - f.cfg.UpdateLogSize; over > 0 {
		f.log = append([]domain.PropertyUpdateEvent(nil), f.log[over:]...)
	}
}

func affectedUsers(affected []stream.Info) []string {
	if len(affected) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(affected))
	users := make([]string, 0, len(affected))
	for _, info := range affected {
		if !seen[info.UserID] {
			seen[info.UserID] = true
			users = append(users, info.UserID)
		}
	}
	return users
}
