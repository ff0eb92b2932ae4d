// Package notify queues pending notifications and delivers them across
// their requested channels, decoupled from the streams that generated
// them.
package notify

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/homewatch/homewatch/internal/domain"
	"github.com/homewatch/homewatch/internal/metrics"
	"github.com/homewatch/homewatch/internal/sched"
	"github.com/homewatch/homewatch/internal/session"
)

// Sender delivers a notification on one external channel kind (push,
// email, SMS). In-app delivery goes through the session hub instead.
type Sender interface {
	Send(ctx context.Context, n domain.PendingNotification) error
}

// Dispatcher is the FIFO notification queue plus its drain logic. The
// periodic drain loop pops one notification at a time and attempts
// every enabled channel in listed order; a per-channel failure is
// logged and never blocks the remaining channels or queue.
//
// Expired notifications are still attempted: expiry governs client-side
// display lifetime, not delivery eligibility.
type Dispatcher struct {
	hub     *session.Hub
	tracker *metrics.Tracker
	clock   sched.Clock
	logger  *zap.Logger

	mu      sync.Mutex
	queue   []domain.PendingNotification
	senders map[domain.ChannelKind]Sender
}

// New creates an empty dispatcher.
func New(hub *session.Hub, tracker *metrics.Tracker, clock sched.Clock, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		hub:     hub,
		tracker: tracker,
		clock:   clock,
		logger:  logger,
		senders: make(map[domain.ChannelKind]Sender),
	}
}

// RegisterSender wires the delivery capability for one channel kind.
func (d *Dispatcher) RegisterSender(kind domain.ChannelKind, s Sender) {
	d.mu.Lock()
	d.senders[kind] = s
	d.mu.Unlock()
}

// Enqueue appends a notification to the queue, assigning an id and
// created-at timestamp when absent.
func (d *Dispatcher) Enqueue(n domain.PendingNotification) {
	if n.ID == "" {
		n.ID = "ntf_" + uuid.NewString()[:8]
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = d.clock.Now()
	}

	d.mu.Lock()
	d.queue = append(d.queue, n)
	depth := len(d.queue)
	d.mu.Unlock()

	d.logger.Debug("notification enqueued",
		zap.String("notification_id", n.ID),
		zap.String("user_id", n.UserID),
		zap.String("category", string(n.Category)),
		zap.Int("queue_depth", depth))
}

// Len returns the current queue depth.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Drain empties the queue, strictly sequentially: one notification's
// delivery attempts complete before the next is popped.
func (d *Dispatcher) Drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		n, ok := d.pop()
		if !ok {
			return
		}
		d.deliver(ctx, n)
	}
}

// DrainOne pops and delivers a single notification. Reports whether
// the queue held one.
func (d *Dispatcher) DrainOne(ctx context.Context) bool {
	n, ok := d.pop()
	if !ok {
		return false
	}
	d.deliver(ctx, n)
	return true
}

func (d *Dispatcher) pop() (domain.PendingNotification, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return domain.PendingNotification{}, false
	}
	n := d.queue[0]
	d.queue = d.queue[1:]
	return n, true
}

// deliver attempts every enabled channel in listed order.
func (d *Dispatcher) deliver(ctx context.Context, n domain.PendingNotification) {
	for _, req := range n.Channels {
		if !req.Enabled {
			continue
		}
		switch req.Kind {
		case domain.ChannelInApp:
			d.deliverInApp(n)
		default:
			d.deliverExternal(ctx, req.Kind, n)
		}
	}
}

// deliverInApp pushes the notification over a connected session
// channel. No connected channel is a silent no-op, not a failure.
func (d *Dispatcher) deliverInApp(n domain.PendingNotification) {
	ch, ok := d.hub.ChannelForUser(n.UserID)
	if !ok {
		metrics.NotificationDeliveries.WithLabelValues(string(domain.ChannelInApp), "skipped").Inc()
		return
	}

	err := ch.Send(domain.StreamMessage{
		Type:         domain.MsgNotification,
		Timestamp:    d.clock.Now(),
		Notification: &n,
	})
	if err != nil {
		d.logger.Warn("in-app delivery failed",
			zap.String("notification_id", n.ID),
			zap.String("user_id", n.UserID),
			zap.Error(err))
		metrics.NotificationDeliveries.WithLabelValues(string(domain.ChannelInApp), "error").Inc()
		d.tracker.ObserveNotification(false)
		return
	}
	metrics.NotificationDeliveries.WithLabelValues(string(domain.ChannelInApp), "ok").Inc()
	d.tracker.ObserveNotification(true)
}

func (d *Dispatcher) deliverExternal(ctx context.Context, kind domain.ChannelKind, n domain.PendingNotification) {
	d.mu.Lock()
	sender, ok := d.senders[kind]
	d.mu.Unlock()

	if !ok {
		d.logger.Warn("no sender registered for channel",
			zap.String("channel", string(kind)),
			zap.String("notification_id", n.ID))
		metrics.NotificationDeliveries.WithLabelValues(string(kind), "skipped").Inc()
		return
	}

	if err := sender.Send(ctx, n); err != nil {
		d.logger.Warn("notification delivery failed",
			zap.String("channel", string(kind)),
			zap.String("notification_id", n.ID),
			zap.String("user_id", n.UserID),
			zap.Error(err))
		metrics.NotificationDeliveries.WithLabelValues(string(kind), "error").Inc()
		d.tracker.ObserveNotification(false)
		return
	}
	metrics.NotificationDeliveries.WithLabelValues(string(kind), "ok").Inc()
	d.tracker.ObserveNotification(true)
}
