package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/homewatch/homewatch/internal/domain"
	"github.com/homewatch/homewatch/internal/metrics"
	"github.com/homewatch/homewatch/internal/sched"
	"github.com/homewatch/homewatch/internal/session"
)

type fakeChannel struct {
	id        string
	userID    string
	connected bool
	sent      []domain.StreamMessage
	sendErr   error
}

func (f *fakeChannel) ID() string        { return f.id }
func (f *fakeChannel) UserID() string    { return f.userID }
func (f *fakeChannel) IsConnected() bool { return f.connected }
func (f *fakeChannel) Send(m domain.StreamMessage) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, m)
	return nil
}

type fakeSender struct {
	sent []domain.PendingNotification
	errs map[string]error // notification id -> error
}

func (f *fakeSender) Send(_ context.Context, n domain.PendingNotification) error {
	if err, ok := f.errs[n.ID]; ok {
		return err
	}
	f.sent = append(f.sent, n)
	return nil
}

func newTestDispatcher() (*Dispatcher, *session.Hub, *sched.ManualClock) {
	clock := sched.NewManualClock(time.Unix(1_700_000_000, 0))
	hub := session.NewHub()
	d := New(hub, metrics.NewTracker(), clock, zap.NewNop())
	return d, hub, clock
}

func notification(id, userID string, channels ...domain.ChannelRequest) domain.PendingNotification {
	return domain.PendingNotification{
		ID:       id,
		UserID:   userID,
		Category: domain.NotifyNewMatch,
		Title:    "New match",
		Priority: domain.PriorityHigh,
		Channels: channels,
	}
}

func TestEnqueue_AssignsIDAndTimestamp(t *testing.T) {
	d, _, clock := newTestDispatcher()

	d.Enqueue(domain.PendingNotification{UserID: "u1"})
	if d.Len() != 1 {
		t.Fatalf("queue depth = %d, want 1", d.Len())
	}

	n, ok := d.pop()
	if !ok {
		t.Fatal("pop failed")
	}
	if n.ID == "" {
		t.Error("enqueue should assign an id")
	}
	if !n.CreatedAt.Equal(clock.Now()) {
		t.Errorf("created_at = %v, want clock now %v", n.CreatedAt, clock.Now())
	}
}

func TestDrain_FIFOAndSequential(t *testing.T) {
	d, _, _ := newTestDispatcher()
	push := &fakeSender{}
	d.RegisterSender(domain.ChannelPush, push)

	d.Enqueue(notification("n1", "u1", domain.ChannelRequest{Kind: domain.ChannelPush, Enabled: true}))
	d.Enqueue(notification("n2", "u1", domain.ChannelRequest{Kind: domain.ChannelPush, Enabled: true}))

	d.Drain(context.Background())

	if d.Len() != 0 {
		t.Fatalf("queue depth = %d after drain, want 0", d.Len())
	}
	if len(push.sent) != 2 || push.sent[0].ID != "n1" || push.sent[1].ID != "n2" {
		t.Fatalf("FIFO order violated: %+v", push.sent)
	}
}

func TestDrain_DisabledChannelsSkipped(t *testing.T) {
	d, _, _ := newTestDispatcher()
	push := &fakeSender{}
	email := &fakeSender{}
	d.RegisterSender(domain.ChannelPush, push)
	d.RegisterSender(domain.ChannelEmail, email)

	d.Enqueue(notification("n1", "u1",
		domain.ChannelRequest{Kind: domain.ChannelPush, Enabled: false},
		domain.ChannelRequest{Kind: domain.ChannelEmail, Enabled: true},
	))
	d.Drain(context.Background())

	if len(push.sent) != 0 {
		t.Error("disabled push channel must not be attempted")
	}
	if len(email.sent) != 1 {
		t.Error("enabled email channel must be attempted")
	}
}

func TestDrain_ChannelFailureDoesNotBlockOthers(t *testing.T) {
	d, _, _ := newTestDispatcher()
	push := &fakeSender{errs: map[string]error{"n1": errors.New("push down")}}
	email := &fakeSender{}
	d.RegisterSender(domain.ChannelPush, push)
	d.RegisterSender(domain.ChannelEmail, email)

	d.Enqueue(notification("n1", "u1",
		domain.ChannelRequest{Kind: domain.ChannelPush, Enabled: true},
		domain.ChannelRequest{Kind: domain.ChannelEmail, Enabled: true},
	))
	d.Enqueue(notification("n2", "u1",
		domain.ChannelRequest{Kind: domain.ChannelPush, Enabled: true},
	))

	d.Drain(context.Background())

	if len(email.sent) != 1 {
		t.Error("email should still be attempted after push failure")
	}
	if len(push.sent) != 1 || push.sent[0].ID != "n2" {
		t.Errorf("queue should keep draining after a failed delivery, push sent: %+v", push.sent)
	}
}

func TestDrain_InAppDeliveredToConnectedChannel(t *testing.T) {
	d, hub, _ := newTestDispatcher()
	ch := &fakeChannel{id: "c1", userID: "u1", connected: true}
	hub.Register(ch)

	d.Enqueue(notification("n1", "u1",
		domain.ChannelRequest{Kind: domain.ChannelInApp, Enabled: true},
	))
	d.Drain(context.Background())

	if len(ch.sent) != 1 {
		t.Fatalf("in-app messages sent = %d, want 1", len(ch.sent))
	}
	msg := ch.sent[0]
	if msg.Type != domain.MsgNotification {
		t.Errorf("message type = %q, want %q", msg.Type, domain.MsgNotification)
	}
	if msg.Notification == nil || msg.Notification.ID != "n1" {
		t.Errorf("in-app payload missing notification: %+v", msg)
	}
}

func TestDrain_InAppNoChannelIsSilentNoop(t *testing.T) {
	d, _, _ := newTestDispatcher()

	d.Enqueue(notification("n1", "ghost",
		domain.ChannelRequest{Kind: domain.ChannelInApp, Enabled: true},
	))
	d.Drain(context.Background()) // must not panic or error

	if d.Len() != 0 {
		t.Fatal("notification should be consumed even without a connected channel")
	}
}

// Expiry is a client-display concern: the dispatcher deliberately does
// not filter on expires_at before attempting delivery.
func TestDrain_ExpiredNotificationStillDelivered(t *testing.T) {
	d, _, clock := newTestDispatcher()
	push := &fakeSender{}
	d.RegisterSender(domain.ChannelPush, push)

	n := notification("n1", "u1", domain.ChannelRequest{Kind: domain.ChannelPush, Enabled: true})
	n.ExpiresAt = clock.Now().Add(-time.Hour)
	d.Enqueue(n)

	d.Drain(context.Background())

	if len(push.sent) != 1 {
		t.Fatal("expired notification must still be attempted")
	}
}

func TestDrainOne_PopsAtMostOne(t *testing.T) {
	d, _, _ := newTestDispatcher()
	push := &fakeSender{}
	d.RegisterSender(domain.ChannelPush, push)

	if d.DrainOne(context.Background()) {
		t.Fatal("DrainOne on empty queue should report false")
	}

	d.Enqueue(notification("n1", "u1", domain.ChannelRequest{Kind: domain.ChannelPush, Enabled: true}))
	d.Enqueue(notification("n2", "u1", domain.ChannelRequest{Kind: domain.ChannelPush, Enabled: true}))

	if !d.DrainOne(context.Background()) {
		t.Fatal("DrainOne should pop a queued notification")
	}
	if d.Len() != 1 {
		t.Fatalf("queue depth = %d, want 1 after DrainOne", d.Len())
	}
}
