package fanout

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/homewatch/homewatch/internal/domain"
	"github.com/homewatch/homewatch/internal/metrics"
	"github.com/homewatch/homewatch/internal/sched"
	"github.com/homewatch/homewatch/internal/stream"
)

type push struct {
	streamID string
	msg      domain.StreamMessage
}

type fakeIndex struct {
	mu      sync.Mutex
	streams []stream.Info
	pushes  []push
}

func (f *fakeIndex) ForEachActive(fn func(stream.Info)) {
	for _, s := range f.streams {
		if s.Active {
			fn(s)
		}
	}
}

func (f *fakeIndex) Push(id string, msg domain.StreamMessage) bool {
	f.mu.Lock()
	f.pushes = append(f.pushes, push{streamID: id, msg: msg})
	f.mu.Unlock()
	return true
}

type fakeNotifier struct {
	mu    sync.Mutex
	queue []domain.PendingNotification
}

func (f *fakeNotifier) Enqueue(n domain.PendingNotification) {
	f.mu.Lock()
	f.queue = append(f.queue, n)
	f.mu.Unlock()
}

func newFanout(index *fakeIndex, notifier *fakeNotifier, cfg Config) *Fanout {
	clock := sched.NewManualClock(time.Unix(1_700_000_000, 0))
	return New(index, notifier, metrics.NewTracker(), clock, cfg, zap.NewNop())
}

func matchingStream(id, userID string) stream.Info {
	pt := "Single Family"
	beds := 3
	va := true
	return stream.Info{
		ID:     id,
		UserID: userID,
		Active: true,
		Filters: domain.SearchFilters{
			PropertyType: &pt,
			MinBedrooms:  &beds,
			VAEligible:   &va,
		},
	}
}

func matchingListing(id string, price float64) *domain.Listing {
	return &domain.Listing{
		ID:           id,
		Address:      "12 Oak St",
		City:         "Richmond",
		Price:        price,
		PropertyType: "Single Family",
		Bedrooms:     4,
		Bathrooms:    2,
		VAEligible:   true,
	}
}

func TestProcessUpdate_NewListingPushesAndNotifies(t *testing.T) {
	index := &fakeIndex{streams: []stream.Info{matchingStream("s1", "u1")}}
	notifier := &fakeNotifier{}
	f := newFanout(index, notifier, Config{})

	f.ProcessUpdate(domain.PropertyUpdateEvent{
		Kind:      domain.UpdateNewListing,
		ListingID: "l1",
		Listing:   matchingListing("l1", 300_000),
	})

	if len(index.pushes) != 1 || index.pushes[0].msg.Type != domain.MsgNewMatch {
		t.Fatalf("pushes = %+v, want one new_match", index.pushes)
	}
	if len(notifier.queue) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifier.queue))
	}
	n := notifier.queue[0]
	if n.Category != domain.NotifyNewMatch || n.Priority != domain.PriorityHigh {
		t.Errorf("notification = %+v, want new_match/high", n)
	}
}

func TestProcessUpdate_NewListingUrgentEscalation(t *testing.T) {
	// Lower the urgent threshold under the quick score this filter set
	// produces (50+12 price... no price filter here: 50+10+8+4+8 = 80).
	index := &fakeIndex{streams: []stream.Info{matchingStream("s1", "u1")}}
	notifier := &fakeNotifier{}
	f := newFanout(index, notifier, Config{MatchThreshold: 70, UrgentThreshold: 75})

	f.ProcessUpdate(domain.PropertyUpdateEvent{
		Kind:      domain.UpdateNewListing,
		ListingID: "l1",
		Listing:   matchingListing("l1", 300_000),
	})

	if len(notifier.queue) != 1 || notifier.queue[0].Priority != domain.PriorityUrgent {
		t.Fatalf("notification = %+v, want urgent priority", notifier.queue)
	}
}

func TestProcessUpdate_NewListingBelowThresholdIsSilent(t *testing.T) {
	index := &fakeIndex{streams: []stream.Info{matchingStream("s1", "u1")}}
	notifier := &fakeNotifier{}
	f := newFanout(index, notifier, Config{MatchThreshold: 95})

	f.ProcessUpdate(domain.PropertyUpdateEvent{
		Kind:      domain.UpdateNewListing,
		ListingID: "l1",
		Listing:   matchingListing("l1", 300_000),
	})

	if len(index.pushes) != 0 || len(notifier.queue) != 0 {
		t.Fatalf("below-threshold match must stay silent: pushes=%d notifs=%d",
			len(index.pushes), len(notifier.queue))
	}
}

func TestProcessUpdate_NonMatchingStreamUnaffected(t *testing.T) {
	beds := 6
	index := &fakeIndex{streams: []stream.Info{{
		ID: "s1", UserID: "u1", Active: true,
		Filters: domain.SearchFilters{MinBedrooms: &beds},
	}}}
	notifier := &fakeNotifier{}
	f := newFanout(index, notifier, Config{})

	f.ProcessUpdate(domain.PropertyUpdateEvent{
		Kind:      domain.UpdateNewListing,
		ListingID: "l1",
		Listing:   matchingListing("l1", 300_000), // 4 bedrooms
	})

	if len(index.pushes) != 0 || len(notifier.queue) != 0 {
		t.Fatal("non-matching stream must not receive deliveries")
	}
}

func TestProcessUpdate_PriceDropScenario(t *testing.T) {
	// $200,000 -> $185,000: 7.5% drop, above both thresholds.
	index := &fakeIndex{streams: []stream.Info{matchingStream("s1", "u1")}}
	notifier := &fakeNotifier{}
	f := newFanout(index, notifier, Config{})

	f.ProcessUpdate(domain.PropertyUpdateEvent{
		Kind:      domain.UpdatePriceChange,
		ListingID: "l1",
		Listing:   matchingListing("l1", 185_000),
		Changes: []domain.FieldChange{{
			Field: "price", OldNumeric: 200_000, NewNumeric: 185_000, Impact: domain.ImpactHigh,
		}},
	})

	if len(index.pushes) != 1 {
		t.Fatalf("pushes = %d, want 1", len(index.pushes))
	}
	msg := index.pushes[0].msg
	if msg.Type != domain.MsgPriceDrop || msg.OldPrice != 200_000 || msg.NewPrice != 185_000 {
		t.Errorf("push = %+v, want price_drop 200000->185000", msg)
	}

	if len(notifier.queue) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifier.queue))
	}
	n := notifier.queue[0]
	if n.Category != domain.NotifyPriceDrop || n.Priority != domain.PriorityHigh {
		t.Errorf("notification = %+v, want price_drop/high", n)
	}
	wantChannels := []domain.ChannelKind{domain.ChannelPush, domain.ChannelEmail, domain.ChannelInApp}
	if len(n.Channels) != len(wantChannels) {
		t.Fatalf("channels = %+v, want push+email+in_app", n.Channels)
	}
	for i, kind := range wantChannels {
		if n.Channels[i].Kind != kind || !n.Channels[i].Enabled {
			t.Errorf("channel[%d] = %+v, want enabled %s", i, n.Channels[i], kind)
		}
	}
}

func TestDropQualifies_Boundaries(t *testing.T) {
	f := newFanout(&fakeIndex{}, &fakeNotifier{}, Config{})

	cases := []struct {
		name     string
		oldPrice float64
		newPrice float64
		want     bool
	}{
		{"exactly 5 percent excluded", 500_000, 475_000, false},
		{"one cent above 5 percent", 500_000, 474_999.99, true},
		{"below absolute floor", 100_000, 95_100, false}, // 4.9k drop
		{"exactly the floor excluded", 60_000, 55_000, false},
		{"10k on 50k triggers", 50_000, 40_000, true},
		{"price increase", 200_000, 210_000, false},
		{"small drop", 200_000, 199_000, false},
	}
	for _, tc := range cases {
		if got := f.dropQualifies(tc.oldPrice, tc.newPrice); got != tc.want {
			t.Errorf("%s: dropQualifies(%v, %v) = %v, want %v",
				tc.name, tc.oldPrice, tc.newPrice, got, tc.want)
		}
	}
}

func TestProcessUpdate_RemovedPushOnly(t *testing.T) {
	index := &fakeIndex{streams: []stream.Info{matchingStream("s1", "u1")}}
	notifier := &fakeNotifier{}
	f := newFanout(index, notifier, Config{})

	f.ProcessUpdate(domain.PropertyUpdateEvent{
		Kind:      domain.UpdateRemoved,
		ListingID: "l1",
		Listing:   matchingListing("l1", 300_000),
	})

	if len(index.pushes) != 1 || index.pushes[0].msg.Type != domain.MsgListingRemoved {
		t.Fatalf("pushes = %+v, want one listing_removed", index.pushes)
	}
	if len(notifier.queue) != 0 {
		t.Error("removal events must not enqueue notifications")
	}
}

func TestProcessUpdate_DedupesNotificationsPerUser(t *testing.T) {
	index := &fakeIndex{streams: []stream.Info{
		matchingStream("s1", "u1"),
		matchingStream("s2", "u1"),
	}}
	notifier := &fakeNotifier{}
	f := newFanout(index, notifier, Config{})

	f.ProcessUpdate(domain.PropertyUpdateEvent{
		Kind:      domain.UpdateNewListing,
		ListingID: "l1",
		Listing:   matchingListing("l1", 300_000),
	})

	if len(index.pushes) != 2 {
		t.Errorf("pushes = %d, want one per stream", len(index.pushes))
	}
	if len(notifier.queue) != 1 {
		t.Errorf("notifications = %d, want one per user", len(notifier.queue))
	}
}

func TestRecentUpdates_BoundedNewestFirst(t *testing.T) {
	index := &fakeIndex{}
	f := newFanout(index, &fakeNotifier{}, Config{UpdateLogSize: 3})

	for i := 0; i < 5; i++ {
		f.ProcessUpdate(domain.PropertyUpdateEvent{
			Kind:      domain.UpdateStatusChange,
			ListingID: string(rune('a' + i)),
		})
	}

	recent := f.RecentUpdates(0)
	if len(recent) != 3 {
		t.Fatalf("log length = %d, want 3 (bounded)", len(recent))
	}
	if recent[0].ListingID != "e" || recent[2].ListingID != "c" {
		t.Errorf("order = [%s %s %s], want newest first e d c",
			recent[0].ListingID, recent[1].ListingID, recent[2].ListingID)
	}

	if got := f.RecentUpdates(2); len(got) != 2 || got[0].ListingID != "e" {
		t.Errorf("limited read = %+v", got)
	}
}

func TestProcessUpdate_AffectedUsersRecorded(t *testing.T) {
	index := &fakeIndex{streams: []stream.Info{
		matchingStream("s1", "u1"),
		matchingStream("s2", "u2"),
	}}
	f := newFanout(index, &fakeNotifier{}, Config{})

	f.ProcessUpdate(domain.PropertyUpdateEvent{
		Kind:      domain.UpdateNewListing,
		ListingID: "l1",
		Listing:   matchingListing("l1", 300_000),
	})

	recent := f.RecentUpdates(1)
	if len(recent) != 1 || len(recent[0].AffectedUsers) != 2 {
		t.Fatalf("affected users = %+v, want [u1 u2]", recent)
	}
}
