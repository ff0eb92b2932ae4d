package session

import (
	"testing"

	"github.com/homewatch/homewatch/internal/domain"
)

type fakeChannel struct {
	id        string
	userID    string
	connected bool
	sent      []domain.StreamMessage
}

func (f *fakeChannel) ID() string          { return f.id }
func (f *fakeChannel) UserID() string      { return f.userID }
func (f *fakeChannel) IsConnected() bool   { return f.connected }
func (f *fakeChannel) Send(m domain.StreamMessage) error {
	f.sent = append(f.sent, m)
	return nil
}

func TestHub_RegisterAndLookup(t *testing.T) {
	h := NewHub()
	ch := &fakeChannel{id: "c1", userID: "u1", connected: true}
	h.Register(ch)

	got, ok := h.ChannelForUser("u1")
	if !ok {
		t.Fatal("expected channel for registered user")
	}
	if got.ID() != "c1" {
		t.Fatalf("got channel %s, want c1", got.ID())
	}
	if h.Count() != 1 {
		t.Fatalf("count = %d, want 1", h.Count())
	}
}

func TestHub_SkipsDisconnectedChannels(t *testing.T) {
	h := NewHub()
	h.Register(&fakeChannel{id: "c1", userID: "u1", connected: false})
	h.Register(&fakeChannel{id: "c2", userID: "u1", connected: true})

	got, ok := h.ChannelForUser("u1")
	if !ok || got.ID() != "c2" {
		t.Fatalf("expected the connected channel c2, got %v ok=%v", got, ok)
	}
}

func TestHub_UnregisterIsIdempotent(t *testing.T) {
	h := NewHub()
	h.Register(&fakeChannel{id: "c1", userID: "u1", connected: true})

	h.Unregister("c1")
	h.Unregister("c1")
	h.Unregister("missing")

	if _, ok := h.ChannelForUser("u1"); ok {
		t.Fatal("channel survived Unregister")
	}
	if h.Count() != 0 {
		t.Fatalf("count = %d, want 0", h.Count())
	}
}

func TestHub_NoChannelForUnknownUser(t *testing.T) {
	h := NewHub()
	if _, ok := h.ChannelForUser("ghost"); ok {
		t.Fatal("unexpected channel for unknown user")
	}
}
