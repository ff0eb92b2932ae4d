// Package session wraps client duplex connections. The pipeline only
// ever sees the Channel interface; transport internals stay here.
package session

import (
	"sync"

	"github.com/homewatch/homewatch/internal/domain"
)

// Channel is one client's duplex connection as seen by the pipeline.
type Channel interface {
	ID() string
	UserID() string
	Send(msg domain.StreamMessage) error
	IsConnected() bool
}

// Inbound is a parsed client message.
type Inbound struct {
	Type     string                `json:"type"`
	StreamID string                `json:"stream_id,omitempty"`
	Query    string                `json:"query,omitempty"`
	Filters  *domain.SearchFilters `json:"filters,omitempty"`
	Action   *domain.ActionRecord  `json:"action,omitempty"`
}

// Inbound message types.
const (
	InPing          = "ping"
	InOpenStream    = "open_stream"
	InUpdateFilters = "update_filters"
	InForceRefresh  = "force_refresh"
	InCloseStream   = "close_stream"
	InAction        = "action"
)

// Hub indexes connected channels by user id. In-app notification
// delivery and fan-out pushes look up channels here.
type Hub struct {
	mu     sync.RWMutex
	byID   map[string]Channel
	byUser map[string][]string
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		byID:   make(map[string]Channel),
		byUser: make(map[string][]string),
	}
}

// Register adds a channel to the hub.
func (h *Hub) Register(ch Channel) {
	h.mu.Lock()
	h.byID[ch.ID()] = ch
	h.byUser[ch.UserID()] = append(h.byUser[ch.UserID()], ch.ID())
	h.mu.Unlock()
}

// Unregister removes a channel. Unknown ids are a no-op.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.byID[id]
	if !ok {
		return
	}
	delete(h.byID, id)

	ids := h.byUser[ch.UserID()]
	for i, cid := range ids {
		if cid == id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(h.byUser, ch.UserID())
	} else {
		h.byUser[ch.UserID()] = ids
	}
}

// ChannelForUser returns a currently connected channel for the user,
// or false if none is connected.
func (h *Hub) ChannelForUser(userID string) (Channel, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, id := range h.byUser[userID] {
		if ch, ok := h.byID[id]; ok && ch.IsConnected() {
			return ch, true
		}
	}
	return nil, false
}

// Count returns the number of registered channels.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byID)
}
