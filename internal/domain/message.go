package domain

import "time"

// MessageType discriminates outbound stream messages.
type MessageType string

const (
	MsgWelcome        MessageType = "welcome"
	MsgResultUpdate   MessageType = "result_update"
	MsgNewMatch       MessageType = "new_match"
	MsgPriceDrop      MessageType = "price_drop"
	MsgListingRemoved MessageType = "listing_removed"
	MsgSearchError    MessageType = "search_error"
	MsgPong           MessageType = "pong"
	MsgNotification   MessageType = "notification"
)

// StreamMessage is one message sent to a bound session channel.
type StreamMessage struct {
	Type      MessageType   `json:"type"`
	StreamID  string        `json:"stream_id,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Results   []MatchResult `json:"results,omitempty"`
	Quality   *QualityScore `json:"quality,omitempty"`
	Cached    bool          `json:"cached,omitempty"`
	Listing   *Listing      `json:"listing,omitempty"`
	OldPrice  float64       `json:"old_price,omitempty"`
	NewPrice  float64       `json:"new_price,omitempty"`
	Error     string        `json:"error,omitempty"`
	Info      string        `json:"info,omitempty"`

	// Notification carries the payload for in-app deliveries.
	Notification *PendingNotification `json:"notification,omitempty"`
}
