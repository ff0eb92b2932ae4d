package domain

import "time"

// NotificationCategory classifies a pending notification.
type NotificationCategory string

const (
	NotifyNewMatch        NotificationCategory = "new_match"
	NotifyPriceDrop       NotificationCategory = "price_drop"
	NotifyNewFeature      NotificationCategory = "new_feature"
	NotifyBetterFinancing NotificationCategory = "better_financing"
	NotifyUrgent          NotificationCategory = "urgent_opportunity"
)

// Priority orders notification importance.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ChannelKind identifies a notification delivery medium. Distinct from
// the session duplex connection.
type ChannelKind string

const (
	ChannelPush  ChannelKind = "push"
	ChannelEmail ChannelKind = "email"
	ChannelSMS   ChannelKind = "sms"
	ChannelInApp ChannelKind = "in_app"
)

// ChannelRequest is one requested delivery channel with its enabled flag.
type ChannelRequest struct {
	Kind    ChannelKind `json:"kind"`
	Enabled bool        `json:"enabled"`
}

// PendingNotification is one queued notification. Never mutated after
// enqueue except for per-channel delivery bookkeeping in the dispatcher.
type PendingNotification struct {
	ID        string               `json:"id"`
	UserID    string               `json:"user_id"`
	Category  NotificationCategory `json:"category"`
	ListingID string               `json:"listing_id"`
	Score     float64              `json:"score"`
	Title     string               `json:"title"`
	Message   string               `json:"message"`
	ActionURL string               `json:"action_url,omitempty"`
	Priority  Priority             `json:"priority"`
	ExpiresAt time.Time            `json:"expires_at"`
	Channels  []ChannelRequest     `json:"channels"`
	CreatedAt time.Time            `json:"created_at"`
}
