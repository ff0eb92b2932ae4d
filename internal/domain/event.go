package domain

import "time"

// UpdateKind discriminates property-update events.
type UpdateKind string

const (
	UpdateNewListing   UpdateKind = "new_listing"
	UpdatePriceChange  UpdateKind = "price_change"
	UpdateStatusChange UpdateKind = "status_change"
	UpdateRemoved      UpdateKind = "removed"
)

// ImpactTier classifies how much a field-level change matters to users.
type ImpactTier string

const (
	ImpactLow    ImpactTier = "low"
	ImpactMedium ImpactTier = "medium"
	ImpactHigh   ImpactTier = "high"
)

// FieldChange is one field-level change inside an update event.
// Numeric fields (price, square footage) populate OldNumeric/NewNumeric;
// everything else uses the text pair.
type FieldChange struct {
	Field      string     `json:"field"`
	OldValue   string     `json:"old_value,omitempty"`
	NewValue   string     `json:"new_value,omitempty"`
	OldNumeric float64    `json:"old_numeric,omitempty"`
	NewNumeric float64    `json:"new_numeric,omitempty"`
	Impact     ImpactTier `json:"impact"`
}

// PropertyUpdateEvent is one inbound listing-change event. Immutable
// once created; the fan-out step consumes it exactly once, though the
// same instance may reach many streams.
type PropertyUpdateEvent struct {
	Kind          UpdateKind    `json:"kind"`
	ListingID     string        `json:"listing_id"`
	Listing       *Listing      `json:"listing,omitempty"`
	Changes       []FieldChange `json:"changes,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
	AffectedUsers []string      `json:"affected_users,omitempty"`
}

// PriceChange returns the price field change, if the event carries one.
func (e *PropertyUpdateEvent) PriceChange() (FieldChange, bool) {
	for _, c := range e.Changes {
		if c.Field == "price" {
			return c, true
		}
	}
	return FieldChange{}, false
}
