package domain

import "time"

// Listing is a single property listing as seen by the pipeline.
type Listing struct {
	ID                string    `json:"id"`
	Address           string    `json:"address"`
	City              string    `json:"city"`
	Location          string    `json:"location"` // neighborhood / area free text
	Latitude          *float64  `json:"latitude,omitempty"`
	Longitude         *float64  `json:"longitude,omitempty"`
	Price             float64   `json:"price"`
	PropertyType      string    `json:"property_type"`
	Bedrooms          int       `json:"bedrooms"`
	Bathrooms         float64   `json:"bathrooms"`
	SquareFootage     int       `json:"square_footage"`
	Features          []string  `json:"features,omitempty"`
	AccessibilityTags []string  `json:"accessibility_tags,omitempty"`
	VAEligible        bool      `json:"va_eligible"`
	CreativeFinancing bool      `json:"creative_financing"`
	ListedAt          time.Time `json:"listed_at"`
}

// HasFeature reports whether the listing carries the given feature tag.
func (l *Listing) HasFeature(tag string) bool {
	for _, f := range l.Features {
		if f == tag {
			return true
		}
	}
	return false
}

// HasAccessibilityTag reports whether the listing carries the given accessibility tag.
func (l *Listing) HasAccessibilityTag(tag string) bool {
	for _, t := range l.AccessibilityTags {
		if t == tag {
			return true
		}
	}
	return false
}
