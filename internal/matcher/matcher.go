// Package matcher evaluates listings against search filters.
//
// Matching is conjunctive with open-world semantics on absence: a
// listing matches a filter set iff it violates none of the specified
// constraints, and a missing constraint never excludes a listing.
package matcher

import (
	"strings"

	"github.com/homewatch/homewatch/internal/domain"
)

// Matches reports whether the listing satisfies every specified
// constraint in filters. An empty filter set matches everything.
func Matches(l *domain.Listing, f domain.SearchFilters) bool {
	if l == nil {
		return false
	}
	if f.MinPrice != nil && l.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && l.Price > *f.MaxPrice {
		return false
	}
	if f.Location != nil && !locationMatches(l, *f.Location) {
		return false
	}
	// RadiusMiles needs a geocoded center the filter does not carry;
	// the external search engine applies it, so it never excludes here.
	if f.PropertyType != nil && !strings.EqualFold(l.PropertyType, *f.PropertyType) {
		return false
	}
	if f.MinBedrooms != nil && l.Bedrooms < *f.MinBedrooms {
		return false
	}
	if f.MinBathrooms != nil && l.Bathrooms < *f.MinBathrooms {
		return false
	}
	if f.MinSquareFootage != nil && l.SquareFootage < *f.MinSquareFootage {
		return false
	}
	if f.MaxSquareFootage != nil && l.SquareFootage > *f.MaxSquareFootage {
		return false
	}
	for _, feat := range f.Features {
		if !l.HasFeature(feat) {
			return false
		}
	}
	for _, tag := range f.AccessibilityTags {
		if !l.HasAccessibilityTag(tag) {
			return false
		}
	}
	if f.VAEligible != nil && *f.VAEligible && !l.VAEligible {
		return false
	}
	if f.CreativeFinancing != nil && *f.CreativeFinancing && !l.CreativeFinancing {
		return false
	}
	return true
}

// QuickScore re-scores a single listing against a filter set without a
// full search round trip. Reduced-effort: a fixed base plus bounded
// bonuses per satisfied preference, capped at 100. A listing that does
// not match at all scores 0.
func QuickScore(l *domain.Listing, f domain.SearchFilters) float64 {
	if !Matches(l, f) {
		return 0
	}

	score := 50.0

	if f.MinPrice != nil || f.MaxPrice != nil {
		score += 12
	}
	if f.PropertyType != nil {
		score += 10
	}
	if f.MinBedrooms != nil {
		score += 8
		if l.Bedrooms > *f.MinBedrooms {
			score += 4
		}
	}
	if f.MinBathrooms != nil {
		score += 4
	}
	if f.MinSquareFootage != nil || f.MaxSquareFootage != nil {
		score += 4
	}
	if len(f.Features) > 0 {
		score += 6
	}
	if len(f.AccessibilityTags) > 0 {
		score += 4
	}
	if boolDeref(f.VAEligible) && l.VAEligible {
		score += 8
	}
	if boolDeref(f.CreativeFinancing) && l.CreativeFinancing {
		score += 5
	}

	if score > 100 {
		score = 100
	}
	return score
}

func locationMatches(l *domain.Listing, loc string) bool {
	needle := strings.ToLower(loc)
	return strings.Contains(strings.ToLower(l.Location), needle) ||
		strings.Contains(strings.ToLower(l.City), needle) ||
		strings.Contains(strings.ToLower(l.Address), needle)
}

func boolDeref(p *bool) bool {
	return p != nil && *p
}
