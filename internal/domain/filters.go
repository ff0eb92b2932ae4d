package domain

// UrgencyTimeline describes how soon the user intends to act.
type UrgencyTimeline string

const (
	UrgencyImmediate UrgencyTimeline = "immediate"
	UrgencySoon      UrgencyTimeline = "soon"
	UrgencyExploring UrgencyTimeline = "exploring"
)

// SearchFilters is a set of optional listing constraints. A nil field
// means "unconstrained". Filters are value objects: Merge and Widen
// return new values and never mutate their inputs.
type SearchFilters struct {
	MinPrice          *float64         `json:"min_price,omitempty"`
	MaxPrice          *float64         `json:"max_price,omitempty"`
	Location          *string          `json:"location,omitempty"`
	RadiusMiles       *float64         `json:"radius_miles,omitempty"`
	PropertyType      *string          `json:"property_type,omitempty"`
	MinBedrooms       *int             `json:"min_bedrooms,omitempty"`
	MinBathrooms      *float64         `json:"min_bathrooms,omitempty"`
	MinSquareFootage  *int             `json:"min_square_footage,omitempty"`
	MaxSquareFootage  *int             `json:"max_square_footage,omitempty"`
	Features          []string         `json:"features,omitempty"`
	AccessibilityTags []string         `json:"accessibility_tags,omitempty"`
	VAEligible        *bool            `json:"va_eligible,omitempty"`
	CreativeFinancing *bool            `json:"creative_financing,omitempty"`
	Urgency           *UrgencyTimeline `json:"urgency,omitempty"`
}

// IsEmpty reports whether no constraint is set.
func (f SearchFilters) IsEmpty() bool {
	return f.MinPrice == nil && f.MaxPrice == nil && f.Location == nil &&
		f.RadiusMiles == nil && f.PropertyType == nil && f.MinBedrooms == nil &&
		f.MinBathrooms == nil && f.MinSquareFootage == nil && f.MaxSquareFootage == nil &&
		len(f.Features) == 0 && len(f.AccessibilityTags) == 0 &&
		f.VAEligible == nil && f.CreativeFinancing == nil && f.Urgency == nil
}

// Merge overlays other on top of f with field-level precedence: a value
// present in other wins, numeric minimums take the maximum of both
// sides, set-valued fields are unioned, and VA eligibility is sticky
// true once requested. Merging with an empty filter set is identity.
func (f SearchFilters) Merge(other SearchFilters) SearchFilters {
	out := f

	out.MinPrice = mergeMinimum(f.MinPrice, other.MinPrice)
	out.MaxPrice = pickFloat(f.MaxPrice, other.MaxPrice)
	out.Location = pickString(f.Location, other.Location)
	out.RadiusMiles = pickFloat(f.RadiusMiles, other.RadiusMiles)
	out.PropertyType = pickString(f.PropertyType, other.PropertyType)
	out.MinBedrooms = mergeMinimumInt(f.MinBedrooms, other.MinBedrooms)
	out.MinBathrooms = mergeMinimum(f.MinBathrooms, other.MinBathrooms)
	out.MinSquareFootage = mergeMinimumInt(f.MinSquareFootage, other.MinSquareFootage)
	out.MaxSquareFootage = pickInt(f.MaxSquareFootage, other.MaxSquareFootage)
	out.Features = unionTags(f.Features, other.Features)
	out.AccessibilityTags = unionTags(f.AccessibilityTags, other.AccessibilityTags)
	out.CreativeFinancing = pickBool(f.CreativeFinancing, other.CreativeFinancing)
	out.Urgency = pickUrgency(f.Urgency, other.Urgency)

	// VA eligibility is sticky: once either side requested it, it stays.
	switch {
	case boolVal(f.VAEligible) || boolVal(other.VAEligible):
		t := true
		out.VAEligible = &t
	default:
		out.VAEligible = pickBool(f.VAEligible, other.VAEligible)
	}

	return out
}

// Widen returns the most permissive combination of f and other: price
// bounds widen outward, minimums take the smaller value, set fields
// are unioned. Used by the search-pattern tracker, not by stream
// filter updates.
func (f SearchFilters) Widen(other SearchFilters) SearchFilters {
	out := f

	out.MinPrice = widenMinimum(f.MinPrice, other.MinPrice)
	out.MaxPrice = widenMaximum(f.MaxPrice, other.MaxPrice)
	out.Location = pickString(f.Location, other.Location)
	out.RadiusMiles = widenMaximum(f.RadiusMiles, other.RadiusMiles)
	out.PropertyType = pickString(f.PropertyType, other.PropertyType)
	out.MinBedrooms = widenMinimumInt(f.MinBedrooms, other.MinBedrooms)
	out.MinBathrooms = widenMinimum(f.MinBathrooms, other.MinBathrooms)
	out.MinSquareFootage = widenMinimumInt(f.MinSquareFootage, other.MinSquareFootage)
	out.MaxSquareFootage = widenMaximumInt(f.MaxSquareFootage, other.MaxSquareFootage)
	out.Features = unionTags(f.Features, other.Features)
	out.AccessibilityTags = unionTags(f.AccessibilityTags, other.AccessibilityTags)
	out.VAEligible = pickBool(f.VAEligible, other.VAEligible)
	out.CreativeFinancing = pickBool(f.CreativeFinancing, other.CreativeFinancing)
	out.Urgency = pickUrgency(f.Urgency, other.Urgency)

	return out
}

func pickFloat(a, b *float64) *float64 {
	if b != nil {
		v := *b
		return &v
	}
	return copyFloat(a)
}

func pickInt(a, b *int) *int {
	if b != nil {
		v := *b
		return &v
	}
	return copyInt(a)
}

func pickString(a, b *string) *string {
	if b != nil {
		v := *b
		return &v
	}
	if a != nil {
		v := *a
		return &v
	}
	return nil
}

func pickBool(a, b *bool) *bool {
	if b != nil {
		v := *b
		return &v
	}
	if a != nil {
		v := *a
		return &v
	}
	return nil
}

func pickUrgency(a, b *UrgencyTimeline) *UrgencyTimeline {
	if b != nil {
		v := *b
		return &v
	}
	if a != nil {
		v := *a
		return &v
	}
	return nil
}

func mergeMinimum(a, b *float64) *float64 {
	if a == nil {
		return copyFloat(b)
	}
	if b == nil {
		return copyFloat(a)
	}
	v := *a
	if *b > v {
		v = *b
	}
	return &v
}

func mergeMinimumInt(a, b *int) *int {
	if a == nil {
		return copyInt(b)
	}
	if b == nil {
		return copyInt(a)
	}
	v := *a
	if *b > v {
		v = *b
	}
	return &v
}

func widenMinimum(a, b *float64) *float64 {
	if a == nil || b == nil {
		// A missing minimum is already the most permissive.
		return nil
	}
	v := *a
	if *b < v {
		v = *b
	}
	return &v
}

func widenMinimumInt(a, b *int) *int {
	if a == nil || b == nil {
		return nil
	}
	v := *a
	if *b < v {
		v = *b
	}
	return &v
}

func widenMaximum(a, b *float64) *float64 {
	if a == nil || b == nil {
		return nil
	}
	v := *a
	if *b > v {
		v = *b
	}
	return &v
}

func widenMaximumInt(a, b *int) *int {
	if a == nil || b == nil {
		return nil
	}
	v := *a
	if *b > v {
		v = *b
	}
	return &v
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func unionTags(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, s := range b {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func boolVal(p *bool) bool {
	return p != nil && *p
}
