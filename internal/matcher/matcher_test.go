package matcher

import (
	"testing"

	"github.com/homewatch/homewatch/internal/domain"
)

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }
func sptr(v string) *string   { return &v }
func bptr(v bool) *bool       { return &v }

func sampleListing() *domain.Listing {
	return &domain.Listing{
		ID:            "lst-1",
		Address:       "12 Oak St",
		City:          "Nashville",
		Location:      "East Nashville",
		Price:         250000,
		PropertyType:  "Single Family",
		Bedrooms:      3,
		Bathrooms:     2,
		SquareFootage: 1600,
		Features:      []string{"garage", "yard"},
		VAEligible:    true,
	}
}

func TestMatches_EmptyFiltersMatchEverything(t *testing.T) {
	if !Matches(sampleListing(), domain.SearchFilters{}) {
		t.Fatal("empty filter set must match any listing")
	}
}

func TestMatches_SingleViolationExcludes(t *testing.T) {
	l := sampleListing()

	cases := []struct {
		name string
		f    domain.SearchFilters
		want bool
	}{
		{"price below min", domain.SearchFilters{MinPrice: fptr(300000)}, false},
		{"price above max", domain.SearchFilters{MaxPrice: fptr(200000)}, false},
		{"price in range", domain.SearchFilters{MinPrice: fptr(200000), MaxPrice: fptr(300000)}, true},
		{"price at exact max", domain.SearchFilters{MaxPrice: fptr(250000)}, true},
		{"wrong type", domain.SearchFilters{PropertyType: sptr("Condo")}, false},
		{"type case-insensitive", domain.SearchFilters{PropertyType: sptr("single family")}, true},
		{"bedrooms short", domain.SearchFilters{MinBedrooms: iptr(4)}, false},
		{"bedrooms exact", domain.SearchFilters{MinBedrooms: iptr(3)}, true},
		{"bathrooms short", domain.SearchFilters{MinBathrooms: fptr(2.5)}, false},
		{"sqft short", domain.SearchFilters{MinSquareFootage: iptr(2000)}, false},
		{"sqft over max", domain.SearchFilters{MaxSquareFootage: iptr(1000)}, false},
		{"location substring", domain.SearchFilters{Location: sptr("nashville")}, true},
		{"location mismatch", domain.SearchFilters{Location: sptr("Memphis")}, false},
		{"feature present", domain.SearchFilters{Features: []string{"garage"}}, true},
		{"feature missing", domain.SearchFilters{Features: []string{"pool"}}, false},
		{"va required and eligible", domain.SearchFilters{VAEligible: bptr(true)}, true},
		{"creative financing required", domain.SearchFilters{CreativeFinancing: bptr(true)}, false},
		{"accessibility missing", domain.SearchFilters{AccessibilityTags: []string{"ramp"}}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Matches(l, tc.f); got != tc.want {
				t.Errorf("Matches = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMatches_VANotRequiredDoesNotExclude(t *testing.T) {
	l := sampleListing()
	l.VAEligible = false
	if !Matches(l, domain.SearchFilters{VAEligible: bptr(false)}) {
		t.Fatal("va_eligible=false must not exclude non-eligible listings")
	}
}

func TestMatches_NilListing(t *testing.T) {
	if Matches(nil, domain.SearchFilters{}) {
		t.Fatal("nil listing must not match")
	}
}

func TestMatches_ConjunctiveAcrossConstraints(t *testing.T) {
	l := sampleListing()
	f := domain.SearchFilters{
		MinPrice:     fptr(200000),
		MinBedrooms:  iptr(3),
		PropertyType: sptr("Single Family"),
		Features:     []string{"garage", "pool"},
	}
	if Matches(l, f) {
		t.Fatal("one violated constraint must exclude even when others pass")
	}
}

func TestQuickScore_NonMatchIsZero(t *testing.T) {
	if got := QuickScore(sampleListing(), domain.SearchFilters{MinBedrooms: iptr(5)}); got != 0 {
		t.Fatalf("QuickScore = %v, want 0 for non-matching listing", got)
	}
}

func TestQuickScore_RisesWithSatisfiedPreferences(t *testing.T) {
	l := sampleListing()
	base := QuickScore(l, domain.SearchFilters{})
	if base != 50 {
		t.Fatalf("empty-filter score = %v, want base 50", base)
	}

	rich := QuickScore(l, domain.SearchFilters{
		MinPrice:     fptr(200000),
		MaxPrice:     fptr(300000),
		PropertyType: sptr("Single Family"),
		MinBedrooms:  iptr(3),
		VAEligible:   bptr(true),
	})
	if rich <= base {
		t.Fatalf("score %v should exceed base %v when preferences are satisfied", rich, base)
	}
	if rich > 100 {
		t.Fatalf("score %v exceeds cap", rich)
	}
}

func TestQuickScore_HighValueMatchCrossesPushThreshold(t *testing.T) {
	l := sampleListing()
	f := domain.SearchFilters{
		MinPrice:     fptr(100000),
		MaxPrice:     fptr(300000),
		PropertyType: sptr("Single Family"),
		MinBedrooms:  iptr(2), // exceeded, earns the bonus
		Features:     []string{"garage"},
		VAEligible:   bptr(true),
	}
	if got := QuickScore(l, f); got < 80 {
		t.Fatalf("QuickScore = %v, want >= 80 for a strongly matching listing", got)
	}
}
