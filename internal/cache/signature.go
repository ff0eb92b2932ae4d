package cache

import (
	"strconv"
	"strings"

	"github.com/homewatch/homewatch/internal/domain"
)

// Signature reduces a filter set to a canonical cache key. Only the
// cache-relevant subset participates: price range, location, property
// type, bedroom minimum and VA eligibility. High-cardinality fields
// (feature tags, accessibility tags) are deliberately excluded to keep
// hit rates meaningful.
func Signature(f domain.SearchFilters) string {
	var b strings.Builder

	b.WriteString("pr:")
	b.WriteString(floatField(f.MinPrice))
	b.WriteByte('-')
	b.WriteString(floatField(f.MaxPrice))

	b.WriteString("|loc:")
	if f.Location != nil {
		b.WriteString(strings.ToLower(strings.TrimSpace(*f.Location)))
	} else {
		b.WriteByte('*')
	}

	b.WriteString("|pt:")
	if f.PropertyType != nil {
		b.WriteString(strings.ToLower(strings.TrimSpace(*f.PropertyType)))
	} else {
		b.WriteByte('*')
	}

	b.WriteString("|bd:")
	if f.MinBedrooms != nil {
		b.WriteString(strconv.Itoa(*f.MinBedrooms))
	} else {
		b.WriteByte('*')
	}

	b.WriteString("|va:")
	if f.VAEligible != nil && *f.VAEligible {
		b.WriteByte('1')
	} else {
		b.WriteByte('0')
	}

	return b.String()
}

func floatField(p *float64) string {
	if p == nil {
		return "*"
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}
