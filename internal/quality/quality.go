// Package quality computes composite quality scores for result sets.
package quality

import "github.com/homewatch/homewatch/internal/domain"

// topN bounds how many results contribute to each component.
const topN = 10

// Weights of the composite score.
const (
	weightRelevance    = 0.4
	weightFreshness    = 0.2
	weightCompleteness = 0.2
	weightAccuracy     = 0.2
)

// Score rates a ranked result set against the filters that produced
// it. Every component is in [0,1]. Empty result sets score 0 on
// relevance, completeness and accuracy; freshness has nothing stale to
// report and scores 1.
func Score(results []domain.MatchResult, _ domain.SearchFilters) domain.QualityScore {
	q := domain.QualityScore{}

	if len(results) == 0 {
		q.Freshness = 1
		q.Overall = weightFreshness * q.Freshness
		return q
	}

	top := results
	if len(top) > topN {
		top = top[:topN]
	}

	var rel, fresh, comp, acc float64
	for i := range top {
		r := &top[i]

		// Relevance: base 0.5, +0.3 above the strong-match bar, +0.2
		// when the engine identified at least one concrete benefit.
		c := 0.5
		if r.Score > 85 {
			c += 0.3
		}
		if len(r.Benefits) > 0 {
			c += 0.2
		}
		rel += c

		fresh += freshness(r)
		comp += completeness(r)
		acc += accuracy(r)
	}

	n := float64(len(top))
	q.Relevance = clamp01(rel / n)
	q.Freshness = clamp01(fresh / n)
	q.Completeness = clamp01(comp / n)
	q.Accuracy = clamp01(acc / n)
	q.Overall = clamp01(weightRelevance*q.Relevance +
		weightFreshness*q.Freshness +
		weightCompleteness*q.Completeness +
		weightAccuracy*q.Accuracy)
	return q
}

func freshness(r *domain.MatchResult) float64 {
	v := 0.4
	if r.Listing != nil {
		v += 0.3
	}
	return v + 0.3*clamp01(r.Confidence)
}

func completeness(r *domain.MatchResult) float64 {
	var v float64
	if r.Listing != nil {
		v += 0.4
	}
	if r.FinancingSummary != "" {
		v += 0.3
	}
	if len(r.Benefits) > 0 {
		v += 0.3
	}
	return v
}

func accuracy(r *domain.MatchResult) float64 {
	v := 0.5 * clamp01(r.Confidence)
	if r.Score > 0 {
		v += 0.5
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
