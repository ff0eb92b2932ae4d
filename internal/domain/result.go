package domain

// MatchResult is one scored candidate listing returned by the search
// engine. Score is on a 0-100 scale; Confidence is in [0,1].
type MatchResult struct {
	ListingID        string   `json:"listing_id"`
	Score            float64  `json:"score"`
	Listing          *Listing `json:"listing,omitempty"`
	Benefits         []string `json:"benefits,omitempty"`
	Confidence       float64  `json:"confidence"`
	FinancingSummary string   `json:"financing_summary,omitempty"`
}

// QualityScore is the composite quality of a result set, each
// component in [0,1].
type QualityScore struct {
	Relevance    float64 `json:"relevance"`
	Freshness    float64 `json:"freshness"`
	Completeness float64 `json:"completeness"`
	Accuracy     float64 `json:"accuracy"`
	Overall      float64 `json:"overall"`
}

// AccuracyBudget selects how much effort the search engine spends.
type AccuracyBudget string

const (
	AccuracyFull    AccuracyBudget = "full"
	AccuracyReduced AccuracyBudget = "reduced"
)

// SearchRequest is the structured request handed to the external
// search capability.
type SearchRequest struct {
	UserID    string         `json:"user_id"`
	Query     string         `json:"query"`
	Filters   SearchFilters  `json:"filters"`
	SessionID string         `json:"session_id,omitempty"`
	Accuracy  AccuracyBudget `json:"accuracy"`
}

// ActionRecord is one piece of user-action telemetry forwarded to the
// interaction recorder.
type ActionRecord struct {
	SearchID  string `json:"search_id"`
	ListingID string `json:"listing_id,omitempty"`
	Action    string `json:"action"`
}
