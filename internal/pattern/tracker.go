// Package pattern tracks per-user search behavior: the most
// permissive filter set seen so far and time-of-day usage buckets.
// The predictive cache consults it to decide when preloading is worth
// the effort.
package pattern

import (
	"sync"
	"time"

	"github.com/homewatch/homewatch/internal/domain"
)

// TimeBucket is one (day-of-week, hour-of-day) usage counter.
type TimeBucket struct {
	Day       time.Weekday `json:"day"`
	Hour      int          `json:"hour"`
	Frequency int          `json:"frequency"`
}

// SearchPattern is one user's accumulated search behavior. Buckets are
// unique per (day, hour) pair; Frequency only ever increases.
type SearchPattern struct {
	UserID           string                `json:"user_id"`
	CommonFilters    domain.SearchFilters  `json:"common_filters"`
	Frequency        int                   `json:"frequency"`
	Buckets          []TimeBucket          `json:"buckets"`
	AvgSessionLength time.Duration         `json:"avg_session_length"`
	sessions         int
}

// MaxBucketFrequency returns the highest single-bucket frequency.
func (p *SearchPattern) MaxBucketFrequency() int {
	max := 0
	for _, b := range p.Buckets {
		if b.Frequency > max {
			max = b.Frequency
		}
	}
	return max
}

// Tracker is the per-user pattern store.
type Tracker struct {
	mu       sync.RWMutex
	patterns map[string]*SearchPattern
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{patterns: make(map[string]*SearchPattern)}
}

// Record folds one search into the user's pattern: filters widen to
// the most permissive combination, the frequency counter increments,
// and the matching (day, hour) bucket increments or is appended.
func (t *Tracker) Record(userID string, filters domain.SearchFilters, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.patterns[userID]
	if !ok {
		p = &SearchPattern{UserID: userID, CommonFilters: filters}
		t.patterns[userID] = p
	} else {
		p.CommonFilters = p.CommonFilters.Widen(filters)
	}
	p.Frequency++

	day, hour := at.Weekday(), at.Hour()
	for i := range p.Buckets {
		if p.Buckets[i].Day == day && p.Buckets[i].Hour == hour {
			p.Buckets[i].Frequency++
			return
		}
	}
	p.Buckets = append(p.Buckets, TimeBucket{Day: day, Hour: hour, Frequency: 1})
}

// RecordSessionLength folds one finished session into the running
// average session length.
func (t *Tracker) RecordSessionLength(userID string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.patterns[userID]
	if !ok {
		p = &SearchPattern{UserID: userID}
		t.patterns[userID] = p
	}
	p.sessions++
	n := time.Duration(p.sessions)
	p.AvgSessionLength += (d - p.AvgSessionLength) / n
}

// Pattern returns a copy of the user's pattern.
func (t *Tracker) Pattern(userID string) (SearchPattern, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, ok := t.patterns[userID]
	if !ok {
		return SearchPattern{}, false
	}
	out := *p
	out.Buckets = append([]TimeBucket(nil), p.Buckets...)
	return out, true
}

// Clear drops all pattern state.
func (t *Tracker) Clear() {
	t.mu.Lock()
	t.patterns = make(map[string]*SearchPattern)
	t.mu.Unlock()
}
