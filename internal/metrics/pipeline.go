package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ActiveStreams tracks the current number of live search streams.
	ActiveStreams = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "homewatch",
		Name:      "active_streams",
		Help:      "Number of active live search streams",
	})

	// EvaluationDuration observes per-stream evaluation latency.
	EvaluationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "homewatch",
		Name:      "stream_evaluation_duration_seconds",
		Help:      "Live stream evaluation duration in seconds",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"source"}) // cache | search

	// CacheLookups counts predictive cache lookups by outcome.
	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "homewatch",
		Name:      "cache_lookups_total",
		Help:      "Predictive cache lookups by outcome",
	}, []string{"outcome"}) // hit | miss

	// NotificationDeliveries counts channel delivery attempts by result.
	NotificationDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "homewatch",
		Name:      "notification_deliveries_total",
		Help:      "Notification channel delivery attempts by channel and result",
	}, []string{"channel", "result"}) // result: ok | error | skipped

	// UpdateEvents counts processed property-update events by kind.
	UpdateEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "homewatch",
		Name:      "update_events_total",
		Help:      "Property-update events processed by kind",
	}, []string{"kind"})

	// UpdateFanoutLatency observes event-to-delivery latency.
	UpdateFanoutLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "homewatch",
		Name:      "update_fanout_latency_seconds",
		Help:      "Latency from update event receipt to fan-out completion",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})
)

// RegisterPipelineMetrics registers the pipeline collectors. Explicit,
// no init(), so tests can construct pipelines without global state.
func RegisterPipelineMetrics() {
	prometheus.MustRegister(ActiveStreams)
	prometheus.MustRegister(EvaluationDuration)
	prometheus.MustRegister(CacheLookups)
	prometheus.MustRegister(NotificationDeliveries)
	prometheus.MustRegister(UpdateEvents)
	prometheus.MustRegister(UpdateFanoutLatency)
}

// Snapshot is a point-in-time read of pipeline health.
type Snapshot struct {
	ActiveStreams          int           `json:"active_streams"`
	AvgResponseTime        time.Duration `json:"avg_response_time"`
	CacheHitRate           float64       `json:"cache_hit_rate"`
	UserSatisfaction       float64       `json:"user_satisfaction"`
	NotificationDelivery   float64       `json:"notification_delivery_rate"`
	RealTimeUpdateLatency  time.Duration `json:"real_time_update_latency"`
	EvaluationsTotal       int64         `json:"evaluations_total"`
	NotificationsAttempted int64         `json:"notifications_attempted"`
	TakenAt                time.Time     `json:"taken_at"`
}

// Tracker accumulates the pipeline-level aggregates the snapshot
// reports. Mutex-guarded; every observer path is hot but cheap.
type Tracker struct {
	mu sync.Mutex

	evaluations   int64
	totalEvalTime time.Duration

	satisfaction float64 // running average of quality overall
	satSamples   int64

	notifAttempts  int64
	notifDelivered int64

	updateLatency time.Duration // running average
	updateSamples int64
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker { return &Tracker{} }

// ObserveEvaluation records one stream evaluation.
func (t *Tracker) ObserveEvaluation(d time.Duration, qualityOverall float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.evaluations++
	t.totalEvalTime += d

	t.satSamples++
	t.satisfaction += (qualityOverall - t.satisfaction) / float64(t.satSamples)
}

// ObserveNotification records one channel delivery attempt.
func (t *Tracker) ObserveNotification(delivered bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.notifAttempts++
	if delivered {
		t.notifDelivered++
	}
}

// ObserveUpdateLatency records one fan-out completion latency.
func (t *Tracker) ObserveUpdateLatency(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.updateSamples++
	t.updateLatency += (d - t.updateLatency) / time.Duration(t.updateSamples)
}

// Snapshot assembles the point-in-time view. Active-stream count and
// cache hit rate come from their owners.
func (t *Tracker) Snapshot(activeStreams int, cacheHitRate float64, now time.Time) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		ActiveStreams:          activeStreams,
		CacheHitRate:           cacheHitRate,
		UserSatisfaction:       t.satisfaction,
		RealTimeUpdateLatency:  t.updateLatency,
		EvaluationsTotal:       t.evaluations,
		NotificationsAttempted: t.notifAttempts,
		TakenAt:                now,
	}
	if t.evaluations > 0 {
		s.AvgResponseTime = t.totalEvalTime / time.Duration(t.evaluations)
	}
	if t.notifAttempts > 0 {
		s.NotificationDelivery = float64(t.notifDelivered) / float64(t.notifAttempts)
	}
	return s
}
