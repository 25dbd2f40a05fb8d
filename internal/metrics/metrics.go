package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Tracking outcomes
const (
	OutcomeTracked    = "tracked"
	OutcomeSuppressed = "suppressed"
	OutcomeSkipped    = "skipped"
	OutcomeFailed     = "failed"
)

var (
	// ==================== HTTP METRICS ====================

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engagely_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route", "status"},
	)

	// ==================== TRACKING METRICS ====================

	// TrackedEventsTotal counts ingestion calls by outcome
	TrackedEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagely_tracked_events_total",
			Help: "Total number of tracking calls by outcome",
		},
		[]string{"outcome"},
	)

	// ==================== GEOLOCATION METRICS ====================

	// GeoLookupsTotal counts resolved lookups by where the answer came from
	GeoLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagely_geo_lookups_total",
			Help: "Total number of geolocation lookups by source",
		},
		[]string{"source"},
	)

	GeoProviderErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagely_geo_provider_errors_total",
			Help: "Total number of failed geolocation provider calls",
		},
		[]string{"provider"},
	)

	// ==================== AGGREGATION METRICS ====================

	AggregationRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagely_aggregation_runs_total",
			Help: "Total number of base aggregate rebuilds",
		},
		[]string{"status"}, // ok, empty, error
	)

	AggregationBatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engagely_aggregation_batch_duration_seconds",
			Help:    "Duration of batch aggregation runs in seconds",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"scope"}, // entity_type, recent, all
	)

	PeriodUpsertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagely_period_upserts_total",
			Help: "Total number of period rollup upserts",
		},
		[]string{"granularity", "status"},
	)

	// ==================== RETENTION METRICS ====================

	RetentionDeletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagely_retention_deleted_rows_total",
			Help: "Total number of rows removed by retention sweeps",
		},
		[]string{"kind"},
	)
)

// RecordTrackOutcome increments the tracking counter for outcome
func RecordTrackOutcome(outcome string) {
	TrackedEventsTotal.WithLabelValues(outcome).Inc()
}

// RecordGeoLookup increments the lookup counter for source
func RecordGeoLookup(source string) {
	GeoLookupsTotal.WithLabelValues(source).Inc()
}

// RecordGeoProviderError increments the provider error counter
func RecordGeoProviderError(provider string) {
	GeoProviderErrorsTotal.WithLabelValues(provider).Inc()
}

// RecordAggregation increments the rebuild counter
func RecordAggregation(status string) {
	AggregationRunsTotal.WithLabelValues(status).Inc()
}

// RecordPeriodUpsert increments the rollup counter
func RecordPeriodUpsert(granularity, status string) {
	PeriodUpsertsTotal.WithLabelValues(granularity, status).Inc()
}

// RecordRetentionDeleted adds n deleted rows for kind
func RecordRetentionDeleted(kind string, n int64) {
	if n > 0 {
		RetentionDeletedTotal.WithLabelValues(kind).Add(float64(n))
	}
}
