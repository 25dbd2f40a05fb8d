package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"engagely/internal/metrics"
)

func TestRecordTrackOutcome(t *testing.T) {
	before := testutil.ToFloat64(metrics.TrackedEventsTotal.WithLabelValues(metrics.OutcomeSuppressed))
	metrics.RecordTrackOutcome(metrics.OutcomeSuppressed)
	after := testutil.ToFloat64(metrics.TrackedEventsTotal.WithLabelValues(metrics.OutcomeSuppressed))

	assert.Equal(t, before+1, after)
}

func TestRecordRetentionDeletedIgnoresZero(t *testing.T) {
	before := testutil.ToFloat64(metrics.RetentionDeletedTotal.WithLabelValues("views"))
	metrics.RecordRetentionDeleted("views", 0)
	metrics.RecordRetentionDeleted("views", 3)

	assert.Equal(t, before+3, testutil.ToFloat64(metrics.RetentionDeletedTotal.WithLabelValues("views")))
}
