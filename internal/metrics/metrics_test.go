package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"grocery/crawler/internal/recovery"
)

func TestMetricsRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.LinkDiscovered("category", 3)
	m.LinkDiscovered("category", 0)
	m.Visit("category", "success")
	m.Skip("priority_gate")
	m.Skip("priority_gate")
	m.AddProducts(12)
	m.ErrorRecorded(recovery.CategoryNetwork)
	m.BreakerChanged("navigate:network", recovery.StateOpen)

	assert.InDelta(t, 3, testutil.ToFloat64(m.LinksDiscovered.WithLabelValues("category")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Visits.WithLabelValues("category", "success")), 0.001)
	assert.InDelta(t, 2, testutil.ToFloat64(m.Skips.WithLabelValues("priority_gate")), 0.001)
	assert.InDelta(t, 12, testutil.ToFloat64(m.ProductsSaved), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Errors.WithLabelValues("network")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.BreakerState.WithLabelValues("navigate:network")), 0.001)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.LinkDiscovered("product", 1)
		m.Visit("product", "success")
		m.Skip("already_processed")
		m.AddProducts(1)
		m.ErrorRecorded(recovery.CategoryTimeout)
		m.BreakerChanged("navigate:network", recovery.StateClosed)
	})
}
