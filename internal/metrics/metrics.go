package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"grocery/crawler/internal/recovery"
)

// Metrics holds all Prometheus metrics for the crawler.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	LinksDiscovered *prometheus.CounterVec
	Visits          *prometheus.CounterVec
	Skips           *prometheus.CounterVec
	Errors          *prometheus.CounterVec
	ProductsSaved   prometheus.Counter
	BreakerState    *prometheus.GaugeVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		LinksDiscovered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_links_discovered_total",
			Help: "Links accepted by discovery, by link type",
		}, []string{"type"}),
		Visits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_visits_total",
			Help: "Link visits by link type and outcome",
		}, []string{"type", "outcome"}), // outcome: success, unsuccessful, failed
		Skips: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_skips_total",
			Help: "Links skipped without a visit, by reason",
		}, []string{"reason"}),
		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_errors_total",
			Help: "Errors recorded by the recovery manager, by category",
		}, []string{"category"}),
		ProductsSaved: factory.NewCounter(prometheus.CounterOpts{
			Name: "crawler_products_saved_total",
			Help: "Products saved by the extractor",
		}),
		BreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "crawler_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half open)",
		}, []string{"breaker"}),
	}
}

func (m *Metrics) LinkDiscovered(linkType string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.LinksDiscovered.WithLabelValues(linkType).Add(float64(n))
}

func (m *Metrics) Visit(linkType, outcome string) {
	if m == nil {
		return
	}
	m.Visits.WithLabelValues(linkType, outcome).Inc()
}

func (m *Metrics) Skip(reason string) {
	if m == nil {
		return
	}
	m.Skips.WithLabelValues(reason).Inc()
}

func (m *Metrics) AddProducts(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ProductsSaved.Add(float64(n))
}

// ErrorRecorded implements recovery.Observer
func (m *Metrics) ErrorRecorded(category recovery.Category) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(string(category)).Inc()
}

// BreakerChanged implements recovery.Observer
func (m *Metrics) BreakerChanged(name string, state recovery.State) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(name).Set(float64(state))
}
