package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grocery/crawler/internal/config"
	"grocery/crawler/internal/crawler"
	"grocery/crawler/internal/metrics"
	"grocery/crawler/internal/recovery"
)

type staticStatus struct {
	stats crawler.Stats
}

func (s staticStatus) Stats() crawler.Stats { return s.stats }

func newTestServer(stats crawler.Stats) *Server {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.Visit("category", "success")
	return New(config.ServerConfig{Port: 0}, staticStatus{stats: stats}, reg)
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	healthy := newTestServer(crawler.Stats{Recovery: recovery.Health{Healthy: true, SuccessRate: 100}})
	rec := get(t, healthy, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	unhealthy := newTestServer(crawler.Stats{Recovery: recovery.Health{
		Healthy:      false,
		OpenBreakers: []string{"navigate:network"},
	}})
	rec = get(t, unhealthy, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "navigate:network")
}

func TestStats(t *testing.T) {
	s := newTestServer(crawler.Stats{Processed: 4, Discovered: 5, Phase: crawler.PhaseVisiting})

	rec := get(t, s, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 4, body["processed"])
	assert.Equal(t, "visiting", body["phase"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, newTestServer(crawler.Stats{}), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "crawler_visits_total")
}
