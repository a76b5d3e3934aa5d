package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrometheusProviderExposesIncrementedCounters(t *testing.T) {
	p := NewPrometheusProvider()
	counter := p.NewCounter(CommonOpts{Subsystem: "engine", Name: "runs_total", Help: "flow runs"})
	counter.Inc(1, "ok")
	counter.Inc(2, "ok")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	p.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.Contains(t, body, "flowmesh_engine_runs_total")
	assert.Contains(t, body, "3")
}

func TestPrometheusProviderHistogramRecordsObservations(t *testing.T) {
	p := NewPrometheusProvider()
	hist := p.NewHistogram(CommonOpts{Subsystem: "engine", Name: "run_duration_seconds", Help: "run durations"})
	hist.Observe(0.5, "flow-1")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	p.Handler().ServeHTTP(rec, req)

	assert.True(t, strings.Contains(rec.Body.String(), "flowmesh_engine_run_duration_seconds"))
}

func TestNoopProviderNeverPanics(t *testing.T) {
	p := NewNoopProvider()
	counter := p.NewCounter(CommonOpts{Name: "x"})
	hist := p.NewHistogram(CommonOpts{Name: "y"})
	counter.Inc(1)
	hist.Observe(1.0)
	assert.NoError(t, p.Health(nil))
}
