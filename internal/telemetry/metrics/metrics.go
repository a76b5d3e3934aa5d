// Package metrics defines the minimal provider abstraction the runtime
// instruments flow runs against, plus three backends: a no-op, an
// OpenTelemetry-backed one, and a Prometheus-registry-backed one whose
// scrape handler cmd/flowmesh serves. Adapted from the teacher's
// engine/internal/telemetry/metrics provider interface and its
// engine/telemetry/metrics/otel_provider.go backend.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type Provider interface {
	NewCounter(opts CommonOpts) Counter
	NewHistogram(opts CommonOpts) Histogram
	Health(ctx context.Context) error
}

type Counter interface{ Inc(delta float64, labels ...string) }
type Histogram interface{ Observe(v float64, labels ...string) }

type CommonOpts struct {
	Namespace, Subsystem, Name, Help string
}

// --- no-op backend ---------------------------------------------------------

type noopProvider struct{}
type noopCounter struct{}
type noopHistogram struct{}

func NewNoopProvider() Provider                        { return noopProvider{} }
func (noopProvider) NewCounter(CommonOpts) Counter     { return noopCounter{} }
func (noopProvider) NewHistogram(CommonOpts) Histogram { return noopHistogram{} }
func (noopProvider) Health(context.Context) error      { return nil }
func (noopCounter) Inc(float64, ...string)             {}
func (noopHistogram) Observe(float64, ...string)       {}

// --- OpenTelemetry backend ---------------------------------------------------

type otelProvider struct {
	meter metric.Meter
}

// NewOTelProvider returns a Provider backed by an OTEL MeterProvider whose
// readers can include a Prometheus exporter. cmd/flowmesh does not use it.
func NewOTelProvider(mp *sdkmetric.MeterProvider, serviceName string) Provider {
	return &otelProvider{meter: mp.Meter(serviceName)}
}

func (p *otelProvider) NewCounter(opts CommonOpts) Counter {
	inst, err := p.meter.Float64Counter(buildName(opts), metric.WithDescription(opts.Help))
	if err != nil {
		return noopCounter{}
	}
	return &otelCounter{c: inst}
}

func (p *otelProvider) NewHistogram(opts CommonOpts) Histogram {
	inst, err := p.meter.Float64Histogram(buildName(opts), metric.WithDescription(opts.Help))
	if err != nil {
		return noopHistogram{}
	}
	return &otelHistogram{h: inst}
}

func (p *otelProvider) Health(context.Context) error { return nil }

func buildName(opts CommonOpts) string {
	name := opts.Name
	if opts.Subsystem != "" {
		name = opts.Subsystem + "." + name
	}
	if opts.Namespace != "" {
		name = opts.Namespace + "." + name
	}
	return name
}

type otelCounter struct{ c metric.Float64Counter }

func (c *otelCounter) Inc(delta float64, labels ...string) {
	c.c.Add(context.Background(), delta, metric.WithAttributes(attrsFromPairs(labels)...))
}

type otelHistogram struct{ h metric.Float64Histogram }

func (h *otelHistogram) Observe(v float64, labels ...string) {
	h.h.Record(context.Background(), v, metric.WithAttributes(attrsFromPairs(labels)...))
}

// attrsFromPairs turns an even-length ("key", "value", ...) slice into
// attribute.KeyValue pairs; a dangling trailing key is dropped.
func attrsFromPairs(labels []string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels)/2)
	for i := 0; i+1 < len(labels); i += 2 {
		attrs = append(attrs, attribute.String(labels[i], labels[i+1]))
	}
	return attrs
}

// --- Prometheus backend -----------------------------------------------------

// PrometheusProvider implements Provider directly against a Prometheus
// registry, for deployments that scrape rather than run an OTEL collector.
// Adapted from the teacher's engine/telemetry/metrics/prometheus.go, pared
// down to the Counter/Histogram surface this runtime's Provider exposes.
type PrometheusProvider struct {
	reg        *prom.Registry
	mu         sync.Mutex
	counters   map[string]*prom.CounterVec
	histograms map[string]*prom.HistogramVec
	handler    http.Handler
}

// NewPrometheusProvider returns a Provider backed by a fresh Prometheus
// registry and exposes its scrape handler via Handler.
func NewPrometheusProvider() *PrometheusProvider {
	reg := prom.NewRegistry()
	return &PrometheusProvider{
		reg:        reg,
		counters:   make(map[string]*prom.CounterVec),
		histograms: make(map[string]*prom.HistogramVec),
		handler:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
}

// Handler returns the http.Handler cmd/flowmesh mounts at /metrics.
func (p *PrometheusProvider) Handler() http.Handler { return p.handler }

func (p *PrometheusProvider) NewCounter(opts CommonOpts) Counter {
	name := buildName(opts)
	p.mu.Lock()
	defer p.mu.Unlock()
	vec, ok := p.counters[name]
	if !ok {
		vec = prom.NewCounterVec(prom.CounterOpts{Name: sanitizeName(name), Help: opts.Help}, []string{"label"})
		if err := p.reg.Register(vec); err != nil {
			if are, ok := err.(prom.AlreadyRegisteredError); ok {
				vec = are.ExistingCollector.(*prom.CounterVec)
			} else {
				return noopCounter{}
			}
		}
		p.counters[name] = vec
	}
	return &promCounter{vec: vec}
}

func (p *PrometheusProvider) NewHistogram(opts CommonOpts) Histogram {
	name := buildName(opts)
	p.mu.Lock()
	defer p.mu.Unlock()
	vec, ok := p.histograms[name]
	if !ok {
		vec = prom.NewHistogramVec(prom.HistogramOpts{Name: sanitizeName(name), Help: opts.Help, Buckets: prom.DefBuckets}, []string{"label"})
		if err := p.reg.Register(vec); err != nil {
			if are, ok := err.(prom.AlreadyRegisteredError); ok {
				vec = are.ExistingCollector.(*prom.HistogramVec)
			} else {
				return noopHistogram{}
			}
		}
		p.histograms[name] = vec
	}
	return &promHistogram{vec: vec}
}

func (p *PrometheusProvider) Health(context.Context) error { return nil }

// sanitizeName collapses this runtime's dotted metric names into
// Prometheus's underscore-separated fully-qualified name convention.
func sanitizeName(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		if name[i] == '.' || name[i] == '-' {
			out[i] = '_'
		} else {
			out[i] = name[i]
		}
	}
	return fmt.Sprintf("flowmesh_%s", out)
}

type promCounter struct{ vec *prom.CounterVec }

// Inc joins every label into a single "label" dimension: the Counter
// interface takes a flat key/value pair list that doesn't map cleanly onto
// Prometheus's fixed label-name vectors, so pairs are flattened to one
// value per call rather than declaring label names up front.
func (c *promCounter) Inc(delta float64, labels ...string) {
	c.vec.WithLabelValues(flattenLabels(labels)).Add(delta)
}

type promHistogram struct{ vec *prom.HistogramVec }

func (h *promHistogram) Observe(v float64, labels ...string) {
	h.vec.WithLabelValues(flattenLabels(labels)).Observe(v)
}

func flattenLabels(labels []string) string {
	if len(labels) == 0 {
		return ""
	}
	joined := labels[0]
	for _, l := range labels[1:] {
		joined += "," + l
	}
	return joined
}
