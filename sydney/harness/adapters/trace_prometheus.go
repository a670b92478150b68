package adapters

import (
	"context"
	"fmt"
	"time"

	ports "github.com/ZanzyTHEbar/sydney-stream/sydney/harness/ports"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusTracer records span counts, span durations and event counts.
type PrometheusTracer struct {
	spans    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	events   *prometheus.CounterVec
}

// NewPrometheusTracer registers the tracer metrics with reg.
func NewPrometheusTracer(reg prometheus.Registerer) (*PrometheusTracer, error) {
	t := &PrometheusTracer{
		spans: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sydney",
				Subsystem: "harness",
				Name:      "spans_total",
				Help:      "Total finished spans by outcome",
			},
			[]string{"span", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sydney",
				Subsystem: "harness",
				Name:      "span_duration_seconds",
				Help:      "Span duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"span"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sydney",
				Subsystem: "harness",
				Name:      "events_total",
				Help:      "Total tracing events by name",
			},
			[]string{"event"},
		),
	}

	for _, c := range []prometheus.Collector{t.spans, t.duration, t.events} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register harness metrics: %w", err)
		}
	}
	return t, nil
}

func (t *PrometheusTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	start := time.Now()
	return ctx, func(err error) {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		t.spans.WithLabelValues(name, outcome).Inc()
		t.duration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
}

func (t *PrometheusTracer) Event(ctx context.Context, name string, attrs map[string]any) {
	t.events.WithLabelValues(name).Inc()
}

// MultiTracer fans spans and events out to several tracers.
type MultiTracer []ports.Tracer

func (m MultiTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	finishers := make([]func(error), 0, len(m))
	for _, t := range m {
		var finish func(error)
		ctx, finish = t.StartSpan(ctx, name, attrs)
		finishers = append(finishers, finish)
	}
	return ctx, func(err error) {
		for i := len(finishers) - 1; i >= 0; i-- {
			finishers[i](err)
		}
	}
}

func (m MultiTracer) Event(ctx context.Context, name string, attrs map[string]any) {
	for _, t := range m {
		t.Event(ctx, name, attrs)
	}
}

var (
	_ ports.Tracer = (*PrometheusTracer)(nil)
	_ ports.Tracer = MultiTracer(nil)
)
