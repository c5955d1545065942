package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PromTracer records trace durations in a histogram labelled by trace
// name and the "status" attribute.
type PromTracer struct {
	duration *prometheus.HistogramVec
	total    *prometheus.CounterVec
}

// NewPromTracer registers the trace collectors on reg.
func NewPromTracer(reg prometheus.Registerer) (*PromTracer, error) {
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tasas",
		Name:      "trace_duration_seconds",
		Help:      "Duration of traced upstream operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"name", "status"})
	total := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tasas",
		Name:      "trace_total",
		Help:      "Traced operations by name, status and cache outcome.",
	}, []string{"name", "status", "cache"})

	for _, c := range []prometheus.Collector{duration, total} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return &PromTracer{duration: duration, total: total}, nil
}

func (p *PromTracer) Start(name string) Trace {
	return &promTrace{
		tracer: p,
		name:   name,
		start:  time.Now(),
		attrs:  map[string]string{},
	}
}

type promTrace struct {
	tracer *PromTracer
	name   string
	start  time.Time

	mu      sync.Mutex
	attrs   map[string]string
	stopped bool
}

func (t *promTrace) SetAttribute(key, value string) {
	t.mu.Lock()
	t.attrs[key] = value
	t.mu.Unlock()
}

func (t *promTrace) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	status := valueOr(t.attrs["status"], "unknown")
	cache := valueOr(t.attrs["cache"], "none")
	t.mu.Unlock()

	t.tracer.duration.WithLabelValues(t.name, status).Observe(time.Since(t.start).Seconds())
	t.tracer.total.WithLabelValues(t.name, status, cache).Inc()
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
