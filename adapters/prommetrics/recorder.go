// Package prommetrics implements core.MetricsRecorder on the Prometheus client.
package prommetrics

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-appshell/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Option func(*Recorder)

// WithNamespace prefixes every metric name.
func WithNamespace(namespace string) Option {
	return func(r *Recorder) {
		r.namespace = sanitize(namespace)
	}
}

func WithBuckets(buckets []float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = append([]float64(nil), buckets...)
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Recorder lazily creates one vector per metric name. The label names of a
// metric are fixed by its first observation; later tags are projected onto
// them, unknown tags are dropped.
type Recorder struct {
	registry   *prometheus.Registry
	namespace  string
	buckets    []float64
	logger     core.Logger
	mu         sync.Mutex
	counters   map[string]*vec[*prometheus.CounterVec]
	histograms map[string]*vec[*prometheus.HistogramVec]
}

type vec[T any] struct {
	collector T
	labels    []string
}

func New(registry *prometheus.Registry, opts ...Option) *Recorder {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	r := &Recorder{
		registry:   registry,
		buckets:    prometheus.DefBuckets,
		counters:   map[string]*vec[*prometheus.CounterVec]{},
		histograms: map[string]*vec[*prometheus.HistogramVec]{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) IncCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if value < 0 {
		return
	}
	metric := r.counter(ctx, name, tags)
	if metric == nil {
		return
	}
	metric.collector.WithLabelValues(project(metric.labels, tags)...).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	metric := r.histogram(ctx, name, tags)
	if metric == nil {
		return
	}
	metric.collector.WithLabelValues(project(metric.labels, tags)...).Observe(value)
}

func (r *Recorder) counter(ctx context.Context, name string, tags map[string]string) *vec[*prometheus.CounterVec] {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := r.metricName(name)
	if existing, ok := r.counters[key]; ok {
		return existing
	}
	labels := labelNames(tags)
	collector := prometheus.NewCounterVec(prometheus.CounterOpts{Name: key, Help: "appshell counter " + name}, labels)
	if err := r.registry.Register(collector); err != nil {
		r.registrationFailed(ctx, key, err)
		return nil
	}
	metric := &vec[*prometheus.CounterVec]{collector: collector, labels: labels}
	r.counters[key] = metric
	return metric
}

func (r *Recorder) histogram(ctx context.Context, name string, tags map[string]string) *vec[*prometheus.HistogramVec] {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := r.metricName(name)
	if existing, ok := r.histograms[key]; ok {
		return existing
	}
	labels := labelNames(tags)
	collector := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    key,
		Help:    "appshell histogram " + name,
		Buckets: r.buckets,
	}, labels)
	if err := r.registry.Register(collector); err != nil {
		r.registrationFailed(ctx, key, err)
		return nil
	}
	metric := &vec[*prometheus.HistogramVec]{collector: collector, labels: labels}
	r.histograms[key] = metric
	return metric
}

func (r *Recorder) registrationFailed(ctx context.Context, name string, err error) {
	core.Log(ctx, r.logger, "warn", "prometheus metric registration failed", map[string]any{
		"metric": name,
		"error":  err.Error(),
	})
}

func (r *Recorder) metricName(name string) string {
	base := sanitize(name)
	if r.namespace == "" {
		return base
	}
	return r.namespace + "_" + base
}

func labelNames(tags map[string]string) []string {
	names := make([]string, 0, len(tags))
	for key := range tags {
		if label := sanitize(key); label != "" {
			names = append(names, label)
		}
	}
	sort.Strings(names)
	return names
}

func project(labels []string, tags map[string]string) []string {
	normalized := make(map[string]string, len(tags))
	for key, value := range tags {
		normalized[sanitize(key)] = value
	}
	values := make([]string, len(labels))
	for index, label := range labels {
		values[index] = normalized[label]
	}
	return values
}

// sanitize maps name onto the Prometheus metric name alphabet.
func sanitize(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	for index, ch := range name {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch == '_':
			b.WriteRune(ch)
		case ch >= '0' && ch <= '9':
			if index == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(ch)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

var _ core.MetricsRecorder = (*Recorder)(nil)
