package observer

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder exports sandbox metrics through a Prometheus registerer.
type PrometheusRecorder struct {
	compilesTotal   *prometheus.CounterVec
	runsTotal       *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	memoryUsage     *prometheus.HistogramVec
	offloadsTotal   *prometheus.CounterVec
	offloadBytes    prometheus.Histogram
	rateLimitedHits *prometheus.CounterVec
}

// NewPrometheusRecorder registers the sandbox collectors on reg.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		compilesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ojbox_compiles_total",
				Help: "Total number of compilations",
			},
			[]string{"language", "ok"},
		),
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ojbox_runs_total",
				Help: "Total number of bundle executions",
			},
			[]string{"verdict"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ojbox_duration_ms",
				Help:    "Wall time reported by the sandbox in milliseconds",
				Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
			},
			[]string{"phase"},
		),
		memoryUsage: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ojbox_memory_usage_kb",
				Help:    "Peak resident set size per sandbox process in KB",
				Buckets: []float64{1024, 4096, 16384, 65536, 131072, 262144, 1048576},
			},
			[]string{"phase"},
		),
		offloadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ojbox_output_offloads_total",
				Help: "Responses uploaded to object storage because they exceeded the inline limit",
			},
			[]string{"ok"},
		),
		offloadBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ojbox_output_offload_bytes",
				Help:    "Size of offloaded responses",
				Buckets: prometheus.ExponentialBuckets(5_000_000, 2, 8),
			},
		),
		rateLimitedHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ojbox_rate_limit_hits_total",
				Help: "Requests rejected by the rate limiter",
			},
			[]string{"route"},
		),
	}
}

func (p *PrometheusRecorder) ObserveCompile(ctx context.Context, language string, ok bool, timeMs int64, memoryKB int64) {
	p.compilesTotal.WithLabelValues(language, strconv.FormatBool(ok)).Inc()
	p.duration.WithLabelValues("compile").Observe(float64(timeMs))
	p.memoryUsage.WithLabelValues("compile").Observe(float64(memoryKB))
}

func (p *PrometheusRecorder) ObserveRun(ctx context.Context, verdict string, timeMs int64, memoryKB int64) {
	p.runsTotal.WithLabelValues(verdict).Inc()
	p.duration.WithLabelValues("run").Observe(float64(timeMs))
	p.memoryUsage.WithLabelValues("run").Observe(float64(memoryKB))
}

func (p *PrometheusRecorder) ObserveOffload(ctx context.Context, ok bool, sizeBytes int) {
	p.offloadsTotal.WithLabelValues(strconv.FormatBool(ok)).Inc()
	if ok {
		p.offloadBytes.Observe(float64(sizeBytes))
	}
}

func (p *PrometheusRecorder) ObserveRateLimited(ctx context.Context, route string) {
	p.rateLimitedHits.WithLabelValues(route).Inc()
}
