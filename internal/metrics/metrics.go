package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AnalysesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "analysis_streams_active",
		Help: "Currently active analysis streams",
	})

	AnalysesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analysis_requests_total",
		Help: "Total analysis requests processed",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "analysis_stage_duration_seconds",
		Help:    "Per-stage latency",
		Buckets: []float64{0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	}, []string{"stage"})

	TimeToFirstToken = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "analysis_ttft_seconds",
		Help:    "Latency from upstream dispatch to first streamed token",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 3.0, 5.0, 10.0},
	})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "analysis_errors_total",
		Help: "Error counts by stage",
	}, []string{"stage", "error_type"})

	StreamChunks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analysis_stream_chunks_total",
		Help: "Total token chunks forwarded downstream",
	})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analysis_cache_hits_total",
		Help: "Analysis results served from cache",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analysis_cache_misses_total",
		Help: "Analysis requests that missed the cache",
	})
)
