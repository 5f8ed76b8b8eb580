// Package metrics exposes pipeline counters through Prometheus.
//
// All recording methods are safe on a nil *Metrics so components can be
// constructed without instrumentation in tests.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	applog "lid/internal/log"
)

const namespace = "lid"

var logger = applog.New("metrics")

// Metrics contains all Prometheus metrics for the pipeline.
type Metrics struct {
	registry *prometheus.Registry

	// Capture metrics
	ChunksCaptured prometheus.Counter
	ReadErrors     prometheus.Counter
	ShortReads     prometheus.Counter

	// Window metrics
	WindowChunks prometheus.Gauge

	// Inference metrics
	InferencesRun       prometheus.Counter
	InferencesFailed    prometheus.Counter
	InferencesDropped   prometheus.Counter
	InferencesCoalesced prometheus.Counter
	InferenceDuration   prometheus.Histogram

	// Playback metrics
	Playbacks      prometheus.Counter
	PlaybackErrors prometheus.Counter
}

// NewMetrics creates all metrics on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ChunksCaptured: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_captured_total",
			Help:      "Total number of audio chunks delivered by the capture loop",
		}),
		ReadErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_read_errors_total",
			Help:      "Total number of failed device reads",
		}),
		ShortReads: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_short_reads_total",
			Help:      "Total number of reads that returned fewer samples than a chunk",
		}),
		WindowChunks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_chunks",
			Help:      "Current number of chunks held by the sliding window",
		}),
		InferencesRun: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inferences_total",
			Help:      "Total number of classifier invocations",
		}),
		InferencesFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inferences_failed_total",
			Help:      "Total number of classifier invocations that returned an error",
		}),
		InferencesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inferences_dropped_total",
			Help:      "Total number of inference requests discarded while another was running",
		}),
		InferencesCoalesced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inferences_coalesced_total",
			Help:      "Total number of inference requests folded into a pending rerun",
		}),
		InferenceDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Time spent flattening, classifying and ranking one window",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		Playbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playbacks_total",
			Help:      "Total number of playback attempts",
		}),
		PlaybackErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_errors_total",
			Help:      "Total number of playback attempts aborted by a device error",
		}),
	}
}

// Registry returns the registry holding the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ChunkCaptured() {
	if m != nil {
		m.ChunksCaptured.Inc()
	}
}

func (m *Metrics) ReadError() {
	if m != nil {
		m.ReadErrors.Inc()
	}
}

func (m *Metrics) ShortRead() {
	if m != nil {
		m.ShortReads.Inc()
	}
}

func (m *Metrics) SetWindowChunks(n int) {
	if m != nil {
		m.WindowChunks.Set(float64(n))
	}
}

// InferenceDone records one classifier invocation.
func (m *Metrics) InferenceDone(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.InferencesRun.Inc()
	m.InferenceDuration.Observe(d.Seconds())
	if err != nil {
		m.InferencesFailed.Inc()
	}
}

func (m *Metrics) InferenceDropped() {
	if m != nil {
		m.InferencesDropped.Inc()
	}
}

func (m *Metrics) InferenceCoalesced() {
	if m != nil {
		m.InferencesCoalesced.Inc()
	}
}

// PlaybackDone records one playback attempt.
func (m *Metrics) PlaybackDone(err error) {
	if m == nil {
		return
	}
	m.Playbacks.Inc()
	if err != nil {
		m.PlaybackErrors.Inc()
	}
}

// Server serves /metrics over HTTP.
type Server struct {
	srv *http.Server
}

// Serve starts an HTTP server for the registry on addr in its own goroutine.
func (m *Metrics) Serve(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	s := &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}

	go func() {
		logger.Infof("serving /metrics on %s", addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("server error: %v", err)
		}
	}()
	return s
}

// Close shuts the server down, waiting up to five seconds for scrapes in flight.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
