package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	queryTotal           *prometheus.CounterVec
	queryDuration        *prometheus.HistogramVec
	queryRewrites        *prometheus.HistogramVec
	clarificationsTotal  *prometheus.CounterVec
	groundednessVerdicts *prometheus.CounterVec
	retrievedChunks      *prometheus.HistogramVec
	chunksIngestedTotal  *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cliniq",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cliniq",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "cliniq",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queryTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cliniq",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total completed query pipeline runs by outcome.",
		},
		[]string{"service", "outcome"},
	)
	queryDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cliniq",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Query pipeline execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	queryRewrites := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cliniq",
			Subsystem: "query",
			Name:      "rewrites",
			Help:      "Distribution of question rewrites per query run.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		},
		[]string{"service"},
	)
	clarificationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cliniq",
			Subsystem: "query",
			Name:      "clarifications_total",
			Help:      "Total queries short-circuited with a clarification request.",
		},
		[]string{"service"},
	)
	groundednessVerdicts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cliniq",
			Subsystem: "query",
			Name:      "groundedness_verdicts_total",
			Help:      "Total groundedness check verdicts.",
		},
		[]string{"service", "verdict"},
	)
	retrievedChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cliniq",
			Subsystem: "retrieval",
			Name:      "retrieved_chunks",
			Help:      "Distribution of retrieved chunks per query run.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	chunksIngestedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cliniq",
			Subsystem: "retrieval",
			Name:      "chunks_ingested_total",
			Help:      "Total chunks ingested into group collections.",
		},
		[]string{"service", "collection_group"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		queryTotal,
		queryDuration,
		queryRewrites,
		clarificationsTotal,
		groundednessVerdicts,
		retrievedChunks,
		chunksIngestedTotal,
	)

	return &HTTPServerMetrics{
		registry:             registry,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		queryTotal:           queryTotal,
		queryDuration:        queryDuration,
		queryRewrites:        queryRewrites,
		clarificationsTotal:  clarificationsTotal,
		groundednessVerdicts: groundednessVerdicts,
		retrievedChunks:      retrievedChunks,
		chunksIngestedTotal:  chunksIngestedTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{document_id}"
	default:
		return path
	}
}

// RecordQueryRun observes one finished pipeline run. Outcome is one of
// "answered", "clarification", "low_confidence".
func (m *HTTPServerMetrics) RecordQueryRun(service, outcome string, rewrites, sourceCount int, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.queryTotal.WithLabelValues(service, outcome).Inc()
	m.queryDuration.WithLabelValues(service).Observe(duration.Seconds())
	m.queryRewrites.WithLabelValues(service).Observe(float64(rewrites))
	m.retrievedChunks.WithLabelValues(service).Observe(float64(sourceCount))

	if outcome == "clarification" {
		m.clarificationsTotal.WithLabelValues(service).Inc()
	}
}

func (m *HTTPServerMetrics) RecordGroundednessVerdict(service, verdict string) {
	if verdict == "" {
		verdict = "unknown"
	}
	m.groundednessVerdicts.WithLabelValues(service, verdict).Inc()
}

func (m *HTTPServerMetrics) RecordChunksIngested(service, group string, count int) {
	if count <= 0 {
		return
	}
	m.chunksIngestedTotal.WithLabelValues(service, group).Add(float64(count))
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
