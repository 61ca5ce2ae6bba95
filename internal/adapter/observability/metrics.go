package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_requests_total",
			Help: "Total number of LLM calls by provider and mode",
		},
		[]string{"provider", "mode"},
	)
	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "LLM call duration in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "mode"},
	)

	RunsEnqueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "runs_enqueued_total",
			Help: "Total number of pipeline runs enqueued",
		},
	)
	RunsProcessing = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "runs_processing",
			Help: "Number of pipeline runs currently executing",
		},
	)
	RunsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runs_completed_total",
			Help: "Total number of pipeline runs finished, by outcome",
		},
		[]string{"outcome"},
	)

	JobsCrawledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobs_crawled_total",
			Help: "Total number of raw jobs emitted by the crawler",
		},
	)
	JobsEnrichedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_enriched_total",
			Help: "Total number of enrichment attempts, by outcome",
		},
		[]string{"outcome"},
	)
	JobsDeliveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_delivered_total",
			Help: "Total number of webhook deliveries, by outcome",
		},
		[]string{"outcome"},
	)

	AlignmentTotalHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "alignment_total_score",
			Help:    "Distribution of the overall alignment score ([0,100])",
			Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)
)

func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(LLMRequestsTotal)
	prometheus.MustRegister(LLMRequestDuration)
	prometheus.MustRegister(RunsEnqueuedTotal)
	prometheus.MustRegister(RunsProcessing)
	prometheus.MustRegister(RunsCompletedTotal)
	prometheus.MustRegister(JobsCrawledTotal)
	prometheus.MustRegister(JobsEnrichedTotal)
	prometheus.MustRegister(JobsDeliveredTotal)
	prometheus.MustRegister(AlignmentTotalHistogram)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

func EnqueueRun() {
	RunsEnqueuedTotal.Inc()
}

func StartRun() {
	RunsProcessing.Inc()
}

func FinishRun(outcome string) {
	RunsProcessing.Dec()
	RunsCompletedTotal.WithLabelValues(outcome).Inc()
}

// ObserveLLM records one LLM call by provider and mode.
func ObserveLLM(provider, mode string, start time.Time) {
	LLMRequestsTotal.WithLabelValues(provider, mode).Inc()
	LLMRequestDuration.WithLabelValues(provider, mode).Observe(time.Since(start).Seconds())
}

func CrawlJob() {
	JobsCrawledTotal.Inc()
}

func EnrichJob(outcome string) {
	JobsEnrichedTotal.WithLabelValues(outcome).Inc()
}

func DeliverJob(outcome string) {
	JobsDeliveredTotal.WithLabelValues(outcome).Inc()
}

// ObserveAlignment records the overall alignment score of an enriched job.
func ObserveAlignment(total int) {
	if total >= 0 && total <= 100 {
		AlignmentTotalHistogram.Observe(float64(total))
	}
}
