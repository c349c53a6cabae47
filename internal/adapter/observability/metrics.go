package observability

import (
	"net/http"
	"sync"
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

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of AI requests by provider, operation and outcome",
		},
		[]string{"provider", "operation", "status"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "AI request duration in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "operation"},
	)
	AIRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_retries_total",
			Help: "Total number of retried AI calls by pipeline operation and reason",
		},
		[]string{"operation", "reason"},
	)
	AIDegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_degraded_total",
			Help: "Total number of AI calls that fell back to their default result",
		},
		[]string{"operation"},
	)
	AITokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_total",
			Help: "Total number of tokens sent to or received from AI providers",
		},
		[]string{"provider", "type"},
	)

	PipelineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_duration_seconds",
			Help:    "Duration of each assessment pipeline in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"pipeline"},
	)

	SessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessions_total",
			Help: "Total number of sessions by lifecycle transition",
		},
		[]string{"status"},
	)
	SessionsProcessing = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_processing",
			Help: "Number of sessions currently processing",
		},
	)

	QueueEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_enqueued_total",
			Help: "Total number of tasks published to the queue",
		},
		[]string{"topic"},
	)
	QueueHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_handled_total",
			Help: "Total number of consumed tasks by outcome",
		},
		[]string{"topic", "status"},
	)

	QualityScoreHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quality_score",
			Help:    "Distribution of quality scores (normalized fraction [0,1])",
			Buckets: []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
		[]string{"role"},
	)
)

var initOnce sync.Once

// InitMetrics registers all collectors with the default registry. Safe to call more than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			AIRequestsTotal,
			AIRequestDuration,
			AIRetriesTotal,
			AIDegradedTotal,
			AITokensTotal,
			PipelineDuration,
			SessionsTotal,
			SessionsProcessing,
			QueueEnqueuedTotal,
			QueueHandledTotal,
			QualityScoreHistogram,
		)
	})
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, http.StatusText(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

// ObserveAIRequest records one provider call.
func ObserveAIRequest(provider, operation string, err error, dur time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	AIRequestsTotal.WithLabelValues(provider, operation, status).Inc()
	AIRequestDuration.WithLabelValues(provider, operation).Observe(dur.Seconds())
}

// RecordRetry counts one retried attempt.
func RecordRetry(operation, reason string) {
	AIRetriesTotal.WithLabelValues(operation, reason).Inc()
}

// RecordDegraded counts one call that returned its default result.
func RecordDegraded(operation string) {
	AIDegradedTotal.WithLabelValues(operation).Inc()
}

// RecordTokens adds prompt and completion token counts for a provider.
func RecordTokens(provider string, prompt, completion int) {
	if prompt > 0 {
		AITokensTotal.WithLabelValues(provider, "prompt").Add(float64(prompt))
	}
	if completion > 0 {
		AITokensTotal.WithLabelValues(provider, "completion").Add(float64(completion))
	}
}

// ObservePipeline records how long one assessment pipeline took.
func ObservePipeline(pipeline string, dur time.Duration) {
	PipelineDuration.WithLabelValues(pipeline).Observe(dur.Seconds())
}

func StartSession() {
	SessionsProcessing.Inc()
}

func CompleteSession() {
	SessionsProcessing.Dec()
	SessionsTotal.WithLabelValues("completed").Inc()
}

func FailSession() {
	SessionsProcessing.Dec()
	SessionsTotal.WithLabelValues("failed").Inc()
}

// AbandonSession releases the processing gauge for a session handed back to the queue.
func AbandonSession() {
	SessionsProcessing.Dec()
}

// CountSession records a lifecycle transition that does not touch the processing gauge.
func CountSession(status string) {
	SessionsTotal.WithLabelValues(status).Inc()
}

// ObserveScores records the candidate and interviewer quality scores of a finished report.
func ObserveScores(candidate, interviewer float64) {
	if candidate >= 0 && candidate <= 1 {
		QualityScoreHistogram.WithLabelValues("candidate").Observe(candidate)
	}
	if interviewer >= 0 && interviewer <= 1 {
		QualityScoreHistogram.WithLabelValues("interviewer").Observe(interviewer)
	}
}

// EnqueueTask counts a task published to topic.
func EnqueueTask(topic string) { QueueEnqueuedTotal.WithLabelValues(topic).Inc() }

// HandleTask counts a consumed task with its outcome ("ok", "error", "invalid").
func HandleTask(topic, status string) { QueueHandledTotal.WithLabelValues(topic, status).Inc() }
