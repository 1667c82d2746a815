package observability

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce             sync.Once
	gradingRequestsTotal     *prometheus.CounterVec
	gradingLatencySeconds    *prometheus.HistogramVec
	gradingErrorsTotal       *prometheus.CounterVec
	gradingAnswersTotal      *prometheus.CounterVec
	gradingDurationSeconds   *prometheus.HistogramVec
	submissionsGradedTotal   prometheus.Counter
	gradingEventsTotal       *prometheus.CounterVec
	gradingLiveClientsActive prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used by the grading API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		gradingRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_requests_total",
			Help: "Total number of grading API requests served.",
		}, []string{"method", "route", "status"})

		gradingLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grading_latency_seconds",
			Help:    "Latency distribution for grading API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		gradingErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_errors_total",
			Help: "Total number of error responses returned by grading endpoints.",
		}, []string{"method", "route", "status"})

		gradingAnswersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_answers_total",
			Help: "Answers processed by the grading engine, by method and outcome.",
		}, []string{"method", "outcome"})

		gradingDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grading_duration_seconds",
			Help:    "Time spent in grading operations.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"operation"})

		submissionsGradedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grading_submissions_graded_total",
			Help: "Submissions that transitioned to the graded status.",
		})

		gradingEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_events_total",
			Help: "Grading events delivered to live subscribers, by type.",
		}, []string{"type"})

		gradingLiveClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "grading_live_clients_active",
			Help: "Connected live grading feed clients.",
		})

		prometheus.MustRegister(
			gradingRequestsTotal,
			gradingLatencySeconds,
			gradingErrorsTotal,
			gradingAnswersTotal,
			gradingDurationSeconds,
			submissionsGradedTotal,
			gradingEventsTotal,
			gradingLiveClientsActive,
		)
	})
}

// GradingRequests exposes the counter for grading API requests.
func GradingRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingRequestsTotal
}

// GradingLatency exposes the latency histogram for grading API requests.
func GradingLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return gradingLatencySeconds
}

// GradingErrors exposes the counter for grading error responses.
func GradingErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingErrorsTotal
}

// AnswersGraded counts graded answers labelled by scoring method and outcome.
func AnswersGraded() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingAnswersTotal
}

// GradingDuration observes grading operation latency.
func GradingDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return gradingDurationSeconds
}

// SubmissionsGraded counts submissions reaching the graded status.
func SubmissionsGraded() prometheus.Counter {
	RegisterMetrics()
	return submissionsGradedTotal
}

// GradingEvents counts events fanned out to live subscribers.
func GradingEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingEventsTotal
}

// LiveClientsActive tracks open live feed connections.
func LiveClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return gradingLiveClientsActive
}

// MetricsHandler exposes the Prometheus scrape endpoint, registering the
// grading collectors first so they appear before any traffic.
func MetricsHandler() fiber.Handler {
	RegisterMetrics()
	return adaptor.HTTPHandler(promhttp.Handler())
}
