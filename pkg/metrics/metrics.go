package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlightGauge   prometheus.Gauge

	RecordsAppendedTotal prometheus.Counter
	PredictionsTotal     *prometheus.CounterVec
	PredictionScore      prometheus.Histogram

	StorageOpDuration *prometheus.HistogramVec
	StorageErrors     *prometheus.CounterVec

	AuditDropped prometheus.Counter
}

// NewCollector registers the service metrics on reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewCollector(serviceName string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path, and status code.",
		}, []string{"method", "path", "status"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "path", "status"}),

		InFlightGauge: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),

		RecordsAppendedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "clinical",
			Name:      "records_appended_total",
			Help:      "Total number of patient records appended to the dataset.",
		}),

		PredictionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "clinical",
			Name:      "predictions_total",
			Help:      "Predictions served by outcome (positive, negative, not_found, error).",
		}, []string{"outcome"}),

		PredictionScore: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: serviceName,
			Subsystem: "clinical",
			Name:      "prediction_probability",
			Help:      "Distribution of predicted risk probabilities.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 9),
		}),

		StorageOpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: serviceName,
			Subsystem: "storage",
			Name:      "operation_duration_seconds",
			Help:      "Dataset storage latency by backend and operation.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		}, []string{"backend", "operation"}),

		StorageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "storage",
			Name:      "errors_total",
			Help:      "Failed dataset storage operations by backend and operation.",
		}, []string{"backend", "operation"}),

		AuditDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "audit",
			Name:      "dropped_total",
			Help:      "Audit entries dropped because the buffer was full.",
		}),
	}
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
