// Package metrics provides Prometheus metrics for the booking risk service.
// It covers model inference, the assessment flow, the live feed and HTTP
// traffic, exposed via the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Inference metrics
	Predictions        prometheus.Counter     // Total number of successful predictions
	PredictionFailures *prometheus.CounterVec // Prediction failures by kind
	PredictionLatency  prometheus.Histogram   // Prediction latency in seconds
	RiskScores         prometheus.Histogram   // Distribution of risk scores
	ModelLoaded        prometheus.Gauge       // 1 once a model is loaded
	ModelAge           prometheus.Gauge       // Seconds since the loaded model was trained

	// Assessment metrics
	Assessments    *prometheus.CounterVec // Assessments by decision
	SignalsRaised  *prometheus.CounterVec // Raised risk flags by name
	NotifyFailures *prometheus.CounterVec // Failed sink notifications by sink

	// Serving metrics
	HTTPRequests *prometheus.CounterVec // HTTP requests by method, route and status
	WSClients    prometheus.Gauge       // Connected live feed clients

	ErrorsTotal prometheus.Counter
}

// New creates and registers all metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		Predictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "risk_predictions_total",
			Help: "Total number of risk predictions served",
		}),
		PredictionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_prediction_failures_total",
			Help: "Total number of failed risk predictions by kind",
		}, []string{"kind"}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "risk_prediction_latency_seconds",
			Help:    "Risk prediction latency in seconds",
			Buckets: prometheus.ExponentialBuckets(1e-7, 10, 7),
		}),
		RiskScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "risk_score",
			Help:    "Distribution of predicted fraud probabilities",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 9),
		}),
		ModelLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "risk_model_loaded",
			Help: "Whether a risk model is loaded (1) or not (0)",
		}),
		ModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "risk_model_age_seconds",
			Help: "Age of the loaded risk model in seconds",
		}),
		Assessments: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_assessments_total",
			Help: "Total number of booking assessments by decision",
		}, []string{"status"}),
		SignalsRaised: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_signals_raised_total",
			Help: "Total number of raised risk flags by name",
		}, []string{"flag"}),
		NotifyFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assessment_notify_failures_total",
			Help: "Total number of failed assessment notifications by sink",
		}, []string{"sink"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "code"}),
		WSClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ws_clients",
			Help: "Number of connected live feed clients",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors",
		}),
	}
}
