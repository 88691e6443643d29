// Package metrics provides Prometheus metrics collection for the
// prediction engine: per-request counters and latency, sub-model
// failure accounting, calibration fallback usage, and artifact
// lifecycle gauges, all exposed via the metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the prediction engine.
type Metrics struct {
	// Prediction metrics
	PredictionsTotal   prometheus.Counter   // Total predictions served
	PredictionLatency  prometheus.Histogram // End-to-end prediction latency in seconds
	FinalProbabilities prometheus.Histogram // Distribution of calibrated final probabilities
	ActiveSubModels    prometheus.Histogram // Active sub-models per prediction
	DegradedResults    prometheus.Counter   // Predictions that fell back to the neutral degraded result

	// Sub-model metrics
	SubModelFailures prometheus.Counter // Sub-model scoring failures (isolated, non-fatal)
	SubModelTimeouts prometheus.Counter // Sub-model scoring timeouts

	// Calibration metrics
	CalibrationFallbacks prometheus.Counter // Band-fallback calibrations applied
	UncalibratedResults  prometheus.Counter // Results served with the identity transform

	// Artifact metrics
	ArtifactReloads prometheus.Counter // Successful artifact snapshot swaps
	ArtifactAge     prometheus.Gauge   // Age of the loaded artifact bundle in seconds

	// System metrics
	ErrorsTotal prometheus.Counter // Caller errors (unknown profile, empty requests)
}

// New creates and registers all metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for
// tests that need isolated metric collection).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		PredictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of predictions served",
		}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_latency_seconds",
			Help:    "End-to-end prediction latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		FinalProbabilities: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "final_probabilities",
			Help:    "Distribution of calibrated final probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		ActiveSubModels: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "active_submodels",
			Help:    "Number of sub-models that scored successfully per prediction",
			Buckets: prometheus.LinearBuckets(0, 2, 12),
		}),
		DegradedResults: factory.NewCounter(prometheus.CounterOpts{
			Name: "degraded_results_total",
			Help: "Predictions that returned the neutral degraded result",
		}),
		SubModelFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "submodel_failures_total",
			Help: "Total number of isolated sub-model scoring failures",
		}),
		SubModelTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "submodel_timeouts_total",
			Help: "Total number of sub-model scoring timeouts",
		}),
		CalibrationFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "calibration_fallbacks_total",
			Help: "Calibrations that used the configured band fallback",
		}),
		UncalibratedResults: factory.NewCounter(prometheus.CounterOpts{
			Name: "uncalibrated_results_total",
			Help: "Results served with the identity transform and flagged uncalibrated",
		}),
		ArtifactReloads: factory.NewCounter(prometheus.CounterOpts{
			Name: "artifact_reloads_total",
			Help: "Successful artifact snapshot swaps",
		}),
		ArtifactAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "artifact_age_seconds",
			Help: "Age of the loaded artifact bundle in seconds",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of caller errors",
		}),
	}
}
