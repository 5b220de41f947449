package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder records training, prediction, cache and HTTP metrics. A nil
// *Recorder discards everything.
type Recorder struct {
	phaseDuration *prometheus.HistogramVec
	trainingRuns  *prometheus.CounterVec
	predictions   *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	modelReady    prometheus.Gauge
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	httpInFlight  prometheus.Gauge
}

// New registers the collectors with reg, or the default registerer when
// reg is nil.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Recorder{
		phaseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "forecast_training_phase_duration_seconds",
				Help:    "Duration of training pipeline phases in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"phase"},
		),
		trainingRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forecast_training_runs_total",
				Help: "Total number of training runs by final status",
			},
			[]string{"status"},
		),
		predictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forecast_predictions_total",
				Help: "Total number of predictions by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forecast_cache_lookups_total",
				Help: "Prediction cache lookups by result",
			},
			[]string{"result"},
		),
		modelReady: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "forecast_model_ready",
				Help: "1 when a trained model generation is loaded",
			},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"route", "method"},
		),
		httpInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_in_flight_requests",
				Help: "Current number of in-flight HTTP requests",
			},
		),
	}
}

// ObservePhase records how long a training phase took.
func (r *Recorder) ObservePhase(phase string, d time.Duration) {
	if r == nil {
		return
	}
	r.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// RecordTrainingRun counts a finished run by status.
func (r *Recorder) RecordTrainingRun(status string) {
	if r == nil {
		return
	}
	r.trainingRuns.WithLabelValues(status).Inc()
}

// RecordPrediction counts a prediction by kind and outcome.
func (r *Recorder) RecordPrediction(kind, outcome string) {
	if r == nil {
		return
	}
	r.predictions.WithLabelValues(kind, outcome).Inc()
}

// RecordCacheLookup counts a cache hit or miss.
func (r *Recorder) RecordCacheLookup(hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(result).Inc()
}

// SetModelReady flags whether a trained generation is serving.
func (r *Recorder) SetModelReady(ready bool) {
	if r == nil {
		return
	}
	if ready {
		r.modelReady.Set(1)
		return
	}
	r.modelReady.Set(0)
}

// RequestStarted tracks an in-flight HTTP request.
func (r *Recorder) RequestStarted() {
	if r == nil {
		return
	}
	r.httpInFlight.Inc()
}

// RequestFinished records a completed HTTP request.
func (r *Recorder) RequestFinished(route, method, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.httpInFlight.Dec()
	r.httpRequests.WithLabelValues(route, method, status).Inc()
	r.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}
