// Package telemetry exposes Prometheus metrics for the training pipeline
// and the prediction service.
//
// Every method is safe to call on a nil *Metrics, so components accept an
// optional *Metrics and record unconditionally.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hdbvalue"

// Metrics holds all Prometheus collectors of the engine.
type Metrics struct {
	// Training metrics
	SearchTrials      *prometheus.CounterVec // configurations evaluated, by family
	SearchBestScore   prometheus.Gauge       // best cross-validated score of the last search
	BoostingRounds    prometheus.Counter     // boosting rounds run by the retrain step
	BestRound         prometheus.Gauge       // zero-based round kept by early stopping
	CalibrationMargin prometheus.Gauge       // current conformal margin q
	CalibrationSize   prometheus.Gauge       // examples used to compute q
	TrainingRuns      *prometheus.CounterVec // pipeline runs, by outcome

	// Inference metrics
	Predictions        prometheus.Counter     // successful predictions
	PredictionFailures *prometheus.CounterVec // rejected predictions, by reason
	PredictionLatency  prometheus.Histogram   // per-call latency in seconds
}

// New creates and registers the metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics on a custom registerer, for tests and
// for hosts that run several engines in one process.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		SearchTrials: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_trials_total",
			Help:      "Hyperparameter configurations evaluated by cross-validation",
		}, []string{"family"}),
		SearchBestScore: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "search_best_score",
			Help:      "Best mean cross-validated score of the last search",
		}),
		BoostingRounds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "boosting_rounds_total",
			Help:      "Boosting rounds run by the asymmetric retrain",
		}),
		BestRound: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "boosting_best_round",
			Help:      "Zero-based boosting round retained by early stopping",
		}),
		CalibrationMargin: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calibration_margin",
			Help:      "Conformal half-width q of the current bundle",
		}),
		CalibrationSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calibration_examples",
			Help:      "Calibration examples used to compute q",
		}),
		TrainingRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "training_runs_total",
			Help:      "Training pipeline runs by outcome",
		}, []string{"outcome"}),
		Predictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Successful interval predictions",
		}),
		PredictionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_failures_total",
			Help:      "Rejected prediction requests by reason",
		}, []string{"reason"}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_latency_seconds",
			Help:      "Prediction latency in seconds",
			Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
	}
}

// ObserveTrial counts one evaluated configuration.
func (m *Metrics) ObserveTrial(family string) {
	if m == nil {
		return
	}
	m.SearchTrials.WithLabelValues(family).Inc()
}

// SetSearchBest records the winning cross-validated score.
func (m *Metrics) SetSearchBest(score float64) {
	if m == nil {
		return
	}
	m.SearchBestScore.Set(score)
}

// ObserveRound counts one boosting round.
func (m *Metrics) ObserveRound() {
	if m == nil {
		return
	}
	m.BoostingRounds.Inc()
}

// SetBestRound records the round kept by early stopping.
func (m *Metrics) SetBestRound(round int) {
	if m == nil {
		return
	}
	m.BestRound.Set(float64(round))
}

// SetMargin records the calibration margin and the calibration set size.
func (m *Metrics) SetMargin(q float64, n int) {
	if m == nil {
		return
	}
	m.CalibrationMargin.Set(q)
	m.CalibrationSize.Set(float64(n))
}

// ObserveRun counts one pipeline run; outcome is "success" or "failure".
func (m *Metrics) ObserveRun(outcome string) {
	if m == nil {
		return
	}
	m.TrainingRuns.WithLabelValues(outcome).Inc()
}

// ObservePrediction records a successful prediction started at start.
func (m *Metrics) ObservePrediction(start time.Time) {
	if m == nil {
		return
	}
	m.Predictions.Inc()
	m.PredictionLatency.Observe(time.Since(start).Seconds())
}

// ObserveFailure counts a rejected prediction.
func (m *Metrics) ObserveFailure(reason string) {
	if m == nil {
		return
	}
	m.PredictionFailures.WithLabelValues(reason).Inc()
}
