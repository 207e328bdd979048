// Package model holds the estimator contracts shared by the training
// packages together with fitted-state tracking and gob persistence helpers.
package model

import "context"

// Predictor maps one feature row to a price estimate. Implementations must
// be safe for concurrent read-only use once training has finished.
type Predictor interface {
	Predict(x []float64) float64
}

// PredictorFunc adapts a plain function to Predictor.
type PredictorFunc func(x []float64) float64

// Predict calls f(x).
func (f PredictorFunc) Predict(x []float64) float64 { return f(x) }

// Regressor is a trainable price model. The hyperparameter search fits one
// isolated Regressor per (configuration, fold) pair.
type Regressor interface {
	// Fit trains the model on rows X with targets y.
	Fit(ctx context.Context, X [][]float64, y []float64) error

	// PredictBatch returns one estimate per row of X.
	PredictBatch(X [][]float64) ([]float64, error)

	// IsFitted reports whether Fit has completed successfully.
	IsFitted() bool
}
