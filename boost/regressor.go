package boost

import (
	"context"

	"github.com/YuminosukeSato/hdbvalue/core/model"
	"github.com/YuminosukeSato/hdbvalue/dataset"
	"github.com/YuminosukeSato/hdbvalue/pkg/errors"
	"github.com/YuminosukeSato/hdbvalue/tree"
)

// Regressor adapts Trainer to model.Regressor. Fit runs the full
// NumBoostRound budget without an evaluation set, which is how the
// hyperparameter search scores a configuration on each fold.
type Regressor struct {
	*model.StateManager

	params    Params
	objective Objective
	ensemble  *tree.Ensemble
}

var _ model.Regressor = (*Regressor)(nil)

// NewRegressor creates an unfitted Regressor.
func NewRegressor(params Params, objective Objective) *Regressor {
	return &Regressor{
		StateManager: model.NewStateManager(),
		params:       params,
		objective:    objective,
	}
}

// Fit trains on X and y.
func (r *Regressor) Fit(ctx context.Context, X [][]float64, y []float64) error {
	r.Reset()
	r.ensemble = nil

	ds, err := dataset.FromRows(X, y)
	if err != nil {
		return err
	}
	trainer, err := NewTrainer(r.params, r.objective)
	if err != nil {
		return err
	}
	res, err := trainer.Train(ctx, ds, nil)
	if err != nil {
		return errors.Wrap(err, "boost: fit failed")
	}
	r.ensemble = res.Ensemble
	r.SetFitted(ds.NumFeatures(), ds.Len())
	return nil
}

// PredictBatch predicts one value per row of X.
func (r *Regressor) PredictBatch(X [][]float64) ([]float64, error) {
	if err := r.RequireFitted("boost.Regressor", "PredictBatch"); err != nil {
		return nil, err
	}
	return r.ensemble.PredictBatch(X)
}

// Ensemble returns the fitted ensemble.
func (r *Regressor) Ensemble() (*tree.Ensemble, error) {
	if err := r.RequireFitted("boost.Regressor", "Ensemble"); err != nil {
		return nil, err
	}
	return r.ensemble, nil
}
