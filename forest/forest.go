package forest

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/YuminosukeSato/hdbvalue/core/model"
	"github.com/YuminosukeSato/hdbvalue/core/parallel"
	"github.com/YuminosukeSato/hdbvalue/dataset"
	"github.com/YuminosukeSato/hdbvalue/pkg/errors"
	"github.com/YuminosukeSato/hdbvalue/pkg/log"
	"github.com/YuminosukeSato/hdbvalue/tree"
)

// Train fits p.NEstimators trees, each on a bootstrap sample of train, and
// returns their mean as an ensemble. Tree i draws from its own generator
// seeded by (Seed, i), so the result does not depend on scheduling.
func Train(ctx context.Context, train *dataset.Dataset, p Params) (ens *tree.Ensemble, err error) {
	defer errors.Recover(&err, "forest.Train")

	if err := p.Validate(); err != nil {
		return nil, err
	}
	n := train.Len()
	if n == 0 {
		return nil, errors.NewInsufficientDataError("forest.Train", 1, 0, "training set is empty")
	}
	data, err := tree.NewBinned(train.Rows(), p.MaxBin)
	if err != nil {
		return nil, err
	}
	nFeatures := data.NumFeatures()

	// Squared error around a zero prediction with unit hessians: every
	// leaf value is the mean target of its rows and the split gain is the
	// variance reduction.
	y := train.Targets()
	grad := make([]float64, n)
	hess := make([]float64, n)
	for i, v := range y {
		grad[i] = -v
		hess[i] = 1
	}

	logger := log.GetLoggerWithName("forest")
	start := time.Now()
	tp := p.treeParams(nFeatures)
	trees := make([]tree.Tree, p.NEstimators)

	parallel.Parallelize(p.NEstimators, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			if ctx.Err() != nil {
				return
			}
			rng := rand.New(rand.NewPCG(p.Seed, uint64(i)))
			rows := make([]int, n)
			for k := range rows {
				rows[k] = rng.IntN(n)
			}
			trees[i] = tree.NewBuilder(data, tp, rng).Build(rows, grad, hess, nil)
		}
	})
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "forest: training cancelled")
	}

	logger.Debug("Forest trained",
		log.TrainRowsKey, n,
		log.FeaturesKey, nFeatures,
		log.IterationKey, p.NEstimators,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return &tree.Ensemble{Trees: trees, Aggregation: tree.Mean, NumFeatures: nFeatures}, nil
}

// Regressor adapts Train to model.Regressor.
type Regressor struct {
	*model.StateManager

	params   Params
	ensemble *tree.Ensemble
}

var _ model.Regressor = (*Regressor)(nil)

// NewRegressor creates an unfitted Regressor.
func NewRegressor(params Params) *Regressor {
	return &Regressor{StateManager: model.NewStateManager(), params: params}
}

// Fit trains on X and y.
func (r *Regressor) Fit(ctx context.Context, X [][]float64, y []float64) error {
	r.Reset()
	r.ensemble = nil

	ds, err := dataset.FromRows(X, y)
	if err != nil {
		return err
	}
	ens, err := Train(ctx, ds, r.params)
	if err != nil {
		return errors.Wrap(err, "forest: fit failed")
	}
	r.ensemble = ens
	r.SetFitted(ds.NumFeatures(), ds.Len())
	return nil
}

// PredictBatch predicts one value per row of X.
func (r *Regressor) PredictBatch(X [][]float64) ([]float64, error) {
	if err := r.RequireFitted("forest.Regressor", "PredictBatch"); err != nil {
		return nil, err
	}
	return r.ensemble.PredictBatch(X)
}

// Ensemble returns the fitted ensemble.
func (r *Regressor) Ensemble() (*tree.Ensemble, error) {
	if err := r.RequireFitted("forest.Regressor", "Ensemble"); err != nil {
		return nil, err
	}
	return r.ensemble, nil
}
