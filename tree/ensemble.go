package tree

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/hdbvalue/core/parallel"
	"github.com/YuminosukeSato/hdbvalue/pkg/errors"
)

// Aggregation selects how tree outputs are combined.
type Aggregation int

const (
	// Sum adds every tree output to BaseScore (boosting).
	Sum Aggregation = iota
	// Mean averages the tree outputs and adds BaseScore (bagging).
	Mean
)

func (a Aggregation) String() string {
	switch a {
	case Sum:
		return "sum"
	case Mean:
		return "mean"
	default:
		return fmt.Sprintf("Aggregation(%d)", int(a))
	}
}

// parallelRows is the batch size above which PredictBatch fans out.
const parallelRows = 2048

// Ensemble is a trained sequence of trees. It is never modified after the
// trainer returns it, so concurrent Predict calls need no locking.
type Ensemble struct {
	Trees       []Tree
	BaseScore   float64
	Aggregation Aggregation
	NumFeatures int
}

// Len returns the number of trees.
func (e *Ensemble) Len() int {
	return len(e.Trees)
}

// Predict returns the ensemble output for one row of NumFeatures values.
func (e *Ensemble) Predict(x []float64) float64 {
	if len(e.Trees) == 0 {
		return e.BaseScore
	}
	var sum float64
	for i := range e.Trees {
		sum += e.Trees[i].Predict(x)
	}
	if e.Aggregation == Mean {
		sum /= float64(len(e.Trees))
	}
	return e.BaseScore + sum
}

// PredictBatch predicts every row, checking row widths first.
func (e *Ensemble) PredictBatch(rows [][]float64) ([]float64, error) {
	for i, row := range rows {
		if len(row) != e.NumFeatures {
			return nil, errors.Wrapf(errors.NewDimensionError("tree.Ensemble.PredictBatch", e.NumFeatures, len(row), 1), "row %d", i)
		}
	}
	out := make([]float64, len(rows))
	parallel.ParallelizeWithThreshold(len(rows), parallelRows, func(start, end int) {
		for i := start; i < end; i++ {
			out[i] = e.Predict(rows[i])
		}
	})
	return out, nil
}

// PredictMatrix predicts every row of X.
func (e *Ensemble) PredictMatrix(X mat.Matrix) (*mat.VecDense, error) {
	r, c := X.Dims()
	if c != e.NumFeatures {
		return nil, errors.NewDimensionError("tree.Ensemble.PredictMatrix", e.NumFeatures, c, 1)
	}
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = mat.Row(nil, i, X)
	}
	out, err := e.PredictBatch(rows)
	if err != nil {
		return nil, err
	}
	return mat.NewVecDense(r, out), nil
}

// Truncate returns a copy holding the first n trees. n outside
// [0, Len()] is clamped.
func (e *Ensemble) Truncate(n int) *Ensemble {
	if n < 0 {
		n = 0
	}
	if n > len(e.Trees) {
		n = len(e.Trees)
	}
	out := *e
	out.Trees = append([]Tree(nil), e.Trees[:n]...)
	return &out
}

// Validate checks the structural integrity of a deserialised ensemble.
func (e *Ensemble) Validate() error {
	if e.NumFeatures <= 0 {
		return errors.NewValidationError("num_features", "ensemble has no feature width", e.NumFeatures)
	}
	if e.Aggregation != Sum && e.Aggregation != Mean {
		return errors.NewValidationError("aggregation", "unknown aggregation", int(e.Aggregation))
	}
	for i := range e.Trees {
		if !e.Trees[i].valid(e.NumFeatures) {
			return errors.NewValidationError("trees", fmt.Sprintf("tree %d is malformed", i), i)
		}
	}
	return nil
}
