// Package dataset holds labeled examples and the deterministic partitions
// and folds the training stages consume.
package dataset

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/hdbvalue/features"
	"github.com/YuminosukeSato/hdbvalue/pkg/errors"
)

// Example is one feature row with its observed adjusted resale price.
type Example struct {
	Features []float64
	Price    float64
}

// Dataset is an ordered collection of examples. Subsets share the
// underlying feature rows; callers must not mutate rows after construction.
type Dataset struct {
	rows    [][]float64
	targets []float64
}

// New builds a dataset from examples.
func New(examples []Example) *Dataset {
	d := &Dataset{
		rows:    make([][]float64, len(examples)),
		targets: make([]float64, len(examples)),
	}
	for i, ex := range examples {
		d.rows[i] = ex.Features
		d.targets[i] = ex.Price
	}
	return d
}

// FromRows builds a dataset from parallel row and target slices.
func FromRows(rows [][]float64, targets []float64) (*Dataset, error) {
	if len(rows) != len(targets) {
		return nil, errors.NewDimensionError("dataset.FromRows", len(rows), len(targets), 0)
	}
	return &Dataset{rows: rows, targets: targets}, nil
}

// FromMatrix copies a gonum matrix and target vector into a dataset.
func FromMatrix(X mat.Matrix, y mat.Vector) (*Dataset, error) {
	r, c := X.Dims()
	if y.Len() != r {
		return nil, errors.NewDimensionError("dataset.FromMatrix", r, y.Len(), 0)
	}
	rows := make([][]float64, r)
	targets := make([]float64, r)
	for i := 0; i < r; i++ {
		rows[i] = make([]float64, c)
		for j := 0; j < c; j++ {
			rows[i][j] = X.At(i, j)
		}
		targets[i] = y.AtVec(i)
	}
	return &Dataset{rows: rows, targets: targets}, nil
}

// Len returns the number of examples. A nil dataset is empty.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.targets)
}

// At returns example i.
func (d *Dataset) At(i int) Example {
	return Example{Features: d.rows[i], Price: d.targets[i]}
}

// Rows returns the feature rows. The slice is shared.
func (d *Dataset) Rows() [][]float64 {
	if d == nil {
		return nil
	}
	return d.rows
}

// Targets returns the prices. The slice is shared.
func (d *Dataset) Targets() []float64 {
	if d == nil {
		return nil
	}
	return d.targets
}

// NumFeatures returns the width of the first row, or 0 when empty.
func (d *Dataset) NumFeatures() int {
	if d.Len() == 0 {
		return 0
	}
	return len(d.rows[0])
}

// Matrix copies the dataset into an n×p matrix and a target vector.
func (d *Dataset) Matrix() (*mat.Dense, *mat.VecDense) {
	n, p := d.Len(), d.NumFeatures()
	if n == 0 || p == 0 {
		return &mat.Dense{}, &mat.VecDense{}
	}
	X := mat.NewDense(n, p, nil)
	for i, row := range d.rows {
		X.SetRow(i, row)
	}
	y := mat.NewVecDense(n, append([]float64(nil), d.targets...))
	return X, y
}

// Subset returns the examples at idx, in idx order.
func (d *Dataset) Subset(idx []int) *Dataset {
	s := &Dataset{
		rows:    make([][]float64, len(idx)),
		targets: make([]float64, len(idx)),
	}
	for k, i := range idx {
		s.rows[k] = d.rows[i]
		s.targets[k] = d.targets[i]
	}
	return s
}

// TargetVariance returns the sample variance of the prices, or 0 when
// fewer than two examples are present.
func (d *Dataset) TargetVariance() float64 {
	if d.Len() < 2 {
		return 0
	}
	return stat.Variance(d.targets, nil)
}

// TargetStdDev is the square root of TargetVariance.
func (d *Dataset) TargetStdDev() float64 {
	return math.Sqrt(d.TargetVariance())
}

// Validate checks every row against the feature layout and every price for
// finiteness. An empty dataset is an InsufficientDataError.
func (d *Dataset) Validate() error {
	if d.Len() == 0 {
		return errors.NewInsufficientDataError("dataset.Validate", 1, 0, "dataset has no examples")
	}
	for i, row := range d.rows {
		if err := features.ValidateTraining(row); err != nil {
			return errors.Wrapf(err, "row %d", i)
		}
		if p := d.targets[i]; math.IsNaN(p) || math.IsInf(p, 0) {
			return errors.NewValidationError("adjusted_resale_price", fmt.Sprintf("row %d: price is not finite", i), p)
		}
	}
	return nil
}
