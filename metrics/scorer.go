package metrics

import (
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/hdbvalue/pkg/errors"
)

// Scoring names accepted by ScorerByName. Every scorer follows the
// greater-is-better convention, so error metrics are negated.
const (
	NegRMSE = "neg_root_mean_squared_error"
	NegMAE  = "neg_mean_absolute_error"
	NegMSE  = "neg_mean_squared_error"
	R2      = "r2"
)

// Scorer scores predictions against targets; larger is better.
type Scorer struct {
	Name string
	fn   func(yTrue, yPred *mat.VecDense) (float64, error)
	sign float64
}

// Score evaluates the scorer on plain slices.
func (s Scorer) Score(yTrue, yPred []float64) (float64, error) {
	if len(yTrue) == 0 {
		return 0, errors.Wrap(errors.ErrEmptyData, s.Name)
	}
	if len(yPred) != len(yTrue) {
		return 0, errors.NewDimensionError(s.Name, len(yTrue), len(yPred), 0)
	}
	v, err := s.fn(mat.NewVecDense(len(yTrue), yTrue), mat.NewVecDense(len(yPred), yPred))
	if err != nil {
		return 0, err
	}
	return s.sign * v, nil
}

var scorers = map[string]Scorer{
	NegRMSE: {Name: NegRMSE, fn: RMSE, sign: -1},
	NegMAE:  {Name: NegMAE, fn: MAE, sign: -1},
	NegMSE:  {Name: NegMSE, fn: MSE, sign: -1},
	R2:      {Name: R2, fn: R2Score, sign: 1},
}

// ScorerByName looks up a scorer. Unknown names are a ConfigurationError.
func ScorerByName(name string) (Scorer, error) {
	s, ok := scorers[name]
	if !ok {
		return Scorer{}, errors.NewConfigurationError("metrics", "scoring", "unknown scoring rule, expected one of "+strings.Join(ScorerNames(), ", "), name)
	}
	return s, nil
}

// ScorerNames lists the accepted scoring names in sorted order.
func ScorerNames() []string {
	names := make([]string, 0, len(scorers))
	for name := range scorers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
