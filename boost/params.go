// Package boost trains gradient-boosted tree ensembles with Newton steps,
// either under squared error (during the hyperparameter search) or under
// the asymmetric loss that penalises underestimating a price.
package boost

import (
	"math"

	"github.com/YuminosukeSato/hdbvalue/pkg/errors"
	"github.com/YuminosukeSato/hdbvalue/tree"
)

// Params are the boosting hyperparameters. Names follow the XGBoost
// parameters the search space is expressed in.
type Params struct {
	MaxDepth            int     `yaml:"max_depth"`
	Eta                 float64 `yaml:"eta"`
	Subsample           float64 `yaml:"subsample"`
	ColsampleByTree     float64 `yaml:"colsample_bytree"`
	Lambda              float64 `yaml:"lambda"`
	Alpha               float64 `yaml:"alpha"`
	Gamma               float64 `yaml:"gamma"`
	MinChildWeight      float64 `yaml:"min_child_weight"`
	NumBoostRound       int     `yaml:"num_boost_round"`
	EarlyStoppingRounds int     `yaml:"early_stopping_rounds"`
	MaxBin              int     `yaml:"max_bin"`
	Seed                uint64  `yaml:"seed"`
}

// DefaultParams returns the XGBoost defaults with a 20-round early-stopping
// patience and seed 42.
func DefaultParams() Params {
	return Params{
		MaxDepth:            6,
		Eta:                 0.3,
		Subsample:           1,
		ColsampleByTree:     1,
		Lambda:              1,
		Alpha:               0,
		Gamma:               0,
		MinChildWeight:      1,
		NumBoostRound:       100,
		EarlyStoppingRounds: 20,
		MaxBin:              255,
		Seed:                42,
	}
}

// Validate rejects parameters no trainer can run with.
func (p Params) Validate() error {
	const component = "boost.Params"
	switch {
	case p.MaxDepth < 0:
		return errors.NewConfigurationError(component, "max_depth", "must be >= 0", p.MaxDepth)
	case !(p.Eta > 0 && p.Eta <= 1):
		return errors.NewConfigurationError(component, "eta", "must be in (0, 1]", p.Eta)
	case !(p.Subsample > 0 && p.Subsample <= 1):
		return errors.NewConfigurationError(component, "subsample", "must be in (0, 1]", p.Subsample)
	case !(p.ColsampleByTree > 0 && p.ColsampleByTree <= 1):
		return errors.NewConfigurationError(component, "colsample_bytree", "must be in (0, 1]", p.ColsampleByTree)
	case p.Lambda < 0 || math.IsNaN(p.Lambda):
		return errors.NewConfigurationError(component, "lambda", "must be >= 0", p.Lambda)
	case p.Alpha < 0 || math.IsNaN(p.Alpha):
		return errors.NewConfigurationError(component, "alpha", "must be >= 0", p.Alpha)
	case p.Gamma < 0 || math.IsNaN(p.Gamma):
		return errors.NewConfigurationError(component, "gamma", "must be >= 0", p.Gamma)
	case p.MinChildWeight < 0 || math.IsNaN(p.MinChildWeight):
		return errors.NewConfigurationError(component, "min_child_weight", "must be >= 0", p.MinChildWeight)
	case p.NumBoostRound < 1:
		return errors.NewConfigurationError(component, "num_boost_round", "must be >= 1", p.NumBoostRound)
	case p.EarlyStoppingRounds < 0:
		return errors.NewConfigurationError(component, "early_stopping_rounds", "must be >= 0", p.EarlyStoppingRounds)
	case p.MaxBin < 2 || p.MaxBin > tree.MaxBinLimit:
		return errors.NewConfigurationError(component, "max_bin", "must be between 2 and 256", p.MaxBin)
	}
	return nil
}

func (p Params) treeParams() tree.Params {
	return tree.Params{
		MaxDepth:       p.MaxDepth,
		Lambda:         p.Lambda,
		Alpha:          p.Alpha,
		Gamma:          p.Gamma,
		MinChildWeight: p.MinChildWeight,
		Shrinkage:      p.Eta,
	}
}
