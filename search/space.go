// Package search implements randomized hyperparameter search scored by
// k-fold cross-validation.
package search

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/YuminosukeSato/hdbvalue/boost"
	"github.com/YuminosukeSato/hdbvalue/core/model"
	"github.com/YuminosukeSato/hdbvalue/forest"
	"github.com/YuminosukeSato/hdbvalue/pkg/errors"
)

// Family names a model family with its own search space.
type Family string

const (
	XGBoost      Family = "xgboost"
	RandomForest Family = "random_forest"
)

// ParseFamily resolves a family name. Unknown names are a
// ConfigurationError.
func ParseFamily(s string) (Family, error) {
	switch f := Family(strings.ToLower(strings.TrimSpace(s))); f {
	case XGBoost, RandomForest:
		return f, nil
	}
	return "", errors.NewConfigurationError("search", "family",
		fmt.Sprintf("unsupported model family, expected %q or %q", XGBoost, RandomForest), s)
}

// XGBoostSpace lists the allowed values of each boosting hyperparameter.
type XGBoostSpace struct {
	MaxDepth        []int     `yaml:"max_depth"`
	Eta             []float64 `yaml:"eta"`
	Subsample       []float64 `yaml:"subsample"`
	ColsampleByTree []float64 `yaml:"colsample_bytree"`
	Lambda          []float64 `yaml:"lambda"`
	Alpha           []float64 `yaml:"alpha"`
	NumBoostRound   []int     `yaml:"num_boost_round"`
}

// ForestSpace lists the allowed values of each forest hyperparameter.
// A MaxDepth of 0 means no limit.
type ForestSpace struct {
	MaxDepth        []int                `yaml:"max_depth"`
	MinSamplesSplit []int                `yaml:"min_samples_split"`
	MinSamplesLeaf  []int                `yaml:"min_samples_leaf"`
	MaxFeatures     []forest.MaxFeatures `yaml:"max_features"`
	NEstimators     []int                `yaml:"n_estimators"`
}

// Space is the search space for one family. Only the block matching
// Family is used.
type Space struct {
	Family  Family       `yaml:"family"`
	XGBoost XGBoostSpace `yaml:"xgboost,omitempty"`
	Forest  ForestSpace  `yaml:"random_forest,omitempty"`

	// BaseBoost and BaseForest supply the parameters the space does not
	// sample (MaxBin, Seed, early stopping patience ...).
	BaseBoost  boost.Params  `yaml:"-"`
	BaseForest forest.Params `yaml:"-"`
}

// DefaultSpace returns the standard space for family.
func DefaultSpace(family Family) (Space, error) {
	s := Space{
		Family:     family,
		BaseBoost:  boost.DefaultParams(),
		BaseForest: forest.DefaultParams(),
	}
	switch family {
	case XGBoost:
		s.XGBoost = XGBoostSpace{
			MaxDepth:        []int{5, 10, 15, 20},
			Eta:             []float64{0.05, 0.1, 0.2, 0.3},
			Subsample:       []float64{0.7, 0.8, 0.9, 1.0},
			ColsampleByTree: []float64{0.7, 0.8, 0.9, 1.0},
			Lambda:          []float64{0.1, 1.0, 10.0},
			Alpha:           []float64{0.1, 1.0, 10.0},
			NumBoostRound:   []int{500, 1000},
		}
	case RandomForest:
		s.Forest = ForestSpace{
			MaxDepth:        []int{0, 10, 15, 20, 30, 35, 40},
			MinSamplesSplit: []int{2, 5, 10, 20, 50},
			MinSamplesLeaf:  []int{1, 2, 5, 10, 20},
			MaxFeatures: []forest.MaxFeatures{
				{Rule: forest.MaxFeaturesSqrt},
				{Rule: forest.MaxFeaturesLog2},
				forest.Fraction(0.3),
				forest.Fraction(0.5),
				forest.Fraction(0.2),
				forest.Fraction(0.4),
			},
			NEstimators: []int{50, 100, 200, 500},
		}
	default:
		_, err := ParseFamily(string(family))
		return Space{}, err
	}
	return s, nil
}

// Validate checks the family and that every dimension has at least one
// value. Each value must also produce valid model parameters.
func (s Space) Validate() error {
	if _, err := ParseFamily(string(s.Family)); err != nil {
		return err
	}
	empty := func(dim string, n int) error {
		if n == 0 {
			return errors.NewConfigurationError("search.Space", dim, "dimension has no values", string(s.Family))
		}
		return nil
	}

	var dims []error
	switch s.Family {
	case XGBoost:
		x := s.XGBoost
		dims = []error{
			empty("max_depth", len(x.MaxDepth)),
			empty("eta", len(x.Eta)),
			empty("subsample", len(x.Subsample)),
			empty("colsample_bytree", len(x.ColsampleByTree)),
			empty("lambda", len(x.Lambda)),
			empty("alpha", len(x.Alpha)),
			empty("num_boost_round", len(x.NumBoostRound)),
		}
	case RandomForest:
		f := s.Forest
		dims = []error{
			empty("max_depth", len(f.MaxDepth)),
			empty("min_samples_split", len(f.MinSamplesSplit)),
			empty("min_samples_leaf", len(f.MinSamplesLeaf)),
			empty("max_features", len(f.MaxFeatures)),
			empty("n_estimators", len(f.NEstimators)),
		}
	}
	for _, err := range dims {
		if err != nil {
			return err
		}
	}
	return s.checkValues()
}

// checkValues applies each dimension value to the base parameters and
// validates the result.
func (s Space) checkValues() error {
	switch s.Family {
	case XGBoost:
		x := s.XGBoost
		for _, v := range x.MaxDepth {
			p := s.BaseBoost
			p.MaxDepth = v
			if err := p.Validate(); err != nil {
				return err
			}
		}
		for _, set := range []struct {
			vals []float64
			set  func(*boost.Params, float64)
		}{
			{x.Eta, func(p *boost.Params, v float64) { p.Eta = v }},
			{x.Subsample, func(p *boost.Params, v float64) { p.Subsample = v }},
			{x.ColsampleByTree, func(p *boost.Params, v float64) { p.ColsampleByTree = v }},
			{x.Lambda, func(p *boost.Params, v float64) { p.Lambda = v }},
			{x.Alpha, func(p *boost.Params, v float64) { p.Alpha = v }},
		} {
			for _, v := range set.vals {
				p := s.BaseBoost
				set.set(&p, v)
				if err := p.Validate(); err != nil {
					return err
				}
			}
		}
		for _, v := range x.NumBoostRound {
			p := s.BaseBoost
			p.NumBoostRound = v
			if err := p.Validate(); err != nil {
				return err
			}
		}
	case RandomForest:
		f := s.Forest
		for _, set := range []struct {
			vals []int
			set  func(*forest.Params, int)
		}{
			{f.MaxDepth, func(p *forest.Params, v int) { p.MaxDepth = v }},
			{f.MinSamplesSplit, func(p *forest.Params, v int) { p.MinSamplesSplit = v }},
			{f.MinSamplesLeaf, func(p *forest.Params, v int) { p.MinSamplesLeaf = v }},
			{f.NEstimators, func(p *forest.Params, v int) { p.NEstimators = v }},
		} {
			for _, v := range set.vals {
				p := s.BaseForest
				set.set(&p, v)
				if err := p.Validate(); err != nil {
					return err
				}
			}
		}
		for _, v := range f.MaxFeatures {
			p := s.BaseForest
			p.MaxFeatures = v
			if err := p.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Size returns the number of distinct configurations in the space.
func (s Space) Size() int {
	switch s.Family {
	case XGBoost:
		x := s.XGBoost
		return len(x.MaxDepth) * len(x.Eta) * len(x.Subsample) * len(x.ColsampleByTree) *
			len(x.Lambda) * len(x.Alpha) * len(x.NumBoostRound)
	case RandomForest:
		f := s.Forest
		return len(f.MaxDepth) * len(f.MinSamplesSplit) * len(f.MinSamplesLeaf) *
			len(f.MaxFeatures) * len(f.NEstimators)
	}
	return 0
}

func pick[T any](rng *rand.Rand, vals []T) T {
	return vals[rng.IntN(len(vals))]
}

// sample draws one value per dimension, in declaration order.
func (s Space) sample(rng *rand.Rand) Config {
	c := Config{Family: s.Family}
	switch s.Family {
	case XGBoost:
		x := s.XGBoost
		p := s.BaseBoost
		p.MaxDepth = pick(rng, x.MaxDepth)
		p.Eta = pick(rng, x.Eta)
		p.Subsample = pick(rng, x.Subsample)
		p.ColsampleByTree = pick(rng, x.ColsampleByTree)
		p.Lambda = pick(rng, x.Lambda)
		p.Alpha = pick(rng, x.Alpha)
		p.NumBoostRound = pick(rng, x.NumBoostRound)
		c.Boost = p
	case RandomForest:
		f := s.Forest
		p := s.BaseForest
		p.MaxDepth = pick(rng, f.MaxDepth)
		p.MinSamplesSplit = pick(rng, f.MinSamplesSplit)
		p.MinSamplesLeaf = pick(rng, f.MinSamplesLeaf)
		p.MaxFeatures = pick(rng, f.MaxFeatures)
		p.NEstimators = pick(rng, f.NEstimators)
		c.Forest = p
	}
	return c
}

// Config is one sampled configuration. Only the parameter block matching
// Family is meaningful.
type Config struct {
	Family Family        `yaml:"family"`
	Boost  boost.Params  `yaml:"xgboost,omitempty"`
	Forest forest.Params `yaml:"random_forest,omitempty"`
}

// Regressor returns an unfitted regressor for the configuration. Boosting
// configurations are scored under squared error.
func (c Config) Regressor() (model.Regressor, error) {
	switch c.Family {
	case XGBoost:
		if err := c.Boost.Validate(); err != nil {
			return nil, err
		}
		return boost.NewRegressor(c.Boost, boost.SquaredError{}), nil
	case RandomForest:
		if err := c.Forest.Validate(); err != nil {
			return nil, err
		}
		return forest.NewRegressor(c.Forest), nil
	}
	_, err := ParseFamily(string(c.Family))
	return nil, err
}

func (c Config) String() string {
	switch c.Family {
	case XGBoost:
		p := c.Boost
		return fmt.Sprintf("xgboost{max_depth=%d eta=%g subsample=%g colsample_bytree=%g lambda=%g alpha=%g num_boost_round=%d}",
			p.MaxDepth, p.Eta, p.Subsample, p.ColsampleByTree, p.Lambda, p.Alpha, p.NumBoostRound)
	case RandomForest:
		p := c.Forest
		depth := "None"
		if p.MaxDepth > 0 {
			depth = fmt.Sprint(p.MaxDepth)
		}
		return fmt.Sprintf("random_forest{max_depth=%s min_samples_split=%d min_samples_leaf=%d max_features=%s n_estimators=%d}",
			depth, p.MinSamplesSplit, p.MinSamplesLeaf, p.MaxFeatures, p.NEstimators)
	}
	return fmt.Sprintf("%s{}", c.Family)
}
