// Package forest trains bagged regression trees (a random forest) on the
// shared histogram tree builder.
package forest

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/hdbvalue/pkg/errors"
	"github.com/YuminosukeSato/hdbvalue/tree"
)

// Feature sampling rules.
const (
	MaxFeaturesAll      = "all"
	MaxFeaturesSqrt     = "sqrt"
	MaxFeaturesLog2     = "log2"
	MaxFeaturesFraction = "fraction"
)

// MaxFeatures is the number of features examined at each split, given as a
// rule over the total feature count or as a fraction of it.
type MaxFeatures struct {
	Rule     string  `yaml:"rule"`
	Fraction float64 `yaml:"fraction,omitempty"`
}

// Fraction returns a MaxFeatures examining f·n features.
func Fraction(f float64) MaxFeatures {
	return MaxFeatures{Rule: MaxFeaturesFraction, Fraction: f}
}

// ParseMaxFeatures accepts "sqrt", "log2", "all" or a number in (0, 1].
func ParseMaxFeatures(s string) (MaxFeatures, error) {
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case MaxFeaturesSqrt, MaxFeaturesLog2, MaxFeaturesAll:
		return MaxFeatures{Rule: s}, nil
	case "", "none":
		return MaxFeatures{Rule: MaxFeaturesAll}, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || !(f > 0 && f <= 1) {
		return MaxFeatures{}, errors.NewConfigurationError("forest", "max_features",
			"must be sqrt, log2, all or a fraction in (0, 1]", s)
	}
	return Fraction(f), nil
}

// Resolve returns the per-split feature count for n features, at least 1.
func (m MaxFeatures) Resolve(n int) int {
	var k int
	switch m.Rule {
	case MaxFeaturesSqrt:
		k = int(math.Sqrt(float64(n)))
	case MaxFeaturesLog2:
		k = int(math.Log2(float64(n)))
	case MaxFeaturesFraction:
		k = int(m.Fraction * float64(n))
	default:
		k = n
	}
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	return k
}

func (m MaxFeatures) String() string {
	if m.Rule == MaxFeaturesFraction {
		return strconv.FormatFloat(m.Fraction, 'g', -1, 64)
	}
	if m.Rule == "" {
		return MaxFeaturesAll
	}
	return m.Rule
}

func (m MaxFeatures) validate() error {
	switch m.Rule {
	case "", MaxFeaturesAll, MaxFeaturesSqrt, MaxFeaturesLog2:
		return nil
	case MaxFeaturesFraction:
		if m.Fraction > 0 && m.Fraction <= 1 {
			return nil
		}
	}
	return errors.NewConfigurationError("forest.Params", "max_features", fmt.Sprintf("invalid rule %q", m.String()), m)
}

// Params are the forest hyperparameters, named after scikit-learn's
// RandomForestRegressor.
type Params struct {
	NEstimators     int         `yaml:"n_estimators"`
	MaxDepth        int         `yaml:"max_depth"` // 0 means no limit
	MinSamplesSplit int         `yaml:"min_samples_split"`
	MinSamplesLeaf  int         `yaml:"min_samples_leaf"`
	MaxFeatures     MaxFeatures `yaml:"max_features"`
	MaxBin          int         `yaml:"max_bin"`
	Seed            uint64      `yaml:"seed"`
}

// DefaultParams mirrors RandomForestRegressor defaults.
func DefaultParams() Params {
	return Params{
		NEstimators:     100,
		MaxDepth:        0,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxFeatures:     MaxFeatures{Rule: MaxFeaturesAll},
		MaxBin:          255,
		Seed:            42,
	}
}

// Validate rejects parameters no trainer can run with.
func (p Params) Validate() error {
	const component = "forest.Params"
	switch {
	case p.NEstimators < 1:
		return errors.NewConfigurationError(component, "n_estimators", "must be >= 1", p.NEstimators)
	case p.MaxDepth < 0:
		return errors.NewConfigurationError(component, "max_depth", "must be >= 0", p.MaxDepth)
	case p.MinSamplesSplit < 2:
		return errors.NewConfigurationError(component, "min_samples_split", "must be >= 2", p.MinSamplesSplit)
	case p.MinSamplesLeaf < 1:
		return errors.NewConfigurationError(component, "min_samples_leaf", "must be >= 1", p.MinSamplesLeaf)
	case p.MaxBin < 2 || p.MaxBin > tree.MaxBinLimit:
		return errors.NewConfigurationError(component, "max_bin", "must be between 2 and 256", p.MaxBin)
	}
	return p.MaxFeatures.validate()
}

func (p Params) treeParams(nFeatures int) tree.Params {
	return tree.Params{
		MaxDepth:         p.MaxDepth,
		MinSamplesSplit:  p.MinSamplesSplit,
		MinSamplesLeaf:   p.MinSamplesLeaf,
		FeaturesPerSplit: p.MaxFeatures.Resolve(nFeatures),
		Shrinkage:        1,
	}
}
