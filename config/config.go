// Package config defines the training configuration and how it is loaded.
//
// Conventions:
//   - New returns a Config holding the defaults.
//   - Load layers a YAML file and HDBVALUE_* environment variables over them.
//   - Validate reports every rejected field as an error wrapping
//     ErrInvalidConfig.
package config

import (
	"github.com/cockroachdb/errors"

	"github.com/YuminosukeSato/hdbvalue/boost"
	"github.com/YuminosukeSato/hdbvalue/conformal"
	"github.com/YuminosukeSato/hdbvalue/dataset"
	"github.com/YuminosukeSato/hdbvalue/metrics"
	"github.com/YuminosukeSato/hdbvalue/search"
	"github.com/YuminosukeSato/hdbvalue/tree"
)

// Config contains the pipeline configuration.
type Config struct {
	// Family selects the search space: xgboost or random_forest.
	Family string `koanf:"family"`

	// NIter is the number of sampled configurations.
	NIter int `koanf:"n_iter"`

	// CV is the number of cross-validation folds.
	CV int `koanf:"cv"`

	// Scoring names the cross-validation metric.
	Scoring string `koanf:"scoring"`

	// Seed drives every random choice of a run.
	Seed uint64 `koanf:"seed"`

	// Workers bounds concurrent fits during the search; 0 uses every CPU.
	Workers int `koanf:"workers"`

	// AsymmetryAlpha is the underestimation penalty of the final retrain.
	AsymmetryAlpha float64 `koanf:"asymmetry_alpha"`

	// EarlyStoppingRounds is the retrain patience.
	EarlyStoppingRounds int `koanf:"early_stopping_rounds"`

	// MaxBin caps the histogram bins per feature.
	MaxBin int `koanf:"max_bin"`

	// MiscoverageAlpha is the conformal target miscoverage.
	MiscoverageAlpha float64 `koanf:"miscoverage_alpha"`

	// QuantileMethod is conservative or linear.
	QuantileMethod string `koanf:"quantile_method"`

	// TestFraction and CalibrationFraction size the held-out splits.
	TestFraction        float64 `koanf:"test_fraction"`
	CalibrationFraction float64 `koanf:"calibration_fraction"`

	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the backend: json (slog), zerolog, or console
	// (human readable zerolog).
	LogFormat string `koanf:"log_format"`
}

// New creates a Config holding the defaults.
func New() *Config {
	split := dataset.DefaultSplitOptions()
	return &Config{
		Family:              string(search.XGBoost),
		NIter:               20,
		CV:                  5,
		Scoring:             metrics.NegRMSE,
		Seed:                42,
		Workers:             0,
		AsymmetryAlpha:      boost.DefaultAsymmetry,
		EarlyStoppingRounds: 20,
		MaxBin:              255,
		MiscoverageAlpha:    0.1,
		QuantileMethod:      string(conformal.Conservative),
		TestFraction:        split.TestFraction,
		CalibrationFraction: split.CalibrationFraction,
		LogLevel:            "info",
		LogFormat:           "json",
	}
}

func invalid(field string, format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidConfig, field+": "+format, args...)
}

// Validate checks every field.
func (c *Config) Validate() error {
	if _, err := search.ParseFamily(c.Family); err != nil {
		return errors.Mark(errors.Wrap(err, "family"), ErrInvalidConfig)
	}
	if _, err := metrics.ScorerByName(c.Scoring); err != nil {
		return errors.Mark(errors.Wrap(err, "scoring"), ErrInvalidConfig)
	}
	if _, err := conformal.ParseMethod(c.QuantileMethod); err != nil {
		return errors.Mark(errors.Wrap(err, "quantile_method"), ErrInvalidConfig)
	}
	switch {
	case c.NIter < 1:
		return invalid("n_iter", "must be >= 1, got %d", c.NIter)
	case c.CV < 2:
		return invalid("cv", "must be >= 2, got %d", c.CV)
	case c.Workers < 0:
		return invalid("workers", "must be >= 0, got %d", c.Workers)
	case !(c.AsymmetryAlpha >= 1):
		return invalid("asymmetry_alpha", "must be >= 1, got %v", c.AsymmetryAlpha)
	case c.EarlyStoppingRounds < 0:
		return invalid("early_stopping_rounds", "must be >= 0, got %d", c.EarlyStoppingRounds)
	case c.MaxBin < 2 || c.MaxBin > tree.MaxBinLimit:
		return invalid("max_bin", "must be between 2 and %d, got %d", tree.MaxBinLimit, c.MaxBin)
	case !(c.MiscoverageAlpha > 0 && c.MiscoverageAlpha < 1):
		return invalid("miscoverage_alpha", "must be in (0, 1), got %v", c.MiscoverageAlpha)
	case !(c.TestFraction > 0 && c.TestFraction < 1):
		return invalid("test_fraction", "must be in (0, 1), got %v", c.TestFraction)
	case !(c.CalibrationFraction > 0 && c.CalibrationFraction < 1):
		return invalid("calibration_fraction", "must be in (0, 1), got %v", c.CalibrationFraction)
	}
	switch c.LogFormat {
	case "json", "zerolog", "console":
	default:
		return invalid("log_format", "must be json, zerolog or console, got %q", c.LogFormat)
	}
	return nil
}

// FamilyName returns the parsed model family.
func (c *Config) FamilyName() (search.Family, error) {
	return search.ParseFamily(c.Family)
}

// Space returns the default space of the configured family with the
// retrain and binning parameters applied to its base parameters.
func (c *Config) Space() (search.Space, error) {
	family, err := c.FamilyName()
	if err != nil {
		return search.Space{}, err
	}
	s, err := search.DefaultSpace(family)
	if err != nil {
		return search.Space{}, err
	}
	s.BaseBoost.EarlyStoppingRounds = c.EarlyStoppingRounds
	s.BaseBoost.MaxBin = c.MaxBin
	s.BaseBoost.Seed = c.Seed
	s.BaseForest.MaxBin = c.MaxBin
	s.BaseForest.Seed = c.Seed
	return s, nil
}

// SearchOptions returns the search options.
func (c *Config) SearchOptions() search.Options {
	return search.Options{
		NIter:   c.NIter,
		CV:      c.CV,
		Scoring: c.Scoring,
		Seed:    c.Seed,
		Workers: c.Workers,
	}
}

// SplitOptions returns the partition options.
func (c *Config) SplitOptions() dataset.SplitOptions {
	return dataset.SplitOptions{
		TestFraction:        c.TestFraction,
		CalibrationFraction: c.CalibrationFraction,
		Seed:                c.Seed,
	}
}

// CalibrationOptions returns the conformal options.
func (c *Config) CalibrationOptions() conformal.Options {
	method, _ := conformal.ParseMethod(c.QuantileMethod)
	return conformal.Options{Alpha: c.MiscoverageAlpha, Method: method}
}
