// Package pipeline runs the training stages end to end: split, search,
// final training, calibration and bundling.
package pipeline

import (
	"context"
	"time"

	"github.com/YuminosukeSato/hdbvalue/boost"
	"github.com/YuminosukeSato/hdbvalue/bundle"
	"github.com/YuminosukeSato/hdbvalue/config"
	"github.com/YuminosukeSato/hdbvalue/conformal"
	"github.com/YuminosukeSato/hdbvalue/dataset"
	"github.com/YuminosukeSato/hdbvalue/forest"
	"github.com/YuminosukeSato/hdbvalue/metrics"
	"github.com/YuminosukeSato/hdbvalue/pkg/errors"
	"github.com/YuminosukeSato/hdbvalue/pkg/log"
	"github.com/YuminosukeSato/hdbvalue/pkg/telemetry"
	"github.com/YuminosukeSato/hdbvalue/search"
	"github.com/YuminosukeSato/hdbvalue/tree"
)

// Report is everything a run produced. Only Bundle is persisted.
type Report struct {
	Bundle *bundle.Bundle

	Search   *search.Result
	Training *boost.Result // nil for the random forest family

	TrainRows, TestRows, CalibrationRows int

	// Residuals are the absolute calibration residuals q was taken from.
	Residuals []float64

	// Coverage is measured on the test split.
	Coverage conformal.Coverage
}

type settings struct {
	logger  log.Logger
	metrics *telemetry.Metrics
	space   *search.Space
}

// Option configures Run.
type Option func(*settings)

// WithLogger sets the logger used by every stage.
func WithLogger(l log.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithTelemetry attaches Prometheus metrics to every stage.
func WithTelemetry(m *telemetry.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithSpace replaces the default search space of the configured family.
func WithSpace(space search.Space) Option {
	return func(s *settings) { s.space = &space }
}

// Run trains a bundle from ds. Configuration and data errors abort before
// any training starts; no partial bundle is ever returned.
func Run(ctx context.Context, cfg *config.Config, ds *dataset.Dataset, opts ...Option) (rep *Report, err error) {
	var st settings
	for _, opt := range opts {
		opt(&st)
	}
	if st.logger == nil {
		st.logger = log.GetLoggerWithName("pipeline")
	}
	logger := st.logger
	defer func() {
		if err != nil {
			st.metrics.ObserveRun("failure")
			logger.Error("Training run failed", err)
			return
		}
		st.metrics.ObserveRun("success")
	}()
	defer errors.Recover(&err, "pipeline.Run")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	space := st.space
	if space == nil {
		s, err := cfg.Space()
		if err != nil {
			return nil, err
		}
		space = &s
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	part, err := dataset.Split(ds, cfg.SplitOptions())
	if err != nil {
		return nil, err
	}
	logger.Info("Dataset split",
		log.SamplesKey, ds.Len(),
		log.TrainRowsKey, part.Train.Len(),
		log.TestRowsKey, part.Test.Len(),
		log.CalibRowsKey, part.Calibration.Len(),
		log.RandomSeedKey, cfg.Seed,
	)

	searchOpts := cfg.SearchOptions()
	searchOpts.Logger = logger
	searchOpts.Telemetry = st.metrics
	found, err := search.Run(ctx, *space, part.Train, searchOpts)
	if err != nil {
		return nil, err
	}

	rep = &Report{
		Search:          found,
		TrainRows:       part.Train.Len(),
		TestRows:        part.Test.Len(),
		CalibrationRows: part.Calibration.Len(),
	}

	var (
		ens       *tree.Ensemble
		objective string
		asymmetry float64
	)
	switch found.Best.Family {
	case search.XGBoost:
		obj, err := boost.NewAsymmetric(cfg.AsymmetryAlpha)
		if err != nil {
			return nil, err
		}
		params := found.Best.Boost
		params.EarlyStoppingRounds = cfg.EarlyStoppingRounds
		trainer, err := boost.NewTrainer(params, obj)
		if err != nil {
			return nil, err
		}
		res, err := trainer.WithLogger(logger).WithTelemetry(st.metrics).Train(ctx, part.Train, part.Test)
		if err != nil {
			return nil, err
		}
		rep.Training = res
		ens, objective, asymmetry = res.Ensemble, obj.Name(), obj.Alpha
		logger.Info("Asymmetric retrain finished",
			log.AsymmetryKey, obj.Alpha,
			log.BestRoundKey, res.BestRound,
			log.IterationKey, len(res.History),
			log.RMSEKey, res.BestScore,
		)
	case search.RandomForest:
		ens, err = forest.Train(ctx, part.Train, found.Best.Forest)
		if err != nil {
			return nil, err
		}
		objective = boost.SquaredErrorName
		logger.Info("Forest refit finished", log.IterationKey, ens.Len())
	default:
		_, err := search.ParseFamily(string(found.Best.Family))
		return nil, err
	}

	calOpts := cfg.CalibrationOptions()
	calOpts.Logger = logger
	calOpts.Telemetry = st.metrics
	margin, err := conformal.Calibrate(ens, part.Calibration, calOpts)
	if err != nil {
		return nil, err
	}
	rep.Residuals = conformal.Residuals(ens, part.Calibration)

	b := bundle.New(found.Best, ens, margin)
	b.Objective = objective
	b.AsymmetryAlpha = asymmetry
	b.SearchScore = found.BestScore
	if rep.Training != nil {
		b.BestRound = rep.Training.BestRound
	}
	if part.Test.Len() > 0 {
		if b.ValidationScore, err = testRMSE(ens, part.Test); err != nil {
			return nil, err
		}
		if rep.Coverage, err = conformal.Evaluate(ens, margin, part.Test); err != nil {
			return nil, err
		}
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	rep.Bundle = b

	logger.Info("Training run complete",
		log.BundleIDKey, b.ID.String(),
		log.ModelNameKey, string(b.Family),
		log.MarginKey, margin.Q,
		log.RMSEKey, b.ValidationScore,
		log.CoverageKey, rep.Coverage.Fraction,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return rep, nil
}

func testRMSE(ens *tree.Ensemble, test *dataset.Dataset) (float64, error) {
	X, y := test.Matrix()
	pred, err := ens.PredictMatrix(X)
	if err != nil {
		return 0, err
	}
	return metrics.RMSE(y, pred)
}
