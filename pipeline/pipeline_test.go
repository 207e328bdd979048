package pipeline

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/hdbvalue/boost"
	"github.com/YuminosukeSato/hdbvalue/bundle"
	"github.com/YuminosukeSato/hdbvalue/config"
	"github.com/YuminosukeSato/hdbvalue/dataset"
	"github.com/YuminosukeSato/hdbvalue/forest"
	"github.com/YuminosukeSato/hdbvalue/metrics"
	"github.com/YuminosukeSato/hdbvalue/pkg/errors"
	"github.com/YuminosukeSato/hdbvalue/pkg/log"
	"github.com/YuminosukeSato/hdbvalue/pkg/telemetry"
	"github.com/YuminosukeSato/hdbvalue/predict"
	"github.com/YuminosukeSato/hdbvalue/search"
)

func smallConfig() *config.Config {
	cfg := config.New()
	cfg.NIter = 5
	cfg.CV = 3
	return cfg
}

func smallBoostSpace(t *testing.T, cfg *config.Config) search.Space {
	t.Helper()
	s, err := cfg.Space()
	require.NoError(t, err)
	s.XGBoost = search.XGBoostSpace{
		MaxDepth:        []int{3, 4},
		Eta:             []float64{0.1, 0.3},
		Subsample:       []float64{0.8, 1.0},
		ColsampleByTree: []float64{0.8, 1.0},
		Lambda:          []float64{1.0},
		Alpha:           []float64{0.1},
		NumBoostRound:   []int{30, 60},
	}
	return s
}

func TestRunEndToEnd(t *testing.T) {
	ds := dataset.Synthetic(1000, 500, 2000, 42)
	cfg := smallConfig()
	logger, _ := log.NewTestLogger(log.LevelInfo)
	m := telemetry.NewWithRegistry(prometheus.NewRegistry())

	rep, err := Run(context.Background(), cfg, ds,
		WithSpace(smallBoostSpace(t, cfg)), WithLogger(logger), WithTelemetry(m))
	require.NoError(t, err)

	b := rep.Bundle
	require.NotNil(t, b)
	require.NoError(t, b.Validate())
	assert.Greater(t, b.Margin.Q, 0.0)
	assert.Equal(t, 0.1, b.Margin.Alpha)
	assert.Equal(t, boost.AsymmetricName, b.Objective)
	assert.Equal(t, 3.0, b.AsymmetryAlpha)
	assert.Equal(t, search.XGBoost, b.Family)

	assert.Equal(t, 1000, rep.TrainRows+rep.TestRows+rep.CalibrationRows)
	assert.Equal(t, 200, rep.TestRows)
	assert.Equal(t, 160, rep.CalibrationRows)
	assert.Equal(t, rep.CalibrationRows, b.Margin.N)
	assert.Len(t, rep.Residuals, rep.CalibrationRows)

	require.NotNil(t, rep.Training)
	assert.Len(t, b.Ensemble.Trees, rep.Training.BestRound+1)
	assert.Equal(t, rep.Training.BestRound, b.BestRound)
	assert.GreaterOrEqual(t, rep.Coverage.Fraction, 0.75)
	assert.Greater(t, b.ValidationScore, 0.0)

	// the asymmetric loss biases held-out predictions upward
	part, err := dataset.Split(ds, cfg.SplitOptions())
	require.NoError(t, err)
	X, y := part.Test.Matrix()
	pred, err := b.Ensemble.PredictMatrix(X)
	require.NoError(t, err)
	bias, err := metrics.MeanBias(y, pred)
	require.NoError(t, err)
	assert.Greater(t, bias, 0.0)

	svc, err := predict.NewService(b)
	require.NoError(t, err)
	r, err := svc.Predict(part.Test.At(0).Features)
	require.NoError(t, err)
	assert.InDelta(t, 2*b.Margin.Q, r.Upper-r.Lower, 1e-6)

	assert.True(t, logger.ContainsMessage("Training run complete"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TrainingRuns.WithLabelValues("success")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.SearchTrials.WithLabelValues("xgboost")))
	assert.Equal(t, b.Margin.Q, testutil.ToFloat64(m.CalibrationMargin))
	assert.Equal(t, float64(len(rep.Training.History)), testutil.ToFloat64(m.BoostingRounds))

	dir := t.TempDir()
	require.NoError(t, b.SaveDir(dir))
	loaded, err := bundle.LoadDir(dir)
	require.NoError(t, err)
	again, err := predict.NewService(loaded)
	require.NoError(t, err)
	r2, err := again.Predict(part.Test.At(0).Features)
	require.NoError(t, err)
	assert.Equal(t, r, r2)
}

func TestRunRandomForest(t *testing.T) {
	cfg := smallConfig()
	cfg.Family = string(search.RandomForest)
	cfg.NIter = 2
	space, err := cfg.Space()
	require.NoError(t, err)
	space.Forest.NEstimators = []int{10}
	space.Forest.MaxFeatures = []forest.MaxFeatures{{Rule: forest.MaxFeaturesAll}}
	logger, _ := log.NewTestLogger(log.LevelWarn)

	rep, err := Run(context.Background(), cfg, dataset.Synthetic(200, 500, 1000, 7),
		WithSpace(space), WithLogger(logger))
	require.NoError(t, err)

	assert.Nil(t, rep.Training)
	assert.Equal(t, search.RandomForest, rep.Bundle.Family)
	assert.Equal(t, boost.SquaredErrorName, rep.Bundle.Objective)
	assert.Len(t, rep.Bundle.Ensemble.Trees, 10)
	assert.Greater(t, rep.Bundle.Margin.Q, 0.0)
}

func TestRunAbortsOnSetupErrors(t *testing.T) {
	logger, _ := log.NewTestLogger(log.LevelError)
	m := telemetry.NewWithRegistry(prometheus.NewRegistry())
	opts := []Option{WithLogger(logger), WithTelemetry(m)}
	ds := dataset.Synthetic(100, 500, 100, 1)

	t.Run("unknown family", func(t *testing.T) {
		cfg := smallConfig()
		cfg.Family = "svm"
		rep, err := Run(context.Background(), cfg, ds, opts...)
		assert.Nil(t, rep)
		var cfgErr *errors.ConfigurationError
		assert.True(t, errors.As(err, &cfgErr))
		assert.True(t, errors.Is(err, config.ErrInvalidConfig))
	})

	t.Run("malformed row", func(t *testing.T) {
		rows := append([][]float64{}, ds.Rows()...)
		rows[3] = rows[3][:12]
		bad, err := dataset.FromRows(rows, ds.Targets())
		require.NoError(t, err)
		rep, err := Run(context.Background(), smallConfig(), bad, opts...)
		assert.Nil(t, rep)
		var shapeErr *errors.FeatureShapeError
		assert.True(t, errors.As(err, &shapeErr))
	})

	t.Run("fewer rows than folds", func(t *testing.T) {
		cfg := smallConfig()
		cfg.CV = 5
		rep, err := Run(context.Background(), cfg, ds.Subset([]int{0, 1, 2, 3, 4, 5}), opts...)
		assert.Nil(t, rep)
		var dataErr *errors.InsufficientDataError
		assert.True(t, errors.As(err, &dataErr))
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Run(ctx, smallConfig(), ds, append(opts, WithSpace(smallBoostSpace(t, smallConfig())))...)
		assert.True(t, errors.Is(err, context.Canceled))
	})

	assert.Equal(t, 4.0, testutil.ToFloat64(m.TrainingRuns.WithLabelValues("failure")))
	assert.Equal(t, 4, logger.CountLevel("ERROR"))
}
