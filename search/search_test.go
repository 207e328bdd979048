package search

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/hdbvalue/dataset"
	"github.com/YuminosukeSato/hdbvalue/forest"
	"github.com/YuminosukeSato/hdbvalue/metrics"
	"github.com/YuminosukeSato/hdbvalue/pkg/errors"
	"github.com/YuminosukeSato/hdbvalue/pkg/log"
	"github.com/YuminosukeSato/hdbvalue/pkg/telemetry"
)

func smallBoostSpace(t *testing.T) Space {
	t.Helper()
	s, err := DefaultSpace(XGBoost)
	require.NoError(t, err)
	s.XGBoost = XGBoostSpace{
		MaxDepth:        []int{2, 4},
		Eta:             []float64{0.1, 0.3},
		Subsample:       []float64{0.8, 1.0},
		ColsampleByTree: []float64{1.0},
		Lambda:          []float64{1.0},
		Alpha:           []float64{0.1},
		NumBoostRound:   []int{5, 20},
	}
	return s
}

func quietOptions() Options {
	opts := DefaultOptions()
	opts.NIter = 4
	opts.CV = 3
	logger, _ := log.NewTestLogger(log.LevelError)
	opts.Logger = logger
	return opts
}

func TestParseFamily(t *testing.T) {
	f, err := ParseFamily("XGBoost")
	require.NoError(t, err)
	assert.Equal(t, XGBoost, f)

	f, err = ParseFamily(" random_forest ")
	require.NoError(t, err)
	assert.Equal(t, RandomForest, f)

	_, err = ParseFamily("logistic_regression")
	var cfgErr *errors.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "family", cfgErr.Field)
}

func TestDefaultSpaces(t *testing.T) {
	xgb, err := DefaultSpace(XGBoost)
	require.NoError(t, err)
	require.NoError(t, xgb.Validate())
	assert.Equal(t, 4*4*4*4*3*3*2, xgb.Size())
	assert.Equal(t, []int{500, 1000}, xgb.XGBoost.NumBoostRound)

	rf, err := DefaultSpace(RandomForest)
	require.NoError(t, err)
	require.NoError(t, rf.Validate())
	assert.Equal(t, 7*5*5*6*4, rf.Size())
	assert.Contains(t, rf.Forest.MaxFeatures, forest.MaxFeatures{Rule: forest.MaxFeaturesLog2})

	_, err = DefaultSpace("svm")
	assert.Error(t, err)
}

func TestSpaceValidateRejectsBadDimensions(t *testing.T) {
	s := smallBoostSpace(t)
	s.XGBoost.Eta = nil
	var cfgErr *errors.ConfigurationError
	require.True(t, errors.As(s.Validate(), &cfgErr))
	assert.Equal(t, "eta", cfgErr.Field)

	s = smallBoostSpace(t)
	s.XGBoost.Subsample = []float64{0.5, 1.5}
	require.True(t, errors.As(s.Validate(), &cfgErr))
	assert.Equal(t, "subsample", cfgErr.Field)

	rf, err := DefaultSpace(RandomForest)
	require.NoError(t, err)
	rf.Forest.MinSamplesLeaf = []int{}
	require.True(t, errors.As(rf.Validate(), &cfgErr))
	assert.Equal(t, "min_samples_leaf", cfgErr.Field)

	rf.Family = "gbm"
	require.True(t, errors.As(rf.Validate(), &cfgErr))
	assert.Equal(t, "family", cfgErr.Field)
}

func TestSamplingIsSeeded(t *testing.T) {
	s, err := DefaultSpace(XGBoost)
	require.NoError(t, err)
	ds := dataset.Synthetic(30, 500, 100, 1)

	opts := quietOptions()
	opts.NIter = 3
	s.XGBoost.NumBoostRound = []int{2}

	a, err := Run(context.Background(), s, ds, opts)
	require.NoError(t, err)
	b, err := Run(context.Background(), s, ds, opts)
	require.NoError(t, err)
	for i := range a.Trials {
		assert.Equal(t, a.Trials[i].Config, b.Trials[i].Config)
	}

	opts.Seed = 7
	c, err := Run(context.Background(), s, ds, opts)
	require.NoError(t, err)
	var differs bool
	for i := range a.Trials {
		differs = differs || a.Trials[i].Config != c.Trials[i].Config
	}
	assert.True(t, differs)
}

func TestRunSelectsBestTrial(t *testing.T) {
	ds := dataset.Synthetic(90, 500, 300, 2)
	res, err := Run(context.Background(), smallBoostSpace(t), ds, quietOptions())
	require.NoError(t, err)
	require.Len(t, res.Trials, 4)

	first := -1
	for i, trial := range res.Trials {
		assert.Equal(t, i, trial.Index)
		assert.Len(t, trial.FoldScores, 3)
		assert.LessOrEqual(t, trial.Score, res.BestScore)
		assert.Less(t, trial.Score, 0.0) // negated RMSE
		if first < 0 && trial.Score == res.BestScore {
			first = i
		}
	}
	assert.Equal(t, first, res.BestIndex)
	assert.Equal(t, res.Trials[res.BestIndex].Config, res.Best)
}

func TestRunTiesKeepEarliestDraw(t *testing.T) {
	s := smallBoostSpace(t)
	s.XGBoost = XGBoostSpace{
		MaxDepth:        []int{3},
		Eta:             []float64{0.3},
		Subsample:       []float64{1},
		ColsampleByTree: []float64{1},
		Lambda:          []float64{1},
		Alpha:           []float64{0},
		NumBoostRound:   []int{5},
	}
	res, err := Run(context.Background(), s, dataset.Synthetic(40, 500, 100, 3), quietOptions())
	require.NoError(t, err)
	assert.Equal(t, 0, res.BestIndex)
	for _, trial := range res.Trials {
		assert.Equal(t, res.BestScore, trial.Score)
	}
}

func TestRunIsIndependentOfWorkers(t *testing.T) {
	ds := dataset.Synthetic(60, 500, 300, 4)
	opts := quietOptions()

	opts.Workers = 1
	serial, err := Run(context.Background(), smallBoostSpace(t), ds, opts)
	require.NoError(t, err)

	opts.Workers = 4
	concurrent, err := Run(context.Background(), smallBoostSpace(t), ds, opts)
	require.NoError(t, err)

	assert.Equal(t, serial.BestIndex, concurrent.BestIndex)
	for i := range serial.Trials {
		assert.Equal(t, serial.Trials[i].FoldScores, concurrent.Trials[i].FoldScores)
	}
}

func TestRunForestFamily(t *testing.T) {
	s, err := DefaultSpace(RandomForest)
	require.NoError(t, err)
	s.Forest.NEstimators = []int{5}
	s.Forest.MinSamplesSplit = []int{2, 5}
	s.Forest.MinSamplesLeaf = []int{1, 2}
	s.Forest.MaxFeatures = []forest.MaxFeatures{{Rule: forest.MaxFeaturesAll}}

	opts := quietOptions()
	opts.Scoring = metrics.R2
	res, err := Run(context.Background(), s, dataset.Synthetic(60, 500, 100, 5), opts)
	require.NoError(t, err)
	assert.Equal(t, RandomForest, res.Best.Family)
	assert.Equal(t, 5, res.Best.Forest.NEstimators)
	assert.Greater(t, res.BestScore, 0.0)
}

func TestRunErrors(t *testing.T) {
	ds := dataset.Synthetic(10, 500, 0, 6)
	space := smallBoostSpace(t)
	var dataErr *errors.InsufficientDataError
	var cfgErr *errors.ConfigurationError

	opts := quietOptions()
	opts.CV = 1
	_, err := Run(context.Background(), space, ds, opts)
	assert.True(t, errors.As(err, &dataErr))

	opts = quietOptions()
	opts.CV = 5
	_, err = Run(context.Background(), space, ds.Subset([]int{0, 1, 2}), opts)
	assert.True(t, errors.As(err, &dataErr))

	opts = quietOptions()
	opts.Scoring = "accuracy"
	_, err = Run(context.Background(), space, ds, opts)
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "scoring", cfgErr.Field)

	opts = quietOptions()
	opts.NIter = 0
	_, err = Run(context.Background(), space, ds, opts)
	assert.True(t, errors.As(err, &cfgErr))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Run(ctx, space, ds, quietOptions())
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRunLogsAndRecordsTrials(t *testing.T) {
	logger, _ := log.NewTestLogger(log.LevelInfo)
	m := telemetry.NewWithRegistry(prometheus.NewRegistry())

	opts := quietOptions()
	opts.Logger = logger
	opts.Telemetry = m
	res, err := Run(context.Background(), smallBoostSpace(t), dataset.Synthetic(45, 500, 100, 7), opts)
	require.NoError(t, err)

	assert.True(t, logger.ContainsMessage("Search finished"))
	assert.True(t, logger.ContainsField(log.ModelNameKey, "xgboost"))
	assert.True(t, logger.ContainsField(log.HyperParamsKey, res.Best.String()))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.SearchTrials.WithLabelValues("xgboost")))
	assert.Equal(t, res.BestScore, testutil.ToFloat64(m.SearchBestScore))
}

func TestConfigString(t *testing.T) {
	c := Config{Family: RandomForest, Forest: forest.DefaultParams()}
	c.Forest.MaxFeatures = forest.Fraction(0.3)
	assert.Equal(t,
		"random_forest{max_depth=None min_samples_split=2 min_samples_leaf=1 max_features=0.3 n_estimators=100}",
		c.String())
}
