package forest

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/hdbvalue/dataset"
	"github.com/YuminosukeSato/hdbvalue/pkg/errors"
	"github.com/YuminosukeSato/hdbvalue/tree"
)

func TestParseMaxFeatures(t *testing.T) {
	for in, want := range map[string]MaxFeatures{
		"sqrt": {Rule: MaxFeaturesSqrt},
		"LOG2": {Rule: MaxFeaturesLog2},
		"all":  {Rule: MaxFeaturesAll},
		"none": {Rule: MaxFeaturesAll},
		"0.3":  Fraction(0.3),
		"1":    Fraction(1),
	} {
		got, err := ParseMaxFeatures(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"0", "1.5", "half", "-0.2"} {
		_, err := ParseMaxFeatures(in)
		var cfgErr *errors.ConfigurationError
		assert.True(t, errors.As(err, &cfgErr), in)
	}
}

func TestMaxFeaturesResolve(t *testing.T) {
	assert.Equal(t, 3, MaxFeatures{Rule: MaxFeaturesSqrt}.Resolve(13))
	assert.Equal(t, 3, MaxFeatures{Rule: MaxFeaturesLog2}.Resolve(13))
	assert.Equal(t, 3, Fraction(0.3).Resolve(13))
	assert.Equal(t, 6, Fraction(0.5).Resolve(13))
	assert.Equal(t, 1, Fraction(0.01).Resolve(13))
	assert.Equal(t, 13, MaxFeatures{}.Resolve(13))
	assert.Equal(t, "0.4", Fraction(0.4).String())
	assert.Equal(t, "sqrt", MaxFeatures{Rule: MaxFeaturesSqrt}.String())
}

func TestParamsValidate(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())

	for field, mutate := range map[string]func(*Params){
		"n_estimators":      func(p *Params) { p.NEstimators = 0 },
		"min_samples_split": func(p *Params) { p.MinSamplesSplit = 1 },
		"min_samples_leaf":  func(p *Params) { p.MinSamplesLeaf = 0 },
		"max_features":      func(p *Params) { p.MaxFeatures = Fraction(2) },
		"max_bin":           func(p *Params) { p.MaxBin = 300 },
	} {
		p := DefaultParams()
		mutate(&p)
		var cfgErr *errors.ConfigurationError
		require.True(t, errors.As(p.Validate(), &cfgErr), field)
		assert.Equal(t, field, cfgErr.Field)
	}
}

func TestTrainLearnsSignal(t *testing.T) {
	ds := dataset.Synthetic(300, 500, 0, 1)
	p := DefaultParams()
	p.NEstimators = 20

	ens, err := Train(context.Background(), ds, p)
	require.NoError(t, err)
	assert.Equal(t, tree.Mean, ens.Aggregation)
	assert.Equal(t, 0.0, ens.BaseScore)
	assert.Len(t, ens.Trees, 20)
	require.NoError(t, ens.Validate())

	preds, err := ens.PredictBatch(ds.Rows())
	require.NoError(t, err)
	var sse float64
	for i, y := range ds.Targets() {
		sse += (preds[i] - y) * (preds[i] - y)
	}
	rmse := math.Sqrt(sse / float64(ds.Len()))
	assert.Less(t, rmse, 0.25*ds.TargetStdDev())
}

func TestTrainIsDeterministic(t *testing.T) {
	ds := dataset.Synthetic(150, 500, 2000, 2)
	p := DefaultParams()
	p.NEstimators = 16
	p.MaxFeatures = MaxFeatures{Rule: MaxFeaturesSqrt}

	run := func() []float64 {
		ens, err := Train(context.Background(), ds, p)
		require.NoError(t, err)
		preds, err := ens.PredictBatch(ds.Rows())
		require.NoError(t, err)
		return preds
	}
	assert.Equal(t, run(), run())
}

func TestTrainConstantTarget(t *testing.T) {
	rows := make([][]float64, 10)
	ys := make([]float64, 10)
	for i := range rows {
		rows[i] = []float64{float64(i), float64(i % 3)}
		ys[i] = 7
	}
	ds, err := dataset.FromRows(rows, ys)
	require.NoError(t, err)

	p := DefaultParams()
	p.NEstimators = 5
	ens, err := Train(context.Background(), ds, p)
	require.NoError(t, err)
	for _, row := range rows {
		assert.InDelta(t, 7.0, ens.Predict(row), 1e-9)
	}
}

func TestTrainErrors(t *testing.T) {
	_, err := Train(context.Background(), nil, DefaultParams())
	var dataErr *errors.InsufficientDataError
	assert.True(t, errors.As(err, &dataErr))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Train(ctx, dataset.Synthetic(20, 500, 0, 3), DefaultParams())
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRegressor(t *testing.T) {
	p := DefaultParams()
	p.NEstimators = 10
	reg := NewRegressor(p)

	_, err := reg.PredictBatch([][]float64{{1}})
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	ds := dataset.Synthetic(80, 500, 100, 4)
	require.NoError(t, reg.Fit(context.Background(), ds.Rows(), ds.Targets()))
	preds, err := reg.PredictBatch(ds.Rows())
	require.NoError(t, err)
	assert.Len(t, preds, ds.Len())

	ens, err := reg.Ensemble()
	require.NoError(t, err)
	assert.Len(t, ens.Trees, 10)
}
