package tree

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/hdbvalue/pkg/errors"
)

// squaredErrorGradients returns the gradients of ½(p-y)² at p = 0.
func squaredErrorGradients(y []float64) (grad, hess []float64) {
	grad = make([]float64, len(y))
	hess = make([]float64, len(y))
	for i, v := range y {
		grad[i] = -v
		hess[i] = 1
	}
	return grad, hess
}

func allRows(n int) []int {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return rows
}

// stepData has one informative feature (x0 < 5 → 10, else 20) and one
// constant feature.
func stepData() ([][]float64, []float64) {
	var X [][]float64
	var y []float64
	for i := 0; i < 10; i++ {
		X = append(X, []float64{float64(i), 7})
		if i < 5 {
			y = append(y, 10)
		} else {
			y = append(y, 20)
		}
	}
	return X, y
}

func TestBinMapper(t *testing.T) {
	rows := [][]float64{{1, 5}, {2, 5}, {3, 5}, {2, 5}}
	m, err := NewBinMapper(rows, 255)
	require.NoError(t, err)

	assert.Equal(t, []float64{1.5, 2.5}, m.Thresholds[0])
	assert.Empty(t, m.Thresholds[1], "constant features have no thresholds")
	assert.Equal(t, 3, m.NumBins(0))
	assert.Equal(t, uint8(0), m.Bin(0, 1))
	assert.Equal(t, uint8(1), m.Bin(0, 2))
	assert.Equal(t, uint8(2), m.Bin(0, 3))
	assert.Equal(t, uint8(2), m.Bin(0, 100))

	binned := m.Transform(rows)
	assert.Equal(t, []uint8{0, 1, 2, 1}, binned.Cols[0])
	assert.Equal(t, 4, binned.Rows)
}

func TestBinMapperQuantiles(t *testing.T) {
	rows := make([][]float64, 1000)
	for i := range rows {
		rows[i] = []float64{float64(i)}
	}
	m, err := NewBinMapper(rows, 16)
	require.NoError(t, err)
	assert.Equal(t, 16, m.NumBins(0))

	counts := make([]int, 16)
	for _, row := range rows {
		counts[m.Bin(0, row[0])]++
	}
	for _, c := range counts {
		assert.InDelta(t, 1000/16, c, 2)
	}
}

func TestBinMapperErrors(t *testing.T) {
	var cfg *errors.ConfigurationError
	_, err := NewBinMapper([][]float64{{1}}, 1)
	assert.True(t, errors.As(err, &cfg))
	_, err = NewBinMapper([][]float64{{1}}, 300)
	assert.True(t, errors.As(err, &cfg))

	var insufficient *errors.InsufficientDataError
	_, err = NewBinMapper(nil, 255)
	assert.True(t, errors.As(err, &insufficient))

	var dim *errors.DimensionError
	_, err = NewBinMapper([][]float64{{1, 2}, {1}}, 255)
	assert.True(t, errors.As(err, &dim))
}

func TestBuilderFindsStep(t *testing.T) {
	X, y := stepData()
	data, err := NewBinned(X, 255)
	require.NoError(t, err)
	grad, hess := squaredErrorGradients(y)

	tr := NewBuilder(data, Params{}, nil).Build(allRows(len(y)), grad, hess, nil)
	require.Len(t, tr.Nodes, 3)
	root := tr.Nodes[0]
	assert.Equal(t, 0, root.Feature)
	assert.Equal(t, 4.5, root.Threshold)
	assert.Greater(t, root.Gain, 0.0)
	assert.Equal(t, 1, tr.Depth())
	assert.Equal(t, 2, tr.NumLeaves())

	for i, x := range X {
		assert.InDelta(t, y[i], tr.Predict(x), 1e-12)
	}
}

func TestBuilderRegularisation(t *testing.T) {
	X, y := stepData()
	data, err := NewBinned(X, 255)
	require.NoError(t, err)
	grad, hess := squaredErrorGradients(y)
	rows := allRows(len(y))

	t.Run("lambda shrinks leaves", func(t *testing.T) {
		tr := NewBuilder(data, Params{Lambda: 5, Gamma: 1e9}, nil).Build(rows, grad, hess, nil)
		// single leaf: G = -150, H = 10 → 150/(10+5)
		require.Len(t, tr.Nodes, 1)
		assert.InDelta(t, 10.0, tr.Predict([]float64{0, 7}), 1e-12)
	})

	t.Run("alpha soft-thresholds", func(t *testing.T) {
		tr := NewBuilder(data, Params{Alpha: 10, Gamma: 1e9}, nil).Build(rows, grad, hess, nil)
		// single leaf: T(-150) = -140, H = 10 → 14
		require.Len(t, tr.Nodes, 1)
		assert.InDelta(t, 14.0, tr.Predict([]float64{0, 7}), 1e-12)
	})

	t.Run("shrinkage scales leaves", func(t *testing.T) {
		tr := NewBuilder(data, Params{Shrinkage: 0.1}, nil).Build(rows, grad, hess, nil)
		assert.InDelta(t, 2.0, tr.Predict([]float64{9, 7}), 1e-12)
	})

	t.Run("gamma prunes", func(t *testing.T) {
		tr := NewBuilder(data, Params{Gamma: 1e6}, nil).Build(rows, grad, hess, nil)
		require.Len(t, tr.Nodes, 1)
		assert.InDelta(t, 15.0, tr.Predict([]float64{0, 7}), 1e-12)
	})

	t.Run("min samples leaf", func(t *testing.T) {
		tr := NewBuilder(data, Params{MinSamplesLeaf: 6}, nil).Build(rows, grad, hess, nil)
		assert.Len(t, tr.Nodes, 1)
	})

	t.Run("min child weight", func(t *testing.T) {
		tr := NewBuilder(data, Params{MinChildWeight: 6}, nil).Build(rows, grad, hess, nil)
		assert.Len(t, tr.Nodes, 1)
	})
}

func TestBuilderDepthLimit(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	X := make([][]float64, 200)
	y := make([]float64, 200)
	for i := range X {
		X[i] = []float64{r.Float64(), r.Float64(), r.Float64()}
		y[i] = r.NormFloat64()
	}
	data, err := NewBinned(X, 64)
	require.NoError(t, err)
	grad, hess := squaredErrorGradients(y)

	for _, depth := range []int{1, 3, 5} {
		tr := NewBuilder(data, Params{MaxDepth: depth}, nil).Build(allRows(200), grad, hess, nil)
		assert.LessOrEqual(t, tr.Depth(), depth)
		assert.True(t, tr.valid(3))
	}

	unlimited := NewBuilder(data, Params{}, nil).Build(allRows(200), grad, hess, nil)
	assert.Greater(t, unlimited.Depth(), 5)
}

func TestBuilderFeatureSampling(t *testing.T) {
	X, y := stepData()
	data, err := NewBinned(X, 255)
	require.NoError(t, err)
	grad, hess := squaredErrorGradients(y)

	t.Run("restricted candidates", func(t *testing.T) {
		tr := NewBuilder(data, Params{}, nil).Build(allRows(10), grad, hess, []int{1})
		assert.Len(t, tr.Nodes, 1, "the constant feature cannot split")
	})

	t.Run("seeded sampling is deterministic", func(t *testing.T) {
		build := func() Tree {
			rng := rand.New(rand.NewPCG(42, 42))
			return NewBuilder(data, Params{FeaturesPerSplit: 1}, rng).Build(allRows(10), grad, hess, nil)
		}
		assert.Equal(t, build(), build())
	})
}

func TestBuilderRepeatedRows(t *testing.T) {
	X, y := stepData()
	data, err := NewBinned(X, 255)
	require.NoError(t, err)
	grad, hess := squaredErrorGradients(y)

	// Bootstrap-style sample with repeats of the first and last rows only.
	tr := NewBuilder(data, Params{}, nil).Build([]int{0, 0, 9, 9, 9}, grad, hess, nil)
	assert.InDelta(t, 10.0, tr.Predict(X[0]), 1e-12)
	assert.InDelta(t, 20.0, tr.Predict(X[9]), 1e-12)

	empty := NewBuilder(data, Params{}, nil).Build(nil, grad, hess, nil)
	assert.Equal(t, 0.0, empty.Predict(X[0]))
}

func TestEnsemble(t *testing.T) {
	leaf := func(v float64) Tree { return Tree{Nodes: []Node{{Left: -1, Right: -1, Value: v}}} }

	sum := &Ensemble{Trees: []Tree{leaf(1), leaf(2), leaf(3)}, BaseScore: 10, Aggregation: Sum, NumFeatures: 2}
	assert.Equal(t, 16.0, sum.Predict([]float64{0, 0}))

	mean := &Ensemble{Trees: []Tree{leaf(1), leaf(2), leaf(3)}, Aggregation: Mean, NumFeatures: 2}
	assert.Equal(t, 2.0, mean.Predict([]float64{0, 0}))

	truncated := sum.Truncate(1)
	assert.Equal(t, 1, truncated.Len())
	assert.Equal(t, 11.0, truncated.Predict([]float64{0, 0}))
	assert.Equal(t, 3, sum.Len(), "truncate must not modify the receiver")
	assert.Equal(t, 3, sum.Truncate(10).Len())
	assert.Equal(t, 10.0, sum.Truncate(-1).Predict([]float64{0, 0}))

	out, err := sum.PredictMatrix(mat.NewDense(2, 2, nil))
	require.NoError(t, err)
	assert.Equal(t, []float64{16, 16}, out.RawVector().Data)

	var dim *errors.DimensionError
	_, err = sum.PredictMatrix(mat.NewDense(2, 3, nil))
	assert.True(t, errors.As(err, &dim))
	_, err = sum.PredictBatch([][]float64{{0, 0}, {0}})
	assert.True(t, errors.As(err, &dim))
}

func TestEnsemblePredictBatchLarge(t *testing.T) {
	X, y := stepData()
	data, err := NewBinned(X, 255)
	require.NoError(t, err)
	grad, hess := squaredErrorGradients(y)
	tr := NewBuilder(data, Params{}, nil).Build(allRows(10), grad, hess, nil)
	e := &Ensemble{Trees: []Tree{tr}, Aggregation: Sum, NumFeatures: 2}

	rows := make([][]float64, 5000)
	for i := range rows {
		rows[i] = []float64{float64(i % 10), 7}
	}
	out, err := e.PredictBatch(rows)
	require.NoError(t, err)
	for i, v := range out {
		assert.Equal(t, y[i%10], v)
	}
}

func TestEnsembleValidate(t *testing.T) {
	good := &Ensemble{
		Trees: []Tree{{Nodes: []Node{
			{Feature: 0, Threshold: 1, Left: 1, Right: 2},
			{Left: -1, Right: -1, Value: 1},
			{Left: -1, Right: -1, Value: 2},
		}}},
		NumFeatures: 1,
	}
	assert.NoError(t, good.Validate())

	cyclic := &Ensemble{Trees: []Tree{{Nodes: []Node{{Feature: 0, Left: 0, Right: 0}}}}, NumFeatures: 1}
	assert.Error(t, cyclic.Validate())

	badFeature := &Ensemble{Trees: []Tree{{Nodes: []Node{
		{Feature: 3, Left: 1, Right: 2}, {Left: -1, Right: -1}, {Left: -1, Right: -1},
	}}}, NumFeatures: 1}
	assert.Error(t, badFeature.Validate())

	assert.Error(t, (&Ensemble{}).Validate())
	assert.Error(t, (&Ensemble{NumFeatures: 1, Aggregation: Aggregation(9)}).Validate())
	assert.Equal(t, "mean", Mean.String())
}
