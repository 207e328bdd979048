package diagnostics

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/hdbvalue/pkg/errors"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func TestResidualHistogram(t *testing.T) {
	residuals := make([]float64, 200)
	for i := range residuals {
		residuals[i] = float64(i%40) * 250
	}

	var buf bytes.Buffer
	require.NoError(t, ResidualHistogram(residuals, 8000, &buf))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic))
}

func TestResidualHistogramFewPoints(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ResidualHistogram([]float64{100, 200, 300}, 250, &buf))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic))
}

func TestResidualHistogramErrors(t *testing.T) {
	var buf bytes.Buffer

	err := ResidualHistogram(nil, 1, &buf)
	var dataErr *errors.InsufficientDataError
	assert.True(t, errors.As(err, &dataErr))

	err = ResidualHistogram([]float64{1, 2}, math.NaN(), &buf)
	var valErr *errors.ValidationError
	assert.True(t, errors.As(err, &valErr))
	assert.Zero(t, buf.Len())
}

func TestLearningCurve(t *testing.T) {
	history := []float64{5000, 4200, 3900, 3850, 3870, 3900}

	var buf bytes.Buffer
	require.NoError(t, LearningCurve(history, 3, &buf))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic))
}

func TestLearningCurveErrors(t *testing.T) {
	var buf bytes.Buffer

	err := LearningCurve(nil, 0, &buf)
	var dataErr *errors.InsufficientDataError
	assert.True(t, errors.As(err, &dataErr))

	for _, round := range []int{-1, 3} {
		err = LearningCurve([]float64{3, 2, 1}, round, &buf)
		var valErr *errors.ValidationError
		assert.True(t, errors.As(err, &valErr), "round %d", round)
	}
}
