// Package conformal computes split conformal prediction margins.
//
// A margin q is a quantile of the absolute residuals of a trained model on
// a calibration set the model never saw. Symmetric intervals
// [point − q, point + q] then cover a fresh observation with probability
// at least 1 − α, marginally over inputs. The width is the same for every
// input.
package conformal

import (
	"math"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/hdbvalue/core/model"
	"github.com/YuminosukeSato/hdbvalue/dataset"
	"github.com/YuminosukeSato/hdbvalue/pkg/errors"
	"github.com/YuminosukeSato/hdbvalue/pkg/log"
	"github.com/YuminosukeSato/hdbvalue/pkg/telemetry"
)

// Method selects the quantile convention.
type Method string

const (
	// Conservative takes the ⌈(n+1)(1−α)⌉-th smallest residual, the
	// finite-sample split conformal rank.
	Conservative Method = "conservative"
	// Linear interpolates at position (n−1)(1−α), as numpy.quantile does
	// by default.
	Linear Method = "linear"
)

// ParseMethod resolves a method name; the empty string is Conservative.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return Conservative, nil
	case Conservative, Linear:
		return m, nil
	}
	return "", errors.NewConfigurationError("conformal", "quantile_method", "expected conservative or linear", s)
}

// Options control calibration.
type Options struct {
	Alpha  float64 `yaml:"alpha"` // target miscoverage
	Method Method  `yaml:"method"`

	Logger    log.Logger         `yaml:"-"`
	Telemetry *telemetry.Metrics `yaml:"-"`
}

// DefaultOptions returns α = 0.1 with the conservative rank.
func DefaultOptions() Options {
	return Options{Alpha: 0.1, Method: Conservative}
}

// Margin is the calibrated half-width of every prediction interval.
type Margin struct {
	Q      float64 `yaml:"q"`
	Alpha  float64 `yaml:"alpha"`
	N      int     `yaml:"n"`
	Method Method  `yaml:"method"`
}

// Interval returns [point − Q, point + Q].
func (m Margin) Interval(point float64) (lower, upper float64) {
	return point - m.Q, point + m.Q
}

// Coverage is the empirical behaviour of a margin on held-out data.
type Coverage struct {
	Fraction  float64 // share of targets inside their interval
	MeanWidth float64
	N         int
}

// Quantile returns the (1−α) quantile of residuals under method. residuals
// is not modified.
func Quantile(residuals []float64, alpha float64, method Method) (float64, error) {
	if !(alpha > 0 && alpha < 1) {
		return 0, errors.NewConfigurationError("conformal", "alpha", "miscoverage must be in (0, 1)", alpha)
	}
	n := len(residuals)
	if n == 0 {
		return 0, errors.NewInsufficientDataError("conformal.Quantile", 1, 0, "calibration set is empty")
	}
	sorted := append([]float64(nil), residuals...)
	sort.Float64s(sorted)

	switch method {
	case Conservative, "":
		k := int(math.Ceil(float64(n+1)*(1-alpha) - 1e-9))
		if k > n {
			return 0, errors.NewInsufficientDataError("conformal.Quantile", rankNeeded(alpha), n,
				"calibration set too small for a finite interval at this alpha")
		}
		if k < 1 {
			k = 1
		}
		return sorted[k-1], nil
	case Linear:
		h := float64(n-1) * (1 - alpha)
		lo := int(math.Floor(h))
		if lo >= n-1 {
			return sorted[n-1], nil
		}
		return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo]), nil
	}
	return 0, errors.NewConfigurationError("conformal", "quantile_method", "unknown method", string(method))
}

// rankNeeded is the smallest n with ⌈(n+1)(1−α)⌉ <= n.
func rankNeeded(alpha float64) int {
	return int(math.Ceil((1-alpha)/alpha - 1e-9))
}

// Residuals returns |p(x) − y| for every example of ds.
func Residuals(p model.Predictor, ds *dataset.Dataset) []float64 {
	rows, ys := ds.Rows(), ds.Targets()
	out := make([]float64, len(ys))
	for i, x := range rows {
		out[i] = math.Abs(p.Predict(x) - ys[i])
	}
	return out
}

// Calibrate computes the margin of p on the calibration set. A set with
// fewer than 1/α examples still calibrates when the rank exists, but
// raises a CalibrationWarning.
func Calibrate(p model.Predictor, calibration *dataset.Dataset, opts Options) (m Margin, err error) {
	defer errors.Recover(&err, "conformal.Calibrate")

	method := opts.Method
	if method == "" {
		method = Conservative
	}
	n := calibration.Len()
	residuals := Residuals(p, calibration)
	if err := errors.CheckNumericalStability("conformal.Calibrate", residuals, 0); err != nil {
		return Margin{}, err
	}
	q, err := Quantile(residuals, opts.Alpha, method)
	if err != nil {
		return Margin{}, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.GetLoggerWithName("conformal")
	}
	if float64(n) < 1/opts.Alpha {
		errors.Warn(errors.NewCalibrationWarning(n, opts.Alpha, "fewer than 1/alpha calibration examples, q is unstable"))
	}

	m = Margin{Q: q, Alpha: opts.Alpha, N: n, Method: method}
	opts.Telemetry.SetMargin(q, n)
	logger.Info("Calibration complete",
		log.OperationKey, log.OperationCalibrate,
		log.MarginKey, q,
		log.MiscoverageKey, opts.Alpha,
		log.QuantileKey, string(method),
		log.CalibRowsKey, n,
	)
	return m, nil
}

// Evaluate measures how often the intervals of p with margin m contain the
// targets of test.
func Evaluate(p model.Predictor, m Margin, test *dataset.Dataset) (Coverage, error) {
	n := test.Len()
	if n == 0 {
		return Coverage{}, errors.NewInsufficientDataError("conformal.Evaluate", 1, 0, "test set is empty")
	}
	start := time.Now()
	inside := make([]float64, n)
	widths := make([]float64, n)
	rows, ys := test.Rows(), test.Targets()
	for i, x := range rows {
		lo, hi := m.Interval(p.Predict(x))
		if ys[i] >= lo && ys[i] <= hi {
			inside[i] = 1
		}
		widths[i] = hi - lo
	}
	c := Coverage{Fraction: stat.Mean(inside, nil), MeanWidth: stat.Mean(widths, nil), N: n}
	log.GetLoggerWithName("conformal").Debug("Coverage evaluated",
		log.CoverageKey, c.Fraction,
		log.TestRowsKey, n,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return c, nil
}
