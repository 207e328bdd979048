package boost

import (
	"math"

	"github.com/YuminosukeSato/hdbvalue/pkg/errors"
)

// Objective supplies per-example first and second derivatives of the loss
// with respect to the prediction.
type Objective interface {
	// Gradient returns dL/dpred.
	Gradient(pred, target float64) float64

	// Hessian returns d²L/dpred².
	Hessian(pred, target float64) float64

	// Loss returns the per-example loss.
	Loss(pred, target float64) float64

	// InitScore returns the constant prediction boosting starts from.
	InitScore(targets []float64) float64

	// Name identifies the objective in logs and bundles.
	Name() string
}

// Objective names.
const (
	SquaredErrorName = "reg:squarederror"
	AsymmetricName   = "reg:asymmetric"
)

// DefaultAsymmetry is the underestimation penalty multiplier.
const DefaultAsymmetry = 3.0

// SquaredError is ½(pred−target)², the objective used while searching.
type SquaredError struct{}

func (SquaredError) Gradient(pred, target float64) float64 { return pred - target }
func (SquaredError) Hessian(_, _ float64) float64          { return 1 }

func (SquaredError) Loss(pred, target float64) float64 {
	r := pred - target
	return 0.5 * r * r
}

// InitScore returns the mean target.
func (SquaredError) InitScore(targets []float64) float64 {
	if len(targets) == 0 {
		return 0
	}
	var sum float64
	for _, t := range targets {
		sum += t
	}
	return sum / float64(len(targets))
}

func (SquaredError) Name() string { return SquaredErrorName }

// Asymmetric penalises underestimation Alpha times more than
// overestimation. With r = pred − target:
//
//	r >= 0: grad = r,   hess = 1,     loss = ½r²
//	r <  0: grad = α·r, hess = α,     loss = ½αr²
//
// Alpha = 1 reduces to SquaredError.
type Asymmetric struct {
	Alpha float64
}

// NewAsymmetric validates alpha and returns the objective. Alpha below 1
// would reward underestimation and is rejected.
func NewAsymmetric(alpha float64) (*Asymmetric, error) {
	if math.IsNaN(alpha) || math.IsInf(alpha, 0) || alpha < 1 {
		return nil, errors.NewConfigurationError("boost.Asymmetric", "alpha",
			"asymmetry factor must be a finite value >= 1", alpha)
	}
	return &Asymmetric{Alpha: alpha}, nil
}

func (o *Asymmetric) Gradient(pred, target float64) float64 {
	r := pred - target
	if r < 0 {
		return o.Alpha * r
	}
	return r
}

func (o *Asymmetric) Hessian(pred, target float64) float64 {
	if pred-target < 0 {
		return o.Alpha
	}
	return 1
}

func (o *Asymmetric) Loss(pred, target float64) float64 {
	r := pred - target
	if r < 0 {
		return 0.5 * o.Alpha * r * r
	}
	return 0.5 * r * r
}

// InitScore returns the constant minimising the total loss. The loss is a
// convex piecewise quadratic, so Newton steps from the mean reach the
// minimum in a handful of iterations.
func (o *Asymmetric) InitScore(targets []float64) float64 {
	c := SquaredError{}.InitScore(targets)
	for iter := 0; iter < 50; iter++ {
		var g, h float64
		for _, t := range targets {
			g += o.Gradient(c, t)
			h += o.Hessian(c, t)
		}
		if h == 0 {
			break
		}
		step := g / h
		c -= step
		if math.Abs(step) <= 1e-12*math.Max(1, math.Abs(c)) {
			break
		}
	}
	return c
}

func (o *Asymmetric) Name() string { return AsymmetricName }

// ObjectiveByName resolves a stored objective name. alpha is only used by
// the asymmetric objective.
func ObjectiveByName(name string, alpha float64) (Objective, error) {
	switch name {
	case SquaredErrorName:
		return SquaredError{}, nil
	case AsymmetricName:
		return NewAsymmetric(alpha)
	default:
		return nil, errors.NewConfigurationError("boost", "objective", "unknown objective", name)
	}
}
