// Package predict serves point estimates with conformal intervals from a
// trained bundle.
package predict

import (
	"time"

	"github.com/YuminosukeSato/hdbvalue/bundle"
	"github.com/YuminosukeSato/hdbvalue/conformal"
	"github.com/YuminosukeSato/hdbvalue/features"
	"github.com/YuminosukeSato/hdbvalue/pkg/errors"
	"github.com/YuminosukeSato/hdbvalue/pkg/log"
	"github.com/YuminosukeSato/hdbvalue/pkg/telemetry"
	"github.com/YuminosukeSato/hdbvalue/tree"
)

// Failure reasons recorded by telemetry.
const (
	ReasonFeatureShape   = "feature_shape"
	ReasonInvalidListing = "invalid_listing"
)

// Result is a point estimate and its interval [Point − q, Point + q].
// Bounds are not clamped, so Lower may be negative.
type Result struct {
	Point float64 `json:"point" yaml:"point"`
	Lower float64 `json:"lower" yaml:"lower"`
	Upper float64 `json:"upper" yaml:"upper"`
}

// Service predicts from one bundle. It holds no mutable state and is safe
// for concurrent use.
type Service struct {
	ensemble *tree.Ensemble
	margin   conformal.Margin
	bundleID string

	logger  log.Logger
	metrics *telemetry.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithTelemetry attaches Prometheus metrics.
func WithTelemetry(m *telemetry.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService validates b and creates a Service for it.
func NewService(b *bundle.Bundle, opts ...Option) (*Service, error) {
	if b == nil {
		return nil, errors.NewValidationError("bundle", "bundle is required", nil)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	s := &Service{
		ensemble: b.Ensemble,
		margin:   b.Margin,
		bundleID: b.ID.String(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.GetLoggerWithName("predict")
	}
	s.logger = s.logger.With(log.BundleIDKey, s.bundleID, log.OperationKey, log.OperationPredict)
	return s, nil
}

// Margin returns the calibrated margin.
func (s *Service) Margin() conformal.Margin { return s.margin }

// BundleID returns the ID of the served bundle.
func (s *Service) BundleID() string { return s.bundleID }

// Predict validates v against the feature layout and returns the estimate.
// Rows of the wrong length or with an invalid flat type block are a
// FeatureShapeError.
func (s *Service) Predict(v []float64) (Result, error) {
	start := time.Now()
	if err := features.Validate(v); err != nil {
		s.reject(ReasonFeatureShape, err)
		return Result{}, err
	}
	r := s.predict(v)
	s.metrics.ObservePrediction(start)
	return r, nil
}

// PredictBatch validates every row before predicting any of them.
func (s *Service) PredictBatch(rows [][]float64) ([]Result, error) {
	start := time.Now()
	for i, v := range rows {
		if err := features.Validate(v); err != nil {
			s.reject(ReasonFeatureShape, err)
			return nil, errors.Wrapf(err, "row %d", i)
		}
	}
	points, err := s.ensemble.PredictBatch(rows)
	if err != nil {
		return nil, err
	}
	out := make([]Result, len(points))
	for i, p := range points {
		out[i] = s.interval(p)
	}
	s.logger.Debug("Batch predicted", log.PredsKey, len(out))
	s.metrics.ObservePrediction(start)
	return out, nil
}

// PredictListing checks the listing's own constraints, then predicts it.
func (s *Service) PredictListing(l features.Listing) (Result, error) {
	return s.PredictFor(l, features.Block{})
}

// PredictFor checks the listing against its block (top floor, offered flat
// types), then predicts it.
func (s *Service) PredictFor(l features.Listing, b features.Block) (Result, error) {
	if err := l.ValidateFor(b); err != nil {
		s.reject(ReasonInvalidListing, err)
		return Result{}, err
	}
	return s.Predict(l.Vector())
}

func (s *Service) predict(v []float64) Result {
	return s.interval(s.ensemble.Predict(v))
}

func (s *Service) interval(point float64) Result {
	lo, hi := s.margin.Interval(point)
	return Result{Point: point, Lower: lo, Upper: hi}
}

func (s *Service) reject(reason string, err error) {
	s.metrics.ObserveFailure(reason)
	s.logger.Debug("Prediction rejected", log.ErrorCodeKey, reason, log.ErrAttrKey, err)
}
