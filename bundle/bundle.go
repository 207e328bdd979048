// Package bundle persists a trained ensemble together with its calibrated
// margin. The two are only ever saved and loaded as one artifact.
package bundle

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/hdbvalue/conformal"
	"github.com/YuminosukeSato/hdbvalue/core/model"
	"github.com/YuminosukeSato/hdbvalue/features"
	"github.com/YuminosukeSato/hdbvalue/pkg/errors"
	"github.com/YuminosukeSato/hdbvalue/search"
	"github.com/YuminosukeSato/hdbvalue/tree"
)

// FormatVersion is the bundle encoding version written by this package.
const FormatVersion = 1

// File names inside a bundle directory.
const (
	ModelFile    = "model.gob"
	ManifestFile = "manifest.yaml"
)

// Bundle is a trained model ready to serve.
type Bundle struct {
	FormatVersion int
	ID            uuid.UUID
	CreatedAt     time.Time

	Family search.Family
	Layout []string
	Config search.Config

	// Objective is the loss the final ensemble was trained under.
	Objective      string
	AsymmetryAlpha float64

	Ensemble  *tree.Ensemble
	BestRound int
	Margin    conformal.Margin

	// SearchScore is the best cross-validated score; ValidationScore the
	// RMSE of the final ensemble on the held-out test split.
	SearchScore     float64
	ValidationScore float64
}

// New creates a bundle with a fresh ID and the current feature layout.
func New(cfg search.Config, ens *tree.Ensemble, margin conformal.Margin) *Bundle {
	return &Bundle{
		FormatVersion: FormatVersion,
		ID:            uuid.New(),
		CreatedAt:     time.Now().UTC(),
		Family:        cfg.Family,
		Layout:        features.Names(),
		Config:        cfg,
		Ensemble:      ens,
		BestRound:     ens.Len() - 1,
		Margin:        margin,
	}
}

// Validate checks that the bundle can serve predictions under the current
// feature layout.
func (b *Bundle) Validate() error {
	if b.FormatVersion != FormatVersion {
		return errors.NewValidationError("format_version",
			fmt.Sprintf("unsupported bundle version, this build reads version %d", FormatVersion), b.FormatVersion)
	}
	if err := features.CheckLayout(b.Layout); err != nil {
		return err
	}
	if b.Ensemble == nil {
		return errors.NewValidationError("ensemble", "bundle has no ensemble", nil)
	}
	if err := b.Ensemble.Validate(); err != nil {
		return err
	}
	if b.Ensemble.NumFeatures != features.Len {
		return errors.NewFeatureShapeError("load", features.Len, b.Ensemble.NumFeatures)
	}
	if q := b.Margin.Q; q < 0 || math.IsNaN(q) || math.IsInf(q, 0) {
		return errors.NewValidationError("margin.q", "margin must be a finite value >= 0", q)
	}
	return nil
}

// Write gob-encodes the bundle.
func (b *Bundle) Write(w io.Writer) error {
	return model.SaveModelToWriter(b, w)
}

// Read decodes and validates a bundle written by Write.
func Read(r io.Reader) (*Bundle, error) {
	b := &Bundle{}
	if err := model.LoadModelFromReader(b, r); err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Manifest is the human-readable YAML sidecar of a bundle directory.
type Manifest struct {
	ID              string        `yaml:"id"`
	FormatVersion   int           `yaml:"format_version"`
	CreatedAt       time.Time     `yaml:"created_at"`
	Family          search.Family `yaml:"family"`
	Objective       string        `yaml:"objective"`
	AsymmetryAlpha  float64       `yaml:"asymmetry_alpha,omitempty"`
	Q               float64       `yaml:"q"`
	Alpha           float64       `yaml:"miscoverage_alpha"`
	QuantileMethod  string        `yaml:"quantile_method"`
	CalibrationSize int           `yaml:"calibration_size"`
	Trees           int           `yaml:"trees"`
	BestRound       int           `yaml:"best_round"`
	SearchScore     float64       `yaml:"search_score"`
	ValidationScore float64       `yaml:"validation_rmse"`
	Hyperparameters search.Config `yaml:"hyperparameters"`
	Layout          []string      `yaml:"layout"`
}

// Manifest summarises the bundle.
func (b *Bundle) Manifest() Manifest {
	return Manifest{
		ID:              b.ID.String(),
		FormatVersion:   b.FormatVersion,
		CreatedAt:       b.CreatedAt,
		Family:          b.Family,
		Objective:       b.Objective,
		AsymmetryAlpha:  b.AsymmetryAlpha,
		Q:               b.Margin.Q,
		Alpha:           b.Margin.Alpha,
		QuantileMethod:  string(b.Margin.Method),
		CalibrationSize: b.Margin.N,
		Trees:           b.Ensemble.Len(),
		BestRound:       b.BestRound,
		SearchScore:     b.SearchScore,
		ValidationScore: b.ValidationScore,
		Hyperparameters: b.Config,
		Layout:          b.Layout,
	}
}

// SaveDir writes ModelFile and ManifestFile into dir, creating it if
// needed.
func (b *Bundle) SaveDir(dir string) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "bundle: create %s", dir)
	}
	if err := model.SaveModel(b, filepath.Join(dir, ModelFile)); err != nil {
		return err
	}
	data, err := yaml.Marshal(b.Manifest())
	if err != nil {
		return errors.Wrap(err, "bundle: encode manifest")
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), data, 0o644); err != nil {
		return errors.Wrap(err, "bundle: write manifest")
	}
	return nil
}

// ReadManifest reads the YAML sidecar of a bundle directory.
func ReadManifest(dir string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return m, errors.Wrap(err, "bundle: read manifest")
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, errors.Wrap(err, "bundle: decode manifest")
	}
	return m, nil
}

// LoadDir reads a bundle directory written by SaveDir. The manifest must
// name the same bundle as the model file.
func LoadDir(dir string) (*Bundle, error) {
	b := &Bundle{}
	if err := model.LoadModel(b, filepath.Join(dir, ModelFile)); err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	if m.ID != b.ID.String() {
		return nil, errors.NewValidationError("manifest.id", "manifest belongs to a different bundle", m.ID)
	}
	if m.FormatVersion != b.FormatVersion {
		return nil, errors.NewValidationError("manifest.format_version", "manifest and model disagree", m.FormatVersion)
	}
	return b, nil
}
