package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/hdbvalue/bundle"
	"github.com/YuminosukeSato/hdbvalue/config"
	"github.com/YuminosukeSato/hdbvalue/dataset"
	"github.com/YuminosukeSato/hdbvalue/pkg/errors"
	"github.com/YuminosukeSato/hdbvalue/pkg/log"
	"github.com/YuminosukeSato/hdbvalue/predict"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out, logs bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&logs)
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func restoreLogging(t *testing.T) {
	previous := log.GetLogger()
	t.Cleanup(func() {
		log.SetLogger(previous)
		errors.SetZerologWarnFunc(nil)
	})
}

func joinValues(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

func TestTrainPredictInspect(t *testing.T) {
	restoreLogging(t)
	t.Setenv("HDBVALUE_N_ITER", "2")
	t.Setenv("HDBVALUE_CV", "2")
	t.Setenv("HDBVALUE_LOG_FORMAT", "zerolog")

	tmp := t.TempDir()
	dir := filepath.Join(tmp, "bundle")
	plots := filepath.Join(tmp, "plots")
	metricsFile := filepath.Join(tmp, "hdbvalue.prom")

	out, err := execute(t, "train", "--demo", "150", "--out", dir, "--plots", plots,
		"--metrics-file", metricsFile, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "margin q:")

	for _, name := range []string{bundle.ModelFile, bundle.ManifestFile} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
	for _, name := range []string{residualPlot, curvePlot} {
		raw, err := os.ReadFile(filepath.Join(plots, name))
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(raw, []byte("\x89PNG")), name)
	}
	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `hdbvalue_training_runs_total{outcome="success"} 1`)

	m, err := bundle.ReadManifest(dir)
	require.NoError(t, err)
	row := dataset.Synthetic(1, 500, 2000, 9).At(0).Features

	t.Run("predict text", func(t *testing.T) {
		out, err := execute(t, "predict", "--bundle", dir, "--values", joinValues(row))
		require.NoError(t, err)
		assert.Contains(t, out, "predicted price:")
		assert.Contains(t, out, "at 90% coverage")
	})

	t.Run("predict json", func(t *testing.T) {
		out, err := execute(t, "predict", "--bundle", dir, "--values", joinValues(row), "--json")
		require.NoError(t, err)
		var res predict.Result
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		assert.InDelta(t, 2*m.Q, res.Upper-res.Lower, 1e-6)
	})

	t.Run("predict rejects short vectors", func(t *testing.T) {
		_, err := execute(t, "predict", "--bundle", dir, "--values", joinValues(row[:12]))
		var shapeErr *errors.FeatureShapeError
		assert.True(t, errors.As(err, &shapeErr))
	})

	t.Run("predict rejects non-numbers", func(t *testing.T) {
		_, err := execute(t, "predict", "--bundle", dir, "--values", "1,two,3")
		var valErr *errors.ValidationError
		assert.True(t, errors.As(err, &valErr))
	})

	t.Run("inspect", func(t *testing.T) {
		for _, args := range [][]string{{"inspect", "--bundle", dir}, {"inspect", "--bundle", dir, "--verify"}} {
			out, err := execute(t, args...)
			require.NoError(t, err)
			var got bundle.Manifest
			require.NoError(t, yaml.Unmarshal([]byte(out), &got))
			assert.Equal(t, m.ID, got.ID)
			assert.Equal(t, m.Q, got.Q)
		}
	})
}

func TestTrainFromCSV(t *testing.T) {
	restoreLogging(t)
	t.Setenv("HDBVALUE_FAMILY", "random_forest")
	t.Setenv("HDBVALUE_N_ITER", "1")
	t.Setenv("HDBVALUE_CV", "2")
	t.Setenv("HDBVALUE_LOG_LEVEL", "error")

	tmp := t.TempDir()
	data := filepath.Join(tmp, "train.csv")
	f, err := os.Create(data)
	require.NoError(t, err)
	require.NoError(t, dataset.WriteCSV(f, dataset.Synthetic(120, 500, 1000, 4)))
	require.NoError(t, f.Close())

	dir := filepath.Join(tmp, "bundle")
	out, err := execute(t, "train", "--data", data, "--out", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "random_forest{")

	m, err := bundle.ReadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, "random_forest", string(m.Family))
}

func TestTrainRequiresInput(t *testing.T) {
	restoreLogging(t)
	t.Setenv("HDBVALUE_LOG_LEVEL", "error")

	_, err := execute(t, "train", "--out", t.TempDir())
	assert.ErrorContains(t, err, "--data or --demo")

	_, err = execute(t, "train")
	assert.ErrorContains(t, err, "out")
}

func TestLoadEnv(t *testing.T) {
	assert.NoError(t, loadEnv(""))
	assert.NoError(t, loadEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("HDBVALUE_TEST_LOAD_ENV=loaded\n"), 0o600))
	t.Setenv("HDBVALUE_TEST_LOAD_ENV", "")
	require.NoError(t, os.Unsetenv("HDBVALUE_TEST_LOAD_ENV"))
	require.NoError(t, loadEnv(path))
	assert.Equal(t, "loaded", os.Getenv("HDBVALUE_TEST_LOAD_ENV"))
}

func TestSetupLogging(t *testing.T) {
	restoreLogging(t)

	for _, format := range []string{"json", "zerolog", "console"} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			cfg := config.New()
			cfg.LogFormat = format
			setupLogging(cfg, &buf).Info("Bundle saved", log.BundleIDKey, "b-1")
			assert.Contains(t, buf.String(), "Bundle saved")
			assert.Contains(t, buf.String(), "b-1")
		})
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "hdbvalue version "+Version+"\n", out)
}
