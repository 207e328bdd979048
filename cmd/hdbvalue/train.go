package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/hdbvalue/dataset"
	"github.com/YuminosukeSato/hdbvalue/diagnostics"
	"github.com/YuminosukeSato/hdbvalue/pipeline"
	"github.com/YuminosukeSato/hdbvalue/pkg/errors"
	"github.com/YuminosukeSato/hdbvalue/pkg/log"
	"github.com/YuminosukeSato/hdbvalue/pkg/telemetry"
)

const (
	residualPlot = "residuals.png"
	curvePlot    = "learning_curve.png"
)

type trainFlags struct {
	data        string
	demo        int
	out         string
	plots       string
	metricsFile string
}

func trainCmd(g *globals) *cobra.Command {
	var f trainFlags

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Search, retrain and calibrate a model bundle",
		Example: `  hdbvalue train --data hdb_amenities_dist.csv --out bundle/
  hdbvalue train --demo 1000 --out bundle/ --plots plots/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrain(cmd, g, f)
		},
	}

	cmd.Flags().StringVar(&f.data, "data", "", "training CSV with the feature columns and "+dataset.TargetColumn)
	cmd.Flags().IntVar(&f.demo, "demo", 0, "train on this many synthetic examples instead of --data")
	cmd.Flags().StringVar(&f.out, "out", "", "bundle output directory")
	cmd.Flags().StringVar(&f.plots, "plots", "", "directory for diagnostic PNG plots")
	cmd.Flags().StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics in text format to this file")
	_ = cmd.MarkFlagRequired("out")
	cmd.MarkFlagsMutuallyExclusive("data", "demo")
	return cmd
}

func runTrain(cmd *cobra.Command, g *globals, f trainFlags) error {
	ctx := cmd.Context()
	cfg, err := g.loadConfig(ctx)
	if err != nil {
		return err
	}
	logger := setupLogging(cfg, cmd.ErrOrStderr()).With(log.ComponentKey, "cli")

	var ds *dataset.Dataset
	switch {
	case f.data != "":
		if ds, err = dataset.ReadCSVFile(f.data); err != nil {
			return err
		}
	case f.demo > 0:
		ds = dataset.Synthetic(f.demo, 500, 2000, cfg.Seed)
	default:
		return errors.New("one of --data or --demo is required")
	}
	logger.Info("Dataset loaded", log.SamplesKey, ds.Len(), log.FeaturesKey, ds.NumFeatures())

	reg := prometheus.NewRegistry()
	rep, err := pipeline.Run(ctx, cfg, ds,
		pipeline.WithLogger(logger),
		pipeline.WithTelemetry(telemetry.NewWithRegistry(reg)),
	)
	if err != nil {
		return err
	}
	b := rep.Bundle
	if err := b.SaveDir(f.out); err != nil {
		return err
	}
	logger.Info("Bundle saved", log.BundleIDKey, b.ID.String(), "path", f.out)

	if f.plots != "" {
		if err := writePlots(f.plots, rep); err != nil {
			return err
		}
	}
	if f.metricsFile != "" {
		if err := prometheus.WriteToTextfile(f.metricsFile, reg); err != nil {
			return errors.Wrap(err, "write metrics")
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "bundle:          %s\n", b.ID)
	fmt.Fprintf(out, "model:           %s\n", b.Config)
	fmt.Fprintf(out, "margin q:        %.2f (alpha %.2f, n=%d)\n", b.Margin.Q, b.Margin.Alpha, b.Margin.N)
	fmt.Fprintf(out, "validation rmse: %.2f\n", b.ValidationScore)
	fmt.Fprintf(out, "test coverage:   %.3f\n", rep.Coverage.Fraction)
	return nil
}

func writePlots(dir string, rep *pipeline.Report) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create plot directory")
	}
	if err := writeFile(filepath.Join(dir, residualPlot), func(f *os.File) error {
		return diagnostics.ResidualHistogram(rep.Residuals, rep.Bundle.Margin.Q, f)
	}); err != nil {
		return err
	}
	if rep.Training == nil {
		return nil
	}
	return writeFile(filepath.Join(dir, curvePlot), func(f *os.File) error {
		return diagnostics.LearningCurve(rep.Training.History, rep.Training.BestRound, f)
	})
}

func writeFile(path string, fill func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := fill(f); err != nil {
		_ = f.Close()
		return err
	}
	return errors.Wrapf(f.Close(), "close %s", path)
}
