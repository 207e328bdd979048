// Package hdbvalue estimates HDB resale prices with a calibrated
// prediction interval.
//
// Training runs four stages in order: a randomized hyperparameter search
// with k-fold cross validation, an asymmetric-loss retrain of the best
// configuration with early stopping, split conformal calibration on a held
// out subset, and packaging into a bundle. Inference loads the bundle and
// returns a point estimate with the symmetric interval point ± q.
//
// # Installation
//
//	go install github.com/YuminosukeSato/hdbvalue/cmd/hdbvalue@latest
//
// # Quick Start
//
//	package main
//
//	import (
//	    "context"
//	    "fmt"
//	    "log"
//
//	    "github.com/YuminosukeSato/hdbvalue/config"
//	    "github.com/YuminosukeSato/hdbvalue/dataset"
//	    "github.com/YuminosukeSato/hdbvalue/pipeline"
//	    "github.com/YuminosukeSato/hdbvalue/predict"
//	)
//
//	func main() {
//	    ds, err := dataset.ReadCSVFile("hdb_amenities_dist.csv")
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    rep, err := pipeline.Run(context.Background(), config.New(), ds)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    svc, err := predict.NewService(rep.Bundle)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    res, err := svc.Predict(ds.At(0).Features)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Printf("%.0f [%.0f, %.0f]\n", res.Point, res.Lower, res.Upper)
//	}
//
// # Packages
//
//   - features: the fixed 13-value feature layout and listing type
//   - dataset: examples, CSV loading, partitions and k-fold splits
//   - tree: histogram trees and additive or averaged ensembles
//   - boost: gradient boosting with squared and asymmetric objectives
//   - forest: bootstrap-aggregated regression trees
//   - search: the hyperparameter space and randomized search
//   - conformal: split conformal margins and coverage
//   - bundle: persisted model, margin and manifest
//   - predict: the inference service
//   - pipeline: the end-to-end training run
//   - config: layered configuration (defaults, YAML, environment)
//   - diagnostics: residual and learning curve plots
//   - metrics: regression metrics and scorers
//   - core/model, core/parallel: shared interfaces and worker helpers
//   - pkg/errors, pkg/log, pkg/telemetry: error types, logging, metrics
//
// # Determinism
//
// Every random choice is driven by the configured seed, so a run with
// equal inputs produces an identical bundle. Inference is pure: repeated
// predictions for the same vector are bit-identical.
package hdbvalue
