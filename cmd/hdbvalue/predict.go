package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/hdbvalue/bundle"
	"github.com/YuminosukeSato/hdbvalue/features"
	"github.com/YuminosukeSato/hdbvalue/pkg/errors"
	"github.com/YuminosukeSato/hdbvalue/predict"
)

func predictCmd(g *globals) *cobra.Command {
	var (
		dir    string
		values string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict a resale price interval for one feature vector",
		Long: "Values are the " + strconv.Itoa(features.Len) + " features in layout order:\n  " +
			strings.Join(features.Names(), ", "),
		Example: `  hdbvalue predict --bundle bundle/ --values "75,0.4,7,900,90,1.5,0,0,0,1,0,0,0"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			logger := setupLogging(cfg, cmd.ErrOrStderr())

			v, err := parseValues(values)
			if err != nil {
				return err
			}
			b, err := bundle.LoadDir(dir)
			if err != nil {
				return err
			}
			svc, err := predict.NewService(b, predict.WithLogger(logger))
			if err != nil {
				return err
			}
			res, err := svc.Predict(v)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			fmt.Fprintf(out, "predicted price: %.0f\n", res.Point)
			fmt.Fprintf(out, "interval:        [%.0f, %.0f] at %.0f%% coverage\n",
				res.Lower, res.Upper, 100*(1-svc.Margin().Alpha))
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "bundle", "", "bundle directory written by train")
	cmd.Flags().StringVar(&values, "values", "", "comma separated feature values")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	_ = cmd.MarkFlagRequired("bundle")
	_ = cmd.MarkFlagRequired("values")
	return cmd
}

// parseValues splits a comma separated list. The length is checked by the
// prediction service so the error carries the feature shape.
func parseValues(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	v := make([]float64, len(parts))
	for i, p := range parts {
		x, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, errors.NewValidationError("values", fmt.Sprintf("position %d is not a number", i), p)
		}
		v[i] = x
	}
	return v, nil
}
