package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/hdbvalue/bundle"
	"github.com/YuminosukeSato/hdbvalue/pkg/errors"
)

func inspectCmd() *cobra.Command {
	var (
		dir    string
		verify bool
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print a bundle manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := bundle.ReadManifest(dir)
			if err != nil {
				return err
			}
			if verify {
				// loads the model and checks it against the manifest
				b, err := bundle.LoadDir(dir)
				if err != nil {
					return err
				}
				m = b.Manifest()
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(m); err != nil {
				return errors.Wrap(err, "encode manifest")
			}
			return enc.Close()
		},
	}

	cmd.Flags().StringVar(&dir, "bundle", "", "bundle directory written by train")
	cmd.Flags().BoolVar(&verify, "verify", false, "also load and validate the model file")
	_ = cmd.MarkFlagRequired("bundle")
	return cmd
}
