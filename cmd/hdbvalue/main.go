// Package main provides the hdbvalue binary: train a resale price bundle
// from a CSV, predict an interval for one listing, and inspect a saved
// bundle's manifest.
package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/hdbvalue/config"
	"github.com/YuminosukeSato/hdbvalue/pkg/errors"
	"github.com/YuminosukeSato/hdbvalue/pkg/log"
)

const (
	Version = "0.1.0"
	appName = "hdbvalue"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globals are the persistent flags shared by every subcommand.
type globals struct {
	envFile    string
	configPath string
	logLevel   string
}

func rootCmd() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "HDB resale price estimation",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `hdbvalue trains a gradient boosted resale price model with a
hyperparameter search, an asymmetric retrain that prefers over-estimation,
and a split conformal margin, then serves point estimates with a
symmetric prediction interval.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnv(g.envFile)
		},
	}

	cmd.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "dotenv file loaded before configuration")
	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "YAML config path (defaults to $"+config.EnvConfigPath+")")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	cmd.AddCommand(trainCmd(g), predictCmd(g), inspectCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	})
	return cmd
}

// loadEnv loads a dotenv file. A missing file is not an error.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrapf(err, "load %s", path)
	}
	return nil
}

// loadConfig layers the config file and environment, then applies flag
// overrides.
func (g *globals) loadConfig(ctx context.Context) (*config.Config, error) {
	path := g.configPath
	if path == "" {
		path = os.Getenv(config.EnvConfigPath)
	}
	cfg, err := config.LoadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	return cfg, nil
}

// setupLogging installs the process logger selected by cfg and routes
// library warnings through it.
func setupLogging(cfg *config.Config, w io.Writer) log.Logger {
	switch cfg.LogFormat {
	case "zerolog":
		log.SetLogger(log.NewZerologLogger(w, cfg.LogLevel))
	case "console":
		log.SetLogger(log.NewConsoleLogger(w, cfg.LogLevel))
	default:
		log.SetupLoggerTo(w, cfg.LogLevel)
	}
	logger := log.GetLogger()
	log.BridgeWarnings(logger)
	return logger
}
