package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/cartridge/inference/internal/config"
	"github.com/cartridge/inference/internal/logging"
)

// app carries what every subcommand shares once flags are resolved.
type app struct {
	cfg    *config.Config
	v      *viper.Viper
	logger zerolog.Logger
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{
		cfg:    config.Default(),
		v:      viper.New(),
		stderr: stderr,
	}

	rootCmd := &cobra.Command{
		Use:   "inference",
		Short: "Cartridge policy inference harness",
		Long: `Inference harness that turns recorded policy model outputs into agent actions.

Model manifests describe the outputs and constants of an exported model.
Step files hold the output tensors of each inference step, which are applied
to the agents exactly as a live inference backend would.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	cfg := a.cfg
	flags := rootCmd.PersistentFlags()

	// Fixtures
	flags.String("model", cfg.ModelPath, "Model manifest (YAML)")
	flags.String("steps", cfg.StepsPath, "Step file or directory of step files (YAML)")

	// Inference settings
	flags.Int64("seed", cfg.Seed, "Seed for action sampling")
	flags.Bool("deterministic", cfg.Deterministic, "Pick the most likely action instead of sampling")

	// Run settings
	flags.Int("max-steps", cfg.MaxSteps, "Maximum steps to run (-1 for unlimited)")
	flags.Duration("timeout", cfg.Timeout, "Timeout for the whole command")
	flags.Int("batch-size", cfg.BatchSize, "Decisions buffered before a store write")
	flags.Duration("flush-interval", cfg.FlushInterval, "Interval to flush partial decision batches")
	flags.Uint64("store-size", cfg.StoreSize, "Maximum decisions kept in the store (0 for unlimited)")

	// Logging
	flags.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flags.Bool("log-pretty", cfg.LogPretty, "Human readable logs")

	// Bind flags to viper for environment variable support
	flags.VisitAll(func(f *pflag.Flag) {
		_ = a.v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})
	a.v.SetEnvPrefix("INFERENCE")
	a.v.AutomaticEnv()

	rootCmd.AddCommand(
		newInspectCmd(a),
		newApplyCmd(a),
		newRunCmd(a),
	)
	return rootCmd
}

// load resolves flags and environment into the config and sets up logging.
func (a *app) load() error {
	if err := a.v.Unmarshal(a.cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.logger = logging.Setup(logging.Config{
		Level:  a.cfg.LogLevel,
		Pretty: a.cfg.LogPretty,
		Output: a.stderr,
	})
	return nil
}

func main() {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	if err := rootCmd.Execute(); err != nil {
		logger := logging.Setup(logging.Config{Level: "error", Output: os.Stderr})
		logger.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
