// Command citysim runs the epidemic city simulation.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/talgya/markov-city/internal/city"
	"github.com/talgya/markov-city/internal/config"
	"github.com/talgya/markov-city/internal/engine"
	"github.com/talgya/markov-city/internal/entropy"
	"github.com/talgya/markov-city/internal/logging"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "citysim",
		Short: "Markov-chain epidemic simulation of a toy city",
		Long: `citysim moves a population between the houses, supermarket, hospital
and transportation of a small city. Every tick each node updates the health
of its members, then every person moves, then counts are recomputed.

Configuration is read from --config (YAML) and CITYSIM_* environment
variables on top of the reference city.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newSimulateCmd(),
		newConfigCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"version": version})
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "citysim version %s\n", version)
			}
		},
	}
}

// loadConfig loads the effective configuration and installs the logger.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	slog.SetDefault(logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr()))
	return cfg, nil
}

// newDriver builds a driver whose runs draw from random.org when a key is
// configured and from a seeded generator otherwise.
func newDriver(cfg *config.Config) (*engine.Driver, error) {
	settings, err := cfg.Settings()
	if err != nil {
		return nil, fmt.Errorf("invalid city configuration: %w", err)
	}
	key := cfg.Entropy.RandomOrgKey
	settings.NewSource = func(seed int64) (city.Source, int64) {
		return entropy.New(seed, key)
	}
	return engine.NewDriver(settings), nil
}
