package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/markov-city/internal/api"
	"github.com/talgya/markov-city/internal/city"
	"github.com/talgya/markov-city/internal/config"
	"github.com/talgya/markov-city/internal/engine"
	"github.com/talgya/markov-city/internal/persistence"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the tick loop and serve the HTTP API",
		Long: `Initialize the city from configuration and advance it on a timer
until interrupted. The HTTP API is served on api.port when it is non-zero,
and the current snapshot is exported to database.path every
simulation.save_every ticks and on shutdown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.API.Port, _ = cmd.Flags().GetInt("port")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runCity(ctx, cfg)
		},
	}
	cmd.Flags().Int("port", 0, "HTTP API port (overrides api.port, 0 disables)")
	return cmd
}

// runCity blocks until ctx is done or a tick violates an invariant.
func runCity(ctx context.Context, cfg *config.Config) error {
	d, err := newDriver(cfg)
	if err != nil {
		return err
	}
	if _, err := d.Initialize(cfg.Simulation.Total, cfg.Simulation.Infected); err != nil {
		return fmt.Errorf("failed to initialize city: %w", err)
	}

	// ── Snapshot export ──────────────────────────────────────────────
	var db *persistence.DB
	if cfg.Database.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
		db, err = persistence.Open(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		slog.Info("database opened", "path", cfg.Database.Path)
	}

	// ── Engine ───────────────────────────────────────────────────────
	hub := api.NewHub()
	eng := engine.NewEngine(d)
	if cfg.Simulation.Interval > 0 {
		eng.Interval = cfg.Simulation.Interval
	}
	eng.ReportEvery = cfg.Simulation.ReportEvery
	saveEvery := cfg.Simulation.SaveEvery

	eng.OnTick = func(snap city.Snapshot) {
		hub.Publish(snap)
		if db != nil && saveEvery > 0 && snap.Tick%saveEvery == 0 {
			saveSnapshot(d, db, snap)
		}
	}
	eng.OnReport = logReport

	// ── HTTP API ─────────────────────────────────────────────────────
	if cfg.API.Port > 0 {
		srv := (&api.Server{
			Driver:   d,
			Eng:      eng,
			DB:       db,
			Hub:      hub,
			Port:     cfg.API.Port,
			AdminKey: cfg.API.AdminKey,
		}).Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("HTTP shutdown failed", "error", err)
			}
		}()
	}

	runErr := eng.Run(ctx)

	// Final export of whatever state the city ended in.
	if db != nil {
		if snap, err := d.Snapshot(); err == nil {
			saveSnapshot(d, db, snap)
		}
	}
	return runErr
}

func saveSnapshot(d *engine.Driver, db *persistence.DB, snap city.Snapshot) {
	h, ok := d.Handle()
	if !ok {
		return
	}
	if err := db.SaveSnapshot(h, snap); err != nil {
		slog.Error("snapshot save failed", "tick", snap.Tick, "error", err)
		return
	}
	slog.Debug("snapshot saved", "tick", snap.Tick)
}

func logReport(snap city.Snapshot) {
	infectedPct := 0.0
	if snap.Total > 0 {
		infectedPct = 100 * float64(snap.Infected) / float64(snap.Total)
	}
	slog.Info("city report",
		"tick", humanize.Comma(int64(snap.Tick)),
		"population", humanize.Comma(int64(snap.Total)),
		"alive", humanize.Comma(int64(snap.Alive())),
		"susceptible", snap.Susceptible,
		"infected", snap.Infected,
		"recovered", snap.Recovered,
		"dead", snap.Dead,
		"infected_pct", fmt.Sprintf("%.1f", infectedPct),
	)
}
