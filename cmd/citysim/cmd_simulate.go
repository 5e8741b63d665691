package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/markov-city/internal/city"
	"github.com/talgya/markov-city/internal/engine"
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a fixed number of ticks and print every snapshot",
		Long: `Run the city headless for --ticks ticks with no delay between them,
printing the initial snapshot and one snapshot per tick.

Examples:
  citysim simulate --ticks 50
  citysim simulate --ticks 50 --members        # list each node's member states
  citysim simulate --ticks 200 --json | jq .infected`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			ticks, _ := cmd.Flags().GetInt("ticks")
			members, _ := cmd.Flags().GetBool("members")
			untilClear, _ := cmd.Flags().GetBool("until-clear")
			if ticks < 0 {
				return fmt.Errorf("--ticks must be >= 0, got %d", ticks)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			d, err := newDriver(cfg)
			if err != nil {
				return err
			}
			h, err := d.Initialize(cfg.Simulation.Total, cfg.Simulation.Infected)
			if err != nil {
				return fmt.Errorf("failed to initialize city: %w", err)
			}

			return simulate(cmd.OutOrStdout(), d, h, simulateOptions{
				ticks:      ticks,
				jsonOut:    jsonOut,
				members:    members,
				untilClear: untilClear,
			})
		},
	}
	cmd.Flags().Int("ticks", 100, "Number of ticks to run")
	cmd.Flags().Bool("members", false, "Also print the health state of every member of every node")
	cmd.Flags().Bool("until-clear", false, "Stop early once nobody is infected")
	return cmd
}

type simulateOptions struct {
	ticks      int
	jsonOut    bool
	members    bool
	untilClear bool
}

func simulate(w io.Writer, d *engine.Driver, h engine.Handle, opts simulateOptions) error {
	enc := json.NewEncoder(w)
	emit := func(snap city.Snapshot) error {
		if opts.jsonOut {
			return enc.Encode(snap)
		}
		fmt.Fprint(w, snap.String())
		if opts.members {
			return d.Inspect(func(c *city.City) { fmt.Fprint(w, c.String()) })
		}
		return nil
	}

	snap, err := d.Snapshot()
	if err != nil {
		return err
	}
	if err := emit(snap); err != nil {
		return err
	}
	for i := 0; i < opts.ticks; i++ {
		if opts.untilClear && snap.Infected == 0 {
			break
		}
		if snap, err = d.Step(); err != nil {
			return err
		}
		if err := emit(snap); err != nil {
			return err
		}
	}

	if !opts.jsonOut {
		fmt.Fprintf(w, "\nrun %s (seed %d): %s of %s alive after %s ticks, %s recovered\n",
			h.RunID, h.Seed,
			humanize.Comma(int64(snap.Alive())), humanize.Comma(int64(snap.Total)),
			humanize.Comma(int64(snap.Tick)), humanize.Comma(int64(snap.Recovered)))
	}
	return nil
}
