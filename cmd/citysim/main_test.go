package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/talgya/markov-city/internal/city"
	"github.com/talgya/markov-city/internal/config"
	"github.com/talgya/markov-city/internal/persistence"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "citysim.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	t.Setenv("RANDOM_ORG_API_KEY", "")
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		t.Fatalf("citysim %v: %v", args, err)
	}
	return out.String()
}

func TestSimulateJSON(t *testing.T) {
	path := writeConfig(t, `
simulation:
  total: 20
  infected: 2
  seed: 7
`)
	out := execute(t, "simulate", "--config", path, "--ticks", "5", "--json")

	var snaps []city.Snapshot
	sc := bufio.NewScanner(strings.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var snap city.Snapshot
		if err := json.Unmarshal(sc.Bytes(), &snap); err != nil {
			t.Fatalf("bad JSON line %q: %v", sc.Text(), err)
		}
		snaps = append(snaps, snap)
	}
	if len(snaps) != 6 {
		t.Fatalf("got %d snapshots, want 6 (initial + 5 ticks)", len(snaps))
	}
	if snaps[0].Infected != 2 {
		t.Errorf("initial infected = %d, want 2", snaps[0].Infected)
	}
	for i, snap := range snaps {
		if snap.Tick != uint64(i) {
			t.Errorf("snapshot %d has tick %d", i, snap.Tick)
		}
		if got := snap.Susceptible + snap.Infected + snap.Recovered + snap.Dead; got != 20 {
			t.Errorf("tick %d: population %d, want 20", snap.Tick, got)
		}
	}
}

func TestSimulateSameSeedSameOutput(t *testing.T) {
	path := writeConfig(t, "simulation:\n  seed: 11\n")
	a := execute(t, "simulate", "--config", path, "--ticks", "20", "--json")
	b := execute(t, "simulate", "--config", path, "--ticks", "20", "--json")
	if a != b {
		t.Error("same seed produced different runs")
	}
}

func TestSimulateText(t *testing.T) {
	path := writeConfig(t, "simulation:\n  seed: 3\n")
	out := execute(t, "simulate", "--config", path, "--ticks", "2", "--members")

	for _, want := range []string{"tick 0", "tick 2", "house_1", "Hospital : ", "(seed 3)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSimulateRejectsNegativeTicks(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"simulate", "--ticks=-1"})
	if err := root.Execute(); err == nil {
		t.Error("expected error for negative ticks")
	}
}

func TestConfigRedactsSecrets(t *testing.T) {
	t.Setenv("CITYSIM_ADMIN_KEY", "hunter2")
	out := execute(t, "config")
	if strings.Contains(out, "hunter2") {
		t.Errorf("config output leaks admin key:\n%s", out)
	}
	if !strings.Contains(out, "outbreak_rate: 0.075") {
		t.Errorf("config output missing outbreak rate:\n%s", out)
	}
}

func TestRunCityExportsOnShutdown(t *testing.T) {
	cfg := config.Default()
	cfg.Simulation.Seed = 5
	cfg.Simulation.Interval = 5 * time.Millisecond
	cfg.Simulation.SaveEvery = 1
	cfg.API.Port = 0
	cfg.Database.Path = filepath.Join(t.TempDir(), "data", "city.db")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := runCity(ctx, cfg); err != nil {
		t.Fatalf("runCity: %v", err)
	}

	db, err := persistence.Open(cfg.Database.Path)
	if err != nil {
		t.Fatalf("reopen database: %v", err)
	}
	defer db.Close()

	run, ok, err := db.LoadRun()
	if err != nil || !ok {
		t.Fatalf("LoadRun = %v, %v", ok, err)
	}
	if run.Seed != 5 || run.Total != cfg.Simulation.Total {
		t.Errorf("stored run = %+v", run)
	}
	tick, err := db.GetMeta("last_tick")
	if err != nil {
		t.Fatalf("GetMeta: %v", err)
	}
	if tick == "" || tick == "0" {
		t.Errorf("last_tick = %q, want ticks to have run", tick)
	}
}
