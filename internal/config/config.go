// Package config provides configuration loading for citysim.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/markov-city/internal/city"
	"github.com/talgya/markov-city/internal/engine"
)

// Config contains all citysim configuration settings.
type Config struct {
	// Simulation contains the initial population and pacing.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Health configures the disease applied at every node.
	Health HealthConfig `json:"health" yaml:"health"`

	// Movement maps a place kind to the probability of moving to each kind.
	Movement map[string]map[string]float64 `json:"movement" yaml:"movement"`

	// Nodes is the city layout, in order.
	Nodes []NodeConfig `json:"nodes" yaml:"nodes"`

	// Entropy selects the random source.
	Entropy EntropyConfig `json:"entropy" yaml:"entropy"`

	// API configures the HTTP API.
	API APIConfig `json:"api" yaml:"api"`

	// Database configures snapshot export.
	Database DatabaseConfig `json:"database" yaml:"database"`

	// Logging contains settings for operational logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// SimulationConfig sets up a run.
type SimulationConfig struct {
	// Total is the number of persons created at initialization.
	Total int `json:"total" yaml:"total"`

	// Infected is how many of them start infected.
	Infected int `json:"infected" yaml:"infected"`

	// Seed for the random source. 0 picks a random seed per run.
	Seed int64 `json:"seed" yaml:"seed"`

	// Interval is the wall-clock time between ticks.
	Interval time.Duration `json:"interval" yaml:"interval"`

	// ReportEvery logs a summary every N ticks (0 disables).
	ReportEvery uint64 `json:"report_every" yaml:"report_every"`

	// SaveEvery exports the current snapshot every N ticks (0 disables).
	SaveEvery uint64 `json:"save_every" yaml:"save_every"`
}

// HealthConfig configures the per-node health matrix.
type HealthConfig struct {
	// OutbreakRate is P(Susceptible -> Infected) in a node with an infected member.
	OutbreakRate float64 `json:"outbreak_rate" yaml:"outbreak_rate"`

	// Infected is the Infected row keyed by next health state.
	Infected map[string]float64 `json:"infected" yaml:"infected"`
}

// NodeConfig describes one node.
type NodeConfig struct {
	ID    uint32 `json:"id" yaml:"id"`
	Kind  string `json:"kind" yaml:"kind"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// EntropyConfig selects the random source.
type EntropyConfig struct {
	// RandomOrgKey enables random.org draws. Supports ${VAR} syntax.
	// Runs with a key are not reproducible.
	RandomOrgKey string `json:"random_org_key,omitempty" yaml:"random_org_key,omitempty"`
}

// APIConfig configures the HTTP API.
type APIConfig struct {
	// Port to listen on. 0 disables the API.
	Port int `json:"port" yaml:"port"`

	// AdminKey is the bearer token for POST endpoints. Empty disables them.
	AdminKey string `json:"admin_key,omitempty" yaml:"admin_key,omitempty"`
}

// DatabaseConfig configures the SQLite snapshot export.
type DatabaseConfig struct {
	// Path of the SQLite file. Empty disables export.
	Path string `json:"path" yaml:"path"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	Level string `json:"level" yaml:"level"`
}

// String implements fmt.Stringer to keep secrets out of logs.
func (c APIConfig) String() string {
	key := ""
	if c.AdminKey != "" {
		key = "(set)"
	}
	return fmt.Sprintf("APIConfig{Port:%d, AdminKey:%s}", c.Port, key)
}

// Default returns the reference city: 50 persons in five houses, one of
// them infected.
func Default() *Config {
	health := city.DefaultHealthParams()
	movement := city.DefaultMovementMatrix()

	cfg := &Config{
		Simulation: SimulationConfig{
			Total:       50,
			Infected:    1,
			Seed:        0,
			Interval:    engine.DefaultInterval,
			ReportEvery: 10,
			SaveEvery:   0,
		},
		Health: HealthConfig{
			OutbreakRate: health.OutbreakRate,
			Infected:     healthRowMap(health.Infected),
		},
		Movement: make(map[string]map[string]float64, city.NumPlaceKinds),
		API: APIConfig{
			Port: 8080,
		},
		Database: DatabaseConfig{
			Path: "data/citysim.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
	for k := city.PlaceKind(0); k < city.NumPlaceKinds; k++ {
		cfg.Movement[k.String()] = movementRowMap(movement[k])
	}
	for _, spec := range city.ReferenceLayout() {
		cfg.Nodes = append(cfg.Nodes, NodeConfig{ID: uint32(spec.ID), Kind: spec.Kind.String(), Label: spec.Label})
	}
	return cfg
}

// Load loads configuration in order: defaults -> path (if non-empty) ->
// environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		cfg = fileConfig
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var probe struct {
		Health struct {
			Infected map[string]float64 `yaml:"infected"`
		} `yaml:"health"`
		Movement map[string]map[string]float64 `yaml:"movement"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Maps decode by merging, so matrices given in the file replace the
	// defaults instead of mixing with them.
	cfg := Default()
	if probe.Health.Infected != nil {
		cfg.Health.Infected = nil
	}
	if probe.Movement != nil {
		cfg.Movement = nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Entropy.RandomOrgKey = expandEnvVars(cfg.Entropy.RandomOrgKey)
	cfg.API.AdminKey = expandEnvVars(cfg.API.AdminKey)
	return cfg, nil
}

// Validate checks that the configuration is valid, including every matrix
// and layout entry.
func (c *Config) Validate() error {
	if c.Simulation.Total < 0 || c.Simulation.Infected < 0 {
		return &city.ConfigError{Field: "simulation", Reason: "total and infected must be non-negative"}
	}
	if c.Simulation.Infected > c.Simulation.Total {
		return &city.ConfigError{Field: "simulation", Reason: fmt.Sprintf("infected %d exceeds total %d", c.Simulation.Infected, c.Simulation.Total)}
	}
	if c.Simulation.Interval <= 0 {
		return &city.ConfigError{Field: "simulation.interval", Reason: fmt.Sprintf("must be positive, got %v", c.Simulation.Interval)}
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		return &city.ConfigError{Field: "api.port", Reason: fmt.Sprintf("invalid port %d", c.API.Port)}
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return &city.ConfigError{Field: "logging.level", Reason: fmt.Sprintf("invalid log level %q (valid: info, debug, trace)", c.Logging.Level)}
	}

	_, err := c.Settings()
	return err
}

// Settings converts the string-keyed configuration into typed engine
// settings. Unknown health states or place kinds are config errors.
func (c *Config) Settings() (engine.Settings, error) {
	s := engine.Settings{Seed: c.Simulation.Seed}

	s.Health.OutbreakRate = c.Health.OutbreakRate
	for key, p := range c.Health.Infected {
		h, err := city.ParseHealthState(key)
		if err != nil {
			return engine.Settings{}, fmt.Errorf("health.infected: %w", err)
		}
		s.Health.Infected[h] = p
	}
	if err := s.Health.Validate(); err != nil {
		return engine.Settings{}, err
	}

	for from, row := range c.Movement {
		k, err := city.ParsePlaceKind(from)
		if err != nil {
			return engine.Settings{}, fmt.Errorf("movement: %w", err)
		}
		for to, p := range row {
			dest, err := city.ParsePlaceKind(to)
			if err != nil {
				return engine.Settings{}, fmt.Errorf("movement.%s: %w", from, err)
			}
			s.Movement[k][dest] = p
		}
	}

	if len(c.Nodes) == 0 {
		return engine.Settings{}, &city.ConfigError{Field: "nodes", Reason: "at least one node is required"}
	}
	seen := make(map[uint32]bool, len(c.Nodes))
	for _, n := range c.Nodes {
		kind, err := city.ParsePlaceKind(n.Kind)
		if err != nil {
			return engine.Settings{}, fmt.Errorf("nodes[%d]: %w", n.ID, err)
		}
		if seen[n.ID] {
			return engine.Settings{}, &city.ConfigError{Field: "nodes", Reason: fmt.Sprintf("duplicate node id %d", n.ID)}
		}
		seen[n.ID] = true
		s.Layout = append(s.Layout, city.NodeSpec{ID: city.NodeID(n.ID), Kind: kind, Label: n.Label})
	}
	for i, spec := range s.Layout {
		if !s.Movement.HasRow(spec.Kind) {
			return engine.Settings{}, &city.ConfigError{Field: "movement", Reason: fmt.Sprintf("no movement row for %s (node %d)", spec.Kind, c.Nodes[i].ID)}
		}
	}
	return s, nil
}

// Redacted returns a copy of the configuration safe to print.
func (c *Config) Redacted() *Config {
	redacted := *c
	if redacted.API.AdminKey != "" {
		redacted.API.AdminKey = "(set)"
	}
	if redacted.Entropy.RandomOrgKey != "" {
		redacted.Entropy.RandomOrgKey = "(set)"
	}
	return &redacted
}

// YAML renders the configuration with secrets redacted.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c.Redacted())
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CITYSIM_TOTAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Simulation.Total = n
		}
	}
	if v := os.Getenv("CITYSIM_INFECTED"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Simulation.Infected = n
		}
	}
	if v := os.Getenv("CITYSIM_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Simulation.Seed = n
		}
	}
	if v := os.Getenv("CITYSIM_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Simulation.Interval = d
		}
	}
	if v := os.Getenv("CITYSIM_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = n
		}
	}
	if v := os.Getenv("CITYSIM_ADMIN_KEY"); v != "" {
		cfg.API.AdminKey = v
	}
	if v := os.Getenv("CITYSIM_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("CITYSIM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("RANDOM_ORG_API_KEY"); v != "" {
		cfg.Entropy.RandomOrgKey = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}

func healthRowMap(row city.HealthRow) map[string]float64 {
	m := make(map[string]float64, len(row))
	for i, p := range row {
		m[city.HealthState(i).String()] = p
	}
	return m
}

func movementRowMap(row city.MovementRow) map[string]float64 {
	m := make(map[string]float64, len(row))
	for i, p := range row {
		m[city.PlaceKind(i).String()] = p
	}
	return m
}
