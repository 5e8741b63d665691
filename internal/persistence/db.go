// Package persistence exports the current city snapshot to SQLite so that
// external dashboards can read it. Every save replaces the previous one;
// nothing is loaded back into the engine.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/markov-city/internal/city"
	"github.com/talgya/markov-city/internal/engine"
)

// DB wraps a SQLite connection for snapshot export.
type DB struct {
	conn *sqlx.DB
}

// RunRow is the stored description of the exported run.
type RunRow struct {
	RunID     string    `db:"run_id" json:"run_id"`
	Seed      int64     `db:"seed" json:"seed"`
	Total     int       `db:"total" json:"total"`
	Infected  int       `db:"infected" json:"infected"`
	StartedAt time.Time `db:"started_at" json:"started_at"`
}

// NodeRow is one node's stored counters.
type NodeRow struct {
	NodeID      uint32 `db:"node_id" json:"node_id"`
	Kind        string `db:"kind" json:"kind"`
	Label       string `db:"label" json:"label"`
	Total       int    `db:"total" json:"total"`
	Susceptible int    `db:"susceptible" json:"susceptible"`
	Infected    int    `db:"infected" json:"infected"`
	Recovered   int    `db:"recovered" json:"recovered"`
	Dead        int    `db:"dead" json:"dead"`
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		seed INTEGER NOT NULL,
		total INTEGER NOT NULL,
		infected INTEGER NOT NULL,
		started_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS node_counts (
		node_id INTEGER PRIMARY KEY,
		kind TEXT NOT NULL,
		label TEXT NOT NULL,
		total INTEGER NOT NULL,
		susceptible INTEGER NOT NULL,
		infected INTEGER NOT NULL,
		recovered INTEGER NOT NULL,
		dead INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS city_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveSnapshot replaces the stored run and node counters with the given
// state in a single transaction.
func (db *DB) SaveSnapshot(h engine.Handle, snap city.Snapshot) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"runs", "node_counts"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	_, err = tx.NamedExec(`INSERT INTO runs (run_id, seed, total, infected, started_at)
		VALUES (:run_id, :seed, :total, :infected, :started_at)`,
		RunRow{
			RunID:     h.RunID.String(),
			Seed:      h.Seed,
			Total:     h.Total,
			Infected:  h.Infected,
			StartedAt: h.StartedAt,
		})
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareNamed(`INSERT INTO node_counts
		(node_id, kind, label, total, susceptible, infected, recovered, dead)
		VALUES (:node_id, :kind, :label, :total, :susceptible, :infected, :recovered, :dead)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, n := range snap.Nodes {
		_, err := stmt.Exec(NodeRow{
			NodeID:      uint32(n.ID),
			Kind:        n.Kind.String(),
			Label:       n.Label,
			Total:       n.Total,
			Susceptible: n.Susceptible,
			Infected:    n.Infected,
			Recovered:   n.Recovered,
			Dead:        n.Dead,
		})
		if err != nil {
			return fmt.Errorf("insert node %d: %w", n.ID, err)
		}
	}

	meta := map[string]string{
		"last_tick": strconv.FormatUint(snap.Tick, 10),
		"saved_at":  time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range meta {
		if _, err := tx.Exec("INSERT OR REPLACE INTO city_meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("save meta %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Debug("snapshot saved", "run_id", h.RunID, "tick", snap.Tick, "nodes", len(snap.Nodes))
	return nil
}

// Clear removes the exported run, used when the simulation is reset.
func (db *DB) Clear() error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"runs", "node_counts", "city_meta"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// LoadRun returns the exported run. ok is false when nothing is stored.
func (db *DB) LoadRun() (run RunRow, ok bool, err error) {
	err = db.conn.Get(&run, "SELECT run_id, seed, total, infected, started_at FROM runs LIMIT 1")
	if errors.Is(err, sql.ErrNoRows) {
		return RunRow{}, false, nil
	}
	if err != nil {
		return RunRow{}, false, err
	}
	return run, true, nil
}

// LoadNodes returns the exported node counters ordered by node id.
func (db *DB) LoadNodes() ([]NodeRow, error) {
	var rows []NodeRow
	err := db.conn.Select(&rows, "SELECT * FROM node_counts ORDER BY node_id")
	return rows, err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM city_meta WHERE key = ?", key)
	return value, err
}
