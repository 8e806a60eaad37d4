package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-sql-driver/mysql"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// timeLayout has a fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// dialect holds what differs between the supported databases. Queries use
// "?" placeholders, which both drivers accept.
type dialect struct {
	name   string
	setup  []string
	schema []string
}

var sqliteDialect = dialect{
	name:  "sqlite",
	setup: []string{`PRAGMA foreign_keys = ON`},
	schema: []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at TEXT NOT NULL,
			coverage REAL NOT NULL,
			scenario_count INTEGER NOT NULL,
			total_demand REAL NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS scale_results (
			run_id TEXT NOT NULL,
			scale REAL NOT NULL,
			max_state TEXT NOT NULL,
			PRIMARY KEY (run_id, scale),
			FOREIGN KEY (run_id) REFERENCES runs(id)
		)`,
		`CREATE TABLE IF NOT EXISTS strategy_results (
			run_id TEXT NOT NULL,
			scale REAL NOT NULL,
			strategy TEXT NOT NULL,
			throughput REAL NOT NULL,
			recomputations INTEGER NOT NULL,
			replans INTEGER NOT NULL,
			reductions TEXT NOT NULL,
			affected_routers TEXT NOT NULL,
			changed_tunnels TEXT NOT NULL,
			changed_routers TEXT NOT NULL,
			PRIMARY KEY (run_id, scale, strategy),
			FOREIGN KEY (run_id) REFERENCES runs(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
	},
}

var mysqlDialect = dialect{
	name: "mysql",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id VARCHAR(36) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			created_at VARCHAR(40) NOT NULL,
			coverage DOUBLE NOT NULL,
			scenario_count INT NOT NULL,
			total_demand DOUBLE NOT NULL,
			INDEX idx_runs_created_at (created_at)
		)`,
		`CREATE TABLE IF NOT EXISTS scale_results (
			run_id VARCHAR(36) NOT NULL,
			scale DOUBLE NOT NULL,
			max_state LONGTEXT NOT NULL,
			PRIMARY KEY (run_id, scale),
			FOREIGN KEY (run_id) REFERENCES runs(id)
		)`,
		`CREATE TABLE IF NOT EXISTS strategy_results (
			run_id VARCHAR(36) NOT NULL,
			scale DOUBLE NOT NULL,
			strategy VARCHAR(64) NOT NULL,
			throughput DOUBLE NOT NULL,
			recomputations INT NOT NULL,
			replans INT NOT NULL,
			reductions LONGTEXT NOT NULL,
			affected_routers LONGTEXT NOT NULL,
			changed_tunnels LONGTEXT NOT NULL,
			changed_routers LONGTEXT NOT NULL,
			PRIMARY KEY (run_id, scale, strategy),
			FOREIGN KEY (run_id) REFERENCES runs(id)
		)`,
	},
}

// SQLStore keeps runs in a relational database, one row per (run, scale,
// strategy) with the per-round series stored as JSON text.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// NewSQLiteStore opens (or creates) a SQLite database file.
func NewSQLiteStore(path string) (*SQLStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	// a single connection keeps :memory: databases shared
	db.SetMaxOpenConns(1)
	return newSQLStore(db, sqliteDialect)
}

// NewMySQLStore connects to the MySQL database named in dsn.
func NewMySQLStore(dsn string) (*SQLStore, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing mysql dsn: %w", err)
	}
	if cfg.DBName == "" {
		return nil, errors.New("mysql dsn names no database")
	}
	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", cfg.DBName, err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	return newSQLStore(db, mysqlDialect)
}

func newSQLStore(db *sql.DB, d dialect) (*SQLStore, error) {
	for _, stmt := range append(append([]string(nil), d.setup...), d.schema...) {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating %s schema: %w", d.name, err)
		}
	}
	return &SQLStore{db: db, dialect: d.name}, nil
}

func (ss *SQLStore) Close() error { return ss.db.Close() }

// Save replaces any earlier copy of the run.
func (ss *SQLStore) Save(ctx context.Context, rec *RunRecord) error {
	if err := validID(rec.ID); err != nil {
		return err
	}
	tx, err := ss.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"strategy_results", "scale_results"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ?`, rec.ID); err != nil {
			return fmt.Errorf("deleting previous %s: %w", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, rec.ID); err != nil {
		return fmt.Errorf("deleting previous run: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, name, created_at, coverage, scenario_count, total_demand)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, rec.CreatedAt.UTC().Format(timeLayout), rec.Coverage, rec.ScenarioCount, rec.TotalDemand)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	for _, sr := range rec.Scales {
		maxState, err := json.Marshal(sr.MaxState)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO scale_results (run_id, scale, max_state) VALUES (?, ?, ?)`,
			rec.ID, sr.Scale, string(maxState)); err != nil {
			return fmt.Errorf("inserting scale %v: %w", sr.Scale, err)
		}
		for name, st := range sr.Strategies {
			series, err := marshalSeries(st.Reductions, st.AffectedRouters, st.ChangedTunnels, st.ChangedRouters)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO strategy_results (run_id, scale, strategy, throughput, recomputations, replans,
					reductions, affected_routers, changed_tunnels, changed_routers)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				rec.ID, sr.Scale, name, st.Throughput, st.Recomputations, st.Replans,
				series[0], series[1], series[2], series[3])
			if err != nil {
				return fmt.Errorf("inserting strategy %s at scale %v: %w", name, sr.Scale, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	log.Infof("SQLStore.Save: dialect=%s run=%s name=%s scales=%d", ss.dialect, rec.ID, rec.Name, len(rec.Scales))
	return nil
}

func marshalSeries(values ...any) ([4]string, error) {
	var out [4]string
	for i, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return out, err
		}
		out[i] = string(data)
	}
	return out, nil
}

func (ss *SQLStore) Load(ctx context.Context, id string) (*RunRecord, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	rec := &RunRecord{ID: id}
	var created string
	err := ss.db.QueryRowContext(ctx,
		`SELECT name, created_at, coverage, scenario_count, total_demand FROM runs WHERE id = ?`, id).
		Scan(&rec.Name, &created, &rec.Coverage, &rec.ScenarioCount, &rec.TotalDemand)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", id, err)
	}
	if rec.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("parsing created_at of run %s: %w", id, err)
	}

	index, err := ss.loadScales(ctx, rec)
	if err != nil {
		return nil, err
	}

	rows, err := ss.db.QueryContext(ctx, `
		SELECT scale, strategy, throughput, recomputations, replans,
			reductions, affected_routers, changed_tunnels, changed_routers
		FROM strategy_results WHERE run_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			scale  float64
			name   string
			st     StrategyResult
			series [4]string
		)
		if err := rows.Scan(&scale, &name, &st.Throughput, &st.Recomputations, &st.Replans,
			&series[0], &series[1], &series[2], &series[3]); err != nil {
			return nil, err
		}
		targets := []any{&st.Reductions, &st.AffectedRouters, &st.ChangedTunnels, &st.ChangedRouters}
		for i, raw := range series {
			if err := json.Unmarshal([]byte(raw), targets[i]); err != nil {
				return nil, fmt.Errorf("decoding %s series of %s: %w", name, id, err)
			}
		}
		i, ok := index[scale]
		if !ok {
			return nil, fmt.Errorf("strategy %s refers to unknown scale %v", name, scale)
		}
		rec.Scales[i].Strategies[name] = st
	}
	return rec, rows.Err()
}

// loadScales fills rec.Scales in ascending order and indexes them by scale.
func (ss *SQLStore) loadScales(ctx context.Context, rec *RunRecord) (map[float64]int, error) {
	rows, err := ss.db.QueryContext(ctx, `SELECT scale, max_state FROM scale_results WHERE run_id = ? ORDER BY scale`, rec.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	index := make(map[float64]int)
	for rows.Next() {
		var sr ScaleResult
		var maxState string
		if err := rows.Scan(&sr.Scale, &maxState); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(maxState), &sr.MaxState); err != nil {
			return nil, fmt.Errorf("decoding max_state: %w", err)
		}
		sr.Strategies = make(map[string]StrategyResult)
		index[sr.Scale] = len(rec.Scales)
		rec.Scales = append(rec.Scales, sr)
	}
	return index, rows.Err()
}

func (ss *SQLStore) List(ctx context.Context) ([]RunSummary, error) {
	rows, err := ss.db.QueryContext(ctx, `SELECT id, name, created_at FROM runs ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		var created string
		if err := rows.Scan(&s.ID, &s.Name, &created); err != nil {
			return nil, err
		}
		if s.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
