// Package archive records pipeline runs and their aggregate tables in a SQL
// database. SQLite (modernc.org/sqlite) and Postgres (pgx) are supported
// through database/sql.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver

	"ephyscli/internal/membrane"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Aggregate tiers as stored in the tier column
const (
	TierPerCell      = "per_cell"
	TierMouseAverage = "mouse_avg"
	TierPerMouse     = "per_mouse"
)

// timeLayout is fixed width so stored timestamps sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var sqlOpen = sql.Open

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		input_path TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		status TEXT NOT NULL,
		step_mv DOUBLE PRECISION NOT NULL,
		policy TEXT NOT NULL,
		row_count INTEGER NOT NULL,
		unclassified INTEGER NOT NULL,
		group_counts TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS aggregates (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		tier TEXT NOT NULL,
		position INTEGER NOT NULL,
		group_code INTEGER NOT NULL,
		genotype TEXT NOT NULL,
		treatment TEXT NOT NULL,
		mouse TEXT NOT NULL DEFAULT '',
		n INTEGER NOT NULL,
		members INTEGER NOT NULL,
		input_r_mean DOUBLE PRECISION,
		input_r_ste DOUBLE PRECISION,
		input_r_std DOUBLE PRECISION,
		capacitance_mean DOUBLE PRECISION,
		capacitance_ste DOUBLE PRECISION,
		capacitance_std DOUBLE PRECISION,
		PRIMARY KEY (run_id, tier, position)
	)`,
}

// Run is one archived pipeline invocation
type Run struct {
	ID             string
	InputPath      string
	StartedAt      time.Time
	FinishedAt     time.Time
	Status         string
	StepMillivolts float64
	Policy         string
	Rows           int
	Unclassified   int
	// GroupCounts is keyed by group code
	GroupCounts map[int]int
	Error       string
}

// Tiers holds the aggregate tables of one run
type Tiers struct {
	PerCell      []membrane.Aggregate
	MouseAverage []membrane.Aggregate
	PerMouse     []membrane.Aggregate
}

// StoredAggregate is an aggregate row read back from the archive
type StoredAggregate struct {
	Tier     string
	Position int
	membrane.Aggregate
}

// Store is a SQL-backed run archive
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the archive and creates its tables. driver is "sqlite"
// (dsn is a file path) or "postgres" (dsn is a connection URL).
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	var sqlDriver string
	switch driver {
	case DriverSQLite:
		sqlDriver = "sqlite"
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
				return nil, fmt.Errorf("create dirs: %w", err)
			}
		}
	case DriverPostgres:
		sqlDriver = "pgx"
	default:
		return nil, fmt.Errorf("unsupported archive driver %q", driver)
	}

	db, err := sqlOpen(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// a single connection serialises writers on the database file
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	if s.driver == DriverSQLite {
		if _, err := s.db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
			return fmt.Errorf("enable foreign keys: %w", err)
		}
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders as $1, $2, ... for Postgres
func rebind(driver, query string) string {
	if driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func nullable(f float64) sql.NullFloat64 {
	if math.IsNaN(f) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}

func fromNullable(f sql.NullFloat64) float64 {
	if !f.Valid {
		return math.NaN()
	}
	return f.Float64
}

// RecordRun stores run and its aggregate tiers in one transaction
func (s *Store) RecordRun(ctx context.Context, run Run, tiers Tiers) (retErr error) {
	counts, err := json.Marshal(run.GroupCounts)
	if err != nil {
		return fmt.Errorf("encode group counts: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, rebind(s.driver, `INSERT INTO runs
		(id, input_path, started_at, finished_at, status, step_mv, policy, row_count, unclassified, group_counts, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		run.ID, run.InputPath,
		run.StartedAt.UTC().Format(timeLayout), run.FinishedAt.UTC().Format(timeLayout),
		run.Status, run.StepMillivolts, run.Policy, run.Rows, run.Unclassified, string(counts), run.Error,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, rebind(s.driver, `INSERT INTO aggregates
		(run_id, tier, position, group_code, genotype, treatment, mouse, n, members,
		 input_r_mean, input_r_ste, input_r_std, capacitance_mean, capacitance_ste, capacitance_std)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("prepare aggregate insert: %w", err)
	}
	defer stmt.Close()

	for _, tier := range []struct {
		name string
		aggs []membrane.Aggregate
	}{
		{TierPerCell, tiers.PerCell},
		{TierMouseAverage, tiers.MouseAverage},
		{TierPerMouse, tiers.PerMouse},
	} {
		for i, a := range tier.aggs {
			if _, err := stmt.ExecContext(ctx,
				run.ID, tier.name, i, int(a.Group), a.Genotype, a.Treatment, a.Mouse, a.N, a.Members,
				nullable(a.InputResistance.Mean), nullable(a.InputResistance.STE), nullable(a.InputResistance.STD),
				nullable(a.Capacitance.Mean), nullable(a.Capacitance.STE), nullable(a.Capacitance.STD),
			); err != nil {
				return fmt.Errorf("insert %s aggregate %d: %w", tier.name, i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Runs lists archived runs, most recent first
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, input_path, started_at, finished_at, status, step_mv, policy,
		row_count, unclassified, group_counts, error FROM runs ORDER BY started_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished string
			counts            string
		)
		if err := rows.Scan(&r.ID, &r.InputPath, &started, &finished, &r.Status, &r.StepMillivolts,
			&r.Policy, &r.Rows, &r.Unclassified, &counts, &r.Error); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if r.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		if err := json.Unmarshal([]byte(counts), &r.GroupCounts); err != nil {
			return nil, fmt.Errorf("decode group counts: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Aggregates returns the stored aggregate rows of a run ordered by tier
// and position
func (s *Store) Aggregates(ctx context.Context, runID string) ([]StoredAggregate, error) {
	rows, err := s.db.QueryContext(ctx, rebind(s.driver, `SELECT tier, position, group_code, genotype, treatment, mouse, n, members,
		input_r_mean, input_r_ste, input_r_std, capacitance_mean, capacitance_ste, capacitance_std
		FROM aggregates WHERE run_id = ? ORDER BY tier, position`), runID)
	if err != nil {
		return nil, fmt.Errorf("select aggregates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []StoredAggregate
	for rows.Next() {
		var (
			a                      StoredAggregate
			group                  int
			irMean, irSTE, irSTD   sql.NullFloat64
			capMean, capSTE, capSD sql.NullFloat64
		)
		if err := rows.Scan(&a.Tier, &a.Position, &group, &a.Genotype, &a.Treatment, &a.Mouse, &a.N, &a.Members,
			&irMean, &irSTE, &irSTD, &capMean, &capSTE, &capSD); err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		a.Group = membrane.Group(group)
		a.InputResistance = membrane.Summary{Mean: fromNullable(irMean), STE: fromNullable(irSTE), STD: fromNullable(irSTD)}
		a.Capacitance = membrane.Summary{Mean: fromNullable(capMean), STE: fromNullable(capSTE), STD: fromNullable(capSD)}
		out = append(out, a)
	}
	return out, rows.Err()
}
