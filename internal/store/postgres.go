package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ldes-markets/internal/admm"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	delta       DOUBLE PRECISION NOT NULL,
	psi         DOUBLE PRECISION NOT NULL,
	outcome     TEXT,
	iterations  INTEGER NOT NULL DEFAULT 0,
	error       TEXT,
	comparison  JSONB
);
CREATE TABLE IF NOT EXISTS run_trace (
	run_id        TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	iteration     INTEGER NOT NULL,
	primal        DOUBLE PRECISION NOT NULL,
	dual          DOUBLE PRECISION NOT NULL,
	objective     DOUBLE PRECISION NOT NULL,
	solve_seconds DOUBLE PRECISION NOT NULL,
	clamped       INTEGER NOT NULL,
	PRIMARY KEY (run_id, iteration)
);`

// Postgres persists runs with lib/pq. The comparison is stored as JSON; the solver-level
// results it references are not.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects and creates the tables if needed.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	p := &Postgres{db: db}
	if err := p.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgres wraps an existing connection.
func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) SaveRun(ctx context.Context, r *Run) error {
	if p.db == nil {
		return fmt.Errorf("database connection not available")
	}
	var payload []byte
	if r.Comparison != nil {
		b, err := json.Marshal(r.Comparison)
		if err != nil {
			return fmt.Errorf("failed to encode comparison: %w", err)
		}
		payload = b
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO runs (id, status, created_at, updated_at, delta, psi, outcome, iterations, error, comparison)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at,
			outcome = EXCLUDED.outcome,
			iterations = EXCLUDED.iterations,
			error = EXCLUDED.error,
			comparison = EXCLUDED.comparison
	`,
		r.ID, string(r.Status), r.CreatedAt, r.UpdatedAt, r.Delta, r.Psi,
		nullString(r.Outcome), r.Iterations, nullString(r.Error), nullBytes(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", r.ID, err)
	}
	return nil
}

// LoadRun returns the stored record. Comparison carries the JSON-visible fields only.
func (p *Postgres) LoadRun(ctx context.Context, id string) (*Run, error) {
	if p.db == nil {
		return nil, fmt.Errorf("database connection not available")
	}
	var (
		r       Run
		status  string
		outcome sql.NullString
		errText sql.NullString
		payload []byte
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT id, status, created_at, updated_at, delta, psi, outcome, iterations, error, comparison
		FROM runs WHERE id = $1
	`, id).Scan(&r.ID, &status, &r.CreatedAt, &r.UpdatedAt, &r.Delta, &r.Psi, &outcome, &r.Iterations, &errText, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}
	r.Status = Status(status)
	r.Outcome = outcome.String
	r.Error = errText.String
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &r.Comparison); err != nil {
			return nil, fmt.Errorf("failed to decode comparison of run %s: %w", id, err)
		}
	}
	return &r, nil
}

// SaveTrace replaces the stored history of a run.
func (p *Postgres) SaveTrace(ctx context.Context, id string, hist []admm.IterationRecord) error {
	if p.db == nil {
		return fmt.Errorf("database connection not available")
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_trace WHERE run_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete existing trace: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_trace (run_id, iteration, primal, dual, objective, solve_seconds, clamped)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range hist {
		if _, err := stmt.ExecContext(ctx, id, rec.K, rec.Primal, rec.Dual, rec.Objective, rec.SolveTime.Seconds(), rec.Clamped); err != nil {
			return fmt.Errorf("failed to insert iteration %d: %w", rec.K, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (p *Postgres) LoadTrace(ctx context.Context, id string) ([]admm.IterationRecord, error) {
	if p.db == nil {
		return nil, fmt.Errorf("database connection not available")
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT iteration, primal, dual, objective, solve_seconds, clamped
		FROM run_trace WHERE run_id = $1
		ORDER BY iteration ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query trace: %w", err)
	}
	defer rows.Close()

	var out []admm.IterationRecord
	for rows.Next() {
		var rec admm.IterationRecord
		var secs float64
		if err := rows.Scan(&rec.K, &rec.Primal, &rec.Dual, &rec.Objective, &secs, &rec.Clamped); err != nil {
			return nil, fmt.Errorf("failed to scan iteration: %w", err)
		}
		rec.SolveTime = time.Duration(secs * float64(time.Second))
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trace: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullBytes(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return string(b)
}
