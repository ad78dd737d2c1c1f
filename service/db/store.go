package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store provides database operations for the run history.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store with the given database connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the history tables if they don't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Run is one reconciliation run.
type Run struct {
	ID         string         `db:"id" json:"id"`
	Kind       string         `db:"kind" json:"kind"`
	Target     string         `db:"target" json:"target"`
	Mode       string         `db:"mode" json:"mode"`
	Source     string         `db:"source" json:"source"`
	StartedAt  time.Time      `db:"started_at" json:"started_at"`
	FinishedAt *time.Time     `db:"finished_at" json:"finished_at"` // nil while running or if the process died
	Total      int32          `db:"total" json:"total"`
	Failed     int32          `db:"failed" json:"failed"`
	Counts     map[string]int `db:"counts" json:"counts"`
}

// Outcome is the recorded result of one version within a run.
type Outcome struct {
	ID         int64     `db:"id" json:"id"`
	RunID      string    `db:"run_id" json:"run_id"`
	Kind       string    `db:"kind" json:"kind"`
	Target     string    `db:"target" json:"target"`
	Version    int64     `db:"version" json:"version"`
	Address    string    `db:"address" json:"address"`
	Outcome    string    `db:"outcome" json:"outcome"`
	Signature  *string   `db:"signature" json:"signature"`
	Message    *string   `db:"message" json:"message"`
	Attempts   int32     `db:"attempts" json:"attempts"`
	Error      *string   `db:"error" json:"error"`
	RecordedAt time.Time `db:"recorded_at" json:"recorded_at"`
}

// CreateRunParams contains the parameters for creating a run.
type CreateRunParams struct {
	ID        string
	Kind      string
	Target    string
	Mode      string
	Source    string
	StartedAt time.Time
}

// FinishRunParams contains the final tallies of a run.
type FinishRunParams struct {
	ID         string
	FinishedAt time.Time
	Total      int32
	Failed     int32
	Counts     map[string]int
}

// RecordOutcomeParams contains the parameters for recording one version outcome.
type RecordOutcomeParams struct {
	RunID      string
	Kind       string
	Target     string
	Version    uint64
	Address    string
	Outcome    string
	Signature  *string
	Message    *string
	Attempts   int32
	Error      *string
	RecordedAt time.Time
}

// ListOutcomesByVersionParams filters the outcome history of one version.
type ListOutcomesByVersionParams struct {
	Version uint64
	Kind    string // empty matches every kind
	Limit   int32
}

const runColumns = `id, kind, target, mode, source, started_at, finished_at, total, failed, counts`

const outcomeColumns = `id, run_id, kind, target, version, address, outcome, signature, message, attempts, error, recorded_at`

// CreateRun inserts a new run.
func (s *Store) CreateRun(ctx context.Context, params CreateRunParams) (*Run, error) {
	rows, err := s.pool.Query(ctx, `
		INSERT INTO reconcile_runs (id, kind, target, mode, source, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+runColumns,
		params.ID, params.Kind, params.Target, params.Mode, params.Source, params.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	run, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[Run])
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// FinishRun stores the final tallies of a run.
func (s *Store) FinishRun(ctx context.Context, params FinishRunParams) error {
	counts := params.Counts
	if counts == nil {
		counts = map[string]int{}
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE reconcile_runs
		SET finished_at = $2, total = $3, failed = $4, counts = $5
		WHERE id = $1`,
		params.ID, params.FinishedAt, params.Total, params.Failed, counts,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", params.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s: %w", params.ID, ErrNotFound)
	}
	return nil
}

// GetRun retrieves a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+runColumns+` FROM reconcile_runs WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	run, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[Run])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int32) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+runColumns+` FROM reconcile_runs
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	runs, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[Run])
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// RecordOutcome inserts one version outcome.
func (s *Store) RecordOutcome(ctx context.Context, params RecordOutcomeParams) (*Outcome, error) {
	version, err := toBigint(params.Version)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		INSERT INTO reconcile_outcomes (run_id, kind, target, version, address, outcome, signature, message, attempts, error, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+outcomeColumns,
		params.RunID, params.Kind, params.Target, version, params.Address, params.Outcome,
		params.Signature, params.Message, params.Attempts, params.Error, params.RecordedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record outcome for version %d: %w", params.Version, err)
	}
	outcome, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[Outcome])
	if err != nil {
		return nil, fmt.Errorf("failed to record outcome for version %d: %w", params.Version, err)
	}
	return outcome, nil
}

// ListOutcomesByVersion returns the history of one version, newest first.
func (s *Store) ListOutcomesByVersion(ctx context.Context, params ListOutcomesByVersionParams) ([]*Outcome, error) {
	version, err := toBigint(params.Version)
	if err != nil {
		return nil, err
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+outcomeColumns+` FROM reconcile_outcomes
		WHERE version = $1 AND ($2::text = '' OR kind = $2)
		ORDER BY recorded_at DESC, id DESC
		LIMIT $3`, version, params.Kind, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes for version %d: %w", params.Version, err)
	}
	outcomes, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[Outcome])
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes for version %d: %w", params.Version, err)
	}
	return outcomes, nil
}

// versions are u64 on-chain but BIGINT in Postgres.
func toBigint(version uint64) (int64, error) {
	if version > math.MaxInt64 {
		return 0, fmt.Errorf("version %d exceeds the storable range", version)
	}
	return int64(version), nil
}
