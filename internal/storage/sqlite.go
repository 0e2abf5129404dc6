package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gateway-fm/dcaload/pkg/types"
)

// unmarshalJSON unmarshals JSON and logs any errors without failing.
// Used for non-critical JSON fields so a corrupt row does not fail a query.
func unmarshalJSON(data string, v any, field string, runID string) {
	if err := json.Unmarshal([]byte(data), v); err != nil {
		slog.Warn("failed to unmarshal JSON field",
			"field", field,
			"runID", runID,
			"error", err.Error(),
			"dataLen", len(data))
	}
}

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

var _ Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL so the status API can read while the driver writes
	dsn := fmt.Sprintf("%s?_journal=WAL&_sync=NORMAL&_foreign_keys=ON", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLiteStorage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// migrate creates the schema when missing.
func (s *SQLiteStorage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		endpoint TEXT NOT NULL,
		chain TEXT DEFAULT '',
		signer TEXT NOT NULL,
		state TEXT DEFAULT 'running',
		start_block INTEGER NOT NULL,
		end_block INTEGER DEFAULT 0,
		duration_blocks INTEGER NOT NULL,
		bursts INTEGER DEFAULT 0,
		attempts INTEGER DEFAULT 0,
		submitted INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		initial_balance TEXT NOT NULL,
		final_balance TEXT,
		total_spent TEXT,
		error_message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);

	CREATE TABLE IF NOT EXISTS block_samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		block INTEGER NOT NULL,
		elapsed_blocks INTEGER NOT NULL,
		attempts INTEGER DEFAULT 0,
		submitted INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		outcomes TEXT,
		fee_spent TEXT,
		balance TEXT,
		ref_time INTEGER DEFAULT 0,
		proof_size INTEGER DEFAULT 0,
		weight_known INTEGER DEFAULT 0,
		duration_ms INTEGER DEFAULT 0,
		timestamp DATETIME NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_block_samples_run ON block_samples(run_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// StartRun inserts a new run record.
func (s *SQLiteStorage) StartRun(ctx context.Context, run types.RunSummary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, endpoint, chain, signer, state, start_block, end_block,
			duration_blocks, initial_balance)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.StartedAt, run.Endpoint, run.Chain, run.Signer, run.State, run.StartBlock, run.StartBlock,
		run.DurationBlocks, run.InitialBalance)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// RecordBurst stores one block sample and advances the run's progress
// columns in the same transaction.
func (s *SQLiteStorage) RecordBurst(ctx context.Context, runID string, burst types.BurstSummary) error {
	outcomesJSON, err := json.Marshal(burst.Outcomes)
	if err != nil {
		return fmt.Errorf("failed to marshal outcomes: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE runs SET
			end_block = ?,
			bursts = bursts + 1,
			attempts = attempts + ?,
			submitted = submitted + ?,
			failed = failed + ?
		WHERE id = ?
	`, burst.Block, burst.Attempts, burst.Submitted, burst.Failed, runID)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, runID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO block_samples (run_id, block, elapsed_blocks, attempts, submitted, failed, outcomes,
			fee_spent, balance, ref_time, proof_size, weight_known, duration_ms, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, burst.Block, burst.ElapsedBlocks, burst.Attempts, burst.Submitted, burst.Failed, string(outcomesJSON),
		nullString(burst.FeeSpent), nullString(burst.Balance), burst.RefTime, burst.ProofSize, burst.WeightKnown,
		burst.DurationMs, burst.Timestamp)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// FinishRun writes the final state and totals of a run.
func (s *SQLiteStorage) FinishRun(ctx context.Context, run types.RunSummary) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE runs SET
			completed_at = ?,
			state = ?,
			end_block = ?,
			bursts = ?,
			attempts = ?,
			submitted = ?,
			failed = ?,
			final_balance = ?,
			total_spent = ?,
			error_message = ?
		WHERE id = ?
	`, nullTime(run.CompletedAt), run.State, run.EndBlock, run.Bursts, run.Attempts, run.Submitted, run.Failed,
		nullString(run.FinalBalance), nullString(run.TotalSpent), nullString(run.Error), run.ID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, run.ID)
	}
	return nil
}

// GetRun retrieves a single run by ID.
func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (*types.RunSummary, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns a page of runs, newest first.
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit, offset int) (*types.PaginatedRuns, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&total); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []types.RunSummary{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &types.PaginatedRuns{
		Runs:   runs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}, nil
}

// GetBlockSamples returns the samples of a run in block order.
func (s *SQLiteStorage) GetBlockSamples(ctx context.Context, runID string) ([]types.BurstSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT block, elapsed_blocks, attempts, submitted, failed, outcomes, fee_spent, balance,
			ref_time, proof_size, weight_known, duration_ms, timestamp
		FROM block_samples
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	samples := []types.BurstSummary{}
	for rows.Next() {
		var b types.BurstSummary
		var outcomesJSON, feeSpent, balance sql.NullString
		err := rows.Scan(&b.Block, &b.ElapsedBlocks, &b.Attempts, &b.Submitted, &b.Failed, &outcomesJSON,
			&feeSpent, &balance, &b.RefTime, &b.ProofSize, &b.WeightKnown, &b.DurationMs, &b.Timestamp)
		if err != nil {
			return nil, err
		}
		if outcomesJSON.Valid && outcomesJSON.String != "" && outcomesJSON.String != "null" {
			unmarshalJSON(outcomesJSON.String, &b.Outcomes, "outcomes", runID)
		}
		b.FeeSpent = feeSpent.String
		b.Balance = balance.String
		samples = append(samples, b)
	}
	return samples, rows.Err()
}

// DeleteRun deletes a run and its samples.
func (s *SQLiteStorage) DeleteRun(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
