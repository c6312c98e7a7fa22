package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/formpilot/fieldmap/internal/common"
	"github.com/formpilot/fieldmap/internal/entity"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS map_job (
	job_id     TEXT PRIMARY KEY,
	stage      TEXT NOT NULL,
	status     TEXT NOT NULL,
	attempt    INTEGER NOT NULL,
	state_json TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS job_lease (
	job_id     TEXT PRIMARY KEY,
	owner      TEXT NOT NULL,
	expires_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_map_job_status ON map_job(status, updated_at);
`

// SQLiteStore is the default single-node checkpoint store.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the database and runs migrations.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Info("store.sqlite.open", "path", path)
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, state *entity.ProcessingState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO map_job (job_id, stage, status, attempt, state_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			stage = excluded.stage,
			status = excluded.status,
			attempt = excluded.attempt,
			state_json = excluded.state_json,
			updated_at = excluded.updated_at`,
		state.JobID.String(), string(state.Stage), string(state.Status), state.Attempt,
		string(raw), state.CreatedAt.UTC().Format(time.RFC3339Nano),
		state.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		s.logger.Error("store.checkpoint.failed", "job_id", state.JobID, "err", err)
		return common.WrapError(err, "save checkpoint")
	}
	return nil
}

func (s *SQLiteStore) LoadCheckpoint(ctx context.Context, jobID uuid.UUID) (*entity.ProcessingState, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT state_json FROM map_job WHERE job_id = ?`, jobID.String()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, common.WrapError(err, "load checkpoint")
	}
	var state entity.ProcessingState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &state, nil
}

func (s *SQLiteStore) AcquireLease(ctx context.Context, jobID uuid.UUID, owner string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	expires := now.Add(ttl).Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO job_lease (job_id, owner, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			owner = excluded.owner,
			expires_at = excluded.expires_at
		WHERE job_lease.owner = excluded.owner
		   OR job_lease.expires_at < ?`,
		jobID.String(), owner, expires, now.Format(time.RFC3339Nano))
	if err != nil {
		return false, common.WrapError(err, "acquire lease")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, common.WrapError(err, "acquire lease")
	}
	if n == 0 {
		return false, common.ErrLeaseHeld
	}
	return true, nil
}

func (s *SQLiteStore) ReleaseLease(ctx context.Context, jobID uuid.UUID, owner string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM job_lease WHERE job_id = ? AND owner = ?`, jobID.String(), owner)
	return common.WrapError(err, "release lease")
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, jobID uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM map_job WHERE job_id = ?`, jobID.String()); err != nil {
		return common.WrapError(err, "delete job")
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM job_lease WHERE job_id = ?`, jobID.String())
	return common.WrapError(err, "delete job lease")
}
