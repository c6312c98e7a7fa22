package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/formpilot/fieldmap/internal/common"
	"github.com/formpilot/fieldmap/internal/entity"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS map_job (
	job_id     UUID PRIMARY KEY,
	stage      TEXT NOT NULL,
	status     TEXT NOT NULL,
	attempt    INTEGER NOT NULL,
	state_json JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS job_lease (
	job_id     UUID PRIMARY KEY,
	owner      TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_map_job_status ON map_job(status, updated_at);
`

// PostgresStore is the shared checkpoint store for multi-node deployments.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore creates a pgx pool, pings it, and runs migrations.
func NewPostgresStore(ctx context.Context, cfg common.StoreConfig, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("store.postgres.connecting")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pc.MaxConns = cfg.MaxConns
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "fieldmap"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = cfg.StatementTimeout.String()
	}

	dialCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Info("store.postgres.connected")
	return &PostgresStore{pool: pool, logger: logger}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveCheckpoint(ctx context.Context, state *entity.ProcessingState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO map_job (job_id, stage, status, attempt, state_json, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (job_id) DO UPDATE SET
			stage = EXCLUDED.stage,
			status = EXCLUDED.status,
			attempt = EXCLUDED.attempt,
			state_json = EXCLUDED.state_json,
			updated_at = EXCLUDED.updated_at`,
		state.JobID, string(state.Stage), string(state.Status), state.Attempt,
		raw, state.CreatedAt.UTC(), state.UpdatedAt.UTC())
	if err != nil {
		s.logger.Error("store.checkpoint.failed", "job_id", state.JobID, "err", err)
		return common.WrapError(err, "save checkpoint")
	}
	return nil
}

func (s *PostgresStore) LoadCheckpoint(ctx context.Context, jobID uuid.UUID) (*entity.ProcessingState, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state_json FROM map_job WHERE job_id = $1`, jobID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, common.WrapError(err, "load checkpoint")
	}
	var state entity.ProcessingState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &state, nil
}

func (s *PostgresStore) AcquireLease(ctx context.Context, jobID uuid.UUID, owner string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO job_lease (job_id, owner, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (job_id) DO UPDATE SET
			owner = EXCLUDED.owner,
			expires_at = EXCLUDED.expires_at
		WHERE job_lease.owner = EXCLUDED.owner
		   OR job_lease.expires_at < $4`,
		jobID, owner, now.Add(ttl), now)
	if err != nil {
		return false, common.WrapError(err, "acquire lease")
	}
	if tag.RowsAffected() == 0 {
		return false, common.ErrLeaseHeld
	}
	return true, nil
}

func (s *PostgresStore) ReleaseLease(ctx context.Context, jobID uuid.UUID, owner string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM job_lease WHERE job_id = $1 AND owner = $2`, jobID, owner)
	return common.WrapError(err, "release lease")
}

func (s *PostgresStore) DeleteJob(ctx context.Context, jobID uuid.UUID) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM map_job WHERE job_id = $1`, jobID); err != nil {
		return common.WrapError(err, "delete job")
	}
	_, err := s.pool.Exec(ctx,
		`DELETE FROM job_lease WHERE job_id = $1`, jobID)
	return common.WrapError(err, "delete job lease")
}
