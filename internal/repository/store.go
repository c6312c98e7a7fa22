// Package repository persists job checkpoints. One row per job, overwritten
// on every stage transition, plus a lease table guaranteeing at most one
// active worker per job.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/formpilot/fieldmap/internal/entity"
)

// Store is the checkpoint store used by the orchestrator and the job service.
type Store interface {
	// SaveCheckpoint upserts the full processing state, keyed by job id.
	SaveCheckpoint(ctx context.Context, state *entity.ProcessingState) error

	// LoadCheckpoint returns the last persisted state for the job, or
	// common.ErrNotFound.
	LoadCheckpoint(ctx context.Context, jobID uuid.UUID) (*entity.ProcessingState, error)

	// AcquireLease claims the job for owner until now+ttl. Returns
	// (false, common.ErrLeaseHeld) when another owner holds an unexpired
	// lease; re-acquiring as the holder renews it.
	AcquireLease(ctx context.Context, jobID uuid.UUID, owner string, ttl time.Duration) (bool, error)

	// ReleaseLease drops the lease if owner still holds it.
	ReleaseLease(ctx context.Context, jobID uuid.UUID, owner string) error

	// DeleteJob removes the checkpoint and lease rows (retention policy
	// lives outside this core).
	DeleteJob(ctx context.Context, jobID uuid.UUID) error

	Close() error
}
