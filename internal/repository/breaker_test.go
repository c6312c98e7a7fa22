package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formpilot/fieldmap/internal/common"
	"github.com/formpilot/fieldmap/internal/entity"
)

// flakyStore fails every call until healed.
type flakyStore struct {
	failing bool
}

var errBackend = errors.New("backend down")

func (f *flakyStore) err() error {
	if f.failing {
		return errBackend
	}
	return nil
}

func (f *flakyStore) SaveCheckpoint(context.Context, *entity.ProcessingState) error {
	return f.err()
}

func (f *flakyStore) LoadCheckpoint(context.Context, uuid.UUID) (*entity.ProcessingState, error) {
	if f.failing {
		return nil, errBackend
	}
	return nil, common.ErrNotFound
}

func (f *flakyStore) AcquireLease(context.Context, uuid.UUID, string, time.Duration) (bool, error) {
	return false, f.err()
}

func (f *flakyStore) ReleaseLease(context.Context, uuid.UUID, string) error { return f.err() }
func (f *flakyStore) DeleteJob(context.Context, uuid.UUID) error            { return f.err() }
func (f *flakyStore) Close() error                                          { return nil }

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	inner := &flakyStore{failing: true}
	store := NewBreakerStore(inner, nil)
	ctx := context.Background()

	// Enough failures to trip: errors pass through until the breaker opens.
	var last error
	for i := 0; i < 10; i++ {
		last = store.SaveCheckpoint(ctx, sampleState())
		require.Error(t, last)
	}
	assert.ErrorIs(t, last, common.ErrStoreUnavailable, "open breaker short-circuits")
}

func TestBreakerNotFoundDoesNotTrip(t *testing.T) {
	store := NewBreakerStore(&flakyStore{}, nil)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_, err := store.LoadCheckpoint(ctx, uuid.New())
		assert.ErrorIs(t, err, common.ErrNotFound, "not-found is a domain answer, never unavailability")
	}
}

func TestBreakerLeaseContentionDoesNotTrip(t *testing.T) {
	sqlite := testStore(t)
	store := NewBreakerStore(sqlite, nil)
	ctx := context.Background()
	jobID := uuid.New()

	ok, err := store.AcquireLease(ctx, jobID, "worker-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	for i := 0; i < 20; i++ {
		ok, err := store.AcquireLease(ctx, jobID, "worker-b", time.Minute)
		assert.False(t, ok)
		assert.ErrorIs(t, err, common.ErrLeaseHeld, "contention is a domain answer, never unavailability")
	}
}

func TestBreakerPassesThroughWhenHealthy(t *testing.T) {
	sqlite := testStore(t)
	store := NewBreakerStore(sqlite, nil)
	ctx := context.Background()

	state := sampleState()
	require.NoError(t, store.SaveCheckpoint(ctx, state))

	got, err := store.LoadCheckpoint(ctx, state.JobID)
	require.NoError(t, err)
	assert.Equal(t, state.JobID, got.JobID)

	ok, err := store.AcquireLease(ctx, state.JobID, "worker-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, store.ReleaseLease(ctx, state.JobID, "worker-a"))
	require.NoError(t, store.DeleteJob(ctx, state.JobID))
}
