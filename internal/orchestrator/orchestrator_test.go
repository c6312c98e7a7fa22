package orchestrator

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formpilot/fieldmap/constants"
	"github.com/formpilot/fieldmap/internal/common"
	"github.com/formpilot/fieldmap/internal/entity"
)

// memStore is an in-memory checkpoint store that records every saved stage,
// so tests can assert the checkpoint-per-transition contract.
type memStore struct {
	mu     sync.Mutex
	states map[uuid.UUID][]byte
	saves  []constants.Stage
}

func newMemStore() *memStore {
	return &memStore{states: make(map[uuid.UUID][]byte)}
}

func (s *memStore) SaveCheckpoint(_ context.Context, state *entity.ProcessingState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	s.states[state.JobID] = raw
	s.saves = append(s.saves, state.Stage)
	return nil
}

func (s *memStore) LoadCheckpoint(_ context.Context, jobID uuid.UUID) (*entity.ProcessingState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.states[jobID]
	if !ok {
		return nil, common.ErrNotFound
	}
	var state entity.ProcessingState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *memStore) savedStages() []constants.Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]constants.Stage, len(s.saves))
	copy(out, s.saves)
	return out
}

func newJob(store *memStore, sources []entity.SourceField, targets []entity.TargetField, opts entity.JobOptions) uuid.UUID {
	state := &entity.ProcessingState{
		JobID:        uuid.New(),
		Stage:        constants.StageClassify,
		Status:       constants.JobStatusQueued,
		Options:      opts,
		SourceFields: sources,
		TargetFields: targets,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	_ = store.SaveCheckpoint(context.Background(), state)
	return state.JobID
}

func cleanSources() []entity.SourceField {
	return []entity.SourceField{
		{Name: "first_name", Value: "Jane", Type: constants.FieldTypeName},
		{Name: "email", Value: "jane@example.com", Type: constants.FieldTypeEmail},
	}
}

func cleanTargets() []entity.TargetField {
	return []entity.TargetField{
		{Name: "first_name", Type: constants.FieldTypeName, Required: true},
		{Name: "email", Type: constants.FieldTypeEmail, Required: true},
	}
}

func TestRunHappyPath(t *testing.T) {
	store := newMemStore()
	jobID := newJob(store, cleanSources(), cleanTargets(), entity.JobOptions{})

	final, err := New(store, nil, Config{}, nil).Run(context.Background(), jobID)
	require.NoError(t, err)

	assert.Equal(t, constants.StageFinalize, final.Stage)
	assert.Equal(t, constants.JobStatusCompleted, final.Status)
	assert.Equal(t, 1, final.Attempt)
	assert.Empty(t, final.Warnings)
	require.Len(t, final.CurrentMappings, 2)
	for _, m := range final.CurrentMappings {
		assert.Equal(t, 1.0, m.Confidence, "exact name matches score 1.0")
	}

	// Checkpoint after every transition: MAP, QA, FINALIZE all persisted.
	stages := store.savedStages()
	assert.Contains(t, stages, constants.StageMap)
	assert.Contains(t, stages, constants.StageQA)
	assert.Contains(t, stages, constants.StageFinalize)
}

func TestRunDegradedCompletion(t *testing.T) {
	// One source that matches nothing; one required target stays unmapped
	// through every attempt. The job must finish degraded, never FAILED.
	store := newMemStore()
	sources := []entity.SourceField{
		{Name: "favorite_color", Value: "blue", Type: constants.FieldTypeText},
	}
	targets := []entity.TargetField{
		{Name: "social_security_number", Type: constants.FieldTypeText, Required: true},
	}
	jobID := newJob(store, sources, targets, entity.JobOptions{})

	final, err := New(store, nil, Config{MaxAttempts: 3}, nil).Run(context.Background(), jobID)
	require.NoError(t, err)

	assert.Equal(t, constants.StageFinalize, final.Stage)
	assert.Equal(t, constants.JobStatusCompletedWW, final.Status)
	assert.LessOrEqual(t, final.Attempt, 3)
	assert.NotEmpty(t, final.Warnings)

	found := false
	for _, w := range final.Warnings {
		if strings.HasPrefix(w, string(entity.MissingRequiredField)) {
			found = true
		}
	}
	assert.True(t, found, "warnings must name the missing required field: %v", final.Warnings)
}

func TestRunAttemptNeverExceedsMax(t *testing.T) {
	store := newMemStore()
	sources := []entity.SourceField{{Name: "x", Value: "1", Type: constants.FieldTypeText}}
	targets := []entity.TargetField{{Name: "zzz", Type: constants.FieldTypeDate, Required: true}}

	for _, max := range []int{1, 2, 5} {
		jobID := newJob(store, sources, targets, entity.JobOptions{MaxAttempts: max})
		final, err := New(store, nil, Config{}, nil).Run(context.Background(), jobID)
		require.NoError(t, err)
		assert.LessOrEqual(t, final.Attempt, max, "maxAttempts=%d", max)
		assert.True(t, final.Stage.Terminal())
	}
}

func TestRunResumesFromCheckpoint(t *testing.T) {
	// Simulate a worker crash after MAP: the checkpoint sits at QA with
	// mappings in hand. A fresh orchestrator must finish the job without
	// redoing CLASSIFY.
	store := newMemStore()
	jobID := newJob(store, cleanSources(), cleanTargets(), entity.JobOptions{})

	orch := New(store, nil, Config{}, nil)
	final, err := orch.Run(context.Background(), jobID)
	require.NoError(t, err)

	// Rewind the terminal checkpoint to QA and run again.
	final.Stage = constants.StageQA
	final.Status = constants.JobStatusRunning
	final.Warnings = nil
	require.NoError(t, store.SaveCheckpoint(context.Background(), final))

	resumed, err := orch.Run(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, constants.StageFinalize, resumed.Stage)
	assert.Equal(t, constants.JobStatusCompleted, resumed.Status)
	assert.Equal(t, final.Profile, resumed.Profile)
}

func TestRunTerminalJobIsIdempotent(t *testing.T) {
	store := newMemStore()
	jobID := newJob(store, cleanSources(), cleanTargets(), entity.JobOptions{})
	orch := New(store, nil, Config{}, nil)

	first, err := orch.Run(context.Background(), jobID)
	require.NoError(t, err)
	saves := len(store.savedStages())

	second, err := orch.Run(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, saves, len(store.savedStages()), "terminal jobs must not re-checkpoint")
}

func TestRunCancelledJobFinalizesWithWarning(t *testing.T) {
	store := newMemStore()
	jobID := newJob(store, cleanSources(), cleanTargets(), entity.JobOptions{})

	state, err := store.LoadCheckpoint(context.Background(), jobID)
	require.NoError(t, err)
	state.Cancelled = true
	require.NoError(t, store.SaveCheckpoint(context.Background(), state))

	final, err := New(store, nil, Config{}, nil).Run(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, constants.StageFinalize, final.Stage)
	assert.Equal(t, constants.JobStatusCompletedWW, final.Status)
	assert.Contains(t, final.Warnings, "job cancelled by caller")
}

// cancelDuringRunStore flips the persisted Cancelled flag right after the
// n-th checkpoint, the same interleaving as an API cancel racing a worker.
type cancelDuringRunStore struct {
	*memStore
	flipAfter int
	count     int
}

func (s *cancelDuringRunStore) SaveCheckpoint(ctx context.Context, state *entity.ProcessingState) error {
	if err := s.memStore.SaveCheckpoint(ctx, state); err != nil {
		return err
	}
	s.count++
	if s.count == s.flipAfter {
		stored, err := s.memStore.LoadCheckpoint(ctx, state.JobID)
		if err != nil {
			return err
		}
		stored.Cancelled = true
		return s.memStore.SaveCheckpoint(ctx, stored)
	}
	return nil
}

func TestRunCancelPersistedMidRunIsHonored(t *testing.T) {
	inner := newMemStore()
	jobID := newJob(inner, cleanSources(), cleanTargets(), entity.JobOptions{})
	store := &cancelDuringRunStore{memStore: inner, flipAfter: 1}

	final, err := New(store, nil, Config{}, nil).Run(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, constants.StageFinalize, final.Stage)
	assert.Equal(t, constants.JobStatusCompletedWW, final.Status)
	assert.Contains(t, final.Warnings, "job cancelled by caller")

	saved, err := inner.LoadCheckpoint(context.Background(), jobID)
	require.NoError(t, err)
	assert.True(t, saved.Cancelled, "the durable cancel flag survives worker checkpoints")
}

func TestRunFatalOnEmptyTargets(t *testing.T) {
	// Submission validates this; a corrupted checkpoint must still land in
	// FAILED instead of crashing the worker.
	store := newMemStore()
	jobID := newJob(store, cleanSources(), nil, entity.JobOptions{})

	final, err := New(store, nil, Config{}, nil).Run(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, constants.StageFailed, final.Stage)
	assert.Equal(t, constants.JobStatusFailed, final.Status)
}

func TestRunUnknownJob(t *testing.T) {
	store := newMemStore()
	_, err := New(store, nil, Config{}, nil).Run(context.Background(), uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

// fakeReextractor swaps in a better candidate set on request.
type fakeReextractor struct {
	fresh  []entity.SourceField
	called int
}

func (f *fakeReextractor) Reextract(_ context.Context, _ uuid.UUID, _ []entity.SourceField) ([]entity.SourceField, error) {
	f.called++
	return f.fresh, nil
}

func TestRunReextractionRecoversMissingRequired(t *testing.T) {
	store := newMemStore()
	sources := []entity.SourceField{
		{Name: "unrelated_blob", Value: "x", Type: constants.FieldTypeText},
	}
	targets := []entity.TargetField{
		{Name: "email", Type: constants.FieldTypeEmail, Required: true},
	}
	jobID := newJob(store, sources, targets, entity.JobOptions{})

	re := &fakeReextractor{fresh: []entity.SourceField{
		{Name: "email", Value: "jane@example.com", Type: constants.FieldTypeEmail},
	}}
	orch := New(store, nil, Config{MaxAttempts: 3}, nil).WithReextractor(re)

	final, err := orch.Run(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, 1, re.called, "re-extraction fires once, on the second recovery")
	assert.Equal(t, constants.JobStatusCompleted, final.Status)
	require.Len(t, final.CurrentMappings, 1)
	assert.Equal(t, "email", final.CurrentMappings[0].TargetName)
}

func TestRunContextCancellationCheckpointsAndReturns(t *testing.T) {
	store := newMemStore()
	jobID := newJob(store, cleanSources(), cleanTargets(), entity.JobOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state, err := New(store, nil, Config{}, nil).Run(ctx, jobID)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, state.Stage.Terminal(), "job stays resumable")

	// The checkpoint survives for the next lease holder.
	saved, loadErr := store.LoadCheckpoint(context.Background(), jobID)
	require.NoError(t, loadErr)
	assert.Equal(t, state.Stage, saved.Stage)
}
