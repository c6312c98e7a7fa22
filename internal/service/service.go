// Package service is the transport-agnostic job API: submit a mapping job,
// poll its status, fetch its result. Schema errors are rejected here, before
// any stage runs; data-quality problems never are.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/formpilot/fieldmap/constants"
	"github.com/formpilot/fieldmap/internal/async"
	"github.com/formpilot/fieldmap/internal/common"
	"github.com/formpilot/fieldmap/internal/entity"
	"github.com/formpilot/fieldmap/internal/repository"
)

// Service exposes the job API over a checkpoint store and a queue.
type Service struct {
	store  repository.Store
	queue  async.Queue
	logger *slog.Logger
}

func NewService(store repository.Store, queue async.Queue, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, queue: queue, logger: logger}
}

// Submit validates the target schema, persists the initial checkpoint, and
// enqueues the job. Returns the new job id.
func (s *Service) Submit(ctx context.Context, sources []entity.SourceField, targets []entity.TargetField, opts entity.JobOptions) (uuid.UUID, error) {
	if err := validateTargets(targets); err != nil {
		s.logger.Warn("submit.rejected", "err", err)
		return uuid.Nil, err
	}
	if err := validateOptions(opts); err != nil {
		s.logger.Warn("submit.rejected", "err", err)
		return uuid.Nil, err
	}
	sources = normalizeSources(sources)

	now := time.Now().UTC()
	state := &entity.ProcessingState{
		JobID:        uuid.New(),
		Stage:        constants.StageClassify,
		Status:       constants.JobStatusQueued,
		Options:      opts,
		SourceFields: sources,
		TargetFields: cloneTargets(targets),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.SaveCheckpoint(ctx, state); err != nil {
		if errors.Is(err, common.ErrStoreUnavailable) {
			return uuid.Nil, common.UnavailableError("checkpoint store unavailable")
		}
		return uuid.Nil, common.InternalError("persist job failed")
	}
	if err := s.queue.Enqueue(ctx, async.Job{JobID: state.JobID, SubmittedAt: now}); err != nil {
		return uuid.Nil, common.InternalError("enqueue job failed")
	}
	s.logger.Info("submit.accepted",
		"job_id", state.JobID, "sources", len(sources), "targets", len(targets),
		"hint", opts.DocumentTypeHint)
	return state.JobID, nil
}

// GetStatus returns the job's stage, attempt and status.
func (s *Service) GetStatus(ctx context.Context, jobID uuid.UUID) (entity.StatusView, error) {
	state, err := s.store.LoadCheckpoint(ctx, jobID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return entity.StatusView{}, common.NotFoundError("job not found")
		}
		return entity.StatusView{}, common.InternalError("load job failed")
	}
	return entity.StatusView{
		JobID:   state.JobID,
		Stage:   state.Stage,
		Attempt: state.Attempt,
		Status:  state.Status,
	}, nil
}

// GetResult returns the finished result, or pending=true while the job is
// still working.
func (s *Service) GetResult(ctx context.Context, jobID uuid.UUID) (*entity.Result, bool, error) {
	state, err := s.store.LoadCheckpoint(ctx, jobID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, false, common.NotFoundError("job not found")
		}
		return nil, false, common.InternalError("load job failed")
	}
	if !state.Stage.Terminal() {
		return nil, true, nil
	}
	return &entity.Result{
		JobID:    state.JobID,
		Status:   state.Status,
		Mappings: state.CurrentMappings,
		Warnings: state.Warnings,
	}, false, nil
}

// Cancel flags the job; the orchestrator honors the flag at the next stage
// boundary. Cancelling a finished job is a no-op.
func (s *Service) Cancel(ctx context.Context, jobID uuid.UUID) error {
	state, err := s.store.LoadCheckpoint(ctx, jobID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.NotFoundError("job not found")
		}
		return common.InternalError("load job failed")
	}
	if state.Stage.Terminal() || state.Cancelled {
		return nil
	}
	state.Cancelled = true
	state.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveCheckpoint(ctx, state); err != nil {
		return common.InternalError("persist cancel failed")
	}
	s.logger.Info("job.cancel_requested", "job_id", jobID)
	return nil
}

// validateTargets enforces the FatalError taxonomy: malformed schemas are
// rejected up front so jobs never reach FAILED from data quality alone.
func validateTargets(targets []entity.TargetField) error {
	if len(targets) == 0 {
		return common.InvalidArgumentError("target schema must contain at least one field")
	}
	seen := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return common.InvalidArgumentError("target field name must not be empty")
		}
		if _, dup := seen[name]; dup {
			return common.InvalidArgumentErrorf("duplicate target field name %q", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

func validateOptions(opts entity.JobOptions) error {
	v := common.NewValidator()
	v.Field("document_type_hint", opts.DocumentTypeHint, common.MaxLength(64))
	v.Field("threshold", opts.Threshold, common.UnitInterval)
	v.Field("max_attempts", opts.MaxAttempts, common.NonNegativeInt)
	for name, w := range opts.Weights {
		v.Field("weights."+name, w, common.UnitInterval)
	}
	return common.ValidateAndReturnError(v)
}

// normalizeSources drops entries violating the upstream contract (empty
// names) and coerces type guesses onto the closed enum. The core never
// rejects a source field for an unrecognized type.
func normalizeSources(sources []entity.SourceField) []entity.SourceField {
	out := make([]entity.SourceField, 0, len(sources))
	for _, f := range sources {
		if strings.TrimSpace(f.Name) == "" {
			continue
		}
		f.Type = constants.ParseFieldType(string(f.Type))
		out = append(out, f)
	}
	return out
}

func cloneTargets(targets []entity.TargetField) []entity.TargetField {
	out := make([]entity.TargetField, len(targets))
	copy(out, targets)
	for i := range out {
		out[i].Type = constants.ParseFieldType(string(out[i].Type))
	}
	return out
}
