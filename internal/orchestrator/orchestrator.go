// Package orchestrator runs the per-job pipeline state machine:
// CLASSIFY -> MAP -> QA -> (RECOVER -> MAP) -> FINALIZE. A checkpoint is
// persisted after every stage transition, so a worker crash resumes at the
// last completed stage instead of restarting the job.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/formpilot/fieldmap/constants"
	"github.com/formpilot/fieldmap/internal/common"
	"github.com/formpilot/fieldmap/internal/entity"
	"github.com/formpilot/fieldmap/internal/mapping"
	"github.com/formpilot/fieldmap/internal/profiles"
	"github.com/formpilot/fieldmap/internal/qa"
	"github.com/formpilot/fieldmap/internal/recovery"
	"github.com/formpilot/fieldmap/internal/scorer"
)

// Reextractor supplies fresh source fields when recovery asks for
// re-extraction. Optional; without one the orchestrator falls back to an
// adjusted retry over the existing candidates.
type Reextractor interface {
	Reextract(ctx context.Context, jobID uuid.UUID, previous []entity.SourceField) ([]entity.SourceField, error)
}

// Config holds orchestration limits.
type Config struct {
	MaxAttempts  int
	StageTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 3
	}
	if c.StageTimeout <= 0 {
		c.StageTimeout = 2 * time.Minute
	}
	return c
}

// Store is the subset of the checkpoint store the orchestrator needs.
type Store interface {
	SaveCheckpoint(ctx context.Context, state *entity.ProcessingState) error
	LoadCheckpoint(ctx context.Context, jobID uuid.UUID) (*entity.ProcessingState, error)
}

// Orchestrator sequences stages for one job at a time. It owns no job state
// between calls; everything lives in the checkpoint.
type Orchestrator struct {
	store       Store
	registry    *profiles.Registry
	engine      *mapping.Engine
	reextractor Reextractor
	cfg         Config
	logger      *slog.Logger
}

func New(store Store, registry *profiles.Registry, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = profiles.Defaults()
	}
	return &Orchestrator{
		store:    store,
		registry: registry,
		engine:   mapping.NewEngine(logger),
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// WithReextractor installs the optional extraction collaborator hook.
func (o *Orchestrator) WithReextractor(r Reextractor) *Orchestrator {
	o.reextractor = r
	return o
}

// Run drives the job to a terminal stage, resuming from the last checkpoint.
// The only suspension points are stage boundaries: each one checkpoints, then
// checks cancellation and the stage clock before going on.
func (o *Orchestrator) Run(ctx context.Context, jobID uuid.UUID) (*entity.ProcessingState, error) {
	state, err := o.store.LoadCheckpoint(ctx, jobID)
	if err != nil {
		return nil, common.WrapError(err, "load job")
	}
	if state.Stage.Terminal() {
		return state, nil
	}

	state.Status = constants.JobStatusRunning
	cache := scorer.NewCache()
	maxAttempts := o.maxAttempts(state)

	for !state.Stage.Terminal() {
		if err := ctx.Err(); err != nil {
			// Worker shutdown mid-job: leave the checkpoint as is;
			// the next lease holder resumes at this stage.
			if saveErr := o.checkpoint(context.WithoutCancel(ctx), state); saveErr != nil {
				return state, saveErr
			}
			return state, err
		}
		if state.Cancelled {
			o.logger.Info("job.cancelled", "job_id", state.JobID, "stage", state.Stage)
			next, err := Next(state.Stage, EventCancelled)
			if err != nil {
				return state, err
			}
			state.Warnings = append(state.Warnings, "job cancelled by caller")
			state.Stage = next
			o.applyFinalize(state)
		} else {
			ev, err := o.runStage(ctx, state, cache, maxAttempts)
			if err != nil {
				return state, err
			}
			next, err := Next(state.Stage, ev)
			if err != nil {
				return state, err
			}
			o.logger.Info("job.transition",
				"job_id", state.JobID, "from", state.Stage, "event", ev, "to", next)
			state.Stage = next
			if next == constants.StageFinalize {
				o.applyFinalize(state)
			}
			if next == constants.StageFailed {
				state.Status = constants.JobStatusFailed
			}
		}
		if err := o.checkpoint(ctx, state); err != nil {
			return state, err
		}
	}
	return state, nil
}

// runStage executes the current stage once and returns the resulting event.
func (o *Orchestrator) runStage(ctx context.Context, state *entity.ProcessingState, cache *scorer.Cache, maxAttempts int) (Event, error) {
	started := time.Now()
	var ev Event
	switch state.Stage {
	case constants.StageClassify:
		ev = o.classify(state)
	case constants.StageMap:
		ev = o.mapStage(state, cache)
	case constants.StageQA:
		ev = o.qaStage(state, maxAttempts)
	case constants.StageRecover:
		ev = o.recoverStage(ctx, state, maxAttempts)
	default:
		return "", fmt.Errorf("cannot run stage %s", state.Stage)
	}

	// Stage execution is synchronous and CPU-bound; the wall-clock budget
	// is enforced at the boundary so a job never sits mid-stage forever.
	timedStage := state.Stage == constants.StageMap || state.Stage == constants.StageQA
	if elapsed := time.Since(started); timedStage && ev != EventFatal && elapsed > o.cfg.StageTimeout {
		o.logger.Warn("job.stage_timeout",
			"job_id", state.JobID, "stage", state.Stage, "elapsed", elapsed)
		state.Warnings = append(state.Warnings,
			fmt.Sprintf("stage %s exceeded budget %s", state.Stage, o.cfg.StageTimeout))
		if state.Attempt < maxAttempts {
			return EventTimeout, nil
		}
		return EventExhausted, nil
	}
	return ev, nil
}

// classify selects the mapping profile. With no hint the default profile is
// used and the stage is effectively a no-op.
func (o *Orchestrator) classify(state *entity.ProcessingState) Event {
	if len(state.TargetFields) == 0 {
		// Defensive: submission validates this, but a hand-edited
		// checkpoint must not crash a worker.
		state.Warnings = append(state.Warnings, "no target fields in schema")
		return EventFatal
	}
	_, name := o.registry.Select(state.Options.DocumentTypeHint)
	state.Profile = name
	state.Attempt = 1
	o.logger.Info("job.classified",
		"job_id", state.JobID, "hint", state.Options.DocumentTypeHint, "profile", name)
	return EventClassified
}

// mapStage runs the engine with the config for the current attempt.
func (o *Orchestrator) mapStage(state *entity.ProcessingState, cache *scorer.Cache) Event {
	cfg := o.configFor(state)
	state.CurrentMappings = o.engine.Map(state.SourceFields, state.TargetFields, cfg, cache)
	o.logger.Info("job.mapped",
		"job_id", state.JobID, "attempt", state.Attempt,
		"sources", len(state.SourceFields), "targets", len(state.TargetFields),
		"mappings", len(state.CurrentMappings))
	return EventMapped
}

// qaStage validates the current mappings and tracks the best attempt so far.
func (o *Orchestrator) qaStage(state *entity.ProcessingState, maxAttempts int) Event {
	gate := qa.NewGate(qa.Config{MergeDocuments: state.Options.MergeDocuments}, o.logger)
	rep := gate.Validate(state.CurrentMappings, state.TargetFields)
	state.ValidationFailures = rep.Failures

	var best recovery.BestAttempt
	if state.Attempt > 1 {
		best.Observe(state.BestMappings, state.BestFailures)
	}
	if best.Observe(state.CurrentMappings, rep.Failures) {
		state.BestMappings = state.CurrentMappings
		state.BestFailures = rep.Failures
	}

	if rep.IsValid {
		return EventQAPassed
	}
	if state.Attempt >= maxAttempts {
		return EventExhausted
	}
	return EventQAFailed
}

// recoverStage applies the recovery decision for the next attempt.
func (o *Orchestrator) recoverStage(ctx context.Context, state *entity.ProcessingState, maxAttempts int) Event {
	policy := recovery.NewPolicy(maxAttempts, o.logger)
	decision := policy.Decide(state.Attempt, state.ValidationFailures, o.configFor(state))

	switch decision.Action {
	case recovery.ActionAccept:
		return EventExhausted
	case recovery.ActionReextract:
		if o.reextractor != nil {
			fresh, err := o.reextractor.Reextract(ctx, state.JobID, state.SourceFields)
			if err != nil || len(fresh) == 0 {
				o.logger.Warn("job.reextract_failed", "job_id", state.JobID, "err", err)
				state.Warnings = append(state.Warnings, "re-extraction unavailable, retried with adjusted config")
			} else {
				state.SourceFields = fresh
				o.logger.Info("job.reextracted", "job_id", state.JobID, "sources", len(fresh))
			}
		} else {
			state.Warnings = append(state.Warnings, "re-extraction requested but no collaborator configured")
		}
	}

	state.Attempt++
	return EventRetry
}

// applyFinalize fills the caller-visible outcome from the best attempt.
func (o *Orchestrator) applyFinalize(state *entity.ProcessingState) {
	if state.BestMappings != nil || state.BestFailures != nil {
		state.CurrentMappings = state.BestMappings
	}
	for _, f := range state.BestFailures {
		state.Warnings = append(state.Warnings, f.String())
	}

	if len(state.Warnings) == 0 {
		state.Status = constants.JobStatusCompleted
	} else {
		state.Status = constants.JobStatusCompletedWW
	}
	o.logger.Info("job.finalized",
		"job_id", state.JobID, "status", state.Status,
		"mappings", len(state.CurrentMappings), "warnings", len(state.Warnings))
}

// configFor rebuilds the mapping config for the current attempt from the
// profile, per-job overrides, and the recovery schedule. Pure given the
// checkpoint, which keeps resumed jobs on the same trajectory.
func (o *Orchestrator) configFor(state *entity.ProcessingState) mapping.Config {
	cfg, _ := o.registry.Select(state.Profile)
	if state.Options.Threshold > 0 {
		cfg.Threshold = state.Options.Threshold
	}
	if len(state.Options.Weights) > 0 {
		cfg.Weights = state.Options.Weights
	}
	cfg.MergeDocuments = state.Options.MergeDocuments
	for a := 1; a < state.Attempt; a++ {
		cfg = recovery.Adjust(cfg, a)
	}
	return cfg
}

func (o *Orchestrator) maxAttempts(state *entity.ProcessingState) int {
	if state.Options.MaxAttempts > 0 {
		return state.Options.MaxAttempts
	}
	return o.cfg.MaxAttempts
}

// checkpoint persists the full state; called after every transition. The API
// cancels a job by flipping the stored Cancelled flag while a worker owns the
// row in memory, so the stored flag is adopted before the overwrite; the run
// loop then honors it at the next stage boundary.
func (o *Orchestrator) checkpoint(ctx context.Context, state *entity.ProcessingState) error {
	if !state.Cancelled {
		if stored, err := o.store.LoadCheckpoint(ctx, state.JobID); err == nil && stored.Cancelled {
			state.Cancelled = true
		}
	}
	state.UpdatedAt = time.Now().UTC()
	if err := o.store.SaveCheckpoint(ctx, state); err != nil {
		o.logger.Error("job.checkpoint_failed", "job_id", state.JobID, "err", err)
		return err
	}
	return nil
}
