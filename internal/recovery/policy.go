// Package recovery decides what to do after a failed QA pass: re-run the
// mapping engine with adjusted parameters, ask upstream for fresh extraction,
// or accept a degraded result. Low confidence is never an error here; the
// policy exists to trade retries for a reviewable partial result.
package recovery

import (
	"log/slog"

	"github.com/formpilot/fieldmap/internal/entity"
	"github.com/formpilot/fieldmap/internal/mapping"
	"github.com/formpilot/fieldmap/internal/scorer"
)

// Action is the recovery decision for the next attempt.
type Action string

const (
	// ActionRetry re-runs MAP with the adjusted config.
	ActionRetry Action = "RETRY_ADJUSTED"
	// ActionReextract asks the extraction collaborator for new candidates
	// before re-running MAP. Signaled to the orchestrator, never invoked
	// directly from here.
	ActionReextract Action = "REQUEST_REEXTRACTION"
	// ActionAccept finalizes with the best attempt seen, degraded.
	ActionAccept Action = "ACCEPT_DEGRADED"
)

// Decision carries the chosen action and, for retries, the config for the
// next MAP pass.
type Decision struct {
	Action     Action
	NextConfig mapping.Config
	Reason     string
}

// Policy implements the recovery schedule.
type Policy struct {
	maxAttempts int
	logger      *slog.Logger
}

func NewPolicy(maxAttempts int, logger *slog.Logger) *Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Policy{maxAttempts: maxAttempts, logger: logger}
}

// Decide picks the next action given the attempt just completed (1-based)
// and its validation failures.
//
// Schedule: the first retry lowers the assignment threshold and leans harder
// on token overlap; later retries request re-extraction when required fields
// are still missing (fresh candidates beat re-scoring the same ones),
// otherwise keep lowering the threshold toward the QA floor.
func (p *Policy) Decide(attempt int, failures []entity.ValidationFailure, cfg mapping.Config) Decision {
	if attempt >= p.maxAttempts {
		return Decision{Action: ActionAccept, Reason: "attempts exhausted"}
	}

	next := Adjust(cfg, attempt)

	if attempt >= 2 && hasKind(failures, entity.MissingRequiredField) {
		p.logger.Info("recovery.reextract", "attempt", attempt)
		return Decision{
			Action:     ActionReextract,
			NextConfig: next,
			Reason:     "required fields unmatched after adjusted retry",
		}
	}

	p.logger.Info("recovery.retry", "attempt", attempt, "next_threshold", next.Threshold)
	return Decision{Action: ActionRetry, NextConfig: next, Reason: "qa failed, retrying adjusted"}
}

// Adjust derives the config for the attempt after the given one. The
// threshold never drops below the QA hard floor plus a small gap, so retries
// cannot manufacture mappings the gate would immediately reject. Exported so
// a resumed job can replay the schedule deterministically.
func Adjust(cfg mapping.Config, attempt int) mapping.Config {
	next := cfg
	next.Weights = make(map[string]float64, len(cfg.Weights))
	for k, v := range cfg.Weights {
		next.Weights[k] = v
	}

	next.Threshold -= 0.10
	if next.Threshold < 0.45 {
		next.Threshold = 0.45
	}
	if attempt == 1 {
		next.Weights[scorer.StrategyTokenOverlap] += 0.05
		if w := next.Weights[scorer.StrategyLexical]; w >= 0.05 {
			next.Weights[scorer.StrategyLexical] = w - 0.05
		}
	}
	return next
}

func hasKind(failures []entity.ValidationFailure, kind entity.FailureKind) bool {
	for _, f := range failures {
		if f.Kind == kind {
			return true
		}
	}
	return false
}

// BestAttempt tracks the best mapping seen across attempts: fewest validation
// failures first, then highest mean confidence.
type BestAttempt struct {
	mappings []entity.FieldMapping
	failures []entity.ValidationFailure
	seen     bool
}

// Observe records an attempt's outcome; returns true when it becomes the new
// best.
func (b *BestAttempt) Observe(mappings []entity.FieldMapping, failures []entity.ValidationFailure) bool {
	if !b.seen || better(mappings, failures, b.mappings, b.failures) {
		b.mappings = mappings
		b.failures = failures
		b.seen = true
		return true
	}
	return false
}

// Best returns the best attempt's mappings and outstanding failures.
func (b *BestAttempt) Best() ([]entity.FieldMapping, []entity.ValidationFailure) {
	return b.mappings, b.failures
}

func better(m1 []entity.FieldMapping, f1 []entity.ValidationFailure, m2 []entity.FieldMapping, f2 []entity.ValidationFailure) bool {
	if len(f1) != len(f2) {
		return len(f1) < len(f2)
	}
	return meanConfidence(m1) > meanConfidence(m2)
}

func meanConfidence(ms []entity.FieldMapping) float64 {
	if len(ms) == 0 {
		return 0
	}
	var sum float64
	for _, m := range ms {
		sum += m.Confidence
	}
	return sum / float64(len(ms))
}
