// Package qa validates a completed assignment against the target schema's
// constraints. The gate never errors; it always returns a structured report.
package qa

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/formpilot/fieldmap/internal/entity"
	"github.com/formpilot/fieldmap/internal/scorer"
)

// DefaultMinConfidence is the hard floor below the assignment threshold; it
// catches upstream config drift rather than normal low-confidence rejects.
const DefaultMinConfidence = 0.40

// Config holds the gate's thresholds.
type Config struct {
	MinConfidence float64

	// MergeDocuments mirrors the engine setting: duplicate detection is
	// keyed per (target, source document) instead of per target.
	MergeDocuments bool
}

// Report is the gate's structured verdict. IsValid is true iff Failures is
// empty.
type Report struct {
	IsValid  bool
	Failures []entity.ValidationFailure
}

// Gate inspects finished mappings against the target schema.
type Gate struct {
	cfg    Config
	logger *slog.Logger
}

func NewGate(cfg Config, logger *slog.Logger) *Gate {
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultMinConfidence
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{cfg: cfg, logger: logger}
}

// Validate runs every check and collects all failures; it does not stop at
// the first one, so recovery can see the full picture.
func (g *Gate) Validate(mappings []entity.FieldMapping, targets []entity.TargetField) Report {
	var failures []entity.ValidationFailure

	byTarget := make(map[string][]entity.FieldMapping, len(mappings))
	dupKey := func(m entity.FieldMapping) string {
		if g.cfg.MergeDocuments {
			return m.TargetName + "\x00" + m.SourceDocumentID
		}
		return m.TargetName
	}
	byDupKey := make(map[string][]entity.FieldMapping, len(mappings))
	for _, m := range mappings {
		byTarget[m.TargetName] = append(byTarget[m.TargetName], m)
		byDupKey[dupKey(m)] = append(byDupKey[dupKey(m)], m)
	}

	targetTypes := make(map[string]entity.TargetField, len(targets))
	for _, t := range targets {
		targetTypes[t.Name] = t
	}

	// Required targets must be assigned.
	for _, t := range targets {
		if !t.Required {
			continue
		}
		if len(byTarget[t.Name]) == 0 {
			failures = append(failures, entity.ValidationFailure{
				Kind:       entity.MissingRequiredField,
				TargetName: t.Name,
				Detail:     "required target field has no mapping",
			})
		}
	}

	for _, m := range mappings {
		// Hard confidence floor.
		if m.Confidence < g.cfg.MinConfidence {
			failures = append(failures, entity.ValidationFailure{
				Kind:       entity.BelowMinimumConfidence,
				TargetName: m.TargetName,
				SourceName: m.SourceName,
				Detail:     fmt.Sprintf("confidence %.2f below floor %.2f", m.Confidence, g.cfg.MinConfidence),
			})
		}

		// Mapped value must look coercible to the declared target type.
		if t, ok := targetTypes[m.TargetName]; ok {
			if !scorer.ValueMatchesType(m.Value, t.Type) {
				failures = append(failures, entity.ValidationFailure{
					Kind:       entity.TypeMismatch,
					TargetName: m.TargetName,
					SourceName: m.SourceName,
					Detail:     fmt.Sprintf("value %q does not look like %s", m.Value, t.Type),
				})
			}
		}
	}

	// Structurally impossible given the engine's resolution, validated
	// anyway as a regression guard.
	for _, ms := range byDupKey {
		if len(ms) > 1 {
			failures = append(failures, entity.ValidationFailure{
				Kind:       entity.DuplicateAssignment,
				TargetName: ms[0].TargetName,
				Detail:     fmt.Sprintf("%d mappings share this target", len(ms)),
			})
		}
	}

	// Deterministic order for checkpointing and tests.
	sort.Slice(failures, func(i, j int) bool {
		if failures[i].Kind != failures[j].Kind {
			return failures[i].Kind < failures[j].Kind
		}
		if failures[i].TargetName != failures[j].TargetName {
			return failures[i].TargetName < failures[j].TargetName
		}
		return failures[i].SourceName < failures[j].SourceName
	})

	rep := Report{IsValid: len(failures) == 0, Failures: failures}
	if !rep.IsValid {
		g.logger.Info("qa.failed", "failures", len(failures))
	}
	return rep
}
