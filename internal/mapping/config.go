package mapping

import "github.com/formpilot/fieldmap/internal/scorer"

// Default tuning values. These are tunable parameters, not contracts.
const (
	DefaultCandidateFloor   = 0.30
	DefaultThreshold        = 0.60
	DefaultWeakAcceptMargin = 0.10
	DefaultAliasFloor       = 0.90
	DefaultValueBoost       = 0.05
)

// Config holds thresholds and strategy weights for one mapping pass.
type Config struct {
	// Weights per strategy name (scorer.StrategyLexical etc). Missing
	// entries default; weights are used as given, not renormalized.
	Weights map[string]float64

	// CandidateFloor is the minimum composite for a pair to be considered.
	CandidateFloor float64

	// Threshold is the minimum composite for a pair to be accepted. An
	// unmapped field beats a low-confidence guess.
	Threshold float64

	// WeakAcceptMargin flags accepted mappings within this margin above
	// Threshold for human review.
	WeakAcceptMargin float64

	// AliasFloor is the minimum composite granted when the pair is a
	// configured alias, regardless of the weighted sum.
	AliasFloor float64

	// ValueBoost is added when the source value matches the target type's
	// value pattern (email, phone, date, numeric, currency, boolean).
	ValueBoost float64

	// MergeDocuments switches target uniqueness from per-target to
	// per-(target, source document).
	MergeDocuments bool

	// Rules is the alias/pattern rule set for the alias strategy.
	Rules *scorer.Rules
}

// DefaultWeights returns the default strategy weighting.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		scorer.StrategyLexical:      0.30,
		scorer.StrategyTokenOverlap: 0.25,
		scorer.StrategyType:         0.25,
		scorer.StrategyAlias:        0.20,
	}
}

// DefaultConfig returns the default mapping configuration.
func DefaultConfig() Config {
	return Config{
		Weights:          DefaultWeights(),
		CandidateFloor:   DefaultCandidateFloor,
		Threshold:        DefaultThreshold,
		WeakAcceptMargin: DefaultWeakAcceptMargin,
		AliasFloor:       DefaultAliasFloor,
		ValueBoost:       DefaultValueBoost,
		Rules:            scorer.DefaultRules(),
	}
}

// withDefaults fills zero-valued fields so a partially specified override
// still behaves sanely.
func (c Config) withDefaults() Config {
	if c.Weights == nil {
		c.Weights = DefaultWeights()
	}
	if c.CandidateFloor <= 0 {
		c.CandidateFloor = DefaultCandidateFloor
	}
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.WeakAcceptMargin <= 0 {
		c.WeakAcceptMargin = DefaultWeakAcceptMargin
	}
	if c.AliasFloor <= 0 {
		c.AliasFloor = DefaultAliasFloor
	}
	if c.ValueBoost < 0 {
		c.ValueBoost = 0
	}
	if c.Rules == nil {
		c.Rules = scorer.DefaultRules()
	}
	return c
}

func (c Config) weight(strategy string) float64 {
	if w, ok := c.Weights[strategy]; ok {
		return w
	}
	return DefaultWeights()[strategy]
}
