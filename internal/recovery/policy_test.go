package recovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formpilot/fieldmap/internal/entity"
	"github.com/formpilot/fieldmap/internal/mapping"
	"github.com/formpilot/fieldmap/internal/scorer"
)

func lowConfidence() []entity.ValidationFailure {
	return []entity.ValidationFailure{{Kind: entity.BelowMinimumConfidence, TargetName: "email"}}
}

func missingRequired() []entity.ValidationFailure {
	return []entity.ValidationFailure{{Kind: entity.MissingRequiredField, TargetName: "email"}}
}

func TestDecideRetriesFirst(t *testing.T) {
	p := NewPolicy(3, nil)
	d := p.Decide(1, lowConfidence(), mapping.DefaultConfig())

	assert.Equal(t, ActionRetry, d.Action)
	assert.InDelta(t, mapping.DefaultThreshold-0.10, d.NextConfig.Threshold, 1e-9)
}

func TestDecideReextractsForPersistentMissingRequired(t *testing.T) {
	p := NewPolicy(3, nil)

	// Missing required on the first attempt is still a plain retry.
	d := p.Decide(1, missingRequired(), mapping.DefaultConfig())
	assert.Equal(t, ActionRetry, d.Action)

	// Still missing after an adjusted retry: ask upstream for more.
	d = p.Decide(2, missingRequired(), mapping.DefaultConfig())
	assert.Equal(t, ActionReextract, d.Action)
}

func TestDecideAcceptsWhenExhausted(t *testing.T) {
	p := NewPolicy(3, nil)
	d := p.Decide(3, missingRequired(), mapping.DefaultConfig())
	assert.Equal(t, ActionAccept, d.Action)

	p = NewPolicy(1, nil)
	d = p.Decide(1, lowConfidence(), mapping.DefaultConfig())
	assert.Equal(t, ActionAccept, d.Action, "single-attempt policy never retries")
}

func TestAdjustSchedule(t *testing.T) {
	cfg := mapping.DefaultConfig()

	after1 := Adjust(cfg, 1)
	assert.InDelta(t, 0.50, after1.Threshold, 1e-9)
	assert.InDelta(t, cfg.Weights[scorer.StrategyTokenOverlap]+0.05, after1.Weights[scorer.StrategyTokenOverlap], 1e-9)
	assert.InDelta(t, cfg.Weights[scorer.StrategyLexical]-0.05, after1.Weights[scorer.StrategyLexical], 1e-9)

	after2 := Adjust(after1, 2)
	assert.InDelta(t, 0.45, after2.Threshold, 1e-9)
	assert.Equal(t, after1.Weights, after2.Weights, "weight shift happens once")

	after3 := Adjust(after2, 3)
	assert.InDelta(t, 0.45, after3.Threshold, 1e-9, "threshold floor holds")
}

func TestAdjustDoesNotMutateInput(t *testing.T) {
	cfg := mapping.DefaultConfig()
	origLex := cfg.Weights[scorer.StrategyLexical]
	_ = Adjust(cfg, 1)
	assert.Equal(t, origLex, cfg.Weights[scorer.StrategyLexical])
}

func TestAdjustReplayIsDeterministic(t *testing.T) {
	replay := func() mapping.Config {
		cfg := mapping.DefaultConfig()
		for attempt := 1; attempt <= 2; attempt++ {
			cfg = Adjust(cfg, attempt)
		}
		return cfg
	}
	a, b := replay(), replay()
	assert.Equal(t, a.Threshold, b.Threshold)
	assert.Equal(t, a.Weights, b.Weights)
}

func TestBestAttemptPrefersFewerFailures(t *testing.T) {
	var best BestAttempt

	first := []entity.FieldMapping{{TargetName: "email", Confidence: 0.7}}
	require.True(t, best.Observe(first, missingRequired()))

	// Fewer failures wins even with lower confidence.
	second := []entity.FieldMapping{{TargetName: "email", Confidence: 0.5}}
	require.True(t, best.Observe(second, nil))

	// More failures never replaces the best.
	third := []entity.FieldMapping{{TargetName: "email", Confidence: 0.99}}
	require.False(t, best.Observe(third, lowConfidence()))

	got, failures := best.Best()
	assert.Equal(t, second, got)
	assert.Empty(t, failures)
}

func TestBestAttemptBreaksTiesByMeanConfidence(t *testing.T) {
	var best BestAttempt
	best.Observe([]entity.FieldMapping{{Confidence: 0.5}}, lowConfidence())
	require.True(t, best.Observe([]entity.FieldMapping{{Confidence: 0.8}}, lowConfidence()))
	require.False(t, best.Observe([]entity.FieldMapping{{Confidence: 0.6}}, lowConfidence()))

	got, _ := best.Best()
	assert.Equal(t, 0.8, got[0].Confidence)
}
