package mapping

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formpilot/fieldmap/constants"
	"github.com/formpilot/fieldmap/internal/entity"
	"github.com/formpilot/fieldmap/internal/scorer"
)

func src(name, value string, t constants.FieldType) entity.SourceField {
	return entity.SourceField{Name: name, Value: value, Type: t}
}

func tgt(name string, t constants.FieldType, required bool) entity.TargetField {
	return entity.TargetField{Name: name, Type: t, Required: required}
}

func runMap(t *testing.T, sources []entity.SourceField, targets []entity.TargetField, cfg Config) []entity.FieldMapping {
	t.Helper()
	return NewEngine(nil).Map(sources, targets, cfg, scorer.NewCache())
}

func TestMapExactNameMatchScoresOne(t *testing.T) {
	sources := []entity.SourceField{src("first_name", "Jane", constants.FieldTypeName)}
	targets := []entity.TargetField{tgt("firstName", constants.FieldTypeName, true)}

	got := runMap(t, sources, targets, DefaultConfig())
	require.Len(t, got, 1)
	assert.Equal(t, "first_name", got[0].SourceName)
	assert.Equal(t, "firstName", got[0].TargetName)
	assert.Equal(t, 1.0, got[0].Confidence)
	assert.False(t, got[0].Flagged)
	assert.Equal(t, "Jane", got[0].Value)
}

func TestMapNonExactNeverReachesOne(t *testing.T) {
	sources := []entity.SourceField{src("email_address", "jane@example.com", constants.FieldTypeEmail)}
	targets := []entity.TargetField{tgt("email", constants.FieldTypeEmail, true)}

	got := runMap(t, sources, targets, DefaultConfig())
	require.Len(t, got, 1)
	assert.Greater(t, got[0].Confidence, DefaultThreshold)
	assert.Less(t, got[0].Confidence, 1.0)
}

func TestMapRejectsUnrelatedNames(t *testing.T) {
	sources := []entity.SourceField{src("favorite_color", "blue", constants.FieldTypeText)}
	targets := []entity.TargetField{tgt("annual_income", constants.FieldTypeCurrency, false)}

	got := runMap(t, sources, targets, DefaultConfig())
	assert.Empty(t, got, "below-threshold candidates must stay unmapped")
}

func TestMapOneToOneAssignment(t *testing.T) {
	// Two sources compete for one target; the better composite wins and
	// the loser is not assigned anywhere else.
	sources := []entity.SourceField{
		src("email", "jane@example.com", constants.FieldTypeEmail),
		src("email_address", "backup@example.com", constants.FieldTypeEmail),
	}
	targets := []entity.TargetField{tgt("email", constants.FieldTypeEmail, true)}

	got := runMap(t, sources, targets, DefaultConfig())
	require.Len(t, got, 1)
	assert.Equal(t, "email", got[0].SourceName)
	assert.Equal(t, 1.0, got[0].Confidence)
}

func TestMapNoDuplicateTargetsOrSources(t *testing.T) {
	sources := []entity.SourceField{
		src("first_name", "Jane", constants.FieldTypeName),
		src("given_name", "Janet", constants.FieldTypeName),
		src("last_name", "Doe", constants.FieldTypeName),
	}
	targets := []entity.TargetField{
		tgt("first_name", constants.FieldTypeName, true),
		tgt("last_name", constants.FieldTypeName, true),
	}

	got := runMap(t, sources, targets, DefaultConfig())
	seenSource := map[string]bool{}
	seenTarget := map[string]bool{}
	for _, m := range got {
		assert.False(t, seenSource[m.SourceName], "source %s assigned twice", m.SourceName)
		assert.False(t, seenTarget[m.TargetName], "target %s assigned twice", m.TargetName)
		seenSource[m.SourceName] = true
		seenTarget[m.TargetName] = true
	}
}

func TestMapDeterministic(t *testing.T) {
	sources := []entity.SourceField{
		src("name", "Jane Doe", constants.FieldTypeName),
		src("email_addr", "jane@example.com", constants.FieldTypeEmail),
		src("phone_number", "(555) 123-4567", constants.FieldTypePhone),
		src("dob", "01/15/1990", constants.FieldTypeDate),
	}
	targets := []entity.TargetField{
		tgt("full_name", constants.FieldTypeName, true),
		tgt("email", constants.FieldTypeEmail, true),
		tgt("phone", constants.FieldTypePhone, false),
		tgt("date_of_birth", constants.FieldTypeDate, false),
	}

	first := runMap(t, sources, targets, DefaultConfig())
	for i := 0; i < 10; i++ {
		again := runMap(t, sources, targets, DefaultConfig())
		require.Equal(t, fmt.Sprintf("%#v", first), fmt.Sprintf("%#v", again))
	}
}

func TestMapDoesNotMutateInputs(t *testing.T) {
	sources := []entity.SourceField{src("email", "jane@example.com", constants.FieldTypeEmail)}
	targets := []entity.TargetField{tgt("email", constants.FieldTypeEmail, true)}
	origSources := make([]entity.SourceField, len(sources))
	copy(origSources, sources)
	origTargets := make([]entity.TargetField, len(targets))
	copy(origTargets, targets)

	runMap(t, sources, targets, DefaultConfig())
	assert.Equal(t, origSources, sources)
	assert.Equal(t, origTargets, targets)
}

func TestMapEmptyInputs(t *testing.T) {
	assert.Empty(t, runMap(t, nil, []entity.TargetField{tgt("email", constants.FieldTypeEmail, true)}, DefaultConfig()))
	assert.Empty(t, runMap(t, []entity.SourceField{src("email", "x@y.co", constants.FieldTypeEmail)}, nil, DefaultConfig()))
}

func TestMapFlagsWeakAccepts(t *testing.T) {
	cfg := DefaultConfig()
	for _, m := range runMap(t,
		[]entity.SourceField{src("applicant_phone_no", "(555) 123-4567", constants.FieldTypePhone)},
		[]entity.TargetField{tgt("phone", constants.FieldTypePhone, false)},
		cfg,
	) {
		if m.Confidence < cfg.Threshold+cfg.WeakAcceptMargin {
			assert.True(t, m.Flagged, "weak accept %s (%.2f) must be flagged", m.TargetName, m.Confidence)
		} else {
			assert.False(t, m.Flagged)
		}
	}
}

func TestMapAliasFloor(t *testing.T) {
	// dob vs date_of_birth: lexically distant, but a configured alias.
	sources := []entity.SourceField{src("dob", "01/15/1990", constants.FieldTypeDate)}
	targets := []entity.TargetField{tgt("date_of_birth", constants.FieldTypeDate, true)}

	got := runMap(t, sources, targets, DefaultConfig())
	require.Len(t, got, 1)
	assert.GreaterOrEqual(t, got[0].Confidence, DefaultAliasFloor)
	assert.Less(t, got[0].Confidence, 1.0)
}

func TestMapBreakdownCoversAllStrategies(t *testing.T) {
	got := runMap(t,
		[]entity.SourceField{src("email_address", "jane@example.com", constants.FieldTypeEmail)},
		[]entity.TargetField{tgt("email", constants.FieldTypeEmail, true)},
		DefaultConfig(),
	)
	require.Len(t, got, 1)
	for _, s := range []string{scorer.StrategyLexical, scorer.StrategyTokenOverlap, scorer.StrategyType, scorer.StrategyAlias} {
		v, ok := got[0].StrategyBreakdown[s]
		assert.True(t, ok, "breakdown missing %s", s)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestMapMergeDocumentsAllowsTargetPerDocument(t *testing.T) {
	sources := []entity.SourceField{
		{Name: "email", Value: "a@example.com", Type: constants.FieldTypeEmail, DocumentID: "doc-1"},
		{Name: "email", Value: "b@example.com", Type: constants.FieldTypeEmail, DocumentID: "doc-2"},
	}
	targets := []entity.TargetField{tgt("email", constants.FieldTypeEmail, true)}

	cfg := DefaultConfig()
	cfg.MergeDocuments = true
	got := runMap(t, sources, targets, cfg)
	require.Len(t, got, 2, "merge mode keys target uniqueness per document")
	assert.NotEqual(t, got[0].SourceDocumentID, got[1].SourceDocumentID)

	cfg.MergeDocuments = false
	got = runMap(t, sources, targets, cfg)
	require.Len(t, got, 1, "single-document mode keeps targets unique")
}

func TestMapCandidateFloorPrunes(t *testing.T) {
	// Raise the floor above any achievable composite for this pair.
	cfg := DefaultConfig()
	cfg.CandidateFloor = 0.99
	cfg.Threshold = 0.99

	got := runMap(t,
		[]entity.SourceField{src("email_address", "jane@example.com", constants.FieldTypeEmail)},
		[]entity.TargetField{tgt("email", constants.FieldTypeEmail, true)},
		cfg,
	)
	assert.Empty(t, got)
}

func TestMapThresholdOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Threshold = 0.45

	// A pair that fails the default threshold can pass a lowered one.
	sources := []entity.SourceField{src("contact", "jane@example.com", constants.FieldTypeEmail)}
	targets := []entity.TargetField{tgt("email_contact", constants.FieldTypeEmail, true)}

	strict := runMap(t, sources, targets, DefaultConfig())
	relaxed := runMap(t, sources, targets, cfg)
	assert.GreaterOrEqual(t, len(relaxed), len(strict))
}
