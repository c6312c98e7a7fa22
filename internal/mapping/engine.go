// Package mapping combines similarity signals into composite confidence
// scores and resolves the candidate matrix into a one-to-one assignment of
// source fields to target fields.
package mapping

import (
	"log/slog"
	"sort"

	"github.com/formpilot/fieldmap/constants"
	"github.com/formpilot/fieldmap/internal/entity"
	"github.com/formpilot/fieldmap/internal/scorer"
)

// patternedTypes are target types whose values can be checked against a
// pattern; only these earn the value boost.
var patternedTypes = map[constants.FieldType]struct{}{
	constants.FieldTypeEmail:    {},
	constants.FieldTypePhone:    {},
	constants.FieldTypeDate:     {},
	constants.FieldTypeNumeric:  {},
	constants.FieldTypeCurrency: {},
	constants.FieldTypeBoolean:  {},
}

// Engine produces field mappings. It is stateless apart from the per-job
// score cache handed to Map.
type Engine struct {
	logger *slog.Logger
}

func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// candidate is one scored (source, target) pair.
type candidate struct {
	si, ti    int
	composite float64
	typeMatch bool
	breakdown map[string]float64
}

// Map scores every (source, target) pair and resolves the matrix greedily by
// descending composite. Deterministic for identical inputs and config; never
// mutates its inputs. Empty sources or targets yields an empty result.
func (e *Engine) Map(sources []entity.SourceField, targets []entity.TargetField, cfg Config, cache *scorer.Cache) []entity.FieldMapping {
	cfg = cfg.withDefaults()
	if len(sources) == 0 || len(targets) == 0 {
		return nil
	}

	candidates := make([]candidate, 0, len(sources)*len(targets))
	for si, src := range sources {
		for ti, tgt := range targets {
			c := e.score(src, tgt, cfg, cache)
			if c.composite < cfg.CandidateFloor {
				continue
			}
			c.si, c.ti = si, ti
			candidates = append(candidates, c)
		}
	}

	// Descending composite; ties broken by exact type match, then shorter
	// target name, then source name, then target name.
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.composite != b.composite {
			return a.composite > b.composite
		}
		if a.typeMatch != b.typeMatch {
			return a.typeMatch
		}
		if len(targets[a.ti].Name) != len(targets[b.ti].Name) {
			return len(targets[a.ti].Name) < len(targets[b.ti].Name)
		}
		if sources[a.si].Name != sources[b.si].Name {
			return sources[a.si].Name < sources[b.si].Name
		}
		return targets[a.ti].Name < targets[b.ti].Name
	})

	usedSource := make(map[int]bool, len(sources))
	usedTarget := make(map[string]bool, len(targets))

	var out []entity.FieldMapping
	for _, c := range candidates {
		if c.composite < cfg.Threshold {
			// Candidates below the assignment threshold are never
			// accepted, even with no competition.
			continue
		}
		src, tgt := sources[c.si], targets[c.ti]
		targetKey := tgt.Name
		if cfg.MergeDocuments {
			targetKey = tgt.Name + "\x00" + src.DocumentID
		}
		if usedSource[c.si] || usedTarget[targetKey] {
			continue
		}
		usedSource[c.si] = true
		usedTarget[targetKey] = true

		m := entity.FieldMapping{
			SourceName:        src.Name,
			TargetName:        tgt.Name,
			SourceDocumentID:  src.DocumentID,
			Value:             src.Value,
			Confidence:        c.composite,
			StrategyBreakdown: c.breakdown,
			Flagged:           c.composite < cfg.Threshold+cfg.WeakAcceptMargin,
		}
		out = append(out, m)
		e.logger.Debug("mapping.accepted",
			"source", src.Name, "target", tgt.Name,
			"confidence", c.composite, "flagged", m.Flagged)
	}

	// Stable output order regardless of resolution order.
	sort.Slice(out, func(i, j int) bool {
		if out[i].TargetName != out[j].TargetName {
			return out[i].TargetName < out[j].TargetName
		}
		return out[i].SourceName < out[j].SourceName
	})
	return out
}

// score computes the composite confidence and per-strategy breakdown for one
// pair. Exact normalized name matches score exactly 1.0; everything else is
// capped at 0.99 so 1.0 stays reserved for exact matches.
func (e *Engine) score(src entity.SourceField, tgt entity.TargetField, cfg Config, cache *scorer.Cache) candidate {
	lex := cache.LexicalCached(src.Name, tgt.Name)
	tok := cache.TokenOverlapCached(src.Name, tgt.Name)
	typ := scorer.TypeCompatibility(src.Type, tgt.Type)
	alias := cfg.Rules.Score(src.Name, tgt.Name)

	breakdown := map[string]float64{
		scorer.StrategyLexical:      lex,
		scorer.StrategyTokenOverlap: tok,
		scorer.StrategyType:         typ,
		scorer.StrategyAlias:        alias,
	}

	if lex == 1.0 && scorer.NormalizeName(src.Name) != "" {
		return candidate{
			composite: 1.0,
			typeMatch: src.Type == tgt.Type,
			breakdown: breakdown,
		}
	}

	composite := lex*cfg.weight(scorer.StrategyLexical) +
		tok*cfg.weight(scorer.StrategyTokenOverlap) +
		typ*cfg.weight(scorer.StrategyType) +
		alias*cfg.weight(scorer.StrategyAlias)

	// A configured alias pair is a domain fact; it floors the confidence
	// no matter what the weighted sum says.
	if alias == 1.0 && composite < cfg.AliasFloor {
		composite = cfg.AliasFloor
	}

	if _, ok := patternedTypes[tgt.Type]; ok && src.Value != "" {
		if scorer.ValueMatchesType(src.Value, tgt.Type) {
			composite += cfg.ValueBoost
		}
	}

	if composite > 0.99 {
		composite = 0.99
	}
	if composite < 0 {
		composite = 0
	}

	return candidate{
		composite: composite,
		typeMatch: src.Type == tgt.Type,
		breakdown: breakdown,
	}
}
