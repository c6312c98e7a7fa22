// Package profiles maps a caller-supplied document type hint onto a mapping
// config preset. Presets and alias rules ship with built-in defaults and can
// be replaced wholesale from a YAML file.
package profiles

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/formpilot/fieldmap/internal/mapping"
	"github.com/formpilot/fieldmap/internal/scorer"
)

// DefaultProfileName is used when the hint is empty or unrecognized.
const DefaultProfileName = "default"

// preset is one named weight/threshold configuration.
type preset struct {
	Weights   map[string]float64
	Threshold float64
}

// Registry resolves document type hints to mapping configs.
type Registry struct {
	presets map[string]preset
	rules   *scorer.Rules
}

// Defaults returns the built-in registry: identity documents lean on type
// compatibility, invoices on token overlap, applications on alias rules.
// Numbers here are tunable, not contracts.
func Defaults() *Registry {
	return &Registry{
		presets: map[string]preset{
			DefaultProfileName: {Weights: mapping.DefaultWeights(), Threshold: mapping.DefaultThreshold},
			"invoice": {
				Weights: map[string]float64{
					scorer.StrategyLexical:      0.25,
					scorer.StrategyTokenOverlap: 0.30,
					scorer.StrategyType:         0.25,
					scorer.StrategyAlias:        0.20,
				},
				Threshold: mapping.DefaultThreshold,
			},
			"application": {
				Weights: map[string]float64{
					scorer.StrategyLexical:      0.25,
					scorer.StrategyTokenOverlap: 0.20,
					scorer.StrategyType:         0.25,
					scorer.StrategyAlias:        0.30,
				},
				Threshold: mapping.DefaultThreshold,
			},
			"identity": {
				Weights: map[string]float64{
					scorer.StrategyLexical:      0.25,
					scorer.StrategyTokenOverlap: 0.20,
					scorer.StrategyType:         0.35,
					scorer.StrategyAlias:        0.20,
				},
				Threshold: 0.55,
			},
		},
		rules: scorer.DefaultRules(),
	}
}

// fileFormat is the YAML layout for a profiles file.
type fileFormat struct {
	Profiles map[string]struct {
		Weights   map[string]float64 `yaml:"weights"`
		Threshold float64            `yaml:"threshold"`
	} `yaml:"profiles"`
	Aliases  [][]string `yaml:"aliases"`
	Patterns []struct {
		Name   string `yaml:"name"`
		Source string `yaml:"source"`
		Target string `yaml:"target"`
	} `yaml:"patterns"`
}

// LoadFile reads presets and alias rules from a YAML file. Profiles from the
// file are merged over the defaults; aliases and patterns replace the default
// rule set when present.
func LoadFile(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	var ff fileFormat
	if err := yaml.Unmarshal(raw, &ff); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}

	reg := Defaults()
	for name, p := range ff.Profiles {
		entry := preset{Weights: p.Weights, Threshold: p.Threshold}
		if entry.Weights == nil {
			entry.Weights = mapping.DefaultWeights()
		}
		if entry.Threshold <= 0 {
			entry.Threshold = mapping.DefaultThreshold
		}
		reg.presets[strings.ToLower(name)] = entry
	}

	if len(ff.Aliases) > 0 || len(ff.Patterns) > 0 {
		var patterns []scorer.PatternRule
		for _, p := range ff.Patterns {
			src, err := regexp.Compile(p.Source)
			if err != nil {
				return nil, fmt.Errorf("pattern %q source: %w", p.Name, err)
			}
			tgt, err := regexp.Compile(p.Target)
			if err != nil {
				return nil, fmt.Errorf("pattern %q target: %w", p.Name, err)
			}
			patterns = append(patterns, scorer.PatternRule{Name: p.Name, Source: src, Target: tgt})
		}
		reg.rules = scorer.NewRules(ff.Aliases, patterns)
	}
	return reg, nil
}

// Select resolves a document type hint to a mapping config and the chosen
// profile name. Unknown or empty hints fall back to the default profile.
func (r *Registry) Select(hint string) (mapping.Config, string) {
	name := strings.ToLower(strings.TrimSpace(hint))
	p, ok := r.presets[name]
	if !ok {
		name = DefaultProfileName
		p = r.presets[DefaultProfileName]
	}

	cfg := mapping.DefaultConfig()
	cfg.Weights = p.Weights
	cfg.Threshold = p.Threshold
	cfg.Rules = r.rules
	return cfg, name
}
