package scorer

import (
	"regexp"
	"strings"
)

// score tiers for the rule signal, below AliasExact so only a configured
// alias pair can hit 1.0.
const (
	aliasExactScore = 1.0
	patternScore    = 0.9
	containsScore   = 0.7
)

// PatternRule matches a (source, target) name pair by regex, catching domain
// families like birth_date <-> dob that no lexical metric finds.
type PatternRule struct {
	Name   string
	Source *regexp.Regexp
	Target *regexp.Regexp
}

// Rules holds the configured alias groups and pattern rules for the alias/rule
// strategy. Zero value scores 0 for every pair.
type Rules struct {
	groups   []map[string]struct{} // normalized alias groups
	patterns []PatternRule
}

// NewRules builds a rule set from alias groups (each group a list of
// equivalent field names) and compiled pattern rules.
func NewRules(aliasGroups [][]string, patterns []PatternRule) *Rules {
	r := &Rules{patterns: patterns}
	for _, group := range aliasGroups {
		set := make(map[string]struct{}, len(group))
		for _, name := range group {
			if n := NormalizeName(name); n != "" {
				set[n] = struct{}{}
			}
		}
		if len(set) > 1 {
			r.groups = append(r.groups, set)
		}
	}
	return r
}

// DefaultRules returns the built-in alias groups and pattern rules, used when
// no profiles file is configured.
func DefaultRules() *Rules {
	aliases := [][]string{
		{"dob", "date_of_birth", "birth_date", "birthdate"},
		{"first_name", "given_name", "forename"},
		{"last_name", "family_name", "surname"},
		{"full_name", "name", "complete_name"},
		{"email", "email_address", "e_mail"},
		{"phone", "phone_number", "telephone", "tel"},
		{"mobile", "cell_phone", "mobile_number"},
		{"zip", "zip_code", "postal_code", "postcode"},
		{"address", "street_address", "mailing_address", "home_address"},
		{"ssn", "social_security_number"},
		{"salary", "income", "annual_income"},
	}
	patterns := []PatternRule{
		{Name: "first_name", Source: regexp.MustCompile(`(first|given).*name`), Target: regexp.MustCompile(`(first|given).*name`)},
		{Name: "last_name", Source: regexp.MustCompile(`(last|family|sur).*name`), Target: regexp.MustCompile(`(last|family|sur).*name`)},
		{Name: "full_name", Source: regexp.MustCompile(`full.*name`), Target: regexp.MustCompile(`(full|complete).*name`)},
		{Name: "email", Source: regexp.MustCompile(`email`), Target: regexp.MustCompile(`e.?mail`)},
		{Name: "phone", Source: regexp.MustCompile(`(phone|mobile|cell).*(number)?`), Target: regexp.MustCompile(`(phone|mobile|cell|tel)`)},
		{Name: "birth_date", Source: regexp.MustCompile(`(birth.*date|date.*birth|dob)`), Target: regexp.MustCompile(`(birth|dob)`)},
		{Name: "zip", Source: regexp.MustCompile(`(zip|postal).*(code)?`), Target: regexp.MustCompile(`(zip|postal)`)},
		{Name: "amount", Source: regexp.MustCompile(`(salary|income|amount)`), Target: regexp.MustCompile(`(salary|income|amount)`)},
	}
	return NewRules(aliases, patterns)
}

// Score returns the rule-strategy score for a (source, target) name pair:
// 1.0 for a configured alias pair, 0.9 for a pattern-rule hit, 0.7 for
// substring containment, else 0.
func (r *Rules) Score(sourceName, targetName string) float64 {
	if r == nil {
		return 0
	}
	src := NormalizeName(sourceName)
	tgt := NormalizeName(targetName)
	if src == "" || tgt == "" {
		return 0
	}

	for _, group := range r.groups {
		if _, ok := group[src]; !ok {
			continue
		}
		if _, ok := group[tgt]; ok {
			return aliasExactScore
		}
	}

	srcL := strings.ToLower(sourceName)
	tgtL := strings.ToLower(targetName)
	for _, p := range r.patterns {
		if p.Source.MatchString(srcL) && p.Target.MatchString(tgtL) {
			return patternScore
		}
	}

	if strings.Contains(src, tgt) || strings.Contains(tgt, src) {
		return containsScore
	}
	return 0
}
