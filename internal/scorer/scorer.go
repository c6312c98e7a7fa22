// Package scorer computes independent similarity signals between a source
// field extracted from a document and a target field in a form schema. All
// scorers are pure, return values in [0,1], and score 0 on malformed input
// instead of erroring.
package scorer

import "github.com/formpilot/fieldmap/constants"

// Strategy names used in breakdown maps and weight configuration.
const (
	StrategyLexical      = "lexical"
	StrategyTokenOverlap = "token_overlap"
	StrategyType         = "type"
	StrategyAlias        = "alias"
)

// Lexical returns edit-distance similarity over normalized names:
// 1 - dist/maxLen. Identical normalized names score exactly 1.0.
func Lexical(sourceName, targetName string) float64 {
	a, b := NormalizeName(sourceName), NormalizeName(targetName)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	dist := levenshtein(a, b)
	max := len(a)
	if len(b) > max {
		max = len(b)
	}
	return 1 - float64(dist)/float64(max)
}

// TokenOverlap returns Jaccard similarity over name tokens, catching
// reordered and compound names (name_first vs first_name).
func TokenOverlap(sourceName, targetName string) float64 {
	a, b := tokenSet(sourceName), tokenSet(targetName)
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// coercible maps type pairs to partial compatibility credit. Pairs are stored
// in one direction and looked up both ways.
var coercible = map[[2]constants.FieldType]float64{
	{constants.FieldTypeNumeric, constants.FieldTypeCurrency}: 0.8,
	{constants.FieldTypeText, constants.FieldTypeName}:        0.6,
	{constants.FieldTypeText, constants.FieldTypeAddress}:     0.6,
	{constants.FieldTypeText, constants.FieldTypeEmail}:       0.5,
	{constants.FieldTypeText, constants.FieldTypePhone}:       0.5,
	{constants.FieldTypeText, constants.FieldTypeDate}:        0.5,
	{constants.FieldTypeText, constants.FieldTypeNumeric}:     0.5,
	{constants.FieldTypeText, constants.FieldTypeCurrency}:    0.4,
	{constants.FieldTypeText, constants.FieldTypeBoolean}:     0.4,
	{constants.FieldTypeName, constants.FieldTypeAddress}:     0.3,
}

// TypeCompatibility scores how well the source type guess fits the target
// type: 1.0 on equality, partial credit for coercible pairs, 0.5 when either
// side is unknown, 0 otherwise. Total over the closed enum.
func TypeCompatibility(source, target constants.FieldType) float64 {
	if source == "" {
		source = constants.FieldTypeText
	}
	if target == "" {
		target = constants.FieldTypeText
	}
	if source == target {
		return 1
	}
	if source == constants.FieldTypeUnknown || target == constants.FieldTypeUnknown {
		return 0.5
	}
	if v, ok := coercible[[2]constants.FieldType{source, target}]; ok {
		return v
	}
	if v, ok := coercible[[2]constants.FieldType{target, source}]; ok {
		return v
	}
	return 0
}

// levenshtein computes edit distance with a two-row table.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min3(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
