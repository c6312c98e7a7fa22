package scorer

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/formpilot/fieldmap/constants"
)

var (
	reEmail = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	reDate  = regexp.MustCompile(`^(\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4}|\d{4}[/\-.]\d{1,2}[/\-.]\d{1,2})$`)
	reCurr  = regexp.MustCompile(`^\$?[\d,]+(\.\d{1,2})?$`)
	reBool  = regexp.MustCompile(`^(?i)(true|false|yes|no|y|n|on|off|checked|unchecked)$`)
	reDigit = regexp.MustCompile(`\D`)
)

// ValueMatchesType reports whether a raw extracted value looks coercible to
// the given field type. Empty values are coercible to everything: an empty
// extraction is a missing value, not a wrong one.
func ValueMatchesType(value string, t constants.FieldType) bool {
	v := strings.TrimSpace(value)
	if v == "" {
		return true
	}
	switch t {
	case constants.FieldTypeEmail:
		return reEmail.MatchString(v)
	case constants.FieldTypePhone:
		digits := reDigit.ReplaceAllString(v, "")
		n := len(digits)
		return n >= 10 && n <= 12
	case constants.FieldTypeDate:
		return reDate.MatchString(v)
	case constants.FieldTypeNumeric:
		_, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
		return err == nil
	case constants.FieldTypeCurrency:
		return reCurr.MatchString(strings.ReplaceAll(v, " ", ""))
	case constants.FieldTypeBoolean:
		return reBool.MatchString(v)
	default:
		// text, name, address, unknown: anything goes
		return true
	}
}
