package constants

import "strings"

// FieldType is the closed set of field type guesses. Extraction upstream may
// guess wrong; the scorer treats the type as a signal, not a constraint.
type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypeName     FieldType = "name"
	FieldTypeEmail    FieldType = "email"
	FieldTypePhone    FieldType = "phone"
	FieldTypeDate     FieldType = "date"
	FieldTypeNumeric  FieldType = "numeric"
	FieldTypeCurrency FieldType = "currency"
	FieldTypeAddress  FieldType = "address"
	FieldTypeBoolean  FieldType = "boolean"
	FieldTypeUnknown  FieldType = "unknown"
)

var allFieldTypes = []FieldType{
	FieldTypeText,
	FieldTypeName,
	FieldTypeEmail,
	FieldTypePhone,
	FieldTypeDate,
	FieldTypeNumeric,
	FieldTypeCurrency,
	FieldTypeAddress,
	FieldTypeBoolean,
	FieldTypeUnknown,
}

// FieldTypes returns the closed enum in declaration order.
func FieldTypes() []FieldType {
	result := make([]FieldType, len(allFieldTypes))
	copy(result, allFieldTypes)
	return result
}

// FieldTypeStrings returns the allowed field type values.
func FieldTypeStrings() []string {
	result := make([]string, len(allFieldTypes))
	for i, ft := range allFieldTypes {
		result[i] = string(ft)
	}
	return result
}

// ParseFieldType maps an arbitrary upstream string onto the closed enum.
// Unrecognized values become FieldTypeUnknown rather than an error, so
// type-compatibility scoring stays total.
func ParseFieldType(s string) FieldType {
	switch FieldType(strings.ToLower(strings.TrimSpace(s))) {
	case FieldTypeText:
		return FieldTypeText
	case FieldTypeName:
		return FieldTypeName
	case FieldTypeEmail:
		return FieldTypeEmail
	case FieldTypePhone:
		return FieldTypePhone
	case FieldTypeDate:
		return FieldTypeDate
	case FieldTypeNumeric, "number":
		return FieldTypeNumeric
	case FieldTypeCurrency:
		return FieldTypeCurrency
	case FieldTypeAddress:
		return FieldTypeAddress
	case FieldTypeBoolean, "bool":
		return FieldTypeBoolean
	case "":
		return FieldTypeText
	default:
		return FieldTypeUnknown
	}
}
