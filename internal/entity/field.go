package entity

import "github.com/formpilot/fieldmap/constants"

// SourceField represents a field extracted from a user document.
// Immutable once handed to the core; the type is a best guess and may be wrong.
type SourceField struct {
	Name       string              `json:"name"`
	Value      string              `json:"value"`
	Type       constants.FieldType `json:"type"`
	Context    string              `json:"context,omitempty"`
	DocumentID string              `json:"document_id,omitempty"`
}

// TargetField represents a destination field in the form schema.
// Read-only for the duration of a job.
type TargetField struct {
	Name     string              `json:"name"`
	Type     constants.FieldType `json:"type"`
	Required bool                `json:"required"`
	Options  []string            `json:"options,omitempty"`
}

// FieldMapping represents one accepted (source, target) assignment.
// Unassigned target fields simply have no mapping.
type FieldMapping struct {
	SourceName        string             `json:"source_name"`
	TargetName        string             `json:"target_name"`
	SourceDocumentID  string             `json:"source_document_id,omitempty"`
	Value             string             `json:"value"`
	Confidence        float64            `json:"confidence"`
	StrategyBreakdown map[string]float64 `json:"strategy_breakdown"`
	Flagged           bool               `json:"flagged"`
}

// FailureKind classifies a QA validation failure.
type FailureKind string

const (
	MissingRequiredField   FailureKind = "MISSING_REQUIRED_FIELD"
	BelowMinimumConfidence FailureKind = "BELOW_MINIMUM_CONFIDENCE"
	TypeMismatch           FailureKind = "TYPE_MISMATCH"
	DuplicateAssignment    FailureKind = "DUPLICATE_ASSIGNMENT"
)

// ValidationFailure describes one QA gate violation.
type ValidationFailure struct {
	Kind       FailureKind `json:"kind"`
	TargetName string      `json:"target_name"`
	SourceName string      `json:"source_name,omitempty"`
	Detail     string      `json:"detail,omitempty"`
}

func (f ValidationFailure) String() string {
	if f.Detail == "" {
		return string(f.Kind) + ": " + f.TargetName
	}
	return string(f.Kind) + ": " + f.TargetName + ": " + f.Detail
}
