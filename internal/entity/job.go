package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/formpilot/fieldmap/constants"
)

// JobOptions are the per-job overrides accepted at submission.
// Zero values mean "use the configured default".
type JobOptions struct {
	DocumentTypeHint string             `json:"document_type_hint,omitempty"`
	MaxAttempts      int                `json:"max_attempts,omitempty"`
	Threshold        float64            `json:"threshold,omitempty"`
	Weights          map[string]float64 `json:"weights,omitempty"`
	MergeDocuments   bool               `json:"merge_documents,omitempty"`
}

// ProcessingState is the full persistent record of a mapping job.
// Mutated only by the orchestrator, exactly once per stage transition.
type ProcessingState struct {
	JobID              uuid.UUID           `json:"job_id"`
	Stage              constants.Stage     `json:"stage"`
	Status             constants.JobStatus `json:"status"`
	Attempt            int                 `json:"attempt"`
	Profile            string              `json:"profile,omitempty"`
	Options            JobOptions          `json:"options"`
	SourceFields       []SourceField       `json:"source_fields"`
	TargetFields       []TargetField       `json:"target_fields"`
	CurrentMappings    []FieldMapping      `json:"current_mappings,omitempty"`
	BestMappings       []FieldMapping      `json:"best_mappings,omitempty"`
	BestFailures       []ValidationFailure `json:"best_failures,omitempty"`
	ValidationFailures []ValidationFailure `json:"validation_failures,omitempty"`
	Warnings           []string            `json:"warnings,omitempty"`
	Cancelled          bool                `json:"cancelled,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// Result is the caller-visible outcome of a finished job.
type Result struct {
	JobID    uuid.UUID           `json:"job_id"`
	Status   constants.JobStatus `json:"status"`
	Mappings []FieldMapping      `json:"mappings"`
	Warnings []string            `json:"warnings,omitempty"`
}

// StatusView is the lightweight answer to a status poll.
type StatusView struct {
	JobID   uuid.UUID           `json:"job_id"`
	Stage   constants.Stage     `json:"stage"`
	Attempt int                 `json:"attempt"`
	Status  constants.JobStatus `json:"status"`
}
