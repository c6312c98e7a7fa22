package constants

// Stage is the canonical pipeline stage for rows in map_job.
type Stage string

// Stable values (store these exact strings in the checkpoint store).
const (
	StageClassify Stage = "CLASSIFY" // selecting a mapping profile
	StageMap      Stage = "MAP"      // scoring and assignment
	StageQA       Stage = "QA"       // validating the assignment
	StageRecover  Stage = "RECOVER"  // adjusting config before another MAP pass
	StageFinalize Stage = "FINALIZE" // persisting the final result
	StageFailed   Stage = "FAILED"   // terminal, schema/config errors only
)

// Terminal reports whether no further stage transitions are possible.
func (s Stage) Terminal() bool {
	return s == StageFinalize || s == StageFailed
}

// JobStatus is the caller-visible status of a mapping job.
type JobStatus string

const (
	JobStatusQueued      JobStatus = "QUEUED"                  // accepted, waiting for a worker
	JobStatusRunning     JobStatus = "RUNNING"                 // a worker holds the lease
	JobStatusCompleted   JobStatus = "COMPLETED"               // finalized, QA passed
	JobStatusCompletedWW JobStatus = "COMPLETED_WITH_WARNINGS" // finalized degraded, warnings attached
	JobStatusFailed      JobStatus = "FAILED"                  // rejected schema/config, never data quality
)
