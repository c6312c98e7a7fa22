package async

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Job is the smallest useful unit handed to the worker pool.
type Job struct {
	JobID       uuid.UUID
	SubmittedAt time.Time
	TraceID     string

	// Retries counts transient (store) failures; data-quality retries
	// live inside the pipeline, not here.
	Retries int
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
