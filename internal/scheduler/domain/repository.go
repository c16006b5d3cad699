package domain

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// JobStore is the durable record of scheduled jobs and the single source of
// truth surviving restarts. Every operation is atomic with respect to a
// single job; failures to reach the store surface ErrStorageUnavailable.
type JobStore interface {
	Create(ctx context.Context, job *ScheduledJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*ScheduledJob, error)

	// ListDue returns jobs with status scheduled and scheduled_at <= asOf.
	// "Due" is a query predicate, not a stored flag: an overdue job stays
	// scheduled until an attempt is actually made.
	ListDue(ctx context.Context, asOf time.Time, limit int) ([]*ScheduledJob, error)

	// UpdateStatus transitions a job out of scheduled. Re-applying the status
	// the job already has is a no-op; moving between different terminal
	// statuses fails with ErrStatusConflict; a missing id fails with
	// ErrNotFound.
	UpdateStatus(ctx context.Context, id uuid.UUID, status JobStatus, lastError sql.NullString) error
}
