package domain

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the status of a scheduled delivery job.
type JobStatus string

const (
	StatusScheduled JobStatus = "scheduled" // persisted, waiting for its scheduled time
	StatusSent      JobStatus = "sent"      // delivery attempt succeeded
	StatusFailed    JobStatus = "failed"    // delivery attempts exhausted or rejected
)

// IsTerminal reports whether no further transition is permitted from s.
func (s JobStatus) IsTerminal() bool {
	return s == StatusSent || s == StatusFailed
}

// ScheduledJob is one pending or completed scheduled delivery. Content and
// Options are opaque JSON blobs; only the delivery executor decodes them.
type ScheduledJob struct {
	ID          uuid.UUID       `json:"id"`
	Destination string          `json:"destination"`
	Content     json.RawMessage `json:"content"`
	Options     json.RawMessage `json:"options,omitempty"`
	ScheduledAt time.Time       `json:"scheduled_at"` // set once at creation, never mutated
	Status      JobStatus       `json:"status"`
	LastError   sql.NullString  `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewScheduledJob creates a job due at now+delay with status scheduled.
func NewScheduledJob(destination string, content, options json.RawMessage, delay time.Duration, now time.Time) *ScheduledJob {
	now = now.UTC()
	return &ScheduledJob{
		ID:          uuid.New(),
		Destination: destination,
		Content:     content,
		Options:     options,
		ScheduledAt: now.Add(delay),
		Status:      StatusScheduled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
