package app

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/chatrelay/chatrelay/internal/scheduler/domain"
)

// StatusTracker applies delivery outcomes to the job store. It runs inside
// the dispatch loop, so it never lets a store error escape: NotFound and
// Conflict are demoted to warnings (a retried broker delivery may already
// have updated the job) and storage faults are logged.
type StatusTracker struct {
	store  domain.JobStore
	logger *slog.Logger
}

func NewStatusTracker(store domain.JobStore, logger *slog.Logger) *StatusTracker {
	return &StatusTracker{store: store, logger: logger.With("component", "status_tracker")}
}

// RecordOutcome marks the job sent or failed. deliveryErr is persisted as the
// failure reason when the outcome is failed.
func (t *StatusTracker) RecordOutcome(ctx context.Context, jobID uuid.UUID, outcome domain.JobStatus, deliveryErr error) {
	var lastError sql.NullString
	if outcome == domain.StatusFailed && deliveryErr != nil {
		lastError = sql.NullString{String: deliveryErr.Error(), Valid: true}
	}

	err := t.store.UpdateStatus(ctx, jobID, outcome, lastError)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		t.logger.WarnContext(ctx, "Job vanished before outcome could be recorded", "job_id", jobID, "outcome", outcome)
	case errors.Is(err, domain.ErrStatusConflict):
		t.logger.WarnContext(ctx, "Job already in a different terminal status", "job_id", jobID, "outcome", outcome, "error", err)
	default:
		t.logger.ErrorContext(ctx, "Failed to record delivery outcome", "job_id", jobID, "outcome", outcome, "error", err)
	}
}
