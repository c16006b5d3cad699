package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/chatrelay/chatrelay/internal/scheduler/domain"
)

// DB is the subset of pgxpool.Pool the repository needs. pgxmock satisfies it
// too, which is what the tests run against.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgJobRepository struct {
	db     DB
	logger *slog.Logger
}

func NewPgJobRepository(db DB, logger *slog.Logger) *PgJobRepository {
	return &PgJobRepository{db: db, logger: logger.With("component", "job_repository_pg")}
}

func (r *PgJobRepository) Create(ctx context.Context, job *domain.ScheduledJob) error {
	query := `
		INSERT INTO scheduled_messages (id, destination, content, options, scheduled_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		job.ID, job.Destination, job.Content, job.Options, job.ScheduledAt, job.Status,
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error creating scheduled job", "error", err, "job_id", job.ID)
		return fmt.Errorf("%w: create: %v", domain.ErrStorageUnavailable, err)
	}
	r.logger.InfoContext(ctx, "Scheduled job created", "job_id", job.ID, "scheduled_at", job.ScheduledAt)
	return nil
}

func (r *PgJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ScheduledJob, error) {
	query := `
		SELECT id, destination, content, options, scheduled_at, status, last_error, created_at, updated_at
		FROM scheduled_messages
		WHERE id = $1
	`
	job := &domain.ScheduledJob{}
	var content, options []byte
	err := r.db.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.Destination, &content, &options, &job.ScheduledAt, &job.Status,
		&job.LastError, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting scheduled job by ID", "error", err, "job_id", id)
		return nil, fmt.Errorf("%w: get: %v", domain.ErrStorageUnavailable, err)
	}
	job.Content = json.RawMessage(content)
	job.Options = json.RawMessage(options)
	return job, nil
}

func (r *PgJobRepository) ListDue(ctx context.Context, asOf time.Time, limit int) ([]*domain.ScheduledJob, error) {
	query := `
		SELECT id, destination, content, options, scheduled_at, status, last_error, created_at, updated_at
		FROM scheduled_messages
		WHERE status = $1 AND scheduled_at <= $2
		ORDER BY scheduled_at ASC
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, domain.StatusScheduled, asOf, limit)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing due jobs", "error", err)
		return nil, fmt.Errorf("%w: list due: %v", domain.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var jobs []*domain.ScheduledJob
	for rows.Next() {
		job := &domain.ScheduledJob{}
		var content, options []byte
		if err := rows.Scan(
			&job.ID, &job.Destination, &content, &options, &job.ScheduledAt, &job.Status,
			&job.LastError, &job.CreatedAt, &job.UpdatedAt,
		); err != nil {
			r.logger.ErrorContext(ctx, "Error scanning due job row", "error", err)
			return nil, fmt.Errorf("%w: scan due: %v", domain.ErrStorageUnavailable, err)
		}
		job.Content = json.RawMessage(content)
		job.Options = json.RawMessage(options)
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		r.logger.ErrorContext(ctx, "Error iterating due job rows", "error", err)
		return nil, fmt.Errorf("%w: iterate due: %v", domain.ErrStorageUnavailable, err)
	}
	return jobs, nil
}

// UpdateStatus transitions a job out of scheduled. The guarded UPDATE only
// matches jobs still in scheduled; when it matches nothing, the current row
// is inspected to decide between no-op, conflict and not-found.
func (r *PgJobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.JobStatus, lastError sql.NullString) error {
	query := `
		UPDATE scheduled_messages
		SET status = $2, last_error = $3, updated_at = $4
		WHERE id = $1 AND status = $5
	`
	tag, err := r.db.Exec(ctx, query, id, status, lastError, time.Now().UTC(), domain.StatusScheduled)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error updating scheduled job status", "error", err, "job_id", id, "new_status", status)
		return fmt.Errorf("%w: update status: %v", domain.ErrStorageUnavailable, err)
	}
	if tag.RowsAffected() > 0 {
		r.logger.InfoContext(ctx, "Scheduled job status updated", "job_id", id, "new_status", status)
		return nil
	}

	var current domain.JobStatus
	err = r.db.QueryRow(ctx, `SELECT status FROM scheduled_messages WHERE id = $1`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("%w: read current status: %v", domain.ErrStorageUnavailable, err)
	}
	if current == status {
		// Idempotent re-application of the same terminal status.
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", domain.ErrStatusConflict, current, status)
}
