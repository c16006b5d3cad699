package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatrelay/chatrelay/internal/scheduler/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPgJobRepository_CreateAndGet(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	repo := NewPgJobRepository(mockPool, testLogger())

	content := json.RawMessage(`{"type":"text","text":"hello"}`)
	options := json.RawMessage(`{"as_document":false}`)
	job := domain.NewScheduledJob("49151000000@c.us", content, options, 10*time.Minute, time.Now())

	mockPool.ExpectExec(`INSERT INTO scheduled_messages`).
		WithArgs(job.ID, job.Destination, job.Content, job.Options, job.ScheduledAt, job.Status, job.CreatedAt, job.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), job))

	rows := mockPool.NewRows([]string{"id", "destination", "content", "options", "scheduled_at", "status", "last_error", "created_at", "updated_at"}).
		AddRow(job.ID, job.Destination, []byte(content), []byte(options), job.ScheduledAt, job.Status, sql.NullString{}, job.CreatedAt, job.UpdatedAt)
	mockPool.ExpectQuery(`(?s)SELECT id, destination, content, options, scheduled_at, status, last_error, created_at, updated_at.+FROM scheduled_messages.+WHERE id = \$1`).
		WithArgs(job.ID).
		WillReturnRows(rows)

	got, err := repo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, domain.StatusScheduled, got.Status)
	assert.Equal(t, job.Destination, got.Destination)
	assert.JSONEq(t, string(content), string(got.Content))
	assert.JSONEq(t, string(options), string(got.Options))

	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgJobRepository_GetByID_NotFound(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	repo := NewPgJobRepository(mockPool, testLogger())
	id := uuid.New()

	mockPool.ExpectQuery(`(?s)SELECT id, destination, content, options, scheduled_at, status, last_error, created_at, updated_at.+FROM scheduled_messages.+WHERE id = \$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err = repo.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgJobRepository_Create_StorageUnavailable(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	repo := NewPgJobRepository(mockPool, testLogger())
	job := domain.NewScheduledJob("dest", json.RawMessage(`{}`), nil, time.Minute, time.Now())

	mockPool.ExpectExec(`INSERT INTO scheduled_messages`).
		WithArgs(job.ID, job.Destination, job.Content, job.Options, job.ScheduledAt, job.Status, job.CreatedAt, job.UpdatedAt).
		WillReturnError(errors.New("connection refused"))

	err = repo.Create(context.Background(), job)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgJobRepository_ListDue(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	repo := NewPgJobRepository(mockPool, testLogger())
	now := time.Now().UTC()
	dueID := uuid.New()

	rows := mockPool.NewRows([]string{"id", "destination", "content", "options", "scheduled_at", "status", "last_error", "created_at", "updated_at"}).
		AddRow(dueID, "dest", []byte(`{"type":"text"}`), []byte(`{}`), now.Add(-time.Minute), domain.StatusScheduled, sql.NullString{}, now.Add(-time.Hour), now.Add(-time.Hour))

	mockPool.ExpectQuery(`(?s)FROM scheduled_messages.+WHERE status = \$1 AND scheduled_at <= \$2.+ORDER BY scheduled_at ASC.+LIMIT \$3`).
		WithArgs(domain.StatusScheduled, now, 100).
		WillReturnRows(rows)

	jobs, err := repo.ListDue(context.Background(), now, 100)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, dueID, jobs[0].ID)
	assert.Equal(t, domain.StatusScheduled, jobs[0].Status)
	assert.True(t, jobs[0].ScheduledAt.Before(now) || jobs[0].ScheduledAt.Equal(now))

	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgJobRepository_UpdateStatus_Transition(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	repo := NewPgJobRepository(mockPool, testLogger())
	id := uuid.New()

	mockPool.ExpectExec(`(?s)UPDATE scheduled_messages.+SET status = \$2, last_error = \$3, updated_at = \$4.+WHERE id = \$1 AND status = \$5`).
		WithArgs(id, domain.StatusSent, sql.NullString{}, pgxmock.AnyArg(), domain.StatusScheduled).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = repo.UpdateStatus(context.Background(), id, domain.StatusSent, sql.NullString{})
	assert.NoError(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgJobRepository_UpdateStatus_IdempotentNoOp(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	repo := NewPgJobRepository(mockPool, testLogger())
	id := uuid.New()

	// Guarded update matches nothing because the job already left scheduled.
	mockPool.ExpectExec(`UPDATE scheduled_messages`).
		WithArgs(id, domain.StatusSent, sql.NullString{}, pgxmock.AnyArg(), domain.StatusScheduled).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mockPool.ExpectQuery(`SELECT status FROM scheduled_messages WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(mockPool.NewRows([]string{"status"}).AddRow(domain.StatusSent))

	err = repo.UpdateStatus(context.Background(), id, domain.StatusSent, sql.NullString{})
	assert.NoError(t, err, "re-applying the same terminal status must be a no-op")
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgJobRepository_UpdateStatus_Conflict(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	repo := NewPgJobRepository(mockPool, testLogger())
	id := uuid.New()

	mockPool.ExpectExec(`UPDATE scheduled_messages`).
		WithArgs(id, domain.StatusFailed, sql.NullString{String: "boom", Valid: true}, pgxmock.AnyArg(), domain.StatusScheduled).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mockPool.ExpectQuery(`SELECT status FROM scheduled_messages WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(mockPool.NewRows([]string{"status"}).AddRow(domain.StatusSent))

	err = repo.UpdateStatus(context.Background(), id, domain.StatusFailed, sql.NullString{String: "boom", Valid: true})
	assert.ErrorIs(t, err, domain.ErrStatusConflict)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgJobRepository_UpdateStatus_NotFound(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	repo := NewPgJobRepository(mockPool, testLogger())
	id := uuid.New()

	mockPool.ExpectExec(`UPDATE scheduled_messages`).
		WithArgs(id, domain.StatusSent, sql.NullString{}, pgxmock.AnyArg(), domain.StatusScheduled).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mockPool.ExpectQuery(`SELECT status FROM scheduled_messages WHERE id = \$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	err = repo.UpdateStatus(context.Background(), id, domain.StatusSent, sql.NullString{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
