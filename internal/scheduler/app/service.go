package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/chatrelay/chatrelay/internal/scheduler/domain"
)

// SendRequest is a message submission from the route layer. Content and
// Options are already-serialized blobs; the service never looks inside them.
type SendRequest struct {
	Destination  string
	Content      json.RawMessage
	Options      json.RawMessage
	ScheduleExpr string // empty means send immediately
}

// SendResult reports what happened to a submission: either an immediate
// delivery (handle set) or a persisted job (job id and scheduled time set).
type SendResult struct {
	Scheduled      bool
	JobID          uuid.UUID
	ScheduledAt    time.Time
	DeliveryHandle string
}

const immediateMode = "immediate"

// DispatchService is the engine's entry point for the route layer.
type DispatchService struct {
	store    domain.JobStore
	resolver *ScheduleResolver
	executor deliverer
	backend  Backend
	logger   *slog.Logger
	now      func() time.Time
}

func NewDispatchService(store domain.JobStore, resolver *ScheduleResolver, executor deliverer, backend Backend, logger *slog.Logger) *DispatchService {
	return &DispatchService{
		store:    store,
		resolver: resolver,
		executor: executor,
		backend:  backend,
		logger:   logger.With("component", "dispatch_service"),
		now:      time.Now,
	}
}

// ScheduleOrSendNow delivers the message immediately when no schedule
// expression is given, otherwise validates the expression, persists the job
// and hands it to the dispatch backend. Resolver errors surface synchronously
// so the route layer can decide the HTTP status.
func (s *DispatchService) ScheduleOrSendNow(ctx context.Context, req SendRequest) (*SendResult, error) {
	if req.ScheduleExpr == "" {
		start := time.Now()
		handle, err := s.executor.Deliver(ctx, req.Destination, req.Content, req.Options)
		deliveryDurationHist.WithLabelValues(immediateMode).Observe(time.Since(start).Seconds())
		if err != nil {
			deliveriesCounter.WithLabelValues(immediateMode, string(domain.StatusFailed)).Inc()
			return nil, err
		}
		deliveriesCounter.WithLabelValues(immediateMode, string(domain.StatusSent)).Inc()
		return &SendResult{Scheduled: false, DeliveryHandle: handle}, nil
	}

	delay, err := s.resolver.Resolve(req.ScheduleExpr)
	if err != nil {
		return nil, err
	}

	job := domain.NewScheduledJob(req.Destination, req.Content, req.Options, delay, s.now())
	if err := s.store.Create(ctx, job); err != nil {
		return nil, err
	}
	jobsScheduledCounter.Inc()

	if err := s.backend.Schedule(ctx, job); err != nil {
		// The job is persisted but not enqueued. The caller may retry the
		// whole submission; a duplicate job is the accepted at-least-once
		// cost of having no transaction across store and broker.
		s.logger.ErrorContext(ctx, "Job persisted but backend scheduling failed", "job_id", job.ID, "error", err)
		return nil, fmt.Errorf("scheduling job %s: %w", job.ID, err)
	}

	s.logger.InfoContext(ctx, "Message scheduled", "job_id", job.ID, "scheduled_at", job.ScheduledAt, "delay", delay)
	return &SendResult{Scheduled: true, JobID: job.ID, ScheduledAt: job.ScheduledAt}, nil
}

// GetJob returns the stored job for status inspection.
func (s *DispatchService) GetJob(ctx context.Context, id uuid.UUID) (*domain.ScheduledJob, error) {
	return s.store.GetByID(ctx, id)
}
