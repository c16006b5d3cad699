package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chatrelay/chatrelay/internal/scheduler/domain"
)

// PollerConfig holds configuration specific to the polling backend.
type PollerConfig struct {
	PollingInterval time.Duration `mapstructure:"SCHEDULER_POLLING_INTERVAL"`
	JobBatchSize    int           `mapstructure:"SCHEDULER_JOB_BATCH_SIZE"`
	Concurrency     int           `mapstructure:"SCHEDULER_POLL_CONCURRENCY"`
}

func (c PollerConfig) withDefaults() PollerConfig {
	if c.PollingInterval <= 0 {
		c.PollingInterval = time.Minute
	}
	if c.JobBatchSize <= 0 {
		c.JobBatchSize = 100
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	return c
}

// PollerBackend discovers due jobs by scanning the job store on a fixed
// interval. Delivery timing has granularity equal to the tick interval; the
// scheduling contract is "no earlier than", never "exactly at".
type PollerBackend struct {
	store    domain.JobStore
	executor deliverer
	tracker  outcomeRecorder
	logger   *slog.Logger
	cfg      PollerConfig
	now      func() time.Time
}

func NewPollerBackend(store domain.JobStore, executor deliverer, tracker outcomeRecorder, logger *slog.Logger, cfg PollerConfig) *PollerBackend {
	return &PollerBackend{
		store:    store,
		executor: executor,
		tracker:  tracker,
		logger:   logger.With("component", "poller_backend"),
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
}

// Schedule is a no-op: the poller finds work by scanning, not by being
// pushed to. The job store write done by the caller is all it needs.
func (b *PollerBackend) Schedule(ctx context.Context, job *domain.ScheduledJob) error {
	return nil
}

// Start runs the tick loop until ctx is cancelled. A tick never overlaps the
// next one: the batch is processed to completion before the loop waits again,
// so slow sends cannot pile up unbounded work.
func (b *PollerBackend) Start(ctx context.Context) error {
	b.logger.Info("Starting poller backend", "polling_interval", b.cfg.PollingInterval, "batch_size", b.cfg.JobBatchSize)
	ticker := time.NewTicker(b.cfg.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			processed, err := b.ProcessDueJobs(ctx)
			if err != nil {
				// A storage fault aborts only this tick, not the process.
				b.logger.ErrorContext(ctx, "Tick aborted", "error", err)
				continue
			}
			if processed > 0 {
				b.logger.InfoContext(ctx, "Processed due jobs", "count", processed)
			}
		case <-ctx.Done():
			b.logger.Info("Poller backend stopping", "reason", ctx.Err())
			return nil
		}
	}
}

func (b *PollerBackend) Stop() {}

// ProcessDueJobs runs one poll cycle: list due jobs, deliver each with
// bounded fan-out, record outcomes. It returns the number of jobs attempted.
func (b *PollerBackend) ProcessDueJobs(ctx context.Context) (int, error) {
	jobs, err := b.store.ListDue(ctx, b.now().UTC(), b.cfg.JobBatchSize)
	if err != nil {
		return 0, fmt.Errorf("listing due jobs: %w", err)
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	sem := make(chan struct{}, b.cfg.Concurrency)
	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		sem <- struct{}{}
		go func(job *domain.ScheduledJob) {
			defer wg.Done()
			defer func() { <-sem }()
			b.processJob(ctx, job)
		}(job)
	}
	wg.Wait()
	return len(jobs), nil
}

// processJob performs one delivery and records the outcome. Every per-job
// failure is absorbed here so the dispatch loop keeps going.
func (b *PollerBackend) processJob(ctx context.Context, job *domain.ScheduledJob) {
	timer := time.Now()
	handle, err := b.executor.Deliver(ctx, job.Destination, job.Content, job.Options)
	deliveryDurationHist.WithLabelValues(BackendPoller).Observe(time.Since(timer).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			// Shutdown mid-delivery: leave the job scheduled for the next run.
			b.logger.InfoContext(ctx, "Delivery abandoned due to shutdown", "job_id", job.ID)
			return
		}
		b.logger.WarnContext(ctx, "Delivery failed", "job_id", job.ID, "destination", job.Destination, "error", err)
		b.tracker.RecordOutcome(ctx, job.ID, domain.StatusFailed, err)
		deliveriesCounter.WithLabelValues(BackendPoller, string(domain.StatusFailed)).Inc()
		return
	}

	b.logger.InfoContext(ctx, "Delivery succeeded", "job_id", job.ID, "handle", handle)
	b.tracker.RecordOutcome(ctx, job.ID, domain.StatusSent, nil)
	deliveriesCounter.WithLabelValues(BackendPoller, string(domain.StatusSent)).Inc()
}
