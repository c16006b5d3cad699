package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/chatrelay/chatrelay/internal/platform/messagebroker"
	"github.com/chatrelay/chatrelay/internal/scheduler/domain"
)

// BrokerConfig holds configuration specific to the JetStream backend.
type BrokerConfig struct {
	Stream     string        `mapstructure:"BROKER_STREAM"`
	MaxDeliver int           `mapstructure:"BROKER_MAX_DELIVER"`
	AckWait    time.Duration `mapstructure:"BROKER_ACK_WAIT"`
}

func (c BrokerConfig) withDefaults() BrokerConfig {
	if c.Stream == "" {
		c.Stream = "CHATRELAY_JOBS"
	}
	if c.MaxDeliver <= 0 {
		c.MaxDeliver = 5
	}
	if c.AckWait <= 0 {
		c.AckWait = 2 * time.Minute
	}
	return c
}

const (
	brokerSubject = "chatrelay.jobs.scheduled"
	brokerDurable = "chatrelay-dispatcher"

	// storageRetryDelay is how long a queue item is parked when the job store
	// cannot be reached while handling it.
	storageRetryDelay = 30 * time.Second
)

// queueItem is the work item carried by the broker. Only the id travels; the
// job store stays the source of truth for payload and status.
type queueItem struct {
	JobID uuid.UUID `json:"job_id"`
}

// queueMsg is the slice of jetstream.Msg the handler needs.
type queueMsg interface {
	Data() []byte
	Ack() error
	NakWithDelay(delay time.Duration) error
}

// JetStreamBackend pushes each persisted job into a durable JetStream work
// queue. Items not yet due are negatively acknowledged with the remaining
// delay, so the broker itself holds them until the scheduled instant. The
// consumer's MaxDeliver/AckWait act as an infrastructure retry safety net on
// top of the executor's own application-level retries; application send
// failures are acked after the executor exhausts its budget, never retried
// again by the broker.
type JetStreamBackend struct {
	broker   *messagebroker.NATSClient
	store    domain.JobStore
	executor deliverer
	tracker  outcomeRecorder
	logger   *slog.Logger
	cfg      BrokerConfig
	now      func() time.Time

	consumeCtx jetstream.ConsumeContext
}

func NewJetStreamBackend(broker *messagebroker.NATSClient, store domain.JobStore, executor deliverer, tracker outcomeRecorder, logger *slog.Logger, cfg BrokerConfig) *JetStreamBackend {
	return &JetStreamBackend{
		broker:   broker,
		store:    store,
		executor: executor,
		tracker:  tracker,
		logger:   logger.With("component", "jetstream_backend"),
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
}

// Schedule enqueues a delayed work item for an already-persisted job. There
// is no transaction spanning the store write and this publish; a crash in
// between leaves a persisted job that never fires, which is the accepted
// at-least-once gap of this engine.
func (b *JetStreamBackend) Schedule(ctx context.Context, job *domain.ScheduledJob) error {
	data, err := json.Marshal(queueItem{JobID: job.ID})
	if err != nil {
		return fmt.Errorf("marshal queue item: %w", err)
	}
	if err := b.broker.Publish(ctx, brokerSubject, data); err != nil {
		return fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	b.logger.InfoContext(ctx, "Job enqueued", "job_id", job.ID, "scheduled_at", job.ScheduledAt)
	return nil
}

// Start ensures the stream and durable consumer exist and consumes until ctx
// is cancelled.
func (b *JetStreamBackend) Start(ctx context.Context) error {
	stream, err := b.broker.EnsureStream(ctx, b.cfg.Stream, []string{brokerSubject})
	if err != nil {
		return err
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:    brokerDurable,
		AckPolicy:  jetstream.AckExplicitPolicy,
		AckWait:    b.cfg.AckWait,
		MaxDeliver: b.cfg.MaxDeliver,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		b.HandleQueueItem(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}
	b.consumeCtx = cc
	b.logger.Info("JetStream backend consuming", "stream", b.cfg.Stream, "subject", brokerSubject, "max_deliver", b.cfg.MaxDeliver)

	<-ctx.Done()
	b.logger.Info("JetStream backend stopping", "reason", ctx.Err())
	return nil
}

func (b *JetStreamBackend) Stop() {
	if b.consumeCtx != nil {
		b.consumeCtx.Stop()
	}
}

// HandleQueueItem processes one delivered queue item. It must never panic or
// return: every failure path either acks (nothing left to do) or naks with a
// delay (the broker should try again later).
func (b *JetStreamBackend) HandleQueueItem(ctx context.Context, msg queueMsg) {
	var item queueItem
	if err := json.Unmarshal(msg.Data(), &item); err != nil {
		// Redelivery cannot fix a malformed payload.
		b.logger.ErrorContext(ctx, "Discarding malformed queue item", "error", err, "data", string(msg.Data()))
		b.ack(ctx, msg)
		return
	}
	logger := b.logger.With("job_id", item.JobID)

	job, err := b.store.GetByID(ctx, item.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.WarnContext(ctx, "Queue item references a missing job, discarding")
			b.ack(ctx, msg)
			return
		}
		// Store unreachable: infrastructure failure, let the broker retry.
		logger.WarnContext(ctx, "Job store unavailable, parking queue item", "error", err, "retry_in", storageRetryDelay)
		b.nak(ctx, msg, storageRetryDelay)
		return
	}

	if job.Status != domain.StatusScheduled {
		// A redelivered item for an already-terminal job; the visibility/ack
		// model makes this a duplicate, not an error.
		logger.InfoContext(ctx, "Job already terminal, discarding queue item", "status", job.Status)
		b.ack(ctx, msg)
		return
	}

	if wait := job.ScheduledAt.Sub(b.now()); wait > 0 {
		logger.InfoContext(ctx, "Job not due yet, parking queue item", "wait", wait)
		b.nak(ctx, msg, wait)
		return
	}

	timer := time.Now()
	handle, err := b.executor.Deliver(ctx, job.Destination, job.Content, job.Options)
	deliveryDurationHist.WithLabelValues(BackendJetStream).Observe(time.Since(timer).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			// Shutdown mid-delivery: leave the item unacked so another
			// consumer picks it up after AckWait.
			logger.InfoContext(ctx, "Delivery abandoned due to shutdown")
			return
		}
		logger.WarnContext(ctx, "Delivery failed", "destination", job.Destination, "error", err)
		b.tracker.RecordOutcome(ctx, job.ID, domain.StatusFailed, err)
		deliveriesCounter.WithLabelValues(BackendJetStream, string(domain.StatusFailed)).Inc()
		b.ack(ctx, msg)
		return
	}

	logger.InfoContext(ctx, "Delivery succeeded", "handle", handle)
	b.tracker.RecordOutcome(ctx, job.ID, domain.StatusSent, nil)
	deliveriesCounter.WithLabelValues(BackendJetStream, string(domain.StatusSent)).Inc()
	b.ack(ctx, msg)
}

func (b *JetStreamBackend) ack(ctx context.Context, msg queueMsg) {
	if err := msg.Ack(); err != nil {
		b.logger.WarnContext(ctx, "Failed to ack queue item", "error", err)
	}
}

func (b *JetStreamBackend) nak(ctx context.Context, msg queueMsg, delay time.Duration) {
	if err := msg.NakWithDelay(delay); err != nil {
		b.logger.WarnContext(ctx, "Failed to nak queue item", "error", err)
	}
}
