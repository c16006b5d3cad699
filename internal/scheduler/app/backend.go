package app

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/chatrelay/chatrelay/internal/scheduler/domain"
)

// Backend names, matched against the DISPATCH_BACKEND config value.
const (
	BackendPoller    = "poller"
	BackendJetStream = "jetstream"
)

// Backend decides when a persisted job fires. Exactly one backend is active
// per deployment; the choice is made at startup and is not switchable at
// runtime. Start blocks until ctx is cancelled; Stop releases backend
// resources after Start has returned.
type Backend interface {
	// Schedule arranges firing for a job the caller has already persisted.
	Schedule(ctx context.Context, job *domain.ScheduledJob) error
	Start(ctx context.Context) error
	Stop()
}

// deliverer and outcomeRecorder are the slices of DeliveryExecutor and
// StatusTracker the backends depend on, kept narrow for mocking.
type deliverer interface {
	Deliver(ctx context.Context, destination string, content, options json.RawMessage) (string, error)
}

type outcomeRecorder interface {
	RecordOutcome(ctx context.Context, jobID uuid.UUID, outcome domain.JobStatus, deliveryErr error)
}
