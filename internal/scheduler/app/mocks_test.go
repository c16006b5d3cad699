package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/chatrelay/chatrelay/internal/messenger"
	"github.com/chatrelay/chatrelay/internal/scheduler/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Mocks ---

type MockJobStore struct {
	mock.Mock
}

func (m *MockJobStore) Create(ctx context.Context, job *domain.ScheduledJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ScheduledJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ScheduledJob), args.Error(1)
}

func (m *MockJobStore) ListDue(ctx context.Context, asOf time.Time, limit int) ([]*domain.ScheduledJob, error) {
	args := m.Called(ctx, asOf, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ScheduledJob), args.Error(1)
}

func (m *MockJobStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.JobStatus, lastError sql.NullString) error {
	args := m.Called(ctx, id, status, lastError)
	return args.Error(0)
}

type MockDeliverer struct {
	mock.Mock
}

func (m *MockDeliverer) Deliver(ctx context.Context, destination string, content, options json.RawMessage) (string, error) {
	args := m.Called(ctx, destination, content, options)
	return args.String(0), args.Error(1)
}

type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) RecordOutcome(ctx context.Context, jobID uuid.UUID, outcome domain.JobStatus, deliveryErr error) {
	m.Called(ctx, jobID, outcome, deliveryErr)
}

type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Schedule(ctx context.Context, job *domain.ScheduledJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockBackend) Start(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockBackend) Stop() {
	m.Called()
}

// scriptedClient is a messenger.Client whose attempts succeed or fail
// according to a per-call script.
type scriptedClient struct {
	mu      sync.Mutex
	state   messenger.ConnState
	errs    []error // errs[i] is the outcome of attempt i+1; nil means success
	latency time.Duration
	calls   int
}

func newScriptedClient(state messenger.ConnState, errs ...error) *scriptedClient {
	return &scriptedClient{state: state, errs: errs}
}

func (c *scriptedClient) Send(ctx context.Context, destination string, content messenger.Content, options messenger.Options) (string, error) {
	c.mu.Lock()
	c.calls++
	call := c.calls
	c.mu.Unlock()

	if c.latency > 0 {
		select {
		case <-time.After(c.latency):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if call <= len(c.errs) && c.errs[call-1] != nil {
		return "", c.errs[call-1]
	}
	return "handle-1", nil
}

func (c *scriptedClient) State(ctx context.Context) messenger.ConnState {
	return c.state
}

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// mockQueueMsg records which acknowledgement path the broker handler took.
type mockQueueMsg struct {
	data     []byte
	acked    bool
	naked    bool
	nakDelay time.Duration
}

func (m *mockQueueMsg) Data() []byte { return m.data }

func (m *mockQueueMsg) Ack() error {
	m.acked = true
	return nil
}

func (m *mockQueueMsg) NakWithDelay(delay time.Duration) error {
	m.naked = true
	m.nakDelay = delay
	return nil
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}
