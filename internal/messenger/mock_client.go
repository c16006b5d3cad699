package messenger

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// MockClient is a simulated platform client for development and tests.
type MockClient struct {
	logger       *slog.Logger
	failRate     float64 // chance to simulate a send failure (0.0 to 1.0)
	minLatencyMs int
	maxLatencyMs int

	mu    sync.Mutex
	state ConnState
	sent  int
}

func NewMockClient(logger *slog.Logger, failRate float64, minLatencyMs, maxLatencyMs int) *MockClient {
	return &MockClient{
		logger:       logger.With("component", "messenger_mock_client"),
		failRate:     failRate,
		minLatencyMs: minLatencyMs,
		maxLatencyMs: maxLatencyMs,
		state:        StateReady,
	}
}

// SetState overrides the reported connectivity state.
func (c *MockClient) SetState(state ConnState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}

func (c *MockClient) Send(ctx context.Context, destination string, content Content, options Options) (string, error) {
	if c.maxLatencyMs > c.minLatencyMs {
		latency := c.minLatencyMs + rand.Intn(c.maxLatencyMs-c.minLatencyMs+1)
		select {
		case <-time.After(time.Duration(latency) * time.Millisecond):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	c.logger.InfoContext(ctx, "MockClient: Send called",
		"destination", destination,
		"content_type", content.Type,
		"as_document", options.AsDocument,
	)

	if rand.Float64() < c.failRate {
		return "", fmt.Errorf("%w: simulated failure for %s", ErrConnectionLost, destination)
	}

	c.mu.Lock()
	c.sent++
	handle := fmt.Sprintf("mock-%d", c.sent)
	c.mu.Unlock()
	return handle, nil
}

func (c *MockClient) State(ctx context.Context) ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
