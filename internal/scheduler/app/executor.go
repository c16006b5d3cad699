package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chatrelay/chatrelay/internal/messenger"
	"github.com/chatrelay/chatrelay/internal/scheduler/domain"
)

// ExecutorConfig holds the retry policy for delivery attempts.
type ExecutorConfig struct {
	MaxRetries  int           `mapstructure:"DELIVERY_MAX_RETRIES"`
	BaseDelay   time.Duration `mapstructure:"DELIVERY_RETRY_BASE_DELAY"`
	SendTimeout time.Duration `mapstructure:"DELIVERY_SEND_TIMEOUT"`
}

func (c ExecutorConfig) withDefaults() ExecutorConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 30 * time.Second
	}
	return c
}

// DeliveryExecutor wraps the platform client's send call with a connectivity
// precondition, bounded retries with exponential backoff, a per-attempt
// timeout, and post-hoc error classification.
type DeliveryExecutor struct {
	client messenger.Client
	logger *slog.Logger
	cfg    ExecutorConfig
}

func NewDeliveryExecutor(client messenger.Client, logger *slog.Logger, cfg ExecutorConfig) *DeliveryExecutor {
	return &DeliveryExecutor{
		client: client,
		logger: logger.With("component", "delivery_executor"),
		cfg:    cfg.withDefaults(),
	}
}

// Deliver attempts to send the message and returns the platform's delivery
// handle on success. On exhaustion the last attempt's error is classified
// into the domain taxonomy; errors.Is against the domain sentinels works on
// the returned error.
func (e *DeliveryExecutor) Deliver(ctx context.Context, destination string, content, options json.RawMessage) (string, error) {
	if state := e.client.State(ctx); state != messenger.StateReady {
		// Retrying against a disconnected client wastes the retry budget.
		e.logger.WarnContext(ctx, "Messaging client not ready, skipping send", "destination", destination, "state", state)
		return "", fmt.Errorf("%w: client state %s", domain.ErrClientNotReady, state)
	}

	var msgContent messenger.Content
	if err := json.Unmarshal(content, &msgContent); err != nil {
		return "", fmt.Errorf("%w: decode content: %v", domain.ErrUnknownPlatform, err)
	}
	var msgOptions messenger.Options
	if len(options) > 0 {
		if err := json.Unmarshal(options, &msgOptions); err != nil {
			return "", fmt.Errorf("%w: decode options: %v", domain.ErrUnknownPlatform, err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			backoff := e.cfg.BaseDelay * time.Duration(1<<(attempt-2))
			e.logger.InfoContext(ctx, "Backing off before retry", "destination", destination, "attempt", attempt, "backoff", backoff)
			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				// Shutdown abandons the wait instead of finishing it.
				timer.Stop()
				return "", ctx.Err()
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.SendTimeout)
		handle, err := e.client.Send(attemptCtx, destination, msgContent, msgOptions)
		cancel()
		if err == nil {
			deliveryAttemptsHist.Observe(float64(attempt))
			e.logger.InfoContext(ctx, "Message delivered", "destination", destination, "handle", handle, "attempt", attempt)
			return handle, nil
		}

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
		e.logger.WarnContext(ctx, "Send attempt failed", "destination", destination, "attempt", attempt, "error", err)
	}

	deliveryAttemptsHist.Observe(float64(e.cfg.MaxRetries))
	return "", classify(lastErr)
}

// classify maps the final attempt's error onto the domain taxonomy. The
// classification is only known post-hoc, so even non-retriable failures such
// as a rejected recipient were attempted like the others.
func classify(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", domain.ErrDeliveryTimeout, err)
	case errors.Is(err, messenger.ErrRecipientNotFound):
		return fmt.Errorf("%w: %v", domain.ErrInvalidRecipient, err)
	case errors.Is(err, messenger.ErrConnectionLost), errors.Is(err, messenger.ErrSerialization):
		return fmt.Errorf("%w: %v", domain.ErrTransientPlatform, err)
	default:
		return fmt.Errorf("%w: %v", domain.ErrUnknownPlatform, err)
	}
}
