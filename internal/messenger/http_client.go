package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// HTTPClient talks to the messaging-platform client daemon over its local
// HTTP API. The daemon owns the platform session; this adapter only maps its
// responses onto the typed errors the executor classifies on.
type HTTPClient struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewHTTPClient(logger *slog.Logger, baseURL, apiKey string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 35 * time.Second}
	}
	return &HTTPClient{
		logger:     logger.With("component", "messenger_http_client"),
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

type sendRequestBody struct {
	Destination string  `json:"destination"`
	Content     Content `json:"content"`
	Options     Options `json:"options"`
}

type sendResponseBody struct {
	Handle string `json:"handle"`
	Error  string `json:"error,omitempty"`
	Code   string `json:"code,omitempty"`
}

type stateResponseBody struct {
	State string `json:"state"`
}

func (c *HTTPClient) Send(ctx context.Context, destination string, content Content, options Options) (string, error) {
	reqBytes, err := json.Marshal(sendRequestBody{Destination: destination, Content: content, Options: options})
	if err != nil {
		return "", fmt.Errorf("%w: marshal send request: %v", ErrSerialization, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewBuffer(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create send request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Transport-level failure: the daemon is unreachable. Context errors
		// are passed through so the executor can count a timed-out attempt.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %v", ErrConnectionLost, err)
	}

	var respBody sendResponseBody
	if err := json.Unmarshal(body, &respBody); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrSerialization, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		c.logger.InfoContext(ctx, "Message accepted by platform client", "destination", destination, "handle", respBody.Handle)
		return respBody.Handle, nil
	case resp.StatusCode == http.StatusNotFound || respBody.Code == "recipient_not_found":
		return "", fmt.Errorf("%w: %s", ErrRecipientNotFound, respBody.Error)
	case resp.StatusCode == http.StatusBadGateway || resp.StatusCode == http.StatusServiceUnavailable:
		return "", fmt.Errorf("%w: %s", ErrConnectionLost, respBody.Error)
	case respBody.Code == "serialization_error":
		return "", fmt.Errorf("%w: %s", ErrSerialization, respBody.Error)
	default:
		return "", fmt.Errorf("platform client returned status %d: %s", resp.StatusCode, respBody.Error)
	}
}

// State queries the daemon's connectivity state. Any failure to reach the
// daemon is reported as disconnected rather than an error; the caller only
// needs a go/no-go answer.
func (c *HTTPClient) State(ctx context.Context) ConnState {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/state", nil)
	if err != nil {
		return StateDisconnected
	}
	if c.apiKey != "" {
		httpReq.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.WarnContext(ctx, "Failed to query platform client state", "error", err)
		return StateDisconnected
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return StateDisconnected
	}

	var respBody stateResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
		return StateDisconnected
	}

	switch ConnState(respBody.State) {
	case StateReady, StateConnected, StateConnecting, StateDisconnected:
		return ConnState(respBody.State)
	default:
		return StateDisconnected
	}
}
