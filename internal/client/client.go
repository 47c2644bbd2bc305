// Package client talks to the local API of a running agencysync instance.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/marcus/agencysync/internal/api"
	"github.com/marcus/agencysync/internal/orchestrator"
	"github.com/marcus/agencysync/internal/state"
)

// Sentinel errors for common HTTP error classes.
var (
	ErrNotFound    = errors.New("not found")
	ErrBadRequest  = errors.New("bad request")
	ErrUnavailable = errors.New("unavailable")
)

// Client is an HTTP client for the instance API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New creates a new client.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// HealthResponse is the response from GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Online bool   `json:"online"`
}

func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, "GET", "/healthz", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Metrics(ctx context.Context) (*api.MetricsSnapshot, error) {
	var resp api.MetricsSnapshot
	if err := c.do(ctx, "GET", "/metricz", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// State fetches the full state tree.
func (c *Client) State(ctx context.Context) (*state.AppState, error) {
	var resp state.AppState
	if err := c.do(ctx, "GET", "/v1/state", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Collection fetches one collection undecoded.
func (c *Client) Collection(ctx context.Context, name string) (json.RawMessage, error) {
	var resp json.RawMessage
	if err := c.do(ctx, "GET", "/v1/state/"+name, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Dispatch submits an encoded action ({"type": ..., "payload": ...}).
func (c *Client) Dispatch(ctx context.Context, action json.RawMessage) (*api.DispatchResponse, error) {
	var resp api.DispatchResponse
	if err := c.do(ctx, "POST", "/v1/actions", action, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Status(ctx context.Context) (*orchestrator.Status, error) {
	var resp orchestrator.Status
	if err := c.do(ctx, "GET", "/v1/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Queue(ctx context.Context) ([]api.QueueEntry, error) {
	var resp []api.QueueEntry
	if err := c.do(ctx, "GET", "/v1/queue", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Replay drains the queue. An incomplete pass returns the partial result
// together with an error.
func (c *Client) Replay(ctx context.Context) (*api.ReplayResponse, error) {
	status, body, err := c.send(ctx, "POST", "/v1/queue/replay", nil)
	if err != nil {
		return nil, err
	}
	var resp api.ReplayResponse
	switch {
	case status == http.StatusOK, status == http.StatusBadGateway:
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("unmarshal response: %w", err)
		}
		if resp.Error != "" {
			return &resp, fmt.Errorf("replay incomplete: %s", resp.Error)
		}
		return &resp, nil
	default:
		return nil, decodeError(status, body)
	}
}

// ClearQueue drops every queued action and returns how many were dropped.
func (c *Client) ClearQueue(ctx context.Context) (int64, error) {
	var resp struct {
		Cleared int64 `json:"cleared"`
	}
	if err := c.do(ctx, "DELETE", "/v1/queue", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Cleared, nil
}

// Refresh reloads state from the remote and returns the new collection sizes.
func (c *Client) Refresh(ctx context.Context) (map[string]int, error) {
	var resp map[string]int
	if err := c.do(ctx, "POST", "/v1/refresh", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// SetNetwork forces the instance online or offline.
func (c *Client) SetNetwork(ctx context.Context, online bool) (*orchestrator.Status, error) {
	var resp orchestrator.Status
	if err := c.do(ctx, "PUT", "/v1/network", api.NetworkRequest{Online: &online}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ReleaseNetwork hands connectivity back to the probes.
func (c *Client) ReleaseNetwork(ctx context.Context) (*orchestrator.Status, error) {
	var resp orchestrator.Status
	if err := c.do(ctx, "DELETE", "/v1/network", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- HTTP helpers ---

// APIError is a structured error returned by the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	status, respBody, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	if status >= 400 {
		return decodeError(status, respBody)
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var bodyReader io.Reader
	switch b := body.(type) {
	case nil:
	case json.RawMessage:
		bodyReader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func decodeError(status int, body []byte) error {
	var envelope api.ErrorResponse
	if json.Unmarshal(body, &envelope) != nil || envelope.Error.Code == "" {
		return fmt.Errorf("HTTP %d: %s", status, string(body))
	}
	apiErr := &APIError{Status: status, Code: envelope.Error.Code, Message: envelope.Error.Message}
	switch status {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrNotFound, apiErr)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %w", ErrBadRequest, apiErr)
	case http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %w", ErrUnavailable, apiErr)
	default:
		return apiErr
	}
}
