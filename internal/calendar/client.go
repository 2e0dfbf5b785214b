// Package calendar talks to the external calendar provider. Event
// deletion is owned by the scheduling layer, so only create and update
// exist here.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// EventRequest is the payload for a calendar create or update.
type EventRequest struct {
	Title    string    `json:"title"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	Notes    string    `json:"notes,omitempty"`
}

// Client is the narrow surface the outbox handlers depend on.
// CreateEvent returns an empty id to signal a soft failure (provider
// accepted the call but produced no event yet); UpdateEvent signals the
// same with false. Errors are reserved for transport-level failures.
type Client interface {
	CreateEvent(ctx context.Context, req EventRequest) (string, error)
	UpdateEvent(ctx context.Context, externalID string, req EventRequest) (bool, error)
}

// HTTPClient is the production implementation.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type eventResponse struct {
	ID string `json:"id"`
}

func (c *HTTPClient) CreateEvent(ctx context.Context, req EventRequest) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, "/v1/events", req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		// Provider queued the event but has no id yet.
		return "", nil
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("calendar create failed with status %d", resp.StatusCode)
	}

	var out eventResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding calendar response: %w", err)
	}
	return out.ID, nil
}

func (c *HTTPClient) UpdateEvent(ctx context.Context, externalID string, req EventRequest) (bool, error) {
	resp, err := c.do(ctx, http.MethodPut, "/v1/events/"+externalID, req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusLocked {
		// Event exists but is not updatable right now.
		return false, nil
	}
	if resp.StatusCode >= 400 {
		return false, fmt.Errorf("calendar update failed with status %d", resp.StatusCode)
	}
	return true, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding calendar request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating calendar request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Keep provider error detail out of anything user-visible.
		return nil, fmt.Errorf("calendar request failed: %w", err)
	}
	return resp, nil
}
