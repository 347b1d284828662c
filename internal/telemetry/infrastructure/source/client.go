package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	telemetry "hydromet-cloud/internal/telemetry/domain"
)

// ErrFetch marks a transport or decode failure against a source endpoint.
// The whole batch for that URL aborts; the next scheduled run retries.
var ErrFetch = errors.New("source: fetch failed")

// Client retrieves raw telemetry payloads from station source endpoints.
type Client struct {
	client *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// WithTimeout overrides the request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.client.Timeout = timeout
		}
	}
}

// NewClient constructs a source client with a bounded request timeout.
func NewClient(opts ...Option) *Client {
	client := &Client{client: &http.Client{Timeout: 10 * time.Second}}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Fetch performs an HTTP GET against the source URL and decodes the raw
// telemetry payload.
func (c *Client) Fetch(ctx context.Context, url string) (telemetry.RawPayload, error) {
	if c == nil || c.client == nil {
		return telemetry.RawPayload{}, errors.New("source: nil client")
	}
	if url == "" {
		return telemetry.RawPayload{}, fmt.Errorf("%w: empty url", ErrFetch)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return telemetry.RawPayload{}, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return telemetry.RawPayload{}, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return telemetry.RawPayload{}, fmt.Errorf("%w: http %d", ErrFetch, resp.StatusCode)
	}

	var payload telemetry.RawPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return telemetry.RawPayload{}, fmt.Errorf("%w: decode: %v", ErrFetch, err)
	}
	return payload, nil
}
