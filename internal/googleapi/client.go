// Package googleapi holds the JSON-over-HTTP plumbing shared by the Google
// REST clients: API key query authentication, status checks and error
// payload decoding.
package googleapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/lexiqai/voice-widget/internal/resilience"
)

// maxErrorBody bounds how much of a failed response is kept on APIError
const maxErrorBody = 64 << 10

// APIError is a non-2xx answer from a Google REST endpoint
type APIError struct {
	Service    string
	StatusCode int
	Status     string // e.g. INVALID_ARGUMENT
	Message    string
	Body       string // raw payload as returned
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s API returned status %d (%s): %s", e.Service, e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("%s API returned status %d: %s", e.Service, e.StatusCode, e.Body)
}

// Temporary reports whether the status is worth retrying
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// errorEnvelope is the standard Google error body
type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Client posts JSON to key-authenticated Google endpoints
type Client struct {
	service    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client. A nil httpClient uses a client without timeout;
// deadlines come from the request context.
func NewClient(service, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		service:    service,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// Service returns the name used in errors and logs
func (c *Client) Service() string {
	return c.service
}

// PostJSON sends body to endpoint with the API key appended as ?key= and
// decodes a 2xx answer into out. Non-2xx answers become *APIError; 429 and
// 5xx are additionally marked retryable.
func (c *Client) PostJSON(ctx context.Context, endpoint string, body, out interface{}) error {
	target, err := c.withKey(endpoint)
	if err != nil {
		return err
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", c.service, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", c.service, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", c.service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := c.decodeError(resp)
		if apiErr.Temporary() {
			return resilience.NewRetryableError(apiErr)
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", c.service, err)
	}
	return nil
}

func (c *Client) withKey(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid %s endpoint %q: %w", c.service, endpoint, err)
	}
	q := u.Query()
	q.Set("key", c.apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) decodeError(resp *http.Response) *APIError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	apiErr := &APIError{
		Service:    c.service,
		StatusCode: resp.StatusCode,
		Body:       string(raw),
	}

	var envelope errorEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil {
		apiErr.Status = envelope.Error.Status
		apiErr.Message = envelope.Error.Message
	}
	return apiErr
}
