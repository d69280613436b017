package connection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/doombubbles/time-machine/internal/infra/buildinfo"
)

// DefaultTimeout bounds a single request to the daemon.
const DefaultTimeout = 30 * time.Second

// HTTPClient provides HTTP communication with the daemon.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// UnixScheme prefixes daemon addresses naming a Unix socket.
const UnixScheme = "unix://"

// NewHTTPClient creates a new HTTP client for the daemon at addr. An
// address without a scheme uses http; unix:///path/to.sock dials the
// daemon's local socket.
func NewHTTPClient(addr string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := &http.Client{Timeout: timeout}

	if path, ok := strings.CutPrefix(addr, UnixScheme); ok {
		client.Transport = &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", path)
			},
		}
		return &HTTPClient{baseURL: "http://unix", client: client}
	}

	baseURL := strings.TrimRight(addr, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	return &HTTPClient{baseURL: baseURL, client: client}
}

// BaseURL returns the base URL of the client.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// APIError is a non-2xx response from the daemon.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if d, ok := e.Details.(string); ok && d != "" {
		msg += ": " + d
	}
	return msg
}

// envelope mirrors the bridge's response envelope.
type envelope struct {
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
	Details   any             `json:"details"`
}

// Get performs a GET request and decodes the envelope data into target.
func (c *HTTPClient) Get(ctx context.Context, path string, target any) error {
	return c.Do(ctx, http.MethodGet, path, nil, target)
}

// Post performs a POST request with a JSON body and decodes the envelope
// data into target.
func (c *HTTPClient) Post(ctx context.Context, path string, body, target any) error {
	return c.Do(ctx, http.MethodPost, path, body, target)
}

// Delete performs a DELETE request.
func (c *HTTPClient) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil)
}

// Do sends a request. A nil target discards the response data.
func (c *HTTPClient) Do(ctx context.Context, method, path string, body, target any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "timemachine/"+buildinfo.Version)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	return ParseResponse(resp, target)
}

// ParseResponse decodes an envelope response. Errors become *APIError.
func ParseResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Message, Details: env.Details}
		if decodeErr != nil || apiErr.Message == "" {
			apiErr.Code = resp.Header.Get("X-Error-Code")
			apiErr.Message = fmt.Sprintf("request failed with status %d", resp.StatusCode)
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("parse response: %w", decodeErr)
	}

	if target != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, target); err != nil {
			return fmt.Errorf("parse response data: %w", err)
		}
	}
	return nil
}
