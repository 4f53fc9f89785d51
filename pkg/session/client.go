package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"os"
	"strings"
	"time"
)

// DefaultBaseURL is used by NewClientFromEnv when PORTAL_AUTH_URL is unset.
const DefaultBaseURL = "http://localhost:8080"

const defaultRequestTimeout = 10 * time.Second

// Client is a low-level client for the portal authentication service. It
// performs one HTTP round trip per method. Tokens are opaque to it: the
// service manages them via HTTP-only cookies which the client's jar carries
// on every request, so no token bytes are ever held in client code.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a client for the auth service at baseURL with an
// in-memory cookie jar and a 10 second request timeout.
func NewClient(baseURL string) *Client {
	jar, _ := cookiejar.New(nil) // nil options never fail
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: defaultRequestTimeout,
			Jar:     jar,
		},
	}
}

// NewClientFromEnv creates a client using the PORTAL_AUTH_URL environment
// variable, falling back to DefaultBaseURL.
func NewClientFromEnv() *Client {
	baseURL := os.Getenv("PORTAL_AUTH_URL")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return NewClient(baseURL)
}

// normalizeEmail lowercases and trims an address so the same account always
// produces the same credential payload.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ============================================================================
// HTTP Helpers
// ============================================================================

func (c *Client) url(path string) string {
	return c.BaseURL + path
}

// postJSON sends body (may be nil) as JSON and decodes a 2xx response into out
// (may be nil). Non-2xx responses are returned as typed errors.
func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	return decodeJSON(resp, out)
}

// getJSON performs a GET request and decodes a 2xx response into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	return decodeJSON(resp, out)
}

// decodeJSON reads the full body once so it can serve both error parsing and
// success decoding.
func decodeJSON(resp *http.Response, out any) error {
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	if out == nil || len(bodyBytes) == 0 {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
