// Package billing provides a client for the billing control API.
//
// FILES:
//   - client.go: Client interface, HTTP client and helpers
//
// The API surface consumed is minimal: get billing info for a project
// (billing-enabled flag) and update billing info with an empty billing
// account reference to unlink, which disables billing.
package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// DefaultBaseURL is the production billing control API base URL.
const DefaultBaseURL = "https://cloudbilling.googleapis.com"

// ErrBillingControlFailure marks a disable call whose post-condition (billing
// account unlinked) was not observed. Hard assertion, propagated to the caller.
var ErrBillingControlFailure = errors.New("billing control failure")

// Client controls the billing state of cloud projects.
type Client interface {
	// IsBillingEnabled reports whether billing is confirmed enabled for a
	// project. Unknown or absent billing info counts as not enabled.
	IsBillingEnabled(ctx context.Context, projectID string) (bool, error)

	// DisableBilling unlinks the project's billing account and verifies
	// the unlink took effect.
	DisableBilling(ctx context.Context, projectID string) error
}

// =============================================================================
// HTTP Client
// =============================================================================

// HTTPClient is the billing control API client.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ Client = (*HTTPClient)(nil)

// Option configures the HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(client *HTTPClient) {
		client.httpClient = c
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(client *HTTPClient) {
		client.httpClient.Timeout = timeout
	}
}

// NewHTTPClient creates a new billing control API client.
// It reads BILLING_API_BASE_URL and BILLING_API_TOKEN from the environment
// when the arguments are empty.
func NewHTTPClient(baseURL, token string, opts ...Option) *HTTPClient {
	if baseURL == "" {
		baseURL = os.Getenv("BILLING_API_BASE_URL")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if token == "" {
		token = os.Getenv("BILLING_API_TOKEN")
	}

	c := &HTTPClient{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// billingInfo is the billing state of one project as reported by the API.
type billingInfo struct {
	Name               string `json:"name"`
	BillingAccountName string `json:"billingAccountName"`
	BillingEnabled     bool   `json:"billingEnabled"`
}

// IsBillingEnabled fetches the project's billing info and reports whether
// billing is confirmed enabled. A project without billing info, or with an
// unknown status, is treated as not enabled.
func (c *HTTPClient) IsBillingEnabled(ctx context.Context, projectID string) (bool, error) {
	var info billingInfo
	if err := c.get(ctx, "/v1/projects/"+projectID+"/billingInfo", &info); err != nil {
		return false, fmt.Errorf("fetching billing info for %s: %w", projectID, err)
	}
	return info.BillingEnabled, nil
}

// DisableBilling unlinks the project's billing account by updating its
// billing info with an empty billing account reference, then asserts the
// account is no longer linked.
func (c *HTTPClient) DisableBilling(ctx context.Context, projectID string) error {
	payload := struct {
		BillingAccountName string `json:"billingAccountName"`
	}{BillingAccountName: ""}

	var updated billingInfo
	if err := c.put(ctx, "/v1/projects/"+projectID+"/billingInfo", payload, &updated); err != nil {
		return fmt.Errorf("updating billing info for %s: %w", projectID, err)
	}

	if updated.BillingAccountName != "" {
		return fmt.Errorf("%w: billing account still linked for %s: %s",
			ErrBillingControlFailure, projectID, updated.BillingAccountName)
	}
	return nil
}

// =============================================================================
// HTTP Helpers
// =============================================================================

func (c *HTTPClient) get(ctx context.Context, path string, result interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

func (c *HTTPClient) put(ctx context.Context, path string, payload, result interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}
	return c.do(ctx, http.MethodPut, path, body, result)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte, result interface{}) error {
	url := c.baseURL + path

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "budget-sentinel/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("not authorized (status %d)", resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	return nil
}
