// Package client is a small Supabase gateway: PostgREST queries, auth user
// lookup, storage buckets and realtime change feeds.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Client talks to one Supabase project.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	resilient  *ResilientClient
}

// Config holds client configuration. Setting Retry or Breaker wraps the
// transport with ResilientClient.
type Config struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
	Retry      *RetryConfig
	Breaker    *CircuitBreakerConfig
}

// New creates a client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("supabase: URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("supabase: APIKey is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	c := &Client{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
	}
	if cfg.Retry != nil || cfg.Breaker != nil {
		retry := DefaultRetryConfig()
		if cfg.Retry != nil {
			retry = *cfg.Retry
		}
		breaker := DefaultCircuitBreakerConfig()
		if cfg.Breaker != nil {
			breaker = *cfg.Breaker
		}
		c.resilient = NewResilientClient(ResilientClientConfig{
			BaseClient:           httpClient,
			RetryConfig:          retry,
			CircuitBreakerConfig: breaker,
		})
		httpClient = &http.Client{Transport: &resilientTransport{client: c.resilient}, Timeout: httpClient.Timeout}
	}
	c.httpClient = httpClient
	return c, nil
}

// BaseURL returns the project URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// APIKey returns the key requests are signed with.
func (c *Client) APIKey() string { return c.apiKey }

// Resilience returns the retrying transport, or nil when none is configured.
func (c *Client) Resilience() *ResilientClient { return c.resilient }

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if id := GetRequestID(ctx); id != "" {
		req.Header.Set("X-Request-Id", id)
	}
	return req, nil
}

func (c *Client) do(req *http.Request) (*Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: body, Headers: resp.Header}, nil
}

// Response is a raw API response.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	return decodeJSON(r.Body, v)
}

// Rows returns the number of records in an array body, or 1 for an object.
func (r *Response) Rows() int {
	parsed := gjson.ParseBytes(r.Body)
	switch {
	case parsed.IsArray():
		return len(parsed.Array())
	case parsed.IsObject():
		return 1
	}
	return 0
}

// Error returns an *APIError for statuses of 400 and above.
func (r *Response) Error() error {
	if r.StatusCode < 400 {
		return nil
	}
	apiErr := &APIError{StatusCode: r.StatusCode}
	if gjson.ValidBytes(r.Body) {
		parsed := gjson.ParseBytes(r.Body)
		apiErr.Code = parsed.Get("code").String()
		for _, key := range []string{"message", "msg", "error_description", "error"} {
			if v := parsed.Get(key); v.Exists() && v.String() != "" {
				apiErr.Message = v.String()
				break
			}
		}
		apiErr.Details = parsed.Get("details").String()
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(r.StatusCode)
	}
	return apiErr
}

// APIError is a failed Supabase call. Code carries the PostgREST or Postgres
// error code when the body has one (for example PGRST116 or 23505).
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("supabase error %d: %s", e.StatusCode, e.Message)
}

// Postgres and PostgREST codes the stores branch on.
const (
	CodeUniqueViolation = "23505"
	CodeCheckViolation  = "23514"
	CodeNoRows          = "PGRST116"
	CodeNoFunction      = "PGRST202"
	CodeRaisedNoData    = "P0002"
	CodeOutOfRange      = "22003"
)

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
