// Package transport provides the JSON HTTP client the sync engine fetches
// through, plus the error taxonomy the engine's retry and session handling
// decide on: NetworkError, HTTPError, and ValidationError.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/goliatone/go-resource-sync/internal/logging"
)

const defaultTimeout = 10 * time.Second

// Options configures a Client.
type Options struct {
	// BaseURL is the API root, e.g. "https://api.example.com". Required.
	BaseURL string

	// TokenSource supplies bearer tokens for the Authorization header.
	// Optional; requests go out unauthenticated without it.
	TokenSource oauth2.TokenSource

	// UserAgent is sent with every request when non-empty.
	UserAgent string

	// Timeout bounds each request. Defaults to 10s. Ignored when HTTPClient
	// is provided.
	Timeout time.Duration

	// HTTPClient overrides the underlying client, for tests and custom
	// transports.
	HTTPClient *http.Client

	// Logger receives debug output. Defaults to a no-op logger.
	Logger *slog.Logger
}

// Client is a JSON-over-HTTP API client. Responses outside 2xx are mapped
// to the package's error taxonomy so callers can classify without touching
// net/http. All methods are safe for concurrent use.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	tokens  oauth2.TokenSource
	log     *slog.Logger
}

// userAgentRoundTripper stamps a User-Agent header on every request. The
// request is cloned so the caller's copy is never mutated.
type userAgentRoundTripper struct {
	wrapped   http.RoundTripper
	userAgent string
}

func (rt *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", rt.userAgent)
	return rt.wrapped.RoundTrip(clone)
}

// New creates a Client for the given API root.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("transport: BaseURL is required")
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("transport: invalid base URL %q: %w", opts.BaseURL, err)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if opts.UserAgent != "" {
		transport := httpClient.Transport
		if transport == nil {
			transport = http.DefaultTransport
		}
		wrapped := *httpClient
		wrapped.Transport = &userAgentRoundTripper{wrapped: transport, userAgent: opts.UserAgent}
		httpClient = &wrapped
	}

	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}

	return &Client{
		baseURL: base,
		http:    httpClient,
		tokens:  opts.TokenSource,
		log:     log,
	}, nil
}

// Get issues a GET with optional query parameters, decoding the response
// into out when out is non-nil.
func (c *Client) Get(ctx context.Context, path string, params map[string]string, out any) error {
	return c.Do(ctx, http.MethodGet, path, params, nil, out)
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, nil, body, out)
}

// Put issues a PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, nil, body, out)
}

// Patch issues a PATCH with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPatch, path, nil, body, out)
}

// Delete issues a DELETE, ignoring any response body.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// Do performs one request. Non-2xx responses come back as *HTTPError or
// *ValidationError; transport failures as *NetworkError; a cancelled ctx as
// the context's own error.
func (c *Client) Do(ctx context.Context, method, path string, params map[string]string, body, out any) error {
	urlStr, err := c.buildURL(path, params)
	if err != nil {
		return err
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s request: %w", method, path, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, reqBody)
	if err != nil {
		return fmt.Errorf("build %s %s request: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return fmt.Errorf("acquire token: %w", err)
		}
		token.SetAuthHeader(req)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &NetworkError{URL: urlStr, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &NetworkError{URL: urlStr, Err: fmt.Errorf("read response body: %w", err)}
	}

	c.log.Debug("request completed",
		"method", method, "path", path,
		"status", resp.StatusCode, "elapsed", time.Since(started))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(resp, data)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode %s %s response: %w", method, path, err)
		}
	}
	return nil
}

// buildURL resolves path against the base URL and merges query parameters.
func (c *Client) buildURL(path string, params map[string]string) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid request path %q: %w", path, err)
	}
	full := c.baseURL.ResolveReference(ref)
	if len(params) > 0 {
		q := full.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		full.RawQuery = q.Encode()
	}
	return full.String(), nil
}

// apiDetail is the error body shape: {"detail": ...} where detail is either
// a message string or a list of field errors.
type apiDetail struct {
	Detail json.RawMessage `json:"detail"`
}

type fieldError struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

// responseError maps a non-2xx response to the error taxonomy.
func responseError(resp *http.Response, data []byte) error {
	message, fields := parseDetail(data)

	if resp.StatusCode == http.StatusUnprocessableEntity {
		if message == "" {
			message = "invalid request"
		}
		return &ValidationError{Message: message, Fields: fields}
	}

	return &HTTPError{
		Status:     resp.StatusCode,
		Message:    message,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

// parseDetail extracts the detail message and any per-field errors from an
// error body. Unparseable bodies fall back to the raw text.
func parseDetail(data []byte) (string, map[string][]string) {
	if len(data) == 0 {
		return "", nil
	}
	var envelope apiDetail
	if err := json.Unmarshal(data, &envelope); err != nil || len(envelope.Detail) == 0 {
		return strings.TrimSpace(string(data)), nil
	}

	var message string
	if err := json.Unmarshal(envelope.Detail, &message); err == nil {
		return message, nil
	}

	var fieldErrs []fieldError
	if err := json.Unmarshal(envelope.Detail, &fieldErrs); err == nil {
		fields := make(map[string][]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields[fieldName(fe.Loc)] = append(fields[fieldName(fe.Loc)], fe.Msg)
		}
		return "invalid request", fields
	}

	return strings.TrimSpace(string(envelope.Detail)), nil
}

// fieldName flattens a detail location like ["body", "settings", "temperature"]
// into "settings.temperature".
func fieldName(loc []any) string {
	parts := make([]string, 0, len(loc))
	for i, part := range loc {
		if i == 0 {
			if s, ok := part.(string); ok && (s == "body" || s == "query" || s == "path") {
				continue
			}
		}
		parts = append(parts, fmt.Sprintf("%v", part))
	}
	if len(parts) == 0 {
		return "request"
	}
	return strings.Join(parts, ".")
}

// parseRetryAfter handles both forms of the header: delay seconds and an
// HTTP date.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
