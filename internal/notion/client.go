package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Defaults applied by New for zero-valued Config fields.
const (
	DefaultBaseURL   = "https://api.notion.com/v1"
	DefaultVersion   = "2025-09-03"
	DefaultRPS       = 3.0
	DefaultTimeout   = 30 * time.Second
	DefaultPageSize  = 100
	rateLimiterBurst = 10
	maxErrorBody     = 500
)

// Config configures a Client.
type Config struct {
	Token        string
	BaseURL      string
	Version      string
	Retry        RetryPolicy
	RateLimitRPS float64
	Timeout      time.Duration

	// HTTPClient overrides the transport. Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client talks to the remote block-tree API.
//
// Thread-safety: a Client is safe for concurrent use; all callers share one
// rate limiter.
type Client struct {
	token   string
	baseURL string
	version string
	retry   RetryPolicy
	limiter *rate.Limiter
	http    *http.Client

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Client. A token is required.
func New(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("notion: token is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	version := cfg.Version
	if version == "" {
		version = DefaultVersion
	}
	retry := cfg.Retry
	if retry.MaxAttempts < 1 {
		retry = DefaultRetryPolicy()
	}
	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = DefaultRPS
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		token:   cfg.Token,
		baseURL: baseURL,
		version: version,
		retry:   retry,
		limiter: rate.NewLimiter(rate.Limit(rps), rateLimiterBurst),
		http:    hc,
		sleep:   sleepContext,
	}, nil
}

// do sends one logical request, retrying as the policy allows, and decodes
// the JSON response into a generic object. Empty bodies decode to an empty
// object.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (map[string]any, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("notion: encode %s %s: %w", method, path, err)
		}
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		start := time.Now()
		resp, err := c.send(ctx, method, endpoint, payload)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			RequestsTotal.WithLabelValues(method, "error").Inc()
			lastErr = fmt.Errorf("notion: %s %s: %w", method, path, err)
			if !c.waitRetry(ctx, attempt, 0, "network_error", method, path, lastErr) {
				break
			}
			continue
		}

		RequestsTotal.WithLabelValues(method, strconv.Itoa(resp.status)).Inc()
		slog.Debug("notion request",
			"method", method,
			"path", path,
			"status", resp.status,
			"attempt", attempt+1,
			"elapsed", time.Since(start),
		)

		if resp.status >= 200 && resp.status < 300 {
			return decodeObject(resp.body)
		}

		apiErr := newAPIError(method, path, resp.status, resp.body)
		if !apiErr.Retryable() {
			return nil, apiErr
		}

		lastErr = apiErr
		reason := "server_error"
		if resp.status == http.StatusTooManyRequests {
			reason = "rate_limited"
		}
		if !c.waitRetry(ctx, attempt, parseRetryAfter(resp.header), reason, method, path, lastErr) {
			break
		}
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, c.retry.MaxAttempts, lastErr)
}

// waitRetry sleeps before the next attempt. Returns false when no attempts
// remain or ctx ended during the wait.
func (c *Client) waitRetry(ctx context.Context, attempt int, retryAfter time.Duration, reason, method, path string, cause error) bool {
	if attempt+1 >= c.retry.MaxAttempts {
		return false
	}
	delay := c.retry.Backoff(attempt, retryAfter)
	RetriesTotal.WithLabelValues(reason).Inc()
	slog.Warn("notion request failed, retrying",
		"method", method,
		"path", path,
		"attempt", attempt+1,
		"reason", reason,
		"delay", delay,
		"error", cause,
	)
	return c.sleep(ctx, delay) == nil
}

type rawResponse struct {
	status int
	header http.Header
	body   []byte
}

func (c *Client) send(ctx context.Context, method, endpoint string, payload []byte) (*rawResponse, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", c.version)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &rawResponse{status: resp.StatusCode, header: resp.Header, body: body}, nil
}

func decodeObject(body []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("notion: decode response: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func newAPIError(method, path string, status int, body []byte) *APIError {
	apiErr := &APIError{Status: status, Method: method, Path: path}
	var parsed struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && (parsed.Code != "" || parsed.Message != "") {
		apiErr.Code = parsed.Code
		apiErr.Message = parsed.Message
		return apiErr
	}
	msg := string(body)
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	apiErr.Message = strings.TrimSpace(msg)
	return apiErr
}
