// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Configuration constants for the Gatewayz API.
const (
	// DefaultBaseURL is the base URL for the hosted gateway.
	DefaultBaseURL = "https://api.gatewayz.ai/v1"

	// DefaultReadTimeout bounds list/detail fetches.
	DefaultReadTimeout = 15 * time.Second

	// DefaultWriteTimeout bounds session creation and message saves.
	// Creation is not idempotent server-side, so it gets more headroom
	// than reads rather than a retry.
	DefaultWriteTimeout = 30 * time.Second

	// DefaultMaxRetries is the retry budget for transient read failures.
	DefaultMaxRetries = 3

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay caps exponential backoff.
	retryMaxDelay = 10 * time.Second

	// MaxResponseSize limits buffered response bodies.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB

	// defaultRequestsPerSecond is the client-side request limiter rate.
	defaultRequestsPerSecond = 10
)

var (
	// Shared HTTP client with connection pooling for request/response calls.
	sharedHTTPClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		// Outer cap only; per-request deadlines are applied via context.
		Timeout: DefaultWriteTimeout,
	}

	// sharedStreamingClient is used for streaming requests. No timeout;
	// lifetime is controlled by the caller's context.
	sharedStreamingClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
)

// apiErrorResponse is the error body shape the gateway produces.
type apiErrorResponse struct {
	Detail string `json:"detail"`
	Error  struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is a client for the Gatewayz gateway API.
type Client struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
	limiter      *rate.Limiter
	maxRetries   int
	readTimeout  time.Duration
	writeTimeout time.Duration
	userAgent    string
}

// NewClient creates a client with the given bearer credential.
//
// If the key is empty the client is still created, but every request fails
// with ErrNotConfigured so the caller can surface a setup hint.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:       strings.TrimSpace(apiKey),
		baseURL:      DefaultBaseURL,
		httpClient:   sharedHTTPClient,
		streamClient: sharedStreamingClient,
		limiter:      rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), defaultRequestsPerSecond),
		maxRetries:   DefaultMaxRetries,
		readTimeout:  DefaultReadTimeout,
		writeTimeout: DefaultWriteTimeout,
		userAgent:    "gatewayz-tui/0.1.0",
	}
}

// WithBaseURL sets a custom base URL (trailing slash stripped).
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = strings.TrimSuffix(url, "/")
	return c
}

// WithTimeouts overrides the read and write deadlines.
func (c *Client) WithTimeouts(read, write time.Duration) *Client {
	if read > 0 {
		c.readTimeout = read
	}
	if write > 0 {
		c.writeTimeout = write
	}
	return c
}

// WithMaxRetries sets the retry budget for transient read failures.
func (c *Client) WithMaxRetries(n int) *Client {
	c.maxRetries = n
	return c
}

// WithRateLimit replaces the client-side request limiter.
func (c *Client) WithRateLimit(perSecond float64, burst int) *Client {
	c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	return c
}

// WithHTTPClient swaps the underlying HTTP clients. Used by tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	c.streamClient = hc
	return c
}

// IsConfigured reports whether an API key is present.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// setHeaders sets the required headers for gateway requests.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
}

// =============================================================================
// SESSION CRUD
// =============================================================================

// ListSessions fetches the user's session list, most recently updated first.
// limit <= 0 requests the server default.
func (c *Client) ListSessions(ctx context.Context, limit, offset int) ([]Session, error) {
	url := c.baseURL + "/chat/sessions"
	if limit > 0 || offset > 0 {
		url += "?limit=" + strconv.Itoa(limit) + "&offset=" + strconv.Itoa(offset)
	}

	var env sessionListEnvelope
	if err := c.doRead(ctx, http.MethodGet, url, nil, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// CreateSession creates a new session. Empty title or model let the server
// pick its defaults. Creation is never retried: the operation is not
// idempotent and a duplicate session is worse than a surfaced error.
func (c *Client) CreateSession(ctx context.Context, title, model string) (*Session, error) {
	var env sessionEnvelope
	body := createSessionRequest{Title: title, Model: model}
	if err := c.doWrite(ctx, http.MethodPost, c.baseURL+"/chat/sessions", body, &env); err != nil {
		return nil, err
	}
	if env.Data.ID == 0 {
		return nil, &APIError{Message: "server returned session without an id", Status: http.StatusOK}
	}
	return &env.Data, nil
}

// GetSession fetches a session together with its messages.
func (c *Client) GetSession(ctx context.Context, id int64) (*SessionDetail, error) {
	var env sessionDetailEnvelope
	url := c.baseURL + "/chat/sessions/" + strconv.FormatInt(id, 10)
	if err := c.doRead(ctx, http.MethodGet, url, nil, &env); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

// UpdateSession applies a partial update and returns the updated record.
func (c *Client) UpdateSession(ctx context.Context, id int64, upd SessionUpdate) (*Session, error) {
	var env sessionEnvelope
	url := c.baseURL + "/chat/sessions/" + strconv.FormatInt(id, 10)
	if err := c.doWrite(ctx, http.MethodPut, url, upd, &env); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

// DeleteSession removes a session.
func (c *Client) DeleteSession(ctx context.Context, id int64) error {
	var env deleteEnvelope
	url := c.baseURL + "/chat/sessions/" + strconv.FormatInt(id, 10)
	return c.doWrite(ctx, http.MethodDelete, url, nil, &env)
}

// SearchSessions finds sessions by title or message content.
func (c *Client) SearchSessions(ctx context.Context, query string, limit int) ([]Session, error) {
	var env sessionListEnvelope
	body := searchRequest{Query: query, Limit: limit}
	if err := c.doWrite(ctx, http.MethodPost, c.baseURL+"/chat/search", body, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// Stats fetches the user's chat statistics.
func (c *Client) Stats(ctx context.Context) (*SessionStats, error) {
	var env statsEnvelope
	if err := c.doRead(ctx, http.MethodGet, c.baseURL+"/chat/stats", nil, &env); err != nil {
		return nil, err
	}
	return &env.Stats, nil
}

// =============================================================================
// MESSAGES
// =============================================================================

// SaveMessage persists one message to a session and returns the created
// record with its server-assigned identifier.
func (c *Client) SaveMessage(ctx context.Context, sessionID int64, req SaveMessageRequest) (*Message, error) {
	var env messageEnvelope
	url := c.baseURL + "/chat/sessions/" + strconv.FormatInt(sessionID, 10) + "/messages"
	if err := c.doWrite(ctx, http.MethodPost, url, req, &env); err != nil {
		return nil, err
	}
	if env.Data.ID == 0 {
		return nil, &APIError{Message: "server returned message without an id", Status: http.StatusOK}
	}
	return &env.Data, nil
}

// =============================================================================
// MODELS
// =============================================================================

// ListModels retrieves the gateway's model catalog.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	var env modelsEnvelope
	if err := c.doRead(ctx, http.MethodGet, c.baseURL+"/models", nil, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// doRead performs a read with retry and exponential backoff for transient
// failures (5xx and rate limiting). Each attempt gets its own deadline.
func (c *Client) doRead(ctx context.Context, method, url string, body, out any) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(calculateBackoff(attempt)):
			}
		}

		err := c.do(ctx, method, url, body, out, c.readTimeout)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// doWrite performs a single non-retried request with the write deadline.
func (c *Client) doWrite(ctx context.Context, method, url string, body, out any) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}
	return c.do(ctx, method, url, body, out, c.writeTimeout)
}

// do performs one HTTP round trip and decodes the envelope into out.
func (c *Client) do(ctx context.Context, method, url string, body, out any, timeout time.Duration) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	log.Printf("API %s %s: %d (%v)", method, req.URL.Path, resp.StatusCode, time.Since(start))

	data, err := readResponse(resp)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return c.handleErrorResponse(resp, data)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// readResponse reads a body with a size limit.
func readResponse(resp *http.Response) ([]byte, error) {
	limited := io.LimitReader(resp.Body, MaxResponseSize)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(data)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", int64(MaxResponseSize))
	}
	return data, nil
}

// handleErrorResponse converts gateway error responses to Go errors.
func (c *Client) handleErrorResponse(resp *http.Response, body []byte) error {
	msg := string(body)
	code := ""

	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil {
		if apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
			code = apiErr.Error.Code
		} else if apiErr.Detail != "" {
			msg = apiErr.Detail
		}
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrAuthFailed, msg)
	case http.StatusPaymentRequired:
		return fmt.Errorf("%w: %s", ErrInsufficientCredits, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrSessionNotFound, msg)
	case http.StatusTooManyRequests:
		return rateLimitError(resp)
	default:
		return &APIError{Code: code, Message: msg, Status: resp.StatusCode}
	}
}

// rateLimitError builds a RateLimitError from the Retry-After header.
func rateLimitError(resp *http.Response) error {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return ErrRateLimited
	}
	if seconds, err := strconv.Atoi(retryAfter); err == nil {
		return &RateLimitError{RetryAfter: time.Duration(seconds) * time.Second}
	}
	if t, err := http.ParseTime(retryAfter); err == nil {
		return &RateLimitError{RetryAfter: time.Until(t)}
	}
	return ErrRateLimited
}

// isRetryable reports whether a read failure should trigger another attempt.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 && apiErr.Status < 600
	}
	// Deadline and transport errors: the next attempt may succeed.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return strings.Contains(err.Error(), "request failed")
}

// calculateBackoff returns the delay before the given retry attempt.
func calculateBackoff(attempt int) time.Duration {
	delay := retryBaseDelay * time.Duration(1<<uint(attempt))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}
