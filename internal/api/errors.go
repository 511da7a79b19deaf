// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"errors"
	"fmt"
	"time"
)

// Error variables for common gateway failures.
var (
	// ErrNotConfigured indicates no API key is set on the client.
	ErrNotConfigured = errors.New("gatewayz API key not configured")

	// ErrAuthFailed indicates the bearer credential was rejected.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates the gateway asked the client to back off.
	ErrRateLimited = errors.New("rate limited")

	// ErrSessionNotFound indicates the session does not exist (or belongs
	// to another user).
	ErrSessionNotFound = errors.New("chat session not found")

	// ErrModelNotFound indicates the completion backend rejected the model.
	ErrModelNotFound = errors.New("model not found")

	// ErrInsufficientCredits indicates the account balance is exhausted.
	ErrInsufficientCredits = errors.New("insufficient credits")
)

// APIError represents a structured error response from the gateway.
type APIError struct {
	Code    string
	Message string
	Status  int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gatewayz error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("gatewayz error (HTTP %d): %s", e.Status, e.Message)
}

// RateLimitError is a rate limit response carrying the server's Retry-After
// hint. It matches ErrRateLimited under errors.Is.
type RateLimitError struct {
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %v", e.RetryAfter)
	}
	return "rate limited"
}

// Is allows RateLimitError to be compared with ErrRateLimited.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// StreamError is a mid-stream transport failure that preserves any partial
// content received before the connection dropped.
type StreamError struct {
	Partial string
	Err     error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream error (partial content received: %d chars): %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Err
}
