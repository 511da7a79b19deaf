// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// =============================================================================
// STREAMING TYPES
// =============================================================================

// MaxChunkSize is the maximum allowed size for a single SSE event (64KB).
const MaxChunkSize = 64 * 1024

// StreamChunk represents a single chunk from the completion stream.
//
// The gateway forwards OpenAI-style deltas. Reasoning models emit a second
// token channel in delta.reasoning, distinct from the answer content. A chunk
// may also carry an in-band rate-limit notice: the gateway retries upstream
// itself and tells the client to keep waiting, so such chunks are
// informational, not fatal.
type StreamChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Role      string `json:"role,omitempty"`
			Content   string `json:"content"`
			Reasoning string `json:"reasoning,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	RateLimit *RateLimitNotice `json:"rate_limit,omitempty"`
	Error     error            `json:"-"`
}

// RateLimitNotice is the gateway's in-band "retrying upstream" signal.
type RateLimitNotice struct {
	RetryAfterSeconds int `json:"retry_after"`
}

// GetContent returns the content delta from the first choice.
func (c *StreamChunk) GetContent() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.Content
	}
	return ""
}

// GetReasoning returns the reasoning delta from the first choice.
func (c *StreamChunk) GetReasoning() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.Reasoning
	}
	return ""
}

// IsDone returns true if the stream has finished.
func (c *StreamChunk) IsDone() bool {
	if len(c.Choices) > 0 {
		return c.Choices[0].FinishReason != ""
	}
	return false
}

// StreamCallback is called for each received chunk.
type StreamCallback func(chunk StreamChunk)

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader parses Server-Sent Events from a stream.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReader(r)}
}

// ReadEvent reads the next SSE event and returns its data payload.
// Returns io.EOF when the stream ends.
func (s *SSEReader) ReadEvent() ([]byte, error) {
	var dataLines [][]byte
	size := 0

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF && len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			return nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		// Blank line terminates the event.
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		if bytes.HasPrefix(line, []byte("data:")) {
			data := bytes.TrimSpace(line[5:])
			size += len(data)
			if size > MaxChunkSize {
				return nil, fmt.Errorf("SSE event too large: %d bytes", size)
			}
			dataLines = append(dataLines, data)
		}
		// id:, event:, retry: and comment lines are ignored.
	}
}

// =============================================================================
// STREAMING COMPLETION
// =============================================================================

// ChatStream performs a streaming completion request. The callback is invoked
// for each chunk; cancellation is driven by the context. The request always
// carries stream=true regardless of the caller's setting.
func (c *Client) ChatStream(ctx context.Context, req *CompletionRequest, callback StreamCallback) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}

	req.Stream = true
	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
		err := c.handleErrorResponse(resp, body)
		if resp.StatusCode == http.StatusNotFound || strings.Contains(strings.ToLower(string(body)), "model") {
			// Completion endpoint 404s mean the model, not a session.
			return fmt.Errorf("%w: %s", ErrModelNotFound, req.Model)
		}
		return err
	}

	return c.processStream(ctx, resp.Body, callback)
}

// processStream reads SSE events until [DONE], a finish reason, or an error.
func (c *Client) processStream(ctx context.Context, body io.Reader, callback StreamCallback) error {
	reader := NewSSEReader(body)
	var partial strings.Builder

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		data, err := reader.ReadEvent()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &StreamError{Partial: partial.String(), Err: err}
		}

		if bytes.Equal(data, []byte("[DONE]")) {
			return nil
		}

		var chunk StreamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			// Skip malformed events rather than aborting the stream.
			continue
		}

		partial.WriteString(chunk.GetContent())
		callback(chunk)

		if chunk.IsDone() {
			return nil
		}
	}
}

// =============================================================================
// STREAM ACCUMULATOR
// =============================================================================

// StreamAccumulator collects chunks and tracks timing for one stream.
type StreamAccumulator struct {
	Content      strings.Builder
	Reasoning    strings.Builder
	TokenCount   int
	Model        string
	FinishReason string
	StartTime    time.Time
	FirstTokenAt time.Time
	Done         bool
}

// NewStreamAccumulator creates a new accumulator with start time set.
func NewStreamAccumulator() *StreamAccumulator {
	return &StreamAccumulator{StartTime: time.Now()}
}

// Add processes a chunk.
func (a *StreamAccumulator) Add(chunk StreamChunk) {
	if content := chunk.GetContent(); content != "" {
		a.TokenCount++
		if a.FirstTokenAt.IsZero() {
			a.FirstTokenAt = time.Now()
		}
		a.Content.WriteString(content)
	}
	if reasoning := chunk.GetReasoning(); reasoning != "" {
		if a.FirstTokenAt.IsZero() {
			a.FirstTokenAt = time.Now()
		}
		a.Reasoning.WriteString(reasoning)
	}
	if chunk.Model != "" {
		a.Model = chunk.Model
	}
	if chunk.IsDone() {
		a.Done = true
		a.FinishReason = chunk.Choices[0].FinishReason
	}
}

// TTFT returns the time to first token, or zero if none arrived.
func (a *StreamAccumulator) TTFT() time.Duration {
	if a.FirstTokenAt.IsZero() {
		return 0
	}
	return a.FirstTokenAt.Sub(a.StartTime)
}
