// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream runs the token stream for one send operation.
//
// The engine owns a small status machine
// (idle→connecting→streaming→completing→complete, with error and cancelled
// terminals), classifies incoming chunks into content, reasoning, and
// control signals, and tracks timing. Exactly one stream is live at a time;
// starting a new one always begins from a fresh idle reset.
package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gatewayz/gatewayz-tui/internal/api"
)

// =============================================================================
// STATUS MACHINE
// =============================================================================

// Status is the engine's lifecycle state.
type Status int

// Stream statuses.
const (
	StatusIdle Status = iota
	StatusConnecting
	StatusStreaming
	StatusCompleting
	StatusComplete
	StatusError
	StatusCancelled
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusStreaming:
		return "streaming"
	case StatusCompleting:
		return "completing"
	case StatusComplete:
		return "complete"
	case StatusError:
		return "error"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status ends the stream's lifecycle.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError || s == StatusCancelled
}

// State is a snapshot of one stream's progress.
type State struct {
	Status       Status
	Content      string
	Reasoning    string
	ErrorText    string
	StartedAt    time.Time
	FirstTokenAt time.Time
	EndedAt      time.Time
	TokenCount   int
	Model        string
}

// TTFT returns the time to first token, zero if none arrived.
func (st State) TTFT() time.Duration {
	if st.FirstTokenAt.IsZero() {
		return 0
	}
	return st.FirstTokenAt.Sub(st.StartedAt)
}

// =============================================================================
// CHUNK CLASSIFICATION
// =============================================================================

// Kind classifies a dispatched chunk.
type Kind int

// Chunk kinds.
const (
	KindContent   Kind = iota // answer tokens
	KindReasoning             // "thinking" channel tokens
	KindRateLimit             // non-fatal backoff notice from the gateway
	KindDone                  // terminal: stream completed
	KindError                 // terminal: stream failed
)

// Chunk is one classified event dispatched to the caller.
type Chunk struct {
	Kind       Kind
	Content    string
	Reasoning  string
	RetryAfter time.Duration
	State      State // populated on KindDone and KindError
}

// Callback receives classified chunks. Called from the stream goroutine.
type Callback func(Chunk)

// Streamer is the transport the engine drives.
type Streamer interface {
	ChatStream(ctx context.Context, req *api.CompletionRequest, cb api.StreamCallback) error
}

// =============================================================================
// ENGINE
// =============================================================================

// ErrStreamActive is returned when Start is called while a stream is live.
var ErrStreamActive = errors.New("a stream is already active")

// Engine drives one completion stream at a time.
type Engine struct {
	mu     sync.Mutex
	client Streamer
	state  State
	cancel context.CancelFunc

	// gen identifies the live stream. Chunks arriving for an older
	// generation (after cancel or a new Start) are discarded.
	gen int
}

// NewEngine creates an idle engine over the given transport.
func NewEngine(client Streamer) *Engine {
	return &Engine{client: client}
}

// State returns a snapshot of the current stream state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Active reports whether a stream is currently live.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Status == StatusConnecting || e.state.Status == StatusStreaming || e.state.Status == StatusCompleting
}

// Start opens a token stream carrying the prior history plus the new turn
// and returns immediately; chunks are dispatched on a background goroutine.
// The engine always begins from a fresh idle reset — a terminal state is
// never resumed. Fails with ErrStreamActive if a stream is already live.
func (e *Engine) Start(ctx context.Context, history []api.ChatMessage, model string, cb Callback) error {
	e.mu.Lock()
	if !e.state.Status.Terminal() && e.state.Status != StatusIdle {
		e.mu.Unlock()
		return ErrStreamActive
	}

	e.gen++
	gen := e.gen
	e.state = State{
		Status:    StatusConnecting,
		StartedAt: time.Now(),
		Model:     model,
	}

	streamCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.mu.Unlock()

	req := &api.CompletionRequest{
		Model:    model,
		Messages: history,
		Stream:   true,
	}

	go e.run(streamCtx, cancel, gen, req, cb)
	return nil
}

// run drives one stream to a terminal state.
func (e *Engine) run(ctx context.Context, cancel context.CancelFunc, gen int, req *api.CompletionRequest, cb Callback) {
	defer cancel()

	err := e.client.ChatStream(ctx, req, func(chunk api.StreamChunk) {
		e.dispatch(gen, chunk, cb)
	})

	e.mu.Lock()
	if gen != e.gen || e.state.Status.Terminal() {
		// Cancelled (or superseded) while we were finishing up.
		e.mu.Unlock()
		return
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		e.state.Status = StatusError
		e.state.ErrorText = err.Error()
		e.state.EndedAt = time.Now()
		st := e.state
		e.mu.Unlock()
		cb(Chunk{Kind: KindError, State: st})
		return
	}

	if errors.Is(err, context.Canceled) {
		e.state.Status = StatusCancelled
		e.state.EndedAt = time.Now()
		e.mu.Unlock()
		return
	}

	e.state.Status = StatusCompleting
	e.state.EndedAt = time.Now()
	e.state.Status = StatusComplete
	st := e.state
	e.mu.Unlock()
	cb(Chunk{Kind: KindDone, State: st})
}

// dispatch classifies one transport chunk and forwards it.
func (e *Engine) dispatch(gen int, chunk api.StreamChunk, cb Callback) {
	e.mu.Lock()
	if gen != e.gen || e.state.Status.Terminal() {
		// Late chunk from a cancelled or superseded stream.
		e.mu.Unlock()
		return
	}

	if chunk.RateLimit != nil {
		retry := time.Duration(chunk.RateLimit.RetryAfterSeconds) * time.Second
		e.mu.Unlock()
		cb(Chunk{Kind: KindRateLimit, RetryAfter: retry})
		return
	}

	content := chunk.GetContent()
	reasoning := chunk.GetReasoning()
	if content == "" && reasoning == "" {
		e.mu.Unlock()
		return
	}

	if e.state.Status == StatusConnecting {
		e.state.Status = StatusStreaming
	}
	if e.state.FirstTokenAt.IsZero() {
		e.state.FirstTokenAt = time.Now()
	}
	if content != "" {
		e.state.Content += content
		e.state.TokenCount++
	}
	e.state.Reasoning += reasoning
	if chunk.Model != "" {
		e.state.Model = chunk.Model
	}
	e.mu.Unlock()

	if content != "" {
		cb(Chunk{Kind: KindContent, Content: content})
	}
	if reasoning != "" {
		cb(Chunk{Kind: KindReasoning, Reasoning: reasoning})
	}
}

// Cancel aborts the live stream, if any. Idempotent: cancelling an idle,
// complete, or already-cancelled engine is a no-op. Chunks still in flight
// when Cancel returns are discarded by the generation check.
func (e *Engine) Cancel() {
	e.mu.Lock()
	if e.state.Status.Terminal() || e.state.Status == StatusIdle {
		e.mu.Unlock()
		return
	}
	e.gen++
	e.state.Status = StatusCancelled
	e.state.EndedAt = time.Now()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Reset returns the engine to idle. Only valid from a terminal state; a live
// stream must be cancelled first.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Status.Terminal() || e.state.Status == StatusIdle {
		e.state = State{}
	}
}
