// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gatewayz/gatewayz-tui/internal/api"
)

// fakeStreamer scripts the transport side of a stream.
type fakeStreamer struct {
	mu     sync.Mutex
	chunks []string // JSON chunk bodies emitted in order
	err    error    // returned after chunks are delivered
	block  chan struct{}
}

func (f *fakeStreamer) ChatStream(ctx context.Context, req *api.CompletionRequest, cb api.StreamCallback) error {
	f.mu.Lock()
	chunks, errOut, block := f.chunks, f.err, f.block
	f.mu.Unlock()

	for _, raw := range chunks {
		var c api.StreamChunk
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			panic("bad test chunk: " + raw)
		}
		cb(c)
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return errOut
}

func contentChunk(s string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"delta": map[string]any{"content": s}}},
	})
	return string(b)
}

func reasoningChunk(s string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"delta": map[string]any{"reasoning": s}}},
	})
	return string(b)
}

// collect gathers dispatched chunks and signals terminal delivery.
type collect struct {
	mu     sync.Mutex
	chunks []Chunk
	done   chan struct{}
}

func newCollect() *collect {
	return &collect{done: make(chan struct{})}
}

func (c *collect) cb(chunk Chunk) {
	c.mu.Lock()
	c.chunks = append(c.chunks, chunk)
	c.mu.Unlock()
	if chunk.Kind == KindDone || chunk.Kind == KindError {
		close(c.done)
	}
}

func (c *collect) wait(t *testing.T) {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not reach a terminal state")
	}
}

func (c *collect) kinds() []Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Kind, len(c.chunks))
	for i, ch := range c.chunks {
		out[i] = ch.Kind
	}
	return out
}

func TestEngine_CompleteStream(t *testing.T) {
	e := NewEngine(&fakeStreamer{chunks: []string{
		contentChunk("Hello"), contentChunk(" world"),
	}})
	col := newCollect()

	if err := e.Start(context.Background(), nil, "m", col.cb); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	col.wait(t)

	st := e.State()
	if st.Status != StatusComplete {
		t.Errorf("status = %v, want complete", st.Status)
	}
	if st.Content != "Hello world" {
		t.Errorf("content = %q", st.Content)
	}
	if st.TokenCount != 2 {
		t.Errorf("tokens = %d", st.TokenCount)
	}
	if st.TTFT() <= 0 {
		t.Error("TTFT not recorded")
	}
	if st.EndedAt.IsZero() {
		t.Error("end time not recorded")
	}
}

func TestEngine_ReasoningChunks(t *testing.T) {
	e := NewEngine(&fakeStreamer{chunks: []string{
		reasoningChunk("hmm "), contentChunk("answer"),
	}})
	col := newCollect()

	if err := e.Start(context.Background(), nil, "m", col.cb); err != nil {
		t.Fatal(err)
	}
	col.wait(t)

	st := e.State()
	if st.Reasoning != "hmm " || st.Content != "answer" {
		t.Errorf("reasoning=%q content=%q", st.Reasoning, st.Content)
	}
	kinds := col.kinds()
	if kinds[0] != KindReasoning || kinds[1] != KindContent {
		t.Errorf("kinds = %v", kinds)
	}
}

func TestEngine_ErrorState(t *testing.T) {
	e := NewEngine(&fakeStreamer{
		chunks: []string{contentChunk("partial")},
		err:    errors.New("connection reset"),
	})
	col := newCollect()

	if err := e.Start(context.Background(), nil, "m", col.cb); err != nil {
		t.Fatal(err)
	}
	col.wait(t)

	st := e.State()
	if st.Status != StatusError {
		t.Errorf("status = %v, want error", st.Status)
	}
	if st.ErrorText != "connection reset" {
		t.Errorf("error text = %q", st.ErrorText)
	}
	if st.Content != "partial" {
		t.Error("partial content lost on error")
	}
}

func TestEngine_RejectsConcurrentStart(t *testing.T) {
	block := make(chan struct{})
	e := NewEngine(&fakeStreamer{block: block})
	defer close(block)

	if err := e.Start(context.Background(), nil, "m", func(Chunk) {}); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(context.Background(), nil, "m", func(Chunk) {}); !errors.Is(err, ErrStreamActive) {
		t.Errorf("want ErrStreamActive, got %v", err)
	}
}

func TestEngine_CancelIsIdempotent(t *testing.T) {
	block := make(chan struct{})
	e := NewEngine(&fakeStreamer{block: block})
	defer close(block)

	// Cancel before any start: no-op.
	e.Cancel()
	if e.State().Status != StatusIdle {
		t.Error("cancel of idle engine changed state")
	}

	if err := e.Start(context.Background(), nil, "m", func(Chunk) {}); err != nil {
		t.Fatal(err)
	}

	e.Cancel()
	first := e.State()
	if first.Status != StatusCancelled {
		t.Fatalf("status = %v, want cancelled", first.Status)
	}

	// Second and third cancels change nothing.
	e.Cancel()
	e.Cancel()
	if got := e.State(); got.Status != StatusCancelled || !got.EndedAt.Equal(first.EndedAt) {
		t.Error("repeated cancel mutated terminal state")
	}
}

func TestEngine_LateChunksDiscardedAfterCancel(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	// Transport that waits until after cancel, then emits chunks.
	slow := streamFunc(func(ctx context.Context, req *api.CompletionRequest, scb api.StreamCallback) error {
		close(started)
		<-release
		var c api.StreamChunk
		_ = json.Unmarshal([]byte(contentChunk("late")), &c)
		scb(c)
		return nil
	})
	e := NewEngine(slow)

	var late atomic.Int32
	cb := func(c Chunk) {
		if c.Kind == KindContent {
			late.Add(1)
		}
	}

	if err := e.Start(context.Background(), nil, "m", cb); err != nil {
		t.Fatal(err)
	}
	<-started
	e.Cancel()
	close(release)

	time.Sleep(50 * time.Millisecond)
	if n := late.Load(); n != 0 {
		t.Errorf("%d late chunks delivered after cancel", n)
	}
	if st := e.State(); st.Content != "" {
		t.Errorf("late chunk accumulated into state: %q", st.Content)
	}
}

// streamFunc adapts a function to the Streamer interface.
type streamFunc func(ctx context.Context, req *api.CompletionRequest, cb api.StreamCallback) error

func (f streamFunc) ChatStream(ctx context.Context, req *api.CompletionRequest, cb api.StreamCallback) error {
	return f(ctx, req, cb)
}

func TestEngine_StartAfterTerminalResets(t *testing.T) {
	e := NewEngine(&fakeStreamer{chunks: []string{contentChunk("one")}})
	col := newCollect()
	if err := e.Start(context.Background(), nil, "m", col.cb); err != nil {
		t.Fatal(err)
	}
	col.wait(t)

	col2 := newCollect()
	if err := e.Start(context.Background(), nil, "m", col2.cb); err != nil {
		t.Fatalf("restart from terminal failed: %v", err)
	}
	col2.wait(t)

	// Fresh run starts from a clean slate, not accumulated content.
	if st := e.State(); st.Content != "one" {
		t.Errorf("content = %q, want %q from fresh run", st.Content, "one")
	}
}

func TestEngine_RateLimitChunk(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{"rate_limit": map[string]any{"retry_after": 3}})
	e := NewEngine(&fakeStreamer{chunks: []string{string(raw), contentChunk("ok")}})
	col := newCollect()

	if err := e.Start(context.Background(), nil, "m", col.cb); err != nil {
		t.Fatal(err)
	}
	col.wait(t)

	kinds := col.kinds()
	if kinds[0] != KindRateLimit {
		t.Errorf("first kind = %v, want rate limit", kinds[0])
	}
	col.mu.Lock()
	defer col.mu.Unlock()
	if col.chunks[0].RetryAfter != 3*time.Second {
		t.Errorf("retry after = %v", col.chunks[0].RetryAfter)
	}
}

func TestStatusStrings(t *testing.T) {
	tests := map[Status]string{
		StatusIdle:       "idle",
		StatusConnecting: "connecting",
		StatusStreaming:  "streaming",
		StatusCompleting: "completing",
		StatusComplete:   "complete",
		StatusError:      "error",
		StatusCancelled:  "cancelled",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
	if StatusStreaming.Terminal() || !StatusComplete.Terminal() {
		t.Error("Terminal() wrong")
	}
}
