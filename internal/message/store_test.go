// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package message

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gatewayz/gatewayz-tui/internal/api"
)

// fakeBackend implements Backend for tests.
type fakeBackend struct {
	mu       sync.Mutex
	detail   *api.SessionDetail
	getErr   error
	saveErr  error
	getCalls int
	saved    []api.SaveMessageRequest
	nextID   int64
}

func (f *fakeBackend) GetSession(ctx context.Context, id int64) (*api.SessionDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.detail == nil {
		return &api.SessionDetail{}, nil
	}
	return f.detail, nil
}

func (f *fakeBackend) SaveMessage(ctx context.Context, sessionID int64, req api.SaveMessageRequest) (*api.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	f.saved = append(f.saved, req)
	f.nextID++
	return &api.Message{ID: f.nextID + 100, SessionID: sessionID, Role: req.Role, Content: req.Content}, nil
}

func serverMsg(id int64, sessionID int64, role, content string, at time.Time) api.Message {
	return api.Message{ID: id, SessionID: sessionID, Role: role, Content: content, CreatedAt: at}
}

func TestLoad_DeduplicatesServerMessages(t *testing.T) {
	now := time.Now()
	backend := &fakeBackend{detail: &api.SessionDetail{
		Messages: []api.Message{
			serverMsg(1, 7, "user", "hi", now),
			serverMsg(1, 7, "user", "hi", now), // duplicate id from server
			serverMsg(2, 7, "assistant", "hello", now.Add(time.Second)),
		},
	}}
	s := NewStore(backend)

	msgs, err := s.Load(context.Background(), 7)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2 (duplicate dropped)", len(msgs))
	}
}

func TestLoad_ServesCachedSession(t *testing.T) {
	backend := &fakeBackend{detail: &api.SessionDetail{
		Messages: []api.Message{serverMsg(1, 7, "user", "hi", time.Now())},
	}}
	s := NewStore(backend)

	if _, err := s.Load(context.Background(), 7); err != nil {
		t.Fatalf("first load: %v", err)
	}
	if _, err := s.Load(context.Background(), 7); err != nil {
		t.Fatalf("second load: %v", err)
	}
	if backend.getCalls != 1 {
		t.Errorf("backend hit %d times, want 1 (second load from memory)", backend.getCalls)
	}
}

func TestLoad_FailureKeepsExistingData(t *testing.T) {
	backend := &fakeBackend{}
	s := NewStore(backend)
	s.Add(AddRequest{SessionID: 7, Role: "user", Content: "local"})
	s.WaitSaves()

	backend.mu.Lock()
	backend.getErr = errors.New("network down")
	backend.mu.Unlock()

	msgs, err := s.Load(context.Background(), 7)
	if err == nil {
		t.Fatal("expected load error")
	}
	if len(msgs) != 1 {
		t.Errorf("existing data cleared on failed load: %d messages", len(msgs))
	}
	if s.Err() == "" {
		t.Error("last error not recorded")
	}
}

func TestLoad_MergeKeepsPendingLocals(t *testing.T) {
	backend := &fakeBackend{saveErr: errors.New("save refused")}
	s := NewStore(backend)

	// Optimistic message whose save failed stays pending.
	s.Add(AddRequest{SessionID: 7, Role: "user", Content: "unsaved"})
	s.WaitSaves()

	now := time.Now()
	backend.mu.Lock()
	backend.getErr = nil
	backend.detail = &api.SessionDetail{Messages: []api.Message{
		serverMsg(1, 7, "user", "older server message", now.Add(-time.Minute)),
	}}
	backend.mu.Unlock()

	msgs, err := s.Load(context.Background(), 7)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2 (pending local must survive refetch)", len(msgs))
	}
	// Sorted by creation time: server message first, local second.
	if msgs[0].Content != "older server message" || msgs[1].Content != "unsaved" {
		t.Errorf("unexpected order: %q, %q", msgs[0].Content, msgs[1].Content)
	}
}

func TestLoad_MergeKeepsResolvedLocalMissingFromSnapshot(t *testing.T) {
	backend := &fakeBackend{}
	s := NewStore(backend)

	// The save resolves the optimistic message to a server id, but the
	// session fetch below was snapshotted before that save committed.
	s.Add(AddRequest{SessionID: 7, Role: "user", Content: "just saved"})
	s.WaitSaves()

	now := time.Now()
	backend.mu.Lock()
	backend.detail = &api.SessionDetail{Messages: []api.Message{
		serverMsg(1, 7, "user", "older server message", now.Add(-time.Minute)),
	}}
	backend.mu.Unlock()

	msgs, err := s.Load(context.Background(), 7)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2 (resolved local must survive a stale refetch)", len(msgs))
	}
	last := msgs[len(msgs)-1]
	if last.Content != "just saved" || last.Pending {
		t.Errorf("resolved local mangled by merge: %+v", last)
	}
	if id, ok := last.ID.Persisted(); !ok || id != 101 {
		t.Errorf("resolved id lost across merge: %v", last.ID)
	}
}

func TestAdd_ResolvesProvisionalID(t *testing.T) {
	backend := &fakeBackend{}
	s := NewStore(backend)

	m := s.Add(AddRequest{SessionID: 7, Role: "user", Content: "hi"})
	if !m.ID.IsProvisional() {
		t.Fatal("fresh message should carry a provisional id")
	}
	s.WaitSaves()

	msgs := s.ForSession(7)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if msgs[0].ID.IsProvisional() {
		t.Error("id not swapped after save")
	}
	if msgs[0].Pending {
		t.Error("pending flag not cleared after save")
	}
	if id, ok := msgs[0].ID.Persisted(); !ok || id != 101 {
		t.Errorf("persisted id = %d, %v", id, ok)
	}
}

func TestAdd_FailedSaveKeepsMessage(t *testing.T) {
	backend := &fakeBackend{saveErr: errors.New("boom")}
	s := NewStore(backend)

	s.Add(AddRequest{SessionID: 7, Role: "user", Content: "hi"})
	s.WaitSaves()

	msgs := s.ForSession(7)
	if len(msgs) != 1 {
		t.Fatal("message removed after failed save")
	}
	if !msgs[0].ID.IsProvisional() || !msgs[0].Pending {
		t.Error("failed save should leave message provisional and pending")
	}
	if s.Err() == "" {
		t.Error("save failure not recorded")
	}
}

func TestAdd_AssistantNotPersistedImmediately(t *testing.T) {
	backend := &fakeBackend{}
	s := NewStore(backend)

	s.Add(AddRequest{SessionID: 7, Role: "assistant", Streaming: true})
	s.WaitSaves()

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.saved) != 0 {
		t.Error("streaming assistant placeholder must not be saved on insert")
	}
}

func TestAppendToLast_GuardsNonStreaming(t *testing.T) {
	s := NewStore(&fakeBackend{})

	// Empty list.
	if s.AppendToLast("x", "") {
		t.Error("append to empty list should fail")
	}

	// Last is a user message.
	s.Add(AddRequest{SessionID: 7, Role: "user", Content: "hi"})
	if s.AppendToLast("x", "") {
		t.Error("append should fail when last message is not an assistant")
	}

	// Streaming assistant: append works.
	s.Add(AddRequest{SessionID: 7, Role: "assistant", Streaming: true})
	if !s.AppendToLast("Hello", "") || !s.AppendToLast(" world", " thinking") {
		t.Fatal("append to streaming assistant failed")
	}
	msgs := s.ForSession(7)
	last := msgs[len(msgs)-1]
	if last.Content != "Hello world" {
		t.Errorf("content = %q", last.Content)
	}
	if last.Reasoning != " thinking" {
		t.Errorf("reasoning = %q", last.Reasoning)
	}

	// Finalized: late chunks are rejected.
	if _, ok := s.FinalizeLast(2); !ok {
		t.Fatal("finalize failed")
	}
	if s.AppendToLast("late", "") {
		t.Error("append after finalize should fail")
	}
	s.WaitSaves()
}

func TestFinalizeLast_PersistsAssistant(t *testing.T) {
	backend := &fakeBackend{}
	s := NewStore(backend)

	s.Add(AddRequest{SessionID: 7, Role: "assistant", Model: "m", Streaming: true})
	s.AppendToLast("done", "")
	m, ok := s.FinalizeLast(42)
	if !ok {
		t.Fatal("finalize failed")
	}
	if m.Streaming || m.Tokens != 42 {
		t.Errorf("finalized message: streaming=%v tokens=%d", m.Streaming, m.Tokens)
	}
	s.WaitSaves()

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.saved) != 1 || backend.saved[0].Role != "assistant" {
		t.Errorf("assistant not persisted on finalize: %+v", backend.saved)
	}
}

func TestFailLast_KeepsPartialVisible(t *testing.T) {
	s := NewStore(&fakeBackend{})
	s.Add(AddRequest{SessionID: 7, Role: "assistant", Streaming: true})
	s.AppendToLast("partial answer", "")

	if !s.FailLast("connection reset") {
		t.Fatal("FailLast failed")
	}
	msgs := s.ForSession(7)
	last := msgs[len(msgs)-1]
	if last.Content != "partial answer" {
		t.Error("partial content lost on failure")
	}
	if last.ErrorText != "connection reset" || last.Streaming {
		t.Errorf("error state wrong: %+v", last)
	}
}

func TestHistory_ExcludesStreamingAndOtherSessions(t *testing.T) {
	s := NewStore(&fakeBackend{})
	s.Add(AddRequest{SessionID: 7, Role: "user", Content: "question"})
	s.Add(AddRequest{SessionID: 8, Role: "user", Content: "other session"})
	s.Add(AddRequest{SessionID: 7, Role: "assistant", Streaming: true})
	s.WaitSaves()

	hist := s.History(7)
	if len(hist) != 1 {
		t.Fatalf("got %d entries, want 1", len(hist))
	}
	if hist[0].Role != "user" || hist[0].Content != "question" {
		t.Errorf("unexpected history: %+v", hist)
	}
}

func TestHistory_ReadsCurrentState(t *testing.T) {
	s := NewStore(&fakeBackend{})
	s.Add(AddRequest{SessionID: 7, Role: "user", Content: "first"})
	s.WaitSaves()

	before := len(s.History(7))
	s.Add(AddRequest{SessionID: 7, Role: "assistant", Content: "reply"})
	s.WaitSaves()

	after := len(s.History(7))
	if after != before+1 {
		t.Errorf("history did not reflect new message: before=%d after=%d", before, after)
	}
}

func TestClear_EvictsLoadedSession(t *testing.T) {
	backend := &fakeBackend{detail: &api.SessionDetail{
		Messages: []api.Message{serverMsg(1, 7, "user", "hi", time.Now())},
	}}
	s := NewStore(backend)

	if _, err := s.Load(context.Background(), 7); err != nil {
		t.Fatalf("load: %v", err)
	}
	s.Clear(7)
	if len(s.Messages()) != 0 {
		t.Error("clear left messages behind")
	}

	// Next load hits the network again.
	if _, err := s.Load(context.Background(), 7); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if backend.getCalls != 2 {
		t.Errorf("backend hit %d times, want 2 after eviction", backend.getCalls)
	}
}

func TestUpdate_ByID(t *testing.T) {
	s := NewStore(&fakeBackend{})
	m := s.Add(AddRequest{SessionID: 7, Role: "user", Content: "orig"})
	s.WaitSaves()

	// The id was resolved by the background save; look it up fresh.
	cur := s.ForSession(7)[0]
	if !s.Update(cur.ID, func(msg *Message) { msg.Content = "edited" }) {
		t.Fatal("update failed")
	}
	if got := s.ForSession(7)[0].Content; got != "edited" {
		t.Errorf("content = %q", got)
	}

	// Stale provisional id no longer matches.
	if s.Update(m.ID, func(msg *Message) {}) {
		t.Error("update by stale provisional id should fail")
	}
}
