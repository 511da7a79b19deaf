// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package message

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/gatewayz/gatewayz-tui/internal/api"
)

// defaultSaveTimeout bounds the background message save.
const defaultSaveTimeout = 30 * time.Second

// Backend is the slice of the gateway API the message store needs.
type Backend interface {
	GetSession(ctx context.Context, id int64) (*api.SessionDetail, error)
	SaveMessage(ctx context.Context, sessionID int64, req api.SaveMessageRequest) (*api.Message, error)
}

// AddRequest describes a message to insert optimistically.
type AddRequest struct {
	SessionID int64
	Role      string
	Content   string
	Parts     []ContentPart
	Model     string
	Streaming bool
}

// =============================================================================
// MESSAGE STORE
// =============================================================================

// Store holds the ordered message list for the active session.
//
// The list and the seen/loaded sets are mutated only through Store methods;
// callers receive copies. Background saves run on their own goroutines and
// reconcile through the same lock, so interleaved completions cannot corrupt
// the list.
type Store struct {
	mu       sync.Mutex
	backend  Backend
	messages []Message

	// seen keys every identifier ever inserted, by ID.Key(). Lookup stays
	// O(1) no matter how long a conversation grows.
	seen map[string]bool

	// loaded tracks sessions whose history has been fetched once; repeat
	// loads are served from memory.
	loaded map[int64]bool

	lastError   string
	saveTimeout time.Duration

	saves    sync.WaitGroup
	onChange func()
}

// NewStore creates an empty message store backed by the gateway API.
func NewStore(backend Backend) *Store {
	return &Store{
		backend:     backend,
		seen:        make(map[string]bool),
		loaded:      make(map[int64]bool),
		saveTimeout: defaultSaveTimeout,
	}
}

// SetChangeHandler registers a callback invoked after every list mutation.
// Used by the UI layer to schedule a redraw.
func (s *Store) SetChangeHandler(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// notify invokes the change handler outside the lock.
func (s *Store) notify() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// =============================================================================
// LOADING
// =============================================================================

// Load fetches a session's messages. If the session was loaded before, the
// in-memory list is served without a network call. A fetch failure is
// surfaced but never clears data already held: an empty or stale list must
// not block session navigation.
func (s *Store) Load(ctx context.Context, sessionID int64) ([]Message, error) {
	s.mu.Lock()
	if s.loaded[sessionID] {
		out := s.forSessionLocked(sessionID)
		s.mu.Unlock()
		return out, nil
	}
	s.mu.Unlock()

	detail, err := s.backend.GetSession(ctx, sessionID)
	if err != nil {
		s.mu.Lock()
		s.lastError = err.Error()
		out := s.forSessionLocked(sessionID)
		s.mu.Unlock()
		return out, err
	}

	s.mu.Lock()
	s.mergeLocked(sessionID, detail.Messages)
	s.loaded[sessionID] = true
	s.lastError = ""
	out := s.forSessionLocked(sessionID)
	s.mu.Unlock()

	s.notify()
	return out, nil
}

// mergeLocked reconciles fetched history with the in-memory list for one
// session. Server entries are deduplicated against the seen set; a local
// entry survives the refetch unless a server entry with the same resolved
// identifier supersedes it. That covers optimistic messages whose save has
// not landed yet and resolved messages missing from a snapshot the server
// took before their save committed. A plain replace here would drop both.
func (s *Store) mergeLocked(sessionID int64, fetched []api.Message) {
	merged := make([]Message, 0, len(fetched)+4)

	serverKeys := make(map[string]bool, len(fetched))
	for _, fm := range fetched {
		serverKeys[PersistedID(fm.ID).Key()] = true
	}

	// Local survivors: anything the fetch does not supersede by identifier.
	for _, m := range s.messages {
		if m.SessionID != sessionID {
			continue
		}
		if serverKeys[m.ID.Key()] {
			delete(s.seen, m.ID.Key())
			continue
		}
		merged = append(merged, m)
	}

	for _, fm := range fetched {
		id := PersistedID(fm.ID)
		if s.seen[id.Key()] {
			continue
		}
		s.seen[id.Key()] = true
		merged = append(merged, Message{
			ID:        id,
			SessionID: fm.SessionID,
			Role:      fm.Role,
			Content:   fm.Content,
			Model:     fm.Model,
			Tokens:    fm.Tokens,
			CreatedAt: fm.CreatedAt,
		})
	}

	for _, m := range merged {
		s.seen[m.ID.Key()] = true
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.Before(merged[j].CreatedAt)
	})

	// Keep messages belonging to other sessions untouched.
	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.SessionID != sessionID {
			kept = append(kept, m)
		}
	}
	s.messages = append(kept, merged...)
}

// =============================================================================
// OPTIMISTIC INSERTION
// =============================================================================

// Add inserts a message at the end of the list with a fresh provisional
// identifier and returns it immediately. User messages are persisted in the
// background without making the caller wait; the provisional identifier is
// swapped for the server-assigned one when the save lands. A failed save
// leaves the message visible with its provisional id.
func (s *Store) Add(req AddRequest) Message {
	m := Message{
		ID:        NewProvisionalID(),
		SessionID: req.SessionID,
		Role:      req.Role,
		Content:   req.Content,
		Parts:     req.Parts,
		Model:     req.Model,
		CreatedAt: time.Now(),
		Streaming: req.Streaming,
		Pending:   true,
	}

	s.mu.Lock()
	s.messages = append(s.messages, m)
	s.seen[m.ID.Key()] = true
	s.mu.Unlock()
	s.notify()

	if req.Role == "user" {
		s.saves.Add(1)
		go s.persist(m)
	}
	return m
}

// persist saves one message and swaps its provisional identifier in place.
func (s *Store) persist(m Message) {
	defer s.saves.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
	defer cancel()

	saved, err := s.backend.SaveMessage(ctx, m.SessionID, api.SaveMessageRequest{
		Role:    m.Role,
		Content: m.Text(),
		Model:   m.Model,
		Tokens:  m.Tokens,
	})
	if err != nil {
		// The optimistic entry stays in the list; only record the failure.
		s.mu.Lock()
		s.lastError = "message save failed: " + err.Error()
		s.mu.Unlock()
		log.Printf("message save failed (session %d, %s): %v", m.SessionID, m.ID, err)
		return
	}

	s.resolve(m.ID, saved.ID)
}

// resolve replaces a provisional identifier with the server-assigned one, in
// place. No-ops if the entry has been cleared in the meantime.
func (s *Store) resolve(provisional ID, serverID int64) {
	s.mu.Lock()
	idx := s.indexOfLocked(provisional)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	delete(s.seen, provisional.Key())
	s.messages[idx].ID = PersistedID(serverID)
	s.messages[idx].Pending = false
	s.seen[s.messages[idx].ID.Key()] = true
	s.mu.Unlock()
	s.notify()
}

// =============================================================================
// MUTATION
// =============================================================================

// Update applies fn to the message with the given identifier.
func (s *Store) Update(id ID, fn func(*Message)) bool {
	s.mu.Lock()
	idx := s.indexOfLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	fn(&s.messages[idx])
	s.mu.Unlock()
	s.notify()
	return true
}

// Clear resets the list and the seen set, and evicts the given session from
// the loaded set so its next Load hits the network again.
func (s *Store) Clear(sessionID int64) {
	s.mu.Lock()
	s.messages = nil
	s.seen = make(map[string]bool)
	delete(s.loaded, sessionID)
	s.mu.Unlock()
	s.notify()
}

// =============================================================================
// STREAMING HELPERS
// =============================================================================

// AppendToLast appends streamed deltas to the final list entry. It is a no-op
// unless that entry is an assistant message still marked streaming, which
// protects a finalized or superseded message from late chunks.
func (s *Store) AppendToLast(contentDelta, reasoningDelta string) bool {
	s.mu.Lock()
	n := len(s.messages)
	if n == 0 {
		s.mu.Unlock()
		return false
	}
	last := &s.messages[n-1]
	if !last.IsAssistant() || !last.Streaming {
		s.mu.Unlock()
		return false
	}
	last.Content += contentDelta
	last.Reasoning += reasoningDelta
	s.mu.Unlock()
	s.notify()
	return true
}

// FinalizeLast clears the streaming flag on the last entry, records the token
// count, and persists the completed assistant message in the background.
func (s *Store) FinalizeLast(tokens int) (Message, bool) {
	s.mu.Lock()
	n := len(s.messages)
	if n == 0 || !s.messages[n-1].IsAssistant() || !s.messages[n-1].Streaming {
		s.mu.Unlock()
		return Message{}, false
	}
	last := &s.messages[n-1]
	last.Streaming = false
	last.Tokens = tokens
	m := *last
	s.mu.Unlock()
	s.notify()

	s.saves.Add(1)
	go s.persist(m)
	return m, true
}

// FailLast attaches error text to the last streaming entry and clears its
// streaming flag. The partial response stays visible.
func (s *Store) FailLast(errText string) bool {
	s.mu.Lock()
	n := len(s.messages)
	if n == 0 || !s.messages[n-1].IsAssistant() || !s.messages[n-1].Streaming {
		s.mu.Unlock()
		return false
	}
	s.messages[n-1].Streaming = false
	s.messages[n-1].ErrorText = errText
	s.mu.Unlock()
	s.notify()
	return true
}

// =============================================================================
// READS
// =============================================================================

// Messages returns a snapshot of the full list.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// ForSession returns a snapshot of one session's messages.
func (s *Store) ForSession(sessionID int64) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forSessionLocked(sessionID)
}

// History builds the outgoing completion payload for a session: role and
// content only, excluding entries still streaming. It always reads the
// current list, so a send handler created earlier can never observe a stale
// snapshot.
func (s *Store) History(sessionID int64) []api.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []api.ChatMessage
	for _, m := range s.messages {
		if m.SessionID != sessionID || m.Streaming {
			continue
		}
		out = append(out, api.ChatMessage{Role: m.Role, Content: m.Text()})
	}
	return out
}

// Err returns the last recorded error string, empty when healthy.
func (s *Store) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// WaitSaves blocks until all in-flight background saves finish. Used by
// shutdown and tests.
func (s *Store) WaitSaves() {
	s.saves.Wait()
}

// =============================================================================
// INTERNAL
// =============================================================================

func (s *Store) forSessionLocked(sessionID int64) []Message {
	var out []Message
	for _, m := range s.messages {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	return out
}

func (s *Store) indexOfLocked(id ID) int {
	key := id.Key()
	for i := range s.messages {
		if s.messages[i].ID.Key() == key {
			return i
		}
	}
	return -1
}
