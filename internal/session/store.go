// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gatewayz/gatewayz-tui/internal/api"
)

// Error variables for session store operations.
var (
	// ErrCreateInFlight is returned when a second create is attempted while
	// one is already outstanding. The call is rejected, not queued: queuing
	// would still create two sessions, just sequentially.
	ErrCreateInFlight = errors.New("session creation already in progress")

	// ErrNoSuchSession is returned for operations on an unknown session id.
	ErrNoSuchSession = errors.New("session not in list")
)

// Backend is the slice of the gateway API the session store needs.
type Backend interface {
	ListSessions(ctx context.Context, limit, offset int) ([]api.Session, error)
	CreateSession(ctx context.Context, title, model string) (*api.Session, error)
	UpdateSession(ctx context.Context, id int64, upd api.SessionUpdate) (*api.Session, error)
	DeleteSession(ctx context.Context, id int64) error
	SearchSessions(ctx context.Context, query string, limit int) ([]api.Session, error)
}

// =============================================================================
// SESSION STORE
// =============================================================================

// Store owns the in-memory session list and the active-session pointer.
// activeID is zero when no session is active; when non-zero it always refers
// to an entry present in the list.
type Store struct {
	mu       sync.Mutex
	backend  Backend
	sessions []api.Session
	activeID int64

	// creating serializes session creation. Set synchronously before any
	// network work begins and cleared on every exit path.
	creating bool

	// refreshing collapses concurrent refresh calls into one request.
	refreshing bool

	lastError string
	onActive  func(id int64)
}

// NewStore creates an empty session store backed by the gateway API.
func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

// SetActiveHandler registers a callback invoked when the active session
// changes. The orchestrator uses it to trigger message loading.
func (s *Store) SetActiveHandler(fn func(id int64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onActive = fn
}

// =============================================================================
// READ OPERATIONS
// =============================================================================

// Refresh fetches the full session list and replaces in-memory state. A call
// made while another refresh is outstanding returns immediately instead of
// dogpiling the endpoint. On failure the existing list is kept: stale data
// beats an empty screen.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.refreshing {
		s.mu.Unlock()
		return nil
	}
	s.refreshing = true
	s.mu.Unlock()

	sessions, err := s.backend.ListSessions(ctx, 0, 0)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshing = false

	if err != nil {
		s.lastError = err.Error()
		return err
	}

	s.sessions = sessions
	s.lastError = ""

	// Active session vanished server-side: clear the pointer.
	if s.activeID != 0 && s.indexOfLocked(s.activeID) < 0 {
		s.activeID = 0
	}
	return nil
}

// Sessions returns a snapshot of the session list.
func (s *Store) Sessions() []api.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.Session, len(s.sessions))
	copy(out, s.sessions)
	return out
}

// Active returns the active session, or nil.
func (s *Store) Active() *api.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := s.indexOfLocked(s.activeID); idx >= 0 {
		sess := s.sessions[idx]
		return &sess
	}
	return nil
}

// ActiveID returns the active session id, zero when none.
func (s *Store) ActiveID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Err returns the last recorded error string, empty when healthy.
func (s *Store) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Search queries the gateway for sessions matching a title or message
// substring. The in-memory list is left untouched.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]api.Session, error) {
	return s.backend.SearchSessions(ctx, query, limit)
}

// =============================================================================
// CREATE
// =============================================================================

// Create creates a new session, unshifts it onto the front of the list, and
// makes it active. While one create is outstanding every further call fails
// fast with ErrCreateInFlight; this closes the double-submit race that used
// to mint duplicate sessions.
func (s *Store) Create(ctx context.Context, title, model string) (*api.Session, error) {
	s.mu.Lock()
	if s.creating {
		s.mu.Unlock()
		return nil, ErrCreateInFlight
	}
	s.creating = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.creating = false
		s.mu.Unlock()
	}()

	sess, err := s.backend.CreateSession(ctx, title, model)
	if err != nil {
		s.mu.Lock()
		s.lastError = err.Error()
		s.mu.Unlock()
		return nil, err
	}

	s.mu.Lock()
	s.sessions = append([]api.Session{*sess}, s.sessions...)
	s.activeID = sess.ID
	s.lastError = ""
	fn := s.onActive
	s.mu.Unlock()

	if fn != nil {
		fn(sess.ID)
	}
	return sess, nil
}

// =============================================================================
// SELECT
// =============================================================================

// Select sets the active pointer if the id exists in the current list;
// otherwise it is a no-op and returns false.
func (s *Store) Select(id int64) bool {
	s.mu.Lock()
	if s.indexOfLocked(id) < 0 {
		s.mu.Unlock()
		return false
	}
	changed := s.activeID != id
	s.activeID = id
	fn := s.onActive
	s.mu.Unlock()

	if changed && fn != nil {
		fn(id)
	}
	return true
}

// ClearActive drops the active pointer without touching the list.
func (s *Store) ClearActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeID = 0
}

// =============================================================================
// UPDATE
// =============================================================================

// Update applies an optimistic rename/model change, bumping the local
// updated timestamp, then confirms with the server. On failure the store
// refetches the full list rather than attempting a manual rollback.
func (s *Store) Update(ctx context.Context, id int64, upd api.SessionUpdate) error {
	s.mu.Lock()
	idx := s.indexOfLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return ErrNoSuchSession
	}
	if upd.Title != nil {
		s.sessions[idx].Title = *upd.Title
	}
	if upd.Model != nil {
		s.sessions[idx].Model = *upd.Model
	}
	s.sessions[idx].UpdatedAt = time.Now()
	s.mu.Unlock()

	if _, err := s.backend.UpdateSession(ctx, id, upd); err != nil {
		s.mu.Lock()
		s.lastError = err.Error()
		s.mu.Unlock()
		log.Printf("session update failed, refetching: %v", err)
		// Refetch is the reconciliation strategy; its own failure keeps
		// the optimistic state, which the next refresh corrects.
		_ = s.Refresh(ctx)
		return err
	}
	return nil
}

// Touch bumps a session's local updated timestamp and resorts nothing; the
// grouped view recomputes on read. Used when a new message lands.
func (s *Store) Touch(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := s.indexOfLocked(id); idx >= 0 {
		s.sessions[idx].UpdatedAt = time.Now()
	}
}

// =============================================================================
// DELETE
// =============================================================================

// Delete removes a session optimistically, snapshotting the prior list. If
// the server rejects the delete, the snapshot is restored, including the
// active pointer when the deleted session was active.
func (s *Store) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	idx := s.indexOfLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return ErrNoSuchSession
	}

	snapshot := make([]api.Session, len(s.sessions))
	copy(snapshot, s.sessions)
	priorActive := s.activeID

	s.sessions = append(s.sessions[:idx], s.sessions[idx+1:]...)
	if s.activeID == id {
		s.activeID = 0
	}
	s.mu.Unlock()

	if err := s.backend.DeleteSession(ctx, id); err != nil {
		s.mu.Lock()
		s.sessions = snapshot
		s.activeID = priorActive
		s.lastError = err.Error()
		s.mu.Unlock()
		return err
	}
	return nil
}

// =============================================================================
// INTERNAL
// =============================================================================

func (s *Store) indexOfLocked(id int64) int {
	if id == 0 {
		return -1
	}
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			return i
		}
	}
	return -1
}
