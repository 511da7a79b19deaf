// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package input stages outgoing message content and attachments and
// validates them before submission.
package input

import (
	"sync"

	"github.com/gatewayz/gatewayz-tui/internal/util"
)

// Default validation limits.
const (
	DefaultMaxTextLen        = 8000
	DefaultMaxAttachments    = 5
	DefaultMaxAttachmentSize = 10 * 1024 * 1024 // 10MB per file
)

// Attachment is one staged file to send alongside the message text.
type Attachment struct {
	Name string
	MIME string
	Size int64
	Data []byte
}

// Limits configures the manager's validation thresholds.
type Limits struct {
	MaxTextLen        int
	MaxAttachments    int
	MaxAttachmentSize int64
}

// DefaultLimits returns the default validation limits.
func DefaultLimits() Limits {
	return Limits{
		MaxTextLen:        DefaultMaxTextLen,
		MaxAttachments:    DefaultMaxAttachments,
		MaxAttachmentSize: DefaultMaxAttachmentSize,
	}
}

// =============================================================================
// INPUT MANAGER
// =============================================================================

// Manager holds staged text and attachments plus the submission-in-progress
// flag. CanSubmit is computed from current state, never stored.
type Manager struct {
	mu          sync.Mutex
	text        string
	attachments []Attachment
	submitting  bool
	validation  string
	limits      Limits
}

// NewManager creates a manager with the given limits. Zero limit fields fall
// back to defaults.
func NewManager(limits Limits) *Manager {
	def := DefaultLimits()
	if limits.MaxTextLen <= 0 {
		limits.MaxTextLen = def.MaxTextLen
	}
	if limits.MaxAttachments <= 0 {
		limits.MaxAttachments = def.MaxAttachments
	}
	if limits.MaxAttachmentSize <= 0 {
		limits.MaxAttachmentSize = def.MaxAttachmentSize
	}
	return &Manager{limits: limits}
}

// SetText replaces the staged text and clears any stale validation error.
func (m *Manager) SetText(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
	m.validation = ""
}

// Text returns the staged text.
func (m *Manager) Text() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text
}

// Attachments returns a snapshot of the staged attachments.
func (m *Manager) Attachments() []Attachment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Attachment, len(m.attachments))
	copy(out, m.attachments)
	return out
}

// AddAttachment stages a file. Attachments beyond the count limit or the
// per-file size limit are rejected by setting the validation error, not by
// panicking or returning.
func (m *Manager) AddAttachment(a Attachment) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.attachments) >= m.limits.MaxAttachments {
		m.validation = "too many attachments (max " + util.IntToString(m.limits.MaxAttachments) + ")"
		return false
	}
	if a.Size > m.limits.MaxAttachmentSize {
		m.validation = "attachment too large: " + a.Name
		return false
	}
	m.attachments = append(m.attachments, a)
	m.validation = ""
	return true
}

// RemoveAttachment drops the attachment at the given index.
func (m *Manager) RemoveAttachment(i int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.attachments) {
		return
	}
	m.attachments = append(m.attachments[:i], m.attachments[i+1:]...)
}

// =============================================================================
// SUBMISSION GUARDS
// =============================================================================

// CanSubmit reports whether the staged input may be submitted right now.
func (m *Manager) CanSubmit() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canSubmitLocked()
}

func (m *Manager) canSubmitLocked() bool {
	if m.submitting || m.validation != "" {
		return false
	}
	if m.text == "" && len(m.attachments) == 0 {
		return false
	}
	if len([]rune(m.text)) > m.limits.MaxTextLen {
		return false
	}
	return len(m.attachments) <= m.limits.MaxAttachments
}

// Validate re-derives the submission checks, setting or clearing the
// validation error as a side effect. Call immediately before submitting.
func (m *Manager) Validate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.text == "" && len(m.attachments) == 0:
		m.validation = "nothing to send"
	case len([]rune(m.text)) > m.limits.MaxTextLen:
		m.validation = "message too long (max " + util.IntToString(m.limits.MaxTextLen) + " characters)"
	case len(m.attachments) > m.limits.MaxAttachments:
		m.validation = "too many attachments (max " + util.IntToString(m.limits.MaxAttachments) + ")"
	default:
		m.validation = ""
	}
	return m.validation == "" && !m.submitting
}

// ValidationError returns the current validation error text, empty if none.
func (m *Manager) ValidationError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validation
}

// BeginSubmit marks a submission in progress. Returns false if one already
// is, so double-submits collapse at the input layer too.
func (m *Manager) BeginSubmit() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitting {
		return false
	}
	m.submitting = true
	return true
}

// EndSubmit clears the submission flag.
func (m *Manager) EndSubmit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitting = false
}

// Reset clears staged text, attachments, and validation state. The
// submission flag is left alone; EndSubmit owns it.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = ""
	m.attachments = nil
	m.validation = ""
}
