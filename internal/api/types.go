// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import "time"

// =============================================================================
// SESSION TYPES
// =============================================================================

// Session is one persisted conversation thread on the gateway.
type Session struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	IsActive     bool      `json:"is_active"`
	MessageCount int       `json:"message_count,omitempty"`
}

// SessionDetail is a session record together with its message history, as
// returned by GET /v1/chat/sessions/{id}.
type SessionDetail struct {
	Session
	Messages []Message `json:"messages"`
}

// SessionUpdate carries a partial session update. Nil fields are left
// untouched by the server.
type SessionUpdate struct {
	Title *string `json:"title,omitempty"`
	Model *string `json:"model,omitempty"`
}

// SessionStats summarizes a user's chat history.
type SessionStats struct {
	TotalSessions int `json:"total_sessions"`
	TotalMessages int `json:"total_messages"`
}

// =============================================================================
// MESSAGE TYPES
// =============================================================================

// Message is a persisted chat message with a server-assigned identifier.
type Message struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"session_id"`
	Role      string    `json:"role"` // "user", "assistant", or "system"
	Content   string    `json:"content"`
	Model     string    `json:"model,omitempty"`
	Tokens    int       `json:"tokens,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SaveMessageRequest is the body for POST /v1/chat/sessions/{id}/messages.
type SaveMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`
	Tokens  int    `json:"tokens,omitempty"`
}

// ChatMessage is the wire form of one conversation turn for completion
// requests: role and content only, no client-side bookkeeping fields.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewUserMessage creates a user turn.
func NewUserMessage(content string) ChatMessage {
	return ChatMessage{Role: "user", Content: content}
}

// NewAssistantMessage creates an assistant turn.
func NewAssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: content}
}

// NewSystemMessage creates a system turn.
func NewSystemMessage(content string) ChatMessage {
	return ChatMessage{Role: "system", Content: content}
}

// =============================================================================
// COMPLETION TYPES
// =============================================================================

// CompletionRequest is the body for POST /v1/chat/completions.
type CompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// ModelInfo describes one model available through the gateway.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContextSize int    `json:"context_length"`
}

// =============================================================================
// RESPONSE ENVELOPES
// =============================================================================

// The gateway wraps every non-streaming response in this envelope shape.

type sessionEnvelope struct {
	Success bool    `json:"success"`
	Data    Session `json:"data"`
	Message string  `json:"message"`
}

type sessionListEnvelope struct {
	Success bool      `json:"success"`
	Data    []Session `json:"data"`
	Count   int       `json:"count"`
	Message string    `json:"message"`
}

type sessionDetailEnvelope struct {
	Success bool          `json:"success"`
	Data    SessionDetail `json:"data"`
	Message string        `json:"message"`
}

type messageEnvelope struct {
	Success bool    `json:"success"`
	Data    Message `json:"data"`
	Message string  `json:"message"`
}

type statsEnvelope struct {
	Success bool         `json:"success"`
	Stats   SessionStats `json:"stats"`
	Message string       `json:"message"`
}

type modelsEnvelope struct {
	Data []ModelInfo `json:"data"`
}

type deleteEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type createSessionRequest struct {
	Title string `json:"title,omitempty"`
	Model string `json:"model,omitempty"`
}
