// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package message

import (
	"strings"
	"time"
)

// =============================================================================
// MESSAGE
// =============================================================================

// PartType identifies one segment of a rich message body.
type PartType string

// Content part types.
const (
	PartText  PartType = "text"
	PartImage PartType = "image_url"
	PartAudio PartType = "input_audio"
)

// ContentPart is one segment of a multi-part message body.
type ContentPart struct {
	Type PartType
	Text string
	URL  string
}

// Message is one entry in a session's message list.
type Message struct {
	ID        ID
	SessionID int64
	Role      string // "user", "assistant", or "system"
	Content   string
	Parts     []ContentPart // set only for rich multi-part bodies
	Model     string
	Tokens    int
	CreatedAt time.Time

	// Streaming marks an assistant placeholder still receiving tokens.
	Streaming bool
	// Reasoning holds the secondary "thinking" channel some models emit.
	Reasoning string
	// ErrorText is attached when a stream or save fails; the message stays
	// visible rather than disappearing.
	ErrorText string
	// Pending marks an optimistic entry not yet confirmed by the server.
	Pending bool
}

// Text returns the plain-text body: Content, or the concatenated text parts
// for multi-part messages.
func (m *Message) Text() string {
	if m.Content != "" || len(m.Parts) == 0 {
		return m.Content
	}
	var sb strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// IsAssistant reports whether the message carries the assistant role.
func (m *Message) IsAssistant() bool {
	return m.Role == "assistant"
}
