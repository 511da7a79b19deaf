// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package message

import (
	"strconv"

	"github.com/google/uuid"
)

// =============================================================================
// MESSAGE IDENTIFIER
// =============================================================================

// ID is a tagged message identifier: either a client-generated provisional
// token assigned before the server confirms persistence, or the
// server-assigned numeric id. Exactly one variant is set.
//
// The zero value is no identifier at all; callers must construct IDs through
// NewProvisionalID or PersistedID.
type ID struct {
	token string
	num   int64
}

// NewProvisionalID generates a fresh provisional identifier.
func NewProvisionalID() ID {
	return ID{token: uuid.NewString()}
}

// PersistedID wraps a server-assigned identifier.
func PersistedID(n int64) ID {
	return ID{num: n}
}

// IsProvisional reports whether the identifier is a client-side placeholder.
func (id ID) IsProvisional() bool {
	return id.token != ""
}

// IsZero reports whether the identifier is unset.
func (id ID) IsZero() bool {
	return id.token == "" && id.num == 0
}

// Persisted returns the server-assigned number, if any.
func (id ID) Persisted() (int64, bool) {
	if id.num != 0 {
		return id.num, true
	}
	return 0, false
}

// Key returns the normalized string form used for deduplication. Provisional
// tokens are UUIDs and server keys are decimal digits, so the two variants
// cannot collide.
func (id ID) Key() string {
	if id.token != "" {
		return "tmp_" + id.token
	}
	return strconv.FormatInt(id.num, 10)
}

// String implements fmt.Stringer.
func (id ID) String() string {
	return id.Key()
}
