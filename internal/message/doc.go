// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package message holds the ordered message list for the active chat session.
//
// Messages are inserted optimistically with a provisional identifier so the
// UI updates before the server confirms persistence; the identifier is
// swapped in place once the server assigns a real one. A seen-identifier set
// keeps deduplication O(1) and a loaded-session set prevents refetching
// history the store already holds.
package message
