// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session owns the conversation session list and the active-session
// pointer.
//
// Writes are optimistic: create unshifts the new session before the caller
// continues, update bumps the local timestamp and reconciles by refetch on
// failure, delete snapshots the list and restores it on failure. Creation is
// the one operation hard-blocked against concurrency, because a duplicate
// create is not idempotent server-side.
package session
