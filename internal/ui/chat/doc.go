// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the Bubble Tea chat view: transcript viewport,
// session sidebar, input line, and status bar, driven by orchestrator events.
package chat
