// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package orchestrator composes the session store, message store, input
// manager, and streaming engine into one chat lifecycle.
//
// The orchestrator is the only component that sequences calls across stores;
// stores never call each other. Boot runs a small phase machine
// (pending→checking_auth→loading_sessions→ready, error on missing
// credentials) guarded by a once-latch, and launch options (preselected
// model, one-shot auto-send) are processed exactly once after ready.
package orchestrator
