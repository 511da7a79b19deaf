// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api implements the HTTP client for the Gatewayz gateway.
//
// The gateway exposes session CRUD under /v1/chat/sessions, message
// persistence under /v1/chat/sessions/{id}/messages, and an OpenAI-compatible
// streaming completion endpoint at /v1/chat/completions. All requests carry a
// bearer credential. Responses are wrapped in a {success, data, message}
// envelope.
//
// Read operations use a bounded client-side deadline; streaming requests run
// on a separate HTTP client with no timeout and are cancelled via context.
package api
