// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package registry caches the gateway model catalog and resolves friendly
// aliases to full model identifiers.
package registry

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gatewayz/gatewayz-tui/internal/api"
)

// FallbackModel is used when neither config nor the catalog offers a default.
const FallbackModel = "openai/gpt-3.5-turbo"

// catalogTTL bounds how long a fetched catalog is trusted.
const catalogTTL = 10 * time.Minute

// aliases maps short names users actually type to full identifiers.
var aliases = map[string]string{
	"gpt":    "openai/gpt-4o",
	"gpt4":   "openai/gpt-4o",
	"mini":   "openai/gpt-4o-mini",
	"claude": "anthropic/claude-sonnet-4",
	"haiku":  "anthropic/claude-haiku-4",
	"gemini": "google/gemini-2.0-flash",
	"llama":  "meta-llama/llama-3.3-70b-instruct",
}

// Lister is the slice of the gateway API the registry needs.
type Lister interface {
	ListModels(ctx context.Context) ([]api.ModelInfo, error)
}

// Registry serves the model catalog from a TTL cache.
type Registry struct {
	mu        sync.Mutex
	backend   Lister
	models    []api.ModelInfo
	fetchedAt time.Time

	// preferred is the configured default, empty to fall back.
	preferred string
}

// New creates a registry. preferred may be empty.
func New(backend Lister, preferred string) *Registry {
	return &Registry{backend: backend, preferred: Resolve(preferred)}
}

// Resolve expands a friendly alias to a full model identifier. Unknown names
// pass through unchanged, so full identifiers always work.
func Resolve(name string) string {
	name = strings.TrimSpace(name)
	if full, ok := aliases[strings.ToLower(name)]; ok {
		return full
	}
	return name
}

// DefaultModel returns the model to use when nothing else names one.
func (r *Registry) DefaultModel() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.preferred != "" {
		return r.preferred
	}
	return FallbackModel
}

// SetDefault updates the preferred model, resolving aliases.
func (r *Registry) SetDefault(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preferred = Resolve(name)
}

// Models returns the catalog, fetching when the cache is cold or expired. On
// fetch failure a previously cached catalog is served.
func (r *Registry) Models(ctx context.Context) ([]api.ModelInfo, error) {
	r.mu.Lock()
	if len(r.models) > 0 && time.Since(r.fetchedAt) < catalogTTL {
		out := r.snapshotLocked()
		r.mu.Unlock()
		return out, nil
	}
	r.mu.Unlock()

	models, err := r.backend.ListModels(ctx)
	if err != nil {
		r.mu.Lock()
		out := r.snapshotLocked()
		r.mu.Unlock()
		if len(out) > 0 {
			return out, nil
		}
		return nil, err
	}

	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })

	r.mu.Lock()
	r.models = models
	r.fetchedAt = time.Now()
	out := r.snapshotLocked()
	r.mu.Unlock()
	return out, nil
}

// Known reports whether the identifier appears in the cached catalog. An
// empty cache reports true: the gateway is the authority, not the cache.
func (r *Registry) Known(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.models) == 0 {
		return true
	}
	for _, m := range r.models {
		if m.ID == id {
			return true
		}
	}
	return false
}

func (r *Registry) snapshotLocked() []api.ModelInfo {
	out := make([]api.ModelInfo, len(r.models))
	copy(out, r.models)
	return out
}
