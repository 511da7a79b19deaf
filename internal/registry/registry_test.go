// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package registry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/gatewayz/gatewayz-tui/internal/api"
)

type fakeLister struct {
	models []api.ModelInfo
	err    error
	calls  atomic.Int32
}

func (f *fakeLister) ListModels(ctx context.Context) ([]api.ModelInfo, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.models, nil
}

func TestResolve(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"claude", "anthropic/claude-sonnet-4"},
		{"CLAUDE", "anthropic/claude-sonnet-4"},
		{"mini", "openai/gpt-4o-mini"},
		{"openai/gpt-4o", "openai/gpt-4o"}, // full ids pass through
		{"unknown-model", "unknown-model"},
		{"  gpt  ", "openai/gpt-4o"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Resolve(tt.in); got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDefaultModel(t *testing.T) {
	r := New(&fakeLister{}, "")
	if got := r.DefaultModel(); got != FallbackModel {
		t.Errorf("empty preference: %q, want fallback", got)
	}

	r = New(&fakeLister{}, "claude")
	if got := r.DefaultModel(); got != "anthropic/claude-sonnet-4" {
		t.Errorf("aliased preference: %q", got)
	}

	r.SetDefault("mini")
	if got := r.DefaultModel(); got != "openai/gpt-4o-mini" {
		t.Errorf("after SetDefault: %q", got)
	}
}

func TestModels_CachesCatalog(t *testing.T) {
	lister := &fakeLister{models: []api.ModelInfo{{ID: "b"}, {ID: "a"}}}
	r := New(lister, "")

	first, err := r.Models(context.Background())
	if err != nil {
		t.Fatalf("Models failed: %v", err)
	}
	if len(first) != 2 || first[0].ID != "a" {
		t.Errorf("catalog not sorted: %+v", first)
	}

	_, _ = r.Models(context.Background())
	if lister.calls.Load() != 1 {
		t.Errorf("backend hit %d times within TTL, want 1", lister.calls.Load())
	}
}

func TestModels_ServesStaleOnFailure(t *testing.T) {
	lister := &fakeLister{models: []api.ModelInfo{{ID: "a"}}}
	r := New(lister, "")

	if _, err := r.Models(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Expire the cache, then fail the refetch.
	r.mu.Lock()
	r.fetchedAt = r.fetchedAt.Add(-2 * catalogTTL)
	r.mu.Unlock()
	lister.err = errors.New("gateway down")

	models, err := r.Models(context.Background())
	if err != nil {
		t.Fatalf("stale catalog not served: %v", err)
	}
	if len(models) != 1 {
		t.Errorf("got %d models", len(models))
	}
}

func TestModels_ColdCacheFailure(t *testing.T) {
	lister := &fakeLister{err: errors.New("down")}
	r := New(lister, "")
	if _, err := r.Models(context.Background()); err == nil {
		t.Error("expected error with cold cache and failing backend")
	}
}

func TestKnown(t *testing.T) {
	r := New(&fakeLister{}, "")
	if !r.Known("anything") {
		t.Error("empty cache must not reject models")
	}

	r.mu.Lock()
	r.models = []api.ModelInfo{{ID: "openai/gpt-4o"}}
	r.mu.Unlock()

	if !r.Known("openai/gpt-4o") {
		t.Error("cataloged model reported unknown")
	}
	if r.Known("bogus/model") {
		t.Error("uncataloged model reported known")
	}
}
