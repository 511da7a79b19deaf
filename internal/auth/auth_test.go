// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestEnvProvider(t *testing.T) {
	t.Setenv(EnvAPIKey, "env-key")
	key, err := EnvProvider{}.Credential()
	if err != nil || key != "env-key" {
		t.Errorf("got %q, %v", key, err)
	}
}

func TestEnvProvider_Empty(t *testing.T) {
	t.Setenv(EnvAPIKey, "   ")
	if _, err := (EnvProvider{}).Credential(); !errors.Is(err, ErrNoCredential) {
		t.Errorf("want ErrNoCredential, got %v", err)
	}
}

func TestEnvProvider_CustomVar(t *testing.T) {
	t.Setenv("MY_KEY", "custom")
	key, err := EnvProvider{Var: "MY_KEY"}.Credential()
	if err != nil || key != "custom" {
		t.Errorf("got %q, %v", key, err)
	}
}

func TestFileProvider_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds", "credentials")
	p := FileProvider{Path: path}

	if _, err := p.Credential(); !errors.Is(err, ErrNoCredential) {
		t.Errorf("missing file: want ErrNoCredential, got %v", err)
	}

	if err := p.Save("file-key"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	key, err := p.Credential()
	if err != nil || key != "file-key" {
		t.Errorf("got %q, %v", key, err)
	}

	// Key file must be owner-only.
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file perm = %o, want 600", perm)
	}
}

func TestFileProvider_TrimsWhitespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials")
	_ = os.WriteFile(path, []byte("  padded-key\n\n"), 0o600)

	key, err := FileProvider{Path: path}.Credential()
	if err != nil || key != "padded-key" {
		t.Errorf("got %q, %v", key, err)
	}
}

func TestFileProvider_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials")
	_ = os.WriteFile(path, []byte("\n"), 0o600)
	if _, err := (FileProvider{Path: path}).Credential(); !errors.Is(err, ErrNoCredential) {
		t.Errorf("want ErrNoCredential, got %v", err)
	}
}

type stubProvider struct {
	key string
	err error
}

func (s stubProvider) Credential() (string, error) { return s.key, s.err }

func TestChain_FirstHitWins(t *testing.T) {
	c := Chain{
		stubProvider{err: ErrNoCredential},
		stubProvider{key: "second"},
		stubProvider{key: "third"},
	}
	key, err := c.Credential()
	if err != nil || key != "second" {
		t.Errorf("got %q, %v", key, err)
	}
}

func TestChain_AllEmpty(t *testing.T) {
	c := Chain{
		stubProvider{err: ErrNoCredential},
		stubProvider{err: ErrNoCredential},
	}
	if _, err := c.Credential(); !errors.Is(err, ErrNoCredential) {
		t.Errorf("want ErrNoCredential, got %v", err)
	}
}

func TestChain_HardErrorStops(t *testing.T) {
	hard := errors.New("disk failure")
	c := Chain{
		stubProvider{err: ErrNoCredential},
		stubProvider{err: hard},
		stubProvider{key: "unreachable"},
	}
	if _, err := c.Credential(); !errors.Is(err, hard) {
		t.Errorf("hard error swallowed: %v", err)
	}
}
