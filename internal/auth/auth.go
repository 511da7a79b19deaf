// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth resolves the Gatewayz API key at startup.
//
// Providers are tried in order: environment variable, key file, interactive
// terminal prompt. The first non-empty credential wins.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/gatewayz/gatewayz-tui/internal/util"
)

// EnvAPIKey is the environment variable consulted first.
const EnvAPIKey = "GATEWAYZ_API_KEY"

// keyFileName is the key file under the config directory.
const keyFileName = "credentials"

// ErrNoCredential is returned when a provider has no key to offer.
var ErrNoCredential = errors.New("no credential available")

// Provider yields an API key, or ErrNoCredential.
type Provider interface {
	Credential() (string, error)
}

// =============================================================================
// ENVIRONMENT PROVIDER
// =============================================================================

// EnvProvider reads the key from the environment.
type EnvProvider struct {
	// Var overrides the variable name; empty means EnvAPIKey.
	Var string
}

// Credential implements Provider.
func (p EnvProvider) Credential() (string, error) {
	name := p.Var
	if name == "" {
		name = EnvAPIKey
	}
	if key := strings.TrimSpace(os.Getenv(name)); key != "" {
		return key, nil
	}
	return "", ErrNoCredential
}

// =============================================================================
// FILE PROVIDER
// =============================================================================

// FileProvider reads the key from a file under the config directory. The file
// holds the bare key, nothing else.
type FileProvider struct {
	// Path overrides the file location; empty means the default under the
	// user config directory.
	Path string
}

// DefaultKeyPath returns the default credentials file location.
func DefaultKeyPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "gatewayz", keyFileName), nil
}

// Credential implements Provider.
func (p FileProvider) Credential() (string, error) {
	path := p.Path
	if path == "" {
		var err error
		path, err = DefaultKeyPath()
		if err != nil {
			return "", ErrNoCredential
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", ErrNoCredential
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", ErrNoCredential
	}
	return key, nil
}

// Save writes the key to the provider's file with owner-only permissions.
func (p FileProvider) Save(key string) error {
	path := p.Path
	if path == "" {
		var err error
		path, err = DefaultKeyPath()
		if err != nil {
			return err
		}
	}
	return util.AtomicWriteFileWithDir(path, []byte(key+"\n"), 0o600, 0o700)
}

// =============================================================================
// PROMPT PROVIDER
// =============================================================================

// PromptProvider asks for the key on the terminal with echo disabled. Keys
// entered interactively are saved through Store for the next run.
type PromptProvider struct {
	// Store receives the entered key, nil to skip saving.
	Store *FileProvider
}

// Credential implements Provider.
func (p PromptProvider) Credential() (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", ErrNoCredential
	}

	fmt.Fprint(os.Stderr, "Gatewayz API key: ")
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", ErrNoCredential
	}

	key := strings.TrimSpace(string(raw))
	if key == "" {
		return "", ErrNoCredential
	}
	if p.Store != nil {
		if err := p.Store.Save(key); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not save key: %v\n", err)
		}
	}
	return key, nil
}

// =============================================================================
// CHAIN
// =============================================================================

// Chain tries each provider in order and returns the first credential found.
type Chain []Provider

// Credential implements Provider.
func (c Chain) Credential() (string, error) {
	for _, p := range c {
		key, err := p.Credential()
		if err == nil && key != "" {
			return key, nil
		}
		if err != nil && !errors.Is(err, ErrNoCredential) {
			return "", err
		}
	}
	return "", ErrNoCredential
}

// DefaultChain is the standard resolution order: environment, key file,
// interactive prompt (which persists to the key file on success).
func DefaultChain() Chain {
	file := &FileProvider{}
	return Chain{
		EnvProvider{},
		*file,
		PromptProvider{Store: file},
	}
}
