// Gatewayz TUI - A terminal chat client for the Gatewayz LLM gateway.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/gatewayz/gatewayz-tui/internal/api"
	"github.com/gatewayz/gatewayz-tui/internal/archive"
	"github.com/gatewayz/gatewayz-tui/internal/auth"
	"github.com/gatewayz/gatewayz-tui/internal/config"
	"github.com/gatewayz/gatewayz-tui/internal/input"
	"github.com/gatewayz/gatewayz-tui/internal/message"
	"github.com/gatewayz/gatewayz-tui/internal/orchestrator"
	"github.com/gatewayz/gatewayz-tui/internal/registry"
	"github.com/gatewayz/gatewayz-tui/internal/session"
	"github.com/gatewayz/gatewayz-tui/internal/stream"
	"github.com/gatewayz/gatewayz-tui/internal/ui/chat"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	var (
		modelFlag   = flag.String("model", "", "model to chat with (alias or full identifier)")
		sendFlag    = flag.String("send", "", "send this message on startup")
		configFlag  = flag.String("config", "", "path to config file")
		versionFlag = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *versionFlag {
		fmt.Printf("gatewayz-tui %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	if err := run(*configFlag, *modelFlag, *sendFlag); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, modelFlag, sendFlag string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// TUI owns the screen; route the standard logger to a file.
	if f := openLogFile(); f != nil {
		log.SetOutput(f)
		defer f.Close()
	}

	// The credential resolves before the TUI starts so the prompt provider
	// can still talk to the terminal.
	key, err := auth.DefaultChain().Credential()
	if err != nil {
		key = "" // boot reports the missing credential on the phase screen
	}

	client := api.NewClient(key).
		WithBaseURL(cfg.API.BaseURL).
		WithTimeouts(
			time.Duration(cfg.API.TimeoutSecs)*time.Second,
			time.Duration(2*cfg.API.TimeoutSecs)*time.Second,
		).
		WithMaxRetries(cfg.API.MaxRetries)
	if rps := cfg.API.RequestsPerSecond; rps > 0 {
		client = client.WithRateLimit(rps, int(rps)+1)
	}

	sessions := session.NewStore(client)
	messages := message.NewStore(client)
	inputs := input.NewManager(input.Limits{MaxTextLen: cfg.Chat.MaxInputChars})
	engine := stream.NewEngine(client)
	models := registry.New(client, cfg.Chat.DefaultModel)

	var arc *archive.Archive
	if cfg.Archive.Enabled {
		arc, err = archive.Open(cfg.Archive.Path)
		if err != nil {
			log.Printf("archive disabled: %v", err)
			arc = nil
		} else {
			defer arc.Close()
		}
	}

	creds := staticCredential(key)
	orch := orchestrator.New(sessions, messages, inputs, engine, creds, models, archiver(arc))
	orch.SetLaunchOptions(orchestrator.LaunchOptions{
		Model:    registry.Resolve(modelFlag),
		AutoSend: strings.TrimSpace(sendFlag),
	})

	ui := chat.New(chat.Deps{
		Orch:     orch,
		Sessions: sessions,
		Messages: messages,
		Inputs:   inputs,
		Archive:  arc,
		Stats:    client,
		Config:   cfg,
	})

	p := tea.NewProgram(ui, tea.WithAltScreen())
	orch.SetEventHandler(func(ev orchestrator.Event) {
		p.Send(chat.OrchEventMsg{Event: ev})
	})

	// Config edits apply on the next send without a restart.
	if w, werr := config.Watch(func(next *config.Config) {
		models.SetDefault(next.Chat.DefaultModel)
		log.Printf("config reloaded")
	}); werr == nil {
		defer w.Close()
	}

	_, err = p.Run()
	messages.WaitSaves()
	return err
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

// openLogFile opens the debug log under the config directory, nil on failure.
func openLogFile() *os.File {
	dir, err := config.Dir()
	if err != nil {
		return nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil
	}
	f, err := os.OpenFile(dir+"/debug.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil
	}
	return f
}

// staticCredential adapts an already-resolved key to the orchestrator's
// credential contract.
type staticCredential string

func (s staticCredential) Credential() (string, error) {
	if s == "" {
		return "", auth.ErrNoCredential
	}
	return string(s), nil
}

// archiver avoids handing the orchestrator a non-nil interface wrapping a nil
// archive.
func archiver(a *archive.Archive) orchestrator.Archiver {
	if a == nil {
		return nil
	}
	return a
}
