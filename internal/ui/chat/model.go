// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/gatewayz/gatewayz-tui/internal/api"
	"github.com/gatewayz/gatewayz-tui/internal/archive"
	"github.com/gatewayz/gatewayz-tui/internal/config"
	"github.com/gatewayz/gatewayz-tui/internal/input"
	"github.com/gatewayz/gatewayz-tui/internal/message"
	"github.com/gatewayz/gatewayz-tui/internal/orchestrator"
	"github.com/gatewayz/gatewayz-tui/internal/session"
	"github.com/gatewayz/gatewayz-tui/internal/ui/styles"
)

// sidebarWidth is the fixed sidebar column width.
const sidebarWidth = 30

// focusArea identifies which pane receives keys.
type focusArea int

const (
	focusInput focusArea = iota
	focusSidebar
)

// StatsFetcher reports account-level chat counts.
type StatsFetcher interface {
	Stats(ctx context.Context) (*api.SessionStats, error)
}

// Deps carries everything the chat model needs.
type Deps struct {
	Orch     *orchestrator.Orchestrator
	Sessions *session.Store
	Messages *message.Store
	Inputs   *input.Manager
	Archive  *archive.Archive // may be nil
	Stats    StatsFetcher
	Config   *config.Config
}

// Model is the Bubble Tea model for the chat view.
type Model struct {
	deps  Deps
	theme *styles.Theme
	keys  KeyMap

	width  int
	height int

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	focus       focusArea
	showSidebar bool

	// sidebarIDs flattens the grouped session view for cursor navigation.
	sidebarIDs    []int64
	sidebarCursor int

	notice string

	// renderer is rebuilt on resize; finalized assistant messages render
	// through glamour, streaming ones stay raw.
	renderer *glamour.TermRenderer
}

// New builds the chat model.
func New(deps Deps) *Model {
	theme := styles.New(deps.Config.UI.Theme)

	ti := textinput.New()
	ti.Placeholder = "Type a message..."
	ti.CharLimit = deps.Config.Chat.MaxInputChars
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return &Model{
		deps:        deps,
		theme:       theme,
		keys:        DefaultKeyMap(),
		input:       ti,
		spinner:     sp,
		showSidebar: true,
	}
}

// Init implements tea.Model. Boot runs off the update loop so the UI can draw
// the phase screen while it progresses.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		textinput.Blink,
		func() tea.Msg {
			err := m.deps.Orch.Init(context.Background())
			return initDoneMsg{err: err}
		},
	)
}

// rebuildRenderer recreates the glamour renderer for the current width.
func (m *Model) rebuildRenderer() {
	width := m.transcriptWidth()
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.theme.GlamourStyle()),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		m.renderer = nil
		return
	}
	m.renderer = r
}

// transcriptWidth is the usable width of the transcript pane.
func (m *Model) transcriptWidth() int {
	w := m.width
	if m.showSidebar {
		w -= sidebarWidth
	}
	if w < 20 {
		w = 20
	}
	return w - 2
}
