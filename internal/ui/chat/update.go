// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/gatewayz/gatewayz-tui/internal/orchestrator"
)

// opTimeout bounds UI-triggered store operations.
const opTimeout = 30 * time.Second

// =============================================================================
// MESSAGES
// =============================================================================

// OrchEventMsg wraps an orchestrator event delivered via Program.Send.
type OrchEventMsg struct {
	Event orchestrator.Event
}

// initDoneMsg reports boot completion.
type initDoneMsg struct {
	err error
}

// opDoneMsg reports a background store operation.
type opDoneMsg struct {
	notice string
	err    error
}

// =============================================================================
// UPDATE
// =============================================================================

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		m.refreshTranscript()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case OrchEventMsg:
		return m.handleEvent(msg.Event)

	case initDoneMsg:
		if msg.err != nil {
			// The phase screen shows the error; nothing else to do here.
			return m, nil
		}
		m.syncSidebar()
		return m, nil

	case opDoneMsg:
		if msg.err != nil {
			m.notice = msg.err.Error()
		} else {
			m.notice = msg.notice
		}
		m.syncSidebar()
		m.refreshTranscript()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleEvent routes one orchestrator event into view state.
func (m *Model) handleEvent(ev orchestrator.Event) (tea.Model, tea.Cmd) {
	switch ev.Type {
	case orchestrator.EventPhaseChanged:
		if ev.Phase == orchestrator.PhaseReady {
			m.syncSidebar()
		}

	case orchestrator.EventSessionsChanged:
		m.syncSidebar()

	case orchestrator.EventMessagesChanged, orchestrator.EventStreamChunk:
		m.refreshTranscript()

	case orchestrator.EventStreamDone:
		m.notice = ""
		m.refreshTranscript()
		m.syncSidebar()

	case orchestrator.EventStreamError:
		m.notice = ev.Err
		m.refreshTranscript()

	case orchestrator.EventNotice:
		m.notice = ev.Notice
	}
	return m, nil
}

// =============================================================================
// KEYS
// =============================================================================

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.deps.Orch.CancelStream()
		m.deps.Messages.WaitSaves()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Cancel):
		m.deps.Orch.CancelStream()
		return m, nil

	case key.Matches(msg, m.keys.NewChat):
		m.deps.Orch.NewChat()
		m.focus = focusInput
		m.input.Reset()
		m.refreshTranscript()
		return m, nil

	case key.Matches(msg, m.keys.Sidebar):
		if m.focus == focusSidebar {
			m.focus = focusInput
			m.input.Focus()
		} else {
			m.focus = focusSidebar
			m.input.Blur()
		}
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.ViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.ViewDown()
		return m, nil

	case key.Matches(msg, m.keys.Export):
		return m, m.exportCmd()

	case key.Matches(msg, m.keys.Stats):
		return m, m.statsCmd()
	}

	if m.focus == focusSidebar {
		return m.handleSidebarKey(msg)
	}
	return m.handleInputKey(msg)
}

func (m *Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Submit) {
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		m.deps.Inputs.SetText(text)
		m.input.Reset()
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
			defer cancel()
			if err := m.deps.Orch.SendMessage(ctx); err != nil {
				return opDoneMsg{err: err}
			}
			return opDoneMsg{}
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleSidebarKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.SidebarUp):
		if m.sidebarCursor > 0 {
			m.sidebarCursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.SidebarDown):
		if m.sidebarCursor < len(m.sidebarIDs)-1 {
			m.sidebarCursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		id := m.cursorSessionID()
		if id == 0 {
			return m, nil
		}
		m.focus = focusInput
		m.input.Focus()
		if err := m.deps.Orch.SwitchSession(id); err != nil {
			m.notice = err.Error()
		}
		m.refreshTranscript()
		return m, nil

	case key.Matches(msg, m.keys.Delete):
		id := m.cursorSessionID()
		if id == 0 {
			return m, nil
		}
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
			defer cancel()
			if err := m.deps.Sessions.Delete(ctx, id); err != nil {
				return opDoneMsg{err: err}
			}
			return opDoneMsg{notice: "session deleted"}
		}
	}
	return m, nil
}

func (m *Model) cursorSessionID() int64 {
	if m.sidebarCursor < 0 || m.sidebarCursor >= len(m.sidebarIDs) {
		return 0
	}
	return m.sidebarIDs[m.sidebarCursor]
}

// exportCmd writes the active session's archived transcript to the working
// directory.
func (m *Model) exportCmd() tea.Cmd {
	if m.deps.Archive == nil {
		m.notice = "archive disabled; nothing to export"
		return nil
	}
	sess := m.deps.Sessions.Active()
	if sess == nil {
		m.notice = "no active session"
		return nil
	}
	id, title := sess.ID, sess.Title
	return func() tea.Msg {
		path := filepath.Join(".", fmt.Sprintf("gatewayz-session-%d.md", id))
		if err := m.deps.Archive.ExportMarkdown(id, title, path); err != nil {
			return opDoneMsg{err: err}
		}
		return opDoneMsg{notice: "exported to " + path}
	}
}

// statsCmd fetches account-level counts into the notice line.
func (m *Model) statsCmd() tea.Cmd {
	if m.deps.Stats == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		st, err := m.deps.Stats.Stats(ctx)
		if err != nil {
			return opDoneMsg{err: err}
		}
		return opDoneMsg{notice: fmt.Sprintf("%d sessions, %d messages", st.TotalSessions, st.TotalMessages)}
	}
}

// =============================================================================
// LAYOUT AND SYNC
// =============================================================================

// layout recomputes component sizes after a resize.
func (m *Model) layout() {
	headerH, statusH, inputH := 1, 1, 3
	vh := m.height - headerH - statusH - inputH
	if vh < 3 {
		vh = 3
	}
	if m.viewport.Width == 0 {
		m.viewport = viewport.New(m.transcriptWidth(), vh)
	} else {
		m.viewport.Width = m.transcriptWidth()
		m.viewport.Height = vh
	}
	m.input.Width = m.width - 6
	m.rebuildRenderer()
}

// syncSidebar rebuilds the flattened session list and clamps the cursor.
func (m *Model) syncSidebar() {
	m.sidebarIDs = m.sidebarIDs[:0]
	for _, g := range m.deps.Sessions.Grouped() {
		for _, sess := range g.Sessions {
			m.sidebarIDs = append(m.sidebarIDs, sess.ID)
		}
	}
	if m.sidebarCursor >= len(m.sidebarIDs) {
		m.sidebarCursor = len(m.sidebarIDs) - 1
	}
	if m.sidebarCursor < 0 {
		m.sidebarCursor = 0
	}
}

// refreshTranscript re-renders the transcript and keeps the viewport pinned
// to the bottom.
func (m *Model) refreshTranscript() {
	if m.viewport.Width == 0 {
		return
	}
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}
