// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/gatewayz/gatewayz-tui/internal/message"
	"github.com/gatewayz/gatewayz-tui/internal/orchestrator"
	"github.com/gatewayz/gatewayz-tui/internal/util"
)

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 {
		return ""
	}

	switch m.deps.Orch.Phase() {
	case orchestrator.PhaseReady:
	case orchestrator.PhaseError:
		return m.viewBootError()
	default:
		return m.viewBoot()
	}

	body := m.viewport.View()
	if m.showSidebar {
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.renderSidebar(), body)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		body,
		m.renderInput(),
		m.renderStatus(),
	)
}

// =============================================================================
// BOOT SCREENS
// =============================================================================

func (m *Model) viewBoot() string {
	label := m.spinner.View() + " " + m.deps.Orch.Phase().String()
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
		m.theme.BootPhase.Render(label))
}

func (m *Model) viewBootError() string {
	lines := []string{
		m.theme.BootError.Render("Gatewayz is not configured"),
		"",
		m.theme.BootPhase.Render(m.deps.Orch.PhaseError()),
		m.theme.BootPhase.Render("Set GATEWAYZ_API_KEY and restart."),
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
		strings.Join(lines, "\n"))
}

// =============================================================================
// CHROME
// =============================================================================

func (m *Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render("Gatewayz")
	model := m.theme.HeaderModel.Render(m.deps.Orch.Model())

	sessionName := "new chat"
	if sess := m.deps.Sessions.Active(); sess != nil {
		sessionName = sess.Title
	}
	name := m.theme.HeaderModel.Render(util.TruncateWidth(sessionName, m.width/3))

	line := title + "  " + name + "  " + model
	return m.theme.Header.Width(m.width).Render(line)
}

func (m *Model) renderStatus() string {
	parts := []string{
		m.theme.StatusKey.Render("Enter") + m.theme.StatusDesc.Render(" send"),
		m.theme.StatusKey.Render("Tab") + m.theme.StatusDesc.Render(" sessions"),
		m.theme.StatusKey.Render("C-n") + m.theme.StatusDesc.Render(" new"),
		m.theme.StatusKey.Render("Esc") + m.theme.StatusDesc.Render(" cancel"),
		m.theme.StatusKey.Render("C-c") + m.theme.StatusDesc.Render(" quit"),
	}
	line := strings.Join(parts, "  ")
	if m.notice != "" {
		line += "  " + m.theme.Notice.Render(util.TruncateWidth(m.notice, m.width/2))
	}
	return m.theme.StatusBar.Width(m.width).Render(line)
}

func (m *Model) renderInput() string {
	var extra string
	if v := m.deps.Inputs.ValidationError(); v != "" {
		extra = " " + m.theme.ValidationText.Render(v)
	}
	prompt := m.theme.InputPrompt.Render("> ")
	return m.theme.InputBox.Width(m.width - 2).Render(prompt + m.input.View() + extra)
}

// =============================================================================
// SIDEBAR
// =============================================================================

func (m *Model) renderSidebar() string {
	var sb strings.Builder
	activeID := m.deps.Sessions.ActiveID()
	flat := 0

	for _, g := range m.deps.Sessions.Grouped() {
		sb.WriteString(m.theme.SidebarGroup.Render(g.Label))
		sb.WriteString("\n")
		for _, sess := range g.Sessions {
			title := util.TruncateWidth(sess.Title, sidebarWidth-6)
			marker := "  "
			style := m.theme.SidebarItem
			if m.focus == focusSidebar && flat == m.sidebarCursor {
				marker = "> "
				style = m.theme.SidebarSelected
			} else if sess.ID == activeID {
				marker = "* "
				style = m.theme.SidebarSelected
			}
			sb.WriteString(style.Render(marker + title))
			sb.WriteString("\n")
			flat++
		}
	}
	if flat == 0 {
		sb.WriteString(m.theme.SidebarItem.Render("no sessions yet"))
	}

	return m.theme.SidebarBox.
		Width(sidebarWidth - 2).
		Height(m.viewport.Height).
		Render(sb.String())
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// renderTranscript renders the active session's messages. Finalized assistant
// messages go through glamour; streaming ones render raw so partial markdown
// does not flicker.
func (m *Model) renderTranscript() string {
	activeID := m.deps.Sessions.ActiveID()
	if activeID == 0 {
		return m.theme.Timestamp.Render("Start typing to begin a new chat.")
	}

	msgs := m.deps.Messages.ForSession(activeID)
	var sb strings.Builder
	for i := range msgs {
		sb.WriteString(m.renderMessage(&msgs[i]))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m *Model) renderMessage(msg *message.Message) string {
	var sb strings.Builder

	switch {
	case msg.Role == "user":
		label := m.theme.UserLabel.Render("You")
		if msg.Pending {
			label += " " + m.theme.PendingMark.Render("·")
		}
		sb.WriteString(label + "\n")
		sb.WriteString(msg.Text() + "\n")

	case msg.IsAssistant():
		label := m.theme.AssistantLabel.Render("Assistant")
		if msg.Model != "" {
			label += " " + m.theme.Timestamp.Render(msg.Model)
		}
		if msg.Streaming {
			label += " " + m.spinner.View()
		}
		sb.WriteString(label + "\n")

		if m.deps.Config.UI.ShowReasoning && msg.Reasoning != "" {
			sb.WriteString(m.theme.Reasoning.Render(msg.Reasoning) + "\n")
		}

		body := msg.Content
		if !msg.Streaming && m.renderer != nil && body != "" {
			if rendered, err := m.renderer.Render(body); err == nil {
				body = strings.TrimRight(rendered, "\n")
			}
		}
		if body != "" {
			sb.WriteString(body + "\n")
		}
		if msg.ErrorText != "" {
			sb.WriteString(m.theme.ErrorText.Render("error: "+msg.ErrorText) + "\n")
		}

	default:
		sb.WriteString(m.theme.Timestamp.Render(msg.Role) + "\n")
		sb.WriteString(msg.Text() + "\n")
	}

	return sb.String()
}
