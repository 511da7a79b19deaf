// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the Gatewayz TUI.
package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds the styled components for the application. It detects the
// terminal's color capability and adjusts accordingly.
type Theme struct {
	IsDark       bool
	ColorProfile termenv.Profile

	// Header and status bar
	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	HeaderModel lipgloss.Style
	StatusBar   lipgloss.Style
	StatusKey   lipgloss.Style
	StatusDesc  lipgloss.Style
	Notice      lipgloss.Style

	// Transcript
	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	Reasoning      lipgloss.Style
	ErrorText      lipgloss.Style
	Timestamp      lipgloss.Style
	PendingMark    lipgloss.Style

	// Sidebar
	SidebarBox      lipgloss.Style
	SidebarGroup    lipgloss.Style
	SidebarItem     lipgloss.Style
	SidebarSelected lipgloss.Style

	// Input area
	InputBox       lipgloss.Style
	InputPrompt    lipgloss.Style
	ValidationText lipgloss.Style
	CharCount      lipgloss.Style
	CharCountOver  lipgloss.Style

	// Boot and error screens
	BootPhase lipgloss.Style
	BootError lipgloss.Style
}

// New builds a theme for the given mode: "dark", "light", or "auto".
func New(mode string) *Theme {
	dark := true
	switch mode {
	case "light":
		dark = false
	case "dark":
	default:
		dark = termenv.HasDarkBackground()
	}

	t := &Theme{
		IsDark:       dark,
		ColorProfile: termenv.ColorProfile(),
	}

	accent := lipgloss.Color("39")   // cyan
	user := lipgloss.Color("212")    // pink
	ok := lipgloss.Color("82")       // green
	warn := lipgloss.Color("220")    // yellow
	bad := lipgloss.Color("196")     // red
	dim := lipgloss.Color("242")     // gray
	subtle := lipgloss.Color("245")  // light gray
	surface := lipgloss.Color("236") // dark surface
	if !dark {
		dim = lipgloss.Color("250")
		subtle = lipgloss.Color("243")
		surface = lipgloss.Color("254")
	}

	t.Header = lipgloss.NewStyle().Background(surface).Padding(0, 1)
	t.HeaderTitle = lipgloss.NewStyle().Bold(true).Foreground(accent)
	t.HeaderModel = lipgloss.NewStyle().Foreground(subtle)
	t.StatusBar = lipgloss.NewStyle().Background(surface).Padding(0, 1)
	t.StatusKey = lipgloss.NewStyle().Bold(true).Foreground(accent)
	t.StatusDesc = lipgloss.NewStyle().Foreground(dim)
	t.Notice = lipgloss.NewStyle().Foreground(warn)

	t.UserLabel = lipgloss.NewStyle().Bold(true).Foreground(user)
	t.AssistantLabel = lipgloss.NewStyle().Bold(true).Foreground(ok)
	t.Reasoning = lipgloss.NewStyle().Foreground(dim).Italic(true)
	t.ErrorText = lipgloss.NewStyle().Foreground(bad)
	t.Timestamp = lipgloss.NewStyle().Foreground(dim)
	t.PendingMark = lipgloss.NewStyle().Foreground(warn)

	t.SidebarBox = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder(), false, true, false, false).
		BorderForeground(dim).
		Padding(0, 1)
	t.SidebarGroup = lipgloss.NewStyle().Bold(true).Foreground(subtle)
	t.SidebarItem = lipgloss.NewStyle().Foreground(subtle)
	t.SidebarSelected = lipgloss.NewStyle().Bold(true).Foreground(accent)

	t.InputBox = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(dim).
		Padding(0, 1)
	t.InputPrompt = lipgloss.NewStyle().Bold(true).Foreground(accent)
	t.ValidationText = lipgloss.NewStyle().Foreground(bad)
	t.CharCount = lipgloss.NewStyle().Foreground(dim)
	t.CharCountOver = lipgloss.NewStyle().Bold(true).Foreground(bad)

	t.BootPhase = lipgloss.NewStyle().Foreground(subtle)
	t.BootError = lipgloss.NewStyle().Bold(true).Foreground(bad)

	return t
}

// GlamourStyle returns the glamour style name matching the theme.
func (t *Theme) GlamourStyle() string {
	if t.IsDark {
		return "dark"
	}
	return "light"
}
