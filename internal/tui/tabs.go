package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/thordock/thordock/internal/engine"
)

// Tab identifies a TUI tab.
type Tab int

const (
	TabControl Tab = iota
	TabPresets
	tabCount // sentinel for iteration
)

func (t Tab) String() string {
	switch t {
	case TabControl:
		return "Control"
	case TabPresets:
		return "Presets"
	default:
		return "?"
	}
}

// Palette (ANSI 256).
const (
	colorAccent  = lipgloss.Color("62")
	colorBright  = lipgloss.Color("15")
	colorMuted   = lipgloss.Color("250")
	colorPanel   = lipgloss.Color("235")
	colorFaint   = lipgloss.Color("241")
	colorOK      = lipgloss.Color("42")
	colorFailure = lipgloss.Color("203")
)

var (
	tabStyle = lipgloss.NewStyle().Padding(0, 2).
			Foreground(colorMuted).
			Background(lipgloss.Color("236"))
	selectedTabStyle = tabStyle.Bold(true).
				Foreground(colorBright).
				Background(colorAccent)

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("248")).Width(14)
	valueStyle = lipgloss.NewStyle().Foreground(colorBright)
	dimStyle   = lipgloss.NewStyle().Foreground(colorFaint)
	errorStyle = lipgloss.NewStyle().Foreground(colorFailure)
)

// renderTabBar draws "1:Control 2:Presets" with the active tab highlighted,
// followed by a blank line.
func renderTabBar(active Tab, width int) string {
	gap := lipgloss.NewStyle().Background(colorPanel).Render(" ")
	var row strings.Builder
	for i := Tab(0); i < tabCount; i++ {
		if i > 0 {
			row.WriteString(gap)
		}
		style := tabStyle
		if i == active {
			style = selectedTabStyle
		}
		row.WriteString(style.Render(fmt.Sprintf("%d:%s", int(i)+1, i)))
	}
	return lipgloss.NewStyle().Width(width).MarginBottom(1).Render(row.String())
}

// renderStatusBar shows the daemon connection, dock state and sessions.
func renderStatusBar(connected bool, st *engine.Status, width int) string {
	status := lipgloss.NewStyle().Foreground(colorFaint).Render("●") + " daemon not running"
	if connected && st != nil {
		parts := []string{
			lipgloss.NewStyle().Foreground(colorOK).Render("●") + " " + st.Dock,
			"sync:" + st.Sync,
		}
		for _, s := range st.Sessions {
			parts = append(parts, fmt.Sprintf("%s:%s", s.Role, s.Status))
		}
		status = strings.Join(parts, "  ")
	}
	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		Foreground(colorMuted).
		Background(colorPanel).
		Render(status)
}

// renderHelpBar renders the bottom help/keybinding bar.
func renderHelpBar(active Tab, notice string, width int) string {
	help := "tab: switch  d: dock/undock  s: screenshot  n: launch  r: refresh  q: quit"
	switch active {
	case TabControl:
		help = "t/b: select  arrows/hjkl: nudge (shift x5)  +/-: scale  0: reset  " + help
	case TabPresets:
		help = "enter: load  a: save current  x: delete  " + help
	}
	lines := []string{dimStyle.Render(help)}
	if notice != "" {
		lines = append([]string{notice}, lines...)
	}
	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		Render(strings.Join(lines, "\n"))
}
