package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/thordock/thordock/internal/engine"
	"github.com/thordock/thordock/internal/events"
	"github.com/thordock/thordock/internal/ipc"
	"github.com/thordock/thordock/internal/layout"
)

// eventMsg carries an event streamed from the daemon.
type eventMsg events.Event

// disconnectedMsg reports that the event stream ended.
type disconnectedMsg struct {
	err error
}

// statusMsg is the result of a status request.
type statusMsg struct {
	status *engine.Status
	err    error
}

// actionMsg is sent after an IPC command completes.
type actionMsg struct {
	text string
	err  error
}

// model is the root bubbletea model for the TUI.
type model struct {
	client Client

	activeTab Tab
	control   ControlTab
	presets   PresetsTab

	connected bool
	status    *engine.Status
	synced    bool
	notice    string

	width  int
	height int
}

func newModel(opts Options) model {
	return model{
		client:    opts.Client,
		activeTab: TabControl,
		control:   NewControlTab(opts.Bases),
		presets:   NewPresetsTab(opts.Presets, opts.Bases),
	}
}

func (m model) fetchStatus() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		st, err := client.GetStatus()
		return statusMsg{status: st, err: err}
	}
}

func (m model) run(text string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return actionMsg{text: text, err: fn()}
	}
}

func (m model) sendLayout(spec layout.Spec) tea.Cmd {
	client := m.client
	return m.run("", func() error {
		return client.SetLayout(ipc.LayoutPayload{
			TX: spec.TX, TY: spec.TY, BX: spec.BX, BY: spec.BY, Scale: spec.Scale,
		})
	})
}

// contentHeight returns the height available for tab content.
func (m model) contentHeight() int {
	// status bar (1) + tab bar (2 with margin) + help bar (2)
	return max(m.height-5, 1)
}

// Init implements tea.Model.
func (m model) Init() tea.Cmd {
	return m.fetchStatus()
}

// Update implements tea.Model.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		sub := tea.WindowSizeMsg{Width: m.width, Height: m.contentHeight()}
		m.control, _ = m.control.Update(sub)
		m.presets, _, _ = m.presets.Update(sub)
		return m, nil

	case statusMsg:
		if msg.err != nil {
			m.connected = false
			m.notice = errorStyle.Render(msg.err.Error())
			return m, nil
		}
		m.connected = true
		m.status = msg.status
		m.control.SetStatus(msg.status)
		if !m.synced {
			m.synced = true
			m.control.SetSpec(msg.status.Layout)
		}
		m.presets.SetCurrent(m.control.Spec())
		return m, nil

	case eventMsg:
		ev := events.Event(msg)
		m.control.SetLastEvent(ev)
		if ev.Layout != nil {
			m.control.SetSpec(layout.Spec{
				TX: ev.Layout.TX, TY: ev.Layout.TY,
				BX: ev.Layout.BX, BY: ev.Layout.BY,
				Scale: ev.Layout.Scale,
			})
			m.presets.SetCurrent(m.control.Spec())
		}
		if notice := describeEvent(ev); notice != "" {
			m.notice = notice
		}
		return m, m.fetchStatus()

	case disconnectedMsg:
		m.connected = false
		m.notice = errorStyle.Render("event stream closed: " + msg.err.Error())
		return m, nil

	case actionMsg:
		switch {
		case msg.err != nil:
			m.notice = errorStyle.Render(msg.err.Error())
		case msg.text != "":
			m.notice = msg.text
		}
		return m, nil
	}

	if km, ok := msg.(tea.KeyMsg); ok {
		if km.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if !(m.activeTab == TabPresets && m.presets.Capturing()) {
			if next, cmd, handled := m.handleGlobalKey(km.String()); handled {
				return next, cmd
			}
		}
	}

	switch m.activeTab {
	case TabControl:
		var changed *layout.Spec
		m.control, changed = m.control.Update(msg)
		if changed != nil {
			m.presets.SetCurrent(*changed)
			return m, m.sendLayout(*changed)
		}
	case TabPresets:
		var (
			load string
			cmd  tea.Cmd
		)
		m.presets, load, cmd = m.presets.Update(msg)
		if load != "" {
			client := m.client
			return m, m.run(fmt.Sprintf("loading preset %q", load), func() error {
				return client.LoadPreset(load)
			})
		}
		return m, cmd
	}
	return m, nil
}

func (m model) handleGlobalKey(key string) (model, tea.Cmd, bool) {
	client := m.client
	switch key {
	case "q":
		return m, tea.Quit, true
	case "tab":
		m.activeTab = (m.activeTab + 1) % tabCount
	case "shift+tab":
		m.activeTab = (m.activeTab - 1 + tabCount) % tabCount
	case "1":
		m.activeTab = TabControl
	case "2":
		m.activeTab = TabPresets
	case "d":
		return m, m.run("dock toggle requested", client.ToggleDock), true
	case "s":
		return m, m.run("screenshot requested", client.Screenshot), true
	case "n":
		return m, m.run("launch requested", func() error { return client.Launch() }), true
	case "r":
		return m, m.fetchStatus(), true
	default:
		return m, nil, false
	}
	return m, nil, true
}

// describeEvent returns a one-line notice for events worth surfacing.
func describeEvent(ev events.Event) string {
	switch ev.Kind {
	case events.Fault, events.SyncApplyFailed, events.ScreenshotFailed:
		text := string(ev.Kind)
		if ev.Fault != "" {
			text += " " + ev.Fault
		}
		if ev.Role != "" {
			text += " [" + ev.Role + "]"
		}
		if ev.Message != "" {
			text += ": " + ev.Message
		}
		return errorStyle.Render(text)
	case events.ScreenshotCaptured:
		if s := ev.Screenshot; s != nil {
			text := fmt.Sprintf("screenshot %dx%d, clipboard: %s", s.Width, s.Height, s.Clipboard)
			if s.Path != "" {
				text += " saved to " + s.Path
			}
			return text
		}
	case events.DockStateChanged:
		return "dock: " + ev.State
	}
	return ""
}

// View implements tea.Model.
func (m model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	statusBar := renderStatusBar(m.connected, m.status, m.width)
	tabBar := renderTabBar(m.activeTab, m.width)
	helpBar := renderHelpBar(m.activeTab, m.notice, m.width)

	var content string
	switch m.activeTab {
	case TabControl:
		content = m.control.View()
	case TabPresets:
		content = m.presets.View()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		statusBar,
		tabBar,
		content,
		helpBar,
	)
}
