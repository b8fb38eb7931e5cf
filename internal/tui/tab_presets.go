package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/thordock/thordock/internal/layout"
	"github.com/thordock/thordock/internal/preset"
)

// presetItem implements list.Item for the preset picker.
type presetItem struct {
	name    string
	offsets preset.Offsets
}

func (i presetItem) Title() string { return i.name }

func (i presetItem) Description() string {
	o := i.offsets
	return fmt.Sprintf("top(%d,%d) bottom(%d,%d)", o.TX, o.TY, o.BX, o.BY)
}

func (i presetItem) FilterValue() string { return i.name }

// PresetsTab lists saved layouts and saves the current one.
type PresetsTab struct {
	list    list.Model
	store   PresetStore
	bases   layout.BaseSizes
	current layout.Spec
	err     error

	width  int
	height int

	// Save mode
	saving    bool
	textInput textinput.Model
}

// NewPresetsTab creates the tab and reads the store.
func NewPresetsTab(store PresetStore, bases layout.BaseSizes) PresetsTab {
	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(colorBright).
		BorderForeground(colorAccent)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(colorMuted).
		BorderForeground(colorAccent)

	l := list.New(nil, delegate, 0, 0)
	l.Title = "Presets"
	l.Styles.Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(colorBright).
		Background(colorAccent).
		Padding(0, 1)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.KeyMap.Quit.SetEnabled(false)

	ti := textinput.New()
	ti.Placeholder = "preset name"
	ti.CharLimit = preset.MaxNameLength

	p := PresetsTab{
		list:      l,
		store:     store,
		bases:     bases,
		textInput: ti,
	}
	p.reload()
	return p
}

// SetCurrent records the live layout that "save" stores.
func (p *PresetsTab) SetCurrent(spec layout.Spec) {
	p.current = spec
}

// Capturing reports whether the tab consumes every key.
func (p PresetsTab) Capturing() bool {
	return p.saving || p.list.FilterState() == list.Filtering
}

func (p *PresetsTab) reload() {
	if p.store == nil {
		return
	}
	names, err := p.store.List()
	if err != nil {
		p.err = err
		return
	}
	items := make([]list.Item, 0, len(names))
	for _, name := range names {
		o, err := p.store.Get(name)
		if err != nil {
			continue
		}
		items = append(items, presetItem{name: name, offsets: o})
	}
	p.list.SetItems(items)
}

// Update handles input. The returned name is non-empty when the user asked
// the daemon to load that preset.
func (p PresetsTab) Update(msg tea.Msg) (PresetsTab, string, tea.Cmd) {
	if p.saving {
		return p.updateSaving(msg)
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.width = msg.Width
		p.height = msg.Height
		p.list.SetSize(p.listWidth(), p.height)
		return p, "", nil

	case tea.KeyMsg:
		if p.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "enter":
			if item, ok := p.list.SelectedItem().(presetItem); ok {
				return p, item.name, nil
			}
			return p, "", nil
		case "a":
			p.saving = true
			p.err = nil
			p.textInput.Reset()
			p.textInput.Focus()
			return p, "", textinput.Blink
		case "x", "delete":
			if item, ok := p.list.SelectedItem().(presetItem); ok && p.store != nil {
				_, p.err = p.store.Delete(item.name)
				p.reload()
			}
			return p, "", nil
		}
	}

	var cmd tea.Cmd
	p.list, cmd = p.list.Update(msg)
	return p, "", cmd
}

func (p PresetsTab) updateSaving(msg tea.Msg) (PresetsTab, string, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			name := strings.TrimSpace(p.textInput.Value())
			if p.store != nil {
				p.err = p.store.Save(name, preset.Offsets{
					TX: p.current.TX, TY: p.current.TY,
					BX: p.current.BX, BY: p.current.BY,
				})
			}
			if p.err != nil {
				return p, "", nil
			}
			p.saving = false
			p.textInput.Blur()
			p.reload()
			return p, "", nil
		case "esc":
			p.saving = false
			p.err = nil
			p.textInput.Blur()
			return p, "", nil
		}
	case tea.WindowSizeMsg:
		p.width = msg.Width
		p.height = msg.Height
		return p, "", nil
	}

	var cmd tea.Cmd
	p.textInput, cmd = p.textInput.Update(msg)
	return p, "", cmd
}

func (p PresetsTab) listWidth() int {
	return max(p.width*2/5, 20)
}

// View renders the tab.
func (p PresetsTab) View() string {
	if p.width == 0 || p.height == 0 {
		return ""
	}
	leftWidth := p.listWidth()
	rightWidth := max(p.width-leftWidth, 10)

	var top []string
	if p.saving {
		top = append(top,
			lipgloss.NewStyle().Foreground(colorAccent).Bold(true).Render("Save current layout as:"),
			p.textInput.View(),
			dimStyle.Render("enter: confirm  esc: cancel"),
		)
	}
	if p.err != nil {
		top = append(top, errorStyle.Render(p.err.Error()))
	}

	leftContent := p.list.View()
	if len(top) > 0 {
		block := lipgloss.NewStyle().Padding(0, 1).Width(leftWidth).Render(strings.Join(top, "\n"))
		p.list.SetSize(leftWidth, max(p.height-lipgloss.Height(block), 1))
		leftContent = block + "\n" + p.list.View()
	}
	left := lipgloss.NewStyle().Width(leftWidth).Height(p.height).Render(leftContent)

	var right string
	if item, ok := p.list.SelectedItem().(presetItem); ok {
		o := item.offsets
		spec := p.current.WithOffsets(o.TX, o.TY, o.BX, o.BY)
		right = strings.Join(renderLayoutPreview(spec, p.bases, rightWidth, p.height), "\n")
	} else {
		right = lipgloss.NewStyle().
			Width(rightWidth).
			Height(p.height).
			Foreground(colorFaint).
			Align(lipgloss.Center, lipgloss.Center).
			Render("No presets saved (press a to save the current layout)")
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, left, right)
}
