package tui

import (
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/thordock/thordock/internal/engine"
	"github.com/thordock/thordock/internal/events"
	"github.com/thordock/thordock/internal/layout"
	"github.com/thordock/thordock/internal/session"
)

const (
	nudgeStep  = 10
	scaleStep  = 0.05
	bigNudgeBy = 5
)

// ControlTab edits the live layout of the pair.
type ControlTab struct {
	bases     layout.BaseSizes
	spec      layout.Spec
	selected  session.Role
	status    *engine.Status
	lastEvent *events.Event

	width  int
	height int
}

// NewControlTab starts from the default layout until the daemon reports
// the real one.
func NewControlTab(bases layout.BaseSizes) ControlTab {
	return ControlTab{
		bases:    bases,
		spec:     layout.DefaultSpec(0.6, bases),
		selected: session.RoleTop,
	}
}

// Spec returns the layout being edited.
func (c ControlTab) Spec() layout.Spec {
	return c.spec
}

// SetSpec replaces the edited layout.
func (c *ControlTab) SetSpec(spec layout.Spec) {
	c.spec = spec
}

// SetStatus records the latest daemon status for display.
func (c *ControlTab) SetStatus(st *engine.Status) {
	c.status = st
}

// SetLastEvent records the most recent event for display.
func (c *ControlTab) SetLastEvent(ev events.Event) {
	c.lastEvent = &ev
}

// Update handles input. The returned spec is non-nil when the user changed
// the layout and it should be sent to the daemon.
func (c ControlTab) Update(msg tea.Msg) (ControlTab, *layout.Spec) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		c.width = msg.Width
		c.height = msg.Height
		return c, nil
	case tea.KeyMsg:
		return c.handleKey(msg.String())
	}
	return c, nil
}

func (c ControlTab) handleKey(key string) (ControlTab, *layout.Spec) {
	dx, dy := 0, 0
	switch key {
	case "t":
		c.selected = session.RoleTop
		return c, nil
	case "b":
		c.selected = session.RoleBottom
		return c, nil
	case "left", "h":
		dx = -nudgeStep
	case "right", "l":
		dx = nudgeStep
	case "up", "k":
		dy = -nudgeStep
	case "down", "j":
		dy = nudgeStep
	case "shift+left", "H":
		dx = -nudgeStep * bigNudgeBy
	case "shift+right", "L":
		dx = nudgeStep * bigNudgeBy
	case "shift+up", "K":
		dy = -nudgeStep * bigNudgeBy
	case "shift+down", "J":
		dy = nudgeStep * bigNudgeBy
	case "+", "=":
		return c.rescale(scaleStep)
	case "-", "_":
		return c.rescale(-scaleStep)
	case "0":
		c.spec = layout.DefaultSpec(c.spec.Scale, c.bases)
		spec := c.spec
		return c, &spec
	default:
		return c, nil
	}

	if c.selected == session.RoleTop {
		c.spec.TX += dx
		c.spec.TY += dy
	} else {
		c.spec.BX += dx
		c.spec.BY += dy
	}
	spec := c.spec
	return c, &spec
}

func (c ControlTab) rescale(delta float64) (ControlTab, *layout.Spec) {
	scale := math.Round((c.spec.Scale+delta)*100) / 100
	scale = min(max(scale, layout.MinScale), layout.MaxScale)
	if scale == c.spec.Scale {
		return c, nil
	}
	c.spec.Scale = scale
	spec := c.spec
	return c, &spec
}

// View renders the tab.
func (c ControlTab) View() string {
	if c.width == 0 || c.height == 0 {
		return ""
	}
	leftWidth := max(c.width*2/5, 32)
	rightWidth := max(c.width-leftWidth, 10)

	left := lipgloss.NewStyle().
		Width(leftWidth).
		Height(c.height).
		Padding(0, 1).
		Render(c.viewDetails())
	right := strings.Join(renderLayoutPreview(c.spec, c.bases, rightWidth, c.height), "\n")
	return lipgloss.JoinHorizontal(lipgloss.Top, left, right)
}

func (c ControlTab) viewDetails() string {
	var b strings.Builder
	field := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}

	rects := layout.Compute(c.spec, c.bases)
	size := layout.ContainerSize(rects)
	for _, role := range session.Roles {
		marker := "  "
		if role == c.selected {
			marker = "> "
		}
		off := c.spec.Offset(role)
		r := rects[role]
		field(marker+string(role)+":", fmt.Sprintf("(%d,%d) %dx%d", off.X, off.Y, r.Width, r.Height))
	}
	field("scale:", fmt.Sprintf("%.2f", c.spec.Scale))
	field("container:", fmt.Sprintf("%dx%d", size.Width, size.Height))

	if c.status != nil {
		b.WriteString("\n")
		for _, s := range c.status.Sessions {
			line := s.Status
			if s.PID != 0 {
				line += fmt.Sprintf(" pid %d", s.PID)
			}
			if s.WindowID != 0 {
				line += fmt.Sprintf(" win 0x%x", uint32(s.WindowID))
			}
			field(string(s.Role)+" session:", line)
			if s.Cause != "" {
				b.WriteString(errorStyle.Render("  " + s.Cause))
				b.WriteString("\n")
			}
		}
	}

	if c.lastEvent != nil {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render(fmt.Sprintf("last event: %s %s", c.lastEvent.Kind, humanize.Time(c.lastEvent.Time))))
		b.WriteString("\n")
	}
	return b.String()
}
