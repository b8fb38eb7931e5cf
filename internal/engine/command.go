package engine

import (
	"fmt"

	"github.com/thordock/thordock/internal/layout"
	"github.com/thordock/thordock/internal/preset"
	"github.com/thordock/thordock/internal/session"
)

// CommandKind names an engine command.
type CommandKind string

const (
	CmdLaunch     CommandKind = "launch"
	CmdTerminate  CommandKind = "terminate"
	CmdDock       CommandKind = "dock"
	CmdUndock     CommandKind = "undock"
	CmdSetLayout  CommandKind = "set_layout"
	CmdSetScale   CommandKind = "set_scale"
	CmdLoadPreset CommandKind = "load_preset"
	CmdScreenshot CommandKind = "screenshot"
)

// Command is one queued request. Roles defaults to both sessions.
type Command struct {
	Kind   CommandKind
	Roles  []session.Role
	Layout layout.Spec
	Scale  float64
	Preset string
}

// Validate rejects commands that could never succeed, before they are
// queued.
func (c Command) Validate() error {
	switch c.Kind {
	case CmdLaunch, CmdTerminate:
		for _, r := range c.Roles {
			if _, err := session.ParseRole(string(r)); err != nil {
				return err
			}
		}
	case CmdDock, CmdUndock, CmdScreenshot:
	case CmdSetLayout:
		return c.Layout.Validate()
	case CmdSetScale:
		if !(c.Scale >= layout.MinScale && c.Scale <= layout.MaxScale) {
			return fmt.Errorf("scale %g outside [%g, %g]", c.Scale, layout.MinScale, layout.MaxScale)
		}
	case CmdLoadPreset:
		return preset.ValidateName(c.Preset)
	default:
		return fmt.Errorf("unknown command %q", c.Kind)
	}
	return nil
}

func (c Command) roles() []session.Role {
	if len(c.Roles) == 0 {
		return session.Roles
	}
	return c.Roles
}
