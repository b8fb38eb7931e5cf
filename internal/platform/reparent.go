package platform

import (
	"fmt"
	"strings"
)

// Capabilities describes the host display server, probed once at startup.
type Capabilities struct {
	Vendor   string
	Release  uint32
	XWayland bool
	Kernel   string
}

// xorgRelease120 is the X.Org vendor release number of server 1.20.0.
const xorgRelease120 = 12000000

// Legacy reports whether the host is known to mishandle reparenting of
// mapped foreign windows: rootless XWayland, and X.Org servers before 1.20.
func (c Capabilities) Legacy() bool {
	if c.XWayland {
		return true
	}
	if strings.Contains(c.Vendor, "X.Org") && c.Release > 0 && c.Release < xorgRelease120 {
		return true
	}
	return false
}

func (c Capabilities) String() string {
	return fmt.Sprintf("vendor=%q release=%d xwayland=%v kernel=%q", c.Vendor, c.Release, c.XWayland, c.Kernel)
}

// Reparenter moves a foreign window between the root and a container.
// All reparent calls go through one of these so that host-specific
// workarounds live in exactly one place.
type Reparenter interface {
	Name() string
	Attach(ws WindowSystem, win, container WindowID, at Point) error
	Detach(ws WindowSystem, win, parent WindowID, at Point) error
}

// Reparent strategy names accepted by NewReparenter.
const (
	StrategyAuto   = "auto"
	StrategyDirect = "direct"
	StrategySafe   = "safe"
)

// NewReparenter selects a strategy. "auto" picks the safe path on legacy
// hosts and the direct path elsewhere.
func NewReparenter(mode string, caps Capabilities) (Reparenter, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", StrategyAuto:
		if caps.Legacy() {
			return safeReparenter{}, nil
		}
		return directReparenter{}, nil
	case StrategyDirect:
		return directReparenter{}, nil
	case StrategySafe:
		return safeReparenter{}, nil
	default:
		return nil, fmt.Errorf("unknown reparent strategy %q (want auto, direct or safe)", mode)
	}
}

type directReparenter struct{}

func (directReparenter) Name() string { return StrategyDirect }

func (directReparenter) Attach(ws WindowSystem, win, container WindowID, at Point) error {
	if err := ws.Reparent(win, container, at); err != nil {
		return err
	}
	return verifyParent(ws, win, container)
}

func (directReparenter) Detach(ws WindowSystem, win, parent WindowID, at Point) error {
	if err := ws.Reparent(win, parent, at); err != nil {
		return err
	}
	return verifyParent(ws, win, parent)
}

// safeReparenter unmaps the window around the reparent and forces a server
// round-trip before and after, so the window manager never sees a mapped
// client change parents underneath it.
type safeReparenter struct{}

func (safeReparenter) Name() string { return StrategySafe }

func (s safeReparenter) Attach(ws WindowSystem, win, container WindowID, at Point) error {
	return s.move(ws, win, container, at)
}

func (s safeReparenter) Detach(ws WindowSystem, win, parent WindowID, at Point) error {
	return s.move(ws, win, parent, at)
}

func (safeReparenter) move(ws WindowSystem, win, parent WindowID, at Point) error {
	if err := ws.Unmap(win); err != nil {
		return err
	}
	if err := ws.Sync(); err != nil {
		return err
	}
	if err := ws.Reparent(win, parent, at); err != nil {
		// Leave the window visible where it was rather than unmapped.
		ws.Map(win)
		return err
	}
	if err := ws.Sync(); err != nil {
		return err
	}
	if err := verifyParent(ws, win, parent); err != nil {
		ws.Map(win)
		return err
	}
	if err := ws.Map(win); err != nil {
		return err
	}
	return ws.Sync()
}

func verifyParent(ws WindowSystem, win, want WindowID) error {
	got, err := ws.Parent(win)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("window %d parent is %d after reparent, want %d", win, got, want)
	}
	return nil
}
