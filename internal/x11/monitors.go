package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
)

// Monitor represents a physical display
type Monitor struct {
	ID     int
	Name   string
	X      int
	Y      int
	Width  int
	Height int
}

func (m Monitor) contains(x, y int) bool {
	return x >= m.X && x < m.X+m.Width && y >= m.Y && y < m.Y+m.Height
}

// GetMonitors retrieves all active monitors using XRandR
func (c *Connection) GetMonitors() ([]Monitor, error) {
	if err := randr.Init(c.Conn()); err != nil {
		return nil, fmt.Errorf("randr init failed: %w", err)
	}
	res, err := randr.GetScreenResources(c.Conn(), c.Root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get screen resources: %w", err)
	}

	var monitors []Monitor
	for i, crtc := range res.Crtcs {
		info, err := randr.GetCrtcInfo(c.Conn(), crtc, res.ConfigTimestamp).Reply()
		if err != nil || info.Width == 0 || info.Height == 0 || len(info.Outputs) == 0 {
			continue
		}
		name := fmt.Sprintf("Monitor%d", i)
		if out, err := randr.GetOutputInfo(c.Conn(), info.Outputs[0], res.ConfigTimestamp).Reply(); err == nil {
			name = string(out.Name)
		}
		monitors = append(monitors, Monitor{
			ID:     i,
			Name:   name,
			X:      int(info.X),
			Y:      int(info.Y),
			Width:  int(info.Width),
			Height: int(info.Height),
		})
	}
	return monitors, nil
}

// PointerMonitor returns the monitor under the mouse cursor, clipped to the
// desktop work area so panels are not covered. The first monitor is used
// when the pointer cannot be queried.
func (c *Connection) PointerMonitor() (Monitor, error) {
	monitors, err := c.GetMonitors()
	if err != nil {
		return Monitor{}, err
	}
	if len(monitors) == 0 {
		return Monitor{}, fmt.Errorf("no monitors found")
	}

	mon := monitors[0]
	if p, err := xproto.QueryPointer(c.Conn(), c.Root).Reply(); err == nil {
		for _, m := range monitors {
			if m.contains(int(p.RootX), int(p.RootY)) {
				mon = m
				break
			}
		}
	}

	areas, err := ewmh.WorkareaGet(c.XUtil)
	if err != nil || len(areas) == 0 {
		return mon, nil
	}
	idx := 0
	if d, err := ewmh.CurrentDesktopGet(c.XUtil); err == nil && int(d) < len(areas) {
		idx = int(d)
	}
	wa := areas[idx]
	x1, y1 := max(mon.X, wa.X), max(mon.Y, wa.Y)
	x2 := min(mon.X+mon.Width, wa.X+int(wa.Width))
	y2 := min(mon.Y+mon.Height, wa.Y+int(wa.Height))
	if x2 > x1 && y2 > y1 {
		mon.X, mon.Y, mon.Width, mon.Height = x1, y1, x2-x1, y2-y1
	}
	return mon, nil
}
