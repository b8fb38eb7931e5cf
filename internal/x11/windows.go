package x11

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
)

// ClientWindow is a managed top-level window as reported by the window manager.
type ClientWindow struct {
	ID     xproto.Window
	PID    int
	Title  string
	X      int
	Y      int
	Width  int
	Height int
	Hidden bool
}

// Clients lists the normal windows in _NET_CLIENT_LIST. Windows that
// disappear while being inspected are skipped.
func (c *Connection) Clients() ([]ClientWindow, error) {
	ids, err := ewmh.ClientListGet(c.XUtil)
	if err != nil {
		return nil, fmt.Errorf("failed to read client list: %w", err)
	}

	out := make([]ClientWindow, 0, len(ids))
	for _, id := range ids {
		if !c.IsNormalWindow(id) {
			continue
		}
		x, y, w, h, err := c.RootGeometry(id)
		if err != nil {
			continue
		}
		pid := 0
		if p, err := ewmh.WmPidGet(c.XUtil, id); err == nil {
			pid = int(p)
		}
		out = append(out, ClientWindow{
			ID:     id,
			PID:    pid,
			Title:  c.WindowTitle(id),
			X:      x,
			Y:      y,
			Width:  w,
			Height: h,
			Hidden: c.IsHidden(id),
		})
	}
	return out, nil
}

// RootGeometry returns a window's size and its position in root coordinates.
func (c *Connection) RootGeometry(id xproto.Window) (x, y, w, h int, err error) {
	geom, err := xproto.GetGeometry(c.Conn(), xproto.Drawable(id)).Reply()
	if err != nil {
		return 0, 0, 0, 0, err
	}
	tr, err := xproto.TranslateCoordinates(c.Conn(), id, c.Root, 0, 0).Reply()
	if err != nil {
		return 0, 0, 0, 0, err
	}
	return int(tr.DstX), int(tr.DstY), int(geom.Width), int(geom.Height), nil
}

// MoveResizeWindow moves and resizes a window with a single ConfigureWindow
// request, relative to its current parent.
func (c *Connection) MoveResizeWindow(id xproto.Window, x, y, width, height int) error {
	const mask = xproto.ConfigWindowX | xproto.ConfigWindowY |
		xproto.ConfigWindowWidth | xproto.ConfigWindowHeight
	return xproto.ConfigureWindowChecked(c.Conn(), id, mask, []uint32{
		uint32(int32(x)),
		uint32(int32(y)),
		uint32(max(width, 1)),
		uint32(max(height, 1)),
	}).Check()
}

// IsViewable reports whether the window is mapped and all its ancestors are.
func (c *Connection) IsViewable(id xproto.Window) (bool, error) {
	attrs, err := xproto.GetWindowAttributes(c.Conn(), id).Reply()
	if err != nil {
		return false, err
	}
	return attrs.MapState == xproto.MapStateViewable, nil
}

// IsHidden reports whether the window manager marked the window as
// minimized, either through _NET_WM_STATE or the ICCCM iconic state.
func (c *Connection) IsHidden(id xproto.Window) bool {
	if states, err := ewmh.WmStateGet(c.XUtil, id); err == nil {
		for _, s := range states {
			if s == "_NET_WM_STATE_HIDDEN" {
				return true
			}
		}
	}
	if st, err := icccm.WmStateGet(c.XUtil, id); err == nil && st.State == icccm.StateIconic {
		return true
	}
	return false
}

// IsNormalWindow checks if a window is a normal application window
func (c *Connection) IsNormalWindow(id xproto.Window) bool {
	types, err := ewmh.WmWindowTypeGet(c.XUtil, id)
	if err != nil {
		return true
	}
	for _, t := range types {
		switch t {
		case "_NET_WM_WINDOW_TYPE_NORMAL":
			return true
		case "_NET_WM_WINDOW_TYPE_DESKTOP", "_NET_WM_WINDOW_TYPE_DOCK",
			"_NET_WM_WINDOW_TYPE_SPLASH", "_NET_WM_WINDOW_TYPE_NOTIFICATION":
			return false
		}
	}
	return len(types) == 0
}

// WindowTitle prefers _NET_WM_NAME and falls back to WM_NAME.
func (c *Connection) WindowTitle(id xproto.Window) string {
	if title, err := ewmh.WmNameGet(c.XUtil, id); err == nil {
		if title = strings.TrimSpace(title); title != "" {
			return title
		}
	}
	if title, err := icccm.WmNameGet(c.XUtil, id); err == nil {
		return strings.TrimSpace(title)
	}
	return ""
}

// Parent returns the window's current parent.
func (c *Connection) Parent(id xproto.Window) (xproto.Window, error) {
	tree, err := xproto.QueryTree(c.Conn(), id).Reply()
	if err != nil {
		return 0, err
	}
	return tree.Parent, nil
}

// ReparentWindow moves id under parent at the given parent-relative position.
func (c *Connection) ReparentWindow(id, parent xproto.Window, x, y int) error {
	return xproto.ReparentWindowChecked(c.Conn(), id, parent, int16(x), int16(y)).Check()
}

// MapWindow maps a window.
func (c *Connection) MapWindow(id xproto.Window) error {
	return xproto.MapWindowChecked(c.Conn(), id).Check()
}

// UnmapWindow unmaps a window.
func (c *Connection) UnmapWindow(id xproto.Window) error {
	return xproto.UnmapWindowChecked(c.Conn(), id).Check()
}

// ActivateWindow asks the window manager to raise and focus a window through
// _NET_ACTIVE_WINDOW. The message is built by hand because the ewmh helper
// panics on this xgbutil version.
func (c *Connection) ActivateWindow(id xproto.Window) error {
	atom, err := xproto.InternAtom(c.Conn(), false,
		uint16(len("_NET_ACTIVE_WINDOW")), "_NET_ACTIVE_WINDOW").Reply()
	if err != nil {
		return fmt.Errorf("failed to intern _NET_ACTIVE_WINDOW: %w", err)
	}

	const sourceIndication = 2
	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: id,
		Type:   atom.Atom,
		Data:   xproto.ClientMessageDataUnionData32New([]uint32{sourceIndication, 0, 0, 0, 0}),
	}
	return xproto.SendEventChecked(
		c.Conn(),
		false,
		c.Root,
		xproto.EventMaskSubstructureRedirect|xproto.EventMaskSubstructureNotify,
		string(ev.Bytes()),
	).Check()
}
