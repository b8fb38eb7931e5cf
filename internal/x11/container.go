package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/BurntSushi/xgbutil/xevent"
	"github.com/BurntSushi/xgbutil/xprop"
)

// ContainerClass is the WM_CLASS set on container windows.
const ContainerClass = "Thordock"

// CreateContainer creates an unmapped top-level window that docked clients
// are reparented into. The window manager sees it as a normal application
// window named title.
func (c *Connection) CreateContainer(title string, x, y, width, height int) (xproto.Window, error) {
	wid, err := xproto.NewWindowId(c.Conn())
	if err != nil {
		return 0, fmt.Errorf("allocate window id: %w", err)
	}

	screen := c.XUtil.Screen()
	mask := uint32(xproto.CwBackPixel | xproto.CwEventMask)
	values := []uint32{
		screen.BlackPixel,
		xproto.EventMaskStructureNotify | xproto.EventMaskSubstructureNotify,
	}
	err = xproto.CreateWindowChecked(
		c.Conn(),
		xproto.WindowClassCopyFromParent,
		wid,
		c.Root,
		int16(x), int16(y),
		uint16(max(width, 1)), uint16(max(height, 1)),
		0,
		xproto.WindowClassInputOutput,
		screen.RootVisual,
		mask,
		values,
	).Check()
	if err != nil {
		return 0, fmt.Errorf("create container window: %w", err)
	}

	ewmh.WmNameSet(c.XUtil, wid, title)
	icccm.WmNameSet(c.XUtil, wid, title)
	icccm.WmClassSet(c.XUtil, wid, &icccm.WmClass{
		Instance: "thordock",
		Class:    ContainerClass,
	})
	ewmh.WmWindowTypeSet(c.XUtil, wid, []string{"_NET_WM_WINDOW_TYPE_NORMAL"})
	icccm.WmProtocolsSet(c.XUtil, wid, []string{"WM_DELETE_WINDOW"})
	return wid, nil
}

// DestroyWindow destroys a window created by this connection.
func (c *Connection) DestroyWindow(id xproto.Window) error {
	return xproto.DestroyWindowChecked(c.Conn(), id).Check()
}

// IsContainer reports whether id carries the container WM_CLASS.
func (c *Connection) IsContainer(id xproto.Window) bool {
	class, err := icccm.WmClassGet(c.XUtil, id)
	return err == nil && class.Class == ContainerClass
}

// OnClose calls fn from the event loop when the window manager asks id to
// close (WM_DELETE_WINDOW).
func (c *Connection) OnClose(id xproto.Window, fn func()) {
	xevent.ClientMessageFun(func(xu *xgbutil.XUtil, ev xevent.ClientMessageEvent) {
		if ev.Format != 32 {
			return
		}
		typ, err := xprop.AtomName(xu, ev.Type)
		if err != nil || typ != "WM_PROTOCOLS" {
			return
		}
		proto, err := xprop.AtomName(xu, xproto.Atom(ev.Data.Data32[0]))
		if err == nil && proto == "WM_DELETE_WINDOW" {
			fn()
		}
	}).Connect(c.XUtil, id)
}
