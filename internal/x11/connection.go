package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/keybind"
	"github.com/BurntSushi/xgbutil/xevent"
)

// Connection is the daemon's single X server connection. Every request the
// dock, layout and capture paths send goes through it.
type Connection struct {
	XUtil *xgbutil.XUtil
	Root  xproto.Window
}

// NewConnection connects to $DISPLAY and prepares keyboard mapping for the
// hotkey handler.
func NewConnection() (*Connection, error) {
	xu, err := xgbutil.NewConn()
	if err != nil {
		return nil, err
	}
	keybind.Initialize(xu)

	return &Connection{
		XUtil: xu,
		Root:  xu.RootWin(),
	}, nil
}

// Conn returns the raw protocol connection.
func (c *Connection) Conn() *xgb.Conn {
	return c.XUtil.Conn()
}

// EventLoop dispatches X events to registered callbacks until Quit.
func (c *Connection) EventLoop() {
	xevent.Main(c.XUtil)
}

// Quit stops EventLoop.
func (c *Connection) Quit() {
	xevent.Quit(c.XUtil)
}

// Sync forces a round-trip so every request sent so far has been processed
// by the server.
func (c *Connection) Sync() error {
	if _, err := xproto.GetInputFocus(c.Conn()).Reply(); err != nil {
		return fmt.Errorf("x11 sync: %w", err)
	}
	return nil
}

// Close drops the connection.
func (c *Connection) Close() {
	c.XUtil.Conn().Close()
}

// IsWindowGone reports whether err is the server telling us the window or
// drawable id no longer exists.
func IsWindowGone(err error) bool {
	switch err.(type) {
	case xproto.WindowError, xproto.DrawableError:
		return true
	}
	return false
}
