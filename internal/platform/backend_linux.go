//go:build linux

package platform

import (
	"fmt"
	"image"
	"sort"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/thordock/thordock/internal/x11"
)

// LinuxBackend implements WindowSystem on top of an X11 connection.
type LinuxBackend struct {
	conn *x11.Connection
}

var _ WindowSystem = (*LinuxBackend)(nil)

// NewLinuxBackend creates a Linux platform backend from an existing X11 connection.
func NewLinuxBackend(conn *x11.Connection) *LinuxBackend {
	return &LinuxBackend{conn: conn}
}

// NewLinuxBackendFromDisplay creates a new Linux backend by opening a fresh X11 connection.
func NewLinuxBackendFromDisplay() (*LinuxBackend, error) {
	conn, err := x11.NewConnection()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X11: %w", err)
	}
	return &LinuxBackend{conn: conn}, nil
}

// Connection exposes the X11 connection for hotkeys and the event loop.
func (b *LinuxBackend) Connection() *x11.Connection {
	return b.conn
}

// Disconnect closes the underlying X11 connection.
func (b *LinuxBackend) Disconnect() {
	if b != nil && b.conn != nil {
		b.conn.Close()
	}
}

// Capabilities probes the X server.
func (b *LinuxBackend) Capabilities() Capabilities {
	info := b.conn.Probe()
	return Capabilities{
		Vendor:   info.Vendor,
		Release:  info.Release,
		XWayland: info.XWayland,
		Kernel:   info.Kernel,
	}
}

// ContainerOrigin returns the top-left of the work area on the monitor under
// the pointer.
func (b *LinuxBackend) ContainerOrigin() Point {
	mon, err := b.conn.PointerMonitor()
	if err != nil {
		return Point{}
	}
	return Point{X: mon.X, Y: mon.Y}
}

func (b *LinuxBackend) Root() WindowID {
	return WindowID(b.conn.Root)
}

// ListWindows lists normal client windows ordered by id.
func (b *LinuxBackend) ListWindows() ([]Window, error) {
	clients, err := b.conn.Clients()
	if err != nil {
		return nil, err
	}
	windows := make([]Window, 0, len(clients))
	for _, c := range clients {
		windows = append(windows, Window{
			ID:     WindowID(c.ID),
			PID:    c.PID,
			Title:  c.Title,
			Bounds: Rect{X: c.X, Y: c.Y, Width: c.Width, Height: c.Height},
			Hidden: c.Hidden,
		})
	}
	sort.Slice(windows, func(i, j int) bool {
		return windows[i].ID < windows[j].ID
	})
	return windows, nil
}

func (b *LinuxBackend) Viewable(id WindowID) (bool, error) {
	ok, err := b.conn.IsViewable(xproto.Window(id))
	return ok, mapErr(err)
}

func (b *LinuxBackend) Geometry(id WindowID) (Rect, error) {
	x, y, w, h, err := b.conn.RootGeometry(xproto.Window(id))
	if err != nil {
		return Rect{}, mapErr(err)
	}
	return Rect{X: x, Y: y, Width: w, Height: h}, nil
}

func (b *LinuxBackend) MoveResize(id WindowID, bounds Rect) error {
	return mapErr(b.conn.MoveResizeWindow(xproto.Window(id), bounds.X, bounds.Y, bounds.Width, bounds.Height))
}

func (b *LinuxBackend) Parent(id WindowID) (WindowID, error) {
	p, err := b.conn.Parent(xproto.Window(id))
	return WindowID(p), mapErr(err)
}

func (b *LinuxBackend) Reparent(id, parent WindowID, at Point) error {
	return mapErr(b.conn.ReparentWindow(xproto.Window(id), xproto.Window(parent), at.X, at.Y))
}

func (b *LinuxBackend) Map(id WindowID) error {
	if err := b.conn.MapWindow(xproto.Window(id)); err != nil {
		return mapErr(err)
	}
	// Containers are ours; bring them forward once shown.
	if b.isContainer(id) {
		b.conn.ActivateWindow(xproto.Window(id))
	}
	return nil
}

func (b *LinuxBackend) Unmap(id WindowID) error {
	return mapErr(b.conn.UnmapWindow(xproto.Window(id)))
}

func (b *LinuxBackend) Decorations(id WindowID) (Decorations, error) {
	h, ok, err := b.conn.MotifHintsGet(xproto.Window(id))
	if err != nil {
		return Decorations{}, mapErr(err)
	}
	if !ok {
		return Decorations{}, nil
	}
	return Decorations{
		Present:    true,
		Flags:      h.Flags,
		Functions:  h.Functions,
		Decoration: h.Decoration,
		InputMode:  h.InputMode,
		Status:     h.Status,
	}, nil
}

// SetDecorations writes the hint back, deleting it when d.Present is false.
func (b *LinuxBackend) SetDecorations(id WindowID, d Decorations) error {
	if !d.Present {
		return mapErr(b.conn.MotifHintsDelete(xproto.Window(id)))
	}
	return mapErr(b.conn.MotifHintsSet(xproto.Window(id), x11.MotifHints{
		Flags:      d.Flags,
		Functions:  d.Functions,
		Decoration: d.Decoration,
		InputMode:  d.InputMode,
		Status:     d.Status,
	}))
}

func (b *LinuxBackend) Capture(id WindowID) (image.Image, error) {
	img, err := b.conn.CaptureWindow(xproto.Window(id))
	if err != nil {
		return nil, mapErr(err)
	}
	return img, nil
}

func (b *LinuxBackend) CreateContainer(title string, bounds Rect) (WindowID, error) {
	id, err := b.conn.CreateContainer(title, bounds.X, bounds.Y, bounds.Width, bounds.Height)
	return WindowID(id), err
}

func (b *LinuxBackend) DestroyWindow(id WindowID) error {
	return mapErr(b.conn.DestroyWindow(xproto.Window(id)))
}

func (b *LinuxBackend) Sync() error {
	return b.conn.Sync()
}

// OnContainerClose calls fn when the user closes the container window.
func (b *LinuxBackend) OnContainerClose(id WindowID, fn func()) {
	b.conn.OnClose(xproto.Window(id), fn)
}

func (b *LinuxBackend) isContainer(id WindowID) bool {
	return b.conn.IsContainer(xproto.Window(id))
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if x11.IsWindowGone(err) {
		return fmt.Errorf("%w: %v", ErrWindowGone, err)
	}
	return err
}
