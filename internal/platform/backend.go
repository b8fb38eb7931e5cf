package platform

import (
	"errors"
	"image"
)

// WindowID is a native window identifier.
type WindowID uint32

// ErrWindowGone is returned when an operation targets a window that the
// window system no longer knows about.
var ErrWindowGone = errors.New("window no longer exists")

// Point is a position in pixels.
type Point struct {
	X int
	Y int
}

// Rect describes a rectangular region.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Min returns the top-left corner.
func (r Rect) Min() Point { return Point{X: r.X, Y: r.Y} }

// Empty reports whether r has no area.
func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Union returns the smallest rectangle containing r and o. An empty operand
// is ignored.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	x0, y0 := min(r.X, o.X), min(r.Y, o.Y)
	x1 := max(r.X+r.Width, o.X+o.Width)
	y1 := max(r.Y+r.Height, o.Y+o.Height)
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Window contains metadata and geometry for a top-level window.
type Window struct {
	ID     WindowID
	PID    int
	Title  string
	Bounds Rect
	// Hidden is set for minimized/iconified or unmapped windows.
	Hidden bool
}

// Decorations is a snapshot of a window's decoration hints
// (_MOTIF_WM_HINTS). Present is false when the window never set the hint,
// in which case the window manager decorates it normally.
type Decorations struct {
	Present    bool
	Flags      uint
	Functions  uint
	Decoration uint
	InputMode  uint
	Status     uint
}

// decorationsFlag marks the Decoration field of the motif hints as valid.
const decorationsFlag = 1 << 1

// Stripped returns hints asking the window manager for no title bar or
// border, keeping the other fields.
func (d Decorations) Stripped() Decorations {
	d.Present = true
	d.Flags |= decorationsFlag
	d.Decoration = 0
	return d
}

// WindowSystem is the set of native window operations used by the engine.
// Geometry is reported in root coordinates; MoveResize and Reparent take
// coordinates relative to the window's (new) parent.
type WindowSystem interface {
	Root() WindowID
	ListWindows() ([]Window, error)
	Viewable(id WindowID) (bool, error)
	Geometry(id WindowID) (Rect, error)
	MoveResize(id WindowID, bounds Rect) error
	Parent(id WindowID) (WindowID, error)
	Reparent(id, parent WindowID, at Point) error
	Map(id WindowID) error
	Unmap(id WindowID) error
	Decorations(id WindowID) (Decorations, error)
	SetDecorations(id WindowID, d Decorations) error
	Capture(id WindowID) (image.Image, error)
	CreateContainer(title string, bounds Rect) (WindowID, error)
	DestroyWindow(id WindowID) error
	Sync() error
}
