// Package platformtest provides an in-memory WindowSystem for tests.
package platformtest

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/thordock/thordock/internal/platform"
)

// RootID is the id of the fake root window.
const RootID platform.WindowID = 1

type fakeWindow struct {
	pid         int
	title       string
	parent      platform.WindowID
	rel         platform.Rect
	mapped      bool
	hidden      bool
	client      bool
	decorations platform.Decorations
	fill        color.NRGBA
}

// System is a thread-safe fake window system. Positions are stored relative
// to each window's parent, like X11.
type System struct {
	mu      sync.Mutex
	windows map[platform.WindowID]*fakeWindow
	nextID  platform.WindowID
	calls   []string

	// Failure injection, keyed by window id.
	FailReparent   map[platform.WindowID]error
	FailMoveResize map[platform.WindowID]error
	FailDecorate   map[platform.WindowID]error
	FailCapture    map[platform.WindowID]error
	// ListErr makes ListWindows fail when non-nil.
	ListErr error

	before func(op string, id platform.WindowID)
}

var _ platform.WindowSystem = (*System)(nil)

// New returns an empty fake with only the root window.
func New() *System {
	return &System{
		windows: map[platform.WindowID]*fakeWindow{
			RootID: {mapped: true, rel: platform.Rect{Width: 3840, Height: 2160}},
		},
		nextID:         100,
		FailReparent:   map[platform.WindowID]error{},
		FailMoveResize: map[platform.WindowID]error{},
		FailDecorate:   map[platform.WindowID]error{},
		FailCapture:    map[platform.WindowID]error{},
	}
}

// AddClient creates a mapped top-level client window and returns its id.
func (s *System) AddClient(pid int, title string, bounds platform.Rect) platform.WindowID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.windows[id] = &fakeWindow{
		pid:    pid,
		title:  title,
		parent: RootID,
		rel:    bounds,
		mapped: true,
		client: true,
		decorations: platform.Decorations{
			Present:    true,
			Flags:      2,
			Decoration: 1,
		},
		fill: color.NRGBA{R: uint8(id), G: 0x40, B: 0x80, A: 0xff},
	}
	return id
}

// SetBefore installs fn to run at the start of MoveResize, Reparent, Map and
// Unmap, before any state changes. fn runs without the fake's lock, so it may
// block or call back into the fake. op is "moveresize", "reparent", "map" or
// "unmap".
func (s *System) SetBefore(fn func(op string, id platform.WindowID)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.before = fn
}

func (s *System) runBefore(op string, id platform.WindowID) {
	s.mu.Lock()
	fn := s.before
	s.mu.Unlock()
	if fn != nil {
		fn(op, id)
	}
}

// Remove makes a window vanish, as when its process dies.
func (s *System) Remove(id platform.WindowID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, id)
}

// SetHidden marks a client as minimized.
func (s *System) SetHidden(id platform.WindowID, hidden bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.windows[id]; ok {
		w.hidden = hidden
	}
}

// SetMapped toggles whether a window is mapped.
func (s *System) SetMapped(id platform.WindowID, mapped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.windows[id]; ok {
		w.mapped = mapped
	}
}

// Exists reports whether a window is still known.
func (s *System) Exists(id platform.WindowID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.windows[id]
	return ok
}

// IsMapped reports a window's map state.
func (s *System) IsMapped(id platform.WindowID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[id]
	return ok && w.mapped
}

// ParentOf returns the current parent, or 0 if the window is gone.
func (s *System) ParentOf(id platform.WindowID) platform.WindowID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.windows[id]; ok {
		return w.parent
	}
	return 0
}

// DecorationsOf returns the stored decoration hints.
func (s *System) DecorationsOf(id platform.WindowID) platform.Decorations {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.windows[id]; ok {
		return w.decorations
	}
	return platform.Decorations{}
}

// Calls returns the operation log, e.g. "reparent 101 -> 102".
func (s *System) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// CountCalls counts logged calls starting with prefix.
func (s *System) CountCalls(prefix string) int {
	n := 0
	for _, c := range s.Calls() {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (s *System) logf(format string, args ...any) {
	s.calls = append(s.calls, fmt.Sprintf(format, args...))
}

func (s *System) get(id platform.WindowID) (*fakeWindow, error) {
	w, ok := s.windows[id]
	if !ok {
		return nil, fmt.Errorf("window %d: %w", id, platform.ErrWindowGone)
	}
	return w, nil
}

// absolute converts a window's parent-relative origin to root coordinates.
func (s *System) absolute(id platform.WindowID) platform.Rect {
	w := s.windows[id]
	r := w.rel
	for p := w.parent; p != 0 && p != RootID; {
		pw, ok := s.windows[p]
		if !ok {
			break
		}
		r.X += pw.rel.X
		r.Y += pw.rel.Y
		p = pw.parent
	}
	return r
}

func (s *System) Root() platform.WindowID { return RootID }

func (s *System) ListWindows() ([]platform.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	var out []platform.Window
	for id, w := range s.windows {
		if !w.client || w.parent != RootID {
			continue
		}
		out = append(out, platform.Window{
			ID:     id,
			PID:    w.pid,
			Title:  w.title,
			Bounds: s.absolute(id),
			Hidden: w.hidden || !w.mapped,
		})
	}
	return out, nil
}

func (s *System) Viewable(id platform.WindowID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.get(id)
	if err != nil {
		return false, err
	}
	return w.mapped && !w.hidden, nil
}

func (s *System) Geometry(id platform.WindowID) (platform.Rect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.get(id); err != nil {
		return platform.Rect{}, err
	}
	return s.absolute(id), nil
}

func (s *System) MoveResize(id platform.WindowID, bounds platform.Rect) error {
	s.runBefore("moveresize", id)
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.get(id)
	if err != nil {
		return err
	}
	if err := s.FailMoveResize[id]; err != nil {
		return err
	}
	s.logf("moveresize %d %d,%d %dx%d", id, bounds.X, bounds.Y, bounds.Width, bounds.Height)
	w.rel = bounds
	return nil
}

func (s *System) Parent(id platform.WindowID) (platform.WindowID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.get(id)
	if err != nil {
		return 0, err
	}
	return w.parent, nil
}

func (s *System) Reparent(id, parent platform.WindowID, at platform.Point) error {
	s.runBefore("reparent", id)
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.get(id)
	if err != nil {
		return err
	}
	if _, err := s.get(parent); err != nil {
		return err
	}
	if err := s.FailReparent[id]; err != nil {
		return err
	}
	s.logf("reparent %d -> %d", id, parent)
	w.parent = parent
	w.rel.X, w.rel.Y = at.X, at.Y
	return nil
}

func (s *System) Map(id platform.WindowID) error {
	s.runBefore("map", id)
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.get(id)
	if err != nil {
		return err
	}
	s.logf("map %d", id)
	w.mapped = true
	return nil
}

func (s *System) Unmap(id platform.WindowID) error {
	s.runBefore("unmap", id)
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.get(id)
	if err != nil {
		return err
	}
	s.logf("unmap %d", id)
	w.mapped = false
	return nil
}

func (s *System) Decorations(id platform.WindowID) (platform.Decorations, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.get(id)
	if err != nil {
		return platform.Decorations{}, err
	}
	return w.decorations, nil
}

func (s *System) SetDecorations(id platform.WindowID, d platform.Decorations) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.get(id)
	if err != nil {
		return err
	}
	if err := s.FailDecorate[id]; err != nil {
		return err
	}
	s.logf("decorations %d %v/%d", id, d.Present, d.Decoration)
	w.decorations = d
	return nil
}

// Capture returns a solid image of the window's size filled with a
// per-window color.
func (s *System) Capture(id platform.WindowID) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if err := s.FailCapture[id]; err != nil {
		return nil, err
	}
	img := image.NewNRGBA(image.Rect(0, 0, w.rel.Width, w.rel.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: w.fill}, image.Point{}, draw.Src)
	return img, nil
}

// FillOf returns the color Capture paints for id.
func (s *System) FillOf(id platform.WindowID) color.NRGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.windows[id]; ok {
		return w.fill
	}
	return color.NRGBA{}
}

func (s *System) CreateContainer(title string, bounds platform.Rect) (platform.WindowID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.windows[id] = &fakeWindow{title: title, parent: RootID, rel: bounds}
	s.logf("create %d %q", id, title)
	return id, nil
}

func (s *System) DestroyWindow(id platform.WindowID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.get(id); err != nil {
		return err
	}
	s.logf("destroy %d", id)
	delete(s.windows, id)
	return nil
}

func (s *System) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logf("sync")
	return nil
}
