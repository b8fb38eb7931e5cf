// Package dock embeds the two mirrored windows into a host container and
// separates them again.
package dock

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/thordock/thordock/internal/fault"
	"github.com/thordock/thordock/internal/platform"
	"github.com/thordock/thordock/internal/session"
)

// State of the pair.
type State int

const (
	Undocked State = iota
	Docking
	Docked
	Undocking
)

func (s State) String() string {
	switch s {
	case Undocked:
		return "undocked"
	case Docking:
		return "docking"
	case Docked:
		return "docked"
	case Undocking:
		return "undocking"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	ErrTransitionInProgress = errors.New("dock transition already in progress")
	ErrSessionsNotReady     = errors.New("both sessions must be ready to dock")
)

// Placement is where the container goes (root coordinates) and where each
// window goes inside it (container coordinates).
type Placement struct {
	Container platform.Rect
	Windows   map[session.Role]platform.Rect
}

// prior is the top-level state of a window before it was docked.
type prior struct {
	handle      *session.Handle
	parent      platform.WindowID
	bounds      platform.Rect
	decorations platform.Decorations
}

// Hooks let the owner start and stop window sync inside a transition. Both
// run with the gate held, so they never interleave with another transition.
type Hooks struct {
	// Docked receives the attached handles once the pair is Docked.
	Docked func(handles map[session.Role]*session.Handle)
	// Releasing runs before a docked pair's windows are released.
	Releasing func()
}

// Machine owns the dock state. One gate serializes every transition of the
// pair; commands fail fast while a transition runs, crash handling waits.
type Machine struct {
	gate  sync.Mutex
	hooks Hooks

	ws         platform.WindowSystem
	reparenter platform.Reparenter
	container  platform.WindowID
	logger     *slog.Logger
	onChange   func(State)

	mu    sync.Mutex
	state State
	saved map[session.Role]prior
}

// New creates a machine in state Undocked. onChange, if set, is called
// after every state change while the gate is held.
func New(ws platform.WindowSystem, r platform.Reparenter, container platform.WindowID, logger *slog.Logger, onChange func(State)) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		ws:         ws,
		reparenter: r,
		container:  container,
		logger:     logger,
		onChange:   onChange,
		saved:      map[session.Role]prior{},
	}
}

// SetHooks installs h. It waits for any transition in progress.
func (m *Machine) SetHooks(h Hooks) {
	m.gate.Lock()
	defer m.gate.Unlock()
	m.hooks = h
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Container returns the host container window.
func (m *Machine) Container() platform.WindowID {
	return m.container
}

func (m *Machine) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	m.logger.Info("dock state changed", "state", s.String())
	if m.onChange != nil {
		m.onChange(s)
	}
}

// Dock attaches both windows to the container. Docking an already docked
// pair is a no-op. Any failure rolls both windows back and returns a
// ReparentFailure fault, or CrashDuringDock if a session ended meanwhile.
func (m *Machine) Dock(sessions map[session.Role]*session.Session, place Placement) error {
	if !m.gate.TryLock() {
		return ErrTransitionInProgress
	}
	defer m.gate.Unlock()

	if m.State() == Docked {
		return nil
	}
	handles := map[session.Role]*session.Handle{}
	for _, role := range session.Roles {
		s := sessions[role]
		if s == nil || s.Status() != session.Ready || s.Handle() == nil {
			return ErrSessionsNotReady
		}
		handles[role] = s.Handle()
	}

	m.setState(Docking)
	if err := m.ws.MoveResize(m.container, place.Container); err != nil {
		m.setState(Undocked)
		return fault.New(fault.ReparentFailure, "", fmt.Errorf("place container: %w", err))
	}

	attached := map[session.Role]prior{}
	for _, role := range session.Roles {
		p, err := m.attach(handles[role], place.Windows[role])
		if err != nil {
			m.logger.Warn("dock failed, rolling back", "role", role, "error", err)
			m.rollback(attached)
			m.setState(Undocked)
			return fault.New(fault.ReparentFailure, string(role), err)
		}
		attached[role] = p
	}

	if err := m.ws.Map(m.container); err != nil {
		m.logger.Warn("failed to show container", "error", err)
	}
	// A session that ended while its partner was being attached would
	// leave a half-dead pair. Anyone ending a session after this check
	// sees a non-Undocked state and waits for the gate.
	for _, role := range session.Roles {
		s := sessions[role]
		if s.Status() != session.Ready || s.Handle() != handles[role] {
			m.logger.Warn("session ended while docking, rolling back", "role", role, "status", s.Status())
			m.rollback(attached)
			if err := m.ws.Unmap(m.container); err != nil {
				m.logger.Warn("failed to hide container", "error", err)
			}
			m.setState(Undocked)
			return fault.Newf(fault.CrashDuringDock, string(role), "session ended while docking")
		}
	}

	m.mu.Lock()
	m.saved = attached
	m.mu.Unlock()
	m.setState(Docked)
	if m.hooks.Docked != nil {
		m.hooks.Docked(handles)
	}
	return nil
}

func (m *Machine) rollback(attached map[session.Role]prior) {
	for role, p := range attached {
		err := m.restore(p)
		switch {
		case err == nil, errors.Is(err, session.ErrHandleReleased):
		default:
			m.logger.Warn("rollback failed", "role", role, "error", err)
		}
	}
}

func (m *Machine) attach(h *session.Handle, at platform.Rect) (prior, error) {
	p := prior{handle: h}
	err := h.Do(func(id platform.WindowID) error {
		var err error
		if p.parent, err = m.ws.Parent(id); err != nil {
			return err
		}
		if p.bounds, err = m.ws.Geometry(id); err != nil {
			return err
		}
		if p.decorations, err = m.ws.Decorations(id); err != nil {
			return err
		}
		if err := m.reparenter.Attach(m.ws, id, m.container, at.Min()); err != nil {
			m.unwind(id, p, false)
			return err
		}
		if err := m.ws.SetDecorations(id, p.decorations.Stripped()); err != nil {
			m.unwind(id, p, false)
			return err
		}
		if !at.Empty() {
			if err := m.ws.MoveResize(id, at); err != nil {
				m.unwind(id, p, true)
				return err
			}
		}
		return nil
	})
	return p, err
}

// unwind undoes a partial attach of id. The reparent may have taken effect
// even when the attach reported an error, for example when the parent check
// afterwards saw a window manager frame, so the parent is asked again.
func (m *Machine) unwind(id platform.WindowID, p prior, decorated bool) {
	log := m.logger.With("window_id", id)
	if decorated {
		if err := m.ws.SetDecorations(id, p.decorations); err != nil {
			log.Warn("rollback: restore decorations", "error", err)
		}
	}
	parent, err := m.ws.Parent(id)
	if err != nil {
		log.Warn("rollback: query parent", "error", err)
	}
	if err != nil || parent != p.parent {
		if err := m.reparenter.Detach(m.ws, id, m.ws.Root(), p.bounds.Min()); err != nil {
			log.Warn("rollback: detach", "error", err)
		}
		if err := m.ws.MoveResize(id, p.bounds); err != nil {
			log.Warn("rollback: restore geometry", "error", err)
		}
	}
	if err := m.ws.Map(id); err != nil {
		log.Warn("rollback: map", "error", err)
	}
}

// restore puts a window back exactly where it was before docking.
func (m *Machine) restore(p prior) error {
	return p.handle.Do(func(id platform.WindowID) error {
		if err := m.reparenter.Detach(m.ws, id, m.ws.Root(), p.bounds.Min()); err != nil {
			return err
		}
		if err := m.ws.SetDecorations(id, p.decorations); err != nil {
			return err
		}
		return m.ws.MoveResize(id, p.bounds)
	})
}

// release returns a docked window to the root at its current absolute
// geometry with its original decorations.
func (m *Machine) release(p prior) error {
	return p.handle.Do(func(id platform.WindowID) error {
		cur, err := m.ws.Geometry(id)
		if err != nil {
			return err
		}
		if err := m.reparenter.Detach(m.ws, id, m.ws.Root(), cur.Min()); err != nil {
			return err
		}
		if err := m.ws.SetDecorations(id, p.decorations); err != nil {
			return err
		}
		return m.ws.MoveResize(id, cur)
	})
}

// Undock returns both windows to independent top-level windows. Undocking
// an undocked pair is a no-op. Roles whose window had vanished are
// returned so the caller can crash those sessions.
func (m *Machine) Undock() ([]session.Role, error) {
	if !m.gate.TryLock() {
		return nil, ErrTransitionInProgress
	}
	defer m.gate.Unlock()
	vanished, _ := m.undockLocked()
	return vanished, nil
}

// ForceUndock is Undock for crash handling: it waits for any transition in
// progress instead of failing. forced reports whether a docked pair was
// actually taken apart.
func (m *Machine) ForceUndock() (vanished []session.Role, forced bool) {
	m.gate.Lock()
	defer m.gate.Unlock()
	return m.undockLocked()
}

func (m *Machine) undockLocked() ([]session.Role, bool) {
	if m.State() != Docked {
		return nil, false
	}
	if m.hooks.Releasing != nil {
		m.hooks.Releasing()
	}
	m.setState(Undocking)

	m.mu.Lock()
	saved := m.saved
	m.saved = map[session.Role]prior{}
	m.mu.Unlock()

	var vanished []session.Role
	for _, role := range session.Roles {
		p, ok := saved[role]
		if !ok {
			continue
		}
		err := m.release(p)
		switch {
		case err == nil:
		case errors.Is(err, session.ErrHandleReleased):
			// Session already ended; its process took the window with it.
		case errors.Is(err, platform.ErrWindowGone):
			vanished = append(vanished, role)
		default:
			m.logger.Warn("undock: window restore incomplete", "role", role, "error", err)
		}
	}

	if err := m.ws.Unmap(m.container); err != nil {
		m.logger.Warn("failed to hide container", "error", err)
	}
	m.setState(Undocked)
	return vanished, true
}

// FitContainer resizes the container in place while docked. It is a no-op
// in any other state. It does not take the gate, so a refit never blocks a
// transition; holding mu keeps the state from changing under the resize.
func (m *Machine) FitContainer(width, height int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Docked {
		return nil
	}
	cur, err := m.ws.Geometry(m.container)
	if err != nil {
		return err
	}
	if cur.Width == width && cur.Height == height {
		return nil
	}
	return m.ws.MoveResize(m.container, platform.Rect{X: cur.X, Y: cur.Y, Width: width, Height: height})
}
