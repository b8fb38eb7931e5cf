// Package session holds the per-display record of a mirroring process and
// the window it owns.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/thordock/thordock/internal/platform"
)

// Role identifies which physical screen a session mirrors.
type Role string

const (
	RoleTop    Role = "top"
	RoleBottom Role = "bottom"
)

// Roles lists both roles in display order.
var Roles = []Role{RoleTop, RoleBottom}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleTop, RoleBottom:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q (want top or bottom)", s)
}

// Other returns the opposite role.
func (r Role) Other() Role {
	if r == RoleTop {
		return RoleBottom
	}
	return RoleTop
}

// Status is the lifecycle state of a session.
type Status int

const (
	Launching Status = iota
	Located
	Ready
	Crashed
	Terminated
)

func (s Status) String() string {
	switch s {
	case Launching:
		return "launching"
	case Located:
		return "located"
	case Ready:
		return "ready"
	case Crashed:
		return "crashed"
	case Terminated:
		return "terminated"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == Crashed || s == Terminated
}

var (
	ErrWindowAlreadySet  = errors.New("session window already set")
	ErrIllegalTransition = errors.New("illegal session transition")
)

// Session is the record of one spawned mirroring process and its located
// window. It is a data owner only; the engine drives transitions.
type Session struct {
	Role      Role
	DisplayID string
	Token     string
	Created   time.Time

	mu           sync.Mutex
	status       Status
	cause        error
	pid          int
	handle       *Handle
	cancelLocate func()
}

// New creates a session in status Launching.
func New(role Role, displayID, token string, now time.Time) *Session {
	return &Session{
		Role:      role,
		DisplayID: displayID,
		Token:     token,
		Created:   now,
		status:    Launching,
	}
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Cause returns the error that ended the session, if any.
func (s *Session) Cause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

func (s *Session) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pid
}

func (s *Session) SetPID(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pid = pid
}

// Handle returns the window handle, or nil before the window is located.
func (s *Session) Handle() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// SetLocateCancel registers the function that stops window polling. It is
// called when the session ends.
func (s *Session) SetLocateCancel(cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocate = cancel
}

// SetWindow records the located window and moves Launching -> Located. A
// session's window can be set only once.
func (s *Session) SetWindow(id platform.WindowID) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle != nil {
		return nil, ErrWindowAlreadySet
	}
	if s.status != Launching {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s.status, Located)
	}
	s.handle = newHandle(id)
	s.status = Located
	return s.handle, nil
}

// MarkReady moves Located -> Ready.
func (s *Session) MarkReady() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != Located {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s.status, Ready)
	}
	s.status = Ready
	return nil
}

// Finish moves the session to a terminal status. Locate polling is
// cancelled and the window handle released in the same step, so nothing
// can use the window after the status change is visible. It returns false
// if the session had already ended.
func (s *Session) Finish(status Status, cause error) bool {
	if !status.Terminal() {
		panic("session: Finish with non-terminal status " + status.String())
	}
	s.mu.Lock()
	if s.status.Terminal() {
		s.mu.Unlock()
		return false
	}
	s.status = status
	s.cause = cause
	cancel := s.cancelLocate
	handle := s.handle
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if handle != nil {
		handle.Release()
	}
	return true
}

// Info is a read-only snapshot for status reporting.
type Info struct {
	Role      Role              `json:"role"`
	DisplayID string            `json:"display_id"`
	Token     string            `json:"token"`
	Status    string            `json:"status"`
	PID       int               `json:"pid,omitempty"`
	WindowID  platform.WindowID `json:"window_id,omitempty"`
	Cause     string            `json:"cause,omitempty"`
}

func (s *Session) Snapshot() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := Info{
		Role:      s.Role,
		DisplayID: s.DisplayID,
		Token:     s.Token,
		Status:    s.status.String(),
		PID:       s.pid,
	}
	if s.handle != nil {
		info.WindowID = s.handle.ID()
	}
	if s.cause != nil {
		info.Cause = s.cause.Error()
	}
	return info
}
