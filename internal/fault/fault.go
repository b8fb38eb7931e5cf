// Package fault defines the failure taxonomy surfaced by the docking engine.
// Every failure is emitted as an event; the Kind tells the UI how to render
// it and whether the other session is affected.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an engine failure.
type Kind string

const (
	// ProcessLaunchFailure: the mirroring process could not be spawned or
	// exited before producing a window. Fatal to that session only.
	ProcessLaunchFailure Kind = "process_launch_failure"
	// WindowLocateTimeout: no matching window became ready in time. The
	// process is terminated as a side effect.
	WindowLocateTimeout Kind = "window_locate_timeout"
	// ReparentFailure: a dock attempt was aborted and rolled back.
	ReparentFailure Kind = "reparent_failure"
	// CrashDuringDock: a session crashed while docked; the survivor was
	// forcibly undocked.
	CrashDuringDock Kind = "crash_during_dock"
	// SyncApplyFailure: a geometry apply failed for one session.
	SyncApplyFailure Kind = "sync_apply_failure"
	// CaptureUnavailable: a screenshot could not be taken.
	CaptureUnavailable Kind = "capture_unavailable"
	// WindowVanished: a located window disappeared while its process was
	// still tracked.
	WindowVanished Kind = "window_vanished"
)

// Error is a classified failure scoped to a role ("top", "bottom") or to the
// pair when Role is empty.
type Error struct {
	Kind Kind
	Role string
	Err  error
}

// New returns a classified error.
func New(kind Kind, role string, err error) *Error {
	return &Error{Kind: kind, Role: role, Err: err}
}

// Newf returns a classified error with a formatted cause.
func Newf(kind Kind, role string, format string, args ...any) *Error {
	return &Error{Kind: kind, Role: role, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Role != "" {
		msg += " [" + e.Role + "]"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so errors.Is(err, &Error{Kind: k})
// works regardless of role and cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Role == "" || t.Role == e.Role)
}

// Is reports whether err carries a fault of the given kind.
func Is(err error, kind Kind) bool {
	var fe *Error
	if !errors.As(err, &fe) {
		return false
	}
	return fe.Kind == kind
}

// KindOf returns the kind carried by err, or "" when err is unclassified.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// RoleOf returns the session role carried by err, or "".
func RoleOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Role
	}
	return ""
}
