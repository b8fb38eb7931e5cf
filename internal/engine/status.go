package engine

import (
	"github.com/thordock/thordock/internal/layout"
	"github.com/thordock/thordock/internal/session"
)

// Status is a point-in-time view of the engine for status reporting.
type Status struct {
	Sessions  []session.Info `json:"sessions"`
	Dock      string         `json:"dock"`
	Layout    layout.Spec    `json:"layout"`
	Sync      string         `json:"sync"`
	Container uint32         `json:"container"`
}

// Status reads current state without touching the window system.
func (e *Engine) Status() Status {
	st := Status{
		Dock:      e.dock.State().String(),
		Layout:    e.scheduler.Latest(),
		Sync:      e.scheduler.Phase().String(),
		Container: uint32(e.dock.Container()),
	}
	for _, role := range session.Roles {
		if sess, _ := e.current(role); sess != nil {
			st.Sessions = append(st.Sessions, sess.Snapshot())
		}
	}
	return st
}
