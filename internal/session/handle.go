package session

import (
	"errors"
	"sync"

	"github.com/thordock/thordock/internal/platform"
)

// ErrHandleReleased is returned by Handle.Do after the session that owned
// the window has ended.
var ErrHandleReleased = errors.New("window handle released")

// Handle owns one native window reference. Every operation that touches the
// window goes through Do, so two operations on the same window never overlap.
type Handle struct {
	mu       sync.Mutex
	id       platform.WindowID
	released bool
}

func newHandle(id platform.WindowID) *Handle {
	return &Handle{id: id}
}

// ID returns the wrapped window id. It stays readable after release for
// logging.
func (h *Handle) ID() platform.WindowID {
	return h.id
}

// Do runs fn with exclusive access to the window.
func (h *Handle) Do(fn func(platform.WindowID) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return ErrHandleReleased
	}
	return fn(h.id)
}

// Released reports whether Release has been called.
func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// Release waits for any in-flight operation and marks the handle dead.
// It returns false if the handle was already released.
func (h *Handle) Release() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return false
	}
	h.released = true
	return true
}
