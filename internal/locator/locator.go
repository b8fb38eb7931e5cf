// Package locator finds the native window owned by a spawned process.
package locator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/thordock/thordock/internal/clock"
	"github.com/thordock/thordock/internal/platform"
)

// ErrTimeout is returned when no stable window appeared in time.
var ErrTimeout = errors.New("window not found before timeout")

const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultTimeout      = 15 * time.Second
	// StablePolls is how many consecutive polls must see the window
	// enumerable and not minimized.
	StablePolls = 2
)

// Target identifies the window to look for.
type Target struct {
	PID   int
	Token string
}

// Matches reports whether w carries the target's pid and title token.
func (t Target) Matches(w platform.Window) bool {
	return t.hasToken(w) && w.PID == t.PID
}

func (t Target) hasToken(w platform.Window) bool {
	return t.Token != "" && strings.Contains(w.Title, t.Token)
}

// Pick returns the target's window from windows. A window that does not
// publish _NET_WM_PID is accepted on the title token alone, but only while
// no window in the list reports the target's pid: once the process has
// published one, an anonymous window is somebody else's.
func (t Target) Pick(windows []platform.Window) (platform.Window, bool) {
	var anonymous *platform.Window
	ownsAny := false
	for i, w := range windows {
		if w.PID == t.PID {
			ownsAny = true
			if t.hasToken(w) {
				return w, true
			}
			continue
		}
		if w.PID == 0 && anonymous == nil && t.hasToken(w) {
			anonymous = &windows[i]
		}
	}
	if anonymous != nil && !ownsAny {
		return *anonymous, true
	}
	return platform.Window{}, false
}

// Locator polls a WindowSystem.
type Locator struct {
	ws       platform.WindowSystem
	clock    clock.Clock
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// New creates a locator. Zero durations use the defaults.
func New(ws platform.WindowSystem, clk clock.Clock, interval, timeout time.Duration, logger *slog.Logger) *Locator {
	if clk == nil {
		clk = clock.Real()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{ws: ws, clock: clk, interval: interval, timeout: timeout, logger: logger}
}

// Locate polls until the target's window is found and stable. found is
// called once, as soon as the window is first seen; if it returns an error
// Locate stops with that error. The returned id is the same window passed
// to found. The deadline covers both phases.
func (l *Locator) Locate(ctx context.Context, target Target, found func(platform.Window) error) (platform.WindowID, error) {
	deadline := l.clock.Now().Add(l.timeout)
	var (
		located platform.WindowID
		stable  int
	)

	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		windows, err := l.ws.ListWindows()
		if err != nil {
			l.logger.Debug("window list failed", "error", err)
		}

		if located == 0 {
			if w, ok := target.Pick(windows); ok {
				located = w.ID
				l.logger.Debug("window located", "window_id", w.ID, "title", w.Title, "pid", w.PID)
				if found != nil {
					if err := found(w); err != nil {
						return 0, err
					}
				}
			}
		}

		if located != 0 {
			if l.usable(windows, located) {
				stable++
			} else {
				stable = 0
			}
			if stable >= StablePolls {
				return located, nil
			}
		}

		if !l.clock.Now().Before(deadline) {
			return 0, ErrTimeout
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-l.clock.After(l.interval):
		}
	}
}

func (l *Locator) usable(windows []platform.Window, id platform.WindowID) bool {
	for _, w := range windows {
		if w.ID == id {
			return !w.Hidden
		}
	}
	return false
}
