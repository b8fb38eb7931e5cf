// Package hotkeys binds the global dock toggle and screenshot shortcuts.
package hotkeys

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/keybind"
	"github.com/BurntSushi/xgbutil/xevent"

	"github.com/thordock/thordock/internal/config"
	"github.com/thordock/thordock/internal/x11"
)

// Actions are what the shortcuts trigger. Implementations should queue
// work and return quickly; callbacks run on the X event loop.
type Actions interface {
	ToggleDock() error
	Screenshot() error
}

// Handler manages global keyboard shortcuts.
type Handler struct {
	xu      *xgbutil.XUtil
	root    xproto.Window
	actions Actions
	logger  *slog.Logger
}

var ignoreModsOnce sync.Once

// NewHandler creates a hotkey handler on conn.
func NewHandler(conn *x11.Connection, actions Actions, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	ignoreModsOnce.Do(func() {
		configureIgnoreMods(conn.XUtil)
	})
	return &Handler{
		xu:      conn.XUtil,
		root:    conn.Root,
		actions: actions,
		logger:  logger,
	}
}

// Register binds every non-empty shortcut in cfg.
func (h *Handler) Register(cfg config.HotkeyConfig) error {
	bindings := []struct {
		name string
		keys string
		run  func() error
	}{
		{"dock_toggle", cfg.DockToggle, h.actions.ToggleDock},
		{"screenshot", cfg.Screenshot, h.actions.Screenshot},
	}
	for _, b := range bindings {
		if b.keys == "" {
			continue
		}
		name, run := b.name, b.run
		err := h.RegisterFunc(b.keys, func() {
			h.logger.Debug("hotkey triggered", "action", name)
			if err := run(); err != nil {
				h.logger.Warn("hotkey action failed", "action", name, "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("register %s hotkey %q: %w", name, b.keys, err)
		}
		h.logger.Info("hotkey registered", "action", name, "keys", b.keys)
	}
	return nil
}

// RegisterFunc registers an arbitrary hotkey callback.
func (h *Handler) RegisterFunc(keySequence string, callback func()) error {
	return keybind.KeyPressFun(func(xu *xgbutil.XUtil, ev xevent.KeyPressEvent) {
		callback()
	}).Connect(h.xu, h.root, keySequence, true)
}

func configureIgnoreMods(xu *xgbutil.XUtil) {
	xevent.IgnoreMods = ignoreMasks(
		uint16(xproto.ModMaskLock),
		modMaskForKeysym(xu, "Num_Lock"),
		modMaskForKeysym(xu, "Scroll_Lock"),
	)
}

// ignoreMasks returns every combination of the lock modifiers, including
// the empty mask, so a shortcut fires whatever locks are on. Zero or
// duplicate masks are skipped.
func ignoreMasks(caps, numLock, scrollLock uint16) []uint16 {
	var base []uint16
	for _, m := range []uint16{caps, numLock, scrollLock} {
		if m == 0 {
			continue
		}
		dup := false
		for _, b := range base {
			dup = dup || b == m
		}
		if !dup {
			base = append(base, m)
		}
	}

	masks := make([]uint16, 0, 1<<len(base))
	for subset := 0; subset < (1 << len(base)); subset++ {
		var mask uint16
		for bit := range base {
			if subset&(1<<bit) != 0 {
				mask |= base[bit]
			}
		}
		masks = append(masks, mask)
	}
	return masks
}

func modMaskForKeysym(xu *xgbutil.XUtil, keysym string) uint16 {
	for _, keycode := range keybind.StrToKeycodes(xu, keysym) {
		if mask := keybind.ModGet(xu, keycode); mask != 0 {
			return mask
		}
	}
	return 0
}
