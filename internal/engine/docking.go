package engine

import (
	"errors"

	"github.com/thordock/thordock/internal/dock"
	"github.com/thordock/thordock/internal/events"
	"github.com/thordock/thordock/internal/fault"
	"github.com/thordock/thordock/internal/layout"
	"github.com/thordock/thordock/internal/platform"
	"github.com/thordock/thordock/internal/screenshot"
	"github.com/thordock/thordock/internal/session"
)

// placement computes where the container and both windows go for spec.
// The container keeps its configured origin.
func (e *Engine) placement(spec layout.Spec) dock.Placement {
	rects := layout.Compute(spec, e.scheduler.Bases())
	size := layout.ContainerSize(rects)
	return dock.Placement{
		Container: platform.Rect{X: e.cfg.Container.X, Y: e.cfg.Container.Y, Width: size.Width, Height: size.Height},
		Windows:   rects,
	}
}

func (e *Engine) snapshotSessions() map[session.Role]*session.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[session.Role]*session.Session, len(e.sessions))
	for role, s := range e.sessions {
		out[role] = s
	}
	return out
}

func (e *Engine) dockPair() {
	err := e.dock.Dock(e.snapshotSessions(), e.placement(e.scheduler.Latest()))
	switch {
	case err == nil:
		e.metrics.DockTransition("docked")
	case errors.Is(err, dock.ErrTransitionInProgress), errors.Is(err, dock.ErrSessionsNotReady):
		e.logger.Info("dock rejected", "error", err)
		e.metrics.DockTransition("rejected")
		e.publish(events.Event{Kind: events.Fault, Message: err.Error()})
	default:
		e.logger.Warn("dock failed", "error", err)
		e.metrics.DockTransition("failed")
		e.publishFault(err, fault.RoleOf(err))
	}
}

// startSync runs inside the dock transition once the pair is Docked.
func (e *Engine) startSync(handles map[session.Role]*session.Handle) {
	for role, h := range handles {
		if !h.Released() {
			e.scheduler.Attach(role, h)
		}
	}
	// Apply whatever was requested while undocked.
	e.scheduler.ApplyNow(e.scheduler.Latest())
}

// stopSync runs inside the dock transition before the windows are released.
func (e *Engine) stopSync() {
	e.scheduler.Cancel()
	e.scheduler.DetachAll()
}

func (e *Engine) undockPair() {
	vanished, err := e.dock.Undock()
	if err != nil {
		e.logger.Info("undock rejected", "error", err)
		e.metrics.DockTransition("rejected")
		e.publish(events.Event{Kind: events.Fault, Message: err.Error()})
		return
	}
	e.metrics.DockTransition("undocked")
	for _, role := range vanished {
		if sess, proc := e.current(role); sess != nil {
			if e.crash(sess, fault.Newf(fault.WindowVanished, string(role), "window vanished during undock")) {
				e.stopProcess(role, proc)
			}
		}
	}
}

func (e *Engine) loadPreset(name string) {
	if e.presets == nil {
		e.publish(events.Event{Kind: events.Fault, Message: "no preset store configured"})
		return
	}
	o, err := e.presets.Get(name)
	if err != nil {
		e.logger.Info("preset load failed", "preset", name, "error", err)
		e.publish(events.Event{Kind: events.Fault, Message: err.Error()})
		return
	}
	spec := e.scheduler.Latest().WithOffsets(o.TX, o.TY, o.BX, o.BY)
	e.logger.Info("preset loaded", "preset", name, "layout", spec.String())
	e.scheduler.ApplyNow(spec)
}

func (e *Engine) screenshot() {
	var sources []screenshot.Source
	for _, role := range session.Roles {
		if sess, _ := e.current(role); sess != nil {
			sources = append(sources, screenshot.Source{Role: role, Handle: sess.Handle()})
		}
	}

	res, err := e.shots.Capture(e.dock.State() == dock.Docked, sources)
	if err != nil {
		e.metrics.Screenshot(false)
		e.publish(events.Event{
			Kind:    events.ScreenshotFailed,
			Fault:   string(fault.KindOf(err)),
			Message: err.Error(),
		})
		return
	}
	e.metrics.Screenshot(true)
	shot := &events.Screenshot{
		Width:     res.Bounds.Width,
		Height:    res.Bounds.Height,
		Bytes:     len(res.PNG),
		Path:      res.Path,
		Clipboard: "image",
	}
	if res.ClipboardErr != nil {
		shot.Clipboard = "unavailable: " + res.ClipboardErr.Error()
	}
	e.publish(events.Event{Kind: events.ScreenshotCaptured, Screenshot: shot})
}

// SyncApplied implements layout.Reporter. The container is refitted so a
// scale change never clips either window.
func (e *Engine) SyncApplied(spec layout.Spec) {
	e.metrics.SyncApplied()
	size := layout.ContainerSize(layout.Compute(spec, e.scheduler.Bases()))
	if err := e.dock.FitContainer(size.Width, size.Height); err != nil {
		e.logger.Warn("failed to resize container", "error", err)
	}
	e.publish(events.Event{Kind: events.SyncApplied, Layout: eventLayout(spec)})
}

// SyncApplyFailed implements layout.Reporter. A window that no longer
// exists crashes its session; other failures are reported only. The crash
// runs on its own goroutine because the apply may be running inside a dock
// transition, and crash handling waits for that transition to finish.
func (e *Engine) SyncApplyFailed(role session.Role, err error) {
	e.metrics.SyncApplyFailed(string(role))
	e.publish(events.Event{
		Kind:    events.SyncApplyFailed,
		Role:    string(role),
		Fault:   string(fault.SyncApplyFailure),
		Message: err.Error(),
	})
	if !errors.Is(err, platform.ErrWindowGone) {
		return
	}
	sess, proc := e.current(role)
	if sess == nil {
		return
	}
	go func() {
		if e.crash(sess, fault.New(fault.WindowVanished, string(role), err)) {
			e.stopProcess(role, proc)
		}
	}()
}

func eventLayout(s layout.Spec) *events.Layout {
	return &events.Layout{TX: s.TX, TY: s.TY, BX: s.BX, BY: s.BY, Scale: s.Scale}
}
