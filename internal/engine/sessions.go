package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thordock/thordock/internal/config"
	"github.com/thordock/thordock/internal/dock"
	"github.com/thordock/thordock/internal/fault"
	"github.com/thordock/thordock/internal/locator"
	"github.com/thordock/thordock/internal/platform"
	"github.com/thordock/thordock/internal/session"
	"github.com/thordock/thordock/internal/supervisor"
)

func (e *Engine) screen(role session.Role) config.Screen {
	if role == session.RoleBottom {
		return e.cfg.Bottom
	}
	return e.cfg.Top
}

// launchSpec renders the command line for a new session of role.
func (e *Engine) launchSpec(sess *session.Session, scale float64) supervisor.Spec {
	scr := e.screen(sess.Role)
	width := BaseSizes(e.cfg)[sess.Role].Scaled(scale).Width
	opts := supervisor.LaunchOptions{
		Serial:       e.serial,
		DisplayID:    sess.DisplayID,
		Title:        fmt.Sprintf("%s [%s]", scr.TitlePrefix, sess.Token),
		MaxFPS:       e.cfg.MaxFPS,
		RenderDriver: e.cfg.RenderDriver,
		WindowWidth:  width,
		BitrateMbps:  supervisor.Bitrate(scr.BitrateMin, scr.BitrateScale, scale),
		Audio:        scr.Audio,
		Extra:        scr.ExtraArgs,
	}
	return supervisor.Spec{Role: string(sess.Role), Binary: e.cfg.ScrcpyPath, Args: opts.Args()}
}

// launch starts a new session for every role whose session is missing or
// has ended. Live sessions are left alone.
func (e *Engine) launch(roles []session.Role) {
	for _, role := range roles {
		if cur, _ := e.current(role); cur != nil && !cur.Status().Terminal() {
			e.logger.Info("session already running", "role", role, "status", cur.Status())
			continue
		}
		e.launchRole(role)
	}
}

func (e *Engine) launchRole(role session.Role) {
	sess := session.New(role, e.screen(role).DisplayID, e.newToken(), e.clock.Now())
	ctx, cancel := context.WithCancel(e.ctx)
	sess.SetLocateCancel(cancel)

	e.mu.Lock()
	e.sessions[role] = sess
	delete(e.procs, role)
	e.mu.Unlock()
	e.publishStatus(sess)

	spec := e.launchSpec(sess, e.scheduler.Latest().Scale)
	logger := e.logger.With("role", role, "session", sess.Token)
	logger.Info("launching", "binary", spec.Binary, "display_id", sess.DisplayID)

	proc, err := e.launcher.Launch(spec, func(info supervisor.ExitInfo) { e.processExited(sess, info) })
	if err != nil {
		e.crash(sess, fault.New(fault.ProcessLaunchFailure, string(role), err))
		return
	}
	sess.SetPID(proc.PID())

	e.mu.Lock()
	if e.sessions[role] == sess {
		e.procs[role] = proc
	}
	e.mu.Unlock()

	go e.locate(ctx, sess, proc)
}

func (e *Engine) locate(ctx context.Context, sess *session.Session, proc Process) {
	role := string(sess.Role)
	target := locator.Target{PID: proc.PID(), Token: sess.Token}
	_, err := e.locator.Locate(ctx, target, func(w platform.Window) error {
		if _, err := sess.SetWindow(w.ID); err != nil {
			return err
		}
		e.logger.Info("window located", "role", role, "window_id", w.ID)
		e.publishStatus(sess)
		return nil
	})
	switch {
	case err == nil:
	case ctx.Err() != nil, errors.Is(err, session.ErrIllegalTransition):
		// Session ended while polling.
		return
	default:
		// ErrTimeout, or the window list kept failing until the deadline.
		if e.crash(sess, fault.New(fault.WindowLocateTimeout, role, err)) {
			e.stopProcess(sess.Role, proc)
		}
		return
	}

	if err := sess.MarkReady(); err != nil {
		return
	}
	e.logger.Info("session ready", "role", role)
	e.publishStatus(sess)

	if e.cfg.AutoDock && e.bothReady() {
		if err := e.Dock(); err != nil {
			e.logger.Warn("auto-dock not queued", "error", err)
		}
	}
}

func (e *Engine) bothReady() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, role := range session.Roles {
		s := e.sessions[role]
		if s == nil || s.Status() != session.Ready {
			return false
		}
	}
	return true
}

func (e *Engine) processExited(sess *session.Session, info supervisor.ExitInfo) {
	if info.Requested {
		if sess.Finish(session.Terminated, nil) {
			e.scheduler.Detach(sess.Role)
			e.publishStatus(sess)
		}
		return
	}

	cause := fmt.Errorf("process exited with code %d", info.Code)
	if info.Err != nil {
		cause = fmt.Errorf("process exited: %w", info.Err)
	}
	if info.Tail != "" {
		e.logger.Debug("process output tail", "role", sess.Role, "tail", info.Tail)
	}
	kind := fault.WindowVanished
	if sess.Status() == session.Launching {
		kind = fault.ProcessLaunchFailure
	}
	e.crash(sess, fault.New(kind, string(sess.Role), cause))
}

// crash ends sess with cause. If the pair was docked the survivor is
// released at its current geometry and CrashDuringDock is reported. It
// returns false when the session had already ended.
func (e *Engine) crash(sess *session.Session, cause error) bool {
	if !sess.Finish(session.Crashed, cause) {
		return false
	}
	role := string(sess.Role)
	e.scheduler.Detach(sess.Role)
	e.logger.Warn("session crashed", "role", role, "error", cause)
	e.metrics.SessionCrashed(role, string(fault.KindOf(cause)))
	e.publishStatus(sess)
	e.publishFault(cause, role)

	if e.dock.State() == dock.Undocked {
		return true
	}
	vanished, forced := e.dock.ForceUndock()
	if !forced {
		// The transition in progress rolled back on its own.
		return true
	}
	e.metrics.DockTransition("forced")
	e.publishFault(fault.New(fault.CrashDuringDock, role, cause), role)

	for _, r := range vanished {
		if other, proc := e.current(r); other != nil {
			if e.crash(other, fault.Newf(fault.WindowVanished, string(r), "window vanished during undock")) {
				e.stopProcess(r, proc)
			}
		}
	}
	return true
}

// terminateSlack is added to twice the grace period when bounding a
// background Terminate.
const terminateSlack = time.Second

// stopProcess terminates proc in the background.
func (e *Engine) stopProcess(role session.Role, proc Process) {
	if proc == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*e.cfg.TerminateGrace()+terminateSlack)
		defer cancel()
		if err := proc.Terminate(ctx); err != nil {
			e.logger.Warn("terminate failed", "role", role, "error", err)
		}
	}()
}

// terminate ends the given sessions. A docked pair is undocked first so
// the surviving window is never left inside the container.
func (e *Engine) terminate(roles []session.Role) {
	if e.dock.State() == dock.Docked {
		e.undockPair()
	}
	for _, role := range roles {
		sess, proc := e.current(role)
		if sess == nil || !sess.Finish(session.Terminated, nil) {
			continue
		}
		e.scheduler.Detach(role)
		e.logger.Info("session terminated", "role", role)
		e.publishStatus(sess)
		e.stopProcess(role, proc)
	}
}

// CheckWindows crashes every located session whose window no longer
// exists. It is the periodic window watch.
func (e *Engine) CheckWindows() {
	for _, role := range session.Roles {
		sess, proc := e.current(role)
		if sess == nil {
			continue
		}
		if st := sess.Status(); st != session.Located && st != session.Ready {
			continue
		}
		h := sess.Handle()
		if h == nil {
			continue
		}
		err := h.Do(func(id platform.WindowID) error {
			_, err := e.ws.Geometry(id)
			return err
		})
		if errors.Is(err, platform.ErrWindowGone) {
			if e.crash(sess, fault.New(fault.WindowVanished, string(role), err)) {
				e.stopProcess(role, proc)
			}
		}
	}
}
