package dock

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/thordock/thordock/internal/fault"
	"github.com/thordock/thordock/internal/platform"
	"github.com/thordock/thordock/internal/platform/platformtest"
	"github.com/thordock/thordock/internal/session"
)

type fixture struct {
	ws        *platformtest.System
	machine   *Machine
	sessions  map[session.Role]*session.Session
	windows   map[session.Role]platform.WindowID
	container platform.WindowID
	states    []State
}

func newFixture(t *testing.T, strategy string) *fixture {
	t.Helper()
	ws := platformtest.New()
	container, err := ws.CreateContainer("thordock", platform.Rect{Width: 1, Height: 1})
	if err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}
	r, err := platform.NewReparenter(strategy, platform.Capabilities{})
	if err != nil {
		t.Fatalf("NewReparenter: %v", err)
	}

	f := &fixture{
		ws:        ws,
		container: container,
		sessions:  map[session.Role]*session.Session{},
		windows:   map[session.Role]platform.WindowID{},
	}
	f.machine = New(ws, r, container, nil, func(s State) { f.states = append(f.states, s) })

	bounds := map[session.Role]platform.Rect{
		session.RoleTop:    {X: 40, Y: 30, Width: 1152, Height: 648},
		session.RoleBottom: {X: 900, Y: 700, Width: 650, Height: 566},
	}
	for i, role := range session.Roles {
		id := ws.AddClient(1000+i, string(role)+" [tok]", bounds[role])
		s := session.New(role, "0", "tok", time.Unix(0, 0))
		if _, err := s.SetWindow(id); err != nil {
			t.Fatalf("SetWindow: %v", err)
		}
		if err := s.MarkReady(); err != nil {
			t.Fatalf("MarkReady: %v", err)
		}
		f.sessions[role] = s
		f.windows[role] = id
	}
	return f
}

func (f *fixture) placement() Placement {
	return Placement{
		Container: platform.Rect{X: 100, Y: 50, Width: 1152, Height: 1214},
		Windows: map[session.Role]platform.Rect{
			session.RoleTop:    {X: 0, Y: 0, Width: 1152, Height: 648},
			session.RoleBottom: {X: 251, Y: 648, Width: 650, Height: 566},
		},
	}
}

func TestDockThenUndockRestoresWindows(t *testing.T) {
	for _, strategy := range []string{platform.StrategyDirect, platform.StrategySafe} {
		t.Run(strategy, func(t *testing.T) {
			f := newFixture(t, strategy)
			before := map[session.Role]platform.Decorations{}
			for role, id := range f.windows {
				before[role] = f.ws.DecorationsOf(id)
			}

			if err := f.machine.Dock(f.sessions, f.placement()); err != nil {
				t.Fatalf("Dock returned error: %v", err)
			}
			if f.machine.State() != Docked {
				t.Fatalf("state = %s, want docked", f.machine.State())
			}
			for role, id := range f.windows {
				if f.ws.ParentOf(id) != f.container {
					t.Fatalf("%s parent = %d, want container", role, f.ws.ParentOf(id))
				}
				if d := f.ws.DecorationsOf(id); d.Decoration != 0 || !d.Present {
					t.Fatalf("%s decorations not stripped: %+v", role, d)
				}
			}
			if !f.ws.IsMapped(f.container) {
				t.Fatalf("container hidden while docked")
			}
			bottom, _ := f.ws.Geometry(f.windows[session.RoleBottom])
			if want := (platform.Rect{X: 351, Y: 698, Width: 650, Height: 566}); bottom != want {
				t.Fatalf("bottom geometry = %+v, want %+v", bottom, want)
			}

			vanished, err := f.machine.Undock()
			if err != nil || len(vanished) != 0 {
				t.Fatalf("Undock = %v, %v", vanished, err)
			}
			if f.machine.State() != Undocked {
				t.Fatalf("state = %s, want undocked", f.machine.State())
			}
			for role, id := range f.windows {
				if f.ws.ParentOf(id) != platformtest.RootID {
					t.Fatalf("%s not back at root", role)
				}
				if got := f.ws.DecorationsOf(id); got != before[role] {
					t.Fatalf("%s decorations = %+v, want %+v", role, got, before[role])
				}
				if !f.ws.IsMapped(id) {
					t.Fatalf("%s unmapped after undock", role)
				}
			}
			after, _ := f.ws.Geometry(f.windows[session.RoleBottom])
			if after != bottom {
				t.Fatalf("undock moved bottom window: %+v -> %+v", bottom, after)
			}
			if f.ws.IsMapped(f.container) {
				t.Fatalf("container visible after undock")
			}

			want := []State{Docking, Docked, Undocking, Undocked}
			if len(f.states) != len(want) {
				t.Fatalf("states = %v, want %v", f.states, want)
			}
			for i := range want {
				if f.states[i] != want[i] {
					t.Fatalf("states = %v, want %v", f.states, want)
				}
			}
		})
	}
}

func TestDockRequiresReadySessions(t *testing.T) {
	f := newFixture(t, "direct")
	f.sessions[session.RoleBottom] = session.New(session.RoleBottom, "4", "tok2", time.Unix(0, 0))

	err := f.machine.Dock(f.sessions, f.placement())
	if !errors.Is(err, ErrSessionsNotReady) {
		t.Fatalf("Dock error = %v, want ErrSessionsNotReady", err)
	}
	if f.machine.State() != Undocked || len(f.states) != 0 {
		t.Fatalf("state changed on rejected dock: %v", f.states)
	}
}

func TestDockFailureRollsBackBothWindows(t *testing.T) {
	f := newFixture(t, "direct")
	top := f.windows[session.RoleTop]
	topBefore, _ := f.ws.Geometry(top)
	topDecor := f.ws.DecorationsOf(top)
	f.ws.FailReparent[f.windows[session.RoleBottom]] = errors.New("BadMatch")

	err := f.machine.Dock(f.sessions, f.placement())
	if !fault.Is(err, fault.ReparentFailure) {
		t.Fatalf("Dock error = %v, want ReparentFailure", err)
	}
	if f.machine.State() != Undocked {
		t.Fatalf("state = %s, want undocked", f.machine.State())
	}
	if f.ws.ParentOf(top) != platformtest.RootID {
		t.Fatalf("top window left in container")
	}
	if got, _ := f.ws.Geometry(top); got != topBefore {
		t.Fatalf("top geometry = %+v, want %+v", got, topBefore)
	}
	if got := f.ws.DecorationsOf(top); got != topDecor {
		t.Fatalf("top decorations = %+v, want %+v", got, topDecor)
	}
}

func TestTransitionInProgressRejectsCommands(t *testing.T) {
	f := newFixture(t, "direct")
	var nested error
	f.machine.onChange = func(s State) {
		if s == Docking {
			nested = f.machine.Dock(f.sessions, f.placement())
			_, uerr := f.machine.Undock()
			if !errors.Is(uerr, ErrTransitionInProgress) {
				t.Errorf("Undock during docking = %v", uerr)
			}
		}
	}
	if err := f.machine.Dock(f.sessions, f.placement()); err != nil {
		t.Fatalf("Dock returned error: %v", err)
	}
	if !errors.Is(nested, ErrTransitionInProgress) {
		t.Fatalf("nested Dock = %v, want ErrTransitionInProgress", nested)
	}
}

func TestForceUndockSkipsCrashedSessionAndKeepsSurvivorGeometry(t *testing.T) {
	f := newFixture(t, "direct")
	if err := f.machine.Dock(f.sessions, f.placement()); err != nil {
		t.Fatalf("Dock: %v", err)
	}
	bottom := f.windows[session.RoleBottom]
	docked, _ := f.ws.Geometry(bottom)

	f.sessions[session.RoleTop].Finish(session.Crashed, errors.New("exit 1"))
	f.ws.Remove(f.windows[session.RoleTop])

	vanished, forced := f.machine.ForceUndock()
	if len(vanished) != 0 || !forced {
		t.Fatalf("ForceUndock = %v, %v; want no vanished windows and forced", vanished, forced)
	}
	if f.machine.State() != Undocked {
		t.Fatalf("state = %s", f.machine.State())
	}
	if f.ws.ParentOf(bottom) != platformtest.RootID {
		t.Fatalf("survivor still docked")
	}
	if got, _ := f.ws.Geometry(bottom); got != docked {
		t.Fatalf("survivor geometry = %+v, want %+v", got, docked)
	}
}

func TestForceUndockWhenUndockedReportsNothingForced(t *testing.T) {
	f := newFixture(t, platform.StrategyDirect)
	released := 0
	f.machine.SetHooks(Hooks{Releasing: func() { released++ }})

	vanished, forced := f.machine.ForceUndock()
	if forced || len(vanished) != 0 {
		t.Fatalf("ForceUndock = %v, %v; want nothing", vanished, forced)
	}
	if released != 0 || len(f.states) != 0 {
		t.Fatalf("idle force undock ran hooks (%d) or changed state (%v)", released, f.states)
	}
}

// framingWM reports a window manager frame as the parent of win whenever
// win actually sits in the container, so the post-reparent check fails.
type framingWM struct {
	*platformtest.System
	win, container, frame platform.WindowID
}

func (w *framingWM) Parent(id platform.WindowID) (platform.WindowID, error) {
	p, err := w.System.Parent(id)
	if err == nil && id == w.win && p == w.container {
		return w.frame, nil
	}
	return p, err
}

func TestDockFailureAfterReparentReturnsWindowToRoot(t *testing.T) {
	for _, strategy := range []string{platform.StrategyDirect, platform.StrategySafe} {
		t.Run(strategy, func(t *testing.T) {
			f := newFixture(t, strategy)
			bottom := f.windows[session.RoleBottom]
			before := mustGeometry(t, f.ws, bottom)
			decor := f.ws.DecorationsOf(bottom)

			r, err := platform.NewReparenter(strategy, platform.Capabilities{})
			if err != nil {
				t.Fatalf("NewReparenter: %v", err)
			}
			ws := &framingWM{System: f.ws, win: bottom, container: f.container, frame: 9999}
			m := New(ws, r, f.container, nil, nil)

			err = m.Dock(f.sessions, f.placement())
			if !fault.Is(err, fault.ReparentFailure) || fault.RoleOf(err) != string(session.RoleBottom) {
				t.Fatalf("Dock error = %v, want bottom ReparentFailure", err)
			}
			if m.State() != Undocked {
				t.Fatalf("state = %s, want undocked", m.State())
			}
			for role, id := range f.windows {
				if p := f.ws.ParentOf(id); p != platformtest.RootID {
					t.Fatalf("%s parent = %d, want root", role, p)
				}
				if !f.ws.IsMapped(id) {
					t.Fatalf("%s left unmapped", role)
				}
			}
			if got := mustGeometry(t, f.ws, bottom); got != before {
				t.Fatalf("bottom geometry = %+v, want %+v", got, before)
			}
			if got := f.ws.DecorationsOf(bottom); got != decor {
				t.Fatalf("bottom decorations = %+v, want %+v", got, decor)
			}
		})
	}
}

func TestSessionEndingWhileDockingRollsBack(t *testing.T) {
	f := newFixture(t, platform.StrategyDirect)
	bottom := f.windows[session.RoleBottom]
	before := mustGeometry(t, f.ws, bottom)
	docked := false
	f.machine.SetHooks(Hooks{Docked: func(map[session.Role]*session.Handle) { docked = true }})

	f.ws.SetBefore(func(op string, id platform.WindowID) {
		if op == "map" && id == f.container {
			f.sessions[session.RoleTop].Finish(session.Crashed, errors.New("exit 1"))
		}
	})
	err := f.machine.Dock(f.sessions, f.placement())
	if !fault.Is(err, fault.CrashDuringDock) || fault.RoleOf(err) != string(session.RoleTop) {
		t.Fatalf("Dock error = %v, want top CrashDuringDock", err)
	}
	if docked {
		t.Fatal("sync started for a half-dead pair")
	}
	if f.machine.State() != Undocked {
		t.Fatalf("state = %s, want undocked", f.machine.State())
	}
	if p := f.ws.ParentOf(bottom); p != platformtest.RootID {
		t.Fatalf("survivor parent = %d, want root", p)
	}
	if got := mustGeometry(t, f.ws, bottom); got != before {
		t.Fatalf("survivor geometry = %+v, want %+v", got, before)
	}
	if f.ws.IsMapped(f.container) {
		t.Fatal("container left visible")
	}
	if _, forced := f.machine.ForceUndock(); forced {
		t.Fatal("ForceUndock after rollback reported a forced undock")
	}
}

func TestHooksRunInsideTransitions(t *testing.T) {
	f := newFixture(t, platform.StrategyDirect)
	var log []string
	f.machine.SetHooks(Hooks{
		Docked: func(handles map[session.Role]*session.Handle) {
			if f.machine.gate.TryLock() {
				f.machine.gate.Unlock()
				t.Error("Docked hook ran without the gate")
			}
			log = append(log, fmt.Sprintf("docked %d %s", len(handles), f.machine.State()))
		},
		Releasing: func() {
			log = append(log, "releasing "+f.machine.State().String())
		},
	})

	if err := f.machine.Dock(f.sessions, f.placement()); err != nil {
		t.Fatalf("Dock: %v", err)
	}
	if _, err := f.machine.Undock(); err != nil {
		t.Fatalf("Undock: %v", err)
	}
	if err := f.machine.Dock(f.sessions, f.placement()); err != nil {
		t.Fatalf("Dock: %v", err)
	}
	f.machine.ForceUndock()

	want := []string{"docked 2 docked", "releasing docked", "docked 2 docked", "releasing docked"}
	if fmt.Sprint(log) != fmt.Sprint(want) {
		t.Fatalf("hook log = %v, want %v", log, want)
	}
}

func TestFitContainerDoesNotWaitForTransition(t *testing.T) {
	f := newFixture(t, platform.StrategyDirect)
	if err := f.machine.Dock(f.sessions, f.placement()); err != nil {
		t.Fatalf("Dock: %v", err)
	}
	done := make(chan error, 1)
	f.machine.onChange = func(s State) {
		if s != Undocking {
			return
		}
		// A refit reported by a sync apply while the pair is coming apart.
		go func() { done <- f.machine.FitContainer(10, 10) }()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("FitContainer: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("FitContainer blocked on the transition")
		}
	}
	if _, err := f.machine.Undock(); err != nil {
		t.Fatalf("Undock: %v", err)
	}
	if got := mustGeometry(t, f.ws, f.container); got.Width == 10 {
		t.Fatalf("container resized during undock: %+v", got)
	}
}

func TestUndockReportsVanishedWindows(t *testing.T) {
	f := newFixture(t, "direct")
	if err := f.machine.Dock(f.sessions, f.placement()); err != nil {
		t.Fatalf("Dock: %v", err)
	}
	f.ws.Remove(f.windows[session.RoleBottom])

	vanished, err := f.machine.Undock()
	if err != nil {
		t.Fatalf("Undock returned error: %v", err)
	}
	if len(vanished) != 1 || vanished[0] != session.RoleBottom {
		t.Fatalf("vanished = %v, want [bottom]", vanished)
	}
	if f.machine.State() != Undocked {
		t.Fatalf("state = %s", f.machine.State())
	}
}

func TestUndockWhenUndockedIsNoop(t *testing.T) {
	f := newFixture(t, "direct")
	if _, err := f.machine.Undock(); err != nil {
		t.Fatalf("Undock returned error: %v", err)
	}
	if len(f.states) != 0 {
		t.Fatalf("states = %v, want none", f.states)
	}
}

func TestFitContainerOnlyWhileDocked(t *testing.T) {
	f := newFixture(t, platform.StrategyDirect)
	if err := f.machine.FitContainer(800, 600); err != nil {
		t.Fatalf("FitContainer while undocked: %v", err)
	}
	if got, _ := f.ws.Geometry(f.container); got.Width != 1 {
		t.Fatalf("container resized while undocked: %+v", got)
	}

	if err := f.machine.Dock(f.sessions, f.placement()); err != nil {
		t.Fatalf("Dock: %v", err)
	}
	if err := f.machine.FitContainer(800, 600); err != nil {
		t.Fatalf("FitContainer: %v", err)
	}
	if got, want := mustGeometry(t, f.ws, f.container), (platform.Rect{X: 100, Y: 50, Width: 800, Height: 600}); got != want {
		t.Fatalf("container = %+v, want %+v", got, want)
	}
}

func mustGeometry(t *testing.T, ws *platformtest.System, id platform.WindowID) platform.Rect {
	t.Helper()
	r, err := ws.Geometry(id)
	if err != nil {
		t.Fatalf("Geometry(%d): %v", id, err)
	}
	return r
}
