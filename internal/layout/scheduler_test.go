package layout

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/thordock/thordock/internal/clock"
	"github.com/thordock/thordock/internal/fault"
	"github.com/thordock/thordock/internal/platform"
	"github.com/thordock/thordock/internal/platform/platformtest"
	"github.com/thordock/thordock/internal/session"
)

type recorder struct {
	mu      sync.Mutex
	applied []Spec
	failed  map[session.Role][]error
}

func (r *recorder) SyncApplied(spec Spec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = append(r.applied, spec)
}

func (r *recorder) SyncApplyFailed(role session.Role, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failed == nil {
		r.failed = map[session.Role][]error{}
	}
	r.failed[role] = append(r.failed[role], err)
}

func (r *recorder) appliedSpecs() []Spec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Spec(nil), r.applied...)
}

type harness struct {
	ws        *platformtest.System
	clk       *clock.Fake
	rec       *recorder
	sched     *Scheduler
	container platform.Rect
	sessions  map[session.Role]*session.Session
	windows   map[session.Role]platform.WindowID
}

// newHarness docks two windows into a container at (100, 50) by hand and
// attaches them to a scheduler.
func newHarness(t *testing.T, debounce, minInterval time.Duration) *harness {
	t.Helper()
	h := &harness{
		ws:        platformtest.New(),
		clk:       clock.NewFake(time.Unix(1000, 0)),
		rec:       &recorder{},
		container: platform.Rect{X: 100, Y: 50, Width: 2000, Height: 2000},
		sessions:  map[session.Role]*session.Session{},
		windows:   map[session.Role]platform.WindowID{},
	}
	containerID, _ := h.ws.CreateContainer("c", h.container)
	h.sched = NewScheduler(h.ws, Options{
		Clock:       h.clk,
		Debounce:    debounce,
		MinInterval: minInterval,
		Initial:     Spec{Scale: DefaultScale},
		Reporter:    h.rec,
	})
	for i, role := range session.Roles {
		id := h.ws.AddClient(10+i, string(role), platform.Rect{Width: 10, Height: 10})
		if err := h.ws.Reparent(id, containerID, platform.Point{}); err != nil {
			t.Fatalf("Reparent: %v", err)
		}
		s := session.New(role, "0", "tok", h.clk.Now())
		handle, err := s.SetWindow(id)
		if err != nil {
			t.Fatalf("SetWindow: %v", err)
		}
		h.sched.Attach(role, handle)
		h.sessions[role] = s
		h.windows[role] = id
	}
	return h
}

func TestApplyNowGeometryIsContainerOriginPlusOffset(t *testing.T) {
	specs := []Spec{
		{TX: 0, TY: 0, BX: 251, BY: 648, Scale: 0.6},
		{TX: 100, TY: 50, BX: 300, BY: 700, Scale: 0.3},
		{TX: 7, TY: 13, BX: 0, BY: 1080, Scale: 1.0},
		{TX: 33, TY: 0, BX: 12, BY: 400, Scale: 0.45},
	}
	h := newHarness(t, DefaultDebounce, DefaultMinInterval)
	bases := DefaultBaseSizes()

	for _, spec := range specs {
		h.sched.ApplyNow(spec)
		for _, role := range session.Roles {
			got, err := h.ws.Geometry(h.windows[role])
			if err != nil {
				t.Fatalf("Geometry: %v", err)
			}
			off := spec.Offset(role)
			size := bases[role].Scaled(spec.Scale)
			want := platform.Rect{
				X:      h.container.X + off.X,
				Y:      h.container.Y + off.Y,
				Width:  size.Width,
				Height: size.Height,
			}
			if got != want {
				t.Fatalf("%s after %s: geometry %+v, want %+v", role, spec, got, want)
			}
		}
	}
	if n := len(h.rec.appliedSpecs()); n != len(specs) {
		t.Fatalf("applied %d times, want %d", n, len(specs))
	}
	if h.sched.Phase() != Idle {
		t.Fatalf("phase = %s, want idle", h.sched.Phase())
	}
}

func TestSubmitCoalescesRapidChanges(t *testing.T) {
	h := newHarness(t, 150*time.Millisecond, 50*time.Millisecond)

	h.sched.Submit(Spec{TX: 0, Scale: 0.6})
	h.clk.Advance(20 * time.Millisecond)
	h.sched.Submit(Spec{TX: 10, Scale: 0.6})
	h.clk.Advance(20 * time.Millisecond)
	h.sched.Submit(Spec{TX: 20, Scale: 0.6})
	if h.sched.Phase() != PendingApply {
		t.Fatalf("phase = %s, want pending", h.sched.Phase())
	}
	if got := h.ws.CountCalls("moveresize"); got != 0 {
		t.Fatalf("applied before debounce elapsed: %d calls", got)
	}

	h.clk.Advance(time.Second)

	applied := h.rec.appliedSpecs()
	if len(applied) != 1 || applied[0].TX != 20 {
		t.Fatalf("applied = %+v, want exactly one with tx 20", applied)
	}
	top, _ := h.ws.Geometry(h.windows[session.RoleTop])
	if top.X != h.container.X+20 {
		t.Fatalf("top x = %d, want %d", top.X, h.container.X+20)
	}
	if h.sched.Phase() != Idle {
		t.Fatalf("phase = %s, want idle", h.sched.Phase())
	}
}

func TestSubmitThrottlesApplies(t *testing.T) {
	h := newHarness(t, 10*time.Millisecond, 200*time.Millisecond)

	h.sched.Submit(Spec{TX: 1, Scale: 0.6})
	h.clk.Advance(15 * time.Millisecond)
	if n := len(h.rec.appliedSpecs()); n != 1 {
		t.Fatalf("first apply count = %d, want 1", n)
	}

	h.sched.Submit(Spec{TX: 2, Scale: 0.6})
	h.clk.Advance(50 * time.Millisecond)
	if n := len(h.rec.appliedSpecs()); n != 1 {
		t.Fatalf("second apply ran inside the throttle window (%d applies)", n)
	}
	if h.sched.Phase() != PendingApply {
		t.Fatalf("phase = %s, want pending while throttled", h.sched.Phase())
	}

	h.clk.Advance(400 * time.Millisecond)
	applied := h.rec.appliedSpecs()
	if len(applied) != 2 || applied[1].TX != 2 {
		t.Fatalf("applied = %+v, want second apply with tx 2", applied)
	}
}

func TestCancelDropsPendingApply(t *testing.T) {
	h := newHarness(t, 150*time.Millisecond, 50*time.Millisecond)
	h.sched.Submit(Spec{TX: 5, Scale: 0.6})
	h.sched.Cancel()
	h.clk.Advance(time.Second)

	if n := len(h.rec.appliedSpecs()); n != 0 {
		t.Fatalf("cancelled apply ran %d times", n)
	}
	if h.sched.Phase() != Idle {
		t.Fatalf("phase = %s, want idle", h.sched.Phase())
	}
	if got := h.sched.Latest().TX; got != 5 {
		t.Fatalf("latest tx = %d, want 5 kept after cancel", got)
	}
}

func TestApplyNowSupersedesPendingSubmit(t *testing.T) {
	h := newHarness(t, 150*time.Millisecond, 50*time.Millisecond)
	h.sched.Submit(Spec{TX: 5, Scale: 0.6})
	h.sched.ApplyNow(Spec{TX: 9, Scale: 0.6})
	h.clk.Advance(time.Second)

	applied := h.rec.appliedSpecs()
	if len(applied) != 1 || applied[0].TX != 9 {
		t.Fatalf("applied = %+v, want only tx 9", applied)
	}
}

func (r *recorder) failures(role session.Role) []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.failed[role]...)
}

func TestApplyReportsReleasedHandleAndVanishedWindow(t *testing.T) {
	h := newHarness(t, 150*time.Millisecond, 50*time.Millisecond)

	h.sessions[session.RoleTop].Finish(session.Crashed, errors.New("gone"))
	h.sched.ApplyNow(Spec{TX: 1, BX: 2, BY: 3, Scale: 0.6})
	errs := h.rec.failures(session.RoleTop)
	if len(errs) != 1 || !fault.Is(errs[0], fault.SyncApplyFailure) {
		t.Fatalf("top failures = %v, want one SyncApplyFailure", errs)
	}
	if !errors.Is(errs[0], session.ErrHandleReleased) {
		t.Fatalf("top failure cause = %v, want ErrHandleReleased", errs[0])
	}
	bottom, _ := h.ws.Geometry(h.windows[session.RoleBottom])
	if bottom.X != h.container.X+2 {
		t.Fatalf("bottom not applied: %+v", bottom)
	}
	if n := len(h.rec.appliedSpecs()); n != 1 {
		t.Fatalf("applied = %d, want 1 for the surviving window", n)
	}

	h.ws.Remove(h.windows[session.RoleBottom])
	h.sched.ApplyNow(Spec{TX: 1, BX: 4, BY: 3, Scale: 0.6})
	errs = h.rec.failures(session.RoleBottom)
	if len(errs) != 1 || !fault.Is(errs[0], fault.SyncApplyFailure) {
		t.Fatalf("bottom failures = %v, want one SyncApplyFailure", errs)
	}
	if !errors.Is(errs[0], platform.ErrWindowGone) {
		t.Fatalf("failure cause = %v, want ErrWindowGone", errs[0])
	}
}

func TestStaleDebouncedApplyNeverOverwritesNewerApplyNow(t *testing.T) {
	h := newHarness(t, 150*time.Millisecond, 50*time.Millisecond)
	top := h.windows[session.RoleTop]

	// Hold the first apply inside MoveResize so later applies queue up.
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.ws.SetBefore(func(op string, id platform.WindowID) {
		if op == "moveresize" && id == top {
			once.Do(func() {
				close(entered)
				<-release
			})
		}
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.sched.ApplyNow(Spec{TX: 1, Scale: 0.6})
	}()
	<-entered

	h.sched.Submit(Spec{TX: 2, Scale: 0.6})
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.clk.Advance(time.Second)
	}()
	// The debounced apply has passed its checks once the phase flips.
	deadline := time.Now().Add(2 * time.Second)
	for h.sched.Phase() != Applying {
		if time.Now().After(deadline) {
			t.Fatal("debounced apply never started")
		}
		time.Sleep(time.Millisecond)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.sched.ApplyNow(Spec{TX: 3, Scale: 0.6})
	}()
	// Let the newer ApplyNow bump the generation before the queue drains.
	for h.sched.Latest().TX != 3 {
		if time.Now().After(deadline) {
			t.Fatal("ApplyNow never recorded its spec")
		}
		time.Sleep(time.Millisecond)
	}
	close(release)
	wg.Wait()

	for _, spec := range h.rec.appliedSpecs() {
		if spec.TX == 2 {
			t.Fatalf("stale spec applied: %+v", h.rec.appliedSpecs())
		}
	}
	got, _ := h.ws.Geometry(top)
	if got.X != h.container.X+3 {
		t.Fatalf("top x = %d, want %d", got.X, h.container.X+3)
	}
	if h.sched.Phase() != Idle {
		t.Fatalf("phase = %s, want idle", h.sched.Phase())
	}
}

func TestSubmitWithoutAttachedWindowsRecordsSpec(t *testing.T) {
	h := newHarness(t, 150*time.Millisecond, 50*time.Millisecond)
	h.sched.DetachAll()
	h.sched.Submit(Spec{TX: 42, Scale: 0.7})
	h.clk.Advance(time.Second)

	if n := len(h.rec.appliedSpecs()); n != 0 {
		t.Fatalf("applied with no windows attached")
	}
	if h.sched.Latest().TX != 42 {
		t.Fatalf("latest spec not recorded")
	}
}
