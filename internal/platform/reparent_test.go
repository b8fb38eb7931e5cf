package platform_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/thordock/thordock/internal/platform"
	"github.com/thordock/thordock/internal/platform/platformtest"
)

func TestNewReparenterSelection(t *testing.T) {
	tests := []struct {
		name string
		mode string
		caps platform.Capabilities
		want string
	}{
		{"auto modern xorg", "auto", platform.Capabilities{Vendor: "The X.Org Foundation", Release: 12101011}, platform.StrategyDirect},
		{"auto old xorg", "auto", platform.Capabilities{Vendor: "The X.Org Foundation", Release: 11906000}, platform.StrategySafe},
		{"auto xwayland", "", platform.Capabilities{Vendor: "The X.Org Foundation", Release: 12101011, XWayland: true}, platform.StrategySafe},
		{"auto unknown vendor", "auto", platform.Capabilities{Vendor: "Other", Release: 1}, platform.StrategyDirect},
		{"forced direct", "direct", platform.Capabilities{XWayland: true}, platform.StrategyDirect},
		{"forced safe", "SAFE", platform.Capabilities{}, platform.StrategySafe},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := platform.NewReparenter(tt.mode, tt.caps)
			if err != nil {
				t.Fatalf("NewReparenter returned error: %v", err)
			}
			if r.Name() != tt.want {
				t.Fatalf("strategy = %q, want %q", r.Name(), tt.want)
			}
		})
	}
}

func TestNewReparenterRejectsUnknownMode(t *testing.T) {
	if _, err := platform.NewReparenter("sideways", platform.Capabilities{}); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestSafeReparenterUnmapsAroundReparent(t *testing.T) {
	ws := platformtest.New()
	win := ws.AddClient(10, "w", platform.Rect{Width: 100, Height: 100})
	container, _ := ws.CreateContainer("c", platform.Rect{Width: 200, Height: 200})

	r, _ := platform.NewReparenter("safe", platform.Capabilities{})
	if err := r.Attach(ws, win, container, platform.Point{X: 5, Y: 6}); err != nil {
		t.Fatalf("Attach returned error: %v", err)
	}
	if ws.ParentOf(win) != container {
		t.Fatalf("parent = %d, want %d", ws.ParentOf(win), container)
	}
	if !ws.IsMapped(win) {
		t.Fatalf("window should be mapped after safe attach")
	}

	calls := strings.Join(ws.Calls(), ";")
	unmap := strings.Index(calls, "unmap")
	reparent := strings.Index(calls, "reparent")
	remap := strings.LastIndex(calls, "map ")
	if unmap < 0 || reparent < unmap || remap < reparent {
		t.Fatalf("unexpected call order: %s", calls)
	}
}

func TestDirectReparenterReportsFailure(t *testing.T) {
	ws := platformtest.New()
	win := ws.AddClient(10, "w", platform.Rect{Width: 100, Height: 100})
	container, _ := ws.CreateContainer("c", platform.Rect{Width: 200, Height: 200})
	ws.FailReparent[win] = errors.New("bad match")

	r, _ := platform.NewReparenter("direct", platform.Capabilities{})
	if err := r.Attach(ws, win, container, platform.Point{}); err == nil {
		t.Fatalf("expected error")
	}
	if ws.ParentOf(win) != platformtest.RootID {
		t.Fatalf("window moved despite failure")
	}
}

func TestRectUnion(t *testing.T) {
	a := platform.Rect{X: 0, Y: 0, Width: 100, Height: 50}
	b := platform.Rect{X: 20, Y: 50, Width: 40, Height: 30}
	got := a.Union(b)
	want := platform.Rect{X: 0, Y: 0, Width: 100, Height: 80}
	if got != want {
		t.Fatalf("Union = %+v, want %+v", got, want)
	}
	if got := (platform.Rect{}).Union(b); got != b {
		t.Fatalf("empty union = %+v, want %+v", got, b)
	}
}
