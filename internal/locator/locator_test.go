package locator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/thordock/thordock/internal/clock"
	"github.com/thordock/thordock/internal/platform"
	"github.com/thordock/thordock/internal/platform/platformtest"
)

type locateResult struct {
	id  platform.WindowID
	err error
}

func startLocate(ctx context.Context, l *Locator, target Target, found func(platform.Window) error) <-chan locateResult {
	out := make(chan locateResult, 1)
	go func() {
		id, err := l.Locate(ctx, target, found)
		out <- locateResult{id: id, err: err}
	}()
	return out
}

// drive advances the fake clock one poll at a time until Locate returns.
func drive(t *testing.T, clk *clock.Fake, step time.Duration, done <-chan locateResult, between func(poll int)) locateResult {
	t.Helper()
	limit := time.Now().Add(5 * time.Second)
	poll := 0
	for {
		select {
		case r := <-done:
			return r
		default:
		}
		if time.Now().After(limit) {
			t.Fatalf("Locate did not return")
		}
		if clk.Pending() == 0 {
			time.Sleep(time.Millisecond)
			continue
		}
		poll++
		if between != nil {
			between(poll)
		}
		clk.Advance(step)
	}
}

func TestLocateFindsMatchingWindowAfterStability(t *testing.T) {
	ws := platformtest.New()
	ws.AddClient(500, "Other [zzz]", platform.Rect{Width: 10, Height: 10})
	want := ws.AddClient(500, "Top [tok-1]", platform.Rect{Width: 10, Height: 10})
	clk := clock.NewFake(time.Unix(0, 0))
	l := New(ws, clk, 100*time.Millisecond, time.Second, nil)

	var foundID platform.WindowID
	done := startLocate(context.Background(), l, Target{PID: 500, Token: "tok-1"}, func(w platform.Window) error {
		foundID = w.ID
		return nil
	})
	r := drive(t, clk, 100*time.Millisecond, done, nil)
	if r.err != nil {
		t.Fatalf("Locate returned error: %v", r.err)
	}
	if r.id != want || foundID != want {
		t.Fatalf("located %d (found %d), want %d", r.id, foundID, want)
	}
}

func TestLocateIgnoresOtherProcesses(t *testing.T) {
	ws := platformtest.New()
	ws.AddClient(999, "Top [tok-1]", platform.Rect{Width: 10, Height: 10})
	clk := clock.NewFake(time.Unix(0, 0))
	l := New(ws, clk, 100*time.Millisecond, 500*time.Millisecond, nil)

	done := startLocate(context.Background(), l, Target{PID: 500, Token: "tok-1"}, nil)
	r := drive(t, clk, 100*time.Millisecond, done, nil)
	if !errors.Is(r.err, ErrTimeout) {
		t.Fatalf("Locate error = %v, want ErrTimeout", r.err)
	}
}

func TestLocateWaitsForWindowToStopBeingMinimized(t *testing.T) {
	ws := platformtest.New()
	id := ws.AddClient(0, "Bottom [tok-2]", platform.Rect{Width: 10, Height: 10})
	ws.SetHidden(id, true)
	clk := clock.NewFake(time.Unix(0, 0))
	l := New(ws, clk, 100*time.Millisecond, 5*time.Second, nil)

	foundCalls := 0
	done := startLocate(context.Background(), l, Target{PID: 77, Token: "tok-2"}, func(platform.Window) error {
		foundCalls++
		return nil
	})
	polls := 0
	r := drive(t, clk, 100*time.Millisecond, done, func(poll int) {
		polls = poll
		if poll == 3 {
			ws.SetHidden(id, false)
		}
	})
	if r.err != nil || r.id != id {
		t.Fatalf("Locate = %d, %v", r.id, r.err)
	}
	if foundCalls != 1 {
		t.Fatalf("found called %d times, want 1", foundCalls)
	}
	if polls < 4 {
		t.Fatalf("Locate returned after %d polls, expected to wait for unhide", polls)
	}
}

func TestLocateTimesOutWhenWindowNeverStabilises(t *testing.T) {
	ws := platformtest.New()
	id := ws.AddClient(5, "T [tok]", platform.Rect{Width: 10, Height: 10})
	ws.SetHidden(id, true)
	clk := clock.NewFake(time.Unix(0, 0))
	l := New(ws, clk, 100*time.Millisecond, 300*time.Millisecond, nil)

	located := false
	done := startLocate(context.Background(), l, Target{PID: 5, Token: "tok"}, func(platform.Window) error {
		located = true
		return nil
	})
	r := drive(t, clk, 100*time.Millisecond, done, nil)
	if !errors.Is(r.err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", r.err)
	}
	if !located {
		t.Fatalf("found callback not called for the hidden window")
	}
}

func TestLocateStopsOnCancel(t *testing.T) {
	ws := platformtest.New()
	clk := clock.NewFake(time.Unix(0, 0))
	l := New(ws, clk, 100*time.Millisecond, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := startLocate(ctx, l, Target{PID: 1, Token: "x"}, nil)
	clk.WaitForPending(1)
	cancel()
	select {
	case r := <-done:
		if !errors.Is(r.err, context.Canceled) {
			t.Fatalf("error = %v, want context.Canceled", r.err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Locate did not stop after cancel")
	}
}

func TestTargetMatches(t *testing.T) {
	target := Target{PID: 10, Token: "abc"}
	tests := []struct {
		name string
		w    platform.Window
		want bool
	}{
		{"pid and token", platform.Window{PID: 10, Title: "Top [abc]"}, true},
		{"no pid published", platform.Window{PID: 0, Title: "Top [abc]"}, false},
		{"wrong pid", platform.Window{PID: 11, Title: "Top [abc]"}, false},
		{"wrong token", platform.Window{PID: 10, Title: "Top [abd]"}, false},
	}
	for _, tt := range tests {
		if got := target.Matches(tt.w); got != tt.want {
			t.Fatalf("%s: Matches = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestTargetPick(t *testing.T) {
	target := Target{PID: 10, Token: "abc"}
	anonymous := platform.Window{ID: 1, PID: 0, Title: "Top [abc]"}
	tests := []struct {
		name    string
		windows []platform.Window
		want    platform.WindowID
	}{
		{"exact match", []platform.Window{{ID: 2, PID: 10, Title: "Top [abc]"}}, 2},
		{"exact match beats anonymous", []platform.Window{anonymous, {ID: 2, PID: 10, Title: "Top [abc]"}}, 2},
		{"anonymous when pid never published", []platform.Window{anonymous, {ID: 3, PID: 77, Title: "Editor"}}, 1},
		{"anonymous rejected once pid is published", []platform.Window{anonymous, {ID: 4, PID: 10, Title: "scrcpy splash"}}, 0},
		{"wrong token", []platform.Window{{ID: 5, PID: 0, Title: "Top [xyz]"}}, 0},
		{"empty list", nil, 0},
	}
	for _, tt := range tests {
		w, ok := target.Pick(tt.windows)
		if ok != (tt.want != 0) || w.ID != tt.want {
			t.Fatalf("%s: Pick = %d, %v; want %d", tt.name, w.ID, ok, tt.want)
		}
	}
}

func TestLocateSkipsAnonymousWindowWhenProcessPublishesPID(t *testing.T) {
	ws := platformtest.New()
	// Another client that copied the title but publishes no pid.
	ws.AddClient(0, "Top [tok-1]", platform.Rect{Width: 10, Height: 10})
	splash := ws.AddClient(500, "starting", platform.Rect{Width: 10, Height: 10})
	clk := clock.NewFake(time.Unix(0, 0))
	l := New(ws, clk, 100*time.Millisecond, time.Second, nil)

	var want platform.WindowID
	done := startLocate(context.Background(), l, Target{PID: 500, Token: "tok-1"}, nil)
	r := drive(t, clk, 100*time.Millisecond, done, func(poll int) {
		if poll == 2 {
			ws.Remove(splash)
			want = ws.AddClient(500, "Top [tok-1]", platform.Rect{Width: 10, Height: 10})
		}
	})
	if r.err != nil {
		t.Fatalf("Locate returned error: %v", r.err)
	}
	if r.id != want {
		t.Fatalf("located %d, want %d", r.id, want)
	}
}
