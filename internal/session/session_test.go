package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/thordock/thordock/internal/platform"
)

func TestSessionLifecycle(t *testing.T) {
	s := New(RoleTop, "0", "tok", time.Unix(0, 0))
	if s.Status() != Launching {
		t.Fatalf("initial status = %s, want launching", s.Status())
	}
	if err := s.MarkReady(); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("MarkReady from launching = %v, want ErrIllegalTransition", err)
	}

	h, err := s.SetWindow(42)
	if err != nil {
		t.Fatalf("SetWindow returned error: %v", err)
	}
	if h.ID() != 42 || s.Status() != Located {
		t.Fatalf("after SetWindow: id=%d status=%s", h.ID(), s.Status())
	}
	if _, err := s.SetWindow(43); !errors.Is(err, ErrWindowAlreadySet) {
		t.Fatalf("second SetWindow = %v, want ErrWindowAlreadySet", err)
	}
	if err := s.MarkReady(); err != nil {
		t.Fatalf("MarkReady returned error: %v", err)
	}
	if s.Status() != Ready {
		t.Fatalf("status = %s, want ready", s.Status())
	}
}

func TestFinishReleasesHandleAndCancelsLocate(t *testing.T) {
	s := New(RoleBottom, "4", "tok", time.Unix(0, 0))
	cancelled := false
	s.SetLocateCancel(func() { cancelled = true })
	h, _ := s.SetWindow(7)

	cause := errors.New("boom")
	if !s.Finish(Crashed, cause) {
		t.Fatalf("Finish returned false on first call")
	}
	if s.Finish(Terminated, nil) {
		t.Fatalf("Finish returned true on second call")
	}
	if s.Status() != Crashed || s.Cause() != cause {
		t.Fatalf("status=%s cause=%v", s.Status(), s.Cause())
	}
	if !cancelled {
		t.Fatalf("locate cancel was not called")
	}
	err := h.Do(func(platform.WindowID) error { return nil })
	if !errors.Is(err, ErrHandleReleased) {
		t.Fatalf("Do after Finish = %v, want ErrHandleReleased", err)
	}
}

func TestHandleReleaseWaitsForInFlightOperation(t *testing.T) {
	h := newHandle(9)
	started := make(chan struct{})
	finish := make(chan struct{})
	var done sync.WaitGroup
	done.Add(1)
	go func() {
		defer done.Done()
		h.Do(func(platform.WindowID) error {
			close(started)
			<-finish
			return nil
		})
	}()
	<-started

	released := make(chan struct{})
	go func() {
		h.Release()
		close(released)
	}()

	select {
	case <-released:
		t.Fatalf("Release returned while an operation was in flight")
	case <-time.After(20 * time.Millisecond):
	}
	close(finish)
	<-released
	done.Wait()
	if !h.Released() {
		t.Fatalf("handle not released")
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"top", RoleTop, false},
		{"bottom", RoleBottom, false},
		{"left", "", true},
	}
	for _, tt := range tests {
		got, err := ParseRole(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Fatalf("ParseRole(%q) = %q, %v", tt.in, got, err)
		}
	}
	if RoleTop.Other() != RoleBottom || RoleBottom.Other() != RoleTop {
		t.Fatalf("Other() mismatch")
	}
}
