package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/thordock/thordock/internal/clock"
)

func newTestSupervisor(t *testing.T, grace time.Duration) (*Supervisor, string) {
	t.Helper()
	dir := t.TempDir()
	return New(clock.Real(), grace, dir, nil), dir
}

func TestStartReportsExitOnceWithTail(t *testing.T) {
	sup, dir := newTestSupervisor(t, time.Second)
	exits := make(chan ExitInfo, 2)
	p, err := sup.Start(Spec{
		Role:   "top",
		Binary: "/bin/sh",
		Args:   []string{"-c", "echo hello; echo oops >&2; exit 3"},
	}, func(info ExitInfo) { exits <- info })
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	var info ExitInfo
	select {
	case info = <-exits:
	case <-time.After(5 * time.Second):
		t.Fatalf("exit callback not called")
	}
	if info.Code != 3 {
		t.Fatalf("exit code = %d, want 3", info.Code)
	}
	if !strings.Contains(info.Tail, "hello") || !strings.Contains(info.Tail, "oops") {
		t.Fatalf("tail = %q, want both streams", info.Tail)
	}
	if info.Requested {
		t.Fatalf("exit marked as requested")
	}
	<-p.Done()

	select {
	case extra := <-exits:
		t.Fatalf("exit callback called twice: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "scrcpy_top_*.log"))
	if len(matches) != 1 {
		t.Fatalf("log files = %v, want one", matches)
	}
	data, _ := os.ReadFile(matches[0])
	if !strings.Contains(string(data), "[stdout] hello") {
		t.Fatalf("log content = %q", data)
	}
}

func TestStartMissingBinaryFails(t *testing.T) {
	sup, _ := newTestSupervisor(t, time.Second)
	_, err := sup.Start(Spec{Role: "top", Binary: filepath.Join(t.TempDir(), "nope")}, nil)
	if err == nil {
		t.Fatalf("expected error for missing binary")
	}
}

func TestTerminateGraceful(t *testing.T) {
	sup, _ := newTestSupervisor(t, 5*time.Second)
	p, err := sup.Start(Spec{Role: "bottom", Binary: "/bin/sh", Args: []string{"-c", "sleep 30"}}, nil)
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel()
	start := time.Now()
	if err := p.Terminate(ctx); err != nil {
		t.Fatalf("Terminate returned error: %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Fatalf("graceful terminate waited for the grace period")
	}
	if !p.Exit().Requested {
		t.Fatalf("exit not marked as requested")
	}
}

func TestTerminateEscalatesToKill(t *testing.T) {
	sup, _ := newTestSupervisor(t, 200*time.Millisecond)
	p, err := sup.Start(Spec{
		Role:   "top",
		Binary: "/bin/sh",
		Args:   []string{"-c", "trap '' TERM; echo ready; while :; do sleep 0.05; done"},
	}, nil)
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	// Give the shell time to install its trap.
	time.Sleep(200 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Terminate(ctx); err != nil {
		t.Fatalf("Terminate returned error: %v", err)
	}
	select {
	case <-p.Done():
	default:
		t.Fatalf("process still running after Terminate")
	}
}

func TestLaunchOptionsArgs(t *testing.T) {
	opts := LaunchOptions{
		Serial:       "ABC123",
		DisplayID:    "4",
		Title:        "Bottom [tok]",
		MaxFPS:       120,
		RenderDriver: "opengl",
		WindowWidth:  650,
		BitrateMbps:  6,
		Extra:        []string{"--stay-awake"},
	}
	want := []string{
		"-s", "ABC123",
		"--window-borderless",
		"--max-fps", "120",
		"--render-driver", "opengl",
		"--mouse-bind=++++",
		"--display-id", "4",
		"--window-title", "Bottom [tok]",
		"--window-width", "650",
		"--video-bit-rate", "6M",
		"--no-audio",
		"--stay-awake",
	}
	if got := opts.Args(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Args() =\n%v\nwant\n%v", got, want)
	}
}

func TestBitrate(t *testing.T) {
	tests := []struct {
		min, k int
		scale  float64
		want   int
	}{
		{8, 32, 0.6, 14},
		{6, 24, 0.6, 11},
		{8, 32, 0.3, 8},
		{8, 32, 1.0, 32},
	}
	for _, tt := range tests {
		if got := Bitrate(tt.min, tt.k, tt.scale); got != tt.want {
			t.Fatalf("Bitrate(%d,%d,%v) = %d, want %d", tt.min, tt.k, tt.scale, got, tt.want)
		}
	}
}
