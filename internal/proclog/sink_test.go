package proclog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func fixedNow() time.Time {
	return time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
}

func TestSinkWritesFileWithSecurePermissions(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "top", fixedNow)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	s.Line("stdout", "INFO: Renderer: opengl\n")
	s.Line("stderr", "WARN: something")
	if err := s.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	want := filepath.Join(dir, "scrcpy_top_20240309_140507.log")
	if s.Path() != want {
		t.Fatalf("Path = %q, want %q", s.Path(), want)
	}
	info, err := os.Stat(want)
	if err != nil {
		t.Fatalf("stat log: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("permissions = %o, want 600", perm)
	}
	data, _ := os.ReadFile(want)
	if !strings.Contains(string(data), "[stdout] INFO: Renderer: opengl\n") {
		t.Fatalf("log missing stdout line:\n%s", data)
	}
	if !strings.Contains(string(data), "[stderr] WARN: something") {
		t.Fatalf("log missing stderr line:\n%s", data)
	}
}

func TestSinkTailKeepsLastLines(t *testing.T) {
	s, err := Open("", "bottom", fixedNow)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	for i := 0; i < DefaultTailLines+5; i++ {
		s.Line("stdout", fmt.Sprintf("line %d", i))
	}
	lines := strings.Split(s.Tail(), "\n")
	if len(lines) != DefaultTailLines {
		t.Fatalf("tail has %d lines, want %d", len(lines), DefaultTailLines)
	}
	if lines[0] != "line 5" || lines[len(lines)-1] != "line 24" {
		t.Fatalf("tail = %q..%q", lines[0], lines[len(lines)-1])
	}
}

func TestSinkDrain(t *testing.T) {
	s, _ := Open("", "top", fixedNow)
	s.Drain("stderr", strings.NewReader("a\nb\nc"))
	if got := s.Tail(); got != "a\nb\nc" {
		t.Fatalf("Tail = %q", got)
	}
}
