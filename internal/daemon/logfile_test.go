package daemon

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogFileRotates(t *testing.T) {
	dir := t.TempDir()
	l, err := OpenLogFile(dir, 10, 2)
	if err != nil {
		t.Fatalf("OpenLogFile: %v", err)
	}
	defer l.Close()

	for _, line := range []string{"first\n", "second\n", "third\n", "fourth\n"} {
		if _, err := l.Write([]byte(line)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	read := func(name string) string {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		return string(data)
	}
	if got := read(LogFileName); got != "fourth\n" {
		t.Fatalf("active log = %q", got)
	}
	if got := read(LogFileName + ".1"); got != "third\n" {
		t.Fatalf("log.1 = %q", got)
	}
	if got := read(LogFileName + ".2"); got != "second\n" {
		t.Fatalf("log.2 = %q", got)
	}
	if _, err := os.Stat(filepath.Join(dir, LogFileName+".3")); !os.IsNotExist(err) {
		t.Fatalf("expected only two rotated files, stat err = %v", err)
	}
}

func TestLogFileWriteAfterClose(t *testing.T) {
	l, err := OpenLogFile(t.TempDir(), 0, 0)
	if err != nil {
		t.Fatalf("OpenLogFile: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := l.Write([]byte("x")); err == nil {
		t.Fatalf("expected error writing to closed log")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("warn", &buf, nil)
	logger.Info("hidden")
	logger.Warn("shown", "role", "top")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "role=top") {
		t.Fatalf("unexpected log output %q", out)
	}
}
