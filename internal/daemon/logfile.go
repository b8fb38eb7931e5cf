package daemon

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	// LogFileName is the daemon's own log inside the log directory.
	LogFileName     = "daemon.log"
	defaultMaxBytes = 5 << 20
	defaultMaxFiles = 3
)

// LogFile is an append-only log writer that rotates daemon.log to
// daemon.log.1 .. daemon.log.N once it grows past MaxBytes.
type LogFile struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
	maxFiles int
	file     *os.File
	size     int64
}

// OpenLogFile opens (or creates) dir/daemon.log. Zero limits use the
// defaults.
func OpenLogFile(dir string, maxBytes int64, maxFiles int) (*LogFile, error) {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	if maxFiles <= 0 {
		maxFiles = defaultMaxFiles
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}
	l := &LogFile{path: filepath.Join(dir, LogFileName), maxBytes: maxBytes, maxFiles: maxFiles}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *LogFile) open() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", l.path, err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	l.file = f
	l.size = stat.Size()
	return nil
}

// Path returns the active log file.
func (l *LogFile) Path() string {
	return l.path
}

func (l *LogFile) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return 0, os.ErrClosed
	}
	if l.size > 0 && l.size+int64(len(p)) > l.maxBytes {
		if err := l.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
			if l.file == nil {
				return 0, err
			}
		}
	}
	n, err := l.file.Write(p)
	l.size += int64(n)
	return n, err
}

// Close closes the active file. Later writes fail with os.ErrClosed.
func (l *LogFile) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// rotate shifts daemon.log.i to daemon.log.i+1, dropping the oldest, and
// starts a fresh daemon.log.
func (l *LogFile) rotate() error {
	l.file.Close()
	l.file = nil

	os.Remove(fmt.Sprintf("%s.%d", l.path, l.maxFiles))
	for i := l.maxFiles - 1; i >= 1; i-- {
		os.Rename(fmt.Sprintf("%s.%d", l.path, i), fmt.Sprintf("%s.%d", l.path, i+1))
	}
	if err := os.Rename(l.path, l.path+".1"); err != nil && !os.IsNotExist(err) {
		l.open()
		return fmt.Errorf("failed to rotate log file: %w", err)
	}
	return l.open()
}

// ParseLevel converts a config log level to a slog level. Unknown names
// map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger returns a text logger writing to every non-nil writer.
func NewLogger(level string, writers ...io.Writer) *slog.Logger {
	var out []io.Writer
	for _, w := range writers {
		if w != nil {
			out = append(out, w)
		}
	}
	return slog.New(slog.NewTextHandler(io.MultiWriter(out...), &slog.HandlerOptions{
		Level: ParseLevel(level),
	}))
}
