// Package proclog records the output of mirroring processes.
package proclog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultTailLines is how many trailing lines a Sink keeps in memory.
const DefaultTailLines = 20

// Sink writes timestamped process output to a per-session file and keeps
// the last few lines for crash reports.
type Sink struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	tail     []string
	tailSize int
	now      func() time.Time
}

// FileName returns the log file name for a session of the given role.
func FileName(role string, stamp time.Time) string {
	return fmt.Sprintf("scrcpy_%s_%s.log", role, stamp.Format("20060102_150405"))
}

// Open creates the sink file under dir. An empty dir yields a memory-only
// sink.
func Open(dir, role string, now func() time.Time) (*Sink, error) {
	if now == nil {
		now = time.Now
	}
	s := &Sink{tailSize: DefaultTailLines, now: now}
	if dir == "" {
		return s, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, FileName(role, now()))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	s.file = f
	s.path = path
	return s, nil
}

// Path returns the file path, or "" for a memory-only sink.
func (s *Sink) Path() string {
	return s.path
}

// Line records one line of output from stream ("stdout" or "stderr").
func (s *Sink) Line(stream, line string) {
	if s == nil {
		return
	}
	line = strings.TrimRight(line, "\r\n")

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tail = append(s.tail, line)
	if len(s.tail) > s.tailSize {
		s.tail = s.tail[len(s.tail)-s.tailSize:]
	}
	if s.file == nil {
		return
	}
	entry := fmt.Sprintf("%s [%s] %s\n", s.now().Format("2006-01-02 15:04:05.000"), stream, line)
	if _, err := s.file.WriteString(entry); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write process log entry: %v\n", err)
	}
}

// Drain copies r into the sink line by line until EOF.
func (s *Sink) Drain(stream string, r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		s.Line(stream, sc.Text())
	}
}

// Tail returns the retained trailing lines joined by newlines.
func (s *Sink) Tail() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.tail, "\n")
}

// Close closes the log file.
func (s *Sink) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
