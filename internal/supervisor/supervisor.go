// Package supervisor spawns and watches the external mirroring processes.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/thordock/thordock/internal/clock"
	"github.com/thordock/thordock/internal/proclog"
)

// DefaultGrace is how long Terminate waits after SIGTERM before SIGKILL.
const DefaultGrace = 2 * time.Second

// Spec describes one process to start.
type Spec struct {
	Role   string
	Binary string
	Args   []string
}

// ExitInfo is delivered exactly once when the process ends.
type ExitInfo struct {
	Code int
	Tail string
	Err  error
	// Requested is set when the exit followed a Terminate call.
	Requested bool
}

// Supervisor starts processes with their output routed to a proclog sink.
type Supervisor struct {
	clock  clock.Clock
	grace  time.Duration
	logDir string
	logger *slog.Logger
}

// New creates a supervisor. A zero grace uses DefaultGrace.
func New(clk clock.Clock, grace time.Duration, logDir string, logger *slog.Logger) *Supervisor {
	if clk == nil {
		clk = clock.Real()
	}
	if grace <= 0 {
		grace = DefaultGrace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{clock: clk, grace: grace, logDir: logDir, logger: logger}
}

// Process is a running child. It is safe for concurrent use.
type Process struct {
	cmd    *exec.Cmd
	sink   *proclog.Sink
	clock  clock.Clock
	grace  time.Duration
	logger *slog.Logger

	done   chan struct{}
	once   sync.Once
	onExit func(ExitInfo)

	mu         sync.Mutex
	exit       ExitInfo
	terminated bool
}

// Start spawns the process in its own process group and returns without
// waiting for it to become useful. onExit runs once, on its own goroutine,
// after the process ends and its output is drained.
func (s *Supervisor) Start(spec Spec, onExit func(ExitInfo)) (*Process, error) {
	sink, err := proclog.Open(s.logDir, spec.Role, s.clock.Now)
	if err != nil {
		s.logger.Warn("process log unavailable, keeping output in memory", "role", spec.Role, "error", err)
		sink, _ = proclog.Open("", spec.Role, s.clock.Now)
	}

	cmd := exec.Command(spec.Binary, spec.Args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		sink.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		sink.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		sink.Line("stderr", "spawn failed: "+err.Error())
		sink.Close()
		return nil, fmt.Errorf("start %s: %w", spec.Binary, err)
	}

	p := &Process{
		cmd:    cmd,
		sink:   sink,
		clock:  s.clock,
		grace:  s.grace,
		logger: s.logger.With("role", spec.Role, "pid", cmd.Process.Pid),
		done:   make(chan struct{}),
		onExit: onExit,
	}
	p.logger.Info("process started", "binary", spec.Binary, "log", sink.Path())
	go p.wait(stdout, stderr)
	return p, nil
}

func (p *Process) wait(stdout, stderr io.Reader) {
	var drains sync.WaitGroup
	drains.Add(2)
	go func() { defer drains.Done(); p.sink.Drain("stdout", stdout) }()
	go func() { defer drains.Done(); p.sink.Drain("stderr", stderr) }()
	drains.Wait()

	err := p.cmd.Wait()
	info := ExitInfo{Code: p.cmd.ProcessState.ExitCode(), Tail: p.sink.Tail()}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		info.Err = err
	}

	p.mu.Lock()
	info.Requested = p.terminated
	p.exit = info
	p.mu.Unlock()

	p.sink.Close()
	p.logger.Info("process exited", "code", info.Code, "requested", info.Requested)
	close(p.done)
	p.once.Do(func() {
		if p.onExit != nil {
			p.onExit(info)
		}
	})
}

// PID returns the process id.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// LogPath returns the output log path.
func (p *Process) LogPath() string {
	return p.sink.Path()
}

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Exit returns the exit information; valid after Done is closed.
func (p *Process) Exit() ExitInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exit
}

// Terminate sends SIGTERM to the process group, then SIGKILL if it is still
// running after the grace period. It returns once the process has exited
// or ctx is done.
func (p *Process) Terminate(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	default:
	}

	p.mu.Lock()
	p.terminated = true
	p.mu.Unlock()

	pgid := -p.PID()
	if err := unix.Kill(pgid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		p.logger.Warn("SIGTERM failed", "error", err)
	}

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.clock.After(p.grace):
	}

	p.logger.Warn("process ignored SIGTERM, killing", "grace", p.grace)
	if err := unix.Kill(pgid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("kill process group %d: %w", -pgid, err)
	}
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
