// Package device talks to the handheld over adb.
package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const (
	ServerTimeout  = 10 * time.Second
	CleanupTimeout = 3 * time.Second
)

// ErrNoDevice is returned when adb lists no authorized device.
var ErrNoDevice = errors.New("no authorized adb device connected")

// Runner executes a command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs real processes.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// Device is one line of `adb devices`.
type Device struct {
	Serial string
	State  string
}

// ParseDevices parses `adb devices` output, skipping the header, daemon
// chatter and devices that are not in the "device" state.
func ParseDevices(out string) []Device {
	var devices []Device
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || strings.HasPrefix(line, "*") || strings.HasPrefix(line, "List of devices") {
			continue
		}
		if fields[1] != "device" {
			continue
		}
		devices = append(devices, Device{Serial: fields[0], State: fields[1]})
	}
	return devices
}

// ADB wraps the adb binary.
type ADB struct {
	Path   string
	Runner Runner
	Logger *slog.Logger
}

// New returns an ADB client for the binary at path.
func New(path string, logger *slog.Logger) *ADB {
	if path == "" {
		path = "adb"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ADB{Path: path, Runner: ExecRunner{}, Logger: logger}
}

func (a *ADB) run(ctx context.Context, timeout time.Duration, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	out, err := a.Runner.Run(ctx, a.Path, args...)
	if err != nil {
		if ctx.Err() != nil {
			return out, fmt.Errorf("adb %s: timed out after %s", strings.Join(args, " "), timeout)
		}
		return out, fmt.Errorf("adb %s: %w", strings.Join(args, " "), err)
	}
	return out, nil
}

// Detect starts the adb server and returns the first authorized device.
func (a *ADB) Detect(ctx context.Context) (string, error) {
	if _, err := a.run(ctx, ServerTimeout, "start-server"); err != nil {
		a.Logger.Warn("adb start-server failed", "error", err)
	}
	out, err := a.run(ctx, ServerTimeout, "devices")
	if err != nil {
		return "", err
	}
	devices := ParseDevices(string(out))
	if len(devices) == 0 {
		return "", ErrNoDevice
	}
	if len(devices) > 1 {
		a.Logger.Info("multiple devices found, using first", "count", len(devices), "serial", devices[0].Serial)
	}
	return devices[0].Serial, nil
}

// Cleanup removes mirroring leftovers on the device. Every step runs even
// if an earlier one fails; failures are returned joined.
func (a *ADB) Cleanup(ctx context.Context, serial string) error {
	if serial == "" {
		return nil
	}
	steps := [][]string{
		{"-s", serial, "shell", "pkill", "-f", "scrcpy-server"},
		{"-s", serial, "shell", "pkill", "-f", "app_process"},
		{"-s", serial, "forward", "--remove-all"},
		{"-s", serial, "reverse", "--remove-all"},
	}
	var errs []error
	for _, args := range steps {
		if _, err := a.run(ctx, CleanupTimeout, args...); err != nil {
			// pkill exits 1 when nothing matched.
			if args[2] == "shell" {
				var exitErr *exec.ExitError
				if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
					continue
				}
			}
			a.Logger.Debug("device cleanup step failed", "args", strings.Join(args, " "), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
