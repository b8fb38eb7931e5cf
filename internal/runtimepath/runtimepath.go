// Package runtimepath resolves where thordock keeps its socket and logs.
package runtimepath

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	appName = "thordock"

	// SocketEnv overrides the IPC socket path, for running a second
	// daemon against another display.
	SocketEnv = "THORDOCK_SOCKET"
)

// Dir returns the per-user runtime directory: $XDG_RUNTIME_DIR, then
// /run/user/<uid> when it exists, then a private directory under /tmp that
// is created on demand.
func Dir() (string, error) {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir, nil
	}

	uid := os.Getuid()
	if dir := fmt.Sprintf("/run/user/%d", uid); isDir(dir) {
		return dir, nil
	}

	dir := filepath.Join(os.TempDir(), fmt.Sprintf("%s-runtime-%d", appName, uid))
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create runtime dir %s: %w", dir, err)
	}
	return dir, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// SocketPath returns $THORDOCK_SOCKET or <runtime dir>/thordock.sock.
func SocketPath() (string, error) {
	if path := os.Getenv(SocketEnv); path != "" {
		return path, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName+".sock"), nil
}

// StateDir returns $XDG_STATE_HOME/thordock, defaulting to
// ~/.local/state/thordock.
func StateDir() (string, error) {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "state", appName), nil
}

// LogDir is where the daemon log and per-session process logs go.
func LogDir() (string, error) {
	state, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(state, "logs"), nil
}
