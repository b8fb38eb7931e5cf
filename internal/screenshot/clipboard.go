package screenshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/atotto/clipboard"
)

// Clipboard receives finished screenshots.
type Clipboard interface {
	WriteImage(png []byte) error
	WriteText(text string) error
}

// ErrNoClipboardTool is returned when neither xclip nor wl-copy is installed.
var ErrNoClipboardTool = errors.New("no image clipboard tool found (install xclip or wl-clipboard)")

// SystemClipboard pipes PNG data to xclip, or wl-copy under Wayland.
type SystemClipboard struct {
	Timeout time.Duration
}

func (c SystemClipboard) WriteImage(png []byte) error {
	name, args, err := imageCommand()
	if err != nil {
		return err
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return pipeImage(ctx, name, args, png)
}

// pipeWaitDelay bounds how long Run waits for the output pipes after the
// tool exits. xclip forks a child that keeps serving the selection, and
// that child inherits stderr.
const pipeWaitDelay = 500 * time.Millisecond

func pipeImage(ctx context.Context, name string, args []string, png []byte) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(png)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = pipeWaitDelay
	err := cmd.Run()
	if errors.Is(err, exec.ErrWaitDelay) {
		// The tool itself exited cleanly; only its child still holds stderr.
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}

// WriteText puts plain text on the clipboard.
func (SystemClipboard) WriteText(text string) error {
	return clipboard.WriteAll(text)
}

func imageCommand() (string, []string, error) {
	candidates := []struct {
		name string
		args []string
	}{
		{"xclip", []string{"-selection", "clipboard", "-t", "image/png", "-i"}},
		{"wl-copy", []string{"--type", "image/png"}},
	}
	if os.Getenv("WAYLAND_DISPLAY") != "" && os.Getenv("DISPLAY") == "" {
		candidates[0], candidates[1] = candidates[1], candidates[0]
	}
	for _, c := range candidates {
		if path, err := exec.LookPath(c.name); err == nil {
			return path, c.args, nil
		}
	}
	return "", nil, ErrNoClipboardTool
}
