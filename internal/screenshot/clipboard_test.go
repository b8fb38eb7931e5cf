package screenshot

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestPipeImageReturnsWhileForkedChildHoldsStderr(t *testing.T) {
	requireShell(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Like xclip: read the image, then leave a background child behind.
	script := "cat >/dev/null; sleep 5 >&2 &"
	start := time.Now()
	if err := pipeImage(ctx, "sh", []string{"-c", script}, []byte("png")); err != nil {
		t.Fatalf("pipeImage: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("pipeImage waited %v for the background child", elapsed)
	}
}

func TestPipeImageReportsToolFailure(t *testing.T) {
	requireShell(t)
	err := pipeImage(context.Background(), "sh", []string{"-c", "cat >/dev/null; echo cannot open display >&2; exit 1"}, []byte("png"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "open display") {
		t.Fatalf("error %q does not carry stderr", err)
	}
}
