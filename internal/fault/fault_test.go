package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesWrappedKind(t *testing.T) {
	base := errors.New("spawn scrcpy: no such file")
	err := fmt.Errorf("launch top: %w", New(ProcessLaunchFailure, "top", base))

	if !Is(err, ProcessLaunchFailure) {
		t.Fatalf("Is(%v, ProcessLaunchFailure) = false", err)
	}
	if Is(err, ReparentFailure) {
		t.Fatal("Is matched the wrong kind")
	}
	if !errors.Is(err, base) {
		t.Fatal("cause is not reachable through Unwrap")
	}
	if KindOf(err) != ProcessLaunchFailure {
		t.Fatalf("KindOf = %q", KindOf(err))
	}
}

func TestErrorsIsComparesKindAndRole(t *testing.T) {
	err := Newf(SyncApplyFailure, "bottom", "configure window %d", 42)

	if !errors.Is(err, &Error{Kind: SyncApplyFailure}) {
		t.Fatal("kind-only target should match")
	}
	if !errors.Is(err, &Error{Kind: SyncApplyFailure, Role: "bottom"}) {
		t.Fatal("kind+role target should match")
	}
	if errors.Is(err, &Error{Kind: SyncApplyFailure, Role: "top"}) {
		t.Fatal("different role should not match")
	}
}

func TestErrorString(t *testing.T) {
	err := Newf(CaptureUnavailable, "", "not docked")
	if got, want := err.Error(), "capture_unavailable: not docked"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
	if KindOf(errors.New("plain")) != "" {
		t.Fatal("KindOf on an unclassified error should be empty")
	}
}

func TestRoleOf(t *testing.T) {
	err := fmt.Errorf("dock: %w", New(ReparentFailure, "top", errors.New("bad window")))
	if got := RoleOf(err); got != "top" {
		t.Fatalf("RoleOf = %q, want top", got)
	}
	if got := RoleOf(errors.New("plain")); got != "" {
		t.Fatalf("RoleOf(plain) = %q, want empty", got)
	}
}
