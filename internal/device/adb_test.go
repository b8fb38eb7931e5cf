package device

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

type fakeRunner struct {
	calls   []string
	outputs map[string]string
	errs    map[string]error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	key := strings.Join(args, " ")
	f.calls = append(f.calls, key)
	return []byte(f.outputs[key]), f.errs[key]
}

func TestParseDevices(t *testing.T) {
	out := `* daemon not running; starting now at tcp:5037
* daemon started successfully
List of devices attached
AYN123	device
XYZ999	unauthorized
emulator-5554	offline
THOR2	device

`
	want := []Device{{Serial: "AYN123", State: "device"}, {Serial: "THOR2", State: "device"}}
	if got := ParseDevices(out); !reflect.DeepEqual(got, want) {
		t.Fatalf("ParseDevices = %+v, want %+v", got, want)
	}
}

func TestDetectPicksFirstAuthorizedDevice(t *testing.T) {
	r := &fakeRunner{outputs: map[string]string{
		"devices": "List of devices attached\nBAD\tunauthorized\nGOOD\tdevice\n",
	}}
	a := New("adb", nil)
	a.Runner = r

	serial, err := a.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect returned error: %v", err)
	}
	if serial != "GOOD" {
		t.Fatalf("serial = %q, want GOOD", serial)
	}
	if r.calls[0] != "start-server" {
		t.Fatalf("first call = %q, want start-server", r.calls[0])
	}
}

func TestDetectNoDevice(t *testing.T) {
	r := &fakeRunner{outputs: map[string]string{"devices": "List of devices attached\n"}}
	a := New("adb", nil)
	a.Runner = r
	if _, err := a.Detect(context.Background()); !errors.Is(err, ErrNoDevice) {
		t.Fatalf("Detect error = %v, want ErrNoDevice", err)
	}
}

func TestCleanupRunsEveryStep(t *testing.T) {
	r := &fakeRunner{errs: map[string]error{
		"-s S1 forward --remove-all": errors.New("device offline"),
	}}
	a := New("adb", nil)
	a.Runner = r

	err := a.Cleanup(context.Background(), "S1")
	if err == nil || !strings.Contains(err.Error(), "device offline") {
		t.Fatalf("Cleanup error = %v, want forward failure", err)
	}
	want := []string{
		"-s S1 shell pkill -f scrcpy-server",
		"-s S1 shell pkill -f app_process",
		"-s S1 forward --remove-all",
		"-s S1 reverse --remove-all",
	}
	if !reflect.DeepEqual(r.calls, want) {
		t.Fatalf("calls = %v, want %v", r.calls, want)
	}
}
