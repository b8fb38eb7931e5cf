package tui

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/thordock/thordock/internal/engine"
	"github.com/thordock/thordock/internal/events"
	"github.com/thordock/thordock/internal/ipc"
	"github.com/thordock/thordock/internal/layout"
	"github.com/thordock/thordock/internal/preset"
)

type fakeClient struct {
	status  engine.Status
	err     error
	layouts []ipc.LayoutPayload
	loaded  []string
	toggles int
	shots   int
	launch  int
}

func (f *fakeClient) GetStatus() (*engine.Status, error) {
	if f.err != nil {
		return nil, f.err
	}
	st := f.status
	return &st, nil
}

func (f *fakeClient) SetLayout(p ipc.LayoutPayload) error {
	f.layouts = append(f.layouts, p)
	return f.err
}

func (f *fakeClient) ToggleDock() error { f.toggles++; return f.err }
func (f *fakeClient) Screenshot() error { f.shots++; return f.err }

func (f *fakeClient) LoadPreset(name string) error {
	f.loaded = append(f.loaded, name)
	return f.err
}

func (f *fakeClient) Launch(roles ...string) error { f.launch++; return f.err }

func (f *fakeClient) Subscribe(ctx context.Context, fn func(events.Event) error) error {
	<-ctx.Done()
	return nil
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press feeds keys through the model, running any command it returns once.
func press(t *testing.T, m model, keys ...string) model {
	t.Helper()
	for _, k := range keys {
		next, cmd := m.Update(key(k))
		m = next.(model)
		if cmd == nil {
			continue
		}
		if msg := cmd(); msg != nil {
			if _, ok := msg.(actionMsg); ok {
				next, _ = m.Update(msg)
				m = next.(model)
			}
		}
	}
	return m
}

func newTestModel(t *testing.T) (model, *fakeClient, *preset.FileStore) {
	t.Helper()
	client := &fakeClient{status: engine.Status{
		Dock:   "docked",
		Sync:   "idle",
		Layout: layout.Spec{TX: 0, TY: 0, BX: 251, BY: 648, Scale: 0.6},
	}}
	store := preset.NewFileStore(filepath.Join(t.TempDir(), "presets.json"))
	m := newModel(Options{Client: client, Presets: store, Bases: layout.DefaultBaseSizes()})

	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = next.(model)
	next, _ = m.Update(m.fetchStatus()())
	return next.(model), client, store
}

func TestNudgeSendsLayout(t *testing.T) {
	m, client, _ := newTestModel(t)
	if !m.connected {
		t.Fatalf("expected connected after status")
	}

	m = press(t, m, "b", "right", "L")
	if len(client.layouts) != 2 {
		t.Fatalf("layouts sent = %d, want 2", len(client.layouts))
	}
	want := ipc.LayoutPayload{TX: 0, TY: 0, BX: 311, BY: 648, Scale: 0.6}
	if got := client.layouts[1]; got != want {
		t.Fatalf("last layout = %+v, want %+v", got, want)
	}

	m = press(t, m, "t", "k")
	if got := client.layouts[2]; got.TY != -10 || got.BX != 311 {
		t.Fatalf("top nudge = %+v", got)
	}
}

func TestScaleIsClamped(t *testing.T) {
	m, client, _ := newTestModel(t)
	m.control.SetSpec(layout.Spec{Scale: layout.MaxScale})

	m = press(t, m, "+")
	if len(client.layouts) != 0 {
		t.Fatalf("scale above max was sent: %+v", client.layouts)
	}
	press(t, m, "-")
	if got := client.layouts[0].Scale; got != 0.95 {
		t.Fatalf("scale = %v, want 0.95", got)
	}
}

func TestResetRestoresDefaultLayout(t *testing.T) {
	m, client, _ := newTestModel(t)
	press(t, m, "b", "right", "0")
	got := client.layouts[len(client.layouts)-1]
	want := layout.DefaultSpec(0.6, layout.DefaultBaseSizes())
	if got.BX != want.BX || got.BY != want.BY || got.TX != 0 || got.TY != 0 {
		t.Fatalf("reset layout = %+v, want %+v", got, want)
	}
}

func TestGlobalKeys(t *testing.T) {
	m, client, _ := newTestModel(t)
	m = press(t, m, "d", "s", "n")
	if client.toggles != 1 || client.shots != 1 || client.launch != 1 {
		t.Fatalf("toggles=%d shots=%d launch=%d", client.toggles, client.shots, client.launch)
	}
	if m.notice != "launch requested" {
		t.Fatalf("notice = %q", m.notice)
	}
	m = press(t, m, "tab")
	if m.activeTab != TabPresets {
		t.Fatalf("tab = %v, want presets", m.activeTab)
	}
}

func TestSavePresetThenLoad(t *testing.T) {
	m, client, store := newTestModel(t)
	m = press(t, m, "2", "a")
	if !m.presets.Capturing() {
		t.Fatalf("save prompt not active")
	}
	m = press(t, m, "S", "t", "r", "e", "a", "m", "enter")
	if m.presets.Capturing() {
		t.Fatalf("save prompt still active, err = %v", m.presets.err)
	}

	got, err := store.Get("Stream")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if want := (preset.Offsets{TX: 0, TY: 0, BX: 251, BY: 648}); got != want {
		t.Fatalf("saved offsets = %+v, want %+v", got, want)
	}
	if client.toggles != 0 || client.shots != 0 {
		t.Fatalf("typing triggered global keys")
	}

	press(t, m, "enter")
	if len(client.loaded) != 1 || client.loaded[0] != "Stream" {
		t.Fatalf("loaded = %v", client.loaded)
	}
}

func TestSavePresetRejectsBadName(t *testing.T) {
	m, _, _ := newTestModel(t)
	m = press(t, m, "2", "a", ".", ".", "enter")
	if !m.presets.Capturing() || m.presets.err == nil {
		t.Fatalf("expected prompt to stay open with an error")
	}
}

func TestEventUpdatesLayoutAndNotice(t *testing.T) {
	m, _, _ := newTestModel(t)
	next, cmd := m.Update(eventMsg(events.Event{
		Kind:   events.SyncApplied,
		Layout: &events.Layout{TX: 5, TY: 6, BX: 7, BY: 8, Scale: 0.5},
	}))
	m = next.(model)
	if cmd == nil {
		t.Fatalf("expected a status refresh")
	}
	if got := m.control.Spec(); got != (layout.Spec{TX: 5, TY: 6, BX: 7, BY: 8, Scale: 0.5}) {
		t.Fatalf("spec = %+v", got)
	}

	next, _ = m.Update(eventMsg(events.Event{Kind: events.Fault, Fault: "reparent_failure", Role: "bottom", Message: "BadMatch"}))
	m = next.(model)
	if !strings.Contains(m.notice, "reparent_failure [bottom]: BadMatch") {
		t.Fatalf("notice = %q", m.notice)
	}
}

func TestStatusErrorMarksDisconnected(t *testing.T) {
	m, client, _ := newTestModel(t)
	client.err = errors.New("is the daemon running?")
	next, _ := m.Update(m.fetchStatus()())
	m = next.(model)
	if m.connected {
		t.Fatalf("still connected after status error")
	}
	if !strings.Contains(m.View(), "daemon not running") {
		t.Fatalf("status bar does not show disconnect")
	}
}

func TestRenderLayoutPreview(t *testing.T) {
	spec := layout.DefaultSpec(0.6, layout.DefaultBaseSizes())
	lines := renderLayoutPreview(spec, layout.DefaultBaseSizes(), 40, 16)
	if len(lines) != 16 {
		t.Fatalf("lines = %d, want 16", len(lines))
	}
	if !strings.HasPrefix(lines[0], "╔") || !strings.HasSuffix(lines[15], "╝") {
		t.Fatalf("missing frame:\n%s", strings.Join(lines, "\n"))
	}
	all := strings.Join(lines, "\n")
	if !strings.Contains(all, "TOP") || !strings.Contains(all, "BOTTOM") {
		t.Fatalf("missing window labels:\n%s", all)
	}

	if got := renderLayoutPreview(spec, layout.DefaultBaseSizes(), 4, 2); len(got) != 2 || strings.TrimSpace(got[0]) != "" {
		t.Fatalf("tiny canvas should be blank, got %q", got)
	}
}
