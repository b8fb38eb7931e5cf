// Package tui is the interactive control panel for a running daemon.
package tui

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/thordock/thordock/internal/engine"
	"github.com/thordock/thordock/internal/events"
	"github.com/thordock/thordock/internal/ipc"
	"github.com/thordock/thordock/internal/layout"
	"github.com/thordock/thordock/internal/preset"
)

// Client is the daemon surface the panel drives.
type Client interface {
	GetStatus() (*engine.Status, error)
	SetLayout(p ipc.LayoutPayload) error
	ToggleDock() error
	Screenshot() error
	LoadPreset(name string) error
	Launch(roles ...string) error
	Subscribe(ctx context.Context, fn func(events.Event) error) error
}

var _ Client = (*ipc.Client)(nil)

// PresetStore lists and edits the preset file. The daemon reads the same
// file when a preset is loaded.
type PresetStore interface {
	List() ([]string, error)
	Get(name string) (preset.Offsets, error)
	Save(name string, o preset.Offsets) error
	Delete(name string) (bool, error)
}

var _ PresetStore = (*preset.FileStore)(nil)

// Options configure Run.
type Options struct {
	Client  Client
	Presets PresetStore
	Bases   layout.BaseSizes
}

// Run starts the panel and blocks until the user quits.
func Run(ctx context.Context, opts Options) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("tui requires an interactive terminal (stdin/stdout must be TTYs)")
	}
	if opts.Bases == nil {
		opts.Bases = layout.DefaultBaseSizes()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newModel(opts), tea.WithAltScreen(), tea.WithContext(ctx))
	go func() {
		err := opts.Client.Subscribe(ctx, func(ev events.Event) error {
			p.Send(eventMsg(ev))
			return nil
		})
		if err != nil && ctx.Err() == nil {
			p.Send(disconnectedMsg{err: err})
		}
	}()

	_, err := p.Run()
	if err == tea.ErrProgramKilled && ctx.Err() != nil {
		return nil
	}
	return err
}
