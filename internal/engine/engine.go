// Package engine owns the two mirror sessions, the dock state machine and
// the layout scheduler, and runs user commands against them one at a time.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/thordock/thordock/internal/clock"
	"github.com/thordock/thordock/internal/config"
	"github.com/thordock/thordock/internal/dock"
	"github.com/thordock/thordock/internal/events"
	"github.com/thordock/thordock/internal/fault"
	"github.com/thordock/thordock/internal/layout"
	"github.com/thordock/thordock/internal/locator"
	"github.com/thordock/thordock/internal/metrics"
	"github.com/thordock/thordock/internal/platform"
	"github.com/thordock/thordock/internal/preset"
	"github.com/thordock/thordock/internal/screenshot"
	"github.com/thordock/thordock/internal/session"
)

// QueueSize bounds the number of commands waiting to run.
const QueueSize = 32

var (
	ErrQueueFull = errors.New("engine command queue is full")
	ErrStopped   = errors.New("engine is not running")
)

// Options wire an Engine to its collaborators. Config, WindowSystem,
// Reparenter, Container and Launcher are required.
type Options struct {
	Config       *config.Config
	WindowSystem platform.WindowSystem
	Reparenter   platform.Reparenter
	Container    platform.WindowID
	Launcher     Launcher
	Presets      preset.Source
	Clipboard    screenshot.Clipboard
	Clock        clock.Clock
	Bus          *events.Bus
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	// Serial is the device passed to the mirroring binary. Defaults to
	// Config.Serial.
	Serial string
	// NewToken returns the window-title token of a new session.
	NewToken func() string
}

type Engine struct {
	cfg      *config.Config
	serial   string
	ws       platform.WindowSystem
	launcher Launcher
	presets  preset.Source
	clock    clock.Clock
	bus      *events.Bus
	metrics  *metrics.Metrics
	logger   *slog.Logger
	newToken func() string

	dock      *dock.Machine
	scheduler *layout.Scheduler
	locator   *locator.Locator
	shots     *screenshot.Compositor

	cmds    chan Command
	ctx     context.Context
	cancel  context.CancelFunc
	running chan struct{}

	mu       sync.Mutex
	sessions map[session.Role]*session.Session
	procs    map[session.Role]Process
}

func New(opts Options) (*Engine, error) {
	switch {
	case opts.Config == nil:
		return nil, fmt.Errorf("engine: config is required")
	case opts.WindowSystem == nil:
		return nil, fmt.Errorf("engine: window system is required")
	case opts.Reparenter == nil:
		return nil, fmt.Errorf("engine: reparenter is required")
	case opts.Container == 0:
		return nil, fmt.Errorf("engine: container window is required")
	case opts.Launcher == nil:
		return nil, fmt.Errorf("engine: launcher is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Bus == nil {
		opts.Bus = events.NewBus()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NewToken == nil {
		opts.NewToken = func() string { return uuid.NewString()[:8] }
	}
	if opts.Serial == "" {
		opts.Serial = opts.Config.Serial
	}

	cfg := opts.Config
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:      cfg,
		serial:   opts.Serial,
		ws:       opts.WindowSystem,
		launcher: opts.Launcher,
		presets:  opts.Presets,
		clock:    opts.Clock,
		bus:      opts.Bus,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		newToken: opts.NewToken,
		cmds:     make(chan Command, QueueSize),
		ctx:      ctx,
		cancel:   cancel,
		running:  make(chan struct{}),
		sessions: map[session.Role]*session.Session{},
		procs:    map[session.Role]Process{},
	}

	bases := BaseSizes(cfg)
	initial := layout.DefaultSpec(cfg.Scale, bases)
	if cfg.Layout != nil {
		initial = initial.WithOffsets(cfg.Layout.TX, cfg.Layout.TY, cfg.Layout.BX, cfg.Layout.BY)
	}

	e.dock = dock.New(e.ws, opts.Reparenter, opts.Container, e.logger.With("component", "dock"), e.dockStateChanged)
	e.scheduler = layout.NewScheduler(e.ws, layout.Options{
		Clock:       e.clock,
		Debounce:    cfg.Debounce(),
		MinInterval: cfg.MinInterval(),
		Bases:       bases,
		Initial:     initial,
		Reporter:    e,
		Logger:      e.logger.With("component", "layout"),
	})
	e.dock.SetHooks(dock.Hooks{Docked: e.startSync, Releasing: e.stopSync})
	e.locator = locator.New(e.ws, e.clock, cfg.PollInterval(), cfg.LocateTimeout(), e.logger.With("component", "locator"))
	e.shots = screenshot.New(e.ws, opts.Clipboard, cfg.Screenshot.SaveDir, e.clock.Now, e.logger.With("component", "screenshot"))
	return e, nil
}

// BaseSizes returns the unscaled window sizes from cfg.
func BaseSizes(cfg *config.Config) layout.BaseSizes {
	return layout.BaseSizes{
		session.RoleTop:    {Width: cfg.Top.BaseWidth, Height: cfg.Top.BaseHeight},
		session.RoleBottom: {Width: cfg.Bottom.BaseWidth, Height: cfg.Bottom.BaseHeight},
	}
}

// Bus returns the event bus the engine publishes on.
func (e *Engine) Bus() *events.Bus {
	return e.bus
}

// Run executes queued commands until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	select {
	case <-e.running:
		return fmt.Errorf("engine: already running")
	default:
		close(e.running)
	}
	e.logger.Info("engine started", "scale", e.cfg.Scale, "container", e.dock.Container())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.ctx.Done():
			return nil
		case cmd := <-e.cmds:
			e.execute(cmd)
		}
	}
}

// Submit validates cmd and queues it. It never waits for the command to
// run; outcomes are published as events.
func (e *Engine) Submit(cmd Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	if e.ctx.Err() != nil {
		return ErrStopped
	}
	select {
	case e.cmds <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

func (e *Engine) Launch(roles ...session.Role) error {
	return e.Submit(Command{Kind: CmdLaunch, Roles: roles})
}

func (e *Engine) Terminate(roles ...session.Role) error {
	return e.Submit(Command{Kind: CmdTerminate, Roles: roles})
}

func (e *Engine) Dock() error {
	return e.Submit(Command{Kind: CmdDock})
}

func (e *Engine) Undock() error {
	return e.Submit(Command{Kind: CmdUndock})
}

// ToggleDock docks when undocked and undocks otherwise.
func (e *Engine) ToggleDock() error {
	if e.dock.State() == dock.Undocked {
		return e.Dock()
	}
	return e.Undock()
}

func (e *Engine) SetLayout(spec layout.Spec) error {
	return e.Submit(Command{Kind: CmdSetLayout, Layout: spec})
}

func (e *Engine) SetScale(scale float64) error {
	return e.Submit(Command{Kind: CmdSetScale, Scale: scale})
}

func (e *Engine) LoadPreset(name string) error {
	return e.Submit(Command{Kind: CmdLoadPreset, Preset: name})
}

func (e *Engine) Screenshot() error {
	return e.Submit(Command{Kind: CmdScreenshot})
}

func (e *Engine) execute(cmd Command) {
	e.logger.Debug("command", "kind", cmd.Kind)
	switch cmd.Kind {
	case CmdLaunch:
		e.launch(cmd.roles())
	case CmdTerminate:
		e.terminate(cmd.roles())
	case CmdDock:
		e.dockPair()
	case CmdUndock:
		e.undockPair()
	case CmdSetLayout:
		e.scheduler.Submit(cmd.Layout)
	case CmdSetScale:
		spec := e.scheduler.Latest()
		spec.Scale = cmd.Scale
		e.scheduler.Submit(spec)
	case CmdLoadPreset:
		e.loadPreset(cmd.Preset)
	case CmdScreenshot:
		e.screenshot()
	}
}

// Shutdown undocks, ends both sessions and waits for their processes to
// exit or ctx to expire. The engine accepts no commands afterwards.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.cancel()
	e.scheduler.Cancel()
	vanished, _ := e.dock.ForceUndock()
	for _, role := range vanished {
		e.logger.Warn("window vanished during shutdown", "role", role)
	}

	var wg sync.WaitGroup
	var errs []error
	var errMu sync.Mutex
	for _, role := range session.Roles {
		sess, proc := e.current(role)
		if sess == nil {
			continue
		}
		if sess.Finish(session.Terminated, nil) {
			e.publishStatus(sess)
		}
		if proc == nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := proc.Terminate(ctx); err != nil {
				errMu.Lock()
				errs = append(errs, fmt.Errorf("terminate %s: %w", role, err))
				errMu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (e *Engine) current(role session.Role) (*session.Session, Process) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions[role], e.procs[role]
}

func (e *Engine) publish(ev events.Event) {
	ev.Time = e.clock.Now()
	e.bus.Publish(ev)
}

func (e *Engine) publishStatus(sess *session.Session) {
	ev := events.Event{
		Kind:   events.SessionStatusChanged,
		Role:   string(sess.Role),
		Status: sess.Status().String(),
	}
	if cause := sess.Cause(); cause != nil {
		ev.Message = cause.Error()
	}
	e.publish(ev)
}

func (e *Engine) publishFault(err error, role string) {
	e.publish(events.Event{
		Kind:    events.Fault,
		Role:    role,
		Fault:   string(fault.KindOf(err)),
		Message: err.Error(),
	})
}

func (e *Engine) dockStateChanged(s dock.State) {
	e.publish(events.Event{Kind: events.DockStateChanged, State: s.String()})
}
