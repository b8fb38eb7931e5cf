// Package daemon wires the engine to the X server, the device, the IPC
// socket and the global hotkeys, and runs them until shutdown.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thordock/thordock/internal/config"
	"github.com/thordock/thordock/internal/device"
	"github.com/thordock/thordock/internal/engine"
	"github.com/thordock/thordock/internal/hotkeys"
	"github.com/thordock/thordock/internal/ipc"
	"github.com/thordock/thordock/internal/metrics"
	"github.com/thordock/thordock/internal/platform"
	"github.com/thordock/thordock/internal/preset"
	"github.com/thordock/thordock/internal/screenshot"
	"github.com/thordock/thordock/internal/supervisor"
)

// ErrAlreadyRunning is returned when another daemon owns the socket.
var ErrAlreadyRunning = errors.New("thordock daemon is already running")

const cleanupTimeout = 15 * time.Second

// Run starts the daemon and blocks until ctx is done, SIGINT or SIGTERM
// arrives, or the user closes the container window. Both sessions are
// terminated and the device is cleaned up before it returns.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if ipc.NewClient().Available() {
		return ErrAlreadyRunning
	}
	local := *cfg
	cfg = &local

	ctx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	backend, err := platform.NewLinuxBackendFromDisplay()
	if err != nil {
		return err
	}
	defer backend.Disconnect()

	caps := backend.Capabilities()
	reparenter, err := platform.NewReparenter(cfg.ReparentStrategy, caps)
	if err != nil {
		return err
	}
	logger.Info("display server probed", "capabilities", caps.String(), "reparent", reparenter.Name())

	if cfg.Container.FollowPointer {
		origin := backend.ContainerOrigin()
		cfg.Container.X += origin.X
		cfg.Container.Y += origin.Y
	}
	container, err := backend.CreateContainer(cfg.Container.Title, platform.Rect{
		X: cfg.Container.X, Y: cfg.Container.Y, Width: 1, Height: 1,
	})
	if err != nil {
		return err
	}
	backend.OnContainerClose(container, func() {
		logger.Info("container window closed, shutting down")
		cancel()
	})

	adb := device.New(cfg.ADBPath, logger.With("component", "device"))
	serial := cfg.Serial
	if serial == "" {
		if serial, err = adb.Detect(ctx); err != nil {
			backend.DestroyWindow(container)
			return fmt.Errorf("detect device: %w", err)
		}
	}
	logger.Info("device selected", "serial", serial)

	logDir, err := cfg.ResolvedLogDir()
	if err != nil {
		logger.Warn("process logs disabled", "error", err)
		logDir = ""
	}
	presetsPath, err := cfg.ResolvedPresetsFile()
	if err != nil {
		backend.DestroyWindow(container)
		return err
	}

	m := metrics.New()
	if cfg.MetricsListen != "" {
		go func() {
			if err := m.Serve(ctx, cfg.MetricsListen, logger.With("component", "metrics")); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	sup := supervisor.New(nil, cfg.TerminateGrace(), logDir, logger.With("component", "supervisor"))
	eng, err := engine.New(engine.Options{
		Config:       cfg,
		WindowSystem: backend,
		Reparenter:   reparenter,
		Container:    container,
		Launcher:     engine.SupervisorLauncher(sup),
		Presets:      preset.NewFileStore(presetsPath),
		Clipboard:    screenshot.SystemClipboard{},
		Metrics:      m,
		Logger:       logger.With("component", "engine"),
		Serial:       serial,
	})
	if err != nil {
		backend.DestroyWindow(container)
		return err
	}
	engineDone := make(chan error, 1)
	go func() { engineDone <- eng.Run(ctx) }()

	server, err := ipc.NewServer(eng, logger.With("component", "ipc"))
	if err == nil {
		err = server.Start()
	}
	if err != nil {
		cancel()
		shutdown(eng, backend, container, adb, serial, cfg, logger)
		return err
	}

	keys := hotkeys.NewHandler(backend.Connection(), eng, logger.With("component", "hotkeys"))
	if err := keys.Register(cfg.Hotkeys); err != nil {
		logger.Warn("hotkeys unavailable", "error", err)
	}

	watch := NewReconciler(ReconcilerConfig{Logger: logger.With("component", "watch")}, eng)
	go watch.Run(ctx)

	if err := eng.Launch(); err != nil {
		logger.Error("initial launch rejected", "error", err)
	}

	conn := backend.Connection()
	go func() {
		<-ctx.Done()
		conn.Quit()
	}()
	logger.Info("thordock daemon started", "socket", server.SocketPath(), "presets", presetsPath)
	conn.EventLoop()

	logger.Info("shutting down thordock daemon")
	server.Stop()
	if err := <-engineDone; err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("engine stopped with error", "error", err)
	}
	shutdown(eng, backend, container, adb, serial, cfg, logger)
	return nil
}

func shutdown(eng *engine.Engine, backend *platform.LinuxBackend, container platform.WindowID, adb *device.ADB, serial string, cfg *config.Config, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.TerminateGrace()+time.Second)
	defer cancel()
	if err := eng.Shutdown(ctx); err != nil {
		logger.Warn("sessions did not stop cleanly", "error", err)
	}
	if err := backend.DestroyWindow(container); err != nil {
		logger.Warn("failed to destroy container", "error", err)
	}

	cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cleanupCancel()
	if err := adb.Cleanup(cleanupCtx, serial); err != nil {
		logger.Warn("device cleanup incomplete", "error", err)
	}
}
