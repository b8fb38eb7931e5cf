package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/thordock/thordock/internal/config"
	"github.com/thordock/thordock/internal/daemon"
	"github.com/thordock/thordock/internal/engine"
	"github.com/thordock/thordock/internal/ipc"
	"github.com/thordock/thordock/internal/preset"
	"github.com/thordock/thordock/internal/tui"
)

func main() {
	if len(os.Args) < 2 {
		printMainUsage(os.Stdout)
		os.Exit(0)
	}

	args := os.Args[2:]
	switch os.Args[1] {
	case "daemon":
		os.Exit(runDaemon(args))
	case "status":
		os.Exit(runStatus(args))
	case "launch":
		os.Exit(runRoleCommand("launch", args, ipc.NewClient().Launch))
	case "terminate":
		os.Exit(runRoleCommand("terminate", args, ipc.NewClient().Terminate))
	case "dock":
		os.Exit(runSimpleCommand("dock", args, ipc.NewClient().Dock))
	case "undock":
		os.Exit(runSimpleCommand("undock", args, ipc.NewClient().Undock))
	case "screenshot":
		os.Exit(runSimpleCommand("screenshot", args, ipc.NewClient().Screenshot))
	case "layout":
		os.Exit(runLayout(args))
	case "scale":
		os.Exit(runScale(args))
	case "preset":
		os.Exit(runPreset(args))
	case "events":
		os.Exit(runEvents(args))
	case "config":
		os.Exit(runConfig(args))
	case "tui":
		os.Exit(runTUI(args))
	case "mcp":
		os.Exit(runMCP(args))
	case "help", "-h", "--help":
		printMainUsage(os.Stdout)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printMainUsage(os.Stderr)
		os.Exit(2)
	}
}

func printMainUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: thordock <command> [options]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  daemon              Start the thordock daemon (foreground)")
	fmt.Fprintln(w, "  status              Show sessions, dock state and layout")
	fmt.Fprintln(w, "  events              Stream daemon events")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  launch [role...]    Start mirroring for top, bottom or both")
	fmt.Fprintln(w, "  terminate [role...] Stop mirroring for top, bottom or both")
	fmt.Fprintln(w, "  dock                Embed both windows in the container")
	fmt.Fprintln(w, "  undock              Release both windows")
	fmt.Fprintln(w, "  screenshot          Capture the docked pair to the clipboard")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  layout set          Change window offsets")
	fmt.Fprintln(w, "  scale <value>       Change window scale")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  preset list         List saved presets")
	fmt.Fprintln(w, "  preset load         Apply a preset")
	fmt.Fprintln(w, "  preset save         Save offsets as a preset")
	fmt.Fprintln(w, "  preset delete       Delete a preset")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  config validate     Validate configuration")
	fmt.Fprintln(w, "  config print        Print configuration")
	fmt.Fprintln(w, "  config explain      Explain a config value")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  tui                 Open interactive control panel")
	fmt.Fprintln(w, "  mcp serve           Start MCP server (stdio transport)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'thordock <command> --help' for command-specific options.")
}

// newFlagSet returns a flag set that prints usage to stderr.
func newFlagSet(name, usage string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: thordock "+usage)
		if fs.HasFlags() {
			fmt.Fprintln(os.Stderr, "")
			fmt.Fprintln(os.Stderr, "Options:")
			fs.PrintDefaults()
		}
	}
	return fs
}

// parseFlags parses args and maps errors to an exit code; ok is false when
// the caller should return code.
func parseFlags(fs *pflag.FlagSet, args []string) (code int, ok bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0, false
		}
		return 2, false
	}
	return 0, true
}

// loadConfig reads the config file at path, or the default location when
// path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	res, err := config.LoadFromPath(path)
	if err != nil {
		return nil, err
	}
	return res.Config, nil
}

func presetStore(cfg *config.Config) (*preset.FileStore, error) {
	path, err := cfg.ResolvedPresetsFile()
	if err != nil {
		return nil, err
	}
	return preset.NewFileStore(path), nil
}

func runDaemon(args []string) int {
	fs := newFlagSet("daemon", "daemon [--path PATH] [--log-level LEVEL]")
	path := fs.String("path", "", "Config file path (default: ~/.config/thordock/config.yaml)")
	level := fs.String("log-level", "", "Override log_level (debug, info, warn, error)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "daemon takes no arguments")
		fs.Usage()
		return 2
	}

	cfg, err := loadConfig(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}
	if *level != "" {
		cfg.LogLevel = *level
	}

	logDir, err := cfg.ResolvedLogDir()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	logFile, err := daemon.OpenLogFile(logDir, 0, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open daemon log: %v\n", err)
		return 1
	}
	defer logFile.Close()

	logger := daemon.NewLogger(cfg.LogLevel, os.Stderr, logFile)
	slog.SetDefault(logger)
	logger.Info("configuration loaded",
		"scale", cfg.Scale,
		"auto_dock", cfg.AutoDock,
		"reparent_strategy", cfg.ReparentStrategy,
		"log", logFile.Path())

	if err := daemon.Run(context.Background(), cfg, logger); err != nil {
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		logger.Error("daemon failed", "error", err)
		return 1
	}
	logger.Info("daemon stopped")
	return 0
}

func runTUI(args []string) int {
	fs := newFlagSet("tui", "tui [--path PATH]")
	path := fs.String("path", "", "Config file path (default: ~/.config/thordock/config.yaml)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	cfg, err := loadConfig(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	store, err := presetStore(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = tui.Run(ctx, tui.Options{
		Client:  ipc.NewClient(),
		Presets: store,
		Bases:   engine.BaseSizes(cfg),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
