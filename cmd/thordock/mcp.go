package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/thordock/thordock/internal/daemon"
	"github.com/thordock/thordock/internal/ipc"
	"github.com/thordock/thordock/internal/mcp"
)

func printMCPUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: thordock mcp <command>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve    Start the MCP server (stdio transport)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'thordock mcp <command> --help' for command-specific options.")
}

func runMCP(args []string) int {
	if len(args) == 0 {
		printMCPUsage(os.Stderr)
		return 2
	}

	switch args[0] {
	case "serve":
		return runMCPServe(args[1:])
	case "help", "-h", "--help":
		printMCPUsage(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown mcp command: %s\n\n", args[0])
		printMCPUsage(os.Stderr)
		return 2
	}
}

func runMCPServe(args []string) int {
	fs := newFlagSet("mcp serve", "mcp serve [--log-level LEVEL]")
	level := fs.String("log-level", "warn", "Log level for stderr")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	// stdout carries the protocol; logs go to stderr only.
	logger := daemon.NewLogger(*level, os.Stderr)
	server := mcp.NewServer(ipc.NewClient(), logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("MCP server error", "error", err)
		return 1
	}
	return 0
}
