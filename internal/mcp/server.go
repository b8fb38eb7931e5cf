// Package mcp exposes the daemon's commands as Model Context Protocol tools
// over stdio, forwarding every call through the IPC socket.
package mcp

import (
	"context"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/thordock/thordock/internal/engine"
	"github.com/thordock/thordock/internal/ipc"
)

const (
	ServerName    = "thordock"
	ServerVersion = "0.1.0"
)

// Daemon is the subset of the IPC client the tools call.
type Daemon interface {
	Launch(roles ...string) error
	Terminate(roles ...string) error
	Dock() error
	Undock() error
	SetLayout(p ipc.LayoutPayload) error
	LoadPreset(name string) error
	Screenshot() error
	GetStatus() (*engine.Status, error)
}

var _ Daemon = (*ipc.Client)(nil)

// Server is the MCP server for thordock.
type Server struct {
	mcpServer *mcpsdk.Server
	daemon    Daemon
	logger    *slog.Logger
}

// NewServer creates an MCP server forwarding to daemon.
func NewServer(daemon Daemon, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{daemon: daemon, logger: logger}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport, blocking until done.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "launch",
		Description: "Start the mirroring process for the given screens (top, bottom; default both). Screens that are already running are left alone. The call returns once the daemon accepts the command; use status to see when windows become ready.",
	}, s.handleLaunch)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "terminate",
		Description: "Stop the mirroring process for the given screens (default both). A docked pair is undocked first.",
	}, s.handleTerminate)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "dock",
		Description: "Embed both mirrored windows into the host container. Both screens must be ready.",
	}, s.handleDock)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "undock",
		Description: "Release both mirrored windows back to independent top-level windows at their current position.",
	}, s.handleUndock)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "set_layout",
		Description: "Change window offsets inside the container and optionally the scale. Omitted fields keep their current value. Applies are debounced while docked.",
	}, s.handleSetLayout)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "load_preset",
		Description: "Apply a saved layout preset by name immediately.",
	}, s.handleLoadPreset)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "screenshot",
		Description: "Capture the docked pair as one PNG and copy it to the clipboard. Fails while undocked.",
	}, s.handleScreenshot)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "status",
		Description: "Report both sessions, the dock state, the current layout and the sync phase.",
	}, s.handleStatus)
}
