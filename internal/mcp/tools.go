package mcp

import (
	"context"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/thordock/thordock/internal/ipc"
)

func accepted(command string, err error) (*mcpsdk.CallToolResult, AcceptedOutput, error) {
	if err != nil {
		return nil, AcceptedOutput{}, fmt.Errorf("%s: %w", command, err)
	}
	return nil, AcceptedOutput{Accepted: true, Command: command}, nil
}

func (s *Server) handleLaunch(_ context.Context, _ *mcpsdk.CallToolRequest, args RolesInput) (*mcpsdk.CallToolResult, AcceptedOutput, error) {
	s.logger.Info("mcp launch", "roles", args.Roles)
	return accepted("launch", s.daemon.Launch(args.Roles...))
}

func (s *Server) handleTerminate(_ context.Context, _ *mcpsdk.CallToolRequest, args RolesInput) (*mcpsdk.CallToolResult, AcceptedOutput, error) {
	s.logger.Info("mcp terminate", "roles", args.Roles)
	return accepted("terminate", s.daemon.Terminate(args.Roles...))
}

func (s *Server) handleDock(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, AcceptedOutput, error) {
	return accepted("dock", s.daemon.Dock())
}

func (s *Server) handleUndock(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, AcceptedOutput, error) {
	return accepted("undock", s.daemon.Undock())
}

// handleSetLayout fills omitted fields from the daemon's current layout.
func (s *Server) handleSetLayout(_ context.Context, _ *mcpsdk.CallToolRequest, args SetLayoutInput) (*mcpsdk.CallToolResult, AcceptedOutput, error) {
	st, err := s.daemon.GetStatus()
	if err != nil {
		return nil, AcceptedOutput{}, fmt.Errorf("set_layout: %w", err)
	}
	p := ipc.LayoutPayload{
		TX: st.Layout.TX,
		TY: st.Layout.TY,
		BX: st.Layout.BX,
		BY: st.Layout.BY,
	}
	if args.TX != nil {
		p.TX = *args.TX
	}
	if args.TY != nil {
		p.TY = *args.TY
	}
	if args.BX != nil {
		p.BX = *args.BX
	}
	if args.BY != nil {
		p.BY = *args.BY
	}
	if args.Scale != nil {
		p.Scale = *args.Scale
	}
	s.logger.Info("mcp set_layout", "tx", p.TX, "ty", p.TY, "bx", p.BX, "by", p.BY, "scale", p.Scale)
	return accepted("set_layout", s.daemon.SetLayout(p))
}

func (s *Server) handleLoadPreset(_ context.Context, _ *mcpsdk.CallToolRequest, args LoadPresetInput) (*mcpsdk.CallToolResult, AcceptedOutput, error) {
	name := strings.TrimSpace(args.Name)
	if name == "" {
		return nil, AcceptedOutput{}, fmt.Errorf("load_preset: name is required")
	}
	return accepted("load_preset", s.daemon.LoadPreset(name))
}

func (s *Server) handleScreenshot(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, AcceptedOutput, error) {
	return accepted("screenshot", s.daemon.Screenshot())
}

func (s *Server) handleStatus(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
	st, err := s.daemon.GetStatus()
	if err != nil {
		return nil, StatusOutput{}, fmt.Errorf("status: %w", err)
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: summarize(st.Dock, st.Sync, len(st.Sessions))},
		},
	}, StatusOutput{Status: *st}, nil
}

func summarize(dock, sync string, sessions int) string {
	return fmt.Sprintf("dock=%s sync=%s sessions=%d", dock, sync, sessions)
}
