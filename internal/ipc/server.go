package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/thordock/thordock/internal/engine"
	"github.com/thordock/thordock/internal/events"
	"github.com/thordock/thordock/internal/layout"
	"github.com/thordock/thordock/internal/runtimepath"
	"github.com/thordock/thordock/internal/session"
)

// requestTimeout bounds how long a client may take to send its request.
const requestTimeout = 5 * time.Second

// subscriberBuffer is the per-connection event backlog before events are
// dropped for a slow reader.
const subscriberBuffer = 256

// Controller is the part of the engine the server drives.
type Controller interface {
	Submit(cmd engine.Command) error
	Status() engine.Status
	Bus() *events.Bus
}

// Server handles IPC requests from clients
type Server struct {
	socketPath string
	listener   net.Listener
	ctl        Controller
	logger     *slog.Logger

	shutdownMu   sync.Mutex
	shuttingDown bool
	done         chan struct{}
	conns        sync.WaitGroup
}

// NewServer creates a server on the default runtime socket.
func NewServer(ctl Controller, logger *slog.Logger) (*Server, error) {
	socketPath, err := runtimepath.SocketPath()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve IPC socket path: %w", err)
	}
	return NewServerAt(socketPath, ctl, logger), nil
}

// NewServerAt creates a server on socketPath. An existing socket file is
// removed.
func NewServerAt(socketPath string, ctl Controller, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	os.Remove(socketPath)
	return &Server{
		socketPath: socketPath,
		ctl:        ctl,
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// SocketPath returns the path the server listens on.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Start begins listening for IPC connections
func (s *Server) Start() error {
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create IPC socket: %w", err)
	}
	s.listener = listener

	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.logger.Info("IPC server listening", "socket", s.socketPath)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.shutdownMu.Lock()
			stopping := s.shuttingDown
			s.shutdownMu.Unlock()
			if stopping {
				return
			}
			s.logger.Warn("IPC accept error", "error", err)
			continue
		}

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.handleConnection(conn)
		}()
	}
}

// handleConnection serves one request per connection, except SUBSCRIBE
// which streams until either side closes.
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(requestTimeout))
	reader := bufio.NewReader(conn)
	data, err := reader.ReadBytes('\n')
	if err != nil && err != io.EOF {
		s.logger.Debug("IPC read error", "error", err)
		return
	}

	req, err := ParseRequest(data)
	if err != nil {
		s.send(conn, NewErrorResponse(fmt.Sprintf("Invalid request: %v", err)))
		return
	}

	if req.Command == CommandSubscribe {
		conn.SetReadDeadline(time.Time{})
		s.stream(conn, reader)
		return
	}
	s.send(conn, s.handleCommand(req))
}

func (s *Server) handleCommand(req *Request) *Response {
	switch req.Command {
	case CommandGetStatus:
		resp, err := NewOKResponse(s.ctl.Status())
		if err != nil {
			return NewErrorResponse(err.Error())
		}
		return resp
	case CommandToggleDock:
		cmd := engine.Command{Kind: engine.CmdDock}
		if s.ctl.Status().Dock != "undocked" {
			cmd.Kind = engine.CmdUndock
		}
		return s.submit(cmd)
	}

	cmd, err := s.toCommand(req)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return s.submit(cmd)
}

// toCommand translates a request into an engine command.
func (s *Server) toCommand(req *Request) (engine.Command, error) {
	switch req.Command {
	case CommandLaunch, CommandTerminate:
		var p RolesPayload
		if err := decodePayload(req.Payload, &p); err != nil {
			return engine.Command{}, err
		}
		cmd := engine.Command{Kind: engine.CmdLaunch}
		if req.Command == CommandTerminate {
			cmd.Kind = engine.CmdTerminate
		}
		for _, r := range p.Roles {
			role, err := session.ParseRole(r)
			if err != nil {
				return engine.Command{}, err
			}
			cmd.Roles = append(cmd.Roles, role)
		}
		return cmd, nil
	case CommandDock:
		return engine.Command{Kind: engine.CmdDock}, nil
	case CommandUndock:
		return engine.Command{Kind: engine.CmdUndock}, nil
	case CommandSetLayout:
		var p LayoutPayload
		if err := decodePayload(req.Payload, &p); err != nil {
			return engine.Command{}, err
		}
		spec := layout.Spec{TX: p.TX, TY: p.TY, BX: p.BX, BY: p.BY, Scale: p.Scale}
		if spec.Scale == 0 {
			spec.Scale = s.ctl.Status().Layout.Scale
		}
		return engine.Command{Kind: engine.CmdSetLayout, Layout: spec}, nil
	case CommandSetScale:
		var p ScalePayload
		if err := decodePayload(req.Payload, &p); err != nil {
			return engine.Command{}, err
		}
		return engine.Command{Kind: engine.CmdSetScale, Scale: p.Scale}, nil
	case CommandLoadPreset:
		var p PresetPayload
		if err := decodePayload(req.Payload, &p); err != nil {
			return engine.Command{}, err
		}
		return engine.Command{Kind: engine.CmdLoadPreset, Preset: p.Name}, nil
	case CommandScreenshot:
		return engine.Command{Kind: engine.CmdScreenshot}, nil
	default:
		return engine.Command{}, fmt.Errorf("Unknown command: %s", req.Command)
	}
}

func (s *Server) submit(cmd engine.Command) *Response {
	if err := s.ctl.Submit(cmd); err != nil {
		return NewErrorResponse(err.Error())
	}
	resp, _ := NewOKResponse(AcceptedData{Accepted: true, Command: string(cmd.Kind)})
	return resp
}

// stream acknowledges the subscription and forwards events until the
// client goes away or the server stops.
func (s *Server) stream(conn net.Conn, reader *bufio.Reader) {
	ch, cancel := s.ctl.Bus().Subscribe(subscriberBuffer)
	defer cancel()

	ok, _ := NewOKResponse(nil)
	if err := s.send(conn, ok); err != nil {
		return
	}

	gone := make(chan struct{})
	go func() {
		// Any read result means the client closed or misbehaved.
		reader.ReadByte()
		close(gone)
	}()

	enc := json.NewEncoder(conn)
	for {
		select {
		case <-gone:
			return
		case <-s.done:
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			if err := enc.Encode(ev); err != nil {
				return
			}
		}
	}
}

func (s *Server) send(conn net.Conn, resp *Response) error {
	data, err := resp.Marshal()
	if err != nil {
		s.logger.Warn("failed to marshal response", "error", err)
		return err
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		s.logger.Debug("failed to send response", "error", err)
		return err
	}
	return nil
}

// Stop closes the listener, ends event streams and removes the socket.
func (s *Server) Stop() {
	s.shutdownMu.Lock()
	if s.shuttingDown {
		s.shutdownMu.Unlock()
		return
	}
	s.shuttingDown = true
	s.shutdownMu.Unlock()

	close(s.done)
	if s.listener != nil {
		s.listener.Close()
	}
	s.conns.Wait()
	os.Remove(s.socketPath)
}
