package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/thordock/thordock/internal/engine"
	"github.com/thordock/thordock/internal/events"
	"github.com/thordock/thordock/internal/runtimepath"
)

// Client handles IPC communication with the daemon
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a client for the default runtime socket.
func NewClient() *Client {
	socketPath, err := runtimepath.SocketPath()
	if err != nil {
		// Keep constructor non-failing; sendRequest surfaces connection errors.
		socketPath = ""
	}
	return NewClientAt(socketPath)
}

func NewClientAt(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    5 * time.Second,
	}
}

func (c *Client) dial() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w (is the daemon running?)", err)
	}
	return conn, nil
}

func writeRequest(conn net.Conn, req *Request) error {
	reqData, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	reqData = append(reqData, '\n')
	if _, err := conn.Write(reqData); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	return nil
}

func readResponse(reader *bufio.Reader) (*Response, error) {
	respData, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	var resp Response
	if err := json.Unmarshal(respData, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if resp.Status == "ERROR" {
		return nil, fmt.Errorf("daemon error: %s", resp.Error)
	}
	return &resp, nil
}

// sendRequest sends a request and waits for a response
// Available reports whether a daemon is accepting connections.
func (c *Client) Available() bool {
	conn, err := c.dial()
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (c *Client) sendRequest(req *Request) (*Response, error) {
	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(c.timeout))

	if err := writeRequest(conn, req); err != nil {
		return nil, err
	}
	return readResponse(bufio.NewReader(conn))
}

func (c *Client) command(cmd CommandType, payload any) error {
	req := &Request{Command: cmd}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		req.Payload = data
	}
	_, err := c.sendRequest(req)
	return err
}

// Launch starts the given sessions, or both when roles is empty.
func (c *Client) Launch(roles ...string) error {
	return c.command(CommandLaunch, RolesPayload{Roles: roles})
}

func (c *Client) Terminate(roles ...string) error {
	return c.command(CommandTerminate, RolesPayload{Roles: roles})
}

func (c *Client) Dock() error {
	return c.command(CommandDock, nil)
}

func (c *Client) Undock() error {
	return c.command(CommandUndock, nil)
}

func (c *Client) ToggleDock() error {
	return c.command(CommandToggleDock, nil)
}

func (c *Client) SetLayout(p LayoutPayload) error {
	return c.command(CommandSetLayout, p)
}

func (c *Client) SetScale(scale float64) error {
	return c.command(CommandSetScale, ScalePayload{Scale: scale})
}

func (c *Client) LoadPreset(name string) error {
	return c.command(CommandLoadPreset, PresetPayload{Name: name})
}

func (c *Client) Screenshot() error {
	return c.command(CommandScreenshot, nil)
}

// GetStatus retrieves daemon status
func (c *Client) GetStatus() (*engine.Status, error) {
	resp, err := c.sendRequest(&Request{Command: CommandGetStatus})
	if err != nil {
		return nil, err
	}
	var status engine.Status
	if err := json.Unmarshal(resp.Data, &status); err != nil {
		return nil, fmt.Errorf("failed to parse status data: %w", err)
	}
	return &status, nil
}

// Subscribe streams daemon events to fn until ctx is done, fn returns an
// error, or the daemon closes the stream.
func (c *Client) Subscribe(ctx context.Context, fn func(events.Event) error) error {
	conn, err := c.dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	conn.SetDeadline(time.Now().Add(c.timeout))
	if err := writeRequest(conn, &Request{Command: CommandSubscribe}); err != nil {
		return err
	}
	reader := bufio.NewReader(conn)
	if _, err := readResponse(reader); err != nil {
		return err
	}
	conn.SetDeadline(time.Time{})

	dec := json.NewDecoder(reader)
	for {
		var ev events.Event
		if err := dec.Decode(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("event stream closed: %w", err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}
