package ipc

import (
	"encoding/json"
	"fmt"
)

// CommandType represents different IPC command types
type CommandType string

const (
	CommandLaunch     CommandType = "LAUNCH"
	CommandTerminate  CommandType = "TERMINATE"
	CommandDock       CommandType = "DOCK"
	CommandUndock     CommandType = "UNDOCK"
	CommandToggleDock CommandType = "TOGGLE_DOCK"
	CommandSetLayout  CommandType = "SET_LAYOUT"
	CommandSetScale   CommandType = "SET_SCALE"
	CommandLoadPreset CommandType = "LOAD_PRESET"
	CommandScreenshot CommandType = "SCREENSHOT"
	CommandGetStatus  CommandType = "GET_STATUS"
	// CommandSubscribe keeps the connection open and streams events as JSON
	// lines until the client disconnects.
	CommandSubscribe CommandType = "SUBSCRIBE"
)

// Request represents an IPC request from client to server
type Request struct {
	Command CommandType     `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response represents an IPC response from server to client
type Response struct {
	Status string          `json:"status"` // "OK" or "ERROR"
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// RolesPayload selects sessions for LAUNCH and TERMINATE. Empty means both.
type RolesPayload struct {
	Roles []string `json:"roles,omitempty"`
}

// LayoutPayload is the payload of SET_LAYOUT. A zero Scale keeps the
// current scale.
type LayoutPayload struct {
	TX    int     `json:"tx"`
	TY    int     `json:"ty"`
	BX    int     `json:"bx"`
	BY    int     `json:"by"`
	Scale float64 `json:"scale,omitempty"`
}

type ScalePayload struct {
	Scale float64 `json:"scale"`
}

type PresetPayload struct {
	Name string `json:"name"`
}

// AcceptedData acknowledges a queued command. The outcome arrives later as
// an event.
type AcceptedData struct {
	Accepted bool   `json:"accepted"`
	Command  string `json:"command"`
}

// NewOKResponse creates a successful response with optional data
func NewOKResponse(data any) (*Response, error) {
	var dataBytes json.RawMessage
	if data != nil {
		bytes, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response data: %w", err)
		}
		dataBytes = bytes
	}

	return &Response{
		Status: "OK",
		Data:   dataBytes,
	}, nil
}

// NewErrorResponse creates an error response with a message
func NewErrorResponse(errMsg string) *Response {
	return &Response{
		Status: "ERROR",
		Error:  errMsg,
	}
}

// ParseRequest parses a request from JSON bytes
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	if req.Command == "" {
		return nil, fmt.Errorf("request has no command")
	}
	return &req, nil
}

// Marshal converts a response to JSON bytes
func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

func decodePayload(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}
