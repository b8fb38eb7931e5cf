package mcp

import "github.com/thordock/thordock/internal/engine"

// RolesInput selects screens for launch and terminate.
type RolesInput struct {
	Roles []string `json:"roles,omitempty" jsonschema:"Screens to act on: top, bottom. Default: both."`
}

// EmptyInput is the input of tools without arguments.
type EmptyInput struct{}

// SetLayoutInput is the input for the set_layout tool.
type SetLayoutInput struct {
	TX    *int     `json:"tx,omitempty" jsonschema:"Top window x offset inside the container, in pixels"`
	TY    *int     `json:"ty,omitempty" jsonschema:"Top window y offset inside the container, in pixels"`
	BX    *int     `json:"bx,omitempty" jsonschema:"Bottom window x offset inside the container, in pixels"`
	BY    *int     `json:"by,omitempty" jsonschema:"Bottom window y offset inside the container, in pixels"`
	Scale *float64 `json:"scale,omitempty" jsonschema:"Window scale, 0.3 to 1.0"`
}

// LoadPresetInput is the input for the load_preset tool.
type LoadPresetInput struct {
	Name string `json:"name" jsonschema:"Preset name"`
}

// AcceptedOutput acknowledges a queued command.
type AcceptedOutput struct {
	Accepted bool   `json:"accepted"`
	Command  string `json:"command"`
}

// StatusOutput is the output for the status tool.
type StatusOutput struct {
	Status engine.Status `json:"status"`
}
