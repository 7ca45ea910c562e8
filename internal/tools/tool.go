// Package tools holds the device tools the assistant backend may invoke.
package tools

import (
	"context"

	"github.com/longregen/alicia-sub010/pkg/protocol"
)

// Tool is one device capability.
type Tool interface {
	// Name returns the unique identifier sent to the backend.
	Name() string

	// Description returns a human-readable summary for the agent.
	Description() string

	// InputSchema returns the JSON schema of the arguments as a Value tree.
	InputSchema() protocol.Value

	// Execute runs the tool. Implementations should honor ctx cancellation.
	Execute(ctx context.Context, args protocol.Map) (protocol.Value, error)
}

// FuncTool builds a Tool from plain fields.
type FuncTool struct {
	ToolName        string
	ToolDescription string
	Schema          protocol.Value
	Fn              func(ctx context.Context, args protocol.Map) (protocol.Value, error)
}

func (t *FuncTool) Name() string        { return t.ToolName }
func (t *FuncTool) Description() string { return t.ToolDescription }

func (t *FuncTool) InputSchema() protocol.Value {
	if t.Schema == nil {
		return objectSchema(nil)
	}
	return t.Schema
}

func (t *FuncTool) Execute(ctx context.Context, args protocol.Map) (protocol.Value, error) {
	if t.Fn == nil {
		return protocol.Nil{}, nil
	}
	return t.Fn(ctx, args)
}

// describedTool overrides the description of another tool.
type describedTool struct {
	Tool
	description string
}

func (t describedTool) Description() string { return t.description }

type property struct {
	name        string
	kind        string
	description string
}

func objectSchema(props []property, required ...string) protocol.Value {
	properties := protocol.Map{}
	for _, p := range props {
		properties.Set(p.name, protocol.NewMap(
			protocol.E("type", protocol.String(p.kind)),
			protocol.E("description", protocol.String(p.description)),
		))
	}
	schema := protocol.NewMap(
		protocol.E("type", protocol.String("object")),
		protocol.E("properties", properties),
	)
	if len(required) > 0 {
		list := make(protocol.List, 0, len(required))
		for _, name := range required {
			list = append(list, protocol.String(name))
		}
		schema.Set("required", list)
	}
	return schema
}
