// Package tools defines the static dispatch table of capabilities the
// conversational agent may invoke.
package tools

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownTool is returned by Dispatch for names not in the table. It
// is distinct from a capability-internal failure.
var ErrUnknownTool = errors.New("unknown tool")

// Property describes one schema field of a tool's input.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Schema declares the input shape of a tool.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required"`
}

// Function is the provider-facing declaration of a tool.
type Function struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  Schema `json:"parameters"`
}

// Spec is a tool declaration in the chat-completions wire shape.
type Spec struct {
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

// Tool is one named capability.
type Tool struct {
	Function Function
	Run      func(ctx context.Context, args map[string]any) (any, error)
}

// Table is a static name -> capability mapping.
type Table struct {
	tools map[string]Tool
	order []string
}

// NewTable builds a dispatch table. Duplicate names are a programming
// error and panic at construction.
func NewTable(tools ...Tool) *Table {
	t := &Table{tools: make(map[string]Tool, len(tools))}
	for _, tool := range tools {
		if _, dup := t.tools[tool.Function.Name]; dup {
			panic(fmt.Sprintf("tools: duplicate tool %q", tool.Function.Name))
		}
		t.tools[tool.Function.Name] = tool
		t.order = append(t.order, tool.Function.Name)
	}
	return t
}

// Specs returns provider-ready declarations in registration order.
func (t *Table) Specs() []Spec {
	specs := make([]Spec, 0, len(t.order))
	for _, name := range t.order {
		specs = append(specs, Spec{Type: "function", Function: t.tools[name].Function})
	}
	return specs
}

// Dispatch resolves and runs a tool by name. An unknown name returns
// ErrUnknownTool; a run failure returns the capability's own error.
func (t *Table) Dispatch(ctx context.Context, name string, args map[string]any) (any, error) {
	tool, ok := t.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	for _, req := range tool.Function.Parameters.Required {
		if _, present := args[req]; !present {
			return nil, fmt.Errorf("tool %s: missing required argument %q", name, req)
		}
	}

	return tool.Run(ctx, args)
}
