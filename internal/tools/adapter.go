package tools

import (
	"context"
	"fmt"

	"convoke"
)

// FuncTool adapts a plain Go function to the convoke.Tool interface.
type FuncTool struct {
	toolFunc   func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error)
	descriptor convoke.ToolDescriptor
}

// ToolOption configures a FuncTool's descriptor.
type ToolOption func(*FuncTool)

// WithDescription sets a detailed description for the tool.
func WithDescription(description string) ToolOption {
	return func(t *FuncTool) {
		t.descriptor.Description = description
	}
}

// WithCategory sets the tool's category.
func WithCategory(category convoke.ToolCategory) ToolOption {
	return func(t *FuncTool) {
		t.descriptor.Category = category
	}
}

// WithVersion sets the tool's version string.
func WithVersion(version string) ToolOption {
	return func(t *FuncTool) {
		t.descriptor.Version = version
	}
}

// WithSchema sets the draft-07 JSON schema for the tool's parameters.
func WithSchema(schema map[string]interface{}) ToolOption {
	return func(t *FuncTool) {
		t.descriptor.ParametersSchema = schema
	}
}

// WithExamples adds usage examples to the descriptor.
func WithExamples(examples ...convoke.ToolExample) ToolOption {
	return func(t *FuncTool) {
		t.descriptor.Examples = append(t.descriptor.Examples, examples...)
	}
}

// WithConstraints sets the tool's resource constraints.
func WithConstraints(constraints convoke.ToolConstraints) ToolOption {
	return func(t *FuncTool) {
		t.descriptor.Constraints = constraints
	}
}

// WithTags sets the descriptor tags.
func WithTags(tags ...string) ToolOption {
	return func(t *FuncTool) {
		t.descriptor.Tags = tags
	}
}

// NewFuncTool creates a new adapter for a Go function.
func NewFuncTool(
	name string,
	toolFunc func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error),
	options ...ToolOption) *FuncTool {

	t := &FuncTool{
		toolFunc: toolFunc,
		descriptor: convoke.ToolDescriptor{
			Name:    name,
			Version: "1.0.0",
		},
	}

	// Apply all options
	for _, option := range options {
		option(t)
	}

	return t
}

// Execute implements the convoke.Tool interface.
func (t *FuncTool) Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	if t.toolFunc == nil {
		return nil, fmt.Errorf("tool function is nil")
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	return t.toolFunc(ctx, params)
}

// Descriptor implements the convoke.Tool interface.
func (t *FuncTool) Descriptor() convoke.ToolDescriptor {
	return t.descriptor
}

// Name implements the convoke.Tool interface.
func (t *FuncTool) Name() string {
	return t.descriptor.Name
}
