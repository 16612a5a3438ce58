package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convoke"
)

func TestNewFuncToolDefaults(t *testing.T) {
	tool := NewFuncTool("echo", func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"echo": params["message"]}, nil
	})

	assert.Equal(t, "echo", tool.Name())
	assert.Equal(t, "1.0.0", tool.Descriptor().Version)
	assert.Empty(t, tool.Descriptor().Description)
}

func TestFuncToolOptions(t *testing.T) {
	schema := map[string]interface{}{"type": "object"}
	example := convoke.ToolExample{Description: "echo hello", Parameters: map[string]interface{}{"message": "hello"}}
	constraints := convoke.ToolConstraints{MaxExecutionTimeMS: 1000, RateLimitPerMinute: 10}

	tool := NewFuncTool("echo", nil,
		WithDescription("Echoes the message back"),
		WithCategory(convoke.CategoryDataQuery),
		WithVersion("2.1.0"),
		WithSchema(schema),
		WithExamples(example),
		WithConstraints(constraints),
		WithTags("echo", "demo"),
	)

	d := tool.Descriptor()
	assert.Equal(t, "Echoes the message back", d.Description)
	assert.Equal(t, convoke.CategoryDataQuery, d.Category)
	assert.Equal(t, "2.1.0", d.Version)
	assert.Equal(t, schema, d.ParametersSchema)
	require.Len(t, d.Examples, 1)
	assert.Equal(t, "echo hello", d.Examples[0].Description)
	assert.Equal(t, constraints, d.Constraints)
	assert.Equal(t, []string{"echo", "demo"}, d.Tags)
}

func TestExecutePassesParams(t *testing.T) {
	tool := NewFuncTool("echo", func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"echo": params["message"]}, nil
	})

	result, err := tool.Execute(context.Background(), map[string]interface{}{"message": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", result["echo"])
}

func TestExecuteNilParams(t *testing.T) {
	tool := NewFuncTool("inspect", func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
		require.NotNil(t, params)
		return map[string]interface{}{"count": len(params)}, nil
	})

	result, err := tool.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result["count"])
}

func TestExecuteNilFunc(t *testing.T) {
	tool := NewFuncTool("broken", nil)

	_, err := tool.Execute(context.Background(), nil)
	require.Error(t, err)
}
