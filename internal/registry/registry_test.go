package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convoke"
	"convoke/internal/tools"
)

func newTestRegistry(t *testing.T) *ToolRegistry {
	t.Helper()
	reg := New()
	for _, tool := range tools.SetupTools() {
		reg.Register(tool)
	}
	return reg
}

func TestDescribe(t *testing.T) {
	reg := newTestRegistry(t)

	all := reg.DescribeAll()
	assert.Len(t, all, 4)

	d, ok := reg.DescribeByName("search_items")
	require.True(t, ok)
	assert.Equal(t, convoke.CategoryDataQuery, d.Category)
	assert.Equal(t, "1.0.0", d.Version)
	assert.NotEmpty(t, d.Examples)

	byCategory := reg.DescribeByCategory(convoke.CategoryRelationExploration)
	require.Len(t, byCategory, 1)
	assert.Equal(t, "explore_relations", byCategory[0].Name)

	_, ok = reg.DescribeByName("nonexistent")
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	reg := newTestRegistry(t)

	t.Run("valid parameters", func(t *testing.T) {
		violations := reg.Validate("search_items", map[string]interface{}{
			"query": "rust compilers",
			"limit": 10,
		})
		assert.Empty(t, violations)
	})

	t.Run("missing required field", func(t *testing.T) {
		violations := reg.Validate("search_items", map[string]interface{}{
			"limit": 10,
		})
		require.Len(t, violations, 1)
		assert.Equal(t, "/query", violations[0].Field)
		assert.Equal(t, "required", violations[0].ErrorType)
	})

	t.Run("wrong type", func(t *testing.T) {
		violations := reg.Validate("search_items", map[string]interface{}{
			"query": "x",
			"limit": "ten",
		})
		require.NotEmpty(t, violations)
		assert.Equal(t, "/limit", violations[0].Field)
	})

	t.Run("unknown tool", func(t *testing.T) {
		violations := reg.Validate("no_such_tool", map[string]interface{}{})
		require.Len(t, violations, 1)
		assert.Equal(t, "unknown_tool", violations[0].ErrorType)
	})
}

func TestExecuteRecordsMetrics(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	_, ok := reg.Metrics("search_items")
	assert.False(t, ok)

	result, err := reg.Execute(ctx, "search_items", map[string]interface{}{"query": "go generics"})
	require.NoError(t, err)
	assert.NotNil(t, result)

	metrics, ok := reg.Metrics("search_items")
	require.True(t, ok)
	assert.Equal(t, int64(1), metrics.TotalInvocations)
	assert.Equal(t, int64(1), metrics.Successes)
	require.NotNil(t, metrics.LastInvocation)

	_, err = reg.Execute(ctx, "search_items", map[string]interface{}{"query": "zig"})
	require.NoError(t, err)
	metrics, _ = reg.Metrics("search_items")
	assert.Equal(t, int64(2), metrics.TotalInvocations)
	assert.GreaterOrEqual(t, metrics.MeanElapsedMS, 0.0)
}

func TestExecuteInvalidCallSkipsMetrics(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Execute(context.Background(), "search_items", map[string]interface{}{"limit": 10})
	require.Error(t, err)
	assert.Equal(t, convoke.ErrCodeInvalidCall, convoke.ErrorCode(err))

	_, ok := reg.Metrics("search_items")
	assert.False(t, ok, "rejected call must not touch metrics")
}

func TestExecuteUnknownTool(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Execute(context.Background(), "no_such_tool", map[string]interface{}{})
	require.Error(t, err)
	assert.Equal(t, convoke.ErrCodeInvalidCall, convoke.ErrorCode(err))
}

func TestExecuteFailureCountsFailed(t *testing.T) {
	reg := New()
	boom := errors.New("backend down")
	reg.Register(tools.NewFuncTool("flaky",
		func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
			return nil, boom
		},
		tools.WithCategory(convoke.CategoryAnalytics),
		tools.WithSchema(map[string]interface{}{"type": "object"}),
	))

	_, err := reg.Execute(context.Background(), "flaky", map[string]interface{}{})
	require.Error(t, err)
	assert.Equal(t, convoke.ErrCodeToolExecution, convoke.ErrorCode(err))

	metrics, ok := reg.Metrics("flaky")
	require.True(t, ok)
	assert.Equal(t, int64(1), metrics.TotalInvocations)
	assert.Equal(t, int64(1), metrics.Failures)
}

func TestRegisterReplaces(t *testing.T) {
	reg := New()
	makeTool := func(desc string) convoke.Tool {
		return tools.NewFuncTool("dup",
			func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
				return map[string]interface{}{}, nil
			},
			tools.WithDescription(desc),
		)
	}

	reg.Register(makeTool("first"))
	reg.Register(makeTool("second"))

	d, ok := reg.DescribeByName("dup")
	require.True(t, ok)
	assert.Equal(t, "second", d.Description)
	assert.Len(t, reg.DescribeAll(), 1)
}

func TestMetricsSnapshotIsolation(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Execute(context.Background(), "search_entities", map[string]interface{}{"query": "ai"})
	require.NoError(t, err)

	first, _ := reg.Metrics("search_entities")
	require.NotNil(t, first.LastInvocation)
	*first.LastInvocation = time.Time{}

	second, _ := reg.Metrics("search_entities")
	assert.False(t, second.LastInvocation.IsZero(), "snapshot must not alias internal state")
}
