package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convoke"
)

func elapsed(ms int64) *int64 { return &ms }

func TestOptimizeParallelizesSlowSteps(t *testing.T) {
	plan := &convoke.QueryPlan{
		Complexity: convoke.ComplexityModerate,
		Steps: []convoke.PlanStep{
			{ID: 1, ToolName: "search_entities", Parameters: map[string]interface{}{"query": "ai"}},
			{ID: 2, ToolName: "explore_relations", Parameters: map[string]interface{}{}, DependsOn: []int{1}},
		},
	}
	history := []convoke.ToolExecution{
		{ToolName: "search_entities", ExecutionTimeMS: elapsed(8000)},
		{ToolName: "search_entities", ExecutionTimeMS: elapsed(6000)},
	}

	suggestions := Optimize(plan, history)

	require.Len(t, suggestions, 1)
	assert.Equal(t, "parallelize", suggestions[0].Kind)
	assert.Equal(t, 1, suggestions[0].StepID)
	assert.True(t, plan.Steps[0].CanRunParallel)
	// Step 2 has a dependency and stays sequential.
	assert.False(t, plan.Steps[1].CanRunParallel)
	// The estimate reflects the new parallelism.
	assert.Equal(t, int64(4200), plan.EstimatedDurationMS)
}

func TestOptimizeLeavesFastToolsSequential(t *testing.T) {
	plan := &convoke.QueryPlan{
		Complexity: convoke.ComplexitySimple,
		Steps: []convoke.PlanStep{
			{ID: 1, ToolName: "search_entities", Parameters: map[string]interface{}{"query": "ai"}},
		},
	}
	history := []convoke.ToolExecution{
		{ToolName: "search_entities", ExecutionTimeMS: elapsed(120)},
	}

	suggestions := Optimize(plan, history)

	assert.Empty(t, suggestions)
	assert.False(t, plan.Steps[0].CanRunParallel)
}

func TestOptimizeNeverParallelizesWrites(t *testing.T) {
	plan := &convoke.QueryPlan{
		Complexity: convoke.ComplexitySimple,
		Steps: []convoke.PlanStep{
			{ID: 1, ToolName: "update_entity", Parameters: map[string]interface{}{"id": "e1"}},
		},
	}
	history := []convoke.ToolExecution{
		{ToolName: "update_entity", ExecutionTimeMS: elapsed(9000)},
	}

	suggestions := Optimize(plan, history)

	assert.Empty(t, suggestions)
	assert.False(t, plan.Steps[0].CanRunParallel)
}

func TestOptimizeSuggestsCaching(t *testing.T) {
	params := map[string]interface{}{"query": "openai"}
	plan := &convoke.QueryPlan{
		Complexity: convoke.ComplexitySimple,
		Steps: []convoke.PlanStep{
			{ID: 1, ToolName: "search_entities", Parameters: params},
		},
	}
	history := []convoke.ToolExecution{
		{ToolName: "search_entities", Parameters: params},
		{ToolName: "search_entities", Parameters: params},
		{ToolName: "search_entities", Parameters: params},
	}

	suggestions := Optimize(plan, history)

	require.Len(t, suggestions, 1)
	assert.Equal(t, "cache", suggestions[0].Kind)
	assert.Equal(t, "search_entities", suggestions[0].ToolName)
	assert.Contains(t, suggestions[0].Description, "3 times")
}

func TestOptimizeRemovesRedundantSteps(t *testing.T) {
	params := map[string]interface{}{"query": "ai"}
	plan := &convoke.QueryPlan{
		Complexity: convoke.ComplexitySimple,
		Steps: []convoke.PlanStep{
			{ID: 1, ToolName: "search_entities", Parameters: params},
			{ID: 2, ToolName: "search_entities", Parameters: params},
			{ID: 3, ToolName: "explore_relations", Parameters: map[string]interface{}{}, DependsOn: []int{1}},
		},
	}

	suggestions := Optimize(plan, nil)

	require.Len(t, suggestions, 1)
	assert.Equal(t, "remove_redundant", suggestions[0].Kind)
	assert.Equal(t, 2, suggestions[0].StepID)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, 1, plan.Steps[0].ID)
	assert.Equal(t, 3, plan.Steps[1].ID)
	assert.Equal(t, int64(4000), plan.EstimatedDurationMS)
}

func TestOptimizeKeepsDuplicateWithDependents(t *testing.T) {
	params := map[string]interface{}{"query": "ai"}
	plan := &convoke.QueryPlan{
		Complexity: convoke.ComplexitySimple,
		Steps: []convoke.PlanStep{
			{ID: 1, ToolName: "search_entities", Parameters: params},
			{ID: 2, ToolName: "search_entities", Parameters: params},
			{ID: 3, ToolName: "explore_relations", Parameters: map[string]interface{}{}, DependsOn: []int{2}},
		},
	}

	suggestions := Optimize(plan, nil)

	assert.Empty(t, suggestions)
	assert.Len(t, plan.Steps, 3)
}
