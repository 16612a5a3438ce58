package conversation

import (
	"strings"

	"convoke"
	"convoke/internal/planner"
)

// planToolCalls turns stored plan text into executable tool calls. A plan
// that parses cleanly but names no steps means the planner decided no
// tools are needed, so no calls are returned. Unparseable plan text falls
// back to keyword matching so a malformed LLM response still makes
// forward progress.
func planToolCalls(planText string) []convoke.ToolCall {
	plan, err := planner.ParsePlan(planText)
	if err != nil {
		return fallbackToolCalls(planText)
	}

	calls := make([]convoke.ToolCall, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		if step.ToolName == "" {
			continue
		}
		calls = append(calls, convoke.ToolCall{
			ToolName:   step.ToolName,
			Parameters: step.Parameters,
		})
	}
	return calls
}

func fallbackToolCalls(planText string) []convoke.ToolCall {
	lower := strings.ToLower(planText)
	switch {
	case strings.Contains(lower, "search") || strings.Contains(lower, "find"):
		return []convoke.ToolCall{{
			ToolName:   "search_entities",
			Parameters: map[string]interface{}{"query": "general search", "limit": 10},
		}}
	case strings.Contains(lower, "relation"):
		return []convoke.ToolCall{{
			ToolName:   "explore_relations",
			Parameters: map[string]interface{}{"entity_type": "company"},
		}}
	default:
		return []convoke.ToolCall{{
			ToolName:   "search_items",
			Parameters: map[string]interface{}{"query": planText},
		}}
	}
}
