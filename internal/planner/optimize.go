package planner

import (
	"encoding/json"
	"fmt"

	"convoke"
	"convoke/internal/executor"
)

// Mean elapsed time above which a tool counts as slow enough to be worth
// co-scheduling.
const slowToolThresholdMS = 5000

// Tools seen at least this often with identical parameters are caching
// candidates.
const cacheRepeatThreshold = 3

// OptimizationSuggestion records one mutation the optimizer applied or
// proposed for a validated plan.
type OptimizationSuggestion struct {
	Kind        string `json:"kind"` // "parallelize", "cache", "remove_redundant"
	StepID      int    `json:"step_id,omitempty"`
	ToolName    string `json:"tool_name"`
	Description string `json:"description"`
}

// Optimize applies history-informed improvements to an already-validated
// plan, preserving validity: slow read-safe cohorts are parallelized,
// frequently repeated calls are flagged for caching, and redundant steps
// are removed.
func Optimize(plan *convoke.QueryPlan, history []convoke.ToolExecution) []OptimizationSuggestion {
	var suggestions []OptimizationSuggestion

	suggestions = append(suggestions, parallelizeSlowSteps(plan, history)...)
	suggestions = append(suggestions, suggestCaching(plan, history)...)
	suggestions = append(suggestions, removeRedundantSteps(plan)...)

	plan.EstimatedDurationMS = EstimateDuration(plan)
	return suggestions
}

// parallelizeSlowSteps marks independent, read-safe steps of historically
// slow tools as parallel-safe.
func parallelizeSlowSteps(plan *convoke.QueryPlan, history []convoke.ToolExecution) []OptimizationSuggestion {
	meanByTool := meanElapsedByTool(history)

	var suggestions []OptimizationSuggestion
	for i := range plan.Steps {
		step := &plan.Steps[i]
		if step.CanRunParallel || len(step.DependsOn) > 0 {
			continue
		}
		if !executor.IsParallelSafe(step.ToolName) {
			continue
		}
		if meanByTool[step.ToolName] <= slowToolThresholdMS {
			continue
		}
		step.CanRunParallel = true
		suggestions = append(suggestions, OptimizationSuggestion{
			Kind:        "parallelize",
			StepID:      step.ID,
			ToolName:    step.ToolName,
			Description: fmt.Sprintf("tool '%s' averages %.0fms; step has no dependencies", step.ToolName, meanByTool[step.ToolName]),
		})
	}
	return suggestions
}

// suggestCaching flags tools invoked repeatedly with identical parameters.
func suggestCaching(plan *convoke.QueryPlan, history []convoke.ToolExecution) []OptimizationSuggestion {
	seen := make(map[string]int)
	for _, execution := range history {
		seen[invocationKey(execution.ToolName, execution.Parameters)]++
	}

	var suggestions []OptimizationSuggestion
	flagged := make(map[string]bool)
	for _, step := range plan.Steps {
		key := invocationKey(step.ToolName, step.Parameters)
		if seen[key] >= cacheRepeatThreshold && !flagged[key] {
			flagged[key] = true
			suggestions = append(suggestions, OptimizationSuggestion{
				Kind:        "cache",
				StepID:      step.ID,
				ToolName:    step.ToolName,
				Description: fmt.Sprintf("tool '%s' was called %d times with identical parameters", step.ToolName, seen[key]),
			})
		}
	}
	return suggestions
}

// removeRedundantSteps drops steps that duplicate an earlier step's tool and
// parameters, provided nothing depends on them.
func removeRedundantSteps(plan *convoke.QueryPlan) []OptimizationSuggestion {
	dependedOn := make(map[int]bool)
	for _, step := range plan.Steps {
		for _, dep := range step.DependsOn {
			dependedOn[dep] = true
		}
	}

	var suggestions []OptimizationSuggestion
	seen := make(map[string]bool)
	kept := plan.Steps[:0]
	for _, step := range plan.Steps {
		key := invocationKey(step.ToolName, step.Parameters)
		if seen[key] && !dependedOn[step.ID] {
			suggestions = append(suggestions, OptimizationSuggestion{
				Kind:        "remove_redundant",
				StepID:      step.ID,
				ToolName:    step.ToolName,
				Description: fmt.Sprintf("step %d repeats an earlier '%s' call", step.ID, step.ToolName),
			})
			continue
		}
		seen[key] = true
		kept = append(kept, step)
	}
	plan.Steps = kept
	return suggestions
}

func meanElapsedByTool(history []convoke.ToolExecution) map[string]float64 {
	totals := make(map[string]int64)
	counts := make(map[string]int64)
	for _, execution := range history {
		if execution.ExecutionTimeMS == nil {
			continue
		}
		totals[execution.ToolName] += *execution.ExecutionTimeMS
		counts[execution.ToolName]++
	}

	means := make(map[string]float64, len(totals))
	for tool, total := range totals {
		means[tool] = float64(total) / float64(counts[tool])
	}
	return means
}

func invocationKey(toolName string, params map[string]interface{}) string {
	data, err := json.Marshal(params)
	if err != nil {
		return toolName
	}
	return toolName + ":" + string(data)
}
