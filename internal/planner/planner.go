// Package planner converts a user query plus the current tool catalog into
// a validated QueryPlan, with an optimization pass informed by execution
// history.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"convoke"
)

// SchemaValidator checks tool-call parameters against the tool's JSON
// schema. The registry satisfies this.
type SchemaValidator interface {
	Validate(name string, params map[string]interface{}) []convoke.ValidationError
}

// LLMPlanner is the default Planner implementation.
type LLMPlanner struct {
	llm       convoke.LLMProvider
	validator SchemaValidator
	logger    *zap.Logger
}

// Option configures an LLMPlanner.
type Option func(*LLMPlanner)

// WithSchemaValidator enables per-step parameter validation.
func WithSchemaValidator(validator SchemaValidator) Option {
	return func(p *LLMPlanner) {
		p.validator = validator
	}
}

// WithLogger sets the planner logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *LLMPlanner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a planner backed by the given LLM capability.
func New(llm convoke.LLMProvider, options ...Option) *LLMPlanner {
	p := &LLMPlanner{
		llm:    llm,
		logger: zap.NewNop(),
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// GeneratePlan implements the convoke.Planner interface.
func (p *LLMPlanner) GeneratePlan(ctx context.Context, query string, catalog []convoke.ToolDescriptor) (*convoke.QueryPlan, error) {
	prompt := BuildAnalysisPrompt(query, catalog)

	response, err := p.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, convoke.NewPlanningError("plan generation failed", convoke.NewLLMProviderError("planning", err))
	}

	plan, err := ParsePlan(response)
	if err != nil {
		return nil, err
	}

	if err := p.ValidatePlan(plan, catalog); err != nil {
		return nil, err
	}

	plan.EstimatedDurationMS = EstimateDuration(plan)
	p.logger.Debug("plan generated",
		zap.String("complexity", string(plan.Complexity)),
		zap.Int("steps", len(plan.Steps)),
		zap.Int64("estimated_ms", plan.EstimatedDurationMS))
	return plan, nil
}

// BuildAnalysisPrompt enumerates the query and a one-line summary per tool.
func BuildAnalysisPrompt(query string, catalog []convoke.ToolDescriptor) string {
	var b strings.Builder
	b.WriteString("Analyze this user query and create an execution plan using the available tools.\n\n")
	b.WriteString("User query: ")
	b.WriteString(query)
	b.WriteString("\n\nAvailable tools:\n")
	for _, tool := range catalog {
		fmt.Fprintf(&b, "- %s: %s\n", tool.Name, tool.Description)
	}
	b.WriteString("\nRespond with a JSON object of the form:\n")
	b.WriteString(`{"estimated_complexity": "simple|moderate|complex|very_complex", "required_tools": ["..."], "plan_steps": [{"step_id": 1, "description": "...", "tool_name": "...", "parameters": {}, "depends_on": [], "can_run_parallel": false}]}`)
	b.WriteString("\n")
	return b.String()
}

// ParsePlan extracts the first balanced JSON object from an LLM response
// and maps it onto a QueryPlan. Unknown or missing fields use defaults:
// complexity moderate, empty dependencies, sequential execution.
func ParsePlan(response string) (*convoke.QueryPlan, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return nil, convoke.NewPlanningError("no JSON object found in planner response", nil)
	}

	var plan convoke.QueryPlan
	if err := json.Unmarshal([]byte(response[start:end+1]), &plan); err != nil {
		return nil, convoke.NewPlanningError("failed to parse planner response", err)
	}

	if plan.Complexity == "" {
		plan.Complexity = convoke.ComplexityModerate
	}
	for i := range plan.Steps {
		if plan.Steps[i].DependsOn == nil {
			plan.Steps[i].DependsOn = []int{}
		}
		if plan.Steps[i].Parameters == nil {
			plan.Steps[i].Parameters = map[string]interface{}{}
		}
	}
	return &plan, nil
}

// ValidatePlan checks tool existence, dependency ordering, dependency
// cycles, and (when a validator is configured) per-step parameter schemas.
func (p *LLMPlanner) ValidatePlan(plan *convoke.QueryPlan, catalog []convoke.ToolDescriptor) error {
	known := make(map[string]bool, len(catalog))
	for _, tool := range catalog {
		known[tool.Name] = true
	}

	for _, name := range plan.RequiredTools {
		if !known[name] {
			return convoke.NewPlanningError(fmt.Sprintf("plan requires unknown tool '%s'", name), nil)
		}
	}

	stepIndex := make(map[int]int, len(plan.Steps))
	for i, step := range plan.Steps {
		if !known[step.ToolName] {
			return convoke.NewPlanningError(fmt.Sprintf("plan step %d uses unknown tool '%s'", step.ID, step.ToolName), nil)
		}
		stepIndex[step.ID] = i
	}

	// Predecessors must refer to earlier steps
	for i, step := range plan.Steps {
		for _, dep := range step.DependsOn {
			depIdx, ok := stepIndex[dep]
			if !ok {
				return convoke.NewPlanningError(fmt.Sprintf("plan step %d depends on missing step %d", step.ID, dep), nil)
			}
			if depIdx >= i {
				return convoke.NewPlanningError(fmt.Sprintf("plan step %d depends on later step %d", step.ID, dep), nil)
			}
		}
	}

	if err := checkCycles(plan, stepIndex); err != nil {
		return err
	}

	if p != nil && p.validator != nil {
		for _, step := range plan.Steps {
			if violations := p.validator.Validate(step.ToolName, step.Parameters); len(violations) > 0 {
				return convoke.NewPlanningError(
					fmt.Sprintf("plan step %d has invalid parameters for '%s': %s %s",
						step.ID, step.ToolName, violations[0].Field, violations[0].Message),
					nil)
			}
		}
	}
	return nil
}

// checkCycles walks the dependency graph depth-first with a visit set.
func checkCycles(plan *convoke.QueryPlan, stepIndex map[int]int) error {
	visited := make(map[int]bool, len(plan.Steps))
	inStack := make(map[int]bool, len(plan.Steps))

	var visit func(id int) error
	visit = func(id int) error {
		if inStack[id] {
			return convoke.NewPlanningError(fmt.Sprintf("dependency cycle detected at step %d", id), nil)
		}
		if visited[id] {
			return nil
		}
		visited[id] = true
		inStack[id] = true
		if idx, ok := stepIndex[id]; ok {
			for _, dep := range plan.Steps[idx].DependsOn {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		inStack[id] = false
		return nil
	}

	for _, step := range plan.Steps {
		if err := visit(step.ID); err != nil {
			return err
		}
	}
	return nil
}

// EstimateDuration computes steps x base-ms-for-complexity, discounted by
// 0.7 when any step is parallel-safe.
func EstimateDuration(plan *convoke.QueryPlan) int64 {
	base := plan.Complexity.BaseDurationMS()
	estimate := int64(len(plan.Steps)) * base

	for _, step := range plan.Steps {
		if step.CanRunParallel {
			return int64(float64(estimate) * 0.7)
		}
	}
	return estimate
}
