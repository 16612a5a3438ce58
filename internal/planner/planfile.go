package planner

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"convoke"
)

// PlanFile is a YAML-authored query plan for scripted runs, bypassing the
// LLM planning step.
type PlanFile struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Complexity  string         `yaml:"complexity"`
	Steps       []PlanFileStep `yaml:"steps"`
}

// PlanFileStep mirrors PlanStep in YAML form.
type PlanFileStep struct {
	ID          int                    `yaml:"id"`
	Description string                 `yaml:"description"`
	Tool        string                 `yaml:"tool"`
	Parameters  map[string]interface{} `yaml:"parameters"`
	DependsOn   []int                  `yaml:"depends_on"`
	Parallel    bool                   `yaml:"parallel"`
}

// PlanFileLoader defines an interface for loading a PlanFile from a source.
type PlanFileLoader interface {
	Load(source string) (*PlanFile, error)
	Format() string // e.g., "yaml"
}

// loaderRegistry holds registered PlanFileLoaders by format name.
var loaderRegistry = make(map[string]PlanFileLoader)

// RegisterPlanFileLoader registers a new PlanFileLoader for a given format.
func RegisterPlanFileLoader(loader PlanFileLoader) {
	loaderRegistry[loader.Format()] = loader
}

// GetPlanFileLoader retrieves a loader by format name (e.g., "yaml").
func GetPlanFileLoader(format string) (PlanFileLoader, bool) {
	loader, ok := loaderRegistry[format]
	return loader, ok
}

// YAMLLoader implements PlanFileLoader for YAML files.
type YAMLLoader struct{}

func (YAMLLoader) Load(path string) (*PlanFile, error) {
	return LoadPlanFile(path)
}

func (YAMLLoader) Format() string { return "yaml" }

func init() {
	RegisterPlanFileLoader(YAMLLoader{})
}

// LoadPlanFile parses a YAML plan file.
func LoadPlanFile(path string) (*PlanFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open plan file: %w", err)
	}
	defer f.Close()
	var pf PlanFile
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&pf); err != nil {
		return nil, fmt.Errorf("failed to parse plan YAML: %w", err)
	}
	return &pf, nil
}

// ToQueryPlan converts a PlanFile into a QueryPlan.
func (pf *PlanFile) ToQueryPlan() *convoke.QueryPlan {
	plan := &convoke.QueryPlan{
		Complexity: convoke.PlanComplexity(pf.Complexity),
		Steps:      make([]convoke.PlanStep, 0, len(pf.Steps)),
	}
	if plan.Complexity == "" {
		plan.Complexity = convoke.ComplexityModerate
	}

	required := make(map[string]bool)
	for _, step := range pf.Steps {
		params := step.Parameters
		if params == nil {
			params = map[string]interface{}{}
		}
		deps := step.DependsOn
		if deps == nil {
			deps = []int{}
		}
		plan.Steps = append(plan.Steps, convoke.PlanStep{
			ID:             step.ID,
			Description:    step.Description,
			ToolName:       step.Tool,
			Parameters:     params,
			DependsOn:      deps,
			CanRunParallel: step.Parallel,
		})
		if !required[step.Tool] {
			required[step.Tool] = true
			plan.RequiredTools = append(plan.RequiredTools, step.Tool)
		}
	}
	plan.EstimatedDurationMS = EstimateDuration(plan)
	return plan
}

// LoadAndValidatePlan loads a plan file using the default loader (YAML),
// validates it against the catalog, and returns a QueryPlan.
func LoadAndValidatePlan(path string, catalog []convoke.ToolDescriptor, validator SchemaValidator) (*convoke.QueryPlan, error) {
	loader, ok := GetPlanFileLoader("yaml")
	if !ok {
		return nil, fmt.Errorf("no YAML plan loader registered")
	}

	pf, err := loader.Load(path)
	if err != nil {
		return nil, err
	}
	plan := pf.ToQueryPlan()

	checker := &LLMPlanner{validator: validator}
	if err := checker.ValidatePlan(plan, catalog); err != nil {
		return nil, err
	}
	return plan, nil
}
