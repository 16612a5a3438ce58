package convoke

import (
	"time"
)

// ConversationState represents the possible states of a conversation.
type ConversationState string

const (
	// StatePlanning indicates the conversation is waiting for a query plan.
	StatePlanning ConversationState = "planning"
	// StateExecuting indicates planned tool calls are being dispatched.
	StateExecuting ConversationState = "executing"
	// StateSynthesizing indicates accumulated results are being summarized.
	StateSynthesizing ConversationState = "synthesizing"
	// StateCompleted indicates the conversation finished successfully.
	StateCompleted ConversationState = "completed"
	// StateFailed indicates the conversation terminated with an error.
	StateFailed ConversationState = "failed"
	// StateRequiresUserInput indicates execution is paused for clarification.
	StateRequiresUserInput ConversationState = "requires_user_input"
)

// IsTerminal reports whether the state admits no further transitions.
func (s ConversationState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// StepType classifies a conversation step.
type StepType string

const (
	StepTypePlanning        StepType = "planning"
	StepTypeToolExecution   StepType = "tool_execution"
	StepTypeResultSynthesis StepType = "result_synthesis"
	StepTypeUserClarify     StepType = "user_clarification"
)

// StepStatus represents the lifecycle of a single step.
type StepStatus string

const (
	StepStatusPending    StepStatus = "pending"
	StepStatusInProgress StepStatus = "in_progress"
	StepStatusCompleted  StepStatus = "completed"
	StepStatusFailed     StepStatus = "failed"
)

// ToolCategory groups tools by the kind of question they answer.
type ToolCategory string

const (
	CategoryDataQuery           ToolCategory = "data_query"
	CategoryEntityAnalysis      ToolCategory = "entity_analysis"
	CategoryRelationExploration ToolCategory = "relation_exploration"
	CategoryAnalytics           ToolCategory = "analytics"
)

// PlanComplexity is the planner's estimate of how involved a query is.
type PlanComplexity string

const (
	ComplexitySimple      PlanComplexity = "simple"
	ComplexityModerate    PlanComplexity = "moderate"
	ComplexityComplex     PlanComplexity = "complex"
	ComplexityVeryComplex PlanComplexity = "very_complex"
)

// BaseDurationMS returns the per-step duration estimate for the complexity.
func (c PlanComplexity) BaseDurationMS() int64 {
	switch c {
	case ComplexitySimple:
		return 2000
	case ComplexityModerate:
		return 3000
	case ComplexityComplex:
		return 5000
	case ComplexityVeryComplex:
		return 8000
	default:
		return 3000
	}
}

// Conversation is the root aggregate: one user query being progressively
// answered through planning, tool execution, and synthesis.
type Conversation struct {
	ID        string              `json:"id"`
	UserQuery string              `json:"user_query"`
	State     ConversationState   `json:"state"`
	Steps     []ConversationStep  `json:"steps"`
	Context   ConversationContext `json:"context"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// LastStep returns a pointer to the most recent step, or nil when empty.
func (c *Conversation) LastStep() *ConversationStep {
	if len(c.Steps) == 0 {
		return nil
	}
	return &c.Steps[len(c.Steps)-1]
}

// NextStepID returns the identifier the next appended step must carry.
// Step identifiers are contiguous integers starting at 1.
func (c *Conversation) NextStepID() int {
	return len(c.Steps) + 1
}

// ConversationStep is one durable event in a conversation. Steps are
// append-only: status may be upgraded, prior fields are never rewritten.
type ConversationStep struct {
	StepID      int             `json:"step_id"`
	StepType    StepType        `json:"step_type"`
	LLMRequest  *string         `json:"llm_request,omitempty"`
	LLMResponse *string         `json:"llm_response,omitempty"`
	ToolCalls   []ToolExecution `json:"tool_calls"`
	Results     *StepResult     `json:"results,omitempty"`
	Status      StepStatus      `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ToolExecution records a single tool invocation. Once terminated, exactly
// one of Result or Error is set and ExecutionTimeMS is populated.
type ToolExecution struct {
	ToolName        string                 `json:"tool_name"`
	Parameters      map[string]interface{} `json:"parameters"`
	Result          map[string]interface{} `json:"result,omitempty"`
	Error           *string                `json:"error,omitempty"`
	ExecutionTimeMS *int64                 `json:"execution_time_ms,omitempty"`
}

// Succeeded reports whether the execution terminated without an error.
func (e *ToolExecution) Succeeded() bool {
	return e.Error == nil && e.Result != nil
}

// StepResult summarizes what a step produced and what should happen next.
type StepResult struct {
	Data       map[string]interface{} `json:"data"`
	Summary    string                 `json:"summary"`
	NextAction *string                `json:"next_action,omitempty"`
}

// ConversationContext is the bounded working memory carried across steps.
type ConversationContext struct {
	AvailableTools      []ToolDescriptor       `json:"available_tools"`
	DataSummary         DataSummary            `json:"data_summary"`
	UserPreferences     UserPreferences        `json:"user_preferences"`
	ExecutionHistory    []ToolExecution        `json:"execution_history"`
	IntermediateResults map[string]interface{} `json:"intermediate_results"`
}

// DataSummary describes the corpus the tools operate over.
type DataSummary struct {
	EntityCountByType    map[string]int64 `json:"entity_count_by_type"`
	RelationCountByType  map[string]int64 `json:"relation_count_by_type"`
	ItemCountByTimeframe map[string]int64 `json:"item_count_by_timeframe"`
	DataFreshness        *time.Time       `json:"data_freshness,omitempty"`
}

// UserPreferences carries per-conversation tunables.
type UserPreferences struct {
	MaxConversationSteps    int    `json:"max_conversation_steps"`
	PreferredResponseFormat string `json:"preferred_response_format"`
	TimeoutSeconds          int    `json:"timeout_seconds"`
}

// ToolDescriptor is the static contract of a tool.
type ToolDescriptor struct {
	Name             string                 `json:"name"`
	Description      string                 `json:"description"`
	Category         ToolCategory           `json:"category"`
	Version          string                 `json:"version"`
	ParametersSchema map[string]interface{} `json:"parameters_schema"`
	Examples         []ToolExample          `json:"examples,omitempty"`
	Constraints      ToolConstraints        `json:"constraints"`
	Tags             []string               `json:"tags,omitempty"`
}

// ToolExample documents one representative invocation.
type ToolExample struct {
	Description    string                 `json:"description"`
	Parameters     map[string]interface{} `json:"parameters"`
	ExpectedResult string                 `json:"expected_result"`
}

// ToolConstraints bound a tool's resource usage.
type ToolConstraints struct {
	MaxExecutionTimeMS     int64 `json:"max_execution_time_ms"`
	MaxResultSize          int64 `json:"max_result_size"`
	RateLimitPerMinute     int   `json:"rate_limit_per_minute"`
	RequiresAuthentication bool  `json:"requires_authentication"`
}

// ToolCall is the executor's unit of input: a tool name plus concrete
// parameters, before validation and dispatch.
type ToolCall struct {
	ToolName   string                 `json:"tool_name"`
	Parameters map[string]interface{} `json:"parameters"`
}

// QueryPlan is the planner's output: an ordered DAG of intended invocations.
type QueryPlan struct {
	Complexity          PlanComplexity `json:"estimated_complexity"`
	RequiredTools       []string       `json:"required_tools"`
	Steps               []PlanStep     `json:"plan_steps"`
	EstimatedDurationMS int64          `json:"estimated_duration_ms"`
}

// PlanStep is a single planned invocation with declared dependencies.
type PlanStep struct {
	ID             int                    `json:"step_id"`
	Description    string                 `json:"description"`
	ToolName       string                 `json:"tool_name"`
	Parameters     map[string]interface{} `json:"parameters"`
	DependsOn      []int                  `json:"depends_on"`
	CanRunParallel bool                   `json:"can_run_parallel"`
}

// ValidationError describes one JSON-schema violation for a tool call.
type ValidationError struct {
	Field     string `json:"field"`
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
	Expected  string `json:"expected,omitempty"`
	Actual    string `json:"actual,omitempty"`
}

// ToolMetrics accumulates per-tool invocation statistics. Copies returned
// by the registry are detached snapshots.
type ToolMetrics struct {
	TotalInvocations int64      `json:"total_invocations"`
	Successes        int64      `json:"successes"`
	Failures         int64      `json:"failures"`
	MeanElapsedMS    float64    `json:"mean_elapsed_ms"`
	LastInvocation   *time.Time `json:"last_invocation,omitempty"`
}

// ConversationResult is what a single drive of the state machine yields.
type ConversationResult struct {
	ConversationID string            `json:"conversation_id"`
	State          ConversationState `json:"state"`
	Response       *string           `json:"response,omitempty"`
	StepsTaken     int               `json:"steps_taken"`
	RequiresInput  bool              `json:"requires_input"`
	InputPrompt    *string           `json:"input_prompt,omitempty"`
}

// ContextStatistics is a read-only snapshot of context occupancy.
type ContextStatistics struct {
	HistoryCount      int `json:"history_count"`
	IntermediateCount int `json:"intermediate_count"`
	SerializedBytes   int `json:"serialized_bytes"`
	ToolCount         int `json:"tool_count"`
}
