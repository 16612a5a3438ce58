package convoke

import "context"

// Planner converts a user query plus the current tool catalog into a
// validated QueryPlan.
type Planner interface {
	GeneratePlan(ctx context.Context, query string, catalog []ToolDescriptor) (*QueryPlan, error)
}

// Tool represents a single executable capability.
type Tool interface {
	// Execute performs the tool's action with already-validated parameters.
	Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error)

	// Descriptor returns the tool's static contract, including the draft-07
	// JSON schema its parameters are validated against.
	Descriptor() ToolDescriptor

	// Name returns the tool's unique name.
	Name() string
}

// Registry holds tools, validates arguments, dispatches by name, and
// accumulates per-tool metrics. Implementations must be safe for
// concurrent use.
type Registry interface {
	Register(tool Tool)
	DescribeAll() []ToolDescriptor
	DescribeByCategory(category ToolCategory) []ToolDescriptor
	DescribeByName(name string) (ToolDescriptor, bool)
	Validate(name string, params map[string]interface{}) []ValidationError
	Execute(ctx context.Context, name string, params map[string]interface{}) (map[string]interface{}, error)
	Metrics(name string) (ToolMetrics, bool)
}

// Executor dispatches tool calls, grouping batches into a parallel cohort
// and a sequential tail. ExecuteBatch evaluates ${...} parameter
// expressions against the supplied intermediate results before dispatch.
type Executor interface {
	Execute(ctx context.Context, call ToolCall) ToolExecution
	ExecuteBatch(ctx context.Context, calls []ToolCall, results map[string]interface{}) []ToolExecution
	ExecuteWithRetry(ctx context.Context, call ToolCall, maxRetries int, baseDelay int64) ToolExecution
	ExecuteWithFallback(ctx context.Context, primary ToolCall, fallbacks []ToolCall) ToolExecution
	Aggregate(executions []ToolExecution) map[string]interface{}
}

// LLMProvider is the abstract prompt-in / text-out capability the planner
// and the conversation manager depend on.
type LLMProvider interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ConversationStore is durable CRUD over conversations and their ordered
// steps. Implementations must be safe for concurrent use.
type ConversationStore interface {
	Save(ctx context.Context, conv *Conversation) error
	Load(ctx context.Context, id string) (*Conversation, error)
	Update(ctx context.Context, conv *Conversation) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, limit int) ([]Conversation, error)
}

// SummarySource answers the aggregate queries used to seed a fresh
// conversation context.
type SummarySource interface {
	Summarize(ctx context.Context) (DataSummary, error)
}

// Cache provides storage for frequently accessed data, like generated
// plans. Get returns an error when the key is absent or expired.
type Cache interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}) error
}

// ConversationManager drives conversations one durable step at a time.
type ConversationManager interface {
	Start(ctx context.Context, query string) (*Conversation, error)
	Continue(ctx context.Context, id string, userInput *string) (*ConversationResult, error)
	Get(ctx context.Context, id string) (*Conversation, error)
	List(ctx context.Context, limit int) ([]Conversation, error)
	Delete(ctx context.Context, id string) error
}
