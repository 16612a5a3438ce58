// Package convoke provides the core runtime for multi-step, tool-using
// conversations: an LLM plans tool calls against a registered catalog, an
// executor runs them with bounded parallelism, and the gathered results
// are synthesized into a final answer. Every step is persisted so a
// conversation can be resumed after a crash or a clarification pause.
package convoke

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"convoke/internal/eventbus"
)

// EngineConfig holds the tunables of the Convoke runtime.
type EngineConfig struct {
	// MaxRunSteps bounds the Continue calls a single RunToCompletion or
	// async run may make.
	MaxRunSteps int

	// MaxConcurrentRuns bounds how many async conversations execute at
	// the same time.
	MaxConcurrentRuns int

	// Event bus configuration
	EnableEventBus      bool
	EventBusBufferSize  int
	EventBusWorkerCount int
}

// DefaultEngineConfig returns a configuration with sensible defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxRunSteps:         40,
		MaxConcurrentRuns:   4,
		EnableEventBus:      true,
		EventBusBufferSize:  100,
		EventBusWorkerCount: 5,
	}
}

// Convoke is the main entry point into the runtime. It bundles the
// conversation manager with the supporting components so callers wire
// everything once and drive conversations through a single facade.
type Convoke struct {
	manager  ConversationManager
	registry Registry
	planner  Planner
	executor Executor
	store    ConversationStore
	llm      LLMProvider
	cache    Cache
	eventBus eventbus.EventBus
	logger   *zap.Logger

	config EngineConfig

	asyncRuns  map[string]*asyncRun
	asyncMutex sync.RWMutex
	group      *errgroup.Group
}

// Option configures a Convoke instance.
type Option func(*Convoke)

// WithEngineConfig sets the runtime configuration.
func WithEngineConfig(config EngineConfig) Option {
	return func(c *Convoke) { c.config = config }
}

// WithConversationManager sets the conversation manager component.
func WithConversationManager(manager ConversationManager) Option {
	return func(c *Convoke) { c.manager = manager }
}

// WithRegistry sets the tool registry component.
func WithRegistry(registry Registry) Option {
	return func(c *Convoke) { c.registry = registry }
}

// WithPlanner sets the planner component.
func WithPlanner(planner Planner) Option {
	return func(c *Convoke) { c.planner = planner }
}

// WithExecutor sets the executor component.
func WithExecutor(executor Executor) Option {
	return func(c *Convoke) { c.executor = executor }
}

// WithStore sets the conversation store component.
func WithStore(store ConversationStore) Option {
	return func(c *Convoke) { c.store = store }
}

// WithLLMProvider sets the LLM provider component.
func WithLLMProvider(llm LLMProvider) Option {
	return func(c *Convoke) { c.llm = llm }
}

// WithCache sets the plan cache component.
func WithCache(cache Cache) Option {
	return func(c *Convoke) { c.cache = cache }
}

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Convoke) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a new Convoke instance with the provided options.
func New(options ...Option) (*Convoke, error) {
	c := &Convoke{
		config:    DefaultEngineConfig(),
		logger:    zap.NewNop(),
		asyncRuns: make(map[string]*asyncRun),
	}
	for _, option := range options {
		option(c)
	}

	if c.manager == nil {
		return nil, NewConfigurationError("conversation manager is required", nil)
	}
	if c.registry == nil {
		return nil, NewConfigurationError("tool registry is required", nil)
	}
	if c.planner == nil {
		return nil, NewConfigurationError("planner is required", nil)
	}
	if c.executor == nil {
		return nil, NewConfigurationError("executor is required", nil)
	}
	if c.store == nil {
		return nil, NewConfigurationError("conversation store is required", nil)
	}
	if c.llm == nil {
		return nil, NewConfigurationError("LLM provider is required", nil)
	}
	if len(c.registry.DescribeAll()) == 0 {
		return nil, NewConfigurationError("at least one tool is required", nil)
	}

	if c.config.EnableEventBus && c.eventBus == nil {
		c.eventBus = eventbus.NewChannelEventBus(
			eventbus.WithBufferSize(c.config.EventBusBufferSize),
			eventbus.WithWorkerCount(c.config.EventBusWorkerCount),
			eventbus.WithLogger(c.logger),
		)
	}

	c.group = &errgroup.Group{}
	c.group.SetLimit(c.config.MaxConcurrentRuns)
	return c, nil
}

// EventBus exposes the engine's event bus so callers can subscribe.
func (c *Convoke) EventBus() eventbus.EventBus {
	return c.eventBus
}

// Registry exposes the engine's tool registry.
func (c *Convoke) Registry() Registry {
	return c.registry
}

// StartConversation creates and persists a new conversation.
func (c *Convoke) StartConversation(ctx context.Context, query string) (*Conversation, error) {
	return c.manager.Start(ctx, query)
}

// ContinueConversation advances a conversation by one durable step.
func (c *Convoke) ContinueConversation(ctx context.Context, id string, userInput *string) (*ConversationResult, error) {
	return c.manager.Continue(ctx, id, userInput)
}

// RunToCompletion starts a conversation and drives it until it reaches a
// terminal state or pauses for user input.
func (c *Convoke) RunToCompletion(ctx context.Context, query string) (*ConversationResult, error) {
	conv, err := c.StartConversation(ctx, query)
	if err != nil {
		return nil, err
	}
	return c.drive(ctx, conv.ID)
}

// ResumeToCompletion answers a pending clarification and drives the
// conversation until the next pause or terminal state.
func (c *Convoke) ResumeToCompletion(ctx context.Context, id string, userInput *string) (*ConversationResult, error) {
	result, err := c.ContinueConversation(ctx, id, userInput)
	if err != nil || result.State.IsTerminal() || result.RequiresInput {
		return result, err
	}
	return c.drive(ctx, id)
}

func (c *Convoke) drive(ctx context.Context, id string) (*ConversationResult, error) {
	var result *ConversationResult
	var err error
	for i := 0; i < c.config.MaxRunSteps; i++ {
		result, err = c.ContinueConversation(ctx, id, nil)
		if err != nil {
			return result, err
		}
		if result.State.IsTerminal() || result.RequiresInput {
			return result, nil
		}
	}
	return result, NewInternalError("engine",
		fmt.Sprintf("conversation %s did not settle within %d continue calls", id, c.config.MaxRunSteps), nil)
}

// GetConversation loads a conversation by id, or nil when absent.
func (c *Convoke) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	return c.manager.Get(ctx, id)
}

// ListConversations returns the most recently updated conversations.
func (c *Convoke) ListConversations(ctx context.Context, limit int) ([]Conversation, error) {
	return c.manager.List(ctx, limit)
}

// DeleteConversation removes a conversation and its steps.
func (c *Convoke) DeleteConversation(ctx context.Context, id string) error {
	return c.manager.Delete(ctx, id)
}

// RegisterTool adds a tool to the registry at runtime.
func (c *Convoke) RegisterTool(tool Tool) {
	c.registry.Register(tool)
}

// ListTools returns the names of all registered tools.
func (c *Convoke) ListTools() []string {
	descriptors := c.registry.DescribeAll()
	names := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		names = append(names, d.Name)
	}
	return names
}

// ToolSchemas returns a map of tool names to their parameter schemas,
// suitable for inclusion in planner prompts.
func (c *Convoke) ToolSchemas() map[string]map[string]interface{} {
	schemas := make(map[string]map[string]interface{})
	for _, d := range c.registry.DescribeAll() {
		schemas[d.Name] = d.ParametersSchema
	}
	return schemas
}

// Plan generates (and optionally caches) a query plan without starting a
// conversation. Useful for inspection and dry runs.
func (c *Convoke) Plan(ctx context.Context, query string) (*QueryPlan, error) {
	cacheKey := "plan:" + query
	if c.cache != nil {
		if cached, err := c.cache.Get(ctx, cacheKey); err == nil {
			if plan, ok := cached.(*QueryPlan); ok {
				return plan, nil
			}
		}
	}

	plan, err := c.planner.GeneratePlan(ctx, query, c.registry.DescribeAll())
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		if err := c.cache.Set(ctx, cacheKey, plan); err != nil {
			c.logger.Warn("plan cache write failed", zap.Error(err))
		}
	}
	return plan, nil
}

// RunPlan executes an already-validated query plan directly, without a
// conversation. Steps run in dependency order, each ready wave dispatched
// as one batch, so expression parameters see earlier steps' results. The
// aggregate over every step's execution record is returned.
func (c *Convoke) RunPlan(ctx context.Context, plan *QueryPlan) (map[string]interface{}, error) {
	if plan == nil || len(plan.Steps) == 0 {
		return nil, NewConfigurationError("plan has no steps to execute", nil)
	}

	executed := make(map[int]bool, len(plan.Steps))
	results := make(map[string]interface{})
	executions := make([]ToolExecution, 0, len(plan.Steps))

	for len(executed) < len(plan.Steps) {
		var wave []PlanStep
		for _, step := range plan.Steps {
			if executed[step.ID] {
				continue
			}
			ready := true
			for _, dep := range step.DependsOn {
				if !executed[dep] {
					ready = false
					break
				}
			}
			if ready {
				wave = append(wave, step)
			}
		}
		if len(wave) == 0 {
			return nil, NewPlanningError("plan has unsatisfiable step dependencies", nil)
		}

		calls := make([]ToolCall, 0, len(wave))
		for _, step := range wave {
			calls = append(calls, ToolCall{ToolName: step.ToolName, Parameters: step.Parameters})
		}
		waveExecutions := c.executor.ExecuteBatch(ctx, calls, results)
		for i, execution := range waveExecutions {
			executed[wave[i].ID] = true
			if execution.Error == nil {
				results["tool_result_"+execution.ToolName] = execution.Result
			}
		}
		executions = append(executions, waveExecutions...)
	}
	return c.executor.Aggregate(executions), nil
}

// Close shuts down the engine, waiting for in-flight async runs and
// closing the event bus.
func (c *Convoke) Close() error {
	err := c.group.Wait()
	if c.eventBus != nil {
		if closeErr := c.eventBus.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

func (c *Convoke) publish(ctx context.Context, eventType eventbus.EventType, payload interface{}, metadata map[string]interface{}) {
	if c.eventBus == nil {
		return
	}
	event := eventbus.NewEvent(eventType, payload, "convoke.Engine", metadata)
	if err := c.eventBus.Publish(ctx, event); err != nil {
		c.logger.Warn("engine event dropped",
			zap.String("event", string(eventType)), zap.Error(err))
	}
}
