package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"convoke"
	"convoke/internal/contextmgr"
	"convoke/internal/eventbus"
	"convoke/internal/prompt"
)

const (
	DefaultMaxSteps    = 20
	DefaultStepTimeout = 60 * time.Second
)

// Manager owns the conversation lifecycle: it starts conversations,
// advances them one durable step at a time, and persists every step
// before returning.
type Manager struct {
	store      convoke.ConversationStore
	llm        convoke.LLMProvider
	registry   convoke.Registry
	executor   convoke.Executor
	contextMgr *contextmgr.Manager
	prompts    *prompt.Registry
	bus        eventbus.EventBus
	logger     *zap.Logger

	machine     *StateMachine
	maxSteps    int
	stepTimeout time.Duration
	now         func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxSteps caps the number of durable steps per conversation.
func WithMaxSteps(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxSteps = n
		}
	}
}

// WithStepTimeout bounds each LLM call made while advancing a step.
func WithStepTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		if timeout > 0 {
			m.stepTimeout = timeout
		}
	}
}

// WithEventBus attaches an event bus for lifecycle events.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(m *Manager) { m.bus = bus }
}

// WithLogger sets the manager logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager wires the conversation manager from its collaborators.
func NewManager(
	store convoke.ConversationStore,
	llm convoke.LLMProvider,
	registry convoke.Registry,
	executor convoke.Executor,
	contextMgr *contextmgr.Manager,
	prompts *prompt.Registry,
	options ...Option,
) (*Manager, error) {
	if store == nil {
		return nil, convoke.NewConfigurationError("conversation manager requires a store", nil)
	}
	if llm == nil {
		return nil, convoke.NewConfigurationError("conversation manager requires an LLM provider", nil)
	}
	if registry == nil {
		return nil, convoke.NewConfigurationError("conversation manager requires a tool registry", nil)
	}
	if executor == nil {
		return nil, convoke.NewConfigurationError("conversation manager requires an executor", nil)
	}
	if contextMgr == nil {
		return nil, convoke.NewConfigurationError("conversation manager requires a context manager", nil)
	}
	if prompts == nil {
		var err error
		prompts, err = prompt.NewRegistry()
		if err != nil {
			return nil, convoke.NewInternalError("configuration", "load built-in prompts", err)
		}
	}

	m := &Manager{
		store:       store,
		llm:         llm,
		registry:    registry,
		executor:    executor,
		contextMgr:  contextMgr,
		prompts:     prompts,
		logger:      zap.NewNop(),
		maxSteps:    DefaultMaxSteps,
		stepTimeout: DefaultStepTimeout,
		now:         time.Now,
	}
	for _, option := range options {
		option(m)
	}

	m.machine = NewStateMachine(m.bus, m.logger)
	m.registerTransitions(m.machine)
	return m, nil
}

// Start creates and persists a new conversation in the planning state.
// No LLM call happens here; Continue advances it.
func (m *Manager) Start(ctx context.Context, query string) (*convoke.Conversation, error) {
	if query == "" {
		return nil, convoke.NewConfigurationError("query must not be empty", nil)
	}

	cc, err := m.contextMgr.BuildInitial(ctx, m.registry.DescribeAll())
	if err != nil {
		return nil, err
	}

	now := m.now()
	conv := &convoke.Conversation{
		ID:        uuid.NewString(),
		UserQuery: query,
		State:     convoke.StatePlanning,
		Steps:     []convoke.ConversationStep{},
		Context:   cc,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Save(ctx, conv); err != nil {
		return nil, err
	}

	m.publish(ctx, eventbus.EventConversationStarted, conv.ID, map[string]interface{}{
		"query": query,
	})
	return conv, nil
}

// Continue advances the conversation by exactly one durable step and
// persists the outcome. userInput is only consumed when the conversation
// is waiting for clarification; passing nil while waiting returns the
// pending prompt without advancing.
func (m *Manager) Continue(ctx context.Context, id string, userInput *string) (*convoke.ConversationResult, error) {
	conv, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, convoke.NewStorageError("load", fmt.Errorf("conversation %s not found", id))
	}

	if conv.State.IsTerminal() {
		return m.result(conv), nil
	}

	if conv.State == convoke.StateRequiresUserInput {
		return m.resume(ctx, conv, userInput)
	}

	if len(conv.Steps) >= m.maxSteps {
		return m.fail(ctx, conv, convoke.NewMaxStepsExceededError(m.maxSteps))
	}

	m.publish(ctx, eventbus.EventConversationResumed, conv.ID, map[string]interface{}{
		"state": string(conv.State),
	})

	stepErr := m.machine.Step(ctx, conv)
	conv.UpdatedAt = m.now()
	if err := m.store.Update(ctx, conv); err != nil {
		return nil, err
	}

	switch conv.State {
	case convoke.StateCompleted:
		m.publish(ctx, eventbus.EventConversationCompleted, conv.ID, map[string]interface{}{
			"steps_taken": len(conv.Steps),
		})
	case convoke.StateFailed:
		meta := map[string]interface{}{}
		if stepErr != nil {
			meta["error"] = stepErr.Error()
		}
		m.publish(ctx, eventbus.EventConversationFailed, conv.ID, meta)
	}
	return m.result(conv), stepErr
}

// resume handles a conversation waiting for user input. The clarification
// is the durable step for this call.
func (m *Manager) resume(ctx context.Context, conv *convoke.Conversation, userInput *string) (*convoke.ConversationResult, error) {
	if userInput == nil {
		return m.result(conv), nil
	}

	conv.Steps = append(conv.Steps, convoke.ConversationStep{
		StepID:     conv.NextStepID(),
		StepType:   convoke.StepTypeUserClarify,
		LLMRequest: userInput,
		ToolCalls:  []convoke.ToolExecution{},
		Results: &convoke.StepResult{
			Data:    map[string]interface{}{"user_input": *userInput},
			Summary: "User clarification received",
		},
		Status:    convoke.StepStatusCompleted,
		CreatedAt: m.now(),
	})
	conv.State = convoke.StateExecuting
	conv.UpdatedAt = m.now()

	if err := m.store.Update(ctx, conv); err != nil {
		return nil, err
	}
	m.publish(ctx, eventbus.EventUserInputReceived, conv.ID, nil)
	return m.result(conv), nil
}

func (m *Manager) fail(ctx context.Context, conv *convoke.Conversation, cause error) (*convoke.ConversationResult, error) {
	conv.State = convoke.StateFailed
	conv.UpdatedAt = m.now()
	if err := m.store.Update(ctx, conv); err != nil {
		return nil, err
	}
	m.publish(ctx, eventbus.EventConversationFailed, conv.ID, map[string]interface{}{
		"error": cause.Error(),
	})
	return m.result(conv), cause
}

// Get loads a conversation by id, or nil when absent.
func (m *Manager) Get(ctx context.Context, id string) (*convoke.Conversation, error) {
	return m.store.Load(ctx, id)
}

// List returns the most recently updated conversations without steps.
func (m *Manager) List(ctx context.Context, limit int) ([]convoke.Conversation, error) {
	return m.store.List(ctx, limit)
}

// Delete removes a conversation and its steps.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.store.Delete(ctx, id)
}

// result projects a conversation into the caller-facing summary.
func (m *Manager) result(conv *convoke.Conversation) *convoke.ConversationResult {
	result := &convoke.ConversationResult{
		ConversationID: conv.ID,
		State:          conv.State,
		StepsTaken:     len(conv.Steps),
	}

	if conv.State == convoke.StateCompleted {
		for i := len(conv.Steps) - 1; i >= 0; i-- {
			step := conv.Steps[i]
			if step.StepType != convoke.StepTypeResultSynthesis || step.Results == nil {
				continue
			}
			if text, ok := step.Results.Data["response"].(string); ok {
				result.Response = &text
			}
			break
		}
	}

	if conv.State == convoke.StateRequiresUserInput {
		result.RequiresInput = true
		promptText := "Additional input is required to continue."
		if last := conv.LastStep(); last != nil && last.Results != nil {
			if p, ok := last.Results.Data["input_prompt"].(string); ok {
				promptText = p
			}
		}
		result.InputPrompt = &promptText
	}
	return result
}

func (m *Manager) publish(ctx context.Context, eventType eventbus.EventType, conversationID string, metadata map[string]interface{}) {
	if m.bus == nil {
		return
	}
	event := eventbus.NewEvent(eventType, conversationID, "conversation.Manager", metadata)
	if err := m.bus.Publish(ctx, event); err != nil {
		m.logger.Warn("conversation event dropped",
			zap.String("conversation_id", conversationID),
			zap.String("event", string(eventType)),
			zap.Error(err))
	}
}
