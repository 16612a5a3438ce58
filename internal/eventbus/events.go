// Package eventbus publishes conversation lifecycle events to subscribed
// handlers.
package eventbus

import (
	"context"
	"time"
)

// EventType names a kind of event.
type EventType string

const (
	// Conversation lifecycle events
	EventConversationStarted   EventType = "conversation_started"
	EventConversationResumed   EventType = "conversation_resumed"
	EventConversationCompleted EventType = "conversation_completed"
	EventConversationFailed    EventType = "conversation_failed"

	// State machine events
	EventStateChanged EventType = "state_changed"

	// Planning events
	EventPlanningStarted EventType = "planning_started"
	EventPlanningSuccess EventType = "planning_success"
	EventPlanningFailure EventType = "planning_failure"

	// Tool execution events
	EventToolExecutionStarted EventType = "tool_execution_started"
	EventToolExecutionSuccess EventType = "tool_execution_success"
	EventToolExecutionFailure EventType = "tool_execution_failure"
	EventToolExecutionRetry   EventType = "tool_execution_retry"
	EventToolExecutionTimeout EventType = "tool_execution_timeout"

	// Step events
	EventStepStarted   EventType = "step_started"
	EventStepCompleted EventType = "step_completed"
	EventStepFailed    EventType = "step_failed"

	// Synthesis events
	EventSynthesisStarted EventType = "synthesis_started"
	EventSynthesisSuccess EventType = "synthesis_success"
	EventSynthesisFailure EventType = "synthesis_failure"

	// Context events
	EventContextCompressed EventType = "context_compressed"

	// User input events
	EventUserInputRequested EventType = "user_input_requested"
	EventUserInputReceived  EventType = "user_input_received"

	// Async run events
	EventAsyncRunStarted   EventType = "async_run_started"
	EventAsyncRunSuccess   EventType = "async_run_success"
	EventAsyncRunFailure   EventType = "async_run_failure"
	EventAsyncRunCancelled EventType = "async_run_cancelled"

	// System events
	EventSystemError   EventType = "system_error"
	EventSystemWarning EventType = "system_warning"
	EventSystemInfo    EventType = "system_info"
)

// EventHandler processes one delivered event. A non-nil error triggers the
// bus retry policy.
type EventHandler func(context.Context, Event) error

// Event is something that happened inside the engine.
type Event interface {
	Type() EventType
	Payload() interface{}
	Metadata() map[string]interface{}
	Timestamp() time.Time
	Source() string
}

// EventBus dispatches events to subscribed handlers.
type EventBus interface {
	Publish(ctx context.Context, event Event) error
	// Subscribe and SubscribeAll return a subscription id for Unsubscribe.
	Subscribe(eventTypes []EventType, handler EventHandler) (string, error)
	SubscribeAll(handler EventHandler) (string, error)
	Unsubscribe(subscriptionID string) error
	Close() error
}

// BaseEvent is the standard Event implementation.
type BaseEvent struct {
	eventType EventType
	payload   interface{}
	metadata  map[string]interface{}
	occurred  time.Time
	source    string
}

// NewEvent creates an event stamped with the current time.
func NewEvent(eventType EventType, payload interface{}, source string, metadata map[string]interface{}) *BaseEvent {
	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	return &BaseEvent{
		eventType: eventType,
		payload:   payload,
		metadata:  metadata,
		occurred:  time.Now(),
		source:    source,
	}
}

func (e *BaseEvent) Type() EventType                  { return e.eventType }
func (e *BaseEvent) Payload() interface{}             { return e.payload }
func (e *BaseEvent) Metadata() map[string]interface{} { return e.metadata }
func (e *BaseEvent) Timestamp() time.Time             { return e.occurred }
func (e *BaseEvent) Source() string                   { return e.source }

// WithMetadata sets one metadata entry and returns the event for chaining.
func (e *BaseEvent) WithMetadata(key string, value interface{}) *BaseEvent {
	e.metadata[key] = value
	return e
}
