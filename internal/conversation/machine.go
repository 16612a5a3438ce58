// Package conversation drives multi-step conversations through planning,
// tool execution, and synthesis. Each call to the manager advances the
// conversation by exactly one durable step so that progress survives a
// crash between calls.
package conversation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"convoke"
	"convoke/internal/eventbus"
)

// TransitionFunc advances a conversation in its current state and returns
// the state it should move to. Transitions mutate the conversation
// in memory; the caller is responsible for persisting it.
type TransitionFunc func(ctx context.Context, conv *convoke.Conversation) (convoke.ConversationState, error)

// StateMachine maps conversation states to transition functions.
type StateMachine struct {
	transitions map[convoke.ConversationState]TransitionFunc
	bus         eventbus.EventBus
	logger      *zap.Logger
}

// NewStateMachine creates an empty state machine. A nil bus disables
// event publication.
func NewStateMachine(bus eventbus.EventBus, logger *zap.Logger) *StateMachine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateMachine{
		transitions: make(map[convoke.ConversationState]TransitionFunc),
		bus:         bus,
		logger:      logger,
	}
}

// RegisterTransition registers the transition function for a state.
func (sm *StateMachine) RegisterTransition(state convoke.ConversationState, fn TransitionFunc) {
	sm.transitions[state] = fn
}

// Step executes exactly one transition for the conversation's current
// state. On transition failure the conversation is moved to Failed and
// the error is returned.
func (sm *StateMachine) Step(ctx context.Context, conv *convoke.Conversation) error {
	if conv.State.IsTerminal() {
		return nil
	}

	select {
	case <-ctx.Done():
		stage := string(conv.State)
		conv.State = convoke.StateFailed
		return convoke.NewCancelledError(stage, ctx.Err())
	default:
	}

	transition, ok := sm.transitions[conv.State]
	if !ok {
		stage := string(conv.State)
		conv.State = convoke.StateFailed
		return convoke.NewInternalError(stage,
			fmt.Sprintf("no transition defined for state %s", stage), nil)
	}

	from := conv.State
	next, err := transition(ctx, conv)
	if err != nil {
		conv.State = convoke.StateFailed
		sm.publishStateChange(ctx, conv, from)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return convoke.NewCancelledError(string(from), err)
		}
		return err
	}

	conv.State = next
	if next != from {
		sm.publishStateChange(ctx, conv, from)
	}
	return nil
}

func (sm *StateMachine) publishStateChange(ctx context.Context, conv *convoke.Conversation, from convoke.ConversationState) {
	if sm.bus == nil {
		return
	}
	event := eventbus.NewEvent(
		eventbus.EventStateChanged,
		conv.ID,
		"conversation.StateMachine",
		map[string]interface{}{
			"from": string(from),
			"to":   string(conv.State),
		},
	)
	if err := sm.bus.Publish(ctx, event); err != nil {
		sm.logger.Warn("state change event dropped",
			zap.String("conversation_id", conv.ID), zap.Error(err))
	}
}
