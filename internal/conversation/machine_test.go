package conversation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convoke"
)

func TestStateMachineStepAdvancesState(t *testing.T) {
	sm := NewStateMachine(nil, nil)
	sm.RegisterTransition(convoke.StatePlanning, func(ctx context.Context, conv *convoke.Conversation) (convoke.ConversationState, error) {
		return convoke.StateExecuting, nil
	})

	conv := &convoke.Conversation{ID: "c1", State: convoke.StatePlanning}
	require.NoError(t, sm.Step(context.Background(), conv))
	assert.Equal(t, convoke.StateExecuting, conv.State)
}

func TestStateMachineTerminalStateIsNoop(t *testing.T) {
	sm := NewStateMachine(nil, nil)

	conv := &convoke.Conversation{ID: "c1", State: convoke.StateCompleted}
	require.NoError(t, sm.Step(context.Background(), conv))
	assert.Equal(t, convoke.StateCompleted, conv.State)
}

func TestStateMachineMissingTransitionNamesOriginalState(t *testing.T) {
	sm := NewStateMachine(nil, nil)

	conv := &convoke.Conversation{ID: "c1", State: convoke.StateExecuting}
	err := sm.Step(context.Background(), conv)
	require.Error(t, err)
	assert.Equal(t, convoke.StateFailed, conv.State)

	var ce *convoke.ConvokeError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, string(convoke.StateExecuting), ce.Stage)
	assert.Contains(t, ce.Message, string(convoke.StateExecuting))
}

func TestStateMachineCancelledContext(t *testing.T) {
	sm := NewStateMachine(nil, nil)
	sm.RegisterTransition(convoke.StatePlanning, func(ctx context.Context, conv *convoke.Conversation) (convoke.ConversationState, error) {
		t.Fatal("transition must not run with a cancelled context")
		return convoke.StateFailed, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	conv := &convoke.Conversation{ID: "c1", State: convoke.StatePlanning}
	err := sm.Step(ctx, conv)
	require.Error(t, err)
	assert.Equal(t, convoke.ErrCodeCancelled, convoke.ErrorCode(err))
	assert.Equal(t, convoke.StateFailed, conv.State)

	var ce *convoke.ConvokeError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, string(convoke.StatePlanning), ce.Stage)
}
