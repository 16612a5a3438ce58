package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"convoke"
	"convoke/internal/eventbus"
	"convoke/internal/planner"
	"convoke/internal/prompt"
)

const (
	planningSummary  = "Query analysis and execution plan created"
	planningNext     = "Execute planned tools"
	synthesisSummary = "Final answer synthesized from tool results"

	// Failed tool rounds are retried with a fresh step until this many
	// tool execution steps have been recorded.
	maxToolExecutionRounds = 3

	intermediateResultPrefix = "tool_result_"
)

func (m *Manager) registerTransitions(sm *StateMachine) {
	sm.RegisterTransition(convoke.StatePlanning, m.transitionPlanning)
	sm.RegisterTransition(convoke.StateExecuting, m.transitionExecuting)
	sm.RegisterTransition(convoke.StateSynthesizing, m.transitionSynthesizing)
}

// transitionPlanning asks the LLM for an execution plan and records it as
// a completed planning step. The raw response is stored so the executing
// state can parse it later.
func (m *Manager) transitionPlanning(ctx context.Context, conv *convoke.Conversation) (convoke.ConversationState, error) {
	promptText := planner.BuildAnalysisPrompt(conv.UserQuery, conv.Context.AvailableTools)

	m.publish(ctx, eventbus.EventPlanningStarted, conv.ID, nil)

	llmCtx, cancel := context.WithTimeout(ctx, m.stepTimeout)
	defer cancel()

	response, err := m.llm.Generate(llmCtx, promptText)
	if err != nil {
		m.publish(ctx, eventbus.EventPlanningFailure, conv.ID, map[string]interface{}{"error": err.Error()})
		if errors.Is(err, context.DeadlineExceeded) {
			return convoke.StateFailed, convoke.NewConversationTimeoutError("planning", err)
		}
		return convoke.StateFailed, convoke.NewPlanningError("plan generation failed", convoke.NewLLMProviderError("planning", err))
	}

	next := planningNext
	conv.Steps = append(conv.Steps, convoke.ConversationStep{
		StepID:      conv.NextStepID(),
		StepType:    convoke.StepTypePlanning,
		LLMRequest:  &promptText,
		LLMResponse: &response,
		ToolCalls:   []convoke.ToolExecution{},
		Results: &convoke.StepResult{
			Data:       map[string]interface{}{"plan": response},
			Summary:    planningSummary,
			NextAction: &next,
		},
		Status:    convoke.StepStatusCompleted,
		CreatedAt: m.now(),
	})

	m.publish(ctx, eventbus.EventPlanningSuccess, conv.ID, map[string]interface{}{
		"response_length": len(response),
	})
	return convoke.StateExecuting, nil
}

// transitionExecuting alternates between two durable sub-steps: when the
// latest step is a pending tool execution it dispatches the calls and
// merges the results; otherwise it parses the stored plan into a new
// pending step for the next call to dispatch.
func (m *Manager) transitionExecuting(ctx context.Context, conv *convoke.Conversation) (convoke.ConversationState, error) {
	last := conv.LastStep()
	if last != nil && last.StepType == convoke.StepTypeToolExecution && last.Status == convoke.StepStatusPending {
		return m.dispatchPendingStep(ctx, conv, last)
	}
	return m.schedulePlannedCalls(ctx, conv)
}

func (m *Manager) dispatchPendingStep(ctx context.Context, conv *convoke.Conversation, step *convoke.ConversationStep) (convoke.ConversationState, error) {
	calls := make([]convoke.ToolCall, 0, len(step.ToolCalls))
	for _, tc := range step.ToolCalls {
		calls = append(calls, convoke.ToolCall{ToolName: tc.ToolName, Parameters: tc.Parameters})
	}

	m.publish(ctx, eventbus.EventToolExecutionStarted, conv.ID, map[string]interface{}{
		"call_count": len(calls),
	})

	executions := m.executor.ExecuteBatch(ctx, calls, conv.Context.IntermediateResults)
	step.ToolCalls = executions
	step.Results = &convoke.StepResult{
		Data:    m.executor.Aggregate(executions),
		Summary: fmt.Sprintf("Executed %d tool calls", len(executions)),
	}
	step.Status = convoke.StepStatusCompleted

	var inputPrompt string
	requiresInput := false
	allFailed := len(executions) > 0
	anyContinue := false
	for i := range executions {
		exec := executions[i]
		if err := m.contextMgr.Record(&conv.Context, exec); err != nil {
			return convoke.StateFailed, err
		}
		if exec.Error != nil {
			m.publish(ctx, eventbus.EventToolExecutionFailure, conv.ID, map[string]interface{}{
				"tool": exec.ToolName, "error": *exec.Error,
			})
			continue
		}
		allFailed = false
		conv.Context.IntermediateResults[intermediateResultPrefix+exec.ToolName] = exec.Result
		if flag, ok := exec.Result["continue"].(bool); ok && flag {
			anyContinue = true
		}
		if flag, ok := exec.Result["requires_user_input"].(bool); ok && flag {
			requiresInput = true
			if p, ok := exec.Result["input_prompt"].(string); ok {
				inputPrompt = p
			}
		}
		m.publish(ctx, eventbus.EventToolExecutionSuccess, conv.ID, map[string]interface{}{
			"tool": exec.ToolName,
		})
	}

	if requiresInput {
		if inputPrompt == "" {
			inputPrompt = "Additional input is required to continue."
		}
		step.Results.Data["input_prompt"] = inputPrompt
		m.publish(ctx, eventbus.EventUserInputRequested, conv.ID, map[string]interface{}{
			"prompt": inputPrompt,
		})
		return convoke.StateRequiresUserInput, nil
	}

	if allFailed && m.toolExecutionRounds(conv) < maxToolExecutionRounds {
		m.logger.Info("all tool calls failed, scheduling retry round",
			zap.String("conversation_id", conv.ID))
		return convoke.StateExecuting, nil
	}
	if anyContinue {
		return convoke.StateExecuting, nil
	}
	return convoke.StateSynthesizing, nil
}

func (m *Manager) schedulePlannedCalls(ctx context.Context, conv *convoke.Conversation) (convoke.ConversationState, error) {
	planText, ok := storedPlan(conv)
	if !ok {
		return convoke.StateFailed, convoke.NewPlanningError("no plan available for execution", nil)
	}

	calls := planToolCalls(planText)
	if len(calls) == 0 {
		return convoke.StateSynthesizing, nil
	}

	pending := make([]convoke.ToolExecution, 0, len(calls))
	for _, call := range calls {
		pending = append(pending, convoke.ToolExecution{
			ToolName:   call.ToolName,
			Parameters: call.Parameters,
		})
	}

	conv.Steps = append(conv.Steps, convoke.ConversationStep{
		StepID:    conv.NextStepID(),
		StepType:  convoke.StepTypeToolExecution,
		ToolCalls: pending,
		Status:    convoke.StepStatusPending,
		CreatedAt: m.now(),
	})
	m.publish(ctx, eventbus.EventStepStarted, conv.ID, map[string]interface{}{
		"step_type":  string(convoke.StepTypeToolExecution),
		"call_count": len(calls),
	})
	return convoke.StateExecuting, nil
}

// transitionSynthesizing composes the final answer from the gathered tool
// results and completes the conversation.
func (m *Manager) transitionSynthesizing(ctx context.Context, conv *convoke.Conversation) (convoke.ConversationState, error) {
	m.publish(ctx, eventbus.EventSynthesisStarted, conv.ID, nil)

	promptText, err := m.prompts.Render(prompt.PromptSynthesis, map[string]interface{}{
		"Query":   conv.UserQuery,
		"Results": serializedToolResults(conv.Context.IntermediateResults),
		"Format":  conv.Context.UserPreferences.PreferredResponseFormat,
	})
	if err != nil {
		return convoke.StateFailed, convoke.NewInternalError("synthesis", "render synthesis prompt", err)
	}

	llmCtx, cancel := context.WithTimeout(ctx, m.stepTimeout)
	defer cancel()

	response, err := m.llm.Generate(llmCtx, promptText)
	if err != nil {
		m.publish(ctx, eventbus.EventSynthesisFailure, conv.ID, map[string]interface{}{"error": err.Error()})
		if errors.Is(err, context.DeadlineExceeded) {
			return convoke.StateFailed, convoke.NewConversationTimeoutError("synthesis", err)
		}
		return convoke.StateFailed, convoke.NewLLMProviderError("synthesis", err)
	}

	conv.Steps = append(conv.Steps, convoke.ConversationStep{
		StepID:      conv.NextStepID(),
		StepType:    convoke.StepTypeResultSynthesis,
		LLMRequest:  &promptText,
		LLMResponse: &response,
		ToolCalls:   []convoke.ToolExecution{},
		Results: &convoke.StepResult{
			Data:    map[string]interface{}{"response": response},
			Summary: synthesisSummary,
		},
		Status:    convoke.StepStatusCompleted,
		CreatedAt: m.now(),
	})

	m.publish(ctx, eventbus.EventSynthesisSuccess, conv.ID, map[string]interface{}{
		"answer_length": len(response),
	})
	return convoke.StateCompleted, nil
}

// storedPlan finds the most recent planning step's raw plan text.
func storedPlan(conv *convoke.Conversation) (string, bool) {
	for i := len(conv.Steps) - 1; i >= 0; i-- {
		step := conv.Steps[i]
		if step.StepType != convoke.StepTypePlanning {
			continue
		}
		if step.Results != nil {
			if text, ok := step.Results.Data["plan"].(string); ok {
				return text, true
			}
		}
		if step.LLMResponse != nil {
			return *step.LLMResponse, true
		}
	}
	return "", false
}

func (m *Manager) toolExecutionRounds(conv *convoke.Conversation) int {
	rounds := 0
	for _, step := range conv.Steps {
		if step.StepType == convoke.StepTypeToolExecution {
			rounds++
		}
	}
	return rounds
}

// serializedToolResults renders the intermediate tool results as JSON
// strings keyed by tool, in stable order.
func serializedToolResults(intermediates map[string]interface{}) map[string]string {
	results := make(map[string]string)
	keys := make([]string, 0, len(intermediates))
	for key := range intermediates {
		if strings.HasPrefix(key, intermediateResultPrefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		data, err := json.Marshal(intermediates[key])
		if err != nil {
			continue
		}
		results[strings.TrimPrefix(key, intermediateResultPrefix)] = string(data)
	}
	return results
}
