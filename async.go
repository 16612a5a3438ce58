package convoke

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"convoke/internal/eventbus"
)

// asyncRun tracks one background conversation run.
type asyncRun struct {
	conversationID string
	query          string
	state          ConversationState
	result         *ConversationResult
	err            error
	startTime      time.Time
	endTime        time.Time
	cancel         context.CancelFunc
	done           bool
}

// AsyncRunStatus reports the progress of a background run.
type AsyncRunStatus struct {
	RunID          string            `json:"run_id"`
	ConversationID string            `json:"conversation_id"`
	Query          string            `json:"query"`
	State          ConversationState `json:"state"`
	StartTime      time.Time         `json:"start_time"`
	Duration       time.Duration     `json:"duration"`
	IsComplete     bool              `json:"is_complete"`
	HasError       bool              `json:"has_error"`
	ErrorMessage   string            `json:"error_message,omitempty"`
}

// RunAsync starts a conversation and drives it to completion in the
// background. It returns a run ID for status polling. The conversation is
// created synchronously so the ID is durable before this returns.
func (c *Convoke) RunAsync(ctx context.Context, query string) (string, error) {
	conv, err := c.StartConversation(ctx, query)
	if err != nil {
		return "", err
	}

	runID := uuid.NewString()
	runCtx, cancel := context.WithCancel(context.Background())

	run := &asyncRun{
		conversationID: conv.ID,
		query:          query,
		state:          conv.State,
		startTime:      time.Now(),
		cancel:         cancel,
	}
	c.asyncMutex.Lock()
	c.asyncRuns[runID] = run
	c.asyncMutex.Unlock()

	c.publish(ctx, eventbus.EventAsyncRunStarted, query, map[string]interface{}{
		"run_id":          runID,
		"conversation_id": conv.ID,
	})

	c.group.Go(func() error {
		defer cancel()

		result, runErr := c.drive(runCtx, conv.ID)

		c.asyncMutex.Lock()
		run.result = result
		run.err = runErr
		run.endTime = time.Now()
		run.done = true
		if result != nil {
			run.state = result.State
		} else {
			run.state = StateFailed
		}
		c.asyncMutex.Unlock()

		eventType := eventbus.EventAsyncRunSuccess
		metadata := map[string]interface{}{
			"run_id":          runID,
			"conversation_id": conv.ID,
			"duration_ms":     time.Since(run.startTime).Milliseconds(),
		}
		if runErr != nil {
			eventType = eventbus.EventAsyncRunFailure
			metadata["error"] = runErr.Error()
		}
		// Original context may be done by now.
		c.publish(context.Background(), eventType, query, metadata)

		// Errors are reported through the run status, not the group.
		return nil
	})

	return runID, nil
}

// AsyncStatus retrieves the current status of a background run.
func (c *Convoke) AsyncStatus(runID string) (*AsyncRunStatus, error) {
	c.asyncMutex.RLock()
	defer c.asyncMutex.RUnlock()

	run, exists := c.asyncRuns[runID]
	if !exists {
		return nil, NewInternalError("engine", fmt.Sprintf("async run %s not found", runID), nil)
	}

	duration := time.Since(run.startTime)
	if run.done {
		duration = run.endTime.Sub(run.startTime)
	}

	status := &AsyncRunStatus{
		RunID:          runID,
		ConversationID: run.conversationID,
		Query:          run.query,
		State:          run.state,
		StartTime:      run.startTime,
		Duration:       duration,
		IsComplete:     run.done,
		HasError:       run.err != nil,
	}
	if run.err != nil {
		status.ErrorMessage = run.err.Error()
	}
	return status, nil
}

// AsyncResult returns the result of a completed background run. It
// errors while the run is still in progress or if the run failed.
func (c *Convoke) AsyncResult(runID string) (*ConversationResult, error) {
	c.asyncMutex.RLock()
	defer c.asyncMutex.RUnlock()

	run, exists := c.asyncRuns[runID]
	if !exists {
		return nil, NewInternalError("engine", fmt.Sprintf("async run %s not found", runID), nil)
	}
	if !run.done {
		return nil, NewInternalError("engine",
			fmt.Sprintf("async run %s is still in progress (state %s)", runID, run.state), nil)
	}
	if run.err != nil {
		return run.result, run.err
	}
	return run.result, nil
}

// CancelAsync cancels an in-progress background run. Returns false when
// the run had already finished.
func (c *Convoke) CancelAsync(runID string) (bool, error) {
	c.asyncMutex.Lock()
	defer c.asyncMutex.Unlock()

	run, exists := c.asyncRuns[runID]
	if !exists {
		return false, NewInternalError("engine", fmt.Sprintf("async run %s not found", runID), nil)
	}
	if run.done {
		return false, nil
	}

	run.cancel()
	c.publish(context.Background(), eventbus.EventAsyncRunCancelled, run.query, map[string]interface{}{
		"run_id":          runID,
		"conversation_id": run.conversationID,
	})
	return true, nil
}

// ListAsyncRuns returns the state of every known background run.
func (c *Convoke) ListAsyncRuns() map[string]ConversationState {
	c.asyncMutex.RLock()
	defer c.asyncMutex.RUnlock()

	states := make(map[string]ConversationState, len(c.asyncRuns))
	for id, run := range c.asyncRuns {
		states[id] = run.state
	}
	return states
}

// CleanupCompletedRuns drops finished runs older than the given age and
// returns how many were removed. Prevents the run table growing without
// bound in long-lived processes.
func (c *Convoke) CleanupCompletedRuns(olderThan time.Duration) int {
	c.asyncMutex.Lock()
	defer c.asyncMutex.Unlock()

	now := time.Now()
	count := 0
	for id, run := range c.asyncRuns {
		if run.done && now.Sub(run.endTime) > olderThan {
			delete(c.asyncRuns, id)
			count++
		}
	}
	return count
}
