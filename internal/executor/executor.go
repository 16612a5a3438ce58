// Package executor dispatches tool calls through the registry. Batches are
// split into a parallel cohort and a sequential tail; every call is bounded
// by a per-call timeout and yields exactly one ToolExecution record.
package executor

import (
	"context"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"convoke"
)

// TimeoutErrorMessage is the error text recorded when a call exceeds the
// execution timeout.
const TimeoutErrorMessage = "Tool execution timeout"

var (
	parallelSafeVerbs = []string{"search", "get", "list", "query", "analyze"}
	sequentialVerbs   = []string{"create", "update", "delete", "modify"}
)

// ToolExecutor is the default Executor implementation.
type ToolExecutor struct {
	registry    convoke.Registry
	execTimeout time.Duration // Per-call execution timeout
	maxParallel int           // Max concurrent calls in a cohort chunk
	logger      *zap.Logger
	resolver    *paramResolver

	metrics ExecutorMetrics
}

// Option represents an option for configuring the ToolExecutor.
type Option func(*ToolExecutor)

// WithExecTimeout sets the per-call execution timeout.
func WithExecTimeout(timeout time.Duration) Option {
	return func(e *ToolExecutor) {
		e.execTimeout = timeout
	}
}

// WithMaxParallel sets the parallel cohort chunk size.
func WithMaxParallel(n int) Option {
	return func(e *ToolExecutor) {
		if n > 0 {
			e.maxParallel = n
		}
	}
}

// WithLogger sets the executor logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *ToolExecutor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithResultSource provides the lookup used to resolve ${...} parameter
// expressions against accumulated intermediate results.
func WithResultSource(source func() map[string]interface{}) Option {
	return func(e *ToolExecutor) {
		e.resolver = newParamResolver(source)
	}
}

// New creates a new executor bound to a registry.
func New(registry convoke.Registry, options ...Option) *ToolExecutor {
	e := &ToolExecutor{
		registry:    registry,
		execTimeout: 30 * time.Second,
		maxParallel: 4,
		logger:      zap.NewNop(),
	}
	for _, option := range options {
		option(e)
	}
	return e
}

// IsParallelSafe applies the name heuristic: write-looking names are never
// co-scheduled, read-looking names are, anything else runs sequentially.
func IsParallelSafe(toolName string) bool {
	name := strings.ToLower(toolName)
	for _, verb := range sequentialVerbs {
		if strings.Contains(name, verb) {
			return false
		}
	}
	for _, verb := range parallelSafeVerbs {
		if strings.Contains(name, verb) {
			return true
		}
	}
	return false
}

// Execute runs a single call bounded by the execution timeout.
func (e *ToolExecutor) Execute(ctx context.Context, call convoke.ToolCall) convoke.ToolExecution {
	return e.execute(ctx, call, e.resolver)
}

func (e *ToolExecutor) execute(ctx context.Context, call convoke.ToolCall, resolver *paramResolver) convoke.ToolExecution {
	execution := convoke.ToolExecution{
		ToolName:   call.ToolName,
		Parameters: call.Parameters,
	}

	params := call.Parameters
	if resolver != nil {
		resolved, err := resolver.resolve(params)
		if err != nil {
			msg := err.Error()
			execution.Error = &msg
			zero := int64(0)
			execution.ExecutionTimeMS = &zero
			e.recordOutcome(&execution, false)
			return execution
		}
		params = resolved
		execution.Parameters = resolved
	}

	execCtx, cancel := context.WithTimeout(ctx, e.execTimeout)
	defer cancel()

	start := time.Now()
	result, err := e.registry.Execute(execCtx, call.ToolName, params)
	elapsed := time.Since(start)

	if execCtx.Err() == context.DeadlineExceeded {
		// No partial result is surfaced; duration reflects the budget spent
		msg := TimeoutErrorMessage
		execution.Error = &msg
		timeoutMS := e.execTimeout.Milliseconds()
		execution.ExecutionTimeMS = &timeoutMS
		e.logger.Warn("tool call timed out",
			zap.String("tool", call.ToolName),
			zap.Duration("timeout", e.execTimeout))
		e.recordOutcome(&execution, false)
		return execution
	}

	elapsedMS := elapsed.Milliseconds()
	execution.ExecutionTimeMS = &elapsedMS
	if err != nil {
		msg := err.Error()
		execution.Error = &msg
		e.recordOutcome(&execution, false)
		return execution
	}

	execution.Result = result
	e.recordOutcome(&execution, true)
	return execution
}

// ExecuteBatch splits calls into a parallel cohort and a sequential tail,
// runs the cohort in chunks bounded by the parallelism limit, then runs the
// tail in declared order. Every call contributes exactly one record.
// Parameter expressions are evaluated against results; a nil results map
// falls back to the executor's configured result source. The results map
// must not be mutated while the batch is in flight.
func (e *ToolExecutor) ExecuteBatch(ctx context.Context, calls []convoke.ToolCall, results map[string]interface{}) []convoke.ToolExecution {
	resolver := e.resolver
	if results != nil {
		resolver = newParamResolver(func() map[string]interface{} { return results })
	}

	var cohort, tail []convoke.ToolCall
	for _, call := range calls {
		if IsParallelSafe(call.ToolName) {
			cohort = append(cohort, call)
		} else {
			tail = append(tail, call)
		}
	}

	e.logger.Debug("executing batch",
		zap.Int("total", len(calls)),
		zap.Int("parallel", len(cohort)),
		zap.Int("sequential", len(tail)))

	executions := make([]convoke.ToolExecution, 0, len(calls))

	for start := 0; start < len(cohort); start += e.maxParallel {
		end := start + e.maxParallel
		if end > len(cohort) {
			end = len(cohort)
		}
		chunk := cohort[start:end]

		chunkResults := make([]convoke.ToolExecution, len(chunk))
		workers := pool.New().WithMaxGoroutines(e.maxParallel)
		for i, call := range chunk {
			workers.Go(func() {
				chunkResults[i] = e.execute(ctx, call, resolver)
			})
		}
		workers.Wait()
		executions = append(executions, chunkResults...)
	}

	for _, call := range tail {
		executions = append(executions, e.execute(ctx, call, resolver))
	}

	return executions
}

// ExecuteWithRetry retries a failed call with linear backoff
// (delay = baseDelay x (attempt+1), baseDelay in milliseconds). The record
// of the last attempt is returned.
func (e *ToolExecutor) ExecuteWithRetry(ctx context.Context, call convoke.ToolCall, maxRetries int, baseDelay int64) convoke.ToolExecution {
	var execution convoke.ToolExecution

	for attempt := 0; attempt <= maxRetries; attempt++ {
		execution = e.Execute(ctx, call)
		if execution.Error == nil {
			return execution
		}
		e.metrics.addRetry()

		if attempt == maxRetries {
			break
		}
		delay := time.Duration(baseDelay*(int64(attempt)+1)) * time.Millisecond
		e.logger.Debug("retrying tool call",
			zap.String("tool", call.ToolName),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay))
		select {
		case <-ctx.Done():
			return execution
		case <-time.After(delay):
		}
	}
	return execution
}

// ExecuteWithFallback returns the first successful record among the primary
// call and its fallbacks. If everything fails, the primary's failing record
// is returned.
func (e *ToolExecutor) ExecuteWithFallback(ctx context.Context, primary convoke.ToolCall, fallbacks []convoke.ToolCall) convoke.ToolExecution {
	primaryExecution := e.Execute(ctx, primary)
	if primaryExecution.Error == nil {
		return primaryExecution
	}

	for _, fallback := range fallbacks {
		e.logger.Debug("primary tool failed, trying fallback",
			zap.String("primary", primary.ToolName),
			zap.String("fallback", fallback.ToolName))
		if execution := e.Execute(ctx, fallback); execution.Error == nil {
			return execution
		}
	}
	return primaryExecution
}

// Aggregate summarizes a set of terminated executions.
func (e *ToolExecutor) Aggregate(executions []convoke.ToolExecution) map[string]interface{} {
	results := make(map[string]interface{})
	errors := make([]interface{}, 0)
	var totalMS int64

	for _, execution := range executions {
		if execution.Error != nil {
			errors = append(errors, map[string]interface{}{
				"tool":  execution.ToolName,
				"error": *execution.Error,
			})
		} else {
			results[execution.ToolName] = execution.Result
		}
		if execution.ExecutionTimeMS != nil {
			totalMS += *execution.ExecutionTimeMS
		}
	}

	return map[string]interface{}{
		"results":                 results,
		"errors":                  errors,
		"total_execution_time_ms": totalMS,
	}
}

// Metrics returns a snapshot of the executor's counters.
func (e *ToolExecutor) Metrics() ExecutorMetrics {
	return e.metrics.Copy()
}

func (e *ToolExecutor) recordOutcome(execution *convoke.ToolExecution, success bool) {
	var elapsed time.Duration
	if execution.ExecutionTimeMS != nil {
		elapsed = time.Duration(*execution.ExecutionTimeMS) * time.Millisecond
	}
	timedOut := execution.Error != nil && *execution.Error == TimeoutErrorMessage
	e.metrics.record(success, timedOut, elapsed)
}
