// Package registry holds tool descriptors, validates call arguments against
// each tool's JSON schema, dispatches by name, and accumulates per-tool
// metrics.
package registry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"convoke"
)

// ToolRegistry is the default Registry implementation. Safe for concurrent use.
type ToolRegistry struct {
	mutex   sync.RWMutex
	tools   map[string]convoke.Tool
	metrics map[string]*convoke.ToolMetrics
	logger  *zap.Logger
}

// Option configures a ToolRegistry.
type Option func(*ToolRegistry)

// WithLogger sets the registry logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *ToolRegistry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates an empty registry.
func New(options ...Option) *ToolRegistry {
	r := &ToolRegistry{
		tools:   make(map[string]convoke.Tool),
		metrics: make(map[string]*convoke.ToolMetrics),
		logger:  zap.NewNop(),
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// Register adds a tool, replacing any prior registration under the same name.
func (r *ToolRegistry) Register(tool convoke.Tool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		r.logger.Info("replacing registered tool", zap.String("tool", name))
	}
	r.tools[name] = tool
	if _, exists := r.metrics[name]; !exists {
		r.metrics[name] = &convoke.ToolMetrics{}
	}
}

// DescribeAll returns the descriptor of every registered tool.
func (r *ToolRegistry) DescribeAll() []convoke.ToolDescriptor {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	descriptors := make([]convoke.ToolDescriptor, 0, len(r.tools))
	for _, tool := range r.tools {
		descriptors = append(descriptors, tool.Descriptor())
	}
	return descriptors
}

// DescribeByCategory returns descriptors of tools in the given category.
func (r *ToolRegistry) DescribeByCategory(category convoke.ToolCategory) []convoke.ToolDescriptor {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var descriptors []convoke.ToolDescriptor
	for _, tool := range r.tools {
		if desc := tool.Descriptor(); desc.Category == category {
			descriptors = append(descriptors, desc)
		}
	}
	return descriptors
}

// DescribeByName returns the descriptor for a single tool.
func (r *ToolRegistry) DescribeByName(name string) (convoke.ToolDescriptor, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	tool, ok := r.tools[name]
	if !ok {
		return convoke.ToolDescriptor{}, false
	}
	return tool.Descriptor(), true
}

// Validate runs the tool's JSON schema against params. A nil or empty slice
// means the call is acceptable; an unknown tool reports a single synthetic
// violation so callers need not special-case it.
func (r *ToolRegistry) Validate(name string, params map[string]interface{}) []convoke.ValidationError {
	r.mutex.RLock()
	tool, ok := r.tools[name]
	r.mutex.RUnlock()

	if !ok {
		return []convoke.ValidationError{{
			Field:     "/",
			ErrorType: "unknown_tool",
			Message:   "tool '" + name + "' is not registered",
		}}
	}
	return validateAgainstSchema(tool.Descriptor().ParametersSchema, params)
}

// Execute validates and dispatches a call, recording metrics either way.
func (r *ToolRegistry) Execute(ctx context.Context, name string, params map[string]interface{}) (map[string]interface{}, error) {
	r.mutex.RLock()
	tool, ok := r.tools[name]
	r.mutex.RUnlock()

	if !ok {
		return nil, convoke.NewToolNotFoundError("execution", name)
	}

	if violations := validateAgainstSchema(tool.Descriptor().ParametersSchema, params); len(violations) > 0 {
		// Rejected before dispatch: metrics unchanged
		return nil, convoke.NewInvalidToolCallError(name, violations)
	}

	start := time.Now()
	result, err := tool.Execute(ctx, params)
	elapsed := time.Since(start)

	r.recordInvocation(name, elapsed, err == nil)
	if err != nil {
		r.logger.Warn("tool execution failed",
			zap.String("tool", name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return nil, convoke.NewToolExecutionError("execution", name, err)
	}
	return result, nil
}

// Metrics returns a snapshot of the named tool's metrics.
func (r *ToolRegistry) Metrics(name string) (convoke.ToolMetrics, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	m, ok := r.metrics[name]
	if !ok {
		return convoke.ToolMetrics{}, false
	}
	snapshot := *m
	if m.LastInvocation != nil {
		ts := *m.LastInvocation
		snapshot.LastInvocation = &ts
	}
	return snapshot, true
}

func (r *ToolRegistry) recordInvocation(name string, elapsed time.Duration, success bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	m, ok := r.metrics[name]
	if !ok {
		m = &convoke.ToolMetrics{}
		r.metrics[name] = m
	}
	m.TotalInvocations++
	if success {
		m.Successes++
	} else {
		m.Failures++
	}
	// Incremental mean keeps the counter update O(1)
	elapsedMS := float64(elapsed.Milliseconds())
	m.MeanElapsedMS += (elapsedMS - m.MeanElapsedMS) / float64(m.TotalInvocations)
	now := time.Now()
	m.LastInvocation = &now
}
