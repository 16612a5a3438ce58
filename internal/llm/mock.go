package llm

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MockProvider is a deterministic LLM stand-in for tests and offline demo
// runs. Responses are selected by prompt substring, first match wins.
type MockProvider struct {
	mu       sync.Mutex
	rules    []mockRule
	prompts  []string
	delay    time.Duration
	fallback func(prompt string) string
}

type mockRule struct {
	substring string
	response  string
}

// NewMockProvider creates a mock with the default canned behavior: planning
// prompts yield a one-step entity search plan, everything else yields a
// short synthesis answer.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		fallback: defaultResponse,
	}
}

// AddRule maps prompts containing substring to a fixed response.
func (m *MockProvider) AddRule(substring, response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{substring: substring, response: response})
	return m
}

// SetDelay makes every call block for d, for exercising timeouts.
func (m *MockProvider) SetDelay(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// Prompts returns every prompt seen so far.
func (m *MockProvider) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}

// Generate implements the convoke.LLMProvider interface.
func (m *MockProvider) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	rules := make([]mockRule, len(m.rules))
	copy(rules, m.rules)
	delay := m.delay
	fallback := m.fallback
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	for _, rule := range rules {
		if strings.Contains(prompt, rule.substring) {
			return rule.response, nil
		}
	}
	return fallback(prompt), nil
}

func defaultResponse(prompt string) string {
	if strings.Contains(prompt, "execution plan") {
		return `{"estimated_complexity": "simple", "required_tools": ["search_entities"], "plan_steps": [{"step_id": 1, "description": "Search entities mentioned in the query", "tool_name": "search_entities", "parameters": {"query": "general search", "limit": 10}, "depends_on": [], "can_run_parallel": false}]}`
	}
	return "Based on the gathered results, here is a summary of what was found."
}
