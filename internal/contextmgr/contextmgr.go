// Package contextmgr maintains the bounded, self-compressing working memory
// carried across conversation steps.
package contextmgr

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"convoke"
)

const (
	// DefaultMaxContextSize is the serialized context budget in bytes.
	DefaultMaxContextSize = 1 << 20
	// DefaultMaxHistoryItems bounds the execution history length.
	DefaultMaxHistoryItems = 100

	// compressedResultKeep is how many intermediate results survive a
	// compression pass.
	compressedResultKeep = 20
	// summarizeKeyThreshold is the map size above which a result is
	// replaced by its summary.
	summarizeKeyThreshold = 10
)

// Manager applies the context policy: recording, preference handling,
// relevance scoring, and compression. It holds no per-conversation state,
// so one Manager serves every conversation.
type Manager struct {
	maxContextSize  int
	maxHistoryItems int
	defaults        convoke.UserPreferences
	summarySource   convoke.SummarySource
	logger          *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxContextSize overrides the serialized size budget.
func WithMaxContextSize(bytes int) Option {
	return func(m *Manager) {
		if bytes > 0 {
			m.maxContextSize = bytes
		}
	}
}

// WithMaxHistoryItems overrides the history length bound.
func WithMaxHistoryItems(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxHistoryItems = n
		}
	}
}

// WithDefaults sets the preferences seeded into fresh contexts.
func WithDefaults(prefs convoke.UserPreferences) Option {
	return func(m *Manager) {
		m.defaults = prefs
	}
}

// WithSummarySource sets where BuildInitial gets its data summary.
func WithSummarySource(source convoke.SummarySource) Option {
	return func(m *Manager) {
		m.summarySource = source
	}
}

// WithLogger sets the manager logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New creates a Manager with the default budgets.
func New(options ...Option) *Manager {
	m := &Manager{
		maxContextSize:  DefaultMaxContextSize,
		maxHistoryItems: DefaultMaxHistoryItems,
		defaults: convoke.UserPreferences{
			MaxConversationSteps:    20,
			PreferredResponseFormat: "detailed",
			TimeoutSeconds:          30,
		},
		logger: zap.NewNop(),
	}
	for _, option := range options {
		option(m)
	}
	return m
}

// BuildInitial assembles a fresh context: tool catalog, data summary, and
// default preferences. Without a summary source the summary stays empty.
func (m *Manager) BuildInitial(ctx context.Context, catalog []convoke.ToolDescriptor) (convoke.ConversationContext, error) {
	summary := convoke.DataSummary{
		EntityCountByType:    map[string]int64{},
		RelationCountByType:  map[string]int64{},
		ItemCountByTimeframe: map[string]int64{},
	}
	if m.summarySource != nil {
		s, err := m.summarySource.Summarize(ctx)
		if err != nil {
			return convoke.ConversationContext{}, err
		}
		summary = s
	}

	return convoke.ConversationContext{
		AvailableTools:      catalog,
		DataSummary:         summary,
		UserPreferences:     m.defaults,
		ExecutionHistory:    []convoke.ToolExecution{},
		IntermediateResults: map[string]interface{}{},
	}, nil
}

// Record appends an execution to the history, stores its result under
// "{tool}_{index}", and compresses when the context exceeds the budget.
func (m *Manager) Record(cc *convoke.ConversationContext, execution convoke.ToolExecution) error {
	cc.ExecutionHistory = append(cc.ExecutionHistory, execution)
	if len(cc.ExecutionHistory) > m.maxHistoryItems {
		cc.ExecutionHistory = cc.ExecutionHistory[len(cc.ExecutionHistory)-m.maxHistoryItems:]
	}

	if cc.IntermediateResults == nil {
		cc.IntermediateResults = map[string]interface{}{}
	}
	if execution.Result != nil {
		key := fmt.Sprintf("%s_%d", execution.ToolName, len(cc.ExecutionHistory))
		cc.IntermediateResults[key] = execution.Result
	}

	return m.CompressIfNeeded(cc)
}

// SerializedSize returns the canonical JSON size of the context in bytes.
func (m *Manager) SerializedSize(cc *convoke.ConversationContext) (int, error) {
	data, err := json.Marshal(cc)
	if err != nil {
		return 0, convoke.NewSerializationError("context", "conversation context", err)
	}
	return len(data), nil
}

// CompressIfNeeded shrinks the context when its serialized size exceeds the
// budget: history is truncated, old intermediate results are dropped, and
// oversized result maps are replaced by summaries. Failure to get under the
// budget is fatal for the conversation.
func (m *Manager) CompressIfNeeded(cc *convoke.ConversationContext) error {
	size, err := m.SerializedSize(cc)
	if err != nil {
		return err
	}
	if size <= m.maxContextSize {
		return nil
	}

	m.logger.Info("compressing conversation context",
		zap.Int("size", size),
		zap.Int("budget", m.maxContextSize))

	// Keep only the newest half of the history bound
	keepHistory := m.maxHistoryItems / 2
	if len(cc.ExecutionHistory) > keepHistory {
		cc.ExecutionHistory = cc.ExecutionHistory[len(cc.ExecutionHistory)-keepHistory:]
	}

	// Retain only the newest intermediate results
	if len(cc.IntermediateResults) > compressedResultKeep {
		keys := sortedResultKeys(cc.IntermediateResults)
		for _, key := range keys[:len(keys)-compressedResultKeep] {
			delete(cc.IntermediateResults, key)
		}
	}

	// Summarize any remaining oversized map results
	for key, value := range cc.IntermediateResults {
		if resultMap, ok := value.(map[string]interface{}); ok && len(resultMap) > summarizeKeyThreshold {
			cc.IntermediateResults[key] = summarizeResult(resultMap)
		}
	}

	size, err = m.SerializedSize(cc)
	if err != nil {
		return err
	}
	if size > m.maxContextSize {
		return convoke.NewContextTooLargeError(size, m.maxContextSize)
	}
	return nil
}

// SetPreference updates a recognized preference, or stashes unknown keys in
// the intermediate results under "preference_{key}".
func (m *Manager) SetPreference(cc *convoke.ConversationContext, key string, value interface{}) {
	switch key {
	case "response_format":
		if format, ok := value.(string); ok {
			cc.UserPreferences.PreferredResponseFormat = format
		}
	case "timeout":
		if seconds, ok := asNonNegativeInt(value); ok {
			cc.UserPreferences.TimeoutSeconds = seconds
		}
	case "max_steps":
		if steps, ok := asNonNegativeInt(value); ok {
			cc.UserPreferences.MaxConversationSteps = steps
		}
	default:
		if cc.IntermediateResults == nil {
			cc.IntermediateResults = map[string]interface{}{}
		}
		cc.IntermediateResults["preference_"+key] = value
	}
}

// RelevantHistory returns the last n executions of the named tool, newest
// first.
func (m *Manager) RelevantHistory(cc *convoke.ConversationContext, toolName string, n int) []convoke.ToolExecution {
	var relevant []convoke.ToolExecution
	for i := len(cc.ExecutionHistory) - 1; i >= 0 && len(relevant) < n; i-- {
		if cc.ExecutionHistory[i].ToolName == toolName {
			relevant = append(relevant, cc.ExecutionHistory[i])
		}
	}
	return relevant
}

// RelevanceScore scores each history entry against the query words:
// +1.0 per word in the tool name, +0.5 per word in the parameters, +0.3 per
// word in the result, all case-insensitive substring matches. Keys follow
// the "{tool}_{index}" convention of the intermediate results.
func (m *Manager) RelevanceScore(cc *convoke.ConversationContext, query string) map[string]float64 {
	words := strings.Fields(strings.ToLower(query))
	scores := make(map[string]float64, len(cc.ExecutionHistory))

	for i, execution := range cc.ExecutionHistory {
		var score float64
		name := strings.ToLower(execution.ToolName)
		params := strings.ToLower(marshalForMatch(execution.Parameters))
		result := strings.ToLower(marshalForMatch(execution.Result))

		for _, word := range words {
			if strings.Contains(name, word) {
				score += 1.0
			}
			if strings.Contains(params, word) {
				score += 0.5
			}
			if strings.Contains(result, word) {
				score += 0.3
			}
		}
		scores[fmt.Sprintf("%s_%d", execution.ToolName, i+1)] = score
	}
	return scores
}

// Statistics returns a read-only snapshot of context occupancy.
func (m *Manager) Statistics(cc *convoke.ConversationContext) convoke.ContextStatistics {
	size, err := m.SerializedSize(cc)
	if err != nil {
		size = 0
	}
	return convoke.ContextStatistics{
		HistoryCount:      len(cc.ExecutionHistory),
		IntermediateCount: len(cc.IntermediateResults),
		SerializedBytes:   size,
		ToolCount:         len(cc.AvailableTools),
	}
}

// summarizeResult replaces an oversized result map with a compact summary.
// Well-known aggregate keys survive; the rest collapse into key metadata.
func summarizeResult(resultMap map[string]interface{}) map[string]interface{} {
	summary := make(map[string]interface{})
	for _, key := range []string{"count", "total", "length", "size", "type"} {
		if value, ok := resultMap[key]; ok {
			summary[key] = value
		}
	}

	keys := make([]string, 0, len(resultMap))
	for key := range resultMap {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	firstKeys := keys
	if len(firstKeys) > 5 {
		firstKeys = firstKeys[:5]
	}

	summary["_summary"] = map[string]interface{}{
		"original_keys": firstKeys,
		"total_keys":    len(keys),
		"compressed":    true,
	}
	return summary
}

// sortedResultKeys orders intermediate-result keys oldest first, using the
// numeric "{tool}_{index}" suffix when present and falling back to
// lexicographic order.
func sortedResultKeys(results map[string]interface{}) []string {
	keys := make([]string, 0, len(results))
	for key := range results {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		si, oki := resultIndex(keys[i])
		sj, okj := resultIndex(keys[j])
		if oki && okj && si != sj {
			return si < sj
		}
		if oki != okj {
			// Un-indexed keys (preferences etc.) sort oldest
			return !oki
		}
		return keys[i] < keys[j]
	})
	return keys
}

func resultIndex(key string) (int, bool) {
	pos := strings.LastIndex(key, "_")
	if pos < 0 {
		return 0, false
	}
	index, err := strconv.Atoi(key[pos+1:])
	if err != nil {
		return 0, false
	}
	return index, true
}

func asNonNegativeInt(value interface{}) (int, bool) {
	switch v := value.(type) {
	case int:
		if v >= 0 {
			return v, true
		}
	case int64:
		if v >= 0 {
			return int(v), true
		}
	case float64:
		if v >= 0 {
			return int(v), true
		}
	}
	return 0, false
}

func marshalForMatch(value map[string]interface{}) string {
	if value == nil {
		return ""
	}
	data, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	return string(data)
}
