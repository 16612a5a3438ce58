package contextmgr

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convoke"
)

type staticSummary struct {
	summary convoke.DataSummary
	err     error
}

func (s *staticSummary) Summarize(ctx context.Context) (convoke.DataSummary, error) {
	return s.summary, s.err
}

func catalog() []convoke.ToolDescriptor {
	return []convoke.ToolDescriptor{
		{Name: "search_entities", Category: convoke.CategoryEntityAnalysis},
		{Name: "explore_relations", Category: convoke.CategoryRelationExploration},
	}
}

func execution(tool string, result map[string]interface{}) convoke.ToolExecution {
	elapsed := int64(5)
	return convoke.ToolExecution{
		ToolName:        tool,
		Parameters:      map[string]interface{}{"query": "ai"},
		Result:          result,
		ExecutionTimeMS: &elapsed,
	}
}

func TestBuildInitial(t *testing.T) {
	source := &staticSummary{summary: convoke.DataSummary{
		EntityCountByType:    map[string]int64{"company": 7},
		RelationCountByType:  map[string]int64{},
		ItemCountByTimeframe: map[string]int64{"total": 42},
	}}
	m := New(
		WithSummarySource(source),
		WithDefaults(convoke.UserPreferences{
			MaxConversationSteps:    10,
			PreferredResponseFormat: "concise",
			TimeoutSeconds:          15,
		}),
	)

	cc, err := m.BuildInitial(context.Background(), catalog())
	require.NoError(t, err)

	assert.Len(t, cc.AvailableTools, 2)
	assert.Equal(t, int64(7), cc.DataSummary.EntityCountByType["company"])
	assert.Equal(t, "concise", cc.UserPreferences.PreferredResponseFormat)
	assert.Empty(t, cc.ExecutionHistory)
	assert.Empty(t, cc.IntermediateResults)
}

func TestBuildInitialWithoutSource(t *testing.T) {
	m := New()

	cc, err := m.BuildInitial(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, cc.DataSummary.EntityCountByType)
	assert.Empty(t, cc.DataSummary.EntityCountByType)
	assert.Equal(t, 20, cc.UserPreferences.MaxConversationSteps)
}

func TestRecordKeysAndHistoryBound(t *testing.T) {
	m := New(WithMaxHistoryItems(3))
	cc, err := m.BuildInitial(context.Background(), catalog())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, m.Record(&cc, execution("search_entities", map[string]interface{}{"round": i})))
	}

	assert.Len(t, cc.ExecutionHistory, 3)
	// Result keys index into the history as it stood at record time.
	assert.Contains(t, cc.IntermediateResults, "search_entities_1")
	assert.Contains(t, cc.IntermediateResults, "search_entities_3")
}

func TestRecordSkipsResultlessExecutions(t *testing.T) {
	m := New()
	cc, err := m.BuildInitial(context.Background(), nil)
	require.NoError(t, err)

	msg := "failed"
	require.NoError(t, m.Record(&cc, convoke.ToolExecution{ToolName: "search_entities", Error: &msg}))

	assert.Len(t, cc.ExecutionHistory, 1)
	assert.Empty(t, cc.IntermediateResults)
}

func TestCompression(t *testing.T) {
	m := New(WithMaxContextSize(40_000), WithMaxHistoryItems(100))
	cc, err := m.BuildInitial(context.Background(), catalog())
	require.NoError(t, err)

	// Fill the context well past the budget: a long history and many wide
	// result maps.
	for i := 0; i < 150; i++ {
		wide := make(map[string]interface{}, 12)
		for j := 0; j < 12; j++ {
			wide[fmt.Sprintf("field_%02d", j)] = fmt.Sprintf("value-%d-%d", i, j)
		}
		wide["count"] = i
		cc.ExecutionHistory = append(cc.ExecutionHistory, execution("search_entities", wide))
		cc.IntermediateResults[fmt.Sprintf("search_entities_%d", i+1)] = wide
	}

	require.NoError(t, m.CompressIfNeeded(&cc))

	assert.LessOrEqual(t, len(cc.ExecutionHistory), 50)
	assert.LessOrEqual(t, len(cc.IntermediateResults), 20)

	// Newest results survive, and oversized maps are summarized.
	require.Contains(t, cc.IntermediateResults, "search_entities_150")
	assert.NotContains(t, cc.IntermediateResults, "search_entities_1")

	summarized := cc.IntermediateResults["search_entities_150"].(map[string]interface{})
	require.Contains(t, summarized, "_summary")
	meta := summarized["_summary"].(map[string]interface{})
	assert.Equal(t, true, meta["compressed"])
	assert.Equal(t, 13, meta["total_keys"])
	assert.Len(t, meta["original_keys"], 5)
	assert.Equal(t, 149, summarized["count"])

	size, err := m.SerializedSize(&cc)
	require.NoError(t, err)
	assert.LessOrEqual(t, size, 40_000)
}

func TestCompressionFailureIsFatal(t *testing.T) {
	m := New(WithMaxContextSize(64))
	cc, err := m.BuildInitial(context.Background(), catalog())
	require.NoError(t, err)

	err = m.CompressIfNeeded(&cc)
	require.Error(t, err)
	assert.Equal(t, convoke.ErrCodeContextSize, convoke.ErrorCode(err))
}

func TestSetPreference(t *testing.T) {
	m := New()
	cc, err := m.BuildInitial(context.Background(), nil)
	require.NoError(t, err)

	m.SetPreference(&cc, "response_format", "concise")
	assert.Equal(t, "concise", cc.UserPreferences.PreferredResponseFormat)

	m.SetPreference(&cc, "timeout", 45)
	assert.Equal(t, 45, cc.UserPreferences.TimeoutSeconds)

	m.SetPreference(&cc, "max_steps", float64(8))
	assert.Equal(t, 8, cc.UserPreferences.MaxConversationSteps)

	m.SetPreference(&cc, "timeout", -1)
	assert.Equal(t, 45, cc.UserPreferences.TimeoutSeconds)

	m.SetPreference(&cc, "language", "de")
	assert.Equal(t, "de", cc.IntermediateResults["preference_language"])
}

func TestRelevantHistory(t *testing.T) {
	m := New()
	cc, err := m.BuildInitial(context.Background(), nil)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		require.NoError(t, m.Record(&cc, execution("search_entities", map[string]interface{}{"round": i})))
		require.NoError(t, m.Record(&cc, execution("explore_relations", map[string]interface{}{"round": i})))
	}

	recent := m.RelevantHistory(&cc, "search_entities", 2)
	require.Len(t, recent, 2)
	// Newest first.
	assert.Equal(t, 3, recent[0].Result["round"])
	assert.Equal(t, "search_entities", recent[1].ToolName)
}

func TestRelevanceScore(t *testing.T) {
	m := New()
	cc, err := m.BuildInitial(context.Background(), nil)
	require.NoError(t, err)

	require.NoError(t, m.Record(&cc, convoke.ToolExecution{
		ToolName:   "search_entities",
		Parameters: map[string]interface{}{"query": "openai funding"},
		Result:     map[string]interface{}{"top": "openai"},
	}))
	require.NoError(t, m.Record(&cc, convoke.ToolExecution{
		ToolName:   "explore_relations",
		Parameters: map[string]interface{}{"entity_type": "company"},
		Result:     map[string]interface{}{"relations": []interface{}{}},
	}))

	scores := m.RelevanceScore(&cc, "search openai")
	require.Len(t, scores, 2)
	// "search" matches the first tool's name (+1.0) and "openai" its
	// parameters (+0.5) and result (+0.3).
	assert.InDelta(t, 1.8, scores["search_entities_1"], 0.001)
	assert.InDelta(t, 0.0, scores["explore_relations_2"], 0.001)
}

func TestStatistics(t *testing.T) {
	m := New()
	cc, err := m.BuildInitial(context.Background(), catalog())
	require.NoError(t, err)
	require.NoError(t, m.Record(&cc, execution("search_entities", map[string]interface{}{"hits": 1})))

	stats := m.Statistics(&cc)
	assert.Equal(t, 1, stats.HistoryCount)
	assert.Equal(t, 1, stats.IntermediateCount)
	assert.Equal(t, 2, stats.ToolCount)
	assert.Positive(t, stats.SerializedBytes)
}
