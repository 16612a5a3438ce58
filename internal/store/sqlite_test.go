package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convoke"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "convoke.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleConversation(id string, at time.Time) *convoke.Conversation {
	request := "Analyze AI companies"
	response := `{"plan_steps": []}`
	elapsed := int64(42)
	summary := "Query analysis and execution plan created"
	next := "Execute planned tools"

	return &convoke.Conversation{
		ID:        id,
		UserQuery: "What AI companies are trending?",
		State:     convoke.StateExecuting,
		Context: convoke.ConversationContext{
			AvailableTools: []convoke.ToolDescriptor{
				{Name: "search_entities", Category: convoke.CategoryEntityAnalysis, Version: "1.0.0"},
			},
			DataSummary: convoke.DataSummary{
				EntityCountByType:    map[string]int64{"company": 12},
				RelationCountByType:  map[string]int64{},
				ItemCountByTimeframe: map[string]int64{"total": 120},
			},
			UserPreferences: convoke.UserPreferences{
				MaxConversationSteps:    20,
				PreferredResponseFormat: "detailed",
				TimeoutSeconds:          30,
			},
			ExecutionHistory: []convoke.ToolExecution{
				{
					ToolName:        "search_entities",
					Parameters:      map[string]interface{}{"query": "AI companies"},
					Result:          map[string]interface{}{"count": float64(2)},
					ExecutionTimeMS: &elapsed,
				},
			},
			IntermediateResults: map[string]interface{}{
				"search_entities_1": map[string]interface{}{"count": float64(2)},
			},
		},
		Steps: []convoke.ConversationStep{
			{
				StepID:      1,
				StepType:    convoke.StepTypePlanning,
				LLMRequest:  &request,
				LLMResponse: &response,
				ToolCalls:   []convoke.ToolExecution{},
				Results: &convoke.StepResult{
					Data:       map[string]interface{}{"plan": response},
					Summary:    summary,
					NextAction: &next,
				},
				Status:    convoke.StepStatusCompleted,
				CreatedAt: at,
			},
			{
				StepID:   2,
				StepType: convoke.StepTypeToolExecution,
				ToolCalls: []convoke.ToolExecution{
					{
						ToolName:   "search_entities",
						Parameters: map[string]interface{}{"query": "AI companies"},
					},
				},
				Status:    convoke.StepStatusPending,
				CreatedAt: at.Add(time.Second),
			},
		},
		CreatedAt: at,
		UpdatedAt: at.Add(time.Second),
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 12, 0, 0, 123456000, time.UTC)

	original := sampleConversation("conv-1", at)
	require.NoError(t, s.Save(ctx, original))

	loaded, err := s.Load(ctx, "conv-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, original.ID, loaded.ID)
	assert.Equal(t, original.UserQuery, loaded.UserQuery)
	assert.Equal(t, original.State, loaded.State)
	assert.Equal(t, original.Context, loaded.Context)
	require.Len(t, loaded.Steps, 2)
	assert.Equal(t, original.Steps[0], loaded.Steps[0])
	assert.Equal(t, original.Steps[1], loaded.Steps[1])
	assert.True(t, original.CreatedAt.Equal(loaded.CreatedAt))
	assert.True(t, original.UpdatedAt.Equal(loaded.UpdatedAt))
}

func TestSQLiteStoreLoadMissing(t *testing.T) {
	s := newTestStore(t)

	loaded, err := s.Load(context.Background(), "no-such-id")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSQLiteStoreUpdateReplacesSteps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	conv := sampleConversation("conv-2", at)
	require.NoError(t, s.Save(ctx, conv))

	conv.State = convoke.StateCompleted
	conv.Steps = conv.Steps[:1]
	conv.Steps[0].Status = convoke.StepStatusCompleted
	conv.UpdatedAt = at.Add(time.Minute)
	require.NoError(t, s.Update(ctx, conv))

	loaded, err := s.Load(ctx, "conv-2")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, convoke.StateCompleted, loaded.State)
	assert.Len(t, loaded.Steps, 1)
}

func TestSQLiteStoreUpdateMissing(t *testing.T) {
	s := newTestStore(t)
	conv := sampleConversation("ghost", time.Now().UTC())

	err := s.Update(context.Background(), conv)
	require.Error(t, err)
	assert.Equal(t, convoke.ErrCodeStorage, convoke.ErrorCode(err))
}

func TestSQLiteStoreDeleteCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := sampleConversation("conv-3", time.Now().UTC())
	require.NoError(t, s.Save(ctx, conv))
	require.NoError(t, s.Delete(ctx, "conv-3"))

	loaded, err := s.Load(ctx, "conv-3")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	var count int
	require.NoError(t, s.db.QueryRow(
		`SELECT COUNT(*) FROM conversation_steps WHERE conversation_id = ?`, "conv-3").Scan(&count))
	assert.Zero(t, count)
}

func TestSQLiteStoreListOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "mid", "new"} {
		conv := sampleConversation(id, base)
		conv.UpdatedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.Save(ctx, conv))
	}

	listed, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "new", listed[0].ID)
	assert.Equal(t, "mid", listed[1].ID)
	assert.Empty(t, listed[0].Steps)
}

func TestSummaryStore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	summary, err := NewSummaryStore(s.DB())
	require.NoError(t, err)

	_, err = s.DB().Exec(`INSERT INTO entities (entity_type, name) VALUES
		('company', 'OpenAI'), ('company', 'DeepMind'), ('person', 'Ada')`)
	require.NoError(t, err)
	_, err = s.DB().Exec(`INSERT INTO entity_relations (relation_type, source_id, target_id) VALUES
		('partnership', 1, 2)`)
	require.NoError(t, err)
	_, err = s.DB().Exec(`INSERT INTO hn_items (id, title, score, created_at) VALUES
		(1, 'Launch', 100, '2025-05-01 08:00:00'), (2, 'Funding', 50, '2025-05-02 09:30:00')`)
	require.NoError(t, err)

	got, err := summary.Summarize(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(2), got.EntityCountByType["company"])
	assert.Equal(t, int64(1), got.EntityCountByType["person"])
	assert.Equal(t, int64(1), got.RelationCountByType["partnership"])
	assert.Equal(t, int64(2), got.ItemCountByTimeframe["total"])
	require.NotNil(t, got.DataFreshness)
	assert.Equal(t, time.Date(2025, 5, 2, 9, 30, 0, 0, time.UTC), got.DataFreshness.UTC())
}

func TestSummaryStoreEmpty(t *testing.T) {
	s := newTestStore(t)

	summary, err := NewSummaryStore(s.DB())
	require.NoError(t, err)

	got, err := summary.Summarize(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got.EntityCountByType)
	assert.Equal(t, int64(0), got.ItemCountByTimeframe["total"])
	assert.Nil(t, got.DataFreshness)
}
