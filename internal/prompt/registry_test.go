package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSynthesis(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	out, err := r.Render(PromptSynthesis, map[string]interface{}{
		"Query": "which companies partnered recently?",
		"Results": map[string]string{
			"search_entities":   `{"entities":["OpenAI"]}`,
			"explore_relations": `{"relations":["partnership"]}`,
		},
		"Format": "concise",
	})
	require.NoError(t, err)

	assert.Contains(t, out, "User question: which companies partnered recently?")
	assert.Contains(t, out, `search_entities: {"entities":["OpenAI"]}`)
	assert.Contains(t, out, `explore_relations: {"relations":["partnership"]}`)
	assert.Contains(t, out, "Respond in concise form.")
}

func TestRenderClarification(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	out, err := r.Render(PromptClarification, map[string]interface{}{
		"Query":  "do the thing",
		"Reason": "No tool matches this request.",
	})
	require.NoError(t, err)

	assert.Contains(t, out, `"do the thing"`)
	assert.Contains(t, out, "No tool matches this request.")
}

func TestRenderUnknownPrompt(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	_, err = r.Render("banter", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestDefineReplaces(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	require.NoError(t, r.Define(PromptSynthesis, "short answer to {{.Query}}"))
	out, err := r.Render(PromptSynthesis, map[string]interface{}{"Query": "q"})
	require.NoError(t, err)
	assert.Equal(t, "short answer to q", out)
}

func TestDefineRejectsBadTemplate(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	assert.Error(t, r.Define("broken", "{{.Query"))
}
