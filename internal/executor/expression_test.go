package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePassesPlainValuesThrough(t *testing.T) {
	r := newParamResolver(nil)

	resolved, err := r.resolve(map[string]interface{}{
		"query": "plain text",
		"limit": 10,
	})
	require.NoError(t, err)
	assert.Equal(t, "plain text", resolved["query"])
	assert.Equal(t, 10, resolved["limit"])
}

func TestResolveEvaluatesExpressions(t *testing.T) {
	r := newParamResolver(func() map[string]interface{} {
		return map[string]interface{}{
			"item_count": float64(12),
			"topic":      "ai",
		}
	})

	resolved, err := r.resolve(map[string]interface{}{
		"limit":  "${item_count * 2}",
		"query":  "${topic}",
		"plain":  "${'literal'}",
		"static": "untouched",
	})
	require.NoError(t, err)
	assert.Equal(t, float64(24), resolved["limit"])
	assert.Equal(t, "ai", resolved["query"])
	assert.Equal(t, "literal", resolved["plain"])
	assert.Equal(t, "untouched", resolved["static"])
}

func TestResolveBuiltinFunctions(t *testing.T) {
	r := newParamResolver(func() map[string]interface{} {
		return map[string]interface{}{
			"title":   "trending ai startups",
			"missing": nil,
		}
	})

	resolved, err := r.resolve(map[string]interface{}{
		"length":   "${len(title)}",
		"fallback": "${coalesce(missing, 'default')}",
		"matches":  "${contains(title, 'ai')}",
	})
	require.NoError(t, err)
	assert.Equal(t, float64(20), resolved["length"])
	assert.Equal(t, "default", resolved["fallback"])
	assert.Equal(t, true, resolved["matches"])
}

func TestResolveInvalidExpression(t *testing.T) {
	r := newParamResolver(nil)

	_, err := r.resolve(map[string]interface{}{"bad": "${1 +}"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'bad'")
}

func TestResolveUnknownVariable(t *testing.T) {
	r := newParamResolver(func() map[string]interface{} { return map[string]interface{}{} })

	_, err := r.resolve(map[string]interface{}{"value": "${nonexistent + 1}"})
	require.Error(t, err)
}

func TestResolveNilParams(t *testing.T) {
	r := newParamResolver(nil)

	resolved, err := r.resolve(nil)
	require.NoError(t, err)
	assert.Nil(t, resolved)
}

func TestValidateExpression(t *testing.T) {
	assert.NoError(t, ValidateExpression("len(title) > 3"))
	assert.Error(t, ValidateExpression("1 +"))
}

func TestRegisterExpressionFunction(t *testing.T) {
	RegisterExpressionFunction("double", func(args ...interface{}) (interface{}, error) {
		return args[0].(float64) * 2, nil
	})

	r := newParamResolver(func() map[string]interface{} {
		return map[string]interface{}{"n": float64(3)}
	})
	resolved, err := r.resolve(map[string]interface{}{"value": "${double(n)}"})
	require.NoError(t, err)
	assert.Equal(t, float64(6), resolved["value"])
}
