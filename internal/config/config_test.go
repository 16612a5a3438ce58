package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convoke"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 20, cfg.MaxConversationSteps)
	assert.Equal(t, 60*time.Second, cfg.StepTimeout())
	assert.Equal(t, 30*time.Second, cfg.ExecutionTimeout())
	assert.Equal(t, 4, cfg.MaxParallelExecutions)
	assert.Equal(t, 1<<20, cfg.MaxContextSizeBytes)
	assert.Equal(t, 100, cfg.MaxHistoryItems)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "convoke.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"max_conversation_steps: 5\nstep_timeout_seconds: 10\ndatabase_path: /tmp/custom.db\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.MaxConversationSteps)
	assert.Equal(t, 10*time.Second, cfg.StepTimeout())
	assert.Equal(t, "/tmp/custom.db", cfg.DatabasePath)
	assert.Equal(t, 4, cfg.MaxParallelExecutions)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "convoke.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_conversation_steps: 5\n"), 0o644))
	t.Setenv("CONVOKE_MAX_STEPS", "7")
	t.Setenv("CONVOKE_LLM_MODEL", "googleai/gemini-2.0-pro")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.MaxConversationSteps)
	assert.Equal(t, "googleai/gemini-2.0-pro", cfg.LLMModel)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, convoke.ErrCodeConfiguration, convoke.ErrorCode(err))
}

func TestValidateRejectsNonPositive(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max steps", func(c *Config) { c.MaxConversationSteps = 0 }},
		{"negative step timeout", func(c *Config) { c.StepTimeoutSeconds = -1 }},
		{"zero parallelism", func(c *Config) { c.MaxParallelExecutions = 0 }},
		{"zero context size", func(c *Config) { c.MaxContextSizeBytes = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, convoke.ErrCodeConfiguration, convoke.ErrorCode(err))
		})
	}
}
