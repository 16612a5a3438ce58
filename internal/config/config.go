// Package config loads engine configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"convoke"
)

// Config holds the tunable engine settings.
type Config struct {
	MaxConversationSteps  int    `yaml:"max_conversation_steps"`
	StepTimeoutSeconds    int    `yaml:"step_timeout_seconds"`
	ExecutionTimeoutSecs  int    `yaml:"execution_timeout_seconds"`
	MaxParallelExecutions int    `yaml:"max_parallel_executions"`
	MaxContextSizeBytes   int    `yaml:"max_context_size_bytes"`
	MaxHistoryItems       int    `yaml:"max_history_items"`
	DatabasePath          string `yaml:"database_path"`
	LLMModel              string `yaml:"llm_model"`
	ResponseFormat        string `yaml:"response_format"`
}

// Default returns a Config populated with the documented defaults.
func Default() Config {
	return Config{
		MaxConversationSteps:  20,
		StepTimeoutSeconds:    60,
		ExecutionTimeoutSecs:  30,
		MaxParallelExecutions: 4,
		MaxContextSizeBytes:   1 << 20,
		MaxHistoryItems:       100,
		DatabasePath:          "convoke.db",
		LLMModel:              "googleai/gemini-2.0-flash",
		ResponseFormat:        "detailed",
	}
}

// StepTimeout returns the per-step LLM timeout as a duration.
func (c Config) StepTimeout() time.Duration {
	return time.Duration(c.StepTimeoutSeconds) * time.Second
}

// ExecutionTimeout returns the per-tool execution timeout as a duration.
func (c Config) ExecutionTimeout() time.Duration {
	return time.Duration(c.ExecutionTimeoutSecs) * time.Second
}

// Validate rejects settings that would wedge or starve the engine.
func (c Config) Validate() error {
	if c.MaxConversationSteps <= 0 {
		return convoke.NewConfigurationError(fmt.Sprintf("max_conversation_steps must be positive, got %d", c.MaxConversationSteps), nil)
	}
	if c.StepTimeoutSeconds <= 0 {
		return convoke.NewConfigurationError(fmt.Sprintf("step_timeout_seconds must be positive, got %d", c.StepTimeoutSeconds), nil)
	}
	if c.ExecutionTimeoutSecs <= 0 {
		return convoke.NewConfigurationError(fmt.Sprintf("execution_timeout_seconds must be positive, got %d", c.ExecutionTimeoutSecs), nil)
	}
	if c.MaxParallelExecutions <= 0 {
		return convoke.NewConfigurationError(fmt.Sprintf("max_parallel_executions must be positive, got %d", c.MaxParallelExecutions), nil)
	}
	if c.MaxContextSizeBytes <= 0 {
		return convoke.NewConfigurationError(fmt.Sprintf("max_context_size_bytes must be positive, got %d", c.MaxContextSizeBytes), nil)
	}
	if c.MaxHistoryItems <= 0 {
		return convoke.NewConfigurationError(fmt.Sprintf("max_history_items must be positive, got %d", c.MaxHistoryItems), nil)
	}
	return nil
}

// DefaultSearchPaths lists the locations probed by Find, in priority order.
func DefaultSearchPaths() []string {
	paths := []string{"convoke.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "convoke", "config.yaml"))
	}
	return paths
}

// Find returns the first existing config file from the default search
// paths, or "" when none exists.
func Find() string {
	for _, path := range DefaultSearchPaths() {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// Load reads the YAML file at path over the defaults and applies
// environment overrides. An empty path skips the file and yields
// defaults plus environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, convoke.NewConfigurationError(fmt.Sprintf("read config %s", path), err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, convoke.NewConfigurationError(fmt.Sprintf("parse config %s", path), err)
		}
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	envInt("CONVOKE_MAX_STEPS", &cfg.MaxConversationSteps)
	envInt("CONVOKE_STEP_TIMEOUT_SECONDS", &cfg.StepTimeoutSeconds)
	envInt("CONVOKE_EXECUTION_TIMEOUT_SECONDS", &cfg.ExecutionTimeoutSecs)
	envInt("CONVOKE_MAX_PARALLEL", &cfg.MaxParallelExecutions)
	envInt("CONVOKE_MAX_CONTEXT_SIZE", &cfg.MaxContextSizeBytes)
	envInt("CONVOKE_MAX_HISTORY_ITEMS", &cfg.MaxHistoryItems)
	envString("CONVOKE_DATABASE_PATH", &cfg.DatabasePath)
	envString("CONVOKE_LLM_MODEL", &cfg.LLMModel)
	envString("CONVOKE_RESPONSE_FORMAT", &cfg.ResponseFormat)
}

func envInt(key string, dest *int) {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			*dest = v
		}
	}
}

func envString(key string, dest *string) {
	if raw := os.Getenv(key); raw != "" {
		*dest = raw
	}
}
