// Package llm provides implementations of the prompt-in / text-out
// capability the planner and conversation manager depend on.
package llm

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"go.uber.org/zap"
)

// GenkitProvider backs the LLM capability with a Genkit model.
type GenkitProvider struct {
	g      *genkit.Genkit
	model  string
	logger *zap.Logger
}

// GenkitOption configures a GenkitProvider.
type GenkitOption func(*GenkitProvider)

// WithModel overrides the model the provider generates with.
func WithModel(model string) GenkitOption {
	return func(p *GenkitProvider) {
		p.model = model
	}
}

// WithLogger sets the provider logger.
func WithLogger(logger *zap.Logger) GenkitOption {
	return func(p *GenkitProvider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewGenkitProvider wraps an initialized Genkit instance.
func NewGenkitProvider(g *genkit.Genkit, options ...GenkitOption) (*GenkitProvider, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	p := &GenkitProvider{
		g:      g,
		logger: zap.NewNop(),
	}
	for _, option := range options {
		option(p)
	}
	return p, nil
}

// Generate implements the convoke.LLMProvider interface.
func (p *GenkitProvider) Generate(ctx context.Context, prompt string) (string, error) {
	opts := []ai.GenerateOption{ai.WithPrompt(prompt)}
	if p.model != "" {
		opts = append(opts, ai.WithModelName(p.model))
	}

	resp, err := genkit.Generate(ctx, p.g, opts...)
	if err != nil {
		p.logger.Warn("generation failed", zap.Error(err))
		return "", err
	}
	return resp.Text(), nil
}
