// Package prompt manages the named text templates rendered for LLM calls.
package prompt

import (
	"fmt"
	"strings"
	"text/template"
)

// Well-known prompt names.
const (
	PromptSynthesis     = "synthesis"
	PromptClarification = "clarification"
)

const synthesisTemplate = `You are answering a user's question using results gathered from data tools.

User question: {{.Query}}

Tool results:
{{- range $key, $value := .Results}}
{{$key}}: {{$value}}
{{- end}}

Respond in {{.Format}} form. Base the answer only on the tool results above.`

const clarificationTemplate = `The question "{{.Query}}" could not be answered with the available tools.
{{.Reason}}
Please rephrase or narrow the question.`

// Registry holds parsed prompt templates by name.
type Registry struct {
	templates map[string]*template.Template
}

// NewRegistry creates a registry preloaded with the built-in prompts.
func NewRegistry() (*Registry, error) {
	r := &Registry{templates: make(map[string]*template.Template)}

	builtins := map[string]string{
		PromptSynthesis:     synthesisTemplate,
		PromptClarification: clarificationTemplate,
	}
	for name, text := range builtins {
		if err := r.Define(name, text); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Define parses and registers a template, replacing any previous definition.
func (r *Registry) Define(name, text string) error {
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return fmt.Errorf("parse prompt %q: %w", name, err)
	}
	r.templates[name] = tmpl
	return nil
}

// Render executes the named template with the given data.
func (r *Registry) Render(name string, data interface{}) (string, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("prompt %q not found", name)
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render prompt %q: %w", name, err)
	}
	return sb.String(), nil
}
