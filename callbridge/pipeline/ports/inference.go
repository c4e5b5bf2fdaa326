package pipelineports

import "context"

// PromptMessage represents a single chat message used to build prompts.
type PromptMessage struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Prompt aggregates everything a provider needs to produce a completion.
type Prompt struct {
	System   string            // instructions plus the tool catalog
	Messages []PromptMessage   // windowed history, newest user message last
	Meta     map[string]string // user_id, session_id and similar routing hints
}

// LastUserMessage returns the newest user message content.
func (p Prompt) LastUserMessage() string {
	for i := len(p.Messages) - 1; i >= 0; i-- {
		if p.Messages[i].Role == "user" {
			return p.Messages[i].Content
		}
	}
	return ""
}

// Provider is the abstraction for all model backends.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt Prompt) (string, error)
}
