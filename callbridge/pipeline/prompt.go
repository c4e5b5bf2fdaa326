package pipeline

import (
	"fmt"
	"strings"

	ports "github.com/ZanzyTHEbar/callbridge/callbridge/pipeline/ports"
)

// PromptBuilder assembles model-ready inputs from the system text, a
// bounded window of session history and the tool catalog.
type PromptBuilder struct {
	system       string
	historyTurns int
	tokenBudget  int
	// TokenEstimator should be a fast heuristic; we avoid binding to a specific tokenizer here.
	TokenEstimator func(s string) int
}

func NewPromptBuilder(system string, historyTurns, tokenBudget int) *PromptBuilder {
	return &PromptBuilder{
		system:       system,
		historyTurns: historyTurns,
		tokenBudget:  tokenBudget,
		TokenEstimator: func(s string) int { // rough heuristic: ~4 chars per token
			l := len(s)
			if l == 0 {
				return 0
			}
			return (l + 3) / 4
		},
	}
}

// Build flattens the system text, history window and new message into a Prompt.
func (b *PromptBuilder) Build(conv ports.Conversation, message string, tools []*ToolDefinition, meta map[string]string) ports.Prompt {
	// Normalize newlines and trim whitespace to reduce prompt diffs for caching
	norm := func(s string) string { return strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n")) }

	var sys strings.Builder
	sys.WriteString(norm(b.system))
	if catalog := Catalog(tools); catalog != "" {
		sys.WriteString("\n\nKullanılabilir araçlar:\n")
		sys.WriteString(catalog)
	}
	if conv.Summary != "" {
		sys.WriteString("\n\nÖnceki konuşma özeti:\n")
		sys.WriteString(norm(conv.Summary))
	}

	window := b.window(conv.Turns, message)
	messages := make([]ports.PromptMessage, 0, 2*len(window)+1)
	for _, t := range window {
		messages = append(messages,
			ports.PromptMessage{Role: "user", Content: norm(t.UserMessage)},
			ports.PromptMessage{Role: "assistant", Content: norm(t.AssistantMessage)},
		)
	}
	messages = append(messages, ports.PromptMessage{Role: "user", Content: norm(message)})

	return ports.Prompt{
		System:   sys.String(),
		Messages: messages,
		Meta:     meta,
	}
}

// window keeps the newest historyTurns turns, then drops the oldest until
// the history plus the new message fit the token budget.
func (b *PromptBuilder) window(turns []ports.Turn, message string) []ports.Turn {
	if b.historyTurns <= 0 || len(turns) == 0 {
		return nil
	}
	if len(turns) > b.historyTurns {
		turns = turns[len(turns)-b.historyTurns:]
	}
	if b.tokenBudget <= 0 {
		return turns
	}

	remaining := b.tokenBudget - b.TokenEstimator(message)
	start := len(turns)
	for i := len(turns) - 1; i >= 0; i-- {
		cost := b.TokenEstimator(turns[i].UserMessage) + b.TokenEstimator(turns[i].AssistantMessage)
		if cost > remaining {
			break
		}
		remaining -= cost
		start = i
	}
	return turns[start:]
}

// Catalog renders one line per tool for the system prompt.
func Catalog(tools []*ToolDefinition) string {
	var b strings.Builder
	for _, def := range tools {
		params := make([]string, 0, len(def.Params))
		for _, p := range def.Params {
			s := p.Name + ": " + string(p.Type)
			if !p.Required {
				s += "?"
			}
			params = append(params, s)
		}
		fmt.Fprintf(&b, "- %s(%s): %s\n", def.Name, strings.Join(params, ", "), def.Description)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
