package pipeline

import (
	"fmt"
	"regexp"
)

// Guardrails enforces the tool allowlist and scrubs secrets from replies.
type Guardrails struct {
	allowlist     map[string]bool  // empty means every registered tool
	outputFilters []*regexp.Regexp // patterns masked in the final reply
}

// NewGuardrails creates guardrails with the default output filters.
func NewGuardrails(allowed ...string) *Guardrails {
	g := &Guardrails{
		allowlist: make(map[string]bool, len(allowed)),
		outputFilters: []*regexp.Regexp{
			regexp.MustCompile(`(?i)password[:=]\s*\S+`),
			regexp.MustCompile(`(?i)api[_-]?key[:=]\s*\S+`),
			regexp.MustCompile(`(?i)secret[:=]\s*\S+`),
			regexp.MustCompile(`(?i)token[:=]\s*\S+`),
			regexp.MustCompile(`\b(?:\d[ -]?){15}\d\b`), // card numbers
		},
	}
	for _, name := range allowed {
		g.allowlist[name] = true
	}
	return g
}

// AllowTool checks the allowlist for a registered tool.
func (g *Guardrails) AllowTool(name string) *CallError {
	if len(g.allowlist) == 0 || g.allowlist[name] {
		return nil
	}
	return &CallError{Kind: KindToolNotAllowed, Message: fmt.Sprintf("tool %s is not in allowlist", name)}
}

// SanitizeOutput masks sensitive information in output.
func (g *Guardrails) SanitizeOutput(output string) string {
	for _, filter := range g.outputFilters {
		output = filter.ReplaceAllString(output, "[REDACTED]")
	}
	return output
}
