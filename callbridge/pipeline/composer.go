package pipeline

import (
	"strings"
	"text/template"
)

const (
	apologyReply  = "Üzgünüm, işleminiz sırasında bir hata oluştu. Lütfen tekrar deneyin."
	greetingReply = "Merhaba! Size nasıl yardımcı olabilirim?"
)

var (
	successLine = template.Must(template.New("success").Parse(
		`{{if .Summary}}{{.Summary}}{{else}}{{.Name}} işlemini gerçekleştirdim.{{end}}`))
	failureLine = template.Must(template.New("failure").Parse(
		`{{.Name}} işlemi tamamlanamadı: {{.Error}}`))
)

type lineData struct {
	Name    string
	Summary string
	Error   string
}

// Composer turns model prose and tool outcomes into the user-facing reply.
type Composer struct {
	guard *Guardrails
}

func NewComposer(guard *Guardrails) *Composer {
	if guard == nil {
		guard = NewGuardrails()
	}
	return &Composer{guard: guard}
}

// Compose keeps prose as the primary narrative and appends one line per
// call. With no usable prose it falls back to an apology when every call
// failed, or to a greeting when there were no calls at all.
func (c *Composer) Compose(prose string, calls []*ToolCall) string {
	prose = strings.TrimSpace(prose)

	lines := make([]string, 0, len(calls))
	failed := 0
	for _, call := range calls {
		var b strings.Builder
		data := lineData{Name: call.ToolName}
		switch call.Status {
		case StatusSucceeded:
			if def := call.Definition(); def != nil {
				data.Summary = def.Summary
			}
			_ = successLine.Execute(&b, data)
		case StatusFailed:
			failed++
			if call.Error != nil {
				data.Error = call.Error.Message
			}
			_ = failureLine.Execute(&b, data)
		default:
			continue
		}
		lines = append(lines, b.String())
	}

	var parts []string
	switch {
	case prose != "":
		parts = append(parts, prose)
	case len(calls) == 0:
		parts = append(parts, greetingReply)
	case failed == len(calls):
		parts = append(parts, apologyReply)
	}
	if len(lines) > 0 {
		parts = append(parts, strings.Join(lines, "\n"))
	}
	return c.guard.SanitizeOutput(strings.Join(parts, "\n\n"))
}

// Apology is the reply for turns where inference failed.
func (c *Composer) Apology() string { return apologyReply }
