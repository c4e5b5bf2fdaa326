package inference

import (
	"strings"
	"text/template"

	ports "github.com/ZanzyTHEbar/callbridge/callbridge/pipeline/ports"
)

// Chat templates for local models.

const gemmaTemplate = `{{if .System}}<start_of_turn>user
{{.System}}<end_of_turn>
{{end}}{{range .Messages}}{{if eq .Role "assistant"}}<start_of_turn>model
{{.Content}}<end_of_turn>
{{else}}<start_of_turn>user
{{.Content}}<end_of_turn>
{{end}}{{end}}<start_of_turn>model
`

const chatMLTemplate = `{{if .System}}<|im_start|>system
{{.System}}<|im_end|>
{{end}}{{range .Messages}}<|im_start|>{{.Role}}
{{.Content}}<|im_end|>
{{end}}<|im_start|>assistant
`

// ChatTemplate returns the template for a model family. Unknown names
// fall back to ChatML.
func ChatTemplate(family string) *template.Template {
	src := chatMLTemplate
	if strings.Contains(strings.ToLower(family), "gemma") {
		src = gemmaTemplate
	}
	return template.Must(template.New("chat").Parse(src))
}

// RenderPrompt flattens a prompt into a single model input string.
func RenderPrompt(tmpl *template.Template, prompt ports.Prompt) (string, error) {
	var b strings.Builder
	if err := tmpl.Execute(&b, prompt); err != nil {
		return "", err
	}
	return b.String(), nil
}
