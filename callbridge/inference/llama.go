//go:build llama

package inference

import (
	"context"
	"fmt"
	"text/template"

	ports "github.com/ZanzyTHEbar/callbridge/callbridge/pipeline/ports"
	llama "github.com/go-skynet/go-llama.cpp"
)

// LlamaProvider runs a local GGUF model through llama.cpp. Each pooled
// instance serves one request at a time.
type LlamaProvider struct {
	opts LlamaOptions
	pool chan *llama.LLama
	tmpl *template.Template
}

// NewLlamaProvider loads PoolSize model instances.
func NewLlamaProvider(opts LlamaOptions) (*LlamaProvider, error) {
	opts = opts.withDefaults()
	p := &LlamaProvider{
		opts: opts,
		pool: make(chan *llama.LLama, opts.PoolSize),
		tmpl: ChatTemplate(opts.Template),
	}
	for i := 0; i < opts.PoolSize; i++ {
		model, err := llama.New(opts.ModelPath,
			llama.SetContext(opts.ContextSize),
			llama.SetGPULayers(opts.GPULayers),
		)
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("loading model instance %d: %w", i, err)
		}
		p.pool <- model
	}
	return p, nil
}

func (p *LlamaProvider) Name() string { return "llama" }

func (p *LlamaProvider) Complete(ctx context.Context, prompt ports.Prompt) (string, error) {
	input, err := RenderPrompt(p.tmpl, prompt)
	if err != nil {
		return "", fmt.Errorf("rendering chat template: %w", err)
	}

	var model *llama.LLama
	select {
	case model = <-p.pool:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { p.pool <- model }()

	return model.Predict(input,
		llama.SetTemperature(p.opts.Temperature),
		llama.SetTopP(p.opts.TopP),
		llama.SetTokens(p.opts.MaxTokens),
		llama.SetThreads(p.opts.Threads),
		llama.SetStopWords("<end_of_turn>", "<|im_end|>"),
	)
}

// Close frees every idle model instance.
func (p *LlamaProvider) Close() error {
	for {
		select {
		case m := <-p.pool:
			m.Free()
		default:
			return nil
		}
	}
}

var _ ports.Provider = (*LlamaProvider)(nil)
