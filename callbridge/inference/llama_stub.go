//go:build !llama

package inference

import (
	"context"
	"fmt"

	ports "github.com/ZanzyTHEbar/callbridge/callbridge/pipeline/ports"
)

// LlamaProvider is unavailable without the llama build tag.
type LlamaProvider struct{}

// NewLlamaProvider always fails in builds without llama.cpp.
func NewLlamaProvider(LlamaOptions) (*LlamaProvider, error) {
	return nil, fmt.Errorf("%w: llama.cpp not available in this build", ErrProviderUnavailable)
}

func (p *LlamaProvider) Name() string { return "llama" }

func (p *LlamaProvider) Complete(context.Context, ports.Prompt) (string, error) {
	return "", ErrProviderUnavailable
}

func (p *LlamaProvider) Close() error { return nil }
