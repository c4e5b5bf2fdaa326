package inference

import (
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/callbridge/callbridge/config"
	ports "github.com/ZanzyTHEbar/callbridge/callbridge/pipeline/ports"
	"github.com/rs/zerolog"
)

// LlamaOptions configure the local model provider.
type LlamaOptions struct {
	ModelPath   string
	ContextSize int
	GPULayers   int
	Threads     int
	MaxTokens   int
	Temperature float32
	TopP        float32
	PoolSize    int
	Template    string
}

func (o LlamaOptions) withDefaults() LlamaOptions {
	if o.ContextSize <= 0 {
		o.ContextSize = 4096
	}
	if o.Threads <= 0 {
		o.Threads = 4
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 512
	}
	if o.TopP <= 0 {
		o.TopP = 0.9
	}
	o.PoolSize = max(o.PoolSize, 1)
	return o
}

// NewProvider builds the provider named in the configuration.
func NewProvider(cfg config.InferenceConfig) (ports.Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "scripted", "mock":
		return NewScriptedProvider(), nil
	case "azopenai", "azure":
		return NewAzureProvider(AzureOptions{
			Endpoint:    cfg.Azure.Endpoint,
			APIKey:      cfg.Azure.APIKey,
			Deployment:  cfg.Azure.Deployment,
			MaxTokens:   cfg.Azure.MaxTokens,
			Temperature: cfg.Azure.Temperature,
			TopP:        cfg.Azure.TopP,
		})
	case "llama", "gguf":
		return NewLlamaProvider(LlamaOptions{
			ModelPath:   cfg.Llama.ModelPath,
			ContextSize: cfg.Llama.ContextSize,
			GPULayers:   cfg.Llama.GPULayers,
			Threads:     cfg.Llama.Threads,
			MaxTokens:   cfg.Llama.MaxTokens,
			Temperature: cfg.Llama.Temperature,
			TopP:        cfg.Llama.TopP,
			PoolSize:    cfg.Llama.PoolSize,
			Template:    cfg.Llama.Template,
		})
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrProviderUnavailable, cfg.Provider)
	}
}

// New builds a configured provider wrapped in an Adapter.
func New(cfg config.InferenceConfig, metrics ports.Metrics, logger zerolog.Logger) (*Adapter, error) {
	provider, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	return NewAdapter(provider, Options{
		Timeout:          cfg.Timeout,
		MaxRetries:       cfg.MaxRetries,
		Backoff:          cfg.RetryBackoff,
		MaxConcurrency:   cfg.MaxConcurrency,
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerCooldown:  cfg.BreakerCooldown,
	}, metrics, logger), nil
}
