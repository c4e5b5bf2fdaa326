package pipeline

import (
	"context"
	"fmt"
	"time"

	internal "github.com/ZanzyTHEbar/callbridge/callbridge"
	"github.com/ZanzyTHEbar/callbridge/callbridge/config"
	"github.com/ZanzyTHEbar/callbridge/callbridge/pipeline/adapters"
	ports "github.com/ZanzyTHEbar/callbridge/callbridge/pipeline/ports"
	"github.com/rs/zerolog"
)

// Factory creates and wires pipeline components from configuration.
type Factory struct {
	cfg     *config.Config
	backend ports.Backend
	logger  zerolog.Logger
	metrics *adapters.PrometheusMetrics
}

// NewFactory creates a new pipeline factory.
func NewFactory(cfg *config.Config, backend ports.Backend, logger zerolog.Logger) *Factory {
	f := &Factory{
		cfg:     cfg,
		backend: backend,
		logger:  logger,
	}
	if cfg.Metrics.Enabled {
		f.metrics = adapters.NewPrometheusMetrics(internal.DefaultAppName)
	}
	return f
}

// CreateOrchestrator creates a fully wired Orchestrator from config.
func (f *Factory) CreateOrchestrator(inferer Inferer, sessions ports.SessionStore) (*Orchestrator, error) {
	registry, err := f.CreateRegistry()
	if err != nil {
		return nil, err
	}

	oc := f.cfg.Orchestrator
	builder := NewPromptBuilder(f.cfg.Inference.SystemPrompt, oc.HistoryTurns, oc.HistoryTokenBudget)

	return NewOrchestrator(
		registry,
		inferer,
		sessions,
		builder,
		f.CreateGuardrails(),
		f.CreateConfidencePolicy(),
		f.CreatePolicy(),
		f.CreateTracer(),
		f.Metrics(),
		f.logger,
	), nil
}

// CreateRegistry loads the tool table and resolves it against the backend.
func (f *Factory) CreateRegistry() (*Registry, error) {
	entries, err := LoadEntries(f.cfg.Registry.Path)
	if err != nil {
		return nil, err
	}
	registry, err := NewRegistry(entries, f.backend)
	if err != nil {
		return nil, fmt.Errorf("failed to load tool registry: %w", err)
	}
	f.logger.Info().Int("tools", registry.Len()).Str("path", f.cfg.Registry.Path).Msg("tool registry loaded")
	return registry, nil
}

// CreateGuardrails creates guardrails from config.
func (f *Factory) CreateGuardrails() *Guardrails {
	if !f.cfg.Orchestrator.EnableGuardrails {
		return &Guardrails{allowlist: map[string]bool{}}
	}
	return NewGuardrails(f.cfg.Orchestrator.AllowedTools...)
}

// CreatePolicy creates a policy from config with validation.
func (f *Factory) CreatePolicy() Policy {
	policy := Policy{
		ToolTimeout:      f.cfg.Orchestrator.ToolTimeout,
		MaxMessageLength: f.cfg.Orchestrator.MaxMessageLength,
	}

	// Validate and clamp policy values
	if policy.ToolTimeout < 100*time.Millisecond {
		f.logger.Warn().Dur("tool_timeout", policy.ToolTimeout).Msg("ToolTimeout clamped to minimum of 100ms")
		policy.ToolTimeout = 100 * time.Millisecond
	}
	if policy.MaxMessageLength < 1 || policy.MaxMessageLength > 1000 {
		f.logger.Warn().Int("max_message_length", policy.MaxMessageLength).Msg("MaxMessageLength clamped to 1000")
		policy.MaxMessageLength = 1000
	}
	return policy
}

// CreateConfidencePolicy maps the confidence section onto a policy.
func (f *Factory) CreateConfidencePolicy() ConfidencePolicy {
	c := f.cfg.Confidence
	return ConfidencePolicy{
		Base:             c.Base,
		Floor:            c.Floor,
		FailureScore:     c.FailureScore,
		UnresolvedWeight: c.UnresolvedWeight,
		RetryWeight:      c.RetryWeight,
		DiagnosticWeight: c.DiagnosticWeight,
		DiagnosticCap:    c.DiagnosticCap,
	}
}

// CreateRateLimiter creates a rate limiter adapter from config.
func (f *Factory) CreateRateLimiter() ports.RateLimiter {
	if !f.cfg.RateLimit.Enabled {
		return &noOpRateLimiter{}
	}
	return adapters.NewTokenBucket(f.cfg.RateLimit.Capacity, f.cfg.RateLimit.RefillRate)
}

// CreateTracer creates a tracer adapter from config.
func (f *Factory) CreateTracer() ports.Tracer {
	if !f.cfg.Orchestrator.EnableTracing {
		return noOpTracer{}
	}
	return adapters.NewZerologTracer(f.logger)
}

// Metrics returns the metrics sink shared by the pipeline and inference.
func (f *Factory) Metrics() ports.Metrics {
	if f.metrics == nil {
		return noOpMetrics{}
	}
	return f.metrics
}

// PrometheusMetrics returns the prometheus adapter, or nil when disabled.
func (f *Factory) PrometheusMetrics() *adapters.PrometheusMetrics { return f.metrics }

// noOpRateLimiter implements RateLimiter interface with no-op behavior.
type noOpRateLimiter struct{}

func (r *noOpRateLimiter) Acquire(ctx context.Context, key string) (release func(), err error) {
	return func() {}, nil
}

// noOpTracer implements Tracer interface with no-op behavior.
type noOpTracer struct{}

func (noOpTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	return ctx, func(err error) {}
}

func (noOpTracer) Event(ctx context.Context, name string, attrs map[string]any) {}

// noOpMetrics implements Metrics interface with no-op behavior.
type noOpMetrics struct{}

func (noOpMetrics) ObserveTurn(string, time.Duration) {}
func (noOpMetrics) ObserveToolCall(string, string, time.Duration) {}
func (noOpMetrics) ObserveInference(string, int, error, time.Duration) {}

// Ensure all no-op types implement their interfaces.
var (
	_ ports.RateLimiter = (*noOpRateLimiter)(nil)
	_ ports.Tracer      = noOpTracer{}
	_ ports.Metrics     = noOpMetrics{}
)
