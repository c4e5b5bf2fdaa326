package main

import (
	"context"
	"errors"

	"github.com/ZanzyTHEbar/callbridge/callbridge/backend"
	"github.com/ZanzyTHEbar/callbridge/callbridge/inference"
	"github.com/ZanzyTHEbar/callbridge/callbridge/pipeline"
	ports "github.com/ZanzyTHEbar/callbridge/callbridge/pipeline/ports"
	"github.com/ZanzyTHEbar/callbridge/callbridge/session"
)

// app holds the wired pipeline shared by serve and chat.
type app struct {
	factory  *pipeline.Factory
	infer    *inference.Adapter
	sessions *session.Store
	orch     *pipeline.Orchestrator
	limiter  ports.RateLimiter
}

func newApp(ctx context.Context) (*app, error) {
	factory := pipeline.NewFactory(cfg, backend.NewService(logger), logger)

	infer, err := inference.New(cfg.Inference, factory.Metrics(), logger)
	if err != nil {
		return nil, err
	}
	sessions, err := session.Open(ctx, cfg.Session, logger)
	if err != nil {
		infer.Close()
		return nil, err
	}
	orch, err := factory.CreateOrchestrator(infer, sessions)
	if err != nil {
		infer.Close()
		sessions.Close()
		return nil, err
	}

	logger.Info().
		Str("provider", infer.Provider()).
		Str("session_backend", sessions.Backend()).
		Int("tools", orch.Registry().Len()).
		Msg("pipeline ready")

	return &app{
		factory:  factory,
		infer:    infer,
		sessions: sessions,
		orch:     orch,
		limiter:  factory.CreateRateLimiter(),
	}, nil
}

func (a *app) Close() error {
	return errors.Join(a.infer.Close(), a.sessions.Close())
}
