package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZanzyTHEbar/callbridge/callbridge/pipeline/adapters"
	"github.com/ZanzyTHEbar/callbridge/callbridge/transport/httpapi"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long:  `Starts the chat API, session sweeper and metrics endpoint. SIGINT or SIGTERM shut it down gracefully.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := a.Close(); err != nil {
				logger.Warn().Err(err).Msg("shutdown cleanup failed")
			}
		}()

		go a.sessions.Run(ctx, cfg.Session.SweepEvery)
		if tb, ok := a.limiter.(*adapters.TokenBucket); ok {
			go pruneBuckets(ctx, tb, 10*time.Minute)
		}

		var metrics http.Handler
		if pm := a.factory.PrometheusMetrics(); pm != nil {
			metrics = pm.Handler()
		}

		srv := httpapi.NewServer(cfg.Server, httpapi.Deps{
			Turns:       a.orch,
			Sessions:    a.sessions,
			Health:      a.infer,
			Limiter:     a.limiter,
			Metrics:     metrics,
			MetricsPath: cfg.Metrics.Path,
			Logger:      logger,
		})
		return srv.Serve(ctx)
	},
}

// pruneBuckets drops rate limit buckets of users idle for longer than idle.
func pruneBuckets(ctx context.Context, tb *adapters.TokenBucket, idle time.Duration) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := tb.Prune(idle); n > 0 {
				logger.Debug().Int("removed", n).Msg("idle rate limit buckets pruned")
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", "", "Listen address (overrides server.addr)")
}
