package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/callbridge/callbridge/config"
	"github.com/ZanzyTHEbar/callbridge/callbridge/db"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Open builds a Store for the configured backend. The libsql backend is
// migrated before use; the redis backend is pinged.
func Open(ctx context.Context, cfg config.SessionConfig, logger zerolog.Logger) (*Store, error) {
	opts := Options{
		MaxTurns:     cfg.MaxTurns,
		TTL:          cfg.TTL,
		SummaryItems: cfg.SummaryItems,
		LockTTL:      cfg.Redis.LockTTL,
	}

	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		return NewStore(NewMemoryBackend(cfg.Capacity), opts, logger), nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		var options []Option
		if cfg.Redis.Distributed {
			options = append(options, WithLocker(NewRedisLocker(client, cfg.Redis.Prefix)))
		}
		return NewStore(NewRedisBackend(client, cfg.Redis.Prefix, cfg.TTL), opts, logger, options...), nil

	case "libsql", "sqlite":
		conn, err := db.ConnectWithConfig(ctx, db.Config{
			Path:         cfg.Database.DSN,
			MaxOpenConns: cfg.Database.MaxOpenConns,
		}, logger)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx, conn, logger); err != nil {
			conn.Close()
			return nil, err
		}
		return NewStore(NewSQLBackend(conn), opts, logger), nil
	}
	return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
}
