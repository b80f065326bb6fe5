package pipeline

import (
	"context"
	"fmt"

	"github.com/ajitpratap0/emarsys-tap/pkg/config"
	"github.com/ajitpratap0/emarsys-tap/pkg/state"
)

// OpenStore opens the checkpoint backend selected by cfg
func OpenStore(ctx context.Context, cfg config.StateConfig) (state.Store, error) {
	switch cfg.Backend {
	case config.StateBackendFile:
		store, err := state.NewFileStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open state file: %w", err)
		}
		return store, nil
	case config.StateBackendRedis:
		store, err := state.NewRedisStore(ctx, state.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Key:      cfg.RedisKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis state store: %w", err)
		}
		return store, nil
	case config.StateBackendPostgres:
		store, err := state.NewPostgresStore(ctx, cfg.PostgresDSN, cfg.TapID)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres state store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.Backend)
	}
}
