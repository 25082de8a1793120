package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/dyluth/hark/internal/config"
	"github.com/dyluth/hark/internal/persistence"
	"github.com/dyluth/hark/internal/printer"
)

// connectStore opens the instance's Redis store for the client commands.
func connectStore(ctx context.Context, cfg *config.HarkConfig) (*persistence.Client, error) {
	if cfg.Redis.URL == "" {
		return nil, printer.Error(
			"Redis is not configured",
			"This command reads from the instance's Redis store.",
			[]string{"Set redis.url in hark.yml", "Export HARK_REDIS_URL=redis://localhost:6379"},
		)
	}

	client, err := persistence.Connect(ctx, cfg.Redis.URL, cfg.Redis.Instance)
	if err != nil {
		if errors.Is(err, persistence.ErrUnavailable) {
			return nil, printer.ErrorWithContext(
				"Redis connection failed",
				fmt.Sprintf("Could not connect to Redis: %v", err),
				map[string]string{"URL": cfg.Redis.URL, "Instance": cfg.Redis.Instance},
				[]string{"Check that Redis is running and reachable"},
			)
		}
		return nil, printer.Error("invalid Redis configuration", err.Error(), nil)
	}
	return client, nil
}
