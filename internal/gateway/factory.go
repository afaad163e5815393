package gateway

import (
	"context"
	"fmt"

	"github.com/dwsmith1983/forecastd/internal/provider"
	"github.com/dwsmith1983/forecastd/internal/provider/dynamodb"
	"github.com/dwsmith1983/forecastd/internal/provider/memory"
	"github.com/dwsmith1983/forecastd/internal/provider/postgres"
	"github.com/dwsmith1983/forecastd/internal/provider/redis"
	"github.com/dwsmith1983/forecastd/pkg/types"
)

// FromConfig returns a Factory for the backend selected by cfg.Type.
func FromConfig(cfg types.StoreConfig) Factory {
	return func(ctx context.Context) (provider.Store, error) {
		switch cfg.Type {
		case types.StorePostgres:
			return postgres.New(ctx, cfg.Postgres)
		case types.StoreRedis:
			if cfg.Redis == nil || cfg.Redis.Addr == "" {
				return nil, fmt.Errorf("redis: addr is required")
			}
			return redis.New(cfg.Redis), nil
		case types.StoreDynamoDB:
			return dynamodb.New(ctx, cfg.DynamoDB)
		case types.StoreMemory, "":
			return memory.New(), nil
		default:
			return nil, fmt.Errorf("unknown store type %q", cfg.Type)
		}
	}
}
