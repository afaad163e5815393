// Package redis implements the prediction store using Redis/Valkey.
package redis

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dwsmith1983/forecastd/internal/provider"
	"github.com/dwsmith1983/forecastd/pkg/types"
)

// Compile-time interface satisfaction check.
var _ provider.Store = (*RedisProvider)(nil)

const defaultPrefix = "forecastd:"

// RedisProvider stores each (symbol, model) series as a hash of date to value
// plus a sorted set indexing the dates by day number.
type RedisProvider struct {
	client *goredis.Client
	prefix string
	logger *slog.Logger
}

// New creates a new RedisProvider.
func New(cfg *types.RedisConfig) *RedisProvider {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewFromClient(client, cfg.KeyPrefix)
}

// NewFromClient creates a RedisProvider from an existing client (useful for testing).
func NewFromClient(client *goredis.Client, prefix string) *RedisProvider {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RedisProvider{
		client: client,
		prefix: prefix,
		logger: slog.Default(),
	}
}

// Name returns the backend identifier.
func (p *RedisProvider) Name() string { return string(types.StoreRedis) }

// Start initializes the provider connection.
func (p *RedisProvider) Start(ctx context.Context) error {
	return p.Ping(ctx)
}

// Stop closes the provider connection.
func (p *RedisProvider) Stop(_ context.Context) error {
	return p.client.Close()
}

// Ping checks connectivity to the Redis server.
func (p *RedisProvider) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (p *RedisProvider) valuesKey(symbol string, model types.Model) string {
	return p.prefix + "pred:" + symbol + ":" + string(model)
}

func (p *RedisProvider) indexKey(symbol string, model types.Model) string {
	return p.prefix + "pred:" + symbol + ":" + string(model) + ":dates"
}
