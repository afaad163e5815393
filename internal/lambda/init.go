// Package lambda holds the shared wiring and request handling for the
// API Gateway predictions function.
package lambda

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/dwsmith1983/forecastd/internal/artifact"
	"github.com/dwsmith1983/forecastd/internal/gateway"
	"github.com/dwsmith1983/forecastd/internal/query"
	"github.com/dwsmith1983/forecastd/internal/reconcile"
	"github.com/dwsmith1983/forecastd/pkg/types"
)

// Resolver answers prediction queries.
type Resolver interface {
	GetPredictions(ctx context.Context, q query.Query) (*query.Answer, error)
}

// Ingester writes validated rows for one (symbol, model).
type Ingester interface {
	Reconcile(ctx context.Context, symbol string, model types.Model, rows []types.Row) (types.UpsertResult, error)
}

// Deps holds shared dependencies for Lambda handlers.
type Deps struct {
	Resolver Resolver
	Ingester Ingester
	Logger   *slog.Logger
}

// Init creates shared dependencies from environment variables.
// Reads: TABLE_NAME, AWS_REGION, DYNAMODB_ENDPOINT, RESULTS_DIR, DEFAULT_HORIZON
func Init(ctx context.Context) (*Deps, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	tableName := os.Getenv("TABLE_NAME")
	region := os.Getenv("AWS_REGION")
	if tableName == "" {
		return nil, fmt.Errorf("TABLE_NAME environment variable required")
	}
	if region == "" {
		return nil, fmt.Errorf("AWS_REGION environment variable required")
	}
	horizon, err := strconv.Atoi(envOrDefault("DEFAULT_HORIZON", strconv.Itoa(types.DefaultHorizon)))
	if err != nil || horizon <= 0 {
		return nil, fmt.Errorf("DEFAULT_HORIZON must be a positive integer")
	}

	storeCfg := types.StoreConfig{
		Type: types.StoreDynamoDB,
		DynamoDB: &types.DynamoDBConfig{
			TableName: tableName,
			Region:    region,
			Endpoint:  os.Getenv("DYNAMODB_ENDPOINT"),
		},
	}
	gw := gateway.Open(ctx, gateway.FromConfig(storeCfg), gateway.Options{Logger: logger})

	// Bundled results files serve as the fallback when the table has no rows.
	arts := artifact.New(artifact.Config{Dirs: []string{envOrDefault("RESULTS_DIR", "/var/task/results")}})
	arts.SetLogger(logger)

	resolver := query.New(gw, arts, horizon)
	resolver.SetLogger(logger)
	rec := reconcile.New(gw)
	rec.SetLogger(logger)

	return &Deps{Resolver: resolver, Ingester: rec, Logger: logger}, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
