// Package provider defines the prediction store interface implemented by each backend.
package provider

import (
	"context"

	"github.com/dwsmith1983/forecastd/pkg/types"
)

// Store is the persistent prediction store. Implementations must be safe for
// concurrent use and provide per-key upsert atomicity on (symbol, model, date).
type Store interface {
	// UpsertPredictions applies every prediction as an independent, unordered
	// upsert. A failed row is counted in UpsertResult.Failed and does not abort
	// its siblings; a non-nil error means the batch could not be submitted at all.
	UpsertPredictions(ctx context.Context, preds []types.Prediction) (types.UpsertResult, error)

	// QueryPredictions returns every prediction for (symbol, model) sorted
	// ascending by date. An unknown key yields an empty slice, not an error.
	QueryPredictions(ctx context.Context, symbol string, model types.Model) ([]types.Prediction, error)

	// Lifecycle
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Ping(ctx context.Context) error
	Name() string
}
