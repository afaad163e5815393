package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dwsmith1983/forecastd/pkg/types"
)

// UpsertPredictions runs one ON CONFLICT upsert per row, bounded in parallel.
// Rows are independent statements so one failure never rolls back another.
func (s *Store) UpsertPredictions(ctx context.Context, preds []types.Prediction) (types.UpsertResult, error) {
	var (
		mu  sync.Mutex
		res types.UpsertResult
	)
	if err := ctx.Err(); err != nil {
		return res, err
	}

	var g errgroup.Group
	g.SetLimit(upsertParallelism)
	for _, p := range preds {
		g.Go(func() error {
			var inserted bool
			err := s.pool.QueryRow(ctx, upsertSQL,
				p.Symbol, string(p.Model), p.Date.Time(), p.Value,
			).Scan(&inserted)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				res.Failed++
				s.logger.Warn("postgres upsert failed",
					"symbol", p.Symbol, "model", p.Model, "date", p.Date.String(), "error", err)
			case inserted:
				res.Upserted++
			default:
				res.Matched++
			}
			return nil
		})
	}
	_ = g.Wait()
	return res, nil
}

// QueryPredictions returns the series for (symbol, model) ordered by date.
func (s *Store) QueryPredictions(ctx context.Context, symbol string, model types.Model) ([]types.Prediction, error) {
	rows, err := s.pool.Query(ctx, querySQL, symbol, string(model))
	if err != nil {
		return nil, fmt.Errorf("postgres query predictions: %w", err)
	}
	defer rows.Close()

	var out []types.Prediction
	for rows.Next() {
		var (
			d time.Time
			v float64
		)
		if err := rows.Scan(&d, &v); err != nil {
			return nil, fmt.Errorf("postgres scan prediction: %w", err)
		}
		out = append(out, types.Prediction{Symbol: symbol, Model: model, Date: types.DateOf(d), Value: v})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres iterate predictions: %w", err)
	}
	return out, nil
}
