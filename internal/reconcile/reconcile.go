// Package reconcile turns validated artifact rows into keyed prediction upserts.
package reconcile

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dwsmith1983/forecastd/pkg/types"
)

// Writer is the batch upsert side of the store gateway.
type Writer interface {
	UpsertBatch(ctx context.Context, preds []types.Prediction) (types.UpsertResult, error)
}

// Reconciler upserts rows keyed by (symbol, model, date). Reconciling the same
// rows twice leaves the store unchanged and reports every row as matched.
type Reconciler struct {
	w      Writer
	logger *slog.Logger
}

// New creates a Reconciler writing through w.
func New(w Writer) *Reconciler {
	return &Reconciler{w: w, logger: slog.Default()}
}

// SetLogger replaces the reconciler's logger.
func (r *Reconciler) SetLogger(l *slog.Logger) { r.logger = l }

// Reconcile submits one unordered bulk upsert for rows. Rows sharing a date
// collapse to the last one first, since backends may apply a batch in any
// order. Individual row failures are counted in the result; an error means
// nothing was submitted.
func (r *Reconciler) Reconcile(ctx context.Context, symbol string, model types.Model, rows []types.Row) (types.UpsertResult, error) {
	if len(rows) == 0 {
		return types.UpsertResult{}, nil
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	preds := make([]types.Prediction, 0, len(rows))
	index := make(map[types.Date]int, len(rows))
	for _, row := range rows {
		if i, seen := index[row.Date]; seen {
			preds[i].Value = row.Value
			continue
		}
		index[row.Date] = len(preds)
		preds = append(preds, types.Prediction{Symbol: symbol, Model: model, Date: row.Date, Value: row.Value})
	}
	if dups := len(rows) - len(preds); dups > 0 {
		r.logger.Debug("collapsed duplicate dates", "symbol", symbol, "model", model, "duplicates", dups)
	}

	res, err := r.w.UpsertBatch(ctx, preds)
	if err != nil {
		return types.UpsertResult{}, &types.Error{Kind: types.KindStore, Op: "reconcile", Symbol: symbol,
			Model: model, Err: err}
	}
	r.logger.Info("reconciled predictions", "symbol", symbol, "model", model,
		"rows", len(rows), "matched", res.Matched, "upserted", res.Upserted, "failed", res.Failed)
	return res, nil
}
