package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dwsmith1983/forecastd/pkg/types"
)

// dayNumber is the sorted-set score of a date: days since the Unix epoch.
func dayNumber(d types.Date) float64 {
	return float64(d.Time().Unix() / 86400)
}

// UpsertPredictions sends one HSET and one ZADD per row in a single
// non-transactional pipeline. HSET reports 1 for a new field and 0 for an
// overwritten one, which maps directly onto upserted and matched.
func (p *RedisProvider) UpsertPredictions(ctx context.Context, preds []types.Prediction) (types.UpsertResult, error) {
	var res types.UpsertResult
	if len(preds) == 0 {
		return res, nil
	}

	hsets := make([]*goredis.IntCmd, len(preds))
	zadds := make([]*goredis.IntCmd, len(preds))
	_, err := p.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, pr := range preds {
			date := pr.Date.String()
			hsets[i] = pipe.HSet(ctx, p.valuesKey(pr.Symbol, pr.Model), date,
				strconv.FormatFloat(pr.Value, 'g', -1, 64))
			zadds[i] = pipe.ZAdd(ctx, p.indexKey(pr.Symbol, pr.Model), goredis.Z{
				Score:  dayNumber(pr.Date),
				Member: date,
			})
		}
		return nil
	})
	if err != nil && allFailed(hsets) {
		return res, fmt.Errorf("redis upsert predictions: %w", err)
	}

	for i, cmd := range hsets {
		n, herr := cmd.Result()
		if herr == nil {
			herr = zadds[i].Err()
		}
		switch {
		case herr != nil:
			res.Failed++
			p.logger.Warn("redis upsert failed",
				"symbol", preds[i].Symbol, "model", preds[i].Model, "date", preds[i].Date.String(), "error", herr)
		case n > 0:
			res.Upserted++
		default:
			res.Matched++
		}
	}
	return res, nil
}

func allFailed(cmds []*goredis.IntCmd) bool {
	for _, c := range cmds {
		if c.Err() == nil {
			return false
		}
	}
	return true
}

// QueryPredictions reads the date index in ascending score order and fetches
// the values in one HMGET.
func (p *RedisProvider) QueryPredictions(ctx context.Context, symbol string, model types.Model) ([]types.Prediction, error) {
	dates, err := p.client.ZRange(ctx, p.indexKey(symbol, model), 0, -1).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("redis query dates: %w", err)
	}
	if len(dates) == 0 {
		return nil, nil
	}

	vals, err := p.client.HMGet(ctx, p.valuesKey(symbol, model), dates...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis query values: %w", err)
	}

	out := make([]types.Prediction, 0, len(dates))
	for i, ds := range dates {
		raw, ok := vals[i].(string)
		if !ok {
			continue
		}
		d, err := types.ParseDate(ds)
		if err != nil {
			p.logger.Warn("skipping malformed date in index", "key", p.indexKey(symbol, model), "date", ds)
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			p.logger.Warn("skipping malformed value", "key", p.valuesKey(symbol, model), "date", ds)
			continue
		}
		out = append(out, types.Prediction{Symbol: symbol, Model: model, Date: d, Value: v})
	}
	return out, nil
}
