package providertest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/forecastd/internal/provider"
	"github.com/dwsmith1983/forecastd/pkg/types"
)

func uniqueSymbol(prefix string) string {
	return fmt.Sprintf("CT%s%d", prefix, time.Now().UnixNano()%1_000_000_000)
}

func day(s string) types.Date {
	d, err := types.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func series(symbol string, model types.Model, values map[string]float64) []types.Prediction {
	out := make([]types.Prediction, 0, len(values))
	for d, v := range values {
		out = append(out, types.Prediction{Symbol: symbol, Model: model, Date: day(d), Value: v})
	}
	return out
}

// TestUpsertAndQuery verifies new keys are counted as upserted and read back.
func TestUpsertAndQuery(t *testing.T, store provider.Store) {
	ctx := context.Background()
	sym := uniqueSymbol("UQ")

	res, err := store.UpsertPredictions(ctx, series(sym, types.ModelEnsemble, map[string]float64{
		"2025-06-23": 123.45,
		"2025-06-24": 124.5,
	}))
	require.NoError(t, err)
	assert.Equal(t, types.UpsertResult{Matched: 0, Upserted: 2}, res)

	got, err := store.QueryPredictions(ctx, sym, types.ModelEnsemble)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2025-06-23", got[0].Date.String())
	assert.InDelta(t, 123.45, got[0].Value, 1e-9)
	assert.Equal(t, sym, got[0].Symbol)
	assert.Equal(t, types.ModelEnsemble, got[0].Model)
}

// TestIdempotent verifies a second identical batch matches every row and inserts none.
func TestIdempotent(t *testing.T, store provider.Store) {
	ctx := context.Background()
	sym := uniqueSymbol("ID")
	batch := series(sym, types.ModelXGB, map[string]float64{
		"2025-01-02": 1, "2025-01-03": 2, "2025-01-06": 3,
	})

	first, err := store.UpsertPredictions(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Upserted)

	second, err := store.UpsertPredictions(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, types.UpsertResult{Matched: 3, Upserted: 0}, second)

	got, err := store.QueryPredictions(ctx, sym, types.ModelXGB)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

// TestLastWriteWins verifies a later write replaces the value for the same key.
func TestLastWriteWins(t *testing.T, store provider.Store) {
	ctx := context.Background()
	sym := uniqueSymbol("LW")

	_, err := store.UpsertPredictions(ctx, series(sym, types.ModelLSTM, map[string]float64{"2025-03-03": 10}))
	require.NoError(t, err)
	res, err := store.UpsertPredictions(ctx, series(sym, types.ModelLSTM, map[string]float64{"2025-03-03": 11}))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Matched)

	got, err := store.QueryPredictions(ctx, sym, types.ModelLSTM)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 11.0, got[0].Value, 1e-9)
}

// TestModelIsolation verifies series for different models never mix.
func TestModelIsolation(t *testing.T, store provider.Store) {
	ctx := context.Background()
	sym := uniqueSymbol("MI")

	_, err := store.UpsertPredictions(ctx, append(
		series(sym, types.ModelEnsemble, map[string]float64{"2025-02-03": 1}),
		series(sym, types.ModelSARIMAX, map[string]float64{"2025-02-03": 2, "2025-02-04": 3})...,
	))
	require.NoError(t, err)

	ens, err := store.QueryPredictions(ctx, sym, types.ModelEnsemble)
	require.NoError(t, err)
	sar, err := store.QueryPredictions(ctx, sym, types.ModelSARIMAX)
	require.NoError(t, err)
	assert.Len(t, ens, 1)
	assert.Len(t, sar, 2)
}

// TestUnknownKeyEmpty verifies an unknown key yields an empty result without error.
func TestUnknownKeyEmpty(t *testing.T, store provider.Store) {
	got, err := store.QueryPredictions(context.Background(), uniqueSymbol("NONE"), types.ModelEnsemble)
	require.NoError(t, err)
	assert.Empty(t, got)
}

// TestSortedByDate verifies results are ascending by date regardless of write order.
func TestSortedByDate(t *testing.T, store provider.Store) {
	ctx := context.Background()
	sym := uniqueSymbol("SO")

	for _, d := range []string{"2025-07-09", "2024-12-31", "2025-07-01", "2025-01-15"} {
		_, err := store.UpsertPredictions(ctx, series(sym, types.ModelEnsemble, map[string]float64{d: 1}))
		require.NoError(t, err)
	}

	got, err := store.QueryPredictions(ctx, sym, types.ModelEnsemble)
	require.NoError(t, err)
	require.Len(t, got, 4)
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].Date.Before(got[i-1].Date), "result not sorted at %d", i)
	}
	assert.Equal(t, "2024-12-31", got[0].Date.String())
}

// TestConcurrentUpserts verifies concurrent writers to one key leave exactly one record.
func TestConcurrentUpserts(t *testing.T, store provider.Store) {
	ctx := context.Background()
	sym := uniqueSymbol("CU")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v float64) {
			defer wg.Done()
			_, _ = store.UpsertPredictions(ctx, series(sym, types.ModelEnsemble, map[string]float64{"2025-05-05": v}))
		}(float64(i))
	}
	wg.Wait()

	got, err := store.QueryPredictions(ctx, sym, types.ModelEnsemble)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

// TestPing verifies a started store reports healthy.
func TestPing(t *testing.T, store provider.Store) {
	assert.NoError(t, store.Ping(context.Background()))
}
