package query

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/forecastd/internal/artifact"
	"github.com/dwsmith1983/forecastd/pkg/types"
)

type fakeStore struct {
	healthy bool
	preds   []types.Prediction
	err     error
	calls   int
}

func (f *fakeStore) Healthy() bool { return f.healthy }

func (f *fakeStore) Query(_ context.Context, symbol string, model types.Model) ([]types.Prediction, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []types.Prediction
	for _, p := range f.preds {
		if p.Symbol == symbol && p.Model == model {
			out = append(out, p)
		}
	}
	return out, nil
}

func date(t *testing.T, s string) types.Date {
	t.Helper()
	d, err := types.ParseDate(s)
	require.NoError(t, err)
	return d
}

func writeArtifact(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestGetPredictions_StoreSortedAscending(t *testing.T) {
	store := &fakeStore{healthy: true, preds: []types.Prediction{
		{Symbol: "PLTR", Model: types.ModelEnsemble, Date: date(t, "2025-06-25"), Value: 3},
		{Symbol: "PLTR", Model: types.ModelEnsemble, Date: date(t, "2025-06-23"), Value: 1},
		{Symbol: "PLTR", Model: types.ModelEnsemble, Date: date(t, "2025-06-24"), Value: 2},
	}}
	r := New(store, artifact.New(artifact.Config{Dirs: []string{t.TempDir()}}), 7)

	ans, err := r.GetPredictions(context.Background(), Query{Symbol: "pltr", Model: "ensemble"})
	require.NoError(t, err)
	assert.Equal(t, types.SourceStore, ans.Source)
	require.Len(t, ans.Points, 3)
	for i, want := range []string{"2025-06-23", "2025-06-24", "2025-06-25"} {
		assert.Equal(t, want, ans.Points[i].Date.String())
	}
}

func TestGetPredictions_UnhealthyFallsBackToArtifact(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "PLTR_ensemble_7d.csv",
		"date,forecast_close\n2025-06-24,124.5\n2025-06-23,123.45\n")
	store := &fakeStore{healthy: false}
	r := New(store, artifact.New(artifact.Config{Dirs: []string{dir}}), 7)

	ans, err := r.GetPredictions(context.Background(), Query{Symbol: "PLTR"})
	require.NoError(t, err)
	assert.Equal(t, types.SourceArtifact, ans.Source)
	assert.Zero(t, store.calls)
	require.Len(t, ans.Points, 2)
	assert.Equal(t, "2025-06-23", ans.Points[0].Date.String())
	assert.InDelta(t, 123.45, ans.Points[0].Value, 1e-9)
}

func TestGetPredictions_EmptyStoreFallsBack(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "PLTR_xgb_3d.csv", "date,forecast_close\n2025-06-23,9\n")
	r := New(&fakeStore{healthy: true}, artifact.New(artifact.Config{Dirs: []string{dir}}), 7)

	ans, err := r.GetPredictions(context.Background(), Query{Symbol: "PLTR", Model: "xgb", Horizon: 3})
	require.NoError(t, err)
	assert.Equal(t, types.SourceArtifact, ans.Source)
	assert.Len(t, ans.Points, 1)
}

func TestGetPredictions_StoreErrorFallsBack(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "PLTR_ensemble_7d.csv", "date,forecast_close\n2025-06-23,9\n")
	r := New(&fakeStore{healthy: true, err: errors.New("timeout")}, artifact.New(artifact.Config{Dirs: []string{dir}}), 7)

	ans, err := r.GetPredictions(context.Background(), Query{Symbol: "PLTR"})
	require.NoError(t, err)
	assert.Equal(t, types.SourceArtifact, ans.Source)
}

func TestGetPredictions_DefaultHorizonOnly(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "PLTR_ensemble_14d.csv", "date,forecast_close\n2025-06-23,9\n")
	r := New(&fakeStore{healthy: false}, artifact.New(artifact.Config{Dirs: []string{dir}}), 7)

	_, err := r.GetPredictions(context.Background(), Query{Symbol: "PLTR"})
	require.Error(t, err)
	assert.True(t, types.IsNotFound(err))

	ans, err := r.GetPredictions(context.Background(), Query{Symbol: "PLTR", Horizon: 14})
	require.NoError(t, err)
	assert.Len(t, ans.Points, 1)
}

func TestGetPredictions_NotFound(t *testing.T) {
	r := New(&fakeStore{healthy: true}, artifact.New(artifact.Config{Dirs: []string{t.TempDir()}}), 7)

	_, err := r.GetPredictions(context.Background(), Query{Symbol: "ZZZZ", Model: "lstm"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotFound))
	assert.Equal(t, types.KindNotFound, types.KindOf(err))
	assert.Contains(t, err.Error(), "ZZZZ")
	assert.Contains(t, err.Error(), "lstm")
}

func TestGetPredictions_EmptyArtifactIsNotFound(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "PLTR_ensemble_7d.csv", "date,forecast_close\n")
	r := New(&fakeStore{healthy: false}, artifact.New(artifact.Config{Dirs: []string{dir}}), 7)

	_, err := r.GetPredictions(context.Background(), Query{Symbol: "PLTR"})
	assert.True(t, types.IsNotFound(err))
}

func TestGetPredictions_Validation(t *testing.T) {
	r := New(&fakeStore{healthy: true}, artifact.New(artifact.Config{}), 7)

	tests := []Query{
		{Symbol: ""},
		{Symbol: "PL TR"},
		{Symbol: "PLTR", Model: "Ensemble"},
		{Symbol: "PLTR", Model: "prophet"},
	}
	for _, q := range tests {
		_, err := r.GetPredictions(context.Background(), q)
		require.Error(t, err, "%+v", q)
		assert.Equal(t, types.KindValidation, types.KindOf(err), "%+v", q)
	}
}
