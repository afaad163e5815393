package gateway

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dwsmith1983/forecastd/internal/provider"
	"github.com/dwsmith1983/forecastd/internal/provider/memory"
	"github.com/dwsmith1983/forecastd/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// flakyStore wraps the memory store with switchable failures.
type flakyStore struct {
	*memory.Store
	down     atomic.Bool
	startErr error
	stopped  atomic.Bool
}

func (f *flakyStore) Name() string { return "flaky" }

func (f *flakyStore) Start(context.Context) error { return f.startErr }

func (f *flakyStore) Stop(context.Context) error {
	f.stopped.Store(true)
	return nil
}

func (f *flakyStore) Ping(context.Context) error {
	if f.down.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func (f *flakyStore) QueryPredictions(ctx context.Context, symbol string, model types.Model) ([]types.Prediction, error) {
	if f.down.Load() {
		return nil, errors.New("connection refused")
	}
	return f.Store.QueryPredictions(ctx, symbol, model)
}

func newFlaky() *flakyStore { return &flakyStore{Store: memory.New()} }

func factoryOf(s provider.Store) Factory {
	return func(context.Context) (provider.Store, error) { return s, nil }
}

var fastOpts = Options{HealthInterval: time.Hour, FailThreshold: 2, Cooldown: time.Hour}

func TestOpen_Connected(t *testing.T) {
	s := newFlaky()
	g := Open(context.Background(), factoryOf(s), fastOpts)
	defer g.Close(context.Background())

	assert.Equal(t, ModeConnected, g.Mode())
	assert.Equal(t, "flaky", g.Backend())
	assert.True(t, g.Healthy())
}

func TestOpen_FactoryErrorDegrades(t *testing.T) {
	g := Open(context.Background(), func(context.Context) (provider.Store, error) {
		return nil, errors.New("dial tcp: connection refused")
	}, fastOpts)
	defer g.Close(context.Background())

	assert.Equal(t, ModeDegraded, g.Mode())
	assert.Equal(t, "memory", g.Backend())

	// The in-process store still serves writes and reads.
	d, _ := types.ParseDate("2025-06-23")
	res, err := g.UpsertBatch(context.Background(), []types.Prediction{{Symbol: "PLTR", Model: types.ModelEnsemble, Date: d, Value: 1}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Upserted)
	assert.True(t, g.Healthy())
}

func TestOpen_StartErrorDegradesAndStopsStore(t *testing.T) {
	s := newFlaky()
	s.startErr = errors.New("auth failed")
	g := Open(context.Background(), factoryOf(s), fastOpts)
	defer g.Close(context.Background())

	assert.Equal(t, ModeDegraded, g.Mode())
	assert.True(t, s.stopped.Load())
}

func TestOpen_FromConfigMemory(t *testing.T) {
	g := Open(context.Background(), FromConfig(types.StoreConfig{Type: types.StoreMemory}), fastOpts)
	defer g.Close(context.Background())
	assert.Equal(t, ModeConnected, g.Mode())
	assert.Equal(t, "memory", g.Backend())
}

func TestOpen_FromConfigMissingSettingsDegrades(t *testing.T) {
	g := Open(context.Background(), FromConfig(types.StoreConfig{Type: types.StoreRedis}), fastOpts)
	defer g.Close(context.Background())
	assert.Equal(t, ModeDegraded, g.Mode())
}

func TestCheck_TracksPing(t *testing.T) {
	s := newFlaky()
	g := New(s, fastOpts)
	defer g.Close(context.Background())

	s.down.Store(true)
	assert.False(t, g.Check(context.Background()))
	assert.False(t, g.Healthy())

	s.down.Store(false)
	assert.True(t, g.Check(context.Background()))
	assert.True(t, g.Healthy())
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	s := newFlaky()
	g := New(s, fastOpts)
	defer g.Close(context.Background())

	s.down.Store(true)
	for i := 0; i < 2; i++ {
		_, err := g.Query(context.Background(), "PLTR", types.ModelEnsemble)
		require.Error(t, err)
		assert.Equal(t, types.KindStore, types.KindOf(err))
	}
	assert.False(t, g.Healthy())

	// Open breaker short-circuits without touching the store.
	s.down.Store(false)
	_, err := g.Query(context.Background(), "PLTR", types.ModelEnsemble)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrStoreUnavailable))
}

func TestBreaker_IgnoresCallerCancellation(t *testing.T) {
	s := newFlaky()
	g := New(&cancelStore{flakyStore: s}, fastOpts)
	defer g.Close(context.Background())

	for i := 0; i < 5; i++ {
		_, _ = g.Query(context.Background(), "PLTR", types.ModelEnsemble)
	}
	assert.True(t, g.Healthy())
}

type cancelStore struct{ *flakyStore }

func (c *cancelStore) QueryPredictions(context.Context, string, types.Model) ([]types.Prediction, error) {
	return nil, context.Canceled
}

func TestMonitor_PingsPeriodically(t *testing.T) {
	s := newFlaky()
	g := New(s, Options{HealthInterval: 10 * time.Millisecond, FailThreshold: 100, Cooldown: time.Hour})
	defer g.Close(context.Background())

	s.down.Store(true)
	require.Eventually(t, func() bool { return !g.Healthy() }, 2*time.Second, 5*time.Millisecond)
	s.down.Store(false)
	require.Eventually(t, g.Healthy, 2*time.Second, 5*time.Millisecond)
}

func TestClose_Idempotent(t *testing.T) {
	s := newFlaky()
	g := New(s, fastOpts)
	require.NoError(t, g.Close(context.Background()))
	require.NoError(t, g.Close(context.Background()))
	assert.True(t, s.stopped.Load())
}
