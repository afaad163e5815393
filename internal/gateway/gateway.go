// Package gateway owns the process-wide prediction store. It opens the
// configured backend once, falls back to an in-process store when the backend
// cannot be reached at startup, and tracks store health for query routing.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"github.com/dwsmith1983/forecastd/internal/metrics"
	"github.com/dwsmith1983/forecastd/internal/provider"
	"github.com/dwsmith1983/forecastd/internal/provider/memory"
	"github.com/dwsmith1983/forecastd/pkg/types"
)

// Mode reports whether the gateway is backed by the configured store.
type Mode string

// Mode values.
const (
	ModeConnected Mode = "connected"
	ModeDegraded  Mode = "degraded"
)

// Defaults for Options fields left zero.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultHealthInterval = 5 * time.Second
	DefaultFailThreshold  = 5
	DefaultCooldown       = 30 * time.Second
)

// Options tunes startup, health monitoring and the circuit breaker.
type Options struct {
	ConnectTimeout time.Duration
	HealthInterval time.Duration
	FailThreshold  uint32
	Cooldown       time.Duration
	Logger         *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.HealthInterval <= 0 {
		o.HealthInterval = DefaultHealthInterval
	}
	if o.FailThreshold == 0 {
		o.FailThreshold = DefaultFailThreshold
	}
	if o.Cooldown <= 0 {
		o.Cooldown = DefaultCooldown
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Factory builds an unstarted store.
type Factory func(ctx context.Context) (provider.Store, error)

// Gateway is safe for concurrent use by any number of runs and queries.
type Gateway struct {
	store   provider.Store
	mode    Mode
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger

	interval time.Duration
	timeout  time.Duration
	pingOK   atomic.Bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// Open builds and starts the store from factory. Any construction or startup
// failure within opts.ConnectTimeout puts the gateway in degraded mode on an
// in-process store; Open never fails.
func Open(ctx context.Context, factory Factory, opts Options) *Gateway {
	opts.applyDefaults()

	connectCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	store, err := factory(connectCtx)
	if err == nil {
		if err = store.Start(connectCtx); err != nil {
			_ = store.Stop(context.Background())
		}
	}
	if err != nil {
		opts.Logger.Warn("store unavailable, running degraded on in-process store",
			"mode", ModeDegraded, "error", err)
		return newGateway(memory.New(), ModeDegraded, opts)
	}
	return newGateway(store, ModeConnected, opts)
}

// New wraps an already started store.
func New(store provider.Store, opts Options) *Gateway {
	opts.applyDefaults()
	return newGateway(store, ModeConnected, opts)
}

func newGateway(store provider.Store, mode Mode, opts Options) *Gateway {
	g := &Gateway{
		store:    store,
		mode:     mode,
		logger:   opts.Logger,
		interval: opts.HealthInterval,
		timeout:  opts.HealthInterval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "store-" + store.Name(),
		MaxRequests: 1,
		Timeout:     opts.Cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= opts.FailThreshold
		},
		// A caller giving up is not a store fault.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Warn("store circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})
	g.pingOK.Store(true)
	metrics.SetDegraded(mode == ModeDegraded)

	g.logger.Info("store gateway ready", "store", store.Name(), "mode", mode)
	go g.monitor()
	return g
}

// Mode returns the startup mode.
func (g *Gateway) Mode() Mode { return g.mode }

// Backend returns the name of the active store.
func (g *Gateway) Backend() string { return g.store.Name() }

// Healthy reports whether the store answered its last health check and the
// circuit breaker is not open.
func (g *Gateway) Healthy() bool {
	return g.pingOK.Load() && g.breaker.State() != gobreaker.StateOpen
}

// UpsertBatch submits preds as one unordered bulk upsert.
func (g *Gateway) UpsertBatch(ctx context.Context, preds []types.Prediction) (types.UpsertResult, error) {
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.store.UpsertPredictions(ctx, preds)
	})
	if err != nil {
		return types.UpsertResult{}, g.wrap("upsert", err)
	}
	return out.(types.UpsertResult), nil
}

// Query returns the stored series for (symbol, model) ascending by date.
func (g *Gateway) Query(ctx context.Context, symbol string, model types.Model) ([]types.Prediction, error) {
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.store.QueryPredictions(ctx, symbol, model)
	})
	if err != nil {
		return nil, g.wrap("query", err)
	}
	return out.([]types.Prediction), nil
}

func (g *Gateway) wrap(op string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
	return &types.Error{Kind: types.KindStore, Op: "gateway." + op, Err: err}
}

// Check pings the store once through the breaker and records the result.
func (g *Gateway) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, g.store.Ping(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return g.Healthy()
	}
	ok := err == nil
	if prev := g.pingOK.Swap(ok); prev != ok {
		if ok {
			g.logger.Info("store reachable again", "store", g.store.Name())
		} else {
			g.logger.Warn("store health check failed", "store", g.store.Name(), "error", err)
		}
	}
	return g.Healthy()
}

func (g *Gateway) monitor() {
	defer close(g.done)
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
			g.Check(context.Background())
		}
	}
}

// Close stops the health monitor and the store.
func (g *Gateway) Close(ctx context.Context) error {
	var err error
	g.stopOnce.Do(func() {
		close(g.stop)
		<-g.done
		err = g.store.Stop(ctx)
	})
	return err
}
