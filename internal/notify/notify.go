// Package notify delivers run lifecycle notifications to configured sinks.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dwsmith1983/forecastd/internal/metrics"
	"github.com/dwsmith1983/forecastd/pkg/types"
)

// sendTimeout bounds one sink delivery.
const sendTimeout = 10 * time.Second

// Sink is a notification destination.
type Sink interface {
	Send(ctx context.Context, n types.Notification) error
	Name() types.NotifyType
}

// Dispatcher routes notifications to configured sinks.
type Dispatcher struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher from notify configs.
func NewDispatcher(ctx context.Context, configs []types.NotifyConfig) (*Dispatcher, error) {
	d := &Dispatcher{logger: slog.Default()}
	for _, cfg := range configs {
		sink, err := newSink(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("creating %s sink: %w", cfg.Type, err)
		}
		d.sinks = append(d.sinks, sink)
	}
	return d, nil
}

// NewDispatcherWithSinks creates a dispatcher over already built sinks.
func NewDispatcherWithSinks(sinks ...Sink) *Dispatcher {
	return &Dispatcher{sinks: sinks, logger: slog.Default()}
}

// SetLogger replaces the dispatcher's logger.
func (d *Dispatcher) SetLogger(l *slog.Logger) { d.logger = l }

// Len returns the number of sinks.
func (d *Dispatcher) Len() int { return len(d.sinks) }

// Dispatch sends n to every sink. Failures are logged and counted, never
// returned: a notification problem must not change a run's outcome. Delivery
// outlives cancellation of ctx so a cancelled run is still reported.
func (d *Dispatcher) Dispatch(ctx context.Context, n types.Notification) {
	if d == nil {
		return
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}
	base := context.WithoutCancel(ctx)
	for _, sink := range d.sinks {
		sctx, cancel := context.WithTimeout(base, sendTimeout)
		err := sink.Send(sctx, n)
		cancel()
		metrics.NotificationDelivered(base, sink.Name(), err)
		if err != nil {
			d.logger.Warn("notification delivery failed", "sink", sink.Name(), "kind", n.Kind,
				"runId", n.RunID, "error", err)
		}
	}
}

func newSink(ctx context.Context, cfg types.NotifyConfig) (Sink, error) {
	switch cfg.Type {
	case types.NotifyConsole:
		return NewConsoleSink(), nil
	case types.NotifyWebhook:
		if cfg.URL == "" {
			return nil, fmt.Errorf("webhook URL required")
		}
		return NewWebhookSink(cfg.URL), nil
	case types.NotifyFile:
		if cfg.Path == "" {
			return nil, fmt.Errorf("file path required")
		}
		return NewFileSink(cfg.Path)
	case types.NotifyEventBridge:
		return NewEventBridgeSink(ctx, cfg.EventBus, cfg.Source, cfg.Region)
	case types.NotifyCloudWatchLogs:
		return NewCloudWatchLogsSink(ctx, cfg.LogGroup, cfg.Region)
	default:
		return nil, fmt.Errorf("unknown notify type %q", cfg.Type)
	}
}
