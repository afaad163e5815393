// Package metrics records service counters. Every counter is published twice:
// as an expvar for /debug/vars and as an OpenTelemetry instrument exported by
// whatever meter provider is installed globally.
package metrics

import (
	"context"
	"expvar"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/dwsmith1983/forecastd/pkg/types"
)

const meterName = "github.com/dwsmith1983/forecastd"

var (
	RunsTotal           = expvar.NewInt("runs_total")
	RunsFailed          = expvar.NewInt("runs_failed")
	RunsCancelled       = expvar.NewInt("runs_cancelled")
	RunSeconds          = expvar.NewFloat("run_seconds_total")
	RowsMatched         = expvar.NewInt("rows_matched")
	RowsUpserted        = expvar.NewInt("rows_upserted")
	RowsFailed          = expvar.NewInt("rows_failed")
	RowsSkipped         = expvar.NewInt("rows_skipped")
	ArtifactFailures    = expvar.NewInt("artifact_failures")
	QueriesFromStore    = expvar.NewInt("queries_from_store")
	QueriesFromArtifact = expvar.NewInt("queries_from_artifact")
	QueriesNotFound     = expvar.NewInt("queries_not_found")
	NotificationsSent   = expvar.NewInt("notifications_sent")
	NotificationsFailed = expvar.NewInt("notifications_failed")
	StoreDegraded       = expvar.NewInt("store_degraded")
)

var degraded atomic.Int64

var (
	once sync.Once

	runCounter      otelmetric.Int64Counter
	rowCounter      otelmetric.Int64Counter
	artifactCounter otelmetric.Int64Counter
	queryCounter    otelmetric.Int64Counter
	notifyCounter   otelmetric.Int64Counter
	runDuration     otelmetric.Float64Histogram
)

// initInstruments builds the otel instruments lazily so the global meter provider set up
// by telemetry.Setup is already in place. Instrument errors leave the
// instrument nil and only disable that export.
func initInstruments() {
	meter := otel.Meter(meterName)
	runCounter, _ = meter.Int64Counter("forecastd.runs",
		otelmetric.WithDescription("Runs finished, by status"))
	rowCounter, _ = meter.Int64Counter("forecastd.rows",
		otelmetric.WithDescription("Artifact rows ingested, by model and outcome"))
	artifactCounter, _ = meter.Int64Counter("forecastd.artifact.failures",
		otelmetric.WithDescription("Per-model artifact failures, by reason"))
	queryCounter, _ = meter.Int64Counter("forecastd.queries",
		otelmetric.WithDescription("Prediction queries, by answer source"))
	notifyCounter, _ = meter.Int64Counter("forecastd.notifications",
		otelmetric.WithDescription("Notifications delivered, by sink and result"))
	runDuration, _ = meter.Float64Histogram("forecastd.run.duration",
		otelmetric.WithDescription("Job wall time"), otelmetric.WithUnit("s"))
	_, _ = meter.Int64ObservableGauge("forecastd.store.degraded",
		otelmetric.WithDescription("1 while the service runs on the in-process fallback store"),
		otelmetric.WithInt64Callback(func(_ context.Context, o otelmetric.Int64Observer) error {
			o.Observe(degraded.Load())
			return nil
		}))
}

func instruments() { once.Do(initInstruments) }

// RunFinished records a finished run and its job duration in seconds.
func RunFinished(ctx context.Context, status types.RunStatus, seconds float64) {
	instruments()
	RunsTotal.Add(1)
	switch status {
	case types.RunFailed:
		RunsFailed.Add(1)
	case types.RunCancelled:
		RunsCancelled.Add(1)
	}
	attrs := otelmetric.WithAttributes(attribute.String("status", string(status)))
	if runCounter != nil {
		runCounter.Add(ctx, 1, attrs)
	}
	if seconds <= 0 {
		return
	}
	RunSeconds.Add(seconds)
	if runDuration != nil {
		runDuration.Record(ctx, seconds, attrs)
	}
}

// RowsIngested records one model's reconcile result and rejected rows.
func RowsIngested(ctx context.Context, model types.Model, res types.UpsertResult, skipped int) {
	instruments()
	RowsMatched.Add(int64(res.Matched))
	RowsUpserted.Add(int64(res.Upserted))
	RowsFailed.Add(int64(res.Failed))
	RowsSkipped.Add(int64(skipped))
	if rowCounter == nil {
		return
	}
	for outcome, n := range map[string]int{
		"matched": res.Matched, "upserted": res.Upserted, "failed": res.Failed, "skipped": skipped,
	} {
		if n > 0 {
			rowCounter.Add(ctx, int64(n), otelmetric.WithAttributes(
				attribute.String("model", string(model)), attribute.String("outcome", outcome)))
		}
	}
}

// ArtifactFailed records a per-model ingestion failure.
func ArtifactFailed(ctx context.Context, model types.Model, reason string) {
	instruments()
	ArtifactFailures.Add(1)
	if artifactCounter != nil {
		artifactCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("model", string(model)), attribute.String("reason", reason)))
	}
}

// QueryServed records a query answer. An empty source means not found.
func QueryServed(ctx context.Context, source types.Source) {
	instruments()
	switch source {
	case types.SourceStore:
		QueriesFromStore.Add(1)
	case types.SourceArtifact:
		QueriesFromArtifact.Add(1)
	default:
		QueriesNotFound.Add(1)
		source = "none"
	}
	if queryCounter != nil {
		queryCounter.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("source", string(source))))
	}
}

// NotificationDelivered records a sink send.
func NotificationDelivered(ctx context.Context, sink types.NotifyType, err error) {
	instruments()
	result := "ok"
	if err != nil {
		result = "error"
		NotificationsFailed.Add(1)
	} else {
		NotificationsSent.Add(1)
	}
	if notifyCounter != nil {
		notifyCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("sink", string(sink)), attribute.String("result", result)))
	}
}

// SetDegraded publishes whether the store gateway is in degraded mode.
func SetDegraded(on bool) {
	instruments()
	var v int64
	if on {
		v = 1
	}
	degraded.Store(v)
	StoreDegraded.Set(v)
}
