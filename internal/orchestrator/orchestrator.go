// Package orchestrator drives one forecast run: validate, spawn the job, then
// ingest each requested model's artifact independently.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dwsmith1983/forecastd/internal/artifact"
	"github.com/dwsmith1983/forecastd/internal/lifecycle"
	"github.com/dwsmith1983/forecastd/internal/metrics"
	"github.com/dwsmith1983/forecastd/internal/runner"
	"github.com/dwsmith1983/forecastd/pkg/types"
)

// Run completion messages.
const (
	MsgCompleted         = "Pipeline completed"
	MsgCompletedExternal = "Pipeline completed (job wrote through the ingest API)"
	MsgNothingIngested   = "Pipeline completed, but no model could be ingested"
)

// JobRunner spawns the forecasting job.
type JobRunner interface {
	Run(ctx context.Context, req types.RunRequest) (*runner.Outcome, error)
}

// ArtifactReader finds and parses job artifacts.
type ArtifactReader interface {
	Locate(ctx context.Context, k artifact.Key) (string, error)
	Parse(path string) (*artifact.Parsed, error)
}

// Reconciler writes parsed rows to the store.
type Reconciler interface {
	Reconcile(ctx context.Context, symbol string, model types.Model, rows []types.Row) (types.UpsertResult, error)
}

// Notifier receives run lifecycle notifications.
type Notifier interface {
	Dispatch(ctx context.Context, n types.Notification)
}

type nopNotifier struct{}

func (nopNotifier) Dispatch(context.Context, types.Notification) {}

// Options tunes validation and ingestion ownership.
type Options struct {
	Bounds     types.HorizonBounds
	IngestMode types.IngestMode
	Notifier   Notifier
	Logger     *slog.Logger
}

// Orchestrator holds no per-run state; concurrent runs are independent and
// neither serialized nor deduplicated.
type Orchestrator struct {
	runner     JobRunner
	artifacts  ArtifactReader
	reconciler Reconciler
	notifier   Notifier
	bounds     types.HorizonBounds
	ingestMode types.IngestMode
	logger     *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// New creates an Orchestrator.
func New(r JobRunner, a ArtifactReader, rec Reconciler, opts Options) *Orchestrator {
	if opts.Bounds == (types.HorizonBounds{}) {
		opts.Bounds = types.DefaultHorizonBounds()
	}
	if opts.IngestMode == "" {
		opts.IngestMode = types.IngestCore
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		runner:     r,
		artifacts:  a,
		reconciler: rec,
		notifier:   opts.Notifier,
		bounds:     opts.Bounds,
		ingestMode: opts.IngestMode,
		logger:     opts.Logger,
		tracer:     otel.Tracer("github.com/dwsmith1983/forecastd/internal/orchestrator"),
		now:        time.Now,
	}
}

// Run executes one run. A validation failure returns only an error. A spawn
// failure, non-zero exit, timeout or cancellation returns both the failed
// result (with logs) and a process-kind error. Per-model ingestion failures
// are recorded in the result and never fail the run.
func (o *Orchestrator) Run(ctx context.Context, req types.RunRequest) (*types.RunResult, error) {
	req, err := req.Normalize(o.bounds)
	if err != nil {
		return nil, err
	}

	res := &types.RunResult{
		RunID:     ulid.Make().String(),
		Symbol:    req.Symbol,
		Period:    req.Period,
		Horizon:   req.Horizon,
		Models:    req.Models,
		Status:    types.RunPending,
		StartedAt: o.now().UTC(),
	}
	tracker := lifecycle.NewTracker()
	log := o.logger.With("runId", res.RunID, "symbol", req.Symbol, "horizon", req.Horizon)

	ctx, span := o.tracer.Start(ctx, "orchestrator.Run", trace.WithAttributes(
		attribute.String("run.id", res.RunID), attribute.String("symbol", req.Symbol),
		attribute.Int("horizon", req.Horizon), attribute.String("period", req.Period)))
	defer span.End()

	o.advance(tracker, res, types.RunRunning, log)
	log.Info("run started", "period", req.Period, "models", req.Models)
	o.notify(ctx, res, types.EventRunStarted, types.NotifyLevelInfo, "run started", "")

	jobCtx, jobSpan := o.tracer.Start(ctx, "job")
	out, err := o.runner.Run(jobCtx, req)
	jobSpan.End()
	if err != nil {
		res.ExitCode = -1
		res.Message = fmt.Sprintf("failed to start job: %v", err)
		return o.fail(ctx, span, tracker, res, types.RunFailed, 0, err, log)
	}
	res.ExitCode = out.ExitCode
	res.Logs = out.Log
	span.SetAttributes(attribute.Int("job.exit_code", out.ExitCode))

	switch {
	case out.Cancelled:
		res.Message = "job cancelled"
		return o.fail(ctx, span, tracker, res, types.RunCancelled, out.Duration, o.processError(req, types.ErrCancelled), log)
	case out.TimedOut:
		res.Message = fmt.Sprintf("job timed out after %s", out.Duration.Round(time.Millisecond))
		return o.fail(ctx, span, tracker, res, types.RunFailed, out.Duration, o.processError(req, errors.New(res.Message)), log)
	case out.ExitCode != 0:
		res.Message = fmt.Sprintf("job exited with code %d", out.ExitCode)
		return o.fail(ctx, span, tracker, res, types.RunFailed, out.Duration, o.processError(req, errors.New(res.Message)), log)
	}

	if o.ingestMode == types.IngestExternal {
		res.Message = MsgCompletedExternal
		return o.finish(ctx, span, tracker, res, types.RunCompleted, out.Duration, log), nil
	}

	o.advance(tracker, res, types.RunIngesting, log)
	res.Imported = make(map[types.Model]types.ModelResult, len(req.Models))
	anyOK := false
	for _, m := range req.Models {
		mr := o.ingestModel(ctx, req, m, log)
		res.Imported[m] = mr
		if mr.OK() {
			anyOK = true
			continue
		}
		o.notifyModel(ctx, res, m, mr.Error)
	}

	if ctx.Err() != nil {
		res.Message = "run cancelled during ingestion"
		return o.fail(ctx, span, tracker, res, types.RunCancelled, out.Duration, o.processError(req, types.ErrCancelled), log)
	}
	if !anyOK {
		res.Message = MsgNothingIngested
		return o.finish(ctx, span, tracker, res, types.RunFailed, out.Duration, log), nil
	}
	res.Message = MsgCompleted
	return o.finish(ctx, span, tracker, res, types.RunCompleted, out.Duration, log), nil
}

// ingestModel locates, parses and reconciles one model's artifact. Every
// failure is captured in the returned ModelResult.
func (o *Orchestrator) ingestModel(ctx context.Context, req types.RunRequest, m types.Model, log *slog.Logger) types.ModelResult {
	ctx, span := o.tracer.Start(ctx, "ingest."+string(m))
	defer span.End()
	log = log.With("model", m)

	key := artifact.Key{Symbol: req.Symbol, Model: m, Horizon: req.Horizon}
	path, err := o.artifacts.Locate(ctx, key)
	if err != nil {
		return o.modelFailed(ctx, span, m, "not_found", err, log)
	}

	parsed, err := o.artifacts.Parse(path)
	if err != nil {
		reason := "malformed"
		switch {
		case errors.Is(err, types.ErrArtifactEmpty):
			reason = "empty"
		case errors.Is(err, types.ErrNoValidRows):
			reason = "no_valid_rows"
		}
		return o.modelFailed(ctx, span, m, reason, err, log)
	}

	up, err := o.reconciler.Reconcile(ctx, req.Symbol, m, parsed.Rows)
	if err != nil {
		return o.modelFailed(ctx, span, m, "store", err, log)
	}
	metrics.RowsIngested(ctx, m, up, parsed.Skipped)
	log.Info("model ingested", "file", path, "rows", len(parsed.Rows), "skipped", parsed.Skipped,
		"matched", up.Matched, "upserted", up.Upserted, "failed", up.Failed)
	return types.ModelResult{
		Matched:  up.Matched,
		Upserted: up.Upserted,
		Failed:   up.Failed,
		Rows:     len(parsed.Rows),
		Skipped:  parsed.Skipped,
		File:     path,
	}
}

func (o *Orchestrator) modelFailed(ctx context.Context, span trace.Span, m types.Model, reason string, err error, log *slog.Logger) types.ModelResult {
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)
	metrics.ArtifactFailed(ctx, m, reason)
	log.Warn("model ingestion failed", "reason", reason, "error", err)
	return types.ModelResult{Error: err.Error()}
}

func (o *Orchestrator) processError(req types.RunRequest, err error) error {
	return &types.Error{Kind: types.KindProcess, Op: "run", Symbol: req.Symbol, Horizon: req.Horizon, Err: err}
}

func (o *Orchestrator) fail(ctx context.Context, span trace.Span, tracker *lifecycle.Tracker, res *types.RunResult,
	status types.RunStatus, jobTime time.Duration, err error, log *slog.Logger) (*types.RunResult, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, res.Message)
	o.finish(ctx, span, tracker, res, status, jobTime, log)
	return res, err
}

func (o *Orchestrator) finish(ctx context.Context, span trace.Span, tracker *lifecycle.Tracker, res *types.RunResult,
	status types.RunStatus, jobTime time.Duration, log *slog.Logger) *types.RunResult {
	o.advance(tracker, res, status, log)
	res.FinishedAt = o.now().UTC()
	span.SetAttributes(attribute.String("run.status", string(status)))
	metrics.RunFinished(ctx, status, jobTime.Seconds())

	kind, level := types.EventRunCompleted, types.NotifyLevelInfo
	switch status {
	case types.RunFailed:
		kind, level = types.EventRunFailed, types.NotifyLevelError
	case types.RunCancelled:
		kind, level = types.EventRunCancelled, types.NotifyLevelWarning
	}
	o.notify(ctx, res, kind, level, res.Message, res.Logs)
	log.Info("run finished", "status", status, "exitCode", res.ExitCode, "message", res.Message)
	return res
}

func (o *Orchestrator) advance(tracker *lifecycle.Tracker, res *types.RunResult, to types.RunStatus, log *slog.Logger) {
	if err := tracker.Advance(to); err != nil {
		log.Error("run state machine violation", "error", err)
		return
	}
	res.Status = to
}

func (o *Orchestrator) notify(ctx context.Context, res *types.RunResult, kind types.EventKind, level types.NotifyLevel, msg, logs string) {
	details := map[string]interface{}{"period": res.Period, "models": res.Models, "status": res.Status}
	if res.Imported != nil {
		details["imported"] = res.Imported
	}
	if kind != types.EventRunStarted {
		details["exitCode"] = res.ExitCode
	}
	o.notifier.Dispatch(ctx, types.Notification{
		Kind:      kind,
		Level:     level,
		RunID:     res.RunID,
		Symbol:    res.Symbol,
		Horizon:   res.Horizon,
		Message:   msg,
		Details:   details,
		Logs:      logs,
		Timestamp: o.now().UTC(),
	})
}

func (o *Orchestrator) notifyModel(ctx context.Context, res *types.RunResult, m types.Model, msg string) {
	o.notifier.Dispatch(ctx, types.Notification{
		Kind:      types.EventModelFailed,
		Level:     types.NotifyLevelWarning,
		RunID:     res.RunID,
		Symbol:    res.Symbol,
		Model:     m,
		Horizon:   res.Horizon,
		Message:   msg,
		Timestamp: o.now().UTC(),
	})
}
