package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/dwsmith1983/forecastd/internal/artifact"
	"github.com/dwsmith1983/forecastd/internal/config"
	"github.com/dwsmith1983/forecastd/internal/gateway"
	"github.com/dwsmith1983/forecastd/internal/notify"
	"github.com/dwsmith1983/forecastd/internal/orchestrator"
	"github.com/dwsmith1983/forecastd/internal/query"
	"github.com/dwsmith1983/forecastd/internal/reconcile"
	"github.com/dwsmith1983/forecastd/internal/runner"
	"github.com/dwsmith1983/forecastd/pkg/types"
)

// app is the wired component graph shared by serve, run, query and health.
type app struct {
	cfg          *types.ProjectConfig
	logger       *slog.Logger
	gateway      *gateway.Gateway
	artifacts    *artifact.Reader
	reconciler   *reconcile.Reconciler
	resolver     *query.Resolver
	orchestrator *orchestrator.Orchestrator
	notifier     *notify.Dispatcher
}

// loadConfig reads the configuration and resolves any referenced secrets.
func loadConfig(ctx context.Context, path string) (*types.ProjectConfig, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if config.NeedsSecrets(cfg) {
		client, err := config.NewSecretsClient(ctx, "")
		if err != nil {
			return nil, err
		}
		if err := config.ResolveSecrets(ctx, cfg, client); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// buildApp opens the store gateway and wires every component. Job output is
// mirrored to stdout and stderr when enabled.
func buildApp(ctx context.Context, cfg *types.ProjectConfig, logger *slog.Logger, stdout, stderr io.Writer) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	notifier, err := notify.NewDispatcher(ctx, cfg.Notify)
	if err != nil {
		return nil, fmt.Errorf("creating notify dispatcher: %w", err)
	}
	notifier.SetLogger(logger)
	a.notifier = notifier

	a.gateway = gateway.Open(ctx, gateway.FromConfig(cfg.Store), config.GatewayOptions(cfg, logger))

	a.artifacts = artifact.New(config.ArtifactConfig(cfg))
	a.artifacts.SetLogger(logger)

	a.reconciler = reconcile.New(a.gateway)
	a.reconciler.SetLogger(logger)

	a.resolver = query.New(a.gateway, a.artifacts, cfg.Query.DefaultHorizon)
	a.resolver.SetLogger(logger)

	job := runner.New(config.RunnerConfig(cfg, stdout, stderr))
	job.SetLogger(logger)

	a.orchestrator = orchestrator.New(job, a.artifacts, a.reconciler, orchestrator.Options{
		Bounds:     config.Bounds(cfg),
		IngestMode: cfg.Ingest.Mode,
		Notifier:   notifier,
		Logger:     logger,
	})
	return a, nil
}

// Close stops the gateway and its store.
func (a *app) Close(ctx context.Context) error {
	return a.gateway.Close(ctx)
}
