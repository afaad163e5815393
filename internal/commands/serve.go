package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/forecastd/internal/config"
	"github.com/dwsmith1983/forecastd/internal/server"
	"github.com/dwsmith1983/forecastd/internal/server/handlers"
	"github.com/dwsmith1983/forecastd/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve command.
func NewServeCmd(opts *RootOptions) *cobra.Command {
	var jsonLogs bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the forecastd HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts.ConfigPath, jsonLogs)
		},
	}
	cmd.Flags().BoolVar(&jsonLogs, "json-logs", false, "log as JSON regardless of log.format")
	return cmd
}

func runServe(configPath string, jsonLogs bool) error {
	ctx := context.Background()
	cfg, err := loadConfig(ctx, configPath)
	if err != nil {
		return err
	}

	logger := config.NewLogger(cfg, os.Stderr, jsonLogs)
	slog.SetDefault(logger)

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}

	a, err := buildApp(ctx, cfg, logger, os.Stdout, os.Stderr)
	if err != nil {
		return err
	}

	root, _ := filepath.Abs(filepath.Dir(configPath))
	workDir := cfg.Job.WorkDir
	if workDir == "" {
		workDir, _ = os.Getwd()
	}
	logger.Info("forecastd starting",
		"root", root,
		"workDir", workDir,
		"artifactDirs", cfg.Artifacts.Dirs,
		"store", a.gateway.Backend(),
		"mode", a.gateway.Mode(),
		"ingestMode", cfg.Ingest.Mode)

	// A run answers only after the job finishes, so responses outlive the job timeout.
	var writeTimeout time.Duration
	if jobTimeout := config.MustDuration(cfg.Job.Timeout, 0); jobTimeout > 0 {
		writeTimeout = jobTimeout + time.Minute
	}

	srv := server.New(server.Options{
		Addr:           cfg.Server.Addr,
		APIKey:         cfg.Server.APIKey,
		MaxRequestBody: cfg.Server.MaxRequestBody,
		RunRateLimit:   cfg.Server.RunRateLimit,
		RunBurst:       cfg.Server.RunBurst,
		WriteTimeout:   writeTimeout,
		Logger:         logger,
	}, handlers.Deps{
		Runs:        a.orchestrator,
		Query:       a.resolver,
		Ingest:      a.reconciler,
		Store:       a.gateway,
		DateColumn:  cfg.Artifacts.DateColumn,
		ValueColumn: cfg.Artifacts.ValueColumn,
	})

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var serveErr error
	select {
	case serveErr = <-errCh:
	case sig := <-sigCh:
		color.Yellow("\nReceived %s, shutting down...", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := shutdown(shutdownCtx, srv, a, shutdownTelemetry, logger); err != nil {
		return err
	}
	if serveErr != nil {
		return serveErr
	}
	color.Green("Server stopped gracefully")
	return nil
}

type stopper interface {
	Stop(ctx context.Context) error
}

type closer interface {
	Close(ctx context.Context) error
}

// shutdown stops the server, then always closes the store and flushes
// telemetry, even when in-flight requests outlive ctx. The server's error is
// returned last.
func shutdown(ctx context.Context, srv stopper, a closer, flush telemetry.ShutdownFunc, logger *slog.Logger) error {
	stopErr := srv.Stop(ctx)
	if err := a.Close(ctx); err != nil {
		logger.Warn("store close", "error", err)
	}
	if err := flush(ctx); err != nil {
		logger.Warn("telemetry shutdown", "error", err)
	}
	if stopErr != nil {
		return fmt.Errorf("server shutdown: %w", stopErr)
	}
	return nil
}
