package config

import (
	"io"
	"log/slog"
	"strings"

	"github.com/dwsmith1983/forecastd/internal/artifact"
	"github.com/dwsmith1983/forecastd/internal/gateway"
	"github.com/dwsmith1983/forecastd/internal/runner"
	"github.com/dwsmith1983/forecastd/pkg/types"
)

// RunnerConfig translates the job section. Output is mirrored to stdout and
// stderr unless job.mirrorOutput is false.
func RunnerConfig(cfg *types.ProjectConfig, stdout, stderr io.Writer) runner.Config {
	rc := runner.Config{
		Command: cfg.Job.Command,
		Args:    cfg.Job.Args,
		WorkDir: cfg.Job.WorkDir,
		Env:     cfg.Job.Env,
		Timeout: MustDuration(cfg.Job.Timeout, 0),
	}
	if cfg.Job.MirrorOutput == nil || *cfg.Job.MirrorOutput {
		rc.MirrorStdout, rc.MirrorStderr = stdout, stderr
	}
	return rc
}

// ArtifactConfig translates the artifacts section.
func ArtifactConfig(cfg *types.ProjectConfig) artifact.Config {
	return artifact.Config{
		Dirs:        cfg.Artifacts.Dirs,
		DateColumn:  cfg.Artifacts.DateColumn,
		ValueColumn: cfg.Artifacts.ValueColumn,
		Attempts:    cfg.Artifacts.Retry.Attempts,
		Interval:    MustDuration(cfg.Artifacts.Retry.Interval, artifact.DefaultInterval),
	}
}

// GatewayOptions translates the store section's timing and breaker settings.
func GatewayOptions(cfg *types.ProjectConfig, logger *slog.Logger) gateway.Options {
	return gateway.Options{
		ConnectTimeout: MustDuration(cfg.Store.ConnectTimeout, gateway.DefaultConnectTimeout),
		HealthInterval: MustDuration(cfg.Store.HealthInterval, gateway.DefaultHealthInterval),
		FailThreshold:  cfg.Store.Breaker.FailThreshold,
		Cooldown:       MustDuration(cfg.Store.Breaker.Cooldown, gateway.DefaultCooldown),
		Logger:         logger,
	}
}

// Bounds returns the accepted horizon range.
func Bounds(cfg *types.ProjectConfig) types.HorizonBounds {
	return types.HorizonBounds{Min: cfg.Validation.MinHorizon, Max: cfg.Validation.MaxHorizon}
}

// LogLevel maps log.level to a slog level, defaulting to info.
func LogLevel(cfg *types.ProjectConfig) slog.Level {
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger from the log section. json selects the
// JSON handler regardless of log.format.
func NewLogger(cfg *types.ProjectConfig, w io.Writer, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: LogLevel(cfg)}
	if json || cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
