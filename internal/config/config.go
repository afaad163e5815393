// Package config handles loading and validation of forecastd.yaml project configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dwsmith1983/forecastd/pkg/types"
)

// FileName is the configuration file looked up when Load is given a directory.
const FileName = "forecastd.yaml"

// Defaults applied before the file and the environment.
const (
	DefaultAddr           = ":4000"
	DefaultCommand        = "python3"
	DefaultResultsDir     = "results"
	DefaultMaxRequestBody = 1 << 20
)

// DefaultArgs is the script invocation prepended to the per-run arguments.
var DefaultArgs = []string{"src/main.py"}

// Defaults returns a configuration that runs with no file at all.
func Defaults() *types.ProjectConfig {
	return &types.ProjectConfig{
		Server: types.ServerConfig{Addr: DefaultAddr, MaxRequestBody: DefaultMaxRequestBody},
		Job:    types.JobConfig{Command: DefaultCommand, Args: append([]string(nil), DefaultArgs...)},
		Artifacts: types.ArtifactConfig{
			Dirs:  []string{DefaultResultsDir},
			Retry: types.RetryConfig{Attempts: 6, Interval: "500ms"},
		},
		Store:      types.StoreConfig{Type: types.StoreMemory},
		Query:      types.QueryConfig{DefaultHorizon: types.DefaultHorizon},
		Validation: types.ValidationConfig{MinHorizon: types.DefaultMinHorizon, MaxHorizon: types.DefaultMaxHorizon},
		Ingest:     types.IngestConfig{Mode: types.IngestCore},
		Telemetry:  types.TelemetryConfig{ServiceName: "forecastd"},
		Log:        types.LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads forecastd.yaml from path, which may name the file or the
// directory holding it. A missing file yields the defaults. A .env file next
// to the config is loaded first, then environment overrides are applied and
// the result validated.
func Load(path string) (*types.ProjectConfig, error) {
	if path == "" {
		path = "."
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, FileName)
	}
	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}

	cfg := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	applyEnv(cfg, os.LookupEnv)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// loadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

// applyEnv overlays the supported environment variables on cfg.
func applyEnv(cfg *types.ProjectConfig, lookup func(string) (string, bool)) {
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("PORT"); ok {
		cfg.Server.Addr = ":" + strings.TrimPrefix(v, ":")
	}
	if v, ok := get("FORECASTD_API_KEY"); ok {
		cfg.Server.APIKey = v
	}
	if v, ok := get("PYTHON_CMD"); ok {
		cfg.Job.Command = v
	}
	if v, ok := get("FORECASTD_STORE"); ok {
		cfg.Store.Type = types.StoreType(strings.ToLower(v))
	}
	if v, ok := get("FORECASTD_POSTGRES_DSN"); ok {
		if cfg.Store.Postgres == nil {
			cfg.Store.Postgres = &types.PostgresConfig{}
		}
		cfg.Store.Postgres.DSN = v
	}
	if v, ok := get("FORECASTD_REDIS_ADDR"); ok {
		if cfg.Store.Redis == nil {
			cfg.Store.Redis = &types.RedisConfig{}
		}
		cfg.Store.Redis.Addr = v
	}
	if v, ok := get("FORECASTD_DYNAMODB_TABLE"); ok {
		if cfg.Store.DynamoDB == nil {
			cfg.Store.DynamoDB = &types.DynamoDBConfig{}
		}
		cfg.Store.DynamoDB.TableName = v
	}
	if v, ok := get("FORECASTD_RESULTS_DIR"); ok {
		cfg.Artifacts.Dirs = filepath.SplitList(v)
	}
	if v, ok := get("FORECASTD_LOG_LEVEL"); ok {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v, ok := get("FORECASTD_INGEST_MODE"); ok {
		cfg.Ingest.Mode = types.IngestMode(strings.ToLower(v))
	}
}

// Validate checks cfg and returns the first problem found.
func Validate(cfg *types.ProjectConfig) error {
	if cfg.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if cfg.Server.RunRateLimit < 0 || cfg.Server.RunBurst < 0 {
		return fmt.Errorf("server.runRateLimit and server.runBurst must not be negative")
	}
	if cfg.Job.Command == "" {
		return fmt.Errorf("job.command is required")
	}
	if len(cfg.Artifacts.Dirs) == 0 {
		return fmt.Errorf("at least one artifacts.dirs entry is required")
	}
	if cfg.Artifacts.Retry.Attempts < 0 {
		return fmt.Errorf("artifacts.retry.attempts must not be negative")
	}

	durations := map[string]string{
		"job.timeout":              cfg.Job.Timeout,
		"artifacts.retry.interval": cfg.Artifacts.Retry.Interval,
		"store.connectTimeout":     cfg.Store.ConnectTimeout,
		"store.healthInterval":     cfg.Store.HealthInterval,
		"store.breaker.cooldown":   cfg.Store.Breaker.Cooldown,
	}
	for field, v := range durations {
		if _, err := ParseDuration(v, 0); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}

	if err := validateStore(&cfg.Store); err != nil {
		return err
	}

	v := cfg.Validation
	if v.MinHorizon < 1 || v.MaxHorizon < v.MinHorizon {
		return fmt.Errorf("validation horizon range [%d, %d] is invalid", v.MinHorizon, v.MaxHorizon)
	}
	if d := cfg.Query.DefaultHorizon; d < v.MinHorizon || d > v.MaxHorizon {
		return fmt.Errorf("query.defaultHorizon %d is outside [%d, %d]", d, v.MinHorizon, v.MaxHorizon)
	}

	switch cfg.Ingest.Mode {
	case types.IngestCore, types.IngestExternal:
	default:
		return fmt.Errorf("unknown ingest.mode %q", cfg.Ingest.Mode)
	}

	for i, n := range cfg.Notify {
		if err := validateNotify(n); err != nil {
			return fmt.Errorf("notify[%d]: %w", i, err)
		}
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log.level %q", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log.format %q", cfg.Log.Format)
	}
	return nil
}

func validateStore(s *types.StoreConfig) error {
	switch s.Type {
	case types.StoreMemory:
	case types.StorePostgres:
		if s.Postgres == nil || (s.Postgres.DSN == "" && s.Postgres.DSNSecretID == "") {
			return fmt.Errorf("store.postgres.dsn or store.postgres.dsnSecretId is required when store.type is postgres")
		}
	case types.StoreRedis:
		if s.Redis == nil || s.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr is required when store.type is redis")
		}
	case types.StoreDynamoDB:
		if s.DynamoDB == nil || s.DynamoDB.TableName == "" {
			return fmt.Errorf("store.dynamodb.tableName is required when store.type is dynamodb")
		}
	case "":
		return fmt.Errorf("store.type is required")
	default:
		return fmt.Errorf("unknown store.type %q", s.Type)
	}
	return nil
}

func validateNotify(n types.NotifyConfig) error {
	switch n.Type {
	case types.NotifyConsole:
	case types.NotifyWebhook:
		if n.URL == "" {
			return fmt.Errorf("webhook sink requires url")
		}
	case types.NotifyFile:
		if n.Path == "" {
			return fmt.Errorf("file sink requires path")
		}
	case types.NotifyEventBridge:
		if n.EventBus == "" {
			return fmt.Errorf("eventbridge sink requires eventBus")
		}
	case types.NotifyCloudWatchLogs:
		if n.LogGroup == "" {
			return fmt.Errorf("cloudwatchlogs sink requires logGroup")
		}
	default:
		return fmt.Errorf("unknown notify type %q", n.Type)
	}
	return nil
}

// ParseDuration parses s, returning def for an empty string.
func ParseDuration(s string, def time.Duration) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

// MustDuration is ParseDuration for values Validate already accepted.
func MustDuration(s string, def time.Duration) time.Duration {
	d, err := ParseDuration(s, def)
	if err != nil {
		return def
	}
	return d
}
