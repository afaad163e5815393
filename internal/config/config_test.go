package config

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/forecastd/pkg/types"
)

var overrideVars = []string{
	"PORT", "FORECASTD_API_KEY", "PYTHON_CMD", "FORECASTD_STORE", "FORECASTD_POSTGRES_DSN", "FORECASTD_REDIS_ADDR",
	"FORECASTD_DYNAMODB_TABLE", "FORECASTD_RESULTS_DIR", "FORECASTD_LOG_LEVEL", "FORECASTD_INGEST_MODE",
}

// clearEnv blanks every override so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range overrideVars {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644))
	return dir
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	dir := writeConfig(t, `server:
  addr: ":8080"
  runRateLimit: 0.5
  runBurst: 2
job:
  command: /usr/bin/python3
  args: [src/main.py]
  timeout: 15m
artifacts:
  dirs: [results, legacy/results]
  retry:
    attempts: 3
    interval: 250ms
store:
  type: redis
  redis:
    addr: localhost:6379
    keyPrefix: "fc:"
notify:
  - type: console
  - type: webhook
    url: http://hooks.local/run
`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "/usr/bin/python3", cfg.Job.Command)
	assert.Equal(t, []string{"results", "legacy/results"}, cfg.Artifacts.Dirs)
	assert.Equal(t, types.StoreRedis, cfg.Store.Type)
	assert.Equal(t, "fc:", cfg.Store.Redis.KeyPrefix)
	assert.Len(t, cfg.Notify, 2)

	// Unset sections keep their defaults.
	assert.Equal(t, types.DefaultHorizon, cfg.Query.DefaultHorizon)
	assert.Equal(t, types.IngestCore, cfg.Ingest.Mode)
	assert.Equal(t, int64(DefaultMaxRequestBody), cfg.Server.MaxRequestBody)

	rc := RunnerConfig(cfg, &bytes.Buffer{}, &bytes.Buffer{})
	assert.Equal(t, 15*time.Minute, rc.Timeout)
	assert.NotNil(t, rc.MirrorStdout)

	ac := ArtifactConfig(cfg)
	assert.Equal(t, 3, ac.Attempts)
	assert.Equal(t, 250*time.Millisecond, ac.Interval)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultCommand, cfg.Job.Command)
	assert.Equal(t, DefaultArgs, cfg.Job.Args)
	assert.Equal(t, types.StoreMemory, cfg.Store.Type)
	assert.Equal(t, types.DefaultHorizonBounds(), Bounds(cfg))
}

func TestLoad_ExplicitFilePath(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":9\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9", cfg.Server.Addr)
}

func TestLoadInvalidYAML(t *testing.T) {
	clearEnv(t)
	dir := writeConfig(t, "invalid: [yaml")

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "5001")
	t.Setenv("PYTHON_CMD", "python3.12")
	t.Setenv("FORECASTD_STORE", "Postgres")
	t.Setenv("FORECASTD_POSTGRES_DSN", "postgres://localhost/forecasts")
	t.Setenv("FORECASTD_RESULTS_DIR", "/data/results")
	t.Setenv("FORECASTD_INGEST_MODE", "external")
	t.Setenv("FORECASTD_LOG_LEVEL", "DEBUG")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, ":5001", cfg.Server.Addr)
	assert.Equal(t, "python3.12", cfg.Job.Command)
	assert.Equal(t, types.StorePostgres, cfg.Store.Type)
	assert.Equal(t, "postgres://localhost/forecasts", cfg.Store.Postgres.DSN)
	assert.Equal(t, []string{"/data/results"}, cfg.Artifacts.Dirs)
	assert.Equal(t, types.IngestExternal, cfg.Ingest.Mode)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("FORECASTD_REDIS_ADDR_UNUSED=1\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("FORECASTD_REDIS_ADDR_UNUSED") })

	_, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "1", os.Getenv("FORECASTD_REDIS_ADDR_UNUSED"))
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*types.ProjectConfig)
		wantErr string
	}{
		{"missing postgres", func(c *types.ProjectConfig) { c.Store.Type = types.StorePostgres }, "store.postgres.dsn"},
		{"missing redis addr", func(c *types.ProjectConfig) {
			c.Store.Type = types.StoreRedis
			c.Store.Redis = &types.RedisConfig{}
		}, "store.redis.addr"},
		{"missing dynamodb table", func(c *types.ProjectConfig) { c.Store.Type = types.StoreDynamoDB }, "store.dynamodb.tableName"},
		{"unknown store", func(c *types.ProjectConfig) { c.Store.Type = "mongo" }, "unknown store.type"},
		{"no artifact dirs", func(c *types.ProjectConfig) { c.Artifacts.Dirs = nil }, "artifacts.dirs"},
		{"bad duration", func(c *types.ProjectConfig) { c.Job.Timeout = "soon" }, "job.timeout"},
		{"inverted bounds", func(c *types.ProjectConfig) { c.Validation.MaxHorizon = 0 }, "horizon range"},
		{"default horizon out of range", func(c *types.ProjectConfig) { c.Query.DefaultHorizon = 30 }, "query.defaultHorizon"},
		{"ingest mode", func(c *types.ProjectConfig) { c.Ingest.Mode = "python" }, "ingest.mode"},
		{"webhook url", func(c *types.ProjectConfig) {
			c.Notify = []types.NotifyConfig{{Type: types.NotifyWebhook}}
		}, "notify[0]: webhook sink requires url"},
		{"log level", func(c *types.ProjectConfig) { c.Log.Level = "trace" }, "log.level"},
		{"empty command", func(c *types.ProjectConfig) { c.Job.Command = "" }, "job.command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	assert.NoError(t, Validate(Defaults()))
}

func TestRunnerConfig_MirrorDisabled(t *testing.T) {
	cfg := Defaults()
	off := false
	cfg.Job.MirrorOutput = &off
	rc := RunnerConfig(cfg, os.Stdout, os.Stderr)
	assert.Nil(t, rc.MirrorStdout)
	assert.Nil(t, rc.MirrorStderr)
}

type fakeSecrets struct {
	value string
	err   error
	asked string
}

func (f *fakeSecrets) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.asked = aws.ToString(in.SecretId)
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(f.value)}, nil
}

func pgSecretConfig() *types.ProjectConfig {
	cfg := Defaults()
	cfg.Store.Type = types.StorePostgres
	cfg.Store.Postgres = &types.PostgresConfig{DSNSecretID: "forecastd/pg"}
	return cfg
}

func TestResolveSecrets(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		want   string
	}{
		{"plain", "postgres://u:p@db/forecasts", "postgres://u:p@db/forecasts"},
		{"json", `{"dsn":"postgres://u:p@db/forecasts","user":"u"}`, "postgres://u:p@db/forecasts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := pgSecretConfig()
			client := &fakeSecrets{value: tt.secret}
			require.True(t, NeedsSecrets(cfg))
			require.NoError(t, ResolveSecrets(context.Background(), cfg, client))
			assert.Equal(t, "forecastd/pg", client.asked)
			assert.Equal(t, tt.want, cfg.Store.Postgres.DSN)
		})
	}
}

func TestResolveSecrets_ExplicitDSNWins(t *testing.T) {
	cfg := pgSecretConfig()
	cfg.Store.Postgres.DSN = "postgres://local/forecasts"
	client := &fakeSecrets{value: "postgres://other"}

	require.NoError(t, ResolveSecrets(context.Background(), cfg, client))
	assert.Empty(t, client.asked)
	assert.Equal(t, "postgres://local/forecasts", cfg.Store.Postgres.DSN)
}

func TestResolveSecrets_Errors(t *testing.T) {
	cfg := pgSecretConfig()
	err := ResolveSecrets(context.Background(), cfg, &fakeSecrets{err: errors.New("access denied")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")

	cfg = pgSecretConfig()
	err = ResolveSecrets(context.Background(), cfg, &fakeSecrets{value: `{"user":"u"}`})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no dsn field")
}
