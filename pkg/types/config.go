package types

// ProjectConfig is the top-level forecastd.yaml configuration.
type ProjectConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Job        JobConfig        `yaml:"job"`
	Artifacts  ArtifactConfig   `yaml:"artifacts"`
	Store      StoreConfig      `yaml:"store"`
	Query      QueryConfig      `yaml:"query"`
	Validation ValidationConfig `yaml:"validation"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Notify     []NotifyConfig   `yaml:"notify,omitempty"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string  `yaml:"addr"`
	MaxRequestBody int64   `yaml:"maxRequestBody,omitempty" json:"maxRequestBody,omitempty"`
	RunRateLimit   float64 `yaml:"runRateLimit,omitempty" json:"runRateLimit,omitempty"` // runs per second, 0 = unlimited
	RunBurst       int     `yaml:"runBurst,omitempty" json:"runBurst,omitempty"`
	// APIKey, when set, is required in X-API-Key on every route except health.
	APIKey string `yaml:"apiKey,omitempty" json:"-"`
}

// JobConfig describes how the external forecasting job is spawned.
type JobConfig struct {
	Command      string            `yaml:"command"`
	Args         []string          `yaml:"args,omitempty"`
	WorkDir      string            `yaml:"workDir,omitempty"`
	Env          map[string]string `yaml:"env,omitempty"`
	Timeout      string            `yaml:"timeout,omitempty"` // e.g. "15m"; empty = no timeout
	MirrorOutput *bool             `yaml:"mirrorOutput,omitempty"`
}

// ArtifactConfig describes where and how artifacts are read.
type ArtifactConfig struct {
	Dirs        []string    `yaml:"dirs"`
	DateColumn  string      `yaml:"dateColumn,omitempty"`
	ValueColumn string      `yaml:"valueColumn,omitempty"`
	Retry       RetryConfig `yaml:"retry"`
}

// RetryConfig is a bounded constant-interval retry policy.
type RetryConfig struct {
	Attempts int    `yaml:"attempts"`
	Interval string `yaml:"interval"` // e.g. "500ms"
}

// StoreConfig selects and configures the persistent store.
type StoreConfig struct {
	Type           StoreType       `yaml:"type"`
	ConnectTimeout string          `yaml:"connectTimeout,omitempty"`
	HealthInterval string          `yaml:"healthInterval,omitempty"`
	Breaker        BreakerConfig   `yaml:"breaker"`
	Postgres       *PostgresConfig `yaml:"postgres,omitempty"`
	Redis          *RedisConfig    `yaml:"redis,omitempty"`
	DynamoDB       *DynamoDBConfig `yaml:"dynamodb,omitempty"`
}

// BreakerConfig configures the store circuit breaker.
type BreakerConfig struct {
	FailThreshold uint32 `yaml:"failThreshold,omitempty"`
	Cooldown      string `yaml:"cooldown,omitempty"`
}

// PostgresConfig holds Postgres connection settings.
type PostgresConfig struct {
	DSN         string `yaml:"dsn,omitempty"`
	DSNSecretID string `yaml:"dsnSecretId,omitempty" json:"dsnSecretId,omitempty"`
	MaxConns    int32  `yaml:"maxConns,omitempty"`
}

// RedisConfig holds Redis/Valkey connection settings.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password,omitempty"`
	DB        int    `yaml:"db,omitempty"`
	KeyPrefix string `yaml:"keyPrefix,omitempty"`
}

// DynamoDBConfig holds DynamoDB connection and table settings.
type DynamoDBConfig struct {
	TableName   string `yaml:"tableName" json:"tableName"`
	Region      string `yaml:"region" json:"region"`
	Endpoint    string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	CreateTable bool   `yaml:"createTable,omitempty" json:"createTable,omitempty"`
}

// QueryConfig configures the query resolver.
type QueryConfig struct {
	DefaultHorizon int `yaml:"defaultHorizon,omitempty"`
}

// ValidationConfig bounds request parameters.
type ValidationConfig struct {
	MinHorizon int `yaml:"minHorizon,omitempty"`
	MaxHorizon int `yaml:"maxHorizon,omitempty"`
}

// IngestConfig decides who owns ingestion.
type IngestConfig struct {
	Mode IngestMode `yaml:"mode,omitempty"`
}

// NotifyConfig configures one notification sink.
type NotifyConfig struct {
	Type     NotifyType `yaml:"type"`
	URL      string     `yaml:"url,omitempty"`
	Path     string     `yaml:"path,omitempty"`
	EventBus string     `yaml:"eventBus,omitempty"`
	Source   string     `yaml:"source,omitempty"`
	LogGroup string     `yaml:"logGroup,omitempty"`
	Region   string     `yaml:"region,omitempty"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlpEndpoint,omitempty"`
	Insecure     bool   `yaml:"insecure,omitempty"`
	ServiceName  string `yaml:"serviceName,omitempty"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"` // text | json
}
