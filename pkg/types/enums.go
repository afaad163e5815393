// Package types defines the public domain types for the forecastd ingestion service.
package types

// Model identifies the forecasting model that produced a series.
type Model string

// Model values enumerate the models the external job can compute.
const (
	ModelEnsemble Model = "ensemble"
	ModelLSTM     Model = "lstm"
	ModelXGB      Model = "xgb"
	ModelSARIMAX  Model = "sarimax"
)

// DefaultModel is used when a request does not name a model.
const DefaultModel = ModelEnsemble

// KnownModels is the validated model set. Order is the reporting order.
var KnownModels = []Model{ModelEnsemble, ModelLSTM, ModelXGB, ModelSARIMAX}

// Valid reports whether m is a known model. Matching is case-sensitive.
func (m Model) Valid() bool {
	for _, k := range KnownModels {
		if m == k {
			return true
		}
	}
	return false
}

// RunStatus represents the lifecycle state of a forecast run.
type RunStatus string

// RunStatus values represent the lifecycle states of a forecast run.
const (
	RunPending   RunStatus = "PENDING"
	RunRunning   RunStatus = "RUNNING"
	RunIngesting RunStatus = "INGESTING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
	RunCancelled RunStatus = "CANCELLED"
)

// StoreType selects the persistent store backend.
type StoreType string

// StoreType values enumerate the supported store backends.
const (
	StorePostgres StoreType = "postgres"
	StoreRedis    StoreType = "redis"
	StoreDynamoDB StoreType = "dynamodb"
	StoreMemory   StoreType = "memory"
)

// IngestMode decides who writes predictions after a clean job exit.
type IngestMode string

// IngestMode values.
const (
	// IngestCore: this service discovers artifacts and reconciles them.
	IngestCore IngestMode = "core"
	// IngestExternal: the job writes through the ingest API itself.
	IngestExternal IngestMode = "external"
)

// Source tells a caller where a query answer came from.
type Source string

// Source values.
const (
	SourceStore    Source = "store"
	SourceArtifact Source = "artifact"
)

// NotifyType defines the notification sink type.
type NotifyType string

// NotifyType values enumerate the supported notification sinks.
const (
	NotifyConsole        NotifyType = "console"
	NotifyWebhook        NotifyType = "webhook"
	NotifyFile           NotifyType = "file"
	NotifyEventBridge    NotifyType = "eventbridge"
	NotifyCloudWatchLogs NotifyType = "cloudwatchlogs"
)

// NotifyLevel is the severity of a notification.
type NotifyLevel string

// NotifyLevel values.
const (
	NotifyLevelInfo    NotifyLevel = "info"
	NotifyLevelWarning NotifyLevel = "warning"
	NotifyLevelError   NotifyLevel = "error"
)

// EventKind names a run lifecycle notification.
type EventKind string

// EventKind values.
const (
	EventRunStarted   EventKind = "run.started"
	EventRunCompleted EventKind = "run.completed"
	EventRunFailed    EventKind = "run.failed"
	EventRunCancelled EventKind = "run.cancelled"
	EventModelFailed  EventKind = "model.failed"
)
