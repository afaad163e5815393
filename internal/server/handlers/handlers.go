// Package handlers implements HTTP request handlers for the forecastd API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dwsmith1983/forecastd/internal/artifact"
	"github.com/dwsmith1983/forecastd/internal/gateway"
	"github.com/dwsmith1983/forecastd/internal/query"
	"github.com/dwsmith1983/forecastd/pkg/types"
)

// Runner triggers forecast runs.
type Runner interface {
	Run(ctx context.Context, req types.RunRequest) (*types.RunResult, error)
}

// Resolver answers prediction queries.
type Resolver interface {
	GetPredictions(ctx context.Context, q query.Query) (*query.Answer, error)
}

// Ingester writes validated rows for one (symbol, model).
type Ingester interface {
	Reconcile(ctx context.Context, symbol string, model types.Model, rows []types.Row) (types.UpsertResult, error)
}

// StoreStatus reports the store gateway's state.
type StoreStatus interface {
	Mode() gateway.Mode
	Backend() string
	Healthy() bool
}

// Deps are the components the handlers call into.
type Deps struct {
	Runs   Runner
	Query  Resolver
	Ingest Ingester
	Store  StoreStatus

	// DateColumn and ValueColumn name the CSV columns accepted by the ingest endpoint.
	DateColumn  string
	ValueColumn string
}

// Handlers contains all HTTP handler dependencies.
type Handlers struct {
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
}

// New creates a new Handlers instance.
func New(deps Deps) *Handlers {
	if deps.DateColumn == "" {
		deps.DateColumn = artifact.DefaultDateColumn
	}
	if deps.ValueColumn == "" {
		deps.ValueColumn = artifact.DefaultValueColumn
	}
	return &Handlers{deps: deps, logger: slog.Default(), now: time.Now}
}

// SetLogger overrides the default logger.
func (h *Handlers) SetLogger(l *slog.Logger) {
	if l != nil {
		h.logger = l
	}
}

// writeError logs the internal error and returns a sanitized JSON error to the client.
func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string, err error) {
	if err != nil {
		h.logger.Error(msg, "error", err, "status", status)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeKindError maps a classified error onto a status code and client message.
func (h *Handlers) writeKindError(w http.ResponseWriter, err error) {
	kind := types.KindOf(err)
	status := StatusFor(kind)
	msg := publicMessage(err)
	if status >= http.StatusInternalServerError {
		h.writeError(w, status, msg, err)
		return
	}
	h.logger.Debug(msg, "kind", kind, "error", err)
	h.writeError(w, status, msg, nil)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind types.ErrorKind) int {
	switch kind {
	case types.KindValidation:
		return http.StatusBadRequest
	case types.KindNotFound:
		return http.StatusNotFound
	case types.KindStore:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage strips the operation prefix and context suffix from classified
// errors. Store failures never expose backend details.
func publicMessage(err error) string {
	var e *types.Error
	if !errors.As(err, &e) || e.Err == nil {
		return err.Error()
	}
	if e.Kind == types.KindStore {
		return types.ErrStoreUnavailable.Error()
	}
	return e.Err.Error()
}
