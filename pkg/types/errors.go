package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies failures at the orchestrator and query boundaries.
type ErrorKind string

// ErrorKind values.
const (
	KindValidation ErrorKind = "validation"
	KindProcess    ErrorKind = "process"
	KindArtifact   ErrorKind = "artifact"
	KindStore      ErrorKind = "store"
	KindNotFound   ErrorKind = "not_found"
)

// Sentinel errors wrapped by *Error.
var (
	ErrArtifactNotFound  = errors.New("results file not found")
	ErrArtifactEmpty     = errors.New("results file is empty")
	ErrNoValidRows       = errors.New("results file has no valid rows")
	ErrArtifactMalformed = errors.New("results file is malformed")
	ErrNotFound          = errors.New("no predictions found")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrCancelled         = errors.New("run cancelled")
)

// Error is a classified failure carrying the request context that produced it.
type Error struct {
	Kind    ErrorKind
	Op      string
	Symbol  string
	Model   Model
	Horizon int
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else {
		b.WriteString(string(e.Kind))
	}
	var ctx []string
	if e.Symbol != "" {
		ctx = append(ctx, "symbol="+e.Symbol)
	}
	if e.Model != "" {
		ctx = append(ctx, "model="+string(e.Model))
	}
	if e.Horizon > 0 {
		ctx = append(ctx, fmt.Sprintf("horizon=%d", e.Horizon))
	}
	if len(ctx) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(ctx, " "))
		b.WriteString(")")
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds a classified error whose cause is formatted from format and args.
func Errorf(kind ErrorKind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of err. Unclassified errors are reported as KindStore
// only when they wrap ErrStoreUnavailable; anything else is treated as a process fault.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrStoreUnavailable):
		return KindStore
	case errors.Is(err, ErrArtifactNotFound), errors.Is(err, ErrArtifactEmpty),
		errors.Is(err, ErrNoValidRows), errors.Is(err, ErrArtifactMalformed):
		return KindArtifact
	}
	return KindProcess
}

// IsNotFound reports whether err is a query miss.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }
