// Package artifact locates and parses the result files written by the
// forecasting job. One file holds the forecast of one (symbol, model, horizon).
package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dwsmith1983/forecastd/pkg/types"
)

// Defaults for Config fields left zero.
const (
	DefaultDateColumn  = "date"
	DefaultValueColumn = "forecast_close"
	DefaultAttempts    = 6
	DefaultInterval    = 500 * time.Millisecond
)

// Key identifies one artifact.
type Key struct {
	Symbol  string
	Model   types.Model
	Horizon int
}

// Config controls where artifacts are searched and how they are read.
type Config struct {
	// Dirs are searched in order; the first directory holding the file wins.
	Dirs        []string
	DateColumn  string
	ValueColumn string
	Attempts    int
	Interval    time.Duration
}

// Reader finds and parses artifacts. It only reads the filesystem and is safe
// for concurrent use.
type Reader struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Reader, filling unset fields with defaults.
func New(cfg Config) *Reader {
	if cfg.DateColumn == "" {
		cfg.DateColumn = DefaultDateColumn
	}
	if cfg.ValueColumn == "" {
		cfg.ValueColumn = DefaultValueColumn
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Reader{cfg: cfg, logger: slog.Default()}
}

// SetLogger replaces the reader's logger.
func (r *Reader) SetLogger(l *slog.Logger) { r.logger = l }

// Dirs returns the configured search directories.
func (r *Reader) Dirs() []string { return r.cfg.Dirs }

// SafeFilePart replaces every character outside [A-Za-z0-9_-] with '_'.
func SafeFilePart(s string) string {
	return strings.Map(func(c rune) rune {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
			return c
		}
		return '_'
	}, s)
}

// FileName returns the artifact file name for k: <symbol>_<model>_<horizon>d.csv.
func FileName(k Key) string {
	return fmt.Sprintf("%s_%s_%dd.csv", SafeFilePart(k.Symbol), k.Model, k.Horizon)
}

// Find performs a single lookup of k across the search directories.
func (r *Reader) Find(k Key) (string, bool) {
	name := FileName(k)
	for _, dir := range r.cfg.Dirs {
		p := filepath.Join(dir, name)
		if st, err := os.Stat(p); err == nil && st.Mode().IsRegular() {
			return p, true
		}
	}
	return "", false
}

var errNotYet = errors.New("artifact not present yet")

// Locate retries Find at a constant interval until the artifact appears, the
// attempt budget is spent, or ctx is done.
func (r *Reader) Locate(ctx context.Context, k Key) (string, error) {
	var path string
	op := func() error {
		p, ok := r.Find(k)
		if !ok {
			return errNotYet
		}
		path = p
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.cfg.Interval), uint64(r.cfg.Attempts-1)),
		ctx,
	)
	notify := func(_ error, wait time.Duration) {
		r.logger.Debug("artifact not found, retrying", "file", FileName(k), "wait", wait.String())
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", &types.Error{Kind: types.KindArtifact, Op: "artifact.locate", Symbol: k.Symbol,
				Model: k.Model, Horizon: k.Horizon, Err: ctxErr}
		}
		return "", &types.Error{Kind: types.KindArtifact, Op: "artifact.locate", Symbol: k.Symbol,
			Model: k.Model, Horizon: k.Horizon,
			Err: fmt.Errorf("%w for %s horizon=%d in %s", types.ErrArtifactNotFound, k.Model, k.Horizon,
				strings.Join(r.cfg.Dirs, ", "))}
	}
	return path, nil
}
