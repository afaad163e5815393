// Package runner spawns the external forecasting job and captures its output.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/dwsmith1983/forecastd/pkg/types"
)

// DefaultWaitDelay bounds how long Run waits for output after the job exits,
// e.g. when a background child it left behind still holds stdout open.
const DefaultWaitDelay = 5 * time.Second

// Config controls how the job is invoked.
type Config struct {
	Command string
	Args    []string
	WorkDir string
	Env     map[string]string
	Timeout time.Duration // zero means no timeout

	// WaitDelay overrides DefaultWaitDelay when positive.
	WaitDelay time.Duration

	// MirrorStdout and MirrorStderr receive a copy of each output chunk. Nil disables mirroring.
	MirrorStdout io.Writer
	MirrorStderr io.Writer
}

// Outcome is the result of one job invocation. A non-zero exit is a normal outcome.
type Outcome struct {
	ExitCode  int
	Log       string
	Cancelled bool
	TimedOut  bool
	Duration  time.Duration
}

// Success reports whether the job exited cleanly.
func (o *Outcome) Success() bool {
	return o.ExitCode == 0 && !o.Cancelled && !o.TimedOut
}

// Runner executes the forecasting job. It holds no per-run state and is safe for concurrent use.
type Runner struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Runner.
func New(cfg Config) *Runner {
	return &Runner{cfg: cfg, logger: slog.Default()}
}

// SetLogger replaces the runner's logger.
func (r *Runner) SetLogger(l *slog.Logger) { r.logger = l }

// Argv returns the arguments passed to the job for req, after the configured
// command and base arguments. req must already be normalized.
func (r *Runner) Argv(req types.RunRequest) []string {
	argv := make([]string, 0, len(r.cfg.Args)+7)
	argv = append(argv, r.cfg.Args...)
	argv = append(argv,
		"--ticker", req.Symbol,
		"--period", req.Period,
		"--horizon", strconv.Itoa(req.Horizon),
	)
	if req.Wants(types.ModelLSTM) {
		argv = append(argv, "--use_lstm")
	}
	return argv
}

// Run spawns the job for req and blocks until it exits or ctx is done.
// Cancelling ctx kills the job's whole process group.
func (r *Runner) Run(ctx context.Context, req types.RunRequest) (*Outcome, error) {
	jobCtx := ctx
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(jobCtx, r.cfg.Command, r.Argv(req)...)
	cmd.Dir = r.cfg.WorkDir
	cmd.Env = r.environ()
	cmd.WaitDelay = r.waitDelay()
	configureCommandProcess(cmd)
	cmd.Cancel = func() error {
		terminateCommandProcess(cmd)
		return nil
	}

	var log logBuffer
	cmd.Stdout = &streamWriter{log: &log, mirror: r.cfg.MirrorStdout}
	cmd.Stderr = &streamWriter{log: &log, mirror: r.cfg.MirrorStderr}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, r.spawnError(req, err)
	}
	r.logger.Info("job started", "symbol", req.Symbol, "horizon", req.Horizon,
		"pid", cmd.Process.Pid, "command", r.cfg.Command)

	waitErr := cmd.Wait()
	orphaned := errors.Is(waitErr, exec.ErrWaitDelay)
	if orphaned {
		waitErr = nil
	}

	out := &Outcome{Log: log.String(), Duration: time.Since(start)}
	switch {
	case ctx.Err() != nil:
		out.Cancelled = true
		out.ExitCode = -1
	case jobCtx.Err() != nil:
		out.TimedOut = true
		out.ExitCode = -1
	case waitErr == nil:
		out.ExitCode = 0
	default:
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, &types.Error{Kind: types.KindProcess, Op: "runner.wait", Symbol: req.Symbol,
				Horizon: req.Horizon, Err: waitErr}
		}
		out.ExitCode = exitErr.ExitCode()
	}
	if orphaned && !out.Cancelled && !out.TimedOut {
		r.logger.Warn("job exited but its output stayed open; capture truncated",
			"symbol", req.Symbol, "waitDelay", cmd.WaitDelay.String())
	}

	r.logger.Info("job finished", "symbol", req.Symbol, "horizon", req.Horizon,
		"exitCode", out.ExitCode, "cancelled", out.Cancelled, "timedOut", out.TimedOut,
		"duration", out.Duration.String())
	return out, nil
}

func (r *Runner) spawnError(req types.RunRequest, err error) error {
	return &types.Error{Kind: types.KindProcess, Op: "runner.start", Symbol: req.Symbol, Horizon: req.Horizon,
		Err: fmt.Errorf("spawn %s: %w", r.cfg.Command, err)}
}

func (r *Runner) waitDelay() time.Duration {
	if r.cfg.WaitDelay > 0 {
		return r.cfg.WaitDelay
	}
	return DefaultWaitDelay
}

func (r *Runner) environ() []string {
	env := os.Environ()
	keys := make([]string, 0, len(r.cfg.Env))
	for k := range r.cfg.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+r.cfg.Env[k])
	}
	return env
}

// logBuffer is the combined job log. Writes from both streams are appended in
// arrival order; each stream stays internally ordered.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (l *logBuffer) write(p []byte) {
	l.mu.Lock()
	l.buf.Write(p)
	l.mu.Unlock()
}

func (l *logBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

// streamWriter appends one stream's output to the shared log and copies it to
// an optional mirror.
type streamWriter struct {
	log    *logBuffer
	mirror io.Writer
}

func (w *streamWriter) Write(p []byte) (int, error) {
	w.log.write(p)
	if w.mirror != nil {
		_, _ = w.mirror.Write(p)
	}
	return len(p), nil
}
