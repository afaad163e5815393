package runner

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dwsmith1983/forecastd/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func job(name string) Config {
	return Config{Command: "/bin/sh", Args: []string{filepath.Join("testdata", "jobs", name)}}
}

var pltr = types.RunRequest{Symbol: "PLTR", Period: "6mo", Horizon: 7, Models: []types.Model{types.ModelEnsemble}}

func TestArgv(t *testing.T) {
	r := New(Config{Command: "python3", Args: []string{"src/main.py"}})

	assert.Equal(t,
		[]string{"src/main.py", "--ticker", "PLTR", "--period", "6mo", "--horizon", "7"},
		r.Argv(pltr))

	withLSTM := pltr
	withLSTM.Models = []types.Model{types.ModelEnsemble, types.ModelLSTM}
	assert.Equal(t,
		[]string{"src/main.py", "--ticker", "PLTR", "--period", "6mo", "--horizon", "7", "--use_lstm"},
		r.Argv(withLSTM))
}

func TestArgv_SymbolIsOneArgument(t *testing.T) {
	r := New(Config{Command: "python3"})
	req := pltr
	req.Symbol = "BRK.B"
	argv := r.Argv(req)
	assert.Equal(t, "BRK.B", argv[1])
	assert.Len(t, argv, 6)
}

func TestRun_Success(t *testing.T) {
	r := New(job("echo_args.sh"))

	out, err := r.Run(context.Background(), pltr)
	require.NoError(t, err)
	assert.True(t, out.Success())
	assert.Equal(t, 0, out.ExitCode)
	assert.Contains(t, out.Log, "args: --ticker PLTR --period 6mo --horizon 7")
	assert.Contains(t, out.Log, "warming up")
	assert.NotContains(t, out.Log, "--use_lstm")

	// stdout stays internally ordered.
	assert.Less(t, strings.Index(out.Log, "args:"), strings.Index(out.Log, "done"))
}

func TestRun_NonZeroExitIsOutcome(t *testing.T) {
	r := New(job("fail.sh"))

	out, err := r.Run(context.Background(), pltr)
	require.NoError(t, err)
	assert.False(t, out.Success())
	assert.Equal(t, 3, out.ExitCode)
	assert.False(t, out.Cancelled)
	assert.Contains(t, out.Log, "loading data")
	assert.Contains(t, out.Log, "boom: model diverged")
}

func TestRun_SpawnFailure(t *testing.T) {
	r := New(Config{Command: filepath.Join("testdata", "does-not-exist")})

	out, err := r.Run(context.Background(), pltr)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Equal(t, types.KindProcess, types.KindOf(err))
	assert.Contains(t, err.Error(), "symbol=PLTR")
}

func TestRun_CancelKillsProcessGroup(t *testing.T) {
	r := New(job("hang.sh"))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	out, err := r.Run(ctx, pltr)
	require.NoError(t, err)
	assert.True(t, out.Cancelled)
	assert.Equal(t, -1, out.ExitCode)
	assert.Contains(t, out.Log, "started")
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestRun_Timeout(t *testing.T) {
	cfg := job("hang.sh")
	cfg.Timeout = 200 * time.Millisecond
	r := New(cfg)

	out, err := r.Run(context.Background(), pltr)
	require.NoError(t, err)
	assert.True(t, out.TimedOut)
	assert.False(t, out.Cancelled)
	assert.Equal(t, -1, out.ExitCode)
}

func TestRun_EnvAndWorkDir(t *testing.T) {
	dir := t.TempDir()
	script, err := filepath.Abs(filepath.Join("testdata", "jobs", "env.sh"))
	require.NoError(t, err)

	r := New(Config{
		Command: "/bin/sh",
		Args:    []string{script},
		WorkDir: dir,
		Env:     map[string]string{"FORECAST_MODE": "test"},
	})
	out, err := r.Run(context.Background(), pltr)
	require.NoError(t, err)
	assert.Contains(t, out.Log, "mode=test")
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Contains(t, out.Log, resolved)
}

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestRun_MirrorsOutput(t *testing.T) {
	var stdout, stderr syncBuffer
	cfg := job("fail.sh")
	cfg.MirrorStdout = &stdout
	cfg.MirrorStderr = &stderr

	_, err := New(cfg).Run(context.Background(), pltr)
	require.NoError(t, err)
	assert.Equal(t, "loading data\n", stdout.String())
	assert.Equal(t, "boom: model diverged\n", stderr.String())
}

func TestRun_ConcurrentRunsIndependent(t *testing.T) {
	r := New(job("echo_args.sh"))

	var wg sync.WaitGroup
	logs := make([]string, 4)
	for i := range logs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := pltr
			req.Horizon = i + 1
			out, err := r.Run(context.Background(), req)
			if assert.NoError(t, err) {
				logs[i] = out.Log
			}
		}(i)
	}
	wg.Wait()
	for i, l := range logs {
		assert.Contains(t, l, "--horizon "+string(rune('1'+i)))
	}
}

func TestRun_BackgroundChildDoesNotBlock(t *testing.T) {
	cfg := job("background.sh")
	cfg.WaitDelay = 200 * time.Millisecond
	r := New(cfg)

	start := time.Now()
	out, err := r.Run(context.Background(), pltr)
	require.NoError(t, err)
	assert.True(t, out.Success())
	assert.Equal(t, 0, out.ExitCode)
	assert.Contains(t, out.Log, "done")
	assert.Less(t, time.Since(start), 2*time.Second)
}
