package supervisor

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zerepy/zerepyctl/internal/config"
	"github.com/zerepy/zerepyctl/internal/errors"
	"github.com/zerepy/zerepyctl/internal/logging"
	"github.com/zerepy/zerepyctl/internal/runner"
	"github.com/zerepy/zerepyctl/internal/testutil"
)

// shellApp returns a spec that runs body with /bin/sh in place of the
// application entrypoint.
func shellApp(t *testing.T, body string) AppSpec {
	t.Helper()
	testutil.SkipIfNoShell(t)
	dir := t.TempDir()
	script := testutil.WriteExecutable(t, dir, "main.sh", body)
	return NewAppSpec("/bin/sh", script, dir, "127.0.0.1", 8000)
}

func testOptions(t *testing.T) Options {
	return Options{
		StartupGrace:     200 * time.Millisecond,
		StopTimeout:      2 * time.Second,
		OutputBufferSize: 4096,
		LogFile:          filepath.Join(t.TempDir(), "server.log"),
	}
}

func TestAppSpec_Command(t *testing.T) {
	spec := NewAppSpec("/work/ZerePy/venv/bin/python", "main.py", "/work/ZerePy", "0.0.0.0", 8000)
	cmd := spec.Command()

	require.Equal(t, "/work/ZerePy/venv/bin/python", cmd.Name)
	require.Equal(t, []string{"main.py", "--server", "--host", "0.0.0.0", "--port", "8000"}, cmd.Args)
	require.Equal(t, "/work/ZerePy", cmd.Dir)
	require.Equal(t, "/work/ZerePy/venv/bin/python main.py --server --host 0.0.0.0 --port 8000", spec.String())
}

func TestAppSpec_LocalURL(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"0.0.0.0", "http://127.0.0.1:8000/"},
		{"", "http://127.0.0.1:8000/"},
		{"localhost", "http://localhost:8000/"},
		{"::1", "http://[::1]:8000/"},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			require.Equal(t, tt.want, NewAppSpec("python", "main.py", ".", tt.host, 8000).LocalURL())
		})
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Serve.LogFile = "/tmp/zerepy-server.log"
	opts := OptionsFromConfig(&cfg.Serve)

	require.Equal(t, 5*time.Second, opts.StartupGrace)
	require.Equal(t, 5*time.Second, opts.StopTimeout)
	require.Zero(t, opts.HealthTimeout)
	require.Equal(t, 65536, opts.OutputBufferSize)
	require.Equal(t, "/tmp/zerepy-server.log", opts.LogFile)
	require.Equal(t, 10, opts.LogRotation.MaxSizeMB)
	require.Equal(t, 3, opts.LogRotation.MaxBackups)
	require.Equal(t, os.Stdout, opts.Stdout)
}

func TestTail(t *testing.T) {
	tail := NewTail(8)
	_, _ = tail.Write([]byte("abc"))
	_, _ = tail.Write([]byte("def"))
	require.Equal(t, "abcdef", tail.String())
	require.False(t, tail.Truncated())

	_, _ = tail.Write([]byte("ghij"))
	require.Equal(t, "cdefghij", tail.String())
	require.True(t, tail.Truncated())

	_, _ = tail.Write([]byte("0123456789"))
	require.Equal(t, "23456789", tail.String())
}

func TestTail_ZeroLimit(t *testing.T) {
	tail := NewTail(0)
	n, err := tail.Write([]byte("dropped"))
	require.NoError(t, err)
	require.Equal(t, 7, n)
	require.Empty(t, tail.String())
	require.True(t, tail.Truncated())
}

func TestStart_EarlyExitIsStartupError(t *testing.T) {
	spec := shellApp(t, `echo "ModuleNotFoundError: No module named 'fastapi'" >&2; exit 3`)
	opts := testOptions(t)
	sup := New(runner.New(), opts, nil)

	h, err := sup.Start(context.Background(), spec)
	require.Nil(t, h)
	require.Error(t, err)
	require.True(t, errors.IsFatal(err))
	require.ErrorIs(t, err, errors.ErrProcessExited)

	var startErr *errors.StartupError
	require.ErrorAs(t, err, &startErr)
	require.Equal(t, 3, startErr.ExitCode)
	require.Contains(t, startErr.Output, "No module named 'fastapi'")
	require.Equal(t, spec.String(), startErr.Command)

	logged, readErr := os.ReadFile(opts.LogFile)
	require.NoError(t, readErr)
	require.Contains(t, string(logged), "No module named 'fastapi'")
}

func TestStart_RotatesServerLog(t *testing.T) {
	spec := shellApp(t, `echo "second run"; exit 1`)
	opts := testOptions(t)
	opts.LogRotation = logging.RotationConfig{MaxSizeMB: 1, MaxBackups: 1}

	previous := strings.Repeat("x", 1<<20)
	require.NoError(t, os.WriteFile(opts.LogFile, []byte(previous), 0644))

	_, err := New(runner.New(), opts, nil).Start(context.Background(), spec)
	require.ErrorIs(t, err, errors.ErrProcessExited)

	backup, err := os.ReadFile(opts.LogFile + ".1")
	require.NoError(t, err)
	require.Equal(t, previous, string(backup))

	current, err := os.ReadFile(opts.LogFile)
	require.NoError(t, err)
	require.Contains(t, string(current), "second run")
	require.Less(t, len(current), 1<<20)
}

func TestStart_AliveThenStop(t *testing.T) {
	spec := shellApp(t, `echo "Uvicorn running"; sleep 30`)
	sup := New(runner.New(), testOptions(t), nil)

	h, err := sup.Start(context.Background(), spec)
	require.NoError(t, err)
	require.True(t, sup.IsAlive(h))
	require.Equal(t, StateRunning, h.State())
	require.Positive(t, h.PID())
	require.Contains(t, h.Output(), "Uvicorn running")

	start := time.Now()
	require.NoError(t, sup.Stop(h))
	require.Less(t, time.Since(start), 2*time.Second, "SIGTERM should stop the group before escalation")
	require.False(t, sup.IsAlive(h))
	require.Equal(t, StateExited, h.State())

	// A second stop is a non-fatal termination error
	err = sup.Stop(h)
	require.ErrorIs(t, err, errors.ErrNotRunning)
	require.False(t, errors.IsFatal(err))
}

func TestStop_EscalatesToKill(t *testing.T) {
	spec := shellApp(t, `trap '' TERM; while true; do sleep 1; done`)
	opts := testOptions(t)
	opts.StopTimeout = 300 * time.Millisecond
	sup := New(runner.New(), opts, nil)

	h, err := sup.Start(context.Background(), spec)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, sup.Stop(h))
	require.GreaterOrEqual(t, time.Since(start), opts.StopTimeout)
	require.False(t, sup.IsAlive(h))
	require.Equal(t, -1, h.ExitCode())
}

func TestStart_LaunchFailure(t *testing.T) {
	spec := NewAppSpec(filepath.Join(t.TempDir(), "missing-python"), "main.py", t.TempDir(), "127.0.0.1", 8000)
	sup := New(runner.New(), testOptions(t), nil)

	h, err := sup.Start(context.Background(), spec)
	require.Nil(t, h)
	require.ErrorIs(t, err, errors.ErrLaunchFailed)
	require.True(t, errors.IsFatal(err))
}

func TestStart_CanceledDuringGrace(t *testing.T) {
	spec := shellApp(t, `sleep 30`)
	opts := testOptions(t)
	opts.StartupGrace = 10 * time.Second
	sup := New(runner.New(), opts, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	h, err := sup.Start(ctx, spec)
	require.Nil(t, h)
	require.ErrorIs(t, err, errors.ErrCanceled)
	require.False(t, errors.IsFatal(err))
}

func TestStart_WithoutLogFile(t *testing.T) {
	spec := shellApp(t, `echo hello; sleep 30`)
	opts := testOptions(t)
	opts.LogFile = ""
	sup := New(runner.New(), opts, nil)

	h, err := sup.Start(context.Background(), spec)
	require.NoError(t, err)
	defer func() { _ = sup.Stop(h) }()
	require.Empty(t, h.LogPath())
	require.Contains(t, h.Output(), "hello")
}

func TestStart_HealthProbeFailureStopsProcess(t *testing.T) {
	spec := shellApp(t, `sleep 30`)
	// Nothing listens on the port
	spec.Port = freePort(t)
	opts := testOptions(t)
	opts.HealthTimeout = 300 * time.Millisecond
	sup := New(runner.New(), opts, nil)

	h, err := sup.Start(context.Background(), spec)
	require.Nil(t, h)
	var startErr *errors.StartupError
	require.ErrorAs(t, err, &startErr)
}

func TestWait(t *testing.T) {
	spec := shellApp(t, `sleep 0.5; exit 7`)
	sup := New(runner.New(), testOptions(t), nil)

	h, err := sup.Start(context.Background(), spec)
	require.NoError(t, err)

	code, err := sup.Wait(context.Background(), h)
	require.NoError(t, err)
	require.Equal(t, 7, code)
}

func TestWaitHealthy(t *testing.T) {
	var path atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"running","agent":null}`))
	}))
	defer srv.Close()

	require.NoError(t, WaitHealthy(context.Background(), srv.URL+"/", time.Second))
	require.Equal(t, "/", path.Load())
}

func TestWaitHealthy_EventuallyReady(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, WaitHealthy(context.Background(), srv.URL+"/", 3*time.Second))
	require.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestWaitHealthy_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := WaitHealthy(context.Background(), srv.URL+"/", 300*time.Millisecond)
	require.Error(t, err)
	require.Contains(t, err.Error(), "500")
}

func TestRunDirect_PropagatesExitCode(t *testing.T) {
	spec := NewAppSpec("/work/ZerePy/venv/bin/python", "main.py", "/work/ZerePy", "0.0.0.0", 8000)
	fake := new(testutil.FakeRunner).Fail(spec.String(), 4, "")
	sup := New(fake, Options{}, nil)

	code, err := sup.RunDirect(context.Background(), spec)
	require.NoError(t, err)
	require.Equal(t, 4, code)

	cmd := fake.Commands()[0]
	require.Equal(t, "/work/ZerePy", cmd.Dir)
	require.True(t, cmd.Attached())
}

func TestRunDirect_CleanExit(t *testing.T) {
	spec := NewAppSpec("python", "main.py", ".", "0.0.0.0", 8000)
	sup := New(new(testutil.FakeRunner), Options{}, nil)

	code, err := sup.RunDirect(context.Background(), spec)
	require.NoError(t, err)
	require.Zero(t, code)
}

func TestRunDirect_LaunchFailure(t *testing.T) {
	spec := NewAppSpec("python", "main.py", ".", "0.0.0.0", 8000)
	fake := new(testutil.FakeRunner).On("python", runner.Result{ExitCode: -1}, exec.ErrNotFound)
	sup := New(fake, Options{}, nil)

	code, err := sup.RunDirect(context.Background(), spec)
	require.Equal(t, 1, code)
	require.ErrorIs(t, err, errors.ErrLaunchFailed)
}

func TestRunDirect_RealProcess(t *testing.T) {
	spec := shellApp(t, `echo "serving on $3:$5"; exit 2`)
	var out strings.Builder
	sup := New(runner.New(), Options{Stdout: &out, Stderr: &out}, nil)

	code, err := sup.RunDirect(context.Background(), spec)
	require.NoError(t, err)
	require.Equal(t, 2, code)
	require.Contains(t, out.String(), "serving on 127.0.0.1:8000")
}

func TestState_String(t *testing.T) {
	require.Equal(t, "starting", StateStarting.String())
	require.Equal(t, "running", StateRunning.String())
	require.Equal(t, "exited", StateExited.String())
	require.Equal(t, "unknown", State(42).String())
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}
