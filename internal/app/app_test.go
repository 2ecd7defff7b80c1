package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/dsnbridge/internal/audio"
	"github.com/rbright/dsnbridge/internal/config"
	"github.com/rbright/dsnbridge/internal/doctor"
	"github.com/rbright/dsnbridge/internal/grammar"
	"github.com/rbright/dsnbridge/internal/ipc"
	"github.com/rbright/dsnbridge/internal/recognizer"
	"github.com/rbright/dsnbridge/internal/riva"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// scriptedEngine recognizes phrase as soon as a grammar set containing it begins.
type scriptedEngine struct {
	phrase string

	mu      sync.Mutex
	entries []*grammar.Entry
}

func (e *scriptedEngine) Load(entries []*grammar.Entry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = entries
	return nil
}

func (e *scriptedEngine) Begin(cb recognizer.Callbacks) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, entry := range e.entries {
		if entry.Phrase == e.phrase {
			go cb.OnResult(recognizer.Result{Text: e.phrase, Confidence: 0.9, Entry: entry})
		}
	}
	return nil
}

func (e *scriptedEngine) Cancel() error { return nil }

type runnerPaths struct {
	configPath string
	runtimeDir string
}

const bridgeINI = `[Watch]
configReload=0
batchFiles=
`

func setupRunnerEnv(t *testing.T) runnerPaths {
	t.Helper()

	runtimeDir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)

	configPath := filepath.Join(t.TempDir(), "dsnbridge.ini")
	require.NoError(t, os.WriteFile(configPath, []byte(bridgeINI), 0o600))

	return runnerPaths{configPath: configPath, runtimeDir: runtimeDir}
}

func startIPCServerForRunnerTest(t *testing.T, socketPath string, handler func(context.Context, ipc.Request) ipc.Response) func() {
	t.Helper()

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ipc.Serve(ctx, listener, ipc.HandlerFunc(handler), nil)
	}()

	return func() {
		cancel()
		require.NoError(t, <-done)
	}
}

func TestExecuteHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"--help"}, strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "Usage:")
	require.Empty(t, stderr.String())
}

func TestExecuteVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"version"}, strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "dsnbridge")
	require.Empty(t, stderr.String())
}

func TestExecuteUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"definitely-not-a-command"}, strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, 2, exitCode)
	require.Contains(t, stderr.String(), "unknown command")
}

func TestRunBridgesStdioAndServesControlSocket(t *testing.T) {
	paths := setupRunnerEnv(t)

	stdinR, stdinW := io.Pipe()
	stdout := &syncBuffer{}
	var stderr bytes.Buffer
	var engines atomic.Int32

	runner := Runner{
		Stdin:  stdinR,
		Stdout: stdout,
		Stderr: &stderr,
		Logger: slog.New(slog.DiscardHandler),
		NewEngine: func(config.Config, *slog.Logger) recognizer.Engine {
			engines.Add(1)
			return &scriptedEngine{phrase: "hello there"}
		},
		NewProbe: func(config.Config) recognizer.DeviceProbe {
			return recognizer.ProbeFunc(func(context.Context) bool { return true })
		},
	}

	exit := make(chan int, 1)
	go func() {
		exit <- runner.Execute(context.Background(), []string{"--config", paths.configPath})
	}()

	_, err := io.WriteString(stdinW, "START_DIALOGUE|5|hello there|go away\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return stdout.String() == "DIALOGUE|5|0\n" }, 2*time.Second, 5*time.Millisecond)

	var status bytes.Buffer
	client := Runner{Stdout: &status, Stderr: io.Discard}
	require.Equal(t, 0, client.Execute(context.Background(), []string{"status"}))
	require.Contains(t, status.String(), "mode: dialogue (id 5)")
	require.Contains(t, status.String(), "recognizer: recognizing")
	require.Contains(t, status.String(), "dsnbridge.protocol.lines")

	var reload bytes.Buffer
	client.Stdout = &reload
	require.Equal(t, 0, client.Execute(context.Background(), []string{"reload"}))
	require.Contains(t, reload.String(), "reload requested")
	require.Eventually(t, func() bool { return engines.Load() == 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, stdinW.Close())
	select {
	case code := <-exit:
		require.Equal(t, 0, code, stderr.String())
	case <-time.After(3 * time.Second):
		t.Fatal("bridge did not exit after stdin closed")
	}

	_, statErr := os.Stat(filepath.Join(paths.runtimeDir, "dsnbridge.sock"))
	require.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestRunRefusesSecondBridge(t *testing.T) {
	paths := setupRunnerEnv(t)
	shutdown := startIPCServerForRunnerTest(t, filepath.Join(paths.runtimeDir, "dsnbridge.sock"), func(context.Context, ipc.Request) ipc.Response {
		return ipc.Response{OK: true, Recognizer: "recognizing"}
	})
	defer shutdown()

	var stdout, stderr bytes.Buffer
	runner := Runner{
		Stdin:     strings.NewReader(""),
		Stdout:    &stdout,
		Stderr:    &stderr,
		Logger:    slog.New(slog.DiscardHandler),
		NewEngine: func(config.Config, *slog.Logger) recognizer.Engine { return &scriptedEngine{} },
	}
	require.Equal(t, 1, runner.Execute(context.Background(), []string{"--config", paths.configPath, "run"}))
	require.Contains(t, stderr.String(), "already running")
	require.Empty(t, stdout.String())
}

func TestRunExitsZeroOnImmediateEOF(t *testing.T) {
	paths := setupRunnerEnv(t)

	var stdout, stderr bytes.Buffer
	runner := Runner{
		Stdin:     strings.NewReader("STOP_DIALOGUE\n"),
		Stdout:    &stdout,
		Stderr:    &stderr,
		NewEngine: func(config.Config, *slog.Logger) recognizer.Engine { return &scriptedEngine{} },
	}
	require.Equal(t, 0, runner.Execute(context.Background(), []string{"--config", paths.configPath}), stderr.String())
	require.Empty(t, stdout.String())
}

func TestStatusWhenNotRunning(t *testing.T) {
	setupRunnerEnv(t)

	var stdout bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: io.Discard}
	require.Equal(t, 0, runner.Execute(context.Background(), []string{"status"}))
	require.Equal(t, "not running\n", stdout.String())
}

func TestReloadWhenNotRunning(t *testing.T) {
	setupRunnerEnv(t)

	var stderr bytes.Buffer
	runner := Runner{Stdout: io.Discard, Stderr: &stderr}
	require.Equal(t, 1, runner.Execute(context.Background(), []string{"reload"}))
	require.Contains(t, stderr.String(), "no running dsnbridge")
}

func TestStatusSurfacesServerError(t *testing.T) {
	paths := setupRunnerEnv(t)
	shutdown := startIPCServerForRunnerTest(t, filepath.Join(paths.runtimeDir, "dsnbridge.sock"), func(_ context.Context, req ipc.Request) ipc.Response {
		if req.Command == ipc.CommandStatus {
			return ipc.Response{OK: false, Error: "bridge is starting"}
		}
		return ipc.Response{OK: true}
	})
	defer shutdown()

	var stderr bytes.Buffer
	runner := Runner{Stdout: io.Discard, Stderr: &stderr}
	require.Equal(t, 1, runner.Execute(context.Background(), []string{"status"}))
	require.Contains(t, stderr.String(), "bridge is starting")
}

func TestDoctorCommand(t *testing.T) {
	paths := setupRunnerEnv(t)

	probes := doctor.Probes{
		SelectDevice: func(context.Context, string, string) (audio.Selection, error) {
			return audio.Selection{Device: audio.Device{ID: "mic"}}, nil
		},
		RivaReady: func(context.Context, riva.StreamConfig) error { return nil },
	}

	var stdout bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: io.Discard, DoctorProbes: probes}
	require.Equal(t, 0, runner.Execute(context.Background(), []string{"--config", paths.configPath, "doctor"}))
	require.Contains(t, stdout.String(), "[OK] riva.ready")

	probes.RivaReady = func(context.Context, riva.StreamConfig) error { return errors.New("unavailable") }
	stdout.Reset()
	var stderr bytes.Buffer
	runner = Runner{Stdout: &stdout, Stderr: &stderr, DoctorProbes: probes}
	require.Equal(t, 1, runner.Execute(context.Background(), []string{"--config", paths.configPath, "doctor"}))
	require.Contains(t, stdout.String(), "[FAIL] riva.ready: unavailable")
	require.Contains(t, stderr.String(), "doctor checks failed")
}

func TestDevicesCommand(t *testing.T) {
	var stdout bytes.Buffer
	runner := Runner{
		Stdout: &stdout,
		Stderr: io.Discard,
		ListDevices: func(context.Context) ([]audio.Device, error) {
			return []audio.Device{
				{ID: "mic", Description: "USB Mic", State: "running", Available: true, Default: true},
				{ID: "monitor", Description: "Monitor", State: "idle", Muted: true},
			}, nil
		},
	}
	require.Equal(t, 0, runner.Execute(context.Background(), []string{"devices"}))
	require.Contains(t, stdout.String(), `* id=mic | description="USB Mic" | state=running | available=yes | muted=no`)
	require.Contains(t, stdout.String(), `  id=monitor | description="Monitor" | state=idle | available=no | muted=yes`)

	runner.ListDevices = func(context.Context) ([]audio.Device, error) { return nil, nil }
	require.Equal(t, 1, runner.Execute(context.Background(), []string{"devices"}))
}

func TestHandleBeforeFirstLifetime(t *testing.T) {
	b := &bridge{runID: "run-1"}
	resp := b.Handle(context.Background(), ipc.Request{Command: ipc.CommandStatus})
	require.False(t, resp.OK)
	require.Equal(t, "bridge is starting", resp.Error)
	require.Equal(t, "run-1", resp.RunID)
}
