package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rbright/dsnbridge/internal/config"
	"github.com/rbright/dsnbridge/internal/console"
	"github.com/rbright/dsnbridge/internal/ipc"
	"github.com/rbright/dsnbridge/internal/logging"
	"github.com/rbright/dsnbridge/internal/observe"
	"github.com/rbright/dsnbridge/internal/queue"
	"github.com/rbright/dsnbridge/internal/recognizer"
	"github.com/rbright/dsnbridge/internal/service"
	"github.com/rbright/dsnbridge/internal/version"
)

// bridge is one `dsnbridge run` process: a stdin reader that lives as long
// as the process, and a sequence of service lifetimes separated by reloads.
type bridge struct {
	runID     string
	logs      logging.Runtime
	logger    *slog.Logger
	metrics   *observe.Metrics
	provider  *observe.Provider
	inbound   *queue.Queue
	stdout    io.Writer
	newEngine func(config.Config, *slog.Logger) recognizer.Engine
	newProbe  func(config.Config) recognizer.DeviceProbe
	current   atomic.Pointer[service.Service]
}

func (r Runner) Run(ctx context.Context, configPath string) error {
	loaded, err := r.loadConfig(configPath)
	if err != nil {
		return err
	}

	logs, err := logging.New(loaded.Config.Logging.Level)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer func() { _ = logs.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logs.Logger
	}
	runID := uuid.NewString()
	logger = logger.With("run_id", runID)
	for _, w := range loaded.Warnings {
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}
	logger.Info("bridge start",
		"version", version.Short(),
		"config", loaded.Path,
		"config_found", loaded.Exists,
		"log", logs.Path,
	)

	provider := observe.InitProvider(version.Short())
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}()
	metrics, err := observe.NewMetrics(provider.MeterProvider())
	if err != nil {
		logger.Warn("metrics disabled", "error", err.Error())
		metrics = observe.Nop()
	}

	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return err
	}
	listener, err := ipc.Acquire(ctx, socketPath, probeTimeout, 8)
	if errors.Is(err, ipc.ErrAlreadyRunning) {
		logger.Error("another bridge owns the control socket", "socket", socketPath)
		return err
	}
	if err != nil {
		logger.Warn("control socket unavailable", "socket", socketPath, "error", err.Error())
		listener = nil
	} else {
		defer func() {
			_ = listener.Close()
			_ = os.Remove(socketPath)
		}()
	}

	b := &bridge{
		runID:     runID,
		logs:      logs,
		logger:    logger,
		metrics:   metrics,
		provider:  provider,
		inbound:   queue.New(),
		stdout:    r.Stdout,
		newEngine: r.engineFactory(),
		newProbe:  r.probeFactory(),
	}

	// The reader blocks in Read and cannot be cancelled. It closes inbound
	// on EOF or a read error, which ends the current lifetime.
	reader := console.NewReader(r.Stdin, b.inbound, logger.With("component", "console"))
	go func() {
		if err := reader.Run(); err != nil {
			logger.Error("stdin reader failed", "error", err.Error())
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServe := context.WithCancel(gctx)
	defer stopServe()
	if listener != nil {
		g.Go(func() error {
			return ipc.Serve(serveCtx, listener, b, logger.With("component", "ipc"))
		})
	}
	g.Go(func() error {
		defer stopServe()
		return b.lifetimes(gctx, loaded)
	})
	return g.Wait()
}

// lifetimes runs services until stdin ends or ctx is cancelled. A reload
// that fails to load keeps the previous configuration.
func (b *bridge) lifetimes(ctx context.Context, loaded config.Loaded) error {
	for {
		svc := service.New(service.Options{
			Loaded:  loaded,
			Engine:  b.newEngine(loaded.Config, b.logger),
			Probe:   b.newProbe(loaded.Config),
			Inbound: b.inbound,
			Output:  b.stdout,
			Logger:  b.logger,
			Metrics: b.metrics,
		})
		b.current.Store(svc)

		outcome, err := svc.Run(ctx)
		if err != nil {
			return fmt.Errorf("service lifetime: %w", err)
		}
		if outcome != service.OutcomeReload {
			b.logger.Info("bridge stopped", "reason", outcome.String())
			return nil
		}

		next, err := config.Load(loaded.Path)
		if err != nil {
			b.logger.Error("config reload failed; keeping current configuration", "config", loaded.Path, "error", err.Error())
			continue
		}
		for _, w := range next.Warnings {
			b.logger.Warn("config warning", "line", w.Line, "message", w.Message)
		}
		if err := b.logs.SetLevel(next.Config.Logging.Level); err != nil {
			b.logger.Warn("log level unchanged", "error", err.Error())
		}
		loaded = next
		b.logger.Info("configuration reloaded", "config", loaded.Path)
	}
}

// Handle serves control socket requests against the current lifetime.
func (b *bridge) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	svc := b.current.Load()
	if svc == nil {
		return ipc.Response{OK: false, RunID: b.runID, Error: "bridge is starting"}
	}

	switch req.Command {
	case ipc.CommandStatus:
		st := svc.Status()
		resp := ipc.Response{
			OK:         true,
			RunID:      b.runID,
			Recognizer: st.Recognizer,
			Mode:       st.Mode,
			DialogueID: st.DialogueID,
			Favorites:  st.Favorites,
			Commands:   st.Commands,
			Pending:    st.PendingOutput,
			ConfigPath: st.ConfigPath,
		}
		counters, err := b.provider.Counters(ctx)
		if err != nil {
			b.logger.Warn("read counters failed", "error", err.Error())
		}
		for _, c := range counters {
			resp.Counters = append(resp.Counters, c.String())
		}
		return resp
	case ipc.CommandReload:
		b.logger.Info("reload requested over control socket")
		svc.RequestReload()
		return ipc.Response{OK: true, RunID: b.runID, Message: "reload requested"}
	default:
		return ipc.Response{OK: false, RunID: b.runID, Error: fmt.Sprintf("unknown command %q", req.Command)}
	}
}
