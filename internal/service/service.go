// Package service runs one configuration lifetime of the bridge: the
// recognizer adapter, the mode controller, the stdout writer and the file
// watchers, all fed from a shared inbound queue.
package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rbright/dsnbridge/internal/bridge"
	"github.com/rbright/dsnbridge/internal/commands"
	"github.com/rbright/dsnbridge/internal/config"
	"github.com/rbright/dsnbridge/internal/dialogue"
	"github.com/rbright/dsnbridge/internal/favorites"
	"github.com/rbright/dsnbridge/internal/observe"
	"github.com/rbright/dsnbridge/internal/outbox"
	"github.com/rbright/dsnbridge/internal/queue"
	"github.com/rbright/dsnbridge/internal/recognizer"
	"github.com/rbright/dsnbridge/internal/watch"
)

// Outcome says why Run returned.
type Outcome int

const (
	// OutcomeEOF means the inbound stream closed and the process should exit.
	OutcomeEOF Outcome = iota
	// OutcomeReload means the configuration changed and a new lifetime should start.
	OutcomeReload
	// OutcomeCancelled means the caller's context ended.
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEOF:
		return "eof"
	case OutcomeReload:
		return "reload"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

const (
	defaultConfigSettle  = time.Second
	defaultBatchDebounce = 200 * time.Millisecond
	batchCommandPrefix   = bridge.OutCommand + "|bat "
)

var errReload = errors.New("configuration reload requested")

// Options holds everything one lifetime needs. Inbound outlives the
// service; it is closed only by the console reader.
type Options struct {
	Loaded  config.Loaded
	Engine  recognizer.Engine
	Probe   recognizer.DeviceProbe
	Inbound *queue.Queue
	Output  io.Writer
	Logger  *slog.Logger
	Metrics *observe.Metrics

	// ConfigSettle is the pause between a config change and the reload,
	// letting an editor finish writing. Default: 1s.
	ConfigSettle time.Duration
	// RetryInterval overrides the adapter's device poll period.
	RetryInterval time.Duration
}

// Service is single-use: call Run once.
type Service struct {
	cfg      config.Config
	path     string
	inbound  *queue.Queue
	outbound *queue.Queue
	logger   *slog.Logger
	settle   time.Duration

	adapter    *recognizer.Adapter
	controller *bridge.Controller
	writer     *outbox.Writer

	reload chan struct{}
}

func New(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.ConfigSettle <= 0 {
		opts.ConfigSettle = defaultConfigSettle
	}
	cfg := opts.Loaded.Config
	logger := opts.Logger

	adapter := recognizer.New(opts.Engine, opts.Probe, recognizer.Config{
		Thresholds: recognizer.Thresholds{
			Dialogue: cfg.Speech.DialogueMinConfidence,
			Command:  cfg.Speech.CommandMinConfidence,
		},
		RetryInterval:  opts.RetryInterval,
		LogAudioIssues: cfg.Speech.LogAudioSignalIssues,
		Logger:         logger.With("component", "recognizer"),
		Metrics:        opts.Metrics,
	})

	hand, err := favorites.ParseHand(cfg.Favorites.DefaultHand)
	if err != nil {
		logger.Warn("invalid default hand; equipping to both hands", "error", err.Error())
	}

	outbound := queue.New()
	controllerLogger := logger.With("component", "controller")
	controller := bridge.New(adapter, outbound, bridge.Options{
		Commands: commands.FromConfig(cfg.Commands(), controllerLogger),
		Favorites: favorites.Builder{
			Enabled:     cfg.Favorites.Enabled,
			Prefix:      cfg.Favorites.EquipPrefix,
			LeftSuffix:  cfg.Favorites.LeftSuffix,
			RightSuffix: cfg.Favorites.RightSuffix,
			DefaultHand: hand,
			ItemNames:   opts.Loaded.ItemNames,
		},
		Dialogue: dialogue.Options{
			GoodbyePhrases: cfg.Dialogue.GoodbyePhrases,
			Mode:           cfg.Speech.SubsetMatchingMode,
		},
		Logger:  controllerLogger,
		Metrics: opts.Metrics,
	})

	return &Service{
		cfg:        cfg,
		path:       opts.Loaded.Path,
		inbound:    opts.Inbound,
		outbound:   outbound,
		logger:     logger,
		settle:     opts.ConfigSettle,
		adapter:    adapter,
		controller: controller,
		writer:     outbox.New(outbound, opts.Output, logger.With("component", "outbox"), opts.Metrics),
		reload:     make(chan struct{}, 1),
	}
}

// RequestReload asks Run to end with OutcomeReload. Repeated requests
// before Run notices collapse into one.
func (s *Service) RequestReload() {
	select {
	case s.reload <- struct{}{}:
	default:
	}
}

// Run starts in command mode and serves inbound lines until the inbound
// queue closes, a reload is requested or ctx ends. Every queued outbound
// line is written before Run returns.
func (s *Service) Run(ctx context.Context) (Outcome, error) {
	// The writer stops on the outbound close sentinel, not on ctx, so
	// lines queued during shutdown still reach the game.
	writerDone := make(chan error, 1)
	go func() {
		writerDone <- s.writer.Run(context.Background())
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	listenCtx, stopListen := context.WithCancelCause(gctx)
	defer stopListen(nil)

	// Watchers snapshot their files on construction, before the first
	// recognition starts.
	watchers := s.watchers()
	s.controller.Start()

	g.Go(func() error {
		return s.controller.Run(gctx, s.adapter.Results())
	})
	g.Go(func() error {
		select {
		case <-s.reload:
			stopListen(errReload)
		case <-listenCtx.Done():
		}
		return nil
	})
	for _, w := range watchers {
		g.Go(func() error {
			return w.Run(gctx)
		})
	}

	outcome := s.listen(listenCtx)
	s.logger.Info("service lifetime ending", "outcome", outcome.String())

	cancel()
	err := g.Wait()

	s.adapter.Stop()
	s.outbound.Close()
	if werr := <-writerDone; werr != nil && err == nil {
		err = werr
	}
	return outcome, err
}

func (s *Service) listen(ctx context.Context) Outcome {
	for {
		line, err := s.inbound.Take(ctx)
		if errors.Is(err, queue.ErrClosed) {
			return OutcomeEOF
		}
		if err != nil {
			if errors.Is(context.Cause(ctx), errReload) {
				return OutcomeReload
			}
			return OutcomeCancelled
		}
		if err := s.controller.HandleLine(line); err != nil {
			s.logger.Warn("protocol line rejected", "line", line, "error", err.Error())
		}
	}
}

func (s *Service) watchers() []*watch.Watcher {
	interval := s.cfg.Watch.PollInterval
	var out []*watch.Watcher

	if len(s.cfg.Watch.BatchFiles) > 0 {
		dir := s.cfg.Watch.BatchDir
		if dir == "" {
			dir = "."
		}
		out = append(out, watch.New(
			watch.BatchPaths(dir, s.cfg.Watch.BatchFiles),
			s.onBatchFile,
			watch.WithInterval(interval),
			watch.WithDebounce(defaultBatchDebounce),
			watch.WithLogger(s.logger.With("component", "batch_watch")),
		))
	}

	if s.cfg.Watch.ConfigReload && s.path != "" {
		out = append(out, watch.New(
			[]string{s.path},
			s.onConfigChange,
			watch.WithInterval(interval),
			watch.WithContentHash(),
			watch.WithLogger(s.logger.With("component", "config_watch")),
		))
	}
	return out
}

func (s *Service) onBatchFile(path string) {
	name := filepath.Base(path)
	s.logger.Info("batch file changed", "file", name)
	s.outbound.Put(batchCommandPrefix + name)
}

func (s *Service) onConfigChange(path string) {
	s.logger.Info("config file changed; reloading", "path", path, "settle", s.settle.String())
	time.AfterFunc(s.settle, s.RequestReload)
}

// Status describes a running service.
type Status struct {
	Recognizer string `json:"recognizer"`
	bridge.Snapshot
	PendingOutput int    `json:"pending_output"`
	ConfigPath    string `json:"config_path"`
}

func (s *Service) Status() Status {
	return Status{
		Recognizer:    s.adapter.Status().String(),
		Snapshot:      s.controller.Snapshot(),
		PendingOutput: s.outbound.Len(),
		ConfigPath:    s.path,
	}
}
