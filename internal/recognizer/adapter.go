package recognizer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbright/dsnbridge/internal/fsm"
	"github.com/rbright/dsnbridge/internal/grammar"
	"github.com/rbright/dsnbridge/internal/observe"
)

// Config tunes an Adapter. Zero durations and sizes use the package defaults.
type Config struct {
	Thresholds     Thresholds
	RetryInterval  time.Duration
	ResultBuffer   int
	LogAudioIssues bool
	Logger         *slog.Logger
	Metrics        *observe.Metrics
}

// request is one StartRecognition call, kept for replay after device loss.
type request struct {
	dialogue bool
	sources  []grammar.Source
}

// Adapter owns an Engine and exposes start/stop that are safe to call
// from the mode controller and from the device retry loop at once.
type Adapter struct {
	engine     Engine
	probe      DeviceProbe
	thresholds Thresholds
	interval   time.Duration
	logIssues  bool
	logger     *slog.Logger
	metrics    *observe.Metrics

	// status is read lock-free on the callback path; every write is a CAS.
	status atomic.Int32
	// generation identifies the current Begin. Callbacks carrying an older
	// generation belong to a cancelled recognition and are ignored.
	generation atomic.Uint64
	dialogue   atomic.Bool

	// engineMu serializes cancel+load+begin and guards last.
	engineMu sync.Mutex
	last     *request

	retryMu     sync.Mutex
	retryCancel context.CancelFunc
	retryDone   chan struct{}

	results chan Result
}

// New builds an Adapter in the Stopped state.
func New(engine Engine, probe DeviceProbe, cfg Config) *Adapter {
	if probe == nil {
		probe = ProbeFunc(func(context.Context) bool { return true })
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.ResultBuffer <= 0 {
		cfg.ResultBuffer = DefaultResultBuffer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	a := &Adapter{
		engine:     engine,
		probe:      probe,
		thresholds: cfg.Thresholds,
		interval:   cfg.RetryInterval,
		logIssues:  cfg.LogAudioIssues,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		results:    make(chan Result, cfg.ResultBuffer),
	}
	a.status.Store(int32(fsm.StatusStopped))
	return a
}

// Status returns the current recognizer status.
func (a *Adapter) Status() fsm.Status {
	return fsm.Status(a.status.Load())
}

// DialogueMode reports whether the most recent recognition was started in dialogue mode.
func (a *Adapter) DialogueMode() bool {
	return a.dialogue.Load()
}

// Results delivers accepted recognitions. It is never closed.
func (a *Adapter) Results() <-chan Result {
	return a.results
}

// StartRecognition records the request, cancels any running recognition
// and, unless the adapter is waiting for a device, begins recognizing the
// flattened grammar set of sources. An empty set leaves the engine idle.
func (a *Adapter) StartRecognition(dialogue bool, sources ...grammar.Source) {
	a.engineMu.Lock()
	defer a.engineMu.Unlock()

	a.last = &request{
		dialogue: dialogue,
		sources:  append([]grammar.Source(nil), sources...),
	}
	a.startLocked(a.last)
}

// Stop cancels recognition, moves to Stopped and ends the retry loop.
func (a *Adapter) Stop() {
	a.engineMu.Lock()
	a.cancelLocked()
	a.advance(fsm.StatusWaitingDevice, fsm.EventStop)
	a.engineMu.Unlock()

	// The retry loop takes engineMu to replay, so it is joined unlocked.
	a.stopRetryLoop()
}

func (a *Adapter) startLocked(req *request) {
	a.cancelLocked()

	if a.Status() == fsm.StatusWaitingDevice {
		a.logger.Debug("recognition deferred until an input device is available", "dialogue", req.dialogue)
		return
	}

	entries := grammar.Flatten(req.sources...)
	if len(entries) == 0 {
		a.logger.Info("recognition not started: empty grammar set", "dialogue", req.dialogue)
		return
	}

	if err := a.engine.Load(entries); err != nil {
		a.logger.Error("load grammar failed", "error", err.Error(), "grammars", len(entries))
		return
	}

	gen := a.generation.Add(1)
	a.dialogue.Store(req.dialogue)
	if !a.advance(fsm.StatusStopped, fsm.EventStart) {
		return
	}

	if err := a.engine.Begin(a.callbacks(gen)); err != nil {
		a.generation.Add(1)
		if errors.Is(err, ErrDeviceUnavailable) {
			a.logger.Warn("no audio input device; waiting for one", "error", err.Error())
			if a.advance(fsm.StatusRecognizing, fsm.EventDeviceLost) {
				a.metrics.RecordDeviceLoss(context.Background())
				a.ensureRetryLoop()
			}
			return
		}
		a.logger.Error("begin recognition failed", "error", err.Error())
		a.advance(fsm.StatusRecognizing, fsm.EventStop)
		return
	}

	a.logger.Info("recognition started", "dialogue", req.dialogue, "grammars", len(entries))
}

func (a *Adapter) cancelLocked() {
	a.generation.Add(1)
	if err := a.engine.Cancel(); err != nil {
		a.logger.Warn("cancel recognition failed", "error", err.Error())
	}
	a.advance(fsm.StatusRecognizing, fsm.EventStop)
}

// advance applies event only if the status is still from.
func (a *Adapter) advance(from fsm.Status, event fsm.Event) bool {
	next, err := fsm.Transition(from, event)
	if err != nil {
		return false
	}
	return a.status.CompareAndSwap(int32(from), int32(next))
}

func (a *Adapter) callbacks(gen uint64) Callbacks {
	return Callbacks{
		OnResult: func(r Result) {
			a.onResult(gen, r)
		},
		OnAudioStopped: func() {
			a.onAudioStopped(gen)
		},
		OnSignalIssue: func(problem string) {
			if a.logIssues && a.generation.Load() == gen {
				a.logger.Info("audio signal problem occurred during speech recognition", "problem", problem)
			}
		},
	}
}

func (a *Adapter) onResult(gen uint64, r Result) {
	if a.generation.Load() != gen {
		return
	}

	ctx := context.Background()
	dialogue := a.dialogue.Load()
	mode := modeName(dialogue)
	threshold := a.thresholds.For(dialogue)

	if r.Confidence < threshold {
		a.logger.Info("recognized phrase ignored: confidence too low",
			"text", r.Text, "confidence", r.Confidence, "min_confidence", threshold, "mode", mode)
		a.metrics.RecordRecognition(ctx, mode, observe.OutcomeRejected, r.Confidence)
		return
	}

	select {
	case a.results <- r:
		a.logger.Info("recognized phrase", "text", r.Text, "confidence", r.Confidence, "mode", mode)
		a.metrics.RecordRecognition(ctx, mode, observe.OutcomeAccepted, r.Confidence)
	default:
		a.logger.Warn("recognized phrase dropped: result buffer full", "text", r.Text)
		a.metrics.RecordRecognition(ctx, mode, observe.OutcomeDropped, r.Confidence)
	}
}

func (a *Adapter) onAudioStopped(gen uint64) {
	if a.generation.Load() != gen {
		return
	}
	if !a.advance(fsm.StatusRecognizing, fsm.EventDeviceLost) {
		return
	}

	if a.logIssues {
		a.logger.Info("audio stream stopped unexpectedly; waiting for an input device")
	} else {
		a.logger.Warn("audio stream stopped; waiting for an input device")
	}
	a.metrics.RecordDeviceLoss(context.Background())
	a.ensureRetryLoop()
}

// ensureRetryLoop starts the device poll loop unless one is running.
func (a *Adapter) ensureRetryLoop() {
	a.retryMu.Lock()
	defer a.retryMu.Unlock()
	if a.retryDone != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	a.retryCancel = cancel
	a.retryDone = done
	go a.retryLoop(ctx, done)
}

func (a *Adapter) stopRetryLoop() {
	a.retryMu.Lock()
	cancel, done := a.retryCancel, a.retryDone
	a.retryMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (a *Adapter) retryLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		if a.finishRetry(ctx, done) {
			return
		}
		if a.probe.DefaultInputAvailable(ctx) {
			a.restore()
		}

		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}

// finishRetry decides under retryMu whether the loop may exit, so a device
// loss reported while the loop is winding down is never left unpolled.
func (a *Adapter) finishRetry(ctx context.Context, done chan struct{}) bool {
	a.retryMu.Lock()
	defer a.retryMu.Unlock()

	if ctx.Err() == nil && a.Status() == fsm.StatusWaitingDevice {
		return false
	}
	if a.retryDone == done {
		a.retryCancel()
		a.retryCancel = nil
		a.retryDone = nil
	}
	return true
}

// restore leaves WaitingDevice and replays the last request.
func (a *Adapter) restore() {
	a.engineMu.Lock()
	defer a.engineMu.Unlock()

	if !a.advance(fsm.StatusWaitingDevice, fsm.EventDeviceRestored) {
		return
	}
	a.logger.Info("audio input device available again")
	if a.last == nil {
		return
	}
	a.metrics.RecordRestart(context.Background())
	a.startLocked(a.last)
}

func modeName(dialogue bool) string {
	if dialogue {
		return "dialogue"
	}
	return "command"
}
