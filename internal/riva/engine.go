package riva

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/rbright/dsnbridge/internal/audio"
	"github.com/rbright/dsnbridge/internal/grammar"
	"github.com/rbright/dsnbridge/internal/match"
	"github.com/rbright/dsnbridge/internal/recognizer"
)

const (
	defaultBoost        = 4
	defaultStallTimeout = 2 * time.Second
)

// Capture is a running PCM source. Chunks is closed when capture ends.
type Capture interface {
	Chunks() <-chan []byte
	Stop() error
}

// captureStats is implemented by captures that know their source device
// and how much audio they delivered.
type captureStats interface {
	Device() audio.Device
	BytesCaptured() int64
}

// CaptureFunc opens a capture. Failures caused by a missing device must
// wrap recognizer.ErrDeviceUnavailable.
type CaptureFunc func(ctx context.Context) (Capture, error)

// PulseCapture selects input (or fallback) and records from it.
func PulseCapture(input, fallback string) CaptureFunc {
	return func(ctx context.Context) (Capture, error) {
		sel, err := audio.SelectDevice(ctx, input, fallback)
		if err != nil {
			return nil, fmt.Errorf("select input: %w: %v", recognizer.ErrDeviceUnavailable, err)
		}
		capture, err := audio.StartCapture(ctx, sel.Device)
		if errors.Is(err, audio.ErrNoDevice) {
			return nil, fmt.Errorf("start capture: %w: %v", recognizer.ErrDeviceUnavailable, err)
		}
		if err != nil {
			return nil, fmt.Errorf("start capture: %w", err)
		}
		return capture, nil
	}
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	Stream StreamConfig
	// Boost is the speech-context boost sent for every grammar phrase.
	Boost float32
	// StallTimeout is how long capture may deliver nothing before the
	// audio stream is reported as stopped.
	StallTimeout time.Duration
	Capture      CaptureFunc
	Matcher      *match.Matcher
	Logger       *slog.Logger
	// DebugResponsePath, when set, receives every Riva response of every
	// session as JSON lines, appended.
	DebugResponsePath string
}

// Engine implements recognizer.Engine. Audio is streamed to Riva with the
// loaded phrases as speech contexts, and each final transcript is matched
// against those phrases.
type Engine struct {
	cfg EngineConfig

	mu      sync.Mutex
	entries []*grammar.Entry
	active  *session
}

type session struct {
	cancel  context.CancelFunc
	done    chan struct{}
	capture Capture
	stream  *Stream
	debug   *os.File
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Boost == 0 {
		cfg.Boost = defaultBoost
	}
	if cfg.StallTimeout <= 0 {
		cfg.StallTimeout = defaultStallTimeout
	}
	if cfg.Matcher == nil {
		cfg.Matcher = match.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Stream.SampleRate == 0 {
		cfg.Stream.SampleRate = audio.SampleRate
	}
	return &Engine{cfg: cfg}
}

// Load replaces the grammar set used by the next Begin.
func (e *Engine) Load(entries []*grammar.Entry) error {
	if len(entries) == 0 {
		return errors.New("empty grammar set")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = append([]*grammar.Entry(nil), entries...)
	return nil
}

// Begin opens capture and a recognition stream and returns immediately.
func (e *Engine) Begin(cb recognizer.Callbacks) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active != nil {
		return errors.New("recognition already running")
	}
	if len(e.entries) == 0 {
		return errors.New("no grammar loaded")
	}
	if e.cfg.Capture == nil {
		return errors.New("no audio capture configured")
	}
	entries := e.entries

	ctx, cancel := context.WithCancel(context.Background())
	capture, err := e.cfg.Capture(ctx)
	if err != nil {
		cancel()
		return err
	}

	if stats, ok := capture.(captureStats); ok {
		device := stats.Device()
		e.cfg.Logger.Info("audio capture started", "device", device.ID, "description", device.Description)
	}

	streamCfg := e.cfg.Stream
	streamCfg.SpeechPhrases = speechPhrases(entries, e.cfg.Boost)
	debug, err := e.openDebugSink()
	if err != nil {
		e.cfg.Logger.Warn("riva response log unavailable", "path", e.cfg.DebugResponsePath, "error", err.Error())
	}
	if debug != nil {
		streamCfg.DebugResponseSinkJSON = debug
	}
	stream, err := DialStream(ctx, streamCfg, func(t Transcript) {
		e.onTranscript(entries, t, cb)
	})
	if err != nil {
		_ = capture.Stop()
		closeDebugSink(debug)
		cancel()
		return fmt.Errorf("open riva stream: %w", err)
	}

	s := &session{cancel: cancel, done: make(chan struct{}), capture: capture, stream: stream, debug: debug}
	e.active = s
	go e.pump(ctx, s, cb)
	return nil
}

// Cancel stops the running recognition, if any, and waits for it to wind down.
func (e *Engine) Cancel() error {
	e.mu.Lock()
	s := e.active
	e.active = nil
	e.mu.Unlock()

	if s == nil {
		return nil
	}
	s.cancel()
	_ = s.capture.Stop()
	err := s.stream.Cancel()
	<-s.done
	closeDebugSink(s.debug)
	if err != nil {
		e.cfg.Logger.Debug("close riva connection", "error", err.Error())
	}
	return nil
}

// pump forwards audio to the stream. Losing the audio (closed capture,
// stalled capture, failed send or a stream the server ended) while not
// cancelled is reported through OnAudioStopped.
func (e *Engine) pump(ctx context.Context, s *session, cb recognizer.Callbacks) {
	defer close(s.done)

	stall := time.NewTimer(e.cfg.StallTimeout)
	defer stall.Stop()

	stopped := func(reason string, args ...any) {
		if ctx.Err() != nil {
			return
		}
		if stats, ok := s.capture.(captureStats); ok {
			args = append(args, "device", stats.Device().ID, "bytes_captured", stats.BytesCaptured())
		}
		e.cfg.Logger.Warn(reason, args...)
		if cb.OnAudioStopped != nil {
			cb.OnAudioStopped()
		}
	}

	var lastProblem string
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stream.Done():
			args := []any{}
			if err := s.stream.Err(); err != nil {
				args = append(args, "error", err.Error())
			}
			stopped("recognition stream ended", args...)
			return
		case <-stall.C:
			stopped("audio capture stalled", "timeout", e.cfg.StallTimeout.String())
			return
		case chunk, ok := <-s.capture.Chunks():
			if !ok {
				stopped("audio capture ended")
				return
			}
			stall.Reset(e.cfg.StallTimeout)

			problem, _ := audio.SignalProblem(chunk)
			if problem != lastProblem && problem != "" && cb.OnSignalIssue != nil {
				cb.OnSignalIssue(problem)
			}
			lastProblem = problem

			if err := s.stream.SendAudio(chunk); err != nil {
				stopped("send audio failed", "error", err.Error())
				return
			}
		}
	}
}

func (e *Engine) openDebugSink() (*os.File, error) {
	if e.cfg.DebugResponsePath == "" {
		return nil, nil
	}
	return os.OpenFile(e.cfg.DebugResponsePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
}

func closeDebugSink(f *os.File) {
	if f != nil {
		_ = f.Close()
	}
}

func (e *Engine) onTranscript(entries []*grammar.Entry, t Transcript, cb recognizer.Callbacks) {
	if !t.Final {
		e.cfg.Logger.Debug("interim transcript", "text", t.Text, "stability", t.Stability)
		return
	}
	candidate, ok := e.cfg.Matcher.Best(t.Text, entries)
	if !ok {
		e.cfg.Logger.Debug("transcript matched no grammar", "text", t.Text, "asr_confidence", t.Confidence)
		return
	}
	if cb.OnResult == nil {
		return
	}
	cb.OnResult(recognizer.Result{
		Text:       t.Text,
		Confidence: match.Combine(candidate.Score, float64(t.Confidence)),
		Entry:      candidate.Entry,
	})
}

// speechPhrases turns entries into boosted speech contexts, one per
// distinct phrase and choice variant.
func speechPhrases(entries []*grammar.Entry, boost float32) []SpeechPhrase {
	seen := make(map[string]struct{}, len(entries))
	out := make([]SpeechPhrase, 0, len(entries))
	add := func(phrase string) {
		if _, ok := seen[phrase]; ok {
			return
		}
		seen[phrase] = struct{}{}
		out = append(out, SpeechPhrase{Phrase: phrase, Boost: boost})
	}
	for _, e := range entries {
		add(e.Phrase)
		for _, choice := range e.Choices {
			add(e.Phrase + " " + choice)
		}
	}
	return out
}
