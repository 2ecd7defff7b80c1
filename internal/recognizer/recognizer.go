// Package recognizer wraps a speech recognition engine with grammar
// swapping, confidence filtering and audio-device loss recovery.
package recognizer

import (
	"context"
	"errors"
	"time"

	"github.com/rbright/dsnbridge/internal/grammar"
)

// ErrDeviceUnavailable is wrapped by Engine.Begin when no input device can
// be opened. The adapter treats it as a wait condition, not a failure.
var ErrDeviceUnavailable = errors.New("audio input device unavailable")

// Result is one recognition produced by the engine.
type Result struct {
	Text       string
	Confidence float64
	// Entry is the grammar entry that matched. It is one of the pointers
	// passed to the most recent Engine.Load.
	Entry *grammar.Entry
}

// Callbacks are invoked by the engine from its own goroutines. They never block.
type Callbacks struct {
	OnResult func(Result)
	// OnAudioStopped reports that the audio stream ended without Cancel.
	OnAudioStopped func()
	// OnSignalIssue reports a degraded but still running stream, e.g. clipping.
	OnSignalIssue func(problem string)
}

// Engine is the opaque recognizer driven by the Adapter.
type Engine interface {
	// Load replaces the active grammar set. It is only called between
	// Cancel and Begin and never with an empty set.
	Load(entries []*grammar.Entry) error
	// Begin starts asynchronous recognition against the loaded set.
	Begin(cb Callbacks) error
	// Cancel stops recognition. It is idempotent.
	Cancel() error
}

// DeviceProbe reports whether a default audio input is present.
type DeviceProbe interface {
	DefaultInputAvailable(ctx context.Context) bool
}

// ProbeFunc adapts a function to DeviceProbe.
type ProbeFunc func(ctx context.Context) bool

func (f ProbeFunc) DefaultInputAvailable(ctx context.Context) bool { return f(ctx) }

// Thresholds are the minimum confidences per mode. Dialogue lines are long
// and distinct from each other, so their threshold is usually lower.
type Thresholds struct {
	Dialogue float64
	Command  float64
}

// DefaultThresholds mirror the configuration defaults.
var DefaultThresholds = Thresholds{Dialogue: 0.5, Command: 0.7}

// For returns the threshold of one mode.
func (t Thresholds) For(dialogue bool) float64 {
	if dialogue {
		return t.Dialogue
	}
	return t.Command
}

// DefaultRetryInterval is the device poll period while waiting for a device.
const DefaultRetryInterval = time.Second

// DefaultResultBuffer is the capacity of the Results channel.
const DefaultResultBuffer = 64
