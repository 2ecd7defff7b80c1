// Package doctor runs readiness diagnostics for config, audio input, and Riva.
package doctor

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rbright/dsnbridge/internal/audio"
	"github.com/rbright/dsnbridge/internal/config"
	"github.com/rbright/dsnbridge/internal/riva"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Probes are the live checks. Zero fields use PulseAudio and a real gRPC dial.
type Probes struct {
	SelectDevice func(ctx context.Context, input, fallback string) (audio.Selection, error)
	RivaReady    func(ctx context.Context, cfg riva.StreamConfig) error
}

func (p Probes) withDefaults() Probes {
	if p.SelectDevice == nil {
		p.SelectDevice = audio.SelectDevice
	}
	if p.RivaReady == nil {
		p.RivaReady = riva.CheckReady
	}
	return p
}

// Run executes config and runtime checks for a loaded config.
func Run(ctx context.Context, loaded config.Loaded, probes Probes) Report {
	probes = probes.withDefaults()
	cfg := loaded.Config

	checks := []Check{checkConfig(loaded)}
	checks = append(checks, checkCommands(cfg))
	if cfg.Favorites.ItemNamesFile != "" {
		checks = append(checks, Check{
			Name:    "favorites.item_names",
			Pass:    len(loaded.ItemNames) > 0,
			Message: fmt.Sprintf("%d names from %q", len(loaded.ItemNames), cfg.Favorites.ItemNamesFile),
		})
	}
	checks = append(checks, checkBatchDir(cfg.Watch))
	checks = append(checks, checkAudioSelection(ctx, cfg.Audio, probes))
	checks = append(checks, checkRivaReady(ctx, cfg.Riva, probes))

	return Report{Checks: checks}
}

func checkConfig(loaded config.Loaded) Check {
	if !loaded.Exists {
		return Check{Name: "config", Pass: true, Message: fmt.Sprintf("%q not found; using defaults", loaded.Path)}
	}
	msg := fmt.Sprintf("loaded %q", loaded.Path)
	if n := len(loaded.Warnings); n > 0 {
		msg += fmt.Sprintf(" (%d warnings)", n)
	}
	return Check{Name: "config", Pass: true, Message: msg}
}

func checkCommands(cfg config.Config) Check {
	n := len(cfg.Commands())
	if n == 0 {
		return Check{Name: "console_commands", Pass: true, Message: "none configured"}
	}
	return Check{Name: "console_commands", Pass: true, Message: fmt.Sprintf("%d phrases", n)}
}

// checkBatchDir fails only when a configured directory is missing; the
// working directory default always exists.
func checkBatchDir(w config.WatchConfig) Check {
	if len(w.BatchFiles) == 0 {
		return Check{Name: "watch.batch_dir", Pass: true, Message: "batch files disabled"}
	}
	dir := w.BatchDir
	if dir == "" {
		return Check{Name: "watch.batch_dir", Pass: true, Message: "watching the working directory"}
	}
	info, err := os.Stat(dir)
	if err != nil {
		return Check{Name: "watch.batch_dir", Pass: false, Message: err.Error()}
	}
	if !info.IsDir() {
		return Check{Name: "watch.batch_dir", Pass: false, Message: fmt.Sprintf("%q is not a directory", dir)}
	}
	return Check{Name: "watch.batch_dir", Pass: true, Message: fmt.Sprintf("watching %s in %q", strings.Join(w.BatchFiles, ", "), dir)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.AudioConfig, probes Probes) Check {
	selection, err := probes.SelectDevice(ctx, cfg.Input, cfg.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkRivaReady waits for the gRPC channel to the configured server to become ready.
func checkRivaReady(ctx context.Context, cfg config.RivaConfig, probes Probes) Check {
	endpoint := strings.TrimSpace(cfg.GRPC)
	if endpoint == "" {
		return Check{Name: "riva.ready", Pass: false, Message: "Riva.grpc is empty"}
	}
	err := probes.RivaReady(ctx, riva.StreamConfig{Endpoint: endpoint, DialTimeout: cfg.DialTimeout})
	if err != nil {
		return Check{Name: "riva.ready", Pass: false, Message: err.Error()}
	}
	return Check{Name: "riva.ready", Pass: true, Message: fmt.Sprintf("ready at %s", endpoint)}
}
