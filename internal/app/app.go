// Package app implements the dsnbridge commands on top of the internal packages.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/rbright/dsnbridge/internal/audio"
	"github.com/rbright/dsnbridge/internal/cli"
	"github.com/rbright/dsnbridge/internal/config"
	"github.com/rbright/dsnbridge/internal/doctor"
	"github.com/rbright/dsnbridge/internal/ipc"
	"github.com/rbright/dsnbridge/internal/match"
	"github.com/rbright/dsnbridge/internal/recognizer"
	"github.com/rbright/dsnbridge/internal/riva"
)

const (
	probeTimeout   = 180 * time.Millisecond
	forwardTimeout = 2 * time.Second
)

var errNotRunning = errors.New("no running dsnbridge")

// Runner carries the process streams and the seams tests replace.
type Runner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// Logger replaces the JSONL file logger when set.
	Logger *slog.Logger

	NewEngine    func(cfg config.Config, logger *slog.Logger) recognizer.Engine
	NewProbe     func(cfg config.Config) recognizer.DeviceProbe
	ListDevices  func(ctx context.Context) ([]audio.Device, error)
	DoctorProbes doctor.Probes
}

func Execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	r := Runner{Stdin: stdin, Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	return cli.Execute(ctx, r, args, r.Stdout, r.Stderr)
}

func (r Runner) loadConfig(path string) (config.Loaded, error) {
	loaded, err := config.Load(path)
	if err != nil {
		return config.Loaded{}, err
	}
	for _, w := range loaded.Warnings {
		fmt.Fprintf(r.Stderr, "warning: %s\n", warningText(w))
	}
	return loaded, nil
}

func warningText(w config.Warning) string {
	if w.Line > 0 {
		return fmt.Sprintf("line %d: %s", w.Line, w.Message)
	}
	return w.Message
}

func (r Runner) engineFactory() func(config.Config, *slog.Logger) recognizer.Engine {
	if r.NewEngine != nil {
		return r.NewEngine
	}
	return func(cfg config.Config, logger *slog.Logger) recognizer.Engine {
		return riva.NewEngine(riva.EngineConfig{
			Stream: riva.StreamConfig{
				Endpoint:             cfg.Riva.GRPC,
				LanguageCode:         cfg.Speech.Locale,
				Model:                cfg.Riva.Model,
				DialTimeout:          cfg.Riva.DialTimeout,
				AutomaticPunctuation: cfg.Riva.AutomaticPunctuation,
				InterimResults:       cfg.Riva.InterimResults,
			},
			Capture:           riva.PulseCapture(cfg.Audio.Input, cfg.Audio.Fallback),
			Matcher:           match.New(),
			Logger:            logger.With("component", "riva"),
			DebugResponsePath: cfg.Riva.DebugResponseLog,
		})
	}
}

func (r Runner) probeFactory() func(config.Config) recognizer.DeviceProbe {
	if r.NewProbe != nil {
		return r.NewProbe
	}
	return func(cfg config.Config) recognizer.DeviceProbe {
		return audio.NewProbe(cfg.Audio.Input, cfg.Audio.Fallback)
	}
}

func (r Runner) Doctor(ctx context.Context, configPath string) error {
	loaded, err := r.loadConfig(configPath)
	if err != nil {
		return err
	}
	report := doctor.Run(ctx, loaded, r.DoctorProbes)
	fmt.Fprintln(r.Stdout, report.String())
	if !report.OK() {
		return errors.New("doctor checks failed")
	}
	return nil
}

func (r Runner) Devices(ctx context.Context) error {
	list := r.ListDevices
	if list == nil {
		list = audio.ListDevices
	}
	devices, err := list(ctx)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		return errors.New("no audio devices found")
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			yesNo(device.Available),
			yesNo(device.Muted),
		)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func (r Runner) Status(ctx context.Context) error {
	resp, err := forward(ctx, ipc.CommandStatus)
	if errors.Is(err, errNotRunning) {
		fmt.Fprintln(r.Stdout, "not running")
		return nil
	}
	if err != nil {
		return err
	}

	mode := resp.Mode
	if resp.DialogueID != 0 {
		mode = fmt.Sprintf("%s (id %d)", mode, resp.DialogueID)
	}
	fmt.Fprintf(r.Stdout, "recognizer: %s\n", resp.Recognizer)
	fmt.Fprintf(r.Stdout, "mode: %s\n", mode)
	fmt.Fprintf(r.Stdout, "favorites: %d\n", resp.Favorites)
	fmt.Fprintf(r.Stdout, "commands: %d\n", resp.Commands)
	fmt.Fprintf(r.Stdout, "pending_output: %d\n", resp.Pending)
	fmt.Fprintf(r.Stdout, "config: %s\n", resp.ConfigPath)
	fmt.Fprintf(r.Stdout, "run_id: %s\n", resp.RunID)
	if len(resp.Counters) > 0 {
		fmt.Fprintf(r.Stdout, "counters:\n  %s\n", strings.Join(resp.Counters, "\n  "))
	}
	return nil
}

func (r Runner) Reload(ctx context.Context) error {
	resp, err := forward(ctx, ipc.CommandReload)
	if err != nil {
		return err
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return nil
}

// forward sends one command to the running bridge. errNotRunning means
// nothing answers on the control socket.
func forward(ctx context.Context, command string) (ipc.Response, error) {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return ipc.Response{}, err
	}
	alive, err := ipc.Probe(ctx, socketPath, probeTimeout)
	if err != nil {
		return ipc.Response{}, err
	}
	if !alive {
		return ipc.Response{}, errNotRunning
	}
	resp, err := ipc.Send(ctx, socketPath, ipc.Request{Command: command}, forwardTimeout)
	if err != nil {
		return ipc.Response{}, fmt.Errorf("forward %s: %w", command, err)
	}
	return resp, nil
}
