// Package cli defines the dsnbridge command tree. The commands only parse
// arguments; the work is done by an Actions implementation.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rbright/dsnbridge/internal/version"
)

// Exit codes returned by ExitCode.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// Actions performs the work behind each command.
type Actions interface {
	// Run bridges stdin/stdout to the recognizer until stdin closes.
	Run(ctx context.Context, configPath string) error
	Doctor(ctx context.Context, configPath string) error
	Devices(ctx context.Context) error
	Status(ctx context.Context) error
	Reload(ctx context.Context) error
}

// UsageError marks bad arguments or flags.
type UsageError struct {
	Err error
}

func (e UsageError) Error() string { return e.Err.Error() }
func (e UsageError) Unwrap() error { return e.Err }

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var usage UsageError
	if errors.As(err, &usage) {
		return ExitUsage
	}
	return ExitFailure
}

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return UsageError{Err: fmt.Errorf("unknown command %q for %q", args[0], cmd.CommandPath())}
	}
	return nil
}

// NewRoot builds the command tree. Bare `dsnbridge` is `dsnbridge run`,
// which is how the game plugin launches it.
func NewRoot(actions Actions, stdout, stderr io.Writer) *cobra.Command {
	var configPath string

	runBridge := func(cmd *cobra.Command, _ []string) error {
		return actions.Run(cmd.Context(), configPath)
	}

	root := &cobra.Command{
		Use:   version.Name,
		Short: "Speech recognition bridge for Dragonborn Speaks Naturally",
		Long: `dsnbridge reads protocol lines from the game on stdin, recognizes speech
through a Riva ASR server and writes DIALOGUE, EQUIP and COMMAND lines to
stdout. Logs go to $XDG_STATE_HOME/dsnbridge/log.jsonl.`,
		Args:          noArgs,
		RunE:          runBridge,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return UsageError{Err: err}
	})
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file path (INI or JSONC)")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Bridge stdin/stdout to speech recognition (default)",
			Args:  noArgs,
			RunE:  runBridge,
		},
		&cobra.Command{
			Use:   "doctor",
			Short: "Check configuration, audio input and Riva readiness",
			Args:  noArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return actions.Doctor(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "devices",
			Short: "List audio input devices",
			Args:  noArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return actions.Devices(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the state of the running bridge",
			Args:  noArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return actions.Status(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "reload",
			Short: "Ask the running bridge to reload its configuration",
			Args:  noArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return actions.Reload(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Args:  noArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), version.String())
				return err
			},
		},
	)
	return root
}

// Execute runs the command tree against args and returns the exit code.
// Errors are printed to stderr.
func Execute(ctx context.Context, actions Actions, args []string, stdout, stderr io.Writer) int {
	root := NewRoot(actions, stdout, stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		if ExitCode(err) == ExitUsage {
			fmt.Fprintf(stderr, "Run '%s --help' for usage.\n", version.Name)
		}
	}
	return ExitCode(err)
}
