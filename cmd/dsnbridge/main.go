// Package main is the dsnbridge process entrypoint. The game plugin starts
// it with no arguments and talks to it over stdin/stdout.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rbright/dsnbridge/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exitCode := app.Execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(exitCode)
}
