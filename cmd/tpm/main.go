package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tpmerrors "github.com/x49dev/tpm/internal/errors"
)

var version = "dev"

func init() {
	// Overridden once config is loaded in PersistentPreRunE; this
	// default covers errors raised by cobra itself (bad flags, etc.)
	// before that runs.
	formatter = tpmerrors.NewFormatter(os.Stderr, false)
}

func main() {
	// Interrupt, terminate, and hangup cancel the context threaded
	// into every verb's RunE. A transaction in flight observes the
	// cancellation through its context-aware network calls and rolls
	// back before exiting, rather than leaving cleanup to the next
	// run's janitor sweep.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s", formatter.Format(err))
		os.Exit(tpmerrors.ExitCode(err))
	}
}
