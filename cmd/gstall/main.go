package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

func main() {
	if err := mainE(); err != nil {
		os.Exit(1)
	}
}

func mainE() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	root := NewRootCmd(logger)
	if err := root.ExecuteContext(ctx); err != nil {
		logger.Info("Failure", "err", err)
		os.Stderr.Sync()
		return err
	}

	return nil
}

func NewRootCmd(log *slog.Logger) *cobra.Command {
	rootCmd := &cobra.Command{
		Use: "gstall SUBCOMMAND",

		CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},

		Long: `gstall runs an event loop under a stall watchdog.

The watchdog samples the loop's goroutine stack, detects iterations that exceed
the hang timeout, and writes a report naming the call site seen most often
while the loop was stalled.

Configuration is read from .gstall.yaml in the working or home directory,
from GSTALL_* environment variables, and from flags, in increasing precedence.
`,
	}

	rootCmd.PersistentFlags().String("config", "", "path to a config file, instead of searching for .gstall.yaml")

	rootCmd.AddCommand(
		newRunCmd(log),
		newPendingCmd(log),
		newReportCmd(log),
		newConfigCmd(log),
	)

	return rootCmd
}
