package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Jeffrey0117/Ytify/internal/tui"
)

func newTUICommand(opts *globalOptions) *cobra.Command {
	var logFile string

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Interactive terminal downloader",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// The screen belongs to the TUI, so logs go to a file or nowhere.
			var w io.Writer = io.Discard
			if logFile != "" {
				f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
				if err != nil {
					return fmt.Errorf("open log file: %w", err)
				}
				defer f.Close()
				w = f
			}
			opts.logger = opts.settings.NewLogger(w)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
			defer stop()
			return runTUI(ctx, opts)
		},
	}
	cmd.Flags().StringVar(&logFile, "log-file", "", "Write logs to this file")
	return cmd
}

func runTUI(ctx context.Context, opts *globalOptions) error {
	a, err := newApp(ctx, opts.settings, opts.logger)
	if err != nil {
		return err
	}
	defer a.Close()

	runCtx, stopService := context.WithCancel(ctx)
	serviceDone := make(chan struct{})
	go func() {
		defer close(serviceDone)
		a.svc.Run(runCtx)
	}()

	err = tui.Run(ctx, a.svc, opts.settings)

	stopService()
	<-serviceDone
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// NewTUICommand builds the standalone ytify-tui command.
func NewTUICommand() *cobra.Command {
	opts := &globalOptions{}
	cmd := newTUICommand(opts)
	cmd.Use = "ytify-tui"
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	bindGlobalFlags(cmd, opts)
	return cmd
}
