package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Jeffrey0117/Ytify/internal/config"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string

	settings *config.Settings
	logger   *slog.Logger
}

// load resolves settings in order: defaults, config file, environment,
// flags.
func (o *globalOptions) load(logOut io.Writer, getenv func(string) string) error {
	settings := config.DefaultSettings()
	if o.configPath != "" {
		s, err := config.Load(o.configPath)
		if err != nil {
			return fmt.Errorf("load config %s: %w", o.configPath, err)
		}
		settings = s
	}
	settings.ApplyEnv(getenv)
	if o.logLevel != "" {
		settings.LogLevel = o.logLevel
	}
	if o.logFormat != "" {
		settings.LogFormat = o.logFormat
	}

	o.settings = settings
	o.logger = settings.NewLogger(logOut)
	return nil
}

// bindGlobalFlags adds the persistent flags to cmd and loads settings
// before any subcommand runs.
func bindGlobalFlags(cmd *cobra.Command, opts *globalOptions) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to JSON config file")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&opts.logFormat, "log-format", "", "Log format: text or json")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return opts.load(cmd.ErrOrStderr(), os.Getenv)
	}
}

// NewRootCommand builds the ytify command tree.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "ytify",
		Short:         "Self-hosted video and audio downloader built on yt-dlp.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	bindGlobalFlags(root, opts)

	root.AddCommand(
		newServeCommand(opts),
		newGetCommand(opts),
		newTUICommand(opts),
		newClassifyCommand(),
		newVersionCommand(),
	)
	return root
}

// Execute runs the ytify command tree and returns the process exit code.
func Execute() int {
	return run(NewRootCommand())
}

// ExecuteTUI runs the standalone ytify-tui command and returns the process
// exit code.
func ExecuteTUI() int {
	return run(NewTUICommand())
}

// run returns 130 when interrupted and 1 on any other error.
func run(cmd *cobra.Command) int {
	err := cmd.Execute()
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(os.Stderr, "Cancelled.")
		return 130
	default:
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
}
