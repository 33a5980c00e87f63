package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/shelfwise/internal/config"
	"github.com/roach88/shelfwise/internal/ingest"
	"github.com/roach88/shelfwise/internal/model"
)

// RootOptions holds global flags for all commands and the state loaded
// from them before any subcommand runs.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	EnvFile    string
	Database   string

	// Config and Logger are populated by the root pre-run.
	Config config.Config
	Logger *slog.Logger

	// Getenv, Now, RunIDs and Sleep replace process state in tests. Nil
	// selects the real implementation.
	Getenv func(string) string
	Now    func() time.Time
	RunIDs ingest.RunIDGenerator
	Sleep  func(ctx context.Context, d time.Duration) error

	// serveReady, when set, receives the bound address once serve listens.
	serveReady func(addr string)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the shelfwise CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "shelfwise",
		Short:   "Storefront sync and sales analytics",
		Long:    "Synchronises orders and catalog variants from a commerce storefront into SQLite and reports top sellers, slow movers and suggested markdowns.",
		Version: model.Version,

		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.load(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "path to dotenv file (ignored if missing)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewAnalyticsCommand(opts))
	cmd.AddCommand(NewStoreCommand(opts))
	cmd.AddCommand(NewCursorCommand(opts))
	cmd.AddCommand(NewRunsCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

// Execute runs the CLI with os.Args and returns the process exit code.
// Errors the commands have not already reported are written to stderr.
// Flag and argument errors from cobra itself are command errors.
func Execute(ctx context.Context) int {
	cmd := NewRootCommand()
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		return ExitCommandError
	}
	if !exitErr.Reported {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	}
	return exitErr.Code
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
