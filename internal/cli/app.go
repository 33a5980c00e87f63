package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/shelfwise/internal/analytics"
	"github.com/roach88/shelfwise/internal/commerce"
	"github.com/roach88/shelfwise/internal/config"
	"github.com/roach88/shelfwise/internal/ingest"
	"github.com/roach88/shelfwise/internal/store"
)

// load reads configuration and builds the logger.
func (o *RootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(config.LoadOptions{
		Path:    o.ConfigPath,
		EnvFile: o.EnvFile,
		Getenv:  o.Getenv,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.Database != "" {
		cfg.Database = o.Database
	}
	o.Config = cfg

	level := parseLevel(cfg.LogLevel)
	if o.Verbose {
		level = slog.LevelDebug
	}
	o.Logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}

func (o *RootOptions) clock() func() time.Time {
	if o.Now != nil {
		return o.Now
	}
	return time.Now
}

// openStore opens the configured database, creating it if needed.
func (o *RootOptions) openStore() (*store.Store, error) {
	o.Logger.Debug("opening database", "path", o.Config.Database)
	return store.Open(o.Config.Database, store.WithClock(o.clock()))
}

func closeStore(logger *slog.Logger, st *store.Store) {
	if err := st.Close(); err != nil {
		logger.Error("error closing database", "error", err)
	}
}

func (o *RootOptions) newClient() *commerce.Client {
	up := o.Config.Upstream
	opts := []commerce.Option{
		commerce.WithAPIVersion(up.APIVersion),
		commerce.WithPageSize(up.PageSize),
		commerce.WithRateLimit(up.RequestsPerSecond, 4),
	}
	if up.Timeout > 0 {
		opts = append(opts, commerce.WithHTTPClient(&http.Client{Timeout: up.Timeout}))
	}
	if up.BaseURL != "" {
		opts = append(opts, commerce.WithBaseURL(up.BaseURL))
	}
	return commerce.New(opts...)
}

func (o *RootOptions) newSyncEngine(st *store.Store) *ingest.Engine {
	sc := o.Config.Sync
	opts := []ingest.EngineOption{
		ingest.WithLogger(o.Logger),
		ingest.WithClock(o.clock()),
		ingest.WithLookback(sc.LookbackDays, sc.LookbackMinDays, sc.LookbackMaxDays),
		ingest.WithPageCap(sc.PageCap),
		ingest.WithMaxDuration(sc.MaxDuration),
		ingest.WithRetry(sc.RetryAttempts, sc.RetryBaseDelay),
		ingest.WithPageTransactions(sc.PageTransactions),
		ingest.WithRunIDs(o.RunIDs),
		ingest.WithSleep(o.Sleep),
	}
	return ingest.New(st, o.newClient(), opts...)
}

func (o *RootOptions) newAnalyticsEngine(st *store.Store) *analytics.Engine {
	return analytics.New(st,
		analytics.WithLogger(o.Logger),
		analytics.WithClock(o.clock()))
}

// signalContext derives a context cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
