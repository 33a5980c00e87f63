package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/shelfwise/internal/httpapi"
)

const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose sync and analytics over HTTP",
		Long: `Serve the sync and analytics triggers over HTTP until interrupted.

Example:
  shelfwise serve --addr 127.0.0.1:8080
  curl -X POST localhost:8080/api/v1/stores/demo.myshopify.com/sync/all
  curl 'localhost:8080/api/v1/stores/demo.myshopify.com/analytics?windowDays=90'`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides config server.addr)")
	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	addr := opts.Addr
	if addr == "" {
		addr = opts.Config.Server.Addr
	}

	st, err := opts.openStore()
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeStorage, "failed to open database", err, nil)
	}
	defer closeStore(opts.Logger, st)

	api := httpapi.New(opts.newSyncEngine(st), opts.newAnalyticsEngine(st), st, httpapi.WithLogger(opts.Logger))
	srv := &http.Server{
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeConfig, "failed to listen on "+addr, err, nil)
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	opts.Logger.Info("http server listening", "addr", ln.Addr().String())
	fmt.Fprintf(formatter.GetErrWriter(), "Listening on %s. Press Ctrl-C to stop.\n", ln.Addr())
	if opts.serveReady != nil {
		opts.serveReady(ln.Addr().String())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "http server error", err)
	}
	opts.Logger.Info("http server stopped gracefully")
	return nil
}
