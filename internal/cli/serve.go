package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"clawdash/dashboard"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API",
		Long: `Serve the dashboard API on the configured listen address.

Routes: GET /api/health, GET /api/usage?days=N, GET /api/config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides dashboard.listen)")

	return cmd
}

func serve(ctx context.Context, opts *ServeOptions) error {
	cfg, logger := opts.Config, opts.Logger

	gateway, cleanup, err := newGatewayClient(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	handler := dashboard.New(gateway,
		dashboard.WithLogger(logger),
		dashboard.WithConfigDir(cfg.Dashboard.ConfigDir),
		dashboard.WithHealthTimeout(cfg.Dashboard.HealthTimeout),
		dashboard.WithUsageTimeout(cfg.Dashboard.UsageTimeout),
		dashboard.WithUsageDays(cfg.Dashboard.UsageDays),
	)
	if err := handler.WatchConfig(ctx); err != nil {
		logger.Warn("openclaw config will be re-read on every request", "error", err)
	}

	listen := cfg.Dashboard.Listen
	if opts.Listen != "" {
		listen = opts.Listen
	}
	srv := &http.Server{
		Addr:              listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("dashboard listening", "addr", listen, "gateway", cfg.Gateway.URL)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
