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

	"clawdash/clock"
	"clawdash/middleware"
	"clawdash/registry"
	"clawdash/server"
)

// MockGatewayOptions holds flags for the mock-gateway command.
type MockGatewayOptions struct {
	*RootOptions
	Listen    string
	TCP       string
	Token     string
	Advertise string
	RateLimit float64
}

// NewMockGatewayCommand creates the mock-gateway command.
func NewMockGatewayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MockGatewayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "mock-gateway",
		Short: "Run a local stand-in for the OpenClaw gateway",
		Long: `Run a local stand-in for the OpenClaw gateway.

It speaks the gateway protocol over WebSocket (and optionally framed TCP), checks the
token and protocol range on connect, and answers channels.status and sessions.usage
with synthetic data. With --advertise it also publishes itself in the configured etcd.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runMockGateway(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", ":18789", "WebSocket listen address")
	cmd.Flags().StringVar(&opts.TCP, "tcp", "", "framed TCP listen address (disabled when empty)")
	cmd.Flags().StringVar(&opts.Token, "token", "", "required token (default gateway.token)")
	cmd.Flags().StringVar(&opts.Advertise, "advertise", "", "address to publish in etcd, e.g. ws://10.0.0.5:18789")
	cmd.Flags().Float64Var(&opts.RateLimit, "rate-limit", 0, "requests per second across all sessions (0 = unlimited)")

	return cmd
}

func runMockGateway(ctx context.Context, opts *MockGatewayOptions) error {
	cfg, logger := opts.Config, opts.Logger

	token := opts.Token
	if token == "" {
		token = cfg.Gateway.Token
	}
	serverOpts := []server.Option{
		server.WithToken(token),
		server.WithLogger(logger),
		server.WithProtocol(cfg.Client.MinProtocol, cfg.Client.MaxProtocol),
	}

	if opts.Advertise != "" {
		d := cfg.Gateway.Discovery
		if len(d.Etcd) == 0 {
			return errors.New("--advertise needs gateway.discovery.etcd")
		}
		reg, err := registry.NewEtcdRegistry(d.Etcd, d.Prefix)
		if err != nil {
			return err
		}
		defer reg.Close()
		serverOpts = append(serverOpts, server.WithRegistry(reg, d.Name, opts.Advertise))
	}

	srv := server.NewServer(serverOpts...)
	srv.Use(middleware.LoggingMiddleware(logger))
	if opts.RateLimit > 0 {
		srv.Use(middleware.RateLimitMiddleware(opts.RateLimit, int(opts.RateLimit)+1))
	}
	server.RegisterDefaultMethods(srv, clock.Real())

	httpSrv := &http.Server{Addr: opts.Listen, Handler: srv, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 2)
	go func() {
		logger.Info("mock gateway listening", "addr", opts.Listen)
		errCh <- httpSrv.ListenAndServe()
	}()
	if opts.TCP != "" {
		go func() {
			logger.Info("mock gateway stream listening", "addr", opts.TCP)
			errCh <- srv.Serve("tcp", opts.TCP)
		}()
	}

	if err := srv.Announce(ctx); err != nil {
		return err
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down mock gateway")
	if err := srv.Shutdown(5 * time.Second); err != nil {
		logger.Warn("mock gateway shutdown", "error", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
