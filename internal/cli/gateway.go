package cli

import (
	"log/slog"
	"time"

	"clawdash/client"
	"clawdash/clock"
	"clawdash/codec"
	"clawdash/config"
	"clawdash/loadbalance"
	"clawdash/message"
	"clawdash/middleware"
	"clawdash/registry"
	"clawdash/transport"
)

// newGatewayClient builds the client described by cfg. The returned cleanup releases the
// discovery registry, if any.
func newGatewayClient(cfg *config.Config, logger *slog.Logger) (*client.Client, func(), error) {
	codecType, err := codec.ParseCodecType(cfg.Gateway.Codec)
	if err != nil {
		return nil, nil, err
	}

	mws := []middleware.Middleware{middleware.LoggingMiddleware(logger)}
	if cfg.Gateway.MaxTimeout > 0 {
		mws = append(mws, middleware.TimeoutMiddleware(cfg.Gateway.MaxTimeout))
	}
	if cfg.Gateway.RateLimit > 0 {
		burst := cfg.Gateway.Burst
		if burst < 1 {
			burst = 1
		}
		mws = append(mws, middleware.RateLimitMiddleware(cfg.Gateway.RateLimit, burst))
	}
	if cfg.Gateway.Retries > 0 {
		mws = append(mws, middleware.RetryMiddleware(clock.Real(), cfg.Gateway.Retries, 200*time.Millisecond, client.IsTransportError))
	}

	opts := []client.Option{
		client.WithCodec(codec.GetCodec(codecType)),
		client.WithDialer(transport.NewDialer(transport.Options{
			Binary:    codecType == codec.CodecTypeCBOR,
			Heartbeat: cfg.Gateway.Heartbeat,
		})),
		client.WithLogger(logger),
		client.WithIdentity(message.ClientInfo{
			ID:          cfg.Client.ID,
			DisplayName: cfg.Client.DisplayName,
			Version:     cfg.Client.Version,
			Platform:    cfg.Client.Platform,
			Mode:        cfg.Client.Mode,
		}),
		client.WithRole(cfg.Client.Role),
		client.WithCaps(cfg.Client.Caps...),
		client.WithProtocol(cfg.Client.MinProtocol, cfg.Client.MaxProtocol),
		client.WithMiddleware(mws...),
	}
	opts = append(opts, client.WithDefaultTimeout(defaultTimeout(cfg.Gateway)))

	cleanup := func() {}
	if d := cfg.Gateway.Discovery; len(d.Etcd) > 0 {
		reg, err := registry.NewEtcdRegistry(d.Etcd, d.Prefix)
		if err != nil {
			return nil, nil, err
		}
		balancer, err := loadbalance.New(d.Balancer, cfg.Client.ID)
		if err != nil {
			reg.Close()
			return nil, nil, err
		}
		opts = append(opts, client.WithResolver(&client.DiscoveryResolver{
			Registry:   reg,
			Name:       d.Name,
			Balancer:   balancer,
			Credential: cfg.Gateway.Token,
		}))
		cleanup = func() { reg.Close() }
		logger.Info("gateway discovery enabled", "etcd", d.Etcd, "name", d.Name, "balancer", balancer.Name())
	}

	endpoint := transport.Endpoint{Address: cfg.Gateway.URL, Credential: cfg.Gateway.Token}
	return client.NewClient(endpoint, opts...), cleanup, nil
}

// defaultTimeout is the budget of calls that ask for none: gateway.timeout, or the
// client default, never above gateway.max_timeout.
func defaultTimeout(g config.GatewayConfig) time.Duration {
	d := g.Timeout
	if d <= 0 {
		d = client.DefaultTimeout
	}
	if g.MaxTimeout > 0 && d > g.MaxTimeout {
		d = g.MaxTimeout
	}
	return d
}
