// Package client calls methods on the agent gateway.
//
// Every Invoke is self-contained: it resolves the gateway, opens its own connection,
// performs the connect handshake, sends exactly one method request, waits for the
// matching response and closes the connection, all under one deadline. Nothing is
// pooled or reused, so concurrent Invokes never share state.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"clawdash/clock"
	"clawdash/codec"
	"clawdash/message"
	"clawdash/middleware"
	"clawdash/transport"
)

const (
	// DefaultTimeout applies when Invoke is given a zero or negative timeout.
	DefaultTimeout = 15 * time.Second

	DefaultRole     = "operator"
	ProtocolVersion = 3
)

// DefaultIdentity is how the dashboard introduces itself in the handshake.
func DefaultIdentity() message.ClientInfo {
	return message.ClientInfo{
		ID:          "gateway-client",
		DisplayName: "ClawBot Dashboard",
		Version:     "1.0.0",
		Platform:    "linux",
		Mode:        "backend",
	}
}

type Client struct {
	resolver       Resolver
	dialer         transport.Dialer
	codec          codec.Codec
	clock          clock.Clock
	logger         *slog.Logger
	identity       message.ClientInfo
	role           string
	caps           []string
	minProtocol    int
	maxProtocol    int
	defaultTimeout time.Duration
	newID          func() string
	middlewares    []middleware.Middleware
	handler        middleware.HandlerFunc
}

type Option func(*Client)

// WithDialer replaces the transport. The default picks WebSocket or TCP by URL scheme.
func WithDialer(d transport.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

func WithCodec(cd codec.Codec) Option {
	return func(c *Client) { c.codec = cd }
}

func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clock = clk }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithIdentity overrides the non-empty fields of DefaultIdentity.
func WithIdentity(info message.ClientInfo) Option {
	return func(c *Client) {
		if info.ID != "" {
			c.identity.ID = info.ID
		}
		if info.DisplayName != "" {
			c.identity.DisplayName = info.DisplayName
		}
		if info.Version != "" {
			c.identity.Version = info.Version
		}
		if info.Platform != "" {
			c.identity.Platform = info.Platform
		}
		if info.Mode != "" {
			c.identity.Mode = info.Mode
		}
	}
}

func WithRole(role string) Option {
	return func(c *Client) { c.role = role }
}

func WithCaps(caps ...string) Option {
	return func(c *Client) { c.caps = append([]string{}, caps...) }
}

// WithProtocol sets the protocol range offered in the handshake.
func WithProtocol(min, max int) Option {
	return func(c *Client) {
		c.minProtocol = min
		c.maxProtocol = max
	}
}

func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

// WithMiddleware wraps every Invoke. The first middleware is the outermost.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(c *Client) { c.middlewares = append(c.middlewares, mws...) }
}

// WithResolver picks the endpoint per call instead of using the fixed one.
func WithResolver(r Resolver) Option {
	return func(c *Client) { c.resolver = r }
}

// WithIDGenerator replaces the correlation id source. Ids must be unique per request.
func WithIDGenerator(f func() string) Option {
	return func(c *Client) { c.newID = f }
}

// NewClient returns a client for endpoint. The endpoint is only used when no resolver is
// configured.
func NewClient(endpoint transport.Endpoint, opts ...Option) *Client {
	c := &Client{
		resolver:       StaticResolver(endpoint),
		codec:          &codec.JSONCodec{},
		clock:          clock.Real(),
		logger:         slog.Default(),
		identity:       DefaultIdentity(),
		role:           DefaultRole,
		caps:           []string{},
		minProtocol:    ProtocolVersion,
		maxProtocol:    ProtocolVersion,
		defaultTimeout: DefaultTimeout,
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dialer == nil {
		c.dialer = transport.NewDialer(transport.Options{Binary: c.codec.Type() == codec.CodecTypeCBOR})
	}
	c.handler = middleware.Chain(c.middlewares...)(c.invoke)
	return c
}

// Invoke calls method with params and returns the raw result payload. A zero or negative
// timeout means the client's default. The error is one of ErrTimeout, ErrCancelled,
// *HandshakeRejectedError, *RPCError or *TransportError, possibly wrapped by middleware.
func (c *Client) Invoke(ctx context.Context, method string, params map[string]any, timeout time.Duration) (json.RawMessage, error) {
	return c.handler(ctx, &middleware.Request{Method: method, Params: params, Timeout: timeout})
}

// Call is Invoke followed by decoding the result into reply. A nil reply discards it.
func (c *Client) Call(ctx context.Context, method string, params map[string]any, timeout time.Duration, reply any) error {
	payload, err := c.Invoke(ctx, method, params, timeout)
	if err != nil {
		return err
	}
	if reply == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, reply); err != nil {
		return fmt.Errorf("gateway rpc: decoding %s result: %w", method, err)
	}
	return nil
}

func (c *Client) invoke(ctx context.Context, req *middleware.Request) (json.RawMessage, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}
	return newCall(c, req.Method, req.Params, timeout).run(ctx)
}

// connectParams builds the handshake. The credential travels with the endpoint of the
// call and is never stored on the client.
func (c *Client) connectParams(credential string) message.ConnectParams {
	caps := c.caps
	if caps == nil {
		caps = []string{}
	}
	return message.ConnectParams{
		MinProtocol: c.minProtocol,
		MaxProtocol: c.maxProtocol,
		Client:      c.identity,
		Caps:        caps,
		Role:        c.role,
		Auth:        message.Auth{Token: credential},
	}
}
