// Package transport owns the network side of a gateway call.
//
// A Conn is one bidirectional, message-oriented connection. It is opened in the
// background and reports what happens to it as events on a single channel:
//
//	Open(ctx, endpoint) ──► EventOpen ──► EventMessage* ──► [EventError] ──► EventClosed
//
// Exactly one EventClosed is delivered per Conn, after which the channel is closed.
// Close is idempotent: closing a Conn that is already closed, or that never finished
// connecting, is a no-op.
//
// Connections are never pooled or reused; each call opens and closes its own.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

var (
	ErrClosed  = errors.New("transport: connection closed")
	ErrNotOpen = errors.New("transport: connection not open")
)

// Endpoint is where and as whom to connect. It is supplied per call and never persisted.
type Endpoint struct {
	Address    string
	Credential string
}

// EventKind identifies a connection event.
type EventKind int

const (
	EventOpen EventKind = iota
	EventMessage
	EventError
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one thing that happened to a Conn. Data is set for EventMessage, Err for EventError.
type Event struct {
	Kind EventKind
	Data []byte
	Err  error
}

// Conn is a single connection handle.
type Conn interface {
	// Events delivers connection events to the single subscriber.
	Events() <-chan Event

	// Send writes one message. It fails with ErrNotOpen before EventOpen and ErrClosed after Close.
	Send(data []byte) error

	// Close tears the connection down. Always returns nil; safe to call repeatedly.
	Close() error
}

// Dialer opens connections. Open returns immediately; the outcome of connecting is
// reported through the Conn's events.
type Dialer interface {
	Open(ctx context.Context, endpoint Endpoint) Conn
}

// Options configures the dialers built by NewDialer.
type Options struct {
	// Binary selects binary frames (CBOR) instead of text frames (JSON).
	Binary bool

	// HandshakeTimeout bounds the WebSocket upgrade. Zero means no separate bound; the
	// caller's deadline still applies.
	HandshakeTimeout time.Duration

	// Heartbeat is the keepalive interval of stream connections. Zero disables it.
	Heartbeat time.Duration
}

// NewDialer returns a Dialer that picks the transport from the endpoint's scheme:
// ws, wss, http and https use WebSocket; tcp uses the framed stream transport.
func NewDialer(opts Options) Dialer {
	return &schemeDialer{
		ws:     &WebSocketDialer{Binary: opts.Binary, HandshakeTimeout: opts.HandshakeTimeout},
		stream: &StreamDialer{Binary: opts.Binary, Heartbeat: opts.Heartbeat},
	}
}

type schemeDialer struct {
	ws     *WebSocketDialer
	stream *StreamDialer
}

func (d *schemeDialer) Open(ctx context.Context, endpoint Endpoint) Conn {
	addr := NormalizeAddress(endpoint.Address)
	u, err := url.Parse(addr)
	if err != nil {
		return failed(ctx, fmt.Errorf("transport: invalid address %q: %w", endpoint.Address, err))
	}
	endpoint.Address = addr
	switch u.Scheme {
	case "ws", "wss":
		return d.ws.Open(ctx, endpoint)
	case "tcp":
		return d.stream.Open(ctx, endpoint)
	default:
		return failed(ctx, fmt.Errorf("transport: unsupported scheme %q", u.Scheme))
	}
}

// NormalizeAddress rewrites http(s) URLs to ws(s) and defaults a bare host:port to ws://.
func NormalizeAddress(addr string) string {
	switch {
	case strings.HasPrefix(addr, "http://"), strings.HasPrefix(addr, "https://"):
		return "ws" + strings.TrimPrefix(addr, "http")
	case !strings.Contains(addr, "://"):
		return "ws://" + addr
	default:
		return addr
	}
}

// failed returns a Conn whose only events are the dial error and the terminal close.
func failed(ctx context.Context, err error) Conn {
	return open(ctx, func(context.Context) (link, error) { return nil, err })
}
