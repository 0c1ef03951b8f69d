// Package server is a mock agent gateway speaking the same protocol as the real one.
//
// It exists for tests and local development: the dashboard and the client integration
// tests run against it instead of a live gateway. Connections are accepted over
// WebSocket (ServeHTTP) and over the framed TCP stream (Serve).
//
// Per-connection processing:
//
//	accept → send connect.challenge event → read loop
//	  → connect: validate token and protocol range, answer hello-ok (sequentially)
//	  → other methods: rejected until connect succeeded, then each handled in its own
//	    goroutine through the middleware chain
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"clawdash/middleware"
	"clawdash/registry"
)

// Version is reported to clients in hello-ok.
const Version = "mock-1.0.0"

type Server struct {
	handlers    map[string]middleware.HandlerFunc
	middlewares []middleware.Middleware
	chainOnce   sync.Once
	handler     middleware.HandlerFunc

	token       string
	minProtocol int
	maxProtocol int
	logger      *slog.Logger
	upgrader    websocket.Upgrader

	registry      registry.Registry
	registryName  string
	advertiseAddr string

	mu        sync.Mutex
	listeners []net.Listener
	sessions  map[*session]struct{}
	wg        sync.WaitGroup // in-flight requests
	shutdown  atomic.Bool
}

type Option func(*Server)

// WithToken requires clients to present token in the connect handshake. An empty token
// accepts anyone.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithProtocol sets the protocol range the server accepts.
func WithProtocol(min, max int) Option {
	return func(s *Server) {
		s.minProtocol = min
		s.maxProtocol = max
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithRegistry makes Announce publish advertiseAddr under name, and Shutdown withdraw it.
func WithRegistry(reg registry.Registry, name, advertiseAddr string) Option {
	return func(s *Server) {
		s.registry = reg
		s.registryName = name
		s.advertiseAddr = advertiseAddr
	}
}

func NewServer(opts ...Option) *Server {
	s := &Server{
		handlers:    make(map[string]middleware.HandlerFunc),
		minProtocol: 3,
		maxProtocol: 3,
		logger:      slog.Default(),
		sessions:    make(map[*session]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register installs the handler for method. It must be called before serving.
func (s *Server) Register(method string, h middleware.HandlerFunc) {
	s.handlers[method] = h
}

// Use registers a middleware. Middlewares are applied in the order they are added.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// chain builds the middleware chain once, on first use.
func (s *Server) chain() middleware.HandlerFunc {
	s.chainOnce.Do(func() {
		s.handler = middleware.Chain(s.middlewares...)(s.dispatch)
	})
	return s.handler
}

func (s *Server) dispatch(ctx context.Context, req *middleware.Request) (json.RawMessage, error) {
	h, ok := s.handlers[req.Method]
	if !ok {
		return nil, &Error{Code: CodeMethodNotFound, Message: "unknown method: " + req.Method}
	}
	return h(ctx, req)
}

// ServeHTTP upgrades the request to a WebSocket and serves it until either side closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.shutdown.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	s.serveSession(&wsPeer{conn: conn})
}

// Serve listens on address and serves framed TCP connections until Shutdown.
func (s *Server) Serve(network, address string) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return s.ServeListener(listener)
}

// ServeListener accepts framed TCP connections from listener until Shutdown.
func (s *Server) ServeListener(listener net.Listener) error {
	s.mu.Lock()
	s.listeners = append(s.listeners, listener)
	s.mu.Unlock()

	for {
		conn, err := listener.Accept()
		if err != nil {
			// Shutdown closes the listener; that Accept error is expected.
			if s.shutdown.Load() {
				return nil
			}
			return err
		}
		go s.serveSession(&streamPeer{conn: conn})
	}
}

// Announce publishes this server in the configured registry, keeping the lease alive
// until ctx ends. Without a registry it does nothing.
func (s *Server) Announce(ctx context.Context) error {
	if s.registry == nil {
		return nil
	}
	return s.registry.Register(ctx, s.registryName, registry.Instance{
		Addr:    s.advertiseAddr,
		Weight:  1,
		Version: Version,
	}, 10)
}

// Shutdown withdraws the server from the registry, stops accepting, closes every open
// session and waits up to timeout for in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	if s.registry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := s.registry.Deregister(ctx, s.registryName, s.advertiseAddr); err != nil {
			s.logger.Warn("deregistering mock gateway", "error", err)
		}
		cancel()
	}

	// Set the flag before closing so Accept's error is recognized as intentional.
	s.shutdown.Store(true)

	s.mu.Lock()
	for _, l := range s.listeners {
		l.Close()
	}
	for sess := range s.sessions {
		sess.close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.New("server: timeout waiting for in-flight requests")
	}
}

func (s *Server) track(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown.Load() {
		return false
	}
	s.sessions[sess] = struct{}{}
	return true
}

func (s *Server) untrack(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sess)
}
