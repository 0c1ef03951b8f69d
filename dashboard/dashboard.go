// Package dashboard serves the JSON API behind the status dashboard.
//
// Routes:
//
//	GET /api/health  gateway liveness, from channels.status
//	GET /api/usage   cost and token usage, from sessions.usage (?days=N)
//	GET /api/config  the heartbeat model configured in openclaw.json
//
// Each gateway-backed request is one independent client.Invoke; the dashboard keeps no
// connection open between requests.
package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"clawdash/clock"
)

// Invoker is the part of client.Client the dashboard needs.
type Invoker interface {
	Invoke(ctx context.Context, method string, params map[string]any, timeout time.Duration) (json.RawMessage, error)
}

// ConfigFileName is the gateway configuration file read by /api/config.
const ConfigFileName = "openclaw.json"

type Handler struct {
	invoker       Invoker
	clock         clock.Clock
	logger        *slog.Logger
	config        *configSource
	healthTimeout time.Duration
	usageTimeout  time.Duration
	usageDays     int
	mux           *http.ServeMux
}

type Option func(*Handler)

func WithClock(clk clock.Clock) Option {
	return func(h *Handler) { h.clock = clk }
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithConfigDir sets the directory holding openclaw.json.
func WithConfigDir(dir string) Option {
	return func(h *Handler) { h.config = newConfigSource(filepath.Join(dir, ConfigFileName)) }
}

// WithHealthTimeout bounds the channels.status probe. Default 8s.
func WithHealthTimeout(d time.Duration) Option {
	return func(h *Handler) { h.healthTimeout = d }
}

// WithUsageTimeout bounds sessions.usage. Zero leaves it to the client default.
func WithUsageTimeout(d time.Duration) Option {
	return func(h *Handler) { h.usageTimeout = d }
}

// WithUsageDays sets the window used when the request has no valid days parameter.
func WithUsageDays(days int) Option {
	return func(h *Handler) { h.usageDays = days }
}

func New(invoker Invoker, opts ...Option) *Handler {
	h := &Handler{
		invoker:       invoker,
		clock:         clock.Real(),
		logger:        slog.Default(),
		config:        newConfigSource(filepath.Join("/home/node/.openclaw", ConfigFileName)),
		healthTimeout: 8 * time.Second,
		usageDays:     30,
	}
	for _, opt := range opts {
		opt(h)
	}

	h.mux = http.NewServeMux()
	h.mux.HandleFunc("GET /api/health", h.health)
	h.mux.HandleFunc("GET /api/usage", h.usage)
	h.mux.HandleFunc("GET /api/config", h.openClawConfig)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := h.clock.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	h.mux.ServeHTTP(rec, r)
	h.logger.Debug("dashboard request",
		"method", r.Method, "path", r.URL.Path, "status", rec.status, "elapsed", h.clock.Now().Sub(start))
}

// WatchConfig caches openclaw.json and drops the cache whenever the file changes, until
// ctx ends. Without it the file is re-read on every request.
func (h *Handler) WatchConfig(ctx context.Context) error {
	return h.config.watch(ctx, h.logger)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
