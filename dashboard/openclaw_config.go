package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/fsnotify/fsnotify"
	"github.com/tidwall/jsonc"
)

// openClawFile is the part of openclaw.json the dashboard reads. The file is JSON with
// comments and trailing commas allowed.
type openClawFile struct {
	Agents struct {
		Defaults struct {
			Heartbeat struct {
				Model string `json:"model"`
			} `json:"heartbeat"`
		} `json:"defaults"`
	} `json:"agents"`
}

// ConfigResponse is the body of /api/config.
type ConfigResponse struct {
	HeartbeatModel     string `json:"heartbeatModel"`
	HeartbeatModelName string `json:"heartbeatModelName"`
	HeartbeatProvider  string `json:"heartbeatProvider"`
	Error              string `json:"error,omitempty"`
}

func (h *Handler) openClawConfig(w http.ResponseWriter, r *http.Request) {
	file, err := h.config.load()
	if err != nil {
		h.logger.Error("reading openclaw config", "path", h.config.path, "error", err)
		writeJSON(w, http.StatusInternalServerError, ConfigResponse{
			HeartbeatModel:     "unknown",
			HeartbeatModelName: "Unknown",
			HeartbeatProvider:  "Unknown",
			Error:              err.Error(),
		})
		return
	}

	model := file.Agents.Defaults.Heartbeat.Model
	if model == "" {
		model = "unknown"
	}
	name, provider := parseModel(model)
	writeJSON(w, http.StatusOK, ConfigResponse{
		HeartbeatModel:     model,
		HeartbeatModelName: name,
		HeartbeatProvider:  provider,
	})
}

// parseModel splits "provider/model" into the model name and the capitalized provider:
// "ollama/tinyllama:1.1b" gives ("tinyllama:1.1b", "Ollama"). A value without a slash is
// used for both.
func parseModel(model string) (name, provider string) {
	if model == "" || model == "unknown" {
		return "Unknown", "Unknown"
	}
	provider, name, found := strings.Cut(model, "/")
	if !found || name == "" {
		name = model
	}
	return name, capitalize(provider)
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// configSource reads openclaw.json. Once watch is running the parsed file is cached,
// and every filesystem event on it drops the cache.
type configSource struct {
	path string

	mu         sync.Mutex
	watching   bool
	generation uint64
	cached     *openClawFile
}

func newConfigSource(path string) *configSource {
	return &configSource{path: path}
}

func (s *configSource) load() (*openClawFile, error) {
	s.mu.Lock()
	if s.cached != nil {
		cached := s.cached
		s.mu.Unlock()
		return cached, nil
	}
	generation := s.generation
	s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	var file openClawFile
	if err := json.Unmarshal(jsonc.ToJSON(data), &file); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(s.path), err)
	}

	s.mu.Lock()
	// An invalidation during the read means what we read may already be stale.
	if s.watching && s.generation == generation {
		s.cached = &file
	}
	s.mu.Unlock()
	return &file, nil
}

func (s *configSource) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.cached = nil
}

// watch observes the directory rather than the file so that editors replacing the file
// by rename are noticed too.
func (s *configSource) watch(ctx context.Context, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		w.Close()
		return fmt.Errorf("watching %s: %w", filepath.Dir(s.path), err)
	}

	s.mu.Lock()
	s.watching = true
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.watching = false
			s.cached = nil
			s.mu.Unlock()
			w.Close()
		}()
		name := filepath.Base(s.path)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) == name {
					logger.Debug("openclaw config changed", "op", ev.Op.String())
					s.invalidate()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("openclaw config watcher", "error", err)
				s.invalidate()
			}
		}
	}()
	return nil
}
