package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clawdash/client"
	"clawdash/clock"
)

// stubInvoker answers from a table keyed by method and records the last call.
type stubInvoker struct {
	results map[string]string
	err     error

	method  string
	params  map[string]any
	timeout time.Duration
}

func (s *stubInvoker) Invoke(ctx context.Context, method string, params map[string]any, timeout time.Duration) (json.RawMessage, error) {
	s.method, s.params, s.timeout = method, params, timeout
	if s.err != nil {
		return nil, s.err
	}
	return json.RawMessage(s.results[method]), nil
}

var testNow = time.Date(2026, 2, 10, 15, 30, 0, 0, time.UTC)

func get(t *testing.T, h http.Handler, target string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	return rec.Code
}

func TestHealthOnline(t *testing.T) {
	inv := &stubInvoker{results: map[string]string{"channels.status": `{"uptimeMs":123456}`}}
	h := New(inv)

	var body map[string]any
	code := get(t, h, "/api/health", &body)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"openclaw": "online", "uptimeMs": 123456.0}, body)
	assert.Equal(t, "channels.status", inv.method)
	assert.Equal(t, 8*time.Second, inv.timeout)
	assert.Equal(t, map[string]any{}, inv.params)
}

func TestHealthOnlineWithoutUptime(t *testing.T) {
	h := New(&stubInvoker{results: map[string]string{"channels.status": `{}`}})

	var body map[string]any
	get(t, h, "/api/health", &body)
	assert.Equal(t, map[string]any{"openclaw": "online", "uptimeMs": nil}, body)
}

func TestHealthFailures(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&client.TransportError{Message: "dial tcp: connection refused"}, StatusOffline},
		{&client.HandshakeRejectedError{Message: "bad token"}, StatusOffline},
		{fmt.Errorf("%w after 8s", client.ErrTimeout), StatusDegraded},
		{&client.RPCError{Method: "channels.status", Message: "boom"}, StatusDegraded},
		{errors.New("anything else"), StatusDegraded},
	}
	for _, tc := range cases {
		h := New(&stubInvoker{err: tc.err})
		var body map[string]any
		code := get(t, h, "/api/health", &body)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, map[string]any{"openclaw": tc.want}, body, tc.err.Error())
	}
}

const gatewayUsagePayload = `{
  "updatedAt": 1770700000000,
  "totals": {"totalTokens": 30000, "totalCost": 3.0},
  "aggregates": {
    "messages": {"total": 100, "user": 40, "assistant": 50, "toolCalls": 6, "toolResults": 4, "errors": 1},
    "byModel": [
      {"model": "claude-sonnet-4", "provider": "anthropic", "totals": {"totalCost": 2.5, "totalTokens": 20000}, "messageCount": 70},
      {"model": "", "totals": {"totalCost": 0.5, "totalTokens": 10000}}
    ],
    "daily": [
      {"date": "2026-02-08", "tokens": 10000, "cost": 1.0, "messages": 30},
      {"date": "2026-02-10", "totalTokens": 20000, "totalCost": 2.0, "inputCost": 0.5, "outputCost": 1.5, "messageCount": 70, "messages": 1},
      {"tokens": 5}
    ]
  }
}`

func TestUsage(t *testing.T) {
	inv := &stubInvoker{results: map[string]string{"sessions.usage": gatewayUsagePayload}}
	h := New(inv, WithClock(clock.Fake(testNow)))

	var body UsageResponse
	code := get(t, h, "/api/usage?days=3", &body)
	require.Equal(t, http.StatusOK, code)

	assert.Equal(t, "sessions.usage", inv.method)
	assert.Equal(t, map[string]any{"startDate": "2026-02-07", "endDate": "2026-02-10", "limit": 200}, inv.params)

	require.Len(t, body.Days, 4)
	assert.Equal(t, []string{"2026-02-07", "2026-02-08", "2026-02-09", "2026-02-10"},
		[]string{body.Days[0].Date, body.Days[1].Date, body.Days[2].Date, body.Days[3].Date})
	assert.Equal(t, UsageDay{Date: "2026-02-07"}, body.Days[0], "missing days are zero-filled")
	assert.Equal(t, UsageDay{Date: "2026-02-08", TotalCost: 1.0, TotalTokens: 10000, Messages: 30}, body.Days[1])
	assert.Equal(t, UsageDay{
		Date: "2026-02-10", InputCost: 0.5, OutputCost: 1.5, TotalCost: 2.0, TotalTokens: 20000, Messages: 70,
	}, body.Days[3], "detailed fields win over the short ones")

	assert.Equal(t, 3.0, body.TotalCost)
	assert.Equal(t, 30000.0, body.TotalTokens)
	assert.Equal(t, 100.0, body.TotalMessages)
	assert.Equal(t, map[string]ModelUsage{
		"claude-sonnet-4": {Cost: 2.5, Tokens: 20000, Messages: 70},
		"unknown":         {Cost: 0.5, Tokens: 10000},
	}, body.ByModel)

	assert.InDelta(t, 0.0001, body.Metrics.CostPerToken, 1e-12)
	assert.InDelta(t, 0.03, body.Metrics.CostPerMessage, 1e-12)
	assert.InDelta(t, 300, body.Metrics.TokensPerMessage, 1e-9)
	assert.InDelta(t, 0.75, body.Metrics.AvgDailyCost, 1e-12)
	assert.Equal(t, 18, body.Metrics.DaysRemainingInMonth)

	assert.Equal(t, MessageBreakdown{User: 40, Assistant: 50, ToolCalls: 6, ToolResults: 4, Errors: 1}, body.MessageBreakdown)
	assert.Equal(t, "2026-02-07T15:30:00.000Z", body.Period.Start)
	assert.Equal(t, "2026-02-10T15:30:00.000Z", body.Period.End)
}

func TestUsageDefaultDays(t *testing.T) {
	for _, target := range []string{"/api/usage", "/api/usage?days=abc", "/api/usage?days=-4"} {
		inv := &stubInvoker{results: map[string]string{"sessions.usage": `{}`}}
		h := New(inv, WithClock(clock.Fake(testNow)))

		var body UsageResponse
		get(t, h, target, &body)
		assert.Equal(t, "2026-01-11", inv.params["startDate"], target)
		assert.Len(t, body.Days, 31, target)
		assert.Equal(t, map[string]ModelUsage{}, body.ByModel)
	}
}

func TestUsageFailureReturnsEmptyReport(t *testing.T) {
	h := New(&stubInvoker{err: client.ErrTimeout}, WithClock(clock.Fake(testNow)))

	var body UsageResponse
	code := get(t, h, "/api/usage?days=7", &body)

	assert.Equal(t, http.StatusOK, code)
	require.Len(t, body.Days, 7)
	assert.Equal(t, "2026-02-04", body.Days[0].Date)
	assert.Equal(t, "2026-02-10", body.Days[6].Date)
	assert.Equal(t, Period{Start: "2026-02-04", End: "2026-02-10"}, body.Period)
	assert.Zero(t, body.TotalCost)
	assert.Equal(t, 18, body.Metrics.DaysRemainingInMonth)
}

func TestUsageUndecodablePayload(t *testing.T) {
	h := New(&stubInvoker{results: map[string]string{"sessions.usage": `"not an object"`}}, WithClock(clock.Fake(testNow)))

	var body UsageResponse
	code := get(t, h, "/api/usage?days=2", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, body.Days, 2)
}

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0o644))
}

func TestConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `{
  // heartbeat runs on the cheap local model
  "agents": {
    "defaults": {
      "heartbeat": { "model": "ollama/tinyllama:1.1b", },
    },
  },
}`)
	h := New(&stubInvoker{}, WithConfigDir(dir))

	var body ConfigResponse
	code := get(t, h, "/api/config", &body)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, ConfigResponse{
		HeartbeatModel:     "ollama/tinyllama:1.1b",
		HeartbeatModelName: "tinyllama:1.1b",
		HeartbeatProvider:  "Ollama",
	}, body)
}

func TestConfigWithoutHeartbeat(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `{"agents": {}}`)

	var body ConfigResponse
	code := get(t, New(&stubInvoker{}, WithConfigDir(dir)), "/api/config", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, ConfigResponse{HeartbeatModel: "unknown", HeartbeatModelName: "Unknown", HeartbeatProvider: "Unknown"}, body)
}

func TestConfigMissingFile(t *testing.T) {
	var body ConfigResponse
	code := get(t, New(&stubInvoker{}, WithConfigDir(t.TempDir())), "/api/config", &body)

	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "unknown", body.HeartbeatModel)
	assert.Equal(t, "Unknown", body.HeartbeatModelName)
	assert.Equal(t, "Unknown", body.HeartbeatProvider)
	assert.NotEmpty(t, body.Error)
}

func TestParseModel(t *testing.T) {
	cases := map[string][2]string{
		"ollama/tinyllama:1.1b":      {"tinyllama:1.1b", "Ollama"},
		"anthropic/claude-sonnet-4":  {"claude-sonnet-4", "Anthropic"},
		"openrouter/meta/llama-3-8b": {"meta/llama-3-8b", "Openrouter"},
		"gpt-4o":                     {"gpt-4o", "Gpt-4o"},
		"unknown":                    {"Unknown", "Unknown"},
		"":                           {"Unknown", "Unknown"},
	}
	for in, want := range cases {
		name, provider := parseModel(in)
		assert.Equal(t, want, [2]string{name, provider}, in)
	}
}

func TestConfigCacheInvalidatedOnChange(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `{"agents":{"defaults":{"heartbeat":{"model":"ollama/a"}}}}`)

	h := New(&stubInvoker{}, WithConfigDir(dir))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.WatchConfig(ctx); err != nil {
		t.Skipf("fsnotify not supported: %v", err)
	}

	var body ConfigResponse
	get(t, h, "/api/config", &body)
	require.Equal(t, "a", body.HeartbeatModelName)

	writeConfig(t, dir, `{"agents":{"defaults":{"heartbeat":{"model":"ollama/b"}}}}`)
	assert.Eventually(t, func() bool {
		var body ConfigResponse
		get(t, h, "/api/config", &body)
		return body.HeartbeatModelName == "b"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestConfigSourceCachesWhileWatching(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	writeConfig(t, dir, `{}`)

	src := newConfigSource(path)
	first, err := src.load()
	require.NoError(t, err)
	second, err := src.load()
	require.NoError(t, err)
	assert.NotSame(t, first, second, "no caching without a watcher")

	src.watching = true
	first, _ = src.load()
	second, _ = src.load()
	assert.Same(t, first, second)

	src.invalidate()
	third, _ := src.load()
	assert.NotSame(t, first, third)
}

func TestUnknownRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	New(&stubInvoker{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	New(&stubInvoker{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
