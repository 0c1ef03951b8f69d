package cli

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clawdash/client"
	"clawdash/clock"
	"clawdash/config"
	"clawdash/server"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "clawdash", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"serve", "invoke", "mock-gateway"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
	assert.Equal(t, "false", verbose.DefValue)

	cfg := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, cfg)
	assert.Equal(t, "", cfg.DefValue)
}

func TestInvokeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	invoke, _, err := cmd.Find([]string{"invoke"})
	require.NoError(t, err)

	params := invoke.Flags().Lookup("params")
	require.NotNil(t, params)
	assert.Equal(t, "{}", params.DefValue)
	assert.NotNil(t, invoke.Flags().Lookup("timeout"))
	assert.NotNil(t, invoke.Flags().Lookup("url"))
}

// clearEnv keeps the developer's environment out of config loading.
func clearEnv(t *testing.T) {
	for _, key := range []string{config.EnvConfigFile, config.EnvGatewayURL, config.EnvGatewayToken, config.EnvEtcd} {
		t.Setenv(key, "")
	}
}

func TestInvokeAgainstMockGateway(t *testing.T) {
	clearEnv(t)
	srv := server.NewServer(server.WithToken("cli-token"))
	server.RegisterDefaultMethods(srv, clock.Real())
	hs := httptest.NewServer(srv)
	defer hs.Close()
	defer srv.Shutdown(time.Second)

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{
		"invoke", "sessions.usage",
		"--url", "ws" + strings.TrimPrefix(hs.URL, "http"),
		"--token", "cli-token",
		"--params", `{"startDate":"2026-01-01","endDate":"2026-01-03"}`,
		"--timeout", "5s",
	})
	require.NoError(t, cmd.Execute())

	var usage map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &usage))
	assert.Equal(t, "2026-01-01", usage["startDate"])
	assert.Contains(t, out.String(), "\n  ", "output is indented")
}

func TestInvokeBadParams(t *testing.T) {
	clearEnv(t)
	cmd := NewRootCommand()
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"invoke", "x", "--params", "not json"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --params")
}

func TestInvalidConfigFails(t *testing.T) {
	clearEnv(t)
	cmd := NewRootCommand()
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", "/nonexistent/clawdash.yaml", "invoke", "x"})

	assert.Error(t, cmd.Execute())
}

func TestDefaultTimeoutHonoursCap(t *testing.T) {
	cases := []struct {
		name     string
		timeout  time.Duration
		max      time.Duration
		expected time.Duration
	}{
		{"configured", 5 * time.Second, time.Minute, 5 * time.Second},
		{"unset", 0, 0, client.DefaultTimeout},
		{"unset under cap", 0, time.Minute, client.DefaultTimeout},
		{"capped", 30 * time.Second, 10 * time.Second, 10 * time.Second},
		{"client default capped", 0, 3 * time.Second, 3 * time.Second},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := defaultTimeout(config.GatewayConfig{Timeout: tc.timeout, MaxTimeout: tc.max})
			assert.Equal(t, tc.expected, got)
		})
	}
}
