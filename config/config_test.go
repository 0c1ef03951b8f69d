package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := load("", env(nil))
	require.NoError(t, err)

	assert.Equal(t, "ws://openclaw-gateway:18789", cfg.Gateway.URL)
	assert.Equal(t, 15*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, "/home/node/.openclaw", cfg.Dashboard.ConfigDir)
	assert.Equal(t, ":3000", cfg.Dashboard.Listen)
	assert.Equal(t, 8*time.Second, cfg.Dashboard.HealthTimeout)
	assert.Equal(t, "operator", cfg.Client.Role)
	assert.Equal(t, 3, cfg.Client.MinProtocol)
	assert.Equal(t, "linux", cfg.Client.Platform)
}

func TestEnvironmentOverrides(t *testing.T) {
	cfg, err := load("", env(map[string]string{
		EnvGatewayURL:   "https://gw.example.com",
		EnvGatewayToken: "s3cret",
		EnvConfigPath:   "/etc/openclaw",
		EnvListen:       "8080",
		EnvEtcd:         "10.0.0.1:2379, 10.0.0.2:2379,",
	}))
	require.NoError(t, err)

	assert.Equal(t, "https://gw.example.com", cfg.Gateway.URL)
	assert.Equal(t, "s3cret", cfg.Gateway.Token)
	assert.Equal(t, "/etc/openclaw", cfg.Dashboard.ConfigDir)
	assert.Equal(t, ":8080", cfg.Dashboard.Listen)
	assert.Equal(t, []string{"10.0.0.1:2379", "10.0.0.2:2379"}, cfg.Gateway.Discovery.Etcd)
}

func TestFileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clawdash.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
gateway:
  url: ws://file-gateway:18789
  codec: cbor
  timeout: 5s
  retries: 2
client:
  display_name: Staging Dashboard
  version: 2.1.0
  caps: [usage]
dashboard:
  listen: 127.0.0.1:4000
  usage_days: 14
`), 0o644))

	cfg, err := load("", env(map[string]string{
		EnvConfigFile: path,
		EnvGatewayURL: "ws://env-gateway:18789",
	}))
	require.NoError(t, err)

	assert.Equal(t, "ws://env-gateway:18789", cfg.Gateway.URL, "environment wins over the file")
	assert.Equal(t, "cbor", cfg.Gateway.Codec)
	assert.Equal(t, 5*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, 2, cfg.Gateway.Retries)
	assert.Equal(t, "Staging Dashboard", cfg.Client.DisplayName)
	assert.Equal(t, "gateway-client", cfg.Client.ID, "unset fields keep their defaults")
	assert.Equal(t, []string{"usage"}, cfg.Client.Caps)
	assert.Equal(t, "127.0.0.1:4000", cfg.Dashboard.Listen)
	assert.Equal(t, 14, cfg.Dashboard.UsageDays)
}

func TestMissingFile(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "nope.yaml"), env(nil))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"bad version":      func(c *Config) { c.Client.Version = "one" },
		"inverted bounds":  func(c *Config) { c.Client.MinProtocol, c.Client.MaxProtocol = 4, 3 },
		"zero protocol":    func(c *Config) { c.Client.MinProtocol = 0 },
		"unknown codec":    func(c *Config) { c.Gateway.Codec = "xml" },
		"unknown balancer": func(c *Config) { c.Gateway.Discovery.Balancer = "fastest" },
		"no gateway":       func(c *Config) { c.Gateway.URL = "" },
		"negative retries": func(c *Config) { c.Gateway.Retries = -1 },
		"negative max":     func(c *Config) { c.Gateway.MaxTimeout = -time.Second },
		"no usage days":    func(c *Config) { c.Dashboard.UsageDays = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	cfg.Gateway.URL = ""
	cfg.Gateway.Discovery.Etcd = []string{"127.0.0.1:2379"}
	assert.NoError(t, cfg.Validate(), "discovery replaces the url")
}
