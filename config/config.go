// Package config loads the clawdash configuration.
//
// Values come from three layers, later ones winning:
//
//  1. built-in defaults (Default)
//  2. an optional YAML file, given by --config or CLAWDASH_CONFIG
//  3. the OPENCLAW_* / CLAWDASH_* environment variables, so a container can be
//     configured without a file
//
// The configuration is read once at startup and not reloaded.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"clawdash/codec"
	"clawdash/loadbalance"
)

// Environment variables read by Load.
const (
	EnvConfigFile   = "CLAWDASH_CONFIG"
	EnvGatewayURL   = "OPENCLAW_GATEWAY_URL"
	EnvGatewayToken = "OPENCLAW_GATEWAY_TOKEN"
	EnvConfigPath   = "OPENCLAW_CONFIG_PATH"
	EnvListen       = "CLAWDASH_LISTEN"
	EnvEtcd         = "CLAWDASH_ETCD_ENDPOINTS"
)

type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	Client    ClientConfig    `yaml:"client"`
	Dashboard DashboardConfig `yaml:"dashboard"`
}

// GatewayConfig says where the gateway is and how to talk to it.
type GatewayConfig struct {
	// URL of a single gateway. http(s) URLs are rewritten to ws(s); tcp:// selects the
	// framed stream transport.
	URL string `yaml:"url"`

	// Token is the static bearer credential presented in the handshake.
	Token string `yaml:"token"`

	// Codec is "json" (the gateway's native format) or "cbor".
	Codec string `yaml:"codec"`

	// Timeout is the default per-call deadline.
	Timeout time.Duration `yaml:"timeout"`

	// MaxTimeout caps the deadline any single call may ask for; zero leaves it uncapped.
	MaxTimeout time.Duration `yaml:"max_timeout"`

	// Heartbeat is the keepalive interval of tcp:// connections; zero disables it.
	Heartbeat time.Duration `yaml:"heartbeat"`

	// Retries is how many times a call failing with a transport error is re-issued.
	Retries int `yaml:"retries"`

	// RateLimit caps outgoing calls per second; zero means unlimited.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`

	Discovery DiscoveryConfig `yaml:"discovery"`
}

// DiscoveryConfig enables etcd-based gateway discovery. When Etcd is empty, URL is used.
type DiscoveryConfig struct {
	Etcd     []string `yaml:"etcd"`
	Prefix   string   `yaml:"prefix"`
	Name     string   `yaml:"name"`
	Balancer string   `yaml:"balancer"` // round_robin, weighted_random or affinity
}

// ClientConfig is how the dashboard introduces itself in the handshake.
type ClientConfig struct {
	ID          string   `yaml:"id"`
	DisplayName string   `yaml:"display_name"`
	Version     string   `yaml:"version"`
	Platform    string   `yaml:"platform"`
	Mode        string   `yaml:"mode"`
	Role        string   `yaml:"role"`
	Caps        []string `yaml:"caps"`
	MinProtocol int      `yaml:"min_protocol"`
	MaxProtocol int      `yaml:"max_protocol"`
}

type DashboardConfig struct {
	Listen string `yaml:"listen"`

	// ConfigDir holds openclaw.json.
	ConfigDir string `yaml:"config_dir"`

	HealthTimeout time.Duration `yaml:"health_timeout"`
	UsageTimeout  time.Duration `yaml:"usage_timeout"`
	UsageDays     int           `yaml:"usage_days"`
}

// Default returns the configuration used when nothing else is given.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			URL:     "ws://openclaw-gateway:18789",
			Codec:   "json",
			Timeout: 15 * time.Second,
			Discovery: DiscoveryConfig{
				Prefix:   "/clawdash/gateways",
				Name:     "openclaw",
				Balancer: "round_robin",
			},
		},
		Client: ClientConfig{
			ID:          "gateway-client",
			DisplayName: "ClawBot Dashboard",
			Version:     "1.0.0",
			Platform:    "linux",
			Mode:        "backend",
			Role:        "operator",
			Caps:        []string{},
			MinProtocol: 3,
			MaxProtocol: 3,
		},
		Dashboard: DashboardConfig{
			Listen:        ":3000",
			ConfigDir:     "/home/node/.openclaw",
			HealthTimeout: 8 * time.Second,
			UsageDays:     30,
		},
	}
}

// Load builds the configuration from path (optional; falls back to $CLAWDASH_CONFIG)
// and the process environment, then validates it.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path == "" {
		path, _ = lookup(EnvConfigFile)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	cfg.applyEnv(lookup)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvGatewayURL); ok && v != "" {
		c.Gateway.URL = v
	}
	if v, ok := lookup(EnvGatewayToken); ok {
		c.Gateway.Token = v
	}
	if v, ok := lookup(EnvConfigPath); ok && v != "" {
		c.Dashboard.ConfigDir = v
	}
	if v, ok := lookup(EnvListen); ok && v != "" {
		if _, err := strconv.Atoi(v); err == nil {
			v = ":" + v // a bare port, as PORT-style variables usually are
		}
		c.Dashboard.Listen = v
	}
	if v, ok := lookup(EnvEtcd); ok && v != "" {
		c.Gateway.Discovery.Etcd = splitList(v)
	}
}

// Validate rejects configurations the client could not start with.
func (c *Config) Validate() error {
	var errs []error

	if c.Gateway.URL == "" && len(c.Gateway.Discovery.Etcd) == 0 {
		errs = append(errs, errors.New("gateway.url is required when discovery is not configured"))
	}
	if _, err := codec.ParseCodecType(c.Gateway.Codec); err != nil {
		errs = append(errs, err)
	}
	if _, err := loadbalance.New(c.Gateway.Discovery.Balancer, ""); err != nil {
		errs = append(errs, err)
	}
	if c.Gateway.Timeout < 0 {
		errs = append(errs, errors.New("gateway.timeout must not be negative"))
	}
	if c.Gateway.MaxTimeout < 0 {
		errs = append(errs, errors.New("gateway.max_timeout must not be negative"))
	}
	if c.Gateway.Retries < 0 {
		errs = append(errs, errors.New("gateway.retries must not be negative"))
	}
	if c.Gateway.RateLimit < 0 {
		errs = append(errs, errors.New("gateway.rate_limit must not be negative"))
	}

	if _, err := semver.NewVersion(c.Client.Version); err != nil {
		errs = append(errs, fmt.Errorf("client.version %q is not a semantic version: %w", c.Client.Version, err))
	}
	if c.Client.MinProtocol < 1 || c.Client.MaxProtocol < 1 {
		errs = append(errs, errors.New("client protocol bounds must be at least 1"))
	} else if c.Client.MinProtocol > c.Client.MaxProtocol {
		errs = append(errs, fmt.Errorf("client.min_protocol %d exceeds client.max_protocol %d",
			c.Client.MinProtocol, c.Client.MaxProtocol))
	}

	if c.Dashboard.UsageDays < 1 {
		errs = append(errs, errors.New("dashboard.usage_days must be at least 1"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
