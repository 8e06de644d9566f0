package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/obsidianstack/alertrelay/relay/internal/apitransport"
	"github.com/obsidianstack/alertrelay/relay/internal/proxy"
)

// Default values for the relay configuration.
const (
	DefaultHTTPPort      = 8080
	DefaultGRPCPort      = 50051
	DefaultTimeout       = 10 * time.Second
	DefaultConcurrency   = 8
	DefaultHistoryTTL    = time.Hour
	DefaultHistoryMax    = 500
	DefaultProbeInterval = 30 * time.Second
	DefaultRuleCooldown  = 15 * time.Minute
	DefaultRuleSeverity  = "warning"
)

// Config holds the relay configuration parsed from the `relay:` section of
// config.yaml.
type Config struct {
	Relay RelayConfig `yaml:"relay"`
}

// RelayConfig holds all relay settings.
type RelayConfig struct {
	// HTTPPort serves the REST API, /metrics and the WebSocket feed (default 8080).
	HTTPPort int `yaml:"http_port"`

	// GRPCPort serves the gRPC health service (default 50051). Zero disables it.
	GRPCPort int `yaml:"grpc_port"`

	// Auth configures how API clients authenticate.
	Auth AuthConfig `yaml:"auth"`

	// Delivery bounds outbound requests.
	Delivery DeliveryConfig `yaml:"delivery"`

	// Proxy is the outbound proxy policy shared by every transport.
	Proxy ProxyConfig `yaml:"proxy"`

	// History controls the in-memory delivery log.
	History HistoryConfig `yaml:"history"`

	// Transports are the configured API endpoints alerts are delivered to.
	Transports []TransportConfig `yaml:"transports"`

	// Probes are Prometheus endpoints evaluated against alert rules.
	Probes []ProbeConfig `yaml:"probes"`
}

// AuthConfig controls client authentication for the REST API and gRPC.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header carries the key. Defaults to "x-api-key".
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// DeliveryConfig bounds outbound delivery.
type DeliveryConfig struct {
	// Timeout caps a single HTTP request to a transport.
	Timeout time.Duration `yaml:"timeout"`

	// Concurrency caps how many transports one alert is delivered to at once.
	Concurrency int `yaml:"concurrency"`
}

// ProxyConfig is the outbound proxy policy.
type ProxyConfig struct {
	HTTPProxy       string `yaml:"http_proxy"`
	HTTPSProxy      string `yaml:"https_proxy"`
	NoProxy         string `yaml:"no_proxy"`
	FromEnvironment bool   `yaml:"from_environment"`
}

// Policy converts the config into a proxy.Policy.
func (p ProxyConfig) Policy() proxy.Policy {
	return proxy.Policy{
		HTTPProxy:       p.HTTPProxy,
		HTTPSProxy:      p.HTTPSProxy,
		NoProxy:         p.NoProxy,
		FromEnvironment: p.FromEnvironment,
	}
}

// HistoryConfig controls delivery record retention.
type HistoryConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

// TransportConfig is one API transport. Field names follow the operator-facing
// schema (api-method, api-url, ...).
type TransportConfig struct {
	Name         string `yaml:"name"`
	Method       string `yaml:"api-method"`
	URL          string `yaml:"api-url"`
	Options      string `yaml:"api-options"`
	Headers      string `yaml:"api-headers"`
	Body         string `yaml:"api-body"`
	AuthUsername string `yaml:"api-auth-username"`
	AuthPassword string `yaml:"api-auth-password"`

	// AuthPasswordEnv names an environment variable holding the password.
	// It takes precedence over AuthPassword when set.
	AuthPasswordEnv string `yaml:"api-auth-password-env"`
}

// Password returns the basic-auth password, preferring the environment.
func (t TransportConfig) Password() string {
	if t.AuthPasswordEnv != "" {
		return os.Getenv(t.AuthPasswordEnv)
	}
	return t.AuthPassword
}

// Transport converts the entry into the delivery configuration.
func (t TransportConfig) Transport() apitransport.Config {
	return apitransport.Config{
		URL:          t.URL,
		Method:       t.Method,
		Options:      t.Options,
		Headers:      t.Headers,
		Body:         t.Body,
		AuthUsername: t.AuthUsername,
		AuthPassword: t.Password(),
	}
}

// LogValue keeps the password and any URL credentials out of logs.
func (t TransportConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("name", t.Name),
		slog.String("method", strings.ToUpper(t.Method)),
		slog.String("url", apitransport.Redact(t.URL)),
		slog.Bool("auth", t.AuthUsername != ""),
	)
}

// ProbeConfig is one scraped Prometheus endpoint.
type ProbeConfig struct {
	// ID identifies the probe in alerts and metrics.
	ID string `yaml:"id"`

	// Endpoint is the full URL of a Prometheus text exposition.
	Endpoint string `yaml:"endpoint"`

	// Interval between scrapes (default 30s).
	Interval time.Duration `yaml:"interval"`

	Rules []RuleConfig `yaml:"rules"`
}

// RuleConfig is one threshold rule evaluated on every scrape.
type RuleConfig struct {
	// Name is the human-readable alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is "<metric> <op> <number>", e.g. "up == 0".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	Cooldown time.Duration `yaml:"cooldown"`
}

// Load reads and parses the config file at path.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("relay config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML config data.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("relay config: parse yaml: %w", err)
	}
	applyNestedDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("relay config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Relay: RelayConfig{
			HTTPPort: DefaultHTTPPort,
			GRPCPort: DefaultGRPCPort,
			Delivery: DeliveryConfig{
				Timeout:     DefaultTimeout,
				Concurrency: DefaultConcurrency,
			},
			History: HistoryConfig{
				TTL:        DefaultHistoryTTL,
				MaxEntries: DefaultHistoryMax,
			},
		},
	}
}

// applyNestedDefaults fills defaults inside list entries, which yaml.Unmarshal
// allocates fresh and so cannot be pre-populated.
func applyNestedDefaults(cfg *Config) {
	for i := range cfg.Relay.Probes {
		p := &cfg.Relay.Probes[i]
		if p.Interval == 0 {
			p.Interval = DefaultProbeInterval
		}
		for j := range p.Rules {
			r := &p.Rules[j]
			if r.Cooldown == 0 {
				r.Cooldown = DefaultRuleCooldown
			}
			if r.Severity == "" {
				r.Severity = DefaultRuleSeverity
			}
		}
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	r := cfg.Relay
	if r.HTTPPort <= 0 || r.HTTPPort > 65535 {
		return fmt.Errorf("relay.http_port %d is out of range [1, 65535]", r.HTTPPort)
	}
	if r.GRPCPort < 0 || r.GRPCPort > 65535 {
		return fmt.Errorf("relay.grpc_port %d is out of range [0, 65535]", r.GRPCPort)
	}
	switch r.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("relay.auth.mode %q unknown: want apikey|none", r.Auth.Mode)
	}
	if r.Delivery.Timeout <= 0 {
		return fmt.Errorf("relay.delivery.timeout must be positive")
	}
	if r.Delivery.Concurrency <= 0 {
		return fmt.Errorf("relay.delivery.concurrency must be positive")
	}
	if r.History.TTL <= 0 {
		return fmt.Errorf("relay.history.ttl must be positive")
	}
	if r.History.MaxEntries <= 0 {
		return fmt.Errorf("relay.history.max_entries must be positive")
	}

	names := make(map[string]bool, len(r.Transports))
	for i, t := range r.Transports {
		if t.Name == "" {
			return fmt.Errorf("transports[%d]: name is required", i)
		}
		if names[t.Name] {
			return fmt.Errorf("transports[%d]: duplicate name %q", i, t.Name)
		}
		names[t.Name] = true
		if err := apitransport.Validate(t.Transport()); err != nil {
			return fmt.Errorf("transports[%d] %q: %w", i, t.Name, err)
		}
	}

	probes := make(map[string]bool, len(r.Probes))
	for i, p := range r.Probes {
		if p.ID == "" {
			return fmt.Errorf("probes[%d]: id is required", i)
		}
		if probes[p.ID] {
			return fmt.Errorf("probes[%d]: duplicate id %q", i, p.ID)
		}
		probes[p.ID] = true
		if p.Endpoint == "" {
			return fmt.Errorf("probes[%d] %q: endpoint is required", i, p.ID)
		}
		if p.Interval < 0 {
			return fmt.Errorf("probes[%d] %q: interval must not be negative", i, p.ID)
		}
		for j, rule := range p.Rules {
			if rule.Name == "" {
				return fmt.Errorf("probes[%d].rules[%d]: name is required", i, j)
			}
			if len(strings.Fields(rule.Condition)) != 3 {
				return fmt.Errorf("probes[%d].rules[%d] %q: condition %q must be \"<metric> <op> <value>\"",
					i, j, rule.Name, rule.Condition)
			}
			switch rule.Severity {
			case "critical", "warning", "info":
			default:
				return fmt.Errorf("probes[%d].rules[%d] %q: severity %q unknown: want critical|warning|info",
					i, j, rule.Name, rule.Severity)
			}
		}
	}
	return nil
}

// Transport returns the named transport entry.
func (c *Config) Transport(name string) (TransportConfig, bool) {
	for _, t := range c.Relay.Transports {
		if t.Name == name {
			return t, true
		}
	}
	return TransportConfig{}, false
}
