package meta

import (
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"mtastsd/internal/resolver"
)

// DefaultListenAddress is the TCP address served when neither the configuration nor the
// environment specify one.
const DefaultListenAddress = "127.0.0.1:5870"

// Environment variables overriding the configured listener address.
const (
	EnvListenAddress = "MTASTSD_ADDR"
	EnvListenPort    = "MTASTSD_PORT"
)

// ApplicationConfig is a top-level block for application-level meta configuration.
type ApplicationConfig struct {
	SentryDSN string `yaml:"sentry_dsn"`
}

// StatsdConfig describes the statsd metrics output.
type StatsdConfig struct {
	Address    string  `yaml:"addr"`
	SampleRate float32 `yaml:"sample_rate"`
}

// PrometheusConfig describes the Prometheus metrics endpoint.
type PrometheusConfig struct {
	Address string `yaml:"addr"`
}

// MetricsConfig is a top-level block for metrics configuration.
type MetricsConfig struct {
	Statsd     *StatsdConfig     `yaml:"statsd"`
	Prometheus *PrometheusConfig `yaml:"prometheus"`
}

// TCPListenerConfig describes the client-facing TCP listener.
type TCPListenerConfig struct {
	Address       string        `yaml:"addr"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	MaxLineLength int           `yaml:"max_line_length"`
}

// ListenerConfig is a top-level block for server listener configuration.
type ListenerConfig struct {
	TCP *TCPListenerConfig `yaml:"tcp"`
}

// ResolverConfig is a top-level block for DNS resolver configuration.
type ResolverConfig struct {
	Nameservers         []string      `yaml:"nameservers"`
	ResolvConf          string        `yaml:"resolv_conf"`
	LoadBalancingPolicy string        `yaml:"load_balancing_policy"`
	Net                 string        `yaml:"net"`
	Timeout             time.Duration `yaml:"timeout"`
}

// FetcherConfig is a top-level block for policy fetch configuration.
type FetcherConfig struct {
	Scheme  string        `yaml:"scheme"`
	Timeout time.Duration `yaml:"timeout"`
}

// Config describes all application configuration options.
type Config struct {
	Application *ApplicationConfig `yaml:"application"`
	Metrics     *MetricsConfig     `yaml:"metrics"`
	Listener    *ListenerConfig    `yaml:"listener"`
	Resolver    *ResolverConfig    `yaml:"resolver"`
	Fetcher     *FetcherConfig     `yaml:"fetcher"`
}

// ParseConfig parses a Config struct instance from a file specified as a path on disk. An empty
// path yields the default configuration. Environment overrides are applied before validation.
func ParseConfig(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: error reading config: err=%v", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: error parsing config: err=%v", err)
		}
	}

	cfg.applyDefaults()

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults fills in the blocks that every deployment needs.
func (c *Config) applyDefaults() {
	if c.Listener == nil {
		c.Listener = &ListenerConfig{}
	}

	if c.Listener.TCP == nil {
		c.Listener.TCP = &TCPListenerConfig{Address: DefaultListenAddress}
	}

	if c.Resolver == nil {
		c.Resolver = &ResolverConfig{}
	}

	if c.Fetcher == nil {
		c.Fetcher = &FetcherConfig{}
	}
}

// applyEnv overrides the host and/or port of the TCP listener address from the environment.
func (c *Config) applyEnv(getenv func(string) string) error {
	addr, port := getenv(EnvListenAddress), getenv(EnvListenPort)
	if addr == "" && port == "" {
		return nil
	}

	current := c.Listener.TCP.Address
	if current == "" {
		current = DefaultListenAddress
	}

	host, currentPort, err := net.SplitHostPort(current)
	if err != nil {
		return fmt.Errorf("config: invalid TCP listener address: addr=%s err=%v", current, err)
	}

	if addr != "" {
		host = addr
	}

	if port != "" {
		currentPort = port
	}

	c.Listener.TCP.Address = net.JoinHostPort(host, currentPort)

	return nil
}

// validate the contents of the configuration. Returns an error if validation failed; nil otherwise.
func (c *Config) validate() error {
	/* Metrics */

	// Users can omit the metrics block entirely to disable metrics reporting.
	if c.Metrics != nil && c.Metrics.Statsd != nil {
		if c.Metrics.Statsd.Address == "" {
			return fmt.Errorf("config: missing metrics statsd address")
		}

		if c.Metrics.Statsd.SampleRate < 0 || c.Metrics.Statsd.SampleRate > 1 {
			return fmt.Errorf("config: statsd sample rate must be in range [0.0, 1.0]")
		}
	}

	if c.Metrics != nil && c.Metrics.Prometheus != nil && c.Metrics.Prometheus.Address == "" {
		return fmt.Errorf("config: missing metrics prometheus address")
	}

	/* Listener */

	if c.Listener.TCP.Address == "" {
		return fmt.Errorf("config: missing TCP server listening address")
	}

	if _, _, err := net.SplitHostPort(c.Listener.TCP.Address); err != nil {
		return fmt.Errorf("config: invalid TCP server listening address: addr=%s", c.Listener.TCP.Address)
	}

	if c.Listener.TCP.MaxLineLength < 0 {
		return fmt.Errorf("config: TCP max line length must not be negative")
	}

	/* Resolver */

	// Validate the load balancing policy, only if provided (empty signifies default).
	if c.Resolver.LoadBalancingPolicy != "" {
		if _, ok := resolver.ParseLoadBalancingPolicy(c.Resolver.LoadBalancingPolicy); !ok {
			return fmt.Errorf(
				"config: unknown load balancing policy: policy=%s",
				c.Resolver.LoadBalancingPolicy,
			)
		}
	}

	switch c.Resolver.Net {
	case "", "udp", "tcp":
	default:
		return fmt.Errorf("config: unknown resolver transport: net=%s", c.Resolver.Net)
	}

	for idx, server := range c.Resolver.Nameservers {
		if _, _, err := net.SplitHostPort(server); err != nil {
			return fmt.Errorf("config: nameserver must be host:port: idx=%d addr=%s", idx, server)
		}
	}

	/* Fetcher */

	switch c.Fetcher.Scheme {
	case "", "http", "https":
	default:
		return fmt.Errorf("config: unknown fetcher scheme: scheme=%s", c.Fetcher.Scheme)
	}

	return nil
}
