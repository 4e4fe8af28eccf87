package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
)

// Config is the full on-disk configuration. Field defaults mirror
// Default(); Load writes the default file when none exists so a first
// run always leaves a config the user can edit.
type Config struct {
	Proxy    ProxyOptions    `toml:"proxy"`
	Scripts  ScriptOptions   `toml:"scripts"`
	DNS      DNSOptions      `toml:"dns"`
	Logging  LoggingOptions  `toml:"logging"`
	Security SecurityOptions `toml:"security"`
}

type ProxyOptions struct {
	BindAddress     string `toml:"bind-address"`
	Port            int    `toml:"port"`
	UpstreamTimeout int    `toml:"upstream-timeout"` // seconds
	MaxConnections  int    `toml:"max-connections"`
	BufferSize      int    `toml:"buffer-size"`
}

// ListenAddr joins the bind address and port into a dialable address.
func (o ProxyOptions) ListenAddr() string {
	return net.JoinHostPort(o.BindAddress, fmt.Sprint(o.Port))
}

// Timeout returns the upstream timeout as a duration.
func (o ProxyOptions) Timeout() time.Duration {
	return time.Duration(o.UpstreamTimeout) * time.Second
}

type ScriptOptions struct {
	Directory        string   `toml:"directory"`
	Enabled          bool     `toml:"enabled"`
	MaxExecutionTime int      `toml:"max-execution-time"` // milliseconds, reserved
	AllowedDomains   []string `toml:"allowed-domains"`
	BlockedDomains   []string `toml:"blocked-domains"`
}

type DNSModeType int

var availableDNSModes = []string{"system", "udp"}

const (
	DNSModeSystem DNSModeType = iota
	DNSModeUDP
)

func (t DNSModeType) String() string {
	return availableDNSModes[t]
}

// MustParseDNSMode converts a known-valid mode string. Callers must
// validate via checkDNSMode first.
func MustParseDNSMode(s string) DNSModeType {
	switch strings.ToLower(s) {
	case "system", "":
		return DNSModeSystem
	case "udp":
		return DNSModeUDP
	}
	panic(fmt.Sprintf("unknown dns mode %q", s))
}

type DNSOptions struct {
	Mode string `toml:"mode"`
	Addr string `toml:"addr"`
}

type LoggingOptions struct {
	Level     string `toml:"level"`
	File      string `toml:"file"`
	MaxSizeMB int    `toml:"max-size-mb"`
	MaxFiles  int    `toml:"max-files"`
}

// SecurityOptions carries the auth and rate limit fields for
// compatibility; only the IP lists are enforced.
type SecurityOptions struct {
	RequireAuth  bool     `toml:"require-auth"`
	AuthToken    string   `toml:"auth-token"`
	RateLimit    int      `toml:"rate-limit"` // requests per minute, reserved
	WhitelistIPs []string `toml:"whitelist-ips"`
	BlacklistIPs []string `toml:"blacklist-ips"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Proxy: ProxyOptions{
			BindAddress:     "127.0.0.1",
			Port:            8080,
			UpstreamTimeout: 30,
			MaxConnections:  1000,
			BufferSize:      8192,
		},
		Scripts: ScriptOptions{
			Directory:        "scripts",
			Enabled:          true,
			MaxExecutionTime: 5000,
			AllowedDomains:   []string{"*"},
			BlockedDomains:   []string{},
		},
		DNS: DNSOptions{
			Mode: "system",
		},
		Logging: LoggingOptions{
			Level:     "info",
			File:      "",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
		Security: SecurityOptions{
			RequireAuth:  false,
			RateLimit:    100,
			WhitelistIPs: []string{},
			BlacklistIPs: []string{},
		},
	}
}

// Load reads the TOML config at path. A missing file is not an error:
// the default config is written there and returned.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := cfg.Save(path); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
		return cfg, nil
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the config as TOML.
func (c *Config) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(c)
}

// Validate rejects settings the proxy cannot start with.
func (c *Config) Validate() error {
	if err := checkPort(c.Proxy.Port); err != nil {
		return fmt.Errorf("proxy.port: %w", err)
	}

	if net.ParseIP(c.Proxy.BindAddress) == nil {
		return fmt.Errorf("proxy.bind-address: invalid ip %q", c.Proxy.BindAddress)
	}

	if c.Proxy.UpstreamTimeout <= 0 {
		return fmt.Errorf("proxy.upstream-timeout: must be positive, got %d", c.Proxy.UpstreamTimeout)
	}

	if err := checkLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	if err := checkDNSMode(c.DNS.Mode); err != nil {
		return fmt.Errorf("dns.mode: %w", err)
	}

	if MustParseDNSMode(c.DNS.Mode) == DNSModeUDP {
		if err := checkHostPort(c.DNS.Addr); err != nil {
			return fmt.Errorf("dns.addr: %w", err)
		}
	}

	return nil
}

// LogLevel parses the configured level, defaulting to info.
func (c *Config) LogLevel() zerolog.Level {
	l, err := zerolog.ParseLevel(strings.ToLower(c.Logging.Level))
	if err != nil {
		return zerolog.InfoLevel
	}
	return l
}
