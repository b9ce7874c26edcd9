// Package config loads the conntrack-airport server configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultListen         = ":50051"
	DefaultSchema         = "main"
	DefaultBatchSize      = 1024
	DefaultMaxMessageSize = 16 << 20
)

// Config is the server configuration.
type Config struct {
	// Listen is the gRPC listen address.
	Listen string `yaml:"listen"`
	// Advertise is the address put into Flight endpoint locations. Empty
	// means clients reuse their connection.
	Advertise string `yaml:"advertise"`
	// MetricsListen is the HTTP address for /metrics. Empty disables it.
	MetricsListen string `yaml:"metrics_listen"`

	// Schema is the schema that holds the Connections table.
	Schema string `yaml:"schema"`
	// NetNS is a network namespace path such as /var/run/netns/blue.
	NetNS string `yaml:"netns"`
	// BaseFilter is a SQL WHERE clause applied to every scan.
	BaseFilter string `yaml:"base_filter"`

	BatchSize      int `yaml:"batch_size"`
	MaxMessageSize int `yaml:"max_message_size"`

	Log  LogConfig  `yaml:"log"`
	Auth AuthConfig `yaml:"auth"`
	TLS  TLSConfig  `yaml:"tls"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// AuthConfig maps bearer tokens to identities. No tokens disables auth.
type AuthConfig struct {
	Tokens map[string]string `yaml:"tokens"`
}

// TLSConfig enables TLS on the gRPC listener when both files are set.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Enabled reports whether TLS is configured.
func (t TLSConfig) Enabled() bool { return t.CertFile != "" }

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Listen:         DefaultListen,
		Schema:         DefaultSchema,
		BatchSize:      DefaultBatchSize,
		MaxMessageSize: DefaultMaxMessageSize,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result. Unknown keys
// are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		errs = append(errs, fmt.Errorf("listen: %w", err))
	}
	if c.Advertise != "" {
		if _, _, err := net.SplitHostPort(c.Advertise); err != nil {
			errs = append(errs, fmt.Errorf("advertise: %w", err))
		}
	}
	if c.MetricsListen != "" {
		if _, _, err := net.SplitHostPort(c.MetricsListen); err != nil {
			errs = append(errs, fmt.Errorf("metrics_listen: %w", err))
		}
	}
	if c.Schema == "" {
		errs = append(errs, errors.New("schema must not be empty"))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch_size must be positive, got %d", c.BatchSize))
	}
	if c.MaxMessageSize < 0 {
		errs = append(errs, fmt.Errorf("max_message_size must not be negative, got %d", c.MaxMessageSize))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	for token, identity := range c.Auth.Tokens {
		if token == "" || identity == "" {
			errs = append(errs, errors.New("auth.tokens entries need a token and an identity"))
			break
		}
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		errs = append(errs, errors.New("tls.cert_file and tls.key_file must be set together"))
	}
	return errors.Join(errs...)
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// Logger builds the process logger.
func (l LogConfig) Logger() (*slog.Logger, error) {
	level, err := l.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
}
