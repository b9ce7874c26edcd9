package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEmptyUsesDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
listen: 127.0.0.1:6000
advertise: ct.example.net:6000
metrics_listen: :9100
netns: /var/run/netns/blue
base_filter: orig_l4_proto = 6
batch_size: 256
log:
  level: debug
  format: json
auth:
  tokens:
    s3cret: duckdb
`))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:6000", cfg.Listen)
	assert.Equal(t, "ct.example.net:6000", cfg.Advertise)
	assert.Equal(t, ":9100", cfg.MetricsListen)
	assert.Equal(t, "/var/run/netns/blue", cfg.NetNS)
	assert.Equal(t, "orig_l4_proto = 6", cfg.BaseFilter)
	assert.Equal(t, 256, cfg.BatchSize)
	assert.Equal(t, DefaultSchema, cfg.Schema)
	assert.Equal(t, DefaultMaxMessageSize, cfg.MaxMessageSize)
	assert.Equal(t, map[string]string{"s3cret": "duckdb"}, cfg.Auth.Tokens)

	level, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	logger, err := cfg.Log.Logger()
	require.NoError(t, err)
	assert.True(t, logger.Enabled(t.Context(), slog.LevelDebug))
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("listen: :1\nbatchsize: 10\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batchsize")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"bad listen", func(c *Config) { c.Listen = "nope" }, "listen"},
		{"bad advertise", func(c *Config) { c.Advertise = "host" }, "advertise"},
		{"bad metrics", func(c *Config) { c.MetricsListen = "9100" }, "metrics_listen"},
		{"empty schema", func(c *Config) { c.Schema = "" }, "schema"},
		{"zero batch", func(c *Config) { c.BatchSize = 0 }, "batch_size"},
		{"negative message size", func(c *Config) { c.MaxMessageSize = -1 }, "max_message_size"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"cert without key", func(c *Config) { c.TLS.CertFile = "server.pem" }, "tls.cert_file"},
		{"empty identity", func(c *Config) { c.Auth.Tokens = map[string]string{"t": ""} }, "auth.tokens"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := Default()
	cfg.Schema = ""
	cfg.BatchSize = -1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema")
	assert.Contains(t, err.Error(), "batch_size")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("schema: conntrack\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "conntrack", cfg.Schema)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
