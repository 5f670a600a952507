package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadConfig(t *testing.T) {
	path := writeConfig(t, `
gateway:
  address: "2001:db8::1"
  port: 10000
client:
  id: station-7
  retry_timeout: 2s
publish:
  qos: 1
  max_payload: 1KB
`)
	cfg, err := ReadConfig(path)
	if err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}
	if cfg.Gateway.Port != 10000 {
		t.Errorf("gateway port = %d, want 10000", cfg.Gateway.Port)
	}
	if cfg.Client.ID != "station-7" {
		t.Errorf("client id = %q", cfg.Client.ID)
	}
	if cfg.RetryTimeout() != 2*time.Second {
		t.Errorf("retry timeout = %v", cfg.RetryTimeout())
	}
	// untouched keys keep their defaults
	if cfg.Registry.Capacity != 16 || cfg.Publish.Topic != "sensor/values" {
		t.Errorf("defaults lost: %+v %+v", cfg.Registry, cfg.Publish)
	}
	if cfg.MaxPayload() != 1024 {
		t.Errorf("max payload = %d, want 1024", cfg.MaxPayload())
	}

	cached, err := GetConfig()
	if err != nil || cached != cfg {
		t.Errorf("GetConfig did not return the cached config")
	}
}

func TestReadConfigCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	_, err := ReadConfig(path)
	if !errors.Is(err, ErrConfigCreated) {
		t.Fatalf("expected ErrConfigCreated, got %v", err)
	}
	cfg, err := ReadConfig(path)
	if err != nil {
		t.Fatalf("reading generated config: %v", err)
	}
	if cfg.Client.ID != "gertrud" || cfg.Gateway.Port != 1883 {
		t.Errorf("unexpected generated config %+v", cfg)
	}
	if cfg.MaxPayload() != 128 {
		t.Errorf("max payload = %d, want 128", cfg.MaxPayload())
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MQTTSN_GATEWAY_ADDRESS", "fe80::1")
	t.Setenv("MQTTSN_GATEWAY_PORT", "1884")
	t.Setenv("MQTTSN_CLIENT_ID", "env-client")

	cfg, err := ReadConfig(writeConfig(t, "app_name: test\n"))
	if err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}
	if cfg.Gateway.Address != "fe80::1" || cfg.Gateway.Port != 1884 || cfg.Client.ID != "env-client" {
		t.Errorf("env overrides not applied: %+v %+v", cfg.Gateway, cfg.Client)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Gateway.Port = 70000 }},
		{"client id", func(c *Config) { c.Client.ID = "a-client-id-that-is-far-too-long" }},
		{"empty client id", func(c *Config) { c.Client.ID = "" }},
		{"keep alive", func(c *Config) { c.Client.KeepAlive = "65536s" }},
		{"zero interval", func(c *Config) { c.Publish.Interval = "0s" }},
		{"attempts", func(c *Config) { c.Client.ConnectAttempts = 0 }},
		{"duration", func(c *Config) { c.Client.RetryTimeout = "soon" }},
		{"capacity", func(c *Config) { c.Registry.Capacity = 0 }},
		{"payload", func(c *Config) { c.Publish.MaxPayload = "lots" }},
		{"will qos", func(c *Config) { c.Client.Will = WillConfig{Topic: "w", QoS: 3} }},
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	edge := Default()
	edge.Client.KeepAlive = "65535s"
	edge.Client.ID = "abcdefghijklmnopqrstuvw"
	if err := edge.Validate(); err != nil {
		t.Fatalf("boundary config invalid: %v", err)
	}
	for _, tt := range tests {
		cfg := Default()
		tt.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}
