// Package config loads the client configuration from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"

	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/utils"
)

const DefaultPath = "config.yaml"

// ErrConfigCreated is returned when no configuration file existed and a
// default one has been written in its place.
var ErrConfigCreated = errors.New("the configuration file does not exist and has been created. Please try again after editing the configuration file")

type Config struct {
	Gateway       GatewayConfig      `yaml:"gateway"`
	Client        ClientConfig       `yaml:"client"`
	Registry      RegistryConfig     `yaml:"registry"`
	Subscriptions SubscriptionConfig `yaml:"subscriptions"`
	Publish       PublishConfig      `yaml:"publish"`
	Logging       LoggingConfig      `yaml:"logging"`
	Database      DatabaseConfig     `yaml:"database"`
	InfluxDB      InfluxDBConfig     `yaml:"influxdb"`
	DebugMode     bool               `yaml:"debug_mode"`
	AppName       string             `yaml:"app_name"`
}

// GatewayConfig identifies the MQTT-SN gateway. Address is an IPv6 literal.
type GatewayConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

type ClientConfig struct {
	ID              string     `yaml:"id"`
	LocalPort       int        `yaml:"local_port"`
	KeepAlive       string     `yaml:"keep_alive"`
	CleanSession    bool       `yaml:"clean_session"`
	RetryTimeout    string     `yaml:"retry_timeout"`
	ConnectAttempts int        `yaml:"connect_attempts"`
	RequestTimeout  string     `yaml:"request_timeout"`
	Will            WillConfig `yaml:"will"`
}

// WillConfig is handed to the gateway at connect time when Topic is set.
type WillConfig struct {
	Topic   string `yaml:"topic"`
	Message string `yaml:"message"`
	QoS     int    `yaml:"qos"`
	Retain  bool   `yaml:"retain"`
}

type RegistryConfig struct {
	Capacity       int `yaml:"capacity"`
	MaxTopicLength int `yaml:"max_topic_length"`
}

type SubscriptionConfig struct {
	Slots int `yaml:"slots"`
}

type PublishConfig struct {
	Topic      string `yaml:"topic"`
	QoS        int    `yaml:"qos"`
	Interval   string `yaml:"interval"`
	MaxPayload string `yaml:"max_payload"`
}

type LoggingConfig struct {
	Dir       string `yaml:"dir"`
	Retention string `yaml:"retention"`
}

type DatabaseConfig struct {
	Enabled            bool   `yaml:"enabled"`
	Host               string `yaml:"host"`
	Port               uint64 `yaml:"port"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	Database           string `yaml:"database"`
	UseTLS             bool   `yaml:"use_tls"`
	ConnectTimeout     string `yaml:"connect_timeout"`
	SocketTimeout      string `yaml:"socket_timeout"`
	ConnectIdleTimeout string `yaml:"connect_idle_timeout"`
	OperationTimeout   string `yaml:"operation_timeout"`
	Heartbeat          string `yaml:"heartbeat"`
	MinPoolSize        uint64 `yaml:"min_pool_size"`
	MaxPoolSize        uint64 `yaml:"max_pool_size"`
	QueueSize          int    `yaml:"queue_size"`
}

type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

var config *Config

// Default returns the configuration used when a key is absent from the file.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Address: "2001:db8::1",
			Port:    1883,
		},
		Client: ClientConfig{
			ID:              "gertrud",
			KeepAlive:       "60s",
			CleanSession:    true,
			RetryTimeout:    "15s",
			ConnectAttempts: 3,
			RequestTimeout:  "15s",
		},
		Registry: RegistryConfig{
			Capacity:       16,
			MaxTopicLength: 64,
		},
		Subscriptions: SubscriptionConfig{
			Slots: 16,
		},
		Publish: PublishConfig{
			Topic:      "sensor/values",
			QoS:        0,
			Interval:   "5s",
			MaxPayload: "128B",
		},
		Logging: LoggingConfig{
			Dir:       "logs",
			Retention: "30d",
		},
		Database: DatabaseConfig{
			Host:               "localhost",
			Port:               27017,
			Database:           "mqttsn",
			ConnectTimeout:     "10s",
			SocketTimeout:      "10s",
			ConnectIdleTimeout: "5m",
			OperationTimeout:   "5s",
			Heartbeat:          "10s",
			MinPoolSize:        1,
			MaxPoolSize:        4,
			QueueSize:          256,
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Bucket:        "mqttsn",
			BatchSize:     100,
			FlushInterval: 10,
		},
		AppName: "mqttsn-client",
	}
}

// ReadConfig loads path, applies MQTTSN_* environment overrides and validates
// the result. A missing file is replaced by the defaults and ErrConfigCreated
// is returned.
func ReadConfig(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		out, _ := yaml.Marshal(cfg)
		if werr := os.WriteFile(path, out, 0644); werr != nil {
			return nil, fmt.Errorf("writing default config: %w", werr)
		}
		return nil, ErrConfigCreated
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("the configuration file does not contain valid YAML: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	config = cfg
	return cfg, nil
}

// GetConfig returns the configuration cached by the last successful
// ReadConfig, reading DefaultPath on first use.
func GetConfig() (*Config, error) {
	if config != nil {
		return config, nil
	}
	return ReadConfig(DefaultPath)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MQTTSN_GATEWAY_ADDRESS"); v != "" {
		cfg.Gateway.Address = v
	}
	if v := os.Getenv("MQTTSN_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("MQTTSN_CLIENT_ID"); v != "" {
		cfg.Client.ID = v
	}
	if v := os.Getenv("MQTTSN_DATABASE_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("MQTTSN_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("MQTTSN_DEBUG"); v != "" {
		cfg.DebugMode = v == "1" || v == "true"
	}
}

// maxKeepAlive is the largest keep-alive the CONNECT duration field carries.
const maxKeepAlive = 65535 * time.Second

// Validate checks value ranges. The gateway address itself is parsed at
// connect time so that a bad address surfaces as a connect failure.
func (c *Config) Validate() error {
	var errs []error

	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		errs = append(errs, fmt.Errorf("gateway.port %d out of range", c.Gateway.Port))
	}
	if c.Client.LocalPort < 0 || c.Client.LocalPort > 65535 {
		errs = append(errs, fmt.Errorf("client.local_port %d out of range", c.Client.LocalPort))
	}
	if n := len(c.Client.ID); n < 1 || n > 23 {
		errs = append(errs, fmt.Errorf("client.id must be 1..23 bytes, got %d", n))
	}
	if c.Client.ConnectAttempts < 1 {
		errs = append(errs, errors.New("client.connect_attempts must be at least 1"))
	}
	for name, v := range map[string]string{
		"client.keep_alive":      c.Client.KeepAlive,
		"client.retry_timeout":   c.Client.RetryTimeout,
		"client.request_timeout": c.Client.RequestTimeout,
		"publish.interval":       c.Publish.Interval,
		"logging.retention":      c.Logging.Retention,
	} {
		if _, err := utils.ParseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if d, err := utils.ParseDuration(c.Client.KeepAlive); err == nil && d > maxKeepAlive {
		errs = append(errs, fmt.Errorf("client.keep_alive %s exceeds %s", d, maxKeepAlive))
	}
	if d, err := utils.ParseDuration(c.Publish.Interval); err == nil && d <= 0 {
		errs = append(errs, errors.New("publish.interval must be positive"))
	}
	if c.Client.Will.Topic != "" && (c.Client.Will.QoS < 0 || c.Client.Will.QoS > 2) {
		errs = append(errs, fmt.Errorf("client.will.qos %d out of range", c.Client.Will.QoS))
	}
	if c.Registry.Capacity < 1 {
		errs = append(errs, errors.New("registry.capacity must be at least 1"))
	}
	if c.Registry.MaxTopicLength < 1 {
		errs = append(errs, errors.New("registry.max_topic_length must be at least 1"))
	}
	if c.Subscriptions.Slots < 0 {
		errs = append(errs, errors.New("subscriptions.slots must not be negative"))
	}
	if c.Publish.Topic == "" {
		errs = append(errs, errors.New("publish.topic is required"))
	}
	if _, err := parseSize(c.Publish.MaxPayload); err != nil {
		errs = append(errs, fmt.Errorf("publish.max_payload: %w", err))
	}
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, errors.New("influxdb.url is required when influxdb is enabled"))
	}

	return errors.Join(errs...)
}

// MaxPayload returns publish.max_payload in bytes.
func (c *Config) MaxPayload() int {
	size, err := parseSize(c.Publish.MaxPayload)
	if err != nil {
		return 0
	}
	return int(size.Bytes())
}

func parseSize(v string) (datasize.ByteSize, error) {
	var size datasize.ByteSize
	if err := size.UnmarshalText([]byte(v)); err != nil {
		return 0, err
	}
	return size, nil
}

func (c *Config) KeepAlive() time.Duration {
	return utils.MustParseDuration(c.Client.KeepAlive, time.Minute)
}

func (c *Config) RetryTimeout() time.Duration {
	return utils.MustParseDuration(c.Client.RetryTimeout, 15*time.Second)
}

func (c *Config) RequestTimeout() time.Duration {
	return utils.MustParseDuration(c.Client.RequestTimeout, 15*time.Second)
}

func (c *Config) PublishInterval() time.Duration {
	return utils.MustParseDuration(c.Publish.Interval, 5*time.Second)
}

func (c *Config) LogRetention() time.Duration {
	return utils.MustParseDuration(c.Logging.Retention, 30*24*time.Hour)
}
