package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all daemon configuration loaded from YAML with
// environment variable overrides.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DeviceConfig controls device discovery and the HID transaction layer.
type DeviceConfig struct {
	VendorID        string `yaml:"vendor_id"`
	ProductID       string `yaml:"product_id"`
	PingInterval    int    `yaml:"ping_interval"`    // seconds
	CommandTimeout  int    `yaml:"command_timeout"`  // seconds
	PollInitial     int    `yaml:"poll_initial"`     // milliseconds
	PollMax         int    `yaml:"poll_max"`         // milliseconds
	ResponseTimeout int    `yaml:"response_timeout"` // milliseconds
}

// APIConfig holds HTTP server settings.
type APIConfig struct {
	Host     string         `yaml:"host"`
	Port     int            `yaml:"port"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
}

// TimeoutsConfig holds HTTP server timeout settings in seconds.
type TimeoutsConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig holds WebSocket endpoint settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int64  `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"` // seconds
	PongTimeout    int    `yaml:"pong_timeout"`  // seconds
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"` // seconds
}

// MQTTConfig holds optional status publishing settings.
type MQTTConfig struct {
	Enabled     bool            `yaml:"enabled"`
	Broker      BrokerConfig    `yaml:"broker"`
	Auth        AuthConfig      `yaml:"auth"`
	StatusTopic string          `yaml:"status_topic"`
	QoS         byte            `yaml:"qos"`
	Reconnect   ReconnectConfig `yaml:"reconnect"`
}

// BrokerConfig holds MQTT broker connection settings.
type BrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// AuthConfig holds MQTT authentication credentials.
type AuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ReconnectConfig holds MQTT reconnection behaviour.
type ReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"` // seconds
	MaxDelay     int `yaml:"max_delay"`     // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	File   string `yaml:"file"`
}

// Load reads configuration from the given YAML file, applies environment
// variable overrides, and validates the result. A missing file is not an
// error; defaults plus environment overrides apply.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			VendorID:        "0x1209",
			ProductID:       "0x0001",
			PingInterval:    5,
			CommandTimeout:  5,
			PollInitial:     500,
			PollMax:         5000,
			ResponseTimeout: 1000,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8732,
			Timeouts: TimeoutsConfig{
				Read:  15,
				Write: 15,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 4096,
			PingInterval:   30,
			PongTimeout:    60,
		},
		Database: DatabaseConfig{
			Path:        "/var/lib/deckd/deckd.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: false,
			Broker: BrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "deckd",
			},
			StatusTopic: "deckd/status",
			QoS:         1,
			Reconnect: ReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File:   "/var/log/deckd/deckd.log",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DECKD_DEVICE_VENDOR_ID"); v != "" {
		cfg.Device.VendorID = v
	}
	if v := os.Getenv("DECKD_DEVICE_PRODUCT_ID"); v != "" {
		cfg.Device.ProductID = v
	}
	if v := os.Getenv("DECKD_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("DECKD_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
	if v := os.Getenv("DECKD_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("DECKD_MQTT_ENABLED"); v != "" {
		cfg.MQTT.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("DECKD_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("DECKD_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("DECKD_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("DECKD_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("DECKD_MQTT_STATUS_TOPIC"); v != "" {
		cfg.MQTT.StatusTopic = v
	}
	if v := os.Getenv("DECKD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DECKD_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("DECKD_LOG_OUTPUT"); v != "" {
		cfg.Logging.Output = v
	}
}

// Validate checks configuration values for consistency.
func (c *Config) Validate() error {
	if _, err := c.DeviceVendorID(); err != nil {
		return err
	}
	if _, err := c.DeviceProductID(); err != nil {
		return err
	}
	if c.Device.PingInterval < 1 {
		return fmt.Errorf("device.ping_interval must be at least 1 second")
	}
	if c.Device.CommandTimeout < 1 {
		return fmt.Errorf("device.command_timeout must be at least 1 second")
	}
	if c.Device.PollInitial < 50 {
		return fmt.Errorf("device.poll_initial must be at least 50ms")
	}
	if c.Device.PollMax < c.Device.PollInitial {
		return fmt.Errorf("device.poll_max must be >= device.poll_initial")
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		return fmt.Errorf("api.port must be between 1 and 65535")
	}
	if !strings.HasPrefix(c.WebSocket.Path, "/") {
		return fmt.Errorf("websocket.path must start with /")
	}
	if c.WebSocket.MaxMessageSize < 256 {
		return fmt.Errorf("websocket.max_message_size must be at least 256 bytes")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			return fmt.Errorf("mqtt.broker.host is required when mqtt is enabled")
		}
		if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
			return fmt.Errorf("mqtt.broker.port must be between 1 and 65535")
		}
		if c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.StatusTopic == "" {
			return fmt.Errorf("mqtt.status_topic is required when mqtt is enabled")
		}
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error")
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text")
	}
	switch c.Logging.Output {
	case "stdout", "stderr", "file":
	default:
		return fmt.Errorf("logging.output must be stdout, stderr, or file")
	}
	if c.Logging.Output == "file" && c.Logging.File == "" {
		return fmt.Errorf("logging.file is required when output is file")
	}
	return nil
}

// DeviceVendorID parses the configured vendor ID as a 16-bit hex value.
func (c *Config) DeviceVendorID() (uint16, error) {
	return parseUSBID("device.vendor_id", c.Device.VendorID)
}

// DeviceProductID parses the configured product ID as a 16-bit hex value.
func (c *Config) DeviceProductID() (uint16, error) {
	return parseUSBID("device.product_id", c.Device.ProductID)
}

func parseUSBID(field, s string) (uint16, error) {
	trimmed := strings.TrimPrefix(strings.ToLower(s), "0x")
	id, err := strconv.ParseUint(trimmed, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid USB ID %q", field, s)
	}
	return uint16(id), nil
}

// GetPingInterval returns the device keepalive interval as a duration.
func (c *Config) GetPingInterval() time.Duration {
	return time.Duration(c.Device.PingInterval) * time.Second
}

// GetCommandTimeout returns the command execution timeout as a duration.
func (c *Config) GetCommandTimeout() time.Duration {
	return time.Duration(c.Device.CommandTimeout) * time.Second
}

// GetPollInitial returns the initial presence poll interval as a duration.
func (c *Config) GetPollInitial() time.Duration {
	return time.Duration(c.Device.PollInitial) * time.Millisecond
}

// GetPollMax returns the maximum presence poll interval as a duration.
func (c *Config) GetPollMax() time.Duration {
	return time.Duration(c.Device.PollMax) * time.Millisecond
}

// GetResponseTimeout returns the per-report response timeout as a duration.
func (c *Config) GetResponseTimeout() time.Duration {
	return time.Duration(c.Device.ResponseTimeout) * time.Millisecond
}

// GetReadTimeout returns the HTTP read timeout as a duration.
func (c APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the HTTP write timeout as a duration.
func (c APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the HTTP idle timeout as a duration.
func (c APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}

// GetPingInterval returns the WebSocket ping interval as a duration.
func (c WebSocketConfig) GetPingInterval() time.Duration {
	return time.Duration(c.PingInterval) * time.Second
}

// GetPongTimeout returns the WebSocket pong wait as a duration.
func (c WebSocketConfig) GetPongTimeout() time.Duration {
	return time.Duration(c.PongTimeout) * time.Second
}
