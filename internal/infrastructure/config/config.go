package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// clientIDPrefix is prepended to generated MQTT client identifiers.
const clientIDPrefix = "serialbridge-"

// Config is the root configuration structure for the serial bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Broker    BrokerConfig    `yaml:"broker"`
	Topics    TopicsConfig    `yaml:"topics"`
	Serial    SerialConfig    `yaml:"serial"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Logging   LoggingConfig   `yaml:"logging"`
	Journal   JournalConfig   `yaml:"journal"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
}

// BrokerConfig contains MQTT broker connection settings.
type BrokerConfig struct {
	// Address is the broker URI, e.g. "tcp://localhost:1883" or "ssl://broker:8883".
	Address string `yaml:"address"`

	// ClientID identifies this bridge to the broker.
	// If empty, a unique "serialbridge-xxxxxxxx" identifier is generated.
	ClientID string `yaml:"client_id"`

	// Username for MQTT authentication (optional).
	Username string `yaml:"username"`

	// Password for MQTT authentication (optional).
	// WARNING: Never log this value. Use String() method for safe logging.
	Password string `yaml:"password"`

	// ConnectTimeout bounds each connect handshake. Default: 10s.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// KeepAlive is the MQTT keep-alive interval. Default: 60s.
	KeepAlive time.Duration `yaml:"keep_alive"`

	// TLSInsecureSkipVerify disables certificate verification for TLS
	// broker addresses. Development use only.
	TLSInsecureSkipVerify bool `yaml:"tls_insecure_skip_verify"`
}

// String returns a string representation with password masked.
// Use this for logging to prevent credential exposure.
func (b BrokerConfig) String() string {
	password := ""
	if b.Password != "" {
		password = "[REDACTED]"
	}
	return fmt.Sprintf("BrokerConfig{Address:%q, ClientID:%q, Username:%q, Password:%s}",
		b.Address, b.ClientID, b.Username, password)
}

// MarshalJSON implements json.Marshaler to redact password in JSON output.
func (b BrokerConfig) MarshalJSON() ([]byte, error) {
	type redacted BrokerConfig
	safe := redacted(b)
	if safe.Password != "" {
		safe.Password = "[REDACTED]"
	}
	return json.Marshal(safe)
}

// TopicsConfig names the four fixed MQTT topics the bridge uses.
type TopicsConfig struct {
	// Transmit carries raw bytes to be written to the serial device.
	Transmit string `yaml:"transmit"`

	// Receive carries bytes read from the serial device.
	Receive string `yaml:"receive"`

	// ReceiveControl carries read requests (a decimal byte count).
	ReceiveControl string `yaml:"receive_control"`

	// Availability carries the "online"/"offline" liveness beacon.
	Availability string `yaml:"availability"`

	// AvailabilityRetained makes the broker retain the latest beacon.
	AvailabilityRetained bool `yaml:"availability_retained"`
}

// SerialConfig contains serial device settings.
type SerialConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`

	// Timeout bounds each read. A read returns whatever arrived within it.
	Timeout time.Duration `yaml:"timeout"`

	// MaxRead is the largest byte count a single read request may ask for.
	// Default: 65536.
	MaxRead int `yaml:"max_read"`

	// DataBits (5-8). Default: 8.
	DataBits int `yaml:"data_bits"`

	// Parity: "none", "odd", "even", "mark" or "space". Default: "none".
	Parity string `yaml:"parity"`

	// StopBits: 1 or 2. Default: 1.
	StopBits int `yaml:"stop_bits"`

	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the serial I/O circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive I/O failures that open
	// the breaker. 0 disables the breaker.
	FailureThreshold int `yaml:"failure_threshold"`

	// ResetTimeout is how long the breaker stays open before a trial request.
	// Default: 30s.
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// ReconnectConfig contains the bounded reconnection policy.
type ReconnectConfig struct {
	// Interval is the fixed delay between reconnect attempts. Default: 5s.
	Interval time.Duration `yaml:"interval"`

	// MaxAttempts is the number of attempts before giving up. Default: 12.
	MaxAttempts int `yaml:"max_attempts"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// JournalConfig contains the SQLite session journal settings.
type JournalConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Path        string        `yaml:"path"`
	BusyTimeout int           `yaml:"busy_timeout"`
	Retention   time.Duration `yaml:"retention"`
}

// InfluxDBConfig contains InfluxDB telemetry settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SERIALBRIDGE_SECTION_KEY
// For example: SERIALBRIDGE_BROKER_ADDRESS, SERIALBRIDGE_SERIAL_DEVICE
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if cfg.Broker.ClientID == "" {
		cfg.Broker.ClientID = GenerateClientID()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// GenerateClientID returns a unique MQTT client identifier.
func GenerateClientID() string {
	return clientIDPrefix + uuid.NewString()[:8]
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Broker: BrokerConfig{
			ConnectTimeout: 10 * time.Second,
			KeepAlive:      60 * time.Second,
		},
		Serial: SerialConfig{
			Baud:     9600,
			Timeout:  time.Second,
			MaxRead:  65536,
			DataBits: 8,
			Parity:   "none",
			StopBits: 1,
			Breaker: BreakerConfig{
				ResetTimeout: 30 * time.Second,
			},
		},
		Reconnect: ReconnectConfig{
			Interval:    5 * time.Second,
			MaxAttempts: 12,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Journal: JournalConfig{
			Path:        "./data/serialbridge.db",
			BusyTimeout: 5,
			Retention:   30 * 24 * time.Hour,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SERIALBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Broker
	if v := os.Getenv("SERIALBRIDGE_BROKER_ADDRESS"); v != "" {
		cfg.Broker.Address = v
	}
	if v := os.Getenv("SERIALBRIDGE_BROKER_USERNAME"); v != "" {
		cfg.Broker.Username = v
	}
	if v := os.Getenv("SERIALBRIDGE_BROKER_PASSWORD"); v != "" {
		cfg.Broker.Password = v
	}

	// Serial
	if v := os.Getenv("SERIALBRIDGE_SERIAL_DEVICE"); v != "" {
		cfg.Serial.Device = v
	}

	// InfluxDB
	if v := os.Getenv("SERIALBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Broker validation
	if c.Broker.Address == "" {
		errs = append(errs, "broker.address is required")
	} else if u, err := url.Parse(c.Broker.Address); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "broker.address must be a URI such as tcp://host:1883")
	}
	if c.Broker.ClientID == "" {
		errs = append(errs, "broker.client_id is required")
	}
	if c.Broker.Password != "" && c.Broker.Username == "" {
		errs = append(errs, "broker.password requires broker.username")
	}

	// Topic validation
	topics := map[string]string{
		"topics.transmit":        c.Topics.Transmit,
		"topics.receive":         c.Topics.Receive,
		"topics.receive_control": c.Topics.ReceiveControl,
		"topics.availability":    c.Topics.Availability,
	}
	for _, name := range []string{"topics.transmit", "topics.receive", "topics.receive_control", "topics.availability"} {
		topic := topics[name]
		if topic == "" {
			errs = append(errs, name+" is required")
			continue
		}
		if strings.ContainsAny(topic, "+#") {
			errs = append(errs, name+" must not contain wildcards")
		}
	}
	if c.Topics.Transmit != "" && c.Topics.Transmit == c.Topics.ReceiveControl {
		errs = append(errs, "topics.transmit and topics.receive_control must differ")
	}

	// Serial validation
	if c.Serial.Device == "" {
		errs = append(errs, "serial.device is required")
	}
	if c.Serial.Baud <= 0 {
		errs = append(errs, "serial.baud must be positive")
	}
	if c.Serial.Timeout <= 0 {
		errs = append(errs, "serial.timeout must be positive")
	}
	if c.Serial.MaxRead <= 0 {
		errs = append(errs, "serial.max_read must be positive")
	}
	if c.Serial.DataBits < 5 || c.Serial.DataBits > 8 {
		errs = append(errs, "serial.data_bits must be between 5 and 8")
	}
	switch strings.ToLower(c.Serial.Parity) {
	case "none", "odd", "even", "mark", "space":
	default:
		errs = append(errs, "serial.parity must be one of none, odd, even, mark, space")
	}
	if c.Serial.StopBits != 1 && c.Serial.StopBits != 2 {
		errs = append(errs, "serial.stop_bits must be 1 or 2")
	}
	if c.Serial.Breaker.FailureThreshold < 0 {
		errs = append(errs, "serial.breaker.failure_threshold must not be negative")
	}

	// Reconnect validation
	if c.Reconnect.Interval <= 0 {
		errs = append(errs, "reconnect.interval must be positive")
	}
	if c.Reconnect.MaxAttempts < 1 {
		errs = append(errs, "reconnect.max_attempts must be at least 1")
	}

	// Optional sinks
	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, "journal.path is required when the journal is enabled")
	}
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
