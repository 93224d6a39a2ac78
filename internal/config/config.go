package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	ThingSpeak ThingSpeakConfig `json:"thingspeak"`
	Collector  CollectorConfig  `json:"collector"`
	Setpoints  SetpointsConfig  `json:"setpoints"`
	Logging    LoggingConfig    `json:"logging"`
	Redis      RedisConfig      `json:"redis"`
	MQTT       MQTTConfig       `json:"mqtt"`
	Simulator  SimulatorConfig  `json:"simulator"`
	Data       DataConfig       `json:"data"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port string `json:"port"`
	Host string `json:"host"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver      string `json:"driver"` // sqlite3 or postgres
	Path        string `json:"path"`
	PostgresURL string `json:"postgres_url"`
}

// ThingSpeakConfig describes the upstream channel
type ThingSpeakConfig struct {
	BaseURL    string   `json:"base_url"`
	ChannelID  string   `json:"channel_id"`
	ReadAPIKey string   `json:"read_api_key"`
	Timeout    Duration `json:"timeout"`
	MaxRetries int      `json:"max_retries"`
	RetryDelay Duration `json:"retry_delay"`
}

// CollectorConfig represents the collection schedule
type CollectorConfig struct {
	Interval Duration `json:"interval"`
}

// SetpointsConfig holds the defaults seeded into the setpoints table
type SetpointsConfig struct {
	TempMin  float64 `json:"temp_min"`
	TempMax  float64 `json:"temp_max"`
	LevelMin int     `json:"level_min"`
	LevelMax int     `json:"level_max"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // json or console
}

// RedisConfig enables the latest-reading cache when Addr is set
type RedisConfig struct {
	Addr string   `json:"addr"`
	TTL  Duration `json:"ttl"`
}

// MQTTConfig enables republishing of collected readings when Broker is set
type MQTTConfig struct {
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Topic    string `json:"topic"`
}

// SimulatorConfig replaces the ThingSpeak channel with simulated readings when enabled
type SimulatorConfig struct {
	Enabled bool  `json:"enabled"`
	Seed    int64 `json:"seed"`
}

// DataConfig represents data file configuration
type DataConfig struct {
	RawDataFolder string `json:"raw_data_folder"`
}

// Duration is a time.Duration that decodes from "5s" style strings or from nanoseconds
type Duration struct {
	time.Duration
}

// UnmarshalJSON accepts either a Go duration string or a number of nanoseconds
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("invalid duration: %s", string(b))
	}
}

// MarshalJSON writes the duration as a Go duration string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Default returns the configuration used when no config file is present
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "3000",
			Host: "0.0.0.0",
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			Path:   "aquaponia.db",
		},
		ThingSpeak: ThingSpeakConfig{
			BaseURL:    "https://api.thingspeak.com",
			Timeout:    Duration{5 * time.Second},
			MaxRetries: 3,
			RetryDelay: Duration{time.Second},
		},
		Collector: CollectorConfig{
			Interval: Duration{5 * time.Second},
		},
		Setpoints: SetpointsConfig{
			TempMin:  20.0,
			TempMax:  30.0,
			LevelMin: 60,
			LevelMax: 90,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Redis: RedisConfig{
			TTL: Duration{24 * time.Hour},
		},
		MQTT: MQTTConfig{
			ClientID: "aquamon-collector",
			Topic:    "aquamon/readings",
		},
		Data: DataConfig{
			RawDataFolder: "raw_data",
		},
	}
}

// LoadConfig loads configuration from a JSON file on top of the defaults
func LoadConfig(configPath string) (*Config, error) {
	// Default config path
	if configPath == "" {
		configPath = "config.json"
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON over the defaults so omitted keys keep their default value
	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// LoadConfigWithDefaults loads config with fallback to defaults if file doesn't exist,
// then applies .env and environment overrides and validates the result
func LoadConfigWithDefaults(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.json"
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		config = Default()
	}

	// .env is optional; real environment variables win over it
	_ = godotenv.Load()
	applyEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks values that would make the collector or the store misbehave
func (c *Config) Validate() error {
	if c.Collector.Interval.Duration <= 0 {
		return fmt.Errorf("invalid collector interval: %s", c.Collector.Interval)
	}
	if c.ThingSpeak.Timeout.Duration <= 0 {
		return fmt.Errorf("invalid thingspeak timeout: %s", c.ThingSpeak.Timeout)
	}
	if c.ThingSpeak.MaxRetries < 0 {
		return fmt.Errorf("invalid max_retries: %d", c.ThingSpeak.MaxRetries)
	}
	if c.ThingSpeak.RetryDelay.Duration < 0 {
		return fmt.Errorf("invalid retry_delay: %s", c.ThingSpeak.RetryDelay)
	}
	if c.Setpoints.TempMin >= c.Setpoints.TempMax {
		return fmt.Errorf("invalid temperature setpoints: min (%f) must be less than max (%f)", c.Setpoints.TempMin, c.Setpoints.TempMax)
	}
	if c.Setpoints.LevelMin >= c.Setpoints.LevelMax {
		return fmt.Errorf("invalid level setpoints: min (%d) must be less than max (%d)", c.Setpoints.LevelMin, c.Setpoints.LevelMax)
	}
	switch c.Database.Driver {
	case "sqlite3":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite3")
		}
	case "postgres":
		if c.Database.PostgresURL == "" {
			return fmt.Errorf("postgres_url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}
	return nil
}

// applyEnv overrides config values with environment variables when they are set
func applyEnv(c *Config) {
	setString(&c.Server.Port, "PORT")
	setString(&c.Database.Driver, "DATABASE_DRIVER")
	setString(&c.Database.Path, "DATABASE_PATH")
	setString(&c.Database.PostgresURL, "POSTGRES_URL")
	setString(&c.ThingSpeak.BaseURL, "THINGSPEAK_BASE_URL")
	setString(&c.ThingSpeak.ChannelID, "THINGSPEAK_CHANNEL_ID")
	setString(&c.ThingSpeak.ReadAPIKey, "THINGSPEAK_READ_API_KEY")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.MQTT.Broker, "MQTT_BROKER")
	setString(&c.Logging.Level, "LOG_LEVEL")

	if v, ok := os.LookupEnv("THINGSPEAK_MAX_RETRIES"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.ThingSpeak.MaxRetries = n
		}
	}
	if v, ok := os.LookupEnv("SIMULATOR_ENABLED"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Simulator.Enabled = b
		}
	}
	if v, ok := os.LookupEnv("COLLECTOR_INTERVAL"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			c.Collector.Interval = Duration{d}
		}
	}
}

func setString(dst *string, key string) {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		*dst = value
	}
}
