// Package config loads and validates runtime configuration for the
// enrichment pipeline. Settings come from a YAML config file with
// environment variable overrides; API credentials may additionally be
// supplied through a secrets.env file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultDeviceFields are the Axonius device field paths requested when
// the config does not specify AX_DEVICE_FIELDS.
var DefaultDeviceFields = []string{
	"specific_data.data.hostname",
	"specific_data.data.network_interfaces.ips_preferred",
	"specific_data.data.network_interfaces.mac_preferred",
	"specific_data.data.os.type",
	"specific_data.data.os.distribution",
	"specific_data.data.last_seen",
	"adapters_data.axonius_adapter.last_seen",
}

// DefaultUserFields are the Axonius user field paths requested when the
// config does not specify AX_USER_FIELDS.
var DefaultUserFields = []string{
	"specific_data.data.username",
	"specific_data.data.associated_devices",
	"specific_data.data.last_seen",
}

// Config contains runtime configuration for the pipeline.
type Config struct {
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch" mapstructure:"elasticsearch"`
	Axonius       AxoniusConfig       `yaml:"axonius" mapstructure:"axonius"`
	Pipeline      PipelineConfig      `yaml:"pipeline" mapstructure:"pipeline"`
	Scheduler     SchedulerConfig     `yaml:"scheduler" mapstructure:"scheduler"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	NATS          NATSConfig          `yaml:"nats" mapstructure:"nats"`
	Redis         RedisConfig         `yaml:"redis" mapstructure:"redis"`
	Logging       LoggingConfig       `yaml:"logging" mapstructure:"logging"`
}

// ElasticsearchConfig captures event source connection settings.
type ElasticsearchConfig struct {
	URL      string `yaml:"url" mapstructure:"url"`
	Index    string `yaml:"index" mapstructure:"index"`
	Pipeline string `yaml:"pipeline" mapstructure:"pipeline"`
	APIKey   string `yaml:"api_key" mapstructure:"api_key"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Insecure bool   `yaml:"insecure" mapstructure:"insecure"`
}

// AxoniusConfig captures asset inventory connection settings.
type AxoniusConfig struct {
	InstanceURL  string   `yaml:"instance_url" mapstructure:"instance_url"`
	APIKey       string   `yaml:"api_key" mapstructure:"api_key"`
	APISecret    string   `yaml:"api_secret" mapstructure:"api_secret"`
	DeviceFields []string `yaml:"device_fields" mapstructure:"device_fields"`
	UserFields   []string `yaml:"user_fields" mapstructure:"user_fields"`
	PageLimit    int      `yaml:"page_limit" mapstructure:"page_limit"`
}

// PipelineConfig captures batching, windowing and retry settings.
type PipelineConfig struct {
	BatchSize             int `yaml:"batch_size" mapstructure:"batch_size"`
	MaxRecords            int `yaml:"max_records" mapstructure:"max_records"`
	Workers               int `yaml:"workers" mapstructure:"workers"`
	WindowMinutes         int `yaml:"window_minutes" mapstructure:"window_minutes"`
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds" mapstructure:"request_timeout_seconds"`
	RetryAttempts         int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoffSeconds   int `yaml:"retry_backoff_seconds" mapstructure:"retry_backoff_seconds"`
}

// RequestTimeout returns the per-call timeout as a duration.
func (p PipelineConfig) RequestTimeout() time.Duration {
	return time.Duration(p.RequestTimeoutSeconds) * time.Second
}

// RetryBackoff returns the base retry backoff as a duration.
func (p PipelineConfig) RetryBackoff() time.Duration {
	return time.Duration(p.RetryBackoffSeconds) * time.Second
}

// Window returns the lookback window as a duration.
func (p PipelineConfig) Window() time.Duration {
	return time.Duration(p.WindowMinutes) * time.Minute
}

// SchedulerConfig captures the serve-mode cycle interval.
type SchedulerConfig struct {
	IntervalMinutes int `yaml:"interval_minutes" mapstructure:"interval_minutes"`
}

// Interval returns the cycle interval as a duration.
func (s SchedulerConfig) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// ServerConfig captures HTTP server settings for serve mode.
type ServerConfig struct {
	Port                int `yaml:"port" mapstructure:"port"`
	ReadTimeoutSeconds  int `yaml:"read_timeout_seconds" mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int `yaml:"write_timeout_seconds" mapstructure:"write_timeout_seconds"`
	IdleTimeoutSeconds  int `yaml:"idle_timeout_seconds" mapstructure:"idle_timeout_seconds"`
}

// ReadTimeout returns the configured read timeout as a duration.
func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout returns the configured write timeout as a duration.
func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSeconds) * time.Second
}

// IdleTimeout returns the configured idle timeout as a duration.
func (s ServerConfig) IdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutSeconds) * time.Second
}

// NATSConfig captures report publishing settings.
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled" mapstructure:"enabled"`
	URL           string `yaml:"url" mapstructure:"url"`
	Subject       string `yaml:"subject" mapstructure:"subject"`
	MaxReconnects int    `yaml:"max_reconnects" mapstructure:"max_reconnects"`
	ReconnectWait int    `yaml:"reconnect_wait_seconds" mapstructure:"reconnect_wait_seconds"`
}

// ReconnectWaitDuration returns the reconnect wait as a time.Duration.
func (n NATSConfig) ReconnectWaitDuration() time.Duration {
	return time.Duration(n.ReconnectWait) * time.Second
}

// RedisConfig captures watermark checkpoint settings.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
	Key      string `yaml:"key" mapstructure:"key"`
}

// LoggingConfig captures logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
	File   string `yaml:"file" mapstructure:"file"`     // empty means stdout
}

// Load reads configuration from the provided path, environment variables
// and an optional secrets.env file next to the config file.
func Load(configPath string) (*Config, error) {
	// Credentials may live in a secrets.env file kept out of the main
	// config. Missing file is not an error.
	_ = godotenv.Load("secrets.env")

	v := viper.New()

	// Set all defaults
	v.SetDefault("elasticsearch.url", "")
	v.SetDefault("elasticsearch.index", "")
	v.SetDefault("elasticsearch.pipeline", "")
	v.SetDefault("elasticsearch.insecure", false)

	v.SetDefault("axonius.instance_url", "")
	v.SetDefault("axonius.device_fields", DefaultDeviceFields)
	v.SetDefault("axonius.user_fields", DefaultUserFields)
	v.SetDefault("axonius.page_limit", 100)

	v.SetDefault("pipeline.batch_size", 100)
	v.SetDefault("pipeline.max_records", 1000)
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.window_minutes", 15)
	v.SetDefault("pipeline.request_timeout_seconds", 60)
	v.SetDefault("pipeline.retry_attempts", 3)
	v.SetDefault("pipeline.retry_backoff_seconds", 2)

	v.SetDefault("scheduler.interval_minutes", 15)

	v.SetDefault("server.port", 8096)
	v.SetDefault("server.read_timeout_seconds", 15)
	v.SetDefault("server.write_timeout_seconds", 15)
	v.SetDefault("server.idle_timeout_seconds", 60)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject", "ise.enrich.report")
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait_seconds", 2)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key", "ise-enrich:watermark")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/ise-enrich")
	}

	// Environment variables override
	v.SetEnvPrefix("ISE_ENRICH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// The documented flat setting names are honored as plain env vars.
	_ = v.BindEnv("elasticsearch.url", "ES_URL")
	_ = v.BindEnv("elasticsearch.index", "ES_INDEX")
	_ = v.BindEnv("elasticsearch.pipeline", "ES_PIPELINE")
	_ = v.BindEnv("elasticsearch.api_key", "ES_API_KEY")
	_ = v.BindEnv("axonius.instance_url", "AX_INSTANCE_URL")
	_ = v.BindEnv("axonius.api_key", "AX_API_KEY")
	_ = v.BindEnv("axonius.api_secret", "AX_API_SECRET")
	_ = v.BindEnv("pipeline.batch_size", "BATCH_SIZE")
	_ = v.BindEnv("pipeline.max_records", "MAX_RECORDS")
	_ = v.BindEnv("pipeline.request_timeout_seconds", "REQUEST_TIMEOUT")
	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("logging.file", "LOG_FILE")

	// Read config
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found; use defaults
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that the configuration is usable. Missing connection
// settings for either external system are a fatal startup error, not a
// pipeline-cycle error.
func (c *Config) Validate() error {
	if c.Elasticsearch.URL == "" {
		return fmt.Errorf("elasticsearch.url (ES_URL) is required")
	}
	if c.Elasticsearch.Index == "" {
		return fmt.Errorf("elasticsearch.index (ES_INDEX) is required")
	}
	if c.Axonius.InstanceURL == "" {
		return fmt.Errorf("axonius.instance_url (AX_INSTANCE_URL) is required")
	}
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline.batch_size must be positive, got %d", c.Pipeline.BatchSize)
	}
	if c.Pipeline.MaxRecords <= 0 {
		return fmt.Errorf("pipeline.max_records must be positive, got %d", c.Pipeline.MaxRecords)
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be positive, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.WindowMinutes <= 0 {
		return fmt.Errorf("pipeline.window_minutes must be positive, got %d", c.Pipeline.WindowMinutes)
	}
	if c.Pipeline.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("pipeline.request_timeout_seconds must be positive, got %d", c.Pipeline.RequestTimeoutSeconds)
	}
	if c.Axonius.PageLimit <= 0 {
		return fmt.Errorf("axonius.page_limit must be positive, got %d", c.Axonius.PageLimit)
	}
	return nil
}

// Redacted returns a copy of the config with credentials masked, suitable
// for rendering with `config show`.
func (c *Config) Redacted() Config {
	out := *c
	if out.Elasticsearch.APIKey != "" {
		out.Elasticsearch.APIKey = "********"
	}
	if out.Elasticsearch.Password != "" {
		out.Elasticsearch.Password = "********"
	}
	if out.Axonius.APIKey != "" {
		out.Axonius.APIKey = "********"
	}
	if out.Axonius.APISecret != "" {
		out.Axonius.APISecret = "********"
	}
	if out.Redis.Password != "" {
		out.Redis.Password = "********"
	}
	return out
}
