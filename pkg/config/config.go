package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultAPIKey is a placeholder; real deployments must override it via
// COPY_API_KEY or the config file.
const DefaultAPIKey = "change_me_secret"

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Auth struct {
		APIKey string `yaml:"api_key"`
	} `yaml:"auth"`
	Registry struct {
		ReapInterval time.Duration `yaml:"reap_interval"`
		StaleAfter   time.Duration `yaml:"stale_after"`
	} `yaml:"registry"`
	Signals struct {
		MaxRetained   int           `yaml:"max_retained"`
		QueryCacheTTL time.Duration `yaml:"query_cache_ttl"`
	} `yaml:"signals"`
	RateLimit struct {
		Enabled      bool    `yaml:"enabled"`
		Capacity     float64 `yaml:"capacity"`
		RefillPerSec float64 `yaml:"refill_per_sec"`
	} `yaml:"rate_limit"`
	Stream struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"stream"`
	Cache struct {
		Type  string `yaml:"type"` // memory, redis, layered
		Redis struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Archive struct {
		Type    string `yaml:"type"` // none, kafka, clickhouse
		Workers int    `yaml:"workers"`
		Kafka   struct {
			Brokers      []string      `yaml:"brokers"`
			Topic        string        `yaml:"topic"`
			RequiredAcks int           `yaml:"required_acks"`
			Compression  string        `yaml:"compression"`
			MaxAttempts  int           `yaml:"max_attempts"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"kafka"`
		ClickHouse struct {
			Host        string        `yaml:"host"`
			Port        int           `yaml:"port"`
			Database    string        `yaml:"database"`
			User        string        `yaml:"user"`
			Password    string        `yaml:"password"`
			UseHTTP     bool          `yaml:"use_http"`
			DialTimeout time.Duration `yaml:"dial_timeout"`
			ReadTimeout time.Duration `yaml:"read_timeout"`
		} `yaml:"clickhouse"`
	} `yaml:"archive"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // json or console
		Output string `yaml:"output"`
		// AggregateErrors batches repeated error records into periodic
		// summaries instead of leaving storms to flood the output.
		AggregateErrors bool `yaml:"aggregate_errors"`
	} `yaml:"log"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment
// variables. COPY_API_KEY and PORT are the names deployed terminals and
// hosting platforms already use.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("COPY_API_KEY"); v != "" {
		c.Auth.APIKey = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Cache.Redis.Host = host
		if ok {
			if p, err := strconv.Atoi(port); err == nil {
				c.Cache.Redis.Port = p
			}
		}
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Archive.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Archive.Kafka.Topic = v
	}
	if v := os.Getenv("ARCHIVE_BACKEND"); v != "" {
		c.Archive.Type = v
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Auth.APIKey == "" {
		c.Auth.APIKey = DefaultAPIKey
	}
	if c.Registry.ReapInterval == 0 {
		c.Registry.ReapInterval = 60 * time.Second
	}
	if c.Registry.StaleAfter == 0 {
		c.Registry.StaleAfter = 300 * time.Second
	}
	if c.Signals.MaxRetained == 0 {
		c.Signals.MaxRetained = 1000
	}
	if c.Cache.Type == "" {
		c.Cache.Type = "memory"
	}
	if c.Archive.Type == "" {
		c.Archive.Type = "none"
	}
	if c.Archive.Workers == 0 {
		c.Archive.Workers = 2
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Cache.Type {
	case "memory", "redis", "layered":
	default:
		return fmt.Errorf("cache.type must be 'memory', 'redis' or 'layered', got '%s'", c.Cache.Type)
	}
	switch c.Archive.Type {
	case "none", "kafka", "clickhouse":
	default:
		return fmt.Errorf("archive.type must be 'none', 'kafka' or 'clickhouse', got '%s'", c.Archive.Type)
	}
	if c.Archive.Type == "kafka" && len(c.Archive.Kafka.Brokers) == 0 {
		return fmt.Errorf("archive.kafka.brokers cannot be empty")
	}
	if c.Archive.Type == "clickhouse" && c.Archive.ClickHouse.Host == "" {
		return fmt.Errorf("archive.clickhouse.host is required")
	}
	return nil
}
