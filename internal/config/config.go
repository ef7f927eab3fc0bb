package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the automation engine.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	WhatsApp   WhatsAppConfig   `yaml:"whatsapp"`
	Cron       CronConfig       `yaml:"cron"`
	Automation AutomationConfig `yaml:"automation"`
	Cache      CacheConfig      `yaml:"cache"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host. Inside a container we listen on all
// interfaces regardless of what the config file says.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds Redis settings for caching and distributed locks.
// Redis is optional: when URL is empty the engine falls back to PG advisory
// locks and skips the contact cache.
type RedisConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// WhatsAppConfig holds the messaging bridge connection settings.
type WhatsAppConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	Instance       string `yaml:"instance"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// Timeout returns the configured timeout as a duration.
func (c WhatsAppConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CronConfig gates the automatic-execution endpoint. An empty SecretKey
// leaves the endpoint open — a deliberate development-mode fallback that
// the server logs loudly at startup.
type CronConfig struct {
	SecretKey string `yaml:"secret_key"`
}

// AutomationConfig holds execution engine tunables.
type AutomationConfig struct {
	ScheduledWindowMinutes int `yaml:"scheduled_window_minutes"`
	EventWindowMinutes     int `yaml:"event_window_minutes"`
	LockTTLSeconds         int `yaml:"lock_ttl_seconds"`
	DefaultExecutionLimit  int `yaml:"default_execution_limit"`
}

// ScheduledWindow returns the half-width of the scheduled-trigger window.
func (c AutomationConfig) ScheduledWindow() time.Duration {
	return time.Duration(c.ScheduledWindowMinutes) * time.Minute
}

// EventWindow returns the lookback window for event triggers.
func (c AutomationConfig) EventWindow() time.Duration {
	return time.Duration(c.EventWindowMinutes) * time.Minute
}

// LockTTL returns the per-automation lock TTL.
func (c AutomationConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// CacheConfig holds contact cache settings.
type CacheConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`
}

// TTL returns the cache entry TTL as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30
	}
	if cfg.WhatsApp.TimeoutSeconds == 0 {
		cfg.WhatsApp.TimeoutSeconds = 30
	}
	if cfg.WhatsApp.MaxRetries == 0 {
		cfg.WhatsApp.MaxRetries = 3
	}
	if cfg.Automation.ScheduledWindowMinutes == 0 {
		cfg.Automation.ScheduledWindowMinutes = 5
	}
	if cfg.Automation.EventWindowMinutes == 0 {
		cfg.Automation.EventWindowMinutes = 60
	}
	if cfg.Automation.LockTTLSeconds == 0 {
		cfg.Automation.LockTTLSeconds = 300
	}
	if cfg.Automation.DefaultExecutionLimit == 0 {
		cfg.Automation.DefaultExecutionLimit = 10
	}
	if cfg.Cache.TTLSeconds == 0 {
		cfg.Cache.TTLSeconds = 300
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in production.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Redis.URL = redisURL
		cfg.Redis.Enabled = true
	}
	if secret := os.Getenv("CRON_SECRET_KEY"); secret != "" {
		cfg.Cron.SecretKey = secret
	}
	if baseURL := os.Getenv("WHATSAPP_BASE_URL"); baseURL != "" {
		cfg.WhatsApp.BaseURL = baseURL
	}
	if apiKey := os.Getenv("WHATSAPP_API_KEY"); apiKey != "" {
		cfg.WhatsApp.APIKey = apiKey
	}
	if instance := os.Getenv("WHATSAPP_INSTANCE"); instance != "" {
		cfg.WhatsApp.Instance = instance
	}

	return cfg, nil
}
