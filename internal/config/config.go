package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration. Values come from defaults,
// then an optional YAML file, then STOCKBOOK_* environment variables.
type Config struct {
	Env       string `yaml:"env"`
	Port      int    `yaml:"port"`
	DBPath    string `yaml:"db_path"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	BaseURL   string `yaml:"base_url"`

	JWTSecret     string `yaml:"jwt_secret"`
	JobSecret     string `yaml:"job_secret"`
	JobSecretHash string `yaml:"job_secret_hash"`

	VAPIDPublicKey  string        `yaml:"vapid_public_key"`
	VAPIDPrivateKey string        `yaml:"vapid_private_key"`
	VAPIDSubscriber string        `yaml:"vapid_subscriber"`
	PushTTL         time.Duration `yaml:"push_ttl"`
	PushSendTimeout time.Duration `yaml:"push_send_timeout"`
	PushWorkers     int           `yaml:"push_workers"`
	PushInterval    time.Duration `yaml:"push_interval"`

	DefaultTimezone string `yaml:"default_timezone"`
	DueRateLimit    int    `yaml:"due_rate_limit"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Env:             "development",
		Port:            8080,
		DBPath:          "stockbook.db",
		LogLevel:        "info",
		LogFormat:       "text",
		BaseURL:         "http://localhost:8080",
		VAPIDSubscriber: "mailto:noreply@stockbook.app",
		PushTTL:         24 * time.Hour,
		PushSendTimeout: 5 * time.Second,
		PushWorkers:     4,
		DefaultTimezone: "UTC",
		DueRateLimit:    30,
	}
}

// IsProduction reports whether the service runs with production checks.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// Location returns the configured default timezone.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load reads configuration and validates it. An empty path or a missing
// file means defaults plus environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Env = getEnv("STOCKBOOK_ENV", c.Env)
	c.DBPath = getEnv("STOCKBOOK_DB_PATH", c.DBPath)
	c.LogLevel = getEnv("STOCKBOOK_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("STOCKBOOK_LOG_FORMAT", c.LogFormat)
	c.BaseURL = getEnv("STOCKBOOK_BASE_URL", c.BaseURL)
	c.JWTSecret = getEnv("STOCKBOOK_JWT_SECRET", c.JWTSecret)
	c.JobSecret = getEnv("STOCKBOOK_JOB_SECRET", c.JobSecret)
	c.JobSecretHash = getEnv("STOCKBOOK_JOB_SECRET_HASH", c.JobSecretHash)
	c.VAPIDPublicKey = getEnv("STOCKBOOK_VAPID_PUBLIC_KEY", c.VAPIDPublicKey)
	c.VAPIDPrivateKey = getEnv("STOCKBOOK_VAPID_PRIVATE_KEY", c.VAPIDPrivateKey)
	c.VAPIDSubscriber = getEnv("STOCKBOOK_VAPID_SUBSCRIBER", c.VAPIDSubscriber)
	c.DefaultTimezone = getEnv("STOCKBOOK_DEFAULT_TIMEZONE", c.DefaultTimezone)

	var err error
	if c.Port, err = getEnvInt("STOCKBOOK_PORT", c.Port); err != nil {
		return fmt.Errorf("parse STOCKBOOK_PORT: %w", err)
	}
	if c.PushWorkers, err = getEnvInt("STOCKBOOK_PUSH_WORKERS", c.PushWorkers); err != nil {
		return fmt.Errorf("parse STOCKBOOK_PUSH_WORKERS: %w", err)
	}
	if c.DueRateLimit, err = getEnvInt("STOCKBOOK_DUE_RATE_LIMIT", c.DueRateLimit); err != nil {
		return fmt.Errorf("parse STOCKBOOK_DUE_RATE_LIMIT: %w", err)
	}
	if c.PushTTL, err = getEnvDuration("STOCKBOOK_PUSH_TTL", c.PushTTL); err != nil {
		return fmt.Errorf("parse STOCKBOOK_PUSH_TTL: %w", err)
	}
	if c.PushSendTimeout, err = getEnvDuration("STOCKBOOK_PUSH_SEND_TIMEOUT", c.PushSendTimeout); err != nil {
		return fmt.Errorf("parse STOCKBOOK_PUSH_SEND_TIMEOUT: %w", err)
	}
	if c.PushInterval, err = getEnvDuration("STOCKBOOK_PUSH_INTERVAL", c.PushInterval); err != nil {
		return fmt.Errorf("parse STOCKBOOK_PUSH_INTERVAL: %w", err)
	}
	return nil
}

// Validate checks cross-field rules.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.DBPath == "" {
		return errors.New("db_path is required")
	}
	if (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == "") {
		return errors.New("vapid_public_key and vapid_private_key must be set together")
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		return fmt.Errorf("default_timezone %q: %w", c.DefaultTimezone, err)
	}
	if c.PushWorkers <= 0 {
		return errors.New("push_workers must be positive")
	}
	if c.PushSendTimeout <= 0 {
		return errors.New("push_send_timeout must be positive")
	}
	if c.PushInterval < 0 {
		return errors.New("push_interval must not be negative")
	}
	if c.IsProduction() {
		if c.JWTSecret == "" {
			return errors.New("jwt_secret is required in production")
		}
		if c.JobSecret == "" && c.JobSecretHash == "" {
			return errors.New("job_secret or job_secret_hash is required in production")
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(v)
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	return time.ParseDuration(v)
}
