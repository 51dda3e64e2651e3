package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

// Config is the full runtime configuration, loaded from the environment.
// Only DATABASE_DSN, REDIS_URL and AMQP_URL gate optional subsystems: an
// empty DSN selects the in-memory store, empty URLs disable the send
// throttle and the failure alert queue.
type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN"`
	RedisURL    string `env:"REDIS_URL"`
	AMQPURL     string `env:"AMQP_URL"`

	APIPort        int    `env:"API_PORT,default=8080"`
	LogLevel       string `env:"LOG_LEVEL,default=info"`
	LoggingEnabled bool   `env:"LOGGING_ENABLED,default=true"`

	MaxManualRetries    int `env:"MAX_MANUAL_RETRIES,default=3"`
	MaxRetriesPerHour   int `env:"MAX_RETRIES_PER_HOUR,default=10"`
	SendRateLimitPerSec int `env:"SEND_RATE_LIMIT_PER_SEC,default=0"`

	DefaultTimeoutSeconds int `env:"DEFAULT_TIMEOUT_SECONDS,default=10"`

	RetentionDays         int           `env:"RETENTION_DAYS,default=90"`
	RetentionScanInterval time.Duration `env:"RETENTION_SCAN_INTERVAL,default=24h"`

	// Comma separated key-name patterns appended to the built-in
	// redaction list, e.g. "tckn,iban".
	ExtraSensitivePatterns string `env:"EXTRA_SENSITIVE_PATTERNS"`
}

func Load() (*Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.APIPort < 1 || c.APIPort > 65535 {
		return fmt.Errorf("invalid API_PORT %d", c.APIPort)
	}
	if c.DefaultTimeoutSeconds <= 0 {
		return fmt.Errorf("DEFAULT_TIMEOUT_SECONDS must be positive, got %d", c.DefaultTimeoutSeconds)
	}
	if c.RetentionDays <= 0 {
		return fmt.Errorf("RETENTION_DAYS must be positive, got %d", c.RetentionDays)
	}
	return nil
}

func (c *Config) DefaultTimeout() time.Duration {
	return time.Duration(c.DefaultTimeoutSeconds) * time.Second
}

func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// SensitivePatterns parses EXTRA_SENSITIVE_PATTERNS into a clean slice.
func (c *Config) SensitivePatterns() []string {
	if strings.TrimSpace(c.ExtraSensitivePatterns) == "" {
		return nil
	}

	var patterns []string
	for _, raw := range strings.Split(c.ExtraSensitivePatterns, ",") {
		if p := strings.TrimSpace(raw); p != "" {
			patterns = append(patterns, p)
		}
	}
	return patterns
}
