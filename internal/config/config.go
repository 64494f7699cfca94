package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

const (
	defaultPortalLoginURL  = "https://subsiditepatlpg.mypertamina.id/merchant-login"
	defaultPortalVerifyURL = "https://subsiditepatlpg.mypertamina.id/merchant/app/verification-nik"
)

// Config is loaded from the environment. Infrastructure URLs are optional:
// an empty one selects the in-process or no-op implementation.
type Config struct {
	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`

	PortalLoginURL  string `env:"PORTAL_LOGIN_URL"`
	PortalVerifyURL string `env:"PORTAL_VERIFY_URL"`

	BrowserBin           string `env:"BROWSER_BIN"`
	BrowserHeadless      bool   `env:"BROWSER_HEADLESS,default=true"`
	ElementTimeoutMS     int    `env:"ELEMENT_TIMEOUT_MS,default=5000"`
	ProbeTimeoutMS       int    `env:"PROBE_TIMEOUT_MS,default=1000"`
	NavigationTimeoutMS  int    `env:"NAVIGATION_TIMEOUT_MS,default=15000"`
	RateLimitPaddingMS   int    `env:"RATE_LIMIT_PADDING_MS,default=1000"`
	RateLimitFallbackSec int    `env:"RATE_LIMIT_FALLBACK_SEC,default=30"`
	DiagnosticsDir       string `env:"DIAGNOSTICS_DIR"`
	JobRetentionMin      int    `env:"JOB_RETENTION_MIN,default=60"`
	JanitorIntervalSec   int    `env:"JANITOR_INTERVAL_SEC,default=60"`
	DispatchPerMin       int    `env:"DISPATCH_PER_MIN,default=0"`

	RedisURL    string `env:"REDIS_URL"`
	DatabaseDSN string `env:"DATABASE_DSN"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
	WebhookURL  string `env:"WEBHOOK_URL"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.PortalLoginURL == "" {
		cfg.PortalLoginURL = defaultPortalLoginURL
	}
	if cfg.PortalVerifyURL == "" {
		cfg.PortalVerifyURL = defaultPortalVerifyURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	positive := map[string]int{
		"API_PORT":              c.APIPort,
		"ELEMENT_TIMEOUT_MS":    c.ElementTimeoutMS,
		"PROBE_TIMEOUT_MS":      c.ProbeTimeoutMS,
		"NAVIGATION_TIMEOUT_MS": c.NavigationTimeoutMS,
		"JOB_RETENTION_MIN":     c.JobRetentionMin,
		"JANITOR_INTERVAL_SEC":  c.JanitorIntervalSec,
	}
	for key, value := range positive {
		if value <= 0 {
			return fmt.Errorf("invalid config: %s must be positive, got %d", key, value)
		}
	}

	nonNegative := map[string]int{
		"RATE_LIMIT_PADDING_MS":   c.RateLimitPaddingMS,
		"RATE_LIMIT_FALLBACK_SEC": c.RateLimitFallbackSec,
		"DISPATCH_PER_MIN":        c.DispatchPerMin,
	}
	for key, value := range nonNegative {
		if value < 0 {
			return fmt.Errorf("invalid config: %s must not be negative, got %d", key, value)
		}
	}

	return nil
}

func (c *Config) ElementTimeout() time.Duration {
	return time.Duration(c.ElementTimeoutMS) * time.Millisecond
}

func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutMS) * time.Millisecond
}

func (c *Config) NavigationTimeout() time.Duration {
	return time.Duration(c.NavigationTimeoutMS) * time.Millisecond
}

func (c *Config) RateLimitPadding() time.Duration {
	return time.Duration(c.RateLimitPaddingMS) * time.Millisecond
}

func (c *Config) RateLimitFallback() time.Duration {
	return time.Duration(c.RateLimitFallbackSec) * time.Second
}

func (c *Config) JobRetention() time.Duration {
	return time.Duration(c.JobRetentionMin) * time.Minute
}

func (c *Config) JanitorInterval() time.Duration {
	return time.Duration(c.JanitorIntervalSec) * time.Second
}
