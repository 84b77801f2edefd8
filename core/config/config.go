package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token       string `yaml:"token" envconfig:"BOT_TOKEN"`
	DisplayName string `yaml:"display_name" envconfig:"BOT_DISPLAY_NAME"`
	AdminID     int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode     string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	KeysOrder string `yaml:"keys_order"`
	Dir       string `yaml:"dir"`
	BotFile   string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

// CacheConfig controls the category hierarchy cache.
type CacheConfig struct {
	TTLMinutes int `yaml:"ttl_minutes" envconfig:"CACHE_TTL_MINUTES"`
}

// MediaConfig controls photo storage and delivery pacing.
type MediaConfig struct {
	Dir              string `yaml:"dir" envconfig:"MEDIA_DIR"`
	MaxPhotoSizeMB   int    `yaml:"max_photo_size_mb" envconfig:"MEDIA_MAX_PHOTO_SIZE_MB"`
	SendDelayMS      int    `yaml:"send_delay_ms" envconfig:"MEDIA_SEND_DELAY_MS"`
	SendTimeoutSec   int    `yaml:"send_timeout_seconds" envconfig:"MEDIA_SEND_TIMEOUT_SECONDS"`
	MaxPhotosPerItem int    `yaml:"max_photos_per_item"`
}

// LaunchConfig bounds the transport launch retry loop.
type LaunchConfig struct {
	MaxAttempts int `yaml:"max_attempts" envconfig:"LAUNCH_MAX_ATTEMPTS"`
	BackoffSec  int `yaml:"backoff_seconds" envconfig:"LAUNCH_BACKOFF_SECONDS"`
	MaxDelaySec int `yaml:"max_delay_seconds" envconfig:"LAUNCH_MAX_DELAY_SECONDS"`
}

// SessionConfig controls per-user session retention.
type SessionConfig struct {
	TTLHours int `yaml:"ttl_hours" envconfig:"SESSION_TTL_HOURS"`
}

// RateLimitConfig holds settings for per-user rate limiting.
type RateLimitConfig struct {
	IntervalMS int `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

// tokenPattern matches the "<numeric id>:<secret>" shape of a bot token.
var tokenPattern = regexp.MustCompile(`^[0-9]+:[A-Za-z0-9_-]+$`)

// Config aggregates all bot configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	Cache     CacheConfig     `yaml:"cache"`
	Media     MediaConfig     `yaml:"media"`
	Launch    LaunchConfig    `yaml:"launch"`
	Session   SessionConfig   `yaml:"session"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates required fields and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if err := ValidateCredentials(cfg); err != nil {
		return err
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	if cfg.Cache.TTLMinutes <= 0 {
		cfg.Cache.TTLMinutes = 60
	}
	if cfg.Media.MaxPhotoSizeMB <= 0 {
		cfg.Media.MaxPhotoSizeMB = 20
	}
	if cfg.Media.SendDelayMS <= 0 {
		cfg.Media.SendDelayMS = 300
	}
	if cfg.Media.SendTimeoutSec <= 0 {
		cfg.Media.SendTimeoutSec = 10
	}
	if cfg.Media.MaxPhotosPerItem <= 0 {
		cfg.Media.MaxPhotosPerItem = 10
	}
	if strings.TrimSpace(cfg.Media.Dir) == "" {
		cfg.Media.Dir = "media"
	}
	if cfg.Launch.MaxAttempts <= 0 {
		cfg.Launch.MaxAttempts = 3
	}
	if cfg.Launch.BackoffSec <= 0 {
		cfg.Launch.BackoffSec = 2
	}
	if cfg.Launch.MaxDelaySec <= 0 {
		cfg.Launch.MaxDelaySec = 10
	}
	if cfg.Session.TTLHours <= 0 {
		cfg.Session.TTLHours = 24
	}
	return nil
}

// ValidateCredentials checks the fields the bot cannot start without.
// Split out so the service lifecycle can re-check readiness on restart.
func ValidateCredentials(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	token := strings.TrimSpace(cfg.Telegram.Token)
	if token == "" {
		return fmt.Errorf("telegram token is required")
	}
	if !tokenPattern.MatchString(token) {
		return fmt.Errorf("telegram token has invalid format")
	}
	if strings.TrimSpace(cfg.Telegram.DisplayName) == "" {
		return fmt.Errorf("telegram display_name is required")
	}
	return nil
}

// CacheTTL returns the hierarchy cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLMinutes) * time.Minute
}

// SessionTTL returns the session eviction window as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLHours) * time.Hour
}

// SendDelay returns the inter-photo send delay as a duration.
func (c *Config) SendDelay() time.Duration {
	return time.Duration(c.Media.SendDelayMS) * time.Millisecond
}

// SendTimeout bounds a single outbound transport call.
func (c *Config) SendTimeout() time.Duration {
	return time.Duration(c.Media.SendTimeoutSec) * time.Second
}
