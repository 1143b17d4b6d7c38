package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token        string  `yaml:"token" env:"BOT_TOKEN"`
	Username     string  `yaml:"username" env:"BOT_USERNAME"`
	Workers      int     `yaml:"workers" env:"BOT_WORKERS"`
	AdminIDs     []int64 `yaml:"admin_ids" env:"ADMIN_IDS" envSeparator:","`
	LogChannelID int64   `yaml:"log_channel_id" env:"LOG_CHANNEL_ID"`
}

type LogConfig struct {
	Level    string `yaml:"level" env:"LOG_LEVEL"`   // trace|debug|info|warn|error
	Format   string `yaml:"format" env:"LOG_FORMAT"` // json|console
	Sampling bool   `yaml:"sampling" env:"LOG_SAMPLING"`
}

type AdminConfig struct {
	Port      int           `yaml:"port" env:"ADMIN_PORT"`
	JWTSecret string        `yaml:"jwt_secret" env:"ADMIN_JWT_SECRET"`
	TokenTTL  time.Duration `yaml:"token_ttl" env:"ADMIN_TOKEN_TTL"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url" env:"DATABASE_URL"`
	MaxConns int32  `yaml:"max_conns" env:"DATABASE_MAX_CONNS"`
	Migrate  bool   `yaml:"migrate" env:"DATABASE_MIGRATE"`
}

type RedisConfig struct {
	URL      string        `yaml:"url" env:"REDIS_URL"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB"`
	TTL      time.Duration `yaml:"ttl" env:"REDIS_TTL"`
	// SessionTTL bounds an idle checkout session.
	SessionTTL time.Duration `yaml:"session_ttl" env:"REDIS_SESSION_TTL"`
	// Prefix is prepended to every key.
	Prefix string `yaml:"prefix" env:"REDIS_PREFIX"`
}

type TsPayConfig struct {
	BaseURL     string `yaml:"base_url" env:"TSPAY_BASE_URL"`
	AccessToken string `yaml:"access_token" env:"TSPAY_ACCESS_TOKEN"`
	RedirectURL string `yaml:"redirect_url" env:"TSPAY_REDIRECT_URL"`
}

type PaymentConfig struct {
	TsPay TsPayConfig `yaml:"tspay"`
	// CheckLimit checks per CheckWindow per user for "I have paid".
	CheckLimit  int           `yaml:"check_limit" env:"PAYMENT_CHECK_LIMIT"`
	CheckWindow time.Duration `yaml:"check_window" env:"PAYMENT_CHECK_WINDOW"`
}

type SchedulerConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
	SweepTimeout  time.Duration `yaml:"sweep_timeout" env:"SWEEP_TIMEOUT"`
	SweepQueueKey string        `yaml:"sweep_queue_key" env:"SWEEP_QUEUE_KEY"`
	ReportHours   []int         `yaml:"report_hours" env:"REPORT_HOURS" envSeparator:","`
	ReportTZ      string        `yaml:"report_tz" env:"REPORT_TZ"`
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key" env:"ENCRYPTION_KEY"`
}

type LedgerConfig struct {
	PlatformPercent    float64 `yaml:"platform_percent" env:"PLATFORM_PERCENT"`
	DefaultPartnerRate float64 `yaml:"default_partner_rate" env:"DEFAULT_PARTNER_RATE"`
}

type Config struct {
	Bot       BotConfig       `yaml:"bot"`
	Log       LogConfig       `yaml:"log"`
	Admin     AdminConfig     `yaml:"admin"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Payment   PaymentConfig   `yaml:"payment"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Security  SecurityConfig  `yaml:"security"`
	Ledger    LedgerConfig    `yaml:"ledger"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path (optional when missing), loads .env,
// applies environment overrides, fills defaults and validates.
func LoadConfig(path string, dev bool) (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// environment-only deployment
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	// .env is optional; variables may come from the process environment.
	_ = godotenv.Load()
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Bot.Workers <= 0 {
		c.Bot.Workers = 8
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Admin.Port == 0 {
		c.Admin.Port = 8080
	}
	if c.Admin.TokenTTL <= 0 {
		c.Admin.TokenTTL = 30 * time.Minute
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	c.Redis.TTL = normalizeTTL(c.Redis.TTL)
	if c.Redis.SessionTTL <= 0 {
		c.Redis.SessionTTL = 30 * time.Minute
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "paywall:"
	}
	if c.Payment.TsPay.BaseURL == "" {
		c.Payment.TsPay.BaseURL = "https://tspay.uz/api/v1"
	}
	if c.Payment.CheckLimit <= 0 {
		c.Payment.CheckLimit = 5
	}
	if c.Payment.CheckWindow <= 0 {
		c.Payment.CheckWindow = 5 * time.Minute
	}
	if c.Scheduler.SweepInterval <= 0 {
		c.Scheduler.SweepInterval = time.Minute
	}
	if c.Scheduler.SweepTimeout <= 0 {
		c.Scheduler.SweepTimeout = 5 * time.Minute
	}
	if c.Scheduler.SweepQueueKey == "" {
		c.Scheduler.SweepQueueKey = "queue:expiration"
	}
	if len(c.Scheduler.ReportHours) == 0 {
		c.Scheduler.ReportHours = []int{6, 18}
	}
	if c.Scheduler.ReportTZ == "" {
		c.Scheduler.ReportTZ = "Asia/Tashkent"
	}
	if c.Ledger.PlatformPercent <= 0 {
		c.Ledger.PlatformPercent = 0.05
	}
	if c.Ledger.DefaultPartnerRate <= 0 {
		c.Ledger.DefaultPartnerRate = 0.40
	}
}

// Validate checks required settings and value ranges.
func (c *Config) Validate() error {
	if c.Bot.Token == "" {
		return errors.New("bot.token is required")
	}
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if c.Ledger.PlatformPercent > 1 || c.Ledger.DefaultPartnerRate > 1 {
		return errors.New("ledger percents must be within [0,1]")
	}
	for _, h := range c.Scheduler.ReportHours {
		if h < 0 || h > 23 {
			return fmt.Errorf("scheduler.report_hours: invalid hour %d", h)
		}
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
