package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Dosada05/bracket-engine/utils"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseURL    string              `yaml:"database_url"`
	JWTSecretKey   string              `yaml:"jwt_secret_key"`
	ServerPort     int                 `yaml:"server_port"`
	LogLevel       string              `yaml:"log_level"`
	PublicURL      string              `yaml:"public_url"`
	MigrateOnStart bool                `yaml:"migrate_on_start"`
	CORSOrigins    []string            `yaml:"cors_origins"`
	TrustProxy     bool                `yaml:"trust_proxy"`
	RateLimit      RateLimitConfig     `yaml:"rate_limit"`
	R2             R2Config            `yaml:"r2"`
	SMTP           SMTPConfig          `yaml:"smtp"`
	Notifications  NotificationsConfig `yaml:"notifications"`
}

type RateLimitConfig struct {
	// RequestsPerSecond of 0 disables limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// R2Config describes the Cloudflare R2 bucket for screenshots and evidence.
type R2Config struct {
	AccountID       string `yaml:"account_id"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	BucketName      string `yaml:"bucket_name"`
	PublicBaseURL   string `yaml:"public_base_url"`
}

func (c R2Config) Enabled() bool {
	return c.AccountID != "" && c.BucketName != ""
}

type SMTPConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	User               string `yaml:"user"`
	Password           string `yaml:"password"`
	From               string `yaml:"from"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

func (c SMTPConfig) Enabled() bool {
	return c.Host != ""
}

type NotificationsConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

func defaults() Config {
	return Config{
		ServerPort: 8080,
		LogLevel:   "info",
		PublicURL:  "http://localhost:8080",
		RateLimit:  RateLimitConfig{RequestsPerSecond: 20, Burst: 40},
		SMTP:       SMTPConfig{Port: 587},
		Notifications: NotificationsConfig{
			MaxRetries:    3,
			RetryInterval: 200 * time.Millisecond,
		},
	}
}

// Load собирает конфигурацию: значения по умолчанию, затем YAML из CONFIG_FILE (если задан),
// затем переменные окружения. .env подгружается для локальной разработки.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		*dst = utils.GetEnvOrDefault(key, *dst)
	}
	setString("DATABASE_URL", &cfg.DatabaseURL)
	setString("JWT_SECRET_KEY", &cfg.JWTSecretKey)
	setString("LOG_LEVEL", &cfg.LogLevel)
	setString("PUBLIC_URL", &cfg.PublicURL)
	setString("R2_ACCOUNT_ID", &cfg.R2.AccountID)
	setString("R2_ACCESS_KEY_ID", &cfg.R2.AccessKeyID)
	setString("R2_SECRET_ACCESS_KEY", &cfg.R2.SecretAccessKey)
	setString("R2_BUCKET_NAME", &cfg.R2.BucketName)
	setString("R2_PUBLIC_BASE_URL", &cfg.R2.PublicBaseURL)
	setString("SMTP_HOST", &cfg.SMTP.Host)
	setString("SMTP_USER", &cfg.SMTP.User)
	setString("SMTP_PASSWORD", &cfg.SMTP.Password)
	setString("SMTP_FROM", &cfg.SMTP.From)

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSOrigins = nil
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
			}
		}
	}

	var errs []error
	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid SERVER_PORT environment variable: %w", err))
		}
		cfg.ServerPort = port
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid SMTP_PORT environment variable: %w", err))
		}
		cfg.SMTP.Port = port
	}
	if v := os.Getenv("SMTP_INSECURE_SKIP_VERIFY"); v != "" {
		cfg.SMTP.InsecureSkipVerify = v == "true"
	}
	if v := os.Getenv("TRUST_PROXY"); v != "" {
		cfg.TrustProxy = v == "true"
	}
	if v := os.Getenv("MIGRATE_ON_START"); v != "" {
		cfg.MigrateOnStart = v == "true"
	}
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid RATE_LIMIT_RPS environment variable: %w", err))
		}
		cfg.RateLimit.RequestsPerSecond = rps
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		burst, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid RATE_LIMIT_BURST environment variable: %w", err))
		}
		cfg.RateLimit.Burst = burst
	}
	if v := os.Getenv("NOTIFICATION_MAX_RETRIES"); v != "" {
		retries, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid NOTIFICATION_MAX_RETRIES environment variable: %w", err))
		}
		cfg.Notifications.MaxRetries = retries
	}
	if v := os.Getenv("NOTIFICATION_RETRY_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid NOTIFICATION_RETRY_INTERVAL environment variable: %w", err))
		}
		cfg.Notifications.RetryInterval = d
	}
	return errors.Join(errs...)
}

func (c *Config) validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is not set"))
	}
	if c.JWTSecretKey == "" {
		errs = append(errs, errors.New("JWT_SECRET_KEY is not set"))
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		errs = append(errs, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.ServerPort))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if u, err := url.Parse(c.PublicURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("PUBLIC_URL must be an absolute URL, got %q", c.PublicURL))
	}
	if c.RateLimit.RequestsPerSecond < 0 || (c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("rate limit needs a non-negative rate and a positive burst"))
	}
	if c.SMTP.Enabled() && c.SMTP.From == "" {
		errs = append(errs, errors.New("SMTP_FROM is required when SMTP_HOST is set"))
	}
	if c.Notifications.MaxRetries < 0 {
		errs = append(errs, errors.New("notification retries must not be negative"))
	}
	return errors.Join(errs...)
}

// SlogLevel returns the configured log level; validate has already rejected unknown names.
func (c *Config) SlogLevel() slog.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}

func parseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q: %w", name, err)
	}
	return level, nil
}
