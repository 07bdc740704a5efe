package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config keeps runtime settings for the service.
type Config struct {
	DatabaseURL    string        `toml:"database_url"`
	HTTPAddr       string        `toml:"http_addr"`
	JWTSecret      string        `toml:"jwt_secret"`
	TokenTTL       time.Duration `toml:"token_ttl"`
	TelegramToken  string        `toml:"telegram_token"`
	ReportInterval time.Duration `toml:"report_interval"`
	ReportAt       string        `toml:"report_at"`
	RedisAddr      string        `toml:"redis_addr"`
	ViewCacheTTL   time.Duration `toml:"view_cache_ttl"`
	LogLevel       string        `toml:"log_level"`
	LogFormat      string        `toml:"log_format"`
	RateLimit      RateLimit     `toml:"rate_limit"`
	CORSOrigins    []string      `toml:"cors_origins"`
}

// RateLimit configures the per-client request limiter.
type RateLimit struct {
	RequestsPerMin int `toml:"requests_per_min"`
	Burst          int `toml:"burst"`
}

// BotEnabled reports whether the Telegram front-end should run.
func (c Config) BotEnabled() bool {
	return c.TelegramToken != ""
}

// Load reads configuration from an optional TOML file named by CONFIG_FILE,
// then from environment variables, and fills in defaults.
func Load() (Config, error) {
	var cfg Config

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	loadFromEnv(&cfg)
	setDefaults(&cfg)

	if cfg.JWTSecret == "" {
		return cfg, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func loadFromEnv(cfg *Config) {
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.HTTPAddr, "HTTP_ADDR")
	setString(&cfg.JWTSecret, "JWT_SECRET")
	setString(&cfg.TelegramToken, "TELEGRAM_TOKEN")
	setString(&cfg.ReportAt, "REPORT_AT")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.LogFormat, "LOG_FORMAT")

	if hours := parseHours(strings.TrimSpace(os.Getenv("TOKEN_TTL_HOURS"))); hours > 0 {
		cfg.TokenTTL = hours
	}
	if hours := parseHours(strings.TrimSpace(os.Getenv("REPORT_INTERVAL_HOURS"))); hours > 0 {
		cfg.ReportInterval = hours
	}
	if raw := strings.TrimSpace(os.Getenv("VIEW_CACHE_TTL")); raw != "" {
		if ttl, err := time.ParseDuration(raw); err == nil && ttl > 0 {
			cfg.ViewCacheTTL = ttl
		}
	}
	if n := parsePositive(os.Getenv("RATE_LIMIT_PER_MIN")); n > 0 {
		cfg.RateLimit.RequestsPerMin = n
	}
	if n := parsePositive(os.Getenv("RATE_LIMIT_BURST")); n > 0 {
		cfg.RateLimit.Burst = n
	}
	if raw := strings.TrimSpace(os.Getenv("CORS_ORIGINS")); raw != "" {
		cfg.CORSOrigins = splitList(raw)
	}
}

func setDefaults(cfg *Config) {
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "task_manager.db"
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = 5 * time.Hour
	}
	if cfg.ViewCacheTTL <= 0 {
		cfg.ViewCacheTTL = 5 * time.Minute
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.RateLimit.RequestsPerMin <= 0 {
		cfg.RateLimit.RequestsPerMin = 120
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 20
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"http://localhost:3000"}
	}
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func parseHours(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	hours, err := time.ParseDuration(raw + "h")
	if err != nil || hours <= 0 {
		return 0
	}
	return hours
}

func parsePositive(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
