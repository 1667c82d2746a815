package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the grading API.
type Config struct {
	AppName             string
	AppEnv              string
	AppPort             string
	DatabaseDriver      string
	DatabaseURL         string
	RedisURL            string
	NATSURL             string
	EventsChannel       string
	JWTSecret           string
	SummaryCacheTTL     time.Duration
	BulkConcurrency     int
	SystemGraderID      string
	FuzzyThreshold      float64
	LogLevel            string
	LogFile             string
	BulkRateLimitPerMin int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Grading API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("events.channel", "gema:grading")
	v.SetDefault("summary.cache_ttl", "2m")
	v.SetDefault("grading.bulk_concurrency", 4)
	v.SetDefault("grading.system_grader", "system")
	v.SetDefault("grading.fuzzy_threshold", 0.8)
	v.SetDefault("log.level", "info")
	v.SetDefault("rate_limit.bulk_per_minute", 30)

	ttlString := v.GetString("summary.cache_ttl")
	if ttlString == "" {
		ttlString = "2m"
	}

	ttl, err := time.ParseDuration(ttlString)
	if err != nil {
		return Config{}, fmt.Errorf("invalid summary cache ttl: %w", err)
	}

	cfg := Config{
		AppName:             v.GetString("app.name"),
		AppEnv:              v.GetString("app.env"),
		AppPort:             v.GetString("app.port"),
		DatabaseDriver:      strings.ToLower(v.GetString("database.driver")),
		DatabaseURL:         v.GetString("database.url"),
		RedisURL:            v.GetString("redis.url"),
		NATSURL:             v.GetString("nats.url"),
		EventsChannel:       v.GetString("events.channel"),
		JWTSecret:           v.GetString("jwt.secret"),
		SummaryCacheTTL:     ttl,
		BulkConcurrency:     v.GetInt("grading.bulk_concurrency"),
		SystemGraderID:      strings.TrimSpace(v.GetString("grading.system_grader")),
		FuzzyThreshold:      v.GetFloat64("grading.fuzzy_threshold"),
		LogLevel:            strings.ToLower(v.GetString("log.level")),
		LogFile:             v.GetString("log.file"),
		BulkRateLimitPerMin: v.GetInt("rate_limit.bulk_per_minute"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.DatabaseDriver != "postgres" && cfg.DatabaseDriver != "sqlite" {
		return Config{}, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}

	if cfg.BulkConcurrency <= 0 {
		cfg.BulkConcurrency = 4
	}

	if cfg.SystemGraderID == "" {
		cfg.SystemGraderID = "system"
	}

	if cfg.FuzzyThreshold <= 0 || cfg.FuzzyThreshold > 1 {
		return Config{}, fmt.Errorf("fuzzy threshold must be in (0, 1], got %v", cfg.FuzzyThreshold)
	}

	if cfg.BulkRateLimitPerMin <= 0 {
		cfg.BulkRateLimitPerMin = 30
	}

	return cfg, nil
}
