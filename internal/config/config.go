package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	WebPort  int
	DataDir  string
	LogLevel string

	// Retry policy for verification checks
	MaxRetries int
	RetryDelay time.Duration

	// Result cache TTLs, per verification type
	InsuranceTTL       time.Duration
	IdentityTTL        time.Duration
	DocumentTTL        time.Duration
	CacheSweepInterval time.Duration

	// Simulated verification backend
	CheckLatency time.Duration
	FailureRate  float64
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		WebPort:  getEnvAsInt("WEB_PORT", 5800),
		DataDir:  getEnv("DATA_DIR", "/data/verify"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		MaxRetries: getEnvAsInt("MAX_RETRIES", 3),
		RetryDelay: getEnvAsDuration("RETRY_DELAY", time.Second),

		InsuranceTTL:       getEnvAsDuration("INSURANCE_CACHE_TTL", 24*time.Hour),
		IdentityTTL:        getEnvAsDuration("IDENTITY_CACHE_TTL", 12*time.Hour),
		DocumentTTL:        getEnvAsDuration("DOCUMENT_CACHE_TTL", 6*time.Hour),
		CacheSweepInterval: getEnvAsDuration("CACHE_SWEEP_INTERVAL", 30*time.Minute),

		CheckLatency: getEnvAsDuration("CHECK_LATENCY", 800*time.Millisecond),
		FailureRate:  getEnvAsFloat("CHECK_FAILURE_RATE", 0.1),
	}

	setupLogger(cfg.LogLevel)

	slog.Info("Configuration loaded",
		"webPort", cfg.WebPort,
		"dataDir", cfg.DataDir,
		"maxRetries", cfg.MaxRetries,
		"retryDelay", cfg.RetryDelay.String(),
	)

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, opts))
	slog.SetDefault(logger)
}
