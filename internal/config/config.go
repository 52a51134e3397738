package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	LogLevel    string
	HTTPAddr    string

	DBType    string
	DBHost    string
	DBPort    string
	DBName    string
	DBUser    string
	DBPassword string
	DBSSLMode string

	// Razorpay credentials. KeySecret signs the checkout verification
	// payload, WebhookSecret signs webhook bodies. They are distinct
	// secrets on the gateway side and must stay distinct here.
	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string

	OrderTTL      time.Duration
	SweepInterval time.Duration

	RunMigrations      bool
	RunLegacyMigration bool
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "aipasta-billing"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		DBType:     getenv("DATABASE_TYPE", "postgres"),
		DBHost:     getenv("DATABASE_HOST", "localhost"),
		DBPort:     getenv("DATABASE_PORT", "5432"),
		DBName:     getenv("DATABASE_NAME", "aipasta"),
		DBUser:     getenv("DATABASE_USER", "postgres"),
		DBPassword: getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:  getenv("DATABASE_SSLMODE", "disable"),

		RazorpayKeyID:         strings.TrimSpace(getenv("RAZORPAY_KEY_ID", "")),
		RazorpayKeySecret:     strings.TrimSpace(getenv("RAZORPAY_KEY_SECRET", "")),
		RazorpayWebhookSecret: strings.TrimSpace(getenv("RAZORPAY_WEBHOOK_SECRET", "")),

		OrderTTL:      getenvDuration("ORDER_TTL", 30*time.Minute),
		SweepInterval: getenvDuration("SWEEP_INTERVAL", time.Minute),

		RunMigrations:      getenvBool("RUN_MIGRATIONS", true),
		RunLegacyMigration: getenvBool("RUN_LEGACY_MIGRATION", false),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
		return parsed
	}
	if minutes, err := strconv.Atoi(value); err == nil && minutes > 0 {
		return time.Duration(minutes) * time.Minute
	}
	return def
}
