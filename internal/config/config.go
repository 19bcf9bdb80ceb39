// Package config loads process configuration from environment
// variables. All values have sensible defaults; secrets for individual
// notification channels are optional and an unconfigured channel is
// simply skipped at dispatch time.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lablink/lablink/internal/notify"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        string
	Environment string
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings for the preference cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// PreferenceTTL bounds how long cached preference rows are served
	// before falling back to the database.
	PreferenceTTL time.Duration
}

// NotificationConfig holds provider credentials and dispatch defaults.
type NotificationConfig struct {
	EmailAPIKey   string
	EmailFrom     string
	EmailFromName string

	SMSAccountSID string
	SMSAuthToken  string
	SMSFromNumber string

	FCMServerKey string

	// DefaultChannels are used when a notify request names none.
	DefaultChannels []notify.Channel

	// FunctionTimeout bounds every outbound provider HTTP call.
	FunctionTimeout time.Duration
}

// Config is the full application configuration.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Notification NotificationConfig
}

// Load reads configuration from the environment.
//
// Notification variables (all optional):
//   - LABLINK_SENDGRID_API_KEY (fallback: LABLINK_SMTP_API_KEY)
//   - LABLINK_NOTIFICATION_EMAIL_FROM
//   - LABLINK_NOTIFICATION_EMAIL_NAME (default: "LabLink Notifications")
//   - LABLINK_TWILIO_ACCOUNT_SID / LABLINK_TWILIO_AUTH_TOKEN / LABLINK_TWILIO_FROM_NUMBER
//   - LABLINK_FCM_SERVER_KEY
//   - LABLINK_DEFAULT_NOTIFICATION_CHANNELS (default: "in_app,email")
//   - LABLINK_FUNCTION_TIMEOUT_MS (default: 30000)
func Load() Config {
	return Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: os.Getenv("DB_PASSWORD"),
			DBName:   getEnv("DB_NAME", "lablink"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:          getEnv("REDIS_ADDR", "localhost:6379"),
			Password:      os.Getenv("REDIS_PASSWORD"),
			DB:            getEnvInt("REDIS_DB", 0),
			PreferenceTTL: time.Duration(getEnvInt("LABLINK_PREFERENCE_CACHE_SECONDS", 300)) * time.Second,
		},
		Notification: NotificationConfig{
			EmailAPIKey:     firstEnv("LABLINK_SENDGRID_API_KEY", "LABLINK_SMTP_API_KEY"),
			EmailFrom:       os.Getenv("LABLINK_NOTIFICATION_EMAIL_FROM"),
			EmailFromName:   getEnv("LABLINK_NOTIFICATION_EMAIL_NAME", "LabLink Notifications"),
			SMSAccountSID:   os.Getenv("LABLINK_TWILIO_ACCOUNT_SID"),
			SMSAuthToken:    os.Getenv("LABLINK_TWILIO_AUTH_TOKEN"),
			SMSFromNumber:   os.Getenv("LABLINK_TWILIO_FROM_NUMBER"),
			FCMServerKey:    os.Getenv("LABLINK_FCM_SERVER_KEY"),
			DefaultChannels: parseChannels(getEnv("LABLINK_DEFAULT_NOTIFICATION_CHANNELS", "in_app,email")),
			FunctionTimeout: functionTimeout(),
		},
	}
}

// DispatchContext builds the per-dispatch provider context from the
// loaded notification settings.
func (nc NotificationConfig) DispatchContext(transport notify.Doer) notify.DispatchContext {
	return notify.DispatchContext{
		EmailAPIKey:   nc.EmailAPIKey,
		EmailFrom:     nc.EmailFrom,
		EmailFromName: nc.EmailFromName,
		SMSAccountSID: nc.SMSAccountSID,
		SMSAuthToken:  nc.SMSAuthToken,
		SMSFromNumber: nc.SMSFromNumber,
		FCMServerKey:  nc.FCMServerKey,
		Transport:     transport,
	}
}

// parseChannels parses a comma-separated channel list, dropping
// unknown entries. An empty result falls back to in_app so dispatch
// always has at least one channel to work with.
func parseChannels(raw string) []notify.Channel {
	parts := strings.Split(raw, ",")
	channels := make([]notify.Channel, 0, len(parts))
	for _, part := range parts {
		ch := notify.Channel(strings.TrimSpace(part))
		if ch.Valid() {
			channels = append(channels, ch)
		}
	}
	if len(channels) == 0 {
		channels = []notify.Channel{notify.ChannelInApp}
	}
	return channels
}

func functionTimeout() time.Duration {
	ms := getEnvInt("LABLINK_FUNCTION_TIMEOUT_MS", 30000)
	if ms <= 0 {
		ms = 30000
	}
	return time.Duration(ms) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return ""
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
