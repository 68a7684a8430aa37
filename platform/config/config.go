// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// CronConfig provides settings for authenticating the periodic trigger caller.
type CronConfig interface {
	GetCronSecret() string
}

// SchedulerConfig provides settings for the asynq scheduler.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// EmailConfig provides settings for outbound email delivery.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	GetSimulatorSeed() int64
	GetSimulatorDeliveryRate() float64
}

// FollowupConfig provides engine-level defaults for follow-up processing.
// Per-organization rows may override calendar and escalation values; these
// act as the fallback when an organization has no explicit configuration.
type FollowupConfig interface {
	GetProcessingInterval() time.Duration
	GetDefaultTimezone() string
	GetMinContactIntervalDays() int
	GetEscalationBandsDays() [3]int
	GetDrainBatchLimit() int
	GetDrainParallelism() int
	GetDeliveryTimeout() time.Duration
	GetMaxRetries() int
	GetRetryBackoffBase() time.Duration
	GetRetryBackoffCap() time.Duration
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                   string
	HTTPAddr              string
	DatabaseURL           string
	CORSAllowAll          bool
	CORSOrigins           []string
	CORSAllowCreds        bool
	CronSecret            string
	RedisURL              string
	RedisTLSInsecure      bool
	AsynqQueueName        string
	AsynqConcurrency      int
	EmailEnabled          bool
	SMTPHost              string
	SMTPPort              int
	SMTPUsername          string
	SMTPPassword          string
	EmailFromName         string
	EmailFromAddress      string
	SimulatorSeed         int64
	SimulatorDeliveryRate float64
	ProcessingInterval    time.Duration
	DefaultTimezone       string
	MinContactInterval    int
	EscalationBandsDays   [3]int
	DrainBatchLimit       int
	DrainParallelism      int
	DeliveryTimeout       time.Duration
	MaxRetries            int
	RetryBackoffBase      time.Duration
	RetryBackoffCap       time.Duration
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// CronConfig implementation
func (c *Config) GetCronSecret() string { return c.CronSecret }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool             { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string               { return c.SMTPHost }
func (c *Config) GetSMTPPort() int                  { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string           { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string           { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string          { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string       { return c.EmailFromAddress }
func (c *Config) GetSimulatorSeed() int64           { return c.SimulatorSeed }
func (c *Config) GetSimulatorDeliveryRate() float64 { return c.SimulatorDeliveryRate }

// FollowupConfig implementation
func (c *Config) GetProcessingInterval() time.Duration { return c.ProcessingInterval }
func (c *Config) GetDefaultTimezone() string           { return c.DefaultTimezone }
func (c *Config) GetMinContactIntervalDays() int       { return c.MinContactInterval }
func (c *Config) GetEscalationBandsDays() [3]int       { return c.EscalationBandsDays }
func (c *Config) GetDrainBatchLimit() int              { return c.DrainBatchLimit }
func (c *Config) GetDrainParallelism() int             { return c.DrainParallelism }
func (c *Config) GetDeliveryTimeout() time.Duration    { return c.DeliveryTimeout }
func (c *Config) GetMaxRetries() int                   { return c.MaxRetries }
func (c *Config) GetRetryBackoffBase() time.Duration   { return c.RetryBackoffBase }
func (c *Config) GetRetryBackoffCap() time.Duration    { return c.RetryBackoffCap }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	smtpHost := getEnv("SMTP_HOST", "")
	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")

	cfg := &Config{
		Env:                   getEnv("APP_ENV", "development"),
		HTTPAddr:              getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		CORSAllowAll:          corsAllowAll,
		CORSOrigins:           corsOrigins,
		CORSAllowCreds:        strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		CronSecret:            getEnv("CRON_SECRET", ""),
		RedisURL:              getEnv("REDIS_URL", ""),
		RedisTLSInsecure:      strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:        getEnv("ASYNQ_QUEUE", "followups"),
		AsynqConcurrency:      mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		EmailEnabled:          emailEnabled && smtpHost != "",
		SMTPHost:              smtpHost,
		SMTPPort:              mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:          getEnv("SMTP_USERNAME", ""),
		SMTPPassword:          getEnv("SMTP_PASSWORD", ""),
		EmailFromName:         getEnv("EMAIL_FROM_NAME", "Tahseel"),
		EmailFromAddress:      getEnv("EMAIL_FROM_ADDRESS", ""),
		SimulatorSeed:         mustInt64(getEnv("SIMULATOR_SEED", "1")),
		SimulatorDeliveryRate: mustFloat(getEnv("SIMULATOR_DELIVERY_RATE", "0.95")),
		ProcessingInterval:    mustDuration(getEnv("PROCESSING_INTERVAL", "30m")),
		DefaultTimezone:       getEnv("DEFAULT_TIMEZONE", "Asia/Dubai"),
		MinContactInterval:    mustInt(getEnv("MIN_CONTACT_INTERVAL_DAYS", "7")),
		EscalationBandsDays: [3]int{
			mustInt(getEnv("ESCALATION_GENTLE_MAX_DAYS", "15")),
			mustInt(getEnv("ESCALATION_FIRM_MAX_DAYS", "30")),
			mustInt(getEnv("ESCALATION_URGENT_MAX_DAYS", "60")),
		},
		DrainBatchLimit:  mustInt(getEnv("DRAIN_BATCH_LIMIT", "50")),
		DrainParallelism: mustInt(getEnv("DRAIN_PARALLELISM", "4")),
		DeliveryTimeout:  mustDuration(getEnv("DELIVERY_TIMEOUT", "30s")),
		MaxRetries:       mustInt(getEnv("DELIVERY_MAX_RETRIES", "5")),
		RetryBackoffBase: mustDuration(getEnv("RETRY_BACKOFF_BASE", "5m")),
		RetryBackoffCap:  mustDuration(getEnv("RETRY_BACKOFF_CAP", "4h")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.CronSecret == "" {
		return nil, fmt.Errorf("CRON_SECRET is required")
	}
	if cfg.EmailEnabled && cfg.EmailFromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if b := cfg.EscalationBandsDays; b[0] >= b[1] || b[1] >= b[2] {
		return nil, fmt.Errorf("escalation bands must be strictly increasing, got %v", b)
	}
	if cfg.MinContactInterval < 1 {
		return nil, fmt.Errorf("MIN_CONTACT_INTERVAL_DAYS must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return result
}

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
