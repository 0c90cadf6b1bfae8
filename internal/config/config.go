package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	SLA          SLAConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom  string
	WebhookURL string
}

// SLAConfig holds process-wide SLA engine settings.
type SLAConfig struct {
	Enabled            bool
	DefaultScheduleID  string
	NearBreachMinutes  int
	PauseStatuses      []string
	ReferenceTimezone  string
	ScanConcurrency    int
	ScanLockTTLSeconds int
	EventChannel       string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "service-desk"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
		SLA: SLAConfig{
			Enabled:            getEnvAsBool("SLA_ENABLED", true),
			DefaultScheduleID:  os.Getenv("SLA_DEFAULT_SCHEDULE_ID"),
			NearBreachMinutes:  getEnvAsInt("SLA_NEAR_BREACH_MINUTES", 30),
			PauseStatuses:      getEnvAsList("SLA_PAUSE_STATUSES", []string{"ON_HOLD"}),
			ReferenceTimezone:  getEnv("SLA_REFERENCE_TIMEZONE", "UTC"),
			ScanConcurrency:    getEnvAsInt("SLA_SCAN_CONCURRENCY", 4),
			ScanLockTTLSeconds: getEnvAsInt("SLA_SCAN_LOCK_TTL_SECONDS", 300),
			EventChannel:       getEnv("SLA_EVENT_CHANNEL", "service-desk:sla-events"),
		},
	}

	if _, err := cfg.SLA.Location(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// DefaultSLAConfig returns the documented defaults.
func DefaultSLAConfig() SLAConfig {
	return SLAConfig{
		Enabled:            true,
		NearBreachMinutes:  30,
		PauseStatuses:      []string{"ON_HOLD"},
		ReferenceTimezone:  "UTC",
		ScanConcurrency:    4,
		ScanLockTTLSeconds: 300,
		EventChannel:       "service-desk:sla-events",
	}
}

// Location resolves the reference timezone due dates are reported in.
func (s SLAConfig) Location() (*time.Location, error) {
	if s.ReferenceTimezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.ReferenceTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid SLA_REFERENCE_TIMEZONE: %w", err)
	}
	return loc, nil
}

// NearBreachWindow returns the near-breach lead window.
func (s SLAConfig) NearBreachWindow() time.Duration {
	if s.NearBreachMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(s.NearBreachMinutes) * time.Minute
}

// PausesOn reports whether the given status pauses SLA tracking.
func (s SLAConfig) PausesOn(status string) bool {
	for _, candidate := range s.PauseStatuses {
		if strings.EqualFold(candidate, status) {
			return true
		}
	}
	return false
}

// Concurrency returns the number of candidates a scan processes at once.
func (s SLAConfig) Concurrency() int {
	if s.ScanConcurrency < 1 {
		return 1
	}
	return s.ScanConcurrency
}

// ScanLockTTL returns how long a scan lock is held at most.
func (s SLAConfig) ScanLockTTL() time.Duration {
	if s.ScanLockTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(s.ScanLockTTLSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
