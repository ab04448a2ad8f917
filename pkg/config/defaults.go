// Package config provides centralized default values for LeadBeacon
package config

import (
	"bufio"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

var envLoaded sync.Once

func loadEnvFile() {
	envLoaded.Do(func() {
		file, err := os.Open(".env")
		if err != nil {
			return
		}
		defer file.Close()

		log.Println("Loading configuration overrides from .env file...")
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())

			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}

			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}

			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])

			if os.Getenv(key) == "" {
				os.Setenv(key, value)
			}
		}
	})
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue {
			log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
		}
		return val
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseBool(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%t (default: %t)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

var (
	// Server Configuration
	Port               string
	Environment        string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration

	// Origin allow-list (comma-separated exact strings and/or *-glob patterns)
	AllowedOrigins []string

	// Database Configuration
	DBDriver     string
	DBPath       string
	TursoURL     string
	TursoToken   string
	StoreTimeout time.Duration

	// Database Pool
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeMinutes int

	// Identity Cache Configuration
	RedisURL           string
	IdentityCacheTTL   time.Duration
	PersonalizationTTL time.Duration
	CacheSweepInterval time.Duration

	// Deferred Task Runner
	TaskQueueSize  int
	TaskDrainGrace time.Duration

	// Admin Surface
	JWTSecret         string
	AdminPasswordHash string
	AdminTokenTTL     time.Duration

	// Notifications
	ResendAPIKey    string
	NotifyEmailTo   string
	NotifyEmailFrom string
	NotifyFromName  string

	// Observability
	SlowQueryThreshold time.Duration
	LogDirectory       string
	LogToFile          bool
	VerboseLogging     bool
)

func init() {
	loadEnvFile()

	// Server Configuration
	Port = getEnvString("PORT", "8080")
	Environment = getEnvString("ENVIRONMENT", "production")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)

	// Origin allow-list
	AllowedOrigins = splitAndTrim(getEnvString("ALLOWED_ORIGINS", ""))

	// Database
	DBDriver = getEnvString("DB_DRIVER", "sqlite3")
	DBPath = getEnvString("DB_PATH", "leadbeacon.db")
	TursoURL = getEnvString("TURSO_DATABASE_URL", "")
	TursoToken = getEnvString("TURSO_AUTH_TOKEN", "")
	StoreTimeout = getEnvDuration("STORE_CALL_TIMEOUT", 5*time.Second)

	// Database Pool
	DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 10)
	DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 3)
	DBConnMaxLifetimeMinutes = getEnvInt("DB_CONN_MAX_LIFETIME_MINUTES", 30)

	// Identity Cache
	RedisURL = getEnvString("REDIS_URL", "")
	IdentityCacheTTL = time.Duration(getEnvInt("IDENTITY_CACHE_TTL_DAYS", 90)) * 24 * time.Hour
	PersonalizationTTL = time.Duration(getEnvInt("PERSONALIZATION_TTL_MINUTES", 60)) * time.Minute
	CacheSweepInterval = time.Duration(getEnvInt("CACHE_SWEEP_INTERVAL_MINUTES", 30)) * time.Minute

	// Deferred Task Runner
	TaskQueueSize = getEnvInt("TASK_QUEUE_SIZE", 1024)
	TaskDrainGrace = getEnvDuration("TASK_DRAIN_GRACE", 10*time.Second)

	// Admin Surface
	JWTSecret = getEnvString("JWT_SECRET", "")
	AdminPasswordHash = getEnvString("ADMIN_PASSWORD_HASH", "")
	AdminTokenTTL = time.Duration(getEnvInt("ADMIN_TOKEN_TTL_HOURS", 24)) * time.Hour

	// Notifications
	ResendAPIKey = getEnvString("RESEND_API_KEY", "")
	NotifyEmailTo = getEnvString("NOTIFY_EMAIL_TO", "")
	NotifyEmailFrom = getEnvString("NOTIFY_EMAIL_FROM", "noreply@leadbeacon.io")
	NotifyFromName = getEnvString("NOTIFY_EMAIL_FROM_NAME", "LeadBeacon")

	// Observability
	SlowQueryThreshold = getEnvDuration("SLOW_QUERY_THRESHOLD", 50*time.Millisecond)
	LogDirectory = getEnvString("LOG_DIRECTORY", "logs")
	LogToFile = getEnvBool("LOG_TO_FILE", true)
	VerboseLogging = getEnvBool("VERBOSE_LOGGING", false)
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
