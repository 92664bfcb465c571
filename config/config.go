package config

import (
	"os"
	"strconv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	VAPID    VAPIDConfig
	Jobs     JobsConfig
}

type ServerConfig struct {
	Port    string
	GinMode string
}

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret      string
	ExpiryHours int
}

// VAPIDConfig holds the web-push signing key pair. Push delivery is
// skipped entirely when the key pair is unset.
type VAPIDConfig struct {
	PublicKey   string
	PrivateKey  string
	ClaimsEmail string
}

type JobsConfig struct {
	PushMaxRetry      int
	PushTimeoutSecs   int
	RetentionDays     int
	WorkerConcurrency int
}

var AppConfig *Config

func Load() {
	AppConfig = &Config{
		Server: ServerConfig{
			Port:    getEnv("PORT", "8080"),
			GinMode: getEnv("GIN_MODE", "debug"),
		},
		Database: DatabaseConfig{
			URL: getEnv("DB_URL", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-this-secret-in-production"),
			ExpiryHours: getEnvAsInt("JWT_EXPIRY_HOURS", 24),
		},
		VAPID: VAPIDConfig{
			PublicKey:   getEnv("VAPID_PUBLIC_KEY", ""),
			PrivateKey:  getEnv("VAPID_PRIVATE_KEY", ""),
			ClaimsEmail: getEnv("VAPID_CLAIMS_EMAIL", "admin@tolatiles.com"),
		},
		Jobs: JobsConfig{
			PushMaxRetry:      getEnvAsInt("PUSH_MAX_RETRY", 3),
			PushTimeoutSecs:   getEnvAsInt("PUSH_TIMEOUT_SECONDS", 15),
			RetentionDays:     getEnvAsInt("NOTIFICATION_RETENTION_DAYS", 90),
			WorkerConcurrency: getEnvAsInt("WORKER_CONCURRENCY", 5),
		},
	}
}

// PushConfigured reports whether web-push delivery can be attempted at all.
func (c *Config) PushConfigured() bool {
	return c.VAPID.PrivateKey != "" && c.VAPID.PublicKey != ""
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
