package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration
type Config struct {
	Port      string
	PublicURL string // Optional: override auto-detected URL for reverse proxy setups
	LogLevel  string // debug, info, warn, error

	// Database
	DBDriver    string // "sqlite" or "postgres"
	DBPath      string // sqlite file path
	DatabaseURL string // postgres connection string

	// Storage
	StorageBackend string // "filesystem" or "s3"
	MediaDir       string // filesystem backend root (chunks, assembled objects, manifests)

	// S3 backend
	S3Bucket          string
	S3Region          string
	S3Endpoint        string // custom endpoint for MinIO and friends
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3PathStyle       bool

	// Upload limits
	MaxFileSize        int64 // bytes
	DefaultChunkSize   int64 // bytes, offered to clients that do not choose one
	MinChunkSize       int64
	MaxChunkSize       int64
	MaxChunksPerUpload int

	// Session lifecycle
	SessionExpiryHours     int
	CleanupIntervalMinutes int
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:                   getEnv("PORT", "8080"),
		PublicURL:              getEnv("PUBLIC_URL", ""),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		DBDriver:               getEnv("DB_DRIVER", "sqlite"),
		DBPath:                 getEnv("DB_PATH", "./coursewire.db"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		StorageBackend:         getEnv("STORAGE_BACKEND", "filesystem"),
		MediaDir:               getEnv("MEDIA_DIR", "./media"),
		S3Bucket:               getEnv("S3_BUCKET", ""),
		S3Region:               getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:             getEnv("S3_ENDPOINT", ""),
		S3AccessKeyID:          getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey:      getEnv("S3_SECRET_ACCESS_KEY", ""),
		S3PathStyle:            getEnvBool("S3_PATH_STYLE", false),
		MaxFileSize:            getEnvInt64("MAX_FILE_SIZE", 10*1024*1024*1024), // 10GB default
		DefaultChunkSize:       getEnvInt64("DEFAULT_CHUNK_SIZE", 1048576),      // 1MiB default
		MinChunkSize:           getEnvInt64("MIN_CHUNK_SIZE", 65536),            // 64KiB
		MaxChunkSize:           getEnvInt64("MAX_CHUNK_SIZE", 10485760),         // 10MiB
		MaxChunksPerUpload:     getEnvInt("MAX_CHUNKS_PER_UPLOAD", 10000),
		SessionExpiryHours:     getEnvInt("SESSION_EXPIRY_HOURS", 24),
		CleanupIntervalMinutes: getEnvInt("CLEANUP_INTERVAL_MINUTES", 60),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// validate ensures configuration values are sensible
func (c *Config) validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	switch c.DBDriver {
	case "sqlite":
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty when DB_DRIVER=sqlite")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be 'sqlite' or 'postgres', got %q", c.DBDriver)
	}

	switch c.StorageBackend {
	case "filesystem":
		if c.MediaDir == "" {
			return fmt.Errorf("MEDIA_DIR cannot be empty when STORAGE_BACKEND=filesystem")
		}
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when STORAGE_BACKEND=s3")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be 'filesystem' or 's3', got %q", c.StorageBackend)
	}

	if c.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive, got %d", c.MaxFileSize)
	}

	if c.MinChunkSize <= 0 {
		return fmt.Errorf("MIN_CHUNK_SIZE must be positive, got %d", c.MinChunkSize)
	}

	if c.MaxChunkSize < c.MinChunkSize {
		return fmt.Errorf("MAX_CHUNK_SIZE (%d) cannot be below MIN_CHUNK_SIZE (%d)", c.MaxChunkSize, c.MinChunkSize)
	}

	if c.DefaultChunkSize < c.MinChunkSize || c.DefaultChunkSize > c.MaxChunkSize {
		return fmt.Errorf("DEFAULT_CHUNK_SIZE (%d) must be between MIN_CHUNK_SIZE and MAX_CHUNK_SIZE", c.DefaultChunkSize)
	}

	if c.MaxChunksPerUpload <= 0 {
		return fmt.Errorf("MAX_CHUNKS_PER_UPLOAD must be positive, got %d", c.MaxChunksPerUpload)
	}

	if c.SessionExpiryHours <= 0 {
		return fmt.Errorf("SESSION_EXPIRY_HOURS must be positive, got %d", c.SessionExpiryHours)
	}

	if c.CleanupIntervalMinutes <= 0 {
		return fmt.Errorf("CLEANUP_INTERVAL_MINUTES must be positive, got %d", c.CleanupIntervalMinutes)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", c.LogLevel)
	}

	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvInt64 retrieves an int64 environment variable or returns a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return defaultValue
}
