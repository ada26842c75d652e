package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	JWT      JWTConfig
	MongoDB  MongoDBConfig
	Email    EmailConfig
	Storage  StorageConfig
	Deadline DeadlineConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port string
	Host string
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret string
}

// MongoDBConfig holds MongoDB connection details
type MongoDBConfig struct {
	URI        string
	Host       string
	Port       string
	Username   string
	Password   string
	AuthSource string
	Database   string
}

// EmailConfig holds SendGrid settings. Email delivery is entirely
// disable-able via Enabled; a disabled mailer is a no-op.
type EmailConfig struct {
	Enabled   bool
	APIKey    string
	FromEmail string
	AppURL    string
}

// StorageConfig selects the work-upload file backend. Backend is
// "local" or "s3".
type StorageConfig struct {
	Backend         string
	LocalDir        string
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // Optional: for S3-compatible services like MinIO
}

// DeadlineConfig controls the deadline reminder scanner.
type DeadlineConfig struct {
	Enabled  bool
	Schedule string // cron spec, e.g. "@every 1m"
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		},
		MongoDB: MongoDBConfig{
			URI:        getEnv("MONGODB_URI", ""),
			Host:       getEnv("MONGODB_HOST", "localhost"),
			Port:       getEnv("MONGODB_PORT", "27017"),
			Username:   getEnv("MONGODB_USER", ""),
			Password:   getEnv("MONGODB_PASSWORD", ""),
			AuthSource: getEnv("MONGODB_AUTH_DB", "admin"),
			Database:   getEnv("MONGODB_DB", "taskgrid"),
		},
		Email: EmailConfig{
			Enabled:   getEnvBool("ENABLE_EMAIL", false),
			APIKey:    getEnv("SENDGRID_API_KEY", ""),
			FromEmail: getEnv("MAIL_FROM", "taskgrid@example.com"),
			AppURL:    getEnv("APP_URL", "http://localhost:8080"),
		},
		Storage: StorageConfig{
			Backend:         getEnv("STORAGE_BACKEND", "local"),
			LocalDir:        getEnv("UPLOAD_DIR", "uploads"),
			Bucket:          getEnv("S3_BUCKET", ""),
			Region:          getEnv("S3_REGION", "us-east-1"),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			Endpoint:        getEnv("S3_ENDPOINT", ""), // Optional for MinIO/custom S3
		},
		Deadline: DeadlineConfig{
			Enabled:  getEnvBool("ENABLE_DEADLINE_SCAN", true),
			Schedule: getEnv("DEADLINE_SCAN_SCHEDULE", "@every 1m"),
		},
	}

	// Validate required fields
	if cfg.Email.Enabled && cfg.Email.APIKey == "" {
		return nil, fmt.Errorf("SENDGRID_API_KEY is required when ENABLE_EMAIL is true")
	}
	if cfg.Storage.Backend == "s3" {
		if cfg.Storage.Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET is required when STORAGE_BACKEND is s3")
		}
		if cfg.Storage.AccessKeyID == "" {
			return nil, fmt.Errorf("S3_ACCESS_KEY_ID is required when STORAGE_BACKEND is s3")
		}
		if cfg.Storage.SecretAccessKey == "" {
			return nil, fmt.Errorf("S3_SECRET_ACCESS_KEY is required when STORAGE_BACKEND is s3")
		}
	}

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
