package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends.
const (
	StorageFilesystem = "filesystem"
	StorageHTTP       = "http"
)

// Config holds the service configuration.
type Config struct {
	HTTPAddr        string
	GRPCAddr        string
	LogLevel        string
	ShutdownTimeout time.Duration

	JWTSecret   string
	JWTAudience string

	DatabaseDSN string
	RedisAddr   string

	VisionAPIKey   string
	VisionEndpoint string
	VisionTimeout  time.Duration

	StorageBackend string
	StorageDir     string
	StorageHTTPURL string
	PublicBaseURL  string
	SpoolDir       string
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	// a missing .env file is fine
	_ = godotenv.Load()

	shutdown, err := getDuration("SHUTDOWN_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}
	visionTimeout, err := getDuration("VISION_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:        getEnv("GRPC_HEALTH_ADDR", ":50051"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout: shutdown,
		JWTSecret:       getEnv("JWT_SECRET", "dev-secret"),
		JWTAudience:     os.Getenv("JWT_AUDIENCE"),
		DatabaseDSN:     getEnv("DATABASE_DSN", "host=postgres user=postgres password=postgres dbname=vision port=5432 sslmode=disable"),
		RedisAddr:       getEnv("REDIS_ADDR", "redis:6379"),
		VisionAPIKey:    os.Getenv("GOOGLE_CLOUD_VISION_API_KEY"),
		VisionEndpoint:  getEnv("VISION_ENDPOINT", "https://vision.googleapis.com"),
		VisionTimeout:   visionTimeout,
		StorageBackend:  strings.ToLower(getEnv("STORAGE_BACKEND", StorageFilesystem)),
		StorageDir:      getEnv("STORAGE_DIR", "./data/images"),
		StorageHTTPURL:  os.Getenv("STORAGE_HTTP_URL"),
		PublicBaseURL:   os.Getenv("PUBLIC_BASE_URL"),
		SpoolDir:        getEnv("SPOOL_DIR", os.TempDir()+"/vision-spool"),
	}
	return cfg, nil
}

// Validate reports every missing or inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.VisionAPIKey == "" {
		errs = append(errs, errors.New("GOOGLE_CLOUD_VISION_API_KEY is required"))
	}
	switch c.StorageBackend {
	case StorageFilesystem:
		if c.PublicBaseURL == "" {
			errs = append(errs, errors.New("PUBLIC_BASE_URL is required for filesystem storage"))
		}
	case StorageHTTP:
		if c.StorageHTTPURL == "" {
			errs = append(errs, errors.New("STORAGE_HTTP_URL is required for http storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
