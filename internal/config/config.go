package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env            string
	Gateway        GatewayConfig
	Storage        StorageConfig
	Logging        LoggingConfig
	SearchDebounce time.Duration
}

type GatewayConfig struct {
	BaseURL     string
	RealtimeURL string
	APIKey      string
	AccessToken string
}

type StorageConfig struct {
	Endpoint       string
	PublicEndpoint string
	AccessKey      string
	SecretKey      string
	Region         string
	UseSSL         bool
	AvatarBucket   string
	ImageBucket    string
}

type LoggingConfig struct {
	Level  string
	Format string
	File   string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env: getenv("APP_ENV", "dev"),
		Gateway: GatewayConfig{
			BaseURL:     os.Getenv("GATEWAY_URL"),
			RealtimeURL: os.Getenv("GATEWAY_REALTIME_URL"),
			APIKey:      os.Getenv("GATEWAY_API_KEY"),
			AccessToken: os.Getenv("GATEWAY_ACCESS_TOKEN"),
		},
		Storage: StorageConfig{
			Endpoint:       os.Getenv("STORAGE_ENDPOINT"),
			PublicEndpoint: os.Getenv("STORAGE_PUBLIC_ENDPOINT"),
			AccessKey:      os.Getenv("STORAGE_ACCESS_KEY"),
			SecretKey:      os.Getenv("STORAGE_SECRET_KEY"),
			Region:         getenv("STORAGE_REGION", "us-east-1"),
			UseSSL:         getenvBool("STORAGE_USE_SSL", true),
			AvatarBucket:   getenv("STORAGE_AVATAR_BUCKET", "avatars"),
			ImageBucket:    getenv("STORAGE_IMAGE_BUCKET", "event-images"),
		},
		Logging: LoggingConfig{
			Level:  getenv("LOG_LEVEL", "info"),
			Format: getenv("LOG_FORMAT", "text"),
			File:   os.Getenv("LOG_FILE"),
		},
		SearchDebounce: getenvDuration("SEARCH_DEBOUNCE", 300*time.Millisecond),
	}

	if cfg.Gateway.BaseURL == "" {
		return nil, fmt.Errorf("GATEWAY_URL is required")
	}
	if cfg.Gateway.APIKey == "" {
		return nil, fmt.Errorf("GATEWAY_API_KEY is required")
	}

	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return parsed
}
