package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	LogLevel           string
	LogFormat          string
	MaxClientsPerMeter int
	SendBufferSize     int
}

func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var err error
	cfg.MaxClientsPerMeter, err = getEnvInt("MAX_CLIENTS_PER_METER", 50)
	if err != nil {
		return nil, err
	}
	if cfg.MaxClientsPerMeter < 1 {
		return nil, fmt.Errorf("MAX_CLIENTS_PER_METER must be at least 1")
	}

	cfg.SendBufferSize, err = getEnvInt("SEND_BUFFER_SIZE", 16)
	if err != nil {
		return nil, err
	}
	if cfg.SendBufferSize < 1 {
		return nil, fmt.Errorf("SEND_BUFFER_SIZE must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}
