package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Config holds everything read from the environment at startup.
type Config struct {
	Port        string
	DBDSN       string
	JWTSecret   string
	ModelDir    string
	ScratchDir  string
	UploadBase  string
	WikiBaseURL string
	WikiTimeout time.Duration
	MaxUploadMB int64
	LogLevel    string
}

// LoadConfig reads .env (if present) and the environment.
func LoadConfig(logger *zap.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment variables")
	}

	wikiTimeoutStr := getEnvOrDefault("WIKI_TIMEOUT_MS", "4000")
	wikiTimeoutMS, err := strconv.ParseInt(wikiTimeoutStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid WIKI_TIMEOUT_MS: %v", err)
	}
	maxUploadStr := getEnvOrDefault("MAX_UPLOAD_MB", "10")
	maxUpload, err := strconv.ParseInt(maxUploadStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_MB: %v", err)
	}

	cfg := &Config{
		Port:        getEnvOrDefault("PORT", "8080"),
		DBDSN:       os.Getenv("DB_DSN"),
		JWTSecret:   getEnvOrDefault("JWT_SECRET", "dev-insecure-secret-change"),
		ModelDir:    getEnvOrDefault("MODEL_DIR", "models"),
		ScratchDir:  getEnvOrDefault("SCRATCH_DIR", os.TempDir()),
		UploadBase:  getEnvOrDefault("UPLOAD_BASE", "uploads"),
		WikiBaseURL: getEnvOrDefault("WIKI_BASE_URL", ""),
		WikiTimeout: time.Duration(wikiTimeoutMS) * time.Millisecond,
		MaxUploadMB: maxUpload,
		LogLevel:    getEnvOrDefault("LOG_LEVEL", "info"),
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
