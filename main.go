package main

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"agroscan/pkg/infer"
	"agroscan/pkg/wiki"
)

var (
	cfg        *Config
	logger     *zap.Logger
	jwtSecret  []byte
	registry   *infer.Registry
	wikiClient *wiki.Client
)

func main() {
	var err error
	logger, err = initLogger()
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err = LoadConfig(logger)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	jwtSecret = []byte(cfg.JWTSecret)

	// Support a lightweight migrate command: `./agroscan migrate`
	// It runs AutoMigrate and seeding then exits. Useful for CI or manual DB setup.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		initDB()
		logger.Info("migration and seeding completed")
		return
	}

	initDB()

	registry, err = infer.NewRegistry(cfg.ModelDir, cfg.ScratchDir, logger)
	if err != nil {
		logger.Fatal("failed to load model registry", zap.Error(err))
	}
	if len(registry.Names()) == 0 {
		logger.Warn("no models registered, every upload will fail with an unknown-model response")
	}
	go func() {
		if err := registry.Watch(nil); err != nil {
			logger.Warn("model directory watch unavailable", zap.Error(err))
		}
	}()

	wikiClient = wiki.New(cfg.WikiBaseURL, cfg.WikiTimeout, logger)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(requestLogger(logger))
	r.Use(recoveryWithZap(logger))
	r.Use(corsHandler())

	setupRoutes(r)

	logger.Info("starting server", zap.String("port", cfg.Port), zap.Strings("models", registry.Names()))
	if err := r.Run(":" + cfg.Port); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initLogger() (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return config.Build()
}
