package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"

	_ "github.com/kirinyoku/classgo/docs"
	"github.com/kirinyoku/classgo/internal/app"
	"github.com/kirinyoku/classgo/internal/config"
)

// @title ClassGo API
// @version 1.0
// @description Seat and time-slot reservations for studio class schedules.
// @host localhost:8080
// @BasePath /
func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	if cfg.Log.JSON {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create application", "error", err)
		os.Exit(1)
	}

	if err := application.Run(ctx); err != nil {
		logger.Error("application finished with error", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.Level == slog.LevelDebug,
	}

	if cfg.JSON {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
