package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/hassaanshafqatt/reels-ui-sub000/internal/app"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/config"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/logging"
)

func main() {
	cfg := config.Load()
	logger, err := logging.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if cfg.RedisAddr == "" {
		// without redis the schedule lives in this process only and the API
		// never feeds it
		logger.Warn("REDIS_ADDR is not set; the scheduler will only see jobs it schedules itself")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()

	if err := a.Scheduler.Run(ctx); err != nil {
		logger.Error("scheduler exited", zap.Error(err))
	}
}
