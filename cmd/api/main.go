package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hassaanshafqatt/reels-ui-sub000/internal/api"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()

	if cfg.RunScheduler {
		go func() {
			if err := a.Scheduler.Run(ctx); err != nil {
				logger.Error("scheduler exited", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           api.NewHandler(a.Service, logger.Named("http")).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("api listening", zap.String("addr", cfg.APIAddr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
}
