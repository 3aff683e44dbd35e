package main

import (
	"context"
	"flag"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose"
	"go.uber.org/zap"

	"github.com/hassaanshafqatt/reels-ui-sub000/internal/config"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/logging"
)

func main() {
	cmd := flag.String("cmd", "up", "goose command: up, down, status, version")
	flag.Parse()

	cfg := config.Load()
	logger, err := logging.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if cfg.PostgresDSN == "" {
		logger.Fatal("POSTGRES_DSN is required")
	}
	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("connect failed", zap.Error(err))
	}
	defer pool.Close()
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		logger.Fatal("goose dialect", zap.Error(err))
	}
	if err := goose.Run(*cmd, db, cfg.MigrationsDir, flag.Args()...); err != nil {
		logger.Fatal("migration failed", zap.String("cmd", *cmd), zap.Error(err))
	}
	logger.Info("migrations done", zap.String("cmd", *cmd), zap.String("dir", cfg.MigrationsDir))
}
