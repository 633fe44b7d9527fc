package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"talkroom/internal/app/registry"
	"talkroom/internal/app/server"
	"talkroom/internal/config"
	"talkroom/internal/core/presence"
	"talkroom/internal/core/services"
	"talkroom/internal/platform/logger"
	"talkroom/internal/platform/telemetry"
	"talkroom/internal/plugins/postgres"
	redisPlugin "talkroom/internal/plugins/redis"

	"github.com/redis/go-redis/v9"
)

func main() {
	// Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Config
	cfg := config.Load()

	// Logger
	log := logger.NewLogger(*cfg)
	log.Info("starting application")

	otelShutdown, err := telemetry.InitTelemetry(ctx, *cfg)
	if err != nil {
		log.Error("failed to initialize telemetry", "err", err)
	}
	defer func() {
		log.Info("flushing telemetry...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			log.Error("telemetry shutdown failed", "err", err)
		}
	}()

	// Infra
	var pdb *sql.DB
	if pdb, err = postgres.New(ctx, *cfg.Postgres); err != nil {
		log.Error("postgres connection failed", "DSN", cfg.Postgres.DSN)
		return
	}
	log.Info("postgres connected")
	var rdb *redis.Client
	if rdb, err = redisPlugin.NewRedisClient(ctx, *cfg.Redis); err != nil {
		log.Error("redis connection failed", "url", cfg.Redis.URL)
		return
	}
	log.Info("redis connected")

	// Adapters
	directoryRepo := postgres.NewDirectoryRepo(pdb)
	roomRepo := postgres.NewRoomRepo(pdb)
	msgRepo := postgres.NewMessageRepo(pdb)
	roster := redisPlugin.NewRedisRoster(rdb, cfg.Chat.RosterTTL)

	// Core
	hub := registry.NewRegistry()
	table := presence.NewTable()
	txManager := services.NewTxManager(pdb)
	tokenSvc := services.NewTokenService(cfg.SecretToken)
	accountSvc := services.NewAccountService(log, directoryRepo, txManager)
	roomSvc := services.NewRoomService(log, roomRepo, roster, txManager)
	coordinator := services.NewCoordinator(
		log, tokenSvc, directoryRepo, roomRepo, msgRepo,
		table, hub, roster,
		cfg.Chat.ReplayLimit, cfg.Chat.RosterTTL, cfg.Chat.HeartbeatEvery,
	)

	// Server
	srv := server.NewServer(log, cfg.Service.Name, cfg.Service.Addr, accountSvc, tokenSvc, roomSvc, coordinator)
	if err := srv.Start(); err != nil {
		log.Error("server stopped", "err", err)
	}
}
