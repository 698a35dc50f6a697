package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/ncecere/kereru_gateway/internal/app"
	"github.com/ncecere/kereru_gateway/internal/config"
	"github.com/ncecere/kereru_gateway/internal/httpserver"
	"github.com/ncecere/kereru_gateway/internal/observability"
	"github.com/ncecere/kereru_gateway/internal/redisclient"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.Options{})
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	observability.ConfigureLogging(cfg.Log)

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient = redisclient.New(cfg.Redis)
		if err := redisclient.Ping(ctx, redisClient); err != nil {
			log.Fatalf("connect redis: %v", err)
		}
		defer redisClient.Close()
	}

	obs, err := observability.Setup(ctx, cfg.Observability)
	if err != nil {
		log.Fatalf("setup observability: %v", err)
	}
	defer obs.Shutdown(context.Background())

	container, err := app.NewContainer(ctx, cfg, redisClient, obs)
	if err != nil {
		log.Fatalf("build container: %v", err)
	}
	container.Start(ctx)

	server, err := httpserver.New(container)
	if err != nil {
		log.Fatalf("construct server: %v", err)
	}

	slog.Info("kereru gateway listening",
		slog.String("addr", cfg.Server.ListenAddr),
		slog.String("provider", cfg.Model.Provider),
		slog.String("rate_limit_backend", cfg.RateLimits.Backend))

	if err := server.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("server stopped: %v", err)
	}
	stop()
	container.Wait()
}
