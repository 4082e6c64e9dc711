package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/gridsense/meterhub/internal/config"
	"github.com/gridsense/meterhub/internal/domain"
	"github.com/gridsense/meterhub/internal/hub"
	"github.com/gridsense/meterhub/internal/ingest"
	"github.com/gridsense/meterhub/internal/logging"
	"github.com/gridsense/meterhub/internal/postgres"
	"github.com/gridsense/meterhub/internal/relay"
	"github.com/gridsense/meterhub/internal/server"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(cfg *config.Config) *goredis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := relay.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func runGracefulShutdown(srv *server.Server, h *hub.Hub, rly *relay.Relay) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		if rly != nil {
			rly.Stop()
		}
		h.Stop()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	pool := setupDB(cfg)
	defer pool.Close()

	meterRepo := postgres.NewMeterRepo(pool)
	readingRepo := postgres.NewReadingRepo(pool)

	h := hub.New(clock, cfg.MaxClientsPerMeter, cfg.SendBufferSize)

	// With Redis configured, readings travel through pub/sub so every
	// instance (this one included) fans them out to its own subscribers.
	// Without it, the ingest pipeline feeds the local hub directly.
	var (
		broadcaster domain.Broadcaster = h
		redisClient *goredis.Client
		rly         *relay.Relay
	)
	if cfg.RedisURL != "" {
		redisClient = setupRedis(cfg)
		defer func() { _ = redisClient.Close() }()

		rly = relay.New(redisClient, h)
		rly.Start()
		broadcaster = rly
	}

	svc := ingest.NewService(meterRepo, readingRepo, broadcaster)

	// pass nil explicitly to avoid a typed-nil interface
	var srv *server.Server
	if redisClient != nil {
		srv = server.NewServer(cfg, svc, h, pool, redisClient)
	} else {
		srv = server.NewServer(cfg, svc, h, pool, nil)
	}

	done := runGracefulShutdown(srv, h, rly)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
