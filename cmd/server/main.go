package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/CES-Eats-2026/cesfront/internal/api"
	"github.com/CES-Eats-2026/cesfront/internal/backend"
	"github.com/CES-Eats-2026/cesfront/internal/cache"
	"github.com/CES-Eats-2026/cesfront/internal/config"
	"github.com/CES-Eats-2026/cesfront/internal/recommend"
	"github.com/CES-Eats-2026/cesfront/internal/storage"
	"github.com/CES-Eats-2026/cesfront/internal/viewcount"
)

const pruneInterval = time.Hour

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := godotenv.Load(); err != nil {
		log.Info("no .env file loaded", "err", err)
	}

	if err := run(log); err != nil {
		log.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	pingers := map[string]api.Pinger{}

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = storage.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer pool.Close()

		if err := storage.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		log.Info("migrations applied")
		pingers["db"] = pool
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer func() { _ = redisClient.Close() }()
		pingers["redis"] = cache.Pinger{Client: redisClient}
	}

	// Wire dependencies.
	var store viewcount.BlobStore
	var repo *storage.Repository
	if pool != nil {
		repo = storage.NewRepository(pool)
		store = repo
	}
	if redisClient != nil {
		c := cache.NewCache(redisClient)
		if repo != nil {
			c = c.WithDurable(repo)
		}
		store = c
	}
	if store == nil {
		log.Warn("no REDIS_URL or DATABASE_URL set; view-count snapshots are kept in memory only")
	}

	client := backend.NewClient(cfg.APIBaseURL)
	feedback := backend.NewFeedbackService(client, backend.NewWebhookNotifier(cfg.FeedbackWebhookURL), log)

	manager := recommend.NewManager(client, store, recommend.ManagerConfig{
		Origin:            cfg.Origin,
		Region:            cfg.Region,
		SnapshotWindow:    cfg.SnapshotWindow,
		IdleTimeout:       cfg.SessionIdle,
		TimeOptionMinutes: cfg.TimeOptionMinutes,
	}, log)
	defer manager.CloseAll()
	go manager.Run(ctx)

	if repo != nil {
		go pruneLoop(ctx, repo, cfg.StateRetention, log)
	}

	handlers := api.NewHandlers(manager, feedback, api.ClientConfig{
		MapsAPIKey: cfg.MapsAPIKey,
		Origin:     cfg.Origin,
		Region:     cfg.Region,
	}, log)

	router := api.NewRouter(handlers, api.RouterConfig{
		BearerToken:        cfg.BearerToken,
		CORSOrigins:        cfg.CORSOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}, pingers, log)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("server goroutine panicked", "recover", r)
				errCh <- fmt.Errorf("server panicked: %v", r)
			}
		}()
		log.Info("server starting", "port", cfg.Port, "backend", cfg.APIBaseURL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listening: %w", err)
		}
	}()

	select {
	case sig := <-quit:
		log.Info("shutdown signal received", "signal", sig)
	case err := <-errCh:
		return err
	}

	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	log.Info("server shut down cleanly")
	return nil
}

// pruneLoop drops persisted client state that has not been written for
// maxAge.
func pruneLoop(ctx context.Context, repo *storage.Repository, maxAge time.Duration, log *slog.Logger) {
	if maxAge <= 0 {
		return
	}
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.PruneOlderThan(ctx, maxAge)
			if err != nil {
				log.Warn("pruning client state failed", "err", err)
				continue
			}
			if n > 0 {
				log.Info("pruned client state", "rows", n)
			}
		}
	}
}
