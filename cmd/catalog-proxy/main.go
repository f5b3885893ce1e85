// Command catalog-proxy serves the catalog pages of an upstream provider from
// a write-through cache.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/catalog-cache/internal/config"
	"github.com/Sternrassler/catalog-cache/pkg/aggregator"
	"github.com/Sternrassler/catalog-cache/pkg/cache"
	"github.com/Sternrassler/catalog-cache/pkg/client"
	"github.com/Sternrassler/catalog-cache/pkg/logging"
	"github.com/Sternrassler/catalog-cache/pkg/repository"
	"github.com/Sternrassler/catalog-cache/pkg/server"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Catalog proxy stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.Setup(cfg.Logging())
	logger := logging.NewLogger("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	upstreamClient, err := client.New(cfg.Client())
	if err != nil {
		return fmt.Errorf("create upstream client: %w", err)
	}
	var upstream client.Upstream = upstreamClient
	if cfg.UpstreamMaxAttempts > 1 {
		upstream = client.NewRetrying(upstreamClient, cfg.Retry())
	}

	repo := repository.New(store, log.Logger)
	agg := aggregator.New(upstream, repo, cfg.Aggregator(), log.Logger)
	pages := server.New(repo, upstream, agg, cfg.Server(), log.Logger)

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           newHandler(pages, store, cfg.UpstreamTimeout*3),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.Addr()).
			Str("upstream", cfg.UpstreamBaseURL).
			Str("store", cfg.StoreBackend).
			Int("max_attempts", cfg.UpstreamMaxAttempts).
			Msg("Starting catalog proxy")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP shutdown failed")
	}

	// Prefetch tasks carry their own timeout, so this terminates.
	pages.Wait()
	logger.Info().Msg("Prefetch tasks drained")
	return nil
}

// pingStore is a cache.Store that can report readiness.
type pingStore interface {
	cache.Store
	Ping(ctx context.Context) error
}

func openStore(ctx context.Context, cfg config.Config) (pingStore, func(), error) {
	if cfg.StoreBackend == config.BackendMemory {
		log.Warn().Msg("Using in-memory store, cached catalog is lost on restart")
		return cache.NewMemoryStore(), func() {}, nil
	}

	redisClient := redis.NewClient(cfg.Redis())

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		redisClient.Close()
		return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisURL, err)
	}
	log.Info().Str("addr", cfg.RedisURL).Str("prefix", cfg.RedisPrefix).Msg("Connected to Redis")

	return cache.NewRedisStore(redisClient, cfg.RedisPrefix), func() { redisClient.Close() }, nil
}
