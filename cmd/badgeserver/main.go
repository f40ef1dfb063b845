// Package main runs the badge HTTP server.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	app "github.com/saltoriousSIG/peeples-pins-generator/internal/app"
	"github.com/saltoriousSIG/peeples-pins-generator/internal/app/httpapi"
	"github.com/saltoriousSIG/peeples-pins-generator/internal/app/storage"
	"github.com/saltoriousSIG/peeples-pins-generator/internal/app/storage/postgres"
	"github.com/saltoriousSIG/peeples-pins-generator/internal/cache"
	"github.com/saltoriousSIG/peeples-pins-generator/internal/config"
	"github.com/saltoriousSIG/peeples-pins-generator/internal/generation"
	"github.com/saltoriousSIG/peeples-pins-generator/internal/pinning"
	"github.com/saltoriousSIG/peeples-pins-generator/internal/platform/migrations"
	"github.com/saltoriousSIG/peeples-pins-generator/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "badgeserver: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Name:   "badgeserver",
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store storage.BadgeStateStore
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		if err := migrations.Apply(ctx, db); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		store = postgres.New(db)
		log.Info("using postgres badge store")
	} else {
		log.Warn("DATABASE_URL not set; using in-memory badge store")
	}

	var imageCache cache.ImageCache
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, log.Named("cache"))
		defer redisCache.Close()
		imageCache = redisCache
		log.Infof("using redis image cache at %s", cfg.RedisAddr)
	} else {
		imageCache = cache.NewMemory(0)
	}

	pinClient, err := pinning.NewClient(pinning.Config{
		Gateway: cfg.PinataGateway,
		JWT:     cfg.PinataJWT,
		Timeout: cfg.FetchTimeout,
	}, log.Named("pinning"))
	if err != nil {
		return fmt.Errorf("pinning client: %w", err)
	}

	deps := app.Deps{
		Fetcher:      pinClient,
		Pinner:       pinClient,
		Cache:        imageCache,
		FetchTimeout: cfg.FetchTimeout,
		URLFetcher:   pinClient,
	}
	if cfg.Generation.TextURL != "" {
		deps.Text, err = generation.NewHTTPTextClient(nil, cfg.Generation.TextURL, cfg.Generation.TextKey, cfg.Generation.TextModel, log.Named("textgen"))
		if err != nil {
			return fmt.Errorf("text client: %w", err)
		}
	}
	if cfg.Generation.ImageURL != "" {
		deps.Images, err = generation.NewHTTPImageClient(nil, cfg.Generation.ImageURL, cfg.Generation.ImageKey, log.Named("imagegen"))
		if err != nil {
			return fmt.Errorf("image client: %w", err)
		}
	}
	if cfg.Generation.ProfileURL != "" {
		deps.Profiles, err = generation.NewHTTPProfileClient(nil, cfg.Generation.ProfileURL, cfg.Generation.ProfileKey)
		if err != nil {
			return fmt.Errorf("profile client: %w", err)
		}
	}

	application, err := app.New(app.Stores{Badges: store}, deps, log)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}
	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := application.Stop(stopCtx); err != nil {
			log.WithError(err).Warn("stop application")
		}
	}()

	handler := httpapi.NewHandler(application)
	handler = httpapi.WrapWithAuth(handler, cfg.AuthTokens, log)
	handler = httpapi.WithRateLimit(handler, float64(cfg.RateLimitPerSecond), cfg.RateLimitBurst)
	handler = httpapi.WithMetrics(handler)
	handler = httpapi.WithCORS(handler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
