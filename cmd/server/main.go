package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tiendaluna/backend/internal/cache"
	"tiendaluna/backend/internal/config"
	"tiendaluna/backend/internal/httpapi"
	"tiendaluna/backend/internal/notify"
	"tiendaluna/backend/internal/service"
	"tiendaluna/backend/internal/store"
	"tiendaluna/backend/internal/store/memory"
	pgstore "tiendaluna/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 3)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	trackingCache := cache.TrackingCache(cache.NoopTrackingCache{})
	notifier := notify.Notifier(notify.LogNotifier{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisTrackingCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache and log notifier", err)
		} else {
			trackingCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")

			redisNotifier := notify.NewRedisNotifier(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.NotifyChannel)
			notifier = redisNotifier
			closers = append(closers, redisNotifier.Close)
			log.Printf("notifier: redis channel=%s", cfg.NotifyChannel)
		}
	} else {
		log.Println("cache: noop, notifier: log")
	}

	svc := service.New(repo, trackingCache, notifier, time.Duration(cfg.TrackingCacheTTLSeconds)*time.Second)
	tokens := httpapi.NewTrackingTokenManager(cfg.TrackingSecret, time.Duration(cfg.TrackingTokenTTLHours)*time.Hour)
	api := httpapi.New(svc, tokens, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("order backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.TrackingSecret) < 32 {
		return fmt.Errorf("TRACKING_SECRET must be set and at least 32 characters")
	}
	return nil
}
