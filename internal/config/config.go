package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                    string
	AllowedOrigin           string
	DatabaseURL             string
	RedisAddr               string
	RedisPassword           string
	RedisDB                 int
	TrackingSecret          string
	TrackingTokenTTLHours   int
	TrackingCacheTTLSeconds int
	NotifyChannel           string
}

func Load() Config {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("TRACKING_TOKEN_TTL_HOURS", "72"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 72
	}
	cacheTTL, err := strconv.Atoi(getEnv("TRACKING_CACHE_TTL_SECONDS", "60"))
	if err != nil || cacheTTL < 1 {
		cacheTTL = 60
	}

	cfg := Config{
		Port:                    getEnv("PORT", "8080"),
		AllowedOrigin:           getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		RedisAddr:               os.Getenv("REDIS_ADDR"),
		RedisPassword:           os.Getenv("REDIS_PASSWORD"),
		RedisDB:                 redisDB,
		TrackingSecret:          strings.TrimSpace(os.Getenv("TRACKING_SECRET")),
		TrackingTokenTTLHours:   tokenTTL,
		TrackingCacheTTLSeconds: cacheTTL,
		NotifyChannel:           getEnv("NOTIFY_CHANNEL", "orders.events"),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
