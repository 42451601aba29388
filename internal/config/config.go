package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Port                   string
	AllowedOrigins         []string
	DatabaseURL            string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	StoreID                string
	AuthSecret             string
	AccessTokenTTLMinutes  int
	ManagerPIN             string
	LogFormat              string
	LogLevel               string
	MetricsNamespace       string
	IdempotencyTTLSeconds  int
	CatalogCacheTTLSeconds int
	SeedAdminPassword      string
	SeedCashierPassword    string
}

// Load reads an optional .env file and then the process environment. Secrets
// have no defaults; cmd/server refuses to start without them.
func Load() (Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	cfg := Config{
		Port:                   valueOrDefault(k.String("PORT"), "8080"),
		AllowedOrigins:         splitAndTrim(valueOrDefault(k.String("ALLOWED_ORIGINS"), "http://127.0.0.1:3000")),
		DatabaseURL:            strings.TrimSpace(k.String("DATABASE_URL")),
		RedisAddr:              strings.TrimSpace(k.String("REDIS_ADDR")),
		RedisPassword:          k.String("REDIS_PASSWORD"),
		RedisDB:                positiveInt(k.String("REDIS_DB"), 0),
		StoreID:                valueOrDefault(k.String("DEFAULT_STORE_ID"), "main-store"),
		AuthSecret:             strings.TrimSpace(k.String("AUTH_SECRET")),
		AccessTokenTTLMinutes:  positiveInt(k.String("ACCESS_TOKEN_TTL_MINUTES"), 480),
		ManagerPIN:             strings.TrimSpace(k.String("MANAGER_PIN")),
		LogFormat:              valueOrDefault(k.String("LOG_FORMAT"), "json"),
		LogLevel:               valueOrDefault(k.String("LOG_LEVEL"), "info"),
		MetricsNamespace:       valueOrDefault(k.String("METRICS_NAMESPACE"), "bedagang"),
		IdempotencyTTLSeconds:  positiveInt(k.String("IDEMPOTENCY_TTL_SECONDS"), 30),
		CatalogCacheTTLSeconds: positiveInt(k.String("CATALOG_CACHE_TTL_SECONDS"), 60),
		SeedAdminPassword:      k.String("SEED_ADMIN_PASSWORD"),
		SeedCashierPassword:    k.String("SEED_CASHIER_PASSWORD"),
	}
	return cfg, nil
}

func (c Config) Address() string {
	port := strings.TrimSpace(c.Port)
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) IdempotencyTTL() time.Duration {
	return time.Duration(c.IdempotencyTTLSeconds) * time.Second
}

func (c Config) CatalogCacheTTL() time.Duration {
	return time.Duration(c.CatalogCacheTTLSeconds) * time.Second
}

func valueOrDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

// positiveInt parses value, falling back when it is missing, malformed or
// negative. Zero is kept only when the fallback is zero.
func positiveInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 0 || (n == 0 && fallback > 0) {
		return fallback
	}
	return n
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
