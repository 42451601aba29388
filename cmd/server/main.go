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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"bedagang/backend/internal/cache"
	"bedagang/backend/internal/config"
	"bedagang/backend/internal/httpapi"
	"bedagang/backend/internal/obs"
	"bedagang/backend/internal/service"
	"bedagang/backend/internal/store"
	"bedagang/backend/internal/store/memory"
	pgstore "bedagang/backend/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg config.Config, logger zerolog.Logger) error {
	if err := validateSecurityConfig(cfg); err != nil {
		return fmt.Errorf("invalid security configuration: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback: %w", err)
		}
		closers = append(closers, pg.Close)
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return err
		}
		repo = pg
		logger.Info().Str("repository", "postgres").Msg("repository ready")
	} else {
		repo = memory.NewSeeded(memory.Seed{
			AdminPassword:   cfg.SeedAdminPassword,
			CashierPassword: cfg.SeedCashierPassword,
			Logger:          &logger,
		})
		logger.Info().Str("repository", "memory").Msg("repository ready")
	}

	var catalog cache.CatalogCache = cache.NoopCatalogCache{}
	var guard cache.IdempotencyGuard = cache.NewLocalIdempotencyGuard()
	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, using local idempotency guard and no catalog cache")
			_ = client.Close()
		} else {
			catalog = cache.NewRedisCatalogCache(client)
			guard = cache.NewRedisIdempotencyGuard(client)
			closers = append(closers, client.Close)
			logger.Info().Str("cache", "redis").Msg("cache ready")
		}
	} else {
		logger.Info().Str("cache", "local").Msg("cache ready")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc := service.New(repo, service.Options{
		Catalog:         catalog,
		Guard:           guard,
		Metrics:         obs.NewDomainMetrics(cfg.MetricsNamespace, registry),
		Logger:          logger.With().Str("component", "service").Logger(),
		DefaultStoreID:  cfg.StoreID,
		IdempotencyTTL:  cfg.IdempotencyTTL(),
		CatalogCacheTTL: cfg.CatalogCacheTTL(),
	})
	auth, err := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), cfg.ManagerPIN, repo,
		logger.With().Str("component", "auth").Logger())
	if err != nil {
		return err
	}
	api, err := httpapi.New(svc, auth, httpapi.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger.With().Str("component", "http").Logger(),
		Metrics:        obs.NewHTTPMetrics(cfg.MetricsNamespace, registry),
		Gatherer:       registry,
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Address()).Str("store_id", cfg.StoreID).Msg("POS backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		logger.Info().Str("signal", s.String()).Msg("shutting down")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error().Err(err).Msg("close error")
		}
	}

	logger.Info().Msg("server stopped")
	return nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return errors.New("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.ManagerPIN) < 6 {
		return errors.New("MANAGER_PIN must be set and at least 6 digits")
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN is too weak: %w", err)
	}
	return nil
}

// validatePINStrength rejects PINs that are not all digits, repeat a single
// digit, run sequentially in either direction, or appear on a known-weak list.
func validatePINStrength(pin string) error {
	for _, r := range pin {
		if r < '0' || r > '9' {
			return errors.New("PIN must contain digits only")
		}
	}

	known := map[string]bool{
		"123456": true, "654321": true, "000000": true, "111111": true,
		"121212": true, "112233": true, "123123": true, "696969": true,
		"147258": true, "159753": true, "135790": true, "102030": true,
	}
	if known[pin] {
		return errors.New("common PIN not allowed")
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return errors.New("all-same-digit PIN not allowed")
	}

	// 123456 and 987654 style runs.
	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return errors.New("sequential PIN not allowed")
	}

	return nil
}
