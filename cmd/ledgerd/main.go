package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/davidterpay/transfer-contract/internal/api"
	"github.com/davidterpay/transfer-contract/internal/config"
	"github.com/davidterpay/transfer-contract/internal/events"
	"github.com/davidterpay/transfer-contract/internal/events/kafka"
	"github.com/davidterpay/transfer-contract/internal/ledger"
	"github.com/davidterpay/transfer-contract/internal/security"
	"github.com/davidterpay/transfer-contract/internal/store"
	"github.com/davidterpay/transfer-contract/pkg/audit"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	st, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	svc := ledger.NewService(st)

	var publisher events.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		kp := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		publisher = kp
		logger.Info("publishing transfers to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		publisher = &events.LogPublisher{Logger: logger}
	}

	var rateLimiter *security.RedisTokenBucket
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		rateLimiter = &security.RedisTokenBucket{
			Redis:      redisClient,
			Prefix:     "ledgerd",
			Capacity:   20,
			RefillRate: 10,
		}
	}

	router, err := api.NewRouter(api.Dependencies{
		Logger:       logger,
		LedgerReader: svc,
		LedgerWriter: svc,
		Publisher:    publisher,
		Auditor:      audit.NewChainLogger(),
		RateLimiter:  rateLimiter,
		MaxBodyBytes: cfg.MaxBodyBytes,
	})
	if err != nil {
		logger.Error("failed to build router", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	logger.Info("ledger service listening", "addr", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// openStore selects the ledger store from the configuration: postgres when
// DATABASE_URL is set, sqlite when SQLITE_PATH is set, otherwise in-memory.
func openStore(cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	switch {
	case cfg.DatabaseURL != "":
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		logger.Info("using postgres store")
		return store.NewPostgres(context.Background(), pool)
	case cfg.SQLitePath != "":
		logger.Info("using sqlite store", "path", cfg.SQLitePath)
		return store.OpenSQLite(cfg.SQLitePath)
	default:
		logger.Warn("no store configured, balances will not survive restarts")
		return store.NewMemory(), nil
	}
}
